package gitsource

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mutesthq/mutest/internal/parser"
)

// skipDirs are never descended into regardless of exclude patterns.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// DiscoverFiles walks root and returns the relative paths of files in a
// supported language, minus anything matching an exclude pattern.
// Patterns follow the project config vocabulary: "**/dir/**" excludes a
// directory at any depth, "**/glob" matches file names, and plain globs
// match the relative path.
func DiscoverFiles(root string, exclude []string) ([]string, error) {
	var files []string

	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			name := info.Name()
			if p != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}

		if parser.DetectLanguage(p) == parser.LanguageUnknown {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		for _, pattern := range exclude {
			if matchesPattern(rel, pattern) {
				return nil
			}
		}

		files = append(files, rel)
		return nil
	})

	return files, err
}

// Languages counts analyzable files per language beneath root.
func Languages(root string) (map[string]int, error) {
	counts := make(map[string]int)

	files, err := DiscoverFiles(root, nil)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		counts[string(parser.DetectLanguage(f))]++
	}

	return counts, nil
}

// matchesPattern reports whether the slash-separated relative path rel
// matches one exclude pattern.
func matchesPattern(rel, pattern string) bool {
	base := path.Base(rel)

	switch {
	case strings.HasPrefix(pattern, "**/") && strings.HasSuffix(pattern, "/**"):
		dir := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		return strings.Contains("/"+rel+"/", "/"+dir+"/")

	case strings.HasPrefix(pattern, "**/"):
		if ok, _ := path.Match(strings.TrimPrefix(pattern, "**/"), base); ok {
			return true
		}
		return false

	case strings.HasSuffix(pattern, "/**"):
		return strings.HasPrefix(rel, strings.TrimSuffix(pattern, "/**")+"/")

	default:
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		ok, _ := path.Match(pattern, base)
		return ok
	}
}
