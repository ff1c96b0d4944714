// Package sandbox manages the disposable working directories mutants are
// executed in. Every mutant gets its own directory so test runs cannot
// observe each other, and directories are removed as soon as the run that
// owns them finishes.
package sandbox

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Config controls where working directories are created.
type Config struct {
	// BaseDir is the parent directory for all sandboxes. Created on demand.
	BaseDir string
}

// DefaultConfig places sandboxes under the system temp directory.
func DefaultConfig() Config {
	return Config{
		BaseDir: filepath.Join(os.TempDir(), "mutest"),
	}
}

// Manager creates and tracks sandbox directories under a common base.
type Manager struct {
	baseDir string
}

// NewManager returns a Manager rooted at cfg.BaseDir.
func NewManager(cfg Config) *Manager {
	if cfg.BaseDir == "" {
		cfg = DefaultConfig()
	}
	return &Manager{baseDir: cfg.BaseDir}
}

// BaseDir returns the directory sandboxes are created under.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Create makes a fresh, empty working directory and returns a handle to it.
func (m *Manager) Create() (*Workdir, error) {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sandbox base dir: %w", err)
	}

	id := uuid.New().String()[:8]
	path := filepath.Join(m.baseDir, id)
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating sandbox dir: %w", err)
	}

	return &Workdir{path: path}, nil
}

// Workdir is a single isolated working directory.
type Workdir struct {
	path string
}

// Path returns the absolute directory path.
func (w *Workdir) Path() string {
	return w.path
}

// WriteFile writes content to a file at the given path relative to the
// sandbox root, creating parent directories as needed.
func (w *Workdir) WriteFile(relPath, content string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("sandbox file path must be relative: %s", relPath)
	}

	dest := filepath.Join(w.path, relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating sandbox subdir: %w", err)
	}
	if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing sandbox file: %w", err)
	}

	return dest, nil
}

// CopyTree copies the contents of srcDir into the sandbox, preserving the
// relative layout. VCS metadata is skipped.
func (w *Workdir) CopyTree(srcDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}

		dest := filepath.Join(w.path, rel)
		if d.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		return copyFile(path, dest)
	})
}

// Remove deletes the working directory and everything in it.
func (w *Workdir) Remove() error {
	if err := os.RemoveAll(w.path); err != nil {
		return fmt.Errorf("removing sandbox dir: %w", err)
	}
	return nil
}

func copyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
