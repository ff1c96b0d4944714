// Package gitsource fetches remote repositories so the CLI can run
// mutation analysis against a checkout instead of local files.
package gitsource

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog/log"
)

// RepoInfo contains parsed repository information.
type RepoInfo struct {
	Owner    string
	Name     string
	URL      string
	CloneURL string
}

// CloneResult describes where a clone landed.
type CloneResult struct {
	Path      string
	CommitSHA string
	Branch    string
}

// ParseRepoURL parses an HTTPS or SSH clone URL.
func ParseRepoURL(rawURL string) (*RepoInfo, error) {
	// git@host:owner/repo.git form.
	if strings.HasPrefix(rawURL, "git@") {
		parts := strings.SplitN(rawURL, ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("invalid SSH URL format: %s", rawURL)
		}
		host := strings.TrimPrefix(parts[0], "git@")
		pathParts := strings.Split(strings.TrimSuffix(parts[1], ".git"), "/")
		if len(pathParts) < 2 {
			return nil, fmt.Errorf("invalid repo path: %s", parts[1])
		}
		owner := strings.Join(pathParts[:len(pathParts)-1], "/")
		name := pathParts[len(pathParts)-1]
		return &RepoInfo{
			Owner:    owner,
			Name:     name,
			URL:      rawURL,
			CloneURL: fmt.Sprintf("https://%s/%s/%s.git", host, owner, name),
		}, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s", rawURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("missing host in URL: %s", rawURL)
	}

	pathParts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(pathParts) < 1 || pathParts[0] == "" {
		return nil, fmt.Errorf("invalid repo path: %s", parsed.Path)
	}

	name := strings.TrimSuffix(pathParts[len(pathParts)-1], ".git")
	owner := strings.Join(pathParts[:len(pathParts)-1], "/")

	return &RepoInfo{
		Owner:    owner,
		Name:     name,
		URL:      rawURL,
		CloneURL: rawURL,
	}, nil
}

// Cloner clones repositories beneath a base directory.
type Cloner struct {
	baseDir string
	token   string
}

// NewCloner returns a Cloner writing under baseDir. token, when set, is
// sent as basic auth for private repositories.
func NewCloner(baseDir, token string) *Cloner {
	return &Cloner{baseDir: baseDir, token: token}
}

// Clone shallow-clones the repository and returns the checkout path.
// branch selects a specific branch; empty means the remote default.
func (c *Cloner) Clone(ctx context.Context, rawURL, branch string) (*CloneResult, error) {
	info, err := ParseRepoURL(rawURL)
	if err != nil {
		return nil, err
	}

	repoDir := filepath.Join(c.baseDir, info.Name)
	if _, err := os.Stat(repoDir); err == nil {
		log.Debug().Str("path", repoDir).Msg("removing existing checkout")
		if err := os.RemoveAll(repoDir); err != nil {
			return nil, fmt.Errorf("failed to remove existing directory: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(repoDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	log.Info().
		Str("url", info.CloneURL).
		Str("path", repoDir).
		Msg("cloning repository")

	cloneOpts := &git.CloneOptions{
		URL:   info.CloneURL,
		Depth: 1,
	}
	if c.token != "" {
		cloneOpts.Auth = &http.BasicAuth{
			Username: "git",
			Password: c.token,
		}
	}
	if branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		cloneOpts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, repoDir, false, cloneOpts)
	if err != nil {
		// A named branch that does not exist falls back to the default.
		if branch != "" && strings.Contains(err.Error(), "reference not found") {
			log.Debug().Str("branch", branch).Msg("branch not found, trying default")
			cloneOpts.ReferenceName = ""
			cloneOpts.SingleBranch = false
			repo, err = git.PlainCloneContext(ctx, repoDir, false, cloneOpts)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to clone %s: %w", info.CloneURL, err)
		}
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	result := &CloneResult{
		Path:      repoDir,
		CommitSHA: head.Hash().String(),
		Branch:    head.Name().Short(),
	}

	log.Info().
		Str("commit", shortSHA(result.CommitSHA)).
		Str("branch", result.Branch).
		Msg("clone complete")

	return result, nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
