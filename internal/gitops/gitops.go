// Package gitops keeps a project directory under git so that every change to
// the CSV ledger is a commit.
package gitops

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Author identifies who commits ledger changes.
type Author struct {
	Name  string
	Email string
}

func (a Author) String() string {
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// Init initializes a new git repository at dir.
func Init(dir string) error {
	if out, err := git(dir, Author{}, "init", "--quiet"); err != nil {
		return fmt.Errorf("git init: %s: %w", out, err)
	}
	return nil
}

// IsRepo reports whether dir is the root of a git repository.
func IsRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// Dirty reports whether dir has uncommitted changes, untracked files included.
func Dirty(dir string) (bool, error) {
	out, err := git(dir, Author{}, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %s: %w", out, err)
	}
	return len(strings.TrimSpace(out)) > 0, nil
}

// CommitAll stages all files and creates a commit as author. It returns the
// short commit hash, or "" when there was nothing to commit.
func CommitAll(dir, message string, author Author) (string, error) {
	dirty, err := Dirty(dir)
	if err != nil {
		return "", err
	}
	if !dirty {
		return "", nil
	}

	if out, err := git(dir, author, "add", "-A"); err != nil {
		return "", fmt.Errorf("git add: %s: %w", out, err)
	}
	if out, err := git(dir, author, "commit", "--quiet", "-m", message, "--author", author.String()); err != nil {
		return "", fmt.Errorf("git commit: %s: %w", out, err)
	}

	out, err := git(dir, author, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %s: %w", out, err)
	}
	return strings.TrimSpace(out), nil
}

// git runs a git subcommand in dir. A non-empty author is also the committer,
// so commits work without a global git identity.
func git(dir string, author Author, args ...string) (string, error) {
	if author.Name != "" {
		args = append([]string{"-c", "user.name=" + author.Name, "-c", "user.email=" + author.Email}, args...)
	}
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}
