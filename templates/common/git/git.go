// Copyright 2023 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package git is the version-control driver. Read-only repo inspection goes
// through go-git; everything that mutates a repo or needs porcelain behavior
// (clone, describe, diff-tree, apply) shells out to the git CLI already
// installed on the system.
package git

import (
	"context"
	"fmt"
	"strings"

	gogit "github.com/go-git/go-git/v5"

	"github.com/abcxyz/copier/templates/common/run"
)

// Driver is the set of version-control operations the engine consumes. The
// production implementation is [CLI]; tests substitute fakes.
type Driver interface {
	// ExpandURL reports whether url looks like a git repository locator, and
	// if so returns its normalized clone URL.
	ExpandURL(url string) (string, bool)

	// Clone checks out the given repo at ref into outDir. An empty ref means
	// the remote's default head.
	Clone(ctx context.Context, remote, ref, outDir string) error

	// Describe returns a human-oriented revision string for the checkout at
	// dir (most recent tag, or short hash when there are no tags).
	Describe(ctx context.Context, dir string) (string, error)

	// Tags lists the tag names present in the checkout at dir.
	Tags(ctx context.Context, dir string) ([]string, error)

	// Checkout moves the checkout at dir to the given ref.
	Checkout(ctx context.Context, dir, ref string) error

	// IsRepoRoot reports whether dir is the root of a working copy.
	IsRepoRoot(dir string) bool

	// IsDirty reports whether the working copy at dir has uncommitted
	// changes.
	IsDirty(dir string) (bool, error)

	// Init creates a repository at dir.
	Init(ctx context.Context, dir string) error

	// AddAll stages every file under dir.
	AddAll(ctx context.Context, dir string) error

	// Commit records a commit at dir under a fixed throwaway identity. When
	// tolerateFailure is true a failed commit is not an error; the first of
	// the update flow's two commits may legitimately fail if a hook rewrites
	// files out from under it.
	Commit(ctx context.Context, dir, message string, tolerateFailure bool) error

	// Fetch fetches ref from the given remote (a URL or path) into dir's
	// repository, with the given history depth.
	Fetch(ctx context.Context, dir, remote, ref string, depth int) error

	// DiffTree returns the unified diff between two revisions of dir's
	// repository. interHunkContext is passed through to git; -1 asks git to
	// merge nearby hunks (git >= 2.24) and may be rejected by older versions.
	DiffTree(ctx context.Context, dir, oldRev, newRev string, interHunkContext int) (string, error)

	// Apply applies the patch to the working copy at dir with --reject:
	// hunks that don't apply become .rej files instead of failing the whole
	// patch. Paths matching excludePatterns are left alone. The returned
	// rejected flag is true when at least one hunk didn't apply.
	Apply(ctx context.Context, dir, patch string, excludePatterns []string) (rejected bool, _ error)
}

// CLI implements Driver with the system git binary (and go-git for the
// read-only checks).
type CLI struct{}

var urlPrefixes = []string{"git+", "git://", "git@", "gh:", "gl:"}

// ExpandURL implements Driver. It recognizes the usual git locator shapes
// plus the gh:/gl: shorthands for GitHub and GitLab.
func (c *CLI) ExpandURL(url string) (string, bool) {
	hasPrefix := false
	for _, p := range urlPrefixes {
		if strings.HasPrefix(url, p) {
			hasPrefix = true
			break
		}
	}
	if !hasPrefix && !strings.HasSuffix(url, ".git") {
		return "", false
	}
	switch {
	case strings.HasPrefix(url, "gh:"):
		url = "https://github.com/" + strings.TrimPrefix(url, "gh:")
		if !strings.HasSuffix(url, ".git") {
			url += ".git"
		}
	case strings.HasPrefix(url, "gl:"):
		url = "https://gitlab.com/" + strings.TrimPrefix(url, "gl:")
		if !strings.HasSuffix(url, ".git") {
			url += ".git"
		}
	case strings.HasPrefix(url, "git+"):
		url = strings.TrimPrefix(url, "git+")
	}
	return url, true
}

// Clone implements Driver. The full history is fetched: updates need to be
// able to check out old template revisions by hash.
func (c *CLI) Clone(ctx context.Context, remote, ref, outDir string) error {
	if _, _, err := run.Simple(ctx, "git", "clone", remote, outDir); err != nil {
		return fmt.Errorf("clone of %q failed: %w", remote, err)
	}
	if ref != "" {
		return c.Checkout(ctx, outDir, ref)
	}
	return nil
}

// Checkout implements Driver.
func (c *CLI) Checkout(ctx context.Context, dir, ref string) error {
	if _, _, err := run.Simple(ctx, "git", "-C", dir, "checkout", "--quiet", ref); err != nil {
		return fmt.Errorf("checkout of %q failed: %w", ref, err)
	}
	return nil
}

// Describe implements Driver.
func (c *CLI) Describe(ctx context.Context, dir string) (string, error) {
	stdout, _, err := run.Simple(ctx, "git", "-C", dir, "describe", "--tags", "--always")
	if err != nil {
		return "", fmt.Errorf("git describe failed: %w", err)
	}
	return strings.TrimSpace(stdout), nil
}

// Tags implements Driver.
func (c *CLI) Tags(ctx context.Context, dir string) ([]string, error) {
	stdout, _, err := run.Simple(ctx, "git", "-C", dir, "tag", "--list")
	if err != nil {
		return nil, fmt.Errorf("git tag failed: %w", err)
	}
	var tags []string
	for _, line := range strings.Split(stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			tags = append(tags, line)
		}
	}
	return tags, nil
}

// IsRepoRoot implements Driver. Only dir itself is considered; a
// subdirectory of a repository is not a repo root.
func (c *CLI) IsRepoRoot(dir string) bool {
	_, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: false})
	return err == nil
}

// IsDirty implements Driver.
func (c *CLI) IsDirty(dir string) (bool, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: false})
	if err != nil {
		return false, fmt.Errorf("failed opening repository %q: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed opening worktree of %q: %w", dir, err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("failed reading status of %q: %w", dir, err)
	}
	return !status.IsClean(), nil
}

// Init implements Driver.
func (c *CLI) Init(ctx context.Context, dir string) error {
	if _, _, err := run.Simple(ctx, "git", "-C", dir, "init", "--quiet"); err != nil {
		return fmt.Errorf("git init failed: %w", err)
	}
	return nil
}

// AddAll implements Driver.
func (c *CLI) AddAll(ctx context.Context, dir string) error {
	if _, _, err := run.Simple(ctx, "git", "-C", dir, "add", "--all"); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// Commit implements Driver. The identity is passed per-invocation with -c so
// nothing is written to the user's git config.
func (c *CLI) Commit(ctx context.Context, dir, message string, tolerateFailure bool) error {
	args := []string{
		"git", "-C", dir,
		"-c", "user.name=Copier",
		"-c", "user.email=copier@copier",
		"commit", "--quiet", "--allow-empty", "-am", message,
	}
	_, stderr, exitCode, err := run.With(ctx, &run.Options{AllowNonzero: tolerateFailure}, args...)
	if err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	if exitCode != 0 && !tolerateFailure {
		return fmt.Errorf("git commit failed: %s", stderr)
	}
	return nil
}

// Fetch implements Driver.
func (c *CLI) Fetch(ctx context.Context, dir, remote, ref string, depth int) error {
	args := []string{"git", "-C", dir, "fetch"}
	if depth > 0 {
		args = append(args, fmt.Sprintf("--depth=%d", depth))
	}
	args = append(args, remote, ref)
	if _, _, err := run.Simple(ctx, args...); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	return nil
}

// DiffTree implements Driver.
func (c *CLI) DiffTree(ctx context.Context, dir, oldRev, newRev string, interHunkContext int) (string, error) {
	stdout, _, err := run.Simple(ctx, "git", "-C", dir,
		"diff-tree", "-p", "--unified=1",
		fmt.Sprintf("--inter-hunk-context=%d", interHunkContext),
		oldRev+"..."+newRev)
	if err != nil {
		return "", fmt.Errorf("git diff-tree failed: %w", err)
	}
	return stdout, nil
}

// Apply implements Driver.
func (c *CLI) Apply(ctx context.Context, dir, patch string, excludePatterns []string) (bool, error) {
	args := []string{"git", "-C", dir, "apply", "--reject"}
	for _, p := range excludePatterns {
		args = append(args, "--exclude", p)
	}
	_, _, exitCode, err := run.With(ctx, &run.Options{
		Stdin:        strings.NewReader(patch),
		AllowNonzero: true,
	}, args...)
	if err != nil {
		return false, fmt.Errorf("git apply failed: %w", err)
	}
	return exitCode != 0, nil
}
