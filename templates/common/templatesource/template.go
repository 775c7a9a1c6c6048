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

// Package templatesource models the two directory trees a run touches: the
// template being rendered (local directory or git URL) and the destination
// subproject it's rendered into.
package templatesource

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/abcxyz/pkg/logging"

	"github.com/abcxyz/copier/internal/version"
	"github.com/abcxyz/copier/templates/common/errs"
	"github.com/abcxyz/copier/templates/common/git"
	"github.com/abcxyz/copier/templates/common/tempdir"
	"github.com/abcxyz/copier/templates/model"
)

// DefaultTemplatesSuffix marks files that are rendered through the engine
// rather than copied verbatim.
const DefaultTemplatesSuffix = ".jinja"

// Options are the collaborators a Template needs beyond its (url, ref)
// identity.
type Options struct {
	// Git is the version-control driver.
	Git git.Driver

	// Dirs tracks scratch directories (clones) for end-of-run removal.
	Dirs *tempdir.DirTracker

	// UsePrereleases allows prerelease tags when picking the default ref of
	// a version-tagged template.
	UsePrereleases bool
}

// Template is an immutable view of a template source. All derived values are
// computed lazily and memoized; see [memo].
type Template struct {
	url  string
	ref  string
	opts *Options

	urlExpanded string
	isGit       bool

	localPath memo[string]
	commit    memo[string]
	config    memo[*model.Config]
}

// New builds a Template over the given locator. ref may be empty, meaning
// "the template's default revision": the latest release tag for a
// version-tagged template, otherwise the head.
func New(url, ref string, opts *Options) *Template {
	t := &Template{url: url, ref: ref, opts: opts}
	t.urlExpanded, t.isGit = opts.Git.ExpandURL(url)
	if !t.isGit {
		t.urlExpanded = url
	}
	return t
}

// URL returns the locator the Template was built from.
func (t *Template) URL() string { return t.url }

// Ref returns the explicitly requested revision, or "".
func (t *Template) Ref() string { return t.ref }

// URLExpanded returns the normalized clone URL for VCS-backed templates, or
// the original locator otherwise.
func (t *Template) URLExpanded() string { return t.urlExpanded }

// VCS returns "git" for VCS-backed templates and "" for plain directories.
func (t *Template) VCS() string {
	if t.isGit {
		return "git"
	}
	return ""
}

// LocalPath returns a directory on disk containing the template at the
// desired revision, cloning into a tracked scratch directory on first use if
// needed.
func (t *Template) LocalPath(ctx context.Context) (string, error) {
	return t.localPath.get(func() (string, error) {
		if !t.isGit || t.opts.Git.IsRepoRoot(t.urlExpanded) {
			return t.url, nil
		}
		outDir, err := t.opts.Dirs.MkdirTempTracked("", "copier-"+tempdir.TemplateCloneDirNamePart+"-*")
		if err != nil {
			return "", fmt.Errorf("failed creating scratch directory: %w", err)
		}
		if err := t.opts.Git.Clone(ctx, t.urlExpanded, t.ref, outDir); err != nil {
			return "", &errs.TemplateResolutionError{URL: t.url, Err: err}
		}
		if t.ref == "" {
			if err := t.checkoutLatestRelease(ctx, outDir); err != nil {
				return "", err
			}
		}
		return outDir, nil
	})
}

// checkoutLatestRelease moves a freshly cloned template to its newest version
// tag. Prerelease tags are skipped unless opted into. A template with no
// parseable version tags stays at the cloned head.
func (t *Template) checkoutLatestRelease(ctx context.Context, dir string) error {
	tags, err := t.opts.Git.Tags(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed listing template tags: %w", err)
	}
	var bestTag string
	var bestVer *semver.Version
	for _, tag := range tags {
		v, err := semver.NewVersion(tag)
		if err != nil {
			continue
		}
		if v.Prerelease() != "" && !t.opts.UsePrereleases {
			continue
		}
		if bestVer == nil || v.GreaterThan(bestVer) {
			bestTag, bestVer = tag, v
		}
	}
	if bestTag == "" {
		return nil
	}
	if err := t.opts.Git.Checkout(ctx, dir, bestTag); err != nil {
		return fmt.Errorf("failed checking out release %q: %w", bestTag, err)
	}
	return nil
}

// Commit returns the revision string of the checked-out template, or "" for
// templates that aren't VCS-backed.
func (t *Template) Commit(ctx context.Context) (string, error) {
	return t.commit.get(func() (string, error) {
		if !t.isGit {
			return "", nil
		}
		dir, err := t.LocalPath(ctx)
		if err != nil {
			return "", err
		}
		out, err := t.opts.Git.Describe(ctx, dir)
		if err != nil {
			return "", fmt.Errorf("failed describing template revision: %w", err)
		}
		return out, nil
	})
}

// Config returns the parsed template configuration, enforcing
// _min_copier_version.
func (t *Template) Config(ctx context.Context) (*model.Config, error) {
	return t.config.get(func() (*model.Config, error) {
		dir, err := t.LocalPath(ctx)
		if err != nil {
			return nil, err
		}
		cfg, err := model.LoadConfig(dir)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		if err := CheckMinVersion(ctx, version.Version, cfg.MinVersion); err != nil {
			return nil, err
		}
		return cfg, nil
	})
}

// CheckMinVersion enforces a template's declared minimum engine version.
// Development builds (whose version string isn't a version at all) skip the
// check rather than refusing every gated template.
func CheckMinVersion(ctx context.Context, current, required string) error {
	if required == "" {
		return nil
	}
	reqVer, err := semver.NewVersion(required)
	if err != nil {
		return fmt.Errorf("template declares unparseable _min_copier_version %q: %w", required, err)
	}
	curVer, err := semver.NewVersion(current)
	if err != nil {
		logging.FromContext(ctx).WarnContext(ctx,
			"cannot enforce _min_copier_version against a non-release build",
			"current", current, "required", required)
		return nil
	}
	if curVer.LessThan(reqVer) {
		return &errs.MinVersionUnmetError{Required: required, Current: current}
	}
	return nil
}

// DefaultAnswers returns each question's declared default, keyed by question
// name.
func (t *Template) DefaultAnswers(ctx context.Context) (map[string]any, error) {
	cfg, err := t.Config(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(cfg.Questions))
	for _, q := range cfg.Questions {
		out[q.Name] = q.Default
	}
	return out, nil
}

// SecretQuestions returns the union of _secret_questions and questions
// declared with a truthy secret attribute.
func (t *Template) SecretQuestions(ctx context.Context) (map[string]bool, error) {
	cfg, err := t.Config(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, name := range cfg.SecretQuestions {
		out[name] = true
	}
	for _, q := range cfg.Questions {
		if q.Secret {
			out[q.Name] = true
		}
	}
	return out, nil
}

// TemplatesSuffix returns the configured suffix for engine-rendered files.
func (t *Template) TemplatesSuffix(ctx context.Context) (string, error) {
	cfg, err := t.Config(ctx)
	if err != nil {
		return "", err
	}
	if cfg.TemplatesSuffix == "" {
		return DefaultTemplatesSuffix, nil
	}
	return cfg.TemplatesSuffix, nil
}
