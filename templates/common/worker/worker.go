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

// Package worker orchestrates the copy and update flows: it owns the
// template, the destination subproject, the layered answers, the renderer,
// and the task runner, and drives them in order.
package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jinzhu/copier"

	"github.com/abcxyz/copier/internal/version"
	"github.com/abcxyz/copier/templates/common/answers"
	"github.com/abcxyz/copier/templates/common/engine"
	"github.com/abcxyz/copier/templates/common/errs"
	"github.com/abcxyz/copier/templates/common/git"
	"github.com/abcxyz/copier/templates/common/input"
	"github.com/abcxyz/copier/templates/common/pathmatch"
	"github.com/abcxyz/copier/templates/common/tempdir"
	"github.com/abcxyz/copier/templates/common/templatesource"
	"github.com/abcxyz/copier/templates/model"
)

// DefaultExclude is the exclusion set used when the template doesn't declare
// _exclude. The template's own configuration files and common editor/VCS
// droppings never belong in a rendered project.
var DefaultExclude = []string{
	"copier.yml",
	"copier.yaml",
	"~*",
	"*.bak",
	".git",
	".DS_Store",
	".svn",
}

// Config is the Worker's immutable configuration. Callers fill in what they
// need and leave the rest zero; New applies defaults. A Config must not be
// mutated after being passed to New.
type Config struct {
	// AnswersFile is the relative path of the persisted answers within the
	// destination. Empty means .copier-answers.yml.
	AnswersFile string

	// CleanupOnError removes the files created by a failed copy.
	CleanupOnError bool

	// Data is caller-forced answers; they beat everything except scratch
	// values.
	Data map[string]any

	// DstPath is the destination directory, created if missing.
	DstPath string

	// EnvOps configures the templating engine. Nil means defaults.
	EnvOps *engine.EnvOps

	// Exclude are extra exclusion patterns, appended to the template's.
	Exclude []string

	// ExtraPaths are additional roots the engine's include function may read
	// from.
	ExtraPaths []string

	// Force overwrites conflicting files without prompting and answers the
	// questionnaire with defaults.
	Force bool

	// Pretend goes through all the motions except writing or mutating the
	// destination.
	Pretend bool

	// Quiet suppresses progress output.
	Quiet bool

	// SkipIfExists are patterns that must never overwrite an existing
	// destination path.
	SkipIfExists []string

	// SrcPath is the template locator. Empty means "use the destination's
	// recorded _src_path".
	SrcPath string

	// Subdirectory selects a sub-path of the template as the root to render.
	Subdirectory string

	// UsePrereleases allows prerelease template tags when no explicit ref is
	// given.
	UsePrereleases bool

	// VCSRef is an explicit template revision to check out.
	VCSRef string

	// Prompter is used for questionnaire and conflict prompts. Nil means
	// non-interactive: conflicts are skipped and defaults accepted.
	Prompter input.Prompter

	// Stderr receives progress records. Defaults to os.Stderr.
	Stderr io.Writer

	// Clock supplies the timestamp baseline data. Defaults to the real
	// clock; tests inject a mock.
	Clock clock.Clock

	// Git is the version-control driver. Defaults to the system git CLI.
	Git git.Driver

	// KeepTempDirs preserves scratch directories for debugging.
	KeepTempDirs bool
}

// Worker runs one copy or update. Workers are single-use: derived values are
// memoized on first access and answers freeze once rendering starts, so a
// second run would see stale state. Build a fresh Worker per run.
type Worker struct {
	cfg       *Config
	stderr    io.Writer
	clock     clock.Clock
	gitDriver git.Driver
	dirs      *tempdir.DirTracker

	state runState

	subproject *templatesource.Subproject
	template   *templatesource.Template
	answersMap *answers.Map
	eng        engine.Engine

	// baseline is the constant data every render gets, fixed in New.
	baseline map[string]any

	// Files and directories created this run, newest last, for
	// CleanupOnError.
	createdFiles []string
	createdDirs  []string
}

// New builds a Worker over the given configuration, applying defaults.
func New(cfg *Config) *Worker {
	w := &Worker{
		cfg:       cfg,
		stderr:    cfg.Stderr,
		clock:     cfg.Clock,
		gitDriver: cfg.Git,
	}
	if w.stderr == nil {
		w.stderr = os.Stderr
	}
	if w.clock == nil {
		w.clock = clock.New()
	}
	if w.gitDriver == nil {
		w.gitDriver = &git.CLI{}
	}
	w.baseline = map[string]any{
		"now":            w.clock.Now().UTC().Format(time.RFC3339),
		"copier_version": version.Version,
	}
	w.dirs = tempdir.NewDirTracker(cfg.KeepTempDirs)
	return w
}

// RunAuto runs a copy when a template locator was given and an update
// otherwise.
func (w *Worker) RunAuto(ctx context.Context) error {
	if w.cfg.SrcPath != "" {
		return w.RunCopy(ctx)
	}
	return w.RunUpdate(ctx)
}

// Subproject returns the destination view.
func (w *Worker) Subproject() *templatesource.Subproject {
	if w.subproject == nil {
		w.subproject = templatesource.NewSubproject(w.cfg.DstPath, w.cfg.AnswersFile, w.gitDriver)
	}
	return w.subproject
}

func (w *Worker) templateOptions() *templatesource.Options {
	return &templatesource.Options{
		Git:            w.gitDriver,
		Dirs:           w.dirs,
		UsePrereleases: w.cfg.UsePrereleases,
	}
}

// Template returns the template view, from the command line locator or the
// destination's recorded one.
func (w *Worker) Template() (*templatesource.Template, error) {
	if w.template != nil {
		return w.template, nil
	}
	if w.cfg.SrcPath != "" {
		w.template = templatesource.New(w.cfg.SrcPath, w.cfg.VCSRef, w.templateOptions())
		return w.template, nil
	}
	tmpl, ok, err := w.Subproject().Template(w.templateOptions())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &errs.TemplateNotFoundError{DstPath: w.cfg.DstPath}
	}
	// The recorded template carries the commit of the *previous* run as its
	// ref; that's what update's old-render reconstruction wants, but as the
	// render target it would pin us to the past. Re-target at the requested
	// ref (or the default: the latest release).
	w.template = templatesource.New(tmpl.URL(), w.cfg.VCSRef, w.templateOptions())
	return w.template, nil
}

// Answers returns the layered answer store:
// caller data > previous answers > template defaults > baseline.
func (w *Worker) Answers(ctx context.Context) (*answers.Map, error) {
	if w.answersMap != nil {
		return w.answersMap, nil
	}
	tmpl, err := w.Template()
	if err != nil {
		return nil, err
	}
	defaults, err := tmpl.DefaultAnswers(ctx)
	if err != nil {
		return nil, err
	}
	last, err := w.Subproject().LastAnswers()
	if err != nil {
		return nil, err
	}
	w.answersMap = answers.New(&answers.Layers{
		Init:     w.cfg.Data,
		Last:     last,
		Default:  defaults,
		Baseline: w.defaultData(),
	})
	return w.answersMap, nil
}

// defaultData is the constant baseline every render context gets, computed
// once in New.
func (w *Worker) defaultData() map[string]any {
	return w.baseline
}

// AllExclusions is the template's exclusion set (or the default one) plus the
// caller's extra patterns.
func (w *Worker) AllExclusions(ctx context.Context) ([]string, error) {
	tmpl, err := w.Template()
	if err != nil {
		return nil, err
	}
	cfg, err := tmpl.Config(ctx)
	if err != nil {
		return nil, err
	}
	base := cfg.Exclude
	if base == nil {
		base = DefaultExclude
	}
	out := make([]string, 0, len(base)+len(w.cfg.Exclude))
	out = append(out, base...)
	out = append(out, w.cfg.Exclude...)
	return out, nil
}

// Engine returns the templating engine, configured from EnvOps plus the
// include function rooted at the template and the extra paths.
func (w *Worker) Engine(ctx context.Context) (engine.Engine, error) {
	if w.eng != nil {
		return w.eng, nil
	}
	tmpl, err := w.Template()
	if err != nil {
		return nil, err
	}
	root, err := tmpl.LocalPath(ctx)
	if err != nil {
		return nil, err
	}
	roots := append([]string{root}, w.cfg.ExtraPaths...)
	w.eng = engine.New(w.cfg.EnvOps, map[string]any{
		"include": includeFunc(roots),
	})
	return w.eng, nil
}

// includeFunc reads a file by relative name from the first root that has it,
// for embedding shared snippets into rendered files.
func includeFunc(roots []string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, root := range roots {
			buf, err := os.ReadFile(joinInside(root, name))
			if err == nil {
				return string(buf), nil
			}
		}
		return "", fmt.Errorf("no file named %q in any template root", name)
	}
}

// questionary builds the questionnaire over this worker's answers.
func (w *Worker) questionary(ctx context.Context) (*input.Questionary, error) {
	tmpl, err := w.Template()
	if err != nil {
		return nil, err
	}
	cfg, err := tmpl.Config(ctx)
	if err != nil {
		return nil, err
	}
	secret, err := tmpl.SecretQuestions(ctx)
	if err != nil {
		return nil, err
	}
	am, err := w.Answers(ctx)
	if err != nil {
		return nil, err
	}
	eng, err := w.Engine(ctx)
	if err != nil {
		return nil, err
	}
	return &input.Questionary{
		Questions: cfg.Questions,
		Answers:   am,
		Engine:    eng,
		Secret:    secret,
		AskUser:   !w.cfg.Force,
		Prompter:  w.cfg.Prompter,
	}, nil
}

// publicConf is the _copier_conf value exposed to templates: a deep copy of
// the public knobs, so a template can't see (or reach through) the injected
// collaborators.
func (w *Worker) publicConf() map[string]any {
	out := map[string]any{
		"answers_file":     w.answersRelpath(),
		"cleanup_on_error": w.cfg.CleanupOnError,
		"dst_path":         w.cfg.DstPath,
		"force":            w.cfg.Force,
		"pretend":          w.cfg.Pretend,
		"quiet":            w.cfg.Quiet,
		"src_path":         w.cfg.SrcPath,
		"subdirectory":     w.cfg.Subdirectory,
		"use_prereleases":  w.cfg.UsePrereleases,
		"vcs_ref":          w.cfg.VCSRef,
	}
	for key, slice := range map[string][]string{
		"exclude":        w.cfg.Exclude,
		"extra_paths":    w.cfg.ExtraPaths,
		"skip_if_exists": w.cfg.SkipIfExists,
	} {
		cp := []string{}
		copier.CopyWithOption(&cp, slice, copier.Option{DeepCopy: true}) //nolint:errcheck // string slices always copy
		out[key] = cp
	}
	return out
}

func (w *Worker) answersRelpath() string {
	if w.cfg.AnswersFile == "" {
		return model.DefaultAnswersFile
	}
	return w.cfg.AnswersFile
}

// exclusionMatcher and skipMatcher are compiled on demand; pathmatch caches
// by pattern tuple so this is cheap per path.
func (w *Worker) exclusionMatcher(ctx context.Context) (pathmatch.Matcher, error) {
	excl, err := w.AllExclusions(ctx)
	if err != nil {
		return nil, err
	}
	return pathmatch.Compile(excl), nil
}

func (w *Worker) skipMatcher() pathmatch.Matcher {
	return pathmatch.Compile(w.cfg.SkipIfExists)
}
