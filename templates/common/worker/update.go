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

package worker

// This file implements the update flow: reconstruct what the old template
// revision rendered, diff that against what the user actually has, re-render
// from the new revision, and replay the user's diff on top.

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/abcxyz/pkg/logging"

	"github.com/abcxyz/copier/templates/common/errs"
	"github.com/abcxyz/copier/templates/common/tempdir"
	"github.com/abcxyz/copier/templates/model"
)

// RunUpdate re-applies the (possibly newer) template to an existing
// subproject, preserving the edits the user made since the last run.
func (w *Worker) RunUpdate(ctx context.Context) (rErr error) {
	if err := w.begin(); err != nil {
		return err
	}
	defer w.dirs.DeferMaybeRemoveAll(ctx, &rErr)
	logger := logging.FromContext(ctx).With("logger", "RunUpdate")

	sub := w.Subproject()
	if sub.VCS() != "git" {
		return fmt.Errorf("destination %q is not a git working copy; updates reconstruct state with git and need one", w.cfg.DstPath)
	}
	dirty, err := sub.IsDirty(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return &errs.DestinationDirtyError{DstPath: w.cfg.DstPath}
	}

	last, err := sub.LastAnswers()
	if err != nil {
		return err
	}
	oldSrcPath, _ := last["_src_path"].(string)
	oldCommit, _ := last["_commit"].(string)
	if oldSrcPath == "" {
		return &errs.TemplateNotFoundError{DstPath: w.cfg.DstPath}
	}

	tmpl, err := w.Template()
	if err != nil {
		return err
	}
	newCommit, err := tmpl.Commit(ctx)
	if err != nil {
		return err
	}
	if err := checkDowngrade(ctx, oldCommit, newCommit); err != nil {
		return err
	}
	w.state = stateResolved

	// Reconstruct the old render in a scratch directory, then let git tell
	// us what the user changed since then.
	diff, err := w.extractUserDiff(ctx, oldSrcPath, oldCommit, last)
	if err != nil {
		return err
	}
	w.state = stateDiffed

	cfg, err := tmpl.Config(ctx)
	if err != nil {
		return err
	}
	if !w.cfg.Pretend {
		before := migrationTasks(cfg.Migrations, oldCommit, newCommit, stageBefore)
		if err := w.taskRunner(ctx).Run(ctx, before); err != nil {
			return err
		}
	}

	// A fresh Worker re-reads the answers file from disk, so answer
	// migrations performed by the pre-migration tasks are picked up.
	freshCfg := &Config{
		AnswersFile:    w.cfg.AnswersFile,
		CleanupOnError: w.cfg.CleanupOnError,
		Data:           w.cfg.Data,
		DstPath:        w.cfg.DstPath,
		EnvOps:         w.cfg.EnvOps,
		Exclude:        w.cfg.Exclude,
		ExtraPaths:     w.cfg.ExtraPaths,
		Force:          true,
		Pretend:        w.cfg.Pretend,
		Quiet:          w.cfg.Quiet,
		SkipIfExists:   w.cfg.SkipIfExists,
		SrcPath:        w.srcPathOr(oldSrcPath),
		Subdirectory:   w.cfg.Subdirectory,
		UsePrereleases: w.cfg.UsePrereleases,
		VCSRef:         w.cfg.VCSRef,
		Stderr:         w.stderr,
		Clock:          w.clock,
		Git:            w.gitDriver,
		KeepTempDirs:   w.cfg.KeepTempDirs,
	}
	if err := New(freshCfg).RunCopy(ctx); err != nil {
		return err
	}
	w.state = stateRendered

	if !w.cfg.Pretend {
		excludes := append([]string{w.answersRelpath()}, w.cfg.SkipIfExists...)
		rejected, err := w.gitDriver.Apply(ctx, w.cfg.DstPath, diff, excludes)
		if err != nil {
			return err
		}
		if rejected {
			logger.WarnContext(ctx, "some of your local changes could not be re-applied; look for .rej files next to the affected targets")
		}
	}
	w.state = stateDiffApplied

	if !w.cfg.Pretend {
		after := migrationTasks(cfg.Migrations, oldCommit, newCommit, stageAfter)
		if err := w.taskRunner(ctx).Run(ctx, after); err != nil {
			return err
		}
	}
	w.state = stateMigratedAfter
	w.state = stateDone
	return nil
}

func (w *Worker) srcPathOr(fallback string) string {
	if w.cfg.SrcPath != "" {
		return w.cfg.SrcPath
	}
	return fallback
}

// checkDowngrade refuses updates that would move backward. When either
// revision string isn't a version, the ordering check is skipped with a
// warning and the update proceeds.
func checkDowngrade(ctx context.Context, oldCommit, newCommit string) error {
	if oldCommit == "" || newCommit == "" {
		return nil
	}
	oldVer, oldErr := semver.NewVersion(oldCommit)
	newVer, newErr := semver.NewVersion(newCommit)
	if oldErr != nil || newErr != nil {
		logging.FromContext(ctx).WarnContext(ctx,
			"revision is not a valid version; skipping the downgrade check",
			"old", oldCommit, "new", newCommit)
		return nil
	}
	if oldVer.GreaterThan(newVer) {
		return &errs.DowngradeError{From: oldCommit, To: newCommit}
	}
	return nil
}

// extractUserDiff renders the old template revision with the old answers
// into a scratch directory, commits it to a throwaway repo, fetches the real
// destination's HEAD, and returns the unified diff between the two: exactly
// what the user changed since the last run.
func (w *Worker) extractUserDiff(ctx context.Context, oldSrcPath, oldCommit string, lastAnswers map[string]any) (string, error) {
	logger := logging.FromContext(ctx).With("logger", "extractUserDiff")

	scratch, err := w.dirs.MkdirTempTracked("", "copier-"+tempdir.OldRenderDirNamePart+"-*")
	if err != nil {
		return "", fmt.Errorf("failed creating scratch directory: %w", err)
	}

	oldWorker := New(&Config{
		AnswersFile:  w.cfg.AnswersFile,
		Data:         lastAnswers,
		DstPath:      scratch,
		EnvOps:       w.cfg.EnvOps,
		ExtraPaths:   w.cfg.ExtraPaths,
		Force:        true,
		Quiet:        true,
		SrcPath:      oldSrcPath,
		Subdirectory: w.cfg.Subdirectory,
		VCSRef:       oldCommit,
		Stderr:       w.stderr,
		Clock:        w.clock,
		Git:          w.gitDriver,
		KeepTempDirs: w.cfg.KeepTempDirs,
	})
	if err := oldWorker.RunCopy(ctx); err != nil {
		return "", fmt.Errorf("failed re-rendering the previous template revision: %w", err)
	}
	w.state = stateOldRendered

	g := w.gitDriver
	if err := g.Init(ctx, scratch); err != nil {
		return "", err
	}
	if err := g.AddAll(ctx, scratch); err != nil {
		return "", err
	}
	// The first commit may fail if a commit hook reformats files out from
	// under it; the second one then picks up the reformatted state.
	if err := g.Commit(ctx, scratch, "dumb commit 1", true); err != nil {
		return "", err
	}
	if err := g.Commit(ctx, scratch, "dumb commit 2", false); err != nil {
		return "", err
	}

	dstAbs, err := filepath.Abs(w.cfg.DstPath)
	if err != nil {
		return "", fmt.Errorf("failed resolving %q: %w", w.cfg.DstPath, err)
	}
	if err := g.Fetch(ctx, scratch, dstAbs, "HEAD", 1); err != nil {
		return "", err
	}

	diff, err := g.DiffTree(ctx, scratch, "HEAD", "FETCH_HEAD", -1)
	if err != nil {
		logger.WarnContext(ctx, "make sure git >= 2.24 is installed to improve updates")
		diff, err = g.DiffTree(ctx, scratch, "HEAD", "FETCH_HEAD", 0)
		if err != nil {
			return "", err
		}
	}
	return diff, nil
}

type migrationStage int

const (
	stageBefore migrationStage = iota
	stageAfter
)

// migrationTasks selects the migration tasks whose version falls in the
// half-open window (from, to]: a migration tagged with the release being
// updated to runs, one tagged with the release already in place doesn't.
// Migrations with unparseable versions are skipped; if from/to themselves
// don't parse, no migrations run.
func migrationTasks(migrations []*model.Migration, from, to string, stage migrationStage) []*model.Task {
	fromVer, err := semver.NewVersion(from)
	if err != nil {
		return nil
	}
	toVer, err := semver.NewVersion(to)
	if err != nil {
		return nil
	}

	var out []*model.Task
	for _, m := range migrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			continue
		}
		if !v.GreaterThan(fromVer) || v.GreaterThan(toVer) {
			continue
		}
		taskList := m.Before
		stageName := "before"
		if stage == stageAfter {
			taskList = m.After
			stageName = "after"
		}
		out = append(out, withExtraEnv(taskList, map[string]string{
			"STAGE":           stageName,
			"VERSION_FROM":    from,
			"VERSION_TO":      to,
			"VERSION_CURRENT": m.Version,
		})...)
	}
	return out
}
