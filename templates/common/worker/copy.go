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

import (
	"context"
	"fmt"
	"os"

	"github.com/abcxyz/copier/templates/common/tasks"
	"github.com/abcxyz/copier/templates/model"
)

// runState tracks a Worker's progress through its single run. Its only
// runtime job is making accidental Worker reuse an explicit error instead of
// a subtle one; the intermediate states exist for debuggability.
type runState int

const (
	stateCreated runState = iota
	stateResolved
	stateQuestioned
	stateRendered
	stateTasksRun
	stateOldRendered
	stateDiffed
	stateDiffApplied
	stateMigratedAfter
	stateDone
)

func (w *Worker) begin() error {
	if w.state != stateCreated {
		return fmt.Errorf("this worker already ran; build a new one per run")
	}
	return nil
}

// RunCopy generates the subproject: resolve the template, ask the questions,
// render the tree, persist the answers, run the tasks.
func (w *Worker) RunCopy(ctx context.Context) (rErr error) {
	if err := w.begin(); err != nil {
		return err
	}
	defer w.dirs.DeferMaybeRemoveAll(ctx, &rErr)

	tmpl, err := w.Template()
	if err != nil {
		return err
	}
	root, err := tmpl.LocalPath(ctx)
	if err != nil {
		return err
	}
	if w.cfg.Subdirectory != "" {
		root = joinInside(root, w.cfg.Subdirectory)
	}
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		return fmt.Errorf("template root %q is not a directory", root)
	}
	w.state = stateResolved

	q, err := w.questionary(ctx)
	if err != nil {
		return err
	}
	if err := q.Run(ctx); err != nil {
		return err
	}
	am, err := w.Answers(ctx)
	if err != nil {
		return err
	}
	am.Combined() // freeze; everything renders against one consistent view
	w.state = stateQuestioned

	if !w.cfg.Pretend {
		if err := os.MkdirAll(w.cfg.DstPath, 0o755); err != nil {
			return fmt.Errorf("failed creating destination %q: %w", w.cfg.DstPath, err)
		}
	}

	if !w.cfg.Quiet {
		fmt.Fprintln(w.stderr)
	}
	if err := w.RenderFolder(ctx, root, root); err != nil {
		if w.cfg.CleanupOnError && !w.cfg.Pretend {
			w.cleanupCreated()
		}
		return err
	}
	if !w.cfg.Pretend {
		if err := w.writeAnswersFile(ctx); err != nil {
			return err
		}
	}
	w.state = stateRendered
	if !w.cfg.Quiet {
		fmt.Fprintln(w.stderr)
	}

	if !w.cfg.Pretend {
		if err := w.runPostCopyTasks(ctx); err != nil {
			return err
		}
	}
	w.state = stateTasksRun
	w.state = stateDone
	return nil
}

func (w *Worker) runPostCopyTasks(ctx context.Context) error {
	tmpl, err := w.Template()
	if err != nil {
		return err
	}
	cfg, err := tmpl.Config(ctx)
	if err != nil {
		return err
	}
	if len(cfg.Tasks) == 0 {
		return nil
	}
	return w.taskRunner(ctx).Run(ctx, withExtraEnv(cfg.Tasks, map[string]string{"STAGE": "task"}))
}

func (w *Worker) taskRunner(ctx context.Context) *tasks.Runner {
	return &tasks.Runner{
		WorkDir: w.cfg.DstPath,
		Render: func(s string) (string, error) {
			return w.RenderString(ctx, s)
		},
		Quiet:  w.cfg.Quiet,
		Stderr: w.stderr,
	}
}

// withExtraEnv returns copies of the tasks with env merged in; the task's own
// extra_env wins on collision.
func withExtraEnv(in []*model.Task, env map[string]string) []*model.Task {
	out := make([]*model.Task, len(in))
	for i, t := range in {
		merged := make(map[string]string, len(env)+len(t.ExtraEnv))
		for k, v := range env {
			merged[k] = v
		}
		for k, v := range t.ExtraEnv {
			merged[k] = v
		}
		out[i] = &model.Task{Shell: t.Shell, Argv: t.Argv, ExtraEnv: merged}
	}
	return out
}
