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

// Package tasks executes the template's post-copy and migration commands.
//
// Tasks are deliberately NOT sandboxed: they are arbitrary commands declared
// by the template author, run in the destination directory with the parent
// environment plus the task's extra_env. Anyone rendering a template is
// trusting its author with task execution; the only mitigation is that tasks
// are plainly visible in the template's configuration.
package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/fatih/color"

	"github.com/abcxyz/copier/templates/common/errs"
	"github.com/abcxyz/copier/templates/model"
)

var progressColor = color.New(color.FgCyan)

// Runner executes an ordered list of task descriptors.
type Runner struct {
	// WorkDir is the directory the tasks run in (the destination).
	WorkDir string

	// Render renders command strings through the templating engine before
	// execution, so tasks can reference answers.
	Render func(string) (string, error)

	// Quiet suppresses the per-task progress lines.
	Quiet bool

	// Stderr receives progress lines. Defaults to os.Stderr.
	Stderr io.Writer

	// Stdout/Stdin/TaskStderr are wired into the child processes. They
	// default to this process's own streams so interactive tasks work.
	Stdout     io.Writer
	Stdin      io.Reader
	TaskStderr io.Writer
}

// Run executes the tasks in order. A string task is rendered and run through
// the shell; an argv task has each element rendered and runs without a
// shell. The first nonzero exit stops the run with a TaskFailedError.
func (r *Runner) Run(ctx context.Context, taskList []*model.Task) error {
	for i, task := range taskList {
		cmd, display, err := r.buildCommand(ctx, task)
		if err != nil {
			return err
		}
		if !r.Quiet {
			progressColor.Fprintf(r.stderr(), " > Running task %d of %d: %s\n", i+1, len(taskList), display)
		}
		if err := cmd.Run(); err != nil {
			return &errs.TaskFailedError{Index: i, Total: len(taskList), Command: display, Err: err}
		}
	}
	return nil
}

func (r *Runner) buildCommand(ctx context.Context, task *model.Task) (*exec.Cmd, string, error) {
	var cmd *exec.Cmd
	var display string
	if task.Shell != "" {
		rendered, err := r.Render(task.Shell)
		if err != nil {
			return nil, "", fmt.Errorf("failed rendering task %q: %w", task.Shell, err)
		}
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", rendered)
		display = rendered
	} else {
		argv := make([]string, len(task.Argv))
		for i, part := range task.Argv {
			rendered, err := r.Render(part)
			if err != nil {
				return nil, "", fmt.Errorf("failed rendering task argument %q: %w", part, err)
			}
			argv[i] = rendered
		}
		if len(argv) == 0 {
			return nil, "", fmt.Errorf("task has an empty command")
		}
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // running template-declared commands is the whole point
		display = (&model.Task{Argv: argv}).Command()
	}

	cmd.Dir = r.WorkDir
	cmd.Env = os.Environ()
	for k, v := range task.ExtraEnv {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdin = r.stdin()
	cmd.Stdout = r.stdout()
	cmd.Stderr = r.taskStderr()
	return cmd, display, nil
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *Runner) stdin() io.Reader {
	if r.Stdin != nil {
		return r.Stdin
	}
	return os.Stdin
}

func (r *Runner) taskStderr() io.Writer {
	if r.TaskStderr != nil {
		return r.TaskStderr
	}
	return os.Stderr
}
