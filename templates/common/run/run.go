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

// Package run wraps os/exec for the subprocesses we spawn (mostly git).
package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// DefaultRunTimeout is how long we'll wait for commands to run in the case
// where the context doesn't already have a timeout. This was chosen
// arbitrarily.
const DefaultRunTimeout = time.Minute

// Options adjusts the execution environment of a single command.
type Options struct {
	// Dir is the working directory for the command. Empty means "inherit".
	Dir string

	// Stdin is fed to the command's standard input. May be nil.
	Stdin io.Reader

	// AllowNonzero means a nonzero exit code is not treated as an error. The
	// exit code is still returned so the caller can branch on it.
	AllowNonzero bool
}

// Simple is a wrapper around exec.CommandContext and Run() that captures
// stdout and stderr as strings. The input args must have len>=1.
//
// This is intended to be used for commands that run non-interactively then
// exit.
//
// This doesn't execute a shell (unless of course args[0] is the name of a
// shell binary).
//
// If the incoming context doesn't already have a timeout, then a default
// timeout will be added (see DefaultRunTimeout).
//
// If the command fails, the error message will include the contents of stdout
// and stderr. This saves boilerplate in the caller.
func Simple(ctx context.Context, args ...string) (stdout, stderr string, _ error) {
	stdout, stderr, _, err := With(ctx, &Options{}, args...)
	return stdout, stderr, err
}

// With is like [Simple] but honors the given Options.
func With(ctx context.Context, opts *Options, args ...string) (stdout, stderr string, exitCode int, _ error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRunTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // exec'ing the input args is fundamentally the whole point
	cmd.Dir = opts.Dir
	cmd.Stdin = opts.Stdin

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	cmd.Stdout = stdoutBuf
	cmd.Stderr = stderrBuf

	err := cmd.Run()
	stdout, stderr = stdoutBuf.String(), stderrBuf.String()
	if err != nil {
		// Don't return error if both (a) the caller indicated they're OK with
		// a nonzero exit code and (b) the error is of a type that means the
		// only problem was a nonzero exit code.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && opts.AllowNonzero {
			err = nil
		} else {
			err = fmt.Errorf(`exec of %v failed: error was "%w", context error was "%w"\nstdout: %s\nstderr: %s`,
				args, err, ctx.Err(), cmd.Stdout, cmd.Stderr)
		}
	}
	return stdout, stderr, cmd.ProcessState.ExitCode(), err
}
