// Copyright 2024 The Authors (see AUTHORS file)
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

// Package errs contains the error types that cross package boundaries. Errors
// that only matter within a single package are declared where they're used.
package errs

import "fmt"

// MinVersionUnmetError is returned when a template declares
// _min_copier_version and this binary is older than that.
type MinVersionUnmetError struct {
	Required string
	Current  string
}

func (e *MinVersionUnmetError) Error() string {
	return fmt.Sprintf("this template requires copier version %s or newer, but this is version %s", e.Required, e.Current)
}

// TemplateNotFoundError is returned when neither the command line nor the
// destination's answers file yields a usable template location.
type TemplateNotFoundError struct {
	DstPath string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("no template was given and %q has no recorded _src_path to fall back on", e.DstPath)
}

// DestinationDirtyError is returned at the start of an update when the
// destination has uncommitted changes. Updates rewrite the working tree, so
// requiring a clean tree keeps a bad update recoverable with git.
type DestinationDirtyError struct {
	DstPath string
}

func (e *DestinationDirtyError) Error() string {
	return fmt.Sprintf("destination repository %q is dirty; commit or stash your local changes and retry", e.DstPath)
}

// DowngradeError is returned when an update would move the destination from a
// newer template version to an older one.
type DowngradeError struct {
	From string
	To   string
}

func (e *DowngradeError) Error() string {
	return fmt.Sprintf("you are downgrading from %s to %s; downgrades are not supported", e.From, e.To)
}

// TaskFailedError is returned when a post-copy or migration task exits
// nonzero.
type TaskFailedError struct {
	Index   int
	Total   int
	Command string
	Err     error
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %d of %d (%q) failed: %v", e.Index+1, e.Total, e.Command, e.Err)
}

func (e *TaskFailedError) Unwrap() error {
	return e.Err
}

// TemplateResolutionError is returned when a template locator can't be turned
// into a directory on disk (clone failure, unparseable locator, missing path).
type TemplateResolutionError struct {
	URL string
	Err error
}

func (e *TemplateResolutionError) Error() string {
	return fmt.Sprintf("failed resolving template %q: %v", e.URL, e.Err)
}

func (e *TemplateResolutionError) Unwrap() error {
	return e.Err
}
