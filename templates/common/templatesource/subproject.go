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

package templatesource

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/abcxyz/copier/templates/common/git"
	"github.com/abcxyz/copier/templates/model"
)

// Subproject is an immutable view of a destination directory that may contain
// a previously written answers file.
type Subproject struct {
	localPath      string
	answersRelpath string
	gitDriver      git.Driver

	rawAnswers memo[map[string]any]
}

// NewSubproject builds a Subproject view over dst. answersRelpath may be
// empty for the default.
func NewSubproject(dst, answersRelpath string, g git.Driver) *Subproject {
	if answersRelpath == "" {
		answersRelpath = model.DefaultAnswersFile
	}
	return &Subproject{
		localPath:      dst,
		answersRelpath: answersRelpath,
		gitDriver:      g,
	}
}

// LocalPath returns the destination directory.
func (s *Subproject) LocalPath() string { return s.localPath }

// AnswersRelpath returns the answers file location relative to LocalPath.
func (s *Subproject) AnswersRelpath() string { return s.answersRelpath }

// RawAnswers returns the answers file contents, or an empty map when the file
// doesn't exist or can't be read.
func (s *Subproject) RawAnswers() (map[string]any, error) {
	return s.rawAnswers.get(func() (map[string]any, error) {
		return model.LoadAnswers(filepath.Join(s.localPath, s.answersRelpath))
	})
}

// LastAnswers returns the previous run's answers: _src_path, _commit, and
// every non-underscore key. Other private keys never leak out of the raw
// file.
func (s *Subproject) LastAnswers() (map[string]any, error) {
	raw, err := s.RawAnswers()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "_src_path" || k == "_commit" || !strings.HasPrefix(k, "_") {
			out[k] = v
		}
	}
	return out, nil
}

// Template synthesizes a Template from the answers file's recorded _src_path
// and _commit. ok is false when no template was recorded.
func (s *Subproject) Template(opts *Options) (_ *Template, ok bool, _ error) {
	raw, err := s.RawAnswers()
	if err != nil {
		return nil, false, err
	}
	lastURL, _ := raw["_src_path"].(string)
	if lastURL == "" {
		return nil, false, nil
	}
	lastRef, _ := raw["_commit"].(string)
	return New(lastURL, lastRef, opts), true, nil
}

// VCS returns "git" when the destination is itself a working-copy root.
func (s *Subproject) VCS() string {
	if s.gitDriver.IsRepoRoot(s.localPath) {
		return "git"
	}
	return ""
}

// IsDirty reports whether the destination has uncommitted changes. A
// destination that isn't a working copy is never dirty.
func (s *Subproject) IsDirty(ctx context.Context) (bool, error) {
	if s.VCS() != "git" {
		return false, nil
	}
	return s.gitDriver.IsDirty(s.localPath)
}
