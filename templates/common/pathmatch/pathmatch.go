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

// Package pathmatch matches relative paths against exclusion and
// skip-if-exists patterns using gitignore ("gitwildmatch") semantics.
package pathmatch

import (
	"strings"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"golang.org/x/text/unicode/norm"
)

// Matcher reports whether a slash-separated relative path matches any of the
// patterns it was compiled from.
type Matcher func(relPath string, isDir bool) bool

var (
	cacheMu sync.Mutex
	cache   = map[string]Matcher{}
)

// Compile builds a Matcher for the given pattern list. Patterns are
// NFD-normalized before compilation so that patterns written on macOS (whose
// filesystem decomposes accented characters) match paths produced elsewhere.
//
// Matchers are cached per pattern tuple, so compiling the same list again is
// cheap and repeated path lookups don't re-parse patterns.
func Compile(patterns []string) Matcher {
	key := strings.Join(patterns, "\x00")

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if m, ok := cache[key]; ok {
		return m
	}

	compiled := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, gitignore.ParsePattern(norm.NFD.String(p), nil))
	}
	inner := gitignore.NewMatcher(compiled)

	m := Matcher(func(relPath string, isDir bool) bool {
		parts := strings.Split(norm.NFD.String(relPath), "/")
		return inner.Match(parts, isDir)
	})
	cache[key] = m
	return m
}
