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

// Package answers implements the layered answer store that feeds the render
// context.
//
// Precedence, highest first: local > user > init > last > default >
// baseline. "local" is private scratch used while the questionnaire runs,
// "user" holds answers given this run, "init" is caller-forced data, "last"
// comes from the destination's answers file, "default" from the template's
// declared defaults, and "baseline" is the process-wide constant data every
// render gets.
package answers

import (
	"fmt"

	"github.com/jinzhu/copier"
)

// Layers is the construction input for a Map. Any subset may be nil.
type Layers struct {
	Init     map[string]any
	Last     map[string]any
	Default  map[string]any
	Baseline map[string]any
}

// Map is the layered key→value store. Construct with New; the zero value is
// not usable.
//
// Layers are stored by deep copy, so mutating the maps passed to New (or to
// the setters) afterward has no effect on lookups.
type Map struct {
	local    map[string]any
	user     map[string]any
	init     map[string]any
	last     map[string]any
	defaults map[string]any
	baseline map[string]any

	combined map[string]any // non-nil once frozen
}

// New deep-copies the given layers into a fresh Map. The local and user
// layers start empty and are populated through SetLocal/SetUser while the
// questionnaire runs.
func New(l *Layers) *Map {
	if l == nil {
		l = &Layers{}
	}
	return &Map{
		local:    map[string]any{},
		user:     map[string]any{},
		init:     deepCopy(l.Init),
		last:     deepCopy(l.Last),
		defaults: deepCopy(l.Default),
		baseline: deepCopy(l.Baseline),
	}
}

// SetUser records an answer elicited this run. Panics if the Map is already
// frozen; answering questions after the combined view was handed out would
// silently diverge from what gets rendered.
func (m *Map) SetUser(key string, value any) {
	m.mustNotBeFrozen(key)
	m.user[key] = deepCopyValue(value)
}

// SetLocal records a private scratch value for the current question loop.
// Same freeze rule as SetUser.
func (m *Map) SetLocal(key string, value any) {
	m.mustNotBeFrozen(key)
	m.local[key] = deepCopyValue(value)
}

func (m *Map) mustNotBeFrozen(key string) {
	if m.combined != nil {
		panic(fmt.Sprintf("answers.Map mutated (key %q) after Combined() was called", key))
	}
}

// Combined returns the merged view with the package-documented precedence.
// The view is computed on first call and frozen; later calls return the same
// map. Callers must treat it as read-only.
func (m *Map) Combined() map[string]any {
	if m.combined == nil {
		m.combined = m.Snapshot()
	}
	return m.combined
}

// Snapshot merges the layers without freezing the Map. The questionnaire uses
// this to render each question's default against the answers gathered so far.
// The returned map is the caller's to keep.
func (m *Map) Snapshot() map[string]any {
	out := map[string]any{}
	// Lowest precedence first; later layers overwrite.
	for _, layer := range []map[string]any{m.baseline, m.defaults, m.last, m.init, m.user, m.local} {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// Get looks the key up through the layers.
func (m *Map) Get(key string) (any, bool) {
	for _, layer := range []map[string]any{m.local, m.user, m.init, m.last, m.defaults, m.baseline} {
		if v, ok := layer[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// HasInit reports whether the key was forced by the caller.
func (m *Map) HasInit(key string) bool {
	_, ok := m.init[key]
	return ok
}

// Last returns the previous run's answer for key, if any.
func (m *Map) Last(key string) (any, bool) {
	v, ok := m.last[key]
	return v, ok
}

// OldCommit returns the template commit recorded by the previous run, or ""
// if there wasn't one.
func (m *Map) OldCommit() string {
	if v, ok := m.last["_commit"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func deepCopy(in map[string]any) map[string]any {
	out := map[string]any{}
	if in == nil {
		return out
	}
	if err := copier.CopyWithOption(&out, in, copier.Option{DeepCopy: true}); err != nil {
		// Non-copyable values (functions and such) can legitimately appear
		// transiently in a layer; fall back to aliasing those entries rather
		// than failing the whole construction.
		for k, v := range in {
			out[k] = v
		}
	}
	return out
}

func deepCopyValue(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		wrapped := deepCopy(map[string]any{"v": v})
		return wrapped["v"]
	default:
		return v
	}
}
