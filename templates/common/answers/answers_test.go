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

package answers

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCombinedPrecedence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		layers *Layers
		user   map[string]any
		local  map[string]any
		want   map[string]any
	}{
		{
			name: "higher_layer_wins",
			layers: &Layers{
				Init:     map[string]any{"a": "init", "b": "init"},
				Last:     map[string]any{"b": "last", "c": "last"},
				Default:  map[string]any{"c": "default", "d": "default"},
				Baseline: map[string]any{"d": "baseline", "e": "baseline"},
			},
			want: map[string]any{
				"a": "init",
				"b": "init",
				"c": "last",
				"d": "default",
				"e": "baseline",
			},
		},
		{
			name: "user_beats_init",
			layers: &Layers{
				Init: map[string]any{"a": "init"},
			},
			user: map[string]any{"a": "user"},
			want: map[string]any{"a": "user"},
		},
		{
			name: "local_beats_everything",
			layers: &Layers{
				Init: map[string]any{"a": "init"},
			},
			user:  map[string]any{"a": "user"},
			local: map[string]any{"a": "local"},
			want:  map[string]any{"a": "local"},
		},
		{
			name:   "empty_layers",
			layers: &Layers{},
			want:   map[string]any{},
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := New(tc.layers)
			for k, v := range tc.user {
				m.SetUser(k, v)
			}
			for k, v := range tc.local {
				m.SetLocal(k, v)
			}
			if diff := cmp.Diff(tc.want, m.Combined()); diff != "" {
				t.Errorf("Combined() diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeepCopyIsolation(t *testing.T) {
	t.Parallel()

	nested := map[string]any{"inner": []any{"x", "y"}}
	init := map[string]any{"key": nested}
	m := New(&Layers{Init: init})

	// Mutate the inputs after construction; the Map must not see it.
	nested["inner"] = []any{"mutated"}
	init["added"] = "mutated"

	got := m.Combined()
	want := map[string]any{"key": map[string]any{"inner": []any{"x", "y"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Combined() diff (-want +got):\n%s", diff)
	}
}

func TestCombinedIsStable(t *testing.T) {
	t.Parallel()

	m := New(&Layers{Default: map[string]any{"a": 1}})
	first := m.Combined()
	second := m.Combined()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Combined() changed between reads (-first +second):\n%s", diff)
	}
}

func TestMutationAfterFreezePanics(t *testing.T) {
	t.Parallel()

	m := New(&Layers{})
	_ = m.Combined()

	defer func() {
		if recover() == nil {
			t.Errorf("SetUser after Combined() should panic")
		}
	}()
	m.SetUser("a", 1)
}

func TestOldCommit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		last map[string]any
		want string
	}{
		{
			name: "commit_present",
			last: map[string]any{"_commit": "v1.2.3"},
			want: "v1.2.3",
		},
		{
			name: "commit_absent",
			last: map[string]any{"other": "x"},
			want: "",
		},
		{
			name: "no_last_layer",
			want: "",
		},
		{
			name: "commit_not_a_string",
			last: map[string]any{"_commit": 7},
			want: "",
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := New(&Layers{Last: tc.last})
			if got := m.OldCommit(); got != tc.want {
				t.Errorf("OldCommit()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestSnapshotDoesNotFreeze(t *testing.T) {
	t.Parallel()

	m := New(&Layers{Default: map[string]any{"a": "default"}})
	if got := m.Snapshot()["a"]; got != "default" {
		t.Fatalf("Snapshot()[a]=%v, want default", got)
	}
	m.SetUser("a", "user") // must not panic
	if got := m.Combined()["a"]; got != "user" {
		t.Errorf("Combined()[a]=%v, want user", got)
	}
}
