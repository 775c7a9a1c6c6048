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

package engine

import (
	"testing"

	"github.com/abcxyz/pkg/testutil"
)

func TestRender(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		opts    *EnvOps
		body    string
		vars    map[string]any
		want    string
		wantErr string
	}{
		{
			name: "simple_substitution",
			body: "Hello {{.name}}",
			vars: map[string]any{"name": "Alice"},
			want: "Hello Alice",
		},
		{
			name: "no_substitution",
			body: "plain text",
			vars: map[string]any{},
			want: "plain text",
		},
		{
			name: "custom_delimiters",
			opts: &EnvOps{VariableStart: "[[", VariableEnd: "]]"},
			body: "Hello [[.name]] {{not a template}}",
			vars: map[string]any{"name": "Bob"},
			want: "Hello Bob {{not a template}}",
		},
		{
			name:    "strict_missing_variable_errors",
			body:    "Hello {{.nope}}",
			vars:    map[string]any{"name": "Alice"},
			wantErr: "nope",
		},
		{
			name: "default_undefined_renders_empty",
			opts: &EnvOps{Undefined: UndefinedDefault},
			body: "Hello {{.nope}}!",
			vars: map[string]any{},
			want: "Hello !",
		},
		{
			name: "string_functions",
			body: `{{toUpper .name}}-{{trimSuffix .file ".txt"}}`,
			vars: map[string]any{"name": "ab", "file": "x.txt"},
			want: "AB-x",
		},
		{
			name: "to_nice_yaml",
			body: "{{toNiceYAML .data}}",
			vars: map[string]any{"data": map[string]any{"a": 1, "b": []any{"x"}}},
			want: "a: 1\nb:\n  - x",
		},
		{
			name:    "parse_error",
			body:    "{{.unclosed",
			vars:    map[string]any{},
			wantErr: "error compiling template",
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			eng := New(tc.opts, nil)
			got, err := eng.Render(tc.name, tc.body, tc.vars)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Fatal(diff)
			}
			if err != nil {
				return
			}
			if got != tc.want {
				t.Errorf("Render(%q)=%q, want %q", tc.body, got, tc.want)
			}
		})
	}
}

func TestRenderExtraFuncs(t *testing.T) {
	t.Parallel()

	eng := New(nil, map[string]any{
		"shout": func(s string) string { return s + "!" },
	})
	got, err := eng.Render("t", `{{shout .name}}`, map[string]any{"name": "hey"})
	if err != nil {
		t.Fatal(err)
	}
	if want := "hey!"; got != want {
		t.Errorf("Render()=%q, want %q", got, want)
	}
}
