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

package input

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/abcxyz/copier/templates/common/answers"
	"github.com/abcxyz/copier/templates/common/engine"
	"github.com/abcxyz/copier/templates/model"
)

// scriptedPrompter replies to each prompt with the next canned response.
type scriptedPrompter struct {
	responses []string
	prompts   []string
}

func (p *scriptedPrompter) Prompt(ctx context.Context, msg string, args ...any) (string, error) {
	p.prompts = append(p.prompts, fmt.Sprintf(msg, args...))
	if len(p.responses) == 0 {
		return "", fmt.Errorf("prompted more times than scripted")
	}
	out := p.responses[0]
	p.responses = p.responses[1:]
	return out, nil
}

func (p *scriptedPrompter) Stdin() io.Reader { return strings.NewReader("") }

func question(name string, mutate func(*model.Question)) *model.Question {
	q := &model.Question{Name: name}
	if mutate != nil {
		mutate(q)
	}
	return q
}

func TestQuestionaryNonInteractive(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		questions []*model.Question
		layers    *answers.Layers
		want      map[string]any
	}{
		{
			name: "defaults_accepted",
			questions: []*model.Question{
				question("name", func(q *model.Question) { q.Default = "World" }),
				question("count", func(q *model.Question) { q.Type = "int"; q.Default = 3 }),
			},
			layers: &answers.Layers{},
			want:   map[string]any{"name": "World", "count": 3},
		},
		{
			name: "last_answer_beats_default",
			questions: []*model.Question{
				question("name", func(q *model.Question) { q.Default = "World" }),
			},
			layers: &answers.Layers{Last: map[string]any{"name": "Alice"}},
			want:   map[string]any{"name": "Alice"},
		},
		{
			name: "forced_answer_is_not_touched",
			questions: []*model.Question{
				question("name", func(q *model.Question) { q.Default = "World" }),
			},
			layers: &answers.Layers{Init: map[string]any{"name": "Forced"}},
			want:   map[string]any{"name": "Forced"},
		},
		{
			name: "when_false_skips_question",
			questions: []*model.Question{
				question("wanted", func(q *model.Question) { q.Default = "yes" }),
				question("skipped", func(q *model.Question) {
					q.Default = "nope"
					q.When = model.When{Declared: true, Tmpl: "false"}
				}),
			},
			// The default layer mirrors what the worker builds from the
			// template's declared defaults.
			layers: &answers.Layers{Default: map[string]any{"wanted": "yes", "skipped": "nope"}},
			// "skipped" still appears via the default layer, but was never
			// promoted to a user answer.
			want: map[string]any{"wanted": "yes", "skipped": "nope"},
		},
		{
			name: "when_references_earlier_answer",
			questions: []*model.Question{
				question("use_docker", func(q *model.Question) { q.Type = "bool"; q.Default = "true" }),
				question("docker_image", func(q *model.Question) {
					q.Default = "alpine"
					q.When = model.When{Declared: true, Tmpl: "{{.use_docker}}"}
				}),
			},
			layers: &answers.Layers{},
			want:   map[string]any{"use_docker": true, "docker_image": "alpine"},
		},
		{
			name: "default_rendered_against_earlier_answers",
			questions: []*model.Question{
				question("project", func(q *model.Question) { q.Default = "myproj" }),
				question("binary", func(q *model.Question) { q.Default = "{{.project}}-cli" }),
			},
			layers: &answers.Layers{},
			want:   map[string]any{"project": "myproj", "binary": "myproj-cli"},
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			am := answers.New(tc.layers)
			q := &Questionary{
				Questions: tc.questions,
				Answers:   am,
				Engine:    engine.New(nil, nil),
				AskUser:   false,
			}
			if err := q.Run(context.Background()); err != nil {
				t.Fatal(err)
			}
			got := am.Combined()
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("answers diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQuestionaryInteractive(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		questions []*model.Question
		responses []string
		want      map[string]any
	}{
		{
			name: "typed_answer_recorded",
			questions: []*model.Question{
				question("name", func(q *model.Question) { q.Default = "World" }),
			},
			responses: []string{"Alice"},
			want:      map[string]any{"name": "Alice"},
		},
		{
			name: "empty_answer_accepts_default",
			questions: []*model.Question{
				question("name", func(q *model.Question) { q.Default = "World" }),
			},
			responses: []string{""},
			want:      map[string]any{"name": "World"},
		},
		{
			name: "int_cast_retries_until_valid",
			questions: []*model.Question{
				question("count", func(q *model.Question) { q.Type = "int"; q.Default = 1 }),
			},
			responses: []string{"abc", "42"},
			want:      map[string]any{"count": 42},
		},
		{
			name: "choice_by_index",
			questions: []*model.Question{
				question("color", func(q *model.Question) { q.Choices = []any{"red", "green", "blue"} }),
			},
			responses: []string{"2"},
			want:      map[string]any{"color": "green"},
		},
		{
			name: "choice_by_value_with_retry",
			questions: []*model.Question{
				question("color", func(q *model.Question) { q.Choices = []any{"red", "green"} }),
			},
			responses: []string{"purple", "red"},
			want:      map[string]any{"color": "red"},
		},
		{
			name: "multiline_reads_until_dot",
			questions: []*model.Question{
				question("desc", func(q *model.Question) { q.Multiline = true }),
			},
			responses: []string{"line one", "line two", "."},
			want:      map[string]any{"desc": "line one\nline two"},
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			am := answers.New(&answers.Layers{})
			q := &Questionary{
				Questions:          tc.questions,
				Answers:            am,
				Engine:             engine.New(nil, nil),
				AskUser:            true,
				Prompter:           &scriptedPrompter{responses: tc.responses},
				SkipPromptTTYCheck: true,
			}
			if err := q.Run(context.Background()); err != nil {
				t.Fatal(err)
			}
			got := am.Combined()
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("answers diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSecretPromptMasksDefault(t *testing.T) {
	t.Parallel()

	p := &scriptedPrompter{responses: []string{""}}
	am := answers.New(&answers.Layers{Last: map[string]any{"token": "hunter2"}})
	q := &Questionary{
		Questions:          []*model.Question{question("token", func(q *model.Question) { q.Secret = true })},
		Answers:            am,
		Engine:             engine.New(nil, nil),
		AskUser:            true,
		Prompter:           p,
		SkipPromptTTYCheck: true,
	}
	if err := q.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(p.prompts) != 1 {
		t.Fatalf("got %d prompts, want 1", len(p.prompts))
	}
	if strings.Contains(p.prompts[0], "hunter2") {
		t.Errorf("secret default leaked into the prompt: %q", p.prompts[0])
	}
	if got := am.Combined()["token"]; got != "hunter2" {
		t.Errorf("empty response should accept the previous secret; got %v", got)
	}
}

func TestCast(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		typ     string
		raw     string
		want    any
		wantErr bool
	}{
		{name: "implicit_str", typ: "", raw: "x", want: "x"},
		{name: "str", typ: "str", raw: "x", want: "x"},
		{name: "int", typ: "int", raw: "42", want: 42},
		{name: "bad_int", typ: "int", raw: "x", wantErr: true},
		{name: "float", typ: "float", raw: "2.5", want: 2.5},
		{name: "bool_true", typ: "bool", raw: "yes", want: true},
		{name: "bool_false", typ: "bool", raw: "no", want: false},
		{name: "json", typ: "json", raw: `{"a": 1}`, want: map[string]any{"a": float64(1)}},
		{name: "yaml", typ: "yaml", raw: "[a, b]", want: []any{"a", "b"}},
		{name: "unknown_type", typ: "banana", raw: "x", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Cast(tc.typ, tc.raw)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Cast(%q, %q) err=%v, wantErr=%t", tc.typ, tc.raw, err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Cast() diff (-want +got):\n%s", diff)
			}
		})
	}
}
