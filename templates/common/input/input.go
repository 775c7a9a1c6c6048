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

// Package input drives the questionnaire: it walks the template's questions
// in declaration order, combining forced data, previous answers, rendered
// defaults, and interactive prompts into the user answer layer.
package input

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/abcxyz/copier/templates/common/answers"
	"github.com/abcxyz/copier/templates/common/engine"
	"github.com/abcxyz/copier/templates/model"
)

// Prompter prints messages to the user asking them to enter a value. This is
// implemented by *cli.BaseCommand.
type Prompter interface {
	Prompt(ctx context.Context, msg string, args ...any) (string, error)
	Stdin() io.Reader
}

// Questionary asks the template's questions. See Run.
type Questionary struct {
	// Questions, in declaration order.
	Questions []*model.Question

	// Answers receives the elicited values in its user layer.
	Answers *answers.Map

	// Engine renders `when` predicates and string defaults against the
	// answers gathered so far.
	Engine engine.Engine

	// Secret marks questions whose values must be masked in output.
	Secret map[string]bool

	// AskUser enables interactive prompting. When false (e.g. --force, or
	// update's scratch re-render), defaults and previous answers are
	// accepted silently.
	AskUser bool

	// Prompter is required when AskUser is true.
	Prompter Prompter

	// Normally we only prompt when stdin is a TTY. For testing, this can be
	// set to true to allow stdin to be something else, like an os.Pipe.
	SkipPromptTTYCheck bool
}

// Run walks the questions in declaration order and records an answer for
// each into the user layer. Caller-forced data always wins and is never
// prompted for; a question whose `when` renders falsy is skipped entirely.
func (q *Questionary) Run(ctx context.Context) error {
	ask := q.AskUser && q.Prompter != nil
	if ask && !q.SkipPromptTTYCheck {
		ask = q.Prompter.Stdin() == os.Stdin && isatty.IsTerminal(os.Stdin.Fd())
	}

	for _, question := range q.Questions {
		if q.Answers.HasInit(question.Name) {
			continue
		}

		if question.When.Declared {
			rendered, err := q.Engine.Render("when:"+question.Name, question.When.Tmpl, q.Answers.Snapshot())
			if err != nil {
				return fmt.Errorf("failed rendering `when` for question %q: %w", question.Name, err)
			}
			if !truthy(rendered) {
				continue
			}
		}

		offered, err := q.offeredDefault(question)
		if err != nil {
			return err
		}

		if !ask {
			q.Answers.SetUser(question.Name, offered)
			continue
		}

		val, err := q.promptOne(ctx, question, offered)
		if err != nil {
			return err
		}
		q.Answers.SetUser(question.Name, val)
	}
	return nil
}

// offeredDefault picks what to offer for a question: the previous run's
// answer when there is one, otherwise the declared default. String defaults
// are templates and get rendered against the answers so far.
func (q *Questionary) offeredDefault(question *model.Question) (any, error) {
	val := question.Default
	if last, ok := q.Answers.Last(question.Name); ok {
		val = last
	}
	if s, ok := val.(string); ok {
		rendered, err := q.Engine.Render("default:"+question.Name, s, q.Answers.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed rendering default for question %q: %w", question.Name, err)
		}
		return Cast(question.Type, rendered)
	}
	return val, nil
}

// promptOne asks a single question until a usable answer arrives.
func (q *Questionary) promptOne(ctx context.Context, question *model.Question, offered any) (any, error) {
	secret := question.Secret || q.Secret[question.Name]
	msg := q.buildPrompt(question, offered, secret)

	for {
		raw, err := q.readAnswer(ctx, question, msg)
		if err != nil {
			return nil, fmt.Errorf("failed prompting for %q: %w", question.Name, err)
		}

		if raw == "" && !question.Multiline {
			return offered, nil
		}

		if len(question.Choices) > 0 {
			chosen, ok := pickChoice(question.Choices, raw)
			if !ok {
				msg = fmt.Sprintf("%q is not one of the choices; pick a number or value: ", raw)
				continue
			}
			return chosen, nil
		}

		val, err := Cast(question.Type, raw)
		if err != nil {
			msg = fmt.Sprintf("cannot read that as %s (%v), try again: ", question.Type, err)
			continue
		}
		return val, nil
	}
}

func (q *Questionary) buildPrompt(question *model.Question, offered any, secret bool) string {
	sb := &strings.Builder{}
	label := question.Help
	if label == "" {
		label = question.Name
	}
	fmt.Fprintf(sb, "\n%s", label)
	for i, c := range question.Choices {
		fmt.Fprintf(sb, "\n  %d) %v", i+1, c)
	}
	if question.Placeholder != "" {
		fmt.Fprintf(sb, "\n(%s)", question.Placeholder)
	}
	if secret {
		// Prompter can't turn off terminal echo, so be explicit that the
		// value is sensitive and won't be written anywhere.
		fmt.Fprintf(sb, "\n(secret; will not be saved to the answers file)")
	}
	if question.Multiline {
		fmt.Fprintf(sb, "\nEnter lines, finish with a single \".\" line:\n")
		return sb.String()
	}
	if offered != nil {
		fmt.Fprintf(sb, "\nEnter value, or leave empty to accept %v: ", displayValue(offered, secret))
	} else {
		fmt.Fprintf(sb, "\nEnter value: ")
	}
	return sb.String()
}

func (q *Questionary) readAnswer(ctx context.Context, question *model.Question, msg string) (string, error) {
	if !question.Multiline {
		return q.Prompter.Prompt(ctx, "%s", msg)
	}
	var lines []string
	prompt := msg
	for {
		line, err := q.Prompter.Prompt(ctx, "%s", prompt)
		if err != nil {
			return "", err //nolint:wrapcheck
		}
		if line == "." {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, line)
		prompt = ""
	}
}

func displayValue(v any, secret bool) string {
	if secret {
		return "******"
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return `""`
		}
		return s
	}
	return fmt.Sprintf("%v", v)
}

// pickChoice resolves raw against the choice list: either a 1-based index or
// the literal value.
func pickChoice(choices []any, raw string) (any, bool) {
	if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= len(choices) {
		return choices[n-1], true
	}
	for _, c := range choices {
		if fmt.Sprintf("%v", c) == raw {
			return c, true
		}
	}
	return nil, false
}

// Cast coerces a raw string answer to the question's declared type.
func Cast(typ, raw string) (any, error) {
	switch typ {
	case "", "str":
		return raw, nil
	case "int":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %w", err)
		}
		return int(n), nil
	case "float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("not a float: %w", err)
		}
		return f, nil
	case "bool":
		return truthy(raw), nil
	case "json":
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("not valid JSON: %w", err)
		}
		return v, nil
	case "yaml":
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("not valid YAML: %w", err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown question type %q", typ)
	}
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "0", "no", "off", "n", "none", "<nil>", "<no value>":
		return false
	default:
		return true
	}
}
