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

// Package model contains the YAML documents this program reads and writes:
// the template's copier.yml configuration and the destination's answers file.
package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileNames are the recognized template configuration file names, looked
// up in the template root in this order.
var ConfigFileNames = []string{"copier.yml", "copier.yaml"}

// Config is the parsed template configuration. Keys starting with "_" are
// settings; every other top-level key declares a question.
type Config struct {
	// MinVersion is the value of _min_copier_version, or empty.
	MinVersion string

	// TemplatesSuffix is the value of _templates_suffix. Empty means the
	// caller should apply the default.
	TemplatesSuffix string

	// Exclude is the value of _exclude. Nil means "not declared", which is
	// different from "declared empty": an absent _exclude gets the default
	// exclusion set.
	Exclude []string

	// SkipIfExists is the value of _skip_if_exists.
	SkipIfExists []string

	// SecretQuestions is the value of _secret_questions.
	SecretQuestions []string

	// Tasks is the value of _tasks, in declaration order.
	Tasks []*Task

	// Migrations is the value of _migrations, in declaration order.
	Migrations []*Migration

	// Questions are the non-underscore keys, in declaration order.
	Questions []*Question

	// Extra holds any other underscore-prefixed keys, with the underscore
	// stripped. They're preserved so templates can read their own settings
	// through the render context.
	Extra map[string]any
}

// Question is one questionnaire entry.
type Question struct {
	// Name is the top-level key that declared this question.
	Name string

	// Type is one of str, int, float, bool, json, yaml. Empty means str.
	Type string `yaml:"type"`

	// Default may be any YAML value. Strings are rendered as templates
	// against the answers gathered so far before being offered.
	Default any `yaml:"default"`

	// Help is shown to the user instead of the bare variable name.
	Help string `yaml:"help"`

	// Choices restricts the answer to one of the listed values.
	Choices []any `yaml:"choices"`

	// Secret answers are masked in output and never persisted.
	Secret bool `yaml:"secret"`

	// When is a template whose falsy rendering skips this question. The
	// zero value (never declared) always asks.
	When When `yaml:"when"`

	// Placeholder is displayed as an input hint but is not a default.
	Placeholder string `yaml:"placeholder"`

	// Multiline answers are read until a lone "." line instead of one line.
	Multiline bool `yaml:"multiline"`
}

// When is a question predicate: either a YAML boolean or a template string
// that must render truthy.
type When struct {
	Declared bool
	Tmpl     string
}

func (w *When) UnmarshalYAML(n *yaml.Node) error {
	w.Declared = true
	var b bool
	if err := n.Decode(&b); err == nil {
		w.Tmpl = fmt.Sprintf("%t", b)
		return nil
	}
	if err := n.Decode(&w.Tmpl); err != nil {
		return fmt.Errorf(`invalid "when" value: %w`, err)
	}
	return nil
}

// Task is a post-copy or migration command: either a single shell string or
// an argv list that runs without a shell.
type Task struct {
	Shell    string
	Argv     []string
	ExtraEnv map[string]string
}

// Command returns a human-readable rendering of the command for progress and
// error messages.
func (t *Task) Command() string {
	if t.Shell != "" {
		return t.Shell
	}
	return strings.Join(t.Argv, " ")
}

func (t *Task) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Decode(&t.Shell) //nolint:wrapcheck
	case yaml.SequenceNode:
		return n.Decode(&t.Argv) //nolint:wrapcheck
	case yaml.MappingNode:
		var wrapper struct {
			Task     *Task             `yaml:"task"`
			ExtraEnv map[string]string `yaml:"extra_env"`
		}
		if err := n.Decode(&wrapper); err != nil {
			return fmt.Errorf("invalid task entry: %w", err)
		}
		if wrapper.Task == nil {
			return fmt.Errorf(`task entry at line %d is a mapping but has no "task" key`, n.Line)
		}
		t.Shell = wrapper.Task.Shell
		t.Argv = wrapper.Task.Argv
		t.ExtraEnv = wrapper.ExtraEnv
		return nil
	default:
		return fmt.Errorf("task entry at line %d must be a string, a list of strings, or a mapping", n.Line)
	}
}

// Migration associates task lists with the template version that introduced
// them. See [Config].Migrations.
type Migration struct {
	Version string  `yaml:"version"`
	Before  []*Task `yaml:"before"`
	After   []*Task `yaml:"after"`
}

// LoadConfig reads the template configuration from the given template root
// directory. A template without a config file gets an empty Config; a
// template with more than one config file is an error.
func LoadConfig(dir string) (*Config, error) {
	var found []string
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			found = append(found, path)
		}
	}
	switch len(found) {
	case 0:
		return &Config{}, nil
	case 1:
		buf, err := os.ReadFile(found[0])
		if err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", found[0], err)
		}
		return DecodeConfig(buf, found[0])
	default:
		return nil, fmt.Errorf("multiple config files found: %v; a template must have exactly one", found)
	}
}

// DecodeConfig parses the given YAML contents. The filename is used only for
// error messages. Top-level keys starting with "_" are partitioned into
// settings; the remainder become questions in declaration order.
func DecodeConfig(buf []byte, filename string) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("error parsing file %s: %w", filename, err)
	}

	out := &Config{Extra: map[string]any{}}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return out, nil // empty file
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("file %s must contain a YAML mapping at the top level", filename)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		key := keyNode.Value

		if !strings.HasPrefix(key, "_") {
			q := &Question{}
			if valNode.Kind == yaml.MappingNode {
				if err := valNode.Decode(q); err != nil {
					return nil, fmt.Errorf("file %s: invalid question %q: %w", filename, key, err)
				}
			} else {
				// A bare scalar (or sequence) is shorthand for a question
				// whose default is that value.
				if err := valNode.Decode(&q.Default); err != nil {
					return nil, fmt.Errorf("file %s: invalid question %q: %w", filename, key, err)
				}
			}
			q.Name = key
			out.Questions = append(out.Questions, q)
			continue
		}

		var err error
		switch key {
		case "_min_copier_version":
			err = valNode.Decode(&out.MinVersion)
		case "_templates_suffix":
			err = valNode.Decode(&out.TemplatesSuffix)
		case "_exclude":
			err = valNode.Decode(&out.Exclude)
		case "_skip_if_exists":
			err = valNode.Decode(&out.SkipIfExists)
		case "_secret_questions":
			err = valNode.Decode(&out.SecretQuestions)
		case "_tasks":
			err = valNode.Decode(&out.Tasks)
		case "_migrations":
			err = valNode.Decode(&out.Migrations)
		default:
			var v any
			if err = valNode.Decode(&v); err == nil {
				out.Extra[strings.TrimPrefix(key, "_")] = v
			}
		}
		if err != nil {
			return nil, fmt.Errorf("file %s: invalid value for %s: %w", filename, key, err)
		}
	}

	return out, nil
}
