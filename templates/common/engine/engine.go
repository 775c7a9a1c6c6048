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

// Package engine is the string templating engine that file contents, file
// names, question defaults, and task commands are rendered through.
//
// The engine is sandboxed in the sense that templates can only call the
// functions in the allowlisted FuncMap below; there is no attribute access to
// anything outside the variables the caller passes in, and no import
// mechanism.
package engine

import (
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Undefined behaviors for variables referenced by a template but absent from
// the render context.
const (
	// UndefinedStrict makes references to missing variables an error.
	UndefinedStrict = "strict"

	// UndefinedDefault silently renders missing variables as empty.
	UndefinedDefault = "default"
)

// EnvOps configures the engine. The zero value means "{{"/"}}" delimiters and
// strict undefined handling.
type EnvOps struct {
	// VariableStart and VariableEnd are the delimiters around a substitution.
	VariableStart string `yaml:"variable_start_string"`
	VariableEnd   string `yaml:"variable_end_string"`

	// Undefined is one of the Undefined* constants above.
	Undefined string `yaml:"undefined"`
}

// Engine renders template strings against a variable mapping. Implementations
// must be safe for sequential reuse; a single render is never concurrent.
type Engine interface {
	// Render parses body as a template and executes it against vars. The name
	// is used only in error messages.
	Render(name, body string, vars map[string]any) (string, error)
}

// New returns the Go text/template backed Engine. opts may be nil for
// defaults. extraFuncs are added to the allowlist; values must be functions
// with template-compatible signatures.
func New(opts *EnvOps, extraFuncs map[string]any) Engine {
	if opts == nil {
		opts = &EnvOps{}
	}
	out := &gotmplEngine{
		variableStart: opts.VariableStart,
		variableEnd:   opts.VariableEnd,
		missingKey:    "error",
		extraFuncs:    extraFuncs,
	}
	if out.variableStart == "" {
		out.variableStart = "{{"
	}
	if out.variableEnd == "" {
		out.variableEnd = "}}"
	}
	if opts.Undefined == UndefinedDefault {
		out.missingKey = "zero"
	}
	return out
}

type gotmplEngine struct {
	variableStart string
	variableEnd   string
	missingKey    string
	extraFuncs    map[string]any
}

func (e *gotmplEngine) Render(name, body string, vars map[string]any) (string, error) {
	fm := funcs()
	for k, v := range e.extraFuncs {
		fm[k] = v
	}
	tmpl, err := template.New(name).
		Funcs(fm).
		Option("missingkey=" + e.missingKey).
		Delims(e.variableStart, e.variableEnd).
		Parse(body)
	if err != nil {
		return "", fmt.Errorf("error compiling template %q: %w", name, err)
	}
	sb := &strings.Builder{}
	if err := tmpl.Execute(sb, vars); err != nil {
		return "", fmt.Errorf("template execution failed for %q: %w", name, err)
	}
	out := sb.String()
	if e.missingKey == "zero" {
		// text/template renders missing map entries as "<no value>" rather
		// than empty, even with missingkey=zero, because the map values are
		// type any.
		out = strings.ReplaceAll(out, "<no value>", "")
	}
	return out, nil
}

// funcs is the function allowlist available inside templates.
func funcs() template.FuncMap {
	return template.FuncMap{
		"contains":     strings.Contains,
		"replace":      strings.Replace,
		"replaceAll":   strings.ReplaceAll,
		"split":        strings.Split,
		"toLower":      strings.ToLower,
		"toUpper":      strings.ToUpper,
		"trimPrefix":   strings.TrimPrefix,
		"trimSuffix":   strings.TrimSuffix,
		"trimSpace":    strings.TrimSpace,
		"toNiceYAML":   toNiceYAML,
		"to_nice_yaml": toNiceYAML, // alias matching the filter name templates already use
	}
}

// toNiceYAML marshals any value as indented YAML, for embedding structured
// answers into rendered files.
func toNiceYAML(v any) (string, error) {
	sb := &strings.Builder{}
	enc := yaml.NewEncoder(sb)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed marshaling value as YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed marshaling value as YAML: %w", err)
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}
