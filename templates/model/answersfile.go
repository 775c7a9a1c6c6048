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

package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultAnswersFile is where a rendered project remembers the answers it was
// rendered with, relative to the project root.
const DefaultAnswersFile = ".copier-answers.yml"

// KV is one ordered entry of the answers file. Plain maps don't preserve
// order, and the file promises _commit and _src_path first followed by the
// questionnaire declaration order.
type KV struct {
	Key   string
	Value any
}

// LoadAnswers reads the answers file at path. A file that can't be read
// (missing, permission denied) yields an empty map, not an error: a project
// without an answers file is simply a project that was never rendered.
// Malformed YAML is still an error.
func LoadAnswers(path string) (map[string]any, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return map[string]any{}, nil
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(buf, &out); err != nil {
		return nil, fmt.Errorf("error parsing answers file %s: %w", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// WriteAnswers writes the entries to path as a YAML mapping in the given
// order. The write is atomic: a temp file in the same directory is renamed
// over the target so a crash never leaves a half-written answers file.
func WriteAnswers(path string, entries []KV) (rErr error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range entries {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key}
		valNode := &yaml.Node{}
		if err := valNode.Encode(e.Value); err != nil {
			return fmt.Errorf("failed encoding answer %q: %w", e.Key, err)
		}
		root.Content = append(root.Content, keyNode, valNode)
	}

	sb := &strings.Builder{}
	enc := yaml.NewEncoder(sb)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("failed marshaling answers: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed marshaling answers: %w", err)
	}
	buf := []byte(sb.String())

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed creating temp answers file: %w", err)
	}
	defer func() {
		if rErr != nil {
			os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup on the error path
		}
	}()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return fmt.Errorf("failed writing answers file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed writing answers file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed replacing answers file: %w", err)
	}
	return nil
}
