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

// Package copy implements the "copier copy" subcommand for rendering a
// template into a destination directory.
package copy

import (
	"context"
	"fmt"

	"github.com/abcxyz/pkg/cli"
	"gopkg.in/yaml.v3"

	"github.com/abcxyz/copier/templates/common/worker"
)

// Command renders a template. With no <source> argument it falls through to
// updating the destination from its recorded template.
type Command struct {
	cli.BaseCommand
	flags Flags
}

// Desc implements cli.Command.
func (c *Command) Desc() string {
	return "render a template into a destination directory"
}

func (c *Command) Help() string {
	return `
Usage: {{ COMMAND }} [options] <source> [<dest>]

The {{ COMMAND }} command renders the given template into <dest> and records
the answers used, so the project can be updated later when the template
changes.

The "<source>" may be:

  - a local directory containing the template;
  - a git URL (https://... .git, git@..., git+...);
  - a gh:org/repo or gl:org/repo shorthand for GitHub/GitLab.

When "<source>" is omitted, the destination's recorded template is re-applied
(same as running the update command).`
}

func (c *Command) Flags() *cli.FlagSet {
	set := c.NewFlagSet()
	c.flags.Register(set)
	return set
}

func (c *Command) Run(ctx context.Context, args []string) error {
	if err := c.Flags().Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	data, err := ParseData(c.flags.Data)
	if err != nil {
		return err
	}

	w := worker.New(&worker.Config{
		AnswersFile:    c.flags.AnswersFile,
		CleanupOnError: c.flags.CleanupOnError,
		Data:           data,
		DstPath:        c.flags.Dest,
		Exclude:        c.flags.Exclude,
		ExtraPaths:     c.flags.ExtraPaths,
		Force:          c.flags.Force,
		KeepTempDirs:   c.flags.KeepTempDirs,
		Pretend:        c.flags.Pretend,
		Prompter:       c,
		Quiet:          c.flags.Quiet,
		SkipIfExists:   c.flags.SkipIfExists,
		SrcPath:        c.flags.Source,
		Stderr:         c.Stderr(),
		Subdirectory:   c.flags.Subdirectory,
		UsePrereleases: c.flags.UsePrereleases,
		VCSRef:         c.flags.Ref,
	})
	return w.RunAuto(ctx)
}

// ParseData turns --data key=val pairs into answers. Values are parsed as
// YAML so "3", "true", and "[a, b]" arrive typed, matching what a question
// default would have produced.
func ParseData(in map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for k, raw := range in {
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid --data value for %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
