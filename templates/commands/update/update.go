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

// Package update implements the "copier update" subcommand for re-applying a
// changed template to an existing project while keeping the user's edits.
package update

import (
	"context"
	"fmt"
	"strings"

	"github.com/abcxyz/pkg/cli"
	"github.com/posener/complete/v2/predict"

	"github.com/abcxyz/copier/templates/commands/copy"
	"github.com/abcxyz/copier/templates/common/worker"
	"github.com/abcxyz/copier/templates/model"
)

// Command updates a previously rendered project.
type Command struct {
	cli.BaseCommand
	flags Flags
}

// Flags for the update command. A subset of the copy flags: the source comes
// from the destination's answers file.
type Flags struct {
	// Positional argument: the project to update. Defaults to ".".
	Dest string

	AnswersFile    string
	Data           map[string]string
	Exclude        []string
	ExtraPaths     []string
	KeepTempDirs   bool
	Pretend        bool
	Quiet          bool
	Ref            string
	SkipIfExists   []string
	Subdirectory   string
	UsePrereleases bool
}

func (f *Flags) Register(set *cli.FlagSet) {
	u := set.NewSection("UPDATE OPTIONS")

	u.StringMapVar(&cli.StringMapVar{
		Name:    "data",
		Aliases: []string{"d"},
		Example: "project_name=myproj",
		Target:  &f.Data,
		Usage:   "The key=val pairs of forced answers; may be repeated. Values are parsed as YAML, so scalars and flow sequences arrive typed.",
	})

	u.StringSliceVar(&cli.StringSliceVar{
		Name:    "exclude",
		Example: "*.tmp",
		Target:  &f.Exclude,
		Usage:   "Additional exclusion patterns, appended to the template's; may be repeated.",
	})

	u.StringSliceVar(&cli.StringSliceVar{
		Name:    "skip-if-exists",
		Example: "config/*.yml",
		Target:  &f.SkipIfExists,
		Usage:   "Patterns that must never overwrite an existing destination path; may be repeated.",
	})

	u.StringVar(&cli.StringVar{
		Name:    "answers-file",
		Example: ".copier-answers.yml",
		Default: model.DefaultAnswersFile,
		Target:  &f.AnswersFile,
		Usage:   "Where, relative to the destination, the previous answers were remembered.",
	})

	u.StringVar(&cli.StringVar{
		Name:    "subdirectory",
		Example: "template",
		Target:  &f.Subdirectory,
		Usage:   "A sub-path within the template to treat as the template root.",
	})

	u.StringSliceVar(&cli.StringSliceVar{
		Name:    "extra-paths",
		Example: "/my/shared/snippets",
		Target:  &f.ExtraPaths,
		Usage:   "Additional root directories the template's include function may read from; may be repeated.",
	})

	u.BoolVar(&cli.BoolVar{
		Name:    "pretend",
		Default: false,
		Target:  &f.Pretend,
		Usage:   "Go through the motions without writing anything to the destination.",
	})

	u.BoolVar(&cli.BoolVar{
		Name:    "quiet",
		Aliases: []string{"q"},
		Default: false,
		Target:  &f.Quiet,
		Usage:   "Suppress progress output.",
	})

	u.BoolVar(&cli.BoolVar{
		Name:    "keep-temp-dirs",
		Default: false,
		Target:  &f.KeepTempDirs,
		Usage:   "Preserve the temp directories instead of deleting them normally.",
	})

	g := set.NewSection("GIT OPTIONS")

	g.StringVar(&cli.StringVar{
		Name:    "ref",
		Aliases: []string{"r"},
		Example: "v2.0.0",
		Target:  &f.Ref,
		Usage:   "The template revision to update to. Defaults to the latest release tag.",
	})

	g.BoolVar(&cli.BoolVar{
		Name:    "use-prereleases",
		Default: false,
		Target:  &f.UsePrereleases,
		Usage:   "Consider prerelease tags when picking the default template revision.",
	})

	g.StringVar(&cli.StringVar{
		Name:    "dest",
		Example: "/my/project",
		Default: ".",
		Target:  &f.Dest,
		Predict: predict.Dirs("*"),
		Usage:   "The project directory to update. Also accepted as the first positional argument.",
	})

	set.AfterParse(func(existingErr error) error {
		if arg := strings.TrimSpace(set.Arg(0)); arg != "" {
			f.Dest = arg
		}
		return nil
	})
}

// Desc implements cli.Command.
func (c *Command) Desc() string {
	return "update a rendered project from a newer template revision"
}

func (c *Command) Help() string {
	return `
Usage: {{ COMMAND }} [options] [<dest>]

The {{ COMMAND }} command re-applies the template recorded in <dest>'s
answers file at a newer revision, preserving the edits made since the last
run. The destination must be a clean git working copy; local changes that
can't be replayed end up in .rej files next to their targets.`
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

	data, err := copy.ParseData(c.flags.Data)
	if err != nil {
		return err
	}

	w := worker.New(&worker.Config{
		AnswersFile:    c.flags.AnswersFile,
		Data:           data,
		DstPath:        c.flags.Dest,
		Exclude:        c.flags.Exclude,
		ExtraPaths:     c.flags.ExtraPaths,
		KeepTempDirs:   c.flags.KeepTempDirs,
		Pretend:        c.flags.Pretend,
		Prompter:       c,
		Quiet:          c.flags.Quiet,
		SkipIfExists:   c.flags.SkipIfExists,
		Stderr:         c.Stderr(),
		Subdirectory:   c.flags.Subdirectory,
		UsePrereleases: c.flags.UsePrereleases,
		VCSRef:         c.flags.Ref,
	})
	return w.RunUpdate(ctx)
}
