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

package copy

import (
	"strings"

	"github.com/abcxyz/pkg/cli"
	"github.com/posener/complete/v2/predict"

	"github.com/abcxyz/copier/templates/model"
)

// Flags describes what template to copy, where to, and how.
type Flags struct {
	// Positional arguments:

	// Source is the template locator: a local directory or a git URL.
	// Optional; when absent, the destination's recorded template is used
	// (which turns the copy into an update).
	Source string

	// Dest is the directory the rendered output will be written to. It's OK
	// for it to already exist or not.
	Dest string

	// Flag arguments (--foo):

	AnswersFile    string
	CleanupOnError bool
	Data           map[string]string
	Exclude        []string
	ExtraPaths     []string
	Force          bool
	KeepTempDirs   bool
	Pretend        bool
	Quiet          bool
	Ref            string
	SkipIfExists   []string
	Subdirectory   string
	UsePrereleases bool
}

func (f *Flags) Register(set *cli.FlagSet) {
	r := set.NewSection("RENDER OPTIONS")

	r.StringMapVar(&cli.StringMapVar{
		Name:    "data",
		Aliases: []string{"d"},
		Example: "project_name=myproj",
		Target:  &f.Data,
		Usage:   "The key=val pairs of forced answers; may be repeated. Values are parsed as YAML, so scalars and flow sequences arrive typed.",
	})

	r.StringSliceVar(&cli.StringSliceVar{
		Name:    "exclude",
		Example: "*.tmp",
		Target:  &f.Exclude,
		Usage:   "Additional exclusion patterns, appended to the template's; may be repeated.",
	})

	r.StringSliceVar(&cli.StringSliceVar{
		Name:    "skip-if-exists",
		Example: "config/*.yml",
		Target:  &f.SkipIfExists,
		Usage:   "Patterns that must never overwrite an existing destination path; may be repeated.",
	})

	r.StringVar(&cli.StringVar{
		Name:    "answers-file",
		Example: ".copier-answers.yml",
		Default: model.DefaultAnswersFile,
		Target:  &f.AnswersFile,
		Usage:   "Where, relative to the destination, to remember the answers for later updates.",
	})

	r.StringVar(&cli.StringVar{
		Name:    "subdirectory",
		Example: "template",
		Target:  &f.Subdirectory,
		Usage:   "A sub-path within the template to treat as the template root.",
	})

	r.StringSliceVar(&cli.StringSliceVar{
		Name:    "extra-paths",
		Example: "/my/shared/snippets",
		Target:  &f.ExtraPaths,
		Usage:   "Additional root directories the template's include function may read from; may be repeated.",
	})

	r.BoolVar(&cli.BoolVar{
		Name:    "force",
		Aliases: []string{"f"},
		Default: false,
		Target:  &f.Force,
		Usage:   "Overwrite conflicting files without prompting, and accept all question defaults.",
	})

	r.BoolVar(&cli.BoolVar{
		Name:    "pretend",
		Default: false,
		Target:  &f.Pretend,
		Usage:   "Go through the motions without writing anything to the destination.",
	})

	r.BoolVar(&cli.BoolVar{
		Name:    "quiet",
		Aliases: []string{"q"},
		Default: false,
		Target:  &f.Quiet,
		Usage:   "Suppress progress output.",
	})

	r.BoolVar(&cli.BoolVar{
		Name:    "cleanup-on-error",
		Default: true,
		Target:  &f.CleanupOnError,
		Usage:   "Remove the files created by a failed run.",
	})

	r.BoolVar(&cli.BoolVar{
		Name:    "keep-temp-dirs",
		Default: false,
		Target:  &f.KeepTempDirs,
		Usage:   "Preserve the temp directories instead of deleting them normally.",
	})

	g := set.NewSection("GIT OPTIONS")

	g.StringVar(&cli.StringVar{
		Name:    "ref",
		Aliases: []string{"r"},
		Example: "v1.2.3",
		Target:  &f.Ref,
		Usage:   "The template revision to check out. Defaults to the latest release tag, or the head when there are no version tags.",
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
		Usage:   "The destination directory; created if missing. Also accepted as the second positional argument.",
	})

	set.AfterParse(func(existingErr error) error {
		f.Source = strings.TrimSpace(set.Arg(0))
		if arg := strings.TrimSpace(set.Arg(1)); arg != "" {
			f.Dest = arg
		}
		return nil
	})
}
