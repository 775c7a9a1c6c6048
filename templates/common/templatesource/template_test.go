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

package templatesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/abcxyz/pkg/testutil"

	"github.com/abcxyz/copier/templates/common/tempdir"
	"github.com/abcxyz/copier/templates/testutil/fakegit"
)

func writeFile(tb testing.TB, dir, name, contents string) {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		tb.Fatal(err)
	}
}

func localOptions(g *fakegit.Driver) *Options {
	return &Options{Git: g, Dirs: tempdir.NewDirTracker(false)}
}

func TestTemplateLocalDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, dir, "copier.yml", `
_templates_suffix: .tmpl
_secret_questions: [hidden]
name:
  default: World
token:
  secret: true
`)

	tmpl := New(dir, "", localOptions(&fakegit.Driver{}))

	if got := tmpl.VCS(); got != "" {
		t.Errorf("VCS()=%q, want empty for a plain directory", got)
	}
	if got := tmpl.URLExpanded(); got != dir {
		t.Errorf("URLExpanded()=%q, want %q", got, dir)
	}

	localPath, err := tmpl.LocalPath(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if localPath != dir {
		t.Errorf("LocalPath()=%q, want %q", localPath, dir)
	}

	commit, err := tmpl.Commit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if commit != "" {
		t.Errorf("Commit()=%q, want empty for a plain directory", commit)
	}

	suffix, err := tmpl.TemplatesSuffix(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if suffix != ".tmpl" {
		t.Errorf("TemplatesSuffix()=%q, want .tmpl", suffix)
	}

	defaults, err := tmpl.DefaultAnswers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantDefaults := map[string]any{"name": "World", "token": nil}
	if diff := cmp.Diff(wantDefaults, defaults); diff != "" {
		t.Errorf("DefaultAnswers() diff (-want +got):\n%s", diff)
	}

	secret, err := tmpl.SecretQuestions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantSecret := map[string]bool{"hidden": true, "token": true}
	if diff := cmp.Diff(wantSecret, secret); diff != "" {
		t.Errorf("SecretQuestions() diff (-want +got):\n%s", diff)
	}
}

func TestTemplateSuffixDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tmpl := New(t.TempDir(), "", localOptions(&fakegit.Driver{}))
	suffix, err := tmpl.TemplatesSuffix(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if suffix != DefaultTemplatesSuffix {
		t.Errorf("TemplatesSuffix()=%q, want %q", suffix, DefaultTemplatesSuffix)
	}
}

func TestTemplateClone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := t.TempDir()
	writeFile(t, src, "hello.txt", "hi\n")

	g := &fakegit.Driver{
		Repos: map[string]*fakegit.Repo{
			"https://example.com/tpl.git": {
				Refs:     map[string]string{"": src, "v1.0.0": src},
				Describe: map[string]string{"": "v1.0.0"},
			},
		},
	}
	tmpl := New("git+https://example.com/tpl.git", "v1.0.0", localOptions(g))

	if got := tmpl.VCS(); got != "git" {
		t.Fatalf("VCS()=%q, want git", got)
	}
	if got, want := tmpl.URLExpanded(), "https://example.com/tpl.git"; got != want {
		t.Errorf("URLExpanded()=%q, want %q", got, want)
	}

	localPath, err := tmpl.LocalPath(ctx)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := os.ReadFile(filepath.Join(localPath, "hello.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(buf) != "hi\n" {
		t.Errorf("cloned hello.txt = %q, want %q", buf, "hi\n")
	}

	// LocalPath is memoized: no second clone.
	if _, err := tmpl.LocalPath(ctx); err != nil {
		t.Fatal(err)
	}
	if len(g.Clones) != 1 {
		t.Errorf("got %d clones, want 1 (LocalPath should be memoized)", len(g.Clones))
	}

	commit, err := tmpl.Commit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if commit != "v1.0.0" {
		t.Errorf("Commit()=%q, want v1.0.0", commit)
	}
}

func TestTemplateDefaultRefPicksLatestRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	v1 := t.TempDir()
	writeFile(t, v1, "marker.txt", "v1\n")
	v2 := t.TempDir()
	writeFile(t, v2, "marker.txt", "v2\n")
	v3pre := t.TempDir()
	writeFile(t, v3pre, "marker.txt", "v3-pre\n")

	repo := &fakegit.Repo{
		Refs: map[string]string{
			"":            v3pre, // head
			"v1.0.0":      v1,
			"v2.0.0":      v2,
			"v3.0.0-rc.1": v3pre,
		},
		Tags: []string{"v1.0.0", "v2.0.0", "v3.0.0-rc.1", "not-a-version"},
	}

	cases := []struct {
		name           string
		usePrereleases bool
		want           string
	}{
		{
			name: "stable_release_by_default",
			want: "v2\n",
		},
		{
			name:           "prerelease_opt_in",
			usePrereleases: true,
			want:           "v3-pre\n",
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g := &fakegit.Driver{Repos: map[string]*fakegit.Repo{"https://example.com/tpl.git": repo}}
			opts := localOptions(g)
			opts.UsePrereleases = tc.usePrereleases
			tmpl := New("git+https://example.com/tpl.git", "", opts)

			localPath, err := tmpl.LocalPath(ctx)
			if err != nil {
				t.Fatal(err)
			}
			buf, err := os.ReadFile(filepath.Join(localPath, "marker.txt"))
			if err != nil {
				t.Fatal(err)
			}
			if string(buf) != tc.want {
				t.Errorf("marker.txt = %q, want %q", buf, tc.want)
			}
		})
	}
}

func TestCheckMinVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		name     string
		current  string
		required string
		wantErr  string
	}{
		{
			name:     "no_requirement",
			current:  "1.0.0",
			required: "",
		},
		{
			name:     "current_newer",
			current:  "2.0.0",
			required: "1.0.0",
		},
		{
			name:     "exactly_equal",
			current:  "1.2.3",
			required: "1.2.3",
		},
		{
			name:     "current_older",
			current:  "1.0.0",
			required: "2.0.0",
			wantErr:  "requires copier version 2.0.0",
		},
		{
			name:     "dev_build_skips_check",
			current:  "source",
			required: "99.0.0",
		},
		{
			name:     "unparseable_requirement",
			current:  "1.0.0",
			required: "not-a-version",
			wantErr:  "unparseable _min_copier_version",
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := CheckMinVersion(ctx, tc.current, tc.required)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestSubproject(t *testing.T) {
	t.Parallel()

	t.Run("missing_answers_file_is_empty", func(t *testing.T) {
		t.Parallel()

		sub := NewSubproject(t.TempDir(), "", &fakegit.Driver{})
		got, err := sub.LastAnswers()
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("LastAnswers()=%v, want empty", got)
		}
		if _, ok, err := sub.Template(localOptions(&fakegit.Driver{})); err != nil || ok {
			t.Errorf("Template()=(ok=%t, err=%v), want no template and no error", ok, err)
		}
	})

	t.Run("last_answers_filters_private_keys", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFile(t, dir, ".copier-answers.yml", `
_commit: v1.0.0
_src_path: git+https://example.com/tpl.git
_secret_stuff: nope
name: Alice
`)
		sub := NewSubproject(dir, "", &fakegit.Driver{})
		got, err := sub.LastAnswers()
		if err != nil {
			t.Fatal(err)
		}
		want := map[string]any{
			"_commit":   "v1.0.0",
			"_src_path": "git+https://example.com/tpl.git",
			"name":      "Alice",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("LastAnswers() diff (-want +got):\n%s", diff)
		}

		tmpl, ok, err := sub.Template(localOptions(&fakegit.Driver{}))
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("Template() found none, want one")
		}
		if got, want := tmpl.URL(), "git+https://example.com/tpl.git"; got != want {
			t.Errorf("Template().URL()=%q, want %q", got, want)
		}
		if got, want := tmpl.Ref(), "v1.0.0"; got != want {
			t.Errorf("Template().Ref()=%q, want %q", got, want)
		}
	})

	t.Run("vcs_detection", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		g := &fakegit.Driver{RepoRoots: map[string]bool{dir: true}, Dirty: map[string]bool{dir: true}}
		sub := NewSubproject(dir, "", g)
		if got := sub.VCS(); got != "git" {
			t.Errorf("VCS()=%q, want git", got)
		}
		dirty, err := sub.IsDirty(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !dirty {
			t.Errorf("IsDirty()=false, want true")
		}

		other := NewSubproject(t.TempDir(), "", &fakegit.Driver{})
		if got := other.VCS(); got != "" {
			t.Errorf("VCS()=%q, want empty for a plain directory", got)
		}
	})
}
