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

package worker

// This file is the render pipeline: strings, paths, files, folders, and the
// arbitration of what may be written where.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/exp/maps"

	"github.com/abcxyz/copier/templates/model"
)

var (
	createColor    = color.New(color.FgGreen)
	identicalColor = color.New(color.FgBlue)
	conflictColor  = color.New(color.FgRed, color.Bold)
)

// conflictPreviewLimit caps how much diff we show before a conflict prompt.
const conflictPreviewLimit = 2000

// record emits one styled progress line, like "create  path/to/file".
func (w *Worker) record(verb, relPath string, c *color.Color) {
	if w.cfg.Quiet {
		return
	}
	fmt.Fprintf(w.stderr, "%s  %s\n", c.Sprint(verb), relPath)
}

// RenderString renders s against the full render context.
func (w *Worker) RenderString(ctx context.Context, s string) (string, error) {
	eng, err := w.Engine(ctx)
	if err != nil {
		return "", err
	}
	rc, err := w.renderContext(ctx)
	if err != nil {
		return "", err
	}
	return eng.Render("inline", s, rc)
}

// RenderPath renders each segment of a slash-separated relative path. ok is
// false when any segment renders empty, which skips that whole subtree. The
// templates suffix is stripped from the final segment when present.
func (w *Worker) RenderPath(ctx context.Context, relPath string) (_ string, ok bool, _ error) {
	tmpl, err := w.Template()
	if err != nil {
		return "", false, err
	}
	suffix, err := tmpl.TemplatesSuffix(ctx)
	if err != nil {
		return "", false, err
	}

	parts := strings.Split(path.Clean(filepath.ToSlash(relPath)), "/")
	rendered := make([]string, 0, len(parts))
	for _, part := range parts {
		got, err := w.RenderString(ctx, part)
		if err != nil {
			return "", false, fmt.Errorf("failed rendering path segment %q: %w", part, err)
		}
		if got == "" {
			return "", false, nil
		}
		rendered = append(rendered, got)
	}
	last := len(rendered) - 1
	rendered[last] = strings.TrimSuffix(rendered[last], suffix)
	return path.Join(rendered...), true, nil
}

// renderContext builds the variable mapping a single render sees: the
// baseline data, the to-be-remembered answers, and the _copier_answers and
// _copier_conf introspection keys.
func (w *Worker) renderContext(ctx context.Context) (map[string]any, error) {
	remembered, err := w.answersToRemember(ctx)
	if err != nil {
		return nil, err
	}
	asMap := make(map[string]any, len(remembered))
	for _, kv := range remembered {
		asMap[kv.Key] = kv.Value
	}

	out := map[string]any{}
	for k, v := range w.defaultData() {
		out[k] = v
	}
	for k, v := range asMap {
		out[k] = v
	}
	out["_copier_answers"] = asMap
	out["_copier_conf"] = w.publicConf()
	return out, nil
}

// answersToRemember assembles the mapping persisted to the answers file:
// _commit and _src_path first (when defined), then every combined answer
// whose key doesn't start with "_", isn't secret, and whose value survives
// JSON serialization. Order follows the questionnaire declaration, with any
// extra keys sorted after.
func (w *Worker) answersToRemember(ctx context.Context) ([]model.KV, error) {
	tmpl, err := w.Template()
	if err != nil {
		return nil, err
	}
	commit, err := tmpl.Commit(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := tmpl.Config(ctx)
	if err != nil {
		return nil, err
	}
	secret, err := tmpl.SecretQuestions(ctx)
	if err != nil {
		return nil, err
	}
	am, err := w.Answers(ctx)
	if err != nil {
		return nil, err
	}
	combined := am.Combined()

	var out []model.KV
	if commit != "" {
		out = append(out, model.KV{Key: "_commit", Value: commit})
	}
	out = append(out, model.KV{Key: "_src_path", Value: tmpl.URL()})

	keep := func(k string) bool {
		if strings.HasPrefix(k, "_") || secret[k] {
			return false
		}
		v, ok := combined[k]
		if !ok {
			return false
		}
		_, err := json.Marshal(v)
		return err == nil
	}

	seen := map[string]bool{}
	for _, q := range cfg.Questions {
		if keep(q.Name) {
			out = append(out, model.KV{Key: q.Name, Value: combined[q.Name]})
			seen[q.Name] = true
		}
	}
	var rest []string
	for _, k := range maps.Keys(combined) {
		if !seen[k] && keep(k) && !baselineKey(k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, model.KV{Key: k, Value: combined[k]})
	}
	return out, nil
}

// baselineKey filters the process-wide constants out of the persisted
// answers; they're derivable, not answers.
func baselineKey(k string) bool {
	switch k {
	case "now", "copier_version":
		return true
	default:
		return false
	}
}

// writeAnswersFile persists the answers to the destination.
func (w *Worker) writeAnswersFile(ctx context.Context) error {
	entries, err := w.answersToRemember(ctx)
	if err != nil {
		return err
	}
	abs := filepath.Join(w.cfg.DstPath, w.answersRelpath())
	w.trackCreated(abs)
	return model.WriteAnswers(abs, entries)
}

// renderAllowed arbitrates whether dstRelpath may be written, in this order:
// excluded paths and existing skip-if-exists paths are denied, missing
// destinations are created, identical destinations are no-ops, and true
// conflicts fall to force / prompt / skip.
func (w *Worker) renderAllowed(ctx context.Context, dstRelpath string, isDir bool, expected []byte) (bool, error) {
	if filepath.IsAbs(dstRelpath) {
		return false, fmt.Errorf("internal: renderAllowed got absolute path %q", dstRelpath)
	}
	if expected != nil && isDir {
		return false, fmt.Errorf("internal: directories cannot have expected content (%q)", dstRelpath)
	}

	excluded, err := w.exclusionMatcher(ctx)
	if err != nil {
		return false, err
	}
	if excluded(dstRelpath, isDir) {
		return false, nil
	}

	dstAbs := filepath.Join(w.cfg.DstPath, dstRelpath)
	if w.skipMatcher()(dstRelpath, isDir) {
		if _, err := os.Lstat(dstAbs); err == nil {
			return false, nil
		}
	}

	fi, err := os.Lstat(dstAbs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		w.record("create", dstRelpath, createColor)
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed inspecting %q: %w", dstAbs, err)
	case fi.IsDir():
		if isDir {
			w.record("identical", dstRelpath, identicalColor)
			return true, nil
		}
		return w.solveConflict(ctx, dstRelpath, nil, expected)
	default:
		previous, err := os.ReadFile(dstAbs)
		if err != nil {
			return false, fmt.Errorf("failed reading %q: %w", dstAbs, err)
		}
		if bytes.Equal(previous, expected) {
			w.record("identical", dstRelpath, identicalColor)
			return true, nil
		}
		return w.solveConflict(ctx, dstRelpath, previous, expected)
	}
}

// solveConflict decides an existing-but-different destination: force wins,
// otherwise the user is shown a short diff and asked. Declining is a skip,
// not an error.
func (w *Worker) solveConflict(ctx context.Context, dstRelpath string, previous, expected []byte) (bool, error) {
	w.record("conflict", dstRelpath, conflictColor)
	if w.cfg.Force {
		return true, nil
	}
	if w.cfg.Prompter == nil {
		return false, nil
	}

	if !w.cfg.Quiet && previous != nil {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(string(previous), string(expected), false)
		preview := dmp.DiffPrettyText(diffs)
		if len(preview) > conflictPreviewLimit {
			preview = preview[:conflictPreviewLimit] + "\n…"
		}
		fmt.Fprintln(w.stderr, preview)
	}

	resp, err := w.cfg.Prompter.Prompt(ctx, "Overwrite %s? [Y/n] ", dstRelpath)
	if err != nil {
		return false, fmt.Errorf("failed prompting about conflict on %q: %w", dstRelpath, err)
	}
	switch strings.ToLower(strings.TrimSpace(resp)) {
	case "", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// RenderFile renders one template file into the destination. Files named
// with the templates suffix go through the engine; everything else is copied
// verbatim.
func (w *Worker) RenderFile(ctx context.Context, srcAbs, tmplRoot string) error {
	relPath, err := filepath.Rel(tmplRoot, srcAbs)
	if err != nil {
		return fmt.Errorf("failed relativizing %q: %w", srcAbs, err)
	}
	dstRelpath, ok, err := w.RenderPath(ctx, relPath)
	if err != nil || !ok {
		return err
	}

	tmpl, err := w.Template()
	if err != nil {
		return err
	}
	suffix, err := tmpl.TemplatesSuffix(ctx)
	if err != nil {
		return err
	}

	buf, err := os.ReadFile(srcAbs)
	if err != nil {
		return fmt.Errorf("failed reading template file %q: %w", srcAbs, err)
	}
	content := buf
	if strings.HasSuffix(filepath.Base(srcAbs), suffix) {
		eng, err := w.Engine(ctx)
		if err != nil {
			return err
		}
		rc, err := w.renderContext(ctx)
		if err != nil {
			return err
		}
		rendered, err := eng.Render(filepath.ToSlash(relPath), string(buf), rc)
		if err != nil {
			return err
		}
		content = []byte(rendered)
	}

	allowed, err := w.renderAllowed(ctx, dstRelpath, false, content)
	if err != nil || !allowed {
		return err
	}
	if w.cfg.Pretend {
		return nil
	}

	fi, err := os.Stat(srcAbs)
	if err != nil {
		return fmt.Errorf("failed stating %q: %w", srcAbs, err)
	}
	dstAbs := filepath.Join(w.cfg.DstPath, dstRelpath)
	w.trackCreated(dstAbs)
	if err := os.WriteFile(dstAbs, content, fi.Mode().Perm()); err != nil {
		return fmt.Errorf("failed writing %q: %w", dstAbs, err)
	}
	return nil
}

// RenderFolder recursively renders a template directory. Children are
// visited in lexicographic name order, so output and progress records are
// deterministic.
func (w *Worker) RenderFolder(ctx context.Context, srcAbs, tmplRoot string) error {
	relPath, err := filepath.Rel(tmplRoot, srcAbs)
	if err != nil {
		return fmt.Errorf("failed relativizing %q: %w", srcAbs, err)
	}

	if relPath != "." {
		dstRelpath, ok, err := w.RenderPath(ctx, relPath)
		if err != nil || !ok {
			return err
		}
		allowed, err := w.renderAllowed(ctx, dstRelpath, true, nil)
		if err != nil || !allowed {
			return err
		}
		if !w.cfg.Pretend {
			dstAbs := filepath.Join(w.cfg.DstPath, dstRelpath)
			if _, err := os.Lstat(dstAbs); errors.Is(err, fs.ErrNotExist) {
				w.trackCreatedDir(dstAbs)
			}
			if err := os.MkdirAll(dstAbs, 0o755); err != nil {
				return fmt.Errorf("failed creating directory %q: %w", dstAbs, err)
			}
		}
	}

	entries, err := os.ReadDir(srcAbs)
	if err != nil {
		return fmt.Errorf("failed listing %q: %w", srcAbs, err)
	}
	// os.ReadDir sorts by filename already; re-sorting states the invariant.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		child := filepath.Join(srcAbs, entry.Name())
		if entry.IsDir() {
			if err := w.RenderFolder(ctx, child, tmplRoot); err != nil {
				return err
			}
			continue
		}
		if err := w.RenderFile(ctx, child, tmplRoot); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) trackCreated(abs string) {
	if _, err := os.Lstat(abs); errors.Is(err, fs.ErrNotExist) {
		w.createdFiles = append(w.createdFiles, abs)
	}
}

func (w *Worker) trackCreatedDir(abs string) {
	w.createdDirs = append(w.createdDirs, abs)
}

// cleanupCreated removes everything this run created, for CleanupOnError.
// Directories are removed deepest-first and only when empty, so pre-existing
// user files are never swept up.
func (w *Worker) cleanupCreated() {
	for i := len(w.createdFiles) - 1; i >= 0; i-- {
		os.Remove(w.createdFiles[i]) //nolint:errcheck // best effort
	}
	for i := len(w.createdDirs) - 1; i >= 0; i-- {
		os.Remove(w.createdDirs[i]) //nolint:errcheck // fails (correctly) when not empty
	}
}

// joinInside joins rel under root, refusing paths that would escape it.
func joinInside(root, rel string) string {
	cleaned := path.Clean("/" + filepath.ToSlash(rel))
	return filepath.Join(root, filepath.FromSlash(cleaned))
}
