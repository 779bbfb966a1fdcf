package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/3cpo-dev/ldbench/internal/platform"
	"github.com/3cpo-dev/ldbench/pkg/api"
)

// FileFinder resolves a query to exactly one file.
type FileFinder interface {
	FindFile(ctx context.Context, q platform.FileQuery) (*platform.File, error)
}

// Driver resolves a plan's inputs and submits one task per row.
type Driver struct {
	files     FileFinder
	submitter *Submitter
	log       zerolog.Logger
}

func NewDriver(files FileFinder, tasks TaskCreator, logger zerolog.Logger) *Driver {
	return &Driver{files: files, submitter: NewSubmitter(tasks, logger), log: logger}
}

// ResolveFiles looks up every file referenced by the plan rows, once per
// key. Any lookup failure aborts the run before a task is submitted.
func (d *Driver) ResolveFiles(ctx context.Context, p Plan) (PlanFiles, error) {
	files := PlanFiles{Samples: map[string]platform.File{}, Variants: map[string]platform.File{}}
	samples, variants := map[string]bool{}, map[string]bool{}
	for _, r := range p.Rows() {
		samples[r.NSamples] = true
		variants[r.NVariants] = true
	}
	resolve := func(kind string, keys map[string]bool, names map[string]string, into map[string]platform.File) error {
		for _, key := range sortedKeys(keys) {
			name, ok := names[key]
			if !ok {
				return ValidationError{Field: kind, Value: key, Message: "no file for key"}
			}
			f, err := d.files.FindFile(ctx, platform.FileQuery{Project: p.Project, Names: []string{name}})
			if err != nil {
				return fmt.Errorf("resolve %s %s: %w", kind, key, err)
			}
			d.log.Debug().Str(kind, key).Str("file", f.String()).Msg("resolved input")
			into[key] = *f
		}
		return nil
	}
	if err := resolve("n_samples", samples, p.SampleFiles, files.Samples); err != nil {
		return files, err
	}
	if err := resolve("n_variants", variants, p.VariantFiles, files.Variants); err != nil {
		return files, err
	}
	return files, nil
}

// Run submits every row of the plan and returns the rows with task ids (or
// submission errors) filled in. Only input resolution and cancellation are
// returned as errors; failed submissions are recorded per row.
func (d *Driver) Run(ctx context.Context, p Plan) ([]BenchmarkRow, error) {
	files, err := d.ResolveFiles(ctx, p)
	if err != nil {
		return nil, err
	}
	rows := p.Rows()
	cfgs := make([]api.TaskConfig, len(rows))
	for i, r := range rows {
		cfgs[i] = p.TaskConfig(r, files)
	}
	d.log.Info().Int("tasks", len(rows)).Str("app", p.App).Msg("submitting benchmark tasks")
	failed := 0
	for i, res := range d.submitter.SubmitAll(ctx, cfgs) {
		if res.Submitted() {
			rows[i].TaskID = res.TaskID()
			continue
		}
		failed++
		rows[i].SubmitError = res.Err.Error()
	}
	if failed > 0 {
		d.log.Warn().Int("failed", failed).Int("total", len(rows)).Msg("some benchmark tasks were not submitted")
	}
	return rows, ctx.Err()
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
