package core

import (
	"context"
	"errors"
	"testing"

	"github.com/3cpo-dev/ldbench/internal/platform"
)

func benchmarkPlatform(t *testing.T, p Plan) *MockPlatform {
	t.Helper()
	m := NewMockPlatform()
	for key, name := range p.SampleFiles {
		m.AddFile(platform.File{ID: "gds-" + key, Name: name, Project: p.Project})
	}
	for key, name := range p.VariantFiles {
		m.AddFile(platform.File{ID: "var-" + key, Name: name, Project: p.Project})
	}
	return m
}

func TestDriverSubmitsEveryRow(t *testing.T) {
	p, _ := DefaultPlan()
	m := benchmarkPlatform(t, p)
	rows, err := NewDriver(m, m, nopLogger()).Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rows) != 20 || len(m.created) != 20 {
		t.Fatalf("rows %d created %d", len(rows), len(m.created))
	}
	for i, r := range rows {
		if r.TaskID == "" || r.SubmitError != "" {
			t.Fatalf("row %d not submitted: %+v", i, r)
		}
		if m.created[i].Name != r.TaskName {
			t.Fatalf("row %d submitted out of order", i)
		}
	}
	gds := m.created[0].Inputs["gds_file"].(platform.File)
	if gds.ID != "gds-10k" {
		t.Fatalf("gds input %+v", gds)
	}
}

func TestDriverContinuesAfterFailedSubmission(t *testing.T) {
	p, _ := DefaultPlan()
	m := benchmarkPlatform(t, p)
	m.failApps[p.App] = errors.New("quota exceeded")
	rows, err := NewDriver(m, m, nopLogger()).Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(m.created) != len(rows) {
		t.Fatalf("every row should be attempted, got %d of %d", len(m.created), len(rows))
	}
	for _, r := range rows {
		if r.TaskID != "" || r.SubmitError != "quota exceeded" {
			t.Fatalf("row %+v", r)
		}
	}
}

func TestDriverBackfillsIdsAroundFailedRow(t *testing.T) {
	p := Plan{
		Project:        "me/proj",
		App:            "me/proj/ld-set",
		OutputPrefix:   "bench",
		TaskNamePrefix: DefaultTaskNamePrefix,
		SampleFiles:    map[string]string{"10k": "a.gds"},
		VariantFiles:   map[string]string{"1": "v1.rds", "2": "v2.rds", "3": "v3.rds", "4": "v4.rds", "5": "v5.rds"},
		Grid: Grid{
			NSamples:      []string{"10k"},
			NVariants:     []string{"1", "2", "3", "4", "5"},
			Interruptible: []bool{true},
			InstanceTypes: []string{"c4.2xlarge"},
			Methods:       [][]string{{"r2"}},
			CPUs:          []int{8},
		},
	}
	m := benchmarkPlatform(t, p)
	failing := p.Rows()[2].TaskName
	m.failNames[failing] = errors.New("instance quota exceeded")

	rows, err := NewDriver(m, m, nopLogger()).Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rows) != 5 || len(m.created) != 5 {
		t.Fatalf("rows %d created %d", len(rows), len(m.created))
	}
	if rows[2].TaskID != "" || rows[2].SubmitError != "instance quota exceeded" {
		t.Fatalf("failed row %+v", rows[2])
	}
	want := []string{"task-1", "task-2", "", "task-3", "task-4"}
	for i, r := range rows {
		if r.TaskID != want[i] {
			t.Fatalf("row %d id %q, want %q", i, r.TaskID, want[i])
		}
		if i != 2 && r.SubmitError != "" {
			t.Fatalf("row %d unexpected error %q", i, r.SubmitError)
		}
		if m.created[i].Name != r.TaskName {
			t.Fatalf("row %d submitted out of order", i)
		}
	}
}

func TestDriverAbortsOnAmbiguousInput(t *testing.T) {
	p, _ := DefaultPlan()
	m := benchmarkPlatform(t, p)
	m.AddFile(platform.File{ID: "dup", Name: p.VariantFiles["1000"], Project: p.Project})
	_, err := NewDriver(m, m, nopLogger()).Run(context.Background(), p)
	if !errors.Is(err, platform.ErrAmbiguous) {
		t.Fatalf("expected ambiguous error, got %v", err)
	}
	if len(m.created) != 0 {
		t.Fatalf("no task should be submitted when inputs are ambiguous")
	}
}

func TestDriverMissingInput(t *testing.T) {
	p, _ := DefaultPlan()
	m := NewMockPlatform()
	_, err := NewDriver(m, m, nopLogger()).Run(context.Background(), p)
	if !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
