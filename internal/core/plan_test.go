package core

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/3cpo-dev/ldbench/internal/platform"
)

func TestDefaultPlanReproducesBenchmark(t *testing.T) {
	p, err := DefaultPlan()
	if err != nil {
		t.Fatalf("default plan: %v", err)
	}
	rows := p.Rows()
	// 3 sample sets x 5 variant sets, plus 5 hand-picked rows
	if len(rows) != 20 {
		t.Fatalf("expected 20 rows, got %d", len(rows))
	}
	if rows[0].TaskName != "api-benchmark - 10k - 1000 - c4.2xlarge - 8" {
		t.Fatalf("first row %q", rows[0].TaskName)
	}
	if rows[14].NSamples != "50k" || rows[14].NVariants != "20000" {
		t.Fatalf("last standard row %+v", rows[14])
	}
	extra := rows[15:]
	if extra[2].Interruptible || extra[2].CPU != 36 {
		t.Fatalf("third extra row should be non-interruptible 36 cpu: %+v", extra[2])
	}
	if strings.Join(extra[3].Methods, ",") != "r2,dprime" {
		t.Fatalf("fourth extra row methods %v", extra[3].Methods)
	}
	if p.Project != "amstilp/ld-compute-devel" || p.OutputPrefix != "benchmark" {
		t.Fatalf("plan header %+v", p)
	}
}

func TestLoadPlanRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	writeFile(t, path, `
project: me/proj
app: me/proj/ld-set
output_prefix: bench
sample_files: {small: a.gds}
variant_files: {"10": v.rds}
grid:
  n_samples: [small, huge]
  n_variants: ["10"]
  interruptible: [true]
  instance_type: [c5.large]
  methods: [[r2]]
  cpu: [2]
`)
	_, err := LoadPlan(path)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Field != "n_samples" || ve.Value != "huge" {
		t.Fatalf("expected n_samples validation error, got %v", err)
	}
}

func TestPlanValidateRequiresProject(t *testing.T) {
	err := Plan{App: "a", OutputPrefix: "o"}.Validate()
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Field != "project" {
		t.Fatalf("expected project error, got %v", err)
	}
}

func TestPlanTaskConfig(t *testing.T) {
	p, _ := DefaultPlan()
	row := p.Rows()[0]
	files := PlanFiles{
		Samples:  map[string]platform.File{"10k": {ID: "gds-10k"}},
		Variants: map[string]platform.File{"1000": {ID: "var-1000"}},
	}
	cfg := p.TaskConfig(row, files)
	if cfg.Inputs["gds_file"].(platform.File).ID != "gds-10k" {
		t.Fatalf("gds input %v", cfg.Inputs["gds_file"])
	}
	if cfg.Inputs["variant_include_file"].(platform.File).ID != "var-1000" {
		t.Fatalf("variant input %v", cfg.Inputs["variant_include_file"])
	}
	if cfg.Inputs["output_prefix"] != "benchmark" || cfg.Inputs["cpu"] != 8 {
		t.Fatalf("inputs %v", cfg.Inputs)
	}
	if !cfg.RunImmediately || cfg.Execution.InstanceType != "c4.2xlarge" || !*cfg.Execution.Interruptible {
		t.Fatalf("execution %+v", cfg.Execution)
	}
}
