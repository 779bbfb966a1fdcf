package core

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/3cpo-dev/ldbench/internal/platform"
	"github.com/3cpo-dev/ldbench/pkg/api"
)

//go:embed default_plan.yaml
var defaultPlanYAML []byte

// Plan describes a benchmark campaign: which app to run in which project,
// the input files behind each sample/variant key and the grid to expand.
type Plan struct {
	Project        string            `yaml:"project"`
	App            string            `yaml:"app"`
	OutputPrefix   string            `yaml:"output_prefix"`
	TaskNamePrefix string            `yaml:"task_name_prefix"`
	SampleFiles    map[string]string `yaml:"sample_files"`
	VariantFiles   map[string]string `yaml:"variant_files"`
	Grid           Grid              `yaml:"grid"`
	Extra          []ExtraRow        `yaml:"extra"`
}

// ExtraRow is a hand-picked row appended after the grid.
type ExtraRow struct {
	NSamples      string   `yaml:"n_samples"`
	NVariants     string   `yaml:"n_variants"`
	Interruptible bool     `yaml:"interruptible"`
	InstanceType  string   `yaml:"instance_type"`
	CPU           int      `yaml:"cpu"`
	Methods       []string `yaml:"methods"`
}

// ValidationError reports an invalid plan field.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s=%s: %s", e.Field, e.Value, e.Message)
}

// DefaultPlan returns the built-in chromosome 22 benchmark.
func DefaultPlan() (Plan, error) { return parsePlan(defaultPlanYAML) }

// LoadPlan reads a plan file; an empty path selects DefaultPlan.
func LoadPlan(path string) (Plan, error) {
	if path == "" {
		return DefaultPlan()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan: %w", err)
	}
	return parsePlan(b)
}

func parsePlan(b []byte) (Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Plan{}, fmt.Errorf("parse plan: %w", err)
	}
	if p.TaskNamePrefix == "" {
		p.TaskNamePrefix = DefaultTaskNamePrefix
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Validate checks required fields and that every row references a known
// sample and variant key.
func (p Plan) Validate() error {
	var errs []error
	if p.Project == "" {
		errs = append(errs, ValidationError{Field: "project", Message: "project is required"})
	} else if strings.Count(p.Project, "/") != 1 {
		errs = append(errs, ValidationError{Field: "project", Value: p.Project, Message: "expected <owner>/<project>"})
	}
	if p.App == "" {
		errs = append(errs, ValidationError{Field: "app", Message: "app is required"})
	}
	if p.OutputPrefix == "" {
		errs = append(errs, ValidationError{Field: "output_prefix", Message: "output prefix is required"})
	}
	for _, r := range p.Rows() {
		if _, ok := p.SampleFiles[r.NSamples]; !ok {
			errs = append(errs, ValidationError{Field: "n_samples", Value: r.NSamples, Message: "no sample file for key"})
		}
		if _, ok := p.VariantFiles[r.NVariants]; !ok {
			errs = append(errs, ValidationError{Field: "n_variants", Value: r.NVariants, Message: "no variant file for key"})
		}
		if r.CPU <= 0 {
			errs = append(errs, ValidationError{Field: "cpu", Value: fmt.Sprint(r.CPU), Message: "cpu must be positive"})
		}
		if len(r.Methods) == 0 {
			errs = append(errs, ValidationError{Field: "methods", Value: r.TaskName, Message: "at least one ld method is required"})
		}
	}
	return errors.Join(dedupe(errs)...)
}

func dedupe(errs []error) []error {
	seen := map[string]bool{}
	var out []error
	for _, e := range errs {
		if seen[e.Error()] {
			continue
		}
		seen[e.Error()] = true
		out = append(out, e)
	}
	return out
}

// Rows expands the grid and the extra rows, in that order, with task names.
func (p Plan) Rows() []BenchmarkRow {
	extra := make([]BenchmarkRow, 0, len(p.Extra))
	for _, e := range p.Extra {
		extra = append(extra, BenchmarkRow{
			NSamples:      e.NSamples,
			NVariants:     e.NVariants,
			Interruptible: e.Interruptible,
			InstanceType:  e.InstanceType,
			Methods:       e.Methods,
			CPU:           e.CPU,
		})
	}
	return ExpandRows(p.Grid, extra, p.TaskNamePrefix)
}

// PlanFiles holds the resolved remote files keyed like the plan.
type PlanFiles struct {
	Samples  map[string]platform.File
	Variants map[string]platform.File
}

// TaskConfig builds the submission for one row.
func (p Plan) TaskConfig(r BenchmarkRow, files PlanFiles) api.TaskConfig {
	interruptible := r.Interruptible
	return api.TaskConfig{
		Name:    r.TaskName,
		Project: p.Project,
		App:     p.App,
		Inputs: map[string]any{
			"gds_file":             files.Samples[r.NSamples],
			"variant_include_file": files.Variants[r.NVariants],
			"ld_methods":           append([]string(nil), r.Methods...),
			"output_prefix":        p.OutputPrefix,
			"cpu":                  r.CPU,
		},
		RunImmediately: true,
		Execution: &api.ExecutionSettings{
			InstanceType:  r.InstanceType,
			Interruptible: &interruptible,
			CPU:           r.CPU,
		},
	}
}
