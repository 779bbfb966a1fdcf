package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/3cpo-dev/ldbench/internal/platform"
	"github.com/3cpo-dev/ldbench/pkg/api"
)

// Defaults for the platform app checks.
const (
	DefaultProject       = "amstilp/ld-compute-devel"
	DefaultTestDataDirID = "607887f4a7302d041ec4c9fc"
	DefaultTestDataDir   = "testdata"
	DefaultCheckPrefix   = "unittest"
)

// AppCheck runs one app on known test inputs and verifies its output.
// InputFiles maps app input ids to file names in the test data directory.
type AppCheck struct {
	Name       string
	App        string
	TaskName   string
	InputFiles map[string]string
	Params     map[string]any
	Expect     Expectation
}

// BuiltinAppChecks returns the checks for the ld-index, ld-pair and ld-set
// apps in project.
func BuiltinAppChecks(project string) []AppCheck {
	if project == "" {
		project = DefaultProject
	}
	params := func() map[string]any {
		return map[string]any{
			"ld_methods":    []string{"r2", "dprime", "r"},
			"output_prefix": DefaultCheckPrefix,
		}
	}
	expect := Expectation{Slot: "ld", Prefix: DefaultCheckPrefix, Suffix: "ld.rds"}
	return []AppCheck{
		{
			Name:     "ld-index",
			App:      project + "/ld-index",
			TaskName: "unittest_ld-index",
			InputFiles: map[string]string{
				"gds_file":                   "1KG_phase3_subset.gds",
				"index_variant_include_file": "variant_include_index_1.rds",
				"other_variant_include_file": "variant_include_index_2.rds",
				"sample_include_file":        "sample_include.rds",
			},
			Params: params(),
			Expect: expect,
		},
		{
			Name:     "ld-pair",
			App:      project + "/ld-pair",
			TaskName: "unittest_ld-pair",
			InputFiles: map[string]string{
				"gds_file":                    "1KG_phase3_subset.gds",
				"first_variant_include_file":  "variant_include_pair_1.rds",
				"second_variant_include_file": "variant_include_pair_2.rds",
				"sample_include_file":         "sample_include.rds",
			},
			Params: params(),
			Expect: expect,
		},
		{
			Name:     "ld-set",
			App:      project + "/ld-set",
			TaskName: "unittest_ld-set",
			InputFiles: map[string]string{
				"gds_file":             "1KG_phase3_subset.gds",
				"variant_include_file": "variant_include_set_1.rds",
				"sample_include_file":  "sample_include.rds",
			},
			Params: params(),
			Expect: expect,
		},
	}
}

// CheckRegistry holds app checks by name.
type CheckRegistry struct {
	checks map[string]AppCheck
}

func NewCheckRegistry(checks ...AppCheck) *CheckRegistry {
	r := &CheckRegistry{checks: map[string]AppCheck{}}
	for _, c := range checks {
		r.Register(c)
	}
	return r
}

func (r *CheckRegistry) Register(c AppCheck) {
	r.checks[c.Name] = c
}

func (r *CheckRegistry) Get(name string) (AppCheck, error) {
	c, ok := r.checks[name]
	if !ok {
		return AppCheck{}, fmt.Errorf("app check not registered: %s", name)
	}
	return c, nil
}

// Names returns the registered check names, sorted.
func (r *CheckRegistry) Names() []string {
	names := make([]string, 0, len(r.checks))
	for n := range r.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FixtureConfig selects the project and test data directory for checks.
// TestDataDirID wins over TestDataDirName when both are set.
type FixtureConfig struct {
	Project         string
	TestDataDirID   string
	TestDataDirName string
	Wait            WaitOptions
	KeepOutputs     bool
}

// Fixture is the shared setup for app checks: the project and the folder
// holding their input files.
type Fixture struct {
	platform  Platform
	submitter *Submitter
	cfg       FixtureConfig
	log       zerolog.Logger

	Project *platform.Project
	TestDir *platform.File
}

// NewFixture resolves the project and the test data directory.
func NewFixture(ctx context.Context, p Platform, cfg FixtureConfig, logger zerolog.Logger) (*Fixture, error) {
	if cfg.Project == "" {
		cfg.Project = DefaultProject
	}
	project, err := p.GetProject(ctx, cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("resolve project: %w", err)
	}
	var dir *platform.File
	if cfg.TestDataDirID != "" {
		dir, err = p.GetFile(ctx, cfg.TestDataDirID)
	} else {
		name := cfg.TestDataDirName
		if name == "" {
			name = DefaultTestDataDir
		}
		dir, err = p.FindFile(ctx, platform.FileQuery{Project: project.ID, Names: []string{name}})
	}
	if err != nil {
		return nil, fmt.Errorf("resolve test data directory: %w", err)
	}
	if dir.Type != "" && !dir.IsFolder() {
		return nil, fmt.Errorf("test data directory %s is a %s", dir, dir.Type)
	}
	logger.Info().Str("project", project.ID).Str("testdata", dir.String()).Msg("fixture ready")
	return &Fixture{
		platform:  p,
		submitter: NewSubmitter(p, logger),
		cfg:       cfg,
		log:       logger,
		Project:   project,
		TestDir:   dir,
	}, nil
}

// CheckResult is the outcome of one app check. Err is set when the check
// could not be run to completion (inputs, submission, polling).
type CheckResult struct {
	Check        AppCheck
	Task         *platform.Task
	Err          error
	Outcome      PollOutcome
	Verification Verification
	CleanupErr   error
}

func (r CheckResult) Passed() bool {
	return r.Err == nil && r.Outcome == OutcomeTerminal && r.Verification.Passed()
}

// Status is the last observed task status, or empty if none was created.
func (r CheckResult) Status() string {
	if r.Task == nil {
		return ""
	}
	return r.Task.Status.String()
}

// Detail summarises why a check failed.
func (r CheckResult) Detail() string {
	switch {
	case r.Err != nil:
		return r.Err.Error()
	case r.Outcome != OutcomeTerminal:
		return "task did not finish: " + r.Outcome.String()
	case r.Verification.Err() != nil:
		return r.Verification.Err().Error()
	}
	return ""
}

// ResolveInputs looks up each input file in the test data directory and
// merges in the scalar parameters.
func (f *Fixture) ResolveInputs(ctx context.Context, c AppCheck) (map[string]any, error) {
	inputs := make(map[string]any, len(c.InputFiles)+len(c.Params))
	for key, name := range c.InputFiles {
		file, err := f.platform.FindFile(ctx, platform.FileQuery{Parent: f.TestDir.ID, Names: []string{name}})
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", key, err)
		}
		inputs[key] = *file
	}
	for k, v := range c.Params {
		inputs[k] = v
	}
	return inputs, nil
}

// Run submits the check's task, waits for it and verifies status and output
// naming. Outputs are deleted afterwards unless KeepOutputs is set.
func (f *Fixture) Run(ctx context.Context, c AppCheck) CheckResult {
	res := CheckResult{Check: c}
	log := f.log.With().Str("app", c.App).Logger()

	inputs, err := f.ResolveInputs(ctx, c)
	if err != nil {
		res.Err = err
		return res
	}
	log.Info().Interface("inputs", DescribeInputs(inputs)).Msgf("Starting %s test", c.App)

	sub := f.submitter.Submit(ctx, api.TaskConfig{
		Name:           c.TaskName,
		Project:        f.Project.ID,
		App:            c.App,
		Inputs:         inputs,
		RunImmediately: true,
	})
	if !sub.Submitted() {
		log.Error().Msgf("unable to run %s task", c.App)
		res.Err = sub.Err
		return res
	}
	res.Task = sub.Task

	wait := f.cfg.Wait
	wait.Logger = log
	res.Outcome, err = Wait(ctx, f.platform, wait, res.Task)
	if err != nil {
		res.Err = err
		return res
	}

	log.Info().Str("task_id", res.Task.ID).Str("status", res.Task.Status.String()).Msgf("Checking %s status", c.App)
	res.Verification = Verify(res.Task, c.Expect)
	if res.Verification.NamingChecked {
		verdict := "passed"
		if res.Verification.Naming != nil {
			verdict = "failed"
		}
		log.Info().Str("task_id", res.Task.ID).Msgf("#output_test %s", verdict)
	}

	if !f.cfg.KeepOutputs {
		res.CleanupErr = f.deleteOutputs(ctx, res.Task)
	}
	return res
}

func (f *Fixture) deleteOutputs(ctx context.Context, t *platform.Task) error {
	var errs []error
	for _, out := range t.OutputFiles() {
		f.log.Info().Str("task_id", t.ID).Msgf("Delete output file %s", out)
		if err := f.platform.DeleteFile(ctx, out.ID); err != nil && !platform.IsNotFound(err) {
			errs = append(errs, fmt.Errorf("delete %s: %w", out, err))
		}
	}
	return errors.Join(errs...)
}

// RunAll runs checks one after another.
func (f *Fixture) RunAll(ctx context.Context, checks []AppCheck) []CheckResult {
	results := make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		if ctx.Err() != nil {
			results = append(results, CheckResult{Check: c, Err: ctx.Err()})
			continue
		}
		results = append(results, f.Run(ctx, c))
	}
	return results
}
