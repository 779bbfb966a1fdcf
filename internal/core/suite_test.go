package core

import (
	"context"
	"errors"
	"testing"

	"github.com/3cpo-dev/ldbench/internal/platform"
	"github.com/3cpo-dev/ldbench/pkg/api"
)

func checkPlatform(t *testing.T) *MockPlatform {
	t.Helper()
	m := NewMockPlatform()
	m.AddProject(DefaultProject)
	m.AddFile(platform.File{ID: DefaultTestDataDirID, Name: DefaultTestDataDir, Project: DefaultProject, Type: "folder"})
	names := map[string]bool{}
	for _, c := range BuiltinAppChecks("") {
		for _, n := range c.InputFiles {
			names[n] = true
		}
	}
	for n := range names {
		m.AddFile(platform.File{ID: "in-" + n, Name: n, Parent: DefaultTestDataDirID, Project: DefaultProject})
	}
	return m
}

func newFixture(t *testing.T, m *MockPlatform, keep bool) *Fixture {
	t.Helper()
	f, err := NewFixture(context.Background(), m, FixtureConfig{
		TestDataDirID: DefaultTestDataDirID,
		Wait:          fastWait(),
		KeepOutputs:   keep,
	}, nopLogger())
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return f
}

func TestBuiltinChecksRegistry(t *testing.T) {
	r := NewCheckRegistry(BuiltinAppChecks("")...)
	names := r.Names()
	if len(names) != 3 || names[0] != "ld-index" || names[2] != "ld-set" {
		t.Fatalf("names %v", names)
	}
	c, err := r.Get("ld-pair")
	if err != nil || c.App != "amstilp/ld-compute-devel/ld-pair" || c.TaskName != "unittest_ld-pair" {
		t.Fatalf("ld-pair check %+v %v", c, err)
	}
	if _, err := r.Get("ld-unknown"); err == nil {
		t.Fatalf("expected error for unknown check")
	}
}

func TestFixtureResolvesTestDirByName(t *testing.T) {
	m := checkPlatform(t)
	f, err := NewFixture(context.Background(), m, FixtureConfig{}, nopLogger())
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	if f.TestDir.ID != DefaultTestDataDirID {
		t.Fatalf("test dir %+v", f.TestDir)
	}
}

func TestFixtureMissingProject(t *testing.T) {
	m := NewMockPlatform()
	_, err := NewFixture(context.Background(), m, FixtureConfig{}, nopLogger())
	if !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAppCheckPassesAndCleansUp(t *testing.T) {
	m := checkPlatform(t)
	check, _ := NewCheckRegistry(BuiltinAppChecks("")...).Get("ld-set")
	m.OnCreate(check.App, map[string]platform.File{"ld": {ID: "out-1", Name: "_1_unittest_ld.rds"}},
		api.TaskRunning, api.TaskCompleted)

	res := newFixture(t, m, false).Run(context.Background(), check)
	if !res.Passed() {
		t.Fatalf("expected pass: %s", res.Detail())
	}
	cfg := m.created[0]
	if !cfg.RunImmediately || cfg.Name != "unittest_ld-set" {
		t.Fatalf("submitted %+v", cfg)
	}
	if gds := cfg.Inputs["gds_file"].(platform.File); gds.ID != "in-1KG_phase3_subset.gds" {
		t.Fatalf("gds input %+v", gds)
	}
	if len(m.deleted) != 1 || m.deleted[0] != "out-1" {
		t.Fatalf("outputs not deleted: %v", m.deleted)
	}
}

func TestAppCheckKeepOutputs(t *testing.T) {
	m := checkPlatform(t)
	check := BuiltinAppChecks("")[0]
	m.OnCreate(check.App, map[string]platform.File{"ld": {ID: "out-1", Name: "unittest_ld.rds"}}, api.TaskCompleted)
	res := newFixture(t, m, true).Run(context.Background(), check)
	if !res.Passed() || len(m.deleted) != 0 {
		t.Fatalf("passed=%v deleted=%v", res.Passed(), m.deleted)
	}
}

func TestAppCheckFailedTask(t *testing.T) {
	m := checkPlatform(t)
	check := BuiltinAppChecks("")[1]
	m.OnCreate(check.App, nil, api.TaskFailed)
	res := newFixture(t, m, false).Run(context.Background(), check)
	if res.Passed() || res.Verification.NamingChecked {
		t.Fatalf("failed task should not pass or check naming")
	}
	if res.Status() != "FAILED" {
		t.Fatalf("status %q", res.Status())
	}
}

func TestAppCheckSubmissionFailure(t *testing.T) {
	m := checkPlatform(t)
	check := BuiltinAppChecks("")[2]
	m.failApps[check.App] = errors.New("no such app")
	res := newFixture(t, m, false).Run(context.Background(), check)
	if res.Passed() || res.Task != nil || res.Err == nil {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunAllRunsEveryCheck(t *testing.T) {
	m := checkPlatform(t)
	for _, c := range BuiltinAppChecks("") {
		m.OnCreate(c.App, map[string]platform.File{"ld": {ID: "out-" + c.Name, Name: "unittest_ld.rds"}}, api.TaskCompleted)
	}
	results := newFixture(t, m, false).RunAll(context.Background(), BuiltinAppChecks(""))
	for _, r := range results {
		if !r.Passed() {
			t.Fatalf("%s failed: %s", r.Check.Name, r.Detail())
		}
	}
	if len(m.deleted) != 3 {
		t.Fatalf("expected 3 deletions, got %v", m.deleted)
	}
}
