package core

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/3cpo-dev/ldbench/internal/platform"
	"github.com/3cpo-dev/ldbench/pkg/api"
)

// Check names used in CheckError.
const (
	CheckStatus     = "status"
	CheckOutput     = "output"
	CheckOutputName = "output_name"
)

// CheckError is a failed verification with the observed and expected
// values.
type CheckError struct {
	Check    string
	Task     string
	Expected string
	Actual   string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("task %s: %s check failed: expected %q, got %q", e.Task, e.Check, e.Expected, e.Actual)
}

// Expectation describes the output a task must produce: the file in Slot
// must be named "<Prefix>_<Suffix>". The platform prefixes duplicate names
// with "_<n>_" counters; those are ignored unless ExactName is set.
type Expectation struct {
	Slot      string `yaml:"slot"`
	Prefix    string `yaml:"prefix"`
	Suffix    string `yaml:"suffix"`
	ExactName bool   `yaml:"exact_name"`
}

func (e Expectation) ExpectedName() string { return e.Prefix + "_" + e.Suffix }

var counterPrefix = regexp.MustCompile(`^(_[0-9]+)+_`)

// NormalizeOutputName strips every leading "_<digits>_" de-duplication
// counter, so "_3_4_unittest_ld.rds" becomes "unittest_ld.rds".
func NormalizeOutputName(name string) string {
	return counterPrefix.ReplaceAllString(name, "")
}

// VerifyStatus fails unless the task completed.
func VerifyStatus(t *platform.Task) error {
	if t.Status != api.TaskCompleted {
		return &CheckError{Check: CheckStatus, Task: t.ID, Expected: api.TaskCompleted.String(), Actual: t.Status.String()}
	}
	return nil
}

// VerifyOutputName checks the file in exp.Slot against exp.ExpectedName().
func VerifyOutputName(t *platform.Task, exp Expectation) error {
	f, ok := t.Outputs[exp.Slot]
	if !ok {
		return &CheckError{Check: CheckOutput, Task: t.ID, Expected: exp.Slot, Actual: ""}
	}
	name := f.Name
	if !exp.ExactName {
		name = NormalizeOutputName(name)
	}
	if name != exp.ExpectedName() {
		return &CheckError{Check: CheckOutputName, Task: t.ID, Expected: exp.ExpectedName(), Actual: f.Name}
	}
	return nil
}

// Verification holds the result of each check. Naming is only evaluated
// for completed tasks.
type Verification struct {
	Status        error
	Naming        error
	NamingChecked bool
}

func (v Verification) Passed() bool { return v.Status == nil && v.NamingChecked && v.Naming == nil }

func (v Verification) Err() error { return errors.Join(v.Status, v.Naming) }

// Verify checks status first and output naming only when status passed.
func Verify(t *platform.Task, exp Expectation) Verification {
	v := Verification{Status: VerifyStatus(t)}
	if v.Status != nil {
		return v
	}
	v.NamingChecked = true
	v.Naming = VerifyOutputName(t, exp)
	return v
}
