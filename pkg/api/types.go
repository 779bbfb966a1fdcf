// Package api holds the task types shared by the platform client and the
// benchmark and check workflows.
package api

// TaskStatus is the lifecycle state the platform reports for a task.
type TaskStatus string

const (
	TaskDraft     TaskStatus = "DRAFT"
	TaskQueued    TaskStatus = "QUEUED"
	TaskRunning   TaskStatus = "RUNNING"
	TaskAborting  TaskStatus = "ABORTING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskAborted   TaskStatus = "ABORTED"
	TaskFailed    TaskStatus = "FAILED"
)

func (s TaskStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions are expected.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskAborted, TaskFailed:
		return true
	}
	return false
}

type ExecutionSettings struct {
	InstanceType string `json:"instance_type,omitempty" yaml:"instance_type"`
	// Interruptible is nil when the platform default should apply.
	Interruptible *bool `json:"interruptible,omitempty" yaml:"interruptible"`
	CPU           int   `json:"cpu,omitempty" yaml:"cpu"`
}

// TaskConfig describes a task before it is created on the platform.
// Inputs values may be scalars, string lists, or file handles.
type TaskConfig struct {
	Name           string             `json:"name" yaml:"name"`
	Project        string             `json:"project" yaml:"project"`
	App            string             `json:"app" yaml:"app"`
	Inputs         map[string]any     `json:"inputs" yaml:"inputs"`
	RunImmediately bool               `json:"run" yaml:"run"`
	Execution      *ExecutionSettings `json:"execution_settings,omitempty" yaml:"execution_settings"`
}
