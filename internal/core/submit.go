package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/3cpo-dev/ldbench/internal/platform"
	"github.com/3cpo-dev/ldbench/pkg/api"
)

// SubmitResult is the outcome of creating one task. Exactly one of Task and
// Err is set.
type SubmitResult struct {
	Config api.TaskConfig
	Task   *platform.Task
	Err    error
}

func (r SubmitResult) Submitted() bool { return r.Err == nil && r.Task != nil }

// TaskID is empty for failed submissions.
func (r SubmitResult) TaskID() string {
	if !r.Submitted() {
		return ""
	}
	return r.Task.ID
}

type Submitter struct {
	creator TaskCreator
	log     zerolog.Logger
}

func NewSubmitter(c TaskCreator, logger zerolog.Logger) *Submitter {
	return &Submitter{creator: c, log: logger}
}

// Submit creates one task. Failures are logged with the app and inputs and
// returned in the result rather than as an error.
func (s *Submitter) Submit(ctx context.Context, cfg api.TaskConfig) SubmitResult {
	task, err := s.creator.CreateTask(ctx, cfg)
	if err != nil {
		s.log.Error().Err(err).
			Str("name", cfg.Name).
			Str("app", cfg.App).
			Interface("inputs", DescribeInputs(cfg.Inputs)).
			Msg("task submission failed")
		return SubmitResult{Config: cfg, Err: err}
	}
	s.log.Info().Str("task_id", task.ID).Str("name", cfg.Name).Msgf("#task_id %s", task.ID)
	return SubmitResult{Config: cfg, Task: task}
}

// SubmitAll submits cfgs in order and keeps going after failures. Once ctx
// is cancelled the remaining configs are reported with the context error.
func (s *Submitter) SubmitAll(ctx context.Context, cfgs []api.TaskConfig) []SubmitResult {
	results := make([]SubmitResult, 0, len(cfgs))
	for _, cfg := range cfgs {
		if err := ctx.Err(); err != nil {
			results = append(results, SubmitResult{Config: cfg, Err: err})
			continue
		}
		results = append(results, s.Submit(ctx, cfg))
	}
	return results
}

// DescribeInputs renders task inputs for logs, showing files by name and id.
func DescribeInputs(inputs map[string]any) map[string]string {
	out := make(map[string]string, len(inputs))
	for k, v := range inputs {
		switch val := v.(type) {
		case platform.File:
			out[k] = val.String()
		case *platform.File:
			out[k] = val.String()
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

