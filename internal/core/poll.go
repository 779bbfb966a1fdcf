package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/3cpo-dev/ldbench/internal/platform"
)

const DefaultPollInterval = 30 * time.Second

var ErrTimedOut = errors.New("timed out waiting for tasks")

// PollOutcome reports how a wait ended.
type PollOutcome int

const (
	OutcomeTerminal PollOutcome = iota
	OutcomeTimedOut
	OutcomeCancelled
)

func (o PollOutcome) String() string {
	switch o {
	case OutcomeTerminal:
		return "terminal"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("PollOutcome(%d)", int(o))
}

// WaitOptions configures Wait. A zero Timeout waits indefinitely.
type WaitOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// AllTerminal reports whether every task has reached a terminal status.
func AllTerminal(tasks []*platform.Task) bool {
	for _, t := range tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Wait refreshes tasks in place every opts.Interval until all of them are
// terminal, the timeout elapses or ctx is cancelled. Tasks that are already
// terminal when Wait is called cause no sleep at all.
func Wait(ctx context.Context, g TaskGetter, opts WaitOptions, tasks ...*platform.Task) (PollOutcome, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for !AllTerminal(tasks) {
		tick := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			tick.Stop()
			return OutcomeCancelled, ctx.Err()
		case <-deadline:
			tick.Stop()
			return OutcomeTimedOut, ErrTimedOut
		case <-tick.C:
		}
		for _, t := range tasks {
			if t.Status.IsTerminal() {
				continue
			}
			fresh, err := g.GetTask(ctx, t.ID)
			if err != nil {
				if ctx.Err() != nil {
					return OutcomeCancelled, ctx.Err()
				}
				return OutcomeTerminal, fmt.Errorf("refresh task %s: %w", t.ID, err)
			}
			*t = *fresh
			opts.Logger.Debug().Str("task_id", t.ID).Str("status", t.Status.String()).Msg("polled")
		}
	}
	return OutcomeTerminal, nil
}
