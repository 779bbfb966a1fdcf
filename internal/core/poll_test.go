package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/3cpo-dev/ldbench/internal/platform"
	"github.com/3cpo-dev/ldbench/pkg/api"
)

func fastWait() WaitOptions {
	return WaitOptions{Interval: time.Millisecond, Logger: nopLogger()}
}

func TestWaitAlreadyTerminalDoesNotPoll(t *testing.T) {
	m := NewMockPlatform()
	task := &platform.Task{ID: "t1", Status: api.TaskCompleted}
	opts := WaitOptions{Interval: time.Hour}
	outcome, err := Wait(context.Background(), m, opts, task)
	if err != nil || outcome != OutcomeTerminal {
		t.Fatalf("outcome %v err %v", outcome, err)
	}
	if m.Gets() != 0 {
		t.Fatalf("expected no refresh, got %d", m.Gets())
	}
}

func TestWaitRefreshesUntilTerminal(t *testing.T) {
	m := NewMockPlatform()
	m.AddTask(platform.Task{ID: "a"}, api.TaskRunning, api.TaskRunning, api.TaskCompleted)
	m.AddTask(platform.Task{ID: "b"}, api.TaskFailed)
	a := &platform.Task{ID: "a", Status: api.TaskQueued}
	b := &platform.Task{ID: "b", Status: api.TaskQueued}

	outcome, err := Wait(context.Background(), m, fastWait(), a, b)
	if err != nil || outcome != OutcomeTerminal {
		t.Fatalf("outcome %v err %v", outcome, err)
	}
	if a.Status != api.TaskCompleted || b.Status != api.TaskFailed {
		t.Fatalf("statuses %s %s", a.Status, b.Status)
	}
	// b is terminal after the first round and is not refreshed again
	if m.Gets() != 4 {
		t.Fatalf("expected 4 refreshes, got %d", m.Gets())
	}
}

func TestWaitTimesOut(t *testing.T) {
	m := NewMockPlatform()
	m.AddTask(platform.Task{ID: "slow", Status: api.TaskRunning})
	task := &platform.Task{ID: "slow", Status: api.TaskRunning}
	opts := fastWait()
	opts.Timeout = 20 * time.Millisecond

	outcome, err := Wait(context.Background(), m, opts, task)
	if outcome != OutcomeTimedOut || !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected timeout, got %v %v", outcome, err)
	}
}

func TestWaitCancelled(t *testing.T) {
	m := NewMockPlatform()
	task := &platform.Task{ID: "t", Status: api.TaskRunning}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := Wait(ctx, m, WaitOptions{Interval: time.Hour}, task)
	if outcome != OutcomeCancelled || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v %v", outcome, err)
	}
}

func TestWaitPropagatesRefreshError(t *testing.T) {
	m := NewMockPlatform()
	task := &platform.Task{ID: "deleted", Status: api.TaskRunning}
	_, err := Wait(context.Background(), m, fastWait(), task)
	if !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPollOutcomeString(t *testing.T) {
	if OutcomeTimedOut.String() != "timed_out" || PollOutcome(9).String() != "PollOutcome(9)" {
		t.Fatalf("unexpected strings")
	}
}
