package core

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/3cpo-dev/ldbench/internal/platform"
)

// Placeholder statuses for rows without a live task.
const (
	StatusNotSubmitted = "NOT_SUBMITTED"
	StatusNotFound     = "NOT_FOUND"
)

// StatsRow is a benchmark row joined with the task's cost, status and
// wall-clock duration.
type StatsRow struct {
	BenchmarkRow
	Cost            string
	Currency        string
	Status          string
	DurationMinutes *int
}

// DurationMinutes converts a millisecond duration to whole minutes,
// rounding halves to even.
func DurationMinutes(ms int64) int {
	return int(math.RoundToEven(float64(ms) / 60000))
}

// StatsFromTask fills the cost, status and duration columns from a task.
func StatsFromTask(row BenchmarkRow, t *platform.Task) StatsRow {
	s := StatsRow{BenchmarkRow: row, Status: t.Status.String()}
	if t.Price != nil {
		s.Cost = string(t.Price.Amount)
		s.Currency = t.Price.Currency
	}
	if t.ExecutionStatus != nil {
		m := DurationMinutes(t.ExecutionStatus.DurationMS)
		s.DurationMinutes = &m
	}
	return s
}

type StatsCollector struct {
	tasks TaskGetter
	log   zerolog.Logger
}

func NewStatsCollector(tasks TaskGetter, logger zerolog.Logger) *StatsCollector {
	return &StatsCollector{tasks: tasks, log: logger}
}

// Collect fetches every row's task. Rows without an id are reported as
// NOT_SUBMITTED and tasks that no longer exist as NOT_FOUND; any other
// lookup error stops collection.
func (c *StatsCollector) Collect(ctx context.Context, rows []BenchmarkRow) ([]StatsRow, error) {
	out := make([]StatsRow, 0, len(rows))
	for _, r := range rows {
		if r.TaskID == "" {
			out = append(out, StatsRow{BenchmarkRow: r, Status: StatusNotSubmitted})
			continue
		}
		t, err := c.tasks.GetTask(ctx, r.TaskID)
		if platform.IsNotFound(err) {
			c.log.Warn().Str("task_id", r.TaskID).Str("name", r.TaskName).Msg("task not found")
			out = append(out, StatsRow{BenchmarkRow: r, Status: StatusNotFound})
			continue
		}
		if err != nil {
			return out, fmt.Errorf("stats for task %s: %w", r.TaskID, err)
		}
		s := StatsFromTask(r, t)
		c.log.Debug().Str("task_id", r.TaskID).Str("status", s.Status).Str("cost", s.Cost).Msg("collected")
		out = append(out, s)
	}
	return out, nil
}
