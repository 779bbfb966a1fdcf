package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// RunLog is a logger that writes to the console and to a per-run file.
type RunLog struct {
	Logger zerolog.Logger
	Path   string
	file   *os.File
}

// RunLogName returns "<timestamp>_<name>.log" for a run started at now.
func RunLogName(now time.Time, name string) string {
	return fmt.Sprintf("%s_%s.log", now.Format("2006_01_02_15_04_05"), name)
}

// OpenRunLog creates dir/<timestamp>_<name>.log and tees every event at or
// above level to it and to console.
func OpenRunLog(console io.Writer, dir, name string, level zerolog.Level, now time.Time) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, RunLogName(now, name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	fileOut := zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: "2006-01-02 15:04:05"}
	logger := zerolog.New(zerolog.MultiLevelWriter(console, fileOut)).
		Level(level).
		With().Timestamp().Str("run", name).Logger()
	return &RunLog{Logger: logger, Path: path, file: f}, nil
}

func (r *RunLog) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}
