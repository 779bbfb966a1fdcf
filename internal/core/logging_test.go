package core

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunLogName(t *testing.T) {
	at := time.Date(2021, 4, 15, 10, 22, 33, 0, time.UTC)
	if got := RunLogName(at, "ld-pair"); got != "2021_04_15_10_22_33_ld-pair.log" {
		t.Fatalf("name %q", got)
	}
}

func TestRunLogTeesToFile(t *testing.T) {
	var console bytes.Buffer
	rl, err := OpenRunLog(&console, t.TempDir(), "bench", zerolog.InfoLevel, time.Now())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rl.Logger.Info().Str("task_id", "t1").Msg("#task_id t1")
	rl.Logger.Debug().Msg("hidden")
	if err := rl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(rl.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "#task_id t1") {
		t.Fatalf("file missing event: %q", data)
	}
	if strings.Contains(string(data), "hidden") || strings.Contains(console.String(), "hidden") {
		t.Fatalf("debug event should be filtered")
	}
	if !strings.Contains(console.String(), `"task_id":"t1"`) {
		t.Fatalf("console missing event: %q", console.String())
	}
}
