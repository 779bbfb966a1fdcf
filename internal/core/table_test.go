package core

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestTasksTableRoundTrip(t *testing.T) {
	rows := []BenchmarkRow{
		{TaskID: "t1", NSamples: "10k", NVariants: "1000", Interruptible: true, InstanceType: "c4.2xlarge", Methods: []string{"r2"}, CPU: 8, TaskName: "api-benchmark - 10k - 1000 - c4.2xlarge - 8"},
		{NSamples: "50k", NVariants: "20000", InstanceType: "c4.8xlarge", Methods: []string{"r2", "dprime"}, CPU: 36, TaskName: "n", SubmitError: "quota exceeded"},
	}
	path := filepath.Join(t.TempDir(), DefaultTasksFile)
	if err := WriteTasksFile(path, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadTasksFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, rows) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, rows)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %d entries", len(entries))
	}
}

func TestReadTasksPandasExport(t *testing.T) {
	in := "\ttask_id\tn_samples\tn_variants\tinterruptible\tinstance_type\tmethods\tcpu\ttask_name\n" +
		"0\tabc123\t10k\t1000\tTrue\tc4.2xlarge\t['r2']\t8\tapi-benchmark - 10k - 1000 - c4.2xlarge - 8\n" +
		"1\t\t50k\t20000\tFalse\tc4.8xlarge\t['r2', 'dprime']\t36.0\tx\n"
	rows, err := ReadTasks(strings.NewReader(in))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].TaskID != "abc123" || !rows[0].Interruptible || rows[0].CPU != 8 {
		t.Fatalf("row 0 %+v", rows[0])
	}
	if rows[1].TaskID != "" || rows[1].Interruptible || rows[1].CPU != 36 {
		t.Fatalf("row 1 %+v", rows[1])
	}
	if !reflect.DeepEqual(rows[1].Methods, []string{"r2", "dprime"}) {
		t.Fatalf("methods %q", rows[1].Methods)
	}
}

func TestReadTasksMissingColumn(t *testing.T) {
	if _, err := ReadTasks(strings.NewReader("n_samples\tn_variants\n10k\t1000\n")); err == nil {
		t.Fatalf("expected missing task_id error")
	}
}

func TestWriteReport(t *testing.T) {
	minutes := 2
	var buf bytes.Buffer
	err := WriteReport(&buf, []StatsRow{{
		BenchmarkRow:    BenchmarkRow{TaskID: "t1", NSamples: "10k", NVariants: "1000", Methods: []string{"r2"}, CPU: 8},
		Cost:            "1.25",
		Currency:        "USD",
		Status:          "COMPLETED",
		DurationMinutes: &minutes,
	}, {
		BenchmarkRow: BenchmarkRow{NSamples: "50k", NVariants: "1000"},
		Status:       StatusNotSubmitted,
	}})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %q", buf.String())
	}
	if !strings.HasSuffix(lines[0], "cost\tcurrency\tstatus\tduration") {
		t.Fatalf("header %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "1.25\tUSD\tCOMPLETED\t2") {
		t.Fatalf("row %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "\tNOT_SUBMITTED\t") {
		t.Fatalf("row %q", lines[2])
	}
}
