package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultTasksFile  = "benchmark_tasks.tsv"
	DefaultReportFile = "benchmark_stats.tsv"
)

var (
	taskColumns   = []string{"task_id", "n_samples", "n_variants", "interruptible", "instance_type", "methods", "cpu", "task_name", "submit_error"}
	reportColumns = append(append([]string(nil), taskColumns...), "cost", "currency", "status", "duration")
)

func newTSVWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

func rowFields(r BenchmarkRow) []string {
	return []string{
		r.TaskID,
		r.NSamples,
		r.NVariants,
		strconv.FormatBool(r.Interruptible),
		r.InstanceType,
		strings.Join(r.Methods, ","),
		strconv.Itoa(r.CPU),
		r.TaskName,
		r.SubmitError,
	}
}

// WriteTasks writes rows as a tab-separated table with a header.
func WriteTasks(w io.Writer, rows []BenchmarkRow) error {
	cw := newTSVWriter(w)
	if err := cw.Write(taskColumns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(rowFields(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReport writes stats rows with the cost, status and duration columns.
func WriteReport(w io.Writer, rows []StatsRow) error {
	cw := newTSVWriter(w)
	if err := cw.Write(reportColumns); err != nil {
		return err
	}
	for _, r := range rows {
		duration := ""
		if r.DurationMinutes != nil {
			duration = strconv.Itoa(*r.DurationMinutes)
		}
		rec := append(rowFields(r.BenchmarkRow), r.Cost, r.Currency, r.Status, duration)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTasks parses a tasks table. It accepts files written by WriteTasks as
// well as pandas exports, which carry an unnamed leading index column,
// "True"/"False" booleans, "nan" for missing ids and list cells like
// "['r2', 'dprime']".
func ReadTasks(r io.Reader) ([]BenchmarkRow, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		if name = strings.TrimSpace(name); name != "" {
			col[name] = i
		}
	}
	for _, required := range []string{"task_id", "n_samples", "n_variants"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("tasks table: missing column %q", required)
		}
	}

	var rows []BenchmarkRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tasks table line %d: %w", line, err)
		}
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		row := BenchmarkRow{
			TaskID:       missingToEmpty(get("task_id")),
			NSamples:     get("n_samples"),
			NVariants:    get("n_variants"),
			InstanceType: get("instance_type"),
			Methods:      parseList(get("methods")),
			TaskName:     get("task_name"),
			SubmitError:  get("submit_error"),
		}
		if v := get("interruptible"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("tasks table line %d: interruptible %q: %w", line, v, err)
			}
			row.Interruptible = b
		}
		if v := get("cpu"); v != "" {
			cpu, err := parseInt(v)
			if err != nil {
				return nil, fmt.Errorf("tasks table line %d: cpu %q: %w", line, v, err)
			}
			row.CPU = cpu
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func missingToEmpty(v string) string {
	switch strings.ToLower(v) {
	case "nan", "none", "null":
		return ""
	}
	return v
}

// parseList accepts "r2,dprime" and Python list reprs like "['r2', 'dprime']".
func parseList(v string) []string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "[")
	v = strings.TrimSuffix(v, "]")
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.Trim(strings.TrimSpace(part), `'"`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// ReadTasksFile reads a tasks table from path.
func ReadTasksFile(path string) ([]BenchmarkRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTasks(f)
}

// WriteFileAtomic writes through a temp file in the same directory and
// renames it over path.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func WriteTasksFile(path string, rows []BenchmarkRow) error {
	return WriteFileAtomic(path, func(w io.Writer) error { return WriteTasks(w, rows) })
}

func WriteReportFile(path string, rows []StatsRow) error {
	return WriteFileAtomic(path, func(w io.Writer) error { return WriteReport(w, rows) })
}
