package core

import (
	"fmt"
	"strconv"
)

const DefaultTaskNamePrefix = "api-benchmark"

// BenchmarkRow is one benchmark task. TaskID is filled in after submission
// and stays empty when submission failed; SubmitError then holds the reason.
type BenchmarkRow struct {
	TaskID        string
	NSamples      string
	NVariants     string
	Interruptible bool
	InstanceType  string
	Methods       []string
	CPU           int
	TaskName      string
	SubmitError   string
}

// Grid lists the values of each benchmark dimension.
type Grid struct {
	NSamples      []string   `yaml:"n_samples"`
	NVariants     []string   `yaml:"n_variants"`
	Interruptible []bool     `yaml:"interruptible"`
	InstanceTypes []string   `yaml:"instance_type"`
	Methods       [][]string `yaml:"methods"`
	CPUs          []int      `yaml:"cpu"`
}

// Size is the number of standard rows the grid expands to.
func (g Grid) Size() int {
	return len(g.NSamples) * len(g.NVariants) * len(g.Interruptible) *
		len(g.InstanceTypes) * len(g.Methods) * len(g.CPUs)
}

// Rows expands the cartesian product of the dimensions. The first
// dimension varies slowest: n_samples, n_variants, interruptible,
// instance_type, methods, cpu. Task names are left empty.
func (g Grid) Rows() []BenchmarkRow {
	rows := make([]BenchmarkRow, 0, g.Size())
	for _, ns := range g.NSamples {
		for _, nv := range g.NVariants {
			for _, intr := range g.Interruptible {
				for _, it := range g.InstanceTypes {
					for _, m := range g.Methods {
						for _, cpu := range g.CPUs {
							rows = append(rows, BenchmarkRow{
								NSamples:      ns,
								NVariants:     nv,
								Interruptible: intr,
								InstanceType:  it,
								Methods:       append([]string(nil), m...),
								CPU:           cpu,
							})
						}
					}
				}
			}
		}
	}
	return rows
}

// TaskName renders "<prefix> - <n_samples> - <n_variants> - <instance_type> - <cpu>".
func TaskName(prefix string, r BenchmarkRow) string {
	if prefix == "" {
		prefix = DefaultTaskNamePrefix
	}
	return fmt.Sprintf("%s - %s - %s - %s - %s", prefix, r.NSamples, r.NVariants, r.InstanceType, strconv.Itoa(r.CPU))
}

// ExpandRows returns the grid rows followed by extra, all named with prefix.
func ExpandRows(g Grid, extra []BenchmarkRow, prefix string) []BenchmarkRow {
	rows := g.Rows()
	for _, r := range extra {
		r.Methods = append([]string(nil), r.Methods...)
		rows = append(rows, r)
	}
	for i := range rows {
		rows[i].TaskName = TaskName(prefix, rows[i])
	}
	return rows
}
