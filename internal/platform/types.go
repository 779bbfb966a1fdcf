package platform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/3cpo-dev/ldbench/pkg/api"
)

// Project is a platform project, identified as "<owner>/<name>".
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	BillingID   string `json:"billing_group,omitempty"`
}

// File is a read-only handle to a remote file or folder.
type File struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Project string `json:"project,omitempty"`
	Parent  string `json:"parent,omitempty"`
	Type    string `json:"type,omitempty"`
	Size    int64  `json:"size,omitempty"`
}

func (f File) IsFolder() bool { return f.Type == "folder" }

func (f File) String() string { return fmt.Sprintf("%s (%s)", f.Name, f.ID) }

// FileQuery filters a file listing. Project and Parent are mutually
// exclusive on the platform; Parent wins when both are set.
type FileQuery struct {
	Project string
	Parent  string
	Names   []string
}

// Amount is a price amount. The platform sends it as a decimal string but
// older responses use a bare number, so both are accepted.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("price amount: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// Float returns the amount as a float64; an empty amount is zero.
func (a Amount) Float() (float64, error) {
	if a == "" {
		return 0, nil
	}
	return strconv.ParseFloat(string(a), 64)
}

type Price struct {
	Currency string `json:"currency"`
	Amount   Amount `json:"amount"`
}

type ExecutionStatus struct {
	Message    string `json:"message,omitempty"`
	Queued     int    `json:"queued"`
	Running    int    `json:"running"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Aborted    int    `json:"aborted"`
	DurationMS int64  `json:"duration"`
}

// Task is a snapshot of a remote task. It only changes through a full
// refresh (Client.Reload), never field by field.
type Task struct {
	ID               string                     `json:"id"`
	Name             string                     `json:"name"`
	Project          string                     `json:"project"`
	App              string                     `json:"app"`
	Status           api.TaskStatus             `json:"status"`
	Price            *Price                     `json:"price,omitempty"`
	ExecutionStatus  *ExecutionStatus           `json:"execution_status,omitempty"`
	UseInterruptible *bool                      `json:"use_interruptible_instances,omitempty"`
	ExecutionConfig  map[string]any             `json:"execution_settings,omitempty"`
	Outputs          map[string]File            `json:"-"`
	OutputLists      map[string][]File          `json:"-"`
	RawOutputs       map[string]json.RawMessage `json:"outputs,omitempty"`
}

type fileValue struct {
	Class string `json:"class"`
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
}

func (v fileValue) file() File { return File{ID: v.Path, Name: v.Name, Type: "file"} }

// UnmarshalJSON splits the raw outputs into single-file and file-list slots.
// Non-file outputs stay available in RawOutputs.
func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = Task(a)
	t.Outputs = map[string]File{}
	t.OutputLists = map[string][]File{}
	for slot, raw := range t.RawOutputs {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		switch raw[0] {
		case '{':
			var v fileValue
			if err := json.Unmarshal(raw, &v); err == nil && v.Class == "File" {
				t.Outputs[slot] = v.file()
			}
		case '[':
			var vs []fileValue
			if err := json.Unmarshal(raw, &vs); err != nil {
				continue
			}
			var files []File
			for _, v := range vs {
				if v.Class == "File" {
					files = append(files, v.file())
				}
			}
			if len(files) > 0 {
				t.OutputLists[slot] = files
			}
		}
	}
	return nil
}

// OutputFiles returns every file the task produced, in no particular order.
func (t *Task) OutputFiles() []File {
	var files []File
	for _, f := range t.Outputs {
		files = append(files, f)
	}
	for _, fs := range t.OutputLists {
		files = append(files, fs...)
	}
	return files
}

type createTaskBody struct {
	Name              string         `json:"name"`
	Project           string         `json:"project"`
	App               string         `json:"app"`
	Inputs            map[string]any `json:"inputs"`
	ExecutionSettings map[string]any `json:"execution_settings,omitempty"`
	UseInterruptible  *bool          `json:"use_interruptible_instances,omitempty"`
}

func newCreateTaskBody(cfg api.TaskConfig) createTaskBody {
	body := createTaskBody{
		Name:    cfg.Name,
		Project: cfg.Project,
		App:     cfg.App,
		Inputs:  encodeInputs(cfg.Inputs),
	}
	if ex := cfg.Execution; ex != nil {
		if ex.InstanceType != "" {
			body.ExecutionSettings = map[string]any{"instance_type": ex.InstanceType}
		}
		body.UseInterruptible = ex.Interruptible
		// cpu is an app input, not an execution setting
		if _, ok := body.Inputs["cpu"]; !ok && ex.CPU > 0 {
			body.Inputs["cpu"] = ex.CPU
		}
	}
	return body
}

func encodeInputs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case File:
			out[k] = fileValue{Class: "File", Path: val.ID, Name: val.Name}
		case *File:
			out[k] = fileValue{Class: "File", Path: val.ID, Name: val.Name}
		case []File:
			vs := make([]fileValue, 0, len(val))
			for _, f := range val {
				vs = append(vs, fileValue{Class: "File", Path: f.ID, Name: f.Name})
			}
			out[k] = vs
		default:
			out[k] = v
		}
	}
	return out
}
