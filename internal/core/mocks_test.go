package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/3cpo-dev/ldbench/internal/platform"
	"github.com/3cpo-dev/ldbench/pkg/api"
)

func nopLogger() zerolog.Logger { return zerolog.Nop() }

// MockPlatform is an in-memory platform. Tasks advance one status per
// GetTask call along their script; CreateTask fails for apps in failApps
// and for task names in failNames.
type MockPlatform struct {
	mu        sync.Mutex
	projects  map[string]*platform.Project
	files     []platform.File
	tasks     map[string]*platform.Task
	scripts   map[string][]api.TaskStatus
	outputs   map[string]map[string]platform.File
	failApps  map[string]error
	failNames map[string]error
	created   []api.TaskConfig
	deleted   []string
	gets      int
	nextID    int
}

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		projects:  map[string]*platform.Project{},
		tasks:     map[string]*platform.Task{},
		scripts:   map[string][]api.TaskStatus{},
		outputs:   map[string]map[string]platform.File{},
		failApps:  map[string]error{},
		failNames: map[string]error{},
	}
}

func (m *MockPlatform) AddProject(id string) {
	m.projects[id] = &platform.Project{ID: id, Name: id}
}

func (m *MockPlatform) AddFile(f platform.File) { m.files = append(m.files, f) }

// AddTask registers an existing task with a status script.
func (m *MockPlatform) AddTask(t platform.Task, script ...api.TaskStatus) {
	cp := t
	m.tasks[t.ID] = &cp
	m.scripts[t.ID] = script
}

func (m *MockPlatform) GetProject(ctx context.Context, id string) (*platform.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, &platform.NotFoundError{Kind: "project", Query: id}
	}
	return p, nil
}

func (m *MockPlatform) GetFile(ctx context.Context, id string) (*platform.File, error) {
	for _, f := range m.files {
		if f.ID == id {
			cp := f
			return &cp, nil
		}
	}
	return nil, &platform.NotFoundError{Kind: "file", Query: id}
}

func (m *MockPlatform) FindFile(ctx context.Context, q platform.FileQuery) (*platform.File, error) {
	var hits []platform.File
	for _, f := range m.files {
		if q.Parent != "" && f.Parent != q.Parent {
			continue
		}
		if q.Parent == "" && q.Project != "" && f.Project != q.Project {
			continue
		}
		match := len(q.Names) == 0
		for _, n := range q.Names {
			if f.Name == n {
				match = true
			}
		}
		if match {
			hits = append(hits, f)
		}
	}
	switch len(hits) {
	case 0:
		return nil, &platform.NotFoundError{Kind: "file", Query: fmt.Sprint(q.Names)}
	case 1:
		return &hits[0], nil
	}
	return nil, &platform.AmbiguousError{Kind: "file", Query: fmt.Sprint(q.Names), IDs: []string{hits[0].ID, hits[1].ID}}
}

func (m *MockPlatform) DeleteFile(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

// OnCreate sets the outputs and status script given to tasks of an app.
func (m *MockPlatform) OnCreate(app string, outputs map[string]platform.File, script ...api.TaskStatus) {
	m.outputs[app] = outputs
	m.scripts["app:"+app] = script
}

func (m *MockPlatform) CreateTask(ctx context.Context, cfg api.TaskConfig) (*platform.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, cfg)
	if err := m.failApps[cfg.App]; err != nil {
		return nil, err
	}
	if err := m.failNames[cfg.Name]; err != nil {
		return nil, err
	}
	m.nextID++
	id := fmt.Sprintf("task-%d", m.nextID)
	status := api.TaskDraft
	if cfg.RunImmediately {
		status = api.TaskQueued
	}
	t := &platform.Task{ID: id, Name: cfg.Name, Project: cfg.Project, App: cfg.App, Status: status}
	m.tasks[id] = t
	m.scripts[id] = m.scripts["app:"+cfg.App]
	cp := *t
	return &cp, nil
}

func (m *MockPlatform) RunTask(ctx context.Context, id string) (*platform.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, &platform.NotFoundError{Kind: "task", Query: id}
	}
	t.Status = api.TaskQueued
	cp := *t
	return &cp, nil
}

func (m *MockPlatform) GetTask(ctx context.Context, id string) (*platform.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	t, ok := m.tasks[id]
	if !ok {
		return nil, &platform.NotFoundError{Kind: "task", Query: id}
	}
	if script := m.scripts[id]; len(script) > 0 {
		t.Status = script[0]
		m.scripts[id] = script[1:]
		if t.Status == api.TaskCompleted && m.outputs[t.App] != nil {
			t.Outputs = m.outputs[t.App]
		}
	}
	cp := *t
	return &cp, nil
}

func (m *MockPlatform) Gets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

var _ Platform = (*MockPlatform)(nil)
