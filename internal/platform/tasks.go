package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/3cpo-dev/ldbench/pkg/api"
)

// GetProject fetches a project by its "<owner>/<name>" id.
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	if err := c.doJSON(ctx, http.MethodGet, "/projects/"+id, nil, nil, &p); err != nil {
		return nil, notFound(err, "project", id)
	}
	return &p, nil
}

// CreateTask creates a task and, when cfg.RunImmediately is set, starts it
// in the same call.
func (c *Client) CreateTask(ctx context.Context, cfg api.TaskConfig) (*Task, error) {
	if cfg.Project == "" || cfg.App == "" {
		return nil, fmt.Errorf("create task %q: project and app are required", cfg.Name)
	}
	var params url.Values
	if cfg.RunImmediately {
		params = url.Values{"action": {"run"}}
	}
	var t Task
	if err := c.doJSON(ctx, http.MethodPost, "/tasks", params, newCreateTaskBody(cfg), &t); err != nil {
		return nil, fmt.Errorf("create task %q: %w", cfg.Name, err)
	}
	return &t, nil
}

// RunTask starts a draft task.
func (c *Client) RunTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := c.doJSON(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/actions/run", nil, nil, &t); err != nil {
		return nil, notFound(err, "task", id)
	}
	return &t, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := c.doJSON(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, nil, &t); err != nil {
		return nil, notFound(err, "task", id)
	}
	return &t, nil
}

// Reload replaces t with a fresh snapshot.
func (c *Client) Reload(ctx context.Context, t *Task) error {
	fresh, err := c.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	*t = *fresh
	return nil
}
