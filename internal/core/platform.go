package core

import (
	"context"

	"github.com/3cpo-dev/ldbench/internal/platform"
	"github.com/3cpo-dev/ldbench/pkg/api"
)

// TaskGetter fetches the current snapshot of a task.
type TaskGetter interface {
	GetTask(ctx context.Context, id string) (*platform.Task, error)
}

// TaskCreator creates (and optionally starts) a task.
type TaskCreator interface {
	CreateTask(ctx context.Context, cfg api.TaskConfig) (*platform.Task, error)
}

// Platform is the subset of the platform client the workflows need.
type Platform interface {
	TaskGetter
	TaskCreator
	GetProject(ctx context.Context, id string) (*platform.Project, error)
	GetFile(ctx context.Context, id string) (*platform.File, error)
	FindFile(ctx context.Context, q platform.FileQuery) (*platform.File, error)
	DeleteFile(ctx context.Context, id string) error
	RunTask(ctx context.Context, id string) (*platform.Task, error)
}

var _ Platform = (*platform.Client)(nil)
