package platform

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound  = errors.New("resource not found")
	ErrAmbiguous = errors.New("resource query is ambiguous")
)

// APIError is a non-2xx response from the platform.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
	MoreInfo   string `json:"more_info"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no message"
	}
	if e.Code != 0 {
		return fmt.Sprintf("platform api %s %s: status %d (code %d): %s", e.Method, e.Path, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("platform api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// NotFoundError means a lookup matched nothing.
type NotFoundError struct {
	Kind  string
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Query)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AmbiguousError means a lookup that must resolve to one resource matched
// several. IDs lists every match so the caller can narrow the query.
type AmbiguousError struct {
	Kind  string
	Query string
	IDs   []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s query %s matched %d resources: %s", e.Kind, e.Query, len(e.IDs), strings.Join(e.IDs, ", "))
}

func (e *AmbiguousError) Is(target error) bool { return target == ErrAmbiguous }

// IsNotFound reports whether err is a not-found lookup or a 404 response.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

func describeQuery(q FileQuery) string {
	var parts []string
	if q.Parent != "" {
		parts = append(parts, "parent="+q.Parent)
	} else if q.Project != "" {
		parts = append(parts, "project="+q.Project)
	}
	if len(q.Names) > 0 {
		parts = append(parts, "names="+strings.Join(q.Names, ","))
	}
	return strings.Join(parts, " ")
}
