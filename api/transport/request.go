package transport

import "github.com/fastygo/tasks/domain"

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// UpdateTaskRequest is the body of PUT /api/tasks/{id}. Every field is optional;
// description may be set to null explicitly.
type UpdateTaskRequest struct {
	Title       *string               `json:"title"`
	Description domain.NullableString `json:"description"`
	Completed   *bool                 `json:"completed"`
}

// Patch converts the request into a domain patch.
func (r UpdateTaskRequest) Patch() domain.TaskPatch {
	return domain.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		Completed:   r.Completed,
	}
}
