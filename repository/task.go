package repository

import (
	"context"

	"github.com/fastygo/tasks/domain"
)

// TaskRepository is the persistence capability injected into the task use case.
// Implementations return domain.ErrTaskNotFound for unknown ids.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)
	List(ctx context.Context) ([]domain.Task, error)
	GetByID(ctx context.Context, id int64) (*domain.Task, error)
	Update(ctx context.Context, id int64, patch domain.TaskPatch) (*domain.Task, error)
	Delete(ctx context.Context, id int64) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
