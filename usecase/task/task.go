package task

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fastygo/tasks/domain"
	"github.com/fastygo/tasks/repository"
)

// CreateInput is the validated shape of a new task.
type CreateInput struct {
	Title       string `validate:"required,max=255"`
	Description *string
	Completed   *bool
}

type UseCase struct {
	tasks    repository.TaskRepository
	validate *validator.Validate
	logger   *zap.Logger
}

func New(tasks repository.TaskRepository, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		tasks:    tasks,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

func (uc *UseCase) ListTasks(ctx context.Context) ([]domain.Task, error) {
	tasks, err := uc.tasks.List(ctx)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

func (uc *UseCase) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	return uc.tasks.GetByID(ctx, id)
}

func (uc *UseCase) CreateTask(ctx context.Context, in CreateInput) (*domain.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := uc.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	task := &domain.Task{
		Title:       in.Title,
		Description: in.Description,
	}
	if in.Completed != nil {
		task.Completed = *in.Completed
	}

	created, err := uc.tasks.Create(ctx, task)
	if err != nil {
		return nil, err
	}
	uc.logger.Debug("task created", zap.Int64("task_id", created.ID))
	return created, nil
}

func (uc *UseCase) UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (*domain.Task, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if err := uc.validate.Var(title, "required,max=255"); err != nil {
			return nil, validationError(err)
		}
		patch.Title = &title
	}

	updated, err := uc.tasks.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	uc.logger.Debug("task updated", zap.Int64("task_id", id))
	return updated, nil
}

func (uc *UseCase) DeleteTask(ctx context.Context, id int64) error {
	if err := uc.tasks.Delete(ctx, id); err != nil {
		return err
	}
	uc.logger.Debug("task deleted", zap.Int64("task_id", id))
	return nil
}

// validationError turns validator output into a client-facing domain error.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.WrapError(domain.ErrCodeInvalid, "invalid payload", err)
	}
	switch fieldErrs[0].Tag() {
	case "required":
		return domain.ErrTitleRequired
	case "max":
		return domain.NewError(domain.ErrCodeInvalid, "title must be at most 255 characters")
	default:
		return domain.WrapError(domain.ErrCodeInvalid, "invalid payload", err)
	}
}
