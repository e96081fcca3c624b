package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/tasks/domain"
	"github.com/fastygo/tasks/repository"
)

const taskColumns = `id, title, description, completed, created_at, updated_at`

type TaskRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewTaskRepository returns a Postgres-backed task store.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool, now: time.Now}
}

var (
	_ repository.TaskRepository = (*TaskRepository)(nil)
	_ repository.Pinger         = (*TaskRepository)(nil)
)

func (r *TaskRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrap("get task", err)
	}
	return task, nil
}

func (r *TaskRepository) List(ctx context.Context) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidPayload
	}
	task.CreatedAt = time.Time{}
	task.Touch(r.now())

	const query = `
	INSERT INTO tasks (title, description, completed, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id
	`
	if err := r.pool.QueryRow(ctx, query,
		task.Title,
		task.Description,
		task.Completed,
		task.CreatedAt,
		task.UpdatedAt,
	).Scan(&task.ID); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// Update locks the row, applies the patch in Go so the partial-update rules
// live in one place, and writes the full row back.
func (r *TaskRepository) Update(ctx context.Context, id int64, patch domain.TaskPatch) (*domain.Task, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 FOR UPDATE`
	task, err := scanTask(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrap("update task", err)
	}

	task.Apply(patch, r.now())

	const update = `
	UPDATE tasks
	SET title = $2,
		description = $3,
		completed = $4,
		updated_at = $5
	WHERE id = $1
	`
	if _, err := tx.Exec(ctx, update,
		task.ID,
		task.Title,
		task.Description,
		task.Completed,
		task.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM tasks WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	if err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Completed,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return &task, nil
}

func wrap(op string, err error) error {
	if errors.Is(err, domain.ErrTaskNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
