// Package bolt stores tasks in an embedded bbolt file. It backs test mode and
// single-node deployments that have no Postgres available.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fastygo/tasks/domain"
	"github.com/fastygo/tasks/repository"
)

const defaultBucket = "tasks"

// TaskRepository keeps one JSON document per task keyed by its big-endian id,
// so cursor order is insertion order.
type TaskRepository struct {
	db     *bolt.DB
	bucket []byte
	now    func() time.Time
}

var (
	_ repository.TaskRepository = (*TaskRepository)(nil)
	_ repository.Pinger         = (*TaskRepository)(nil)
)

// Open initializes the bbolt file and ensures the bucket exists.
func Open(path string) (*TaskRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	bucket := []byte(defaultBucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &TaskRepository{db: db, bucket: bucket, now: time.Now}, nil
}

// Close closes the bbolt database.
func (r *TaskRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ping confirms the file is open and the bucket readable.
func (r *TaskRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r == nil || r.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return r.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(r.bucket) == nil {
			return bolt.ErrBucketNotFound
		}
		return nil
	})
}

func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidPayload
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	created := *task
	created.CreatedAt = time.Time{}
	created.Touch(r.now())

	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		created.ID = int64(seq)
		return put(b, &created)
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	*task = created
	return task, nil
}

func (r *TaskRepository) List(ctx context.Context) ([]domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tasks := make([]domain.Task, 0)
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(r.bucket).ForEach(func(k, v []byte) error {
			var task domain.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return fmt.Errorf("decode task %d: %w", binary.BigEndian.Uint64(k), err)
			}
			tasks = append(tasks, task)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var task *domain.Task
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		task, err = get(tx.Bucket(r.bucket), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (r *TaskRepository) Update(ctx context.Context, id int64, patch domain.TaskPatch) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var task *domain.Task
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket)
		var err error
		if task, err = get(b, id); err != nil {
			return err
		}
		task.Apply(patch, r.now())
		return put(b, task)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket)
		k := key(id)
		if b.Get(k) == nil {
			return domain.ErrTaskNotFound
		}
		return b.Delete(k)
	})
}

func get(b *bolt.Bucket, id int64) (*domain.Task, error) {
	if id <= 0 {
		return nil, domain.ErrTaskNotFound
	}
	v := b.Get(key(id))
	if v == nil {
		return nil, domain.ErrTaskNotFound
	}
	var task domain.Task
	if err := json.Unmarshal(v, &task); err != nil {
		return nil, fmt.Errorf("decode task %d: %w", id, err)
	}
	return &task, nil
}

func put(b *bolt.Bucket, task *domain.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return b.Put(key(task.ID), payload)
}

func key(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}
