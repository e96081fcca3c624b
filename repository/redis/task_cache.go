package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/tasks/domain"
	"github.com/fastygo/tasks/repository"
)

const (
	listKeyPrefix     = "tasks:list"
	invalidateTimeout = 2 * time.Second
)

// CachedTaskRepository serves List from Redis. Cached lists are stored under
// a generation number that every successful mutation increments, so a fill
// racing with a write lands on a key no reader will look up again.
// Redis failures never fail a request.
type CachedTaskRepository struct {
	next   repository.TaskRepository
	client *redislib.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

var _ repository.TaskRepository = (*CachedTaskRepository)(nil)

// NewCachedTaskRepository wraps next with a read-through list cache.
func NewCachedTaskRepository(next repository.TaskRepository, client *redislib.Client, ttl time.Duration, logger *zap.Logger) *CachedTaskRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedTaskRepository{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: listKeyPrefix,
		logger: logger,
	}
}

func (r *CachedTaskRepository) List(ctx context.Context) ([]domain.Task, error) {
	gen, err := r.generation(ctx)
	if err != nil {
		r.logger.Warn("task list cache read failed", zap.Error(err))
		return r.next.List(ctx)
	}
	key := r.listKey(gen)

	if tasks, ok := r.cached(ctx, key); ok {
		return tasks, nil
	}

	tasks, err := r.next.List(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(tasks)
	if err == nil {
		err = r.client.Set(ctx, key, payload, r.ttl).Err()
	}
	if err != nil {
		r.logger.Warn("task list cache fill failed", zap.Error(err))
	}
	return tasks, nil
}

func (r *CachedTaskRepository) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	return r.next.GetByID(ctx, id)
}

func (r *CachedTaskRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	created, err := r.next.Create(ctx, task)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx)
	return created, nil
}

func (r *CachedTaskRepository) Update(ctx context.Context, id int64, patch domain.TaskPatch) (*domain.Task, error) {
	updated, err := r.next.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx)
	return updated, nil
}

func (r *CachedTaskRepository) Delete(ctx context.Context, id int64) error {
	if err := r.next.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

// Ping checks the cache itself, not the wrapped store.
func (r *CachedTaskRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *CachedTaskRepository) generation(ctx context.Context) (int64, error) {
	gen, err := r.client.Get(ctx, r.generationKey()).Int64()
	if errors.Is(err, redislib.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *CachedTaskRepository) cached(ctx context.Context, key string) ([]domain.Task, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redislib.Nil) {
			r.logger.Warn("task list cache read failed", zap.Error(err))
		}
		return nil, false
	}

	tasks := make([]domain.Task, 0)
	if err := json.Unmarshal(raw, &tasks); err != nil {
		r.logger.Warn("task list cache entry corrupt", zap.String("key", key), zap.Error(err))
		r.client.Del(ctx, key)
		return nil, false
	}
	return tasks, true
}

// invalidate bumps the generation. It runs detached from the request so a
// write that committed near its deadline still retires the cached list.
func (r *CachedTaskRepository) invalidate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()
	if err := r.client.Incr(ctx, r.generationKey()).Err(); err != nil {
		r.logger.Warn("task list cache invalidation failed", zap.Error(err))
	}
}

func (r *CachedTaskRepository) listKey(gen int64) string {
	return fmt.Sprintf("%s:%d", r.prefix, gen)
}

func (r *CachedTaskRepository) generationKey() string {
	return r.prefix + ":gen"
}
