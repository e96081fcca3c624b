// Package storage turns the configured connection string into a ready task
// store, optionally fronted by the Redis list cache.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/tasks/internal/config"
	pgInfra "github.com/fastygo/tasks/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/tasks/internal/infrastructure/redis"
	"github.com/fastygo/tasks/repository"
	boltRepo "github.com/fastygo/tasks/repository/bolt"
	pgRepo "github.com/fastygo/tasks/repository/postgres"
	redisRepo "github.com/fastygo/tasks/repository/redis"
)

// ErrUnsupportedURL is returned for connection strings no store understands.
var ErrUnsupportedURL = errors.New("unsupported database url")

// Storage bundles the task repository handed to the use case with the
// probes the monitor needs.
type Storage struct {
	Tasks    repository.TaskRepository
	Database repository.Pinger
	// Cache is nil when caching is disabled.
	Cache repository.Pinger
	// Driver is "postgres" or "bolt".
	Driver string

	closers []func() error
}

// Open connects to the store selected by cfg.Database.URL.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Storage{}
	url := cfg.Database.URL

	switch {
	case cfg.Database.IsBolt():
		repo, err := boltRepo.Open(cfg.Database.BoltPath())
		if err != nil {
			return nil, err
		}
		logger.Info("using embedded task store", zap.String("path", cfg.Database.BoltPath()))
		s.Driver = "bolt"
		s.Tasks, s.Database = repo, repo
		if cfg.Database.Ephemeral {
			path := cfg.Database.BoltPath()
			s.closers = append(s.closers, func() error {
				if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("remove test database: %w", err)
				}
				return nil
			})
		}
		s.closers = append(s.closers, repo.Close)

	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		pool, err := pgInfra.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		repo := pgRepo.NewTaskRepository(pool)
		s.Driver = "postgres"
		s.Tasks, s.Database = repo, repo
		s.closers = append(s.closers, func() error {
			pool.Close()
			return nil
		})

	default:
		scheme, _, _ := strings.Cut(url, "://")
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, scheme)
	}

	if cfg.Redis.URL != "" {
		client, err := redisInfra.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("task list cache disabled", zap.Error(err))
			return s, nil
		}
		cached := redisRepo.NewCachedTaskRepository(s.Tasks, client, cfg.Redis.CacheTTL, logger)
		s.Tasks, s.Cache = cached, cached
		s.closers = append(s.closers, client.Close)
		logger.Info("task list cache enabled", zap.Duration("ttl", cfg.Redis.CacheTTL))
	}

	return s, nil
}

// Close releases every connection in reverse order of opening.
func (s *Storage) Close() error {
	var result error
	for i := len(s.closers) - 1; i >= 0; i-- {
		result = errors.Join(result, s.closers[i]())
	}
	s.closers = nil
	return result
}
