package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/tasks/repository"
)

const (
	databaseProbeTimeout = 3 * time.Second
	cacheProbeTimeout    = 2 * time.Second
)

// Monitor periodically probes the task store and the optional cache and
// keeps the most recent result.
type Monitor struct {
	database repository.Pinger
	cache    repository.Pinger

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	cron     *cron.Cron
	logger   *zap.Logger
}

// New builds a monitor. cache may be nil.
func New(database, cache repository.Pinger, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval < time.Second {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		database: database,
		cache:    cache,
		interval: interval,
		logger:   logger,
	}
}

// Start runs one probe synchronously and then schedules the rest.
func (m *Monitor) Start(ctx context.Context) error {
	m.Refresh(ctx)

	m.cron = cron.New(cron.WithSeconds())
	schedule := fmt.Sprintf("@every %s", m.interval)
	if _, err := m.cron.AddFunc(schedule, func() {
		m.Refresh(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule monitor: %w", err)
	}
	m.cron.Start()
	return nil
}

// Stop waits for a running probe to finish or ctx to expire.
func (m *Monitor) Stop(ctx context.Context) {
	if m.cron == nil {
		return
	}
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (m *Monitor) IsOnline() bool {
	return m.GetStatus().Healthy()
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Refresh probes every dependency now and stores the result.
func (m *Monitor) Refresh(ctx context.Context) Status {
	status := Status{LastCheck: time.Now().UTC()}

	if err := m.probe(ctx, m.database, databaseProbeTimeout); err != nil {
		status.DatabaseError = err.Error()
	} else {
		status.Database = true
	}
	if m.cache != nil {
		status.CacheEnabled = true
		status.Cache = m.probe(ctx, m.cache, cacheProbeTimeout) == nil
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	m.logTransitions(previous, status)
	return status
}

func (m *Monitor) probe(ctx context.Context, target repository.Pinger, timeout time.Duration) error {
	if target == nil {
		return fmt.Errorf("no store configured")
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return target.Ping(probeCtx)
}

func (m *Monitor) logTransitions(previous, current Status) {
	first := previous.LastCheck.IsZero()
	if first || previous.Database != current.Database {
		if current.Database {
			m.logger.Info("database reachable")
		} else {
			m.logger.Error("database unreachable", zap.String("error", current.DatabaseError))
		}
	}
	if current.CacheEnabled && (first || previous.Cache != current.Cache) {
		if current.Cache {
			m.logger.Info("cache reachable")
		} else {
			m.logger.Warn("cache unreachable, serving from database")
		}
	}
}
