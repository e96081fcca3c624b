package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/tasks/domain"
)

type countingRepository struct {
	mu        sync.Mutex
	tasks     []domain.Task
	listCalls int
}

func (f *countingRepository) List(ctx context.Context) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]domain.Task{}, f.tasks...), nil
}

func (f *countingRepository) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			task := f.tasks[i]
			return &task, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (f *countingRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task.ID = int64(len(f.tasks) + 1)
	task.Touch(time.Now())
	f.tasks = append(f.tasks, *task)
	return task, nil
}

func (f *countingRepository) Update(ctx context.Context, id int64, patch domain.TaskPatch) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Apply(patch, time.Now())
			task := f.tasks[i]
			return &task, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (f *countingRepository) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return domain.ErrTaskNotFound
}

func (f *countingRepository) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// unreachableClient points at a port nothing listens on.
func unreachableClient(t *testing.T) *redislib.Client {
	t.Helper()
	client := redislib.NewClient(&redislib.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCacheBypassedWhenRedisDown(t *testing.T) {
	next := &countingRepository{}
	repo := NewCachedTaskRepository(next, unreachableClient(t), time.Minute, nil)
	ctx := context.Background()

	created, err := repo.Create(ctx, &domain.Task{Title: "still works"})
	require.NoError(t, err)

	tasks, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, created.ID, tasks[0].ID)

	_, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls(), "every list goes to the store without a cache")

	assert.Error(t, repo.Ping(ctx))
}

func TestCacheForwardsNotFound(t *testing.T) {
	repo := NewCachedTaskRepository(&countingRepository{}, unreachableClient(t), time.Minute, nil)
	ctx := context.Background()

	title := "x"
	_, err := repo.Update(ctx, 42, domain.TaskPatch{Title: &title})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, 42), domain.ErrTaskNotFound)
	_, err = repo.GetByID(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

// memoryRedis answers the commands the cache issues from a map, installed
// as a go-redis hook so no connection is ever dialed.
type memoryRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryClient(t *testing.T) (*redislib.Client, *memoryRedis) {
	t.Helper()
	mem := &memoryRedis{data: map[string]string{}}
	client := redislib.NewClient(&redislib.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	client.AddHook(mem)
	t.Cleanup(func() { _ = client.Close() })
	return client, mem
}

func (m *memoryRedis) DialHook(next redislib.DialHook) redislib.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("memory redis does not dial")
	}
}

func (m *memoryRedis) ProcessPipelineHook(next redislib.ProcessPipelineHook) redislib.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redislib.Cmder) error {
		for _, cmd := range cmds {
			m.process(ctx, cmd)
		}
		return nil
	}
}

func (m *memoryRedis) ProcessHook(next redislib.ProcessHook) redislib.ProcessHook {
	return func(ctx context.Context, cmd redislib.Cmder) error {
		m.process(ctx, cmd)
		return cmd.Err()
	}
}

func (m *memoryRedis) process(ctx context.Context, cmd redislib.Cmder) {
	if err := ctx.Err(); err != nil {
		cmd.SetErr(err)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	args := cmd.Args()
	arg := func(i int) string {
		if b, ok := args[i].([]byte); ok {
			return string(b)
		}
		return fmt.Sprint(args[i])
	}

	switch c := cmd.(type) {
	case *redislib.StringCmd:
		val, ok := m.data[arg(1)]
		if !ok {
			c.SetErr(redislib.Nil)
			return
		}
		c.SetVal(val)
	case *redislib.StatusCmd:
		if cmd.Name() == "set" {
			m.data[arg(1)] = arg(2)
		}
		c.SetVal("OK")
	case *redislib.IntCmd:
		switch cmd.Name() {
		case "incr":
			n, _ := strconv.ParseInt(m.data[arg(1)], 10, 64)
			n++
			m.data[arg(1)] = strconv.FormatInt(n, 10)
			c.SetVal(n)
		case "del":
			var deleted int64
			for i := 1; i < len(args); i++ {
				if _, ok := m.data[arg(i)]; ok {
					delete(m.data, arg(i))
					deleted++
				}
			}
			c.SetVal(deleted)
		default:
			c.SetErr(fmt.Errorf("unsupported command %q", cmd.Name()))
		}
	default:
		cmd.SetErr(fmt.Errorf("unsupported command %q", cmd.Name()))
	}
}

func (m *memoryRedis) set(key, val string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
}

// gatedRepository pauses the first List after it has read the store.
type gatedRepository struct {
	*countingRepository
	once     sync.Once
	snapshot chan struct{}
	release  chan struct{}
}

func (g *gatedRepository) List(ctx context.Context) ([]domain.Task, error) {
	tasks, err := g.countingRepository.List(ctx)
	g.once.Do(func() {
		close(g.snapshot)
		<-g.release
	})
	return tasks, err
}

func TestCacheServesAndInvalidatesInMemory(t *testing.T) {
	client, _ := newMemoryClient(t)
	next := &countingRepository{}
	repo := NewCachedTaskRepository(next, client, time.Minute, nil)
	ctx := context.Background()

	created, err := repo.Create(ctx, &domain.Task{Title: "one"})
	require.NoError(t, err)

	first, err := repo.List(ctx)
	require.NoError(t, err)
	second, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls(), "second list is served from redis")

	title := "one, renamed"
	_, err = repo.Update(ctx, created.ID, domain.TaskPatch{Title: &title})
	require.NoError(t, err)
	renamed, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, renamed, 1)
	assert.Equal(t, title, renamed[0].Title)
	assert.Equal(t, 2, next.calls())

	require.NoError(t, repo.Delete(ctx, created.ID))
	empty, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
	assert.Equal(t, 3, next.calls())

	assert.NoError(t, repo.Ping(ctx))
}

func TestCacheFillRacingWithCreate(t *testing.T) {
	client, _ := newMemoryClient(t)
	next := &gatedRepository{
		countingRepository: &countingRepository{},
		snapshot:           make(chan struct{}),
		release:            make(chan struct{}),
	}
	repo := NewCachedTaskRepository(next, client, time.Minute, nil)
	ctx := context.Background()

	done := make(chan []domain.Task)
	go func() {
		tasks, _ := repo.List(ctx)
		done <- tasks
	}()

	<-next.snapshot
	_, err := repo.Create(ctx, &domain.Task{Title: "written during fill"})
	require.NoError(t, err)
	close(next.release)
	assert.Empty(t, <-done)

	tasks, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestCacheInvalidatesAfterRequestCancelled(t *testing.T) {
	client, _ := newMemoryClient(t)
	repo := NewCachedTaskRepository(&countingRepository{}, client, time.Minute, nil)

	tasks, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, tasks)

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repo.Create(reqCtx, &domain.Task{Title: "committed at the deadline"})
	require.NoError(t, err)

	tasks, err = repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestCacheDropsCorruptEntry(t *testing.T) {
	client, mem := newMemoryClient(t)
	next := &countingRepository{}
	repo := NewCachedTaskRepository(next, client, time.Minute, nil)
	mem.set(listKeyPrefix+":0", "{not json")

	tasks, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Equal(t, 1, next.calls())

	_, err = repo.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls(), "refilled entry is served")
}

func TestCacheServesAndInvalidates(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("Skipping integration test - TEST_REDIS_URL environment variable required")
	}
	opts, err := redislib.ParseURL(url)
	require.NoError(t, err)
	client := redislib.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	next := &countingRepository{}
	repo := NewCachedTaskRepository(next, client, time.Minute, nil)
	repo.prefix = "tasks:list:test:" + t.Name()
	defer client.Del(ctx, repo.generationKey(), repo.listKey(0), repo.listKey(1), repo.listKey(2))
	require.NoError(t, client.Del(ctx, repo.generationKey()).Err())

	_, err = repo.Create(ctx, &domain.Task{Title: "one"})
	require.NoError(t, err)

	first, err := repo.List(ctx)
	require.NoError(t, err)
	second, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls(), "second list is served from redis")

	_, err = repo.Create(ctx, &domain.Task{Title: "two"})
	require.NoError(t, err)

	third, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, third, 2)
	assert.Equal(t, 2, next.calls(), "mutation invalidates the cached list")
}
