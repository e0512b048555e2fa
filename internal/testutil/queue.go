package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/queue"
	"github.com/hibiken/asynq"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestQueue is a TaskQueue on a throwaway Redis, plus an inspector to read
// back what was enqueued.
type TestQueue struct {
	Queue     *queue.TaskQueue
	Config    config.RedisConfig
	Redis     *rdb.Client
	Inspector *asynq.Inspector
}

func NewTestQueue(t *testing.T) *TestQueue {
	ctx := context.Background()

	container, err := redis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithReuseByName("campus-portal-test-redis"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp").WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "Failed to start Redis container")

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err, "Failed to get Redis endpoint")

	cfg := config.RedisConfig{Addr: addr}
	taskQueue, err := queue.NewQueue(&cfg)
	require.NoError(t, err, "Failed to create task queue")

	return &TestQueue{
		Queue:     taskQueue,
		Config:    cfg,
		Redis:     rdb.NewClient(&rdb.Options{Addr: addr}),
		Inspector: asynq.NewInspector(asynq.RedisClientOpt{Addr: addr}),
	}
}

// Pending returns the pending tasks of taskType on the named asynq queue.
func (tq *TestQueue) Pending(t *testing.T, queueName, taskType string) []*asynq.TaskInfo {
	t.Helper()

	tasks, err := tq.Inspector.ListPendingTasks(queueName)
	require.NoError(t, err)

	var out []*asynq.TaskInfo
	for _, task := range tasks {
		if task.Type == taskType {
			out = append(out, task)
		}
	}
	return out
}

// DecodePayload unmarshals a task payload into dst.
func DecodePayload(t *testing.T, task *asynq.TaskInfo, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(task.Payload, dst))
}

// Cleanup flushes Redis so queued tasks and revocations do not leak between tests.
func (tq *TestQueue) Cleanup(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tq.Redis.FlushDB(ctx).Err(); err != nil {
		t.Logf("WARNING: failed to flush Redis between tests: %v", err)
	}
}

func (tq *TestQueue) Close() {
	if tq.Queue != nil {
		tq.Queue.Close()
	}
	if tq.Inspector != nil {
		tq.Inspector.Close()
	}
	if tq.Redis != nil {
		tq.Redis.Close()
	}
}
