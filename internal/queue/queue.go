package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/logging"
	"github.com/hibiken/asynq"
)

const (
	TypeEmailDelivery = "email:delivery"
	TypeAuditExport   = "audit:export"
)

type TaskQueue struct {
	client *asynq.Client
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewQueue(cfg *config.RedisConfig) (*TaskQueue, error) {
	client := asynq.NewClient(redisOpt(cfg))

	// Activate and test the connection
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis queue: %w", err)
	}

	logging.Info("Connected to Redis task queue")

	return &TaskQueue{client: client}, nil
}

func (q *TaskQueue) Enqueue(taskType string, data interface{}, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return q.client.Enqueue(asynq.NewTask(taskType, payload), opts...)
}

// EnqueueEmail queues a plain-text message for the worker to send.
func (q *TaskQueue) EnqueueEmail(to, subject, body string) (*asynq.TaskInfo, error) {
	return q.Enqueue(TypeEmailDelivery, EmailDeliveryPayload{
		To:      to,
		Subject: subject,
		Body:    body,
	}, asynq.Queue("default"), asynq.MaxRetry(5))
}

// EnqueueAuditExport queues an archive of the audit entries in [from, to).
// The task id is derived from the window so a window is only queued once
// while its task is still retained.
func (q *TaskQueue) EnqueueAuditExport(from, to time.Time) (*asynq.TaskInfo, error) {
	payload := AuditExportPayload{From: from.UTC(), To: to.UTC()}
	return q.Enqueue(TypeAuditExport, payload,
		asynq.Queue("low"),
		asynq.MaxRetry(3),
		asynq.TaskID(payload.taskID()),
		asynq.Retention(24*time.Hour),
	)
}

func (q *TaskQueue) Close() error {
	return q.client.Close()
}

type EmailDeliveryPayload struct {
	To      string
	Subject string
	Body    string
}

type AuditExportPayload struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (p AuditExportPayload) taskID() string {
	return fmt.Sprintf("audit-export:%d-%d", p.From.Unix(), p.To.Unix())
}
