package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/logging"
	"github.com/hibiken/asynq"
)

type emailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type auditExporter interface {
	Export(ctx context.Context, from, to time.Time) (*audit.ExportResult, error)
}

type Worker struct {
	server   *asynq.Server
	email    emailSender
	exporter auditExporter
}

func NewWorker(cfg *config.RedisConfig, email emailSender, exporter auditExporter) *Worker {
	server := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logging.Error("process task failed", "type", task.Type(), "payload", string(task.Payload()), "error", err)
			}),
		},
	)

	return &Worker{
		server:   server,
		email:    email,
		exporter: exporter,
	}
}

func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, w.HandleEmailDelivery)
	mux.HandleFunc(TypeAuditExport, w.HandleAuditExport)
	return mux
}

func (w *Worker) Start() error {
	return w.server.Start(w.Mux())
}

// Run blocks until the process receives a termination signal.
func (w *Worker) Run() error {
	return w.server.Run(w.Mux())
}

func (w *Worker) Close() {
	if w.server != nil {
		w.server.Shutdown()
	}
}

func (w *Worker) HandleEmailDelivery(ctx context.Context, t *asynq.Task) error {
	var p EmailDeliveryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	logging.Info("Sending email", "to", p.To, "subject", p.Subject)
	if err := w.email.SendEmail(ctx, p.To, p.Subject, p.Body); err != nil {
		return fmt.Errorf("emailService.SendEmail failed: %w", err)
	}

	return nil
}

func (w *Worker) HandleAuditExport(ctx context.Context, t *asynq.Task) error {
	var p AuditExportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if err := audit.ValidateWindow(p.From, p.To); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	result, err := w.exporter.Export(ctx, p.From, p.To)
	if err != nil {
		return fmt.Errorf("audit export failed: %w", err)
	}

	logging.Info("Audit export finished", "key", result.Key, "count", result.Count)
	return nil
}
