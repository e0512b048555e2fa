package main

import (
	"context"
	"log"

	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/aws"
	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/database"
	"github.com/campusops/portal/internal/logging"
	"github.com/campusops/portal/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.Init(&cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()

	conn, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	emailSvc, err := aws.NewEmailService(ctx, cfg.AWS)
	if err != nil {
		log.Fatalf("Failed to initialize email service: %v", err)
	}

	s3Svc, err := aws.NewS3Service(ctx, cfg.AWS)
	if err != nil {
		log.Fatalf("Failed to initialize S3 service: %v", err)
	}

	if cfg.AWS.EndpointURL != "" {
		if err := emailSvc.VerifyEmailIdentity(ctx); err != nil {
			logging.Error("Failed to verify email identity", "error", err)
		}
		if err := s3Svc.EnsureBucket(ctx); err != nil {
			logging.Warn("S3 bucket creation failed", "bucket", s3Svc.Bucket(), "error", err)
		}
	}

	worker := queue.NewWorker(&cfg.Redis, emailSvc, audit.NewExporter(conn, s3Svc))

	logging.Info("Starting queue worker", "redis", cfg.Redis.Addr)
	if err := worker.Run(); err != nil {
		log.Fatalf("Worker stopped: %v", err)
	}
}
