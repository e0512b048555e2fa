package container

import (
	"context"

	"github.com/campusops/portal/internal/access"
	"github.com/campusops/portal/internal/api"
	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/auth"
	"github.com/campusops/portal/internal/aws"
	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/database"
	"github.com/campusops/portal/internal/logging"
	"github.com/campusops/portal/internal/notifications"
	"github.com/campusops/portal/internal/queue"
	"github.com/campusops/portal/internal/roles"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	Config        *config.Config
	Database      *database.Database
	Queue         *queue.TaskQueue
	RedisClient   *redis.Client
	AuthService   *auth.AuthService
	Authenticator *auth.Authenticator
	AuditLog      *audit.Log
	Access        *access.Service
	Roles         *roles.Service
	EmailService  *aws.EmailService
	S3Service     *aws.S3Service
	Server        *api.Server
	Worker        *queue.Worker
}

func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}

	taskQueue, err := queue.NewQueue(&cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}

	// asynq manages its own pool; this client only holds session revocations.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	c := &Container{
		Config:      cfg,
		Database:    db,
		Queue:       taskQueue,
		RedisClient: redisClient,
	}

	jwtService, err := auth.NewJWTService([]byte(cfg.JWT.SigningKey), cfg.JWT.Issuer, cfg.JWT.Expiry)
	if err != nil {
		c.Cleanup()
		return nil, err
	}

	c.AuthService = auth.NewAuthService(redisClient, jwtService, db.Queries(), cfg.Auth)
	c.Authenticator = auth.NewAuthenticator(jwtService, db.Queries(), c.AuthService, cfg.Auth.CookieName)

	tmpl, err := notifications.LoadTemplates()
	if err != nil {
		c.Cleanup()
		return nil, err
	}
	dispatcher := notifications.NewDispatcher(taskQueue, tmpl)

	c.AuditLog = audit.NewLog(db)
	c.Access = access.NewService(db, c.AuditLog, dispatcher)
	c.Roles = roles.NewService(db, c.AuditLog)

	c.EmailService, err = aws.NewEmailService(ctx, cfg.AWS)
	if err != nil {
		c.Cleanup()
		return nil, err
	}

	c.S3Service, err = aws.NewS3Service(ctx, cfg.AWS)
	if err != nil {
		c.Cleanup()
		return nil, err
	}

	// localstack only; production buckets and identities are provisioned outside the app
	if cfg.AWS.EndpointURL != "" {
		if err := c.EmailService.VerifyEmailIdentity(ctx); err != nil {
			logging.Error("Failed to verify email identity", "error", err)
		}
		if err := c.S3Service.EnsureBucket(ctx); err != nil {
			logging.Warn("S3 bucket creation failed", "bucket", cfg.AWS.Bucket, "error", err)
		}
	}

	exporter := audit.NewExporter(db, c.S3Service)
	c.Worker = queue.NewWorker(&cfg.Redis, c.EmailService, exporter)

	c.Server = api.NewServer(
		db,
		c.AuthService,
		c.Access,
		c.Roles,
		c.AuditLog,
		taskQueue,
		c.S3Service,
		api.CookieConfig{Name: cfg.Auth.CookieName, Secure: cfg.IsProduction()},
	)

	logging.Info("Connected to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port)

	return c, nil
}

func (c *Container) Cleanup() {
	if c.Queue != nil {
		c.Queue.Close()
		logging.Info("Queue client closed")
	}
	if c.Worker != nil {
		c.Worker.Close()
		logging.Info("Worker closed")
	}
	if c.RedisClient != nil {
		c.RedisClient.Close()
		logging.Info("Redis client closed")
	}
	if c.Database != nil {
		c.Database.Close()
		logging.Info("Database connection closed")
	}
}
