package api

import (
	"github.com/go-playground/validator/v10"
)

// CookieConfig controls the session cookie set at login.
type CookieConfig struct {
	Name   string
	Secure bool
}

type Server struct {
	db       DatabaseService
	auth     AuthService
	access   AccessService
	roles    RoleService
	audit    AuditService
	queue    QueueService
	archives ArchiveStore
	cookie   CookieConfig
	validate *validator.Validate
}

func NewServer(db DatabaseService, authService AuthService, accessService AccessService, roleService RoleService, auditService AuditService, queue QueueService, archives ArchiveStore, cookie CookieConfig) *Server {
	if cookie.Name == "" {
		cookie.Name = "token"
	}
	return &Server{
		db:       db,
		auth:     authService,
		access:   accessService,
		roles:    roleService,
		audit:    auditService,
		queue:    queue,
		archives: archives,
		cookie:   cookie,
		validate: newValidator(),
	}
}
