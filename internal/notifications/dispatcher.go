package notifications

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/campusops/portal/internal/access"
	"github.com/campusops/portal/internal/logging"
	"github.com/campusops/portal/internal/queue"
	"github.com/hibiken/asynq"
)

const (
	templateApproved = "access_request_approved"
	templateRejected = "access_request_rejected"
)

// subset of TaskQueue.
type queueService interface {
	Enqueue(taskType string, data interface{}, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher turns committed access decisions into queued emails. Delivery
// happens in the worker; failures here are logged and never reach the
// reviewer.
type Dispatcher struct {
	queue     queueService
	templates *template.Template
}

func NewDispatcher(q queueService, tmpl *template.Template) *Dispatcher {
	return &Dispatcher{
		queue:     q,
		templates: tmpl,
	}
}

func (d *Dispatcher) AccessRequestDecided(ctx context.Context, decision access.Decision) {
	if decision.RequesterEmail == "" {
		return
	}

	name := templateRejected
	if decision.Request.Status == access.StatusApproved {
		name = templateApproved
	}

	comment := ""
	if decision.Request.ReviewComment != nil {
		comment = *decision.Request.ReviewComment
	}

	subject, body, err := d.renderTemplate(name, map[string]interface{}{
		"RequesterName": decision.RequesterName,
		"ReviewerName":  decision.ReviewerName,
		"RequestedRole": decision.Request.RequestedRoleName,
		"ReviewComment": comment,
		"RequestID":     decision.Request.ID.String(),
	})
	if err != nil {
		logging.Error("failed to render notification template", "template", name, "error", err)
		return
	}

	if _, err := d.queue.Enqueue(queue.TypeEmailDelivery, queue.EmailDeliveryPayload{
		To:      decision.RequesterEmail,
		Subject: subject,
		Body:    body,
	}, asynq.Queue("default")); err != nil {
		logging.Error("failed to enqueue notification email", "to", decision.RequesterEmail, "template", name, "error", err)
	}
}

// {{define "name:subject"}} and {{define "name:body"}}
func (d *Dispatcher) renderTemplate(name string, data map[string]interface{}) (subject, body string, err error) {
	var subjectBuf bytes.Buffer
	if err = d.templates.ExecuteTemplate(&subjectBuf, name+":subject", data); err != nil {
		return "", "", fmt.Errorf("render subject for %q: %w", name, err)
	}

	var bodyBuf bytes.Buffer
	if err = d.templates.ExecuteTemplate(&bodyBuf, name+":body", data); err != nil {
		return "", "", fmt.Errorf("render body for %q: %w", name, err)
	}

	return strings.TrimSpace(subjectBuf.String()), strings.TrimSpace(bodyBuf.String()), nil
}
