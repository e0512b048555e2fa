package api

import (
	"net/http"
	"time"

	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/middleware"
)

const (
	exportPrefix  = "audit/"
	presignExpiry = 15 * time.Minute
)

type AuditExportRequest struct {
	From time.Time `json:"from" validate:"required"`
	To   time.Time `json:"to" validate:"required,gtfield=From"`
}

type AuditExportAccepted struct {
	TaskID string `json:"taskId"`
	Queue  string `json:"queue"`
	Key    string `json:"key"`
}

type AuditExport struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	URL          string    `json:"url"`
}

func (s *Server) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := user.Actor().RequireAdmin(); err != nil {
		writeError(w, r, err, "Audit log access denied")
		return
	}

	var limit *int
	if errResp := queryParam(r, "limit", &limit); errResp != nil {
		errResp.Write(w)
		return
	}
	q := audit.Query{Limit: parseLimit(limit)}
	if errResp := queryParam(r, "entityType", &q.EntityType); errResp != nil {
		errResp.Write(w)
		return
	}
	if errResp := queryParam(r, "entityId", &q.EntityID); errResp != nil {
		errResp.Write(w)
		return
	}
	if errResp := queryParam(r, "actorId", &q.ActorID); errResp != nil {
		errResp.Write(w)
		return
	}

	entries, err := s.audit.Find(r.Context(), q)
	if err != nil {
		writeError(w, r, err, "Failed to list audit entries")
		return
	}
	writeList(w, entries)
}

func (s *Server) VerifyAuditChain(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := user.Actor().RequireAdmin(); err != nil {
		writeError(w, r, err, "Audit verification denied")
		return
	}

	result, err := s.audit.Verify(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to verify audit chain")
		return
	}
	if !result.Valid {
		middleware.GetLoggerFromContext(r.Context()).Warn("Audit chain verification failed",
			"broken_at_seq", result.BrokenAtSeq,
			"reason", result.Reason)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) RequestAuditExport(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := user.Actor().RequireAdmin(); err != nil {
		writeError(w, r, err, "Audit export denied")
		return
	}

	var req AuditExportRequest
	if errResp := s.decodeBody(r, &req); errResp != nil {
		errResp.Write(w)
		return
	}
	if err := audit.ValidateWindow(req.From, req.To); err != nil {
		writeError(w, r, err, "Invalid export window")
		return
	}

	info, err := s.queue.EnqueueAuditExport(req.From, req.To)
	if err != nil {
		writeError(w, r, err, "Failed to queue audit export")
		return
	}

	middleware.GetLoggerFromContext(r.Context()).Info("Audit export queued",
		"task_id", info.ID,
		"from", req.From,
		"to", req.To)
	writeJSON(w, http.StatusAccepted, AuditExportAccepted{
		TaskID: info.ID,
		Queue:  info.Queue,
		Key:    audit.ExportKey(req.From, req.To),
	})
}

func (s *Server) ListAuditExports(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := user.Actor().RequireAdmin(); err != nil {
		writeError(w, r, err, "Audit export access denied")
		return
	}

	objects, err := s.archives.ListObjects(r.Context(), exportPrefix)
	if err != nil {
		writeError(w, r, err, "Failed to list audit exports")
		return
	}

	exports := make([]AuditExport, 0, len(objects))
	for _, obj := range objects {
		url, err := s.archives.PresignGet(r.Context(), obj.Key, presignExpiry)
		if err != nil {
			writeError(w, r, err, "Failed to sign export URL")
			return
		}
		exports = append(exports, AuditExport{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			URL:          url,
		})
	}
	writeList(w, exports)
}
