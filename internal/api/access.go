package api

import (
	"net/http"

	"github.com/campusops/portal/internal/access"
	"github.com/campusops/portal/internal/middleware"
	"github.com/google/uuid"
)

const (
	listTypeRequests = "requests"
	listTypeUsers    = "users"
	listTypeRoles    = "roles"
)

type SubmitAccessRequest struct {
	RequestedRoleID string `json:"requestedRoleId" validate:"required,uuid"`
	Reason          string `json:"reason" validate:"required,max=2000"`
}

// ChangeAccessRequest carries one of two shapes: a direct change
// {userId, newRoleId} or a review {requestId, status, reviewComment}.
type ChangeAccessRequest struct {
	UserID        string  `json:"userId"`
	NewRoleID     string  `json:"newRoleId"`
	RequestID     string  `json:"requestId"`
	Status        string  `json:"status"`
	ReviewComment *string `json:"reviewComment"`
}

type directChange struct {
	UserID    string `json:"userId" validate:"required,uuid"`
	NewRoleID string `json:"newRoleId" validate:"required,uuid"`
}

type reviewDecision struct {
	RequestID     string `json:"requestId" validate:"required,uuid"`
	Status        string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	ReviewComment string `json:"reviewComment" validate:"max=2000"`
}

func (c ChangeAccessRequest) isDirectChange() bool {
	return c.UserID != "" || c.NewRoleID != ""
}

func (c ChangeAccessRequest) isReview() bool {
	return c.RequestID != "" || c.Status != "" || c.ReviewComment != nil
}

func (s *Server) ListAccess(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var listType string
	if errResp := queryParam(r, "type", &listType); errResp != nil {
		errResp.Write(w)
		return
	}

	switch listType {
	case listTypeRequests:
		filter, errResp := requestFilter(r)
		if errResp != nil {
			errResp.Write(w)
			return
		}
		requests, err := s.access.ListRequestsFor(ctx, user.Actor(), filter)
		if err != nil {
			writeError(w, r, err, "Failed to list access requests")
			return
		}
		writeList(w, requests)

	case listTypeUsers:
		users, err := s.access.ListUsers(ctx, user.Actor())
		if err != nil {
			writeError(w, r, err, "Failed to list users")
			return
		}
		writeList(w, users)

	case listTypeRoles:
		roles, err := s.roles.ListRoles(ctx)
		if err != nil {
			writeError(w, r, err, "Failed to list roles")
			return
		}
		writeList(w, roles)

	default:
		ValidationErr("type must be one of requests, users, roles",
			[]ErrorDetail{{Field: "type", Message: "must be one of requests users roles"}}).Write(w)
	}
}

func requestFilter(r *http.Request) (access.RequestFilter, *ErrorBuilder) {
	var filter access.RequestFilter

	var status string
	if errResp := queryParam(r, "status", &status); errResp != nil {
		return filter, errResp
	}
	if status != "" {
		parsed, err := access.ParseStatus(status)
		if err != nil {
			return filter, fromError(err)
		}
		filter.Status = &parsed
	}

	if errResp := queryParam(r, "requesterId", &filter.RequesterID); errResp != nil {
		return filter, errResp
	}
	return filter, nil
}

func (s *Server) SubmitAccessRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	logger := middleware.GetLoggerFromContext(r.Context())

	var req SubmitAccessRequest
	if errResp := s.decodeBody(r, &req); errResp != nil {
		errResp.Write(w)
		return
	}

	created, err := s.access.Submit(r.Context(), user.ID, uuid.MustParse(req.RequestedRoleID), req.Reason)
	if err != nil {
		writeError(w, r, err, "Failed to submit access request")
		return
	}

	logger.Info("Access request submitted", "request_id", created.ID, "requested_role_id", created.RequestedRoleID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) ChangeAccess(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req ChangeAccessRequest
	if errResp := s.decodeBody(r, &req); errResp != nil {
		errResp.Write(w)
		return
	}

	direct, review := req.isDirectChange(), req.isReview()
	if direct == review {
		ValidationErr("Provide either {userId, newRoleId} or {requestId, status}", nil).Write(w)
		return
	}

	if err := user.Actor().RequireAdmin(); err != nil {
		writeError(w, r, err, "Access change rejected")
		return
	}

	if direct {
		s.directChange(w, r, user.ID, directChange{UserID: req.UserID, NewRoleID: req.NewRoleID})
		return
	}

	decision := reviewDecision{RequestID: req.RequestID, Status: req.Status}
	if req.ReviewComment != nil {
		decision.ReviewComment = *req.ReviewComment
	}
	s.reviewRequest(w, r, user.ID, decision)
}

func (s *Server) directChange(w http.ResponseWriter, r *http.Request, adminID uuid.UUID, req directChange) {
	if errResp := s.validateStruct(&req); errResp != nil {
		errResp.Write(w)
		return
	}

	updated, err := s.access.DirectChange(r.Context(), adminID, uuid.MustParse(req.UserID), uuid.MustParse(req.NewRoleID))
	if err != nil {
		writeError(w, r, err, "Failed to change role")
		return
	}

	middleware.GetLoggerFromContext(r.Context()).Info("Role changed directly",
		"target_user_id", updated.ID,
		"new_role", updated.RoleName)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) reviewRequest(w http.ResponseWriter, r *http.Request, reviewerID uuid.UUID, req reviewDecision) {
	if errResp := s.validateStruct(&req); errResp != nil {
		errResp.Write(w)
		return
	}

	decision, err := access.ParseDecision(req.Status)
	if err != nil {
		writeError(w, r, err, "Invalid review decision")
		return
	}

	reviewed, err := s.access.Review(r.Context(), uuid.MustParse(req.RequestID), reviewerID, decision, req.ReviewComment)
	if err != nil {
		writeError(w, r, err, "Failed to review access request")
		return
	}

	middleware.GetLoggerFromContext(r.Context()).Info("Access request reviewed",
		"request_id", reviewed.ID,
		"status", reviewed.Status)
	writeJSON(w, http.StatusOK, reviewed)
}
