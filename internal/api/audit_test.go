package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/aws"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestServer_ListAuditLogs(t *testing.T) {
	t.Run("default limit is 50", func(t *testing.T) {
		h := newHarness(t)
		entries := []audit.LogEntry{{ID: uuid.New(), Seq: 2, Action: audit.ActionRoleChange}}
		h.audit.On("Find", mock.Anything, audit.Query{Limit: 50}).Return(entries, nil).Once()

		rec := h.do(http.MethodGet, "/audit", nil, h.admin())

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decodeJSON[listResponse[audit.LogEntry]](t, rec)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, audit.ActionRoleChange, resp.Data[0].Action)
	})

	t.Run("explicit limit", func(t *testing.T) {
		h := newHarness(t)
		h.audit.On("Find", mock.Anything, audit.Query{Limit: 5}).Return(nil, nil).Once()

		rec := h.do(http.MethodGet, "/audit?limit=5", nil, h.admin())

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("limit outside the documented range is 400", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodGet, "/audit?limit=5000", nil, h.admin())

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("entity filter", func(t *testing.T) {
		h := newHarness(t)
		userID := uuid.NewString()
		h.audit.On("Find", mock.Anything, audit.Query{
			Limit:      50,
			EntityType: audit.EntityUser,
			EntityID:   userID,
		}).Return(nil, nil).Once()

		rec := h.do(http.MethodGet, "/audit?entityType=User&entityId="+userID, nil, h.admin())

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("actor filter", func(t *testing.T) {
		h := newHarness(t)
		actorID := uuid.New()
		h.audit.On("Find", mock.Anything, audit.Query{Limit: 50, ActorID: &actorID}).Return(nil, nil).Once()

		rec := h.do(http.MethodGet, "/audit?actorId="+actorID.String(), nil, h.admin())

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("non-admin is 403", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodGet, "/audit", nil, h.student())

		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, CodePermissionDenied, decodeError(t, rec).Code)
	})
}

func TestServer_VerifyAuditChain(t *testing.T) {
	h := newHarness(t)
	h.audit.On("Verify", mock.Anything).Return(&audit.VerifyResult{
		Valid:       false,
		Checked:     4,
		BrokenAtSeq: 3,
		Reason:      "entry hash mismatch",
	}, nil).Once()

	rec := h.do(http.MethodGet, "/audit/verify", nil, h.admin())

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[audit.VerifyResult](t, rec)
	assert.False(t, resp.Valid)
	assert.Equal(t, int64(3), resp.BrokenAtSeq)
}

func TestServer_RequestAuditExport(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	t.Run("queues the export", func(t *testing.T) {
		h := newHarness(t)
		h.queue.On("EnqueueAuditExport", from, to).Return(&asynq.TaskInfo{ID: "export-1", Queue: "low"}, nil).Once()

		rec := h.do(http.MethodPost, "/audit/exports", map[string]time.Time{"from": from, "to": to}, h.admin())

		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		resp := decodeJSON[AuditExportAccepted](t, rec)
		assert.Equal(t, "export-1", resp.TaskID)
		assert.Equal(t, "low", resp.Queue)
		assert.Equal(t, audit.ExportKey(from, to), resp.Key)
	})

	t.Run("duplicate window is 409", func(t *testing.T) {
		h := newHarness(t)
		h.queue.On("EnqueueAuditExport", from, to).Return(nil, asynq.ErrTaskIDConflict).Once()

		rec := h.do(http.MethodPost, "/audit/exports", map[string]time.Time{"from": from, "to": to}, h.admin())

		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, CodeConflict, decodeError(t, rec).Code)
	})

	t.Run("reversed window is 400", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodPost, "/audit/exports", map[string]time.Time{"from": to, "to": from}, h.admin())

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("sub-second window is 400", func(t *testing.T) {
		h := newHarness(t)

		for _, offset := range []time.Duration{100 * time.Millisecond, 900 * time.Millisecond} {
			rec := h.do(http.MethodPost, "/audit/exports", map[string]time.Time{"from": from.Add(offset), "to": to}, h.admin())

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, CodeValidationError, decodeError(t, rec).Code)
		}
	})

	t.Run("non-admin is 403", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodPost, "/audit/exports", map[string]time.Time{"from": from, "to": to}, h.student())

		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestServer_ListAuditExports(t *testing.T) {
	h := newHarness(t)
	modified := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	h.archives.On("ListObjects", mock.Anything, "audit/").Return([]aws.ObjectInfo{
		{Key: "audit/2026/03/01/a.jsonl", Size: 120, LastModified: modified},
	}, nil).Once()
	h.archives.On("PresignGet", mock.Anything, "audit/2026/03/01/a.jsonl", 15*time.Minute).
		Return("https://s3.local/a.jsonl?sig=1", nil).Once()

	rec := h.do(http.MethodGet, "/audit/exports", nil, h.admin())

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON[listResponse[AuditExport]](t, rec)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(120), resp.Data[0].Size)
	assert.Equal(t, "https://s3.local/a.jsonl?sig=1", resp.Data[0].URL)
	assert.True(t, modified.Equal(resp.Data[0].LastModified))
}
