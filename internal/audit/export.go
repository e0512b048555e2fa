package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/campusops/portal/internal/apperr"
	"github.com/campusops/portal/internal/database"
	"github.com/campusops/portal/internal/db"
	"github.com/campusops/portal/internal/logging"
)

const exportTimeLayout = "20060102T150405Z"

// ObjectStore is the subset of the S3 service the exporter needs.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentType string) error
}

type ExportResult struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Exporter archives audit entries to object storage as JSON Lines.
type Exporter struct {
	db    *database.Database
	store ObjectStore
}

func NewExporter(database *database.Database, store ObjectStore) *Exporter {
	return &Exporter{db: database, store: store}
}

// ValidateWindow checks an export window [from, to). Bounds are whole
// seconds because the archive key and task id are second-precision.
func ValidateWindow(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return apperr.Validation("from", "from and to are required")
	}
	if from.Nanosecond() != 0 {
		return apperr.Validation("from", "from must be a whole second")
	}
	if to.Nanosecond() != 0 {
		return apperr.Validation("to", "to must be a whole second")
	}
	if !from.Before(to) {
		return apperr.Validation("to", "to must be after from")
	}
	return nil
}

// ExportKey names the archive object for a window.
func ExportKey(from, to time.Time) string {
	from, to = from.UTC(), to.UTC()
	return fmt.Sprintf("audit/%s/%s_%s.jsonl", from.Format("2006/01/02"), from.Format(exportTimeLayout), to.Format(exportTimeLayout))
}

// Export writes every entry created in [from, to) in sequence order. Empty
// windows still produce an (empty) object so reruns are idempotent.
func (e *Exporter) Export(ctx context.Context, from, to time.Time) (*ExportResult, error) {
	if err := ValidateWindow(from, to); err != nil {
		return nil, err
	}

	rows, err := e.db.Queries().ListAuditLogsBetween(ctx, db.ListAuditLogsBetweenParams{
		From: from.UTC(),
		To:   to.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}

	entries, err := fromRows(rows)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return nil, fmt.Errorf("failed to encode audit entry %d: %w", entry.Seq, err)
		}
	}

	key := ExportKey(from, to)
	if err := e.store.PutObject(ctx, key, &buf, "application/x-ndjson"); err != nil {
		return nil, err
	}

	logging.Info("exported audit entries", "key", key, "count", len(entries))
	return &ExportResult{Key: key, Count: len(entries)}, nil
}
