package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sharedDB *testutil.TestDatabase

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	t := &testing.T{}
	sharedDB = testutil.NewTestDatabase(t)
	sharedDB.RunMigrations(t)

	code := m.Run()

	sharedDB.Cleanup()
	os.Exit(code)
}

func record(t *testing.T, log *audit.Log, actor uuid.UUID, action audit.Action, entityID string, details map[string]any) *audit.LogEntry {
	t.Helper()
	entry, err := log.Record(context.Background(), audit.Entry{
		ActorID:    actor,
		Action:     action,
		EntityType: audit.EntityUser,
		EntityID:   entityID,
		Details:    details,
	})
	require.NoError(t, err)
	return entry
}

func TestLog_Record(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	ctx := context.Background()

	t.Run("first entry links to genesis", func(t *testing.T) {
		sharedDB.CleanupDatabase(t)
		log := audit.NewLog(sharedDB.Database)
		admin := sharedDB.NewUser(t).AsAdmin().Create()

		entry := record(t, log, admin.ID, audit.ActionRoleChange, "target", map[string]any{"newRole": "TA"})

		assert.Equal(t, audit.GenesisHash, entry.PrevHash)
		assert.Len(t, entry.EntryHash, 64)
		assert.Equal(t, "TA", entry.Details["newRole"])
	})

	t.Run("entries chain in order", func(t *testing.T) {
		sharedDB.CleanupDatabase(t)
		log := audit.NewLog(sharedDB.Database)
		admin := sharedDB.NewUser(t).AsAdmin().Create()

		first := record(t, log, admin.ID, audit.ActionRoleChange, "a", nil)
		second := record(t, log, admin.ID, audit.ActionRoleChange, "b", nil)

		assert.Equal(t, first.EntryHash, second.PrevHash)
		assert.Greater(t, second.Seq, first.Seq)
	})

	t.Run("missing actor is a validation error", func(t *testing.T) {
		log := audit.NewLog(sharedDB.Database)
		_, err := log.Record(ctx, audit.Entry{Action: audit.ActionRoleChange, EntityType: audit.EntityUser, EntityID: "x"})
		assert.Error(t, err)
	})

	t.Run("concurrent appends keep a single chain", func(t *testing.T) {
		sharedDB.CleanupDatabase(t)
		log := audit.NewLog(sharedDB.Database)
		admin := sharedDB.NewUser(t).AsAdmin().Create()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := log.Record(ctx, audit.Entry{
					ActorID:    admin.ID,
					Action:     audit.ActionRoleChange,
					EntityType: audit.EntityUser,
					EntityID:   uuid.NewString(),
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		result, err := log.Verify(ctx)
		require.NoError(t, err)
		assert.True(t, result.Valid, result.Reason)
		assert.Equal(t, 10, result.Checked)
	})

	t.Run("stored rows cannot be updated", func(t *testing.T) {
		sharedDB.CleanupDatabase(t)
		log := audit.NewLog(sharedDB.Database)
		admin := sharedDB.NewUser(t).AsAdmin().Create()
		entry := record(t, log, admin.ID, audit.ActionRoleChange, "x", nil)

		_, err := sharedDB.Pool().Exec(ctx, "UPDATE audit_logs SET action = 'FORGED' WHERE id = $1", entry.ID)
		assert.ErrorContains(t, err, "append-only")

		_, err = sharedDB.Pool().Exec(ctx, "DELETE FROM audit_logs WHERE id = $1", entry.ID)
		assert.ErrorContains(t, err, "append-only")
	})
}

func TestLog_Reads(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	ctx := context.Background()
	sharedDB.CleanupDatabase(t)
	log := audit.NewLog(sharedDB.Database)
	alice := sharedDB.NewUser(t).AsAdmin().WithName("Alice").Create()
	bob := sharedDB.NewUser(t).AsAdmin().WithName("Bob").Create()

	record(t, log, alice.ID, audit.ActionRoleChange, "target-1", nil)
	record(t, log, bob.ID, audit.ActionRoleChange, "target-2", nil)
	record(t, log, alice.ID, audit.ActionRoleChange, "target-1", map[string]any{"newRole": "TA"})

	t.Run("recent is newest first with actor names", func(t *testing.T) {
		entries, err := log.Recent(ctx, 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "Alice", entries[0].ActorName)
		assert.Equal(t, alice.Email, entries[0].ActorEmail)
		assert.Greater(t, entries[0].Seq, entries[1].Seq)
		assert.Greater(t, entries[1].Seq, entries[2].Seq)
	})

	t.Run("recent honours limit", func(t *testing.T) {
		entries, err := log.Recent(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("by entity", func(t *testing.T) {
		entries, err := log.ByEntity(ctx, audit.EntityUser, "target-1")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "TA", entries[0].Details["newRole"])
	})

	t.Run("by user", func(t *testing.T) {
		entries, err := log.ByUser(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "target-2", entries[0].EntityID)
	})

	t.Run("find dispatches on query", func(t *testing.T) {
		entries, err := log.Find(ctx, audit.Query{ActorID: &alice.ID})
		require.NoError(t, err)
		assert.Len(t, entries, 2)

		_, err = log.Find(ctx, audit.Query{EntityType: audit.EntityUser})
		assert.Error(t, err)
	})
}

func TestLog_Verify(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	ctx := context.Background()

	t.Run("empty chain is valid", func(t *testing.T) {
		sharedDB.CleanupDatabase(t)
		log := audit.NewLog(sharedDB.Database)

		result, err := log.Verify(ctx)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Zero(t, result.Checked)
		assert.Equal(t, audit.GenesisHash, result.HeadHash)
	})

	t.Run("intact chain is valid", func(t *testing.T) {
		sharedDB.CleanupDatabase(t)
		log := audit.NewLog(sharedDB.Database)
		admin := sharedDB.NewUser(t).AsAdmin().Create()

		var last *audit.LogEntry
		for i := 0; i < 3; i++ {
			last = record(t, log, admin.ID, audit.ActionRoleChange, "t", map[string]any{"n": i, "note": "<b>&</b>"})
		}

		result, err := log.Verify(ctx)
		require.NoError(t, err)
		assert.True(t, result.Valid, result.Reason)
		assert.Equal(t, 3, result.Checked)
		assert.Equal(t, last.EntryHash, result.HeadHash)
	})

	t.Run("tampered details break the chain", func(t *testing.T) {
		sharedDB.CleanupDatabase(t)
		log := audit.NewLog(sharedDB.Database)
		admin := sharedDB.NewUser(t).AsAdmin().Create()

		record(t, log, admin.ID, audit.ActionRoleChange, "t", map[string]any{"newRole": "TA"})
		tampered := record(t, log, admin.ID, audit.ActionRoleChange, "t", map[string]any{"newRole": "FACULTY"})
		record(t, log, admin.ID, audit.ActionRoleChange, "t", nil)

		_, err := sharedDB.Pool().Exec(ctx, `
			BEGIN;
			ALTER TABLE audit_logs DISABLE TRIGGER audit_logs_no_update;
			UPDATE audit_logs SET details = '{"newRole":"DEVELOPER"}' WHERE seq = `+strconv.FormatInt(tampered.Seq, 10)+`;
			ALTER TABLE audit_logs ENABLE TRIGGER audit_logs_no_update;
			COMMIT;`)
		require.NoError(t, err)

		result, err := log.Verify(ctx)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, tampered.Seq, result.BrokenAtSeq)
		assert.Equal(t, 1, result.Checked)
		assert.Contains(t, result.Reason, "entry_hash")
	})
}

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
}

func (s *memoryStore) PutObject(_ context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func TestExporter_Export(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	ctx := context.Background()
	sharedDB.CleanupDatabase(t)
	log := audit.NewLog(sharedDB.Database)
	admin := sharedDB.NewUser(t).AsAdmin().Create()

	record(t, log, admin.ID, audit.ActionRoleChange, "a", nil)
	record(t, log, admin.ID, audit.ActionRoleChange, "b", nil)

	store := &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
	exporter := audit.NewExporter(sharedDB.Database, store)

	now := time.Now().Truncate(time.Second)
	from := now.Add(-time.Hour)
	to := now.Add(time.Hour)

	result, err := exporter.Export(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, audit.ExportKey(from, to), result.Key)
	assert.Equal(t, "application/x-ndjson", store.types[result.Key])

	lines := bytes.Split(bytes.TrimSpace(store.objects[result.Key]), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second audit.LogEntry
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "a", first.EntityID)
	assert.Equal(t, first.EntryHash, second.PrevHash)

	t.Run("empty window writes an empty object", func(t *testing.T) {
		past := now.Add(-48 * time.Hour)
		result, err := exporter.Export(ctx, past, past.Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, result.Count)
		assert.Empty(t, store.objects[result.Key])
	})
}
