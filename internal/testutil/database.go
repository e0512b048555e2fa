package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/campusops/portal/internal/database"
	"github.com/campusops/portal/internal/db"
	"github.com/campusops/portal/internal/rbac"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDatabase wraps a real PostgreSQL database for testing
type TestDatabase struct {
	*database.Database
	container testcontainers.Container
}

// NewTestDatabase creates a new test database using testcontainers
func NewTestDatabase(t *testing.T) *TestDatabase {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
				wait.ForListeningPort("5432/tcp").
					WithStartupTimeout(30*time.Second),
			),
		),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err, "Failed to create connection pool")

	require.NoError(t, pool.Ping(ctx), "Failed to ping database")

	return &TestDatabase{
		Database:  database.FromPool(pool),
		container: postgresContainer,
	}
}

// RunMigrations applies the embedded goose migrations
func (tdb *TestDatabase) RunMigrations(t *testing.T) {
	err := tdb.Migrate(context.Background())
	require.NoError(t, err, "Failed to run goose migrations")
}

// Cleanup closes the database connection and terminates the container
func (tdb *TestDatabase) Cleanup() {
	tdb.Close()
	if tdb.container != nil {
		_ = tdb.container.Terminate(context.Background())
	}
}

// CleanupDatabase empties every table and reloads the seeded roles and
// permission matrix. audit_logs refuses TRUNCATE, so its guard trigger is
// switched off for the duration of the statement.
func (tdb *TestDatabase) CleanupDatabase(t *testing.T) {
	ctx := context.Background()

	_, err := tdb.Pool().Exec(ctx, `
		BEGIN;
		ALTER TABLE audit_logs DISABLE TRIGGER audit_logs_no_truncate;
		TRUNCATE TABLE audit_logs, access_change_requests, users, role_permissions, roles CASCADE;
		ALTER TABLE audit_logs ENABLE TRIGGER audit_logs_no_truncate;
		COMMIT;`)
	require.NoError(t, err, "Failed to truncate tables")

	tdb.SeedCatalog(t)
}

// SeedCatalog loads seed/portal.yaml into roles and role_permissions.
func (tdb *TestDatabase) SeedCatalog(t *testing.T) {
	ctx := context.Background()

	f, err := os.Open(SeedFile())
	require.NoError(t, err, "Failed to open seed file")
	defer f.Close()

	catalog, err := rbac.ParseCatalog(f)
	require.NoError(t, err, "Failed to parse seed catalog")

	for _, r := range catalog.Roles {
		role, err := tdb.Queries().UpsertRole(ctx, db.UpsertRoleParams{
			Name:        string(r.Name),
			DisplayName: r.DisplayName,
			IsAdmin:     r.IsAdmin,
		})
		require.NoError(t, err, "Failed to seed role %s", r.Name)

		for _, p := range catalog.Permissions[r.Name] {
			_, err := tdb.Queries().UpsertRolePermission(ctx, db.UpsertRolePermissionParams{
				RoleID:    role.ID,
				TileKey:   string(p.TileKey),
				CanAccess: p.CanAccess,
				CanWrite:  p.CanWrite,
			})
			require.NoError(t, err, "Failed to seed permission %s/%s", r.Name, p.TileKey)
		}
	}
}

// Role returns a seeded role by name.
func (tdb *TestDatabase) Role(t *testing.T, name rbac.RoleName) db.Role {
	role, err := tdb.Queries().GetRoleByName(context.Background(), string(name))
	require.NoError(t, err, "Role %s is not seeded", name)
	return role
}

// AuditCount returns the number of audit entries with the given action.
func (tdb *TestDatabase) AuditCount(t *testing.T, action string) int {
	var n int
	err := tdb.Pool().QueryRow(context.Background(),
		"SELECT COUNT(*) FROM audit_logs WHERE action = $1", action).Scan(&n)
	require.NoError(t, err)
	return n
}

// SeedFile is the absolute path of the repository's seed catalog.
func SeedFile() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "seed", "portal.yaml")
}
