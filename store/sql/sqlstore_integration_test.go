package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"

	"github.com/goliatone/go-driveconnect/core"
	"github.com/goliatone/go-driveconnect/migrations"
	sqlstore "github.com/goliatone/go-driveconnect/store/sql"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-driveconnect-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:driveconnect-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := sqlstore.NewSQLiteClient(cfg)
	if err != nil {
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"drive_connections", "drive_destinations"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master: %v", err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestConnectionStore_UpsertIsIdempotentPerIdentity(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.ConnectionStore()
	if store == nil {
		t.Fatalf("expected connection store from factory")
	}

	first, err := store.Upsert(ctx, core.Connection{
		UserID:                "user-1",
		TenantID:              "tenant-1",
		SubjectID:             "subject-1",
		EncryptedAccessToken:  "blob-a1",
		EncryptedRefreshToken: "blob-r1",
		AccessExpiresAt:       time.Now().UTC().Add(time.Hour),
		Status:                core.ConnectionStatusActive,
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected generated id")
	}

	second, err := store.Upsert(ctx, core.Connection{
		UserID:                "user-1",
		TenantID:              "tenant-1",
		SubjectID:             "subject-1",
		EncryptedAccessToken:  "blob-a2",
		EncryptedRefreshToken: "blob-r2",
		AccessExpiresAt:       time.Now().UTC().Add(2 * time.Hour),
		Status:                core.ConnectionStatusActive,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected upsert to reuse row %q, got %q", first.ID, second.ID)
	}
	if second.EncryptedAccessToken != "blob-a2" || second.EncryptedRefreshToken != "blob-r2" {
		t.Fatalf("expected full secret replace, got %+v", second)
	}

	var count int
	if err := client.DB().NewRaw(
		"SELECT COUNT(*) FROM drive_connections",
	).Scan(ctx, &count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}

	found, err := store.FindByIdentity(ctx, core.IdentityRef{UserID: "user-1", TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("find by identity: %v", err)
	}
	if found.ID != first.ID {
		t.Fatalf("expected to find upserted row")
	}
}

func TestConnectionStore_UpdateStatusAndNotFound(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.ConnectionStore()

	if _, err := store.FindByIdentity(ctx, core.IdentityRef{UserID: "missing", TenantID: "tenant-1"}); !errors.Is(err, core.ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}

	conn, err := store.Upsert(ctx, core.Connection{
		UserID:                "user-1",
		TenantID:              "tenant-1",
		SubjectID:             "subject-1",
		EncryptedAccessToken:  "blob-a",
		EncryptedRefreshToken: "blob-r",
		AccessExpiresAt:       time.Now().UTC().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.UpdateStatus(ctx, conn.ID, core.ConnectionStatusPendingReauth, "invalid_grant"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	updated, err := store.FindByIdentity(ctx, core.IdentityRef{UserID: "user-1", TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if updated.Status != core.ConnectionStatusPendingReauth {
		t.Fatalf("expected pending_reauth, got %q", updated.Status)
	}
	if updated.LastError != "invalid_grant" {
		t.Fatalf("expected last_error, got %q", updated.LastError)
	}

	if err := store.UpdateStatus(ctx, conn.ID, core.ConnectionStatus("bogus"), ""); err == nil {
		t.Fatalf("expected invalid status to be rejected")
	}

	if err := store.UpdateStatus(ctx, conn.ID, core.ConnectionStatusRevoked, "user request"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	err = store.UpdateStatus(ctx, conn.ID, core.ConnectionStatusPendingReauth, "")
	if !errors.Is(err, core.ErrInvalidConnectionStatusTransition) {
		t.Fatalf("expected revoked -> pending_reauth to be rejected, got %v", err)
	}
	kept, err := store.FindByIdentity(ctx, core.IdentityRef{UserID: "user-1", TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("find after rejected transition: %v", err)
	}
	if kept.Status != core.ConnectionStatusRevoked {
		t.Fatalf("expected status to stay revoked, got %q", kept.Status)
	}
}

func TestDestinationStore_DefaultPromotionAndResolutionOrder(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.DestinationStore()
	if store == nil {
		t.Fatalf("expected destination store from factory")
	}

	ref := core.IdentityRef{UserID: "user-1", TenantID: "tenant-1"}

	if _, err := store.FindDefault(ctx, ref); !errors.Is(err, core.ErrDestinationNotFound) {
		t.Fatalf("expected ErrDestinationNotFound, got %v", err)
	}
	if _, err := store.FindNewest(ctx, ref); !errors.Is(err, core.ErrDestinationNotFound) {
		t.Fatalf("expected ErrDestinationNotFound for newest, got %v", err)
	}

	first, err := store.Upsert(ctx, core.Destination{
		UserID:      "user-1",
		TenantID:    "tenant-1",
		DriveID:     "drive-1",
		ItemID:      "item-1",
		DisplayName: "Contracts",
		IsDefault:   true,
	})
	if err != nil {
		t.Fatalf("upsert first: %v", err)
	}

	if err := store.ClearDefaults(ctx, ref); err != nil {
		t.Fatalf("clear defaults: %v", err)
	}
	second, err := store.Upsert(ctx, core.Destination{
		UserID:      "user-1",
		TenantID:    "tenant-1",
		DriveID:     "drive-1",
		ItemID:      "item-2",
		DisplayName: "Invoices",
		IsDefault:   true,
	})
	if err != nil {
		t.Fatalf("upsert second: %v", err)
	}

	fallback, err := store.FindDefault(ctx, ref)
	if err != nil {
		t.Fatalf("find default: %v", err)
	}
	if fallback.ID != second.ID {
		t.Fatalf("expected new default %q, got %q", second.ID, fallback.ID)
	}

	demoted, err := store.List(ctx, ref)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(demoted) != 2 {
		t.Fatalf("expected 2 destinations, got %d", len(demoted))
	}
	for _, dest := range demoted {
		if dest.ID == first.ID && dest.IsDefault {
			t.Fatalf("expected first destination to be demoted")
		}
	}
}

func TestDestinationStore_UpsertReusesRowPerLocation(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.DestinationStore()

	first, err := store.Upsert(ctx, core.Destination{
		UserID:      "user-1",
		TenantID:    "tenant-1",
		DriveID:     "drive-1",
		ItemID:      "item-1",
		DisplayName: "Contracts",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	renamed, err := store.Upsert(ctx, core.Destination{
		UserID:      "user-1",
		TenantID:    "tenant-1",
		DriveID:     "drive-1",
		ItemID:      "item-1",
		DisplayName: "Contracts (renamed)",
		DisplayPath: "/Shared Documents/Contracts",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if renamed.ID != first.ID {
		t.Fatalf("expected same row, got %q and %q", first.ID, renamed.ID)
	}
	if renamed.DisplayName != "Contracts (renamed)" {
		t.Fatalf("expected updated display name, got %q", renamed.DisplayName)
	}

	var count int
	if err := client.DB().NewRaw(
		"SELECT COUNT(*) FROM drive_destinations",
	).Scan(ctx, &count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}
