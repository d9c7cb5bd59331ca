package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"IBSCare-AI/internal/store"
	"IBSCare-AI/internal/store/storetest"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "docs", "ibscare.db")})
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Documents {
		return openSQLite(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	files, err := loadMigrationFiles("sqlite")
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if count != len(files) {
		t.Fatalf("expected %d applied migrations, got %d", len(files), count)
	}
}

func TestPutPreservesCreatedAt(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	if err := s.Put(ctx, store.CollectionLogs, "u1", "2024-06-01", "2024-06-01", map[string]int{"mood": 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	first, err := s.List(ctx, store.CollectionLogs, "u1", store.Query{})
	if err != nil || len(first) != 1 {
		t.Fatalf("list: %v %d", err, len(first))
	}
	if err := s.Put(ctx, store.CollectionLogs, "u1", "2024-06-01", "2024-06-01", map[string]int{"mood": 9}); err != nil {
		t.Fatalf("put again: %v", err)
	}
	second, err := s.List(ctx, store.CollectionLogs, "u1", store.Query{})
	if err != nil || len(second) != 1 {
		t.Fatalf("list: %v %d", err, len(second))
	}
	if !second[0].CreatedAt.Equal(first[0].CreatedAt) {
		t.Fatalf("created_at changed: %s -> %s", first[0].CreatedAt, second[0].CreatedAt)
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Config{Driver: "postgres", DSN: "x"}); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected unsupported driver, got %v", err)
	}
	if _, err := Open(ctx, Config{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
	if _, err := Open(ctx, Config{Driver: "mysql", DSN: "no-slash-here"}); err == nil {
		t.Fatalf("expected error for malformed mysql dsn")
	}
}

func TestBuildListQuery(t *testing.T) {
	query, args := buildListQuery("logs", "u1", store.Query{From: "2024-01-01", To: "2024-01-31", Limit: 50, Desc: true})
	want := "SELECT doc_id, sort_key, body, created_at, updated_at FROM documents WHERE collection = ? AND user_id = ? AND sort_key >= ? AND sort_key <= ? ORDER BY sort_key DESC, doc_id DESC LIMIT ?"
	if query != want {
		t.Fatalf("unexpected query:\n%s", query)
	}
	if len(args) != 5 || args[4] != 50 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestDialectsUpsertDiffer(t *testing.T) {
	if !strings.Contains(mysqlDialect.upsert, "ON DUPLICATE KEY UPDATE") {
		t.Fatalf("mysql dialect must use ON DUPLICATE KEY")
	}
	if !strings.Contains(sqliteDialect.upsert, "ON CONFLICT") {
		t.Fatalf("sqlite dialect must use ON CONFLICT")
	}
	for _, name := range []string{"mysql", "sqlite"} {
		files, err := loadMigrationFiles(name)
		if err != nil || len(files) == 0 {
			t.Fatalf("missing %s migrations: %v", name, err)
		}
	}
}
