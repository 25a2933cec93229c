package db

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "empty", path: "", wantErr: true},
		{name: "memory", path: ":memory:", want: "file::memory:?_foreign_keys=on"},
		{
			name: "plain path",
			path: filepath.Join(dir, "nested", "devices.db"),
			want: "file:" + filepath.Join(dir, "nested", "devices.db") + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL",
		},
		{
			name: "file uri with params",
			path: "file:/tmp/x.db?cache=shared",
			want: "file:/tmp/x.db?cache=shared&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildDSN(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("buildDSN(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestOpenAndMigrate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "devices.db")

	db, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = Close(db) }()

	applied, err := Migrate(ctx, db)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(applied) != 2 || applied[0] != "0001" || applied[1] != "0002" {
		t.Fatalf("applied = %v, want [0001 0002]", applied)
	}

	again, err := Migrate(ctx, db)
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second Migrate applied %v, want none", again)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 2 {
		t.Errorf("schema_migrations rows = %d, want 2", n)
	}
}

func TestOpenWithLogger_ForeignKeysEnforced(t *testing.T) {
	ctx := context.Background()
	handler := &captureHandler{}

	db, err := Open(":memory:", slog.New(handler))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = Close(db) }()

	if _, err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO device_topics (address, reading, topic) VALUES (?, ?, ?)`,
		"AA:BB:CC:DD:EE:FF", "battery_percentage", "x/battery")
	if err == nil || !strings.Contains(strings.ToLower(err.Error()), "foreign key") {
		t.Fatalf("insert orphan topic error = %v, want foreign key failure", err)
	}
	if len(handler.recordsFor(t, "sql")) == 0 {
		t.Error("expected statements to be logged")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in      string
		version string
		name    string
		ok      bool
	}{
		{in: "0001_devices.sql", version: "0001", name: "devices", ok: true},
		{in: "0012_add_index.sql", version: "0012", name: "add_index", ok: true},
		{in: "1_devices.sql"},
		{in: "0001_devices.txt"},
		{in: "README.md"},
	}
	for _, tt := range tests {
		v, n, ok := parseMigrationFilename(tt.in)
		if ok != tt.ok || v != tt.version || n != tt.name {
			t.Errorf("parseMigrationFilename(%q) = %q, %q, %v", tt.in, v, n, ok)
		}
	}
}
