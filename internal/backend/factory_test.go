package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"homebudget/internal/amqp"
	"homebudget/internal/config"
	"homebudget/internal/docstore"
	"homebudget/internal/log"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "db", AMQPURL: "amqp://x", AMQPExchange: "ex", InstanceID: "web-1"})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "db" || cfg.Origin != "web-1" || cfg.AMQPExchange != "ex" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"feed without origin", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db", AMQPURL: "amqp://x"}, true},
		{"unknown", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "seed.json")
	body := `{"users/u1/budgets/b1": {"name": "Seeded"}}`
	if err := os.WriteFile(seed, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	res, err := NewFactory(log.Discard()).CreateBackend(context.Background(), Config{Type: MemoryBackend, MemorySeedFile: seed})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()
	if res.Feed != nil {
		t.Fatal("memory backend has no change feed")
	}
	if _, err := res.Store.Get(context.Background(), docstore.BudgetDoc("u1", "b1")); err != nil {
		t.Fatalf("seeded document missing: %v", err)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "docs.db")
	res, err := NewFactory(log.Discard()).CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: dbPath})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	ctx := context.Background()
	if err := res.Store.Set(ctx, docstore.PreferencesDoc("u1"), map[string]string{"activeBudgetId": "b1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := res.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

type refreshRecorder struct{ paths []docstore.Path }

func (r *refreshRecorder) Refresh(_ context.Context, p docstore.Path) error {
	r.paths = append(r.paths, p)
	return nil
}

func TestRefreshHandlerSkipsOwnMessages(t *testing.T) {
	rec := &refreshRecorder{}
	h := RefreshHandler(rec, "web-1")
	p := docstore.BudgetDoc("u1", "b1")

	if err := h(context.Background(), amqp.NewDocumentChangedMessage(p, docstore.ChangeSet, "web-1")); err != nil {
		t.Fatal(err)
	}
	if err := h(context.Background(), amqp.NewDocumentChangedMessage(p, docstore.ChangeDelete, "web-2")); err != nil {
		t.Fatal(err)
	}
	if len(rec.paths) != 1 || rec.paths[0] != p {
		t.Fatalf("refreshed = %v", rec.paths)
	}
}
