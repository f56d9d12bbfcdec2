package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"homebudget/internal/amqp"
	"homebudget/internal/core"
	"homebudget/internal/docstore"
	"homebudget/internal/docstore/memory"
	"homebudget/internal/export/sheets"
)

type export struct {
	budget  docstore.Path
	name    string
	periods []string
}

type fakeExporter struct {
	mu      sync.Mutex
	exports []export
	err     error
}

func (f *fakeExporter) Export(_ context.Context, budget docstore.Path, name string, archives []core.ArchiveSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var periods []string
	for _, a := range archives {
		periods = append(periods, a.Period)
	}
	f.exports = append(f.exports, export{budget, name, periods})
	return nil
}

func seed(t *testing.T, s *memory.Store, uid, budgetID, name string, periods ...string) {
	t.Helper()
	ctx := context.Background()
	b := core.Budget{Name: name, Income: decimal.NewFromInt(100)}
	if err := s.Set(ctx, docstore.BudgetDoc(uid, budgetID), b); err != nil {
		t.Fatalf("seed budget: %v", err)
	}
	for _, p := range periods {
		snap := core.ArchiveSnapshot{Budget: b, Period: p}
		if err := s.Set(ctx, docstore.ArchiveDoc(uid, budgetID, p), snap); err != nil {
			t.Fatalf("seed archive: %v", err)
		}
	}
}

func message(p docstore.Path) *amqp.DocumentChangedMessage {
	return amqp.NewDocumentChangedMessage(p, docstore.ChangeSet, "test")
}

func TestHandleChange(t *testing.T) {
	s := memory.New()
	seed(t, s, "u1", "b1", "Home", "2025-01", "2025-02")
	exp := &fakeExporter{}
	w := NewExportWorker(s, exp)
	ctx := context.Background()

	if err := w.HandleChange(ctx, message(docstore.BudgetDoc("u1", "b1"))); err != nil {
		t.Fatalf("budget change: %v", err)
	}
	if len(exp.exports) != 0 {
		t.Fatal("budget document changes must not trigger an export")
	}

	if err := w.HandleChange(ctx, message(docstore.ArchiveDoc("u1", "b1", "2025-02"))); err != nil {
		t.Fatalf("archive change: %v", err)
	}
	if len(exp.exports) != 1 || exp.exports[0].name != "Home" || len(exp.exports[0].periods) != 2 ||
		exp.exports[0].budget != docstore.BudgetDoc("u1", "b1") {
		t.Fatalf("exports = %+v", exp.exports)
	}

	if err := w.HandleChange(ctx, message(docstore.ArchiveDoc("u1", "gone", "2025-02"))); err != nil {
		t.Fatalf("deleted budget should be skipped, got %v", err)
	}
}

func TestHandleChangeFailureIsRetried(t *testing.T) {
	s := memory.New()
	seed(t, s, "u1", "b1", "Home", "2025-01")
	exp := &fakeExporter{err: errors.New("quota exceeded")}
	w := NewExportWorker(s, exp)
	ctx := context.Background()

	if err := w.HandleChange(ctx, message(docstore.ArchiveDoc("u1", "b1", "2025-01"))); err == nil {
		t.Fatal("expected export error")
	}
	if got := w.Pending(); len(got) != 1 || got[0] != "u1/b1" {
		t.Fatalf("pending = %v", got)
	}
	if err := w.ProcessPending(ctx); err == nil {
		t.Fatal("expected retry to fail while the exporter is down")
	}

	exp.err = nil
	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if len(w.Pending()) != 0 || len(exp.exports) != 1 {
		t.Fatalf("pending = %v exports = %d", w.Pending(), len(exp.exports))
	}
}

func TestExportAll(t *testing.T) {
	s := memory.New()
	seed(t, s, "u1", "b1", "Home", "2025-01")
	seed(t, s, "u1", "b2", "Trip")
	seed(t, s, "u2", "b3", "Shop", "2024-12", "2025-01")
	exp := &fakeExporter{}
	w := NewExportWorker(s, exp)

	if err := w.ExportAll(context.Background()); err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(exp.exports) != 2 {
		t.Fatalf("only budgets with archives are exported, got %+v", exp.exports)
	}
	if exp.exports[0].name != "Home" || exp.exports[1].name != "Shop" {
		t.Fatalf("exports = %+v", exp.exports)
	}
}

type sheetRecorder struct {
	sheets map[string][][]any
}

func (r *sheetRecorder) WriteRows(_ context.Context, sheet string, rows [][]any) error {
	r.sheets[sheet] = rows
	return nil
}

func TestExportAllKeepsUsersApart(t *testing.T) {
	s := memory.New()
	seed(t, s, "alice", "b1", core.FirstBudgetName, "2025-01", "2025-02")
	seed(t, s, "bob", "b2", core.FirstBudgetName, "2025-02")
	rec := &sheetRecorder{sheets: make(map[string][][]any)}
	w := NewExportWorker(s, sheets.NewExporter(rec, "History"))

	if err := w.ExportAll(context.Background()); err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(rec.sheets) != 2 {
		t.Fatalf("sheets written = %d, want one per budget", len(rec.sheets))
	}
	alice := rec.sheets[sheets.SheetTitle("History", docstore.BudgetDoc("alice", "b1"), core.FirstBudgetName)]
	bob := rec.sheets[sheets.SheetTitle("History", docstore.BudgetDoc("bob", "b2"), core.FirstBudgetName)]
	// header plus one row per period
	if len(alice) != 3 || len(bob) != 2 {
		t.Fatalf("alice rows = %d, bob rows = %d", len(alice), len(bob))
	}
}

func TestExportAllListFailure(t *testing.T) {
	w := NewExportWorker(failingSource{memory.New()}, &fakeExporter{})
	if err := w.ExportAll(context.Background()); err == nil {
		t.Fatal("expected listing error")
	}
}

type failingSource struct{ *memory.Store }

func (failingSource) ArchiveCollections(context.Context) ([]docstore.Path, error) {
	return nil, errors.New("offline")
}
