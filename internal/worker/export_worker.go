// Package worker keeps the spreadsheet history of every budget in step with
// its archived months.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"homebudget/internal/amqp"
	"homebudget/internal/core"
	"homebudget/internal/docstore"
)

// Exporter writes the history of the budget stored at budget. Names are not
// unique across users; the path is.
type Exporter interface {
	Export(ctx context.Context, budget docstore.Path, budgetName string, archives []core.ArchiveSnapshot) error
}

// Source is the store the worker reads budgets and archives from.
type Source interface {
	docstore.Reader
	docstore.ArchiveLister
}

type budgetKey struct {
	userID   string
	budgetID string
}

// ExportWorker exports budget histories when archive documents change. Budgets
// whose export failed are retried by ProcessPending, and ExportAll re-exports
// everything as a backstop for lost messages.
type ExportWorker struct {
	store    Source
	exporter Exporter

	mu      sync.Mutex
	pending map[budgetKey]struct{}
}

func NewExportWorker(store Source, exporter Exporter) *ExportWorker {
	return &ExportWorker{
		store:    store,
		exporter: exporter,
		pending:  make(map[budgetKey]struct{}),
	}
}

// HandleChange processes one change feed message. Changes outside archive
// collections are ignored.
func (w *ExportWorker) HandleChange(ctx context.Context, msg *amqp.DocumentChangedMessage) error {
	uid, budgetID, period, ok := docstore.ParseArchiveDoc(msg.DocPath())
	if !ok {
		return nil
	}
	slog.InfoContext(ctx, "Processing archive change",
		"user_id", uid,
		"budget_id", budgetID,
		"period", period,
		"op", msg.Op)

	key := budgetKey{uid, budgetID}
	if err := w.ExportBudget(ctx, uid, budgetID); err != nil {
		w.markPending(key)
		return err
	}
	w.clearPending(key)
	return nil
}

// ExportBudget reloads the archives of one budget and exports them. A budget
// deleted in the meantime is skipped.
func (w *ExportWorker) ExportBudget(ctx context.Context, uid, budgetID string) error {
	budgetPath := docstore.BudgetDoc(uid, budgetID)
	doc, err := w.store.Get(ctx, budgetPath)
	if errors.Is(err, docstore.ErrNotFound) {
		slog.InfoContext(ctx, "Budget no longer exists, skipping export",
			"user_id", uid, "budget_id", budgetID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read budget: %w", err)
	}
	var head struct {
		Name string `json:"name"`
	}
	if err := doc.Decode(&head); err != nil {
		return fmt.Errorf("decode budget: %w", err)
	}

	docs, err := w.store.List(ctx, docstore.ArchiveCollection(uid, budgetID))
	if err != nil {
		return fmt.Errorf("list archives: %w", err)
	}
	archives := make([]core.ArchiveSnapshot, 0, len(docs))
	for _, d := range docs {
		var snap core.ArchiveSnapshot
		if err := json.Unmarshal(d.Data, &snap); err != nil {
			slog.WarnContext(ctx, "Skipping unreadable archive",
				"doc_path", d.Path.String(), "error", err)
			continue
		}
		snap.Period = d.Path.ID()
		snap.Budget = core.Normalize(snap.Budget)
		archives = append(archives, snap)
	}

	if err := w.exporter.Export(ctx, budgetPath, head.Name, archives); err != nil {
		return fmt.Errorf("export history: %w", err)
	}
	return nil
}

// ProcessPending retries the budgets whose last export failed.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	w.mu.Lock()
	keys := make([]budgetKey, 0, len(w.pending))
	for k := range w.pending {
		keys = append(keys, k)
	}
	w.mu.Unlock()
	if len(keys) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Retrying pending exports", "count", len(keys))
	var errs []error
	for _, k := range keys {
		if err := w.ExportBudget(ctx, k.userID, k.budgetID); err != nil {
			errs = append(errs, err)
			continue
		}
		w.clearPending(k)
	}
	return errors.Join(errs...)
}

// ExportAll exports every budget that has archived months.
func (w *ExportWorker) ExportAll(ctx context.Context) error {
	collections, err := w.store.ArchiveCollections(ctx)
	if err != nil {
		return fmt.Errorf("list archive collections: %w", err)
	}

	start := time.Now()
	success, failed := 0, 0
	for _, c := range collections {
		uid, budgetID, ok := docstore.ParseArchiveCollection(c)
		if !ok {
			continue
		}
		key := budgetKey{uid, budgetID}
		if err := w.ExportBudget(ctx, uid, budgetID); err != nil {
			slog.ErrorContext(ctx, "Failed to export budget history",
				"user_id", uid, "budget_id", budgetID, "error", err)
			w.markPending(key)
			failed++
			continue
		}
		w.clearPending(key)
		success++
	}

	slog.InfoContext(ctx, "Full export completed",
		"budgets", len(collections),
		"exported", success,
		"errors", failed,
		"duration", time.Since(start))
	return nil
}

// Pending lists the budgets waiting for a retry as user/budget pairs.
func (w *ExportWorker) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.pending))
	for k := range w.pending {
		out = append(out, k.userID+"/"+k.budgetID)
	}
	slices.Sort(out)
	return out
}

func (w *ExportWorker) markPending(k budgetKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[k] = struct{}{}
}

func (w *ExportWorker) clearPending(k budgetKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, k)
}

// Run calls ExportAll every interval until ctx is done, retrying pending
// budgets in between.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	retry := time.NewTicker(max(interval/5, time.Second))
	defer retry.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ExportAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed", "error", err)
			}
		case <-retry.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.WarnContext(ctx, "Pending exports still failing", "error", err)
			}
		}
	}
}
