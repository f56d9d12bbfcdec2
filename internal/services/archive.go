package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"homebudget/internal/core"
	"homebudget/internal/docstore"
	"homebudget/internal/log"
)

// ArchiveMonth snapshots the active budget under the current period and
// resets it for the next one: no transactions and every spent total at zero.
// Archiving twice in a period overwrites that period's snapshot. When the
// reset cannot be written the snapshot stays without a matching reset.
func (s *Session) ArchiveMonth(ctx context.Context) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	b, err := s.activeLocked()
	if err != nil {
		return "", s.reject(ctx, log.OpArchive, "No budget selected.", err)
	}

	now := s.now()
	period := core.PeriodOf(now)
	err = s.confirmLocked(ctx,
		fmt.Sprintf("Archive %s?", period),
		"This saves a snapshot of the current month and clears all transactions.")
	if err != nil {
		return "", err
	}

	snap := core.ArchiveSnapshot{Budget: b.Clone(), Period: period, ArchivedAt: now.UTC()}
	if err := s.store.Set(ctx, docstore.ArchiveDoc(s.userID, s.activeID, period), snap); err != nil {
		return "", s.fail(ctx, log.OpArchive, "Could not archive this month.", fmt.Errorf("write archive %s: %w", period, err))
	}

	reset := b.Reset()
	rev, err := s.store.Put(ctx, docstore.BudgetDoc(s.userID, s.activeID), reset)
	if err != nil {
		return period, s.fail(ctx, log.OpArchive,
			fmt.Sprintf("Month %s archived, but the budget could not be reset.", period),
			fmt.Errorf("reset budget: %w", err))
	}
	s.current = &reset
	s.rev = rev
	s.broadcastLocked()
	s.succeed(ctx, log.OpArchive, fmt.Sprintf("Month %s archived.", period))
	return period, nil
}

// ArchivePeriods lists the archived periods of the active budget, newest first.
func (s *Session) ArchivePeriods(ctx context.Context) ([]string, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	if s.activeID == "" {
		return nil, ErrNoActiveBudget
	}
	docs, err := s.store.List(ctx, docstore.ArchiveCollection(s.userID, s.activeID))
	if err != nil {
		return nil, s.fail(ctx, log.OpList, "Failed to load budget history.", err)
	}
	periods := make([]string, len(docs))
	for i, d := range docs {
		periods[i] = d.Path.ID()
	}
	slices.SortFunc(periods, func(a, b string) int { return strings.Compare(b, a) })
	return periods, nil
}

// Archives loads every snapshot of the active budget, oldest first.
func (s *Session) Archives(ctx context.Context) ([]core.ArchiveSnapshot, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	if s.activeID == "" {
		return nil, ErrNoActiveBudget
	}
	docs, err := s.store.List(ctx, docstore.ArchiveCollection(s.userID, s.activeID))
	if err != nil {
		return nil, s.fail(ctx, log.OpList, "Failed to load budget history.", err)
	}
	out := make([]core.ArchiveSnapshot, 0, len(docs))
	for _, d := range docs {
		snap, err := decodeArchive(d.Path.ID(), d.Data)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable archive",
				log.FieldPeriod, d.Path.ID(), log.FieldError, err)
			continue
		}
		out = append(out, snap)
	}
	slices.SortFunc(out, func(a, b core.ArchiveSnapshot) int { return strings.Compare(a.Period, b.Period) })
	return out, nil
}

// Archive loads the snapshot of one period of the active budget.
func (s *Session) Archive(ctx context.Context, period string) (core.ArchiveSnapshot, error) {
	if err := s.lock(); err != nil {
		return core.ArchiveSnapshot{}, err
	}
	defer s.mu.Unlock()
	if s.activeID == "" {
		return core.ArchiveSnapshot{}, ErrNoActiveBudget
	}
	if _, err := core.ParsePeriod(period); err != nil {
		return core.ArchiveSnapshot{}, err
	}
	doc, err := s.store.Get(ctx, docstore.ArchiveDoc(s.userID, s.activeID, period))
	if isNotFound(err) {
		return core.ArchiveSnapshot{}, fmt.Errorf("%w: %s", ErrArchiveNotFound, period)
	}
	if err != nil {
		return core.ArchiveSnapshot{}, s.fail(ctx, log.OpRead, "Failed to load archived month.", err)
	}
	return decodeArchive(period, doc.Data)
}

// DeleteArchive removes the snapshot of one period after confirmation.
func (s *Session) DeleteArchive(ctx context.Context, period string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.activeID == "" {
		return s.reject(ctx, log.OpDelete, "No budget selected.", ErrNoActiveBudget)
	}
	if _, err := core.ParsePeriod(period); err != nil {
		return s.reject(ctx, log.OpDelete, "Invalid archive period.", err)
	}
	p := docstore.ArchiveDoc(s.userID, s.activeID, period)
	if _, err := s.store.Get(ctx, p); err != nil {
		if isNotFound(err) {
			return s.reject(ctx, log.OpDelete, fmt.Sprintf("No archive for %s.", period), fmt.Errorf("%w: %s", ErrArchiveNotFound, period))
		}
		return s.fail(ctx, log.OpDelete, "Failed to delete archive.", err)
	}
	err := s.confirmLocked(ctx, fmt.Sprintf("Delete archive %s?", period), "The snapshot of this month will be removed permanently.")
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, p); err != nil {
		return s.fail(ctx, log.OpDelete, "Failed to delete archive.", err)
	}
	s.succeed(ctx, log.OpDelete, fmt.Sprintf("Archive %s deleted.", period))
	return nil
}

// decodeArchive parses a snapshot document. Its budget fields are normalized
// but the archived totals are kept as written.
func decodeArchive(period string, data json.RawMessage) (core.ArchiveSnapshot, error) {
	var snap core.ArchiveSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return core.ArchiveSnapshot{}, fmt.Errorf("decode archive %s: %w", period, err)
	}
	snap.Budget = core.Normalize(snap.Budget)
	snap.Period = period
	return snap, nil
}
