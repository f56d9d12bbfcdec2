package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homebudget/internal/core"
	"homebudget/internal/docstore"
	"homebudget/internal/docstore/memory"
)

func TestArchiveMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedBudget(t, named("Alpha"))
	require.NoError(t, f.session.Start(ctx))
	_, err := f.session.AddTransaction(ctx, core.TransactionInput{Amount: d("42.50"), CategoryID: "groceries", Date: "2025-03-10"})
	require.NoError(t, err)
	before, err := f.session.Current()
	require.NoError(t, err)

	period, err := f.session.ArchiveMonth(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-03", period)

	snap, err := f.session.Archive(ctx, period)
	require.NoError(t, err)
	assert.Equal(t, before.Transactions, snap.Transactions)
	assert.True(t, snap.Categories[0].Spent.Equal(d("42.50")), "archived totals are kept")
	assert.Equal(t, before.Name, snap.Name)
	assert.Equal(t, testNow, snap.ArchivedAt)

	stored := f.storedBudget(t, id)
	assert.Empty(t, stored.Transactions)
	for _, c := range stored.Categories {
		assert.True(t, c.Spent.IsZero(), c.ID)
	}
	assert.True(t, stored.Income.Equal(before.Income), "allocations and income survive the reset")

	_, err = f.session.ArchiveMonth(ctx)
	require.NoError(t, err)
	periods, err := f.session.ArchivePeriods(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03"}, periods, "archiving twice keeps one snapshot per period")

	snap, err = f.session.Archive(ctx, period)
	require.NoError(t, err)
	assert.Empty(t, snap.Transactions, "the second archive overwrites the first")
}

func TestArchiveResetSurvivesLateSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedBudget(t, named("Alpha"))
	require.NoError(t, f.session.Start(ctx))
	_, err := f.session.AddTransaction(ctx, core.TransactionInput{Amount: d("10"), CategoryID: "groceries", Date: "2025-03-10"})
	require.NoError(t, err)
	before, err := f.store.Get(ctx, docstore.BudgetDoc(testUser, id))
	require.NoError(t, err)

	_, err = f.session.ArchiveMonth(ctx)
	require.NoError(t, err)
	f.echo(before)

	require.NoError(t, f.session.SetIncome(ctx, d("500")))
	stored := f.storedBudget(t, id)
	assert.Empty(t, stored.Transactions, "archived transactions must not come back")
	assert.True(t, stored.Income.Equal(d("500")))
}

func TestArchiveMonthDeclined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBudget(t, named("Alpha"))
	require.NoError(t, f.session.Start(ctx))
	f.confirm = false

	_, err := f.session.ArchiveMonth(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, f.notes.count())
	periods, err := f.session.ArchivePeriods(ctx)
	require.NoError(t, err)
	assert.Empty(t, periods)
}

func TestArchiveMonthResetFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedBudget(t, named("Alpha"))
	require.NoError(t, f.session.Start(ctx))
	_, err := f.session.AddTransaction(ctx, core.TransactionInput{Amount: d("3"), CategoryID: "fuel", Date: "2025-03-10"})
	require.NoError(t, err)
	f.store.FailWith(func(op memory.Op, p docstore.Path) error {
		if op == memory.OpSet && p == docstore.BudgetDoc(testUser, id) {
			return errors.New("write failed")
		}
		return nil
	})

	period, err := f.session.ArchiveMonth(ctx)
	require.Error(t, err)
	assert.Equal(t, "2025-03", period)
	current, err := f.session.Current()
	require.NoError(t, err)
	assert.Len(t, current.Transactions, 1, "local budget unchanged when the reset is not stored")
	assert.Contains(t, f.notes.last().Message, "could not be reset")
}

func TestArchiveHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedBudget(t, named("Alpha"))
	for _, p := range []string{"2025-01", "2024-11", "2025-02"} {
		snap := core.ArchiveSnapshot{Budget: named("Alpha"), Period: p}
		require.NoError(t, f.store.Set(ctx, docstore.ArchiveDoc(testUser, id, p), snap))
	}
	require.NoError(t, f.store.Set(ctx, docstore.ArchiveDoc(testUser, id, "2025-03"), []byte(`{"income": "broken`)))
	require.NoError(t, f.session.Start(ctx))

	periods, err := f.session.ArchivePeriods(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03", "2025-02", "2025-01", "2024-11"}, periods)

	all, err := f.session.Archives(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3, "unreadable snapshots are skipped")
	assert.Equal(t, "2024-11", all[0].Period)
	assert.Equal(t, "2025-02", all[2].Period)

	_, err = f.session.Archive(ctx, "2023-01")
	assert.ErrorIs(t, err, ErrArchiveNotFound)
	_, err = f.session.Archive(ctx, "2023-1")
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)

	require.NoError(t, f.session.DeleteArchive(ctx, "2025-01"))
	periods, err = f.session.ArchivePeriods(ctx)
	require.NoError(t, err)
	assert.NotContains(t, periods, "2025-01")
	assert.ErrorIs(t, f.session.DeleteArchive(ctx, "2025-01"), ErrArchiveNotFound)
}

func TestArchiveHistoryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBudget(t, named("Alpha"))
	require.NoError(t, f.session.Start(ctx))
	f.store.FailWith(func(op memory.Op, _ docstore.Path) error {
		if op == memory.OpList {
			return errors.New("offline")
		}
		return nil
	})

	_, err := f.session.ArchivePeriods(ctx)
	require.Error(t, err)
	assert.Equal(t, "Failed to load budget history.", f.notes.last().Message)
}
