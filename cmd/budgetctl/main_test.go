package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"homebudget/internal/core"
	"homebudget/internal/docstore/memory"
	"homebudget/internal/forecast"
	"homebudget/internal/services"
)

var testNow = time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC)

type harness struct {
	store *memory.Store
}

func newHarness() *harness {
	return &harness{store: memory.New()}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), env{
		args:   args,
		in:     strings.NewReader(stdin),
		out:    &out,
		errOut: &errOut,
		store:  h.store,
		userID: "cli-user",
		clock:  func() time.Time { return testNow },
	})
	return out.String(), errOut.String(), err
}

func TestStatusCreatesFirstBudget(t *testing.T) {
	h := newHarness()
	out, notes, err := h.run(t, "", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, core.FirstBudgetName) {
		t.Fatalf("status output missing budget name:\n%s", out)
	}
	if !strings.Contains(out, "groceries") || !strings.Contains(out, "27725.00") {
		t.Fatalf("status output missing template data:\n%s", out)
	}
	if !strings.Contains(notes, "[success]") {
		t.Fatalf("expected a success notification, got %q", notes)
	}
}

func TestAddTransaction(t *testing.T) {
	h := newHarness()
	out, _, err := h.run(t, "", "add", "-amount", "12,50", "-category", "groceries", "-desc", "milk")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "trans-1742034600000") {
		t.Fatalf("unexpected output: %s", out)
	}

	out, _, err = h.run(t, "", "-json", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var view services.View
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode view: %v\n%s", err, out)
	}
	if view.Budget == nil || len(view.Budget.Transactions) != 1 {
		t.Fatalf("transaction not persisted: %+v", view.Budget)
	}
	tx := view.Budget.Transactions[0]
	if tx.Date != "2025-03-15" || tx.Amount.StringFixed(2) != "12.50" || tx.Description != "milk" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
}

func TestAddRejectsBadAmount(t *testing.T) {
	h := newHarness()
	_, _, err := h.run(t, "", "add", "-amount", "-3", "-category", "groceries")
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestVoicePreviewDoesNotSave(t *testing.T) {
	h := newHarness()
	out, _, err := h.run(t, "", "voice", "-preview", "Spent", "150", "on", "groceries")
	if err != nil {
		t.Fatalf("voice: %v", err)
	}
	if !strings.Contains(out, "150.00") || !strings.Contains(out, "groceries") {
		t.Fatalf("unexpected preview: %s", out)
	}

	out, _, err = h.run(t, "", "-json", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var view services.View
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if len(view.Budget.Transactions) != 0 {
		t.Fatalf("preview saved a transaction")
	}
}

func TestCreateSwitchAndDelete(t *testing.T) {
	h := newHarness()
	out, _, err := h.run(t, "", "-json", "create", "Holiday", "fund")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created map[string]string
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created["name"] != "Holiday fund" || created["id"] == "" {
		t.Fatalf("unexpected create output: %v", created)
	}

	out, _, err = h.run(t, "", "budgets")
	if err != nil {
		t.Fatalf("budgets: %v", err)
	}
	if !strings.Contains(out, "*  "+created["id"]) {
		t.Fatalf("new budget is not active:\n%s", out)
	}

	_, _, err = h.run(t, "n\n", "delete")
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if exitCode(err) != 3 {
		t.Fatalf("exit code = %d", exitCode(err))
	}

	if _, _, err = h.run(t, "", "-y", "delete"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out, _, err = h.run(t, "", "-json", "budgets")
	if err != nil {
		t.Fatalf("budgets: %v", err)
	}
	var names []core.BudgetName
	if err := json.Unmarshal([]byte(out), &names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != 1 || names[0].Name != core.FirstBudgetName {
		t.Fatalf("unexpected budgets after delete: %v", names)
	}

	if _, _, err = h.run(t, "", "switch", created["id"]); !errors.Is(err, services.ErrUnknownBudget) {
		t.Fatalf("switch to deleted budget: %v", err)
	}
}

func TestArchiveAndHistory(t *testing.T) {
	h := newHarness()
	if _, _, err := h.run(t, "", "add", "-amount", "100", "-category", "fuel"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, _, err := h.run(t, "yes\n", "archive")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.Contains(out, "2025-03") {
		t.Fatalf("unexpected archive output: %s", out)
	}

	out, _, err = h.run(t, "", "archives")
	if err != nil || strings.TrimSpace(out) != "2025-03" {
		t.Fatalf("archives = %q, %v", out, err)
	}

	out, _, err = h.run(t, "", "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "2025-03") || !strings.Contains(out, "100.00") {
		t.Fatalf("unexpected history:\n%s", out)
	}

	_, _, err = h.run(t, "", "forecast", "-category", "fuel")
	if !errors.Is(err, forecast.ErrNotEnoughHistory) {
		t.Fatalf("expected ErrNotEnoughHistory with one archived month, got %v", err)
	}
}

func TestUsageErrors(t *testing.T) {
	h := newHarness()
	cases := [][]string{
		{},
		{"bogus"},
		{"switch"},
		{"status", "extra"},
	}
	for _, args := range cases {
		_, _, err := h.run(t, "", args...)
		if !errors.Is(err, errUsage) {
			t.Fatalf("%v: expected usage error, got %v", args, err)
		}
		if exitCode(err) != 2 {
			t.Fatalf("%v: exit code = %d", args, exitCode(err))
		}
	}
}
