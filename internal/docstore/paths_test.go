package docstore

import (
	"errors"
	"testing"
)

func TestPathLayout(t *testing.T) {
	tests := []struct {
		name string
		got  Path
		want string
		doc  bool
	}{
		{"budgets", UserBudgets("u1"), "users/u1/budgets", false},
		{"budget", BudgetDoc("u1", "b1"), "users/u1/budgets/b1", true},
		{"archives", ArchiveCollection("u1", "b1"), "users/u1/budgets/b1/archive", false},
		{"archive", ArchiveDoc("u1", "b1", "2025-03"), "users/u1/budgets/b1/archive/2025-03", true},
		{"preferences", PreferencesDoc("u1"), "users/u1/preferences/userPrefs", true},
		{"legacy", LegacyBudgetDoc("u1"), "users/u1/budget/current", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.got) != tt.want {
				t.Errorf("path = %s, want %s", tt.got, tt.want)
			}
			if tt.got.IsDocument() != tt.doc || tt.got.IsCollection() == tt.doc {
				t.Errorf("%s: document=%v collection=%v", tt.got, tt.got.IsDocument(), tt.got.IsCollection())
			}
		})
	}
}

func TestPathHelpers(t *testing.T) {
	p := ArchiveDoc("u1", "b1", "2025-03")
	if p.ID() != "2025-03" || p.Parent() != ArchiveCollection("u1", "b1") {
		t.Errorf("id=%s parent=%s", p.ID(), p.Parent())
	}
	uid, bid, period, ok := ParseArchiveDoc(p)
	if !ok || uid != "u1" || bid != "b1" || period != "2025-03" {
		t.Errorf("ParseArchiveDoc = %s %s %s %v", uid, bid, period, ok)
	}
	if _, _, _, ok := ParseArchiveDoc(BudgetDoc("u1", "b1")); ok {
		t.Error("budget path parsed as archive")
	}
	if err := CheckDocument(Join("users", "", "budgets", "x")); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("empty segment accepted: %v", err)
	}
	if err := CheckCollection(""); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("empty collection accepted: %v", err)
	}
}
