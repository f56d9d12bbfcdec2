package docstore

import (
	"fmt"
	"strings"
)

// Path addresses a document or collection, e.g. "users/u1/budgets/b1".
// Collections have an odd number of segments, documents an even number.
type Path string

// Join builds a path from segments. Segments may not be empty or contain '/'.
func Join(segments ...string) Path {
	return Path(strings.Join(segments, "/"))
}

// Child appends segments to p.
func (p Path) Child(segments ...string) Path {
	return Join(append([]string{string(p)}, segments...)...)
}

// Segments splits the path.
func (p Path) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), "/")
}

// ID is the last segment of the path.
func (p Path) ID() string {
	s := string(p)
	return s[strings.LastIndexByte(s, '/')+1:]
}

// Parent is the path without its last segment.
func (p Path) Parent() Path {
	s := string(p)
	i := strings.LastIndexByte(s, '/')
	if i < 0 {
		return ""
	}
	return Path(s[:i])
}

// IsDocument reports whether p is a well-formed document path.
func (p Path) IsDocument() bool {
	segs := p.Segments()
	return len(segs) > 0 && len(segs)%2 == 0 && validSegments(segs)
}

// IsCollection reports whether p is a well-formed collection path.
func (p Path) IsCollection() bool {
	segs := p.Segments()
	return len(segs)%2 == 1 && validSegments(segs)
}

func (p Path) String() string { return string(p) }

func validSegments(segs []string) bool {
	for _, s := range segs {
		if strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

// CheckDocument returns ErrInvalidPath unless p addresses a document.
func CheckDocument(p Path) error {
	if !p.IsDocument() {
		return fmt.Errorf("%w: %q is not a document", ErrInvalidPath, p)
	}
	return nil
}

// CheckCollection returns ErrInvalidPath unless p addresses a collection.
func CheckCollection(p Path) error {
	if !p.IsCollection() {
		return fmt.Errorf("%w: %q is not a collection", ErrInvalidPath, p)
	}
	return nil
}

// Layout of the per-user documents.
func UserRoot(uid string) Path { return Join("users", uid) }

// UserBudgets is the multi-budget collection of a user.
func UserBudgets(uid string) Path { return UserRoot(uid).Child("budgets") }

// BudgetDoc is one budget of a user.
func BudgetDoc(uid, budgetID string) Path { return UserBudgets(uid).Child(budgetID) }

// ArchiveCollection holds the period snapshots of a budget.
func ArchiveCollection(uid, budgetID string) Path { return BudgetDoc(uid, budgetID).Child("archive") }

// ArchiveDoc is the snapshot of one period of a budget.
func ArchiveDoc(uid, budgetID, period string) Path {
	return ArchiveCollection(uid, budgetID).Child(period)
}

// PreferencesDoc is the per-user preference record.
func PreferencesDoc(uid string) Path { return UserRoot(uid).Child("preferences", "userPrefs") }

// LegacyBudgetDoc is the single budget of the pre multi-budget layout.
func LegacyBudgetDoc(uid string) Path { return UserRoot(uid).Child("budget", "current") }

// ParseArchiveDoc extracts user, budget and period from an archive document path.
func ParseArchiveDoc(p Path) (uid, budgetID, period string, ok bool) {
	segs := p.Segments()
	if len(segs) != 6 || segs[0] != "users" || segs[2] != "budgets" || segs[4] != "archive" {
		return "", "", "", false
	}
	return segs[1], segs[3], segs[5], true
}

// ParseArchiveCollection extracts user and budget from an archive collection path.
func ParseArchiveCollection(p Path) (uid, budgetID string, ok bool) {
	segs := p.Segments()
	if len(segs) != 5 || segs[0] != "users" || segs[2] != "budgets" || segs[4] != "archive" {
		return "", "", false
	}
	return segs[1], segs[3], true
}
