package core

import "slices"

// DefaultTypes is the category grouping used when a document carries none.
var DefaultTypes = []string{"Needs", "Wants", "Savings"}

// Normalize fills the fields that documents written by older versions may
// lack. Present fields are never modified, so applying it twice is the same
// as applying it once.
func Normalize(b Budget) Budget {
	if b.Transactions == nil {
		b.Transactions = []Transaction{}
	}
	if b.Types == nil {
		b.Types = slices.Clone(DefaultTypes)
	}
	if b.Categories == nil {
		b.Categories = []Category{}
	}
	if b.PaymentMethods == nil {
		b.PaymentMethods = []string{}
	}
	if b.Subcategories == nil {
		b.Subcategories = map[string][]string{}
	}
	return b
}
