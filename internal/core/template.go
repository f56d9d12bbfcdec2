package core

import "github.com/shopspring/decimal"

const (
	// LegacyBudgetName is stamped on a budget migrated from the single-budget layout.
	LegacyBudgetName = "Default Budget"
	// FirstBudgetName names the budget created for a user without any.
	FirstBudgetName = "My First Budget"
	// UntitledBudgetName is shown for budget documents without a name.
	UntitledBudgetName = "Untitled Budget"
)

type categorySeed struct {
	id, name, typ, color, icon string
	allocated                  int64
}

var defaultCategories = []categorySeed{
	{"groceries", "Groceries", "Needs", "#EF4444", "shopping-cart", 6000},
	{"utilities", "Utilities", "Needs", "#F97316", "zap", 1500},
	{"homeOwnership", "Home Ownership", "Needs", "#EAB308", "home", 1675},
	{"fuel", "Fuel for Car", "Needs", "#22C55E", "fuel", 2000},
	{"healthcare", "Healthcare", "Needs", "#14B8A6", "heart", 700},
	{"dogEssentials", "Dog Essentials", "Needs", "#06B6D4", "paw-print", 1200},
	{"cigarettes", "Cigarettes", "Wants", "#3B82F6", "cigarette", 4500},
	{"gifts", "Gifts", "Wants", "#6366F1", "gift", 1000},
	{"sweetTooth", "Sweet Tooth", "Wants", "#8B5CF6", "candy", 500},
	{"subscriptions", "Subscriptions", "Wants", "#EC4899", "credit-card", 390},
	{"diningOut", "Dining Out", "Wants", "#F43F5E", "utensils", 1500},
	{"miscWants", "Miscellaneous Wants", "Wants", "#64748B", "shopping-bag", 2260},
	{"savings", "Savings", "Savings", "#A855F7", "piggy-bank", 4000},
}

// DefaultBudget returns a fresh copy of the built-in budget template.
func DefaultBudget() Budget {
	cats := make([]Category, len(defaultCategories))
	for i, s := range defaultCategories {
		cats[i] = Category{
			ID:        s.id,
			Name:      s.name,
			Type:      s.typ,
			Color:     s.color,
			Icon:      s.icon,
			Allocated: decimal.NewFromInt(s.allocated),
			Spent:     decimal.Zero,
		}
	}
	return Budget{
		Income:         decimal.NewFromInt(27725),
		Name:           LegacyBudgetName,
		Types:          []string{"Needs", "Wants", "Savings"},
		PaymentMethods: []string{"Cash", "Credit Card", "Bank Transfer"},
		Subcategories: map[string][]string{
			"Coffee":   {"diningOut", "groceries"},
			"Internet": {"utilities"},
			"Pet Food": {"dogEssentials"},
		},
		Categories:   cats,
		Transactions: []Transaction{},
	}
}
