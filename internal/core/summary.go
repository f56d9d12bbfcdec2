package core

import "github.com/shopspring/decimal"

// Recalculate returns a copy of categories where every Spent equals the sum
// of the amounts of the transactions pointing at that category. Transactions
// referencing an unknown category are ignored.
func Recalculate(categories []Category, transactions []Transaction) []Category {
	totals := make(map[string]decimal.Decimal, len(categories))
	for _, t := range transactions {
		totals[t.CategoryID] = totals[t.CategoryID].Add(t.Amount)
	}
	out := make([]Category, len(categories))
	for i, c := range categories {
		c.Spent = totals[c.ID]
		out[i] = c
	}
	return out
}

// Recalculated returns the budget with category totals rebuilt from its
// transactions.
func (b Budget) Recalculated() Budget {
	b.Categories = Recalculate(b.Categories, b.Transactions)
	return b
}

// Reset returns the budget for a new period: no transactions and every
// category total back to zero.
func (b Budget) Reset() Budget {
	b.Transactions = []Transaction{}
	cats := make([]Category, len(b.Categories))
	for i, c := range b.Categories {
		c.Spent = decimal.Zero
		cats[i] = c
	}
	b.Categories = cats
	return b
}

// TypeTotal aggregates allocation and spend for one category type.
type TypeTotal struct {
	Type      string          `json:"type"`
	Allocated decimal.Decimal `json:"allocated"`
	Spent     decimal.Decimal `json:"spent"`
}

// Summary is the headline view of a budget.
type Summary struct {
	Income          decimal.Decimal `json:"income"`
	TotalAllocated  decimal.Decimal `json:"totalAllocated"`
	TotalSpent      decimal.Decimal `json:"totalSpent"`
	Remaining       decimal.Decimal `json:"remaining"`
	SpentPercentage decimal.Decimal `json:"spentPercentage"`
	ByType          []TypeTotal     `json:"byType"`
}

var hundred = decimal.NewFromInt(100)

// Summarize computes totals over the categories of the budget.
func Summarize(b Budget) Summary {
	s := Summary{Income: b.Income}
	byType := make(map[string]*TypeTotal, len(b.Types))
	for _, t := range b.Types {
		s.ByType = append(s.ByType, TypeTotal{Type: t})
	}
	for i := range s.ByType {
		byType[s.ByType[i].Type] = &s.ByType[i]
	}
	for _, c := range b.Categories {
		s.TotalAllocated = s.TotalAllocated.Add(c.Allocated)
		s.TotalSpent = s.TotalSpent.Add(c.Spent)
		if tt, ok := byType[c.Type]; ok {
			tt.Allocated = tt.Allocated.Add(c.Allocated)
			tt.Spent = tt.Spent.Add(c.Spent)
		}
	}
	s.Remaining = b.Income.Sub(s.TotalSpent)
	if b.Income.IsPositive() {
		s.SpentPercentage = s.TotalSpent.Div(b.Income).Mul(hundred).Round(2)
	}
	return s
}
