package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used by transactions.
const DateLayout = "2006-01-02"

func init() {
	// Budget documents carry plain JSON numbers, not quoted decimals.
	decimal.MarshalJSONWithoutQuotes = true
}

type (
	// Budget is one user-named ledger.
	Budget struct {
		Income         decimal.Decimal     `json:"income"`
		Name           string              `json:"name"`
		Types          []string            `json:"types"`
		PaymentMethods []string            `json:"paymentMethods"`
		Subcategories  map[string][]string `json:"subcategories"`
		Categories     []Category          `json:"categories"`
		Transactions   []Transaction       `json:"transactions"`
	}

	// Category is a spending bucket. Spent is derived from the transactions
	// and is only ever written by Recalculate.
	Category struct {
		ID        string          `json:"id" validate:"required,max=64"`
		Name      string          `json:"name" validate:"required,max=100"`
		Type      string          `json:"type" validate:"required"`
		Color     string          `json:"color,omitempty" validate:"omitempty,hexcolor"`
		Icon      string          `json:"icon,omitempty"`
		Allocated decimal.Decimal `json:"allocated"`
		Spent     decimal.Decimal `json:"spent"`
	}

	// Transaction is a single recorded expense.
	Transaction struct {
		ID            string          `json:"id"`
		Amount        decimal.Decimal `json:"amount"`
		CategoryID    string          `json:"categoryId"`
		Subcategory   string          `json:"subcategory,omitempty"`
		PaymentMethod string          `json:"paymentMethod,omitempty"`
		Description   string          `json:"description,omitempty"`
		Date          string          `json:"date"`
	}

	// TransactionInput carries the user-authored fields of a transaction.
	TransactionInput struct {
		Amount        decimal.Decimal `json:"amount"`
		CategoryID    string          `json:"categoryId" validate:"required,max=64"`
		Subcategory   string          `json:"subcategory" validate:"max=100"`
		PaymentMethod string          `json:"paymentMethod" validate:"max=100"`
		Description   string          `json:"description" validate:"max=200"`
		Date          string          `json:"date" validate:"required,datetime=2006-01-02"`
	}

	// ArchiveSnapshot is the immutable copy of a budget for one period. The
	// budget fields are stored inline next to the period.
	ArchiveSnapshot struct {
		Budget
		Period     string    `json:"period"`
		ArchivedAt time.Time `json:"archivedAt"`
	}

	// UserPreference is the single preference record per user.
	UserPreference struct {
		ActiveBudgetID string `json:"activeBudgetId"`
	}

	// BudgetName is an entry of the budget selector.
	BudgetName struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidAllocation = errors.New("allocation must not be negative")
	ErrInvalidDate       = errors.New("invalid date")
	ErrUnknownType       = errors.New("unknown category type")
	ErrEmptyName         = errors.New("empty name")
	ErrInvalidPeriod     = errors.New("invalid period")
)

var validate = validator.New()

// Validate checks the user-authored transaction fields.
func (in TransactionInput) Validate() error {
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "Date" {
			return fmt.Errorf("%w: %q", ErrInvalidDate, in.Date)
		}
		return fmt.Errorf("invalid transaction: %w", err)
	}
	return nil
}

// Apply builds the transaction with the given id from the input.
func (in TransactionInput) Apply(id string) Transaction {
	return Transaction{
		ID:            id,
		Amount:        in.Amount,
		CategoryID:    strings.TrimSpace(in.CategoryID),
		Subcategory:   strings.TrimSpace(in.Subcategory),
		PaymentMethod: strings.TrimSpace(in.PaymentMethod),
		Description:   strings.TrimSpace(in.Description),
		Date:          in.Date,
	}
}

// Validate checks the category against the types of its budget.
func (c Category) Validate(types []string) error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.Allocated.IsNegative() {
		return ErrInvalidAllocation
	}
	if !slices.Contains(types, c.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownType, c.Type)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid category: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the budget.
func (b Budget) Clone() Budget {
	out := b
	out.Types = slices.Clone(b.Types)
	out.PaymentMethods = slices.Clone(b.PaymentMethods)
	out.Categories = slices.Clone(b.Categories)
	out.Transactions = slices.Clone(b.Transactions)
	if b.Subcategories != nil {
		out.Subcategories = make(map[string][]string, len(b.Subcategories))
		for label, ids := range b.Subcategories {
			out.Subcategories[label] = slices.Clone(ids)
		}
	}
	return out
}

// CategoryIndex returns the position of the category with the given id, or -1.
func (b Budget) CategoryIndex(id string) int {
	return slices.IndexFunc(b.Categories, func(c Category) bool { return c.ID == id })
}

// TransactionIndex returns the position of the transaction with the given id, or -1.
func (b Budget) TransactionIndex(id string) int {
	return slices.IndexFunc(b.Transactions, func(t Transaction) bool { return t.ID == id })
}

// SubcategoriesFor lists the subcategory labels mapped to the category.
func (b Budget) SubcategoriesFor(categoryID string) []string {
	var out []string
	for label, ids := range b.Subcategories {
		if slices.Contains(ids, categoryID) {
			out = append(out, label)
		}
	}
	slices.Sort(out)
	return out
}

// NewTransactionID derives a transaction id from the clock, skipping ids
// already present in the budget.
func (b Budget) NewTransactionID(now time.Time) string {
	ms := now.UnixMilli()
	for {
		id := fmt.Sprintf("trans-%d", ms)
		if b.TransactionIndex(id) < 0 {
			return id
		}
		ms++
	}
}

// NewCategoryID derives a category id from the clock, skipping ids already
// present in the budget.
func (b Budget) NewCategoryID(now time.Time) string {
	ms := now.UnixMilli()
	for {
		id := fmt.Sprintf("cat-%d", ms)
		if b.CategoryIndex(id) < 0 {
			return id
		}
		ms++
	}
}
