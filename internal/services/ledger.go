package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"homebudget/internal/core"
	"homebudget/internal/docstore"
	"homebudget/internal/log"
)

// mutateLocked applies fn to a copy of the active budget, rebuilds the
// category totals and writes the result. The local budget changes only when
// the write succeeds. Exactly one notification reports the outcome; a
// declined confirmation returns ErrCancelled without one.
func (s *Session) mutateLocked(ctx context.Context, op, success string, fn func(b *core.Budget) error) error {
	b, err := s.activeLocked()
	if err != nil {
		return s.reject(ctx, op, "No budget selected.", err)
	}
	if err := fn(&b); err != nil {
		if isCancelled(err) {
			return err
		}
		return s.reject(ctx, op, rejectMessage(err), err)
	}
	b = b.Recalculated()
	rev, err := s.store.Put(ctx, docstore.BudgetDoc(s.userID, s.activeID), b)
	if err != nil {
		return s.fail(ctx, op, "Error: Could not save changes to the cloud.", err)
	}
	s.current = &b
	s.rev = rev
	s.syncNameLocked(s.activeID, b.Name)
	s.broadcastLocked()
	s.succeed(ctx, op, success)
	return nil
}

func (s *Session) mutate(ctx context.Context, op, success string, fn func(b *core.Budget) error) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.mutateLocked(ctx, op, success, fn)
}

// AddTransaction records a new expense against an existing category.
func (s *Session) AddTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	var created core.Transaction
	err := s.mutate(ctx, log.OpCreate, "Transaction saved.", func(b *core.Budget) error {
		if err := in.Validate(); err != nil {
			return err
		}
		if b.CategoryIndex(in.CategoryID) < 0 {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, in.CategoryID)
		}
		created = in.Apply(b.NewTransactionID(s.now()))
		b.Transactions = append(b.Transactions, created)
		return nil
	})
	return created, err
}

// UpdateTransaction replaces the fields of an existing transaction, keeping
// its id. A transaction may keep pointing at a category deleted since.
func (s *Session) UpdateTransaction(ctx context.Context, id string, in core.TransactionInput) (core.Transaction, error) {
	var updated core.Transaction
	err := s.mutate(ctx, log.OpUpdate, "Transaction saved.", func(b *core.Budget) error {
		i := b.TransactionIndex(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
		}
		if err := in.Validate(); err != nil {
			return err
		}
		if in.CategoryID != b.Transactions[i].CategoryID && b.CategoryIndex(in.CategoryID) < 0 {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, in.CategoryID)
		}
		updated = in.Apply(id)
		b.Transactions[i] = updated
		return nil
	})
	return updated, err
}

// DeleteTransaction removes a transaction.
func (s *Session) DeleteTransaction(ctx context.Context, id string) error {
	return s.mutate(ctx, log.OpDelete, "Transaction deleted.", func(b *core.Budget) error {
		i := b.TransactionIndex(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
		}
		b.Transactions = slices.Delete(b.Transactions, i, i+1)
		return nil
	})
}

// SaveCategory creates the category when its id is empty and updates the
// category with that id otherwise. Spent is always derived.
func (s *Session) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	var saved core.Category
	err := s.mutate(ctx, log.OpUpdate, "Category saved.", func(b *core.Budget) error {
		c.Name = strings.TrimSpace(c.Name)
		i := -1
		if c.ID == "" {
			c.ID = b.NewCategoryID(s.now())
		} else if i = b.CategoryIndex(c.ID); i < 0 {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, c.ID)
		}
		if err := c.Validate(b.Types); err != nil {
			return err
		}
		if i < 0 {
			b.Categories = append(b.Categories, c)
		} else {
			b.Categories[i] = c
		}
		saved = c
		return nil
	})
	if err == nil {
		saved = s.categorySnapshot(saved)
	}
	return saved, err
}

// categorySnapshot returns the stored version of c with its derived total.
func (s *Session) categorySnapshot(c core.Category) core.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return c
	}
	if i := s.current.CategoryIndex(c.ID); i >= 0 {
		return s.current.Categories[i]
	}
	return c
}

// DeleteCategory removes a category after confirmation. Its transactions stay
// and no longer count towards any category; subcategory mappings drop it.
func (s *Session) DeleteCategory(ctx context.Context, id string) error {
	return s.mutate(ctx, log.OpDelete, "Category deleted.", func(b *core.Budget) error {
		i := b.CategoryIndex(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
		}
		err := s.confirmLocked(ctx,
			fmt.Sprintf("Delete %q?", b.Categories[i].Name),
			"Transactions recorded in this category are kept.")
		if err != nil {
			return err
		}
		b.Categories = slices.Delete(b.Categories, i, i+1)
		for label, ids := range b.Subcategories {
			ids = slices.DeleteFunc(ids, func(c string) bool { return c == id })
			if len(ids) == 0 {
				delete(b.Subcategories, label)
			} else {
				b.Subcategories[label] = ids
			}
		}
		return nil
	})
}

// SetIncome sets the allocatable funds of the period.
func (s *Session) SetIncome(ctx context.Context, income decimal.Decimal) error {
	return s.mutate(ctx, log.OpUpdate, "Income updated.", func(b *core.Budget) error {
		if income.IsNegative() {
			return core.ErrInvalidAmount
		}
		b.Income = income.Round(2)
		return nil
	})
}

// AddType appends a category type.
func (s *Session) AddType(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	return s.mutate(ctx, log.OpCreate, fmt.Sprintf("Type %q added.", name), func(b *core.Budget) error {
		if name == "" {
			return core.ErrEmptyName
		}
		if slices.Contains(b.Types, name) {
			return fmt.Errorf("type %q %w", name, ErrDuplicate)
		}
		b.Types = append(b.Types, name)
		return nil
	})
}

// RemoveType deletes a category type no category uses. The last type stays.
func (s *Session) RemoveType(ctx context.Context, name string) error {
	return s.mutate(ctx, log.OpDelete, fmt.Sprintf("Type %q removed.", name), func(b *core.Budget) error {
		i := slices.Index(b.Types, name)
		if i < 0 {
			return fmt.Errorf("%w: %q", core.ErrUnknownType, name)
		}
		if len(b.Types) == 1 {
			return ErrLastType
		}
		if slices.ContainsFunc(b.Categories, func(c core.Category) bool { return c.Type == name }) {
			return fmt.Errorf("%w: %q", ErrTypeInUse, name)
		}
		b.Types = slices.Delete(b.Types, i, i+1)
		return nil
	})
}

// AddPaymentMethod appends a payment method.
func (s *Session) AddPaymentMethod(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	return s.mutate(ctx, log.OpCreate, fmt.Sprintf("Payment method %q added.", name), func(b *core.Budget) error {
		if name == "" {
			return core.ErrEmptyName
		}
		if slices.Contains(b.PaymentMethods, name) {
			return fmt.Errorf("payment method %q %w", name, ErrDuplicate)
		}
		b.PaymentMethods = append(b.PaymentMethods, name)
		return nil
	})
}

// RemovePaymentMethod deletes a payment method. Transactions keep the label.
func (s *Session) RemovePaymentMethod(ctx context.Context, name string) error {
	return s.mutate(ctx, log.OpDelete, fmt.Sprintf("Payment method %q removed.", name), func(b *core.Budget) error {
		i := slices.Index(b.PaymentMethods, name)
		if i < 0 {
			return fmt.Errorf("%w: %q", ErrPaymentMethodMissing, name)
		}
		b.PaymentMethods = slices.Delete(b.PaymentMethods, i, i+1)
		return nil
	})
}

// SetSubcategory maps a subcategory label to the categories it applies under.
func (s *Session) SetSubcategory(ctx context.Context, label string, categoryIDs []string) error {
	label = strings.TrimSpace(label)
	return s.mutate(ctx, log.OpUpdate, fmt.Sprintf("Subcategory %q saved.", label), func(b *core.Budget) error {
		if label == "" {
			return core.ErrEmptyName
		}
		var ids []string
		for _, id := range categoryIDs {
			if b.CategoryIndex(id) < 0 {
				return fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
			}
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return fmt.Errorf("subcategory %q needs at least one category: %w", label, ErrCategoryNotFound)
		}
		b.Subcategories[label] = ids
		return nil
	})
}

// RemoveSubcategory deletes a subcategory label. Transactions keep the label.
func (s *Session) RemoveSubcategory(ctx context.Context, label string) error {
	return s.mutate(ctx, log.OpDelete, fmt.Sprintf("Subcategory %q removed.", label), func(b *core.Budget) error {
		if _, ok := b.Subcategories[label]; !ok {
			return fmt.Errorf("%w: %q", ErrSubcategoryMissing, label)
		}
		delete(b.Subcategories, label)
		return nil
	})
}

func isCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

func rejectMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return "Request rejected."
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}
