package voice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"homebudget/internal/core"
)

var now = time.Date(2025, time.March, 15, 9, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	b := core.DefaultBudget()
	tests := []struct {
		name       string
		transcript string
		amount     string
		category   string
		method     string
		sub        string
		desc       string
	}{
		{"keyword and method", "Spent 150 on groceries with cash.", "150", "groceries", "Cash", "", "Groceries"},
		{"decimal comma", "coffee 12,5 bank transfer", "12.5", "diningOut", "Bank Transfer", "Coffee", "Dining Out"},
		{"category name", "45.99 sweet tooth cupcakes", "45.99", "sweetTooth", "Cash", "", "cupcakes"},
		{"longest phrase wins", "20 pet food for rex", "20", "dogEssentials", "Cash", "Pet Food", "rex"},
		{"arabic", "صرفت ١٥٠ على بقالة", "150", "groceries", "Cash", "", "Groceries"},
		{"arabic decimal", "بنزين ٣٠٫٥", "30.5", "fuel", "Cash", "", "Fuel for Car"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.transcript, b, DefaultKeywords(), now)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.transcript, err)
			}
			if !got.Amount.Equal(decimal.RequireFromString(tt.amount)) {
				t.Errorf("amount = %s, want %s", got.Amount, tt.amount)
			}
			if got.CategoryID != tt.category {
				t.Errorf("category = %q, want %q", got.CategoryID, tt.category)
			}
			if got.PaymentMethod != tt.method {
				t.Errorf("payment method = %q, want %q", got.PaymentMethod, tt.method)
			}
			if got.Subcategory != tt.sub {
				t.Errorf("subcategory = %q, want %q", got.Subcategory, tt.sub)
			}
			if got.Description != tt.desc {
				t.Errorf("description = %q, want %q", got.Description, tt.desc)
			}
			if got.Date != "2025-03-15" {
				t.Errorf("date = %q", got.Date)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("parsed input is invalid: %v", err)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	b := core.DefaultBudget()
	tests := []struct {
		transcript string
		want       error
	}{
		{"   ", ErrEmpty},
		{"groceries please", ErrNoAmount},
		{"0 groceries", ErrNoAmount},
		{"spent 20 on the moon", ErrNoCategory},
	}
	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			_, err := Parse(tt.transcript, b, DefaultKeywords(), now)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse(%q) error = %v, want %v", tt.transcript, err, tt.want)
			}
		})
	}
}

func TestParseIgnoresKeywordsForMissingCategories(t *testing.T) {
	b := core.Budget{
		PaymentMethods: []string{"Card"},
		Categories:     []core.Category{{ID: "food", Name: "Food", Type: "Needs"}},
	}
	got, err := Parse("12 groceries food", b, DefaultKeywords(), now)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.CategoryID != "food" {
		t.Fatalf("category = %q, want food", got.CategoryID)
	}
	if got.PaymentMethod != "Card" || got.Description != "groceries" {
		t.Fatalf("got %+v", got)
	}
}

func TestPlainText(t *testing.T) {
	got, err := PlainText{}.Transcribe(context.Background(), strings.NewReader("  20 fuel \n"))
	if err != nil || got != "20 fuel" {
		t.Fatalf("Transcribe() = %q, %v", got, err)
	}
	if _, err := (PlainText{}).Transcribe(context.Background(), strings.NewReader(strings.Repeat("a", maxTranscript+1))); err == nil {
		t.Fatal("expected an error for an oversized transcript")
	}
	if _, err := (PlainText{}).Transcribe(context.Background(), strings.NewReader("\xff\xfe")); err == nil {
		t.Fatal("expected an error for invalid UTF-8")
	}
}
