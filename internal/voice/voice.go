// Package voice turns a spoken expense ("spent 150 on groceries with cash")
// into a transaction for the active budget.
package voice

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"homebudget/internal/core"
)

var (
	ErrNoAmount   = errors.New("no amount heard")
	ErrNoCategory = errors.New("no category recognised")
	ErrEmpty      = errors.New("empty transcript")
)

// maxTranscript bounds the text accepted from a transcriber.
const maxTranscript = 1 << 12

// Transcriber converts recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (string, error)
}

// PlainText is the transcriber for clients that recognise speech on the
// device and upload the resulting UTF-8 text.
type PlainText struct{}

func (PlainText) Transcribe(_ context.Context, audio io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(audio, maxTranscript+1))
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	if len(data) > maxTranscript {
		return "", fmt.Errorf("transcript longer than %d bytes", maxTranscript)
	}
	if !utf8.Valid(data) {
		return "", errors.New("transcript is not valid UTF-8")
	}
	return strings.TrimSpace(string(data)), nil
}

// Keywords maps spoken words or phrases to category ids.
type Keywords map[string]string

// DefaultKeywords covers the categories of the default budget in English and
// Arabic.
func DefaultKeywords() Keywords {
	return Keywords{
		"groceries": "groceries", "grocery": "groceries", "supermarket": "groceries", "food": "groceries",
		"بقالة": "groceries", "سوبر ماركت": "groceries", "طعام": "groceries", "أكل": "groceries",

		"electricity": "utilities", "water": "utilities", "gas bill": "utilities", "utilities": "utilities", "internet": "utilities",
		"كهرباء": "utilities", "مياه": "utilities", "فواتير": "utilities", "انترنت": "utilities",

		"rent": "homeOwnership", "mortgage": "homeOwnership", "maintenance": "homeOwnership",
		"إيجار": "homeOwnership", "صيانة": "homeOwnership",

		"fuel": "fuel", "petrol": "fuel", "gas station": "fuel", "benzine": "fuel",
		"بنزين": "fuel", "وقود": "fuel",

		"doctor": "healthcare", "pharmacy": "healthcare", "medicine": "healthcare",
		"دكتور": "healthcare", "صيدلية": "healthcare", "دواء": "healthcare",

		"dog": "dogEssentials", "vet": "dogEssentials", "pet food": "dogEssentials",
		"كلب": "dogEssentials", "بيطري": "dogEssentials",

		"cigarettes": "cigarettes", "smokes": "cigarettes", "سجائر": "cigarettes", "دخان": "cigarettes",

		"gift": "gifts", "present": "gifts", "هدية": "gifts", "هدايا": "gifts",

		"chocolate": "sweetTooth", "dessert": "sweetTooth", "sweets": "sweetTooth", "candy": "sweetTooth",
		"حلويات": "sweetTooth", "شوكولاتة": "sweetTooth",

		"netflix": "subscriptions", "subscription": "subscriptions", "spotify": "subscriptions", "اشتراك": "subscriptions",

		"restaurant": "diningOut", "dinner": "diningOut", "lunch": "diningOut", "coffee": "diningOut", "cafe": "diningOut",
		"مطعم": "diningOut", "غداء": "diningOut", "عشاء": "diningOut", "قهوة": "diningOut",

		"savings": "savings", "save": "savings", "توفير": "savings", "ادخار": "savings",
	}
}

var amountPattern = regexp.MustCompile(`[0-9]+(?:[.,][0-9]+)?`)

// filler words dropped from the description
var filler = map[string]bool{
	"i": true, "spent": true, "spend": true, "paid": true, "pay": true, "on": true, "for": true,
	"at": true, "with": true, "by": true, "a": true, "the": true, "of": true, "in": true, "and": true,
	"dollars": true, "dollar": true, "pounds": true, "pound": true, "euros": true, "euro": true,
	"صرفت": true, "دفعت": true, "على": true, "في": true, "من": true, "ب": true, "جنيه": true, "دولار": true,
}

// Parse builds a transaction input from a transcript. The first number is the
// amount. The category comes from the keyword table first and the category
// names of the budget second. A payment method or subcategory named in the
// transcript is used; otherwise the first payment method of the budget. The
// remaining words form the description.
func Parse(transcript string, b core.Budget, keywords Keywords, now time.Time) (core.TransactionInput, error) {
	text := strings.ToLower(core.NormalizeDigits(strings.TrimSpace(transcript)))
	if text == "" {
		return core.TransactionInput{}, ErrEmpty
	}

	loc := amountPattern.FindStringIndex(text)
	if loc == nil {
		return core.TransactionInput{}, ErrNoAmount
	}
	amount, err := core.ParseAmount(text[loc[0]:loc[1]])
	if err != nil {
		return core.TransactionInput{}, fmt.Errorf("%w: %v", ErrNoAmount, err)
	}
	rest := stripPunct(text[:loc[0]] + " " + text[loc[1]:])

	categoryID, phrase := matchCategory(rest, b, keywords)
	if categoryID == "" {
		return core.TransactionInput{}, ErrNoCategory
	}
	in := core.TransactionInput{
		Amount:     amount,
		CategoryID: categoryID,
		Date:       core.Today(now),
	}
	// a subcategory may share its word with the category keyword
	if sub, subPhrase := matchLabel(rest, b.SubcategoriesFor(categoryID)); sub != "" {
		in.Subcategory = sub
		rest = removePhrase(rest, subPhrase)
	}
	rest = removePhrase(rest, phrase)

	if method, phrase := matchLabel(rest, b.PaymentMethods); method != "" {
		in.PaymentMethod = method
		rest = removePhrase(rest, phrase)
	} else if len(b.PaymentMethods) > 0 {
		in.PaymentMethod = b.PaymentMethods[0]
	}

	in.Description = describe(rest)
	if in.Description == "" {
		in.Description = b.Categories[b.CategoryIndex(categoryID)].Name
	}
	return in, nil
}

type candidate struct {
	phrase     string
	categoryID string
}

func matchCategory(text string, b core.Budget, keywords Keywords) (string, string) {
	var keyed, named []candidate
	for kw, id := range keywords {
		if b.CategoryIndex(id) >= 0 {
			keyed = append(keyed, candidate{strings.ToLower(kw), id})
		}
	}
	for _, c := range b.Categories {
		named = append(named, candidate{strings.ToLower(c.Name), c.ID})
	}
	for _, set := range [][]candidate{keyed, named} {
		// longest phrase wins, ties broken alphabetically for a stable result
		slices.SortFunc(set, func(a, b candidate) int {
			if n := cmp.Compare(utf8.RuneCountInString(b.phrase), utf8.RuneCountInString(a.phrase)); n != 0 {
				return n
			}
			return strings.Compare(a.phrase, b.phrase)
		})
		for _, c := range set {
			if containsPhrase(text, c.phrase) {
				return c.categoryID, c.phrase
			}
		}
	}
	return "", ""
}

func matchLabel(text string, labels []string) (string, string) {
	sorted := slices.Clone(labels)
	slices.SortFunc(sorted, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	for _, l := range sorted {
		phrase := strings.ToLower(l)
		if containsPhrase(text, phrase) {
			return l, phrase
		}
	}
	return "", ""
}

// containsPhrase reports whether phrase occurs in text as whole words.
func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	words := strings.Fields(phrase)
	fields := strings.Fields(text)
	for i := 0; i+len(words) <= len(fields); i++ {
		if slices.Equal(fields[i:i+len(words)], words) {
			return true
		}
	}
	return false
}

func removePhrase(text, phrase string) string {
	words := strings.Fields(phrase)
	fields := strings.Fields(text)
	for i := 0; i+len(words) <= len(fields); i++ {
		if slices.Equal(fields[i:i+len(words)], words) {
			fields = slices.Delete(fields, i, i+len(words))
			break
		}
	}
	return strings.Join(fields, " ")
}

func stripPunct(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) && r != '\'' {
			return ' '
		}
		return r
	}, text)
}

func describe(text string) string {
	var out []string
	for _, w := range strings.Fields(text) {
		if filler[w] {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}
