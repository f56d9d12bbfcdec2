// Package forecast derives spending history and projections from archived
// months.
package forecast

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"homebudget/internal/core"
)

// ErrNotEnoughHistory is returned when fewer than two archived months mention
// the category.
var ErrNotEnoughHistory = errors.New("not enough history")

// Point is one archived month of the history chart.
type Point struct {
	Period     string          `json:"period"`
	Income     decimal.Decimal `json:"income"`
	TotalSpent decimal.Decimal `json:"totalSpent"`
	Remaining  decimal.Decimal `json:"remaining"`
}

// History summarises archives in ascending period order.
func History(archives []core.ArchiveSnapshot) []Point {
	sorted := sortedByPeriod(archives)
	points := make([]Point, 0, len(sorted))
	for _, a := range sorted {
		s := core.Summarize(a.Budget)
		points = append(points, Point{
			Period:     a.Period,
			Income:     s.Income,
			TotalSpent: s.TotalSpent,
			Remaining:  s.Remaining,
		})
	}
	return points
}

// Category is the projection of one category for the next period.
type Category struct {
	CategoryID string          `json:"categoryId"`
	Name       string          `json:"name"`
	Average    decimal.Decimal `json:"average"`
	Projected  decimal.Decimal `json:"projected"`
	Samples    int             `json:"samples"`
}

// CategoryForecast averages the archived spend of a category and projects the
// next period with a least-squares trend line. Months where the category did
// not exist are skipped. The projection is never negative.
func CategoryForecast(archives []core.ArchiveSnapshot, categoryID string) (Category, error) {
	out := Category{CategoryID: categoryID}
	var ys []decimal.Decimal
	for _, a := range sortedByPeriod(archives) {
		i := a.CategoryIndex(categoryID)
		if i < 0 {
			continue
		}
		ys = append(ys, a.Categories[i].Spent)
		out.Name = a.Categories[i].Name
	}
	out.Samples = len(ys)
	if len(ys) < 2 {
		return out, ErrNotEnoughHistory
	}

	n := decimal.NewFromInt(int64(len(ys)))
	sumY := decimal.Zero
	for _, y := range ys {
		sumY = sumY.Add(y)
	}
	meanY := sumY.Div(n)
	meanX := decimal.NewFromInt(int64(len(ys) - 1)).Div(decimal.NewFromInt(2))

	num, den := decimal.Zero, decimal.Zero
	for i, y := range ys {
		dx := decimal.NewFromInt(int64(i)).Sub(meanX)
		num = num.Add(dx.Mul(y.Sub(meanY)))
		den = den.Add(dx.Mul(dx))
	}
	slope := num.Div(den)
	next := n.Sub(meanX)
	projected := meanY.Add(slope.Mul(next))
	if projected.IsNegative() {
		projected = decimal.Zero
	}

	out.Average = meanY.Round(2)
	out.Projected = projected.Round(2)
	return out, nil
}

// Forecasts projects every category of b that has enough history.
func Forecasts(archives []core.ArchiveSnapshot, b core.Budget) []Category {
	out := make([]Category, 0, len(b.Categories))
	for _, c := range b.Categories {
		f, err := CategoryForecast(archives, c.ID)
		if err != nil {
			continue
		}
		f.Name = c.Name
		out = append(out, f)
	}
	return out
}

// PeriodEnd extrapolates the spend of the running month.
type PeriodEnd struct {
	Period      string          `json:"period"`
	Spent       decimal.Decimal `json:"spent"`
	Projected   decimal.Decimal `json:"projected"`
	Income      decimal.Decimal `json:"income"`
	DaysElapsed int             `json:"daysElapsed"`
	DaysInMonth int             `json:"daysInMonth"`
}

// ProjectPeriodEnd scales the current spend of b linearly to the whole month
// containing now.
func ProjectPeriodEnd(b core.Budget, now time.Time) PeriodEnd {
	s := core.Summarize(b)
	days := daysIn(now)
	elapsed := now.Day()
	return PeriodEnd{
		Period:      core.PeriodOf(now),
		Spent:       s.TotalSpent,
		Projected:   s.TotalSpent.Mul(decimal.NewFromInt(int64(days))).Div(decimal.NewFromInt(int64(elapsed))).Round(2),
		Income:      s.Income,
		DaysElapsed: elapsed,
		DaysInMonth: days,
	}
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func sortedByPeriod(archives []core.ArchiveSnapshot) []core.ArchiveSnapshot {
	sorted := slices.Clone(archives)
	slices.SortStableFunc(sorted, func(a, b core.ArchiveSnapshot) int { return strings.Compare(a.Period, b.Period) })
	return sorted
}
