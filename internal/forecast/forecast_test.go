package forecast

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"homebudget/internal/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func archive(period, income string, spent map[string]string) core.ArchiveSnapshot {
	b := core.Budget{Income: dec(income), Types: []string{"Needs"}}
	for _, id := range []string{"food", "fuel"} {
		if v, ok := spent[id]; ok {
			b.Categories = append(b.Categories, core.Category{ID: id, Name: id, Type: "Needs", Spent: dec(v)})
		}
	}
	return core.ArchiveSnapshot{Budget: b, Period: period}
}

func TestHistory(t *testing.T) {
	points := History([]core.ArchiveSnapshot{
		archive("2025-02", "1000", map[string]string{"food": "300", "fuel": "50"}),
		archive("2024-12", "900", map[string]string{"food": "100"}),
	})
	if len(points) != 2 || points[0].Period != "2024-12" {
		t.Fatalf("points = %+v", points)
	}
	if !points[1].TotalSpent.Equal(dec("350")) || !points[1].Remaining.Equal(dec("650")) {
		t.Fatalf("february = %+v", points[1])
	}
}

func TestCategoryForecast(t *testing.T) {
	tests := []struct {
		name      string
		spent     []string
		average   string
		projected string
	}{
		{"flat", []string{"100", "100", "100"}, "100", "100"},
		{"rising", []string{"100", "200", "300"}, "200", "400"},
		{"falling clamps at zero", []string{"300", "100", "0"}, "133.33", "0"},
	}
	periods := []string{"2025-01", "2025-02", "2025-03"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var archives []core.ArchiveSnapshot
			// reverse order to check sorting
			for i := len(tt.spent) - 1; i >= 0; i-- {
				archives = append(archives, archive(periods[i], "1000", map[string]string{"food": tt.spent[i]}))
			}
			got, err := CategoryForecast(archives, "food")
			if err != nil {
				t.Fatalf("CategoryForecast() error = %v", err)
			}
			if !got.Average.Equal(dec(tt.average)) || !got.Projected.Equal(dec(tt.projected)) {
				t.Fatalf("got average %s projected %s, want %s / %s", got.Average, got.Projected, tt.average, tt.projected)
			}
			if got.Samples != len(tt.spent) {
				t.Fatalf("samples = %d", got.Samples)
			}
		})
	}
}

func TestCategoryForecastNeedsHistory(t *testing.T) {
	archives := []core.ArchiveSnapshot{
		archive("2025-01", "1000", map[string]string{"food": "10", "fuel": "5"}),
		archive("2025-02", "1000", map[string]string{"food": "20"}),
	}
	if _, err := CategoryForecast(archives, "fuel"); !errors.Is(err, ErrNotEnoughHistory) {
		t.Fatalf("expected ErrNotEnoughHistory, got %v", err)
	}
	b := core.Budget{Categories: []core.Category{{ID: "food", Name: "Food"}, {ID: "fuel", Name: "Fuel"}}}
	all := Forecasts(archives, b)
	if len(all) != 1 || all[0].CategoryID != "food" || all[0].Name != "Food" {
		t.Fatalf("forecasts = %+v", all)
	}
}

func TestProjectPeriodEnd(t *testing.T) {
	b := core.Budget{
		Income:     dec("3000"),
		Categories: []core.Category{{ID: "food", Spent: dec("150")}, {ID: "fuel", Spent: dec("150")}},
	}
	got := ProjectPeriodEnd(b, time.Date(2024, time.February, 10, 12, 0, 0, 0, time.UTC))
	if got.DaysInMonth != 29 || got.DaysElapsed != 10 {
		t.Fatalf("days = %d/%d", got.DaysElapsed, got.DaysInMonth)
	}
	if !got.Projected.Equal(dec("870")) || got.Period != "2024-02" {
		t.Fatalf("projection = %+v", got)
	}
}
