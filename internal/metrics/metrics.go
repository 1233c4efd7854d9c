// Package metrics derives savings figures from a month's ledger.
// Everything here is a pure function over a salary and a snapshot of
// expense entries; validation of inputs happens upstream in storage.
package metrics

import (
	"sort"

	"github.com/shopspring/decimal"

	"finance-tracker/internal/models"
)

// Status classifies a month's savings against the ideal target.
type Status string

const (
	OnTrack    Status = "OnTrack"
	BelowIdeal Status = "BelowIdeal"
	NoSavings  Status = "NoSavings"
)

func (s Status) String() string { return string(s) }

var (
	idealSavingsRate = decimal.NewFromFloat(0.30)
	daysPerMonth     = decimal.NewFromInt(30)
	hundred          = decimal.NewFromInt(100)
)

// CategoryAmount is a category's summed spending.
type CategoryAmount struct {
	Category models.Category
	Amount   decimal.Decimal
}

// DailyAmount is one calendar date's summed spending.
type DailyAmount struct {
	Date   string // "2006-01-02"
	Amount decimal.Decimal
}

// Report holds every derived figure the dashboard renders.
type Report struct {
	Salary       decimal.Decimal
	TotalExpense decimal.Decimal
	Savings      decimal.Decimal
	SavingsPct   decimal.Decimal
	IdealSavings decimal.Decimal
	DailyLimit   decimal.Decimal
	Status       Status
	ByCategory   []CategoryAmount
	ByDay        []DailyAmount
}

// Compute derives all metrics for one user-month.
func Compute(salary decimal.Decimal, entries []models.ExpenseEntry) Report {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}

	savings := salary.Sub(total)
	ideal := salary.Mul(idealSavingsRate)

	pct := decimal.Zero
	limit := decimal.Zero
	if salary.IsPositive() {
		pct = savings.Div(salary).Mul(hundred)
		limit = salary.Sub(ideal).Div(daysPerMonth)
	}

	return Report{
		Salary:       salary,
		TotalExpense: total,
		Savings:      savings,
		SavingsPct:   pct,
		IdealSavings: ideal,
		DailyLimit:   limit,
		Status:       classify(savings, ideal),
		ByCategory:   categoryBreakdown(entries),
		ByDay:        dailyBreakdown(entries),
	}
}

// classify orders its checks so savings == ideal is OnTrack and
// savings == 0 is NoSavings.
func classify(savings, ideal decimal.Decimal) Status {
	switch {
	case savings.GreaterThanOrEqual(ideal):
		return OnTrack
	case savings.IsPositive():
		return BelowIdeal
	default:
		return NoSavings
	}
}

func categoryBreakdown(entries []models.ExpenseEntry) []CategoryAmount {
	sums := make(map[models.Category]decimal.Decimal)
	for _, e := range entries {
		sums[e.Category] = sums[e.Category].Add(e.Amount)
	}

	// Fixed category order keeps the distribution stable across renders.
	var out []CategoryAmount
	for _, c := range models.Categories() {
		if amount, ok := sums[c]; ok {
			out = append(out, CategoryAmount{Category: c, Amount: amount})
		}
	}
	return out
}

func dailyBreakdown(entries []models.ExpenseEntry) []DailyAmount {
	sums := make(map[string]decimal.Decimal)
	for _, e := range entries {
		day := e.Date.Format("2006-01-02")
		sums[day] = sums[day].Add(e.Amount)
	}

	days := make([]string, 0, len(sums))
	for day := range sums {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make([]DailyAmount, 0, len(days))
	for _, day := range days {
		out = append(out, DailyAmount{Date: day, Amount: sums[day]})
	}
	return out
}
