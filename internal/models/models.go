package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors surfaced to callers of the core operations.
var (
	ErrDuplicateUser      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidAmount      = errors.New("amount must not be negative")
	ErrInvalidCategory    = errors.New("unknown expense category")
	ErrNotAuthenticated   = errors.New("not logged in")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Category is the closed set of expense categories.
type Category string

const (
	Food     Category = "Food"
	Rent     Category = "Rent"
	Travel   Category = "Travel"
	Shopping Category = "Shopping"
	Bills    Category = "Bills"
	Others   Category = "Others"
)

// Categories returns all categories in display order.
func Categories() []Category {
	return []Category{Food, Rent, Travel, Shopping, Bills, Others}
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case Food, Rent, Travel, Shopping, Bills, Others:
		return true
	}
	return false
}

// ParseCategory matches a string against the fixed category set,
// case-insensitively. Returns ErrInvalidCategory for anything else.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

// User represents a registered account.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// SalaryRecord holds a user's monthly salary. At most one per user.
type SalaryRecord struct {
	Username string          `json:"username"`
	Salary   decimal.Decimal `json:"salary"`
}

// ExpenseEntry is a single dated expense owned by a user.
//
// Month is the year-month the entry is filed under. It is stamped from
// the clock at insertion time, so it can differ from Date's month when
// the user backdates an entry.
type ExpenseEntry struct {
	ID       int64           `json:"id"`
	Username string          `json:"username"`
	Month    string          `json:"month"`
	Date     time.Time       `json:"date"`
	Category Category        `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note,omitempty"`
}

// MonthOf formats t as a year-month key ("2006-01").
func MonthOf(t time.Time) string {
	return t.Format("2006-01")
}
