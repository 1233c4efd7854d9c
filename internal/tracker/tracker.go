// Package tracker is the core of the finance tracker: it gates every
// operation behind an authenticated session and composes the credential
// store, ledger store and metrics engine.
package tracker

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"finance-tracker/internal/auth"
	applog "finance-tracker/internal/log"
	"finance-tracker/internal/metrics"
	"finance-tracker/internal/models"
	"finance-tracker/internal/storage"
)

// Session is the authenticated-user state for one presentation-layer
// session. The caller owns its lifecycle and passes it into every
// operation; a zero Session is logged out.
//
// The cached salary mirrors the last value read or written so the
// salary input can avoid redundant upserts.
//
// One Session is shared by every in-flight request bearing its cookie,
// so mu guards all fields. Must not be copied.
type Session struct {
	mu           sync.Mutex
	username     string
	cachedSalary decimal.Decimal
	active       bool
}

// Username returns the logged-in username, empty when logged out.
func (s *Session) Username() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ""
	}
	return s.username
}

// LoggedIn reports whether the session is authenticated.
func (s *Session) LoggedIn() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Salary returns the session-cached salary value.
func (s *Session) Salary() decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return decimal.Zero
	}
	return s.cachedSalary
}

// Dashboard is everything the presentation layer renders for one
// user-month.
type Dashboard struct {
	Month   string
	Report  metrics.Report
	Entries []models.ExpenseEntry
}

// Tracker exposes the core operations to the presentation layer.
type Tracker struct {
	db  *storage.DB
	log *applog.Logger
}

// New creates a Tracker over the given store.
func New(db *storage.DB, logger *applog.Logger) *Tracker {
	return &Tracker{db: db, log: logger.WithComponent("tracker")}
}

// Signup registers a new account. It never authenticates the caller;
// a fresh signup still has to log in.
func (t *Tracker) Signup(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.ErrInvalidCredentials
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := t.db.CreateUser(username, hash); err != nil {
		return err
	}

	t.log.Info("user registered", "username", username)
	return nil
}

// Login verifies credentials and returns an authenticated session with
// the salary cache warmed. The error never says whether the username
// or the password was wrong.
func (t *Tracker) Login(username, password string) (*Session, error) {
	user, err := t.db.GetUserByUsername(strings.TrimSpace(username))
	if errors.Is(err, sql.ErrNoRows) {
		// Burn a hash check so unknown users cost the same as bad passwords.
		auth.BurnPasswordCheck(password)
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, models.ErrInvalidCredentials
	}

	salary, err := t.db.GetSalary(user.Username)
	if err != nil {
		return nil, err
	}

	t.log.Info("user logged in", "username", user.Username)
	return &Session{username: user.Username, cachedSalary: salary, active: true}, nil
}

// Logout clears all session-scoped state.
func (t *Tracker) Logout(s *Session) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	t.log.Info("user logged out", "username", s.username)
	s.username = ""
	s.cachedSalary = decimal.Zero
	s.active = false
}

// UpdateSalary upserts the user's salary. The write is skipped when the
// new value equals the session cache.
func (t *Tracker) UpdateSalary(s *Session, amount decimal.Decimal) error {
	if s == nil {
		return models.ErrNotAuthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return models.ErrNotAuthenticated
	}
	if amount.IsNegative() {
		return models.ErrInvalidAmount
	}
	if amount.Equal(s.cachedSalary) {
		return nil
	}

	if err := t.db.SetSalary(s.username, amount); err != nil {
		return err
	}
	s.cachedSalary = amount

	t.log.Info("salary updated", "username", s.username)
	return nil
}

// AddExpense records a dated expense for the session's user and returns
// the new entry id. Calls on the same session are serialized, so a
// double-submitted form cannot interleave with a logout wipe.
func (t *Tracker) AddExpense(s *Session, date time.Time, category models.Category, amount decimal.Decimal, note string) (int64, error) {
	if s == nil {
		return 0, models.ErrNotAuthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return 0, models.ErrNotAuthenticated
	}

	id, err := t.db.AddExpense(s.username, date, category, amount, note)
	if err != nil {
		return 0, err
	}

	t.log.Info("expense added",
		"username", s.username,
		"id", id,
		"category", string(category),
		"amount", amount.String())
	return id, nil
}

// Dashboard assembles the current month's ledger snapshot and derived
// metrics for the session's user.
func (t *Tracker) Dashboard(s *Session) (Dashboard, error) {
	if s == nil {
		return Dashboard{}, models.ErrNotAuthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return Dashboard{}, models.ErrNotAuthenticated
	}

	salary, err := t.db.GetSalary(s.username)
	if err != nil {
		return Dashboard{}, err
	}
	s.cachedSalary = salary

	month := storage.CurrentMonth()
	entries, err := t.db.ListExpenses(s.username, month)
	if err != nil {
		return Dashboard{}, err
	}

	return Dashboard{
		Month:   month,
		Report:  metrics.Compute(salary, entries),
		Entries: entries,
	}, nil
}
