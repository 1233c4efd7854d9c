// Package storage persists users, salaries and expenses in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finance-tracker/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// timeNow is stubbed in tests; expense months are stamped from it.
var timeNow = time.Now

// DB wraps a sql.DB connection. Every write is a single autocommitted
// statement, so a call that returned has committed and a call that
// failed left nothing behind.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CurrentMonth returns the year-month key expenses are being filed
// under right now.
func CurrentMonth() string {
	return models.MonthOf(timeNow())
}

// CreateUser registers a new user with an already-hashed password.
// Returns models.ErrDuplicateUser when the username is taken.
func (db *DB) CreateUser(username, passwordHash string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)", username,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if exists {
		return models.ErrDuplicateUser
	}

	if _, err := tx.Exec(
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		username, passwordHash,
	); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return tx.Commit()
}

// GetUserByUsername retrieves a user by username. Returns
// sql.ErrNoRows when no such user exists.
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT username, password_hash FROM users WHERE username = ?",
		username,
	)

	var u models.User
	if err := row.Scan(&u.Username, &u.PasswordHash); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetSalary returns the user's recorded salary, zero when absent.
func (db *DB) GetSalary(username string) (decimal.Decimal, error) {
	var raw string
	err := db.conn.QueryRow(
		"SELECT salary FROM salary WHERE username = ?", username,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get salary: %w", err)
	}

	salary, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse stored salary %q: %w", raw, err)
	}
	return salary, nil
}

// SetSalary upserts the user's salary. Negative amounts are rejected
// with models.ErrInvalidAmount.
func (db *DB) SetSalary(username string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return models.ErrInvalidAmount
	}

	_, err := db.conn.Exec(
		`INSERT INTO salary (username, salary) VALUES (?, ?)
		 ON CONFLICT(username) DO UPDATE SET salary = excluded.salary`,
		username, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("set salary: %w", err)
	}
	return nil
}

// AddExpense appends an expense entry and returns its id.
//
// The entry's month is stamped from the current time, not from date:
// a backdated expense still files under the month it was entered in.
// The dashboard was built around that behavior, so deriving month from
// date would silently move entries out of the active view.
func (db *DB) AddExpense(username string, date time.Time, category models.Category, amount decimal.Decimal, note string) (int64, error) {
	if amount.IsNegative() {
		return 0, models.ErrInvalidAmount
	}
	if !category.Valid() {
		return 0, models.ErrInvalidCategory
	}

	month := models.MonthOf(timeNow())

	result, err := db.conn.Exec(
		"INSERT INTO expenses (username, month, date, category, amount, note) VALUES (?, ?, ?, ?, ?, ?)",
		username, month, date.Format(dateLayout), string(category), amount.String(), note,
	)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("expense id: %w", err)
	}
	return id, nil
}

// ListExpenses retrieves one user-month's expenses in insertion order.
func (db *DB) ListExpenses(username, month string) ([]models.ExpenseEntry, error) {
	rows, err := db.conn.Query(
		`SELECT id, username, month, date, category, amount, note
		 FROM expenses WHERE username = ? AND month = ? ORDER BY id`,
		username, month,
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var entries []models.ExpenseEntry
	for rows.Next() {
		var (
			e           models.ExpenseEntry
			rawDate     string
			rawCategory string
			rawAmount   string
		)
		if err := rows.Scan(&e.ID, &e.Username, &e.Month, &rawDate, &rawCategory, &rawAmount, &e.Note); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}

		e.Date, err = time.Parse(dateLayout, rawDate)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", rawDate, err)
		}
		e.Amount, err = decimal.NewFromString(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("parse stored amount %q: %w", rawAmount, err)
		}
		e.Category = models.Category(rawCategory)

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
