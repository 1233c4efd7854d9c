package tracker

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applog "finance-tracker/internal/log"
	"finance-tracker/internal/metrics"
	"finance-tracker/internal/models"
	"finance-tracker/internal/storage"
)

func newTestTracker(t *testing.T) (*Tracker, *storage.DB) {
	t.Helper()

	db, err := storage.NewDB(":memory:")
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(func() { db.Close() })

	logger := applog.New(applog.Config{
		Handler: slog.NewTextHandler(io.Discard, nil),
	})
	return New(db, logger), db
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSignupAndLogin(t *testing.T) {
	tr, _ := newTestTracker(t)

	require.NoError(t, tr.Signup("alice", "correct horse"))

	sess, err := tr.Login("alice", "correct horse")
	require.NoError(t, err)
	assert.True(t, sess.LoggedIn())
	assert.Equal(t, "alice", sess.Username())
}

func TestLogin_WrongPassword(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "correct horse"))

	_, err := tr.Login("alice", "battery staple")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLogin_UnknownUser(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "correct horse"))

	_, badUserErr := tr.Login("mallory", "correct horse")
	_, badPassErr := tr.Login("alice", "wrong")

	// Same opaque error either way.
	assert.ErrorIs(t, badUserErr, models.ErrInvalidCredentials)
	assert.Equal(t, badUserErr.Error(), badPassErr.Error())
}

func TestSignup_Duplicate(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "pass-one"))

	// Rejected regardless of the password supplied.
	assert.ErrorIs(t, tr.Signup("alice", "pass-two"), models.ErrDuplicateUser)
	assert.ErrorIs(t, tr.Signup("alice", "pass-one"), models.ErrDuplicateUser)
}

func TestSignup_EmptyInputs(t *testing.T) {
	tr, _ := newTestTracker(t)

	assert.ErrorIs(t, tr.Signup("", "secret"), models.ErrInvalidCredentials)
	assert.ErrorIs(t, tr.Signup("alice", ""), models.ErrInvalidCredentials)
	assert.ErrorIs(t, tr.Signup("   ", "secret"), models.ErrInvalidCredentials)
}

func TestLogout_ClearsSessionState(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "secret"))

	sess, err := tr.Login("alice", "secret")
	require.NoError(t, err)
	require.NoError(t, tr.UpdateSalary(sess, d("9000")))

	tr.Logout(sess)

	assert.False(t, sess.LoggedIn())
	assert.Empty(t, sess.Username())
	assert.True(t, sess.Salary().IsZero(), "cached salary must be cleared")

	_, err = tr.Dashboard(sess)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestOperationsRequireLogin(t *testing.T) {
	tr, _ := newTestTracker(t)

	var loggedOut *Session
	assert.ErrorIs(t, tr.UpdateSalary(loggedOut, d("100")), models.ErrNotAuthenticated)
	_, err := tr.AddExpense(loggedOut, time.Now(), models.Food, d("10"), "")
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	_, err = tr.Dashboard(loggedOut)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)

	assert.ErrorIs(t, tr.UpdateSalary(&Session{}, d("100")), models.ErrNotAuthenticated)
}

func TestUpdateSalary(t *testing.T) {
	tr, db := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "secret"))

	sess, err := tr.Login("alice", "secret")
	require.NoError(t, err)

	require.NoError(t, tr.UpdateSalary(sess, d("15000")))
	assert.True(t, sess.Salary().Equal(d("15000")))

	stored, err := db.GetSalary("alice")
	require.NoError(t, err)
	assert.True(t, stored.Equal(d("15000")))
}

func TestUpdateSalary_RejectsNegative(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "secret"))

	sess, err := tr.Login("alice", "secret")
	require.NoError(t, err)

	assert.ErrorIs(t, tr.UpdateSalary(sess, d("-100")), models.ErrInvalidAmount)
}

func TestUpdateSalary_SkipsWriteWhenUnchanged(t *testing.T) {
	tr, db := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "secret"))

	sess, err := tr.Login("alice", "secret")
	require.NoError(t, err)
	require.NoError(t, tr.UpdateSalary(sess, d("15000")))

	// Change the stored value behind the session's back. If the next
	// call really skips the write, the sneaky value survives.
	require.NoError(t, db.SetSalary("alice", d("99999")))
	require.NoError(t, tr.UpdateSalary(sess, d("15000")))

	stored, err := db.GetSalary("alice")
	require.NoError(t, err)
	assert.True(t, stored.Equal(d("99999")), "unchanged salary input must not write")
}

func TestLogin_WarmsSalaryCache(t *testing.T) {
	tr, db := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "secret"))
	require.NoError(t, db.SetSalary("alice", d("42000")))

	sess, err := tr.Login("alice", "secret")
	require.NoError(t, err)
	assert.True(t, sess.Salary().Equal(d("42000")))
}

func TestAddExpenseAndDashboard(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "secret"))

	sess, err := tr.Login("alice", "secret")
	require.NoError(t, err)
	require.NoError(t, tr.UpdateSalary(sess, d("10000")))

	now := time.Now()
	_, err = tr.AddExpense(sess, now, models.Food, d("4000"), "groceries")
	require.NoError(t, err)
	_, err = tr.AddExpense(sess, now, models.Rent, d("2000"), "")
	require.NoError(t, err)

	dash, err := tr.Dashboard(sess)
	require.NoError(t, err)

	assert.Equal(t, models.MonthOf(now), dash.Month)
	require.Len(t, dash.Entries, 2)
	assert.True(t, dash.Report.TotalExpense.Equal(d("6000")))
	assert.True(t, dash.Report.Savings.Equal(d("4000")))
	assert.Equal(t, metrics.OnTrack, dash.Report.Status)
}

func TestAddExpense_Validation(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "secret"))

	sess, err := tr.Login("alice", "secret")
	require.NoError(t, err)

	_, err = tr.AddExpense(sess, time.Now(), models.Food, d("-5"), "")
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = tr.AddExpense(sess, time.Now(), models.Category("Gambling"), d("5"), "")
	assert.ErrorIs(t, err, models.ErrInvalidCategory)
}

// A session is shared by every in-flight request bearing its cookie,
// so overlapping calls must be safe. Run with -race.
func TestSessionConcurrentUse(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "secret"))

	sess, err := tr.Login("alice", "secret")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		amount := decimal.NewFromInt(int64(1000 * (i + 1)))
		wg.Add(3)
		go func() {
			defer wg.Done()
			assert.NoError(t, tr.UpdateSalary(sess, amount))
		}()
		go func() {
			defer wg.Done()
			_, err := tr.Dashboard(sess)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_ = sess.Salary()
		}()
	}
	wg.Wait()

	// Last-writer-wins: the surviving salary is one of the written values.
	dash, err := tr.Dashboard(sess)
	require.NoError(t, err)
	rupees := dash.Report.Salary.IntPart()
	assert.True(t, rupees >= 1000 && rupees <= 8000 && rupees%1000 == 0,
		"unexpected salary %s after concurrent updates", dash.Report.Salary)
}

func TestSessionConcurrentLogout(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "secret"))

	sess, err := tr.Login("alice", "secret")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tr.Logout(sess)
	}()
	go func() {
		defer wg.Done()
		// Races the wipe; must either succeed or report not-logged-in,
		// never corrupt.
		if _, err := tr.AddExpense(sess, time.Now(), models.Food, d("10"), ""); err != nil {
			assert.ErrorIs(t, err, models.ErrNotAuthenticated)
		}
	}()
	wg.Wait()

	assert.False(t, sess.LoggedIn())
}

func TestSessionsAreIsolatedByUser(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Signup("alice", "secret"))
	require.NoError(t, tr.Signup("bob", "secret"))

	aliceSess, err := tr.Login("alice", "secret")
	require.NoError(t, err)
	bobSess, err := tr.Login("bob", "secret")
	require.NoError(t, err)

	require.NoError(t, tr.UpdateSalary(aliceSess, d("10000")))
	_, err = tr.AddExpense(aliceSess, time.Now(), models.Food, d("100"), "")
	require.NoError(t, err)

	bobDash, err := tr.Dashboard(bobSess)
	require.NoError(t, err)
	assert.Empty(t, bobDash.Entries)
	assert.True(t, bobDash.Report.Salary.IsZero())
}
