// Package handlers is the HTTP presentation layer. It owns session
// lifecycle (cookie token to tracker.Session) and renders whatever the
// tracker returns; all business rules live below it.
package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finance-tracker/internal/auth"
	applog "finance-tracker/internal/log"
	"finance-tracker/internal/models"
	"finance-tracker/internal/tracker"
	"finance-tracker/web"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// sessionContextKey is the context key for the authenticated session.
	sessionContextKey contextKey = "session"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	tracker      *tracker.Tracker
	log          *applog.Logger
	registry     *sessionRegistry
	templates    map[string]*template.Template
	secureCookie bool
}

// NewHandlers creates a new Handlers instance. Templates are parsed
// once here, not per request.
func NewHandlers(t *tracker.Tracker, logger *applog.Logger, secureCookie bool) *Handlers {
	templates := make(map[string]*template.Template)
	for _, view := range []string{"login.html", "dashboard.html"} {
		templates[view] = template.Must(template.ParseFS(web.FS, "templates/base.html", "templates/"+view))
	}
	return &Handlers{
		tracker:      t,
		log:          logger.WithComponent("http"),
		registry:     newSessionRegistry(),
		templates:    templates,
		secureCookie: secureCookie,
	}
}

func sessionFromContext(r *http.Request) *tracker.Session {
	if s, ok := r.Context().Value(sessionContextKey).(*tracker.Session); ok {
		return s
	}
	return nil
}

// AuthMiddleware wraps handlers to require an authenticated session.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		sess, ok := h.registry.get(cookie.Value)
		if !ok || !sess.LoggedIn() {
			h.clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthViewModel holds data for the login/signup page.
type AuthViewModel struct {
	Error  string
	Notice string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// Already logged in: straight to the dashboard.
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if sess, ok := h.registry.get(cookie.Value); ok && sess.LoggedIn() {
			http.Redirect(w, r, "/dashboard", http.StatusFound)
			return
		}
	}
	h.render(w, "login.html", AuthViewModel{})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, "login.html", AuthViewModel{Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	sess, err := h.tracker.Login(username, password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			h.render(w, "login.html", AuthViewModel{Error: "Invalid credentials"})
			return
		}
		h.log.Error("login failed", "error", err)
		h.render(w, "login.html", AuthViewModel{Error: "An error occurred. Please try again."})
		return
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		h.log.Error("session token generation failed", "error", err)
		h.render(w, "login.html", AuthViewModel{Error: "An error occurred. Please try again."})
		return
	}
	h.registry.put(token, sess)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// Signup handles the signup form submission. A fresh account is not
// logged in automatically.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, "login.html", AuthViewModel{Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if err := h.tracker.Signup(username, password); err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicateUser):
			h.render(w, "login.html", AuthViewModel{Error: "Username already exists"})
		case errors.Is(err, models.ErrInvalidCredentials):
			h.render(w, "login.html", AuthViewModel{Error: "Username and password are required"})
		default:
			h.log.Error("signup failed", "error", err)
			h.render(w, "login.html", AuthViewModel{Error: "An error occurred. Please try again."})
		}
		return
	}

	h.render(w, "login.html", AuthViewModel{Notice: "Account created! Login now."})
}

// Logout ends the session and clears the cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if sess, ok := h.registry.get(cookie.Value); ok {
			h.tracker.Logout(sess)
		}
		h.registry.remove(cookie.Value)
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// EntryItem is one expense row in the records table.
type EntryItem struct {
	Date     string
	Category string
	Amount   string
	Note     string
}

// CategoryItem is one row of the category distribution.
type CategoryItem struct {
	Category string
	Amount   string
	Percent  string
}

// DayItem is one day of the spending trend.
type DayItem struct {
	Date   string
	Amount string
}

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	Username      string
	Month         string
	Salary        string
	SalaryRaw     string
	TotalExpense  string
	Savings       string
	SavingsPct    string
	IdealSavings  string
	DailyLimit    string
	StatusMessage string
	StatusClass   string
	Entries       []EntryItem
	ByCategory    []CategoryItem
	ByDay         []DayItem
	Categories    []models.Category
	Today         string
	Error         string
}

// Dashboard renders the dashboard for the active month.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.renderDashboard(w, r, "")
}

func (h *Handlers) renderDashboard(w http.ResponseWriter, r *http.Request, formError string) {
	sess := sessionFromContext(r)
	dash, err := h.tracker.Dashboard(sess)
	if err != nil {
		h.log.Error("dashboard failed", "username", sess.Username(), "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	report := dash.Report

	vm := DashboardViewModel{
		Username:      sess.Username(),
		Month:         dash.Month,
		Salary:        formatMoney(report.Salary),
		SalaryRaw:     report.Salary.String(),
		TotalExpense:  formatMoney(report.TotalExpense),
		Savings:       formatMoney(report.Savings),
		SavingsPct:    report.SavingsPct.StringFixed(1),
		IdealSavings:  formatMoney(report.IdealSavings),
		DailyLimit:    formatMoney(report.DailyLimit),
		StatusMessage: statusMessage(report.Status.String()),
		StatusClass:   statusClass(report.Status.String()),
		Categories:    models.Categories(),
		Today:         time.Now().Format("2006-01-02"),
		Error:         formError,
	}

	for _, e := range dash.Entries {
		vm.Entries = append(vm.Entries, EntryItem{
			Date:     e.Date.Format("2006-01-02"),
			Category: string(e.Category),
			Amount:   formatMoney(e.Amount),
			Note:     e.Note,
		})
	}
	for _, c := range report.ByCategory {
		percent := decimal.Zero
		if report.TotalExpense.IsPositive() {
			percent = c.Amount.Div(report.TotalExpense).Mul(decimal.NewFromInt(100))
		}
		vm.ByCategory = append(vm.ByCategory, CategoryItem{
			Category: string(c.Category),
			Amount:   formatMoney(c.Amount),
			Percent:  percent.StringFixed(1),
		})
	}
	for _, d := range report.ByDay {
		vm.ByDay = append(vm.ByDay, DayItem{Date: d.Date, Amount: formatMoney(d.Amount)})
	}

	h.render(w, "dashboard.html", vm)
}

// UpdateSalary handles the salary form submission.
func (h *Handlers) UpdateSalary(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("amount")))
	if err != nil {
		h.renderDashboard(w, r, "Salary must be a number")
		return
	}

	sess := sessionFromContext(r)
	if err := h.tracker.UpdateSalary(sess, amount); err != nil {
		if errors.Is(err, models.ErrInvalidAmount) {
			h.renderDashboard(w, r, "Salary must not be negative")
			return
		}
		h.log.Error("salary update failed", "username", sess.Username(), "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// AddExpense handles the add-expense form submission.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	date, err := time.Parse("2006-01-02", r.FormValue("date"))
	if err != nil {
		h.renderDashboard(w, r, "Date is required")
		return
	}

	category, err := models.ParseCategory(r.FormValue("category"))
	if err != nil {
		h.renderDashboard(w, r, "Unknown category")
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("amount")))
	if err != nil {
		h.renderDashboard(w, r, "Amount must be a number")
		return
	}

	sess := sessionFromContext(r)
	_, err = h.tracker.AddExpense(sess, date, category, amount, r.FormValue("note"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidAmount):
			h.renderDashboard(w, r, "Amount must not be negative")
		case errors.Is(err, models.ErrInvalidCategory):
			h.renderDashboard(w, r, "Unknown category")
		default:
			h.log.Error("add expense failed", "username", sess.Username(), "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (h *Handlers) render(w http.ResponseWriter, viewName string, data any) {
	tmpl, ok := h.templates[viewName]
	if !ok {
		h.log.Error("unknown view", "view", viewName)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		h.log.Error("template execution failed", "view", viewName, "error", err)
	}
}

// formatMoney renders an amount the way the dashboard cards show it.
func formatMoney(d decimal.Decimal) string {
	return "₹ " + d.String()
}

func statusMessage(status string) string {
	switch status {
	case "OnTrack":
		return "You are on track with your savings!"
	case "BelowIdeal":
		return "Savings below ideal. Try reducing expenses."
	default:
		return "No savings left this month!"
	}
}

func statusClass(status string) string {
	switch status {
	case "OnTrack":
		return "on-track"
	case "BelowIdeal":
		return "below-ideal"
	default:
		return "no-savings"
	}
}
