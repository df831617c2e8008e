package handler

import (
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"attendboard/internal/apiclient"
	"attendboard/internal/attendance"
	"attendboard/internal/auth"
	"attendboard/internal/metrics"
	"attendboard/internal/model"
)

// Tab is a dashboard pane.
type Tab string

const (
	TabSummary Tab = "summary"
	TabTrend   Tab = "trend"
	TabDetails Tab = "details"
)

// ParseTab maps a query value to a tab, defaulting to the summary.
func ParseTab(s string) Tab {
	switch Tab(strings.ToLower(strings.TrimSpace(s))) {
	case TabTrend:
		return TabTrend
	case TabDetails:
		return TabDetails
	default:
		return TabSummary
	}
}

type Handler struct {
	attendance *attendance.Service
	metrics    *metrics.Metrics
	log        *zap.Logger
	loc        *time.Location
	threshold  float64
	validate   *validator.Validate
	now        func() time.Time
}

func New(svc *attendance.Service, loc *time.Location, threshold float64, log *zap.Logger, m *metrics.Metrics) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" && name != "-" {
			return name
		}
		return f.Name
	})
	return &Handler{
		attendance: svc,
		metrics:    m,
		log:        log.With(zap.String("component", "handler")),
		loc:        loc,
		threshold:  threshold,
		validate:   v,
		now:        time.Now,
	}
}

// ---------- Root ----------

func (h *Handler) Root(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/login")
}

// ---------- Login ----------

type loginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

type loginPage struct {
	Title      string
	Email      string
	Error      string
	Registered bool
	Fields     map[string]string
}

func (h *Handler) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", loginPage{
		Title:      "Sign in",
		Registered: c.Query("registered") == "1",
	})
}

func (h *Handler) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		h.log.Debug("login form unreadable", zap.Error(err))
		c.HTML(http.StatusUnprocessableEntity, "login.html", loginPage{
			Title: "Sign in",
			Error: "Please fill in your email and password.",
		})
		return
	}
	form.Email = strings.TrimSpace(form.Email)

	page := loginPage{Title: "Sign in", Email: form.Email}
	if fields := h.check(form); fields != nil {
		page.Fields = fields
		page.Error = "Please fill in your email and password."
		c.HTML(http.StatusUnprocessableEntity, "login.html", page)
		return
	}

	sess := auth.CurrentSession(c)
	ok := sess.Login(c.Request.Context(), form.Email, form.Password)
	h.metrics.FormSubmitted("login", ok)
	if !ok {
		page.Error = "Invalid email or password"
		c.HTML(http.StatusUnauthorized, "login.html", page)
		return
	}
	if !sess.View().IsAuthenticated {
		page.Error = "Signed in, but your profile could not be loaded. Please try again."
		c.HTML(http.StatusBadGateway, "login.html", page)
		return
	}
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

// ---------- Register ----------

type registerForm struct {
	Name             string `form:"name" validate:"required"`
	Email            string `form:"email" validate:"required,email"`
	Password         string `form:"password" validate:"required"`
	EnrollmentNumber string `form:"enrollment_number" validate:"required"`
	Branch           string `form:"branch" validate:"required"`
	Year             int    `form:"year" validate:"required,min=1,max=4"`
}

type registerPage struct {
	Title  string
	Form   registerForm
	Error  string
	Fields map[string]string
	Years  []int
}

func (h *Handler) RegisterPage(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", registerPage{Title: "Create account", Form: registerForm{Year: 1}, Years: []int{1, 2, 3, 4}})
}

func (h *Handler) Register(c *gin.Context) {
	var form registerForm
	page := registerPage{Title: "Create account", Years: []int{1, 2, 3, 4}}
	if err := c.ShouldBind(&form); err != nil {
		// Only the numeric year can fail to bind.
		page.Form = form
		page.Form.Password = ""
		page.Fields = map[string]string{"year": "must be a number from 1 to 4"}
		page.Error = "Please correct the highlighted fields."
		c.HTML(http.StatusUnprocessableEntity, "register.html", page)
		return
	}
	form.Name = strings.TrimSpace(form.Name)
	form.Email = strings.TrimSpace(form.Email)
	form.EnrollmentNumber = strings.TrimSpace(form.EnrollmentNumber)
	form.Branch = strings.TrimSpace(form.Branch)

	page.Form = form
	page.Form.Password = ""
	if fields := h.check(form); fields != nil {
		page.Fields = fields
		page.Error = "Please correct the highlighted fields."
		c.HTML(http.StatusUnprocessableEntity, "register.html", page)
		return
	}

	ok := auth.CurrentSession(c).Register(c.Request.Context(), apiclient.RegisterRequest{
		Name:             form.Name,
		Email:            form.Email,
		Password:         form.Password,
		EnrollmentNumber: form.EnrollmentNumber,
		Branch:           form.Branch,
		Year:             form.Year,
	})
	h.metrics.FormSubmitted("register", ok)
	if !ok {
		page.Error = "Registration failed. Please try again."
		c.HTML(http.StatusBadRequest, "register.html", page)
		return
	}
	c.Redirect(http.StatusSeeOther, "/login?registered=1")
}

// ---------- Logout ----------

func (h *Handler) Logout(c *gin.Context) {
	if sess := auth.CurrentSession(c); sess != nil {
		sess.Logout(c.Request.Context())
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

// ---------- Dashboard ----------

type dashboardPage struct {
	Title     string
	User      *model.User
	Tab       Tab
	TabLinks  map[string]string
	Month     string
	Filter    recordsFilter
	Failures  []string
	Snapshot  attendance.Snapshot
	Dashboard attendance.Dashboard
}

// recordsFilter is the records filter as accepted from the query string.
// Values that failed to parse are left empty.
type recordsFilter struct {
	SubjectID string `json:"subject_id,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

func (f recordsFilter) Active() bool {
	return f.SubjectID != "" || f.From != "" || f.To != ""
}

// Dashboard fetches the three datasets once and renders every tab from
// them; switching tabs happens in the browser.
func (h *Handler) Dashboard(c *gin.Context) {
	filter, query := h.filter(c)
	snap, dash, ok := h.load(c, query)
	if !ok {
		return
	}
	month := c.Query("month")
	if _, err := time.Parse("2006-01", month); err != nil {
		month = ""
	}
	c.HTML(http.StatusOK, "dashboard.html", dashboardPage{
		Title:     "Attendance dashboard",
		User:      auth.CurrentSession(c).View().User,
		Tab:       ParseTab(c.Query("tab")),
		TabLinks:  tabLinks(c.Request.URL.Query()),
		Month:     month,
		Filter:    filter,
		Failures:  snap.Failures,
		Snapshot:  snap,
		Dashboard: dash,
	})
}

// DashboardData serves the same snapshot and derived series as JSON.
func (h *Handler) DashboardData(c *gin.Context) {
	filter, query := h.filter(c)
	snap, dash, ok := h.load(c, query)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":      auth.CurrentSession(c).View().User,
		"filter":    filter,
		"snapshot":  snap,
		"dashboard": dash,
	})
}

func (h *Handler) load(c *gin.Context, q apiclient.RecordsQuery) (attendance.Snapshot, attendance.Dashboard, bool) {
	sess := auth.CurrentSession(c)
	snap, err := h.attendance.Load(sess.APIContext(c.Request.Context()), q)
	if err != nil {
		// The client is gone; there is nobody to render for.
		h.log.Debug("dashboard load abandoned", zap.Error(err))
		c.Abort()
		return attendance.Snapshot{}, attendance.Dashboard{}, false
	}
	return snap, attendance.Derive(snap, attendance.DeriveOptions{
		Location:  h.loc,
		Threshold: h.threshold,
		Month:     h.month(c.Query("month")),
	}), true
}

// filter reads ?subject=&from=&to= into a records query. Days are taken in
// the dashboard time zone and both ends are inclusive.
func (h *Handler) filter(c *gin.Context) (recordsFilter, apiclient.RecordsQuery) {
	var (
		f recordsFilter
		q apiclient.RecordsQuery
	)
	if id := strings.TrimSpace(c.Query("subject")); id != "" {
		f.SubjectID, q.SubjectID = id, id
	}
	from, fromOK := h.day(c.Query("from"))
	to, toOK := h.day(c.Query("to"))
	if fromOK && toOK && from.After(to) {
		from, to = to, from
	}
	if fromOK {
		f.From, q.From = from.Format(model.DateLayout), from
	}
	if toOK {
		f.To, q.To = to.Format(model.DateLayout), to.AddDate(0, 0, 1).Add(-time.Microsecond)
	}
	return f, q
}

func (h *Handler) day(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(model.DateLayout, v, h.loc)
	return t, err == nil
}

// tabLinks keeps every other query parameter when switching tabs.
func tabLinks(q url.Values) map[string]string {
	links := make(map[string]string, 3)
	for _, tab := range []Tab{TabSummary, TabTrend, TabDetails} {
		v := url.Values{}
		for k, vals := range q {
			v[k] = vals
		}
		v.Set("tab", string(tab))
		links[string(tab)] = "?" + v.Encode()
	}
	return links
}

func (h *Handler) month(q string) time.Time {
	if q != "" {
		if t, err := time.ParseInLocation("2006-01", q, h.loc); err == nil {
			return t
		}
	}
	return h.now().In(h.loc)
}

// Loading is the neutral page the guard shows while a session resolves.
func (h *Handler) Loading(c *gin.Context) {
	c.HTML(http.StatusOK, "loading.html", gin.H{"Title": "Loading"})
}

// check validates form and returns a message per offending field.
func (h *Handler) check(form any) map[string]string {
	err := h.validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"form": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min", "max":
		return "must be between 1 and 4"
	default:
		return "is invalid"
	}
}
