package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"attendboard/internal/metrics"
	"attendboard/internal/model"
)

// ErrUnauthorized is returned when the API rejects the credentials or the
// bearer token (401/403).
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response from the attendance API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("attendance api error %d", e.StatusCode)
	}
	return fmt.Sprintf("attendance api error %d: %s", e.StatusCode, e.Detail)
}

// Unwrap lets callers match auth failures with errors.Is(err, ErrUnauthorized).
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// RegisterRequest is the payload of POST /api/register.
type RegisterRequest struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	EnrollmentNumber string `json:"enrollment_number"`
	Branch           string `json:"branch"`
	Year             int    `json:"year"`
}

// Client calls the attendance REST API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Metrics *metrics.Metrics
}

// New creates a client whose transport attaches the bearer token carried
// by each request's context.
func New(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Metrics: m,
		HTTP: &http.Client{
			Timeout:   timeout,
			Transport: &bearerTransport{base: http.DefaultTransport},
		},
	}
}

// Login exchanges credentials for an access token. The API expects an
// OAuth2 password form with the email in the username field.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := c.do(req, "login", &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("login response carried no access token")
	}
	return out.AccessToken, nil
}

// Register creates a new student account. It does not log in.
func (c *Client) Register(ctx context.Context, in RegisterRequest) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/register", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, "register", nil)
}

// Me returns the profile of the user owning the context's token.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var u model.User
	err := c.get(ctx, "/api/me", "me", &u)
	return u, err
}

// Summary returns the per-subject summary rows in server order.
func (c *Client) Summary(ctx context.Context) ([]model.AttendanceSummary, error) {
	var rows []model.AttendanceSummary
	err := c.get(ctx, "/api/attendance/summary", "summary", &rows)
	return rows, err
}

// RecordsQuery narrows GET /api/attendance. Zero fields are not sent.
type RecordsQuery struct {
	SubjectID string
	// From and To are inclusive bounds on the record date.
	From time.Time
	To   time.Time
}

// IsZero reports whether q filters nothing.
func (q RecordsQuery) IsZero() bool {
	return q.SubjectID == "" && q.From.IsZero() && q.To.IsZero()
}

const queryTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

func (q RecordsQuery) values() url.Values {
	v := url.Values{}
	if q.SubjectID != "" {
		v.Set("subject_id", q.SubjectID)
	}
	if !q.From.IsZero() {
		v.Set("start_date", q.From.Format(queryTimeLayout))
	}
	if !q.To.IsZero() {
		v.Set("end_date", q.To.Format(queryTimeLayout))
	}
	return v
}

// Records returns the current user's attendance records matching q.
func (c *Client) Records(ctx context.Context, q RecordsQuery) ([]model.AttendanceRecord, error) {
	path := "/api/attendance"
	if !q.IsZero() {
		path += "?" + q.values().Encode()
	}
	var recs []model.AttendanceRecord
	err := c.get(ctx, path, "records", &recs)
	return recs, err
}

// Subjects returns all subjects.
func (c *Client) Subjects(ctx context.Context) ([]model.Subject, error) {
	var subs []model.Subject
	err := c.get(ctx, "/api/subjects", "subjects", &subs)
	return subs, err
}

func (c *Client) get(ctx context.Context, path, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, endpoint, out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) (err error) {
	start := time.Now()
	defer func() { c.Metrics.ObserveAPI(endpoint, err, time.Since(start)) }()

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("attendance api %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Detail: detail(bodyBytes)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// detail extracts the "detail" field of an error body, falling back to the
// raw text.
func detail(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(payload.Detail)
		return string(b)
	}
	return strings.TrimSpace(string(body))
}
