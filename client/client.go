// Package client talks to the board server over HTTP.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/123123eeqweq/omocrm/domain"
)

// ErrTransport marks network failures and undecodable responses. Such
// failures are safe to retry.
var ErrTransport = errors.New("transport failure")

// APIError is returned for every non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client wraps http.Client with the board and auth endpoints. Cookies set by
// the server are kept in a jar and sent back on every request.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its jar is replaced
// when nil.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger enables debug request logging.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse base url: unsupported scheme %q", u.Scheme)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	return c, nil
}

// BaseURL is the server the client talks to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Cookies returns the cookies the jar would send to the server.
func (c *Client) Cookies() map[string]string {
	out := make(map[string]string)
	for _, ck := range c.http.Jar.Cookies(c.base) {
		out[ck.Name] = ck.Value
	}
	return out
}

// SetCookies seeds the jar, typically from persisted state.
func (c *Client) SetCookies(cookies map[string]string) {
	list := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		list = append(list, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	c.http.Jar.SetCookies(c.base, list)
}

type boardResponse struct {
	Cards []domain.Card `json:"cards"`
	Steps []domain.Step `json:"steps"`
}

// LoadBoard fetches the board of projectID.
func (c *Client) LoadBoard(ctx context.Context, projectID string) (domain.Board, error) {
	var resp boardResponse
	if err := c.do(ctx, http.MethodGet, boardPath(projectID), nil, &resp); err != nil {
		return domain.Board{}, fmt.Errorf("load board: %w", err)
	}
	b := domain.Board{Cards: resp.Cards, Steps: resp.Steps}
	if b.Cards == nil {
		b.Cards = []domain.Card{}
	}
	if b.Steps == nil {
		b.Steps = []domain.Step{}
	}
	return b, nil
}

// SaveBoard replaces the stored board of projectID with b.
func (c *Client) SaveBoard(ctx context.Context, projectID string, b domain.Board) error {
	if b.Cards == nil {
		b.Cards = []domain.Card{}
	}
	if b.Steps == nil {
		b.Steps = []domain.Step{}
	}
	if err := c.do(ctx, http.MethodPut, boardPath(projectID), b, nil); err != nil {
		return fmt.Errorf("save board: %w", err)
	}
	return nil
}

type credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login exchanges credentials for a session cookie.
func (c *Client) Login(ctx context.Context, login, password string) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", credentials{Login: login, Password: password}, nil); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// Logout ends the server session. Non-2xx answers are ignored; only
// transport failures are returned.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	var apiErr *APIError
	if err != nil && !errors.As(err, &apiErr) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

type meResponse struct {
	User string `json:"user"`
}

// Me returns the user of the current session.
func (c *Client) Me(ctx context.Context) (string, error) {
	var resp meResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &resp); err != nil {
		return "", fmt.Errorf("me: %w", err)
	}
	return resp.User, nil
}

// CheckSession reports whether the server still accepts the session. It never
// fails: any error counts as an invalid session.
func (c *Client) CheckSession(ctx context.Context) bool {
	_, err := c.Me(ctx)
	return err == nil
}

func boardPath(projectID string) string {
	return "/api/boards/" + url.PathEscape(projectID)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.debug(method, path, 0, start, err)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.debug(method, path, resp.StatusCode, start, err)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrTransport, err)
	}
	return nil
}

func (c *Client) debug(method, path string, status int, start time.Time, err error) {
	if c.logger == nil {
		return
	}
	entry := c.logger.WithFields(log.Fields{
		"method":   method,
		"path":     path,
		"status":   status,
		"total_ms": float64(time.Since(start)) / float64(time.Millisecond),
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("api request")
}

func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := sonic.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return "Request failed"
}
