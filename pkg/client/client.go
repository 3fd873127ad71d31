// Package client is a Go consumer of the user-portal API. It keeps the token
// pair in a persistent or session-only credential store, attaches the access
// token to outgoing calls, and transparently renews it when a call comes back
// unauthorized, with at most one refresh call in flight at a time.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrSessionExpired means renewal failed and all stored session state has
// been cleared; the caller should route the user back to login.
var ErrSessionExpired = errors.New("session expired")

// APIStatusError is a non-2xx response that is not a renewable 401.
type APIStatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIStatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

type Client struct {
	baseURL    string
	httpClient *http.Client

	persistent Store
	ephemeral  Store

	mu     sync.Mutex // guards active
	active Store

	renewals renewalGroup
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithPersistentStore(store Store) Option {
	return func(c *Client) { c.persistent = store }
}

func WithCredentialsFile(path string) Option {
	return func(c *Client) { c.persistent = NewFileStore(path) }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ephemeral:  NewMemStore(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.persistent == nil {
		c.persistent = NewMemStore()
	}

	// Resume whichever scope holds a session from a previous run.
	c.active = c.ephemeral
	if _, held, err := c.persistent.Load(); err == nil && held {
		c.active = c.persistent
	}

	return c
}

type authPayload struct {
	Message      string `json:"message"`
	UserData     User   `json:"UserData"`
	AccessToken  string `json:"AccessToken"`
	RefreshToken string `json:"RefreshToken"`
}

type refreshPayload struct {
	AccessToken string `json:"AccessToken"`
}

type mePayload struct {
	Message  string `json:"message"`
	UserData User   `json:"UserData"`
}

type UserList struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

type RegisterParams struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Register creates an account and opens a session, stored persistently when
// remember is true.
func (c *Client) Register(ctx context.Context, params RegisterParams, remember bool) (User, error) {
	var payload authPayload
	if err := c.postJSON(ctx, "/api/auth/register", params, &payload); err != nil {
		return User{}, err
	}

	if err := c.adoptSession(payload, remember); err != nil {
		return User{}, err
	}

	return payload.UserData, nil
}

// Login authenticates and stores the session in the chosen scope. The other
// scope is cleared so no stale copy survives a scope switch.
func (c *Client) Login(ctx context.Context, email string, password string, remember bool) (User, error) {
	body := map[string]string{"email": email, "password": password}

	var payload authPayload
	if err := c.postJSON(ctx, "/api/auth/login", body, &payload); err != nil {
		return User{}, err
	}

	if err := c.adoptSession(payload, remember); err != nil {
		return User{}, err
	}

	return payload.UserData, nil
}

// Logout revokes the server-side session and clears both scopes. The server
// reports success even for dead tokens, so the local state always ends clean.
func (c *Client) Logout(ctx context.Context) error {
	session, held, err := c.activeStore().Load()
	if err == nil && held && session.RefreshToken != "" {
		body := map[string]string{"refreshToken": session.RefreshToken}
		_ = c.postJSON(ctx, "/api/auth/logout", body, nil)
	}

	return c.clearAll()
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var payload mePayload
	if err := c.getAuthed(ctx, "/api/auth/me", nil, &payload); err != nil {
		return User{}, err
	}
	return payload.UserData, nil
}

func (c *Client) Users(ctx context.Context, page int, limit int) (UserList, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var payload UserList
	if err := c.getAuthed(ctx, "/api/users", query, &payload); err != nil {
		return UserList{}, err
	}
	return payload, nil
}

func (c *Client) adoptSession(payload authPayload, remember bool) error {
	session := Session{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		User:         payload.UserData,
	}

	active, other := c.ephemeral, Store(c.persistent)
	if remember {
		active, other = c.persistent, c.ephemeral
	}

	if err := active.Save(session); err != nil {
		return err
	}

	c.mu.Lock()
	c.active = active
	c.mu.Unlock()

	return other.Clear()
}

func (c *Client) clearAll() error {
	err := c.persistent.Clear()
	if clearErr := c.ephemeral.Clear(); err == nil {
		err = clearErr
	}

	c.mu.Lock()
	c.active = c.ephemeral
	c.mu.Unlock()

	return err
}

func (c *Client) activeStore() Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// getAuthed performs a bearer-authenticated GET, renewing the access token
// when needed. A call is retried at most once; a second 401 after a
// completed renewal is terminal.
func (c *Client) getAuthed(ctx context.Context, path string, query url.Values, out any) error {
	accessToken, ok := c.currentAccessToken()
	if !ok {
		renewed, err := c.renewAccessToken(ctx)
		if err != nil {
			return err
		}
		accessToken = renewed
	}

	status, body, err := c.send(ctx, http.MethodGet, path, query, nil, accessToken)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		renewed, err := c.renewAccessToken(ctx)
		if err != nil {
			return err
		}

		status, body, err = c.send(ctx, http.MethodGet, path, query, nil, renewed)
		if err != nil {
			return err
		}
	}

	return decodeResponse(status, body, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in any, out any) error {
	encoded, err := json.Marshal(in)
	if err != nil {
		return err
	}

	status, body, err := c.send(ctx, http.MethodPost, path, nil, encoded, "")
	if err != nil {
		return err
	}

	return decodeResponse(status, body, out)
}

// currentAccessToken returns the stored access token unless its decoded
// expiry says it is already dead, in which case it is dropped locally.
func (c *Client) currentAccessToken() (string, bool) {
	session, held, err := c.activeStore().Load()
	if err != nil || !held || session.AccessToken == "" {
		return "", false
	}

	if tokenExpired(session.AccessToken) {
		return "", false
	}

	return session.AccessToken, true
}

// renewAccessToken funnels every caller through the single-flight cell:
// exactly one refresh request runs; late arrivals wait for its outcome. A
// failed renewal clears all stored session state before the waiters resume.
func (c *Client) renewAccessToken(ctx context.Context) (string, error) {
	leader, wait := c.renewals.join()
	if !leader {
		select {
		case res := <-wait:
			return res.accessToken, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	res := c.doRenew(ctx)
	c.renewals.settle(res)
	return res.accessToken, res.err
}

func (c *Client) doRenew(ctx context.Context) renewResult {
	session, held, err := c.activeStore().Load()
	if err != nil || !held || session.RefreshToken == "" {
		_ = c.clearAll()
		return renewResult{err: ErrSessionExpired}
	}

	encoded, err := json.Marshal(map[string]string{"refreshToken": session.RefreshToken})
	if err != nil {
		return renewResult{err: err}
	}

	status, body, err := c.send(ctx, http.MethodPost, "/api/auth/refresh", nil, encoded, "")
	if err != nil {
		return renewResult{err: err}
	}

	if status != http.StatusOK {
		_ = c.clearAll()
		return renewResult{err: ErrSessionExpired}
	}

	var payload refreshPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.AccessToken == "" {
		_ = c.clearAll()
		return renewResult{err: ErrSessionExpired}
	}

	// Same scope as before: the active store keeps its backing.
	session.AccessToken = payload.AccessToken
	if err := c.activeStore().Save(session); err != nil {
		return renewResult{err: err}
	}

	return renewResult{accessToken: payload.AccessToken}
}

func (c *Client) send(ctx context.Context, method string, path string, query url.Values, body []byte, bearer string) (int, []byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, data, nil
}

func decodeResponse(status int, body []byte, out any) error {
	if status < 200 || status > 299 {
		return statusError(status, body)
	}

	if out == nil {
		return nil
	}

	return json.Unmarshal(body, out)
}

func statusError(status int, body []byte) error {
	apiErr := &APIStatusError{StatusCode: status}

	var envelope struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}

	return apiErr
}
