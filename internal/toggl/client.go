// Package toggl is a small client for the Toggl Track API v9.
//
// It covers what the timer tools need: identity/workspace lookup, the
// current entry, creating and stopping entries, and listing entries in a
// date range. Nothing is retried; every failure is returned as *Error.
package toggl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.track.toggl.com"
	DefaultTimeout = 10 * time.Second

	apiPrefix    = "/api/v9"
	createdWith  = "toggl-mcp"
	maxErrorBody = 4096
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	Credentials *Credentials
	Timeout     time.Duration
	UserAgent   string
	HTTPClient  *http.Client // optional; Timeout is applied when nil
	Logger      *zap.Logger
	Now         func() time.Time

	// OnRequest is called once per round trip with the response status,
	// or 0 when no response arrived.
	OnRequest func(op string, status int)
}

// Client talks to the Toggl Track API. It is safe for concurrent use.
type Client struct {
	baseURL   string
	creds     *Credentials
	http      *http.Client
	userAgent string
	log       *zap.Logger
	now       func() time.Time
	onRequest func(op string, status int)
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = createdWith
	}
	onRequest := opts.OnRequest
	if onRequest == nil {
		onRequest = func(string, int) {}
	}
	return &Client{
		baseURL:   baseURL,
		creds:     opts.Credentials,
		http:      hc,
		userAgent: ua,
		log:       log.Named("toggl"),
		now:       now,
		onRequest: onRequest,
	}
}

// Me fetches the authenticated user.
// Toggl v9: GET /api/v9/me
func (c *Client) Me(ctx context.Context) (*User, error) {
	var raw rawUser
	if err := c.do(ctx, "fetch identity", http.MethodGet, "/me", nil, nil, &raw); err != nil {
		return nil, err
	}
	return &User{
		ID:                 raw.ID,
		Email:              raw.Email,
		Fullname:           raw.Fullname,
		DefaultWorkspaceID: raw.DefaultWorkspaceID,
		Timezone:           raw.Timezone,
	}, nil
}

// WorkspaceID returns the pinned or cached workspace, resolving the default
// workspace of the account on first use. Failed lookups are not cached.
func (c *Client) WorkspaceID(ctx context.Context) (int64, error) {
	if _, err := c.creds.Token(); err != nil {
		return 0, err
	}
	if id, ok := c.creds.cachedWorkspace(); ok {
		return id, nil
	}
	me, err := c.Me(ctx)
	if err != nil {
		return 0, err
	}
	if me.DefaultWorkspaceID == 0 {
		return 0, &Error{Kind: KindRemote, Op: "fetch identity", Msg: "account has no default workspace"}
	}
	c.creds.setWorkspace(me.DefaultWorkspaceID)
	c.log.Debug("resolved workspace", zap.Int64("workspace_id", me.DefaultWorkspaceID))
	return me.DefaultWorkspaceID, nil
}

// CurrentEntry returns the running entry, or nil when no timer is running.
// Toggl v9: GET /api/v9/me/time_entries/current
func (c *Client) CurrentEntry(ctx context.Context) (*TimeEntry, error) {
	var raw *rawTimeEntry
	if err := c.do(ctx, "fetch current entry", http.MethodGet, "/me/time_entries/current", nil, nil, &raw); err != nil {
		return nil, err
	}
	if raw == nil || raw.ID == 0 {
		return nil, nil
	}
	e := raw.toEntry()
	return &e, nil
}

// CreateEntry starts a running entry in the account's workspace.
// Toggl v9: POST /api/v9/workspaces/{wid}/time_entries
func (c *Client) CreateEntry(ctx context.Context, in NewEntry) (*TimeEntry, error) {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, ValidationError("description is required to start a timer")
	}
	wid, err := c.WorkspaceID(ctx)
	if err != nil {
		return nil, err
	}
	body := createEntryRequest{
		Description: desc,
		Start:       c.now().UTC().Format(time.RFC3339),
		Duration:    RunningDuration,
		CreatedWith: createdWith,
		WorkspaceID: wid,
		ProjectID:   in.ProjectID,
		Tags:        in.Tags,
	}
	var raw rawTimeEntry
	path := fmt.Sprintf("/workspaces/%d/time_entries", wid)
	if err := c.do(ctx, "create entry", http.MethodPost, path, nil, body, &raw); err != nil {
		return nil, err
	}
	if raw.ID == 0 {
		return nil, malformedError("create entry", errors.New("response has no entry id"))
	}
	e := raw.toEntry()
	return &e, nil
}

// StopEntry stops a running entry by setting its stop time to now. A zero
// workspaceID is resolved from the account.
// Toggl v9: PUT /api/v9/workspaces/{wid}/time_entries/{id}
func (c *Client) StopEntry(ctx context.Context, workspaceID, entryID int64) (*TimeEntry, error) {
	if entryID <= 0 {
		return nil, ValidationError("invalid time entry id %d", entryID)
	}
	if workspaceID == 0 {
		wid, err := c.WorkspaceID(ctx)
		if err != nil {
			return nil, err
		}
		workspaceID = wid
	}
	body := stopEntryRequest{Stop: c.now().UTC().Format(time.RFC3339)}
	var raw rawTimeEntry
	path := fmt.Sprintf("/workspaces/%d/time_entries/%d", workspaceID, entryID)
	if err := c.do(ctx, "stop entry", http.MethodPut, path, nil, body, &raw); err != nil {
		var te *Error
		if errors.As(err, &te) && te.Kind == KindNotFound {
			te.Msg = fmt.Sprintf("time entry %d no longer exists", entryID)
		}
		return nil, err
	}
	e := raw.toEntry()
	return &e, nil
}

// ListEntries fetches entries started in [since, until]. The endpoint is not
// paginated.
// Toggl v9: GET /api/v9/me/time_entries?start_date=...&end_date=...
func (c *Client) ListEntries(ctx context.Context, since, until time.Time) ([]TimeEntry, error) {
	q := url.Values{}
	q.Set("start_date", since.UTC().Format(time.RFC3339))
	q.Set("end_date", until.UTC().Format(time.RFC3339))

	var raw []rawTimeEntry
	if err := c.do(ctx, "list entries", http.MethodGet, "/me/time_entries", q, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]TimeEntry, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.toEntry())
	}
	return out, nil
}

// do performs one request. Exactly one HTTP round trip is made per call.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	token, err := c.creds.Token()
	if err != nil {
		return err
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return &Error{Kind: KindConfig, Op: op, Msg: "invalid base URL", Err: err}
	}
	u.Path = strings.TrimRight(u.Path, "/") + apiPrefix + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindInternal, Op: op, Msg: "encode request", Err: err}
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return &Error{Kind: KindInternal, Op: op, Msg: "build request", Err: err}
	}
	// Basic auth: token:api_token
	auth := base64.StdEncoding.EncodeToString([]byte(token + ":api_token"))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("op", op), zap.String("method", method), zap.String("path", u.Path), zap.Error(err))
		c.onRequest(op, 0)
		return networkError(op, err)
	}
	defer resp.Body.Close()
	c.onRequest(op, resp.StatusCode)

	c.log.Debug("request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", u.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(op, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return malformedError(op, err)
	}
	return nil
}
