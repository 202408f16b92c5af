package toggl

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 8, 1, 9, 30, 0, 0, time.UTC)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

// fakeToggl is an httptest server that records every request it receives.
type fakeToggl struct {
	t     *testing.T
	srv   *httptest.Server
	calls atomic.Int64

	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeToggl(t *testing.T) *fakeToggl {
	t.Helper()
	f := &fakeToggl{t: t, routes: map[string]func(w http.ResponseWriter, r *http.Request){}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		h, ok := f.routes[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.Error(w, "no route", http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeToggl) handle(pattern string, h func(w http.ResponseWriter, r *http.Request)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[pattern] = h
}

func (f *fakeToggl) json(pattern string, status int, body string) {
	f.handle(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func (f *fakeToggl) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeToggl) client(token string, workspaceID int64) *Client {
	return NewClient(Options{
		BaseURL:     f.srv.URL,
		Credentials: NewCredentials(token, workspaceID),
		Timeout:     2 * time.Second,
		Now:         func() time.Time { return fixedNow },
	})
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Options{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
	assert.Equal(t, "toggl-mcp", c.userAgent)
}

func TestMissingTokenFailsWithoutNetwork(t *testing.T) {
	f := newFakeToggl(t)
	c := f.client("", 0)

	_, err := c.CurrentEntry(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindConfig, KindOf(err))

	_, err = c.WorkspaceID(context.Background())
	assert.Equal(t, KindConfig, KindOf(err))
	assert.EqualValues(t, 0, f.calls.Load())
}

func TestRequestsUseBasicAuth(t *testing.T) {
	f := newFakeToggl(t)
	f.json("GET /api/v9/me", http.StatusOK, `{"id":1,"email":"a@b.c","default_workspace_id":42}`)

	me, err := f.client("secret-token", 0).Me(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 42, me.DefaultWorkspaceID)

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("secret-token:api_token"))
	assert.Equal(t, want, reqs[0].Auth)
}

func TestWorkspaceIDResolvedOnceAndCached(t *testing.T) {
	f := newFakeToggl(t)
	f.json("GET /api/v9/me", http.StatusOK, `{"id":1,"default_workspace_id":42}`)
	c := f.client("tok", 0)

	for i := 0; i < 3; i++ {
		id, err := c.WorkspaceID(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 42, id)
	}
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestPinnedWorkspaceSkipsLookup(t *testing.T) {
	f := newFakeToggl(t)
	id, err := f.client("tok", 7).WorkspaceID(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)
	assert.EqualValues(t, 0, f.calls.Load())
}

func TestWorkspaceLookupErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `"Incorrect username and/or password"`, want: KindAuth},
		{name: "forbidden", status: http.StatusForbidden, body: `"forbidden"`, want: KindAuth},
		{name: "server error", status: http.StatusInternalServerError, body: `"boom"`, want: KindRemote},
		{name: "no default workspace", status: http.StatusOK, body: `{"id":1}`, want: KindRemote},
		{name: "malformed", status: http.StatusOK, body: `{"id":`, want: KindRemote},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeToggl(t)
			f.json("GET /api/v9/me", tc.status, tc.body)
			c := f.client("tok", 0)

			_, err := c.WorkspaceID(context.Background())
			require.Error(t, err)
			assert.Equal(t, tc.want, KindOf(err))

			// failures are not cached: the next call asks again
			_, _ = c.WorkspaceID(context.Background())
			assert.EqualValues(t, 2, f.calls.Load())
		})
	}
}

func TestUnauthorizedIsNotRetried(t *testing.T) {
	f := newFakeToggl(t)
	f.json("GET /api/v9/me/time_entries/current", http.StatusUnauthorized, `"Unauthorized"`)

	_, err := f.client("tok", 1).CurrentEntry(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))
	assert.EqualValues(t, 1, f.calls.Load())

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.Status)
	assert.NotContains(t, err.Error(), "tok:")
}

func TestCurrentEntry(t *testing.T) {
	t.Run("null body means no timer", func(t *testing.T) {
		f := newFakeToggl(t)
		f.json("GET /api/v9/me/time_entries/current", http.StatusOK, `null`)

		e, err := f.client("tok", 1).CurrentEntry(context.Background())
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("running entry", func(t *testing.T) {
		f := newFakeToggl(t)
		f.json("GET /api/v9/me/time_entries/current", http.StatusOK,
			`{"id":99,"workspace_id":5,"project_id":12,"description":"Deep work","start":"2025-08-01T08:00:00Z","duration":-1754035200,"tags":["focus"]}`)

		e, err := f.client("tok", 1).CurrentEntry(context.Background())
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.EqualValues(t, 99, e.ID)
		assert.EqualValues(t, 5, e.WorkspaceID)
		require.NotNil(t, e.ProjectID)
		assert.EqualValues(t, 12, *e.ProjectID)
		assert.True(t, e.Running())
		assert.EqualValues(t, 90*60, e.Elapsed(fixedNow))
		assert.Equal(t, []string{"focus"}, e.Tags)
	})
}

func TestCreateEntry(t *testing.T) {
	f := newFakeToggl(t)
	f.json("GET /api/v9/me", http.StatusOK, `{"id":1,"default_workspace_id":42}`)
	f.handle("POST /api/v9/workspaces/42/time_entries", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":1001,"workspace_id":42,"project_id":7,"description":"Write docs","start":"2025-08-01T09:30:00Z","duration":-1}`)
	})

	pid := int64(7)
	e, err := f.client("tok", 0).CreateEntry(context.Background(), NewEntry{Description: "  Write docs ", ProjectID: &pid})
	require.NoError(t, err)
	assert.EqualValues(t, 1001, e.ID)
	assert.Equal(t, "Write docs", e.Description)
	assert.True(t, e.Running())

	reqs := f.recorded()
	require.Len(t, reqs, 2)
	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(reqs[1].Body), &sent))
	assert.Equal(t, "Write docs", sent["description"])
	assert.EqualValues(t, -1, sent["duration"])
	assert.EqualValues(t, 42, sent["workspace_id"])
	assert.EqualValues(t, 7, sent["project_id"])
	assert.Equal(t, "toggl-mcp", sent["created_with"])
	assert.Equal(t, "2025-08-01T09:30:00Z", sent["start"])
	_, hasTags := sent["tags"]
	assert.False(t, hasTags)
}

func TestCreateEntryRejectsEmptyDescriptionLocally(t *testing.T) {
	f := newFakeToggl(t)
	for _, desc := range []string{"", "   ", "\t\n"} {
		_, err := f.client("tok", 0).CreateEntry(context.Background(), NewEntry{Description: desc})
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	}
	assert.EqualValues(t, 0, f.calls.Load())
}

func TestCreateEntryWithoutIDIsMalformed(t *testing.T) {
	f := newFakeToggl(t)
	f.json("POST /api/v9/workspaces/3/time_entries", http.StatusOK, `{}`)

	_, err := f.client("tok", 3).CreateEntry(context.Background(), NewEntry{Description: "x"})
	assert.Equal(t, KindRemote, KindOf(err))
}

func TestStopEntry(t *testing.T) {
	f := newFakeToggl(t)
	f.json("PUT /api/v9/workspaces/5/time_entries/99", http.StatusOK,
		`{"id":99,"workspace_id":5,"description":"Deep work","start":"2025-08-01T08:00:00Z","stop":"2025-08-01T09:30:00Z","duration":5400}`)

	e, err := f.client("tok", 0).StopEntry(context.Background(), 5, 99)
	require.NoError(t, err)
	assert.EqualValues(t, 5400, e.Duration)
	assert.False(t, e.Running())
	require.NotNil(t, e.Stop)

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"stop":"2025-08-01T09:30:00Z"}`, reqs[0].Body)
}

func TestStopEntryResolvesWorkspaceWhenMissing(t *testing.T) {
	f := newFakeToggl(t)
	f.json("GET /api/v9/me", http.StatusOK, `{"id":1,"default_workspace_id":8}`)
	f.json("PUT /api/v9/workspaces/8/time_entries/3", http.StatusOK, `{"id":3,"workspace_id":8,"duration":60}`)

	e, err := f.client("tok", 0).StopEntry(context.Background(), 0, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 60, e.Duration)
}

func TestStopEntryNotFound(t *testing.T) {
	f := newFakeToggl(t)
	f.json("PUT /api/v9/workspaces/5/time_entries/99", http.StatusNotFound, `"Time entry not found"`)

	_, err := f.client("tok", 5).StopEntry(context.Background(), 5, 99)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, err.Error(), "time entry 99 no longer exists")
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestStopEntryRejectsInvalidID(t *testing.T) {
	f := newFakeToggl(t)
	_, err := f.client("tok", 5).StopEntry(context.Background(), 5, 0)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.EqualValues(t, 0, f.calls.Load())
}

func TestListEntriesSendsDateRange(t *testing.T) {
	f := newFakeToggl(t)
	f.json("GET /api/v9/me/time_entries", http.StatusOK, `[
		{"id":1,"workspace_id":5,"description":"a","start":"2025-07-31T08:00:00Z","duration":3600},
		{"id":2,"workspace_id":5,"description":"b","start":"2025-08-01T08:00:00Z","duration":-1}
	]`)

	since := fixedNow.Add(-7 * 24 * time.Hour)
	entries, err := f.client("tok", 5).ListEntries(context.Background(), since, fixedNow)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Running())
	assert.True(t, entries[1].Running())

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Query, "start_date=2025-07-25T09%3A30%3A00Z")
	assert.Contains(t, reqs[0].Query, "end_date=2025-08-01T09%3A30%3A00Z")
}

func TestRemoteErrorKeepsStatusAndBody(t *testing.T) {
	f := newFakeToggl(t)
	f.json("GET /api/v9/me/time_entries", http.StatusBadRequest, strings.Repeat("x", 10000))

	_, err := f.client("tok", 5).ListEntries(context.Background(), fixedNow.Add(-time.Hour), fixedNow)
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindRemote, te.Kind)
	assert.Equal(t, http.StatusBadRequest, te.Status)
	assert.Len(t, te.Body, maxErrorBody)
}

func TestNetworkFailures(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c := NewClient(Options{BaseURL: url, Credentials: NewCredentials("tok", 1)})
		_, err := c.CurrentEntry(context.Background())
		assert.Equal(t, KindNetwork, KindOf(err))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(func() {
			close(release)
			srv.Close()
		})

		c := NewClient(Options{BaseURL: srv.URL, Credentials: NewCredentials("tok", 1), Timeout: 50 * time.Millisecond})
		_, err := c.CurrentEntry(context.Background())
		assert.Equal(t, KindNetwork, KindOf(err))
	})
}

func TestConcurrentCallsDoNotInterfere(t *testing.T) {
	f := newFakeToggl(t)
	f.json("GET /api/v9/me", http.StatusOK, `{"id":1,"default_workspace_id":42}`)
	f.json("POST /api/v9/workspaces/42/time_entries", http.StatusOK, `{"id":5,"workspace_id":42,"description":"x","duration":-1}`)
	f.json("GET /api/v9/me/time_entries", http.StatusOK, `[{"id":1,"duration":60}]`)
	c := f.client("tok", 42)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			e, err := c.CreateEntry(context.Background(), NewEntry{Description: "x"})
			assert.NoError(t, err)
			assert.EqualValues(t, 5, e.ID)
		}()
		go func() {
			defer wg.Done()
			entries, err := c.ListEntries(context.Background(), fixedNow.Add(-time.Hour), fixedNow)
			assert.NoError(t, err)
			assert.Len(t, entries, 1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 40, f.calls.Load())
}

func TestOnRequestReportsEveryRoundTrip(t *testing.T) {
	f := newFakeToggl(t)
	f.json("GET /api/v9/me/time_entries/current", http.StatusOK, `null`)
	f.json("GET /api/v9/me", http.StatusUnauthorized, `"Unauthorized"`)

	type call struct {
		op     string
		status int
	}
	var mu sync.Mutex
	var seen []call
	c := NewClient(Options{
		BaseURL:     f.srv.URL,
		Credentials: NewCredentials("tok", 0),
		OnRequest: func(op string, status int) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, call{op, status})
		},
	})

	_, err := c.CurrentEntry(context.Background())
	require.NoError(t, err)
	_, err = c.WorkspaceID(context.Background())
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []call{
		{"fetch current entry", http.StatusOK},
		{"fetch identity", http.StatusUnauthorized},
	}, seen)
}

func TestOnRequestSeesTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var status = -1
	c := NewClient(Options{
		BaseURL:     url,
		Credentials: NewCredentials("tok", 1),
		OnRequest:   func(_ string, s int) { status = s },
	})
	_, err := c.CurrentEntry(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, status)
}
