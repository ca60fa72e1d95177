package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accfleet/accfleet/pkg/browser"
	"github.com/accfleet/accfleet/pkg/proxycheck"
)

type fakeSessions struct {
	session *browser.Session
	err     error

	lastKey      browser.SessionKey
	lastMaterial browser.AuthMaterial
	lastProxy    *browser.ProxyDescriptor
	lastHeadless bool
	noWaitUsed   bool

	closedKeys []browser.SessionKey
	closedAll  bool
	toggledKey browser.SessionKey

	summaries []browser.SessionSummary
	count     int
}

func (f *fakeSessions) Create(_ context.Context, key browser.SessionKey, material browser.AuthMaterial, proxy *browser.ProxyDescriptor, headless bool) (*browser.Session, error) {
	f.lastKey, f.lastMaterial, f.lastProxy, f.lastHeadless = key, material, proxy, headless
	return f.session, f.err
}

func (f *fakeSessions) CreateNoWait(ctx context.Context, key browser.SessionKey, material browser.AuthMaterial, proxy *browser.ProxyDescriptor, headless bool) (*browser.Session, error) {
	f.noWaitUsed = true
	return f.Create(ctx, key, material, proxy, headless)
}

func (f *fakeSessions) Get(key browser.SessionKey) (*browser.Session, error) {
	f.lastKey = key
	return f.session, f.err
}

func (f *fakeSessions) Close(key browser.SessionKey) error {
	f.closedKeys = append(f.closedKeys, key)
	return f.err
}

func (f *fakeSessions) CloseAll() error {
	f.closedAll = true
	return f.err
}

func (f *fakeSessions) ToggleVisibility(_ context.Context, key browser.SessionKey) (*browser.Session, error) {
	f.toggledKey = key
	return f.session, f.err
}

func (f *fakeSessions) List() []browser.SessionSummary { return f.summaries }
func (f *fakeSessions) Count() int                     { return f.count }

type fakeProber struct {
	report browser.StatusReport
	err    error
}

func (f *fakeProber) Classify(context.Context, *browser.Session) (browser.StatusReport, error) {
	return f.report, f.err
}

type fakeChecker struct {
	result   proxycheck.Result
	lastDesc browser.ProxyDescriptor
}

func (f *fakeChecker) Check(_ context.Context, desc browser.ProxyDescriptor) proxycheck.Result {
	f.lastDesc = desc
	return f.result
}

func newTestServer(sessions *fakeSessions, prober *fakeProber, checker *fakeChecker) *Server {
	if sessions == nil {
		sessions = &fakeSessions{}
	}
	if prober == nil {
		prober = &fakeProber{}
	}
	if checker == nil {
		checker = &fakeChecker{}
	}
	return NewServer(sessions, prober, checker, nil)
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	rec := doJSON(t, newTestServer(nil, nil, nil), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestCreateSession(t *testing.T) {
	sessions := &fakeSessions{session: &browser.Session{Key: "acct-1"}}
	srv := newTestServer(sessions, nil, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions", map[string]interface{}{
		"key": "acct-1",
		"cookies": []map[string]string{
			{"name": "c_user", "value": "100001", "domain": ".facebook.com", "path": "/"},
		},
		"headless": false,
		"proxy":    map[string]interface{}{"host": "10.0.0.5", "port": 8080, "protocol": "http"},
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, browser.SessionKey("acct-1"), sessions.lastKey)
	assert.True(t, sessions.lastMaterial.HasCookies())
	assert.False(t, sessions.lastHeadless)
	require.NotNil(t, sessions.lastProxy)
	assert.Equal(t, "10.0.0.5", sessions.lastProxy.Host)
	assert.False(t, sessions.noWaitUsed)
}

func TestCreateSession_HeadlessDefaultsTrue(t *testing.T) {
	sessions := &fakeSessions{session: &browser.Session{Key: "acct-1"}}
	srv := newTestServer(sessions, nil, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions", map[string]interface{}{
		"key":         "acct-1",
		"credentials": map[string]string{"identifier": "u", "secret": "p"},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, sessions.lastHeadless)
}

func TestCreateSession_NoWaitQuery(t *testing.T) {
	sessions := &fakeSessions{session: &browser.Session{Key: "acct-1"}}
	srv := newTestServer(sessions, nil, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions?nowait=1", map[string]interface{}{
		"key":         "acct-1",
		"credentials": map[string]string{"identifier": "u", "secret": "p"},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, sessions.noWaitUsed)
}

func TestCreateSession_BadRequests(t *testing.T) {
	srv := newTestServer(nil, nil, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions", map[string]interface{}{"cookies": browser.CookieJar{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader([]byte("{not json")))
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name: "auth failure",
			err: &browser.AuthError{
				Key:     "acct-1",
				Outcome: browser.LoginOutcome{State: browser.LoginCheckpoint, Message: "flagged", Screenshot: []byte("png")},
			},
			expected: http.StatusUnprocessableEntity,
		},
		{
			name:     "proxy unreachable",
			err:      &browser.ProxyError{Server: "http://10.0.0.5:8080", Err: errors.New("refused")},
			expected: http.StatusBadGateway,
		},
		{
			name:     "wait expiry",
			err:      &browser.TimeoutError{Op: "wait for h1", Bound: time.Second},
			expected: http.StatusGatewayTimeout,
		},
		{
			name:     "busy session",
			err:      browser.ErrSessionBusy,
			expected: http.StatusConflict,
		},
		{
			name:     "duplicate create",
			err:      browser.ErrConcurrentCreation,
			expected: http.StatusConflict,
		},
		{
			name:     "closed session",
			err:      browser.ErrSessionClosed,
			expected: http.StatusGone,
		},
		{
			name:     "unclassified failure",
			err:      errors.New("boom"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeSessions{err: tt.err}
			srv := newTestServer(sessions, nil, nil)
			rec := doJSON(t, srv, http.MethodPost, "/api/sessions", map[string]interface{}{
				"key":         "acct-1",
				"credentials": map[string]string{"identifier": "u", "secret": "p"},
			})
			assert.Equal(t, tt.expected, rec.Code)
		})
	}
}

func TestErrorMapping_AuthFailureCarriesOutcome(t *testing.T) {
	sessions := &fakeSessions{err: &browser.AuthError{
		Key:     "acct-1",
		Outcome: browser.LoginOutcome{State: browser.LoginDead, Message: "rejected", Screenshot: []byte("png")},
	}}
	srv := newTestServer(sessions, nil, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions", map[string]interface{}{
		"key":         "acct-1",
		"credentials": map[string]string{"identifier": "u", "secret": "p"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "dead", body["state"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png")), body["screenshot"])
}

func TestToggle_NotFound(t *testing.T) {
	sessions := &fakeSessions{err: browser.ErrSessionNotFound}
	srv := newTestServer(sessions, nil, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/acct-1/toggle", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, browser.SessionKey("acct-1"), sessions.toggledKey)
}

func TestToggle(t *testing.T) {
	sessions := &fakeSessions{session: &browser.Session{Key: "acct-1"}}
	srv := newTestServer(sessions, nil, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/acct-1/toggle", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, browser.SessionKey("acct-1"), sessions.toggledKey)
}

func TestCloseSession(t *testing.T) {
	sessions := &fakeSessions{}
	srv := newTestServer(sessions, nil, nil)

	rec := doJSON(t, srv, http.MethodDelete, "/api/sessions/acct-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []browser.SessionKey{"acct-1"}, sessions.closedKeys)
}

func TestCloseAllSessions(t *testing.T) {
	sessions := &fakeSessions{}
	srv := newTestServer(sessions, nil, nil)

	rec := doJSON(t, srv, http.MethodDelete, "/api/sessions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sessions.closedAll)
}

func TestListAndCount(t *testing.T) {
	sessions := &fakeSessions{
		summaries: []browser.SessionSummary{{Key: "acct-1", Headless: true, Status: browser.StatusReady}},
		count:     1,
	}
	srv := newTestServer(sessions, nil, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Len(t, body["sessions"], 1)

	rec = doJSON(t, srv, http.MethodGet, "/api/sessions/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

func TestCheckSession(t *testing.T) {
	sessions := &fakeSessions{session: &browser.Session{Key: "acct-1"}}
	prober := &fakeProber{report: browser.StatusReport{
		State:       browser.StateLive,
		Message:     "account is active: Nguyen Van A",
		AccountName: "Nguyen Van A",
	}}
	srv := newTestServer(sessions, prober, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/acct-1/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "live", body["state"])
	assert.Equal(t, "Nguyen Van A", body["accountName"])
}

func TestProxyTest(t *testing.T) {
	checker := &fakeChecker{result: proxycheck.Result{OK: true, Message: "proxy reachable"}}
	srv := newTestServer(nil, nil, checker)

	rec := doJSON(t, srv, http.MethodPost, "/api/proxies/test", map[string]interface{}{
		"host": "10.0.0.5", "port": 1080, "protocol": "socks5",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10.0.0.5", checker.lastDesc.Host)
	assert.Equal(t, browser.ProxySOCKS5, checker.lastDesc.Protocol)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := doJSON(t, newTestServer(nil, nil, nil), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
