package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

type stubProber struct {
	open map[uint16]bool
}

func (p stubProber) Probe(_ context.Context, _ netip.Addr, port uint16) bool {
	return p.open[port]
}

// memoryLock expires entries after their TTL the way SET NX PX does.
type memoryLock struct {
	mu         sync.Mutex
	held       map[string]lockEntry
	acquireErr error
	released   []string
	refreshes  int
}

type lockEntry struct {
	token   string
	expires time.Time
}

func newMemoryLock() *memoryLock {
	return &memoryLock{held: make(map[string]lockEntry)}
}

// hold plants a lock owned by someone else.
func (l *memoryLock) hold(target, token string, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[target] = lockEntry{token: token, expires: time.Now().Add(ttl)}
}

// owner returns the live token for target, or "".
func (l *memoryLock) owner(target string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.held[target]
	if !ok || time.Now().After(entry.expires) {
		return ""
	}
	return entry.token
}

func (l *memoryLock) Acquire(_ context.Context, target, token string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return l.acquireErr
	}
	if entry, ok := l.held[target]; ok && time.Now().Before(entry.expires) {
		return ErrTargetBusy
	}
	l.held[target] = lockEntry{token: token, expires: time.Now().Add(ttl)}
	return nil
}

func (l *memoryLock) Refresh(_ context.Context, target, token string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.held[target]
	if !ok || entry.token != token || time.Now().After(entry.expires) {
		return ErrLockLost
	}
	entry.expires = time.Now().Add(ttl)
	l.held[target] = entry
	l.refreshes++
	return nil
}

func (l *memoryLock) Release(_ context.Context, target, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.held[target]; ok && entry.token == token {
		delete(l.held, target)
		l.released = append(l.released, target)
	}
	return nil
}

// gatedProber blocks on port 1 until gate is closed, signalling entered first.
type gatedProber struct {
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedProber() *gatedProber {
	return &gatedProber{entered: make(chan struct{}), gate: make(chan struct{})}
}

func (p *gatedProber) Probe(_ context.Context, _ netip.Addr, port uint16) bool {
	if port == 1 {
		p.once.Do(func() { close(p.entered) })
		<-p.gate
	}
	return false
}

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (l *countingLimiter) Hit(_ context.Context, key string, _ time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	if l.counts == nil {
		l.counts = make(map[string]int64)
	}
	l.counts[key]++
	return l.counts[key], nil
}

type stubHealth struct{ err error }

func (h stubHealth) Ping(context.Context) error { return h.err }

type testEnv struct {
	router  *gin.Engine
	lock    *memoryLock
	limiter *countingLimiter
}

func newTestEnv(t *testing.T, open ...uint16) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	prober := stubProber{open: make(map[uint16]bool)}
	for _, port := range open {
		prober.open[port] = true
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lock := newMemoryLock()
	limiter := &countingLimiter{}

	server := NewServer(prober, lock, stubHealth{}, ScanLimits{
		DefaultWorkers: 4,
		MaxWorkers:     1024,
		LockTTL:        time.Minute,
	}, logger)
	router := NewRouter(server, RouterOptions{
		APIKey:     testAPIKey,
		RateLimit:  3,
		RateWindow: time.Minute,
		Limiter:    limiter,
		Logger:     logger,
	})
	return &testEnv{router: router, lock: lock, limiter: limiter}
}

func (e *testEnv) postScan(t *testing.T, body string, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateScan_ReturnsSortedPorts(t *testing.T) {
	env := newTestEnv(t, 8080, 22, 443)

	rec := env.postScan(t, `{"target":"127.0.0.1","threads":16}`, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []uint16{22, 443, 8080}, resp.OpenPorts)
	assert.Equal(t, "127.0.0.1", resp.Target)
	assert.Equal(t, uint16(16), resp.Workers)
	assert.Contains(t, rec.Body.String(), `"workers":16`)
	assert.NotContains(t, rec.Body.String(), `"threads"`)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.ID)
	assert.Equal(t, []string{"127.0.0.1"}, env.lock.released)
	assert.Empty(t, env.lock.owner("127.0.0.1"))
}

func TestCreateScan_LockHeldForWholeScan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lock := newMemoryLock()
	prober := newGatedProber()

	server := NewServer(prober, lock, stubHealth{}, ScanLimits{
		DefaultWorkers: 4,
		MaxWorkers:     16,
		LockTTL:        20 * time.Millisecond,
	}, logger)
	router := NewRouter(server, RouterOptions{APIKey: testAPIKey, Logger: logger})
	env := &testEnv{router: router, lock: lock}

	first := make(chan int, 1)
	go func() {
		first <- env.postScan(t, `{"target":"10.0.0.9"}`, testAPIKey).Code
	}()

	<-prober.entered
	// Several TTLs pass while the first scan is stuck on one port.
	time.Sleep(100 * time.Millisecond)

	second := env.postScan(t, `{"target":"10.0.0.9"}`, testAPIKey)
	assert.Equal(t, http.StatusConflict, second.Code, second.Body.String())

	close(prober.gate)
	assert.Equal(t, http.StatusOK, <-first)

	lock.mu.Lock()
	refreshes := lock.refreshes
	lock.mu.Unlock()
	assert.Positive(t, refreshes)
	assert.Empty(t, lock.owner("10.0.0.9"), "lock must be released after the scan")
}

func TestCreateScan_DefaultThreads(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postScan(t, `{"target":"::1"}`, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint16(4), resp.Workers)
	assert.Empty(t, resp.OpenPorts)
	assert.Contains(t, rec.Body.String(), `"open_ports":[]`)
}

func TestCreateScan_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"malformed json":   `{"target":`,
		"missing target":   `{"threads":4}`,
		"invalid ip":       `{"target":"999.999.999.999"}`,
		"hostname":         `{"target":"example.com"}`,
		"negative":         `{"target":"127.0.0.1","threads":-1}`,
		"above u16":        `{"target":"127.0.0.1","threads":70000}`,
		"above server max": `{"target":"127.0.0.1","threads":2048}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.postScan(t, body, testAPIKey)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestCreateScan_AboveServerMaxNamesLimit(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postScan(t, `{"target":"127.0.0.1","threads":1025}`, testAPIKey)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"threads must be within 1-1024"}`, rec.Body.String())
}

func TestCreateScan_TargetBusy(t *testing.T) {
	env := newTestEnv(t)
	env.lock.hold("10.0.0.1", "another-scan", time.Minute)

	rec := env.postScan(t, `{"target":"10.0.0.1"}`, testAPIKey)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrTargetBusy.Error())
	assert.Equal(t, "another-scan", env.lock.owner("10.0.0.1"), "foreign lock must survive")
}

func TestCreateScan_LockBackendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.lock.acquireErr = errors.New("connection refused")

	rec := env.postScan(t, `{"target":"10.0.0.1"}`, testAPIKey)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to lock target")
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postScan(t, `{"target":"127.0.0.1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.postScan(t, `{"target":"127.0.0.1"}`, "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", bytes.NewBufferString(`{"target":"127.0.0.1"}`))
	req.Header.Set("Authorization", "Basic "+testAPIKey)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		rec := env.postScan(t, `{"target":"127.0.0.1"}`, testAPIKey)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.postScan(t, `{"target":"127.0.0.1"}`, testAPIKey)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitMiddleware_BackendError(t *testing.T) {
	env := newTestEnv(t)
	env.limiter.err = errors.New("redis down")

	rec := env.postScan(t, `{"target":"127.0.0.1"}`, testAPIKey)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, tc := range []struct {
		err    error
		status int
		body   string
	}{
		{nil, http.StatusOK, "ok"},
		{errors.New("redis down"), http.StatusServiceUnavailable, "unavailable"},
	} {
		server := NewServer(stubProber{}, newMemoryLock(), stubHealth{err: tc.err}, ScanLimits{DefaultWorkers: 4, MaxWorkers: 4, LockTTL: time.Minute}, logger)
		router := NewRouter(server, RouterOptions{APIKey: testAPIKey, Logger: logger})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, tc.status, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, tc.body, resp.Status)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	}
}

func TestSecurityHeaders_APIAndDocs(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]string{
		"/api/v1/healthz":     apiCSP,
		"/swagger/index.html": docsCSP,
	}
	for path, csp := range cases {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, csp, rec.Header().Get("Content-Security-Policy"))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		})
	}
	assert.NotContains(t, apiCSP, "unsafe-inline")
}

func TestResolveWorkers(t *testing.T) {
	got, err := resolveWorkers(0, 4, 100)
	require.NoError(t, err)
	assert.Equal(t, 4, got)

	got, err = resolveWorkers(100, 4, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, got)

	_, err = resolveWorkers(101, 4, 100)
	assert.Error(t, err)
}
