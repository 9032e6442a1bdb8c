package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/webmention-receiver/internal/backup"
	"github.com/listenupapp/webmention-receiver/internal/config"
	"github.com/listenupapp/webmention-receiver/internal/logger"
	"github.com/listenupapp/webmention-receiver/internal/metrics"
	"github.com/listenupapp/webmention-receiver/internal/migrate"
	"github.com/listenupapp/webmention-receiver/internal/ratelimit"
	"github.com/listenupapp/webmention-receiver/internal/render"
	"github.com/listenupapp/webmention-receiver/internal/service"
	"github.com/listenupapp/webmention-receiver/internal/store/sqlite"
	"github.com/listenupapp/webmention-receiver/internal/validation"
)

const testExternalURL = "https://mentions.example"

type testServer struct {
	server  *Server
	metrics *metrics.Metrics
	latest  int
}

type serverOption func(*Options, *config.ReceiverConfig)

func withAllowedDomains(domains ...string) serverOption {
	return func(_ *Options, rc *config.ReceiverConfig) {
		rc.AllowedDomains = domains
	}
}

func withLimiter(l *ratelimit.KeyedRateLimiter) serverOption {
	return func(o *Options, _ *config.ReceiverConfig) {
		o.ReceiverLimiter = l
	}
}

// setupTestServer builds a server on a migrated temp-dir database.
func setupTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	dir := t.TempDir()
	log := logger.Discard()

	st, err := sqlite.Open(filepath.Join(dir, "test.sqlite3"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	migrator, err := migrate.New(st.DB(), backup.NewService(filepath.Join(dir, "backups"), log), m.MigrationsApplied, log)
	require.NoError(t, err)
	_, err = migrator.Run(context.Background())
	require.NoError(t, err)

	renderer, err := render.New(testExternalURL)
	require.NoError(t, err)

	o := Options{
		Renderer:     renderer,
		Store:        st,
		Metrics:      m,
		Gatherer:     reg,
		LatestSchema: migrator.Latest(),
		Logger:       log,
	}
	rc := config.ReceiverConfig{ExternalURL: testExternalURL}
	for _, opt := range opts {
		opt(&o, &rc)
	}

	o.Mentions, err = service.NewMentionService(st, validation.New(), m, rc, log)
	require.NoError(t, err)

	return &testServer{server: NewServer(o), metrics: m, latest: migrator.Latest()}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	return ts.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (ts *testServer) send(domain, source, target string) *httptest.ResponseRecorder {
	form := url.Values{"source": {source}, "target": {target}}
	req := httptest.NewRequest(http.MethodPost, "/"+domain+"/receiver", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(req)
}

func TestReceive_CreatedThenUpdated(t *testing.T) {
	ts := setupTestServer(t)

	first := ts.send("example.com", "https://other.example/reply", "https://example.com/post")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	location := first.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, testExternalURL+"/example.com/mention/"), location)
	assert.Equal(t, location, first.Body.String())

	second := ts.send("example.com", "https://other.example/reply", "https://example.com/post")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, location, second.Header().Get("Location"))

	page := ts.get(strings.TrimPrefix(location, testExternalURL))
	assert.Equal(t, http.StatusOK, page.Code)
	assert.Equal(t, "text/html; charset=utf-8", page.Header().Get("Content-Type"))
	assert.Contains(t, page.Body.String(), "https://other.example/reply")
}

func TestReceive_ContentTypeCharsetAccepted(t *testing.T) {
	ts := setupTestServer(t)

	form := url.Values{"source": {"https://other.example/"}, "target": {"https://example.com/"}}
	req := httptest.NewRequest(http.MethodPost, "/example.com/receiver", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

	assert.Equal(t, http.StatusCreated, ts.do(req).Code)
}

func TestReceive_WrongContentType(t *testing.T) {
	ts := setupTestServer(t)

	body := `{"source":"https://other.example/","target":"https://example.com/"}`
	req := httptest.NewRequest(http.MethodPost, "/example.com/receiver", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	list := ts.get("/api/v1/domains/example.com/mentions")
	require.Equal(t, http.StatusOK, list.Code)
	var resp MentionListResponse
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &resp))
	assert.Empty(t, resp.Mentions)
}

func TestReceive_QueryStringIgnored(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost,
		"/example.com/receiver?source=https://other.example/&target=https://example.com/", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)
}

func TestReceive_Malformed(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name   string
		source string
		target string
	}{
		{"missing source", "", "https://example.com/post"},
		{"relative target", "https://other.example/", "/post"},
		{"self reference", "https://example.com/post", "https://example.com/post"},
		{"self reference host case", "https://EXAMPLE.com/post", "https://example.com/post"},
		{"target elsewhere", "https://other.example/", "https://elsewhere.example/post"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.send("example.com", tt.source, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Empty(t, rec.Header().Get("Location"))
		})
	}
}

func TestReceive_AllowList(t *testing.T) {
	ts := setupTestServer(t, withAllowedDomains("allowed.example"))

	rec := ts.send("example.com", "https://other.example/", "https://example.com/post")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "The specified target domain is not allowed to use this server", rec.Body.String())

	rec = ts.send("allowed.example", "https://other.example/", "https://allowed.example/post")
	assert.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.Ingest.WithLabelValues(metrics.OutcomeForbidden)))
}

func TestReceive_RateLimited(t *testing.T) {
	limiter := ratelimit.New(0.001, 2, 0)
	ts := setupTestServer(t, withLimiter(limiter))

	for range 2 {
		rec := ts.send("example.com", "https://other.example/", "https://example.com/post")
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.send("example.com", "https://other.example/", "https://example.com/post")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.RateLimited.WithLabelValues(receiverRoute)))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, ts.get("/example.com").Code)
}

func TestMentionPage_Errors(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.get("/example.com/mention/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.get("/example.com/mention/" + uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "404 not found", rec.Body.String())
}

func TestMentionPage_OtherDomain(t *testing.T) {
	ts := setupTestServer(t)

	created := ts.send("example.com", "https://other.example/", "https://example.com/post")
	require.Equal(t, http.StatusCreated, created.Code)
	mentionID := created.Body.String()[strings.LastIndex(created.Body.String(), "/")+1:]

	rec := ts.get("/other.example/mention/" + mentionID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDomainPageAndFeed(t *testing.T) {
	ts := setupTestServer(t)

	require.Equal(t, http.StatusCreated, ts.send("example.com", "https://a.example/", "https://example.com/").Code)
	require.Equal(t, http.StatusCreated, ts.send("example.com", "https://b.example/", "https://example.com/").Code)

	page := ts.get("/Example.COM")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "https://a.example/")
	assert.Contains(t, page.Body.String(), "https://b.example/")

	feed := ts.get("/example.com/feed.xml")
	require.Equal(t, http.StatusOK, feed.Code)
	assert.Equal(t, "application/xml; charset=utf-8", feed.Header().Get("Content-Type"))
	assert.Contains(t, feed.Body.String(), "<feed xmlns=\"http://www.w3.org/2005/Atom\">")
	assert.Equal(t, 2, strings.Count(feed.Body.String(), "<entry>"))
}

func TestEmptyFeed(t *testing.T) {
	ts := setupTestServer(t)

	feed := ts.get("/nobody.example/feed.xml")
	require.Equal(t, http.StatusOK, feed.Code)
	assert.Contains(t, feed.Body.String(), "1970-01-01T00:00:00Z")
}

func TestStaticPages(t *testing.T) {
	ts := setupTestServer(t)

	index := ts.get("/")
	assert.Equal(t, http.StatusOK, index.Code)
	assert.Contains(t, index.Body.String(), testExternalURL)

	robots := ts.get("/robots.txt")
	assert.Equal(t, http.StatusOK, robots.Code)
	assert.Equal(t, "text/plain; charset=utf-8", robots.Header().Get("Content-Type"))
	assert.Contains(t, robots.Body.String(), "User-agent: *")

	css := ts.get("/assets/style.css")
	assert.Equal(t, http.StatusOK, css.Code)
	assert.True(t, strings.HasPrefix(css.Header().Get("Content-Type"), "text/css"))
	assert.Equal(t, http.StatusNotFound, ts.get("/assets/missing.js").Code)

	unknown := ts.get("/example.com/nothing/here")
	assert.Equal(t, http.StatusNotFound, unknown.Code)
	assert.Equal(t, "404 not found", unknown.Body.String())
}

func TestMentionsAPI(t *testing.T) {
	ts := setupTestServer(t)

	created := ts.send("example.com", "https://other.example/", "https://example.com/post")
	require.Equal(t, http.StatusCreated, created.Code)

	list := ts.get("/api/v1/domains/example.com/mentions")
	require.Equal(t, http.StatusOK, list.Code)

	var resp MentionListResponse
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &resp))
	assert.Equal(t, "example.com", resp.Domain)
	require.Len(t, resp.Mentions, 1)
	assert.Equal(t, created.Body.String(), resp.Mentions[0].URL)
	assert.True(t, resp.LastUpdated.Equal(resp.Mentions[0].DateUpdated))

	one := ts.get("/api/v1/domains/example.com/mentions/" + resp.Mentions[0].ID)
	require.Equal(t, http.StatusOK, one.Code)

	var got MentionResponse
	require.NoError(t, json.Unmarshal(one.Body.Bytes(), &got))
	assert.Equal(t, "https://other.example/", got.Source)
	assert.Equal(t, "https://example.com/post", got.Target)
}

func TestMentionsAPI_Errors(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"malformed id", "/api/v1/domains/example.com/mentions/nope", http.StatusBadRequest, "VALIDATION"},
		{"unknown id", "/api/v1/domains/example.com/mentions/" + uuid.NewString(), http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.get(tt.path)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			var apiErr struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestHealthCheck_Success(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.get("/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ts.latest, resp.SchemaVersion)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
	assert.Equal(t, "healthy", resp.Components["schema"].Status)
}

func TestHealthCheck_ClosedStore(t *testing.T) {
	ts := setupTestServer(t)
	require.NoError(t, ts.server.store.Close())

	rec := ts.get("/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	require.Equal(t, http.StatusCreated, ts.send("example.com", "https://other.example/", "https://example.com/").Code)

	rec := ts.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `webmention_ingest_total{outcome="created"} 1`)
	assert.Contains(t, rec.Body.String(), "webmention_migrations_applied_total")
}

func TestOpenAPIDocument(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.get("/api/openapi.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/domains/{domain}/mentions")
}

func TestCORS(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/example.com/feed.xml", nil)
	req.Header.Set("Origin", "https://reader.example")

	rec := ts.do(req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.7:5555", "192.0.2.7"},
		{"ipv6 remote addr", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.1:80", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.3"}, "10.0.0.1:80", "198.51.100.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestRequestTimestampsAdvance(t *testing.T) {
	ts := setupTestServer(t)

	first := ts.send("example.com", "https://other.example/", "https://example.com/post")
	require.Equal(t, http.StatusCreated, first.Code)
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, http.StatusCreated, ts.send("example.com", "https://other.example/", "https://example.com/post").Code)

	var resp MentionListResponse
	list := ts.get("/api/v1/domains/example.com/mentions")
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &resp))
	require.Len(t, resp.Mentions, 1)
	assert.True(t, resp.Mentions[0].DateUpdated.After(resp.Mentions[0].DateAdded))
}
