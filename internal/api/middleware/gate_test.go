package middleware

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wardenproxy/warden/internal/database"
	"github.com/wardenproxy/warden/internal/models"
	"github.com/wardenproxy/warden/internal/policy"
	"github.com/wardenproxy/warden/internal/services"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// stubForwarder stands in for the reverse proxy and records what reached it.
type stubForwarder struct {
	calls     int
	status    int
	body      string
	lastPath  string
	lastQuery string
	lastBody  []byte
}

func (f *stubForwarder) Forward(w http.ResponseWriter, r *http.Request) {
	f.calls++
	f.lastPath = r.URL.Path
	f.lastQuery = r.URL.RawQuery
	if r.Body != nil {
		f.lastBody, _ = io.ReadAll(r.Body)
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, f.body)
}

type gateFixture struct {
	db        *gorm.DB
	endpoints *services.EndpointService
	groups    *services.GroupService
	calls     *services.CallService
	forwarder *stubForwarder
	router    *gin.Engine
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := openTestDB(t)
	endpoints := services.NewEndpointService(db)
	groups := services.NewGroupService(db)
	calls := services.NewCallService(db, 30*24*time.Hour)
	t.Cleanup(func() { calls.Cron.Stop() })

	cache := policy.NewResponseCache(64, time.Minute)
	engine := policy.NewEngine(groups,
		policy.NewIPFilter(),
		policy.NewIdentityVerifier("secret"),
		policy.NewInputValidator(),
		policy.NewSQLInspector(),
		policy.NewXSSSanitizer(),
		policy.NewRateLimiter(policy.NewMemoryCounterStore(), nil, nil),
		cache,
	)

	forwarder := &stubForwarder{body: `{"ok":true}`}
	gate := NewGate(engine, endpoints, calls, cache, forwarder)

	router := gin.New()
	router.NoRoute(gate.Handle())

	return &gateFixture{
		db:        db,
		endpoints: endpoints,
		groups:    groups,
		calls:     calls,
		forwarder: forwarder,
		router:    router,
	}
}

// protect registers an endpoint and binds it to a fresh group carrying the
// given rule implementations.
func (f *gateFixture) protect(t *testing.T, ep *models.Endpoint, implementations ...string) {
	t.Helper()
	require.NoError(t, f.endpoints.Create(ep))

	group := &models.SecurityGroup{Name: fmt.Sprintf("group-%s-%s", ep.Method, ep.Path)}
	require.NoError(t, f.groups.Create(group))
	require.NoError(t, f.groups.AttachEndpoint(group.UUID, ep.UUID))

	for _, impl := range implementations {
		rule := &models.Rule{Name: fmt.Sprintf("%s-%s", group.Name, impl), Implementation: impl}
		require.NoError(t, f.groups.CreateRule(rule))
		require.NoError(t, f.groups.AttachRule(group.UUID, rule.UUID))
	}
}

func (f *gateFixture) get(target string, header map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	f.router.ServeHTTP(w, req)
	return w
}

func TestGate_ForwardsUnprotectedTraffic(t *testing.T) {
	f := newGateFixture(t)
	require.NoError(t, f.endpoints.Create(&models.Endpoint{Path: "/api/orders", Method: "GET"}))

	w := f.get("/api/orders", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, 1, f.forwarder.calls)

	ep, err := f.endpoints.Resolve("GET", "/api/orders")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ep.HitsByStatusCode["200"], "the hit is recorded")

	count, err := f.calls.CountSince(ep.ID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "the call is logged")
}

func TestGate_AutoRegistersUnseenEndpoints(t *testing.T) {
	f := newGateFixture(t)

	w := f.get("/orders/42", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	ep, err := f.endpoints.Resolve("GET", "/orders/42")
	require.NoError(t, err)
	assert.Equal(t, "/orders/{id}", ep.Path)
	assert.Equal(t, int64(1), ep.HitsByStatusCode["200"])

	w = f.get("/orders/99", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	ep, err = f.endpoints.Resolve("GET", "/orders/99")
	require.NoError(t, err)
	assert.Equal(t, "/orders/{id}", ep.Path)
	assert.Equal(t, int64(2), ep.HitsByStatusCode["200"], "both identifiers count against one endpoint")
}

func TestGate_IPFilterDenial(t *testing.T) {
	f := newGateFixture(t)
	// httptest requests arrive from 192.0.2.1.
	f.protect(t, &models.Endpoint{
		Path:      "/api/orders",
		Method:    "GET",
		Blacklist: models.StringList{"192.0.2.1"},
	}, "ip-filtering")

	w := f.get("/api/orders", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"message": "Access denied: IP is blacklisted."}`, w.Body.String())
	assert.Equal(t, 0, f.forwarder.calls, "denied requests never reach the backend")

	ep, err := f.endpoints.Resolve("GET", "/api/orders")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ep.HitsByStatusCode["403"], "denials still count as hits")
}

func TestGate_IdentityDenial(t *testing.T) {
	f := newGateFixture(t)
	f.protect(t, &models.Endpoint{Path: "/api/orders", Method: "GET"}, "identity-verification")

	t.Run("missing token", func(t *testing.T) {
		w := f.get("/api/orders", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"message": "No token, authorization denied"}`, w.Body.String())
	})

	t.Run("valid token passes", func(t *testing.T) {
		claims := jwt.MapClaims{
			"user": map[string]interface{}{"id": "u-1", "role": "user"},
			"exp":  time.Now().Add(time.Hour).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)

		w := f.get("/api/orders", map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, f.forwarder.calls)
	})
}

func TestGate_RateLimitDenial(t *testing.T) {
	f := newGateFixture(t)
	limit := 2
	f.protect(t, &models.Endpoint{
		Path:               "/api/orders",
		Method:             "GET",
		RateLimitPerMinute: &limit,
	}, "rate-limiting")

	for i := 0; i < 2; i++ {
		w := f.get("/api/orders", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d within the budget", i+1)
	}

	w := f.get("/api/orders", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error": "Rate limit exceeded", "retryAfter": 60}`, w.Body.String())
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 2, f.forwarder.calls)
}

func TestGate_CacheServesRepeatedRequests(t *testing.T) {
	f := newGateFixture(t)
	f.forwarder.body = `{"report": "expensive"}`
	f.protect(t, &models.Endpoint{
		Path:          "/api/report",
		Method:        "GET",
		ResourceHeavy: true,
	}, "caching")

	w := f.get("/api/report", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.forwarder.calls)

	w = f.get("/api/report", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"report": "expensive"}`, w.Body.String())
	assert.Equal(t, 1, f.forwarder.calls, "the second request is served from cache")

	// A different query string is a different fingerprint.
	w = f.get("/api/report?window=7d", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, f.forwarder.calls)
}

func TestGate_SQLInjectionDenial(t *testing.T) {
	f := newGateFixture(t)
	f.protect(t, &models.Endpoint{Path: "/api/orders", Method: "GET"}, "content-inspection")

	w := f.get("/api/orders?q="+url.QueryEscape("a' OR '1'='1"), nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error": "Potential SQL injection detected"}`, w.Body.String())
	assert.Equal(t, 0, f.forwarder.calls)
}

func TestGate_ForwardsSanitizedQuery(t *testing.T) {
	f := newGateFixture(t)
	f.protect(t, &models.Endpoint{Path: "/api/comments", Method: "GET"}, "xss-sanitization")

	w := f.get("/api/comments?msg="+url.QueryEscape("<script>alert(1)</script>hello"), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.forwarder.calls)

	forwarded, err := url.ParseQuery(f.forwarder.lastQuery)
	require.NoError(t, err)
	assert.NotContains(t, forwarded.Get("msg"), "<script>")
	assert.Contains(t, forwarded.Get("msg"), "hello")
}

func TestGate_SanitizesJSONBody(t *testing.T) {
	f := newGateFixture(t)
	f.protect(t, &models.Endpoint{Path: "/api/comments", Method: "POST"}, "xss-sanitization")

	body := `{"text": "<script>alert(1)</script>nice post"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, f.forwarder.calls)
	assert.NotContains(t, string(f.forwarder.lastBody), "<script>")
	assert.Contains(t, string(f.forwarder.lastBody), "nice post")
}

func TestGate_ForwardsOversizedBodiesIntact(t *testing.T) {
	f := newGateFixture(t)
	f.protect(t, &models.Endpoint{Path: "/api/bulk", Method: "POST"}, "content-inspection", "xss-sanitization")

	// Past the inspection cap the body skips parsing but must still reach
	// the backend byte for byte.
	body := `{"pad": "` + strings.Repeat("a", 1<<20) + `"}`
	require.Greater(t, len(body), 1<<20)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/bulk", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, f.forwarder.calls)
	assert.Len(t, f.forwarder.lastBody, len(body))
	assert.Equal(t, body, string(f.forwarder.lastBody))
}

func TestGate_ForwardsSanitizedPathSegments(t *testing.T) {
	f := newGateFixture(t)
	f.protect(t, &models.Endpoint{Path: "/api/items/{id}", Method: "GET"}, "xss-sanitization")

	w := f.get("/api/items/"+url.PathEscape("<svg onload=alert(1)>42"), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, f.forwarder.calls)
	assert.NotContains(t, f.forwarder.lastPath, "onload")
	assert.Equal(t, "/api/items/42", f.forwarder.lastPath)
}

func TestGate_InputValidationDenial(t *testing.T) {
	f := newGateFixture(t)
	f.protect(t, &models.Endpoint{
		Path:        "/api/orders",
		Method:      "GET",
		QueryParams: models.StringList{"page"},
	}, "input-validation")

	w := f.get("/api/orders", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error": "Missing required query parameters: page"}`, w.Body.String())

	w = f.get("/api/orders?page=1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGate_RecordsBackendErrors(t *testing.T) {
	f := newGateFixture(t)
	f.forwarder.status = http.StatusBadGateway
	require.NoError(t, f.endpoints.Create(&models.Endpoint{Path: "/api/orders", Method: "GET"}))

	w := f.get("/api/orders", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	ep, err := f.endpoints.Resolve("GET", "/api/orders")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ep.HitsByStatusCode["502"])

	var rec models.CallRecord
	require.NoError(t, f.db.Order("id desc").First(&rec).Error)
	assert.True(t, rec.IsError)
	assert.Equal(t, http.StatusBadGateway, rec.StatusCode)
}
