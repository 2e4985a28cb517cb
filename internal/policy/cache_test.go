package policy

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenproxy/warden/internal/models"
)

func TestFingerprint_StableAcrossKeyOrder(t *testing.T) {
	a := &Request{
		Method: "POST",
		Path:   "/api/report",
		Query:  url.Values{"b": {"2"}, "a": {"1"}},
		Body:   map[string]interface{}{"x": 1.0, "y": "two"},
	}
	b := &Request{
		Method: "POST",
		Path:   "/api/report",
		Query:  url.Values{"a": {"1"}, "b": {"2"}},
		Body:   map[string]interface{}{"y": "two", "x": 1.0},
	}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_DistinguishesRequests(t *testing.T) {
	base := func() *Request {
		return &Request{Method: "GET", Path: "/api/report", Query: url.Values{"a": {"1"}}}
	}

	other := base()
	other.Method = "POST"
	assert.NotEqual(t, Fingerprint(base()), Fingerprint(other))

	other = base()
	other.Path = "/api/reports"
	assert.NotEqual(t, Fingerprint(base()), Fingerprint(other))

	other = base()
	other.Query = url.Values{"a": {"2"}}
	assert.NotEqual(t, Fingerprint(base()), Fingerprint(other))

	other = base()
	other.Body = map[string]interface{}{"k": "v"}
	assert.NotEqual(t, Fingerprint(base()), Fingerprint(other))
}

func TestResponseCache_PassThroughForLightEndpoints(t *testing.T) {
	cache := NewResponseCache(8, time.Minute)
	req := testRequest()

	dec, err := cache.Evaluate(context.Background(), req, &models.Endpoint{ID: 1, Path: "/api/orders"})
	require.NoError(t, err)
	assert.True(t, dec.Allow)
	assert.False(t, dec.FromCache)
	assert.Empty(t, req.CacheFingerprint, "non-heavy endpoints never engage the cache")
}

func TestResponseCache_MissThenHit(t *testing.T) {
	cache := NewResponseCache(8, time.Minute)
	ep := &models.Endpoint{ID: 1, Path: "/api/orders", ResourceHeavy: true}

	req := testRequest()
	dec, err := cache.Evaluate(context.Background(), req, ep)
	require.NoError(t, err)
	assert.True(t, dec.Allow)
	assert.False(t, dec.FromCache)
	require.NotEmpty(t, req.CacheFingerprint, "miss tags the request for capture")

	cache.Store(req.CacheFingerprint, []byte(`{"orders":[]}`), "application/json")

	again := testRequest()
	dec, err = cache.Evaluate(context.Background(), again, ep)
	require.NoError(t, err)
	assert.True(t, dec.Allow)
	assert.True(t, dec.FromCache)
	assert.Equal(t, 200, dec.Status)
	assert.Equal(t, []byte(`{"orders":[]}`), dec.CachedBody)
	assert.Equal(t, "application/json", dec.ContentType)
	assert.Empty(t, again.CacheFingerprint, "hits do not re-tag the request")
}

func TestResponseCache_ExpiredEntryNeverServed(t *testing.T) {
	cache := NewResponseCache(8, 20*time.Millisecond)
	ep := &models.Endpoint{ID: 1, Path: "/api/orders", ResourceHeavy: true}

	req := testRequest()
	_, err := cache.Evaluate(context.Background(), req, ep)
	require.NoError(t, err)
	cache.Store(req.CacheFingerprint, []byte("stale"), "text/plain")

	time.Sleep(40 * time.Millisecond)

	dec, err := cache.Evaluate(context.Background(), testRequest(), ep)
	require.NoError(t, err)
	assert.False(t, dec.FromCache, "expired entries fall through to the backend")
}

func TestResponseCache_Purge(t *testing.T) {
	cache := NewResponseCache(8, time.Minute)
	cache.Store("fp", []byte("body"), "text/plain")

	_, ok := cache.Lookup("fp")
	require.True(t, ok)

	cache.Purge()
	_, ok = cache.Lookup("fp")
	assert.False(t, ok)
}
