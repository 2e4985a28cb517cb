package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	expirable "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wardenproxy/warden/internal/metrics"
	"github.com/wardenproxy/warden/internal/models"
)

// DefaultCacheTTL is how long cached responses stay servable unless
// configured otherwise.
const DefaultCacheTTL = 5 * time.Minute

// CachedResponse is one stored upstream response.
type CachedResponse struct {
	Body        []byte
	ContentType string
}

// ResponseCache replays prior responses for endpoints flagged
// resource-heavy. Entries expire with the LRU's TTL; an expired entry is
// never served. Concurrent writers for the same fingerprint race benignly,
// last write wins.
type ResponseCache struct {
	lru *expirable.LRU[string, *CachedResponse]
}

// NewResponseCache builds a cache holding up to maxSize entries for ttl.
func NewResponseCache(maxSize int, ttl time.Duration) *ResponseCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResponseCache{lru: expirable.NewLRU[string, *CachedResponse](maxSize, nil, ttl)}
}

// Lookup returns the cached response for a fingerprint, if still live.
func (c *ResponseCache) Lookup(fp string) (*CachedResponse, bool) {
	return c.lru.Get(fp)
}

// Store saves a response under the fingerprint.
func (c *ResponseCache) Store(fp string, body []byte, contentType string) {
	c.lru.Add(fp, &CachedResponse{Body: body, ContentType: contentType})
}

// Purge drops every entry.
func (c *ResponseCache) Purge() {
	c.lru.Purge()
}

func (c *ResponseCache) Kind() Kind { return KindCaching }

// Evaluate short-circuits with the cached body on a hit. On a miss it tags
// the request with its fingerprint so the gate captures the outgoing
// response. Endpoints not flagged resource-heavy pass straight through.
func (c *ResponseCache) Evaluate(_ context.Context, req *Request, ep *models.Endpoint) (Decision, error) {
	if !ep.ResourceHeavy {
		return Allowed(), nil
	}

	fp := Fingerprint(req)
	if entry, ok := c.Lookup(fp); ok {
		return Decision{
			Allow:       true,
			FromCache:   true,
			Status:      200,
			CachedBody:  entry.Body,
			ContentType: entry.ContentType,
		}, nil
	}

	metrics.IncCacheMiss()
	req.CacheFingerprint = fp
	return Allowed(), nil
}

// Fingerprint derives the stable cache key from method, path, query, and
// body. Key order never matters: url.Values encoding and JSON object
// marshaling both sort keys.
func Fingerprint(req *Request) string {
	h := sha256.New()
	h.Write([]byte(req.Method))
	h.Write([]byte{0})
	h.Write([]byte(req.Path))
	h.Write([]byte{0})
	h.Write([]byte(req.Query.Encode()))
	h.Write([]byte{0})
	if req.Body != nil {
		if b, err := json.Marshal(req.Body); err == nil {
			h.Write(b)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
