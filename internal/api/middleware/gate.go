package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wardenproxy/warden/internal/models"
	"github.com/wardenproxy/warden/internal/policy"
	"github.com/wardenproxy/warden/internal/proxy"
	"github.com/wardenproxy/warden/internal/services"
)

const maxInspectBody = 1 << 20 // bodies beyond 1 MiB are forwarded unparsed

// Gate is the request pipeline for proxied traffic: resolve the endpoint,
// run the policy engine, forward on allow, capture cacheable responses, and
// record the call whatever the outcome.
type Gate struct {
	engine    *policy.Engine
	endpoints *services.EndpointService
	calls     *services.CallService
	cache     *policy.ResponseCache
	forwarder proxy.Forwarder
}

func NewGate(engine *policy.Engine, endpoints *services.EndpointService, calls *services.CallService, cache *policy.ResponseCache, forwarder proxy.Forwarder) *Gate {
	return &Gate{
		engine:    engine,
		endpoints: endpoints,
		calls:     calls,
		cache:     cache,
		forwarder: forwarder,
	}
}

// Handle returns the gin handler running the full gate pipeline.
func (g *Gate) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		req := g.buildRequest(c)

		ep, err := g.endpoints.Resolve(c.Request.Method, c.Request.URL.Path)
		if err != nil && !errors.Is(err, services.ErrEndpointNotFound) {
			GetRequestLogger(c).WithError(err).Error("endpoint resolution failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			g.finish(c, req, nil, start, http.StatusInternalServerError, "endpoint resolution failed")
			return
		}
		if ep != nil {
			req.PathParams = policy.ExtractPathParams(ep.Path, req.Path)
		}

		dec := g.engine.Evaluate(c.Request.Context(), req, ep)
		for k, v := range dec.Headers {
			c.Header(k, v)
		}

		if !dec.Allow {
			if dec.Status == 499 {
				// Client disconnected mid-evaluation; nothing to send.
				c.Abort()
				g.finish(c, req, ep, start, 499, "connection aborted")
				return
			}
			c.AbortWithStatusJSON(dec.Status, dec.Body)
			g.finish(c, req, ep, start, dec.Status, denialMessage(dec))
			return
		}

		if dec.FromCache {
			contentType := dec.ContentType
			if contentType == "" {
				contentType = "application/json"
			}
			c.Data(http.StatusOK, contentType, dec.CachedBody)
			g.finish(c, req, ep, start, http.StatusOK, "")
			return
		}

		g.applySanitized(c, req, ep)

		var capture *captureWriter
		if req.CacheFingerprint != "" {
			capture = &captureWriter{ResponseWriter: c.Writer}
			c.Writer = capture
		}

		g.forwarder.Forward(c.Writer, c.Request)

		status := c.Writer.Status()
		if capture != nil && status == http.StatusOK {
			g.cache.Store(req.CacheFingerprint, capture.buf.Bytes(), c.Writer.Header().Get("Content-Type"))
		}

		errMsg := ""
		if c.Request.Context().Err() != nil {
			errMsg = "connection aborted"
		} else if status >= 400 {
			errMsg = http.StatusText(status)
		}
		g.finish(c, req, ep, start, status, errMsg)
	}
}

// buildRequest converts the gin request into the policy engine's view.
// JSON object bodies up to maxInspectBody are decoded for inspection and the
// stream is reassembled so forwarding sees every byte, inspected or not.
func (g *Gate) buildRequest(c *gin.Context) *policy.Request {
	req := &policy.Request{
		Method:     c.Request.Method,
		Path:       c.Request.URL.Path,
		ClientIP:   c.ClientIP(),
		AuthHeader: c.GetHeader("Authorization"),
		Headers:    c.Request.Header,
		Query:      c.Request.URL.Query(),
	}

	if c.Request.Body != nil && c.ContentType() == "application/json" {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxInspectBody))
		if err == nil {
			// The tail past the cap stays unread in the original body;
			// stitch it back on so oversized requests forward intact.
			c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), c.Request.Body))
			if len(raw) > 0 && len(raw) < maxInspectBody {
				var body map[string]interface{}
				if json.Unmarshal(raw, &body) == nil {
					req.Body = body
				}
			}
		}
	}

	return req
}

// applySanitized rewrites the outgoing request when a rule mutated the
// surfaces: query string, path segments, and body all forward with the
// sanitized values, with the body length recomputed.
func (g *Gate) applySanitized(c *gin.Context, req *policy.Request, ep *models.Endpoint) {
	if !req.Sanitized {
		return
	}

	c.Request.URL.RawQuery = req.Query.Encode()

	if ep != nil && len(req.PathParams) > 0 {
		c.Request.URL.Path = policy.FillPathParams(ep.Path, req.PathParams)
		c.Request.URL.RawPath = ""
	}

	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))
		c.Request.ContentLength = int64(len(raw))
		c.Request.Header.Set("Content-Length", strconv.Itoa(len(raw)))
		c.Request.Header.Set("Content-Type", "application/json")
	}
}

// finish observes the endpoint registry and records the call. It runs for
// every outcome and never fails the request.
func (g *Gate) finish(c *gin.Context, req *policy.Request, ep *models.Endpoint, start time.Time, status int, errMsg string) {
	shape := services.RequestShape{
		Query:   keysOfValues(req.Query),
		Headers: headerKeys(c.Request.Header),
		Body:    keysOfMap(req.Body),
	}

	observed, err := g.endpoints.Observe(c.Request.Method, req.Path, shape, status)
	if err != nil && !errors.Is(err, services.ErrEndpointNotFound) {
		GetRequestLogger(c).WithError(err).Warn("endpoint observation failed")
	}

	var endpointID *uint
	if observed != nil {
		endpointID = &observed.ID
	} else if ep != nil {
		endpointID = &ep.ID
	}

	g.calls.Record(endpointID, time.Since(start), status, errMsg)
}

func denialMessage(dec policy.Decision) string {
	for _, key := range []string{"error", "message"} {
		if v, ok := dec.Body[key].(string); ok {
			return v
		}
	}
	return ""
}

func keysOfValues(values map[string][]string) []string {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys
}

func headerKeys(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

func keysOfMap(m map[string]interface{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// captureWriter tees the response body so cache misses can be stored after
// the backend finishes writing, without delaying the client.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
