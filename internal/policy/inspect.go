package policy

import (
	"context"
	"regexp"

	"github.com/microcosm-cc/bluemonday"

	"github.com/wardenproxy/warden/internal/logger"
	"github.com/wardenproxy/warden/internal/models"
)

// sqlPatterns are the heuristic injection signatures: SQL keywords,
// comment and meta characters, tautologies, and timing functions. This is
// best-effort pattern matching, not a proof of safety.
var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|union|alter|create|exec)\b`),
	regexp.MustCompile("--|/\\*|\\*/|;|'|\"|`|#"),
	regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i)'\s*or\s*'1'\s*=\s*'1`),
	regexp.MustCompile(`(?i)\bor\b.+=`),
	regexp.MustCompile(`(?i)sleep\s*\(|waitfor\s+delay|benchmark\s*\(`),
}

// SQLInspector scans query parameters, path parameters, and body fields for
// injection signatures and rejects on any match. The offending value is
// logged, never echoed back to the client.
type SQLInspector struct{}

func NewSQLInspector() *SQLInspector {
	return &SQLInspector{}
}

func (i *SQLInspector) Kind() Kind { return KindContentInspection }

func (i *SQLInspector) Evaluate(_ context.Context, req *Request, _ *models.Endpoint) (Decision, error) {
	if match := i.scan(req); match != "" {
		logger.WithFields(map[string]interface{}{
			"client": req.ClientIP,
			"path":   req.Path,
		}).Warn("potential SQL injection detected")
		return Deny(KindContentInspection, 403, map[string]interface{}{
			"error": "Potential SQL injection detected",
		}), nil
	}
	return Allowed(), nil
}

// scan returns the first matching value, or "".
func (i *SQLInspector) scan(req *Request) string {
	for _, values := range req.Query {
		for _, v := range values {
			if matchesSQL(v) {
				return v
			}
		}
	}
	for _, v := range req.PathParams {
		if matchesSQL(v) {
			return v
		}
	}
	return scanValue(req.Body)
}

func matchesSQL(s string) bool {
	for _, p := range sqlPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// scanValue walks nested structures; only string leaves are scanned.
func scanValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		if matchesSQL(t) {
			return t
		}
	case map[string]interface{}:
		for _, nested := range t {
			if m := scanValue(nested); m != "" {
				return m
			}
		}
	case []interface{}:
		for _, nested := range t {
			if m := scanValue(nested); m != "" {
				return m
			}
		}
	}
	return ""
}

// XSSSanitizer strips script-bearing markup from every string leaf of the
// request surfaces in place. It always allows; the goal is neutralization,
// not rejection.
type XSSSanitizer struct {
	policy *bluemonday.Policy
}

func NewXSSSanitizer() *XSSSanitizer {
	return &XSSSanitizer{policy: bluemonday.StrictPolicy()}
}

func (x *XSSSanitizer) Kind() Kind { return KindXSSSanitize }

func (x *XSSSanitizer) Evaluate(_ context.Context, req *Request, _ *models.Endpoint) (Decision, error) {
	for key, values := range req.Query {
		for n, v := range values {
			if clean := x.policy.Sanitize(v); clean != v {
				req.Query[key][n] = clean
				req.Sanitized = true
			}
		}
	}
	for key, v := range req.PathParams {
		if clean := x.policy.Sanitize(v); clean != v {
			req.PathParams[key] = clean
			req.Sanitized = true
		}
	}
	if req.Body != nil {
		x.sanitizeMap(req, req.Body)
	}
	return Allowed(), nil
}

func (x *XSSSanitizer) sanitizeMap(req *Request, m map[string]interface{}) {
	for key, v := range m {
		m[key] = x.sanitizeValue(req, v)
	}
}

func (x *XSSSanitizer) sanitizeValue(req *Request, v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		if clean := x.policy.Sanitize(t); clean != t {
			req.Sanitized = true
			return clean
		}
		return t
	case map[string]interface{}:
		x.sanitizeMap(req, t)
		return t
	case []interface{}:
		for n, nested := range t {
			t[n] = x.sanitizeValue(req, nested)
		}
		return t
	default:
		return v
	}
}
