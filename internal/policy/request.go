package policy

import (
	"net/http"
	"net/url"
	"strings"
)

// Identity is the authenticated caller attached by the
// identity-verification rule and consumed by later rules.
type Identity struct {
	Subject string
	Role    string
	Claims  map[string]interface{}
}

// Request is the transport-independent view of an inbound request that
// rules evaluate and, in the sanitizer's case, mutate.
type Request struct {
	Method   string
	Path     string
	ClientIP string

	AuthHeader string
	Headers    http.Header
	Query      url.Values
	PathParams map[string]string

	// Body holds the decoded JSON object body, nil for non-JSON or empty
	// bodies. Rules only inspect string leaves.
	Body map[string]interface{}

	// Identity is set once the caller has been verified.
	Identity *Identity

	// CacheFingerprint is set by the caching rule on a miss so the gate
	// knows to capture and store the outgoing response.
	CacheFingerprint string

	// Sanitized is set when a rule mutated Query, PathParams, or Body and
	// the forwarded request must be re-serialized.
	Sanitized bool
}

// RoleKey returns the role used for role-based limits, "default" for
// anonymous callers.
func (r *Request) RoleKey() string {
	if r.Identity == nil || r.Identity.Role == "" {
		return "default"
	}
	return r.Identity.Role
}

// SubjectKey returns the caller identity used in counter keys.
func (r *Request) SubjectKey() string {
	if r.Identity == nil || r.Identity.Subject == "" {
		return "anonymous"
	}
	return r.Identity.Subject
}

// FillPathParams renders a template path with concrete segment values, the
// inverse of ExtractPathParams. Segments without a value keep their
// placeholder.
func FillPathParams(template string, params map[string]string) string {
	segs := strings.Split(template, "/")
	for i, seg := range segs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if v, ok := params[strings.Trim(seg, "{}")]; ok {
				segs[i] = v
			}
		}
	}
	return strings.Join(segs, "/")
}

// ExtractPathParams maps an endpoint's template segments to the concrete
// values in the request path, so /orders/{id} against /orders/42 yields
// {"id": "42"}. Mismatched paths yield an empty map.
func ExtractPathParams(template, path string) map[string]string {
	tsegs := strings.Split(template, "/")
	psegs := strings.Split(path, "/")
	if len(tsegs) != len(psegs) {
		return nil
	}

	var params map[string]string
	for i, seg := range tsegs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if params == nil {
				params = make(map[string]string)
			}
			params[strings.Trim(seg, "{}")] = psegs[i]
		}
	}
	return params
}
