package middleware

import (
	"net/http"
	"strings"

	"github.com/wardenproxy/warden/internal/util"
)

// SanitizeHeaders returns a map of header keys to redacted/sanitized values
// for safe logging. Credential-bearing headers are redacted; other values
// are sanitized and truncated.
func SanitizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return nil
	}
	sensitive := map[string]struct{}{
		"authorization":       {},
		"cookie":              {},
		"set-cookie":          {},
		"proxy-authorization": {},
		"x-api-key":           {},
		"x-auth-token":        {},
		"x-forwarded-for":     {},
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		if _, ok := sensitive[strings.ToLower(k)]; ok {
			out[k] = []string{"<redacted>"}
			continue
		}
		sanitized := make([]string, 0, len(vals))
		for _, v := range vals {
			v2 := util.SanitizeForLog(v)
			if len(v2) > 200 {
				v2 = v2[:200]
			}
			sanitized = append(sanitized, v2)
		}
		out[k] = sanitized
	}
	return out
}

// SanitizePath prepares a request path for safe logging by removing control
// characters and truncating long values. Query parameters are dropped.
func SanitizePath(p string) string {
	if i := strings.Index(p, "?"); i != -1 {
		p = p[:i]
	}
	p = util.SanitizeForLog(p)
	if len(p) > 200 {
		p = p[:200]
	}
	return p
}
