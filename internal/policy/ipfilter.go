package policy

import (
	"context"
	"net"

	"github.com/wardenproxy/warden/internal/models"
)

// NormalizeIP reduces an IPv4-mapped-IPv6 address to its IPv4 form so list
// comparisons work regardless of how the socket reported the peer.
// Unparsable input is returned unchanged.
func NormalizeIP(addr string) string {
	ip := net.ParseIP(addr)
	if ip == nil {
		return addr
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}

// IPFilter evaluates the client address against the endpoint's allow and
// deny lists. The blacklist always wins; the whitelist is only required
// when the endpoint is restricted to secured addresses.
type IPFilter struct{}

func NewIPFilter() *IPFilter {
	return &IPFilter{}
}

func (f *IPFilter) Kind() Kind { return KindIPFilter }

func (f *IPFilter) Evaluate(_ context.Context, req *Request, ep *models.Endpoint) (Decision, error) {
	ip := NormalizeIP(req.ClientIP)

	if ep.AllowSecuredIPOnly {
		if ep.Blacklist.Contains(ip) {
			return Deny(KindIPFilter, 403, map[string]interface{}{
				"message": "Access denied: IP is blacklisted.",
			}), nil
		}
		if !ep.Whitelist.Contains(ip) {
			return Deny(KindIPFilter, 403, map[string]interface{}{
				"message": "Access denied: IP is not whitelisted.",
			}), nil
		}
		return Allowed(), nil
	}

	if ep.Blacklist.Contains(ip) {
		return Deny(KindIPFilter, 403, map[string]interface{}{
			"message": "Access denied: IP is blacklisted.",
		}), nil
	}

	return Allowed(), nil
}
