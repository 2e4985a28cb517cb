package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/wardenproxy/warden/internal/logger"
)

// Forwarder relays an allowed request to the backend and writes the raw
// response back to the client. Implementations own retries and timeouts;
// the policy gate never retries.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request)
}

// ReverseForwarder is the stock Forwarder, a single-host reverse proxy.
type ReverseForwarder struct {
	proxy *httputil.ReverseProxy
}

// NewReverseForwarder builds a forwarder targeting the given backend URL.
func NewReverseForwarder(target string) (*ReverseForwarder, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse forward target: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("forward target %q needs scheme and host", target)
	}

	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.WithFields(map[string]interface{}{
			"path":   r.URL.Path,
			"method": r.Method,
		}).WithError(err).Error("backend unreachable")

		status := http.StatusBadGateway
		message := "Bad Gateway"
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
			message = "Gateway Timeout"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error": %q}`, message)
	}

	return &ReverseForwarder{proxy: rp}, nil
}

// Forward implements Forwarder.
func (f *ReverseForwarder) Forward(w http.ResponseWriter, r *http.Request) {
	f.proxy.ServeHTTP(w, r)
}
