package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	gateRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_gate_requests_total",
		Help: "Total number of requests evaluated by the policy gate",
	})
	gateDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_gate_denied_total",
		Help: "Total number of requests denied by the policy gate, by rule",
	}, []string{"rule"})
	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_cache_hits_total",
		Help: "Total number of responses served from the cache",
	})
	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_cache_misses_total",
		Help: "Total number of cache lookups that missed",
	})
	endpointsRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_endpoints_registered_total",
		Help: "Total number of endpoints auto-registered from traffic",
	})
	ruleFaultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_rule_faults_total",
		Help: "Total number of unexpected rule failures, by rule",
	}, []string{"rule"})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		gateRequestsTotal,
		gateDeniedTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		endpointsRegisteredTotal,
		ruleFaultsTotal,
	)
}

// IncGateRequest increments the evaluated requests counter.
func IncGateRequest() { gateRequestsTotal.Inc() }

// IncGateDenied increments the denied counter for the given rule.
func IncGateDenied(rule string) { gateDeniedTotal.WithLabelValues(rule).Inc() }

// IncCacheHit increments the cache hit counter.
func IncCacheHit() { cacheHitsTotal.Inc() }

// IncCacheMiss increments the cache miss counter.
func IncCacheMiss() { cacheMissesTotal.Inc() }

// IncEndpointRegistered increments the auto-registration counter.
func IncEndpointRegistered() { endpointsRegisteredTotal.Inc() }

// IncRuleFault increments the fault counter for the given rule.
func IncRuleFault(rule string) { ruleFaultsTotal.WithLabelValues(rule).Inc() }
