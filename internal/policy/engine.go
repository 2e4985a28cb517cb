package policy

import (
	"context"
	"fmt"

	"github.com/wardenproxy/warden/internal/logger"
	"github.com/wardenproxy/warden/internal/metrics"
	"github.com/wardenproxy/warden/internal/models"
)

// RuleSource resolves which stored rules apply to an endpoint. Implemented
// by the security-group service.
type RuleSource interface {
	RulesForEndpoint(ep *models.Endpoint) ([]models.Rule, error)
}

// GateRule is one executable security behavior. Evaluate returns the
// decision, or an error for an unexpected internal fault — a policy denial
// is a Decision, never an error.
type GateRule interface {
	Kind() Kind
	Evaluate(ctx context.Context, req *Request, ep *models.Endpoint) (Decision, error)
}

// Engine resolves an endpoint's applicable rules through its security
// groups and executes them in fixed priority order with strict
// short-circuit semantics.
type Engine struct {
	source RuleSource
	rules  map[Kind]GateRule
}

// NewEngine builds an engine dispatching to the given rule implementations.
func NewEngine(source RuleSource, rules ...GateRule) *Engine {
	m := make(map[Kind]GateRule, len(rules))
	for _, r := range rules {
		m[r.Kind()] = r
	}
	return &Engine{source: source, rules: m}
}

// Evaluate runs the gate for one request. The first denial stops
// evaluation; its status and body become the response. An endpoint with no
// applicable groups is allowed unconditionally.
func (e *Engine) Evaluate(ctx context.Context, req *Request, ep *models.Endpoint) Decision {
	metrics.IncGateRequest()

	if ep == nil {
		return Allowed()
	}

	stored, err := e.source.RulesForEndpoint(ep)
	if err != nil {
		logger.Log().WithError(err).Error("failed to resolve rules for endpoint")
		return internalError("")
	}
	if len(stored) == 0 {
		return Allowed()
	}

	active := e.dedup(stored)
	headers := map[string]string{}

	for _, kind := range gateOrder {
		rule, ok := active[kind]
		if !ok {
			continue
		}

		if ctx.Err() != nil {
			// Client went away; abandon the gate. The caller still records
			// the aborted call.
			return Deny(kind, 499, nil)
		}

		dec, err := e.run(ctx, rule, req, ep)
		if err != nil {
			metrics.IncRuleFault(string(kind))
			logger.WithFields(map[string]interface{}{
				"rule": string(kind),
				"path": req.Path,
			}).WithError(err).Error("rule fault")

			if failsClosed[kind] {
				return internalError(kind)
			}
			continue
		}

		for k, v := range dec.Headers {
			headers[k] = v
		}

		if !dec.Allow {
			metrics.IncGateDenied(string(dec.DeniedBy))
			dec.Headers = headers
			return dec
		}
		if dec.FromCache {
			metrics.IncCacheHit()
			dec.Headers = headers
			return dec
		}
	}

	return Decision{Allow: true, Headers: headers}
}

// dedup collapses stored rules onto at most one executable per
// implementation key. Two groups contributing the same implementation run
// it once. Unknown keys are skipped with a warning, and call-logging is
// handled outside the gate.
func (e *Engine) dedup(stored []models.Rule) map[Kind]GateRule {
	active := make(map[Kind]GateRule)
	for _, r := range stored {
		kind := Kind(r.Implementation)
		if kind == KindCallLogging {
			continue
		}
		impl, ok := e.rules[kind]
		if !ok {
			logger.WithFields(map[string]interface{}{
				"rule":           r.Name,
				"implementation": r.Implementation,
			}).Warn("skipping rule with unknown implementation")
			continue
		}
		active[kind] = impl
	}
	return active
}

// run executes a rule, converting panics into rule faults so one broken
// rule cannot take the gate down.
func (e *Engine) run(ctx context.Context, rule GateRule, req *Request, ep *models.Endpoint) (dec Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule panic: %v", r)
		}
	}()
	return rule.Evaluate(ctx, req, ep)
}
