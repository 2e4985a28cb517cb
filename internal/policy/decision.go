package policy

// Kind identifies one built-in rule behavior. The value doubles as the
// stable implementation key stored on Rule records.
type Kind string

const (
	KindIPFilter          Kind = "ip-filtering"
	KindIdentity          Kind = "identity-verification"
	KindInputValidation   Kind = "input-validation"
	KindContentInspection Kind = "content-inspection"
	KindXSSSanitize       Kind = "xss-sanitization"
	KindRateLimit         Kind = "rate-limiting"
	KindCaching           Kind = "caching"
	KindCallLogging       Kind = "call-logging"
)

// gateOrder is the fixed execution priority. Discovery order never matters:
// however groups are assembled, rules run in this sequence. Call-logging is
// absent on purpose; it runs after the response regardless of the gate.
var gateOrder = []Kind{
	KindIPFilter,
	KindIdentity,
	KindInputValidation,
	KindContentInspection,
	KindXSSSanitize,
	KindRateLimit,
	KindCaching,
}

// failsClosed marks the security-relevant kinds whose internal faults must
// block the request. Everything else degrades to allow; rate limiting
// implements its conditional policy itself.
var failsClosed = map[Kind]bool{
	KindIPFilter:          true,
	KindIdentity:          true,
	KindContentInspection: true,
}

// Decision is the policy engine's per-request outcome.
type Decision struct {
	Allow  bool
	Status int

	// Body is the JSON payload for a denial.
	Body map[string]interface{}

	// Headers to set on the response whichever way the decision went
	// (rate-limit headers appear on admitted and rejected paths alike).
	Headers map[string]string

	// FromCache marks a synthetic allow that serves CachedBody directly
	// and skips the forward step.
	FromCache   bool
	CachedBody  []byte
	ContentType string

	// DeniedBy names the rule that produced a denial.
	DeniedBy Kind
}

// Allowed returns a pass-through decision.
func Allowed() Decision {
	return Decision{Allow: true}
}

// Deny returns a terminal denial with the given status and body.
func Deny(kind Kind, status int, body map[string]interface{}) Decision {
	return Decision{Status: status, Body: body, DeniedBy: kind}
}

// internalError is the envelope for unexpected gate faults.
func internalError(kind Kind) Decision {
	return Deny(kind, 500, map[string]interface{}{"error": "Internal Server Error"})
}
