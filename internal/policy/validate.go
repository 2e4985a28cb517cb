package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/wardenproxy/warden/internal/models"
)

// InputValidator checks the request against the endpoint's declared
// parameter names and denies when required ones are missing.
type InputValidator struct{}

func NewInputValidator() *InputValidator {
	return &InputValidator{}
}

func (v *InputValidator) Kind() Kind { return KindInputValidation }

func (v *InputValidator) Evaluate(_ context.Context, req *Request, ep *models.Endpoint) (Decision, error) {
	if missing := missingFrom(ep.QueryParams, func(name string) bool {
		return req.Query.Has(name)
	}); len(missing) > 0 {
		return missingDeny("query parameters", missing), nil
	}

	if missing := missingFrom(ep.HeaderParams, func(name string) bool {
		return req.Headers.Get(name) != ""
	}); len(missing) > 0 {
		return missingDeny("headers", missing), nil
	}

	if len(ep.BodyParams) > 0 {
		if missing := missingFrom(ep.BodyParams, func(name string) bool {
			_, ok := req.Body[name]
			return ok
		}); len(missing) > 0 {
			return missingDeny("body parameters", missing), nil
		}
	}

	if len(ep.PathParams) > 0 {
		if missing := missingFrom(ep.PathParams, func(name string) bool {
			_, ok := req.PathParams[name]
			return ok
		}); len(missing) > 0 {
			return missingDeny("path parameters", missing), nil
		}
	}

	return Allowed(), nil
}

func missingFrom(declared models.StringList, present func(string) bool) []string {
	var missing []string
	for _, name := range declared {
		if !present(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func missingDeny(surface string, missing []string) Decision {
	return Deny(KindInputValidation, 400, map[string]interface{}{
		"error": fmt.Sprintf("Missing required %s: %s", surface, strings.Join(missing, ", ")),
	})
}
