package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wardenproxy/warden/internal/models"
)

// IdentityVerifier validates bearer tokens and attaches the authenticated
// identity to the request for downstream rules.
type IdentityVerifier struct {
	secret []byte
}

func NewIdentityVerifier(secret string) *IdentityVerifier {
	return &IdentityVerifier{secret: []byte(secret)}
}

func (v *IdentityVerifier) Kind() Kind { return KindIdentity }

func (v *IdentityVerifier) Evaluate(_ context.Context, req *Request, _ *models.Endpoint) (Decision, error) {
	header := req.AuthHeader
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return Deny(KindIdentity, 401, map[string]interface{}{
			"message": "No token, authorization denied",
		}), nil
	}

	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == "" {
		return Deny(KindIdentity, 401, map[string]interface{}{
			"message": "No token, authorization denied",
		}), nil
	}

	identity, err := v.Verify(raw)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Deny(KindIdentity, 401, map[string]interface{}{
				"message": "Token has expired",
			}), nil
		}
		return Deny(KindIdentity, 403, map[string]interface{}{
			"error": "Token is not valid",
		}), nil
	}

	req.Identity = identity
	return Allowed(), nil
}

// Verify parses and validates a token, returning the carried identity. The
// payload is expected to hold {user: {id, role}, exp}.
func (v *IdentityVerifier) Verify(raw string) (*Identity, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}

	identity := &Identity{Claims: claims}
	if user, ok := claims["user"].(map[string]interface{}); ok {
		if id, ok := user["id"].(string); ok {
			identity.Subject = id
		}
		if role, ok := user["role"].(string); ok {
			identity.Role = role
		}
	}
	return identity, nil
}
