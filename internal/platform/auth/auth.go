// Package auth maps inbound credentials to a Principal and gates operations
// by role. Verification is behind the CredentialVerifier interface so the
// static token map, the JWT verifier, and any future IdP integration are
// interchangeable.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Roles recognized by the service.
const (
	RoleAdmin    = "admin"
	RoleUser     = "user"
	RoleReadonly = "readonly"
)

// Principal is the authenticated caller.
type Principal struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CredentialVerifier resolves a raw bearer token into a Principal. An empty
// token means no credential was presented; implementations decide whether
// that is anonymous access or a rejection.
type CredentialVerifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

type contextKey string

const principalKey contextKey = "principal"

// anonymous is the fail-open default principal granted when no credential is
// presented or the token is unrecognized. Deliberately carried over from the
// original deployment; production configs must use the JWT verifier instead.
var anonymous = Principal{Username: "demo_user", Role: RoleUser}

// StaticTokenVerifier maps sentinel bearer tokens to principals. Unknown or
// absent tokens fall back to the anonymous standard-role principal.
type StaticTokenVerifier struct {
	tokens map[string]Principal
}

// NewStaticTokenVerifier returns a verifier with the built-in sentinel
// tokens: "admin_token" grants admin, "user_token" grants user.
func NewStaticTokenVerifier() *StaticTokenVerifier {
	return &StaticTokenVerifier{
		tokens: map[string]Principal{
			"admin_token": {Username: "admin", Role: RoleAdmin},
			"user_token":  {Username: "standard_user", Role: RoleUser},
		},
	}
}

func (v *StaticTokenVerifier) Verify(_ context.Context, token string) (Principal, error) {
	if p, ok := v.tokens[token]; ok {
		return p, nil
	}
	return anonymous, nil
}

// JWTVerifier validates HS256 tokens carrying a "role" claim.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func NewJWTVerifier(secret []byte, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{secret: secret, issuer: issuer, audience: audience}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, fmt.Errorf("missing credential")
	}

	claims := &jwtClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("invalid token")
	}

	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return Principal{Username: claims.Subject, Role: role}, nil
}

// Middleware resolves the Authorization header through the verifier and
// stores the resulting Principal in the request context. A malformed header
// is treated the same as no credential.
func Middleware(verifier CredentialVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request().Header.Get("Authorization"))

			principal, err := verifier.Verify(c.Request().Context(), token)
			if err != nil {
				return echo.NewHTTPError(401, "invalid credential")
			}

			ctx := context.WithValue(c.Request().Context(), principalKey, principal)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// PrincipalFromContext returns the authenticated principal, or the anonymous
// default when none was set (handlers reached outside the middleware chain).
func PrincipalFromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey).(Principal); ok {
		return p
	}
	return anonymous
}

// WithPrincipal returns a context carrying the given principal. Used by tests
// and internal callers.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}
