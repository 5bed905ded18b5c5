package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func TestStaticTokenVerifier(t *testing.T) {
	v := NewStaticTokenVerifier()

	tests := []struct {
		token        string
		wantUsername string
		wantRole     string
	}{
		{"admin_token", "admin", RoleAdmin},
		{"user_token", "standard_user", RoleUser},
		{"", "demo_user", RoleUser},
		{"garbage", "demo_user", RoleUser},
	}
	for _, tt := range tests {
		p, err := v.Verify(context.Background(), tt.token)
		if err != nil {
			t.Fatalf("Verify(%q): %v", tt.token, err)
		}
		if p.Username != tt.wantUsername || p.Role != tt.wantRole {
			t.Errorf("Verify(%q) = %+v, want %s/%s", tt.token, p, tt.wantUsername, tt.wantRole)
		}
	}
}

func signToken(t *testing.T, secret []byte, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestJWTVerifier(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(secret, "", "")

	token := signToken(t, secret, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "reviewer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RoleAdmin,
	})

	p, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Username != "reviewer" || p.Role != RoleAdmin {
		t.Errorf("principal = %+v", p)
	}
}

func TestJWTVerifier_DefaultsRole(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(secret, "", "")

	token := signToken(t, secret, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "someone",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	p, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Role != RoleUser {
		t.Errorf("role = %q, want default user", p.Role)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(secret, "", "")

	// No credential.
	if _, err := v.Verify(context.Background(), ""); err == nil {
		t.Error("expected error for empty token")
	}

	// Wrong secret.
	bad := signToken(t, []byte("other-secret"), jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if _, err := v.Verify(context.Background(), bad); err == nil {
		t.Error("expected error for wrong signing key")
	}

	// Expired.
	expired := signToken(t, secret, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	if _, err := v.Verify(context.Background(), expired); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestJWTVerifier_IssuerAudience(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(secret, "priorauth", "intake-api")

	good := signToken(t, secret, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x",
			Issuer:    "priorauth",
			Audience:  jwt.ClaimStrings{"intake-api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if _, err := v.Verify(context.Background(), good); err != nil {
		t.Errorf("valid issuer/audience rejected: %v", err)
	}

	wrongIssuer := signToken(t, secret, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x",
			Issuer:    "someone-else",
			Audience:  jwt.ClaimStrings{"intake-api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if _, err := v.Verify(context.Background(), wrongIssuer); err == nil {
		t.Error("expected error for wrong issuer")
	}
}

func TestMiddleware_SetsPrincipal(t *testing.T) {
	e := echo.New()
	var got Principal
	handler := Middleware(NewStaticTokenVerifier())(func(c echo.Context) error {
		got = PrincipalFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer admin_token")
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if got.Role != RoleAdmin {
		t.Errorf("principal = %+v", got)
	}
}

func TestMiddleware_MalformedHeaderFallsBack(t *testing.T) {
	e := echo.New()
	var got Principal
	handler := Middleware(NewStaticTokenVerifier())(func(c echo.Context) error {
		got = PrincipalFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	for _, header := range []string{"", "Token abc", "Beareradmin_token"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		if err := handler(e.NewContext(req, rec)); err != nil {
			t.Fatal(err)
		}
		if got.Username != "demo_user" || got.Role != RoleUser {
			t.Errorf("header %q: principal = %+v, want anonymous", header, got)
		}
	}
}

func TestPrincipalFromContext_Default(t *testing.T) {
	p := PrincipalFromContext(context.Background())
	if p.Username != "demo_user" || p.Role != RoleUser {
		t.Errorf("default principal = %+v", p)
	}
}
