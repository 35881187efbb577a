package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

var verifierNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":           "8d0f6c1e-farmer",
		"email":         "farmer@example.com",
		"role":          "authenticated",
		"aud":           "authenticated",
		"iat":           verifierNow.Add(-time.Minute).Unix(),
		"exp":           verifierNow.Add(time.Hour).Unix(),
		"user_metadata": map[string]any{"full_name": "Asha Patil"},
		"app_metadata":  map[string]any{"provider": "email"},
	}
}

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(testSecret, WithVerifierClock(func() time.Time { return verifierNow }))
	if err != nil {
		t.Fatalf("NewJWTVerifier failed: %v", err)
	}
	return v
}

func TestNewJWTVerifier_EmptySecret(t *testing.T) {
	if _, err := NewJWTVerifier(""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestJWTVerifier_Verify(t *testing.T) {
	v := newTestVerifier(t)

	user, err := v.Verify(signToken(t, jwt.SigningMethodHS256, testSecret, baseClaims()))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	expected := &User{
		ID:           "8d0f6c1e-farmer",
		Email:        "farmer@example.com",
		Role:         "authenticated",
		UserMetadata: map[string]any{"full_name": "Asha Patil"},
		AppMetadata:  map[string]any{"provider": "email"},
	}
	if diff := cmp.Diff(expected, user); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}
}

func TestJWTVerifier_Verify_Rejections(t *testing.T) {
	v := newTestVerifier(t)

	with := func(mutate func(jwt.MapClaims)) jwt.MapClaims {
		c := baseClaims()
		mutate(c)
		return c
	}

	tests := []struct {
		name     string
		token    func(t *testing.T) string
		expected error
	}{
		{
			name:     "Empty token",
			token:    func(t *testing.T) string { return "" },
			expected: ErrMissingToken,
		},
		{
			name:     "Garbage",
			token:    func(t *testing.T) string { return "not.a.jwt" },
			expected: ErrInvalidToken,
		},
		{
			name: "Expired beyond leeway",
			token: func(t *testing.T) string {
				return signToken(t, jwt.SigningMethodHS256, testSecret, with(func(c jwt.MapClaims) {
					c["exp"] = verifierNow.Add(-2 * time.Minute).Unix()
				}))
			},
			expected: ErrTokenExpired,
		},
		{
			name: "Wrong secret",
			token: func(t *testing.T) string {
				return signToken(t, jwt.SigningMethodHS256, "another-secret", baseClaims())
			},
			expected: ErrInvalidToken,
		},
		{
			name: "Other algorithm",
			token: func(t *testing.T) string {
				return signToken(t, jwt.SigningMethodHS512, testSecret, baseClaims())
			},
			expected: ErrInvalidToken,
		},
		{
			name: "Missing exp",
			token: func(t *testing.T) string {
				return signToken(t, jwt.SigningMethodHS256, testSecret, with(func(c jwt.MapClaims) {
					delete(c, "exp")
				}))
			},
			expected: ErrInvalidToken,
		},
		{
			name: "Missing iat",
			token: func(t *testing.T) string {
				return signToken(t, jwt.SigningMethodHS256, testSecret, with(func(c jwt.MapClaims) {
					delete(c, "iat")
				}))
			},
			expected: ErrInvalidToken,
		},
		{
			name: "Issued in the future",
			token: func(t *testing.T) string {
				return signToken(t, jwt.SigningMethodHS256, testSecret, with(func(c jwt.MapClaims) {
					c["iat"] = verifierNow.Add(10 * time.Minute).Unix()
				}))
			},
			expected: ErrInvalidToken,
		},
		{
			name: "Missing subject",
			token: func(t *testing.T) string {
				return signToken(t, jwt.SigningMethodHS256, testSecret, with(func(c jwt.MapClaims) {
					delete(c, "sub")
				}))
			},
			expected: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token(t))
			if !errors.Is(err, tt.expected) {
				t.Errorf("Verify() error = %v, want %v", err, tt.expected)
			}
		})
	}
}

func TestJWTVerifier_Verify_Leeway(t *testing.T) {
	v := newTestVerifier(t)

	tests := []struct {
		name string
		c    func(jwt.MapClaims)
	}{
		{name: "Expired within leeway", c: func(c jwt.MapClaims) { c["exp"] = verifierNow.Add(-30 * time.Second).Unix() }},
		{name: "Issued slightly ahead", c: func(c jwt.MapClaims) { c["iat"] = verifierNow.Add(30 * time.Second).Unix() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := baseClaims()
			tt.c(claims)
			if _, err := v.Verify(signToken(t, jwt.SigningMethodHS256, testSecret, claims)); err != nil {
				t.Errorf("Verify() error = %v, want nil", err)
			}
		})
	}
}
