package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var _ TokenVerifier = (*JWTVerifier)(nil)

// DefaultLeeway absorbs clock skew between the provider and this server.
const DefaultLeeway = 60 * time.Second

type sessionClaims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
	AppMetadata  map[string]any `json:"app_metadata"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 session tokens signed with the provider's
// shared secret. Audience is not checked; exp and iat are required.
type JWTVerifier struct {
	secret []byte
	leeway time.Duration
	nowFn  func() time.Time
}

type VerifierOption func(*JWTVerifier)

func WithLeeway(d time.Duration) VerifierOption {
	return func(v *JWTVerifier) {
		v.leeway = d
	}
}

// WithVerifierClock replaces the wall clock used for exp and iat checks.
func WithVerifierClock(nowFn func() time.Time) VerifierOption {
	return func(v *JWTVerifier) {
		v.nowFn = nowFn
	}
}

func NewJWTVerifier(secret string, opts ...VerifierOption) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}

	v := &JWTVerifier{
		secret: []byte(secret),
		leeway: DefaultLeeway,
		nowFn:  time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify returns the user a token was issued to.
func (v *JWTVerifier) Verify(token string) (*User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, v.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.nowFn),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: token has no iat claim", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no sub claim", ErrInvalidToken)
	}

	return &User{
		ID:           claims.Subject,
		Email:        claims.Email,
		Role:         claims.Role,
		UserMetadata: claims.UserMetadata,
		AppMetadata:  claims.AppMetadata,
	}, nil
}

func (v *JWTVerifier) key(*jwt.Token) (any, error) {
	return v.secret, nil
}
