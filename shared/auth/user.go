// Package auth talks to a GoTrue compatible identity provider and verifies
// the session tokens it issues.
package auth

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

// User is the identity carried by a verified session token.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
}

// User types a signed-in account can pick. New accounts start as pending.
const (
	UserTypePending = "pending"
	UserTypeBuyer   = "buyer"
	UserTypeSeller  = "seller"
)

// userTypeKey is the user_metadata entry holding the chosen user type.
const userTypeKey = "user_type"

// UserTypeMetadata is the metadata update that records userType.
func UserTypeMetadata(userType string) map[string]any {
	return map[string]any{userTypeKey: userType}
}

// ValidUserType reports whether userType can be chosen by a user.
func ValidUserType(userType string) bool {
	return userType == UserTypeBuyer || userType == UserTypeSeller
}

// UserType returns buyer or seller once the user has chosen, and an empty
// string before that.
func (u *User) UserType() string {
	if u == nil {
		return ""
	}
	t, _ := u.UserMetadata[userTypeKey].(string)
	if !ValidUserType(t) {
		return ""
	}
	return t
}

func (u *User) IsSeller() bool {
	return u.UserType() == UserTypeSeller
}

// Session is an authenticated session issued by the identity provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	User         User   `json:"user"`
}

// TokenVerifier checks a session token locally.
type TokenVerifier interface {
	Verify(token string) (*User, error)
}

// IdentityProvider is the remote side of authentication. Registration may
// return a nil session when the provider requires email confirmation.
type IdentityProvider interface {
	Authenticate(ctx context.Context, email, password string) (*Session, error)
	Register(ctx context.Context, email, password string, metadata map[string]any) (*User, *Session, error)
	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accessToken, newPassword string) (*User, error)
	UpdateMetadata(ctx context.Context, accessToken string, data map[string]any) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// ProviderError is a non-2xx answer from the identity provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider returned %d: %s", e.StatusCode, e.Message)
}

// Unauthorized reports whether the provider rejected the credentials
// rather than failing on its own.
func (e *ProviderError) Unauthorized() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
