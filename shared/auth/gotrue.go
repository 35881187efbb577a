package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

var _ IdentityProvider = (*GoTrueClient)(nil)

const defaultHTTPTimeout = 10 * time.Second

// statusErrorRegex matches the errors gotrue-go builds from non-2xx answers.
var statusErrorRegex = regexp.MustCompile(`(?s)^response status code (\d{3})(?:: (.*))?$`)

// GoTrueClient talks to a GoTrue (Supabase Auth) server through gotrue-go.
type GoTrueClient struct {
	api        gotrue.Client
	anonKey    string
	httpClient *http.Client
}

type GoTrueOption func(*GoTrueClient)

func WithHTTPClient(c *http.Client) GoTrueOption {
	return func(g *GoTrueClient) {
		g.httpClient = c
	}
}

// NewGoTrueClient builds a client for the project at projectURL, e.g.
// https://xyz.supabase.co. The auth API is expected under /auth/v1.
func NewGoTrueClient(projectURL, anonKey string, opts ...GoTrueOption) (*GoTrueClient, error) {
	if projectURL == "" {
		return nil, errors.New("identity provider url cannot be empty")
	}
	if anonKey == "" {
		return nil, errors.New("identity provider anon key cannot be empty")
	}
	if _, err := url.Parse(projectURL); err != nil {
		return nil, fmt.Errorf("invalid identity provider url: %w", err)
	}

	g := &GoTrueClient{
		api:        gotrue.New("", anonKey).WithCustomGoTrueURL(strings.TrimRight(projectURL, "/") + "/auth/v1"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Authenticate signs in with email and password.
func (g *GoTrueClient) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	resp, err := g.client(ctx, "", nil).SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, providerError(err)
	}
	return fromGoTrueSession(resp.Session), nil
}

// Refresh trades a refresh token for a new session, picking up changes to
// the user made since the old one was issued.
func (g *GoTrueClient) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrMissingToken
	}

	resp, err := g.client(ctx, "", nil).RefreshToken(refreshToken)
	if err != nil {
		return nil, providerError(err)
	}
	return fromGoTrueSession(resp.Session), nil
}

// Register creates an account. The session is nil when the provider waits
// for email confirmation.
func (g *GoTrueClient) Register(ctx context.Context, email, password string, metadata map[string]any) (*User, *Session, error) {
	resp, err := g.client(ctx, "", nil).Signup(types.SignupRequest{
		Email:    email,
		Password: password,
		Data:     metadata,
	})
	if err != nil {
		return nil, nil, providerError(err)
	}

	if resp.AccessToken != "" {
		session := fromGoTrueSession(resp.Session)
		return &session.User, session, nil
	}

	user := fromGoTrueUser(resp.User)
	if user.UserMetadata == nil {
		user.UserMetadata = metadata
	}
	return &user, nil, nil
}

// RequestPasswordReset emails a recovery link that lands on redirectTo.
func (g *GoTrueClient) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	return providerError(g.client(ctx, "", query).Recover(types.RecoverRequest{Email: email}))
}

// UpdatePassword sets a new password for the user owning accessToken.
func (g *GoTrueClient) UpdatePassword(ctx context.Context, accessToken, newPassword string) (*User, error) {
	return g.updateUser(ctx, accessToken, types.UpdateUserRequest{Password: &newPassword})
}

// UpdateMetadata merges data into the user_metadata of the user owning
// accessToken.
func (g *GoTrueClient) UpdateMetadata(ctx context.Context, accessToken string, data map[string]any) (*User, error) {
	return g.updateUser(ctx, accessToken, types.UpdateUserRequest{Data: data})
}

func (g *GoTrueClient) updateUser(ctx context.Context, accessToken string, req types.UpdateUserRequest) (*User, error) {
	if accessToken == "" {
		return nil, ErrMissingToken
	}

	resp, err := g.client(ctx, accessToken, nil).UpdateUser(req)
	if err != nil {
		return nil, providerError(err)
	}
	user := fromGoTrueUser(resp.User)
	return &user, nil
}

// SignOut revokes the refresh tokens of the session owning accessToken.
func (g *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return ErrMissingToken
	}
	return providerError(g.client(ctx, accessToken, nil).Logout())
}

// client returns a gotrue-go client bound to ctx. Requests without a user
// token are sent with the anon key as bearer, the way Supabase clients do.
func (g *GoTrueClient) client(ctx context.Context, accessToken string, query url.Values) gotrue.Client {
	hc := *g.httpClient
	hc.Transport = &requestTransport{base: g.httpClient.Transport, ctx: ctx, query: query}

	if accessToken == "" {
		accessToken = g.anonKey
	}
	return g.api.WithClient(hc).WithToken(accessToken)
}

// requestTransport binds outgoing requests to a context and appends query
// parameters gotrue-go has no field for.
type requestTransport struct {
	base  http.RoundTripper
	ctx   context.Context
	query url.Values
}

func (t *requestTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(t.ctx)
	out.Header.Set("Accept", "application/json")
	if len(t.query) > 0 {
		q := out.URL.Query()
		for key, values := range t.query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		out.URL.RawQuery = q.Encode()
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}

// providerError turns gotrue-go's status errors into a ProviderError.
func providerError(err error) error {
	if err == nil {
		return nil
	}

	m := statusErrorRegex.FindStringSubmatch(err.Error())
	if m == nil {
		return fmt.Errorf("identity provider request failed: %w", err)
	}

	code, _ := strconv.Atoi(m[1])
	fallback := strconv.Itoa(code) + " " + http.StatusText(code)
	return &ProviderError{StatusCode: code, Message: errorMessage([]byte(m[2]), fallback)}
}

func fromGoTrueUser(u types.User) User {
	user := User{
		Email:        u.Email,
		Role:         u.Role,
		UserMetadata: u.UserMetadata,
		AppMetadata:  u.AppMetadata,
	}
	if u.ID != uuid.Nil {
		user.ID = u.ID.String()
	}
	return user
}

func fromGoTrueSession(s types.Session) *Session {
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		User:         fromGoTrueUser(s.User),
	}
}

// errorMessage picks the human readable part of a GoTrue error body.
func errorMessage(data []byte, fallback string) string {
	var body struct {
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		for _, m := range []string{body.ErrorDescription, body.Msg, body.Message, body.Error} {
			if m != "" {
				return m
			}
		}
	}
	return fallback
}
