package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dfryer1193/cropfeed/feed/application"
	"github.com/dfryer1193/cropfeed/feed/domain"
	"github.com/dfryer1193/cropfeed/feed/persistence"
	"github.com/dfryer1193/cropfeed/internal/middleware"
	"github.com/dfryer1193/cropfeed/shared/auth"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

const (
	validToken     = "valid-token"
	buyerToken     = "buyer-token"
	newcomerToken  = "newcomer-token"
	refreshedToken = "refreshed-token"
)

var (
	farmer = &auth.User{
		ID:           "farmer-1",
		Email:        "farmer@example.com",
		UserMetadata: auth.UserTypeMetadata(auth.UserTypeSeller),
	}
	buyer = &auth.User{
		ID:           "buyer-1",
		Email:        "buyer@example.com",
		UserMetadata: auth.UserTypeMetadata(auth.UserTypeBuyer),
	}
	newcomer = &auth.User{
		ID:           "newcomer-1",
		Email:        "newcomer@example.com",
		UserMetadata: auth.UserTypeMetadata(auth.UserTypePending),
	}
)

type stubVerifier struct{}

func (stubVerifier) Verify(token string) (*auth.User, error) {
	switch token {
	case "":
		return nil, auth.ErrMissingToken
	case validToken, refreshedToken:
		return farmer, nil
	case buyerToken:
		return buyer, nil
	case newcomerToken:
		return newcomer, nil
	default:
		return nil, auth.ErrInvalidToken
	}
}

// stubIdentity records calls and answers with err when set.
type stubIdentity struct {
	err         error
	session     *auth.Session
	resetEmail  string
	resetTarget string
	signedOut   string
	metadata    map[string]any

	updatedToken string
	updated      map[string]any
	refreshErr   error
	refreshedBy  string
}

func (s *stubIdentity) Authenticate(_ context.Context, email, password string) (*auth.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &auth.Session{AccessToken: validToken, RefreshToken: "refresh-1", User: *farmer}, nil
}

func (s *stubIdentity) Register(_ context.Context, email, password string, metadata map[string]any) (*auth.User, *auth.Session, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	s.metadata = metadata
	return &auth.User{ID: "new-1", Email: email}, s.session, nil
}

func (s *stubIdentity) RequestPasswordReset(_ context.Context, email, redirectTo string) error {
	s.resetEmail, s.resetTarget = email, redirectTo
	return s.err
}

func (s *stubIdentity) UpdatePassword(_ context.Context, accessToken, newPassword string) (*auth.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return farmer, nil
}

func (s *stubIdentity) UpdateMetadata(_ context.Context, accessToken string, data map[string]any) (*auth.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.updatedToken, s.updated = accessToken, data
	return &auth.User{ID: newcomer.ID, Email: newcomer.Email, UserMetadata: data}, nil
}

// Refresh hands out a seller session for any refresh token.
func (s *stubIdentity) Refresh(_ context.Context, refreshToken string) (*auth.Session, error) {
	s.refreshedBy = refreshToken
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return &auth.Session{AccessToken: refreshedToken, RefreshToken: "next-" + refreshToken, User: *farmer}, nil
}

func (s *stubIdentity) SignOut(_ context.Context, accessToken string) error {
	s.signedOut = accessToken
	return s.err
}

// memoryImages keeps saved images in a map.
type memoryImages struct {
	mu     sync.Mutex
	images map[string]*domain.Image
}

func (m *memoryImages) SaveImage(_ context.Context, img *domain.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[img.Path] = img
	return nil
}

func (m *memoryImages) GetImage(_ context.Context, path string) (*domain.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return img, nil
}

func (m *memoryImages) DeleteImage(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, path)
	return nil
}

func (m *memoryImages) ListImages(_ context.Context) ([]*domain.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Image, 0, len(m.images))
	for _, img := range m.images {
		out = append(out, img)
	}
	return out, nil
}

type testServer struct {
	router   *gin.Engine
	feed     *application.FeedManager
	images   *memoryImages
	identity *stubIdentity
	notified []domain.ContactRequest
}

type serverOption func(*Dependencies)

func withoutAuth() serverOption {
	return func(d *Dependencies) {
		d.Identity = nil
		d.Verifier = nil
	}
}

func withQuota(bytes int) serverOption {
	return func(d *Dependencies) {
		d.Feed = application.NewFeedManager(
			persistence.NewPostStorage(persistence.NewMemoryKVStore(), persistence.WithQuota(bytes)),
			application.WithClock(func() time.Time { return testNow }),
		)
	}
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	ts := &testServer{
		images:   &memoryImages{images: make(map[string]*domain.Image)},
		identity: &stubIdentity{},
	}

	notifier := application.NotifierFunc(func(_ context.Context, req domain.ContactRequest) error {
		ts.notified = append(ts.notified, req)
		return nil
	})

	deps := Dependencies{
		Feed: application.NewFeedManager(
			persistence.NewPostStorage(persistence.NewMemoryKVStore()),
			application.WithClock(func() time.Time { return testNow }),
			application.WithNotifier(notifier),
		),
		Images:           ts.images,
		Identity:         ts.identity,
		Verifier:         stubVerifier{},
		ResetRedirectURL: "https://feed.example.com/reset",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	ts.feed = deps.Feed
	ts.router = gin.New()
	ts.router.Use(middleware.LoggingMiddleware())
	ts.router.Use(gin.CustomRecovery(middleware.HandlePanics()))
	NewApi(ts.router, deps)
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type upload struct {
	fields   map[string]string
	filename string
	file     []byte
}

func multipartRequest(t *testing.T, path string, u upload) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range u.fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if u.filename != "" {
		fw, err := mw.CreateFormFile(imageField, u.filename)
		if err != nil {
			t.Fatalf("failed to create file part: %v", err)
		}
		fw.Write(u.file)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return v
}

func cropForm() map[string]string {
	return map[string]string{
		"title":       "Alphonso Mangoes",
		"category":    "Fruits",
		"location":    "Ratnagiri",
		"price":       "₹120/kg",
		"quantity":    "300 kg",
		"description": "Hand picked, **naturally ripened**.",
	}
}
