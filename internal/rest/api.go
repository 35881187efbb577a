package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dfryer1193/cropfeed/api"
	"github.com/dfryer1193/cropfeed/feed/application"
	"github.com/dfryer1193/cropfeed/feed/domain"
	"github.com/dfryer1193/cropfeed/internal/middleware"
	"github.com/dfryer1193/cropfeed/shared/auth"
	"github.com/gin-gonic/gin"
)

const defaultMaxUploadBytes = 10 << 20

// Dependencies are the collaborators the HTTP surface is built from.
// Identity and Verifier may be nil, which disables the auth endpoints and
// leaves uploads open.
type Dependencies struct {
	Feed     *application.FeedManager
	Images   domain.ImageRepository
	ImageDir string
	Identity auth.IdentityProvider
	Verifier auth.TokenVerifier

	ResetRedirectURL string
	UploadURL        string
	MaxUploadBytes   int64
}

type handler struct {
	Dependencies
}

func NewApi(router *gin.Engine, deps Dependencies) {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	if deps.UploadURL == "" {
		deps.UploadURL = application.DefaultUploadURL
	}
	h := &handler{Dependencies: deps}

	router.SetHTMLTemplate(pageTemplates)

	withUser := func(c *gin.Context) { c.Next() }
	requireUser := withUser
	if deps.Verifier != nil {
		withUser = middleware.OptionalAuth(deps.Verifier)
		requireUser = middleware.RequireAuth(deps.Verifier)
	}

	// Without auth there are no user types and uploads stay open.
	sellerPage, sellerOnly := []gin.HandlerFunc{requireUser}, []gin.HandlerFunc{requireUser}
	if deps.Verifier != nil {
		sellerPage = append(sellerPage, middleware.RequireSeller(userSelectURL))
		sellerOnly = append(sellerOnly, middleware.RequireSeller(""))

		router.GET(userSelectURL, requireUser, h.GetUserSelectPage)
		router.POST(userSelectURL, requireUser, h.SelectUserType)
		router.GET(sellerFeedURL, append(sellerPage, h.GetSellerFeedPage)...)
	}

	router.GET("/", withUser, h.GetFeedPage)
	router.GET(buyerFeedURL, withUser, h.GetFeedPage)
	if strings.HasPrefix(deps.UploadURL, "/") {
		router.GET(deps.UploadURL, append(sellerPage, h.GetUploadPage)...)
	}
	router.POST("/upload-product", append(sellerOnly, h.UploadProduct)...)
	router.POST("/posts/:postId/contact", withUser, h.ContactSeller)

	if deps.ImageDir != "" {
		router.Static("/images", deps.ImageDir)
	}

	postsV1 := router.Group("api")
	{
		postsV1.GET("/posts", h.GetFeed)
		postsV1.GET("/check-auth", h.CheckAuth)
		postsV1.POST("/check-auth", h.CheckAuth)
	}

	router.POST("/login", h.Login)
	router.POST("/signup", h.Signup)
	router.POST("/forgot-password", h.ForgotPassword)
	router.POST("/reset-password", h.ResetPassword)
	router.POST("/logout", h.Logout)
	router.POST("/verify-token", h.VerifyToken)
}

var (
	errBadRequest       = errors.New("bad request")
	errAuthNotAvailable = errors.New("authentication is not configured")
)

// badRequest wraps a client mistake that has no domain error of its own.
func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Unwrap() error { return errBadRequest }

func statusFor(err error) int {
	var verr *domain.ValidationError
	var perr *auth.ProviderError
	var maxErr *http.MaxBytesError

	switch {
	case errors.As(err, &verr), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.As(err, &perr):
		if perr.Unauthorized() {
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	case errors.Is(err, errAuthNotAvailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the status matching err. Internal failures are
// recorded on the context for the request log and not echoed to the client.
func writeError(c *gin.Context, prefix string, err error) {
	status := statusFor(err)

	msg := err.Error()
	var perr *auth.ProviderError
	if errors.As(err, &perr) {
		msg = perr.Message
	}
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	if prefix != "" {
		msg = prefix + ": " + msg
	}

	c.Error(err)
	c.AbortWithStatusJSON(status, api.Error(msg))
}
