package middleware

import (
	"net/http"
	"strings"

	"github.com/dfryer1193/cropfeed/api"
	"github.com/dfryer1193/cropfeed/shared/auth"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	// AccessTokenCookie carries the session token for browser requests.
	AccessTokenCookie = "access_token"
	// RefreshTokenCookie lets the server reissue the session after the
	// user's metadata changes.
	RefreshTokenCookie = "refresh_token"
)

// SellerOnlyMessage is what seller-only routes answer other users with.
const SellerOnlyMessage = "Only sellers can upload products"

const (
	userKey  = "auth.user"
	tokenKey = "auth.token"
)

// RequireAuth rejects requests without a valid session token.
func RequireAuth(verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		user, err := verifier.Verify(token)
		if err != nil {
			log.Warn().Err(err).Str("requestID", RequestID(c)).Str("path", c.Request.URL.Path).Msg("Rejected unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.Error("Authentication failed: "+err.Error()))
			return
		}

		setUser(c, user, token)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and lets
// every request through.
func OptionalAuth(verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := TokenFromRequest(c); token != "" {
			if user, err := verifier.Verify(token); err == nil {
				setUser(c, user, token)
			}
		}
		c.Next()
	}
}

// RequireSeller lets through users who picked the seller type. It must run
// after RequireAuth. Others are sent to redirectURL, or get a 403 when
// redirectURL is empty.
func RequireSeller(redirectURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if ok && user.IsSeller() {
			c.Next()
			return
		}

		userID := ""
		if ok {
			userID = user.ID
		}
		log.Info().Str("requestID", RequestID(c)).Str("userID", userID).Str("path", c.Request.URL.Path).Msg("Rejected non-seller request")

		if redirectURL != "" {
			c.Redirect(http.StatusFound, redirectURL)
			c.Abort()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, api.Error(SellerOnlyMessage))
	}
}

// CurrentUser returns the user verified for this request, if any.
func CurrentUser(c *gin.Context) (*auth.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*auth.User)
	return user, ok && user != nil
}

// AccessToken returns the token verified for this request. Routes without
// auth middleware get the raw token from the request instead.
func AccessToken(c *gin.Context) string {
	if token := c.GetString(tokenKey); token != "" {
		return token
	}
	return TokenFromRequest(c)
}

// TokenFromRequest reads a bearer token, falling back to the session cookie.
func TokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}

	if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
		return cookie
	}
	return ""
}

func setUser(c *gin.Context, user *auth.User, token string) {
	c.Set(userKey, user)
	c.Set(tokenKey, token)
}
