package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dfryer1193/cropfeed/api"
	"github.com/dfryer1193/cropfeed/internal/middleware"
	"github.com/dfryer1193/cropfeed/shared/auth"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	userSelectURL = "/user-select"
	sellerFeedURL = "/seller-feed"
	buyerFeedURL  = "/feed"
)

// homeURL is where a user of userType lands after signing in.
func homeURL(userType string) string {
	switch userType {
	case auth.UserTypeSeller:
		return sellerFeedURL
	case auth.UserTypeBuyer:
		return buyerFeedURL
	default:
		return userSelectURL
	}
}

// GetUserSelectPage asks users who have not picked a user type yet to pick
// one. Everyone else is sent to their feed.
func (h *handler) GetUserSelectPage(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	if userType := user.UserType(); userType != "" {
		c.Redirect(http.StatusFound, homeURL(userType))
		return
	}
	c.HTML(http.StatusOK, "user_select.html", gin.H{"Action": userSelectURL, "User": user.Email})
}

// SelectUserType records the buyer or seller choice with the identity
// provider. The session is reissued from the refresh token so the new type
// takes effect at once; without one it applies from the next sign in.
func (h *handler) SelectUserType(c *gin.Context) {
	var req api.UserTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "", badRequest("No data received"))
		return
	}
	if !auth.ValidUserType(req.Role) {
		writeError(c, "", badRequest(fmt.Sprintf("Invalid role: %s. Must be buyer or seller.", req.Role)))
		return
	}
	if h.Identity == nil {
		writeError(c, "", errAuthNotAvailable)
		return
	}

	ctx := c.Request.Context()
	user, err := h.Identity.UpdateMetadata(ctx, middleware.AccessToken(c), auth.UserTypeMetadata(req.Role))
	if err != nil {
		writeError(c, "Failed to set role", err)
		return
	}

	resp := api.SessionResponse{
		StatusResponse: api.StatusResponse{
			Status:      api.StatusSuccess,
			Message:     "Role set as " + req.Role,
			RedirectURL: homeURL(req.Role),
		},
		User: user,
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(middleware.RefreshTokenCookie)
	}
	switch session, err := h.reissue(c, refreshToken); {
	case err != nil:
		log.Warn().Err(err).Str("userID", user.ID).Msg("Failed to reissue session after role change")
		resp.Message += ", sign in again to apply it"
	case session != nil:
		setSessionCookies(c, session.AccessToken, session.RefreshToken)
		resp.AccessToken = session.AccessToken
		resp.RefreshToken = session.RefreshToken
		resp.User = &session.User
	default:
		resp.Message += ", sign in again to apply it"
	}

	log.Info().Str("userID", user.ID).Str("userType", req.Role).Msg("User type selected")
	c.JSON(http.StatusOK, resp)
}

func (h *handler) reissue(c *gin.Context, refreshToken string) (*auth.Session, error) {
	if refreshToken == "" {
		return nil, nil
	}
	return h.Identity.Refresh(c.Request.Context(), refreshToken)
}

// GetSellerFeedPage lists the posts of the signed-in seller.
func (h *handler) GetSellerFeedPage(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	c.HTML(http.StatusOK, "feed.html", feedPage{
		Heading: "My Listings",
		Feed:    h.Feed.LoadAndRenderFor(c.Request.Context(), user.ID),
		User:    user.Email,
	})
}

// CheckAuth reports whether the request carries a valid session. It always
// answers 200 so pages can poll it; a rejected cookie is cleared.
func (h *handler) CheckAuth(c *gin.Context) {
	token := middleware.AccessToken(c)
	if token == "" {
		c.JSON(http.StatusOK, api.AuthStatusResponse{StatusResponse: api.Error("No user session")})
		return
	}

	user, err := h.verify(token)
	if err != nil {
		if !errors.Is(err, errAuthNotAvailable) {
			clearSessionCookies(c)
		}
		c.JSON(http.StatusOK, api.AuthStatusResponse{StatusResponse: api.Error(err.Error())})
		return
	}

	c.JSON(http.StatusOK, api.AuthStatusResponse{
		StatusResponse: api.StatusResponse{Status: api.StatusSuccess},
		Authenticated:  true,
		User:           user,
		Role:           user.UserType(),
	})
}
