package rest

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dfryer1193/cropfeed/api"
	"github.com/dfryer1193/cropfeed/internal/middleware"
	"github.com/dfryer1193/cropfeed/shared/auth"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionMaxAge = 24 * 60 * 60
	refreshMaxAge = 30 * sessionMaxAge
)

func (h *handler) Login(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "", badRequest("No data received"))
		return
	}

	token, refreshToken := req.Token, ""
	if token == "" {
		if req.Email == "" || req.Password == "" {
			writeError(c, "", badRequest("Email and password are required"))
			return
		}
		if h.Identity == nil {
			writeError(c, "Login failed", errAuthNotAvailable)
			return
		}

		session, err := h.Identity.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			log.Warn().Err(err).Str("email", req.Email).Msg("Login rejected by identity provider")
			writeError(c, "Authentication failed", err)
			return
		}
		token = session.AccessToken
		refreshToken = session.RefreshToken
	}

	user, err := h.verify(token)
	if err != nil {
		writeError(c, "Authentication failed", err)
		return
	}

	setSessionCookies(c, token, refreshToken)
	log.Info().Str("userID", user.ID).Str("userType", user.UserType()).Msg("Login successful")

	c.JSON(http.StatusOK, api.SessionResponse{
		StatusResponse: api.StatusResponse{
			Status:      api.StatusSuccess,
			Message:     "Login successful",
			RedirectURL: homeURL(user.UserType()),
		},
		AccessToken:  token,
		RefreshToken: refreshToken,
		User:         user,
	})
}

func (h *handler) Signup(c *gin.Context) {
	var req api.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "", badRequest("No data received"))
		return
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"email", req.Email},
		{"password", req.Password},
		{"first_name", req.FirstName},
		{"last_name", req.LastName},
		{"phone", req.Phone},
		{"state", req.State},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		writeError(c, "", badRequest("Missing required fields: "+strings.Join(missing, ", ")))
		return
	}

	if h.Identity == nil {
		writeError(c, "Registration failed", errAuthNotAvailable)
		return
	}

	metadata := map[string]any{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
		"full_name":  strings.TrimSpace(req.FirstName + " " + req.LastName),
		"phone":      req.Phone,
		"state":      req.State,
		"user_type":  auth.UserTypePending,
	}

	user, session, err := h.Identity.Register(c.Request.Context(), req.Email, req.Password, metadata)
	if err != nil {
		writeError(c, "Registration failed", err)
		return
	}

	resp := api.SessionResponse{
		StatusResponse: api.StatusResponse{
			Status:  api.StatusSuccess,
			Message: "Registration successful, check your email to confirm your account",
		},
		User: user,
	}
	if session != nil && session.AccessToken != "" {
		setSessionCookies(c, session.AccessToken, session.RefreshToken)
		resp.Message = "Registration successful"
		resp.RedirectURL = userSelectURL
		resp.AccessToken = session.AccessToken
		resp.RefreshToken = session.RefreshToken
	}

	log.Info().Str("userID", user.ID).Bool("confirmed", resp.AccessToken != "").Msg("User registered")
	c.JSON(http.StatusOK, resp)
}

func (h *handler) ForgotPassword(c *gin.Context) {
	var req api.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeError(c, "", badRequest("Email is required"))
		return
	}

	if h.Identity == nil {
		writeError(c, "", errAuthNotAvailable)
		return
	}

	if err := h.Identity.RequestPasswordReset(c.Request.Context(), req.Email, h.ResetRedirectURL); err != nil {
		writeError(c, "", err)
		return
	}

	c.JSON(http.StatusOK, api.Success("Password reset link sent"))
}

func (h *handler) ResetPassword(c *gin.Context) {
	var req api.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" {
		writeError(c, "", badRequest("Password is required"))
		return
	}

	token := req.AccessToken
	if token == "" {
		token = middleware.AccessToken(c)
	}
	if token == "" {
		writeError(c, "", auth.ErrMissingToken)
		return
	}

	if h.Identity == nil {
		writeError(c, "", errAuthNotAvailable)
		return
	}

	user, err := h.Identity.UpdatePassword(c.Request.Context(), token, req.Password)
	if err != nil {
		writeError(c, "Password update failed", err)
		return
	}

	c.JSON(http.StatusOK, api.UserResponse{
		StatusResponse: api.StatusResponse{
			Status:      api.StatusSuccess,
			Message:     "Password updated",
			RedirectURL: "/",
		},
		User: user,
	})
}

// Logout always clears the session cookie; revoking the session at the
// provider is best effort.
func (h *handler) Logout(c *gin.Context) {
	token := middleware.AccessToken(c)
	if token != "" && h.Identity != nil {
		if err := h.Identity.SignOut(c.Request.Context(), token); err != nil {
			log.Warn().Err(err).Msg("Failed to revoke session at identity provider")
		}
	}

	clearSessionCookies(c)
	c.JSON(http.StatusOK, api.StatusResponse{
		Status:      api.StatusSuccess,
		Message:     "Logged out",
		RedirectURL: "/",
	})
}

func (h *handler) VerifyToken(c *gin.Context) {
	var req api.VerifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, "", badRequest("No data received"))
		return
	}

	token := req.Token
	if token == "" {
		token = middleware.AccessToken(c)
	}

	user, err := h.verify(token)
	if err != nil {
		writeError(c, "", err)
		return
	}

	c.JSON(http.StatusOK, api.UserResponse{
		StatusResponse: api.StatusResponse{Status: api.StatusSuccess},
		User:           user,
	})
}

func (h *handler) verify(token string) (*auth.User, error) {
	if h.Verifier == nil {
		return nil, errAuthNotAvailable
	}
	return h.Verifier.Verify(token)
}

// setSessionCookies stores the session for browser requests. The refresh
// cookie is left alone when refreshToken is empty.
func setSessionCookies(c *gin.Context, accessToken, refreshToken string) {
	setCookie(c, middleware.AccessTokenCookie, accessToken, sessionMaxAge)
	if refreshToken != "" {
		setCookie(c, middleware.RefreshTokenCookie, refreshToken, refreshMaxAge)
	}
}

func clearSessionCookies(c *gin.Context) {
	setCookie(c, middleware.AccessTokenCookie, "", -1)
	setCookie(c, middleware.RefreshTokenCookie, "", -1)
}

func setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", c.Request.TLS != nil, true)
}
