package api

import (
	"github.com/dfryer1193/cropfeed/feed/domain"
	"github.com/dfryer1193/cropfeed/shared/auth"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// StatusResponse is the envelope every JSON endpoint answers with.
type StatusResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

func Success(message string) StatusResponse {
	return StatusResponse{Status: StatusSuccess, Message: message}
}

func Error(message string) StatusResponse {
	return StatusResponse{Status: StatusError, Message: message}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Token is an access token the client already obtained from the
	// identity provider. When set, email and password are not used.
	Token string `json:"token"`
}

type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	State     string `json:"state"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password    string `json:"password"`
	AccessToken string `json:"access_token"`
}

type VerifyTokenRequest struct {
	Token string `json:"token"`
}

// UserTypeRequest picks buyer or seller for the signed-in user. The refresh
// token lets clients without the session cookie get a reissued session.
type UserTypeRequest struct {
	Role         string `json:"role"`
	RefreshToken string `json:"refresh_token"`
}

type AuthStatusResponse struct {
	StatusResponse
	Authenticated bool       `json:"authenticated"`
	User          *auth.User `json:"user,omitempty"`
	Role          string     `json:"role,omitempty"`
}

type UserResponse struct {
	StatusResponse
	User *auth.User `json:"user,omitempty"`
}

type SessionResponse struct {
	StatusResponse
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	User         *auth.User `json:"user,omitempty"`
}

type UploadResponse struct {
	StatusResponse
	Post *domain.Post `json:"post"`
}

type ContactResponse struct {
	StatusResponse
	Contact domain.SellerContact `json:"contact"`
}
