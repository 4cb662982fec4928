package api

import (
	"net/http"
	"time"

	"cloudprime/internal/server/service"

	"github.com/labstack/echo/v4"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type profileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type sessionResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      service.UserView `json:"user"`
}

// HandleRegister handles POST /api/auth/register.
func (h *Handler) HandleRegister(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	user, err := h.identity.Register(c.Request().Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondError(c, err)
	}

	return respondMessage(c, http.StatusCreated,
		"Registration successful. Please check your email for OTP verification.",
		echo.Map{"userId": user.ID, "email": user.Email},
	)
}

// HandleVerifyOTP handles POST /api/auth/verify-otp.
func (h *Handler) HandleVerifyOTP(c echo.Context) error {
	var req otpRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	session, err := h.identity.VerifyOTP(c.Request().Context(), req.Email, req.OTP)
	if err != nil {
		return respondError(c, err)
	}
	return h.sendSession(c, "Email verified successfully", session)
}

// HandleResendOTP handles POST /api/auth/resend-otp.
func (h *Handler) HandleResendOTP(c echo.Context) error {
	var req otpRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	if err := h.identity.ResendOTP(c.Request().Context(), req.Email); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, http.StatusOK, "OTP sent successfully", nil)
}

// HandleLogin handles POST /api/auth/login.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	session, err := h.identity.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return h.sendSession(c, "Login successful", session)
}

// HandleForgotPassword handles POST /api/auth/forgot-password.
func (h *Handler) HandleForgotPassword(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	if err := h.identity.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, http.StatusOK, "Password reset email sent", nil)
}

// HandleResetPassword handles PUT /api/auth/reset-password.
func (h *Handler) HandleResetPassword(c echo.Context) error {
	var req resetRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	if err := h.identity.ResetPassword(c.Request().Context(), req.Token, req.Password); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, http.StatusOK, "Password reset successful", nil)
}

// HandleMe handles GET /api/auth/me.
func (h *Handler) HandleMe(c echo.Context) error {
	profile, err := h.identity.Me(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		return respondError(c, err)
	}

	keys := make([]service.KeyView, 0, len(profile.Keys))
	for _, k := range profile.Keys {
		keys = append(keys, service.NewKeyView(k))
	}
	return respond(c, http.StatusOK, echo.Map{
		"user":    service.NewUserView(profile.User),
		"apiKeys": keys,
	})
}

// HandleUpdateProfile handles PUT /api/auth/update-profile.
func (h *Handler) HandleUpdateProfile(c echo.Context) error {
	var req profileRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	user, emailChanged, err := h.identity.UpdateProfile(c.Request().Context(), currentUser(c).ID, service.ProfileUpdate{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		return respondError(c, err)
	}

	msg := "Profile updated successfully"
	if emailChanged {
		msg = "Profile updated. Please verify your new email address."
	}
	return respondMessage(c, http.StatusOK, msg, service.NewUserView(user))
}

// HandleLogout handles GET /api/auth/logout by overwriting the session cookie.
func (h *Handler) HandleLogout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     tokenCookie,
		Value:    "none",
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return respondMessage(c, http.StatusOK, "Logged out successfully", nil)
}

func (h *Handler) sendSession(c echo.Context, msg string, s *service.Session) error {
	c.SetCookie(&http.Cookie{
		Name:     tokenCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  time.Now().Add(h.cookie.Lifetime),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return respondMessage(c, http.StatusOK, msg, sessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		User:      service.NewUserView(s.User),
	})
}
