package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-service/internal/middleware"
	"github.com/iliyamo/identity-service/internal/service"
)

// Cookie names carrying the two session artifacts.
const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Sessions     *service.SessionService
	Verification *service.VerificationService
}

func NewAuthHandler(s *service.SessionService, v *service.VerificationService) *AuthHandler {
	return &AuthHandler{Sessions: s, Verification: v}
}

// ----- DTOs -----

type signUpReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type signInReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type resendOTPReq struct {
	Email string `json:"email"`
}
type verifyReq struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type sessionResp struct {
	User    service.Identity `json:"user"`
	Access  tokenPart        `json:"access"`
	Refresh tokenPart        `json:"refresh"`
}

// ----- Session cookies -----

func setSessionCookies(c echo.Context, s service.Session) {
	now := time.Now().UTC()
	c.SetCookie(&http.Cookie{
		Name:     accessCookie,
		Value:    s.AccessToken,
		Path:     "/",
		Expires:  s.AccessExpires,
		MaxAge:   int(s.AccessExpires.Sub(now) / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	c.SetCookie(&http.Cookie{
		Name:     refreshCookie,
		Value:    s.RefreshToken,
		Path:     "/",
		Expires:  s.RefreshExpires,
		MaxAge:   int(s.RefreshExpires.Sub(now) / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookies(c echo.Context) {
	for _, name := range []string{accessCookie, refreshCookie} {
		c.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func requestMeta(c echo.Context) service.RequestMeta {
	return service.RequestMeta{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// SignUp: create an unverified user and dispatch a verification OTP.
// No tokens are issued until the account is verified.
func (h *AuthHandler) SignUp(c echo.Context) error {
	var req signUpReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	id, err := h.Sessions.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": id})
}

// SignIn: verify credentials and return a new session pair, also set
// as cookies.
func (h *AuthHandler) SignIn(c echo.Context) error {
	var req signInReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	s, err := h.Sessions.SignIn(ctx, req.Email, req.Password, requestMeta(c))
	if err != nil {
		return writeErr(c, err)
	}
	setSessionCookies(c, s)
	return c.JSON(http.StatusOK, sessionResp{
		User:    s.User,
		Access:  tokenPart{Token: s.AccessToken, Expires: s.AccessExpires},
		Refresh: tokenPart{Token: s.RefreshToken, Expires: s.RefreshExpires}, // raw back to client
	})
}

// Refresh: rotate the refresh token and mint a new access token. Any
// redemption failure clears the session cookies so a client cannot
// keep replaying dead artifacts.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := refreshTokenFrom(c)
	if raw == "" {
		clearSessionCookies(c)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	s, err := h.Sessions.Refresh(ctx, raw, requestMeta(c))
	if err != nil {
		switch service.KindOf(err) {
		case service.KindInvalidToken, service.KindInactive:
			clearSessionCookies(c)
		}
		return writeErr(c, err)
	}
	setSessionCookies(c, s)
	return c.JSON(http.StatusOK, sessionResp{
		User:    s.User,
		Access:  tokenPart{Token: s.AccessToken, Expires: s.AccessExpires},
		Refresh: tokenPart{Token: s.RefreshToken, Expires: s.RefreshExpires},
	})
}

// SignOut: bump the caller's token version, revoke all refresh tokens
// and clear cookies. Protected route; the JWT middleware has already
// established identity.
func (h *AuthHandler) SignOut(c echo.Context) error {
	uid, ok := c.Get(middleware.CtxUserID).(uint64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Sessions.SignOut(ctx, uid); err != nil {
		return writeErr(c, err)
	}
	clearSessionCookies(c)
	return c.NoContent(http.StatusNoContent)
}

// Me: simple protected endpoint returning the authenticated identity
// and its permission snapshot.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":     c.Get(middleware.CtxUserID),
		"permissions": c.Get(middleware.CtxPermissions),
	})
}

// ResendOTP: re-issue the verification code unless the cooldown is
// still running.
func (h *AuthHandler) ResendOTP(c echo.Context) error {
	var req resendOTPReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Verification.Resend(ctx, strings.TrimSpace(req.Email)); err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "verification code sent"})
}

// VerifyUser: confirm the OTP and activate the account.
func (h *AuthHandler) VerifyUser(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Verification.Verify(ctx, strings.TrimSpace(req.Email), strings.TrimSpace(req.Code)); err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "account verified"})
}

// refreshTokenFrom extracts the raw refresh token from the cookie or,
// as a fallback for non-browser clients, the JSON body.
func refreshTokenFrom(c echo.Context) string {
	if ck, err := c.Cookie(refreshCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	var req refreshReq
	_ = c.Bind(&req)
	return strings.TrimSpace(req.RefreshToken)
}
