package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/iliyamo/identity-service/internal/cache"
	"github.com/iliyamo/identity-service/internal/config"
	"github.com/iliyamo/identity-service/internal/service"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// OAuthHandler implements the Google login-or-provision flow. The
// identity provider proves control of the email address; the session
// service then signs the user in, creating the account on first
// contact.
type OAuthHandler struct {
	Sessions *service.SessionService
	Cache    cache.Cache
	Redirect string // post-login destination
	conf     *oauth2.Config
}

func NewOAuthHandler(cfg config.Config, sessions *service.SessionService, c cache.Cache) *OAuthHandler {
	return &OAuthHandler{
		Sessions: sessions,
		Cache:    c,
		Redirect: cfg.PostLoginRedirect,
		conf: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleCallbackURL,
			Scopes:       []string{"email"},
			Endpoint:     google.Endpoint,
		},
	}
}

func stateKey(state string) string { return "oauth:state:" + state }

// GoogleLogin starts the authorization code flow. The state nonce is
// parked in the cache so the callback can prove the round-trip began
// here.
func (h *OAuthHandler) GoogleLogin(c echo.Context) error {
	state := uuid.NewString()
	if err := h.Cache.Set(c.Request().Context(), stateKey(state), "1", 10*time.Minute); err != nil {
		return writeErr(c, service.Wrap(service.KindUnexpected, "store oauth state", err))
	}
	return c.Redirect(http.StatusTemporaryRedirect, h.conf.AuthCodeURL(state))
}

// GoogleCallback finishes the flow: validate the state nonce, exchange
// the code, read the verified email from the userinfo endpoint and
// establish a session.
func (h *OAuthHandler) GoogleCallback(c echo.Context) error {
	state := c.QueryParam("state")
	code := c.QueryParam("code")
	if state == "" || code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing state or code"})
	}
	ctx := c.Request().Context()
	if _, err := h.Cache.Get(ctx, stateKey(state)); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid oauth state"})
	}
	_ = h.Cache.Del(ctx, stateKey(state)) // single use

	tok, err := h.conf.Exchange(ctx, code)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "code exchange failed"})
	}

	email, verified, err := h.fetchEmail(ctx, tok)
	if err != nil {
		return writeErr(c, service.Wrap(service.KindUnexpected, "fetch user info", err))
	}
	if email == "" || !verified {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "a verified email is required"})
	}

	s, err := h.Sessions.OAuthLogin(ctx, email, requestMeta(c))
	if err != nil {
		return writeErr(c, err)
	}
	setSessionCookies(c, s)
	return c.Redirect(http.StatusFound, h.Redirect)
}

// fetchEmail calls the userinfo endpoint with the freshly exchanged
// token and returns the address plus Google's verification flag.
func (h *OAuthHandler) fetchEmail(ctx context.Context, tok *oauth2.Token) (string, bool, error) {
	client := h.conf.Client(ctx, tok)
	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", false, err
	}
	var info struct {
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", false, err
	}
	return info.Email, info.VerifiedEmail, nil
}
