package authcore

import (
	"net/http"
	"time"
)

// Cookie names used by SessionCookies.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
	CookieCSRFToken    = "csrf_token"
)

// SessionCookies renders a login result as the three session cookies.
// The token cookies are HttpOnly; the CSRF cookie is readable by
// scripts so clients can echo it in a header (double submit).
func (e *Engine) SessionCookies(result *LoginResult) []*http.Cookie {
	cfg := e.config.Cookie

	return []*http.Cookie{
		{
			Name:     CookieAccessToken,
			Value:    result.AccessToken,
			Path:     cfg.AccessPath,
			Domain:   cfg.Domain,
			MaxAge:   int(e.config.JWT.AccessTTL / time.Second),
			HttpOnly: true,
			Secure:   cfg.Secure,
			SameSite: cfg.SameSite,
		},
		{
			Name:     CookieRefreshToken,
			Value:    result.RefreshToken,
			Path:     cfg.RefreshPath,
			Domain:   cfg.Domain,
			MaxAge:   int(e.config.JWT.RefreshTTL / time.Second),
			HttpOnly: true,
			Secure:   cfg.Secure,
			SameSite: cfg.SameSite,
		},
		{
			Name:     CookieCSRFToken,
			Value:    result.CSRFToken,
			Path:     "/",
			Domain:   cfg.Domain,
			MaxAge:   int(cfg.CSRFTTL / time.Second),
			HttpOnly: false,
			Secure:   cfg.Secure,
			SameSite: cfg.SameSite,
		},
	}
}

// ClearSessionCookies returns expired copies of the session cookies,
// for logout responses.
func (e *Engine) ClearSessionCookies() []*http.Cookie {
	cfg := e.config.Cookie

	expire := func(name, path string, httpOnly bool) *http.Cookie {
		return &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     path,
			Domain:   cfg.Domain,
			MaxAge:   -1,
			HttpOnly: httpOnly,
			Secure:   cfg.Secure,
			SameSite: cfg.SameSite,
		}
	}

	return []*http.Cookie{
		expire(CookieAccessToken, cfg.AccessPath, true),
		expire(CookieRefreshToken, cfg.RefreshPath, true),
		expire(CookieCSRFToken, "/", false),
	}
}
