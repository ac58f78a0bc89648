package httputil

import (
	"net/http"
	"time"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

// CookieConfig holds cookie configuration.
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool // Set to true in production (HTTPS)
	SameSite http.SameSite
}

// DefaultCookieConfig returns default cookie configuration.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCookieConfig returns the default configuration with the Secure flag set
// as given.
func NewCookieConfig(secure bool) CookieConfig {
	cfg := DefaultCookieConfig()
	cfg.Secure = secure
	return cfg
}

func (c CookieConfig) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// SetAuthCookies sets HttpOnly cookies for access and refresh tokens.
func SetAuthCookies(w http.ResponseWriter, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration, cfg CookieConfig) {
	cfg.set(w, accessTokenCookie, accessToken, int(accessTTL.Seconds()))
	cfg.set(w, refreshTokenCookie, refreshToken, int(refreshTTL.Seconds()))
}

// ClearAuthCookies clears auth cookies.
func ClearAuthCookies(w http.ResponseWriter, cfg CookieConfig) {
	cfg.set(w, accessTokenCookie, "", -1)
	cfg.set(w, refreshTokenCookie, "", -1)
}

// SetTransientCookie sets a short-lived HttpOnly cookie, such as OAuth state.
func SetTransientCookie(w http.ResponseWriter, name, value string, ttl time.Duration, cfg CookieConfig) {
	cfg.set(w, name, value, int(ttl.Seconds()))
}

// ClearCookie expires a cookie.
func ClearCookie(w http.ResponseWriter, name string, cfg CookieConfig) {
	cfg.set(w, name, "", -1)
}

// CookieValue returns the value of a non-empty cookie.
func CookieValue(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// GetRefreshTokenFromCookie extracts refresh token from cookie.
func GetRefreshTokenFromCookie(r *http.Request) (string, bool) {
	return CookieValue(r, refreshTokenCookie)
}

// GetAccessTokenFromCookie extracts access token from cookie.
func GetAccessTokenFromCookie(r *http.Request) (string, bool) {
	return CookieValue(r, accessTokenCookie)
}

// IsMobileClient checks if request is from a mobile client.
// Mobile clients should set header: X-Client-Type: mobile
func IsMobileClient(r *http.Request) bool {
	return r.Header.Get("X-Client-Type") == "mobile"
}
