package auth

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie   = "access_token"
	RefreshTokenCookie  = "refresh_token"
	OAuthStateCookie    = "oauth_state"
	OAuthVerifierCookie = "oauth_verifier"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

// SetTokenCookies sets both session cookies. Max-Age follows each token's TTL.
func SetTokenCookies(w http.ResponseWriter, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration, config CookieConfig) {
	setCookie(w, AccessTokenCookie, accessToken, int(accessTTL.Seconds()), config)
	setCookie(w, RefreshTokenCookie, refreshToken, int(refreshTTL.Seconds()), config)
}

// ClearTokenCookies expires both session cookies.
func ClearTokenCookies(w http.ResponseWriter, config CookieConfig) {
	clearCookie(w, AccessTokenCookie, config)
	clearCookie(w, RefreshTokenCookie, config)
}

// SetOAuthStateCookies stores the OAuth state parameter and the PKCE
// verifier for the callback.
func SetOAuthStateCookies(w http.ResponseWriter, state, verifier string, ttl time.Duration, config CookieConfig) {
	setCookie(w, OAuthStateCookie, state, int(ttl.Seconds()), config)
	setCookie(w, OAuthVerifierCookie, verifier, int(ttl.Seconds()), config)
}

func ClearOAuthStateCookies(w http.ResponseWriter, config CookieConfig) {
	clearCookie(w, OAuthStateCookie, config)
	clearCookie(w, OAuthVerifierCookie, config)
}

// GetCookieValue returns the named cookie's value, or "" when absent.
func GetCookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func setCookie(w http.ResponseWriter, name, value string, maxAge int, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(time.Duration(maxAge) * time.Second),
		MaxAge:   maxAge,
		HttpOnly: true, // Critical: prevents JavaScript access (XSS protection)
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

func clearCookie(w http.ResponseWriter, name string, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1, // Negative MaxAge deletes the cookie
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
