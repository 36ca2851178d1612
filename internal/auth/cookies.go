package auth

import (
	"net/http"
	"strings"
	"time"
)

// Имена cookie сессии.
const (
	AccessTokenCookie  = "auth_token"
	RefreshTokenCookie = "refresh_token"
	StateCookie        = "oauth_state"
)

// Сроки жизни cookie по умолчанию (секунды).
const (
	StateMaxAge               = 600
	DefaultAccessTokenMaxAge  = 3600
	DefaultRefreshTokenMaxAge = 86400
)

// CookieJar записывает cookie сессии с единой политикой:
// Path=/, HttpOnly, SameSite=Lax, Secure по конфигурации.
type CookieJar struct {
	secure bool
}

// NewCookieJar создаёт CookieJar. secure=false допустим только для локальной разработки.
func NewCookieJar(secure bool) *CookieJar {
	return &CookieJar{secure: secure}
}

// SetState сохраняет CSRF state на время login flow.
func (j *CookieJar) SetState(w http.ResponseWriter, state string) {
	j.set(w, StateCookie, state, StateMaxAge)
}

// ClearState удаляет state: он одноразовый.
func (j *CookieJar) ClearState(w http.ResponseWriter) {
	j.set(w, StateCookie, "", -1)
}

// SetTokens сохраняет access и refresh token.
// Срок жизни cookie совпадает со сроком жизни токена.
func (j *CookieJar) SetTokens(w http.ResponseWriter, t *Tokens) {
	accessAge := t.ExpiresIn
	if accessAge <= 0 {
		accessAge = DefaultAccessTokenMaxAge
	}
	j.set(w, AccessTokenCookie, t.AccessToken, accessAge)

	if t.RefreshToken != "" {
		refreshAge := t.RefreshExpiresIn
		if refreshAge <= 0 {
			refreshAge = DefaultRefreshTokenMaxAge
		}
		j.set(w, RefreshTokenCookie, t.RefreshToken, refreshAge)
	}
}

// ClearTokens удаляет оба токена сессии.
func (j *CookieJar) ClearTokens(w http.ResponseWriter) {
	j.set(w, AccessTokenCookie, "", -1)
	j.set(w, RefreshTokenCookie, "", -1)
}

// maxAge < 0 удаляет cookie.
func (j *CookieJar) set(w http.ResponseWriter, name, value string, maxAge int) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		c.Expires = time.Unix(0, 0)
	}
	http.SetCookie(w, c)
}

// TokenFromRequest извлекает access token: заголовок Authorization: Bearer
// имеет приоритет над cookie auth_token. Пустая строка — токена нет.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
			return parts[1]
		}
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}
