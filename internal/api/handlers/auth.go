// auth.go — OAuth2 Authorization Code flow с Keycloak:
// login, callback, session, logout, refresh.
package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	apierrors "github.com/MTL667/denbeyers/internal/api/errors"
	"github.com/MTL667/denbeyers/internal/auth"
	"github.com/MTL667/denbeyers/internal/domain/model"
)

// Коды ошибок, передаваемые фронтенду в ?error= после callback.
const (
	callbackErrAuthFailed    = "auth_failed"
	callbackErrInvalidState  = "invalid_state"
	callbackErrNoCode        = "no_code"
	callbackErrTokenExchange = "token_exchange_failed"
	callbackErrFailed        = "callback_failed"
)

// OIDCProvider — операции с endpoint'ами Keycloak.
type OIDCProvider interface {
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error)
	LogoutURL() string
}

// Authenticator определяет пользователя запроса.
type Authenticator interface {
	Authenticate(r *http.Request) (*model.User, error)
}

// AuthRedirects — адреса возврата после callback.
type AuthRedirects struct {
	// Success — куда вести после успешного входа (/gallery)
	Success string
	// Error — страница, получающая ?error=<code>
	Error string
}

// AuthHandler — обработчики /auth/*.
type AuthHandler struct {
	oidc      OIDCProvider
	authn     Authenticator
	cookies   *auth.CookieJar
	redirects AuthRedirects
	// newState генерирует CSRF state; подменяется в тестах
	newState func() (string, error)
	logger   *slog.Logger
}

// NewAuthHandler создаёт обработчики аутентификации.
func NewAuthHandler(
	oidc OIDCProvider,
	authn Authenticator,
	cookies *auth.CookieJar,
	redirects AuthRedirects,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		oidc:      oidc,
		authn:     authn,
		cookies:   cookies,
		redirects: redirects,
		newState:  auth.GenerateState,
		logger:    logger.With(slog.String("component", "auth_handler")),
	}
}

// sessionUser — пользователь в ответе /auth/session.
type sessionUser struct {
	ID    string  `json:"id"`
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Role  string  `json:"role"`
}

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *sessionUser `json:"user"`
}

type logoutResponse struct {
	Success   bool   `json:"success"`
	LogoutURL string `json:"logoutUrl"`
}

type refreshResponse struct {
	Success   bool `json:"success"`
	ExpiresIn int  `json:"expiresIn"`
}

// Login — GET /auth/login.
// Сохраняет новый state в cookie и перенаправляет на Keycloak.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := h.newState()
	if err != nil {
		h.logger.Error("Ошибка генерации state", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Internal server error")
		return
	}

	h.cookies.SetState(w, state)
	http.Redirect(w, r, h.oidc.AuthorizeURL(state), http.StatusFound)
}

// Callback — GET /auth/callback.
// State cookie удаляется при любом исходе.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.cookies.ClearState(w)

	// 1. Ошибка от Keycloak
	if errCode := q.Get("error"); errCode != "" {
		h.logger.Warn("Keycloak вернул ошибку авторизации",
			slog.String("error", errCode),
			slog.String("description", q.Get("error_description")),
		)
		h.redirectError(w, r, callbackErrAuthFailed)
		return
	}

	// 2. CSRF state
	state := q.Get("state")
	stored, err := r.Cookie(auth.StateCookie)
	if err != nil || stored.Value == "" || state == "" ||
		subtle.ConstantTimeCompare([]byte(stored.Value), []byte(state)) != 1 {
		h.logger.Warn("State не совпадает или отсутствует",
			slog.Bool("cookie_present", err == nil),
			slog.Bool("query_present", state != ""),
		)
		h.redirectError(w, r, callbackErrInvalidState)
		return
	}

	// 3. Код авторизации
	code := q.Get("code")
	if code == "" {
		h.redirectError(w, r, callbackErrNoCode)
		return
	}

	// 4. Обмен кода на токены
	tokens, err := h.oidc.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("Ошибка обмена кода на токены", slog.String("error", err.Error()))
		if errors.Is(err, auth.ErrTokenRejected) {
			h.redirectError(w, r, callbackErrTokenExchange)
		} else {
			h.redirectError(w, r, callbackErrFailed)
		}
		return
	}

	h.cookies.SetTokens(w, tokens)
	h.logger.Debug("Вход выполнен", slog.Int("expires_in", tokens.ExpiresIn))
	http.Redirect(w, r, h.redirects.Success, http.StatusFound)
}

// Session — GET /auth/session. Всегда 200.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	user, err := h.authn.Authenticate(r)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			h.logger.Debug("Сессия не определена", slog.String("error", err.Error()))
		}
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		User: &sessionUser{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
			Role:  user.Role,
		},
	})
}

// Logout — POST /auth/logout.
// Удаляет cookie сессии и возвращает URL завершения сессии в Keycloak.
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.cookies.ClearTokens(w)
	writeJSON(w, http.StatusOK, logoutResponse{Success: true, LogoutURL: h.oidc.LogoutURL()})
}

// Refresh — POST /auth/refresh.
// Отклонённый refresh token завершает сессию: обе cookie удаляются.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(auth.RefreshTokenCookie)
	if err != nil || c.Value == "" {
		apierrors.Unauthorized(w, "No refresh token available")
		return
	}

	tokens, err := h.oidc.Refresh(r.Context(), c.Value)
	switch {
	case errors.Is(err, auth.ErrTokenRejected):
		h.cookies.ClearTokens(w)
		apierrors.SessionExpired(w, "Session expired. Please login again.")
		return
	case err != nil:
		h.logger.Error("Ошибка обновления токена", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Token refresh failed")
		return
	}

	h.cookies.SetTokens(w, tokens)
	writeJSON(w, http.StatusOK, refreshResponse{Success: true, ExpiresIn: tokens.ExpiresIn})
}

// redirectError перенаправляет на страницу ошибки с ?error=<code>.
func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	target := h.redirects.Error
	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set("error", code)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}
