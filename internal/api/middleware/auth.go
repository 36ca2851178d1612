// auth.go — аутентификация запросов по access token'у Keycloak и проверка ролей.
// Токен берётся из заголовка Authorization (Bearer), иначе из cookie auth_token.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/MTL667/denbeyers/internal/api/errors"
	"github.com/MTL667/denbeyers/internal/auth"
	"github.com/MTL667/denbeyers/internal/domain/model"
	"github.com/MTL667/denbeyers/internal/domain/rbac"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyUser — пользователь текущего запроса.
const ContextKeyUser contextKey = "session_user"

// ErrNoCredential — запрос не содержит токена.
var ErrNoCredential = errors.New("отсутствует токен")

// TokenVerifier проверяет access token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// SessionResolver сопоставляет claims с локальным пользователем.
type SessionResolver interface {
	Resolve(ctx context.Context, claims *auth.Claims) (*model.User, error)
}

// SessionAuth — аутентификация запросов.
type SessionAuth struct {
	verifier TokenVerifier
	sessions SessionResolver
	logger   *slog.Logger
}

// NewSessionAuth создаёт middleware аутентификации.
func NewSessionAuth(verifier TokenVerifier, sessions SessionResolver, logger *slog.Logger) *SessionAuth {
	return &SessionAuth{
		verifier: verifier,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "session_auth")),
	}
}

// Authenticate возвращает пользователя запроса.
// Ошибки: ErrNoCredential, auth.ErrInvalidToken или ошибка сохранения пользователя.
func (a *SessionAuth) Authenticate(r *http.Request) (*model.User, error) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		return nil, ErrNoCredential
	}

	claims, err := a.verifier.Verify(r.Context(), token)
	if err != nil {
		return nil, err
	}

	return a.sessions.Resolve(r.Context(), claims)
}

// RequireAuth пропускает только аутентифицированные запросы и кладёт
// пользователя в контекст.
func (a *SessionAuth) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := a.Authenticate(r)
			switch {
			case errors.Is(err, ErrNoCredential):
				apierrors.Unauthorized(w, "Authentication required")
				return
			case errors.Is(err, auth.ErrInvalidToken):
				apierrors.Unauthorized(w, auth.ErrInvalidToken.Error())
				return
			case err != nil:
				a.logger.Error("Ошибка сопоставления пользователя",
					slog.String("error", err.Error()),
				)
				apierrors.InternalError(w, "Internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireRole возвращает middleware, требующий одну из указанных ролей.
// Должен использоваться ПОСЛЕ RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				apierrors.Unauthorized(w, "Authentication required")
				return
			}
			if err := rbac.Authorize(user.Role, roles...); err != nil {
				apierrors.Forbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUser возвращает контекст с пользователем.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, ContextKeyUser, user)
}

// UserFromContext извлекает пользователя из контекста запроса.
// Возвращает nil, если запрос не прошёл RequireAuth.
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(ContextKeyUser).(*model.User)
	return user
}
