// Пакет auth — проверка access token'ов Keycloak по JWKS, OIDC-клиент
// (authorization code, refresh, logout) и cookie сессии.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken — единая ошибка проверки токена. Причина (подпись, срок,
// issuer, azp, недоступный JWKS) пишется только в debug-лог.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims — проверенные claims access token'а Keycloak.
type Claims struct {
	Subject           string
	Name              string
	PreferredUsername string
	Email             string
	// AuthorizedParty — azp, client_id, для которого выдан токен
	AuthorizedParty string
	// RealmRoles — realm_access.roles
	RealmRoles []string
	// ClientRoles — resource_access[clientID].roles
	ClientRoles []string
	ExpiresAt   time.Time
}

// keycloakClaims — raw claims Keycloak JWT для парсинга.
type keycloakClaims struct {
	jwt.RegisteredClaims
	Name              string             `json:"name,omitempty"`
	PreferredUsername string             `json:"preferred_username,omitempty"`
	Email             string             `json:"email,omitempty"`
	Azp               string             `json:"azp,omitempty"`
	RealmAccess       *roleSet           `json:"realm_access,omitempty"`
	ResourceAccess    map[string]roleSet `json:"resource_access,omitempty"`
}

type roleSet struct {
	Roles []string `json:"roles"`
}

// VerifierConfig — параметры проверки токенов.
type VerifierConfig struct {
	// JWKSURL — {issuer}/protocol/openid-connect/certs
	JWKSURL string
	// Issuer — ожидаемый iss
	Issuer string
	// ClientID — ожидаемый azp (если claim присутствует) и ключ resource_access
	ClientID string
	// HTTPTimeout — таймаут загрузки JWKS
	HTTPTimeout time.Duration
	// RefreshInterval — интервал фонового обновления JWKS
	RefreshInterval time.Duration
	// Leeway — допустимое расхождение часов
	Leeway time.Duration
}

// keySet — загруженный JWKS вместе с функцией остановки фонового обновления.
type keySet struct {
	kf   keyfunc.Keyfunc
	stop context.CancelFunc
}

// Verifier проверяет подпись и claims access token'ов.
// JWKS загружается лениво при первой проверке и разделяется всеми запросами;
// неудачная загрузка не кэшируется и повторяется следующим запросом.
type Verifier struct {
	cfg    VerifierConfig
	logger *slog.Logger

	keys atomic.Pointer[keySet]
	mu   sync.Mutex
	// load загружает JWKS; подменяется в тестах
	load func(ctx context.Context) (*keySet, error)
}

// NewVerifier создаёт Verifier. Сетевых запросов не выполняет.
func NewVerifier(cfg VerifierConfig, logger *slog.Logger) *Verifier {
	v := &Verifier{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "token_verifier")),
	}
	v.load = v.loadFromHTTP
	return v
}

// NewVerifierWithKeyfunc создаёт Verifier с готовой keyfunc.
// Используется в тестах для подстановки JWKS.
func NewVerifierWithKeyfunc(kf keyfunc.Keyfunc, cfg VerifierConfig, logger *slog.Logger) *Verifier {
	v := NewVerifier(cfg, logger)
	v.keys.Store(&keySet{kf: kf, stop: func() {}})
	return v
}

// Verify проверяет токен и возвращает его claims.
// Любая неудача возвращает ErrInvalidToken.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	ks, err := v.keySet(ctx)
	if err != nil {
		v.logger.Warn("JWKS недоступен", slog.String("error", err.Error()))
		return nil, ErrInvalidToken
	}

	raw := &keycloakClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
	}
	if v.cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.cfg.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, raw, ks.kf.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		v.logger.Debug("JWT валидация не пройдена", slog.String("error", err.Error()))
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || raw.Subject == "" {
		v.logger.Debug("JWT без sub или невалиден")
		return nil, ErrInvalidToken
	}

	// azp проверяется только при наличии: Keycloak выставляет aud=account.
	if raw.Azp != "" && raw.Azp != v.cfg.ClientID {
		v.logger.Debug("azp не совпадает с client_id",
			slog.String("azp", raw.Azp),
			slog.String("client_id", v.cfg.ClientID),
		)
		return nil, ErrInvalidToken
	}

	claims := &Claims{
		Subject:           raw.Subject,
		Name:              raw.Name,
		PreferredUsername: raw.PreferredUsername,
		Email:             raw.Email,
		AuthorizedParty:   raw.Azp,
	}
	if raw.ExpiresAt != nil {
		claims.ExpiresAt = raw.ExpiresAt.Time
	}
	if raw.RealmAccess != nil {
		claims.RealmRoles = raw.RealmAccess.Roles
	}
	if rs, ok := raw.ResourceAccess[v.cfg.ClientID]; ok {
		claims.ClientRoles = rs.Roles
	}
	return claims, nil
}

// Ready сообщает, загружен ли JWKS.
func (v *Verifier) Ready() bool {
	return v.keys.Load() != nil
}

// Close останавливает фоновое обновление JWKS.
func (v *Verifier) Close() {
	if ks := v.keys.Load(); ks != nil {
		ks.stop()
	}
}

// keySet возвращает JWKS, загружая его при первом обращении.
func (v *Verifier) keySet(ctx context.Context) (*keySet, error) {
	if ks := v.keys.Load(); ks != nil {
		return ks, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if ks := v.keys.Load(); ks != nil {
		return ks, nil
	}
	ks, err := v.load(ctx)
	if err != nil {
		return nil, err
	}
	v.keys.Store(ks)
	v.logger.Info("JWKS загружен", slog.String("url", v.cfg.JWKSURL))
	return ks, nil
}

// loadFromHTTP загружает JWKS с фоновым обновлением.
// Первый запрос обязан пройти: ошибка возвращается вызывающему.
func (v *Verifier) loadFromHTTP(ctx context.Context) (*keySet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Контекст фонового обновления не зависит от запроса.
	refreshCtx, stop := context.WithCancel(context.Background())

	storage, err := jwkset.NewStorageFromHTTP(v.cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:          &http.Client{Timeout: v.cfg.HTTPTimeout},
		Ctx:             refreshCtx,
		RefreshInterval: v.cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			v.logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", v.cfg.JWKSURL),
			)
		},
	})
	if err != nil {
		stop()
		return nil, fmt.Errorf("загрузка JWKS: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{
		Ctx:     refreshCtx,
		Storage: storage,
	})
	if err != nil {
		stop()
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &keySet{kf: kf, stop: stop}, nil
}
