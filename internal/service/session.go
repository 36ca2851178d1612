// session.go — сопоставление проверенного токена с локальным пользователем.
// Роль берётся из claims при каждом запросе; пользователь создаётся
// или обновляется одним upsert'ом.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MTL667/denbeyers/internal/auth"
	"github.com/MTL667/denbeyers/internal/domain/model"
	"github.com/MTL667/denbeyers/internal/domain/rbac"
	"github.com/MTL667/denbeyers/internal/repository"
)

// Prometheus-метрики кэша сессий.
var (
	sessionCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gb_session_cache_hits_total",
		Help: "Общее количество попаданий в кэш сессий.",
	})
	sessionCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gb_session_cache_misses_total",
		Help: "Общее количество промахов кэша сессий.",
	})
)

// Имя, которое получает запись владельца до его первого входа.
const ownerSeedName = "Nick"

// SessionService превращает claims в локального пользователя.
type SessionService struct {
	users repository.UserRepository
	// cache — nil, если кэш отключён (размер 0)
	cache    *expirable.LRU[string, *model.User]
	cacheTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewSessionService создаёт сервис сессий.
// cacheSize — максимальное число токенов в кэше (0 — без кэша).
// cacheTTL — время жизни записи кэша; токен, истекающий раньше, не кэшируется.
func NewSessionService(
	users repository.UserRepository,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *SessionService {
	s := &SessionService{
		users:    users,
		cacheTTL: cacheTTL,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "session_service")),
	}
	if cacheSize > 0 {
		s.cache = expirable.NewLRU[string, *model.User](cacheSize, nil, cacheTTL)
	}
	return s
}

// ProfileFromClaims собирает данные для upsert: имя — name, иначе
// preferred_username; роль — по ролям realm и клиента.
func ProfileFromClaims(c *auth.Claims) model.UserProfile {
	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}
	return model.UserProfile{
		Subject: c.Subject,
		Name:    name,
		Email:   c.Email,
		Role:    rbac.RoleFromClaims(c.RealmRoles, c.ClientRoles),
	}
}

// Resolve возвращает пользователя для проверенных claims.
// Повторные запросы с тем же токеном обслуживаются из кэша: ключ включает exp,
// поэтому обновлённый токен (и возможная смена роли) всегда доходит до БД.
func (s *SessionService) Resolve(ctx context.Context, c *auth.Claims) (*model.User, error) {
	key := cacheKey(c)
	if s.cache != nil {
		if u, ok := s.cache.Get(key); ok {
			sessionCacheHitsTotal.Inc()
			return u, nil
		}
		sessionCacheMissesTotal.Inc()
	}

	u, err := s.users.Upsert(ctx, ProfileFromClaims(c))
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения пользователя: %w", err)
	}

	if s.cache != nil && s.cacheable(c) {
		s.cache.Add(key, u)
	}
	return u, nil
}

// SeedOwner создаёт запись владельца для subject, если её ещё нет.
// Существующая запись не меняется.
func (s *SessionService) SeedOwner(ctx context.Context, subject string) error {
	created, err := s.users.EnsureExists(ctx, model.UserProfile{
		Subject: subject,
		Name:    ownerSeedName,
		Role:    rbac.RoleOwner,
	})
	if err != nil {
		return fmt.Errorf("ошибка создания владельца: %w", err)
	}
	if created {
		s.logger.Info("Создана запись владельца", slog.String("keycloak_sub", subject))
	} else {
		s.logger.Debug("Запись владельца уже существует", slog.String("keycloak_sub", subject))
	}
	return nil
}

// cacheable — запись не должна пережить токен.
func (s *SessionService) cacheable(c *auth.Claims) bool {
	return !c.ExpiresAt.IsZero() && !c.ExpiresAt.Before(s.now().Add(s.cacheTTL))
}

func cacheKey(c *auth.Claims) string {
	return c.Subject + "|" + strconv.FormatInt(c.ExpiresAt.Unix(), 10)
}
