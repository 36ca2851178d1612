// Точка входа denbeyers — backend гостевой книги.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт клиентов Keycloak и S3, сервисный слой и HTTP handlers,
// запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/MTL667/denbeyers/internal/api/handlers"
	"github.com/MTL667/denbeyers/internal/api/middleware"
	"github.com/MTL667/denbeyers/internal/auth"
	"github.com/MTL667/denbeyers/internal/config"
	"github.com/MTL667/denbeyers/internal/database"
	"github.com/MTL667/denbeyers/internal/repository"
	"github.com/MTL667/denbeyers/internal/server"
	"github.com/MTL667/denbeyers/internal/service"
	"github.com/MTL667/denbeyers/internal/storage"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("denbeyers запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)
	if !cfg.CookieSecure {
		logger.Warn("GB_COOKIE_SECURE=false: cookie сессии передаются без флага Secure")
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics.
	// Проверка идёт через тот же пул и обнаруживает его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	txRunner := repository.NewTxRunner(pool)
	userRepo := repository.NewUserRepository(pool)
	mediaRepo := repository.NewMediaRepository(pool, txRunner)

	// 6. Keycloak: проверка токенов и OIDC-клиент
	verifier := auth.NewVerifier(auth.VerifierConfig{
		JWKSURL:         cfg.KeycloakJWKSURL,
		Issuer:          cfg.KeycloakIssuer,
		ClientID:        cfg.KeycloakClientID,
		HTTPTimeout:     cfg.OIDCClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		Leeway:          cfg.JWTLeeway,
	}, logger)
	defer verifier.Close()

	oidcClient := auth.NewOIDCClient(auth.OIDCConfig{
		Issuer:                cfg.KeycloakIssuer,
		ClientID:              cfg.KeycloakClientID,
		ClientSecret:          cfg.KeycloakClientSecret,
		RedirectURL:           cfg.KeycloakRedirectURL,
		PostLogoutRedirectURL: cfg.PostLogoutRedirectURL,
		Timeout:               cfg.OIDCClientTimeout,
	})
	logger.Info("Keycloak клиент создан",
		slog.String("issuer", cfg.KeycloakIssuer),
		slog.String("jwks_url", cfg.KeycloakJWKSURL),
	)

	// 7. S3-хранилище
	store, err := storage.NewS3Store(ctx, storage.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Timeout:   cfg.S3Timeout,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания S3-клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Services
	sessionSvc := service.NewSessionService(userRepo, cfg.SessionCacheSize, cfg.SessionCacheTTL, logger)
	uploadSvc := service.NewUploadService(store, cfg.MaxUploadBytes(), cfg.PresignExpiry, logger)
	mediaSvc := service.NewMediaService(mediaRepo, store, uploadSvc, cfg.MaxStickyItems, logger)

	// 8.1 Начальный владелец (опционально)
	if cfg.OwnerSeedSub != "" {
		if err := sessionSvc.SeedOwner(ctx, cfg.OwnerSeedSub); err != nil {
			logger.Error("Ошибка создания владельца", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 9. topologymetrics — мониторинг зависимостей (PostgreSQL + Keycloak + S3)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:       "denbeyers",
		Group:           cfg.DephealthGroup,
		DB:              pgDB,
		PostgresURL:     cfg.DatabaseURL(),
		KeycloakJWKSURL: cfg.KeycloakJWKSURL,
		S3Endpoint:      cfg.S3Endpoint,
		S3HealthPath:    cfg.S3HealthPath,
		CheckInterval:   cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. Handlers и middleware
	sessionAuth := middleware.NewSessionAuth(verifier, sessionSvc, logger)

	authHandler := handlers.NewAuthHandler(
		oidcClient,
		sessionAuth,
		auth.NewCookieJar(cfg.CookieSecure),
		handlers.AuthRedirects{
			Success: cfg.AuthSuccessRedirect,
			Error:   cfg.AuthErrorRedirect,
		},
		logger,
	)
	mediaHandler := handlers.NewMediaHandler(mediaSvc, uploadSvc, logger)
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		auth.NewJWKSReadinessChecker(cfg.KeycloakJWKSURL, cfg.OIDCClientTimeout).WithKeyState(verifier),
		store,
	)

	// 11. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.Handlers{
		Auth:   authHandler,
		Media:  mediaHandler,
		Health: healthHandler,
	}, sessionAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("denbeyers остановлен")
}
