// dephealth.go — мониторинг зависимостей через topologymetrics SDK.
//
// Сервис мониторит три зависимости:
//   - PostgreSQL — SQL checker через существующий pgxpool (critical)
//   - Keycloak — HTTP checker к JWKS endpoint (critical)
//   - S3 — HTTP checker к health endpoint хранилища (critical)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для Keycloak и S3
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках
	Group string
	// DB — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool()
	DB *sql.DB
	// PostgresURL — URL PostgreSQL (только для лейблов)
	PostgresURL string
	// KeycloakJWKSURL — URL JWKS endpoint Keycloak
	KeycloakJWKSURL string
	// S3Endpoint — базовый URL S3-совместимого хранилища
	S3Endpoint string
	// S3HealthPath — путь health endpoint хранилища
	S3HealthPath  string
	CheckInterval time.Duration
	// Registerer — Prometheus registerer; nil — глобальный
	Registerer prometheus.Registerer
}

// DephealthService — сервис мониторинга зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	// Health endpoint Keycloak доступен только на management-порту,
	// поэтому проверяется путь самого JWKS URL.
	kcHealthPath := "/health"
	if parsed, err := url.Parse(cfg.KeycloakJWKSURL); err == nil && parsed.Path != "" {
		kcHealthPath = parsed.Path
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PostgresURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("keycloak-jwks",
			dephealth.FromURL(cfg.KeycloakJWKSURL),
			dephealth.WithHTTPHealthPath(kcHealthPath),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("s3",
			dephealth.FromURL(cfg.S3Endpoint),
			dephealth.WithHTTPHealthPath(cfg.S3HealthPath),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + Keycloak + S3)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
