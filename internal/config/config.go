// Пакет config — загрузка и валидация конфигурации guestbook-сервиса
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Разрешённые CORS origins (пусто — CORS выключен)
	CORSAllowedOrigins []string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Keycloak / OIDC ---

	// Issuer realm'а (например, http://localhost:8080/realms/denbeyers)
	KeycloakIssuer string
	// URL JWKS endpoint (авто-вычисляется из issuer, если не задан)
	KeycloakJWKSURL string
	// Client ID confidential-клиента
	KeycloakClientID string
	// Client Secret confidential-клиента
	KeycloakClientSecret string
	// Redirect URI, зарегистрированный в Keycloak (…/auth/callback)
	KeycloakRedirectURL string
	// Адрес возврата после logout (авто-вычисляется из redirect URL)
	PostLogoutRedirectURL string
	// Таймаут исходящих запросов к Keycloak
	OIDCClientTimeout time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Допустимое расхождение часов при проверке exp
	JWTLeeway time.Duration

	// --- Сессия ---

	// Флаг Secure для cookie (выключается только для локальной разработки)
	CookieSecure bool
	// Путь редиректа после успешного логина
	AuthSuccessRedirect string
	// Путь редиректа при ошибке логина (к нему добавляется ?error=…)
	AuthErrorRedirect string
	// Размер LRU-кэша разрешённых сессий (0 — кэш выключен)
	SessionCacheSize int
	// TTL записи кэша сессий
	SessionCacheTTL time.Duration

	// --- S3 ---

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	// Таймаут операций с S3
	S3Timeout time.Duration
	// Время жизни presigned URL
	PresignExpiry time.Duration

	// --- Медиа ---

	// Максимальный размер загружаемого файла в мегабайтах
	MaxFileSizeMB int
	// Максимальное количество закреплённых записей
	MaxStickyItems int
	// Keycloak sub пользователя-владельца, создаваемого при старте (опционально)
	OwnerSeedSub string

	// --- Мониторинг ---

	// Имя группы сервиса в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Путь health endpoint S3-совместимого хранилища
	S3HealthPath string

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// GB_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("GB_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("GB_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("GB_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("GB_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("GB_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("GB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("GB_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.CORSAllowedOrigins = parseCSV(getEnvDefault("GB_CORS_ALLOWED_ORIGINS", ""))

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("GB_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("GB_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("GB_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("GB_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("GB_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("GB_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("GB_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("GB_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Keycloak ---

	issuer, err := getEnvRequired("GB_KEYCLOAK_ISSUER")
	if err != nil {
		return nil, err
	}
	cfg.KeycloakIssuer = strings.TrimRight(issuer, "/")

	// GB_KEYCLOAK_JWKS_URL — авто-вычисляется из issuer, если не задан
	cfg.KeycloakJWKSURL = getEnvDefault("GB_KEYCLOAK_JWKS_URL",
		cfg.KeycloakIssuer+"/protocol/openid-connect/certs")

	if cfg.KeycloakClientID, err = getEnvRequired("GB_KEYCLOAK_CLIENT_ID"); err != nil {
		return nil, err
	}
	if cfg.KeycloakClientSecret, err = getEnvRequired("GB_KEYCLOAK_CLIENT_SECRET"); err != nil {
		return nil, err
	}
	if cfg.KeycloakRedirectURL, err = getEnvRequired("GB_KEYCLOAK_REDIRECT_URL"); err != nil {
		return nil, err
	}
	if _, err := url.ParseRequestURI(cfg.KeycloakRedirectURL); err != nil {
		return nil, fmt.Errorf("GB_KEYCLOAK_REDIRECT_URL: некорректный URL %q", cfg.KeycloakRedirectURL)
	}

	// GB_POST_LOGOUT_REDIRECT_URL — по умолчанию корень приложения
	cfg.PostLogoutRedirectURL = getEnvDefault("GB_POST_LOGOUT_REDIRECT_URL",
		strings.TrimSuffix(cfg.KeycloakRedirectURL, "/auth/callback"))

	cfg.OIDCClientTimeout, err = getEnvDuration("GB_OIDC_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GB_OIDC_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("GB_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("GB_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("GB_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GB_JWT_LEEWAY: %w", err)
	}

	// --- Сессия ---

	cfg.CookieSecure, err = getEnvBool("GB_COOKIE_SECURE", true)
	if err != nil {
		return nil, fmt.Errorf("GB_COOKIE_SECURE: %w", err)
	}
	cfg.AuthSuccessRedirect = getEnvDefault("GB_AUTH_SUCCESS_REDIRECT", "/gallery")
	cfg.AuthErrorRedirect = getEnvDefault("GB_AUTH_ERROR_REDIRECT", "/")

	cfg.SessionCacheSize, err = getEnvInt("GB_SESSION_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("GB_SESSION_CACHE_SIZE: %w", err)
	}
	if cfg.SessionCacheSize < 0 {
		return nil, fmt.Errorf("GB_SESSION_CACHE_SIZE: значение %d не может быть отрицательным", cfg.SessionCacheSize)
	}
	cfg.SessionCacheTTL, err = getEnvDuration("GB_SESSION_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("GB_SESSION_CACHE_TTL: %w", err)
	}

	// --- S3 ---

	if cfg.S3Endpoint, err = getEnvRequired("GB_S3_ENDPOINT"); err != nil {
		return nil, err
	}
	cfg.S3Region = getEnvDefault("GB_S3_REGION", "us-east-1")
	if cfg.S3Bucket, err = getEnvRequired("GB_S3_BUCKET"); err != nil {
		return nil, err
	}
	if cfg.S3AccessKey, err = getEnvRequired("GB_S3_ACCESS_KEY"); err != nil {
		return nil, err
	}
	if cfg.S3SecretKey, err = getEnvRequired("GB_S3_SECRET_KEY"); err != nil {
		return nil, err
	}
	cfg.S3Timeout, err = getEnvDuration("GB_S3_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GB_S3_TIMEOUT: %w", err)
	}
	cfg.PresignExpiry, err = getEnvDuration("GB_PRESIGN_EXPIRY", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("GB_PRESIGN_EXPIRY: %w", err)
	}

	// --- Медиа ---

	cfg.MaxFileSizeMB, err = getEnvInt("GB_MAX_FILE_SIZE_MB", 200)
	if err != nil {
		return nil, fmt.Errorf("GB_MAX_FILE_SIZE_MB: %w", err)
	}
	if cfg.MaxFileSizeMB < 1 {
		return nil, fmt.Errorf("GB_MAX_FILE_SIZE_MB: значение %d должно быть положительным", cfg.MaxFileSizeMB)
	}
	cfg.MaxStickyItems, err = getEnvInt("GB_MAX_STICKY_ITEMS", 10)
	if err != nil {
		return nil, fmt.Errorf("GB_MAX_STICKY_ITEMS: %w", err)
	}
	if cfg.MaxStickyItems < 0 {
		return nil, fmt.Errorf("GB_MAX_STICKY_ITEMS: значение %d не может быть отрицательным", cfg.MaxStickyItems)
	}
	cfg.OwnerSeedSub = getEnvDefault("GB_OWNER_SEED_SUB", "")

	// --- Мониторинг ---

	cfg.DephealthGroup = getEnvDefault("GB_DEPHEALTH_GROUP", "denbeyers")
	cfg.DephealthCheckInterval, err = getEnvDuration("GB_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GB_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.S3HealthPath = getEnvDefault("GB_S3_HEALTH_PATH", "/minio/health/live")

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("GB_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GB_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает postgres://host:port/db без учётных данных.
// Используется только для лейблов метрик зависимостей.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MaxUploadBytes возвращает лимит размера загрузки в байтах.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool принимает значения, понятные strconv.ParseBool (true/false/1/0).
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
