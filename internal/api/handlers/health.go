// health.go — health endpoints гостевой книги.
// /health/live — проверка живости (процесс жив)
// /health/ready — проверка готовности (PostgreSQL, Keycloak JWKS и S3 доступны)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MTL667/denbeyers/internal/config"
)

const serviceName = "denbeyers"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	pgChecker   ReadinessChecker
	kcChecker   ReadinessChecker
	s3Checker   ReadinessChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// Любой checker может быть nil: readiness вернёт для него "fail".
func NewHealthHandler(pgChecker, kcChecker, s3Checker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		pgChecker:   pgChecker,
		kcChecker:   kcChecker,
		s3Checker:   s3Checker,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		PostgreSQL healthCheckResult `json:"postgresql"`
		Keycloak   healthCheckResult `json:"keycloak"`
		S3         healthCheckResult `json:"s3"`
	} `json:"checks"`
}

// HealthLive — проверка живости. Возвращает 200, если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — проверка готовности.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	resp.Checks.PostgreSQL = check(h.pgChecker)
	resp.Checks.Keycloak = check(h.kcChecker)
	resp.Checks.S3 = check(h.s3Checker)

	resp.Status = overallStatus(
		resp.Checks.PostgreSQL.Status,
		resp.Checks.Keycloak.Status,
		resp.Checks.S3.Status,
	)

	status := http.StatusOK
	if resp.Status == "fail" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func check(c ReadinessChecker) healthCheckResult {
	if c == nil {
		return healthCheckResult{Status: "fail", Message: "не инициализирован"}
	}
	status, msg := c.CheckReady()
	return healthCheckResult{Status: status, Message: msg}
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Хотя бы один fail — итог fail, хотя бы один degraded — degraded.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
