package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const statusFail = "fail"

// JWKSReadinessChecker проверяет доступность JWKS endpoint Keycloak
// для /health/ready.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
	keys    KeyState
}

// KeyState сообщает, загружен ли JWKS в верификатор.
type KeyState interface {
	Ready() bool
}

// NewJWKSReadinessChecker создаёт проверку JWKS с указанным таймаутом.
func NewJWKSReadinessChecker(jwksURL string, timeout time.Duration) *JWKSReadinessChecker {
	return &JWKSReadinessChecker{
		jwksURL: jwksURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// WithKeyState добавляет в сообщение состояние кэша ключей верификатора.
// JWKS загружается лениво, поэтому пустой кэш статус не понижает.
func (k *JWKSReadinessChecker) WithKeyState(ks KeyState) *JWKSReadinessChecker {
	k.keys = ks
	return k
}

// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
// JWKS без ключей или с невалидным JSON считается degraded.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return statusFail, fmt.Sprintf("Keycloak JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("Keycloak JWKS вернул статус %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return "degraded", fmt.Sprintf("Keycloak JWKS: невалидный JSON: %v", err)
	}
	if len(jwks.Keys) == 0 {
		return "degraded", "Keycloak JWKS: нет ключей"
	}

	msg := fmt.Sprintf("JWKS доступен, ключей: %d", len(jwks.Keys))
	if k.keys != nil && !k.keys.Ready() {
		msg += ", верификатор ещё не загрузил ключи"
	}
	return "ok", msg
}
