// oidc.go — OIDC-клиент Keycloak: authorization code flow, refresh и logout.
// Confidential client, обмен кодом выполняет golang.org/x/oauth2.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrTokenRejected — token endpoint ответил ошибкой (невалидный code,
	// истёкший или отозванный refresh token).
	ErrTokenRejected = errors.New("token endpoint отклонил запрос")
	// ErrProviderUnavailable — Keycloak недоступен (сеть, таймаут).
	ErrProviderUnavailable = errors.New("OIDC-провайдер недоступен")
)

// Tokens — результат обмена кода или refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn — срок жизни access token в секундах (0 — неизвестен)
	ExpiresIn int
	// RefreshExpiresIn — срок жизни refresh token в секундах (0 — неизвестен)
	RefreshExpiresIn int
}

// OIDCConfig — конфигурация OIDC-клиента.
type OIDCConfig struct {
	// Issuer — URL realm'а, например http://localhost:8080/realms/denbeyers
	Issuer       string
	ClientID     string
	ClientSecret string
	// RedirectURL — callback, зарегистрированный в Keycloak
	RedirectURL string
	// PostLogoutRedirectURL — адрес возврата после logout
	PostLogoutRedirectURL string
	// HTTPClient — HTTP-клиент (nil — создаётся новый с Timeout)
	HTTPClient *http.Client
	Timeout    time.Duration
}

// OIDCClient — клиент endpoint'ов Keycloak OIDC.
type OIDCClient struct {
	oauth                 *oauth2.Config
	logoutURL             string
	postLogoutRedirectURL string
	httpClient            *http.Client
}

// NewOIDCClient создаёт OIDC-клиент. Endpoint'ы вычисляются из issuer.
func NewOIDCClient(cfg OIDCConfig) *OIDCClient {
	base := cfg.Issuer + "/protocol/openid-connect"

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &OIDCClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/auth",
				TokenURL:  base + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		logoutURL:             base + "/logout",
		postLogoutRedirectURL: cfg.PostLogoutRedirectURL,
		httpClient:            httpClient,
	}
}

// AuthorizeURL формирует URL redirect'а на страницу входа Keycloak.
func (c *OIDCClient) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange обменивает authorization code на токены.
func (c *OIDCClient) Exchange(ctx context.Context, code string) (*Tokens, error) {
	tok, err := c.oauth.Exchange(c.clientContext(ctx), code)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return tokensFrom(tok), nil
}

// Refresh получает новую пару токенов по refresh token.
func (c *OIDCClient) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	src := c.oauth.TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return tokensFrom(tok), nil
}

// LogoutURL формирует URL завершения сессии в Keycloak.
func (c *OIDCClient) LogoutURL() string {
	params := url.Values{
		"client_id":                {c.oauth.ClientID},
		"post_logout_redirect_uri": {c.postLogoutRedirectURL},
	}
	return c.logoutURL + "?" + params.Encode()
}

// GenerateState генерирует случайный state parameter для CSRF-защиты.
func GenerateState() (string, error) {
	stateBytes := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, stateBytes); err != nil {
		return "", fmt.Errorf("ошибка генерации state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(stateBytes), nil
}

// clientContext передаёт HTTP-клиент с таймаутом в x/oauth2.
func (c *OIDCClient) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// classifyTokenError отделяет отказ token endpoint'а от сетевых ошибок.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return fmt.Errorf("%w: %s", ErrTokenRejected, re.ErrorCode)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func tokensFrom(tok *oauth2.Token) *Tokens {
	t := &Tokens{
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
		ExpiresIn:        extraSeconds(tok, "expires_in"),
		RefreshExpiresIn: extraSeconds(tok, "refresh_expires_in"),
	}
	if t.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		t.ExpiresIn = int(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	return t
}

// extraSeconds читает числовое поле ответа token endpoint'а.
// JSON-ответ даёт float64, form-encoded — строку.
func extraSeconds(tok *oauth2.Token, key string) int {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}
