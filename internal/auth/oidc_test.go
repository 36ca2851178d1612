package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// fakeTokenEndpoint имитирует token endpoint Keycloak.
type fakeTokenEndpoint struct {
	t       *testing.T
	status  int
	body    map[string]any
	delay   time.Duration
	lastReq url.Values
}

func (f *fakeTokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/realms/denbeyers/protocol/openid-connect/token" {
		f.t.Errorf("неожиданный путь %s", r.URL.Path)
	}
	if err := r.ParseForm(); err != nil {
		f.t.Errorf("ParseForm: %v", err)
	}
	f.lastReq = r.PostForm
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_ = json.NewEncoder(w).Encode(f.body)
}

func newTestOIDC(t *testing.T, f *fakeTokenEndpoint, timeout time.Duration) (*OIDCClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c := NewOIDCClient(OIDCConfig{
		Issuer:                srv.URL + "/realms/denbeyers",
		ClientID:              testClientID,
		ClientSecret:          "s3cret",
		RedirectURL:           "http://localhost:3000/auth/callback",
		PostLogoutRedirectURL: "http://localhost:3000",
		Timeout:               timeout,
	})
	return c, srv
}

func TestAuthorizeURL(t *testing.T) {
	c := NewOIDCClient(OIDCConfig{
		Issuer:      "http://kc.test/realms/denbeyers",
		ClientID:    testClientID,
		RedirectURL: "http://localhost:3000/auth/callback",
	})

	u, err := url.Parse(c.AuthorizeURL("state-123"))
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	if u.Host != "kc.test" || u.Path != "/realms/denbeyers/protocol/openid-connect/auth" {
		t.Errorf("endpoint = %s%s", u.Host, u.Path)
	}
	q := u.Query()
	want := map[string]string{
		"client_id":     testClientID,
		"redirect_uri":  "http://localhost:3000/auth/callback",
		"response_type": "code",
		"scope":         "openid profile email",
		"state":         "state-123",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s = %q, хотели %q", k, q.Get(k), v)
		}
	}
}

func TestExchange_Success(t *testing.T) {
	f := &fakeTokenEndpoint{t: t, status: http.StatusOK, body: map[string]any{
		"access_token":       "access-1",
		"refresh_token":      "refresh-1",
		"token_type":         "Bearer",
		"expires_in":         300,
		"refresh_expires_in": 1800,
	}}
	c, _ := newTestOIDC(t, f, time.Second)

	tokens, err := c.Exchange(context.Background(), "code-abc")
	if err != nil {
		t.Fatalf("Exchange() ошибка: %v", err)
	}
	if tokens.AccessToken != "access-1" || tokens.RefreshToken != "refresh-1" {
		t.Errorf("tokens = %+v", tokens)
	}
	if tokens.ExpiresIn != 300 || tokens.RefreshExpiresIn != 1800 {
		t.Errorf("ExpiresIn = %d, RefreshExpiresIn = %d", tokens.ExpiresIn, tokens.RefreshExpiresIn)
	}

	form := f.lastReq
	if form.Get("grant_type") != "authorization_code" || form.Get("code") != "code-abc" {
		t.Errorf("форма запроса = %v", form)
	}
	if form.Get("client_id") != testClientID || form.Get("client_secret") != "s3cret" {
		t.Errorf("учётные данные клиента не переданы в теле: %v", form)
	}
	if form.Get("redirect_uri") != "http://localhost:3000/auth/callback" {
		t.Errorf("redirect_uri = %q", form.Get("redirect_uri"))
	}
}

func TestExchange_Rejected(t *testing.T) {
	f := &fakeTokenEndpoint{t: t, status: http.StatusBadRequest, body: map[string]any{
		"error": "invalid_grant", "error_description": "Code not valid",
	}}
	c, _ := newTestOIDC(t, f, time.Second)

	_, err := c.Exchange(context.Background(), "bad")
	if !errors.Is(err, ErrTokenRejected) {
		t.Errorf("Exchange() = %v, хотели ErrTokenRejected", err)
	}
}

func TestExchange_ProviderUnavailable(t *testing.T) {
	f := &fakeTokenEndpoint{t: t, status: http.StatusOK, body: map[string]any{}}
	c, srv := newTestOIDC(t, f, time.Second)
	srv.Close()

	_, err := c.Exchange(context.Background(), "code")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Exchange() = %v, хотели ErrProviderUnavailable", err)
	}
}

func TestExchange_Timeout(t *testing.T) {
	f := &fakeTokenEndpoint{t: t, status: http.StatusOK, delay: 300 * time.Millisecond,
		body: map[string]any{"access_token": "late", "token_type": "Bearer"}}
	c, _ := newTestOIDC(t, f, 50*time.Millisecond)

	_, err := c.Exchange(context.Background(), "code")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Exchange() = %v, хотели ErrProviderUnavailable", err)
	}
}

func TestRefresh(t *testing.T) {
	t.Run("успех", func(t *testing.T) {
		f := &fakeTokenEndpoint{t: t, status: http.StatusOK, body: map[string]any{
			"access_token":  "access-2",
			"refresh_token": "refresh-2",
			"token_type":    "Bearer",
			"expires_in":    300,
		}}
		c, _ := newTestOIDC(t, f, time.Second)

		tokens, err := c.Refresh(context.Background(), "refresh-1")
		if err != nil {
			t.Fatalf("Refresh() ошибка: %v", err)
		}
		if tokens.AccessToken != "access-2" || tokens.RefreshToken != "refresh-2" || tokens.ExpiresIn != 300 {
			t.Errorf("tokens = %+v", tokens)
		}
		if f.lastReq.Get("grant_type") != "refresh_token" || f.lastReq.Get("refresh_token") != "refresh-1" {
			t.Errorf("форма запроса = %v", f.lastReq)
		}
	})

	t.Run("отказ", func(t *testing.T) {
		f := &fakeTokenEndpoint{t: t, status: http.StatusBadRequest, body: map[string]any{
			"error": "invalid_grant", "error_description": "Token is not active",
		}}
		c, _ := newTestOIDC(t, f, time.Second)

		if _, err := c.Refresh(context.Background(), "stale"); !errors.Is(err, ErrTokenRejected) {
			t.Errorf("Refresh() = %v, хотели ErrTokenRejected", err)
		}
	})
}

func TestLogoutURL(t *testing.T) {
	c := NewOIDCClient(OIDCConfig{
		Issuer:                "http://kc.test/realms/denbeyers",
		ClientID:              testClientID,
		PostLogoutRedirectURL: "http://localhost:3000",
	})

	got := c.LogoutURL()
	if !strings.HasPrefix(got, "http://kc.test/realms/denbeyers/protocol/openid-connect/logout?") {
		t.Errorf("LogoutURL() = %q", got)
	}
	u, _ := url.Parse(got)
	if u.Query().Get("client_id") != testClientID {
		t.Errorf("client_id = %q", u.Query().Get("client_id"))
	}
	if u.Query().Get("post_logout_redirect_uri") != "http://localhost:3000" {
		t.Errorf("post_logout_redirect_uri = %q", u.Query().Get("post_logout_redirect_uri"))
	}
}

func TestGenerateState(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		s, err := GenerateState()
		if err != nil {
			t.Fatalf("GenerateState() ошибка: %v", err)
		}
		if len(s) != 22 {
			t.Errorf("len(state) = %d, хотели 22", len(s))
		}
		if seen[s] {
			t.Fatalf("повторный state %q", s)
		}
		seen[s] = true
	}
}
