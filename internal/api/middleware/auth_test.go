package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MTL667/denbeyers/internal/auth"
	"github.com/MTL667/denbeyers/internal/domain/model"
	"github.com/MTL667/denbeyers/internal/domain/rbac"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeVerifier принимает токен "good-<role>".
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (*auth.Claims, error) {
	switch token {
	case "good-user":
		return &auth.Claims{Subject: "sub-user"}, nil
	case "good-owner":
		return &auth.Claims{Subject: "sub-owner", RealmRoles: []string{"owner"}}, nil
	case "good-broken":
		return &auth.Claims{Subject: "broken"}, nil
	}
	return nil, auth.ErrInvalidToken
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, c *auth.Claims) (*model.User, error) {
	if c.Subject == "broken" {
		return nil, errors.New("db down")
	}
	return &model.User{ID: "id-" + c.Subject, KeycloakSub: c.Subject, Role: rbac.RoleFromClaims(c.RealmRoles, c.ClientRoles)}, nil
}

func newTestAuth() *SessionAuth {
	return NewSessionAuth(fakeVerifier{}, fakeResolver{}, testLogger())
}

// echoUser возвращает ID пользователя из контекста.
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	_, _ = w.Write([]byte(u.ID))
})

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.Error.Code, body.Error.Message
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		wantCode   string
		wantBody   string
	}{
		{
			name:       "без токена",
			setup:      func(*http.Request) {},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "невалидный токен",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer forged") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "Bearer",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer good-user") },
			wantStatus: http.StatusOK,
			wantBody:   "id-sub-user",
		},
		{
			name: "cookie",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: auth.AccessTokenCookie, Value: "good-owner"})
			},
			wantStatus: http.StatusOK,
			wantBody:   "id-sub-owner",
		},
		{
			name:       "ошибка БД",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer good-broken") },
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/media/presign", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			newTestAuth().RequireAuth()(echoUser).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if code, _ := errorCode(t, rec); code != tt.wantCode {
					t.Errorf("code = %q, ожидается %q", code, tt.wantCode)
				}
				return
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, ожидается %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRequireAuth_InvalidTokenMessage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()

	newTestAuth().RequireAuth()(echoUser).ServeHTTP(rec, req)

	if _, msg := errorCode(t, rec); msg != "invalid or expired token" {
		t.Errorf("message = %q", msg)
	}
}

func TestAuthenticate(t *testing.T) {
	a := newTestAuth()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := a.Authenticate(req); !errors.Is(err, ErrNoCredential) {
		t.Errorf("без токена: %v", err)
	}

	req.Header.Set("Authorization", "Bearer nope")
	if _, err := a.Authenticate(req); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("невалидный: %v", err)
	}

	req.Header.Set("Authorization", "Bearer good-owner")
	u, err := a.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate() ошибка: %v", err)
	}
	if u.Role != rbac.RoleOwner {
		t.Errorf("Role = %q, ожидается OWNER", u.Role)
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name       string
		user       *model.User
		wantStatus int
	}{
		{"без пользователя", nil, http.StatusUnauthorized},
		{"USER", &model.User{Role: rbac.RoleUser}, http.StatusForbidden},
		{"ADMIN", &model.User{Role: rbac.RoleAdmin}, http.StatusNoContent},
		{"OWNER", &model.User{Role: rbac.RoleOwner}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/media", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()

			RequireRole(rbac.Moderators...)(ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
