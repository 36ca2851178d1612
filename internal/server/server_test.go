package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MTL667/denbeyers/internal/api/handlers"
	"github.com/MTL667/denbeyers/internal/api/middleware"
	"github.com/MTL667/denbeyers/internal/auth"
	"github.com/MTL667/denbeyers/internal/config"
	"github.com/MTL667/denbeyers/internal/domain/model"
	"github.com/MTL667/denbeyers/internal/domain/rbac"
	"github.com/MTL667/denbeyers/internal/service"
)

// tokenVerifier принимает токен, равный роли пользователя.
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (*auth.Claims, error) {
	if !rbac.IsValidRole(token) {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{Subject: token}, nil
}

type roleResolver struct{}

func (roleResolver) Resolve(_ context.Context, claims *auth.Claims) (*model.User, error) {
	return &model.User{ID: "u-" + claims.Subject, KeycloakSub: claims.Subject, Role: claims.Subject}, nil
}

type stubMedia struct{}

func (stubMedia) ListPublic(context.Context, service.ListQuery) (*service.Page, error) {
	return &service.Page{Items: []*model.MediaItem{}}, nil
}

func (stubMedia) ListAdmin(context.Context, service.ListQuery) (*service.AdminPage, error) {
	return &service.AdminPage{Page: service.Page{Items: []*model.MediaItem{}}, Stats: &model.MediaStats{}}, nil
}

func (stubMedia) Create(context.Context, *model.User, service.CreateMediaRequest) (*model.MediaItem, error) {
	return &model.MediaItem{ID: "m1"}, nil
}

func (stubMedia) CreateOwnerPost(context.Context, *model.User, service.OwnerPostRequest) (*model.MediaItem, error) {
	return &model.MediaItem{ID: "m2"}, nil
}

func (stubMedia) Update(_ context.Context, id string, _ service.UpdateMediaRequest) (*model.MediaItem, error) {
	return &model.MediaItem{ID: id}, nil
}

func (stubMedia) Delete(context.Context, string) error { return nil }

func (stubMedia) FileURL(context.Context, string, bool) (string, error) {
	return "https://s3.example.com/signed", nil
}

type stubUploads struct{}

func (stubUploads) PresignUpload(context.Context, *model.User, service.PresignRequest, service.UploadScope) (*service.PresignResult, error) {
	return &service.PresignResult{UploadURL: "https://s3/put", S3Key: "k", Type: "IMAGE", ExpiresIn: 3600}, nil
}

type stubOIDC struct{}

func (stubOIDC) AuthorizeURL(state string) string { return "https://kc/auth?state=" + state }

func (stubOIDC) Exchange(context.Context, string) (*auth.Tokens, error) { return &auth.Tokens{}, nil }

func (stubOIDC) Refresh(context.Context, string) (*auth.Tokens, error) { return &auth.Tokens{}, nil }

func (stubOIDC) LogoutURL() string { return "https://kc/logout" }

func newTestRouter(origins []string) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessionAuth := middleware.NewSessionAuth(tokenVerifier{}, roleResolver{}, logger)
	cfg := &config.Config{CORSAllowedOrigins: origins}

	return NewRouter(cfg, logger, Handlers{
		Auth: handlers.NewAuthHandler(stubOIDC{}, sessionAuth, auth.NewCookieJar(false),
			handlers.AuthRedirects{Success: "/gallery", Error: "/"}, logger),
		Media:  handlers.NewMediaHandler(stubMedia{}, stubUploads{}, logger),
		Health: handlers.NewHealthHandler(nil, nil, nil),
	}, sessionAuth)
}

func TestRouter_Access(t *testing.T) {
	const body = `{"filename":"a.jpg","contentType":"image/jpeg","size":1,"type":"TEXT","message":"hi","consent":true,"s3Key":"k","mimeType":"image/png","sizeBytes":1}`

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"liveness", http.MethodGet, "/health/live", "", http.StatusOK},
		{"метрики", http.MethodGet, "/metrics", "", http.StatusOK},
		{"login", http.MethodGet, "/auth/login", "", http.StatusFound},
		{"session без токена", http.MethodGet, "/auth/session", "", http.StatusOK},
		{"публичная лента", http.MethodGet, "/media", "", http.StatusOK},
		{"публичный файл", http.MethodGet, "/media/m1/file", "", http.StatusFound},

		{"presign без токена", http.MethodPost, "/media/presign", "", http.StatusUnauthorized},
		{"presign с невалидным токеном", http.MethodPost, "/media/presign", "garbage", http.StatusUnauthorized},
		{"presign гостя", http.MethodPost, "/media/presign", rbac.RoleUser, http.StatusOK},
		{"создание записи гостем", http.MethodPost, "/media", rbac.RoleUser, http.StatusCreated},

		{"owner presign гостем", http.MethodPost, "/owner/media/presign", rbac.RoleUser, http.StatusForbidden},
		{"owner presign без токена", http.MethodPost, "/owner/media/presign", "", http.StatusUnauthorized},
		{"owner presign администратором", http.MethodPost, "/owner/media/presign", rbac.RoleAdmin, http.StatusOK},
		{"пост владельца", http.MethodPost, "/owner/media", rbac.RoleOwner, http.StatusCreated},
		{"модерация гостем", http.MethodPatch, "/owner/media/m1", rbac.RoleUser, http.StatusForbidden},
		{"модерация администратором", http.MethodPatch, "/owner/media/m1", rbac.RoleAdmin, http.StatusOK},
		{"удаление владельцем", http.MethodDelete, "/owner/media/m1", rbac.RoleOwner, http.StatusOK},
		{"список модерации гостем", http.MethodGet, "/admin/media", rbac.RoleUser, http.StatusForbidden},
		{"список модерации администратором", http.MethodGet, "/admin/media", rbac.RoleAdmin, http.StatusOK},
		{"файл модерации владельцем", http.MethodGet, "/admin/media/m1/file", rbac.RoleOwner, http.StatusFound},

		{"неизвестный маршрут", http.MethodGet, "/nope", "", http.StatusNotFound},
	}

	router := newTestRouter(nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reqBody io.Reader
			if tt.method != http.MethodGet {
				reqBody = strings.NewReader(body)
			}
			req := httptest.NewRequest(tt.method, tt.path, reqBody)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s: статус = %d, ожидается %d (тело %s)",
					tt.method, tt.path, rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRouter_CookieSession(t *testing.T) {
	router := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/media", nil)
	req.AddCookie(&http.Cookie{Name: auth.AccessTokenCookie, Value: rbac.RoleAdmin})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("статус = %d, ожидается 200", rec.Code)
	}
}

func TestRouter_CORS(t *testing.T) {
	router := newTestRouter([]string{"https://denbeyers.be"})

	req := httptest.NewRequest(http.MethodGet, "/media", nil)
	req.Header.Set("Origin", "https://denbeyers.be")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://denbeyers.be" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q", got)
	}
}
