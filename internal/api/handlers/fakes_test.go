package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MTL667/denbeyers/internal/auth"
	"github.com/MTL667/denbeyers/internal/domain/model"
	"github.com/MTL667/denbeyers/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOIDC struct {
	tokens     *auth.Tokens
	err        error
	gotCode    string
	gotRefresh string
}

func (f *fakeOIDC) AuthorizeURL(state string) string {
	return "https://kc.example.com/auth?state=" + state
}

func (f *fakeOIDC) Exchange(_ context.Context, code string) (*auth.Tokens, error) {
	f.gotCode = code
	return f.tokens, f.err
}

func (f *fakeOIDC) Refresh(_ context.Context, refreshToken string) (*auth.Tokens, error) {
	f.gotRefresh = refreshToken
	return f.tokens, f.err
}

func (f *fakeOIDC) LogoutURL() string {
	return "https://kc.example.com/logout"
}

type fakeAuthn struct {
	user *model.User
	err  error
}

func (f *fakeAuthn) Authenticate(_ *http.Request) (*model.User, error) {
	return f.user, f.err
}

type fakeMedia struct {
	page      *service.Page
	adminPage *service.AdminPage
	item      *model.MediaItem
	url       string
	err       error

	gotQuery     service.ListQuery
	gotID        string
	gotModerator bool
	gotCreate    service.CreateMediaRequest
	gotOwner     service.OwnerPostRequest
	gotUpdate    service.UpdateMediaRequest
	gotUser      *model.User
}

func (f *fakeMedia) ListPublic(_ context.Context, q service.ListQuery) (*service.Page, error) {
	f.gotQuery = q
	return f.page, f.err
}

func (f *fakeMedia) ListAdmin(_ context.Context, q service.ListQuery) (*service.AdminPage, error) {
	f.gotQuery = q
	return f.adminPage, f.err
}

func (f *fakeMedia) Create(_ context.Context, user *model.User, req service.CreateMediaRequest) (*model.MediaItem, error) {
	f.gotUser, f.gotCreate = user, req
	return f.item, f.err
}

func (f *fakeMedia) CreateOwnerPost(_ context.Context, user *model.User, req service.OwnerPostRequest) (*model.MediaItem, error) {
	f.gotUser, f.gotOwner = user, req
	return f.item, f.err
}

func (f *fakeMedia) Update(_ context.Context, id string, req service.UpdateMediaRequest) (*model.MediaItem, error) {
	f.gotID, f.gotUpdate = id, req
	return f.item, f.err
}

func (f *fakeMedia) Delete(_ context.Context, id string) error {
	f.gotID = id
	return f.err
}

func (f *fakeMedia) FileURL(_ context.Context, id string, moderator bool) (string, error) {
	f.gotID, f.gotModerator = id, moderator
	return f.url, f.err
}

type fakeUploads struct {
	res      *service.PresignResult
	err      error
	gotScope service.UploadScope
	gotReq   service.PresignRequest
}

func (f *fakeUploads) PresignUpload(_ context.Context, _ *model.User, req service.PresignRequest, scope service.UploadScope) (*service.PresignResult, error) {
	f.gotReq, f.gotScope = req, scope
	return f.res, f.err
}

// decodeBody разбирает JSON-ответ в map.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("невалидный JSON ответа %q: %v", rec.Body.String(), err)
	}
	return body
}

// errorCode извлекает error.code из тела ошибки.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("нет поля error в ответе %q", rec.Body.String())
	}
	code, _ := e["code"].(string)
	return code
}

// findCookie возвращает cookie ответа по имени.
func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
