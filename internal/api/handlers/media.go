// media.go — публичная лента, загрузки гостей, посты владельца и модерация.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/MTL667/denbeyers/internal/api/errors"
	"github.com/MTL667/denbeyers/internal/api/middleware"
	"github.com/MTL667/denbeyers/internal/domain/model"
	"github.com/MTL667/denbeyers/internal/service"
)

// Сообщения об успешной операции, показываемые гостям.
const (
	msgUploadReceived = "Je upload is ontvangen en wacht op goedkeuring. Bedankt! 💛"
	msgOwnerPost      = "Post aangemaakt! 💛"
	msgDeleted        = "Media item deleted"
)

// MediaService — операции с записями гостевой книги.
type MediaService interface {
	ListPublic(ctx context.Context, q service.ListQuery) (*service.Page, error)
	ListAdmin(ctx context.Context, q service.ListQuery) (*service.AdminPage, error)
	Create(ctx context.Context, user *model.User, req service.CreateMediaRequest) (*model.MediaItem, error)
	CreateOwnerPost(ctx context.Context, user *model.User, req service.OwnerPostRequest) (*model.MediaItem, error)
	Update(ctx context.Context, id string, req service.UpdateMediaRequest) (*model.MediaItem, error)
	Delete(ctx context.Context, id string) error
	FileURL(ctx context.Context, id string, moderator bool) (string, error)
}

// UploadBroker выдаёт presigned URL для загрузки.
type UploadBroker interface {
	PresignUpload(ctx context.Context, user *model.User, req service.PresignRequest, scope service.UploadScope) (*service.PresignResult, error)
}

// MediaHandler — обработчики /media, /owner/media и /admin/media.
type MediaHandler struct {
	media   MediaService
	uploads UploadBroker
	logger  *slog.Logger
}

// NewMediaHandler создаёт обработчики записей.
func NewMediaHandler(media MediaService, uploads UploadBroker, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{
		media:   media,
		uploads: uploads,
		logger:  logger.With(slog.String("component", "media_handler")),
	}
}

// publicItem — запись в публичной ленте.
type publicItem struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	S3Key       *string   `json:"s3Key"`
	CustomURL   *string   `json:"customUrl"`
	MimeType    *string   `json:"mimeType"`
	Message     *string   `json:"message"`
	DisplayName *string   `json:"displayName"`
	IsOwnerPost bool      `json:"isOwnerPost"`
	IsSticky    bool      `json:"isSticky"`
	CreatedAt   time.Time `json:"createdAt"`
	MediaURL    *string   `json:"mediaUrl"`
}

// adminItem — запись в списке модерации.
type adminItem struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	MimeType    *string       `json:"mimeType"`
	SizeBytes   int64         `json:"sizeBytes"`
	Message     *string       `json:"message"`
	DisplayName *string       `json:"displayName"`
	CustomURL   *string       `json:"customUrl"`
	S3Key       *string       `json:"s3Key"`
	Consent     bool          `json:"consent"`
	Approved    bool          `json:"approved"`
	Visible     bool          `json:"visible"`
	IsOwnerPost bool          `json:"isOwnerPost"`
	IsSticky    bool          `json:"isSticky"`
	StickyOrder *int          `json:"stickyOrder"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	Uploader    *uploaderJSON `json:"uploader"`
	MediaURL    *string       `json:"mediaUrl"`
}

type uploaderJSON struct {
	ID    string  `json:"id"`
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type statsJSON struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Hidden   int `json:"hidden"`
	Sticky   int `json:"sticky"`
}

type publicListResponse struct {
	Items      []publicItem `json:"items"`
	NextCursor *string      `json:"nextCursor"`
	HasMore    bool         `json:"hasMore"`
}

type adminListResponse struct {
	Items      []adminItem `json:"items"`
	NextCursor *string     `json:"nextCursor"`
	HasMore    bool        `json:"hasMore"`
	Stats      statsJSON   `json:"stats"`
}

type presignResponse struct {
	UploadURL string `json:"uploadUrl"`
	S3Key     string `json:"s3Key"`
	Type      string `json:"type"`
	ExpiresIn int    `json:"expiresIn"`
}

type createResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

type updatedItem struct {
	ID          string `json:"id"`
	Approved    bool   `json:"approved"`
	Visible     bool   `json:"visible"`
	IsSticky    bool   `json:"isSticky"`
	StickyOrder *int   `json:"stickyOrder"`
}

type updateResponse struct {
	Success bool        `json:"success"`
	Item    updatedItem `json:"item"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ListPublic — GET /media.
func (h *MediaHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	page, err := h.media.ListPublic(r.Context(), listQuery(r))
	if err != nil {
		writeServiceError(w, h.logger, "list_public", err)
		return
	}

	items := make([]publicItem, 0, len(page.Items))
	for _, m := range page.Items {
		items = append(items, publicItem{
			ID:          m.ID,
			Type:        m.Type,
			S3Key:       m.S3Key,
			CustomURL:   m.CustomURL,
			MimeType:    m.MimeType,
			Message:     m.Message,
			DisplayName: m.DisplayName,
			IsOwnerPost: m.IsOwnerPost,
			IsSticky:    m.IsSticky,
			CreatedAt:   m.CreatedAt,
			MediaURL:    mediaURL(m, "/media/"),
		})
	}

	writeJSON(w, http.StatusOK, publicListResponse{
		Items:      items,
		NextCursor: cursorJSON(page.NextCursor),
		HasMore:    page.HasMore,
	})
}

// PresignUpload — POST /media/presign.
func (h *MediaHandler) PresignUpload(w http.ResponseWriter, r *http.Request) {
	h.presign(w, r, service.UploadScopeUser)
}

// PresignOwnerUpload — POST /owner/media/presign.
func (h *MediaHandler) PresignOwnerUpload(w http.ResponseWriter, r *http.Request) {
	h.presign(w, r, service.UploadScopeOwner)
}

func (h *MediaHandler) presign(w http.ResponseWriter, r *http.Request, scope service.UploadScope) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		apierrors.Unauthorized(w, "Authentication required")
		return
	}

	var req service.PresignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, h.logger, "presign", err)
		return
	}

	res, err := h.uploads.PresignUpload(r.Context(), user, req, scope)
	if err != nil {
		writeServiceError(w, h.logger, "presign", err)
		return
	}

	writeJSON(w, http.StatusOK, presignResponse{
		UploadURL: res.UploadURL,
		S3Key:     res.S3Key,
		Type:      res.Type,
		ExpiresIn: res.ExpiresIn,
	})
}

// Create — POST /media. Запись гостя ожидает модерации.
func (h *MediaHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		apierrors.Unauthorized(w, "Authentication required")
		return
	}

	var req service.CreateMediaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, h.logger, "create_media", err)
		return
	}

	item, err := h.media.Create(r.Context(), user, req)
	if err != nil {
		writeServiceError(w, h.logger, "create_media", err)
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{Success: true, ID: item.ID, Message: msgUploadReceived})
}

// CreateOwnerPost — POST /owner/media. Пост владельца публикуется сразу.
func (h *MediaHandler) CreateOwnerPost(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		apierrors.Unauthorized(w, "Authentication required")
		return
	}

	var req service.OwnerPostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, h.logger, "create_owner_post", err)
		return
	}

	item, err := h.media.CreateOwnerPost(r.Context(), user, req)
	if err != nil {
		writeServiceError(w, h.logger, "create_owner_post", err)
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{Success: true, ID: item.ID, Message: msgOwnerPost})
}

// Update — PATCH /owner/media/{id}.
func (h *MediaHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req service.UpdateMediaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, h.logger, "update_media", err)
		return
	}

	item, err := h.media.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, h.logger, "update_media", err)
		return
	}

	writeJSON(w, http.StatusOK, updateResponse{
		Success: true,
		Item: updatedItem{
			ID:          item.ID,
			Approved:    item.Approved,
			Visible:     item.Visible,
			IsSticky:    item.IsSticky,
			StickyOrder: item.StickyOrder,
		},
	})
}

// Delete — DELETE /owner/media/{id}.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.media.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, "delete_media", err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Success: true, Message: msgDeleted})
}

// ListAdmin — GET /admin/media.
func (h *MediaHandler) ListAdmin(w http.ResponseWriter, r *http.Request) {
	page, err := h.media.ListAdmin(r.Context(), listQuery(r))
	if err != nil {
		writeServiceError(w, h.logger, "list_admin", err)
		return
	}

	items := make([]adminItem, 0, len(page.Items))
	for _, m := range page.Items {
		item := adminItem{
			ID:          m.ID,
			Type:        m.Type,
			MimeType:    m.MimeType,
			SizeBytes:   m.SizeBytes,
			Message:     m.Message,
			DisplayName: m.DisplayName,
			CustomURL:   m.CustomURL,
			S3Key:       m.S3Key,
			Consent:     m.Consent,
			Approved:    m.Approved,
			Visible:     m.Visible,
			IsOwnerPost: m.IsOwnerPost,
			IsSticky:    m.IsSticky,
			StickyOrder: m.StickyOrder,
			CreatedAt:   m.CreatedAt,
			UpdatedAt:   m.UpdatedAt,
			MediaURL:    mediaURL(m, "/admin/media/"),
		}
		if m.Uploader != nil {
			item.Uploader = &uploaderJSON{ID: m.Uploader.ID, Name: m.Uploader.Name, Email: m.Uploader.Email}
		}
		items = append(items, item)
	}

	resp := adminListResponse{
		Items:      items,
		NextCursor: cursorJSON(page.NextCursor),
		HasMore:    page.HasMore,
	}
	if page.Stats != nil {
		resp.Stats = statsJSON(*page.Stats)
	}
	writeJSON(w, http.StatusOK, resp)
}

// PublicFile — GET /media/{id}/file.
// Перенаправляет на presigned GET только для опубликованной записи.
func (h *MediaHandler) PublicFile(w http.ResponseWriter, r *http.Request) {
	h.redirectFile(w, r, false)
}

// AdminFile — GET /admin/media/{id}/file. Флаги модерации не проверяются.
func (h *MediaHandler) AdminFile(w http.ResponseWriter, r *http.Request) {
	h.redirectFile(w, r, true)
}

func (h *MediaHandler) redirectFile(w http.ResponseWriter, r *http.Request, moderator bool) {
	target, err := h.media.FileURL(r.Context(), chi.URLParam(r, "id"), moderator)
	if err != nil {
		writeServiceError(w, h.logger, "file_url", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

// listQuery разбирает type, status, cursor и limit.
// Нечисловой limit заменяется значением по умолчанию.
func listQuery(r *http.Request) service.ListQuery {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	return service.ListQuery{
		Type:   q.Get("type"),
		Status: q.Get("status"),
		Cursor: q.Get("cursor"),
		Limit:  limit,
	}
}

// mediaURL возвращает customUrl либо адрес redirect-эндпоинта файла.
// Для TEXT без customUrl — nil.
func mediaURL(m *model.MediaItem, prefix string) *string {
	if m.CustomURL != nil && *m.CustomURL != "" {
		return m.CustomURL
	}
	if m.Type == model.MediaTypeText || m.S3Key == nil {
		return nil
	}
	u := prefix + m.ID + "/file"
	return &u
}

func cursorJSON(c string) *string {
	if c == "" {
		return nil
	}
	return &c
}
