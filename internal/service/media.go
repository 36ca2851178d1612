// media.go — лента гостевой книги, создание записей и модерация.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/MTL667/denbeyers/internal/domain/model"
	"github.com/MTL667/denbeyers/internal/repository"
)

// Размер страницы ленты.
const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// Подпись гостевой записи, если ни имя, ни displayName не заданы.
const guestFallbackName = "Anoniem"

// ListQuery — параметры списка. Неизвестные Type и Status игнорируются.
type ListQuery struct {
	Type   string
	Status string
	Cursor string
	Limit  int
}

// Page — страница списка.
type Page struct {
	Items []*model.MediaItem
	// NextCursor — ID последней записи страницы; пусто, если дальше ничего нет
	NextCursor string
	HasMore    bool
}

// AdminPage — страница модерации со счётчиками.
type AdminPage struct {
	Page
	Stats *model.MediaStats
}

// CreateMediaRequest — запись гостя.
// IMAGE и VIDEO ссылаются на загруженный объект; TEXT содержит только сообщение.
type CreateMediaRequest struct {
	S3Key       string `json:"s3Key" validate:"required_unless=Type TEXT,excluded_if=Type TEXT"`
	Type        string `json:"type" validate:"required,oneof=IMAGE VIDEO TEXT"`
	MimeType    string `json:"mimeType" validate:"required_unless=Type TEXT"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required_unless=Type TEXT,gte=0"`
	Message     string `json:"message" validate:"required_if=Type TEXT,max=500"`
	DisplayName string `json:"displayName" validate:"max=100"`
	Consent     bool   `json:"consent"`
}

// OwnerPostRequest — запись владельца или администратора.
type OwnerPostRequest struct {
	S3Key       string `json:"s3Key" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=IMAGE VIDEO"`
	MimeType    string `json:"mimeType" validate:"required"`
	SizeBytes   int64  `json:"sizeBytes" validate:"gt=0"`
	Message     string `json:"message" validate:"max=500"`
	DisplayName string `json:"displayName" validate:"max=100"`
	IsSticky    bool   `json:"isSticky"`
}

// UpdateMediaRequest — изменения модератора. nil-поля не меняются.
type UpdateMediaRequest struct {
	Message     *string `json:"message" validate:"omitempty,max=500"`
	DisplayName *string `json:"displayName" validate:"omitempty,max=100"`
	Approved    *bool   `json:"approved"`
	Visible     *bool   `json:"visible"`
	IsSticky    *bool   `json:"isSticky"`
	StickyOrder *int    `json:"stickyOrder" validate:"omitempty,min=0,max=2147483647"`
}

// MediaService — записи гостевой книги и их модерация.
type MediaService struct {
	media     repository.MediaRepository
	store     ObjectStore
	uploads   *UploadService
	validate  *validator.Validate
	maxSticky int
	logger    *slog.Logger
}

// NewMediaService создаёт сервис записей.
// maxSticky — максимальное число одновременно закреплённых записей.
func NewMediaService(
	media repository.MediaRepository,
	store ObjectStore,
	uploads *UploadService,
	maxSticky int,
	logger *slog.Logger,
) *MediaService {
	return &MediaService{
		media:     media,
		store:     store,
		uploads:   uploads,
		validate:  newValidator(),
		maxSticky: maxSticky,
		logger:    logger.With(slog.String("component", "media_service")),
	}
}

// ListPublic возвращает страницу публичной ленты (type: image, video).
func (s *MediaService) ListPublic(ctx context.Context, q ListQuery) (*Page, error) {
	if err := checkCursor(q.Cursor); err != nil {
		return nil, err
	}
	limit := normalizeLimit(q.Limit)

	items, err := s.media.ListPublic(ctx, repository.PublicFilter{
		Type:   typeFilter(q.Type, model.MediaTypeImage, model.MediaTypeVideo),
		Cursor: q.Cursor,
		Limit:  limit + 1,
	})
	if err != nil {
		return nil, mapCursorErr(err)
	}
	return newPage(items, limit), nil
}

// ListAdmin возвращает страницу модерации (type: image, video, text;
// status: pending, approved, hidden, sticky) и счётчики по всем записям.
func (s *MediaService) ListAdmin(ctx context.Context, q ListQuery) (*AdminPage, error) {
	if err := checkCursor(q.Cursor); err != nil {
		return nil, err
	}
	limit := normalizeLimit(q.Limit)

	var status string
	switch q.Status {
	case repository.StatusPending, repository.StatusApproved, repository.StatusHidden, repository.StatusSticky:
		status = q.Status
	}

	items, err := s.media.ListAdmin(ctx, repository.AdminFilter{
		Type:   typeFilter(q.Type, model.MediaTypeImage, model.MediaTypeVideo, model.MediaTypeText),
		Status: status,
		Cursor: q.Cursor,
		Limit:  limit + 1,
	})
	if err != nil {
		return nil, mapCursorErr(err)
	}

	stats, err := s.media.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &AdminPage{Page: *newPage(items, limit), Stats: stats}, nil
}

// Create сохраняет запись гостя. Запись ждёт модерации.
func (s *MediaService) Create(ctx context.Context, user *model.User, req CreateMediaRequest) (*model.MediaItem, error) {
	// 1. Валидация
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if !req.Consent {
		return nil, ErrConsentRequired
	}

	item := &model.MediaItem{
		UserID:      user.ID,
		Type:        req.Type,
		Message:     optional(req.Message),
		DisplayName: optional(displayName(req.DisplayName, user, guestFallbackName)),
		Consent:     true,
		Visible:     true,
	}

	// 2. Объект должен быть загружен этим пользователем
	if req.Type != model.MediaTypeText {
		if err := s.uploads.CheckObject(user, req.S3Key, req.Type, req.MimeType, req.SizeBytes, UploadScopeUser); err != nil {
			return nil, err
		}
		item.S3Key = optional(req.S3Key)
		item.MimeType = optional(req.MimeType)
		item.SizeBytes = req.SizeBytes
	}

	// 3. Сохранение
	if err := s.media.Create(ctx, item); err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Запись гостя создана",
		slog.String("id", item.ID),
		slog.String("user_id", user.ID),
		slog.String("type", item.Type),
	)
	return item, nil
}

// CreateOwnerPost сохраняет одобренную запись владельца; при IsSticky
// запись закрепляется в конце списка закреплённых.
func (s *MediaService) CreateOwnerPost(ctx context.Context, user *model.User, req OwnerPostRequest) (*model.MediaItem, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if err := s.uploads.CheckObject(user, req.S3Key, req.Type, req.MimeType, req.SizeBytes, UploadScopeOwner); err != nil {
		return nil, err
	}

	item := &model.MediaItem{
		UserID:      user.ID,
		Type:        req.Type,
		S3Key:       optional(req.S3Key),
		MimeType:    optional(req.MimeType),
		SizeBytes:   req.SizeBytes,
		Message:     optional(req.Message),
		DisplayName: optional(displayName(req.DisplayName, user, ownerSeedName)),
		Consent:     true,
		Approved:    true,
		Visible:     true,
		IsOwnerPost: true,
		IsSticky:    req.IsSticky,
	}

	create := func(repo repository.MediaRepository) error {
		if item.IsSticky {
			order, err := s.nextStickyOrder(ctx, repo)
			if err != nil {
				return err
			}
			item.StickyOrder = &order
		}
		return repo.Create(ctx, item)
	}

	var err error
	if item.IsSticky {
		err = s.media.WithStickyLock(ctx, create)
	} else {
		err = create(s.media)
	}
	if err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Запись владельца создана",
		slog.String("id", item.ID),
		slog.String("user_id", user.ID),
		slog.Bool("sticky", item.IsSticky),
	)
	return item, nil
}

// Update применяет изменения модератора.
// Включение закрепления проверяет лимит и ставит запись последней среди
// закреплённых; выключение сбрасывает позицию; явный stickyOrder важнее.
func (s *MediaService) Update(ctx context.Context, id string, req UpdateMediaRequest) (*model.MediaItem, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if uuid.Validate(id) != nil {
		return nil, ErrNotFound
	}

	var updated *model.MediaItem
	apply := func(repo repository.MediaRepository) error {
		existing, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		upd := repository.MediaUpdate{
			Message:     req.Message,
			DisplayName: req.DisplayName,
			Approved:    req.Approved,
			Visible:     req.Visible,
			IsSticky:    req.IsSticky,
		}
		if req.IsSticky != nil {
			switch {
			case *req.IsSticky && !existing.IsSticky:
				order, err := s.nextStickyOrder(ctx, repo)
				if err != nil {
					return err
				}
				upd.StickyOrder = &order
			case !*req.IsSticky:
				upd.ClearStickyOrder = true
			}
		}
		if req.StickyOrder != nil {
			upd.StickyOrder = req.StickyOrder
		}

		updated, err = repo.Update(ctx, id, upd)
		return err
	}

	var err error
	if req.IsSticky != nil && *req.IsSticky {
		err = s.media.WithStickyLock(ctx, apply)
	} else {
		err = apply(s.media)
	}
	if err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Запись изменена модератором",
		slog.String("id", id),
		slog.Bool("approved", updated.Approved),
		slog.Bool("visible", updated.Visible),
		slog.Bool("sticky", updated.IsSticky),
	)
	return updated, nil
}

// Delete удаляет запись. Ошибка удаления объекта из S3 только логируется:
// решающим является удаление из БД.
func (s *MediaService) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return ErrNotFound
	}

	item, err := s.media.GetByID(ctx, id)
	if err != nil {
		return mapRepoErr(err)
	}

	if item.Type != model.MediaTypeText && item.S3Key != nil {
		if err := s.store.Delete(ctx, *item.S3Key); err != nil {
			s.logger.Warn("Не удалось удалить объект из S3",
				slog.String("id", id),
				slog.String("key", *item.S3Key),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.media.Delete(ctx, id); err != nil {
		return mapRepoErr(err)
	}

	s.logger.Info("Запись удалена", slog.String("id", id))
	return nil
}

// FileURL возвращает presigned URL объекта записи.
// Без moderator запись должна быть одобрена, видима и иметь согласие автора.
func (s *MediaService) FileURL(ctx context.Context, id string, moderator bool) (string, error) {
	if uuid.Validate(id) != nil {
		return "", ErrNotFound
	}

	item, err := s.media.GetByID(ctx, id)
	if err != nil {
		return "", mapRepoErr(err)
	}
	if item.S3Key == nil || *item.S3Key == "" {
		return "", ErrNotFound
	}
	if !moderator && !item.PubliclyAccessible() {
		return "", ErrNotAccessible
	}

	return s.uploads.PresignDownload(ctx, *item.S3Key)
}

// nextStickyOrder проверяет лимит и возвращает позицию для нового закрепления.
// Вызывается под WithStickyLock.
func (s *MediaService) nextStickyOrder(ctx context.Context, repo repository.MediaRepository) (int, error) {
	count, err := repo.CountSticky(ctx)
	if err != nil {
		return 0, err
	}
	if count >= s.maxSticky {
		return 0, fmt.Errorf("%w (%d)", ErrStickyLimit, s.maxSticky)
	}
	last, err := repo.MaxStickyOrder(ctx)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

func newPage(items []*model.MediaItem, limit int) *Page {
	p := &Page{Items: items}
	if len(items) > limit {
		p.Items = items[:limit]
		p.HasMore = true
		p.NextCursor = p.Items[limit-1].ID
	}
	if p.Items == nil {
		p.Items = []*model.MediaItem{}
	}
	return p
}

func normalizeLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

// typeFilter переводит параметр запроса (image, video, text) в тип записи.
func typeFilter(param string, allowed ...string) string {
	t := strings.ToUpper(param)
	for _, a := range allowed {
		if t == a {
			return t
		}
	}
	return ""
}

func checkCursor(cursor string) error {
	if cursor != "" && uuid.Validate(cursor) != nil {
		return ErrInvalidCursor
	}
	return nil
}

func mapCursorErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidCursor
	}
	return err
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	}
	return err
}

func displayName(requested string, user *model.User, fallback string) string {
	if requested != "" {
		return requested
	}
	return user.DisplayName(fallback)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
