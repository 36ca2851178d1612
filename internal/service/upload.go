// upload.go — выдача presigned URL для прямой загрузки в S3 и скачивания.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MTL667/denbeyers/internal/domain/model"
	"github.com/MTL667/denbeyers/internal/storage"
)

// Разрешённые типы содержимого (сравнение без учёта регистра).
var allowedContentTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
	"image/webp":      {},
	"video/mp4":       {},
	"video/quicktime": {},
	"video/mov":       {},
}

// ObjectStore — операции с объектным хранилищем, нужные сервисам.
type ObjectStore interface {
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// UploadScope — пространство ключей, в которое выдаётся загрузка.
type UploadScope int

const (
	// UploadScopeUser — загрузка гостя: uploads/{kind}s/{userID}/...
	UploadScopeUser UploadScope = iota
	// UploadScopeOwner — загрузка владельца: uploads/{kind}s/owner-{userID}/...
	UploadScopeOwner
)

// Segment возвращает сегмент ключа пользователя для области.
func (s UploadScope) Segment(userID string) string {
	if s == UploadScopeOwner {
		return storage.OwnerSegment(userID)
	}
	return storage.UserSegment(userID)
}

// PresignRequest — запрос на загрузку.
type PresignRequest struct {
	Filename    string `json:"filename" validate:"required,min=1,max=255"`
	ContentType string `json:"contentType" validate:"required"`
	Size        int64  `json:"size" validate:"gt=0"`
}

// PresignResult — выданный URL загрузки.
type PresignResult struct {
	UploadURL string
	S3Key     string
	// Type — IMAGE или VIDEO
	Type string
	// ExpiresIn — срок действия URL в секундах
	ExpiresIn int
}

// UploadService — брокер presigned URL.
type UploadService struct {
	store    ObjectStore
	validate *validator.Validate
	maxBytes int64
	expiry   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewUploadService создаёт брокер загрузок.
// maxBytes — максимальный размер файла, expiry — срок действия URL.
func NewUploadService(store ObjectStore, maxBytes int64, expiry time.Duration, logger *slog.Logger) *UploadService {
	return &UploadService{
		store:    store,
		validate: newValidator(),
		maxBytes: maxBytes,
		expiry:   expiry,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "upload_service")),
	}
}

// PresignUpload проверяет запрос и выдаёт URL для PUT в ключ,
// принадлежащий пользователю в указанной области.
func (s *UploadService) PresignUpload(
	ctx context.Context,
	user *model.User,
	req PresignRequest,
	scope UploadScope,
) (*PresignResult, error) {
	// 1. Структурная валидация
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	// 2. Тип и размер
	contentType := strings.ToLower(req.ContentType)
	if _, ok := allowedContentTypes[contentType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, req.ContentType)
	}
	if req.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: максимум %d МБ", ErrPayloadTooLarge, s.maxBytes/(1024*1024))
	}

	kind, mediaType := storage.KindImage, model.MediaTypeImage
	if strings.HasPrefix(contentType, "video/") {
		kind, mediaType = storage.KindVideo, model.MediaTypeVideo
	}

	// 3. Ключ и подпись
	key := storage.BuildKey(kind, scope.Segment(user.ID), req.Filename, s.now())
	url, err := s.store.PresignPut(ctx, key, req.ContentType, s.expiry)
	if err != nil {
		return nil, fmt.Errorf("ошибка выдачи URL загрузки: %w", err)
	}

	s.logger.Debug("Выдан URL загрузки",
		slog.String("user_id", user.ID),
		slog.String("key", key),
		slog.Int64("size", req.Size),
	)

	return &PresignResult{
		UploadURL: url,
		S3Key:     key,
		Type:      mediaType,
		ExpiresIn: int(s.expiry.Seconds()),
	}, nil
}

// CheckObject проверяет метаданные загруженного объекта перед созданием
// записи: тип содержимого, размер и принадлежность ключа пользователю.
// Вид объекта в ключе должен совпадать с mediaType.
func (s *UploadService) CheckObject(user *model.User, key, mediaType, contentType string, size int64, scope UploadScope) error {
	if _, ok := allowedContentTypes[strings.ToLower(contentType)]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if size > s.maxBytes {
		return fmt.Errorf("%w: максимум %d МБ", ErrPayloadTooLarge, s.maxBytes/(1024*1024))
	}
	if !storage.KeyOwnedBy(key, scope.Segment(user.ID)) {
		return ErrKeyNotOwned
	}
	kp, _ := storage.ParseKey(key)
	if !strings.EqualFold(kp.Kind, mediaType) {
		return fmt.Errorf("%w: ключ не соответствует типу %s", ErrValidation, mediaType)
	}
	return nil
}

// PresignDownload выдаёт URL для скачивания объекта.
func (s *UploadService) PresignDownload(ctx context.Context, key string) (string, error) {
	url, err := s.store.PresignGet(ctx, key, s.expiry)
	if err != nil {
		return "", fmt.Errorf("ошибка выдачи URL скачивания: %w", err)
	}
	return url, nil
}

// newValidator создаёт валидатор, сообщающий JSON-имена полей.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError переводит ошибки validator в ErrValidation с перечнем полей.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
}
