// Пакет handlers — HTTP-обработчики гостевой книги.
// Обработчики разбирают запрос, вызывают сервисный слой и переводят
// доменные ошибки в единый формат ответа.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	apierrors "github.com/MTL667/denbeyers/internal/api/errors"
	"github.com/MTL667/denbeyers/internal/service"
)

// maxBodyBytes — предел тела JSON-запроса.
const maxBodyBytes = 64 * 1024

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst. Неизвестные поля игнорируются.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", service.ErrValidation)
	}
	return nil
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// Неизвестные ошибки логируются и возвращаются как 500 без подробностей.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrConsentRequired):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrInvalidCursor):
		apierrors.ValidationError(w, "Invalid cursor")
	case errors.Is(err, service.ErrUnsupportedType):
		apierrors.UnsupportedType(w, err.Error())
	case errors.Is(err, service.ErrPayloadTooLarge):
		apierrors.PayloadTooLarge(w, err.Error())
	case errors.Is(err, service.ErrStickyLimit):
		apierrors.StickyLimitReached(w, err.Error())
	case errors.Is(err, service.ErrKeyNotOwned):
		apierrors.Forbidden(w, "Invalid S3 key")
	case errors.Is(err, service.ErrNotAccessible):
		apierrors.Forbidden(w, "Media not accessible")
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Media not found")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, "S3 key already used")
	default:
		logger.Error("Ошибка обработки запроса",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Internal server error")
	}
}
