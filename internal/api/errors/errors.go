// Пакет errors — ответы с ошибками в едином формате:
// {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeUnsupportedType    = "UNSUPPORTED_TYPE"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeStickyLimitReached = "STICKY_LIMIT_REACHED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// UnsupportedType — 400 тип файла вне списка разрешённых.
func UnsupportedType(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeUnsupportedType, message)
}

// PayloadTooLarge — 400 файл больше лимита.
func PayloadTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodePayloadTooLarge, message)
}

// StickyLimitReached — 400 нет свободных мест для закрепления.
func StickyLimitReached(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeStickyLimitReached, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// SessionExpired — 401 refresh token отклонён, нужен повторный вход.
func SessionExpired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeSessionExpired, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 конфликт (дублирующийся ресурс).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InternalError — 500 внутренняя ошибка. Детали не раскрываются.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
