package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter, msg string)
		wantStatus int
		wantCode   string
	}{
		{"validation", ValidationError, http.StatusBadRequest, CodeValidationError},
		{"unsupported type", UnsupportedType, http.StatusBadRequest, CodeUnsupportedType},
		{"payload too large", PayloadTooLarge, http.StatusBadRequest, CodePayloadTooLarge},
		{"sticky limit", StickyLimitReached, http.StatusBadRequest, CodeStickyLimitReached},
		{"not found", NotFound, http.StatusNotFound, CodeNotFound},
		{"unauthorized", Unauthorized, http.StatusUnauthorized, CodeUnauthorized},
		{"session expired", SessionExpired, http.StatusUnauthorized, CodeSessionExpired},
		{"forbidden", Forbidden, http.StatusForbidden, CodeForbidden},
		{"conflict", Conflict, http.StatusConflict, CodeConflict},
		{"internal", InternalError, http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec, "сообщение")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var body errorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tt.wantCode || body.Error.Message != "сообщение" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}
