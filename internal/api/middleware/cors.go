// cors.go — CORS для фронтенда на другом origin.
package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS возвращает CORS middleware для указанных origin'ов.
// Пустой список — CORS-заголовки не выставляются (фронтенд на том же origin).
// Credentials разрешены: сессия передаётся в cookie.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
