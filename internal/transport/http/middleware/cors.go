package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows browser clients on any origin to call the API with a bearer
// token.
func CORS(h http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}).Handler(h)
}
