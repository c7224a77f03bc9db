//go:build !noswagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	// Registers the OpenAPI document with swag.
	_ "imgload/internal/httpapi/docs"
)

// MountSwagger serves the Swagger UI and doc.json under /swagger/.
// Build with -tags=noswagger to leave it out.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
