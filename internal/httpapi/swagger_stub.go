//go:build noswagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
)

// MountSwagger is a no-op when built with -tags=noswagger.
func MountSwagger(r chi.Router) {}
