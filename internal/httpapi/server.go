package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imgload/internal/handle"
	"imgload/internal/loader"
	"imgload/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *loader.Loader satisfies it.
type Service interface {
	Register(ctx context.Context, img loader.Image) error
	GetState(imageID string) loader.State
	GetHandle(url string) (handle.Handle, bool)
	Cancel(imageID string)
	MarkLeftViewport(imageID string)
	ForceImmediate(imageID string) error
	UpdateScale(scale float64) error
	Scale() float64
	SourceType() loader.SourceType
	ReleaseUnused() int
	MemoryEstimate() int64
	AddChangeListener(imageID string, fn loader.Listener) func()
	Clear()
	Status() types.StatusResponse
}

func NewMux(svc Service) http.Handler {
	started := time.Now()
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(accessLog)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5, "application/json"))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/images", func(r chi.Router) {
		r.Post("/", registerHandler(svc))
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			writeJSON(w, http.StatusOK, types.ImageState{ID: id, State: string(svc.GetState(id))})
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			svc.Cancel(chi.URLParam(r, "id"))
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/{id}/leave", func(w http.ResponseWriter, r *http.Request) {
			svc.MarkLeftViewport(chi.URLParam(r, "id"))
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/{id}/full", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if err := svc.ForceImmediate(id); err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusAccepted, types.ImageState{ID: id, State: string(svc.GetState(id))})
		})
		r.Get("/{id}/events", eventsHandler(svc))
	})

	r.Post("/scale", func(w http.ResponseWriter, r *http.Request) {
		var req types.ScaleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := svc.UpdateScale(req.Scale); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, types.ScaleResponse{
			Requested: req.Scale,
			Scale:     svc.Scale(),
			Source:    string(svc.SourceType()),
		})
	})

	r.Get("/blob", func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			writeJSONError(w, http.StatusBadRequest, "url query parameter is required")
			return
		}
		h, ok := svc.GetHandle(url)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "not cached: "+url)
			return
		}
		b, ok := h.(*handle.Blob)
		if !ok {
			writeJSONError(w, http.StatusNotImplemented, "handle is not servable")
			return
		}
		data := b.Bytes()
		if data == nil {
			writeJSONError(w, http.StatusGone, "handle released")
			return
		}
		if ct := b.ContentType(); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.Header().Set("X-Blob-URL", b.URL())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		st := svc.Status()
		st.UptimeSeconds = int64(time.Since(started).Seconds())
		writeJSON(w, http.StatusOK, st)
	})

	r.Post("/maintenance/release", func(w http.ResponseWriter, r *http.Request) {
		n := svc.ReleaseUnused()
		writeJSON(w, http.StatusOK, types.ReleaseResponse{Downgraded: n, MemoryEstimateBytes: svc.MemoryEstimate()})
	})

	r.Post("/clear", func(w http.ResponseWriter, r *http.Request) {
		svc.Clear()
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func registerHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.RegisterRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.PrimaryURL) == "" {
			writeJSONError(w, http.StatusBadRequest, "id and primary_url are required")
			return
		}
		prio, err := loader.ParsePriority(req.Priority)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		img := loader.Image{
			ID:           req.ID,
			PrimaryURL:   req.PrimaryURL,
			ThumbnailURL: req.ThumbnailURL,
			Priority:     prio,
			Scale:        req.Scale,
			SizeHint:     req.SizeHint,
		}
		if err := svc.Register(r.Context(), img); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, types.ImageState{ID: req.ID, State: string(svc.GetState(req.ID))})
	}
}

// decodeJSON enforces the content type and body limit, then decodes into v.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
