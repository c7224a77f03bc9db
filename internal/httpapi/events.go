package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"imgload/internal/loader"
	"imgload/pkg/types"
)

// streamBaseCtx ends every open event stream when it is canceled.
var streamBaseCtx = context.Background()

// SetBaseContext ties long-lived event streams to ctx, usually the daemon's
// shutdown context. A nil ctx detaches them again.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	streamBaseCtx = ctx
}

// stateStream buffers transitions delivered by the loader so the listener
// never blocks the loader's notifier.
type stateStream struct {
	mu     sync.Mutex
	states []loader.State
	signal chan struct{}
}

func newStateStream() *stateStream {
	return &stateStream{signal: make(chan struct{}, 1)}
}

func (s *stateStream) push(st loader.State) {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *stateStream) take() []loader.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.states
	s.states = nil
	return out
}

// eventsHandler streams state changes of one image as server-sent events.
// The current state is sent first; the subscription ends with the request.
func eventsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSONError(w, http.StatusNotImplemented, "streaming unsupported")
			return
		}
		stream := newStateStream()
		unsubscribe := svc.AddChangeListener(id, func(_ string, st loader.State) { stream.push(st) })
		defer unsubscribe()
		sseSubscribers.Inc()
		defer sseSubscribers.Dec()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		stop := context.AfterFunc(streamBaseCtx, cancel)
		defer stop()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if err := writeStateEvent(w, id, svc.GetState(id)); err != nil {
			return
		}
		flusher.Flush()

		var keepAlive <-chan time.Time
		if sseKeepAliveSeconds > 0 {
			tk := time.NewTicker(time.Duration(sseKeepAliveSeconds) * time.Second)
			defer tk.Stop()
			keepAlive = tk.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case <-stream.signal:
				for _, st := range stream.take() {
					if err := writeStateEvent(w, id, st); err != nil {
						return
					}
				}
				flusher.Flush()
			}
		}
	}
}

func writeStateEvent(w http.ResponseWriter, id string, st loader.State) error {
	b, err := json.Marshal(types.ImageState{ID: id, State: string(st)})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: state\ndata: %s\n\n", b)
	return err
}
