package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dispatchly/ledger-api/internal/pkg/response"
)

// Recover turns a handler panic into a 500. Any open ledger transaction
// has already been rolled back by the time the panic reaches here.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				event := log.Error().
					Interface("error", err).
					Str("stack", string(debug.Stack())).
					Str("request_id", GetRequestID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path)
				withRoute(event, r)
				event.Msg("Panic recovered")

				response.InternalError(w)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// withRoute adds the matched route and the transaction reference, when
// the route carries one. The chi route context is shared with the
// sub-routers, so it is filled in by the time a handler panics.
func withRoute(event *zerolog.Event, r *http.Request) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		event.Str("route", pattern)
	}
	if ref := rctx.URLParam("reference"); ref != "" {
		event.Str("reference", ref)
	}
}
