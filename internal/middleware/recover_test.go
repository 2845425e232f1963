package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestRecoverLogsTransactionReference(t *testing.T) {
	logs := captureLogs(t)

	r := chi.NewRouter()
	r.Use(RequestID, Recover)
	r.Route("/withdrawals", func(r chi.Router) {
		r.Post("/{reference}/otp", func(w http.ResponseWriter, r *http.Request) {
			panic("settle exploded")
		})
	})

	req := httptest.NewRequest(http.MethodPost, "/withdrawals/WDR-42/otp", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	out := logs.String()
	assert.Contains(t, out, `"reference":"WDR-42"`)
	assert.Contains(t, out, `"route":"/withdrawals/{reference}/otp"`)
	assert.Contains(t, out, "settle exploded")
}

func TestRecoverWithoutRouter(t *testing.T) {
	logs := captureLogs(t)

	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallet", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, logs.String(), `"path":"/wallet"`)
	assert.NotContains(t, logs.String(), `"reference"`)
}

func TestRecoverPassesThrough(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
}
