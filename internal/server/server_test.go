package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"pong":true}`))
	})
}

func TestServer_HealthIsOpen(t *testing.T) {
	s := New(Config{Log: zerolog.Nop(), Port: 0, APIKey: "secret"})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_APIKeyGuard(t *testing.T) {
	s := New(Config{Log: zerolog.Nop(), Port: 0, APIKey: "secret", Handlers: []RouteRegistrar{pingRegistrar{}}})

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{name: "missing key", want: http.StatusUnauthorized},
		{name: "wrong key", header: "X-API-Key", value: "guess", want: http.StatusUnauthorized},
		{name: "header key", header: "X-API-Key", value: "secret", want: http.StatusOK},
		{name: "bearer token", header: "Authorization", value: "Bearer secret", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestServer_NoKeyLeavesAPIOpen(t *testing.T) {
	s := New(Config{Log: zerolog.Nop(), Port: 0, Handlers: []RouteRegistrar{pingRegistrar{}}})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
