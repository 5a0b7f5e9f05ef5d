package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func testServer() *Server {
	return NewServer(nil, nil, nil, zerolog.Nop())
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.03, round(0.025000000001, 2))
	assert.Equal(t, 1.5, round(1.5, 4))
	assert.Equal(t, 0.0, round(0, 2))
	assert.Equal(t, -2.57, round(-2.5678, 2))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 200))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, "", truncate("", 10))
}

func TestStartCrawlRejectsBadInput(t *testing.T) {
	server := testServer()
	routes := server.Routes()

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/start-crawl", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty address list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/start-crawl", strings.NewReader(`{"addresses":[]}`))
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid address", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/start-crawl", strings.NewReader(`{"addresses":["not-a-real-address"]}`))
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid address")
	})

	t.Run("wrong method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/start-crawl", nil)
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestPathIDRejectsGarbage(t *testing.T) {
	server := testServer()

	req := httptest.NewRequest(http.MethodGet, "/api/export/abc", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()

	_, ok := server.pathID(rec, req)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
