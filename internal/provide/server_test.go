package provide

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boletoflow/boletoflow/internal/store"
)

type fakeStore struct {
	rows    []store.Row
	err     error
	healthy bool
}

func (s *fakeStore) FetchAll(ctx context.Context, sql string, args ...interface{}) ([]store.Row, error) {
	return s.rows, s.err
}

func (s *fakeStore) Healthcheck(ctx context.Context) bool {
	return s.healthy
}

func TestOffersReturnsJoinedRows(t *testing.T) {
	db := &fakeStore{rows: []store.Row{
		{"id": int64(1), "bank_name": "Banco Votorantim", "offered": true},
		{"id": int64(2), "bank_name": "BV Financeira", "offered": false},
	}}
	server := NewServer(":0", db, zerolog.Nop())

	for _, path := range []string{"/api/offers", "/offers"} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusOK, rec.Code, path)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, float64(2), body["count"])
	}
}

func TestOffersEmptyListNotNull(t *testing.T) {
	server := NewServer(":0", &fakeStore{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/offers", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	offers, ok := body["offers"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, offers)
}

func TestOffersQueryFailureReturns500(t *testing.T) {
	server := NewServer(":0", &fakeStore{err: errors.New("boom")}, zerolog.Nop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/offers", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthReflectsDatabase(t *testing.T) {
	server := NewServer(":0", &fakeStore{healthy: true}, zerolog.Nop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "connected", body["database"])

	server = NewServer(":0", &fakeStore{healthy: false}, zerolog.Nop())
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
}
