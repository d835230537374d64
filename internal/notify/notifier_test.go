package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boletoflow/boletoflow/internal/models"
)

func TestHandlePostsToSendEndpoint(t *testing.T) {
	var got models.SendMessageRequest
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := New(server.URL+"/", zerolog.Nop())
	envelope := &models.ComposedEnvelope{SourceID: 42, OfferMessage: "Olá!", Timestamp: 1}

	require.NoError(t, notifier.Handle(context.Background(), envelope))
	assert.Equal(t, "/api/send_message", path)
	assert.Equal(t, int64(42), got.SourceID)
	assert.Equal(t, "Olá!", got.Text)
}

func TestNon2xxLogsAndDrops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := New(server.URL, zerolog.Nop())
	envelope := &models.ComposedEnvelope{SourceID: 42, OfferMessage: "Olá!", Timestamp: 1}

	// No retry semantics: the handler treats delivery failure as done.
	assert.NoError(t, notifier.Handle(context.Background(), envelope))
}

func TestInvalidEnvelopeRejected(t *testing.T) {
	notifier := New("http://localhost:0", zerolog.Nop())
	assert.Error(t, notifier.Handle(context.Background(), &models.ComposedEnvelope{SourceID: 42}))
	assert.Error(t, notifier.Handle(context.Background(), &models.ComposedEnvelope{OfferMessage: "x"}))
}
