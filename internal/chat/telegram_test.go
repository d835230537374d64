package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gateway := NewGateway("test-token", zerolog.Nop())
	gateway.SetBaseURLs(server.URL, server.URL+"/file")
	return gateway, server
}

func TestSendTextPostsSendMessage(t *testing.T) {
	var mu sync.Mutex
	var path string
	var body map[string]interface{}

	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"ok":true}`))
	})

	gateway.SendText(context.Background(), 42, "olá")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/sendMessage", path)
	assert.Equal(t, float64(42), body["chat_id"])
	assert.Equal(t, "olá", body["text"])
}

func TestSendSwallowsTransportErrors(t *testing.T) {
	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	// Must not panic or surface anything.
	gateway.SendText(context.Background(), 42, "olá")
	gateway.AckCallback(context.Background(), "cb-1")
	gateway.ClearButtonsImmediately(context.Background(), 42, 7)
}

func TestEditTextClearsKeyboard(t *testing.T) {
	var body map[string]interface{}
	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"ok":true}`))
	})

	gateway.EditTextAndClearButtons(context.Background(), 42, 7, "feito")

	markup, ok := body["reply_markup"].(map[string]interface{})
	require.True(t, ok)
	keyboard, ok := markup["inline_keyboard"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, keyboard)
}

func TestFetchFileBytesRoundTrip(t *testing.T) {
	content := []byte{0x25, 0x50, 0x44, 0x46}
	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/getFile":
			assert.Equal(t, "abc123", r.URL.Query().Get("file_id"))
			fmt.Fprint(w, `{"ok":true,"result":{"file_path":"documents/doc.pdf"}}`)
		case "/file/documents/doc.pdf":
			w.Write(content)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	got, err := gateway.FetchFileBytes(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestFetchFileBytesFailsLoudly(t *testing.T) {
	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := gateway.FetchFileBytes(context.Background(), "missing")
	assert.Error(t, err)
}

func TestFetchFileBytesRejectsEmptyPath(t *testing.T) {
	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	})

	_, err := gateway.FetchFileBytes(context.Background(), "abc123")
	assert.Error(t, err)
}

func TestUpdateDecoding(t *testing.T) {
	raw := `{
		"message": {
			"message_id": 10,
			"from": {"id": 42},
			"chat": {"id": 42},
			"photo": [{"file_id": "small"}, {"file_id": "big"}]
		}
	}`
	var update Update
	require.NoError(t, json.Unmarshal([]byte(raw), &update))
	require.NotNil(t, update.Message)
	assert.Equal(t, int64(42), update.Message.Chat.ID)
	require.Len(t, update.Message.Photo, 2)
	assert.Equal(t, "big", update.Message.Photo[1].FileID)
	assert.Nil(t, update.CallbackQuery)
}
