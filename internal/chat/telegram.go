// Package chat is a stateless gateway over the Telegram Bot REST API. Send
// operations are fire-and-forget from the pipeline's perspective: transport
// errors are logged and swallowed. File retrieval fails loudly because a
// document the pipeline cannot read is a hard stop for its flow.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const (
	sendTimeout = 15 * time.Second
	fileTimeout = 60 * time.Second
)

// InlineButton is one inline keyboard button.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// InlineKeyboard is Telegram's reply_markup for inline keyboards.
type InlineKeyboard struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

// EmptyKeyboard clears an existing inline keyboard when sent as reply_markup.
func EmptyKeyboard() InlineKeyboard {
	return InlineKeyboard{InlineKeyboard: [][]InlineButton{}}
}

// Gateway wraps the bot API surface used by the ingress and notifier.
type Gateway struct {
	apiBase    string
	fileBase   string
	sendClient *http.Client
	fileClient *http.Client
	log        zerolog.Logger
}

// NewGateway builds a gateway for the given bot token.
func NewGateway(botToken string, log zerolog.Logger) *Gateway {
	return &Gateway{
		apiBase:    "https://api.telegram.org/bot" + botToken,
		fileBase:   "https://api.telegram.org/file/bot" + botToken,
		sendClient: &http.Client{Timeout: sendTimeout},
		fileClient: &http.Client{Timeout: fileTimeout},
		log:        log,
	}
}

// post sends a JSON body to a bot method and discards the response.
func (g *Gateway) post(ctx context.Context, method string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.sendClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: HTTP %d", method, resp.StatusCode)
	}
	return nil
}

// fireAndForget logs transport failures without surfacing them.
func (g *Gateway) fireAndForget(ctx context.Context, method string, body interface{}) {
	if err := g.post(ctx, method, body); err != nil {
		g.log.Warn().Err(err).Str("method", method).Msg("chat send failed")
	}
}

// SendText sends a plain text message to a chat.
func (g *Gateway) SendText(ctx context.Context, chatID int64, text string) {
	g.fireAndForget(ctx, "sendMessage", map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
}

// SendTextWithButtons sends a message with an inline keyboard.
func (g *Gateway) SendTextWithButtons(ctx context.Context, chatID int64, text string, keyboard InlineKeyboard) {
	g.fireAndForget(ctx, "sendMessage", map[string]interface{}{
		"chat_id":      chatID,
		"text":         text,
		"reply_markup": keyboard,
	})
}

// EditTextAndClearButtons rewrites a message's text and removes its keyboard.
func (g *Gateway) EditTextAndClearButtons(ctx context.Context, chatID, messageID int64, text string) {
	g.fireAndForget(ctx, "editMessageText", map[string]interface{}{
		"chat_id":      chatID,
		"message_id":   messageID,
		"text":         text,
		"reply_markup": EmptyKeyboard(),
	})
}

// ClearButtonsImmediately removes a keyboard without touching the text,
// closing the multi-click window before any slower work runs.
func (g *Gateway) ClearButtonsImmediately(ctx context.Context, chatID, messageID int64) {
	g.fireAndForget(ctx, "editMessageReplyMarkup", map[string]interface{}{
		"chat_id":      chatID,
		"message_id":   messageID,
		"reply_markup": EmptyKeyboard(),
	})
}

// AckCallback answers a callback query so the client stops its spinner.
func (g *Gateway) AckCallback(ctx context.Context, callbackID string) {
	g.fireAndForget(ctx, "answerCallbackQuery", map[string]interface{}{
		"callback_query_id": callbackID,
	})
}

// FetchFileBytes resolves a file_id to its path and downloads the bytes.
func (g *Gateway) FetchFileBytes(ctx context.Context, fileID string) ([]byte, error) {
	u := fmt.Sprintf("%s/getFile?file_id=%s", g.apiBase, url.QueryEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build getFile request: %w", err)
	}
	resp, err := g.sendClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getFile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getFile: HTTP %d", resp.StatusCode)
	}

	var meta struct {
		Result struct {
			FilePath string `json:"file_path"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode getFile response: %w", err)
	}
	if meta.Result.FilePath == "" {
		return nil, fmt.Errorf("getFile: empty file_path for %s", fileID)
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.fileBase+"/"+meta.Result.FilePath, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	dlResp, err := g.fileClient.Do(dlReq)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: HTTP %d", dlResp.StatusCode)
	}
	return io.ReadAll(dlResp.Body)
}

// SetBaseURLs overrides the API endpoints; used by tests against httptest
// servers.
func (g *Gateway) SetBaseURLs(apiBase, fileBase string) {
	g.apiBase = apiBase
	g.fileBase = fileBase
}
