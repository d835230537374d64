// Package notify delivers composed messages back to the originating chat
// through the ingress send endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/models"
)

// Notifier POSTs composed envelopes to API_URL/api/send_message.
type Notifier struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// New targets the ingress base URL.
func New(apiURL string, log zerolog.Logger) *Notifier {
	return &Notifier{
		endpoint: strings.TrimRight(apiURL, "/") + "/api/send_message",
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Handle delivers one composed envelope. Non-2xx responses log and drop; the
// bus is not a retry substrate for chat delivery.
func (n *Notifier) Handle(ctx context.Context, envelope *models.ComposedEnvelope) error {
	if err := envelope.Validate(); err != nil {
		return fmt.Errorf("invalid composed envelope: %w", err)
	}

	payload := models.SendMessageRequest{
		SourceID: envelope.SourceID,
		Text:     envelope.OfferMessage,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal send payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post message for source %d: %w", envelope.SourceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.log.Warn().Int("status", resp.StatusCode).Int64("source_id", envelope.SourceID).
			Msg("send endpoint returned non-2xx")
		return nil
	}
	n.log.Info().Int64("source_id", envelope.SourceID).Msg("message delivered")
	return nil
}
