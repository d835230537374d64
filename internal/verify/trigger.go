package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boletoflow/boletoflow/internal/models"
)

// APIClient posts recommendation decisions to the ingress trigger endpoint.
type APIClient struct {
	url    string
	client *http.Client
}

// NewAPIClient targets the full trigger URL (POST_URL).
func NewAPIClient(url string) *APIClient {
	return &APIClient{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendRecommendation posts the decision. Negative decisions carry no source
// or analysis.
func (c *APIClient) SendRecommendation(ctx context.Context, recommend bool, sourceID int64, analysis *models.AgentAnalysis) error {
	payload := models.TriggerRequest{TriggerRecommendation: recommend}
	if recommend {
		payload.SourceID = sourceID
		payload.AgentAnalysis = analysis
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal trigger payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post trigger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("trigger endpoint returned %d", resp.StatusCode)
	}
	return nil
}
