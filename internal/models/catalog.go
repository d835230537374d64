package models

// Bank is a row of the banks table.
type Bank struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FinancingProduct is a row of the financing_types catalog. TaxMes is the
// monthly rate as a decimal fraction (0.015 == 1.5% a.m.).
type FinancingProduct struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	TaxMes    float64 `json:"tax_mes"`
	MaxAmount float64 `json:"max_amount"`
	Type      string  `json:"type"`
}

// TriggerRequest is the body of POST /api/processar, sent by the verifier to
// start (or decline) the conversational collection of financing_info.
type TriggerRequest struct {
	SourceID              int64          `json:"source_id,omitempty"`
	AgentAnalysis         *AgentAnalysis `json:"agent_analysis,omitempty"`
	TriggerRecommendation bool           `json:"trigger_recommendation"`
}

// SendMessageRequest is the body of POST /api/send_message.
type SendMessageRequest struct {
	ChatID   int64  `json:"chat_id,omitempty"`
	SourceID int64  `json:"source_id,omitempty"`
	Text     string `json:"text"`
}

// Chat returns whichever of chat_id / source_id is set.
func (r *SendMessageRequest) Chat() int64 {
	if r.ChatID != 0 {
		return r.ChatID
	}
	return r.SourceID
}
