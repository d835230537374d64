package match

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/llm"
	"github.com/boletoflow/boletoflow/internal/models"
	"github.com/boletoflow/boletoflow/internal/store"
)

const bankMatchSystemPrompt = "You are a banking system assistant. Your job is to match company names to existing banks. " +
	"Return ONLY a valid JSON object with the bank ID. No markdown, no explanations."

// Generator is the LLM call used for bank matching.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Offers maintains the bank_financing_offers rows the verifier scaffolded.
type Offers struct {
	db  Store
	llm Generator
	log zerolog.Logger
}

// NewOffers builds the offer bookkeeper.
func NewOffers(db Store, generator Generator, log zerolog.Logger) *Offers {
	return &Offers{db: db, llm: generator, log: log}
}

// Record fills the scaffold row with the match outcome. Best effort: every
// failure logs and returns, the published decision stands.
func (o *Offers) Record(ctx context.Context, envelope *models.EnrichedEnvelope, ratePercent float64, product *models.FinancingProduct, remaining, savings float64) {
	company := ""
	if envelope.AgentAnalysis.Company != nil {
		company = *envelope.AgentAnalysis.Company
	}
	if company == "" {
		o.log.Warn().Msg("no company in analysis, skipping offer update")
		return
	}
	userID := envelope.UserData.UserMetadata.ID
	if userID == 0 {
		o.log.Warn().Msg("no user id in user_data, skipping offer update")
		return
	}

	bankID, err := o.resolveBank(ctx, company)
	if err != nil {
		o.log.Warn().Err(err).Str("company", company).Msg("bank resolution failed, skipping offer update")
		return
	}

	totalValue := envelope.FinancingInfo.Value
	installments := *envelope.AgentAnalysis.InstallmentCount
	totalWithInterest := totalValue * (1 + (ratePercent/100)*float64(installments))
	rateFraction := ratePercent / 100

	offered := product != nil
	var offeredRate *float64
	var offerID *string
	var financed, saved *float64
	if offered {
		r := product.TaxMes
		offeredRate = &r
		id := strconv.FormatInt(product.ID, 10)
		offerID = &id
		financed = &remaining
		saved = &savings

		dup, err := o.hasDuplicate(ctx, bankID, userID, totalValue, rateFraction, installments, r)
		if err != nil {
			o.log.Warn().Err(err).Msg("duplicate check failed, skipping offer update")
			return
		}
		if dup {
			o.log.Info().Int64("bank_id", bankID).Int64("user_id", userID).Msg("identical offered row exists, not writing")
			return
		}
	}

	row, err := o.db.FetchOne(ctx, `
		SELECT id, offered FROM bank_financing_offers
		WHERE bank_id = $1 AND user_id = $2 AND installments_count = $3
		ORDER BY created_at DESC
		LIMIT 1`,
		bankID, userID, installments)
	if err != nil {
		o.log.Warn().Err(err).Msg("offer lookup failed")
		return
	}
	if row == nil {
		o.log.Warn().Int64("bank_id", bankID).Int64("user_id", userID).Msg("no scaffold offer row to update")
		return
	}
	recordID := store.Int64Value(row["id"])

	_, err = o.db.Execute(ctx, `
		UPDATE bank_financing_offers
		SET asset_value = $1,
		    monthly_interest_rate = $2,
		    total_value_with_interest = $3,
		    type = $4,
		    offered = $5,
		    offered_interest_rate = $6,
		    offer_id = $7,
		    financed_amount = $8,
		    savings_amount = $9
		WHERE id = $10`,
		totalValue, rateFraction, totalWithInterest, envelope.FinancingInfo.Type,
		offered, offeredRate, offerID, financed, saved, recordID)
	if err != nil {
		o.log.Error().Err(err).Int64("offer_row_id", recordID).Msg("offer update failed")
		return
	}
	o.log.Info().Int64("offer_row_id", recordID).Bool("offered", offered).Msg("offer row updated")
}

// hasDuplicate applies the write-once rule for offered rows: an offered=true
// row with the identical key tuple blocks any further write.
func (o *Offers) hasDuplicate(ctx context.Context, bankID, userID int64, assetValue, rateFraction float64, installments int, offeredRate float64) (bool, error) {
	row, err := o.db.FetchOne(ctx, `
		SELECT id FROM bank_financing_offers
		WHERE bank_id = $1
		  AND user_id = $2
		  AND asset_value = $3
		  AND monthly_interest_rate = $4
		  AND installments_count = $5
		  AND offered = TRUE
		  AND offered_interest_rate = $6
		LIMIT 1`,
		bankID, userID, assetValue, rateFraction, installments, offeredRate)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// resolveBank matches the company name against the banks table via the LLM.
// Unlike the verifier, no new bank is inserted here; an unmatched company
// means the scaffold row cannot exist either.
func (o *Offers) resolveBank(ctx context.Context, company string) (int64, error) {
	rows, err := o.db.FetchAll(ctx, "SELECT id, name FROM banks ORDER BY name")
	if err != nil {
		return 0, fmt.Errorf("list banks: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("no banks in database")
	}

	var list strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&list, "- %s (ID: %d)\n", store.StringValue(row["name"]), store.Int64Value(row["id"]))
	}

	prompt := fmt.Sprintf(`Company name from analysis: %q

Available banks in our database:
%s
Which bank ID matches this company? Return ONLY JSON format:
{"id": 123}`, company, list.String())

	response, err := o.llm.Generate(ctx, prompt, bankMatchSystemPrompt)
	if err != nil {
		return 0, fmt.Errorf("bank match llm: %w", err)
	}
	parsed := llm.ExtractFirstJSON(response)
	if parsed == nil {
		return 0, fmt.Errorf("bank match returned no JSON: %q", response)
	}
	id, ok := parsed["id"].(float64)
	if !ok || id <= 0 {
		return 0, fmt.Errorf("no bank matched %q", company)
	}
	return int64(id), nil
}
