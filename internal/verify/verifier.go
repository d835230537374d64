// Package verify cross-checks interpreted documents against the transactional
// datastore and, on a hit, starts the conversational collection of financing
// details through the ingress trigger endpoint.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/models"
	"github.com/boletoflow/boletoflow/internal/store"
)

// MinInstallmentAmount is the business threshold below which documents are
// not worth a recommendation.
const MinInstallmentAmount = 300.0

// Store is the datastore surface the verifier uses.
type Store interface {
	Execute(ctx context.Context, sql string, args ...interface{}) (int64, error)
	FetchAll(ctx context.Context, sql string, args ...interface{}) ([]store.Row, error)
	FetchVal(ctx context.Context, sql string, args ...interface{}) (interface{}, error)
}

// Trigger posts the recommendation decision to the ingress.
type Trigger interface {
	SendRecommendation(ctx context.Context, recommend bool, sourceID int64, analysis *models.AgentAnalysis) error
}

// Verifier consumes interpreted envelopes.
type Verifier struct {
	db      Store
	trigger Trigger
	banks   *BankResolver
	now     func() time.Time
	log     zerolog.Logger
}

// New builds a verifier.
func New(db Store, trigger Trigger, banks *BankResolver, log zerolog.Logger) *Verifier {
	return &Verifier{db: db, trigger: trigger, banks: banks, now: time.Now, log: log}
}

// Handle processes one interpreted envelope. Schema violations and unknown
// users drop; sub-threshold amounts and missing transactions post a negative
// recommendation.
func (v *Verifier) Handle(ctx context.Context, envelope *models.InterpretedEnvelope) error {
	if envelope.SourceID <= 0 || envelope.Timestamp <= 0 {
		return fmt.Errorf("invalid envelope header: source_id=%d timestamp=%d", envelope.SourceID, envelope.Timestamp)
	}
	analysis := &envelope.AgentAnalysis
	if err := analysis.Complete(); err != nil {
		return fmt.Errorf("incomplete analysis for source %d: %w", envelope.SourceID, err)
	}

	if *analysis.InstallmentAmount <= MinInstallmentAmount {
		v.log.Info().Int64("source_id", envelope.SourceID).Float64("amount", *analysis.InstallmentAmount).
			Msg("installment amount below threshold")
		v.sendRecommendation(ctx, false, 0, nil)
		return nil
	}

	userID, err := v.userIDFromSource(ctx, envelope.SourceID)
	if err != nil {
		return err
	}
	if userID == 0 {
		return fmt.Errorf("no user for source_id %d", envelope.SourceID)
	}

	matched, err := v.hasMatchingTransaction(ctx, userID, *analysis.InstallmentAmount)
	if err != nil {
		return err
	}
	if !matched {
		v.log.Info().Int64("source_id", envelope.SourceID).Int64("user_id", userID).Msg("no matching boleto transaction")
		v.sendRecommendation(ctx, false, 0, nil)
		return nil
	}

	v.sendRecommendation(ctx, true, envelope.SourceID, analysis)
	v.log.Info().Int64("source_id", envelope.SourceID).Int64("user_id", userID).Msg("recommendation triggered")

	if err := v.recordScaffoldOffer(ctx, analysis, userID); err != nil {
		// The trigger already went out; the scaffold row is best effort.
		v.log.Error().Err(err).Int64("user_id", userID).Msg("scaffold offer failed")
	}
	return nil
}

func (v *Verifier) sendRecommendation(ctx context.Context, recommend bool, sourceID int64, analysis *models.AgentAnalysis) {
	if err := v.trigger.SendRecommendation(ctx, recommend, sourceID, analysis); err != nil {
		v.log.Warn().Err(err).Bool("recommend", recommend).Msg("recommendation post failed")
	}
}

func (v *Verifier) userIDFromSource(ctx context.Context, sourceID int64) (int64, error) {
	val, err := v.db.FetchVal(ctx, "SELECT user_id FROM user_source WHERE source_id = $1", sourceID)
	if err != nil {
		return 0, fmt.Errorf("resolve user for source %d: %w", sourceID, err)
	}
	return store.Int64Value(val), nil
}

func (v *Verifier) hasMatchingTransaction(ctx context.Context, userID int64, amount float64) (bool, error) {
	val, err := v.db.FetchVal(ctx, `
		SELECT COUNT(*)
		FROM transactions
		WHERE user_id = $1
		  AND ABS(amount - $2) < 0.01
		  AND transaction_type = 'boleto'`,
		userID, amount)
	if err != nil {
		return false, fmt.Errorf("check transactions for user %d: %w", userID, err)
	}
	return store.Int64Value(val) > 0, nil
}

// recordScaffoldOffer inserts the zero-valued offer row the matcher later
// fills in. Month and year point at the financing start, derived by walking
// back current_installment_number - 1 months from now.
func (v *Verifier) recordScaffoldOffer(ctx context.Context, analysis *models.AgentAnalysis, userID int64) error {
	bankID, err := v.banks.Resolve(ctx, *analysis.Company)
	if err != nil {
		return fmt.Errorf("resolve bank %q: %w", *analysis.Company, err)
	}

	start := v.now().AddDate(0, -(*analysis.CurrentInstallmentNumber - 1), 0)
	month, year := int(start.Month()), start.Year()
	installments := *analysis.InstallmentCount

	existing, err := v.db.FetchVal(ctx, `
		SELECT id FROM bank_financing_offers
		WHERE bank_id = $1 AND user_id = $2 AND month = $3 AND year = $4 AND installments_count = $5
		LIMIT 1`,
		bankID, userID, month, year, installments)
	if err != nil {
		return fmt.Errorf("check existing offer: %w", err)
	}
	if existing != nil {
		v.log.Info().Int64("offer_id", store.Int64Value(existing)).Msg("scaffold offer already exists")
		return nil
	}

	_, err = v.db.Execute(ctx, `
		INSERT INTO bank_financing_offers
			(bank_id, user_id, month, year,
			 asset_value, monthly_interest_rate, total_value_with_interest,
			 installments_count, type)
		VALUES ($1, $2, $3, $4, 0, 0, 0, $5, 'UNKNOWN')`,
		bankID, userID, month, year, installments)
	if err != nil {
		return fmt.Errorf("insert scaffold offer: %w", err)
	}
	v.log.Info().Int64("bank_id", bankID).Int64("user_id", userID).Int("month", month).Int("year", year).
		Msg("scaffold offer inserted")
	return nil
}
