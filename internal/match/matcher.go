package match

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/models"
	"github.com/boletoflow/boletoflow/internal/store"
)

// Store is the datastore surface the matcher uses.
type Store interface {
	Execute(ctx context.Context, sql string, args ...interface{}) (int64, error)
	FetchOne(ctx context.Context, sql string, args ...interface{}) (store.Row, error)
	FetchAll(ctx context.Context, sql string, args ...interface{}) ([]store.Row, error)
}

// Publisher publishes envelopes to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, sourceID int64, payload interface{}) error
}

// Matcher consumes enriched envelopes and publishes match decisions.
type Matcher struct {
	db     Store
	bus    Publisher
	offers *Offers
	out    string
	log    zerolog.Logger
}

// New builds a matcher.
func New(db Store, bus Publisher, offers *Offers, outputTopic string, log zerolog.Logger) *Matcher {
	return &Matcher{db: db, bus: bus, offers: offers, out: outputTopic, log: log}
}

// Handle runs the rate inversion, catalog lookup and offer bookkeeping for
// one enriched envelope. Unknown financing types and failed inversions drop.
func (m *Matcher) Handle(ctx context.Context, envelope *models.EnrichedEnvelope) error {
	if err := envelope.Validate(); err != nil {
		return fmt.Errorf("invalid enriched envelope: %w", err)
	}

	analysis := &envelope.AgentAnalysis
	totalValue := envelope.FinancingInfo.Value
	installmentCount := *analysis.InstallmentCount
	currentInstallment := *analysis.CurrentInstallmentNumber
	installmentAmount := *analysis.InstallmentAmount

	var system string
	var rate float64
	var err error
	switch envelope.FinancingInfo.Type {
	case models.FinancingAutomobile:
		system = SystemPrice
		rate, err = PriceRate(totalValue, installmentCount, installmentAmount)
	case models.FinancingProperty:
		system = SystemSAC
		rate, err = SACRate(totalValue, installmentCount, currentInstallment, installmentAmount)
	default:
		return fmt.Errorf("unknown financing type %q", envelope.FinancingInfo.Type)
	}
	if err != nil {
		return fmt.Errorf("rate inversion for source %d: %w", envelope.SourceID, err)
	}

	remaining := RemainingBalance(system, totalValue, installmentCount, currentInstallment, rate, installmentAmount)
	remainingInstallments := installmentCount - currentInstallment + 1

	m.log.Info().Int64("source_id", envelope.SourceID).Str("system", system).
		Float64("monthly_rate_pct", rate).Float64("remaining", remaining).
		Msg("rate inverted")

	product, err := m.findBestOffer(ctx, envelope.FinancingInfo.Type, rate, remaining)
	if err != nil {
		return err
	}

	matched := models.MatchedEnvelope{
		SourceID:       envelope.SourceID,
		AgentAnalysis:  envelope.AgentAnalysis,
		OfferAvailable: product != nil,
		Timestamp:      envelope.Timestamp,
	}

	var savings float64
	if product != nil {
		newRate := product.TaxMes * 100
		savings = PotentialSavings(remaining, remainingInstallments, rate, newRate)
		matched.EligibleOffer = &models.EligibleOffer{
			RemainingFinanceAmount: round2(remaining),
			CurrentFinanceMonthTax: round2(rate),
			NewFinanceMonthTax:     round2(newRate),
			NewFinancingAmount:     round2(product.MaxAmount),
			PotentialSavings:       round2(savings),
		}
		m.log.Info().Int64("source_id", envelope.SourceID).Str("product", product.Name).
			Float64("new_rate_pct", newRate).Float64("savings", savings).
			Msg("better offer found")
	} else {
		m.log.Info().Int64("source_id", envelope.SourceID).Msg("no better offer available")
	}

	if err := m.bus.Publish(ctx, m.out, envelope.SourceID, matched); err != nil {
		return err
	}

	// Offer bookkeeping happens after publish; failures never retract the
	// already-published decision.
	m.offers.Record(ctx, envelope, rate, product, remaining, savings)
	return nil
}

// findBestOffer returns the cheapest catalog product of the requested type
// that beats the current rate and covers the remaining balance, or nil.
func (m *Matcher) findBestOffer(ctx context.Context, financingType string, currentRatePercent, remainingAmount float64) (*models.FinancingProduct, error) {
	row, err := m.db.FetchOne(ctx, `
		SELECT id, name, tax_mes, max_amount, type
		FROM financing_types
		WHERE LOWER(type) = LOWER($1)
		  AND tax_mes < $2
		  AND max_amount >= $3
		ORDER BY tax_mes ASC
		LIMIT 1`,
		financingType, currentRatePercent/100, remainingAmount)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return &models.FinancingProduct{
		ID:        store.Int64Value(row["id"]),
		Name:      store.StringValue(row["name"]),
		TaxMes:    store.Float64Value(row["tax_mes"]),
		MaxAmount: store.Float64Value(row["max_amount"]),
		Type:      store.StringValue(row["type"]),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
