// Package enrich joins verified envelopes with the user's profile, account
// snapshot and histories.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/models"
	"github.com/boletoflow/boletoflow/internal/store"
)

// Store is the datastore surface the enricher uses.
type Store interface {
	FetchOne(ctx context.Context, sql string, args ...interface{}) (store.Row, error)
	FetchAll(ctx context.Context, sql string, args ...interface{}) ([]store.Row, error)
	FetchVal(ctx context.Context, sql string, args ...interface{}) (interface{}, error)
}

// Publisher publishes envelopes to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, sourceID int64, payload interface{}) error
}

// Enricher consumes verified envelopes and publishes enriched ones.
type Enricher struct {
	db  Store
	bus Publisher
	out string
	now func() time.Time
	log zerolog.Logger
}

// New builds an enricher.
func New(db Store, bus Publisher, outputTopic string, log zerolog.Logger) *Enricher {
	return &Enricher{db: db, bus: bus, out: outputTopic, now: time.Now, log: log}
}

// Handle enriches one verified envelope. A missing user drops; a missing
// account row becomes zeros.
func (e *Enricher) Handle(ctx context.Context, envelope *models.VerifiedEnvelope) error {
	if err := envelope.Validate(); err != nil {
		return fmt.Errorf("invalid verified envelope: %w", err)
	}

	userID, err := e.userIDFromSource(ctx, envelope.SourceID)
	if err != nil {
		return err
	}
	if userID == 0 {
		return fmt.Errorf("no user for source_id %d", envelope.SourceID)
	}

	metadata, err := e.userMetadata(ctx, userID)
	if err != nil {
		return err
	}
	if metadata == nil {
		return fmt.Errorf("no user metadata for user_id %d", userID)
	}

	account, err := e.accountData(ctx, userID)
	if err != nil {
		return err
	}
	transactions, err := e.transactions(ctx, userID)
	if err != nil {
		return err
	}
	investments, err := e.investments(ctx, userID)
	if err != nil {
		return err
	}

	enriched := models.EnrichedEnvelope{
		SourceID:      envelope.SourceID,
		AgentAnalysis: envelope.AgentAnalysis,
		UserData: models.UserData{
			UserMetadata: *metadata,
			Account:      account,
			Transactions: transactions,
			Investments:  investments,
		},
		FinancingInfo: envelope.FinancingInfo,
		Timestamp:     envelope.Timestamp,
	}

	e.log.Info().Int64("source_id", envelope.SourceID).Int64("user_id", userID).
		Int("transactions", len(transactions)).Int("investments", len(investments)).
		Msg("envelope enriched")
	return e.bus.Publish(ctx, e.out, envelope.SourceID, enriched)
}

func (e *Enricher) userIDFromSource(ctx context.Context, sourceID int64) (int64, error) {
	val, err := e.db.FetchVal(ctx, "SELECT user_id FROM user_source WHERE source_id = $1", sourceID)
	if err != nil {
		return 0, fmt.Errorf("resolve user for source %d: %w", sourceID, err)
	}
	return store.Int64Value(val), nil
}

func (e *Enricher) userMetadata(ctx context.Context, userID int64) (*models.UserMetadata, error) {
	row, err := e.db.FetchOne(ctx, "SELECT user_id, full_name FROM users WHERE user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("fetch user %d: %w", userID, err)
	}
	if row == nil {
		return nil, nil
	}
	return &models.UserMetadata{
		ID:       store.Int64Value(row["user_id"]),
		FullName: store.StringValue(row["full_name"]),
	}, nil
}

// accountData returns the account snapshot, zero-filled when no row exists.
func (e *Enricher) accountData(ctx context.Context, userID int64) (models.Account, error) {
	row, err := e.db.FetchOne(ctx, `
		SELECT balance, credit_limit, credit_usage
		FROM accounts
		WHERE user_id = $1
		LIMIT 1`, userID)
	if err != nil {
		return models.Account{}, fmt.Errorf("fetch account for user %d: %w", userID, err)
	}
	if row == nil {
		return models.Account{}, nil
	}
	return models.Account{
		Balance:     store.Float64Value(row["balance"]),
		CreditLimit: store.Float64Value(row["credit_limit"]),
		CreditUsage: store.Float64Value(row["credit_usage"]),
	}, nil
}

func (e *Enricher) transactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	rows, err := e.db.FetchAll(ctx, `
		SELECT transaction_id,
		       EXTRACT(EPOCH FROM transaction_ts)::bigint AS transaction_ts,
		       transaction_type,
		       amount,
		       description
		FROM transactions
		WHERE user_id = $1
		ORDER BY transaction_ts DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions for user %d: %w", userID, err)
	}
	out := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Transaction{
			TransactionID:   store.Int64Value(row["transaction_id"]),
			TransactionTS:   store.Int64Value(row["transaction_ts"]),
			TransactionType: store.StringValue(row["transaction_type"]),
			Amount:          store.Float64Value(row["amount"]),
			Description:     store.StringValue(row["description"]),
		})
	}
	return out, nil
}

func (e *Enricher) investments(ctx context.Context, userID int64) ([]models.Investment, error) {
	rows, err := e.db.FetchAll(ctx, `
		SELECT i.investment_id,
		       i.investment_name,
		       i.invested_amount,
		       EXTRACT(EPOCH FROM i.invested_at)::bigint AS invested_at
		FROM investments i
		JOIN accounts a ON i.account_id = a.account_id
		WHERE a.user_id = $1
		ORDER BY i.invested_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch investments for user %d: %w", userID, err)
	}
	out := make([]models.Investment, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Investment{
			InvestmentID:   store.Int64Value(row["investment_id"]),
			InvestmentName: store.StringValue(row["investment_name"]),
			InvestedAmount: store.Int64Value(row["invested_amount"]),
			InvestedAt:     store.Int64Value(row["invested_at"]),
		})
	}
	return out, nil
}
