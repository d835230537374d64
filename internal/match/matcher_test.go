package match

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boletoflow/boletoflow/internal/models"
	"github.com/boletoflow/boletoflow/internal/store"
)

type fakeStore struct {
	ones     map[string]store.Row
	rows     map[string][]store.Row
	executed []string
}

func (s *fakeStore) Execute(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	s.executed = append(s.executed, sql)
	return 1, nil
}

func (s *fakeStore) FetchOne(ctx context.Context, sql string, args ...interface{}) (store.Row, error) {
	for k, v := range s.ones {
		if strings.Contains(sql, k) {
			return v, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FetchAll(ctx context.Context, sql string, args ...interface{}) ([]store.Row, error) {
	for k, v := range s.rows {
		if strings.Contains(sql, k) {
			return v, nil
		}
	}
	return nil, nil
}

type capturePublisher struct {
	payload interface{}
	calls   int
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, sourceID int64, payload interface{}) error {
	p.payload = payload
	p.calls++
	return nil
}

type stubLLM struct {
	response string
}

func (s *stubLLM) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	return s.response, nil
}

func enrichedFixture(financingType string, value float64) *models.EnrichedEnvelope {
	company := "Banco Votorantim"
	count := 60
	current := 12
	amount := 630.62
	return &models.EnrichedEnvelope{
		SourceID: 42,
		AgentAnalysis: models.AgentAnalysis{
			Company:                  &company,
			InstallmentCount:         &count,
			CurrentInstallmentNumber: &current,
			InstallmentAmount:        &amount,
		},
		UserData: models.UserData{
			UserMetadata: models.UserMetadata{ID: 7, FullName: "Maria Silva"},
		},
		FinancingInfo: models.FinancingInfo{Type: financingType, Value: value},
		Timestamp:     1700000000000,
	}
}

func newMatcher(db *fakeStore, pub *capturePublisher, llmResponse string) *Matcher {
	offers := NewOffers(db, &stubLLM{response: llmResponse}, zerolog.Nop())
	return New(db, pub, offers, models.TopicMatched, zerolog.Nop())
}

func TestAutomobileMatchPublishesOffer(t *testing.T) {
	db := &fakeStore{
		ones: map[string]store.Row{
			"FROM financing_types": {
				"id": int64(5), "name": "Auto Refi", "tax_mes": 0.015,
				"max_amount": 1000000.0, "type": "automobile",
			},
			"ORDER BY created_at DESC": {"id": int64(99), "offered": false},
		},
		rows: map[string][]store.Row{
			"FROM banks": {{"id": int64(3), "name": "Banco Votorantim"}},
		},
	}
	pub := &capturePublisher{}
	matcher := newMatcher(db, pub, `{"id": 3}`)

	// 630.62/month on 20k over 60 months is roughly 2.4% a month, well
	// above the catalog's 1.5%.
	envelope := enrichedFixture(models.FinancingAutomobile, 20000)
	require.NoError(t, matcher.Handle(context.Background(), envelope))

	require.Equal(t, 1, pub.calls)
	matched, ok := pub.payload.(models.MatchedEnvelope)
	require.True(t, ok)
	assert.True(t, matched.OfferAvailable)
	require.NotNil(t, matched.EligibleOffer)
	assert.Equal(t, 1.5, matched.EligibleOffer.NewFinanceMonthTax)
	assert.Greater(t, matched.EligibleOffer.CurrentFinanceMonthTax, 1.5)
	assert.Greater(t, matched.EligibleOffer.PotentialSavings, 0.0)
	assert.Equal(t, 1000000.0, matched.EligibleOffer.NewFinancingAmount)

	// The scaffold row was updated with the offer.
	require.Len(t, db.executed, 1)
	assert.Contains(t, db.executed[0], "UPDATE bank_financing_offers")
}

func TestNoCatalogProductPublishesNoOffer(t *testing.T) {
	db := &fakeStore{
		ones: map[string]store.Row{
			"ORDER BY created_at DESC": {"id": int64(99), "offered": false},
		},
		rows: map[string][]store.Row{
			"FROM banks": {{"id": int64(3), "name": "Banco Votorantim"}},
		},
	}
	pub := &capturePublisher{}
	matcher := newMatcher(db, pub, `{"id": 3}`)

	require.NoError(t, matcher.Handle(context.Background(), enrichedFixture(models.FinancingAutomobile, 20000)))

	matched := pub.payload.(models.MatchedEnvelope)
	assert.False(t, matched.OfferAvailable)
	assert.Nil(t, matched.EligibleOffer)
	// The row still records the inverted rate, with offered=false.
	require.Len(t, db.executed, 1)
}

func TestUnknownFinancingTypeDrops(t *testing.T) {
	db := &fakeStore{}
	pub := &capturePublisher{}
	matcher := newMatcher(db, pub, "")

	envelope := enrichedFixture("boat", 20000)
	assert.Error(t, matcher.Handle(context.Background(), envelope))
	assert.Zero(t, pub.calls)
}

func TestPropertyUsesSACInversion(t *testing.T) {
	db := &fakeStore{
		ones: map[string]store.Row{
			"ORDER BY created_at DESC": {"id": int64(99), "offered": false},
		},
		rows: map[string][]store.Row{
			"FROM banks": {{"id": int64(3), "name": "Banco Votorantim"}},
		},
	}
	pub := &capturePublisher{}
	matcher := newMatcher(db, pub, `{"id": 3}`)

	envelope := enrichedFixture(models.FinancingProperty, 240000)
	count := 240
	current := 121
	amount := 2200.0
	envelope.AgentAnalysis.InstallmentCount = &count
	envelope.AgentAnalysis.CurrentInstallmentNumber = &current
	envelope.AgentAnalysis.InstallmentAmount = &amount

	require.NoError(t, matcher.Handle(context.Background(), envelope))

	matched := pub.payload.(models.MatchedEnvelope)
	assert.False(t, matched.OfferAvailable)
}

func TestDuplicateOfferedRowIsNotRewritten(t *testing.T) {
	db := &fakeStore{
		ones: map[string]store.Row{
			"FROM financing_types": {
				"id": int64(5), "name": "Auto Refi", "tax_mes": 0.015,
				"max_amount": 1000000.0, "type": "automobile",
			},
			"offered = TRUE":           {"id": int64(42)},
			"ORDER BY created_at DESC": {"id": int64(99), "offered": true},
		},
		rows: map[string][]store.Row{
			"FROM banks": {{"id": int64(3), "name": "Banco Votorantim"}},
		},
	}
	pub := &capturePublisher{}
	matcher := newMatcher(db, pub, `{"id": 3}`)

	require.NoError(t, matcher.Handle(context.Background(), enrichedFixture(models.FinancingAutomobile, 20000)))

	// Decision is still published, but no write happens.
	assert.Equal(t, 1, pub.calls)
	assert.Empty(t, db.executed)
}

func TestUnmatchedBankSkipsBookkeeping(t *testing.T) {
	db := &fakeStore{
		rows: map[string][]store.Row{
			"FROM banks": {{"id": int64(3), "name": "Outro Banco"}},
		},
	}
	pub := &capturePublisher{}
	matcher := newMatcher(db, pub, `{"id": 0}`)

	require.NoError(t, matcher.Handle(context.Background(), enrichedFixture(models.FinancingAutomobile, 20000)))
	assert.Equal(t, 1, pub.calls)
	assert.Empty(t, db.executed)
}
