package compose

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boletoflow/boletoflow/internal/models"
)

type stubLLM struct {
	response string
	err      error
	prompt   string
}

func (s *stubLLM) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

type capturePublisher struct {
	payload interface{}
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, sourceID int64, payload interface{}) error {
	p.payload = payload
	return nil
}

func matchedFixture(withOffer bool) *models.MatchedEnvelope {
	company := "Banco Votorantim"
	count := 60
	current := 12
	amount := 630.62
	envelope := &models.MatchedEnvelope{
		SourceID: 42,
		AgentAnalysis: models.AgentAnalysis{
			Company:                  &company,
			InstallmentCount:         &count,
			CurrentInstallmentNumber: &current,
			InstallmentAmount:        &amount,
		},
		OfferAvailable: withOffer,
		Timestamp:      1700000000000,
	}
	if withOffer {
		envelope.EligibleOffer = &models.EligibleOffer{
			RemainingFinanceAmount: 17543.21,
			CurrentFinanceMonthTax: 2.39,
			NewFinanceMonthTax:     1.5,
			NewFinancingAmount:     1000000,
			PotentialSavings:       7321.55,
		}
	}
	return envelope
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "R$ 1.234,56", FormatBRL(1234.56))
	assert.Equal(t, "R$ 50.000,00", FormatBRL(50000))
	assert.Equal(t, "R$ 630,62", FormatBRL(630.62))
	assert.Equal(t, "R$ 0,50", FormatBRL(0.5))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "1,50% a.m.", FormatPercent(1.5))
	assert.Equal(t, "2,39% a.m.", FormatPercent(2.39))
}

func TestOfferPromptCarriesFormattedValues(t *testing.T) {
	stub := &stubLLM{response: "Temos uma proposta para você."}
	composer := New(stub, &capturePublisher{}, models.TopicComposed, zerolog.Nop())

	text := composer.Compose(context.Background(), matchedFixture(true))
	assert.Equal(t, "Temos uma proposta para você.", text)
	assert.Contains(t, stub.prompt, "1,50% a.m.")
	assert.Contains(t, stub.prompt, "R$ 7.321,55")
	assert.Contains(t, stub.prompt, "Máx. 550 caracteres")
}

func TestNoOfferPromptUsesShorterCap(t *testing.T) {
	stub := &stubLLM{response: "Ainda não temos uma oferta."}
	composer := New(stub, &capturePublisher{}, models.TopicComposed, zerolog.Nop())

	composer.Compose(context.Background(), matchedFixture(false))
	assert.Contains(t, stub.prompt, "Máx. 450 caracteres")
	assert.NotContains(t, stub.prompt, "Oferta detectada")
}

func TestLLMErrorFallsBackDeterministically(t *testing.T) {
	stub := &stubLLM{err: errors.New("service unavailable")}
	composer := New(stub, &capturePublisher{}, models.TopicComposed, zerolog.Nop())

	text := composer.Compose(context.Background(), matchedFixture(true))
	assert.Contains(t, text, "Banco Votorantim")
	assert.Contains(t, text, "1,50% a.m.")
	assert.Contains(t, text, "R$ 7.321,55")
	assert.LessOrEqual(t, utf8.RuneCountInString(text), MaxMessageLength)
}

func TestEmptyBracesResponseFallsBack(t *testing.T) {
	stub := &stubLLM{response: "{}"}
	composer := New(stub, &capturePublisher{}, models.TopicComposed, zerolog.Nop())

	text := composer.Compose(context.Background(), matchedFixture(false))
	assert.Contains(t, text, "não há uma oferta")
	assert.Contains(t, text, "parcela 12 de 60")
}

func TestFencedEmptyResponseFallsBack(t *testing.T) {
	stub := &stubLLM{response: "```json\n{}\n```"}
	composer := New(stub, &capturePublisher{}, models.TopicComposed, zerolog.Nop())

	text := composer.Compose(context.Background(), matchedFixture(false))
	assert.Contains(t, text, "não há uma oferta")
	assert.NotContains(t, text, "```")
}

func TestOutputNeverExceedsCap(t *testing.T) {
	stub := &stubLLM{response: strings.Repeat("á", 900)}
	composer := New(stub, &capturePublisher{}, models.TopicComposed, zerolog.Nop())

	text := composer.Compose(context.Background(), matchedFixture(true))
	assert.Equal(t, MaxMessageLength, utf8.RuneCountInString(text))
}

func TestHandlePublishesComposedEnvelope(t *testing.T) {
	stub := &stubLLM{response: "Mensagem final."}
	pub := &capturePublisher{}
	composer := New(stub, pub, models.TopicComposed, zerolog.Nop())

	require.NoError(t, composer.Handle(context.Background(), matchedFixture(true)))

	composed, ok := pub.payload.(models.ComposedEnvelope)
	require.True(t, ok)
	assert.Equal(t, int64(42), composed.SourceID)
	assert.Equal(t, "Mensagem final.", composed.OfferMessage)
	assert.Positive(t, composed.Timestamp)
}
