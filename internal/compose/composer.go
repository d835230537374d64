// Package compose turns a match decision into the final user-facing message.
// The LLM writes the copy; a deterministic fallback guarantees a message goes
// out even when the model is down.
package compose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/llm"
	"github.com/boletoflow/boletoflow/internal/models"
)

// MaxMessageLength hard-caps the outgoing message in runes.
const MaxMessageLength = 600

const systemPrompt = "Você é um copywriter bancário. Escreva mensagens curtas, claras, amigáveis e profissionais, " +
	"em português do Brasil. Evite jargões, use frases curtas. Não inclua markdown, emojis ou listas. " +
	"Você está ajudando clientes a refinanciar ou portar financiamentos vindos de outras instituições. " +
	"Responda sempre apenas com o texto final."

const noOfferTemplate = `Dados do cliente:
- Banco/empresa externa: %s
- Parcela atual: %s de %s
- Valor da parcela: %s

Escreva uma mensagem curta avisando que, por enquanto, não há oferta de refinanciamento/portabilidade disponível.
Mostre-se à disposição para avisar quando surgir oportunidade. Máx. 450 caracteres.`

const offerTemplate = `Dados do cliente:
- Banco/empresa externa: %s
- Parcela atual: %s de %s
- Valor da parcela: %s

Oferta detectada:
- Saldo a financiar (atual): %s
- Taxa mensal atual: %s
- Nova taxa mensal: %s
- Novo valor financiado: %s
- Economia potencial estimada: %s

Escreva uma mensagem curta convidando o cliente a avançar com a proposta.
Mencione com naturalidade a nova taxa e a economia potencial (sem exagero), e ofereça ajuda para simular/contratar.
Máx. 550 caracteres.`

// Generator is the LLM call used for copywriting.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Publisher publishes envelopes to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, sourceID int64, payload interface{}) error
}

// Composer consumes matched envelopes and publishes composed ones.
type Composer struct {
	llm Generator
	bus Publisher
	out string
	now func() time.Time
	log zerolog.Logger
}

// New builds a composer.
func New(llm Generator, bus Publisher, outputTopic string, log zerolog.Logger) *Composer {
	return &Composer{llm: llm, bus: bus, out: outputTopic, now: time.Now, log: log}
}

// Handle composes and publishes the message for one match decision.
func (c *Composer) Handle(ctx context.Context, envelope *models.MatchedEnvelope) error {
	if envelope.SourceID <= 0 {
		return fmt.Errorf("invalid field source_id: %d", envelope.SourceID)
	}

	message := c.Compose(ctx, envelope)
	composed := models.ComposedEnvelope{
		SourceID:     envelope.SourceID,
		OfferMessage: message,
		Timestamp:    c.now().UnixMilli(),
	}
	return c.bus.Publish(ctx, c.out, envelope.SourceID, composed)
}

// Compose returns the offer message, via the LLM when it cooperates and the
// deterministic fallback otherwise. Output never exceeds MaxMessageLength.
func (c *Composer) Compose(ctx context.Context, envelope *models.MatchedEnvelope) string {
	text := ""
	if c.llm != nil {
		generated, err := c.llm.Generate(ctx, buildPrompt(envelope), systemPrompt)
		if err != nil {
			c.log.Warn().Err(err).Int64("source_id", envelope.SourceID).Msg("llm compose failed, using fallback")
		} else {
			// Fences are stripped first so a fenced empty object still
			// triggers the fallback instead of reaching the user.
			text = strings.TrimSpace(llm.StripFences(generated))
		}
	}
	if text == "" || text == "{}" {
		text = fallbackMessage(envelope)
	}
	return truncate(text, MaxMessageLength)
}

func buildPrompt(envelope *models.MatchedEnvelope) string {
	aa := &envelope.AgentAnalysis
	company := stringOrDash(aa.Company)
	current := intOrDash(aa.CurrentInstallmentNumber)
	total := intOrDash(aa.InstallmentCount)
	amount := brlOrDash(aa.InstallmentAmount)

	if envelope.OfferAvailable && envelope.EligibleOffer != nil {
		eo := envelope.EligibleOffer
		return fmt.Sprintf(offerTemplate,
			company, current, total, amount,
			FormatBRL(eo.RemainingFinanceAmount),
			FormatPercent(eo.CurrentFinanceMonthTax),
			FormatPercent(eo.NewFinanceMonthTax),
			FormatBRL(eo.NewFinancingAmount),
			FormatBRL(eo.PotentialSavings),
		)
	}
	return fmt.Sprintf(noOfferTemplate, company, current, total, amount)
}

// fallbackMessage assembles a three-sentence message from the same fields the
// prompt uses.
func fallbackMessage(envelope *models.MatchedEnvelope) string {
	aa := &envelope.AgentAnalysis
	company := "seu banco"
	if aa.Company != nil && *aa.Company != "" {
		company = *aa.Company
	}

	var details []string
	if aa.CurrentInstallmentNumber != nil && aa.InstallmentCount != nil {
		details = append(details, fmt.Sprintf("parcela %d de %d", *aa.CurrentInstallmentNumber, *aa.InstallmentCount))
	}
	if aa.InstallmentAmount != nil {
		details = append(details, fmt.Sprintf("valor de %s", FormatBRL(*aa.InstallmentAmount)))
	}
	info := ""
	if len(details) > 0 {
		info = fmt.Sprintf(" (%s)", strings.Join(details, ", "))
	}

	if envelope.OfferAvailable && envelope.EligibleOffer != nil {
		eo := envelope.EligibleOffer
		return fmt.Sprintf("Identificamos uma condição melhor para seu financiamento no %s%s. "+
			"Nova taxa a.m.: %s. Economia estimada: %s. "+
			"Podemos avançar com a simulação e contratação agora mesmo. Posso te ajudar?",
			company, info, FormatPercent(eo.NewFinanceMonthTax), FormatBRL(eo.PotentialSavings))
	}
	return fmt.Sprintf("Analisamos seu financiamento no %s%s e, por enquanto, "+
		"não há uma oferta melhor disponível. Fico de olho e te aviso assim que surgir uma oportunidade. "+
		"Se quiser, posso revisar seus dados ou refazer a simulação.", company, info)
}

// FormatBRL renders 1234.5 as "R$ 1.234,50".
func FormatBRL(value float64) string {
	grouped := humanize.CommafWithDigits(value, 2)
	grouped = strings.NewReplacer(",", ".", ".", ",").Replace(grouped)
	if !strings.Contains(grouped, ",") {
		grouped += ",00"
	} else if i := strings.IndexByte(grouped, ','); len(grouped)-i == 2 {
		grouped += "0"
	}
	return "R$ " + grouped
}

// FormatPercent renders 1.5 as "1,50% a.m.".
func FormatPercent(value float64) string {
	return strings.Replace(fmt.Sprintf("%.2f", value), ".", ",", 1) + "% a.m."
}

func stringOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func intOrDash(n *int) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}

func brlOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return FormatBRL(*v)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
