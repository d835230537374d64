package interpret

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/boletoflow/boletoflow/internal/llm"
	"github.com/boletoflow/boletoflow/internal/models"
)

const assistSystemPrompt = "Você é um assistente que extrai dados de boletos de financiamento brasileiros. " +
	"Responda APENAS com um objeto JSON, sem texto adicional."

// assist asks the model for company and installment_amount; its non-null
// answers replace the regex results, nulls keep them. A failed call leaves
// the analysis untouched.
func (i *Interpreter) assist(ctx context.Context, fields []models.OCRField, analysis *models.AgentAnalysis) {
	prompt := buildAssistPrompt(fields)
	response, err := i.llm.Generate(ctx, prompt, assistSystemPrompt)
	if err != nil {
		i.log.Warn().Err(err).Msg("llm assist failed, keeping deterministic result")
		return
	}

	parsed := llm.ExtractFirstJSON(response)
	if parsed == nil {
		i.log.Warn().Str("response", response).Msg("llm assist returned no JSON")
		return
	}

	if company, ok := parsed["company"].(string); ok && strings.TrimSpace(company) != "" {
		trimmed := strings.TrimSpace(company)
		analysis.Company = &trimmed
	}
	if amount, ok := numericValue(parsed["installment_amount"]); ok && amount > 0 {
		analysis.InstallmentAmount = &amount
	}
}

func buildAssistPrompt(fields []models.OCRField) string {
	var b strings.Builder
	b.WriteString("Campos extraídos de um boleto de financiamento:\n\n")
	for idx := range fields {
		f := &fields[idx]
		if f.Value() == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.Label(), f.Value())
	}
	b.WriteString("\nIdentifique a instituição financeira emissora e o valor da parcela.\n")
	b.WriteString(`Responda com JSON no formato {"company": "nome ou null", "installment_amount": numero ou null}.`)
	return b.String()
}

// numericValue accepts the number shapes models actually emit: JSON numbers
// and numeric strings in either decimal convention.
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		cleaned := strings.TrimSpace(n)
		if cleaned == "" {
			return 0, false
		}
		if strings.Contains(cleaned, ",") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		}
		value, err := strconv.ParseFloat(cleaned, 64)
		return value, err == nil
	}
	return 0, false
}
