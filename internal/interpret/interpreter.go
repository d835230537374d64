// Package interpret turns an OCR field list into the normalized loan
// descriptor. A deterministic regex core does the work; an LLM pass then
// refines company and installment_amount, whose non-null answers win.
package interpret

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/models"
)

// Publisher publishes envelopes to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, sourceID int64, payload interface{}) error
}

// Generator is the LLM call used for the assist pass.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Interpreter consumes parsed envelopes and publishes interpreted ones.
type Interpreter struct {
	llm Generator
	bus Publisher
	out string
	log zerolog.Logger
}

// New builds an interpreter. llm may be nil to disable the assist pass.
func New(llm Generator, bus Publisher, outputTopic string, log zerolog.Logger) *Interpreter {
	return &Interpreter{llm: llm, bus: bus, out: outputTopic, log: log}
}

// Handle interprets one parsed envelope. The output preserves the incoming
// source_id and timestamp; unresolved fields stay null.
func (i *Interpreter) Handle(ctx context.Context, envelope *models.ParsedEnvelope) error {
	if envelope.SourceID <= 0 {
		return fmt.Errorf("invalid field source_id: %d", envelope.SourceID)
	}

	analysis := i.Interpret(ctx, envelope.AttachmentParsed)
	i.log.Info().
		Int64("source_id", envelope.SourceID).
		Bool("company", analysis.Company != nil).
		Bool("installments", analysis.InstallmentCount != nil).
		Bool("amount", analysis.InstallmentAmount != nil).
		Msg("document interpreted")

	interpreted := models.InterpretedEnvelope{
		SourceID:      envelope.SourceID,
		AgentAnalysis: analysis,
		Timestamp:     envelope.Timestamp,
	}
	return i.bus.Publish(ctx, i.out, envelope.SourceID, interpreted)
}

// Interpret runs the deterministic rules, then the LLM assist. Non-null
// assist answers for company and amount take precedence over the rules; the
// installment pair is never taken from the LLM.
func (i *Interpreter) Interpret(ctx context.Context, fields []models.OCRField) models.AgentAnalysis {
	analysis := models.AgentAnalysis{}

	if current, total, ok := extractInstallmentPair(fields); ok {
		analysis.CurrentInstallmentNumber = &current
		analysis.InstallmentCount = &total
	}
	if amount, ok := extractAmount(fields); ok {
		analysis.InstallmentAmount = &amount
	}
	if company, ok := extractCompany(fields); ok {
		analysis.Company = &company
	}

	if i.llm != nil {
		i.assist(ctx, fields, &analysis)
	}
	return analysis
}

// pairPattern matches "10/48" style installment markers, including the
// fullwidth solidus OCR sometimes produces.
var pairPattern = regexp.MustCompile(`(\d{1,3})[/\-／](\d{1,3})`)

type pairCandidate struct {
	current int
	total   int
	score   int
	conf    float64
}

func extractInstallmentPair(fields []models.OCRField) (current, total int, ok bool) {
	var candidates []pairCandidate
	for idx := range fields {
		f := &fields[idx]
		label := strings.ToUpper(f.Label())
		for _, m := range pairPattern.FindAllStringSubmatch(f.Value(), -1) {
			n, _ := strconv.Atoi(m[1])
			t, _ := strconv.Atoi(m[2])
			if n < 1 || n > t || t > models.MaxInstallments {
				continue
			}
			score := 0
			if strings.Contains(label, "PLANO") {
				score += 3
			}
			if strings.Contains(label, "PARCELA") {
				score += 2
			}
			if strings.Contains(label, "VENCIMENTO") {
				score -= 2
			}
			candidates = append(candidates, pairCandidate{current: n, total: t, score: score, conf: f.Confidence()})
		}
	}
	if len(candidates) == 0 {
		return 0, 0, false
	}

	best := candidates[0]
	scored := best.score > 0
	for _, c := range candidates[1:] {
		if c.score > 0 {
			if !scored || c.score > best.score || (c.score == best.score && c.conf > best.conf) {
				best, scored = c, true
			}
			continue
		}
		if !scored && c.conf > best.conf {
			best = c
		}
	}
	return best.current, best.total, true
}

// BRL decimals first ("1.234,56", "630,62"), dot decimals as fallback.
var (
	brlAmountPattern = regexp.MustCompile(`\d{1,3}(\.\d{3})*,\d{2}`)
	dotAmountPattern = regexp.MustCompile(`\d+\.\d{2}`)
)

type amountCandidate struct {
	value float64
	score int
	conf  float64
}

func extractAmount(fields []models.OCRField) (float64, bool) {
	var candidates []amountCandidate
	for idx := range fields {
		f := &fields[idx]
		raw := brlAmountPattern.FindString(f.Value())
		if raw == "" {
			raw = dotAmountPattern.FindString(f.Value())
			if raw == "" {
				continue
			}
		} else {
			raw = strings.ReplaceAll(raw, ".", "")
			raw = strings.Replace(raw, ",", ".", 1)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			continue
		}
		candidates = append(candidates, amountCandidate{
			value: value,
			score: amountLabelScore(strings.ToUpper(f.Label())),
			conf:  f.Confidence(),
		})
	}
	if len(candidates) == 0 {
		return 0, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score || (c.score == best.score && c.conf > best.conf) {
			best = c
		}
	}
	return best.value, true
}

func amountLabelScore(label string) int {
	switch {
	case strings.Contains(label, "VALOR DO DOCUMENTO"):
		return 4
	case strings.Contains(label, "VALOR DA PARCELA"), strings.Contains(label, "VALOR PARCELA"):
		return 3
	case strings.Contains(label, "VALOR"):
		return 2
	case strings.Contains(label, "DOCUMENTO"):
		return 1
	}
	return 0
}

var companyPattern = regexp.MustCompile(`(?i)\b(Banco|BV|Votorantim)\b`)

func extractCompany(fields []models.OCRField) (string, bool) {
	var best string
	bestConf := -1.0
	for idx := range fields {
		f := &fields[idx]
		if !companyPattern.MatchString(f.Value()) {
			continue
		}
		if f.Confidence() > bestConf {
			best = strings.TrimSpace(f.Value())
			bestConf = f.Confidence()
		}
	}
	return best, bestConf >= 0
}
