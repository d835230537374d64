package verify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/llm"
	"github.com/boletoflow/boletoflow/internal/models"
	"github.com/boletoflow/boletoflow/internal/store"
)

const bankMatchSystemPrompt = "You are a banking system assistant. Your job is to match company names to existing banks. " +
	"Return ONLY a valid JSON object, nothing else. No markdown, no explanations."

// bankCacheTTL bounds how stale the in-process bank list may get.
const bankCacheTTL = 5 * time.Minute

// Generator is the LLM call used for bank matching.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// BankResolver maps an extracted company name to a banks row id, inserting a
// new bank when the model reports no match. Resolutions and the bank list are
// memoized so repeated documents from the same issuer skip the model.
type BankResolver struct {
	db  Store
	llm Generator
	log zerolog.Logger

	mu       sync.Mutex
	banks    []models.Bank
	banksAt  time.Time
	resolved map[string]int64
	cacheTTL time.Duration
}

// NewBankResolver builds a resolver.
func NewBankResolver(db Store, generator Generator, log zerolog.Logger) *BankResolver {
	return &BankResolver{
		db:       db,
		llm:      generator,
		log:      log,
		resolved: make(map[string]int64),
		cacheTTL: bankCacheTTL,
	}
}

// Resolve returns the bank id for a company name.
func (r *BankResolver) Resolve(ctx context.Context, company string) (int64, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return 0, fmt.Errorf("empty company name")
	}

	key := strings.ToLower(company)
	r.mu.Lock()
	if id, ok := r.resolved[key]; ok {
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	banks, err := r.listBanks(ctx)
	if err != nil {
		return 0, err
	}

	var id int64
	if len(banks) > 0 {
		id = r.matchWithLLM(ctx, company, banks)
	}
	if id == 0 {
		id, err = r.insertBank(ctx, company)
		if err != nil {
			return 0, err
		}
	}

	r.mu.Lock()
	r.resolved[key] = id
	r.mu.Unlock()
	return id, nil
}

func (r *BankResolver) listBanks(ctx context.Context) ([]models.Bank, error) {
	r.mu.Lock()
	if r.banks != nil && time.Since(r.banksAt) < r.cacheTTL {
		banks := r.banks
		r.mu.Unlock()
		return banks, nil
	}
	r.mu.Unlock()

	rows, err := r.db.FetchAll(ctx, "SELECT id, name FROM banks ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	banks := make([]models.Bank, 0, len(rows))
	for _, row := range rows {
		banks = append(banks, models.Bank{
			ID:   store.Int64Value(row["id"]),
			Name: store.StringValue(row["name"]),
		})
	}

	r.mu.Lock()
	r.banks = banks
	r.banksAt = time.Now()
	r.mu.Unlock()
	return banks, nil
}

// matchWithLLM returns the matched id or 0 when the model reports a new bank
// or fails; failure always falls through to an insert.
func (r *BankResolver) matchWithLLM(ctx context.Context, company string, banks []models.Bank) int64 {
	var list strings.Builder
	for _, b := range banks {
		fmt.Fprintf(&list, "- %s (ID: %d)\n", b.Name, b.ID)
	}

	prompt := fmt.Sprintf(`Company name from analysis: %q

Available banks in our database:
%s
Is this company name one of the banks above? If yes, return the ID. If no, it's a new bank.

Return ONLY this JSON format:
{"new_name": false, "id": 123}  (if it matches)
OR
{"new_name": true}  (if it's a new bank)`, company, list.String())

	response, err := r.llm.Generate(ctx, prompt, bankMatchSystemPrompt)
	if err != nil {
		r.log.Warn().Err(err).Str("company", company).Msg("bank match llm failed")
		return 0
	}

	parsed := llm.ExtractFirstJSON(response)
	if parsed == nil {
		r.log.Warn().Str("response", response).Msg("bank match returned no JSON")
		return 0
	}
	if newName, _ := parsed["new_name"].(bool); newName {
		return 0
	}
	if id, ok := parsed["id"].(float64); ok && id > 0 {
		return int64(id)
	}
	return 0
}

func (r *BankResolver) insertBank(ctx context.Context, name string) (int64, error) {
	if _, err := r.db.Execute(ctx, "INSERT INTO banks (name) VALUES ($1)", name); err != nil {
		return 0, fmt.Errorf("insert bank %q: %w", name, err)
	}
	val, err := r.db.FetchVal(ctx, "SELECT id FROM banks WHERE name = $1 ORDER BY id DESC LIMIT 1", name)
	if err != nil {
		return 0, fmt.Errorf("fetch inserted bank %q: %w", name, err)
	}
	id := store.Int64Value(val)
	if id == 0 {
		return 0, fmt.Errorf("inserted bank %q not found", name)
	}

	// New row invalidates the cached list.
	r.mu.Lock()
	r.banks = nil
	r.mu.Unlock()

	r.log.Info().Str("name", name).Int64("bank_id", id).Msg("new bank inserted")
	return id, nil
}
