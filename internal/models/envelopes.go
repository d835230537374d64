// Package models defines the JSON envelopes carried between pipeline stages
// and the rows persisted in the offer catalog. Every envelope shares the
// source_id / timestamp header; stage-specific payloads are added per topic.
package models

import (
	"fmt"
)

// Topic names for the pipeline chain, in publish order.
const (
	TopicRaw         = "raw"
	TopicParsed      = "parsed"
	TopicInterpreted = "interpreted"
	TopicVerified    = "verified"
	TopicEnriched    = "enriched"
	TopicMatched     = "matched"
	TopicComposed    = "composed"
)

// Attachment types accepted on the raw topic.
const (
	AttachmentImage    = "image"
	AttachmentDocument = "document"
)

// Financing types accepted in financing_info.
const (
	FinancingAutomobile = "automobile"
	FinancingProperty   = "property"
)

// MaxInstallments is the upper bound accepted for installment counts.
const MaxInstallments = 240

// RawEnvelope is published by the ingress when a photo or document arrives.
// AttachmentData is standard base64 with valid padding.
type RawEnvelope struct {
	SourceID       int64  `json:"source_id"`
	AttachmentType string `json:"attachment_type"`
	AttachmentData string `json:"attachment_data"`
	Timestamp      int64  `json:"timestamp"`
}

// Validate checks the raw envelope header and attachment fields.
func (e *RawEnvelope) Validate() error {
	if e.SourceID <= 0 {
		return fmt.Errorf("invalid field source_id: %d", e.SourceID)
	}
	if e.AttachmentType != AttachmentImage && e.AttachmentType != AttachmentDocument {
		return fmt.Errorf("invalid field attachment_type: %q", e.AttachmentType)
	}
	if e.AttachmentData == "" {
		return fmt.Errorf("missing field attachment_data")
	}
	return nil
}

// OCRField is a single field detected by the OCR collaborator. Text fields
// may be absent; confidences are in [0, 100].
type OCRField struct {
	Source    string   `json:"source"`
	LabelText *string  `json:"label_text"`
	LabelConf *float64 `json:"label_conf"`
	ValueText *string  `json:"value_text"`
	ValueConf *float64 `json:"value_conf"`
}

// Label returns the label text or "".
func (f *OCRField) Label() string {
	if f.LabelText == nil {
		return ""
	}
	return *f.LabelText
}

// Value returns the value text or "".
func (f *OCRField) Value() string {
	if f.ValueText == nil {
		return ""
	}
	return *f.ValueText
}

// Confidence returns the value confidence or 0.
func (f *OCRField) Confidence() float64 {
	if f.ValueConf == nil {
		return 0
	}
	return *f.ValueConf
}

// ParsedEnvelope carries the ordered OCR field list produced by the extractor.
type ParsedEnvelope struct {
	SourceID         int64      `json:"source_id"`
	AttachmentParsed []OCRField `json:"attachment_parsed"`
	Timestamp        int64      `json:"timestamp"`
}

// AgentAnalysis is the normalized loan descriptor recovered from a document.
// Fields that could not be resolved are null.
type AgentAnalysis struct {
	Company                  *string  `json:"company"`
	InstallmentCount         *int     `json:"installment_count"`
	CurrentInstallmentNumber *int     `json:"current_installment_number"`
	InstallmentAmount        *float64 `json:"installment_amount"`
}

// Complete reports whether every downstream-required field is resolved and
// the installment pair honors 1 <= current <= total <= 240.
func (a *AgentAnalysis) Complete() error {
	if a.Company == nil {
		return fmt.Errorf("missing field agent_analysis.company")
	}
	if a.InstallmentCount == nil {
		return fmt.Errorf("missing field agent_analysis.installment_count")
	}
	if a.CurrentInstallmentNumber == nil {
		return fmt.Errorf("missing field agent_analysis.current_installment_number")
	}
	if a.InstallmentAmount == nil {
		return fmt.Errorf("missing field agent_analysis.installment_amount")
	}
	cur, total := *a.CurrentInstallmentNumber, *a.InstallmentCount
	if cur < 1 || cur > total || total > MaxInstallments {
		return fmt.Errorf("invalid installment pair %d/%d", cur, total)
	}
	if *a.InstallmentAmount <= 0 {
		return fmt.Errorf("invalid field agent_analysis.installment_amount: %v", *a.InstallmentAmount)
	}
	return nil
}

// InterpretedEnvelope is the interpreter's output.
type InterpretedEnvelope struct {
	SourceID      int64         `json:"source_id"`
	AgentAnalysis AgentAnalysis `json:"agent_analysis"`
	Timestamp     int64         `json:"timestamp"`
}

// FinancingInfo is the financing type and desired amount collected from the
// conversational flow.
type FinancingInfo struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// Validate checks the financing type enum and positive value.
func (f *FinancingInfo) Validate() error {
	if f.Type != FinancingAutomobile && f.Type != FinancingProperty {
		return fmt.Errorf("invalid field financing_info.type: %q", f.Type)
	}
	if f.Value <= 0 {
		return fmt.Errorf("invalid field financing_info.value: %v", f.Value)
	}
	return nil
}

// VerifiedEnvelope adds the collected financing_info to the loan descriptor.
type VerifiedEnvelope struct {
	SourceID      int64         `json:"source_id"`
	AgentAnalysis AgentAnalysis `json:"agent_analysis"`
	FinancingInfo FinancingInfo `json:"financing_info"`
	Timestamp     int64         `json:"timestamp"`
}

// Validate schema-checks every field consumed by the enricher and matcher.
func (e *VerifiedEnvelope) Validate() error {
	if e.SourceID <= 0 {
		return fmt.Errorf("invalid field source_id: %d", e.SourceID)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("invalid field timestamp: %d", e.Timestamp)
	}
	if err := e.AgentAnalysis.Complete(); err != nil {
		return err
	}
	return e.FinancingInfo.Validate()
}

// UserMetadata identifies the verified user behind a source id.
type UserMetadata struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

// Account is the user's account snapshot. A missing account row is
// represented by a zero-filled value, never a drop.
type Account struct {
	Balance     float64 `json:"balance"`
	CreditLimit float64 `json:"credit_limit"`
	CreditUsage float64 `json:"credit_usage"`
}

// Transaction is one row of the user's transaction history.
type Transaction struct {
	TransactionID   int64   `json:"transaction_id"`
	TransactionTS   int64   `json:"transaction_ts"`
	TransactionType string  `json:"transaction_type"`
	Amount          float64 `json:"amount"`
	Description     string  `json:"description"`
}

// Investment is one row of the user's investment history.
type Investment struct {
	InvestmentID   int64  `json:"investment_id"`
	InvestmentName string `json:"investment_name"`
	InvestedAmount int64  `json:"invested_amount"`
	InvestedAt     int64  `json:"invested_at"`
}

// UserData joins the profile, account snapshot and histories.
type UserData struct {
	UserMetadata UserMetadata  `json:"user_metadata"`
	Account      Account       `json:"account"`
	Transactions []Transaction `json:"transactions"`
	Investments  []Investment  `json:"investments"`
}

// EnrichedEnvelope preserves all upstream fields and adds user_data.
type EnrichedEnvelope struct {
	SourceID      int64         `json:"source_id"`
	AgentAnalysis AgentAnalysis `json:"agent_analysis"`
	UserData      UserData      `json:"user_data"`
	FinancingInfo FinancingInfo `json:"financing_info"`
	Timestamp     int64         `json:"timestamp"`
}

// Validate schema-checks the fields the matcher depends on.
func (e *EnrichedEnvelope) Validate() error {
	if e.SourceID <= 0 {
		return fmt.Errorf("invalid field source_id: %d", e.SourceID)
	}
	if err := e.AgentAnalysis.Complete(); err != nil {
		return err
	}
	return e.FinancingInfo.Validate()
}

// EligibleOffer is the refinancing offer block published when a catalog
// product beats the user's current rate. Rates are monthly percentages.
type EligibleOffer struct {
	RemainingFinanceAmount float64 `json:"remaining_finance_amount"`
	CurrentFinanceMonthTax float64 `json:"current_finance_month_tax"`
	NewFinanceMonthTax     float64 `json:"new_finance_month_tax"`
	NewFinancingAmount     float64 `json:"new_financing_amount"`
	PotentialSavings       float64 `json:"potential_savings"`
}

// MatchedEnvelope carries the match decision. EligibleOffer is nil whenever
// OfferAvailable is false.
type MatchedEnvelope struct {
	SourceID       int64          `json:"source_id"`
	AgentAnalysis  AgentAnalysis  `json:"agent_analysis"`
	EligibleOffer  *EligibleOffer `json:"eligible_offer,omitempty"`
	OfferAvailable bool           `json:"offer_available"`
	Timestamp      int64          `json:"timestamp"`
}

// ComposedEnvelope is the final human-facing offer text.
type ComposedEnvelope struct {
	SourceID     int64  `json:"source_id"`
	OfferMessage string `json:"offer_message"`
	Timestamp    int64  `json:"timestamp"`
}

// Validate checks the fields the notifier requires.
func (e *ComposedEnvelope) Validate() error {
	if e.SourceID <= 0 {
		return fmt.Errorf("invalid field source_id: %d", e.SourceID)
	}
	if e.OfferMessage == "" {
		return fmt.Errorf("missing field offer_message")
	}
	return nil
}
