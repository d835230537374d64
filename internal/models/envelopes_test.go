package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrStr(s string) *string   { return &s }
func ptrInt(n int) *int         { return &n }
func ptrF64(v float64) *float64 { return &v }

func completeAnalysis() AgentAnalysis {
	return AgentAnalysis{
		Company:                  ptrStr("Banco Votorantim"),
		InstallmentCount:         ptrInt(60),
		CurrentInstallmentNumber: ptrInt(12),
		InstallmentAmount:        ptrF64(630.62),
	}
}

func TestRawEnvelopeValidate(t *testing.T) {
	valid := RawEnvelope{SourceID: 42, AttachmentType: AttachmentImage, AttachmentData: "aGk=", Timestamp: 1}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.SourceID = 0
	assert.Error(t, bad.Validate())

	bad = valid
	bad.AttachmentType = "video"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.AttachmentData = ""
	assert.Error(t, bad.Validate())
}

func TestAgentAnalysisComplete(t *testing.T) {
	assert.NoError(t, func() error { a := completeAnalysis(); return a.Complete() }())

	a := completeAnalysis()
	a.Company = nil
	assert.Error(t, a.Complete())

	a = completeAnalysis()
	a.CurrentInstallmentNumber = ptrInt(61)
	assert.Error(t, a.Complete(), "current beyond total")

	a = completeAnalysis()
	a.InstallmentCount = ptrInt(241)
	assert.Error(t, a.Complete(), "total beyond bound")

	a = completeAnalysis()
	a.CurrentInstallmentNumber = ptrInt(0)
	assert.Error(t, a.Complete())

	a = completeAnalysis()
	a.InstallmentAmount = ptrF64(0)
	assert.Error(t, a.Complete())
}

func TestFinancingInfoValidate(t *testing.T) {
	assert.NoError(t, (&FinancingInfo{Type: FinancingAutomobile, Value: 50000}).Validate())
	assert.NoError(t, (&FinancingInfo{Type: FinancingProperty, Value: 1}).Validate())
	assert.Error(t, (&FinancingInfo{Type: "boat", Value: 50000}).Validate())
	assert.Error(t, (&FinancingInfo{Type: FinancingAutomobile, Value: 0}).Validate())
}

func TestVerifiedEnvelopeValidate(t *testing.T) {
	valid := VerifiedEnvelope{
		SourceID:      42,
		AgentAnalysis: completeAnalysis(),
		FinancingInfo: FinancingInfo{Type: FinancingAutomobile, Value: 50000},
		Timestamp:     1,
	}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.Timestamp = 0
	assert.Error(t, bad.Validate())
}

func TestNullFieldsSurviveJSONRoundTrip(t *testing.T) {
	interpreted := InterpretedEnvelope{SourceID: 42, Timestamp: 1}
	raw, err := json.Marshal(interpreted)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"company":null`)

	var back InterpretedEnvelope
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Nil(t, back.AgentAnalysis.Company)
}

func TestMatchedEnvelopeOmitsOfferWhenUnavailable(t *testing.T) {
	matched := MatchedEnvelope{SourceID: 42, OfferAvailable: false, Timestamp: 1}
	raw, err := json.Marshal(matched)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "eligible_offer")
}

func TestOCRFieldHelpers(t *testing.T) {
	empty := OCRField{}
	assert.Equal(t, "", empty.Label())
	assert.Equal(t, "", empty.Value())
	assert.Equal(t, 0.0, empty.Confidence())

	full := OCRField{LabelText: ptrStr("VALOR"), ValueText: ptrStr("630,62"), ValueConf: ptrF64(97.5)}
	assert.Equal(t, "VALOR", full.Label())
	assert.Equal(t, "630,62", full.Value())
	assert.Equal(t, 97.5, full.Confidence())
}
