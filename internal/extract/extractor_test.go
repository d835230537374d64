package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/textract"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boletoflow/boletoflow/internal/models"
)

type capturePublisher struct {
	topic    string
	sourceID int64
	payload  interface{}
	calls    int
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, sourceID int64, payload interface{}) error {
	p.topic = topic
	p.sourceID = sourceID
	p.payload = payload
	p.calls++
	return nil
}

func expenseField(label string, labelConf float64, value string, valueConf float64) *textract.ExpenseField {
	return &textract.ExpenseField{
		LabelDetection: &textract.ExpenseDetection{Text: aws.String(label), Confidence: aws.Float64(labelConf)},
		ValueDetection: &textract.ExpenseDetection{Text: aws.String(value), Confidence: aws.Float64(valueConf)},
	}
}

func TestFlattenOrdersSummaryBeforeLineItems(t *testing.T) {
	output := &textract.AnalyzeExpenseOutput{
		ExpenseDocuments: []*textract.ExpenseDocument{{
			SummaryFields: []*textract.ExpenseField{
				expenseField("VALOR DO DOCUMENTO", 99, "R$ 850,00", 98),
			},
			LineItemGroups: []*textract.LineItemGroup{{
				LineItems: []*textract.LineItemFields{{
					LineItemExpenseFields: []*textract.ExpenseField{
						expenseField("PARCELA", 97, "10/48", 96),
					},
				}},
			}},
		}},
	}

	fields := Flatten(output)
	require.Len(t, fields, 2)
	assert.Equal(t, SourceSummary, fields[0].Source)
	assert.Equal(t, "VALOR DO DOCUMENTO", fields[0].Label())
	assert.Equal(t, SourceLineItem, fields[1].Source)
	assert.Equal(t, "10/48", fields[1].Value())
	assert.Equal(t, 96.0, fields[1].Confidence())
}

func TestFlattenUsesTypeWhenLabelMissing(t *testing.T) {
	output := &textract.AnalyzeExpenseOutput{
		ExpenseDocuments: []*textract.ExpenseDocument{{
			SummaryFields: []*textract.ExpenseField{{
				Type:           &textract.ExpenseType{Text: aws.String("TOTAL"), Confidence: aws.Float64(95)},
				ValueDetection: &textract.ExpenseDetection{Text: aws.String("850,00"), Confidence: aws.Float64(90)},
			}},
		}},
	}

	fields := Flatten(output)
	require.Len(t, fields, 1)
	assert.Equal(t, "TOTAL", fields[0].Label())
}

func TestHandlePublishesParsedEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	analyze := func(ctx context.Context, document []byte) (*textract.AnalyzeExpenseOutput, error) {
		assert.Equal(t, []byte("fake-image"), document)
		return &textract.AnalyzeExpenseOutput{
			ExpenseDocuments: []*textract.ExpenseDocument{{
				SummaryFields: []*textract.ExpenseField{expenseField("VALOR", 99, "850,00", 98)},
			}},
		}, nil
	}
	extractor := NewWithAnalyzer(analyze, pub, models.TopicParsed, zerolog.Nop())

	envelope := &models.RawEnvelope{
		SourceID:       42,
		AttachmentType: models.AttachmentImage,
		AttachmentData: base64.StdEncoding.EncodeToString([]byte("fake-image")),
		Timestamp:      1,
	}
	require.NoError(t, extractor.Handle(context.Background(), envelope))

	assert.Equal(t, models.TopicParsed, pub.topic)
	parsed, ok := pub.payload.(models.ParsedEnvelope)
	require.True(t, ok)
	assert.Equal(t, int64(42), parsed.SourceID)
	require.Len(t, parsed.AttachmentParsed, 1)
	assert.Equal(t, "850,00", parsed.AttachmentParsed[0].Value())
}

func TestHandleRejectsBadBase64(t *testing.T) {
	pub := &capturePublisher{}
	extractor := NewWithAnalyzer(nil, pub, models.TopicParsed, zerolog.Nop())

	envelope := &models.RawEnvelope{
		SourceID:       42,
		AttachmentType: models.AttachmentImage,
		AttachmentData: "%%% not base64 %%%",
		Timestamp:      1,
	}
	assert.Error(t, extractor.Handle(context.Background(), envelope))
	assert.Zero(t, pub.calls)
}

func TestHandlePropagatesOCRFailure(t *testing.T) {
	pub := &capturePublisher{}
	analyze := func(ctx context.Context, document []byte) (*textract.AnalyzeExpenseOutput, error) {
		return nil, errors.New("throttled")
	}
	extractor := NewWithAnalyzer(analyze, pub, models.TopicParsed, zerolog.Nop())

	envelope := &models.RawEnvelope{
		SourceID:       42,
		AttachmentType: models.AttachmentDocument,
		AttachmentData: base64.StdEncoding.EncodeToString([]byte("pdf")),
		Timestamp:      1,
	}
	assert.Error(t, extractor.Handle(context.Background(), envelope))
	assert.Zero(t, pub.calls)
}
