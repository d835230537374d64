// Package extract turns raw attachment bytes into an ordered OCR field list
// using Textract expense analysis.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/service/textract"
	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/models"
)

// Field sources, summary first in output order.
const (
	SourceSummary  = "summary"
	SourceLineItem = "line_item"
)

// Publisher publishes envelopes to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, sourceID int64, payload interface{}) error
}

// Extractor consumes raw envelopes and publishes parsed ones.
type Extractor struct {
	ocr     analyzeFunc
	bus     Publisher
	out     string
	now     func() time.Time
	log     zerolog.Logger
}

type analyzeFunc func(ctx context.Context, document []byte) (*textract.AnalyzeExpenseOutput, error)

// New builds an extractor on a Textract client.
func New(client *textract.Textract, bus Publisher, outputTopic string, log zerolog.Logger) *Extractor {
	return &Extractor{
		ocr: func(ctx context.Context, document []byte) (*textract.AnalyzeExpenseOutput, error) {
			return client.AnalyzeExpenseWithContext(ctx, &textract.AnalyzeExpenseInput{
				Document: &textract.Document{Bytes: document},
			})
		},
		bus:     bus,
		out:     outputTopic,
		now:     time.Now,
		log:     log,
	}
}

// NewWithAnalyzer builds an extractor on a custom analyze function; used by
// tests with a canned response.
func NewWithAnalyzer(analyze func(ctx context.Context, document []byte) (*textract.AnalyzeExpenseOutput, error), bus Publisher, outputTopic string, log zerolog.Logger) *Extractor {
	return &Extractor{ocr: analyze, bus: bus, out: outputTopic, now: time.Now, log: log}
}

// Handle processes one raw envelope. Any returned error drops the message
// after logging; the attachment will not improve on redelivery.
func (e *Extractor) Handle(ctx context.Context, envelope *models.RawEnvelope) error {
	if err := envelope.Validate(); err != nil {
		return fmt.Errorf("invalid raw envelope: %w", err)
	}

	blob, err := base64.StdEncoding.DecodeString(envelope.AttachmentData)
	if err != nil {
		return fmt.Errorf("decode attachment for source %d: %w", envelope.SourceID, err)
	}

	output, err := e.ocr(ctx, blob)
	if err != nil {
		return fmt.Errorf("analyze expense for source %d: %w", envelope.SourceID, err)
	}

	fields := Flatten(output)
	e.log.Info().Int64("source_id", envelope.SourceID).Int("fields", len(fields)).Msg("document extracted")

	parsed := models.ParsedEnvelope{
		SourceID:         envelope.SourceID,
		AttachmentParsed: fields,
		Timestamp:        e.now().UnixMilli(),
	}
	return e.bus.Publish(ctx, e.out, envelope.SourceID, parsed)
}

// Flatten linearizes an expense analysis into the ordered field list: all
// summary fields of every document first, then every line item field, each
// group preserving the service's order.
func Flatten(output *textract.AnalyzeExpenseOutput) []models.OCRField {
	fields := make([]models.OCRField, 0)
	if output == nil {
		return fields
	}

	for _, doc := range output.ExpenseDocuments {
		for _, f := range doc.SummaryFields {
			fields = append(fields, toField(SourceSummary, f))
		}
	}
	for _, doc := range output.ExpenseDocuments {
		for _, group := range doc.LineItemGroups {
			for _, item := range group.LineItems {
				for _, f := range item.LineItemExpenseFields {
					fields = append(fields, toField(SourceLineItem, f))
				}
			}
		}
	}
	return fields
}

func toField(source string, f *textract.ExpenseField) models.OCRField {
	out := models.OCRField{Source: source}
	if f == nil {
		return out
	}
	if f.LabelDetection != nil {
		out.LabelText = f.LabelDetection.Text
		out.LabelConf = f.LabelDetection.Confidence
	} else if f.Type != nil {
		// Typed fields carry no printed label; the type name stands in.
		out.LabelText = f.Type.Text
		out.LabelConf = f.Type.Confidence
	}
	if f.ValueDetection != nil {
		out.ValueText = f.ValueDetection.Text
		out.ValueConf = f.ValueDetection.Confidence
	}
	return out
}
