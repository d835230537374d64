// Package ingress hosts the webhook sink and the per-user conversation state
// machine. The Flow owns all conversational state: webhook handlers and the
// verifier's programmatic trigger both funnel through it, and no other
// component mutates a session.
package ingress

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/boletoflow/boletoflow/internal/chat"
	"github.com/boletoflow/boletoflow/internal/models"
)

// State is the conversational position of one source id.
type State int

const (
	StateIdle State = iota
	StateAwaitYesNo
	StateAwaitType
	StateAwaitAmount
)

// Callback data values used on inline keyboards.
const (
	CallbackYes        = "financiamento_sim"
	CallbackNo         = "financiamento_nao"
	CallbackAutomobile = "tipo_automovel"
	CallbackProperty   = "tipo_imovel"
)

// ChatGateway is the outbound chat surface the flow depends on.
type ChatGateway interface {
	SendText(ctx context.Context, chatID int64, text string)
	SendTextWithButtons(ctx context.Context, chatID int64, text string, keyboard chat.InlineKeyboard)
	EditTextAndClearButtons(ctx context.Context, chatID, messageID int64, text string)
	ClearButtonsImmediately(ctx context.Context, chatID, messageID int64)
	AckCallback(ctx context.Context, callbackID string)
	FetchFileBytes(ctx context.Context, fileID string) ([]byte, error)
}

// Publisher publishes envelopes to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, sourceID int64, payload interface{}) error
}

// session is the per-source conversational state. pending holds the
// agent_analysis captured when the verifier started the flow; it is destroyed
// on every terminal transition.
type session struct {
	state         State
	financingType string
	pending       *models.AgentAnalysis
}

// Flow is the conversation state machine. It is safe for concurrent use: the
// mutex guards the state maps, and the in-flight set admits one event per
// source at a time, so chat and bus round-trips never interleave for the
// same conversation.
type Flow struct {
	mu                 sync.Mutex
	sessions           map[int64]*session
	processedCallbacks map[string]struct{}
	inflight           map[int64]struct{}

	chat          ChatGateway
	bus           Publisher
	rawTopic      string
	verifiedTopic string
	now           func() time.Time
	log           zerolog.Logger
}

// NewFlow builds the state machine.
func NewFlow(gateway ChatGateway, publisher Publisher, rawTopic, verifiedTopic string, log zerolog.Logger) *Flow {
	return &Flow{
		sessions:           make(map[int64]*session),
		processedCallbacks: make(map[string]struct{}),
		inflight:           make(map[int64]struct{}),
		chat:               gateway,
		bus:                publisher,
		rawTopic:           rawTopic,
		verifiedTopic:      verifiedTopic,
		now:                time.Now,
		log:                log,
	}
}

// HandleUpdate dispatches one webhook update. It never returns an error: the
// webhook endpoint always acknowledges, and failures are user-facing
// messages or log lines.
func (f *Flow) HandleUpdate(ctx context.Context, update *chat.Update) {
	if update.CallbackQuery != nil {
		f.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil || update.Message.Chat == nil {
		return
	}

	msg := update.Message
	chatID := msg.Chat.ID

	switch {
	case len(msg.Photo) > 0:
		// Telegram orders photo sizes smallest first; take the largest.
		f.handleAttachment(ctx, chatID, msg.Photo[len(msg.Photo)-1].FileID, models.AttachmentImage)
	case msg.Document != nil:
		f.handleAttachment(ctx, chatID, msg.Document.FileID, models.AttachmentDocument)
	case msg.Text != "":
		f.handleText(ctx, chatID, strings.TrimSpace(msg.Text))
	}
}

// State returns the current state for a source id; used by tests.
func (f *Flow) State(sourceID int64) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sourceID]; ok {
		return s.state
	}
	return StateIdle
}

// Trigger starts the financing-type collection on behalf of the verifier,
// storing the analysis for the eventual verified envelope.
func (f *Flow) Trigger(ctx context.Context, sourceID int64, analysis *models.AgentAnalysis) {
	f.mu.Lock()
	f.sessions[sourceID] = &session{state: StateAwaitType, pending: analysis}
	f.mu.Unlock()

	f.chat.SendTextWithButtons(ctx, sourceID, msgOpportunity, typeKeyboard())
	f.log.Info().Int64("source_id", sourceID).Msg("financing flow triggered")
}

// claim admits one event for a source; concurrent events are dropped until
// release. Dropping is safe: every inbound event is either retryable by the
// user or a duplicate of the one in flight.
func (f *Flow) claim(chatID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.inflight[chatID]; busy {
		return false
	}
	f.inflight[chatID] = struct{}{}
	return true
}

func (f *Flow) release(chatID int64) {
	f.mu.Lock()
	delete(f.inflight, chatID)
	f.mu.Unlock()
}

func (f *Flow) handleText(ctx context.Context, chatID int64, text string) {
	if !f.claim(chatID) {
		return
	}
	defer f.release(chatID)

	f.mu.Lock()
	sess, ok := f.sessions[chatID]
	if ok && sess.state == StateAwaitAmount {
		financingType := sess.financingType
		pending := sess.pending
		f.mu.Unlock()
		f.handleAmount(ctx, chatID, text, financingType, pending)
		return
	}

	if text == "/financiamento" {
		f.sessions[chatID] = &session{state: StateAwaitYesNo}
		f.mu.Unlock()
		f.chat.SendTextWithButtons(ctx, chatID, msgAskFinancing, yesNoKeyboard())
		return
	}
	f.mu.Unlock()
	f.chat.SendText(ctx, chatID, msgHelp)
}

func (f *Flow) handleAmount(ctx context.Context, chatID int64, text, financingType string, pending *models.AgentAnalysis) {
	value, err := ParseAmount(text)
	if err != nil {
		// State unchanged: the user gets another attempt.
		f.chat.SendText(ctx, chatID, msgInvalidAmount)
		return
	}

	if pending != nil {
		envelope := models.VerifiedEnvelope{
			SourceID:      chatID,
			AgentAnalysis: *pending,
			FinancingInfo: models.FinancingInfo{Type: financingType, Value: value},
			Timestamp:     f.now().UnixMilli(),
		}
		if err := f.bus.Publish(ctx, f.verifiedTopic, chatID, envelope); err != nil {
			f.log.Error().Err(err).Int64("source_id", chatID).Msg("publish verified envelope failed")
			f.chat.SendText(ctx, chatID, msgInternalError)
			return
		}
		f.log.Info().Int64("source_id", chatID).Str("type", financingType).Float64("value", value).Msg("verified envelope published")
	}

	f.chat.SendText(ctx, chatID, amountConfirmation(financingType, value))

	f.mu.Lock()
	delete(f.sessions, chatID)
	f.mu.Unlock()
}

func (f *Flow) handleAttachment(ctx context.Context, chatID int64, fileID, attachmentType string) {
	if !f.claim(chatID) {
		return
	}
	defer f.release(chatID)

	f.mu.Lock()
	if sess, ok := f.sessions[chatID]; ok && sess.state != StateIdle {
		f.mu.Unlock()
		f.chat.SendText(ctx, chatID, msgFinishPrevious)
		return
	}
	f.mu.Unlock()

	blob, err := f.chat.FetchFileBytes(ctx, fileID)
	if err != nil {
		f.log.Error().Err(err).Int64("source_id", chatID).Msg("file fetch failed")
		f.chat.SendText(ctx, chatID, msgFileError)
		return
	}

	envelope := models.RawEnvelope{
		SourceID:       chatID,
		AttachmentType: attachmentType,
		AttachmentData: base64.StdEncoding.EncodeToString(blob),
		Timestamp:      f.now().UnixMilli(),
	}
	if err := f.bus.Publish(ctx, f.rawTopic, chatID, envelope); err != nil {
		f.log.Error().Err(err).Int64("source_id", chatID).Msg("publish raw envelope failed")
		f.chat.SendText(ctx, chatID, msgFileError)
		return
	}
	f.chat.SendText(ctx, chatID, msgFileReceived)
}

func (f *Flow) handleCallback(ctx context.Context, cb *chat.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		f.chat.AckCallback(ctx, cb.ID)
		return
	}
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID

	f.mu.Lock()
	if _, seen := f.processedCallbacks[cb.ID]; seen {
		f.mu.Unlock()
		f.chat.AckCallback(ctx, cb.ID)
		return
	}
	if _, busy := f.inflight[chatID]; busy {
		f.mu.Unlock()
		f.chat.AckCallback(ctx, cb.ID)
		return
	}
	f.processedCallbacks[cb.ID] = struct{}{}
	f.inflight[chatID] = struct{}{}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.inflight, chatID)
		f.mu.Unlock()
		f.chat.AckCallback(ctx, cb.ID)
	}()

	// Close the multi-click window before any slower round-trip.
	f.chat.ClearButtonsImmediately(ctx, chatID, messageID)

	switch cb.Data {
	case CallbackYes, CallbackNo:
		f.handleYesNo(ctx, chatID, messageID, cb.Data == CallbackYes)
	case CallbackAutomobile, CallbackProperty:
		f.handleTypeChoice(ctx, chatID, messageID, cb.Data)
	default:
		f.log.Warn().Str("data", cb.Data).Int64("source_id", chatID).Msg("unknown callback data")
	}
}

func (f *Flow) handleYesNo(ctx context.Context, chatID, messageID int64, yes bool) {
	f.mu.Lock()
	sess, ok := f.sessions[chatID]
	if !ok || sess.state != StateAwaitYesNo {
		f.mu.Unlock()
		return
	}
	if yes {
		sess.state = StateAwaitType
	} else {
		delete(f.sessions, chatID)
	}
	f.mu.Unlock()

	if yes {
		f.chat.EditTextAndClearButtons(ctx, chatID, messageID, msgAnsweredYes)
		f.chat.SendTextWithButtons(ctx, chatID, msgAskType, typeKeyboard())
	} else {
		f.chat.EditTextAndClearButtons(ctx, chatID, messageID, msgAnsweredNo)
		f.chat.SendText(ctx, chatID, msgClosureNo)
	}
}

func (f *Flow) handleTypeChoice(ctx context.Context, chatID, messageID int64, data string) {
	financingType := models.FinancingAutomobile
	label := labelAutomobile
	if data == CallbackProperty {
		financingType = models.FinancingProperty
		label = labelProperty
	}

	f.mu.Lock()
	sess, ok := f.sessions[chatID]
	if !ok || sess.state != StateAwaitType {
		f.mu.Unlock()
		return
	}
	sess.state = StateAwaitAmount
	sess.financingType = financingType
	f.mu.Unlock()

	f.chat.EditTextAndClearButtons(ctx, chatID, messageID, fmt.Sprintf("✅ Escolhido: %s", label))
	f.chat.SendText(ctx, chatID, askAmount(label))
}

func yesNoKeyboard() chat.InlineKeyboard {
	return chat.InlineKeyboard{InlineKeyboard: [][]chat.InlineButton{{
		{Text: "✅ Sim", CallbackData: CallbackYes},
		{Text: "❌ Não", CallbackData: CallbackNo},
	}}}
}

func typeKeyboard() chat.InlineKeyboard {
	return chat.InlineKeyboard{InlineKeyboard: [][]chat.InlineButton{{
		{Text: "🚗 Automóvel", CallbackData: CallbackAutomobile},
		{Text: "🏠 Imóvel", CallbackData: CallbackProperty},
	}}}
}

// Grouped-thousands shapes: "50.000" / "1.250.000" (pt-BR) and "50,000" /
// "1,250,000" (en). Either is an integer, not a decimal.
var (
	groupedThousandsDot   = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
	groupedThousandsComma = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)
)

// ParseAmount parses a user-typed monetary value. Digits, dots and commas
// are kept; whichever of "." / "," appears last is the decimal separator,
// except that a single-separator value in grouped-thousands shape is an
// integer. Non-positive values are rejected.
func ParseAmount(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, fmt.Errorf("no numeric content in %q", text)
	}

	lastComma := strings.LastIndexByte(cleaned, ',')
	lastDot := strings.LastIndexByte(cleaned, '.')
	switch {
	case lastComma > lastDot:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		if groupedThousandsComma.MatchString(cleaned) {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			// Only the final comma is the decimal separator.
			last := strings.LastIndexByte(cleaned, ',')
			cleaned = strings.ReplaceAll(cleaned[:last], ",", "") + "." + cleaned[last+1:]
		}
	case lastDot > lastComma:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		if groupedThousandsDot.MatchString(cleaned) {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		} else if strings.Count(cleaned, ".") > 1 {
			// Keep only the final dot as decimal separator.
			last := strings.LastIndexByte(cleaned, '.')
			cleaned = strings.ReplaceAll(cleaned[:last], ".", "") + cleaned[last:]
		}
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", text, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("non-positive value %v", value)
	}
	return value, nil
}
