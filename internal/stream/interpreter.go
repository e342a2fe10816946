package stream

import (
	"encoding/json"

	"github.com/tom-schwarz/APv3-frontend/internal/models"
)

// Kind classifies a frame into one of the semantic events the chat flows react to.
type Kind int

const (
	// KindIgnorable covers keep-alive and bookkeeping frames (ping, start, metadata), frames
	// whose payload is not valid JSON, and anything else that carries no state.
	KindIgnorable Kind = iota
	// KindCitations replaces the session's citation list wholesale.
	KindCitations
	// KindDelta appends an answer text fragment.
	KindDelta
	// KindError terminates the session with a server-reported message.
	KindError
	// KindEnd terminates the session successfully.
	KindEnd
)

// Event is one classified stream event. Only the field matching Kind is meaningful.
type Event struct {
	Kind      Kind
	Citations []models.Citation
	Text      string
	Message   string
}

type framePayload struct {
	Citations json.RawMessage `json:"citations"`
	Text      string          `json:"text"`
	Message   *string         `json:"message"`
	Done      bool            `json:"done"`
}

// Interpret classifies a single frame. The explicit event name is the primary signal, but some
// server variants omit the "event:" line entirely and rely on payload shape alone, so each class
// also accepts its structural form. Frames whose data payload is not valid JSON are dropped as
// ignorable; truncated or keep-alive noise must never surface as a user-facing error. Valid JSON
// that is not an object carries no extractable fields but still classifies by its event name.
func Interpret(f Frame) Event {
	var p framePayload
	if err := json.Unmarshal([]byte(f.Data), &p); err != nil {
		if !json.Valid([]byte(f.Data)) {
			return Event{Kind: KindIgnorable}
		}
		p = framePayload{}
	}

	citationsArray := len(p.Citations) > 0 && p.Citations[0] == '['

	switch {
	case f.Event == "citations" || citationsArray:
		citations := []models.Citation{}
		if citationsArray {
			// A malformed citations array degrades to an empty list rather than an error.
			_ = json.Unmarshal(p.Citations, &citations)
		}
		return Event{Kind: KindCitations, Citations: citations}
	case f.Event == "delta" || p.Text != "":
		return Event{Kind: KindDelta, Text: p.Text}
	case f.Event == "error" || p.Message != nil:
		msg := "stream error"
		if p.Message != nil && *p.Message != "" {
			msg = *p.Message
		}
		return Event{Kind: KindError, Message: msg}
	case f.Event == "end" || p.Done:
		return Event{Kind: KindEnd}
	default:
		return Event{Kind: KindIgnorable}
	}
}
