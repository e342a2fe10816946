package stream

import (
	"errors"
	"strings"

	"github.com/tom-schwarz/APv3-frontend/internal/models"
)

// Session is the live state of one in-flight query: the running answer text, the latest citation
// list, and the terminal outcome. Answer text only ever grows; citations are replaced wholesale
// each time a citations event arrives, never merged. A Session is owned by exactly one stream
// loop and is not safe for concurrent use.
type Session struct {
	answer    strings.Builder
	citations []models.Citation
	err       error
	finalized bool
}

// Apply folds one classified event into the session and reports whether the event was terminal.
// Events are applied strictly in arrival order, so the accumulated state always reflects a prefix
// of the server-side event sequence.
func (s *Session) Apply(ev Event) bool {
	switch ev.Kind {
	case KindCitations:
		s.citations = ev.Citations
	case KindDelta:
		s.answer.WriteString(ev.Text)
	case KindError:
		s.err = errors.New(ev.Message)
		return true
	case KindEnd:
		return true
	case KindIgnorable:
	}
	return false
}

// Fail records a transport-level failure, terminating the session.
func (s *Session) Fail(err error) {
	s.err = err
}

// Finalize marks the session complete and reports whether this call won. It returns false if the
// session already finalized or ended in error, so an explicit end frame followed by natural stream
// closure finalizes exactly once and a failed session never produces an assistant turn.
func (s *Session) Finalize() bool {
	if s.finalized || s.err != nil {
		return false
	}
	s.finalized = true
	return true
}

// Answer returns the accumulated answer text.
func (s *Session) Answer() string {
	return s.answer.String()
}

// Citations returns the most recently received citation list.
func (s *Session) Citations() []models.Citation {
	return s.citations
}

// Err returns the terminal error, if any.
func (s *Session) Err() error {
	return s.err
}
