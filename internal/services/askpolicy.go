package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tom-schwarz/APv3-frontend/internal/models"
	"github.com/tom-schwarz/APv3-frontend/internal/stream"
)

// AskPolicy is the client for the remote inference endpoints: the research chat endpoint scoped
// to selected agencies, and the diff chat endpoint grounded in a document version comparison.
// Both speak the same SSE-like wire format; some deployments answer with a plain JSON body
// instead of a stream, and the client absorbs that difference so callers see a single event
// sequence either way.
type AskPolicy struct {
	chatURL string
	diffURL string

	client *http.Client

	logger *slog.Logger
}

// NewAskPolicy creates an AskPolicy client targeting the given chat and diff-chat endpoint URLs.
func NewAskPolicy(chatURL, diffURL string, logger *slog.Logger) AskPolicy {
	return AskPolicy{
		chatURL: chatURL,
		diffURL: diffURL,
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "askpolicy")),
	}
}

type chatRequest struct {
	Message       string        `json:"message"`
	SelectedItems selectedItems `json:"selected_items"`
	SessionID     string        `json:"session_id"`
}

type selectedItems struct {
	Agencies []string `json:"agencies"`
}

type diffChatRequest struct {
	Message         string                 `json:"message"`
	DocumentContext models.DocumentContext `json:"document_context"`
	SessionID       string                 `json:"session_id"`
}

type wholeBodyResponse struct {
	Answer    string            `json:"answer"`
	Citations []models.Citation `json:"citations"`
}

// Query streams the answer to a research question restricted to the given agencies. The returned
// iterator yields classified stream events and potential errors; it always ends after a terminal
// event (end or error), a transport failure, or stream exhaustion.
func (a AskPolicy) Query(ctx context.Context, query string, agencies []string, sessionID string) iter.Seq2[stream.Event, error] {
	return a.send(ctx, a.chatURL, chatRequest{
		Message:       query,
		SelectedItems: selectedItems{Agencies: agencies},
		SessionID:     sessionID,
	})
}

// DiffChat streams the answer to a follow-up question about a document version comparison.
func (a AskPolicy) DiffChat(ctx context.Context, message string, docCtx models.DocumentContext, sessionID string) iter.Seq2[stream.Event, error] {
	return a.send(ctx, a.diffURL, diffChatRequest{
		Message:         message,
		DocumentContext: docCtx,
		SessionID:       sessionID,
	})
}

func (a AskPolicy) send(ctx context.Context, url string, body any) iter.Seq2[stream.Event, error] {
	return func(yield func(stream.Event, error) bool) {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			yield(stream.Event{}, fmt.Errorf("error marshaling request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
		if err != nil {
			yield(stream.Event{}, fmt.Errorf("error creating request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := a.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield(stream.Event{}, fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			yield(stream.Event{}, fmt.Errorf("query failed with status %d", resp.StatusCode))
			return
		}

		if !streamingContentType(resp.Header.Get("Content-Type")) {
			a.replayWholeBody(resp.Body, yield)
			return
		}

		a.streamEvents(resp.Body, yield)
	}
}

func streamingContentType(contentType string) bool {
	return strings.Contains(contentType, "text/event-stream") ||
		strings.Contains(contentType, "application/octet-stream")
}

// replayWholeBody handles the non-streaming compatibility path: the whole body is one combined
// citations+answer object, replayed as the equivalent event sequence so callers keep a single
// code path.
func (a AskPolicy) replayWholeBody(body io.Reader, yield func(stream.Event, error) bool) {
	var res wholeBodyResponse
	if err := json.NewDecoder(body).Decode(&res); err != nil {
		yield(stream.Event{}, fmt.Errorf("error decoding response: %w", err))
		return
	}

	citations := res.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	if !yield(stream.Event{Kind: stream.KindCitations, Citations: citations}, nil) {
		return
	}
	if !yield(stream.Event{Kind: stream.KindDelta, Text: res.Answer}, nil) {
		return
	}
	yield(stream.Event{Kind: stream.KindEnd}, nil)
}

func (a AskPolicy) streamEvents(body io.Reader, yield func(stream.Event, error) bool) {
	var dec stream.Decoder
	buf := make([]byte, 4096)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, frame := range dec.Feed(buf[:n]) {
				ev := stream.Interpret(frame)
				if ev.Kind == stream.KindIgnorable {
					a.logger.Debug("Dropping frame",
						slog.String("event", frame.Event),
						slog.String("data", frame.Data))
					continue
				}
				if !yield(ev, nil) {
					return
				}
				if ev.Kind == stream.KindEnd || ev.Kind == stream.KindError {
					return
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Stream closed without an explicit end frame; any buffered partial
				// line is discarded and the caller finalizes with what it has.
				if dec.Pending() {
					a.logger.Debug("Discarding incomplete trailing line")
				}
				return
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			yield(stream.Event{}, fmt.Errorf("error reading stream: %w", err))
			return
		}
	}
}
