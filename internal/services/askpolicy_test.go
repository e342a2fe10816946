package services_test

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tom-schwarz/APv3-frontend/internal/models"
	"github.com/tom-schwarz/APv3-frontend/internal/services"
	"github.com/tom-schwarz/APv3-frontend/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collectEvents(t *testing.T, seq iter.Seq2[stream.Event, error]) ([]stream.Event, []error) {
	t.Helper()
	var events []stream.Event
	var errs []error
	for ev, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}

func TestQueryStreaming(t *testing.T) {
	var gotBody struct {
		Message       string `json:"message"`
		SelectedItems struct {
			Agencies []string `json:"agencies"`
		} `json:"selected_items"`
		SessionID string `json:"session_id"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: citations\n")
		_, _ = io.WriteString(w, `data: {"citations":[{"location":{"s3Location":{"uri":"s3://bucket/guide.pdf"}},"generatedResponsePart":{"textResponsePart":{"text":"quoted span"}}}]}`+"\n")
		_, _ = io.WriteString(w, "\n")
		_, _ = io.WriteString(w, "event: delta\ndata: {\"text\":\"Hello \"}\n\n")
		_, _ = io.WriteString(w, "event: delta\ndata: {\"text\":\"world\"}\n\n")
		_, _ = io.WriteString(w, "event: ping\ndata: {}\n\n")
		_, _ = io.WriteString(w, "event: end\ndata: {\"done\":true}\n\n")
	}))
	defer srv.Close()

	client := services.NewAskPolicy(srv.URL, srv.URL, testLogger())
	events, errs := collectEvents(t, client.Query(context.Background(), "what changed?", []string{"DOH"}, "session-1"))

	if len(errs) != 0 {
		t.Fatalf("Query() errors = %v, want none", errs)
	}

	wantKinds := []stream.Kind{stream.KindCitations, stream.KindDelta, stream.KindDelta, stream.KindEnd}
	if len(events) != len(wantKinds) {
		t.Fatalf("Query() yielded %d events, want %d", len(events), len(wantKinds))
	}
	for i, kind := range wantKinds {
		if events[i].Kind != kind {
			t.Errorf("events[%d].Kind = %v, want %v", i, events[i].Kind, kind)
		}
	}

	if len(events[0].Citations) != 1 {
		t.Fatalf("citations event carries %d citations, want 1", len(events[0].Citations))
	}
	if got := events[0].Citations[0].SourceName(); got != "guide" {
		t.Errorf("citation source name = %q, want %q", got, "guide")
	}
	if got := events[0].Citations[0].Quote(); got != "quoted span" {
		t.Errorf("citation quote = %q, want %q", got, "quoted span")
	}
	if events[1].Text+events[2].Text != "Hello world" {
		t.Errorf("delta text = %q, want %q", events[1].Text+events[2].Text, "Hello world")
	}

	if gotBody.Message != "what changed?" {
		t.Errorf("request message = %q, want %q", gotBody.Message, "what changed?")
	}
	if len(gotBody.SelectedItems.Agencies) != 1 || gotBody.SelectedItems.Agencies[0] != "DOH" {
		t.Errorf("request agencies = %v, want [DOH]", gotBody.SelectedItems.Agencies)
	}
	if gotBody.SessionID != "session-1" {
		t.Errorf("request session ID = %q, want %q", gotBody.SessionID, "session-1")
	}
}

func TestQueryImplicitEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.WriteString(w, "event: citations\ndata: {\"citations\":[]}\n\n")
		_, _ = io.WriteString(w, "event: delta\ndata: {\"text\":\"partial answer\"}\n\n")
		// Connection closes mid-frame; the truncated line is discarded.
		_, _ = io.WriteString(w, "data: {\"text\":\"lost")
	}))
	defer srv.Close()

	client := services.NewAskPolicy(srv.URL, srv.URL, testLogger())
	events, errs := collectEvents(t, client.Query(context.Background(), "q", []string{"DOH"}, "s"))

	if len(errs) != 0 {
		t.Fatalf("Query() errors = %v, want none", errs)
	}
	if len(events) != 2 {
		t.Fatalf("Query() yielded %d events, want 2", len(events))
	}
	for _, ev := range events {
		if ev.Kind == stream.KindEnd {
			t.Error("stream without an end frame should not yield an end event")
		}
	}
	if events[1].Text != "partial answer" {
		t.Errorf("delta text = %q, want %q", events[1].Text, "partial answer")
	}
}

func TestQueryErrorFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: delta\ndata: {\"text\":\"Hel\"}\n\n")
		_, _ = io.WriteString(w, "event: error\ndata: {\"message\":\"rate limited\"}\n\n")
		_, _ = io.WriteString(w, "event: delta\ndata: {\"text\":\"never seen\"}\n\n")
	}))
	defer srv.Close()

	client := services.NewAskPolicy(srv.URL, srv.URL, testLogger())
	events, errs := collectEvents(t, client.Query(context.Background(), "q", []string{"DOH"}, "s"))

	if len(errs) != 0 {
		t.Fatalf("Query() errors = %v, want none", errs)
	}
	if len(events) != 2 {
		t.Fatalf("Query() yielded %d events, want 2", len(events))
	}
	if events[1].Kind != stream.KindError {
		t.Fatalf("events[1].Kind = %v, want %v", events[1].Kind, stream.KindError)
	}
	if events[1].Message != "rate limited" {
		t.Errorf("error message = %q, want %q", events[1].Message, "rate limited")
	}
}

func TestQueryWholeBodyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"answer":"The complete answer.","citations":null}`)
	}))
	defer srv.Close()

	client := services.NewAskPolicy(srv.URL, srv.URL, testLogger())
	events, errs := collectEvents(t, client.Query(context.Background(), "q", []string{"DOH"}, "s"))

	if len(errs) != 0 {
		t.Fatalf("Query() errors = %v, want none", errs)
	}
	wantKinds := []stream.Kind{stream.KindCitations, stream.KindDelta, stream.KindEnd}
	if len(events) != len(wantKinds) {
		t.Fatalf("Query() yielded %d events, want %d", len(events), len(wantKinds))
	}
	for i, kind := range wantKinds {
		if events[i].Kind != kind {
			t.Errorf("events[%d].Kind = %v, want %v", i, events[i].Kind, kind)
		}
	}
	if events[0].Citations == nil {
		t.Error("fallback citations should be an empty slice, not nil")
	}
	if events[1].Text != "The complete answer." {
		t.Errorf("answer = %q, want %q", events[1].Text, "The complete answer.")
	}
}

func TestQueryBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := services.NewAskPolicy(srv.URL, srv.URL, testLogger())
	events, errs := collectEvents(t, client.Query(context.Background(), "q", []string{"DOH"}, "s"))

	if len(events) != 0 {
		t.Errorf("Query() yielded %d events, want none", len(events))
	}
	if len(errs) != 1 {
		t.Fatalf("Query() errors = %v, want exactly one", errs)
	}
	if got := errs[0].Error(); got != "query failed with status 500" {
		t.Errorf("error = %q, want %q", got, "query failed with status 500")
	}
}

func TestDiffChatRequest(t *testing.T) {
	var gotBody struct {
		Message         string                 `json:"message"`
		DocumentContext models.DocumentContext `json:"document_context"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"answer":"Summary of changes.","citations":[]}`)
	}))
	defer srv.Close()

	docCtx := models.DocumentContext{
		DocumentTitle: "Privacy Policy",
		Version1:      "v3",
		Version2:      "v2",
		Agency:        "DOH",
	}

	client := services.NewAskPolicy("http://invalid.invalid", srv.URL, testLogger())
	events, errs := collectEvents(t, client.DiffChat(context.Background(), "what changed?", docCtx, "s"))

	if len(errs) != 0 {
		t.Fatalf("DiffChat() errors = %v, want none", errs)
	}
	if len(events) != 3 {
		t.Fatalf("DiffChat() yielded %d events, want 3", len(events))
	}
	if gotBody.Message != "what changed?" {
		t.Errorf("request message = %q, want %q", gotBody.Message, "what changed?")
	}
	if gotBody.DocumentContext != docCtx {
		t.Errorf("request document context = %+v, want %+v", gotBody.DocumentContext, docCtx)
	}
}
