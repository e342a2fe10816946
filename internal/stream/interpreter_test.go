package stream_test

import (
	"testing"

	"github.com/tom-schwarz/APv3-frontend/internal/stream"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name  string
		frame stream.Frame
		want  stream.Kind
	}{
		{
			name:  "citations by event name",
			frame: stream.Frame{Event: "citations", Data: `{"citations":[{"document_id":"d1"}]}`},
			want:  stream.KindCitations,
		},
		{
			name:  "citations by payload shape",
			frame: stream.Frame{Event: "", Data: `{"citations":[{"document_id":"d1"}]}`},
			want:  stream.KindCitations,
		},
		{
			name:  "citations name with missing field",
			frame: stream.Frame{Event: "citations", Data: `{}`},
			want:  stream.KindCitations,
		},
		{
			name:  "delta by event name",
			frame: stream.Frame{Event: "delta", Data: `{"text":"hi"}`},
			want:  stream.KindDelta,
		},
		{
			name:  "delta by payload shape",
			frame: stream.Frame{Event: "", Data: `{"text":"hi"}`},
			want:  stream.KindDelta,
		},
		{
			name:  "error by event name",
			frame: stream.Frame{Event: "error", Data: `{}`},
			want:  stream.KindError,
		},
		{
			name:  "error by payload shape",
			frame: stream.Frame{Event: "", Data: `{"message":"rate limited"}`},
			want:  stream.KindError,
		},
		{
			name:  "end by event name",
			frame: stream.Frame{Event: "end", Data: `{"done":true}`},
			want:  stream.KindEnd,
		},
		{
			name:  "end by payload shape",
			frame: stream.Frame{Event: "", Data: `{"done":true}`},
			want:  stream.KindEnd,
		},
		{
			name:  "ping is ignorable",
			frame: stream.Frame{Event: "ping", Data: `{"timestamp":123}`},
			want:  stream.KindIgnorable,
		},
		{
			name:  "start is ignorable",
			frame: stream.Frame{Event: "start", Data: `{}`},
			want:  stream.KindIgnorable,
		},
		{
			name:  "metadata is ignorable",
			frame: stream.Frame{Event: "metadata", Data: `{"model":"x"}`},
			want:  stream.KindIgnorable,
		},
		{
			name:  "malformed json is dropped",
			frame: stream.Frame{Event: "delta", Data: `{"text":"trunc`},
			want:  stream.KindIgnorable,
		},
		{
			name:  "nameless non-object json is dropped",
			frame: stream.Frame{Event: "", Data: `"just a string"`},
			want:  stream.KindIgnorable,
		},
		{
			name:  "citations name with bare array payload",
			frame: stream.Frame{Event: "citations", Data: `[{"document_id":"d1"}]`},
			want:  stream.KindCitations,
		},
		{
			name:  "end name with non-object payload",
			frame: stream.Frame{Event: "end", Data: `"bye"`},
			want:  stream.KindEnd,
		},
		{
			name:  "citations as non-array does not match citations",
			frame: stream.Frame{Event: "", Data: `{"citations":"nope","done":true}`},
			want:  stream.KindEnd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stream.Interpret(tt.frame)
			if got.Kind != tt.want {
				t.Errorf("Interpret(%+v).Kind = %v, want %v", tt.frame, got.Kind, tt.want)
			}
		})
	}
}

// TestInterpretFallbackEquivalence verifies a frame with no event name classifies identically
// to one carrying the explicit name, for every event class.
func TestInterpretFallbackEquivalence(t *testing.T) {
	pairs := []struct {
		event string
		data  string
	}{
		{"citations", `{"citations":[{"document_id":"d1","agency":"Treasury"}]}`},
		{"delta", `{"text":"hi"}`},
		{"error", `{"message":"boom"}`},
		{"end", `{"done":true}`},
	}

	for _, p := range pairs {
		t.Run(p.event, func(t *testing.T) {
			named := stream.Interpret(stream.Frame{Event: p.event, Data: p.data})
			bare := stream.Interpret(stream.Frame{Event: "", Data: p.data})

			if named.Kind != bare.Kind {
				t.Fatalf("kinds diverge: named=%v bare=%v", named.Kind, bare.Kind)
			}
			if named.Text != bare.Text || named.Message != bare.Message ||
				len(named.Citations) != len(bare.Citations) {
				t.Errorf("payload extraction diverges: named=%+v bare=%+v", named, bare)
			}
		})
	}
}

func TestInterpretExtraction(t *testing.T) {
	ev := stream.Interpret(stream.Frame{Event: "citations", Data: `{"citations":[
		{"location":{"s3Location":{"uri":"s3://bucket/policies/guide.pdf"}},
		 "generatedResponsePart":{"textResponsePart":{"text":"quoted span"}},
		 "document_id":"doc-1","agency":"Treasury","page_numbers":[3,4],"relevance_score":0.87}
	]}`})
	if ev.Kind != stream.KindCitations {
		t.Fatalf("Kind = %v, want KindCitations", ev.Kind)
	}
	if len(ev.Citations) != 1 {
		t.Fatalf("got %d citations, want 1", len(ev.Citations))
	}
	c := ev.Citations[0]
	if c.Location.S3Location.URI != "s3://bucket/policies/guide.pdf" {
		t.Errorf("URI = %q", c.Location.S3Location.URI)
	}
	if c.Quote() != "quoted span" {
		t.Errorf("Quote() = %q", c.Quote())
	}
	if !c.CanNavigate() {
		t.Error("CanNavigate() = false for citation with document and agency")
	}
	if c.SourceName() != "guide" {
		t.Errorf("SourceName() = %q, want %q", c.SourceName(), "guide")
	}

	ev = stream.Interpret(stream.Frame{Event: "citations", Data: `[{"document_id":"doc-1"}]`})
	if ev.Kind != stream.KindCitations {
		t.Fatalf("Kind = %v, want KindCitations for named frame with bare array", ev.Kind)
	}
	if ev.Citations == nil || len(ev.Citations) != 0 {
		t.Errorf("bare array payload citations = %v, want empty list", ev.Citations)
	}

	ev = stream.Interpret(stream.Frame{Event: "error", Data: `{"something":"else"}`})
	if ev.Message != "stream error" {
		t.Errorf("default error message = %q, want %q", ev.Message, "stream error")
	}

	ev = stream.Interpret(stream.Frame{Event: "error", Data: `{"message":"rate limited"}`})
	if ev.Message != "rate limited" {
		t.Errorf("error message = %q, want %q", ev.Message, "rate limited")
	}
}
