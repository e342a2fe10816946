package models

import "strings"

// Citation is one grounding reference returned by the inference service for an assistant answer.
// The nested location and response-part structures mirror the retrieval service's JSON shape; the
// flat fields are optional enrichments whose presence depends on the service's retrieval confidence.
type Citation struct {
	Location              Location              `json:"location"`
	GeneratedResponsePart GeneratedResponsePart `json:"generatedResponsePart"`

	SourceNumber   int     `json:"source_number,omitempty"`
	DocumentID     string  `json:"document_id,omitempty"`
	Title          string  `json:"title,omitempty"`
	Agency         string  `json:"agency,omitempty"`
	PageNumbers    []int   `json:"page_numbers,omitempty"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// Location identifies where the cited source lives.
type Location struct {
	S3Location S3Location `json:"s3Location"`
}

// S3Location holds the storage URI of the cited source document.
type S3Location struct {
	URI string `json:"uri"`
}

// GeneratedResponsePart carries the span of the generated answer this citation supports.
type GeneratedResponsePart struct {
	TextResponsePart TextResponsePart `json:"textResponsePart"`
}

// TextResponsePart is the quoted text span of a citation.
type TextResponsePart struct {
	Text string `json:"text"`
}

// CanNavigate reports whether the citation carries enough identity to jump to its source document.
// A citation without a document ID and agency is a normal state, not an error; it just can't be
// used for navigation.
func (c Citation) CanNavigate() bool {
	return c.DocumentID != "" && c.Agency != ""
}

// SourceName derives a short display name from the storage URI.
func (c Citation) SourceName() string {
	uri := c.Location.S3Location.URI
	if uri == "" {
		return "Unknown"
	}
	name := uri
	if idx := strings.LastIndex(uri, "/"); idx >= 0 {
		name = uri[idx+1:]
	}
	name = strings.TrimSuffix(name, ".pdf")
	if name == "" {
		return "Unknown"
	}
	return name
}

// Quote returns the cited text span.
func (c Citation) Quote() string {
	return c.GeneratedResponsePart.TextResponsePart.Text
}

// RelevancePercent returns the relevance score as a whole percentage for display.
func (c Citation) RelevancePercent() int {
	return int(c.RelevanceScore*100 + 0.5)
}
