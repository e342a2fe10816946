package models

// DocumentTree is the agency-grouped document listing returned by the documents service.
type DocumentTree struct {
	Agencies map[string]AgencyDocuments `json:"agencies"`
}

// AgencyDocuments holds the documents belonging to one agency.
type AgencyDocuments struct {
	Documents []Document `json:"documents"`
}

// Document is one entry of the document tree.
type Document struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	IndexedInKB bool   `json:"indexed_in_kb"`
}

// Ready reports whether the document has finished server-side processing.
func (d Document) Ready() bool {
	return d.Status == "processed"
}

// DocumentContext carries the document and version identifiers for a diff-chat exchange,
// grounding the follow-up conversation in the diffed text.
type DocumentContext struct {
	DocumentTitle string `json:"documentTitle,omitempty"`
	Version1      string `json:"version1,omitempty"`
	Version2      string `json:"version2,omitempty"`
	Agency        string `json:"agency,omitempty"`
	VersionText   string `json:"versionText,omitempty"`
	SummaryText   string `json:"summaryText,omitempty"`
}
