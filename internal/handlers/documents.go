package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// HandleDocumentTree serves the agency-grouped document listing as JSON for sidebar refreshes.
func (m Main) HandleDocumentTree(w http.ResponseWriter, r *http.Request) {
	tree, err := m.documents.Tree(r.Context())
	if err != nil {
		m.logger.Error("Failed to fetch document tree", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tree); err != nil {
		m.logger.Error("Failed to encode document tree", slog.String(errLoggerKey, err.Error()))
	}
}

// HandleDocumentFile proxies document bytes from the document service to the browser's inline
// PDF viewer. The document identifier is the path remainder after the /documents/ prefix.
func (m Main) HandleDocumentFile(w http.ResponseWriter, r *http.Request) {
	documentID := strings.TrimPrefix(r.URL.Path, "/documents/")
	if documentID == "" {
		http.Error(w, "Document ID is required", http.StatusBadRequest)
		return
	}

	body, contentType, err := m.documents.Open(r.Context(), documentID)
	if err != nil {
		m.logger.Error("Failed to open document",
			slog.String("documentID", documentID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, body); err != nil {
		m.logger.Error("Failed to stream document",
			slog.String("documentID", documentID),
			slog.String(errLoggerKey, err.Error()))
	}
}
