package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tom-schwarz/APv3-frontend/internal/models"
)

// Documents is the client for the document service: the agency-grouped tree listing and the
// byte-serving endpoint used to feed the inline PDF viewer.
type Documents struct {
	listURL string
	fileURL string

	client *http.Client
}

// NewDocuments creates a Documents client. listURL is the tree listing endpoint; fileURL is the
// base URL the document identifier is appended to for byte retrieval.
func NewDocuments(listURL, fileURL string) Documents {
	return Documents{
		listURL: listURL,
		fileURL: strings.TrimSuffix(fileURL, "/") + "/",
		client:  &http.Client{},
	}
}

// Tree retrieves the full agency-grouped document listing.
func (d Documents) Tree(ctx context.Context) (models.DocumentTree, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.listURL, nil)
	if err != nil {
		return models.DocumentTree{}, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return models.DocumentTree{}, fmt.Errorf("error fetching document tree: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.DocumentTree{}, fmt.Errorf("document tree request failed with status %d", resp.StatusCode)
	}

	var tree models.DocumentTree
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return models.DocumentTree{}, fmt.Errorf("error decoding document tree: %w", err)
	}
	return tree, nil
}

// Open fetches the raw bytes of a document for proxying to the browser. It returns the body,
// the upstream content type, and an error. The caller owns the returned reader.
func (d Documents) Open(ctx context.Context, documentID string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.fileURL+documentID, nil)
	if err != nil {
		return nil, "", fmt.Errorf("error creating request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("error fetching document %s: %w", documentID, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("document %s request failed with status %d", documentID, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	return resp.Body, contentType, nil
}
