package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPDocumentReader reads source documents via the simple-content HTTP API
type HTTPDocumentReader struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPDocumentReader creates a document reader talking to a remote content API
func NewHTTPDocumentReader(baseURL string) *HTTPDocumentReader {
	return &HTTPDocumentReader{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// GetReaderByContentID returns a reader for the document with the given content ID
func (dr *HTTPDocumentReader) GetReaderByContentID(ctx context.Context, contentID string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/api/v1/contents/%s/download", dr.baseURL, contentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := dr.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download document: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// GetReader returns a reader for a document (implements storage.Reader)
func (dr *HTTPDocumentReader) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return dr.GetReaderByContentID(ctx, key)
}

// Exists checks if a document exists by content ID via the HTTP API
func (dr *HTTPDocumentReader) Exists(ctx context.Context, key string) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/contents/%s", dr.baseURL, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := dr.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to check document: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
