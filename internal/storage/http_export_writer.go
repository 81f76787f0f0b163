package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPExportWriter stores produced files via the simple-content HTTP API
type HTTPExportWriter struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPExportWriter creates an export writer talking to a remote content API
func NewHTTPExportWriter(baseURL string) *HTTPExportWriter {
	return &HTTPExportWriter{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// HasDerived checks if an output already exists for the given type/version
func (ew *HTTPExportWriter) HasDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int) (bool, error) {
	// TODO: query derived listing via the HTTP API; until then re-save
	return false, nil
}

// PutDerived uploads one produced file via the simple-content HTTP API
func (ew *HTTPExportWriter) PutDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int, r io.Reader, meta map[string]string) (string, error) {
	variant := fmt.Sprintf("%s_v%d", derivedType, derivedVersion)

	fileName := meta["file_name"]
	if fileName == "" {
		fileName = fmt.Sprintf("%s.dat", variant)
	}

	// The API takes the payload inline, so buffer it
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read output: %w", err)
	}

	reqBody := map[string]interface{}{
		"parent_id":       contentID,
		"derivation_type": derivedType,
		"variant":         variant,
		"file_name":       fileName,
		"tags":            []string{derivedType, variant},
		"content_data":    string(data),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/contents/%s/derived", ew.baseURL, contentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ew.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create derived content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("create derived failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	derivedID, ok := result["id"].(string)
	if !ok {
		return "", fmt.Errorf("no ID in response")
	}

	return derivedID, nil
}
