package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"
)

// DocumentReader reads stored source documents via the simple-content
// service. A "document" here is the uploaded working file a save job
// operates on: a native container or any decodable image.
type DocumentReader struct {
	service simplecontent.Service
}

// NewDocumentReader creates a document reader backed by a simple-content service
func NewDocumentReader(service simplecontent.Service) *DocumentReader {
	return &DocumentReader{
		service: service,
	}
}

// GetReaderByContentID returns a reader for the document with the given content ID
func (dr *DocumentReader) GetReaderByContentID(ctx context.Context, contentID string) (io.ReadCloser, error) {
	id, err := uuid.Parse(contentID)
	if err != nil {
		return nil, fmt.Errorf("invalid content ID: %w", err)
	}

	reader, err := dr.service.DownloadContent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to download document: %w", err)
	}

	return reader, nil
}

// GetReader returns a reader for a document (implements storage.Reader).
// The key parameter is expected to be a content ID
func (dr *DocumentReader) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return dr.GetReaderByContentID(ctx, key)
}

// Exists checks if a document exists by content ID
func (dr *DocumentReader) Exists(ctx context.Context, key string) (bool, error) {
	id, err := uuid.Parse(key)
	if err != nil {
		return false, fmt.Errorf("invalid content ID: %w", err)
	}

	_, err = dr.service.GetContent(ctx, id)
	if err != nil {
		// Treat any lookup error as not-exists; the workflow reports a
		// missing source either way.
		return false, nil
	}

	return true, nil
}

// GetMetadata returns metadata for a stored document
func (dr *DocumentReader) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	id, err := uuid.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("invalid content ID: %w", err)
	}

	details, err := dr.service.GetContentDetails(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document details: %w", err)
	}

	return &Metadata{
		Size:        details.FileSize,
		ContentType: details.MimeType,
	}, nil
}
