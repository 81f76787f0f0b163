package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"
)

// ExportWriter stores the files a save run produces (the primary save and
// the optional export copy) as derived content of the source document.
type ExportWriter struct {
	service simplecontent.Service
}

// NewExportWriter creates an export writer backed by a simple-content service
func NewExportWriter(service simplecontent.Service) *ExportWriter {
	return &ExportWriter{
		service: service,
	}
}

// HasDerived checks if an output already exists for the given type/version
func (ew *ExportWriter) HasDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int) (bool, error) {
	parentID, err := uuid.Parse(contentID)
	if err != nil {
		return false, fmt.Errorf("invalid content ID: %w", err)
	}

	derived, err := ew.service.ListDerivedContent(ctx,
		simplecontent.WithParentID(parentID),
		simplecontent.WithDerivationType(derivedType),
	)
	if err != nil {
		return false, fmt.Errorf("failed to list derived content: %w", err)
	}

	// simple-content stores a variant string (e.g. "primary_save_v1"), not
	// a bare version; presence of the derivation type is enough here since
	// a re-save with a new version uses a new variant.
	variant := fmt.Sprintf("%s_v%d", derivedType, derivedVersion)
	for _, d := range derived {
		if d.DerivationType == derivedType && (d.Variant == "" || d.Variant == variant) {
			return true, nil
		}
	}

	return false, nil
}

// PutDerived uploads one produced file and returns its derived content ID
func (ew *ExportWriter) PutDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int, r io.Reader, meta map[string]string) (string, error) {
	parentID, err := uuid.Parse(contentID)
	if err != nil {
		return "", fmt.Errorf("invalid content ID: %w", err)
	}

	variant := fmt.Sprintf("%s_v%d", derivedType, derivedVersion)

	fileName := meta["file_name"]
	if fileName == "" {
		fileName = fmt.Sprintf("%s.dat", variant)
	}

	derivedContent, err := ew.service.UploadDerivedContent(ctx, simplecontent.UploadDerivedContentRequest{
		ParentID:       parentID,
		DerivationType: derivedType,
		Variant:        variant,
		Reader:         r,
		FileName:       fileName,
		Tags:           []string{derivedType, variant},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload derived content: %w", err)
	}

	return derivedContent.ID.String(), nil
}
