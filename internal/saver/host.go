package saver

import "context"

// SaveResult is the host's verdict on a save operation. The Coordinator
// surfaces host results as-is; it never fabricates a success.
type SaveResult struct {
	Success      bool
	ErrorMessage string
}

// Layer is a handle to a layer owned by the host. The concrete type is
// host-specific; the Coordinator only counts layers and passes them back
// to the host.
type Layer interface {
	Name() string
	Visible() bool
}

// Document is a handle to an open document in the host application.
type Document interface {
	// Dimensions returns the current pixel width and height.
	Dimensions() (width, height int)

	// SelectedLayers returns the layers a save would write, in stacking order.
	SelectedLayers() []Layer

	// SetFilePath records the document's file association.
	SetFilePath(path string)

	// MarkClean clears the document's pending-changes state.
	MarkClean()

	// AttachMetadata attaches (or overwrites) a named metadata item.
	AttachMetadata(name string, data []byte)

	// Metadata returns the named metadata item, if present.
	Metadata(name string) ([]byte, bool)

	// MetadataNames lists the names of all attached metadata items.
	MetadataNames() []string
}

// Host provides the document/layer primitives the Coordinator calls.
// Implementations live outside the core (see internal/memhost for the
// embedded one).
type Host interface {
	// Duplicate creates a working copy of doc. The caller owns it and must
	// release it with Delete.
	Duplicate(ctx context.Context, doc Document) (Document, error)

	// MergeVisibleLayers merges doc's visible layers into one. With
	// clipToImage the result is clipped to the canvas bounds, preserving
	// transparency (never a destructive flatten).
	MergeVisibleLayers(ctx context.Context, doc Document, clipToImage bool) error

	// Scale resizes doc to the given pixel dimensions.
	Scale(ctx context.Context, doc Document, width, height int) error

	// SaveToPath writes the given layers of doc to path, picking the format
	// from the path's extension.
	SaveToPath(ctx context.Context, doc Document, layers []Layer, path string) SaveResult

	// Delete releases a duplicate created by Duplicate.
	Delete(doc Document)
}
