package saver

import (
	"context"
	"fmt"
	"log"
)

// Coordinator orchestrates the combined save/export: it performs the
// primary save (merging a working duplicate when the target format cannot
// hold multiple layers), commits the file association, persists the copy
// descriptor, and produces the optional scaled export copy.
type Coordinator struct {
	host      Host
	nativeExt string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNativeExtension overrides the extension treated as the host's native
// multi-layer format (default ".xcf").
func WithNativeExtension(ext string) Option {
	return func(c *Coordinator) { c.nativeExt = ext }
}

// New creates a Coordinator driving the given host.
func New(host Host, opts ...Option) *Coordinator {
	c := &Coordinator{
		host:      host,
		nativeExt: DefaultNativeExtension,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SaveBoth saves doc to primaryPath and, when the descriptor asks for one,
// an independently scaled copy colocated with the primary.
//
// The primary save commits the document's file association and clean flag
// as soon as it succeeds; a later copy failure is reported in the result
// but never rolls the primary back. The descriptor is attached to the
// document before the copy save is attempted so it survives a failed copy.
func (c *Coordinator) SaveBoth(ctx context.Context, doc Document, primaryPath string, copy CopyDescriptor) SaveResult {
	layers := doc.SelectedLayers()

	var res SaveResult
	if c.IsNativeFormat(primaryPath) || len(layers) < 2 {
		res = c.host.SaveToPath(ctx, doc, layers, primaryPath)
	} else {
		// Non-native target with multiple layers: merge a working duplicate
		// so the original keeps its layers. Merge-visible clipped to the
		// canvas, not a flatten, so transparency survives.
		dup, err := c.host.Duplicate(ctx, doc)
		if err != nil {
			return SaveResult{ErrorMessage: fmt.Sprintf("duplicate for primary save: %v", err)}
		}
		if err := c.host.MergeVisibleLayers(ctx, dup, true); err != nil {
			c.host.Delete(dup)
			return SaveResult{ErrorMessage: fmt.Sprintf("merge for primary save: %v", err)}
		}
		res = c.host.SaveToPath(ctx, dup, dup.SelectedLayers(), primaryPath)
		c.host.Delete(dup)
		log.Printf("merged layers then saved to %s", primaryPath)
	}
	if !res.Success {
		return res
	}

	// The important part is done: record the file association and mark the
	// document clean before anything copy-related can fail.
	doc.SetFilePath(primaryPath)
	doc.MarkClean()

	origW, origH := doc.Dimensions()

	// Copy eligibility. Equal dimensions alone do not skip: an unscaled
	// copy under a different name is still a valid export. Only a name that
	// resolves to the primary's own path, or an unconfigured descriptor,
	// skips the copy.
	if copy.Name == "" || copy.Width <= 0 || copy.Height <= 0 ||
		ResolveCopyPath(copy.Name, primaryPath) == primaryPath {
		return res
	}

	// Persist the descriptor before attempting the copy save so it is
	// remembered even if the copy fails.
	desc := CopyDescriptor{
		Name:    copy.Name,
		Percent: float64(copy.Width) * 100.0 / float64(origW),
		Width:   copy.Width,
		Height:  copy.Height,
	}
	doc.AttachMetadata(MetadataKey, desc.Encode())

	copyPath := ResolveCopyPath(copy.Name, primaryPath)

	// The copy source is a working duplicate whenever scaling or merging is
	// needed. It is owned by this call and released on every exit path.
	var dup Document
	defer func() {
		if dup != nil {
			c.host.Delete(dup)
		}
	}()

	scaling := copy.Width != origW || copy.Height != origH
	needsMerge := len(doc.SelectedLayers()) > 1 && !c.IsNativeFormat(copyPath)

	src := doc
	switch {
	case scaling:
		d, err := c.host.Duplicate(ctx, doc)
		if err != nil {
			return SaveResult{ErrorMessage: fmt.Sprintf("duplicate for copy: %v", err)}
		}
		dup = d
		if err := c.host.Scale(ctx, dup, copy.Width, copy.Height); err != nil {
			return SaveResult{ErrorMessage: fmt.Sprintf("scale copy to %dx%d: %v", copy.Width, copy.Height, err)}
		}
		if needsMerge {
			if err := c.host.MergeVisibleLayers(ctx, dup, true); err != nil {
				return SaveResult{ErrorMessage: fmt.Sprintf("merge copy: %v", err)}
			}
		}
		src = dup
		log.Printf("scaled copy to %dx%d (merge=%v)", copy.Width, copy.Height, needsMerge)
	case needsMerge:
		d, err := c.host.Duplicate(ctx, doc)
		if err != nil {
			return SaveResult{ErrorMessage: fmt.Sprintf("duplicate for copy: %v", err)}
		}
		dup = d
		if err := c.host.MergeVisibleLayers(ctx, dup, true); err != nil {
			return SaveResult{ErrorMessage: fmt.Sprintf("merge copy: %v", err)}
		}
		src = dup
		log.Printf("merging copy without scaling")
	default:
		// Single layer at original size: save directly from the original.
	}

	copyRes := c.host.SaveToPath(ctx, src, src.SelectedLayers(), copyPath)
	if !copyRes.Success {
		// Primary stays committed; partial success is acceptable.
		return copyRes
	}

	// Pick up any format settings (e.g. jpeg options) the host recorded on
	// the duplicate during the copy save, so the next save reuses them.
	// When the copy saved directly from the original there is nothing to
	// carry over.
	if dup != nil {
		copySettingsMetadata(dup, doc)
	}
	return copyRes
}

// InitFromMetadata reads the persisted export-copy descriptor off doc.
// On absence or corruption it returns the default descriptor: no copy,
// percent 100, dimensions equal to the document's current size.
func (c *Coordinator) InitFromMetadata(doc Document) CopyDescriptor {
	w, h := doc.Dimensions()
	fallback := CopyDescriptor{Percent: 100.0, Width: w, Height: h}

	data, ok := doc.Metadata(MetadataKey)
	if !ok {
		return fallback
	}
	desc, err := DecodeDescriptor(data)
	if err != nil {
		log.Printf("ignoring corrupt %s metadata: %v", MetadataKey, err)
		return fallback
	}
	return desc
}

func copySettingsMetadata(from, to Document) {
	for _, name := range from.MetadataNames() {
		if !IsSettingsMetadata(name) {
			continue
		}
		if data, ok := from.Metadata(name); ok {
			to.AttachMetadata(name, data)
		}
	}
}
