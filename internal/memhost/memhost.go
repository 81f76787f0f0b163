// Package memhost is an in-process implementation of the saver host
// interfaces, backed by in-memory NRGBA layers. It plays the role the
// editing application plays in production; the standalone service and the
// tests drive the Coordinator against it.
package memhost

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"os"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/pixeldock/saver-pipeline/internal/saver"
)

const defaultJPEGQuality = 90

// Layer is one named layer of a document.
type Layer struct {
	name    string
	visible bool
	img     *image.NRGBA
}

// Name returns the layer name.
func (l *Layer) Name() string { return l.name }

// Visible reports whether the layer participates in merges and exports.
func (l *Layer) Visible() bool { return l.visible }

// Image returns the layer's pixel data.
func (l *Layer) Image() *image.NRGBA { return l.img }

// Document implements saver.Document. Layers are kept in bottom-up
// stacking order; this host treats every layer as selected.
type Document struct {
	name     string
	width    int
	height   int
	layers   []*Layer
	filePath string
	dirty    bool
	metadata map[string][]byte
}

// Name returns the document name.
func (d *Document) Name() string { return d.name }

// Dimensions returns the canvas size in pixels.
func (d *Document) Dimensions() (int, int) { return d.width, d.height }

// SelectedLayers returns all layers, bottom-up.
func (d *Document) SelectedLayers() []saver.Layer {
	out := make([]saver.Layer, len(d.layers))
	for i, l := range d.layers {
		out[i] = l
	}
	return out
}

// FilePath returns the document's file association, if any.
func (d *Document) FilePath() string { return d.filePath }

// SetFilePath records the document's file association.
func (d *Document) SetFilePath(path string) { d.filePath = path }

// Dirty reports whether the document has unsaved changes.
func (d *Document) Dirty() bool { return d.dirty }

// MarkClean clears the pending-changes state.
func (d *Document) MarkClean() { d.dirty = false }

// AttachMetadata attaches or overwrites a named metadata item.
func (d *Document) AttachMetadata(name string, data []byte) {
	if d.metadata == nil {
		d.metadata = make(map[string][]byte)
	}
	d.metadata[name] = append([]byte(nil), data...)
}

// Metadata returns the named metadata item, if present.
func (d *Document) Metadata(name string) ([]byte, bool) {
	data, ok := d.metadata[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// MetadataNames lists the names of all attached metadata items.
func (d *Document) MetadataNames() []string {
	names := make([]string, 0, len(d.metadata))
	for name := range d.metadata {
		names = append(names, name)
	}
	return names
}

// AddLayer appends a layer on top of the stack. The image is cloned, so
// the caller keeps ownership of img.
func (d *Document) AddLayer(name string, img image.Image, visible bool) *Layer {
	l := &Layer{name: name, visible: visible, img: imaging.Clone(img)}
	d.layers = append(d.layers, l)
	d.dirty = true
	return l
}

// Host implements saver.Host in process.
type Host struct {
	nativeExt   string
	jpegQuality int
}

// Option configures a Host.
type Option func(*Host)

// WithNativeExtension overrides the native container extension
// (default ".xcf").
func WithNativeExtension(ext string) Option {
	return func(h *Host) { h.nativeExt = ext }
}

// WithJPEGQuality sets the quality used for JPEG exports (default 90).
func WithJPEGQuality(q int) Option {
	return func(h *Host) { h.jpegQuality = q }
}

// New creates an in-process host.
func New(opts ...Option) *Host {
	h := &Host{
		nativeExt:   saver.DefaultNativeExtension,
		jpegQuality: defaultJPEGQuality,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewDocument creates an empty document with the given canvas size.
func (h *Host) NewDocument(name string, width, height int) *Document {
	return &Document{
		name:   name,
		width:  width,
		height: height,
		dirty:  true,
	}
}

// Duplicate deep-copies doc. The caller owns the duplicate and releases it
// with Delete.
func (h *Host) Duplicate(ctx context.Context, doc saver.Document) (saver.Document, error) {
	d, err := h.own(doc)
	if err != nil {
		return nil, err
	}
	dup := &Document{
		name:   d.name + " copy",
		width:  d.width,
		height: d.height,
		dirty:  d.dirty,
	}
	for _, l := range d.layers {
		dup.layers = append(dup.layers, &Layer{
			name:    l.name,
			visible: l.visible,
			img:     imaging.Clone(l.img),
		})
	}
	if d.metadata != nil {
		dup.metadata = make(map[string][]byte, len(d.metadata))
		for name, data := range d.metadata {
			dup.metadata[name] = append([]byte(nil), data...)
		}
	}
	return dup, nil
}

// MergeVisibleLayers composites doc's visible layers bottom-up into a
// single layer. With clipToImage the result is clipped to the canvas;
// otherwise the canvas grows to the largest layer.
func (h *Host) MergeVisibleLayers(ctx context.Context, doc saver.Document, clipToImage bool) error {
	d, err := h.own(doc)
	if err != nil {
		return err
	}
	w, hgt := d.width, d.height
	if !clipToImage {
		for _, l := range d.layers {
			if !l.visible {
				continue
			}
			b := l.img.Bounds()
			if b.Dx() > w {
				w = b.Dx()
			}
			if b.Dy() > hgt {
				hgt = b.Dy()
			}
		}
	}
	merged := compositeLayers(layersOf(d), w, hgt)
	d.layers = []*Layer{{name: "Merged", visible: true, img: merged}}
	d.width, d.height = w, hgt
	d.dirty = true
	return nil
}

// Scale resizes the canvas and every layer to the given dimensions using
// Lanczos resampling.
func (h *Host) Scale(ctx context.Context, doc saver.Document, width, height int) error {
	d, err := h.own(doc)
	if err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid scale target %dx%d", width, height)
	}
	for _, l := range d.layers {
		l.img = imaging.Resize(l.img, width, height, imaging.Lanczos)
	}
	d.width, d.height = width, height
	d.dirty = true
	return nil
}

// SaveToPath writes the given layers of doc to path. Native paths get the
// full multi-layer container including metadata; anything else is
// composited and encoded by extension. A successful JPEG export records
// the encoder options as a settings metadata item on doc.
func (h *Host) SaveToPath(ctx context.Context, doc saver.Document, layers []saver.Layer, path string) saver.SaveResult {
	d, err := h.own(doc)
	if err != nil {
		return saver.SaveResult{ErrorMessage: err.Error()}
	}
	if h.isNative(path) {
		err = h.writeNative(d, path)
	} else {
		err = h.writeExport(d, layers, path)
	}
	if err != nil {
		return saver.SaveResult{ErrorMessage: err.Error()}
	}
	return saver.SaveResult{Success: true}
}

// Delete releases a duplicate.
func (h *Host) Delete(doc saver.Document) {
	if d, err := h.own(doc); err == nil {
		d.layers = nil
		d.metadata = nil
	}
}

func (h *Host) writeExport(d *Document, layers []saver.Layer, path string) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return fmt.Errorf("export format for %q: %w", path, err)
	}

	own := make([]*Layer, 0, len(layers))
	for _, l := range layers {
		ml, ok := l.(*Layer)
		if !ok {
			return fmt.Errorf("foreign layer handle %T", l)
		}
		own = append(own, ml)
	}
	img := compositeLayers(own, d.width, d.height)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	var opts []imaging.EncodeOption
	if format == imaging.JPEG {
		opts = append(opts, imaging.JPEGQuality(h.jpegQuality))
	}
	if err := imaging.Encode(f, img, format, opts...); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	// Record the options the encoder actually used, the way the real host
	// remembers jpeg settings chosen during an export.
	if format == imaging.JPEG {
		d.AttachMetadata("jpeg-save-options", fmt.Appendf(nil, "quality=%d", h.jpegQuality))
	}
	return nil
}

// isNative mirrors the Coordinator's classification for this host's own
// container format, including the compressed variant.
func (h *Host) isNative(path string) bool {
	lower := strings.ToLower(path)
	lower = strings.TrimSuffix(lower, ".gz")
	return strings.HasSuffix(lower, h.nativeExt)
}

func (h *Host) own(doc saver.Document) (*Document, error) {
	d, ok := doc.(*Document)
	if !ok {
		return nil, fmt.Errorf("foreign document handle %T", doc)
	}
	return d, nil
}

func layersOf(d *Document) []*Layer { return d.layers }

// compositeLayers draws the visible layers bottom-up over a transparent
// canvas of the given size.
func compositeLayers(layers []*Layer, width, height int) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	for _, l := range layers {
		if !l.visible {
			continue
		}
		draw.Draw(canvas, canvas.Bounds(), l.img, l.img.Bounds().Min, draw.Over)
	}
	return canvas
}
