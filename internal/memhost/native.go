package memhost

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// nativeContainer is the on-disk shape of this host's multi-layer format.
// Unlike flat exports it carries every layer plus the metadata items, which
// is what lets the export-copy descriptor survive across sessions.
type nativeContainer struct {
	Width    int
	Height   int
	Layers   []nativeLayer
	Metadata map[string][]byte
}

type nativeLayer struct {
	Name    string
	Visible bool
	Image   *image.NRGBA
}

func (h *Host) writeNative(d *Document, path string) error {
	c := nativeContainer{
		Width:    d.width,
		Height:   d.height,
		Metadata: d.metadata,
	}
	for _, l := range d.layers {
		c.Layers = append(c.Layers, nativeLayer{Name: l.name, Visible: l.visible, Image: l.img})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}
	if err := gob.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("encode container %s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("flush %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func (h *Host) readNative(r io.Reader, filename string) (*Document, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", filename, err)
		}
		defer gz.Close()
		r = gz
	}
	var c nativeContainer
	if err := gob.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode container %s: %w", filename, err)
	}
	doc := &Document{
		name:     filename,
		width:    c.Width,
		height:   c.Height,
		metadata: c.Metadata,
	}
	for _, l := range c.Layers {
		doc.layers = append(doc.layers, &Layer{name: l.Name, visible: l.Visible, img: l.Image})
	}
	return doc, nil
}

// Open loads a document from path: the native container, or any decodable
// image as a single background layer. The loaded document carries path as
// its file association.
func (h *Host) Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := h.OpenReader(f, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	doc.filePath = path
	return doc, nil
}

// OpenReader loads a document from r; filename decides between the native
// container and a flat image decode.
func (h *Host) OpenReader(r io.Reader, filename string) (*Document, error) {
	if h.isNative(filename) {
		return h.readNative(r, filename)
	}
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	b := img.Bounds()
	doc := &Document{name: filename, width: b.Dx(), height: b.Dy()}
	doc.layers = append(doc.layers, &Layer{name: "Background", visible: true, img: imaging.Clone(img)})
	return doc, nil
}
