package memhost

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/pixeldock/saver-pipeline/internal/saver"
)

func testDocument(h *Host, w, hgt int) *Document {
	doc := h.NewDocument("test", w, hgt)
	doc.AddLayer("Background", imaging.New(w, hgt, color.NRGBA{R: 40, G: 120, B: 200, A: 255}), true)
	return doc
}

func TestNativeRoundTrip(t *testing.T) {
	h := New()
	dir := t.TempDir()

	for _, name := range []string{"doc.xcf", "doc.xcf.gz"} {
		path := filepath.Join(dir, name)

		doc := testDocument(h, 64, 48)
		doc.AddLayer("Sketch", imaging.New(64, 48, color.NRGBA{R: 200, A: 128}), false)
		doc.AttachMetadata("export-copy", []byte("doc.jpg\n50.0\n32\n24"))

		res := h.SaveToPath(context.Background(), doc, doc.SelectedLayers(), path)
		if !res.Success {
			t.Fatalf("%s: save failed: %s", name, res.ErrorMessage)
		}

		back, err := h.Open(path)
		if err != nil {
			t.Fatalf("%s: open failed: %v", name, err)
		}
		if w, hgt := back.Dimensions(); w != 64 || hgt != 48 {
			t.Fatalf("%s: dimensions %dx%d, want 64x48", name, w, hgt)
		}
		layers := back.SelectedLayers()
		if len(layers) != 2 {
			t.Fatalf("%s: %d layers survived, want 2", name, len(layers))
		}
		if layers[1].Name() != "Sketch" || layers[1].Visible() {
			t.Fatalf("%s: layer attributes lost: %s visible=%v", name, layers[1].Name(), layers[1].Visible())
		}
		data, ok := back.Metadata("export-copy")
		if !ok || string(data) != "doc.jpg\n50.0\n32\n24" {
			t.Fatalf("%s: metadata lost: %q ok=%v", name, data, ok)
		}
		if back.FilePath() != path {
			t.Fatalf("%s: file association %q, want %q", name, back.FilePath(), path)
		}
	}
}

func TestOpenReaderFlatImage(t *testing.T) {
	h := New()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(80, 60, color.NRGBA{G: 255, A: 255}), imaging.PNG); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	doc, err := h.OpenReader(&buf, "photo.png")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if w, hgt := doc.Dimensions(); w != 80 || hgt != 60 {
		t.Fatalf("dimensions %dx%d, want 80x60", w, hgt)
	}
	layers := doc.SelectedLayers()
	if len(layers) != 1 || layers[0].Name() != "Background" {
		t.Fatalf("flat image should open as a single Background layer, got %d", len(layers))
	}
	if doc.FilePath() != "" {
		t.Fatalf("reader-opened document must have no file association, got %q", doc.FilePath())
	}
}

func TestJPEGExportRecordsSaveOptions(t *testing.T) {
	h := New(WithJPEGQuality(75))
	doc := testDocument(h, 32, 32)
	path := filepath.Join(t.TempDir(), "out.jpg")

	res := h.SaveToPath(context.Background(), doc, doc.SelectedLayers(), path)
	if !res.Success {
		t.Fatalf("export failed: %s", res.ErrorMessage)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("exported file missing: %v", err)
	}

	data, ok := doc.Metadata("jpeg-save-options")
	if !ok {
		t.Fatalf("jpeg export did not record save options")
	}
	if string(data) != "quality=75" {
		t.Fatalf("save options: got %q", data)
	}
	if !saver.IsSettingsMetadata("jpeg-save-options") {
		t.Fatalf("recorded options must classify as settings metadata")
	}
}

func TestPNGExportRecordsNoOptions(t *testing.T) {
	h := New()
	doc := testDocument(h, 32, 32)
	path := filepath.Join(t.TempDir(), "out.png")

	res := h.SaveToPath(context.Background(), doc, doc.SelectedLayers(), path)
	if !res.Success {
		t.Fatalf("export failed: %s", res.ErrorMessage)
	}
	if names := doc.MetadataNames(); len(names) != 0 {
		t.Fatalf("png export attached metadata: %v", names)
	}
}

func TestExportUnknownFormatFails(t *testing.T) {
	h := New()
	doc := testDocument(h, 32, 32)
	path := filepath.Join(t.TempDir(), "out.wat")

	res := h.SaveToPath(context.Background(), doc, doc.SelectedLayers(), path)
	if res.Success {
		t.Fatalf("expected failure for unknown export format")
	}
}

func TestScaleResizesCanvasAndLayers(t *testing.T) {
	h := New()
	doc := testDocument(h, 800, 600)

	if err := h.Scale(context.Background(), doc, 200, 150); err != nil {
		t.Fatalf("scale failed: %v", err)
	}
	if w, hgt := doc.Dimensions(); w != 200 || hgt != 150 {
		t.Fatalf("canvas %dx%d, want 200x150", w, hgt)
	}
	b := doc.layers[0].Image().Bounds()
	if b.Dx() != 200 || b.Dy() != 150 {
		t.Fatalf("layer %dx%d, want 200x150", b.Dx(), b.Dy())
	}

	if err := h.Scale(context.Background(), doc, 0, 150); err == nil {
		t.Fatalf("expected error for non-positive scale target")
	}
}

func TestMergeVisibleLayers(t *testing.T) {
	h := New()
	doc := testDocument(h, 64, 48)
	doc.AddLayer("Hidden", imaging.New(64, 48, color.NRGBA{R: 255, A: 255}), false)
	doc.AddLayer("Top", imaging.New(64, 48, color.NRGBA{B: 255, A: 255}), true)

	if err := h.MergeVisibleLayers(context.Background(), doc, true); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	layers := doc.SelectedLayers()
	if len(layers) != 1 {
		t.Fatalf("merge left %d layers, want 1", len(layers))
	}
	if w, hgt := doc.Dimensions(); w != 64 || hgt != 48 {
		t.Fatalf("clipped merge resized canvas to %dx%d", w, hgt)
	}

	// The hidden red layer must not show through the merged result.
	merged := doc.layers[0].Image()
	if c := merged.NRGBAAt(10, 10); c.R == 255 && c.B == 0 {
		t.Fatalf("hidden layer leaked into merge: %+v", c)
	}
}

func TestDuplicateIsIndependent(t *testing.T) {
	h := New()
	doc := testDocument(h, 64, 48)
	doc.AttachMetadata("comment", []byte("original"))

	dupDoc, err := h.Duplicate(context.Background(), doc)
	if err != nil {
		t.Fatalf("duplicate failed: %v", err)
	}
	dup := dupDoc.(*Document)

	dup.AttachMetadata("comment", []byte("changed"))
	if err := h.Scale(context.Background(), dup, 32, 24); err != nil {
		t.Fatalf("scale duplicate: %v", err)
	}

	if data, _ := doc.Metadata("comment"); string(data) != "original" {
		t.Fatalf("duplicate metadata write leaked into original: %q", data)
	}
	if w, hgt := doc.Dimensions(); w != 64 || hgt != 48 {
		t.Fatalf("duplicate scale leaked into original: %dx%d", w, hgt)
	}

	h.Delete(dup)
	if len(doc.SelectedLayers()) != 1 {
		t.Fatalf("deleting the duplicate released the original's layers")
	}
}

// End-to-end: save a native primary plus a quarter-scale jpeg copy, then
// reopen the primary and confirm the descriptor survived on disk.
func TestSaveBothEndToEnd(t *testing.T) {
	h := New()
	coord := saver.New(h)
	dir := t.TempDir()

	doc := testDocument(h, 800, 600)
	primary := filepath.Join(dir, "photo.xcf")

	res := coord.SaveBoth(context.Background(), doc, primary, saver.CopyDescriptor{
		Name: "photo.jpg", Width: 200, Height: 150,
	})
	if !res.Success {
		t.Fatalf("save failed: %s", res.ErrorMessage)
	}

	if doc.FilePath() != primary || doc.Dirty() {
		t.Fatalf("primary commit missing: path=%q dirty=%v", doc.FilePath(), doc.Dirty())
	}
	if w, hgt := doc.Dimensions(); w != 800 || hgt != 600 {
		t.Fatalf("original was scaled: %dx%d", w, hgt)
	}

	copyImg, err := imaging.Open(filepath.Join(dir, "photo.jpg"))
	if err != nil {
		t.Fatalf("copy missing: %v", err)
	}
	if b := copyImg.Bounds(); b.Dx() != 200 || b.Dy() != 150 {
		t.Fatalf("copy is %dx%d, want 200x150", b.Dx(), b.Dy())
	}

	// The descriptor is attached after the primary write, so it reaches
	// disk with the following save.
	desc := coord.InitFromMetadata(doc)
	if desc.Name != "photo.jpg" || desc.Percent != 25.0 || desc.Width != 200 || desc.Height != 150 {
		t.Fatalf("descriptor in memory: %+v", desc)
	}

	res = coord.SaveBoth(context.Background(), doc, primary, desc)
	if !res.Success {
		t.Fatalf("second save failed: %s", res.ErrorMessage)
	}

	back, err := h.Open(primary)
	if err != nil {
		t.Fatalf("reopen primary: %v", err)
	}
	desc = coord.InitFromMetadata(back)
	if desc.Name != "photo.jpg" || desc.Percent != 25.0 || desc.Width != 200 || desc.Height != 150 {
		t.Fatalf("descriptor after reopen: %+v", desc)
	}
}
