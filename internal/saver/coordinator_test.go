package saver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

type fakeLayer struct {
	name    string
	visible bool
}

func (l *fakeLayer) Name() string  { return l.name }
func (l *fakeLayer) Visible() bool { return l.visible }

type fakeDoc struct {
	width, height int
	layers        []Layer
	filePath      string
	dirty         bool
	meta          map[string][]byte
}

func newFakeDoc(w, h, layerCount int) *fakeDoc {
	d := &fakeDoc{width: w, height: h, dirty: true, meta: map[string][]byte{}}
	for i := 0; i < layerCount; i++ {
		d.layers = append(d.layers, &fakeLayer{name: fmt.Sprintf("layer %d", i), visible: true})
	}
	return d
}

func (d *fakeDoc) Dimensions() (int, int)  { return d.width, d.height }
func (d *fakeDoc) SelectedLayers() []Layer { return d.layers }
func (d *fakeDoc) SetFilePath(path string) { d.filePath = path }
func (d *fakeDoc) MarkClean()              { d.dirty = false }

func (d *fakeDoc) AttachMetadata(name string, data []byte) {
	d.meta[name] = append([]byte(nil), data...)
}

func (d *fakeDoc) Metadata(name string) ([]byte, bool) {
	data, ok := d.meta[name]
	return data, ok
}

func (d *fakeDoc) MetadataNames() []string {
	names := make([]string, 0, len(d.meta))
	for name := range d.meta {
		names = append(names, name)
	}
	return names
}

type saveCall struct {
	doc        *fakeDoc
	path       string
	layerCount int
}

// fakeHost records every call so tests can assert on the exact sequence of
// host operations a save triggered.
type fakeHost struct {
	saves      []saveCall
	duplicates []*fakeDoc
	merged     []*fakeDoc
	deleted    []*fakeDoc

	failSavePath  string // SaveToPath to this path fails
	failDuplicate bool
	failScale     bool

	// settingsOnExt simulates a host that records format options as
	// metadata on the document it exported (e.g. jpeg quality).
	settingsOnExt  string
	settingsName   string
	settingsValue  []byte
	lastScaleW     int
	lastScaleH     int
	lastScaleCount int
}

func (h *fakeHost) Duplicate(ctx context.Context, doc Document) (Document, error) {
	if h.failDuplicate {
		return nil, errors.New("duplicate refused")
	}
	src := doc.(*fakeDoc)
	dup := &fakeDoc{
		width:  src.width,
		height: src.height,
		layers: append([]Layer(nil), src.layers...),
		dirty:  true,
		meta:   map[string][]byte{},
	}
	for name, data := range src.meta {
		dup.meta[name] = append([]byte(nil), data...)
	}
	h.duplicates = append(h.duplicates, dup)
	return dup, nil
}

func (h *fakeHost) MergeVisibleLayers(ctx context.Context, doc Document, clipToImage bool) error {
	d := doc.(*fakeDoc)
	d.layers = []Layer{&fakeLayer{name: "merged", visible: true}}
	h.merged = append(h.merged, d)
	return nil
}

func (h *fakeHost) Scale(ctx context.Context, doc Document, width, height int) error {
	if h.failScale {
		return errors.New("scale refused")
	}
	d := doc.(*fakeDoc)
	d.width, d.height = width, height
	h.lastScaleW, h.lastScaleH = width, height
	h.lastScaleCount++
	return nil
}

func (h *fakeHost) SaveToPath(ctx context.Context, doc Document, layers []Layer, path string) SaveResult {
	d := doc.(*fakeDoc)
	h.saves = append(h.saves, saveCall{doc: d, path: path, layerCount: len(layers)})
	if path == h.failSavePath {
		return SaveResult{ErrorMessage: "disk full"}
	}
	if h.settingsOnExt != "" && strings.HasSuffix(path, h.settingsOnExt) {
		d.meta[h.settingsName] = append([]byte(nil), h.settingsValue...)
	}
	return SaveResult{Success: true}
}

func (h *fakeHost) Delete(doc Document) {
	h.deleted = append(h.deleted, doc.(*fakeDoc))
}

func (h *fakeHost) wasDeleted(d *fakeDoc) bool {
	for _, del := range h.deleted {
		if del == d {
			return true
		}
	}
	return false
}

func TestSaveBothScaledCopy(t *testing.T) {
	host := &fakeHost{}
	c := New(host)
	doc := newFakeDoc(800, 600, 1)
	primary := filepath.Join(t.TempDir(), "photo.xcf")

	res := c.SaveBoth(context.Background(), doc, primary, CopyDescriptor{
		Name: "photo.jpg", Width: 200, Height: 150,
	})
	if !res.Success {
		t.Fatalf("save failed: %s", res.ErrorMessage)
	}

	if len(host.saves) != 2 {
		t.Fatalf("expected 2 save calls, got %d", len(host.saves))
	}
	if host.saves[0].path != primary || host.saves[0].doc != doc {
		t.Fatalf("first save should write the original to %s, got %+v", primary, host.saves[0])
	}
	wantCopy := filepath.Join(filepath.Dir(primary), "photo.jpg")
	if host.saves[1].path != wantCopy {
		t.Fatalf("copy path: got %q want %q", host.saves[1].path, wantCopy)
	}

	// The copy came from a scaled duplicate, not the original.
	if len(host.duplicates) != 1 || host.saves[1].doc != host.duplicates[0] {
		t.Fatalf("copy should be saved from the working duplicate")
	}
	if host.lastScaleW != 200 || host.lastScaleH != 150 {
		t.Fatalf("scale: got %dx%d want 200x150", host.lastScaleW, host.lastScaleH)
	}
	if w, h := doc.Dimensions(); w != 800 || h != 600 {
		t.Fatalf("original dimensions must be untouched, got %dx%d", w, h)
	}
	if !host.wasDeleted(host.duplicates[0]) {
		t.Fatalf("working duplicate was not released")
	}
	if len(host.merged) != 0 {
		t.Fatalf("single-layer document should not be merged")
	}

	if doc.filePath != primary {
		t.Fatalf("file association: got %q want %q", doc.filePath, primary)
	}
	if doc.dirty {
		t.Fatalf("document should be marked clean after the primary save")
	}

	desc, err := DecodeDescriptor(doc.meta[MetadataKey])
	if err != nil {
		t.Fatalf("persisted descriptor unreadable: %v", err)
	}
	if desc.Name != "photo.jpg" || desc.Percent != 25.0 || desc.Width != 200 || desc.Height != 150 {
		t.Fatalf("persisted descriptor mismatch: %+v", desc)
	}
}

func TestSaveBothSkipsCopyResolvingToPrimary(t *testing.T) {
	host := &fakeHost{}
	c := New(host)
	doc := newFakeDoc(800, 600, 1)
	primary := filepath.Join(t.TempDir(), "photo.xcf")

	res := c.SaveBoth(context.Background(), doc, primary, CopyDescriptor{
		Name: "photo.xcf", Width: 800, Height: 600,
	})
	if !res.Success {
		t.Fatalf("save failed: %s", res.ErrorMessage)
	}
	if len(host.saves) != 1 {
		t.Fatalf("expected exactly 1 save call, got %d", len(host.saves))
	}
	if _, ok := doc.Metadata(MetadataKey); ok {
		t.Fatalf("skipped copy must not persist a descriptor")
	}
	if doc.filePath != primary || doc.dirty {
		t.Fatalf("primary commit missing: path=%q dirty=%v", doc.filePath, doc.dirty)
	}
}

func TestSaveBothSkipsUnconfiguredCopy(t *testing.T) {
	host := &fakeHost{}
	c := New(host)
	doc := newFakeDoc(800, 600, 1)
	primary := filepath.Join(t.TempDir(), "photo.xcf")

	for _, copy := range []CopyDescriptor{
		{},
		{Name: "photo.jpg"},
		{Name: "photo.jpg", Width: 200},
		{Width: 200, Height: 150},
	} {
		host.saves = nil
		res := c.SaveBoth(context.Background(), doc, primary, copy)
		if !res.Success {
			t.Fatalf("copy %+v: save failed: %s", copy, res.ErrorMessage)
		}
		if len(host.saves) != 1 {
			t.Fatalf("copy %+v: expected 1 save call, got %d", copy, len(host.saves))
		}
	}
}

func TestSaveBothUnscaledCopyUnderDifferentName(t *testing.T) {
	host := &fakeHost{}
	c := New(host)
	doc := newFakeDoc(800, 600, 1)
	dir := t.TempDir()
	primary := filepath.Join(dir, "photo.xcf")

	// Same dimensions, different name: still a valid export.
	res := c.SaveBoth(context.Background(), doc, primary, CopyDescriptor{
		Name: "backup.xcf", Width: 800, Height: 600,
	})
	if !res.Success {
		t.Fatalf("save failed: %s", res.ErrorMessage)
	}
	if len(host.saves) != 2 {
		t.Fatalf("expected 2 save calls, got %d", len(host.saves))
	}
	// No scaling and no merging needed: the copy saves straight from the
	// original without a duplicate.
	if len(host.duplicates) != 0 {
		t.Fatalf("no duplicate expected, got %d", len(host.duplicates))
	}
	if host.saves[1].doc != doc {
		t.Fatalf("copy should save directly from the original")
	}
}

func TestSaveBothMergesForNonNativePrimary(t *testing.T) {
	host := &fakeHost{}
	c := New(host)
	doc := newFakeDoc(800, 600, 3)
	primary := filepath.Join(t.TempDir(), "photo.jpg")

	res := c.SaveBoth(context.Background(), doc, primary, CopyDescriptor{})
	if !res.Success {
		t.Fatalf("save failed: %s", res.ErrorMessage)
	}

	if len(host.duplicates) != 1 {
		t.Fatalf("expected a working duplicate for the merged primary save, got %d", len(host.duplicates))
	}
	dup := host.duplicates[0]
	if len(host.merged) != 1 || host.merged[0] != dup {
		t.Fatalf("merge should run on the duplicate, not the original")
	}
	if host.saves[0].doc != dup {
		t.Fatalf("primary save should write the merged duplicate")
	}
	if !host.wasDeleted(dup) {
		t.Fatalf("merged duplicate was not released")
	}
	if len(doc.layers) != 3 {
		t.Fatalf("original must keep its layers, got %d", len(doc.layers))
	}
	if doc.filePath != primary || doc.dirty {
		t.Fatalf("primary commit missing: path=%q dirty=%v", doc.filePath, doc.dirty)
	}
}

func TestSaveBothNativePrimaryKeepsLayers(t *testing.T) {
	host := &fakeHost{}
	c := New(host)
	doc := newFakeDoc(800, 600, 3)
	primary := filepath.Join(t.TempDir(), "photo.xcf")

	res := c.SaveBoth(context.Background(), doc, primary, CopyDescriptor{})
	if !res.Success {
		t.Fatalf("save failed: %s", res.ErrorMessage)
	}
	if len(host.duplicates) != 0 || len(host.merged) != 0 {
		t.Fatalf("native primary save must not duplicate or merge")
	}
	if host.saves[0].doc != doc || host.saves[0].layerCount != 3 {
		t.Fatalf("native save should write all layers of the original: %+v", host.saves[0])
	}
}

func TestSaveBothPrimaryFailure(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "photo.xcf")
	host := &fakeHost{failSavePath: primary}
	c := New(host)
	doc := newFakeDoc(800, 600, 1)

	res := c.SaveBoth(context.Background(), doc, primary, CopyDescriptor{
		Name: "photo.jpg", Width: 200, Height: 150,
	})
	if res.Success {
		t.Fatalf("expected failure")
	}
	if len(host.saves) != 1 {
		t.Fatalf("copy must not be attempted after a failed primary, got %d saves", len(host.saves))
	}
	if doc.filePath != "" {
		t.Fatalf("failed primary must not commit a file association, got %q", doc.filePath)
	}
	if !doc.dirty {
		t.Fatalf("failed primary must leave the document dirty")
	}
	if _, ok := doc.Metadata(MetadataKey); ok {
		t.Fatalf("failed primary must not persist a descriptor")
	}
}

func TestSaveBothCopyFailureKeepsPrimaryCommitted(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "photo.xcf")
	host := &fakeHost{failSavePath: filepath.Join(dir, "photo.jpg")}
	c := New(host)
	doc := newFakeDoc(800, 600, 1)

	res := c.SaveBoth(context.Background(), doc, primary, CopyDescriptor{
		Name: "photo.jpg", Width: 200, Height: 150,
	})
	if res.Success {
		t.Fatalf("expected copy failure to surface in the result")
	}

	// The primary commit survives the failed copy.
	if doc.filePath != primary || doc.dirty {
		t.Fatalf("primary commit lost: path=%q dirty=%v", doc.filePath, doc.dirty)
	}

	// The descriptor was persisted before the copy attempt.
	desc, err := DecodeDescriptor(doc.meta[MetadataKey])
	if err != nil {
		t.Fatalf("descriptor missing after copy failure: %v", err)
	}
	if desc.Name != "photo.jpg" {
		t.Fatalf("descriptor mismatch: %+v", desc)
	}

	// The duplicate is still released.
	if len(host.duplicates) != 1 || !host.wasDeleted(host.duplicates[0]) {
		t.Fatalf("working duplicate leaked after copy failure")
	}
}

func TestSaveBothDuplicateFailure(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "photo.xcf")
	host := &fakeHost{failDuplicate: true}
	c := New(host)
	doc := newFakeDoc(800, 600, 1)

	res := c.SaveBoth(context.Background(), doc, primary, CopyDescriptor{
		Name: "photo.jpg", Width: 200, Height: 150,
	})
	if res.Success {
		t.Fatalf("expected failure when the duplicate cannot be created")
	}
	if doc.filePath != primary || doc.dirty {
		t.Fatalf("primary commit lost: path=%q dirty=%v", doc.filePath, doc.dirty)
	}
}

func TestSaveBothCopiesSettingsBackFromDuplicate(t *testing.T) {
	host := &fakeHost{
		settingsOnExt: ".jpg",
		settingsName:  "jpeg-save-options",
		settingsValue: []byte("quality=90"),
	}
	c := New(host)
	doc := newFakeDoc(800, 600, 1)
	primary := filepath.Join(t.TempDir(), "photo.xcf")

	res := c.SaveBoth(context.Background(), doc, primary, CopyDescriptor{
		Name: "photo.jpg", Width: 400, Height: 300,
	})
	if !res.Success {
		t.Fatalf("save failed: %s", res.ErrorMessage)
	}

	data, ok := doc.Metadata("jpeg-save-options")
	if !ok {
		t.Fatalf("settings recorded on the duplicate were not carried back")
	}
	if string(data) != "quality=90" {
		t.Fatalf("settings mismatch: %q", data)
	}
}

func TestInitFromMetadata(t *testing.T) {
	c := New(&fakeHost{})

	doc := newFakeDoc(800, 600, 1)
	got := c.InitFromMetadata(doc)
	want := CopyDescriptor{Percent: 100.0, Width: 800, Height: 600}
	if got != want {
		t.Fatalf("default descriptor: got %+v want %+v", got, want)
	}

	stored := CopyDescriptor{Name: "photo.jpg", Percent: 25, Width: 200, Height: 150}
	doc.AttachMetadata(MetadataKey, stored.Encode())
	if got := c.InitFromMetadata(doc); got != stored {
		t.Fatalf("stored descriptor: got %+v want %+v", got, stored)
	}

	doc.AttachMetadata(MetadataKey, []byte("garbage"))
	if got := c.InitFromMetadata(doc); got != want {
		t.Fatalf("corrupt descriptor should fall back to default: got %+v", got)
	}
}
