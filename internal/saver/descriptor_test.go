package saver

import (
	"errors"
	"testing"
)

func TestDescriptorRoundTrip(t *testing.T) {
	d := CopyDescriptor{Name: "photo.jpg", Percent: 25, Width: 200, Height: 150}

	got, err := DecodeDescriptor(d.Encode())
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, d)
	}
}

func TestDescriptorEncodeSentinelWithoutDimensions(t *testing.T) {
	d := CopyDescriptor{Name: "photo.jpg", Percent: 42.0}

	if got, want := string(d.Encode()), "photo.jpg\n100.0\n0\n0"; got != want {
		t.Fatalf("encode mismatch: got %q want %q", got, want)
	}

	back, err := DecodeDescriptor(d.Encode())
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if back.Percent != 100.0 || back.Width != 0 || back.Height != 0 {
		t.Fatalf("sentinel decode mismatch: %+v", back)
	}
}

func TestDecodeDescriptorLegacyUnsetFields(t *testing.T) {
	got, err := DecodeDescriptor([]byte("copy.png\n\nNone\n"))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if got.Name != "copy.png" || got.Percent != 0 || got.Width != 0 || got.Height != 0 {
		t.Fatalf("legacy decode mismatch: %+v", got)
	}

	// A legacy "None" name means no copy configured.
	got, err = DecodeDescriptor([]byte("None\n100.0\n0\n0"))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if got.Name != "" {
		t.Fatalf("expected empty name, got %q", got.Name)
	}
}

func TestDecodeDescriptorCorrupt(t *testing.T) {
	cases := []string{
		"",
		"photo.jpg\n50.0\n400",
		"photo.jpg\n50.0\n400\n300\nextra",
		"photo.jpg\nnot-a-number\n400\n300",
		"photo.jpg\n50.0\n4x0\n300",
		"photo.jpg\n50.0\n400\nhigh",
	}
	for _, blob := range cases {
		if _, err := DecodeDescriptor([]byte(blob)); !errors.Is(err, ErrMetadataCorrupt) {
			t.Fatalf("blob %q: expected ErrMetadataCorrupt, got %v", blob, err)
		}
	}
}

func TestIsSettingsMetadata(t *testing.T) {
	for name, want := range map[string]bool{
		"jpeg-settings":     true,
		"jpeg-save-options": true,
		"png-save-options":  true,
		"export-copy":       false,
		"comment":           false,
	} {
		if got := IsSettingsMetadata(name); got != want {
			t.Fatalf("IsSettingsMetadata(%q) = %v, want %v", name, got, want)
		}
	}
}
