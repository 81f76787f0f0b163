package saver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MetadataKey is the metadata item name carrying the persisted copy
// descriptor. It is attached to the primary document so the export target
// survives across sessions when the document is saved in native format.
const MetadataKey = "export-copy"

// ErrMetadataCorrupt reports an export-copy metadata item that could not be
// decoded. Callers recover locally by falling back to defaults; the error
// never crosses the SaveBoth boundary.
var ErrMetadataCorrupt = errors.New("export-copy metadata corrupt")

// legacy writers stored unset fields as this token
const unsetToken = "None"

// CopyDescriptor holds the persisted parameters of the export copy: target
// name, scale percent and pixel dimensions. An empty Name means no copy is
// configured. When Width and Height are both positive, Percent tracks
// Width*100/originalWidth.
type CopyDescriptor struct {
	Name    string
	Percent float64
	Width   int
	Height  int
}

// Encode serializes the descriptor as the newline-joined
// name/percent/width/height blob stored under MetadataKey. Without explicit
// dimensions the numeric fields encode as the 100.0/0/0 sentinel.
func (d CopyDescriptor) Encode() []byte {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Appendf(nil, "%s\n100.0\n0\n0", d.Name)
	}
	return fmt.Appendf(nil, "%s\n%g\n%d\n%d", d.Name, d.Percent, d.Width, d.Height)
}

// DecodeDescriptor parses an export-copy metadata blob. Empty or legacy
// "None" fields read as zero values. Malformed input (wrong field count,
// non-numeric values) returns an error wrapping ErrMetadataCorrupt.
func DecodeDescriptor(data []byte) (CopyDescriptor, error) {
	fields := strings.Split(string(data), "\n")
	if len(fields) != 4 {
		return CopyDescriptor{}, fmt.Errorf("%w: got %d fields, want 4", ErrMetadataCorrupt, len(fields))
	}

	var d CopyDescriptor
	if fields[0] != unsetToken {
		d.Name = fields[0]
	}

	var err error
	if d.Percent, err = parseFloatField(fields[1]); err != nil {
		return CopyDescriptor{}, fmt.Errorf("%w: percent %q: %v", ErrMetadataCorrupt, fields[1], err)
	}
	if d.Width, err = parseIntField(fields[2]); err != nil {
		return CopyDescriptor{}, fmt.Errorf("%w: width %q: %v", ErrMetadataCorrupt, fields[2], err)
	}
	if d.Height, err = parseIntField(fields[3]); err != nil {
		return CopyDescriptor{}, fmt.Errorf("%w: height %q: %v", ErrMetadataCorrupt, fields[3], err)
	}
	return d, nil
}

func parseFloatField(s string) (float64, error) {
	if s == "" || s == unsetToken {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseIntField(s string) (int, error) {
	if s == "" || s == unsetToken {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// IsSettingsMetadata reports whether a metadata item name denotes
// format-specific save settings produced by the host during a save
// (e.g. jpeg quality choices).
func IsSettingsMetadata(name string) bool {
	return strings.HasSuffix(name, "-settings") || strings.HasSuffix(name, "-save-options")
}
