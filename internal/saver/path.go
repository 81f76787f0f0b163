package saver

import "path/filepath"

// ResolveCopyPath turns a user-supplied copy name into a concrete save
// path. Absolute names pass through unchanged; relative names are placed
// in the primary document's directory. Resolution is purely syntactic --
// no filesystem existence check is performed.
func ResolveCopyPath(copyName, primaryPath string) string {
	if filepath.IsAbs(copyName) {
		return copyName
	}
	return filepath.Join(filepath.Dir(primaryPath), copyName)
}
