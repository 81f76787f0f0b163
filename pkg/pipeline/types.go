package pipeline

// CopySpec describes the optional scaled export copy requested alongside a
// primary save. Width/height win over percent when both are given; a
// percent alone is reconciled against the document's dimensions.
type CopySpec struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent,omitempty"`
	Width   int     `json:"width,omitempty"`
	Height  int     `json:"height,omitempty"`
}

// SaveRequest represents a request to save/export a stored document
type SaveRequest struct {
	ContentID   string            `json:"content_id"`
	ObjectKey   string            `json:"object_key,omitempty"`
	Job         string            `json:"job"` // save_export
	PrimaryName string            `json:"primary_name"`
	Copy        *CopySpec         `json:"copy,omitempty"`
	Versions    map[string]int    `json:"versions"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SaveResponse represents the response from triggering a save
type SaveResponse struct {
	RunID            string `json:"run_id"`
	HistorySeenCount int    `json:"history_seen_count"`
}

// JobType constants
const (
	JobSaveExport = "save_export"
)

// DerivedType constants (match simple-content conventions)
const (
	DerivedTypePrimarySave = "primary_save"
	DerivedTypeExportCopy  = "export_copy"
)
