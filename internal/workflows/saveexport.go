package workflows

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pixeldock/saver-pipeline/internal/memhost"
	"github.com/pixeldock/saver-pipeline/internal/metrics"
	"github.com/pixeldock/saver-pipeline/internal/reconcile"
	"github.com/pixeldock/saver-pipeline/internal/saver"
	"github.com/pixeldock/saver-pipeline/internal/storage"
	"github.com/pixeldock/saver-pipeline/pkg/pipeline"
)

// DocumentReader interface for reading source documents
type DocumentReader interface {
	GetReaderByContentID(ctx context.Context, contentID string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// ExportWriter interface for storing produced files
type ExportWriter interface {
	HasDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int) (bool, error)
	PutDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int, r io.Reader, meta map[string]string) (string, error)
}

// SaveExportWorkflow runs the combined save/export against a stored
// document: it downloads the source blob, opens it in the in-process host,
// resolves the copy descriptor (the request wins over the persisted
// export-copy metadata), drives the Coordinator into a scoped work
// directory, and uploads the primary save and the export copy as derived
// content.
type SaveExportWorkflow struct {
	documents DocumentReader
	exports   ExportWriter
	host      *memhost.Host
	coord     *saver.Coordinator
}

// NewSaveExportWorkflow creates a save/export workflow
func NewSaveExportWorkflow(documents DocumentReader, exports ExportWriter) *SaveExportWorkflow {
	host := memhost.New()
	return &SaveExportWorkflow{
		documents: documents,
		exports:   exports,
		host:      host,
		coord:     saver.New(host),
	}
}

// Name returns the workflow name
func (w *SaveExportWorkflow) Name() string {
	return "SaveExportWorkflow"
}

// Execute runs the save/export workflow
func (w *SaveExportWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	timer := prometheus.NewTimer(metrics.SaveDuration.WithLabelValues(wctx.Request.Job))
	defer timer.ObserveDuration()

	log.Printf("[%s] Starting save/export workflow for content_id=%s", wctx.RunID, wctx.Request.ContentID)

	// Step 1: Validate request
	if err := w.validateRequest(&wctx.Request); err != nil {
		log.Printf("[%s] Validation failed: %v", wctx.RunID, err)
		return &WorkflowResult{
			Success: false,
			Error:   fmt.Errorf("validation failed: %w", err),
		}, err
	}

	primaryVersion := wctx.Request.Versions[pipeline.DerivedTypePrimarySave]
	copyVersion := wctx.Request.Versions[pipeline.DerivedTypeExportCopy]
	if copyVersion < 1 {
		copyVersion = primaryVersion
	}

	// Step 2: Skip if this save version already exists
	hasPrimary, err := w.exports.HasDerived(wctx.Ctx, wctx.Request.ContentID, pipeline.DerivedTypePrimarySave, primaryVersion)
	if err != nil {
		log.Printf("[%s] Failed to check existing saves: %v", wctx.RunID, err)
		// Continue anyway - don't fail on check error
	} else if hasPrimary {
		log.Printf("[%s] Save already exists (version=%d) - skipping", wctx.RunID, primaryVersion)
		return &WorkflowResult{
			Success: true,
			Outputs: map[string]interface{}{
				"content_id": wctx.Request.ContentID,
				"version":    primaryVersion,
				"skipped":    true,
			},
		}, nil
	}

	// Step 3: Check the source document exists
	exists, err := w.documents.Exists(wctx.Ctx, wctx.Request.ContentID)
	if err != nil {
		log.Printf("[%s] Failed to check document existence: %v", wctx.RunID, err)
		return &WorkflowResult{
			Success: false,
			Error:   fmt.Errorf("document check failed: %w", err),
		}, err
	}
	if !exists {
		log.Printf("[%s] Source document not found: %s", wctx.RunID, wctx.Request.ContentID)
		return &WorkflowResult{
			Success: false,
			Error:   fmt.Errorf("source document not found: %s", wctx.Request.ContentID),
		}, nil
	}

	// Step 4: Download and open the source document
	reader, err := w.documents.GetReaderByContentID(wctx.Ctx, wctx.Request.ContentID)
	if err != nil {
		log.Printf("[%s] Failed to download source document: %v", wctx.RunID, err)
		return &WorkflowResult{
			Success: false,
			Error:   fmt.Errorf("download failed: %w", err),
		}, err
	}
	defer reader.Close()

	doc, err := w.host.OpenReader(reader, sourceFileName(&wctx.Request))
	if err != nil {
		log.Printf("[%s] Failed to open document: %v", wctx.RunID, err)
		return &WorkflowResult{
			Success: false,
			Error:   fmt.Errorf("document open failed: %w", err),
		}, err
	}
	origW, origH := doc.Dimensions()
	log.Printf("[%s] Document opened: %dx%d, %d layer(s)", wctx.RunID, origW, origH, len(doc.SelectedLayers()))

	// Step 5: Resolve the copy descriptor
	desc := w.resolveDescriptor(doc, &wctx.Request)
	if desc.Name != "" {
		log.Printf("[%s] Copy target: %s (%dx%d, %.1f%%)", wctx.RunID, desc.Name, desc.Width, desc.Height, desc.Percent)
	}

	// Step 6: Save into a scoped work directory
	workDir, err := os.MkdirTemp("", "saver-run-")
	if err != nil {
		return &WorkflowResult{
			Success: false,
			Error:   fmt.Errorf("work directory: %w", err),
		}, err
	}
	defer os.RemoveAll(workDir)

	workArea, err := storage.NewWorkArea(workDir)
	if err != nil {
		return &WorkflowResult{
			Success: false,
			Error:   fmt.Errorf("work area: %w", err),
		}, err
	}
	primaryPath, err := workArea.Path(wctx.Request.PrimaryName)
	if err != nil {
		return &WorkflowResult{
			Success: false,
			Error:   fmt.Errorf("%w: %v", ErrInvalidRequest, err),
		}, err
	}

	res := w.coord.SaveBoth(wctx.Ctx, doc, primaryPath, desc)

	primaryCommitted := doc.FilePath() != ""
	if !primaryCommitted {
		metrics.SavesTotal.WithLabelValues("primary", "failed").Inc()
		log.Printf("[%s] Primary save failed: %s", wctx.RunID, res.ErrorMessage)
		err := fmt.Errorf("%w: primary save: %s", ErrStepFailed, res.ErrorMessage)
		return &WorkflowResult{Success: false, Error: err}, err
	}
	metrics.SavesTotal.WithLabelValues("primary", "ok").Inc()

	outputs := map[string]interface{}{
		"content_id":   wctx.Request.ContentID,
		"primary_name": wctx.Request.PrimaryName,
		"width":        origW,
		"height":       origH,
	}

	// Step 7: Upload the primary save
	primaryFile, err := workArea.GetReader(wctx.Ctx, wctx.Request.PrimaryName)
	if err != nil {
		return &WorkflowResult{
			Success: false,
			Error:   fmt.Errorf("read primary output: %w", err),
		}, err
	}
	primaryID, err := w.exports.PutDerived(wctx.Ctx, wctx.Request.ContentID, pipeline.DerivedTypePrimarySave, primaryVersion, primaryFile, map[string]string{
		"file_name": wctx.Request.PrimaryName,
		"width":     strconv.Itoa(origW),
		"height":    strconv.Itoa(origH),
	})
	primaryFile.Close()
	if err != nil {
		return &WorkflowResult{
			Success: false,
			Error:   fmt.Errorf("upload primary save: %w", err),
		}, err
	}
	outputs["primary_derived_id"] = primaryID
	log.Printf("[%s] Primary save uploaded: %s", wctx.RunID, primaryID)

	// Copy failure is partial success: the primary save stays committed
	// and uploaded, the failure is reported alongside it.
	if !res.Success {
		metrics.SavesTotal.WithLabelValues("copy", "failed").Inc()
		log.Printf("[%s] Copy save failed: %s", wctx.RunID, res.ErrorMessage)
		outputs["copy_error"] = res.ErrorMessage
		return &WorkflowResult{Success: true, Outputs: outputs}, nil
	}

	// Step 8: Upload the export copy, if one was produced
	copyUploaded := false
	if desc.Name != "" && !filepath.IsAbs(desc.Name) {
		if ok, _ := workArea.Exists(wctx.Ctx, desc.Name); ok && desc.Name != wctx.Request.PrimaryName {
			copyFile, err := workArea.GetReader(wctx.Ctx, desc.Name)
			if err != nil {
				return &WorkflowResult{
					Success: false,
					Error:   fmt.Errorf("read copy output: %w", err),
				}, err
			}
			copyID, err := w.exports.PutDerived(wctx.Ctx, wctx.Request.ContentID, pipeline.DerivedTypeExportCopy, copyVersion, copyFile, map[string]string{
				"file_name": desc.Name,
				"width":     strconv.Itoa(desc.Width),
				"height":    strconv.Itoa(desc.Height),
				"percent":   strconv.FormatFloat(desc.Percent, 'f', 1, 64),
			})
			copyFile.Close()
			if err != nil {
				return &WorkflowResult{
					Success: false,
					Error:   fmt.Errorf("upload export copy: %w", err),
				}, err
			}
			outputs["copy_derived_id"] = copyID
			outputs["copy_name"] = desc.Name
			outputs["copy_width"] = desc.Width
			outputs["copy_height"] = desc.Height
			copyUploaded = true
			metrics.SavesTotal.WithLabelValues("copy", "ok").Inc()
			log.Printf("[%s] Export copy uploaded: %s", wctx.RunID, copyID)
		}
	}
	if !copyUploaded {
		metrics.SavesTotal.WithLabelValues("copy", "skipped").Inc()
		outputs["copy_skipped"] = true
	}

	log.Printf("[%s] Save/export workflow completed successfully", wctx.RunID)
	return &WorkflowResult{Success: true, Outputs: outputs}, nil
}

// resolveDescriptor builds the copy descriptor for this run. An explicit
// request wins; otherwise the descriptor persisted on the document from a
// previous save applies. Partial requests (percent only, one dimension
// only) are completed by the reconciler.
func (w *SaveExportWorkflow) resolveDescriptor(doc *memhost.Document, req *pipeline.SaveRequest) saver.CopyDescriptor {
	if req.Copy == nil {
		return w.coord.InitFromMetadata(doc)
	}

	spec := req.Copy
	origW, origH := doc.Dimensions()
	session := reconcile.NewSession(origW, origH)
	switch {
	case spec.Width > 0:
		session.SetWidth(spec.Width)
	case spec.Height > 0:
		session.SetHeight(spec.Height)
	case spec.Percent > 0:
		session.SetPercent(spec.Percent)
	}

	desc := saver.CopyDescriptor{Name: spec.Name}
	desc.Percent, desc.Width, desc.Height = session.Values()
	if spec.Width > 0 && spec.Height > 0 {
		// Explicit dimensions may change the aspect ratio; honor them.
		desc.Width, desc.Height = spec.Width, spec.Height
	}
	return desc
}

// validateRequest validates the workflow request
func (w *SaveExportWorkflow) validateRequest(req *pipeline.SaveRequest) error {
	if req.PrimaryName == "" {
		return fmt.Errorf("%w: primary_name is required", ErrInvalidRequest)
	}
	if filepath.Base(req.PrimaryName) != req.PrimaryName {
		return fmt.Errorf("%w: primary_name must be a bare file name", ErrInvalidRequest)
	}
	if filepath.Ext(req.PrimaryName) == "" {
		return fmt.Errorf("%w: primary_name needs a format extension", ErrInvalidRequest)
	}
	if req.Copy != nil && req.Copy.Name != "" && filepath.Base(req.Copy.Name) != req.Copy.Name {
		return fmt.Errorf("%w: copy name must be a bare file name", ErrInvalidRequest)
	}

	version, ok := req.Versions[pipeline.DerivedTypePrimarySave]
	if !ok {
		return fmt.Errorf("%w: primary_save version not provided in versions map", ErrInvalidRequest)
	}
	if version < 1 {
		return fmt.Errorf("%w: invalid primary_save version: %d", ErrInvalidRequest, version)
	}
	return nil
}

// sourceFileName picks the name used to decode the downloaded blob: the
// uploaded file name when known, falling back to the object key, then to
// the requested primary name.
func sourceFileName(req *pipeline.SaveRequest) string {
	if name := req.Metadata["file_name"]; name != "" {
		return name
	}
	if req.ObjectKey != "" {
		return filepath.Base(req.ObjectKey)
	}
	return req.PrimaryName
}
