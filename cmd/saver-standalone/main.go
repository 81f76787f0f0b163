package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-content/pkg/simplecontent"
	"github.com/tendant/simple-content/pkg/simplecontent/presets"

	"github.com/pixeldock/saver-pipeline/internal/storage"
	"github.com/pixeldock/saver-pipeline/internal/workflows"
	"github.com/pixeldock/saver-pipeline/pkg/pipeline"
)

// Standalone saver service for quick testing
// Uses in-memory repository + filesystem storage (./dev-data)
// No external simple-content server needed
func main() {
	// Configuration from environment
	httpAddr := os.Getenv("SAVER_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	storageDir := os.Getenv("STORAGE_DIR")
	if storageDir == "" {
		storageDir = "./dev-data"
	}

	log.Printf("Saver Standalone Service")
	log.Printf("  Mode: Embedded (in-memory DB + filesystem storage)")
	log.Printf("  Storage directory: %s", storageDir)
	log.Printf("  HTTP address: %s", httpAddr)

	// Initialize simple-content service with development preset
	svc, cleanup, err := presets.NewDevelopment(
		presets.WithDevStorage(storageDir),
	)
	if err != nil {
		log.Fatalf("Failed to initialize simple-content service: %v", err)
	}
	defer cleanup()

	log.Printf("simple-content service initialized")

	// Storage adapters over the embedded service
	documents := storage.NewDocumentReader(svc)
	exports := storage.NewExportWriter(svc)

	// Workflow runner (synchronous; no DBOS in standalone mode)
	workflowRunner := workflows.NewWorkflowRunner(nil)

	saveWorkflow := workflows.NewSaveExportWorkflow(documents, exports)
	workflowRunner.Register(pipeline.JobSaveExport, saveWorkflow)
	log.Printf("Registered workflow: %s for job: %s", saveWorkflow.Name(), pipeline.JobSaveExport)

	mux := http.NewServeMux()

	handler := &Handler{
		workflowRunner: workflowRunner,
		service:        svc,
	}

	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/v1/save", handler.handleSave)
	mux.HandleFunc("/v1/test", handler.handleTest)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("Saver service ready on %s", httpAddr)
		log.Printf("")
		log.Printf("Quick test:")
		log.Printf("  curl http://localhost:8080/v1/test")
		log.Printf("")
		log.Printf("Available endpoints:")
		log.Printf("  GET  /health   - Health check")
		log.Printf("  POST /v1/save  - Save/export a stored document (requires existing content_id)")
		log.Printf("  GET  /v1/test  - Run end-to-end test (upload + save + verify)")
		log.Printf("  GET  /metrics  - Prometheus metrics")
		log.Printf("")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// handleHealth returns health status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"mode":   "standalone",
	})
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	workflowRunner *workflows.WorkflowRunner
	service        simplecontent.Service
}

// handleSave handles the /v1/save endpoint synchronously
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pipeline.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	if req.ContentID == "" {
		http.Error(w, "content_id is required", http.StatusBadRequest)
		return
	}
	if req.PrimaryName == "" {
		http.Error(w, "primary_name is required", http.StatusBadRequest)
		return
	}
	if req.Job == "" {
		req.Job = pipeline.JobSaveExport
	}

	log.Printf("Save request: content_id=%s, primary=%s", req.ContentID, req.PrimaryName)

	runID := uuid.New().String()

	wctx := &workflows.WorkflowContext{
		Ctx:     r.Context(),
		Request: req,
		RunID:   runID,
	}

	result, err := h.workflowRunner.Run(wctx)
	if err != nil {
		log.Printf("[%s] Save job failed: %v", runID, err)
		http.Error(w, fmt.Sprintf("Save job failed: %v", err), http.StatusInternalServerError)
		return
	}

	if !result.Success {
		log.Printf("[%s] Save job completed with errors: %v", runID, result.Error)
		http.Error(w, fmt.Sprintf("Save job failed: %v", result.Error), http.StatusInternalServerError)
		return
	}

	log.Printf("[%s] Save job completed successfully", runID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"run_id":  runID,
		"outputs": result.Outputs,
	})
}

// handleTest handles the /v1/test endpoint for quick end-to-end testing
func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed (use GET or POST)", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	log.Println("=== Running End-to-End Test ===")

	// Step 1: Upload a real test image
	log.Println("Step 1: Uploading test image...")
	img := imaging.New(800, 600, color.NRGBA{R: 40, G: 120, B: 200, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		http.Error(w, fmt.Sprintf("Encode test image failed: %v", err), http.StatusInternalServerError)
		return
	}

	content, err := h.service.UploadContent(ctx, simplecontent.UploadContentRequest{
		OwnerID:      uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		TenantID:     uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		Name:         "Test Image",
		DocumentType: "image/png",
		Reader:       bytes.NewReader(buf.Bytes()),
		FileName:     "test-image.png",
		Tags:         []string{"test", "image"},
	})
	if err != nil {
		log.Printf("Failed to upload test image: %v", err)
		http.Error(w, fmt.Sprintf("Upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	log.Printf("Test image uploaded: %s (status: %s)", content.ID, content.Status)

	// Step 2: Run a save with a quarter-scale export copy
	log.Println("Step 2: Running save/export...")
	runID := uuid.New().String()

	wctx := &workflows.WorkflowContext{
		Ctx: ctx,
		Request: pipeline.SaveRequest{
			ContentID:   content.ID.String(),
			Job:         pipeline.JobSaveExport,
			PrimaryName: "test-image.xcf",
			Copy: &pipeline.CopySpec{
				Name:    "test-image.jpg",
				Percent: 25,
			},
			Versions: map[string]int{
				pipeline.DerivedTypePrimarySave: 1,
			},
			Metadata: map[string]string{
				"file_name": "test-image.png",
			},
		},
		RunID: runID,
	}

	result, err := h.workflowRunner.Run(wctx)
	if err != nil {
		log.Printf("Save job failed: %v", err)
		http.Error(w, fmt.Sprintf("Save job failed: %v", err), http.StatusInternalServerError)
		return
	}

	if !result.Success {
		log.Printf("Save job completed with errors: %v", result.Error)
		http.Error(w, fmt.Sprintf("Save job failed: %v", result.Error), http.StatusInternalServerError)
		return
	}

	log.Printf("Save job completed successfully (run_id: %s)", runID)

	// Step 3: List produced derived content
	log.Println("Step 3: Checking produced saves...")
	derived, err := h.service.ListDerivedContent(ctx, simplecontent.WithParentID(content.ID))
	if err != nil {
		log.Printf("Failed to list derived content: %v", err)
		http.Error(w, fmt.Sprintf("List derived failed: %v", err), http.StatusInternalServerError)
		return
	}

	log.Printf("Found %d derived content(s)", len(derived))
	for _, d := range derived {
		log.Printf("  - Type: %s, Variant: %s, Status: %s", d.DerivationType, d.Variant, d.Status)
	}

	log.Println("=== Test Complete ===")

	response := map[string]interface{}{
		"test_status":      "success",
		"content_id":       content.ID.String(),
		"run_id":           runID,
		"derived_count":    len(derived),
		"derived_contents": derived,
		"outputs":          result.Outputs,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
