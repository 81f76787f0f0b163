package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/pixeldock/saver-pipeline/internal/history"
	"github.com/pixeldock/saver-pipeline/internal/workflows"
	"github.com/pixeldock/saver-pipeline/pkg/pipeline"
)

// AsyncHandler handles asynchronous save-job requests
type AsyncHandler struct {
	workflowRunner *workflows.WorkflowRunner
	history        *history.Recorder
}

// NewAsyncHandler creates a new async handler. The history recorder is
// optional; pass nil to skip submission tracking.
func NewAsyncHandler(runner *workflows.WorkflowRunner, recorder *history.Recorder) *AsyncHandler {
	return &AsyncHandler{
		workflowRunner: runner,
		history:        recorder,
	}
}

// HandleSaveAsync handles POST /v1/save - enqueues the save job and returns immediately
func (h *AsyncHandler) HandleSaveAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse request
	var req pipeline.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	// Validate
	if req.ContentID == "" {
		http.Error(w, "content_id is required", http.StatusBadRequest)
		return
	}
	if req.Job == "" {
		req.Job = pipeline.JobSaveExport
	}
	if req.PrimaryName == "" {
		http.Error(w, "primary_name is required", http.StatusBadRequest)
		return
	}

	log.Printf("Enqueueing save job: content_id=%s, primary=%s", req.ContentID, req.PrimaryName)

	seenCount := 0
	if h.history != nil {
		count, err := h.history.Record(r.Context(), req)
		if err != nil {
			log.Printf("Failed to record save history: %v", err)
			// History is advisory; the save still runs
		} else {
			seenCount = count
		}
	}

	// Enqueue workflow (non-blocking)
	runID, err := h.workflowRunner.RunAsync(r.Context(), req)
	if err != nil {
		log.Printf("Failed to enqueue save job: %v", err)
		http.Error(w, fmt.Sprintf("Failed to enqueue save job: %v", err), http.StatusInternalServerError)
		return
	}

	log.Printf("Save job enqueued successfully: run_id=%s", runID)

	resp := pipeline.SaveResponse{
		RunID:            runID,
		HistorySeenCount: seenCount,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}

// HandleStatus handles GET /v1/runs/{runID} - returns workflow status
func (h *AsyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := r.URL.Path[len("/v1/runs/"):]
	if runID == "" {
		http.Error(w, "run ID is required", http.StatusBadRequest)
		return
	}

	status, err := h.workflowRunner.GetStatus(r.Context(), runID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get status: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"run_id": status.RunID,
		"state":  status.State,
	})
}
