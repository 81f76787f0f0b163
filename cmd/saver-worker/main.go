package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-content/pkg/simplecontent/presets"

	"github.com/pixeldock/saver-pipeline/internal/dbosruntime"
	"github.com/pixeldock/saver-pipeline/internal/handlers"
	"github.com/pixeldock/saver-pipeline/internal/history"
	"github.com/pixeldock/saver-pipeline/internal/storage"
	"github.com/pixeldock/saver-pipeline/internal/workflows"
	"github.com/pixeldock/saver-pipeline/pkg/pipeline"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	// Configuration from environment
	httpAddr := os.Getenv("WORKER_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8081"
	}

	// Storage adapters: HTTP API if CONTENT_API_URL is set, otherwise the
	// embedded development service
	contentAPIURL := os.Getenv("CONTENT_API_URL")

	var documents workflows.DocumentReader
	var exports workflows.ExportWriter
	var cleanup func()

	if contentAPIURL != "" {
		log.Printf("Using simple-content HTTP API at: %s", contentAPIURL)
		documents = storage.NewHTTPDocumentReader(contentAPIURL)
		exports = storage.NewHTTPExportWriter(contentAPIURL)
		cleanup = func() {} // No cleanup needed for HTTP client
	} else {
		log.Printf("Using embedded simple-content service (development preset)")
		svc, cleanupFn, err := presets.NewDevelopment()
		if err != nil {
			log.Fatalf("Failed to initialize simple-content service: %v", err)
		}
		documents = storage.NewDocumentReader(svc)
		exports = storage.NewExportWriter(svc)
		cleanup = cleanupFn
	}
	defer cleanup()

	// Initialize DBOS runtime (required for durable save jobs)
	dbURL := os.Getenv("DBOS_SYSTEM_DATABASE_URL")
	if dbURL == "" {
		log.Fatalf("DBOS_SYSTEM_DATABASE_URL is required")
	}

	runtime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL:        dbURL,
		AppName:            getEnv("DBOS_APP_NAME", "saver-pipeline"),
		QueueName:          getEnv("DBOS_QUEUE_NAME", "saver"),
		ApplicationVersion: os.Getenv("DBOS_APPLICATION_VERSION"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize DBOS runtime: %v", err)
	}
	defer runtime.Shutdown(10 * time.Second)

	// Workflow runner with DBOS support
	workflowRunner := workflows.NewWorkflowRunner(runtime)

	saveWorkflow := workflows.NewSaveExportWorkflow(documents, exports)
	workflowRunner.Register(pipeline.JobSaveExport, saveWorkflow)
	log.Printf("Registered workflow: %s for job: %s", saveWorkflow.Name(), pipeline.JobSaveExport)

	// Launch DBOS (must be after workflow registration)
	if err := runtime.Launch(); err != nil {
		log.Fatalf("Failed to launch DBOS: %v", err)
	}
	log.Printf("DBOS runtime launched (queue=%s)", runtime.QueueName())

	// Save-history ledger on the same database
	recorder, err := history.NewRecorder(runtime.DB())
	if err != nil {
		log.Fatalf("Failed to initialize save history: %v", err)
	}

	// HTTP surface
	asyncHandler := handlers.NewAsyncHandler(workflowRunner, recorder)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"status":"healthy","mode":"worker"}`)
	})
	mux.HandleFunc("/v1/save", asyncHandler.HandleSaveAsync)
	mux.HandleFunc("/v1/runs/", asyncHandler.HandleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("Saver worker ready on %s", httpAddr)
		log.Printf("Available endpoints:")
		log.Printf("  GET  /health        - Health check")
		log.Printf("  POST /v1/save       - Enqueue a save/export job")
		log.Printf("  GET  /v1/runs/{id}  - Job status")
		log.Printf("  GET  /metrics       - Prometheus metrics")

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

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
