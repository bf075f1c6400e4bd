// Package main implements the doc-audit API server: the HTTP surface
// (§6) plus the NATS-driven background workers that run the ingest and
// deindex pipelines under the broker's store-write mutex.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/hutschen/doc-audit-api/engine/broker"
	"github.com/hutschen/doc-audit-api/engine/deindex"
	"github.com/hutschen/doc-audit-api/engine/domain"
	"github.com/hutschen/doc-audit-api/engine/embed"
	"github.com/hutschen/doc-audit-api/engine/ingest"
	"github.com/hutschen/doc-audit-api/engine/query"
	"github.com/hutschen/doc-audit-api/engine/semantic"
	"github.com/hutschen/doc-audit-api/pkg/metrics"
	"github.com/hutschen/doc-audit-api/pkg/mid"
	"github.com/hutschen/doc-audit-api/pkg/natsutil"
	"github.com/hutschen/doc-audit-api/pkg/ollama"
	"github.com/hutschen/doc-audit-api/pkg/resilience"
)

const (
	ingestSubject  = "doc-audit.ingest"
	deindexSubject = "doc-audit.deindex"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	NATSURL      string
	QdrantURL    string
	Collection   string
	OllamaURL    string
	OllamaModel  string
	CORSOrigin   string
	UploadDir    string
	WindowSize   int
	DupBatchSize int
	EmbedBatch   int
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8080"),
		NATSURL:      envOr("NATS_URL", nats.DefaultURL),
		QdrantURL:    envOr("QDRANT_URL", "localhost:6334"),
		Collection:   envOr("QDRANT_COLLECTION", "doc-audit"),
		OllamaURL:    envOr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:  envOr("OLLAMA_MODEL", "nomic-embed-text"),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
		UploadDir:    envOr("UPLOAD_DIR", "/tmp/doc-audit-uploads"),
		WindowSize:   envOrInt("WINDOW_SIZE", 100),
		DupBatchSize: envOrInt("DUP_BATCH_SIZE", 32),
		EmbedBatch:   envOrInt("EMBED_BATCH_SIZE", 32),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection,
		semantic.WithBreaker(resilience.BreakerOpts{
			FailThreshold: 5,
			Timeout:       30 * time.Second,
		}),
	)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	// --- Build embedder ---
	backend := ollama.New(cfg.OllamaURL, cfg.OllamaModel)
	embedder := embed.New(backend, logger,
		embed.WithBatchSize(cfg.EmbedBatch),
		embed.WithRateLimit(10, 20),
		embed.WithBreaker(resilience.BreakerOpts{
			FailThreshold: 5,
			Timeout:       30 * time.Second,
		}),
	)
	if err := embedder.Warm(ctx); err != nil {
		logger.Warn("embedder warmup failed, continuing", "err", err)
	}

	reg := metrics.New()
	ingestCounter := reg.Counter("doc_audit_sources_ingested_total", "sources successfully ingested")
	deindexCounter := reg.Counter("doc_audit_sources_deindexed_total", "sources successfully deindexed")
	ingestDuration := reg.Histogram("doc_audit_ingest_seconds", "ingest job duration", nil)
	srcBroker := broker.New(vectorStore)

	ingestDeps := ingest.Deps{
		Store:        vectorStore,
		Embedder:     embedder,
		Logger:       logger,
		WindowSize:   cfg.WindowSize,
		DupBatchSize: cfg.DupBatchSize,
	}
	deindexDeps := deindex.Deps{Store: vectorStore, Logger: logger}
	queryDeps := query.Deps{Store: vectorStore, Embedder: embedder}

	// --- Background workers ---
	worker := &jobWorker{
		broker:         srcBroker,
		ingest:         ingestDeps,
		deindex:        deindexDeps,
		logger:         logger,
		ingestCounter:  ingestCounter,
		deindexCounter: deindexCounter,
		ingestDuration: ingestDuration,
	}
	ingestSub, err := natsutil.Subscribe(nc, ingestSubject, worker.handleIngestJob)
	if err != nil {
		return fmt.Errorf("subscribe ingest: %w", err)
	}
	defer ingestSub.Unsubscribe()

	deindexSub, err := natsutil.Subscribe(nc, deindexSubject, worker.handleDeindexJob)
	if err != nil {
		return fmt.Errorf("subscribe deindex: %w", err)
	}
	defer deindexSub.Unsubscribe()

	// --- Build HTTP server ---
	api := &api{
		cfg:    cfg,
		nc:     nc,
		broker: srcBroker,
		query:  queryDeps,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", reg.Handler())
	mux.HandleFunc("POST /api/sources", api.handleUpload)
	mux.HandleFunc("GET /api/sources/{id}", api.handleSourceStatus)
	mux.HandleFunc("GET /api/sources", api.handleSourceStatuses)
	mux.HandleFunc("DELETE /api/sources/{id}", api.handleDeleteSource)
	mux.HandleFunc("DELETE /api/sources", api.handleDeleteSources)
	mux.HandleFunc("GET /api/query", api.handleQuery)

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("doc-audit-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// --- Job payloads and background worker ---

type ingestJob struct {
	SourceID   string `json:"source_id"`
	SourcePath string `json:"source_path"`
}

type deindexJob struct {
	SourceIDs []string `json:"source_ids"`
}

type jobWorker struct {
	broker         *broker.Broker
	ingest         ingest.Deps
	deindex        deindex.Deps
	logger         *slog.Logger
	ingestCounter  *metrics.Counter
	deindexCounter *metrics.Counter
	ingestDuration *metrics.Histogram
}

// handleIngestJob is the background side of POST /api/sources. It acquires
// the store-write mutex, checks for an abort raced in ahead of it (§5
// cancellation), and otherwise runs the ingest pipeline for the one
// uploaded source before releasing the mutex and cleaning up the staged
// temp file.
func (w *jobWorker) handleIngestJob(ctx context.Context, job ingestJob) {
	defer os.Remove(job.SourcePath)

	w.broker.LockStore()
	defer w.broker.UnlockStore()

	if w.broker.IsAborted(job.SourceID) {
		w.broker.SetCompleted(job.SourceID)
		w.logger.Info("ingest aborted before start", "source_id", job.SourceID)
		return
	}
	w.broker.SetIndexing(job.SourceID)

	start := time.Now()
	err := w.ingest.Index(ctx, []string{job.SourcePath}, []string{job.SourceID})
	w.broker.SetCompleted(job.SourceID)
	w.ingestDuration.Since(start)
	if err != nil {
		w.logger.Error("ingest job failed", "source_id", job.SourceID, "err", err)
		return
	}
	w.ingestCounter.Inc()
}

func (w *jobWorker) handleDeindexJob(ctx context.Context, job deindexJob) {
	w.broker.LockStore()
	defer w.broker.UnlockStore()

	if err := w.deindex.Deindex(ctx, job.SourceIDs); err != nil {
		w.logger.Error("deindex job failed", "source_ids", job.SourceIDs, "err", err)
		return
	}
	w.deindexCounter.Add(int64(len(job.SourceIDs)))
}

// --- HTTP handlers ---

type api struct {
	cfg    Config
	nc     *nats.Conn
	broker *broker.Broker
	query  query.Deps
	logger *slog.Logger
}

type sourceResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// handleUpload implements POST /api/sources (§6): stage the upload to a
// temp file that outlives the request, register the source as waiting,
// and dispatch the ingest job. The response reports status "indexing"
// per the interface table even though the broker's own state starts at
// "waiting" — the job moves it to indexing only once the worker holds the
// store-write mutex, and a status request made before then reports
// "waiting".
func (a *api) handleUpload(w http.ResponseWriter, r *http.Request) {
	path, err := a.stageUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}

	id := uuid.New().String()
	a.broker.SetWaiting(id)

	job := ingestJob{SourceID: id, SourcePath: path}
	if err := natsutil.Publish(r.Context(), a.nc, ingestSubject, job); err != nil {
		os.Remove(path)
		a.broker.SetCompleted(id)
		writeError(w, domain.NewStoreError("dispatch ingest job", err))
		return
	}

	writeJSON(w, http.StatusCreated, sourceResponse{ID: id, Status: string(domain.StatusIndexing)})
}

func (a *api) stageUpload(r *http.Request) (string, error) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		return "", domain.NewClientError("body", "malformed multipart upload")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", domain.NewClientError("file", "missing upload part")
	}
	defer file.Close()

	dst, err := os.CreateTemp(a.cfg.UploadDir, "upload-*-"+sanitizeFilename(header.Filename))
	if err != nil {
		return "", domain.NewStoreError("stage upload", err)
	}
	defer dst.Close()

	if _, err := copyUpload(dst, file); err != nil {
		os.Remove(dst.Name())
		return "", domain.NewStoreError("stage upload", err)
	}
	return dst.Name(), nil
}

func sanitizeFilename(name string) string {
	if name == "" {
		return "upload.docx"
	}
	return filepath.Base(name)
}

func copyUpload(dst *os.File, src multipart.File) (int64, error) {
	return io.Copy(dst, src)
}

// handleSourceStatus implements GET /api/sources/{id}.
func (a *api) handleSourceStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := domain.ValidateSourceID(id); err != nil {
		writeError(w, err)
		return
	}
	status, err := a.broker.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sourceResponse{ID: id, Status: string(status)})
}

// handleSourceStatuses implements GET /api/sources?source_ids=….
func (a *api) handleSourceStatuses(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["source_ids"]
	if err := domain.ValidateSourceIDs(ids); err != nil {
		writeError(w, err)
		return
	}
	statuses, err := a.broker.Statuses(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]sourceResponse, len(ids))
	for i, id := range ids {
		out[i] = sourceResponse{ID: id, Status: string(statuses[id])}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDeleteSource implements DELETE /api/sources/{id}.
func (a *api) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := domain.ValidateSourceID(id); err != nil {
		writeError(w, err)
		return
	}
	a.dispatchDelete(w, r, []string{id})
}

// handleDeleteSources implements DELETE /api/sources?source_ids=….
func (a *api) handleDeleteSources(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["source_ids"]
	if err := domain.ValidateSourceIDs(ids); err != nil {
		writeError(w, err)
		return
	}
	a.dispatchDelete(w, r, ids)
}

func (a *api) dispatchDelete(w http.ResponseWriter, r *http.Request, ids []string) {
	toDeindex, err := a.broker.StatusForDelete(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(toDeindex) > 0 {
		job := deindexJob{SourceIDs: toDeindex}
		if err := natsutil.Publish(r.Context(), a.nc, deindexSubject, job); err != nil {
			writeError(w, domain.NewStoreError("dispatch deindex job", err))
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQuery implements GET /api/query.
func (a *api) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	content := q.Get("content")
	if err := domain.ValidateQueryText(content); err != nil {
		writeError(w, err)
		return
	}

	topK := query.DefaultTopK
	if v := q.Get("top_k"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &topK); err != nil {
			writeError(w, domain.NewClientError("top_k", v))
			return
		}
	}
	if err := domain.ValidateTopK(topK); err != nil {
		writeError(w, err)
		return
	}

	sourceIDs := q["source_ids"]
	results, err := a.query.Query(r.Context(), content, topK, sourceIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy (§7) onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var clientErr *domain.ClientError
	var notFoundErr *domain.NotFoundError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &clientErr):
		status = http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
