// Package server exposes uploads over HTTP: one-shot uploads streamed from
// a request body, resumable uploads driven over several requests, listing
// of finalized files, and a small HTML browser.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"gridsilo/internal/auth"
	"gridsilo/internal/storage"
	"gridsilo/internal/ui"
	"gridsilo/internal/upload"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultSessionCacheSize bounds the number of open resumable uploads when
// Config.SessionCacheSize is zero.
const DefaultSessionCacheSize = 1024

// DefaultMaxPatchBodySize bounds one PATCH /uploads/{id} request body when
// Config.MaxPatchBodySize is zero.
const DefaultMaxPatchBodySize = 64 << 20

type Config struct {
	Backend storage.Backend

	// Defaults apply to every upload; request parameters override them.
	Defaults []upload.Option

	SessionCacheSize int

	// MaxPatchBodySize is the largest body accepted by one resumable write.
	MaxPatchBodySize int64

	// Auth guards every route except /healthz. Nil disables authentication.
	Auth auth.AuthEngine

	// Gatherer serves /metrics. Nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

type Server struct {
	cfg      Config
	backend  storage.Backend
	bucket   *upload.Bucket
	sessions *sessionTable
}

// NewServer validates cfg and returns a Server. The caller keeps ownership
// of the backend.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Backend == nil {
		return nil, errors.New("Backend must not be nil")
	}
	if cfg.SessionCacheSize == 0 {
		cfg.SessionCacheSize = DefaultSessionCacheSize
	}
	if cfg.MaxPatchBodySize == 0 {
		cfg.MaxPatchBodySize = DefaultMaxPatchBodySize
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	bucket, err := upload.NewBucket(cfg.Backend, cfg.Defaults...)
	if err != nil {
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	sessions, err := newSessionTable(cfg.SessionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create session table: %w", err)
	}

	return &Server{cfg: cfg, backend: cfg.Backend, bucket: bucket, sessions: sessions}, nil
}

// Close aborts every resumable upload that is still open and waits for the
// aborts to finish.
func (s *Server) Close() error {
	s.sessions.close()
	return nil
}

// Handler returns the http.Handler serving the API and the browser.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /view/{id}", s.handleView)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /files", s.handleListFiles)
	mux.HandleFunc("GET /files/{id}", s.handleGetFile)
	mux.HandleFunc("PUT /files/{name...}", s.handlePutFile)

	mux.HandleFunc("POST /uploads", s.handleCreateUpload)
	mux.HandleFunc("GET /uploads/{id}", s.handleGetUpload)
	mux.HandleFunc("PATCH /uploads/{id}", s.handleWriteUpload)
	mux.HandleFunc("POST /uploads/{id}/complete", s.handleCompleteUpload)
	mux.HandleFunc("DELETE /uploads/{id}", s.handleAbortUpload)

	return LogRequest(Recoverer(RequireAuthentication(s.cfg.Auth)(SlashFix(mux))))
}

// uploadOptions reads the per-request overrides of the bucket defaults.
func uploadOptions(r *http.Request) ([]upload.Option, error) {
	var opts []upload.Option

	if raw := r.URL.Query().Get("chunkSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("chunkSize must be a positive integer, got %q", raw)
		}
		opts = append(opts, upload.WithChunkSize(size))
	}

	if raw := r.URL.Query().Get("checksum"); raw != "" {
		algorithm, err := upload.ParseChecksumAlgorithm(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, upload.WithChecksum(algorithm))
	}

	if metadata := metadataFromHeaders(r.Header); metadata != nil {
		opts = append(opts, upload.WithMetadata(metadata))
	}

	return opts, nil
}

// writeUploadError maps an error from an upload stream to a response.
func writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, upload.ErrConcurrentOperation):
		writeError(w, "ConcurrentOperation", err.Error(), r.URL.Path, http.StatusConflict)
	case errors.Is(err, upload.ErrStreamClosed):
		writeError(w, "StreamClosed", err.Error(), r.URL.Path, http.StatusConflict)
	case errors.Is(err, storage.ErrDuplicateChunk), errors.Is(err, storage.ErrDuplicateFile):
		writeError(w, "Conflict", err.Error(), r.URL.Path, http.StatusConflict)
	default:
		slog.Error("Upload failed", "path", r.URL.Path, "error", err)
		writeError(w, "InternalError", err.Error(), r.URL.Path, http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	files, err := s.backend.ListFiles(ctx)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list files: %v", err), http.StatusInternalServerError)
		return
	}

	uiFiles := make([]ui.File, 0, len(files))
	for _, file := range files {
		uiFiles = append(uiFiles, newUIFile(file))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.FilesPage(uiFiles).Render(ctx, w); err != nil {
		http.Error(w, fmt.Sprintf("failed to render files page: %v", err), http.StatusInternalServerError)
		return
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	file, err := s.backend.GetFile(ctx, upload.FileID(r.PathValue("id")))
	if errors.Is(err, storage.ErrNotFound) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load file: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.FilePage(newUIFile(file)).Render(ctx, w); err != nil {
		http.Error(w, fmt.Sprintf("failed to render file page: %v", err), http.StatusInternalServerError)
		return
	}
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.backend.ListFiles(r.Context())
	if err != nil {
		slog.Error("Failed to list files", "error", err)
		writeError(w, "InternalError", err.Error(), r.URL.Path, http.StatusInternalServerError)
		return
	}

	resp := FileListResponse{Files: make([]FileResponse, 0, len(files))}
	for _, file := range files {
		resp.Files = append(resp.Files, newFileResponse(file))
	}
	_ = writeJSONResponse(w, http.StatusOK, resp)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.backend.GetFile(r.Context(), upload.FileID(r.PathValue("id")))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, "NoSuchFile", "The specified file does not exist.", r.URL.Path, http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to get file", "error", err)
		writeError(w, "InternalError", err.Error(), r.URL.Path, http.StatusInternalServerError)
		return
	}
	_ = writeJSONResponse(w, http.StatusOK, newFileResponse(file))
}

// handlePutFile streams the request body into a new upload.
func (s *Server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !isValidFilename(name) {
		writeError(w, "InvalidFilename", "The specified filename is not valid.", r.URL.Path, http.StatusBadRequest)
		return
	}

	opts, err := uploadOptions(r)
	if err != nil {
		writeError(w, "InvalidArgument", err.Error(), r.URL.Path, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	id, err := s.bucket.UploadFromReader(ctx, name, r.Body, opts...)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	file, err := s.backend.GetFile(ctx, id)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	slog.Info("Stored file", "file_id", id, "filename", name, "length", file.Length)
	_ = writeJSONResponse(w, http.StatusCreated, newFileResponse(file))
}

func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filename")
	if !isValidFilename(name) {
		writeError(w, "InvalidFilename", "The specified filename is not valid.", r.URL.Path, http.StatusBadRequest)
		return
	}

	opts, err := uploadOptions(r)
	if err != nil {
		writeError(w, "InvalidArgument", err.Error(), r.URL.Path, http.StatusBadRequest)
		return
	}

	stream, err := s.bucket.OpenUploadStream(name, opts...)
	if err != nil {
		writeError(w, "InvalidArgument", err.Error(), r.URL.Path, http.StatusBadRequest)
		return
	}

	sess := s.sessions.add(stream)
	slog.Info("Opened upload", "upload_id", sess.id, "file_id", stream.FileID(), "filename", name)
	_ = writeJSONResponse(w, http.StatusCreated, sess.response())
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session, bool) {
	sess, ok := s.sessions.get(r.PathValue("id"))
	if !ok {
		writeError(w, "NoSuchUpload", "The specified upload does not exist.", r.URL.Path, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	_ = writeJSONResponse(w, http.StatusOK, sess.response())
}

// handleWriteUpload appends the request body to an open upload with a
// single Write.
func (s *Server) handleWriteUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxPatchBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			message := fmt.Sprintf("The request body exceeds the limit of %d bytes.", tooLarge.Limit)
			writeError(w, "EntityTooLarge", message, r.URL.Path, http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "IncompleteBody", err.Error(), r.URL.Path, http.StatusBadRequest)
		return
	}

	n, err := sess.stream.Write(r.Context(), data)
	sess.written.Add(int64(n))
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	_ = writeJSONResponse(w, http.StatusOK, sess.response())
}

// handleCompleteUpload closes the upload. A failed close keeps the session
// so the client can retry.
func (s *Server) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := sess.stream.Close(ctx); err != nil {
		writeUploadError(w, r, err)
		return
	}
	s.sessions.remove(sess.id)

	file, err := s.backend.GetFile(ctx, sess.stream.FileID())
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	slog.Info("Completed upload", "upload_id", sess.id, "file_id", file.ID, "length", file.Length)
	_ = writeJSONResponse(w, http.StatusOK, newFileResponse(file))
}

func (s *Server) handleAbortUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	if err := sess.stream.Abort(r.Context()); err != nil {
		writeUploadError(w, r, err)
		return
	}
	s.sessions.remove(sess.id)

	slog.Info("Aborted upload", "upload_id", sess.id, "file_id", sess.stream.FileID())
	w.WriteHeader(http.StatusNoContent)
}
