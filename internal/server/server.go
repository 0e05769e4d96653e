package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/souvikree/myShare/internal/config"
	"github.com/souvikree/myShare/internal/files"
)

// uploadResponse is returned by a successful upload
type uploadResponse struct {
	FileURL string `json:"fileUrl"`
}

// New builds the HTTP server exposing the upload and download endpoints.
func New(cfg *config.Config, fileService *files.Service) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("POST /upload", uploadFile(cfg, fileService))
	mux.HandleFunc("GET /files/{id}", downloadFile(fileService))
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := middleware(cfg, mux)

	// No read or write timeouts: uploads and downloads are bounded only
	// by transport and disk I/O.
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// middleware wraps the routes. Panics are recovered inside the logging and
// metrics layers so they still record the 500.
func middleware(cfg *config.Config, next http.Handler) http.Handler {
	return loggingMiddleware(metricsMiddleware(recoverer(cors(cfg.CORSOrigin, limitBody(next, cfg.MaxSize)))))
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func uploadFile(cfg *config.Config, fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Get file from form
		file, header, err := r.FormFile("file")
		if err != nil {
			if isBodyTooLarge(err) {
				uploadsTotal.WithLabelValues("too_large").Inc()
				writeError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, "Request entity too large")
				return
			}
			slog.Info("Upload rejected", "error", err)
			uploadsTotal.WithLabelValues("missing_input").Inc()
			writeError(w, http.StatusBadRequest, CodeMissingInput, "No file provided")
			return
		}
		defer file.Close()

		record, err := fileService.Upload(r.Context(), &files.UploadRequest{
			Name:    header.Filename,
			Content: file,
		})
		if err != nil {
			if isBodyTooLarge(err) {
				uploadsTotal.WithLabelValues("too_large").Inc()
				writeError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, "Request entity too large")
				return
			}
			slog.Error("Upload failed", "error", err, "filename", header.Filename)
			uploadsTotal.WithLabelValues("error").Inc()
			writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to upload file")
			return
		}

		fileURL := buildFileURL(cfg.PublicURL, r, record.ID)
		slog.Info("File uploaded",
			"file_id", record.ID,
			"filename", record.OriginalName,
			"size", record.Size,
		)

		uploadsTotal.WithLabelValues("success").Inc()
		writeJSON(w, http.StatusOK, uploadResponse{FileURL: fileURL})
	}
}

func downloadFile(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		file, content, err := fileService.Download(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, files.ErrNotFound):
				downloadsTotal.WithLabelValues("not_found").Inc()
				writeError(w, http.StatusNotFound, CodeNotFound, "File not found")
			case errors.Is(err, files.ErrStorageInconsistency):
				slog.Error("Storage inconsistency", "error", err, "file_id", id)
				downloadsTotal.WithLabelValues("inconsistent").Inc()
				writeError(w, http.StatusInternalServerError, CodeStorageInconsistency, "Failed to download file")
			default:
				slog.Error("Download failed", "error", err, "file_id", id)
				downloadsTotal.WithLabelValues("error").Inc()
				writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to download file")
			}
			return
		}
		defer content.Close()

		// Set response headers
		w.Header().Set("Content-Type", contentType(file.OriginalName))
		w.Header().Set("Content-Disposition", contentDisposition(file.OriginalName))
		w.Header().Set("Content-Length", fmt.Sprintf("%d", file.Size))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)

		// Stream file content
		if _, err := io.Copy(w, content); err != nil {
			slog.Warn("Download interrupted", "error", err, "file_id", id)
			downloadsTotal.WithLabelValues("interrupted").Inc()
			return
		}
		downloadsTotal.WithLabelValues("success").Inc()
	}
}

// buildFileURL returns <base>/files/<id>. The base is the configured public
// URL or the scheme and host the request arrived on.
func buildFileURL(publicURL string, r *http.Request, id string) string {
	base := strings.TrimRight(publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/files/" + url.PathEscape(id)
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func contentDisposition(name string) string {
	if cd := mime.FormatMediaType("attachment", map[string]string{"filename": name}); cd != "" {
		return cd
	}
	return "attachment"
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "http: request body too large")
}

// limitBody caps the request body when maxSize is positive.
func limitBody(next http.Handler, maxSize int64) http.Handler {
	if maxSize <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)
		next.ServeHTTP(w, r)
	})
}

// cors allows browser clients served from other origins to call the API.
func cors(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer converts panics into 500 responses so one request cannot take
// down the process.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("Panic while handling request",
					"panic", fmt.Sprint(rec),
					"method", r.Method,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests with structured logging
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
