package objectgate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// DefaultCacheTTL is the max-age sent with object responses
const DefaultCacheTTL = 3600 * time.Second

// GuardedResponseWriter records whether the response header has been
// written. Once it has, later WriteHeader calls are dropped so no second
// response can be started on the same connection.
type GuardedResponseWriter struct {
	http.ResponseWriter
	wroteHeader bool
	status      int
	written     int64
}

// NewGuardedResponseWriter wraps w. Wrapping an already guarded writer
// returns it unchanged.
func NewGuardedResponseWriter(w http.ResponseWriter) *GuardedResponseWriter {
	if g, ok := w.(*GuardedResponseWriter); ok {
		return g
	}
	return &GuardedResponseWriter{ResponseWriter: w}
}

func (g *GuardedResponseWriter) WriteHeader(statusCode int) {
	if g.wroteHeader {
		return
	}
	g.wroteHeader = true
	g.status = statusCode
	g.ResponseWriter.WriteHeader(statusCode)
}

func (g *GuardedResponseWriter) Write(b []byte) (int, error) {
	if !g.wroteHeader {
		g.WriteHeader(http.StatusOK)
	}
	n, err := g.ResponseWriter.Write(b)
	g.written += int64(n)
	return n, err
}

// HeadersSent reports whether the status line has gone out
func (g *GuardedResponseWriter) HeadersSent() bool {
	return g.wroteHeader
}

// Status returns the written status code, or 0
func (g *GuardedResponseWriter) Status() int {
	return g.status
}

// BytesWritten returns the number of body bytes written
func (g *GuardedResponseWriter) BytesWritten() int64 {
	return g.written
}

// Unwrap lets http.ResponseController reach the underlying writer
func (g *GuardedResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

// Gateway streams stored objects to HTTP clients
type Gateway struct {
	store    BlobStore
	cacheTTL time.Duration
	metrics  *Metrics
	logger   *slog.Logger
}

// NewGateway creates a gateway. A zero cacheTTL uses DefaultCacheTTL.
func NewGateway(store BlobStore, cacheTTL time.Duration, metrics *Metrics, logger *slog.Logger) *Gateway {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{store: store, cacheTTL: cacheTTL, metrics: metrics, logger: logger}
}

// Download writes the whole object to w.
// Errors before the header is written are returned and w is left untouched;
// errors after that are logged and the response simply ends.
func (g *Gateway) Download(ctx context.Context, w http.ResponseWriter, obj ObjectRef, cacheTTL time.Duration) error {
	meta, err := g.objectMeta(ctx, obj)
	if err != nil {
		return err
	}
	return g.ServeMeta(ctx, NewGuardedResponseWriter(w), obj, meta, "", false, cacheTTL)
}

// Stream writes the object to w honoring the request's Range header. Error
// handling is the same as Download.
func (g *Gateway) Stream(ctx context.Context, w http.ResponseWriter, r *http.Request, obj ObjectRef, cacheTTL time.Duration) error {
	meta, err := g.objectMeta(ctx, obj)
	if err != nil {
		return err
	}
	return g.ServeMeta(ctx, NewGuardedResponseWriter(w), obj, meta, r.Header.Get("Range"), r.Method == http.MethodHead, cacheTTL)
}

func (g *Gateway) objectMeta(ctx context.Context, obj ObjectRef) (*ObjectMeta, error) {
	meta, err := g.store.GetObjectMeta(ctx, obj.Bucket, obj.Name)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, ErrObjectNotFound
		}
		return nil, NewStorageError("get_metadata", obj, err)
	}
	return meta, nil
}

// ServeMeta streams obj using metadata the caller already read. Visibility
// for Cache-Control comes from the policy in meta; objects without a policy
// are cached privately.
func (g *Gateway) ServeMeta(ctx context.Context, w *GuardedResponseWriter, obj ObjectRef, meta *ObjectMeta, rangeHeader string, headOnly bool, cacheTTL time.Duration) error {
	if cacheTTL <= 0 {
		cacheTTL = g.cacheTTL
	}
	visibility := VisibilityPrivate
	if policy := policyFromMeta(meta, g.logger); policy != nil && policy.Visibility == VisibilityPublic {
		visibility = VisibilityPublic
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")

	rng, err := ParseRange(rangeHeader, meta.Size)
	if errors.Is(err, ErrRangeNotSatisfiable) {
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", meta.Size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		g.metrics.observeStream(http.StatusRequestedRangeNotSatisfiable, 0)
		return nil
	}

	var body io.ReadCloser
	if !headOnly {
		body, err = g.store.Download(ctx, obj.Bucket, obj.Name, rng)
		if err != nil {
			h.Del("Accept-Ranges")
			if errors.Is(err, ErrObjectNotFound) {
				return ErrObjectNotFound
			}
			return NewStorageError("download", obj, err)
		}
		defer body.Close()
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", fmt.Sprintf("%s, max-age=%d", visibility, int64(cacheTTL.Seconds())))
	if meta.ETag != "" {
		h.Set("ETag", meta.ETag)
	}
	if !meta.UpdatedAt.IsZero() {
		h.Set("Last-Modified", meta.UpdatedAt.UTC().Format(http.TimeFormat))
	}

	status := http.StatusOK
	length := meta.Size
	if rng != nil {
		status = http.StatusPartialContent
		length = rng.Length()
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, meta.Size))
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if headOnly {
		g.metrics.observeStream(status, 0)
		return nil
	}

	written, err := io.CopyN(w, body, length)
	g.metrics.observeStream(status, written)
	if err != nil {
		// the status line is out; the client sees a truncated body
		g.logger.Warn("Object stream ended early",
			"object", obj.Path(), "status", status, "written", written, "expected", length, "error", err)
	}
	return nil
}
