package presigned

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/object-gate/pkg/objectgate"
)

// Handlers accepts uploads sent to signed URLs and writes them to a blob store.
// This stands in for the provider's own upload endpoint on backends without one.
type Handlers struct {
	store  objectgate.BlobStore
	signer *Signer
	logger *slog.Logger
}

// NewHandlers creates the upload handlers
func NewHandlers(store objectgate.BlobStore, signer *Signer, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, signer: signer, logger: logger}
}

// HandleUpload handles PUT <prefix>/<bucket>/<object...>?signature=..&expires=..
//
// When the signer has no secret key every upload is accepted; configure one
// outside of local development.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	bucket, name, err := h.signer.ObjectFromPath(r.URL.Path)
	if err == nil {
		err = h.signer.ValidateRequest(r)
	}
	if err != nil {
		h.logger.Warn("Presigned upload rejected", "path", r.URL.Path, "error", err)
		status, code := rejection(err)
		writeError(w, status, code, err.Error())
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	err = h.store.Upload(r.Context(), bucket, name, r.Body, objectgate.UploadParams{ContentType: contentType})
	if err != nil {
		h.logger.Error("Presigned upload failed", "bucket", bucket, "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", "failed to store object")
		return
	}

	h.logger.Debug("Presigned upload stored", "bucket", bucket, "name", name)

	// providers answer a successful PUT with 200 and no body
	w.WriteHeader(http.StatusOK)
}

// Mount registers the upload route on a chi router
func (h *Handlers) Mount(r chi.Router) {
	r.Put(h.signer.PathPrefix()+"/*", h.HandleUpload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}
