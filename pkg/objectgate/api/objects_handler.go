package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/object-gate/pkg/objectgate"
)

// ObjectsHandler serves upload, ACL and object streaming endpoints
type ObjectsHandler struct {
	service objectgate.Service
	logger  *slog.Logger
}

func NewObjectsHandler(service objectgate.Service, logger *slog.Logger) *ObjectsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObjectsHandler{service: service, logger: logger}
}

// Routes returns the router for the object management endpoints
func (h *ObjectsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/upload-url", h.GetUploadURL)
	r.Put("/finalize", h.FinalizeUpload)
	r.Get("/acl", h.GetACL)
	r.Put("/acl", h.UpdateACL)
	r.Post("/acl/transfer", h.TransferOwnership)
	return r
}

// Mount registers the management routes under apiPrefix and the object
// stream under /objects/
func (h *ObjectsHandler) Mount(r chi.Router, apiPrefix string) {
	r.Mount(apiPrefix, h.Routes())
	r.Get(objectgate.LogicalPathPrefix+"*", h.ServeObject)
	r.Head(objectgate.LogicalPathPrefix+"*", h.ServeObject)
}

// UploadURLRequest asks for a signed upload URL
type UploadURLRequest struct {
	MimeType   string                `json:"mimeType,omitempty"`
	Visibility objectgate.Visibility `json:"visibility"`
}

// UploadURLResponse carries the signed URL and the logical path the object
// will have once uploaded
type UploadURLResponse struct {
	UploadURL  string    `json:"uploadURL"`
	ObjectPath string    `json:"objectPath"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// FinalizeRequest reports a completed upload
type FinalizeRequest struct {
	RawContentURL string                `json:"rawContentURL"`
	Visibility    objectgate.Visibility `json:"visibility"`
	ACLRules      []objectgate.ACLRule  `json:"aclRules,omitempty"`
}

// FinalizeResponse returns the logical path. Warning is set when the object
// is stored but its access policy was not saved.
type FinalizeResponse struct {
	ObjectPath string                      `json:"objectPath"`
	Policy     *objectgate.ObjectACLPolicy `json:"policy,omitempty"`
	Warning    string                      `json:"warning,omitempty"`
}

// UpdateACLRequest replaces visibility and rules of an object's policy
type UpdateACLRequest struct {
	ObjectPath string                `json:"objectPath"`
	Owner      string                `json:"owner,omitempty"`
	Visibility objectgate.Visibility `json:"visibility"`
	ACLRules   []objectgate.ACLRule  `json:"aclRules"`
}

// TransferRequest hands an object to a new owner
type TransferRequest struct {
	ObjectPath string `json:"objectPath"`
	NewOwner   string `json:"newOwner"`
}

// GetUploadURL issues a signed PUT URL for a new object
func (h *ObjectsHandler) GetUploadURL(w http.ResponseWriter, r *http.Request) {
	var req UploadURLRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Error("Failed to decode request", "error", err)
		badRequest(w, r, "invalid_request", "request body must be JSON")
		return
	}

	upload, err := h.service.GetUploadURL(r.Context(), objectgate.UploadURLRequest{
		RequesterID: RequesterID(r.Context()),
		MimeType:    req.MimeType,
		Visibility:  req.Visibility,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("Upload URL issued", "object_path", upload.ObjectPath, "visibility", req.Visibility, "requested_by", RequesterID(r.Context()))
	render.JSON(w, r, UploadURLResponse{
		UploadURL:  upload.UploadURL,
		ObjectPath: upload.ObjectPath,
		ExpiresAt:  upload.ExpiresAt,
	})
}

// FinalizeUpload attaches the caller-owned ACL policy to an uploaded object
func (h *ObjectsHandler) FinalizeUpload(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Error("Failed to decode request", "error", err)
		badRequest(w, r, "invalid_request", "request body must be JSON")
		return
	}
	if req.RawContentURL == "" {
		badRequest(w, r, "invalid_request", "rawContentURL is required")
		return
	}

	result, err := h.service.FinalizeUpload(r.Context(), objectgate.FinalizeUploadRequest{
		RawContentURL: req.RawContentURL,
		OwnerID:       RequesterID(r.Context()),
		Visibility:    req.Visibility,
		ACLRules:      req.ACLRules,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.JSON(w, r, FinalizeResponse{
		ObjectPath: result.ObjectPath,
		Policy:     result.Policy,
		Warning:    result.Warning,
	})
}

// GetACL returns the policy of ?path=/objects/<id> to callers with write access
func (h *ObjectsHandler) GetACL(w http.ResponseWriter, r *http.Request) {
	objectPath := r.URL.Query().Get("path")
	if objectPath == "" {
		badRequest(w, r, "invalid_request", "path query parameter is required")
		return
	}

	policy, err := h.service.GetObjectPolicy(r.Context(), objectPath, RequesterID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, policy)
}

// UpdateACL replaces visibility and rules; the owner stays as is
func (h *ObjectsHandler) UpdateACL(w http.ResponseWriter, r *http.Request) {
	var req UpdateACLRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Error("Failed to decode request", "error", err)
		badRequest(w, r, "invalid_request", "request body must be JSON")
		return
	}
	if req.ObjectPath == "" {
		badRequest(w, r, "invalid_request", "objectPath is required")
		return
	}

	policy, err := h.service.UpdateObjectPolicy(r.Context(), objectgate.UpdatePolicyRequest{
		LogicalPath: req.ObjectPath,
		RequesterID: RequesterID(r.Context()),
		Owner:       req.Owner,
		Visibility:  req.Visibility,
		ACLRules:    req.ACLRules,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, policy)
}

// TransferOwnership lets the owner hand an object to another user
func (h *ObjectsHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Error("Failed to decode request", "error", err)
		badRequest(w, r, "invalid_request", "request body must be JSON")
		return
	}
	if req.ObjectPath == "" {
		badRequest(w, r, "invalid_request", "objectPath is required")
		return
	}

	policy, err := h.service.TransferOwnership(r.Context(), objectgate.TransferOwnershipRequest{
		LogicalPath: req.ObjectPath,
		RequesterID: RequesterID(r.Context()),
		NewOwner:    req.NewOwner,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, policy)
}

// ServeObject streams /objects/<id> after an access check
func (h *ObjectsHandler) ServeObject(w http.ResponseWriter, r *http.Request) {
	gw := objectgate.NewGuardedResponseWriter(w)

	err := h.service.ServeObject(r.Context(), gw, r, objectgate.FetchObjectRequest{
		LogicalPath: objectgate.LogicalPath(chi.URLParam(r, "*")),
		RequesterID: RequesterID(r.Context()),
	})
	if err != nil {
		writeError(gw, r, h.logger, err)
	}
}
