package objectgate

import (
	"context"
	"net/http"
	"time"
)

// Service defines the main interface for the object-gate library
type Service interface {
	// Upload operations
	GetUploadURL(ctx context.Context, req UploadURLRequest) (*UploadURL, error)
	FinalizeUpload(ctx context.Context, req FinalizeUploadRequest) (*FinalizeUploadResult, error)

	// Policy operations on resolved objects
	SetPolicy(ctx context.Context, obj ObjectRef, policy ObjectACLPolicy) error
	GetPolicy(ctx context.Context, obj ObjectRef) (*ObjectACLPolicy, error)

	// Policy operations on logical paths, authorized by the requester's write permission
	GetObjectPolicy(ctx context.Context, logicalPath, requesterID string) (*ObjectACLPolicy, error)
	UpdateObjectPolicy(ctx context.Context, req UpdatePolicyRequest) (*ObjectACLPolicy, error)
	TransferOwnership(ctx context.Context, req TransferOwnershipRequest) (*ObjectACLPolicy, error)

	// Access decisions
	CanAccess(ctx context.Context, req AccessRequest) (bool, error)

	// Path translation
	ResolveObject(ctx context.Context, logicalPath string) (ObjectRef, error)
	NormalizePath(raw string) string

	// Download operations. Errors returned before the response header is
	// written leave w untouched so the caller can send an error response.
	Download(ctx context.Context, w http.ResponseWriter, obj ObjectRef, cacheTTL time.Duration) error
	Stream(ctx context.Context, w http.ResponseWriter, r *http.Request, obj ObjectRef, cacheTTL time.Duration) error
	ServeObject(ctx context.Context, w http.ResponseWriter, r *http.Request, req FetchObjectRequest) error
}
