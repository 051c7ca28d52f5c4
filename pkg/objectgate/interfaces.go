package objectgate

import (
	"context"
	"io"
	"net/url"
	"time"
)

// BlobStore defines the interface for storage backends. Objects are
// addressed by bucket and object name.
type BlobStore interface {
	// Exists reports whether the object is present
	Exists(ctx context.Context, bucket, name string) (bool, error)

	// GetObjectMeta retrieves size, content type and custom metadata
	GetObjectMeta(ctx context.Context, bucket, name string) (*ObjectMeta, error)

	// SetMetadata merges custom metadata keys into the object's metadata
	SetMetadata(ctx context.Context, bucket, name string, metadata map[string]string) error

	// Download opens the object for reading. A nil range reads the whole object.
	Download(ctx context.Context, bucket, name string, rng *ByteRange) (io.ReadCloser, error)

	// Upload writes content directly
	Upload(ctx context.Context, bucket, name string, reader io.Reader, params UploadParams) error

	// SignURL returns a time-limited URL allowing method on the object
	SignURL(ctx context.Context, bucket, name, method string, ttl time.Duration) (string, error)
}

// URLParser is implemented by blob stores whose signed URLs have a layout the
// default provider URL parsing does not understand
type URLParser interface {
	ParseObjectURL(u *url.URL) (bucket, name string, ok bool)
}

// SubscriptionStore answers whether a subscriber currently holds an active
// subscription to a creator
type SubscriptionStore interface {
	HasActiveSubscription(ctx context.Context, subscriberID, creatorID string) (bool, error)
}

// AuditSink receives ownership changes
type AuditSink interface {
	OwnershipTransferred(ctx context.Context, event OwnershipTransfer) error
}

// OwnershipTransfer describes one owner change on an object
type OwnershipTransfer struct {
	ObjectPath    string
	PreviousOwner string
	NewOwner      string
	RequestedBy   string
	At            time.Time
}
