package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/url"
	"sync"
	"time"

	"github.com/tendant/object-gate/pkg/objectgate"
	"github.com/tendant/object-gate/pkg/objectgate/presigned"
)

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	updatedAt   time.Time
	etag        string
}

// Backend is an in-memory implementation of the objectgate.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object
	signer  *presigned.Signer
}

// Option configures the memory backend
type Option func(*Backend)

// WithSigner enables SignURL through the presigned upload endpoint
func WithSigner(signer *presigned.Signer) Option {
	return func(b *Backend) {
		b.signer = signer
	}
}

// New creates a new in-memory storage backend
func New(opts ...Option) *Backend {
	b := &Backend{
		objects: make(map[string]*object),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func key(bucket, name string) string {
	return bucket + "/" + name
}

func notFound(bucket, name string) error {
	return fmt.Errorf("%w: %s/%s", objectgate.ErrObjectNotFound, bucket, name)
}

// Exists reports whether the object is stored
func (b *Backend) Exists(ctx context.Context, bucket, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.objects[key(bucket, name)]
	return ok, nil
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, bucket, name string) (*objectgate.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key(bucket, name)]
	if !ok {
		return nil, notFound(bucket, name)
	}

	return &objectgate.ObjectMeta{
		Bucket:      bucket,
		Name:        name,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		UpdatedAt:   obj.updatedAt,
		ETag:        obj.etag,
		Metadata:    maps.Clone(obj.metadata),
	}, nil
}

// SetMetadata merges metadata into the object's custom metadata
func (b *Backend) SetMetadata(ctx context.Context, bucket, name string, metadata map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[key(bucket, name)]
	if !ok {
		return notFound(bucket, name)
	}
	if obj.metadata == nil {
		obj.metadata = make(map[string]string, len(metadata))
	}
	maps.Copy(obj.metadata, metadata)
	obj.updatedAt = time.Now().UTC()
	return nil
}

// Download returns the object bytes, or the requested range of them
func (b *Backend) Download(ctx context.Context, bucket, name string, rng *objectgate.ByteRange) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key(bucket, name)]
	if !ok {
		return nil, notFound(bucket, name)
	}

	data := obj.data
	if rng != nil {
		size := int64(len(data))
		if rng.Start < 0 || rng.Start >= size || rng.End < rng.Start {
			return nil, fmt.Errorf("%w: %s for %d bytes", objectgate.ErrRangeNotSatisfiable, rng.HeaderValue(), size)
		}
		end := min(rng.End, size-1)
		data = data[rng.Start : end+1]
	}

	// objects are replaced, never mutated, so the slice can be shared
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Upload stores content, replacing any previous object and its metadata
func (b *Backend) Upload(ctx context.Context, bucket, name string, reader io.Reader, params objectgate.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	sum := md5.Sum(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key(bucket, name)] = &object{
		data:        data,
		contentType: contentType,
		metadata:    maps.Clone(params.Metadata),
		updatedAt:   time.Now().UTC(),
		etag:        `"` + hex.EncodeToString(sum[:]) + `"`,
	}
	return nil
}

// SignURL returns a presigned URL served by the presigned upload handler
func (b *Backend) SignURL(ctx context.Context, bucket, name, method string, ttl time.Duration) (string, error) {
	if b.signer == nil {
		return "", errors.New("memory backend has no url signer configured")
	}
	return b.signer.SignObjectURL(method, bucket, name, ttl)
}

// ParseObjectURL maps URLs issued by SignURL back to their object
func (b *Backend) ParseObjectURL(u *url.URL) (string, string, bool) {
	if b.signer == nil {
		return "", "", false
	}
	return b.signer.ParseObjectURL(u)
}
