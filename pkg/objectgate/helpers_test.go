package objectgate_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tendant/object-gate/pkg/objectgate"
	"github.com/tendant/object-gate/pkg/objectgate/presigned"
	"github.com/tendant/object-gate/pkg/objectgate/storage/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMemoryStore() *memory.Backend {
	signer := presigned.New(presigned.WithSecretKey("test-secret"), presigned.WithBaseURL("http://objects.local"))
	return memory.New(memory.WithSigner(signer))
}

func upload(t *testing.T, store objectgate.BlobStore, bucket, name, content, contentType string) objectgate.ObjectRef {
	t.Helper()
	err := store.Upload(context.Background(), bucket, name, strings.NewReader(content), objectgate.UploadParams{ContentType: contentType})
	require.NoError(t, err)
	return objectgate.ObjectRef{Bucket: bucket, Name: name}
}

// recordingStore wraps a BlobStore and records every call made through it
type recordingStore struct {
	objectgate.BlobStore

	mu    sync.Mutex
	calls []string
}

func (s *recordingStore) record(op, bucket, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op+" "+bucket+"/"+name)
}

func (s *recordingStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *recordingStore) Exists(ctx context.Context, bucket, name string) (bool, error) {
	s.record("exists", bucket, name)
	return s.BlobStore.Exists(ctx, bucket, name)
}

func (s *recordingStore) GetObjectMeta(ctx context.Context, bucket, name string) (*objectgate.ObjectMeta, error) {
	s.record("meta", bucket, name)
	return s.BlobStore.GetObjectMeta(ctx, bucket, name)
}

func (s *recordingStore) SetMetadata(ctx context.Context, bucket, name string, metadata map[string]string) error {
	s.record("set_metadata", bucket, name)
	return s.BlobStore.SetMetadata(ctx, bucket, name, metadata)
}

func (s *recordingStore) Download(ctx context.Context, bucket, name string, rng *objectgate.ByteRange) (io.ReadCloser, error) {
	s.record("download", bucket, name)
	return s.BlobStore.Download(ctx, bucket, name, rng)
}

func (s *recordingStore) SignURL(ctx context.Context, bucket, name, method string, ttl time.Duration) (string, error) {
	s.record("sign", bucket, name)
	return s.BlobStore.SignURL(ctx, bucket, name, method, ttl)
}

// failingMetadataStore keeps bytes but cannot write metadata
type failingMetadataStore struct {
	objectgate.BlobStore
}

func (s *failingMetadataStore) SetMetadata(ctx context.Context, bucket, name string, metadata map[string]string) error {
	return errors.New("metadata backend unavailable")
}

// subscriptions answers from a fixed set of subscriber->creator pairs
type subscriptions map[string]bool

func (s subscriptions) HasActiveSubscription(ctx context.Context, subscriberID, creatorID string) (bool, error) {
	return s[subscriberID+"->"+creatorID], nil
}

// brokenSubscriptions fails every lookup
type brokenSubscriptions struct{}

func (brokenSubscriptions) HasActiveSubscription(ctx context.Context, subscriberID, creatorID string) (bool, error) {
	return false, errors.New("connection refused")
}

// recordingAuditSink keeps ownership transfers in memory
type recordingAuditSink struct {
	events []objectgate.OwnershipTransfer
}

func (s *recordingAuditSink) OwnershipTransferred(ctx context.Context, event objectgate.OwnershipTransfer) error {
	s.events = append(s.events, event)
	return nil
}
