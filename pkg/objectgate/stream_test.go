package objectgate_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/object-gate/pkg/objectgate"
)

// brokenStreamStore fails after the first bytes of every download
type brokenStreamStore struct {
	objectgate.BlobStore
}

func (s *brokenStreamStore) Download(ctx context.Context, bucket, name string, rng *objectgate.ByteRange) (io.ReadCloser, error) {
	return io.NopCloser(io.MultiReader(strings.NewReader("par"), iotest.ErrReader(errors.New("connection reset")))), nil
}

// unavailableStore fails every download before any byte is read
type unavailableStore struct {
	objectgate.BlobStore
}

func (s *unavailableStore) Download(ctx context.Context, bucket, name string, rng *objectgate.ByteRange) (io.ReadCloser, error) {
	return nil, errors.New("service unavailable")
}

func thousandBytes() string {
	return strings.Repeat("0123456789", 100)
}

func TestStream_Range(t *testing.T) {
	mem := newMemoryStore()
	store := &recordingStore{BlobStore: mem}
	gw := objectgate.NewGateway(store, 0, nil, discardLogger())
	content := thousandBytes()
	obj := upload(t, mem, "media", "public/clip.mp4", content, "video/mp4")

	req := httptest.NewRequest(http.MethodGet, "/objects/clip.mp4", nil)
	req.Header.Set("Range", "bytes=100-199")
	w := httptest.NewRecorder()

	require.NoError(t, gw.Stream(context.Background(), w, req, obj, 0))

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 100-199/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, "100", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, content[100:200], w.Body.String())
	assert.Equal(t, []string{"meta media/public/clip.mp4", "download media/public/clip.mp4"}, store.Calls())
}

func TestStream_FullRead(t *testing.T) {
	store := newMemoryStore()
	gw := objectgate.NewGateway(store, 0, nil, discardLogger())
	content := thousandBytes()
	obj := upload(t, store, "media", "public/clip.mp4", content, "video/mp4")

	req := httptest.NewRequest(http.MethodGet, "/objects/clip.mp4", nil)
	w := httptest.NewRecorder()
	require.NoError(t, gw.Stream(context.Background(), w, req, obj, 0))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("Content-Range"))
	assert.NotEmpty(t, w.Header().Get("ETag"))
	assert.NotEmpty(t, w.Header().Get("Last-Modified"))
	assert.Equal(t, content, w.Body.String())
}

func TestStream_UnsatisfiableRange(t *testing.T) {
	store := newMemoryStore()
	gw := objectgate.NewGateway(store, 0, nil, discardLogger())
	obj := upload(t, store, "media", "public/clip.mp4", thousandBytes(), "video/mp4")

	req := httptest.NewRequest(http.MethodGet, "/objects/clip.mp4", nil)
	req.Header.Set("Range", "bytes=2000-3000")
	w := httptest.NewRecorder()
	require.NoError(t, gw.Stream(context.Background(), w, req, obj, 0))

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, "bytes */1000", w.Header().Get("Content-Range"))
	assert.Empty(t, w.Body.String())
}

func TestStream_MalformedRangeSendsEverything(t *testing.T) {
	store := newMemoryStore()
	gw := objectgate.NewGateway(store, 0, nil, discardLogger())
	obj := upload(t, store, "media", "public/clip.mp4", thousandBytes(), "video/mp4")

	req := httptest.NewRequest(http.MethodGet, "/objects/clip.mp4", nil)
	req.Header.Set("Range", "bytes=0-1,5-6")
	w := httptest.NewRecorder()
	require.NoError(t, gw.Stream(context.Background(), w, req, obj, 0))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1000, w.Body.Len())
}

func TestStream_Head(t *testing.T) {
	mem := newMemoryStore()
	store := &recordingStore{BlobStore: mem}
	gw := objectgate.NewGateway(store, 0, nil, discardLogger())
	obj := upload(t, mem, "media", "public/clip.mp4", thousandBytes(), "video/mp4")

	req := httptest.NewRequest(http.MethodHead, "/objects/clip.mp4", nil)
	w := httptest.NewRecorder()
	require.NoError(t, gw.Stream(context.Background(), w, req, obj, 0))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Content-Length"))
	assert.Zero(t, w.Body.Len())
	assert.Equal(t, []string{"meta media/public/clip.mp4"}, store.Calls())
}

func TestDownload_CacheControl(t *testing.T) {
	store := newMemoryStore()
	policies := objectgate.NewPolicyStore(store, discardLogger())
	ctx := context.Background()

	publicObj := upload(t, store, "media", "public/a.jpg", "img", "image/jpeg")
	require.NoError(t, policies.SetPolicy(ctx, publicObj, objectgate.ObjectACLPolicy{Owner: "u1", Visibility: objectgate.VisibilityPublic}))
	privateObj := upload(t, store, "media", "private/b.jpg", "img", "image/jpeg")
	require.NoError(t, policies.SetPolicy(ctx, privateObj, objectgate.ObjectACLPolicy{Owner: "u1", Visibility: objectgate.VisibilityPrivate}))
	noPolicy := upload(t, store, "media", "public/c.bin", "raw", "")

	gw := objectgate.NewGateway(store, 0, nil, discardLogger())

	w := httptest.NewRecorder()
	require.NoError(t, gw.Download(ctx, w, publicObj, 0))
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))

	w = httptest.NewRecorder()
	require.NoError(t, gw.Download(ctx, w, privateObj, 120*time.Second))
	assert.Equal(t, "private, max-age=120", w.Header().Get("Cache-Control"))

	w = httptest.NewRecorder()
	require.NoError(t, gw.Download(ctx, w, noPolicy, 0))
	assert.Equal(t, "private, max-age=3600", w.Header().Get("Cache-Control"))
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))

	custom := objectgate.NewGateway(store, 10*time.Minute, nil, discardLogger())
	w = httptest.NewRecorder()
	require.NoError(t, custom.Download(ctx, w, publicObj, 0))
	assert.Equal(t, "public, max-age=600", w.Header().Get("Cache-Control"))
}

func TestDownload_NotFound(t *testing.T) {
	gw := objectgate.NewGateway(newMemoryStore(), 0, nil, discardLogger())

	w := httptest.NewRecorder()
	err := gw.Download(context.Background(), w, objectgate.ObjectRef{Bucket: "media", Name: "public/none"}, 0)
	assert.ErrorIs(t, err, objectgate.ErrObjectNotFound)
	assert.Empty(t, w.Header())
}

func TestDownload_ErrorBeforeHeadersIsReturned(t *testing.T) {
	mem := newMemoryStore()
	obj := upload(t, mem, "media", "public/clip.mp4", thousandBytes(), "video/mp4")
	gw := objectgate.NewGateway(&unavailableStore{BlobStore: mem}, 0, nil, discardLogger())

	rec := httptest.NewRecorder()
	guarded := objectgate.NewGuardedResponseWriter(rec)
	err := gw.Download(context.Background(), guarded, obj, 0)

	var storageErr *objectgate.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "download", storageErr.Op)
	assert.False(t, guarded.HeadersSent())
	assert.Empty(t, rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Accept-Ranges"))
}

func TestDownload_ErrorAfterHeadersIsSwallowed(t *testing.T) {
	mem := newMemoryStore()
	obj := upload(t, mem, "media", "public/clip.mp4", thousandBytes(), "video/mp4")
	gw := objectgate.NewGateway(&brokenStreamStore{BlobStore: mem}, 0, nil, discardLogger())

	rec := httptest.NewRecorder()
	guarded := objectgate.NewGuardedResponseWriter(rec)
	require.NoError(t, gw.Download(context.Background(), guarded, obj, 0))

	assert.True(t, guarded.HeadersSent())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "par", rec.Body.String())
	assert.Equal(t, int64(3), guarded.BytesWritten())
}

func TestGuardedResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	g := objectgate.NewGuardedResponseWriter(rec)
	assert.Same(t, g, objectgate.NewGuardedResponseWriter(g))
	assert.False(t, g.HeadersSent())

	_, err := g.Write([]byte("hello"))
	require.NoError(t, err)
	assert.True(t, g.HeadersSent())
	assert.Equal(t, http.StatusOK, g.Status())

	// a late error response cannot replace the status line
	g.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, g.Status())
	assert.Equal(t, int64(5), g.BytesWritten())
	assert.Equal(t, rec, g.Unwrap())
	assert.True(t, bytes.Equal([]byte("hello"), rec.Body.Bytes()))
}
