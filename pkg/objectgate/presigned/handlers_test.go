package presigned_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/object-gate/pkg/objectgate/presigned"
	memorystorage "github.com/tendant/object-gate/pkg/objectgate/storage/memory"
)

func newUploadServer(t *testing.T, secret string) (*presigned.Signer, *memorystorage.Backend, http.Handler) {
	t.Helper()
	signer := presigned.New(presigned.WithSecretKey(secret))
	store := memorystorage.New(memorystorage.WithSigner(signer))

	r := chi.NewRouter()
	presigned.NewHandlers(store, signer, nil).Mount(r)
	return signer, store, r
}

func TestHandleUpload_SignedURL(t *testing.T) {
	_, store, router := newUploadServer(t, "handler-test-secret")
	ctx := context.Background()

	signed, err := store.SignURL(ctx, "media", "public/abc.mp4", http.MethodPut, 15*time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, signed, strings.NewReader("video-bytes"))
	req.Header.Set("Content-Type", "video/mp4")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	meta, err := store.GetObjectMeta(ctx, "media", "public/abc.mp4")
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", meta.ContentType)

	rc, err := store.Download(ctx, "media", "public/abc.mp4", nil)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "video-bytes", string(data))
}

func TestHandleUpload_Rejections(t *testing.T) {
	signer, store, router := newUploadServer(t, "handler-test-secret")
	ctx := context.Background()

	signed, err := signer.SignObjectURL(http.MethodPut, "media", "public/abc.mp4", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"MissingSignature", "/upload/media/public/abc.mp4", http.StatusUnauthorized},
		{"BadExpires", "/upload/media/public/abc.mp4?signature=x&expires=later", http.StatusBadRequest},
		{"OtherObject", "/upload/media/public/other.mp4?" + u.RawQuery, http.StatusForbidden},
		{"NoObjectName", "/upload/media?" + u.RawQuery, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, tt.target, strings.NewReader("x"))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	exists, err := store.Exists(ctx, "media", "public/other.mp4")
	require.NoError(t, err)
	assert.False(t, exists)
}
