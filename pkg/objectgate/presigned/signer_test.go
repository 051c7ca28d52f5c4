package presigned

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_SignAndValidate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer := New(WithSecretKey("unit-test-secret"), WithClock(func() time.Time { return now }))

	signed, err := signer.SignObjectURL("PUT", "media", "public/a b.mp4", 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, "/upload/media/public/a%20b.mp4?"))

	req := httptest.NewRequest("PUT", signed, nil)
	assert.Equal(t, "/upload/media/public/a b.mp4", req.URL.Path)
	assert.NoError(t, signer.ValidateRequest(req))

	t.Run("WrongMethod", func(t *testing.T) {
		req := httptest.NewRequest("GET", signed, nil)
		assert.ErrorIs(t, signer.ValidateRequest(req), ErrInvalidSignature)
	})

	t.Run("TamperedPath", func(t *testing.T) {
		tampered := strings.Replace(signed, "public", "private", 1)
		req := httptest.NewRequest("PUT", tampered, nil)
		assert.ErrorIs(t, signer.ValidateRequest(req), ErrInvalidSignature)
	})

	t.Run("Expired", func(t *testing.T) {
		later := New(WithSecretKey("unit-test-secret"), WithClock(func() time.Time { return now.Add(16 * time.Minute) }))
		assert.ErrorIs(t, later.ValidateRequest(req), ErrExpired)
	})

	t.Run("MissingParameters", func(t *testing.T) {
		bare := httptest.NewRequest("PUT", "/upload/media/a.mp4", nil)
		assert.ErrorIs(t, signer.ValidateRequest(bare), ErrMissingSignature)

		noExpiry := httptest.NewRequest("PUT", "/upload/media/a.mp4?signature=abc", nil)
		assert.ErrorIs(t, signer.ValidateRequest(noExpiry), ErrMissingExpiration)

		badExpiry := httptest.NewRequest("PUT", "/upload/media/a.mp4?signature=abc&expires=soon", nil)
		assert.ErrorIs(t, signer.ValidateRequest(badExpiry), ErrInvalidExpiration)
	})
}

func TestSigner_Disabled(t *testing.T) {
	signer := New()
	assert.False(t, signer.IsEnabled())

	_, err := signer.SignObjectURL("PUT", "media", "a.mp4", time.Minute)
	assert.ErrorIs(t, err, ErrNoSecretKey)

	req := httptest.NewRequest("PUT", "/upload/media/a.mp4", nil)
	assert.NoError(t, signer.ValidateRequest(req))
}

func TestSigner_ObjectFromPath(t *testing.T) {
	signer := New(WithPathPrefix("/files/upload/"))
	assert.Equal(t, "/files/upload", signer.PathPrefix())

	bucket, name, err := signer.ObjectFromPath("/files/upload/media/x/y.jpg")
	require.NoError(t, err)
	assert.Equal(t, "media", bucket)
	assert.Equal(t, "x/y.jpg", name)

	for _, p := range []string{"/upload/media/x.jpg", "/files/upload/media", "/files/upload//x.jpg"} {
		_, _, err := signer.ObjectFromPath(p)
		assert.ErrorIs(t, err, ErrInvalidObjectPath, p)
	}
}

func TestSigner_ParseObjectURL(t *testing.T) {
	signer := New(WithSecretKey("k"), WithBaseURL("https://api.example.com/"))
	signed, err := signer.SignObjectURL("PUT", "media", "public/a.mp4", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, "https://api.example.com/upload/media/public/a.mp4?"))

	u, err := url.Parse(signed)
	require.NoError(t, err)
	bucket, name, ok := signer.ParseObjectURL(u)
	require.True(t, ok)
	assert.Equal(t, "media", bucket)
	assert.Equal(t, "public/a.mp4", name)

	other, _ := url.Parse("https://api.example.com/objects/abc")
	_, _, ok = signer.ParseObjectURL(other)
	assert.False(t, ok)
}

func TestRejection(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{ErrInvalidObjectPath, http.StatusBadRequest, "invalid_object_path"},
		{fmt.Errorf("%w: strconv", ErrInvalidExpiration), http.StatusBadRequest, "invalid_expires"},
		{ErrMissingSignature, http.StatusUnauthorized, "missing_signature"},
		{ErrMissingExpiration, http.StatusUnauthorized, "missing_signature"},
		{ErrExpired, http.StatusForbidden, "expired"},
		{ErrInvalidSignature, http.StatusForbidden, "invalid_signature"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := rejection(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
