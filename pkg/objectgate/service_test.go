package objectgate_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/object-gate/pkg/objectgate"
)

var serviceRoots = objectgate.PathConfig{
	PublicSearchRoots: []string{"/media/public"},
	PrivateRoot:       "/media/private",
}

func newService(t *testing.T, store objectgate.BlobStore, opts ...objectgate.Option) objectgate.Service {
	t.Helper()
	base := []objectgate.Option{
		objectgate.WithBlobStore(store),
		objectgate.WithSubscriptionStore(subscriptions{"fan->u1": true}),
		objectgate.WithPathConfig(serviceRoots),
		objectgate.WithLogger(discardLogger()),
	}
	svc, err := objectgate.New(append(base, opts...)...)
	require.NoError(t, err)
	return svc
}

func TestNew_RequiresBlobStore(t *testing.T) {
	_, err := objectgate.New(objectgate.WithLogger(discardLogger()))
	assert.Error(t, err)
}

func TestNew_RejectsInvalidRoot(t *testing.T) {
	_, err := objectgate.New(
		objectgate.WithBlobStore(newMemoryStore()),
		objectgate.WithPathConfig(objectgate.PathConfig{PublicSearchRoots: []string{"/"}}),
	)
	assert.Error(t, err)
}

func TestGetUploadURL(t *testing.T) {
	mem := newMemoryStore()
	store := &recordingStore{BlobStore: mem}
	svc := newService(t, store)
	ctx := context.Background()

	before := time.Now().UTC()
	u, err := svc.GetUploadURL(ctx, objectgate.UploadURLRequest{
		RequesterID: "u1",
		MimeType:    "video/mp4",
		Visibility:  objectgate.VisibilityPrivate,
	})
	require.NoError(t, err)

	assert.Equal(t, "media", u.Object.Bucket)
	assert.True(t, strings.HasPrefix(u.Object.Name, "private/"))
	assert.True(t, strings.HasSuffix(u.ObjectPath, ".mp4"))
	assert.True(t, strings.HasPrefix(u.UploadURL, "http://objects.local/upload/media/private/"))
	assert.WithinDuration(t, before.Add(900*time.Second), u.ExpiresAt, 5*time.Second)

	// issuing a URL writes nothing
	assert.Equal(t, []string{"sign " + u.Object.Path()}, store.Calls())

	id, ok := objectgate.EntityIDFromPath(u.ObjectPath)
	require.True(t, ok)
	assert.Equal(t, "private/"+id, u.Object.Name)
}

func TestGetUploadURL_Errors(t *testing.T) {
	ctx := context.Background()

	svc := newService(t, newMemoryStore())
	_, err := svc.GetUploadURL(ctx, objectgate.UploadURLRequest{Visibility: objectgate.VisibilityPublic})
	assert.ErrorIs(t, err, objectgate.ErrAuthenticationRequired)

	_, err = svc.GetUploadURL(ctx, objectgate.UploadURLRequest{RequesterID: "u1", Visibility: "friends"})
	assert.ErrorIs(t, err, objectgate.ErrInvalidVisibility)

	// no private root: reported before touching storage
	store := &recordingStore{BlobStore: newMemoryStore()}
	unconfigured := newService(t, store, objectgate.WithPathConfig(objectgate.PathConfig{
		PublicSearchRoots: []string{"/media/public"},
	}))
	_, err = unconfigured.GetUploadURL(ctx, objectgate.UploadURLRequest{RequesterID: "u1", Visibility: objectgate.VisibilityPrivate})
	var cfgErr *objectgate.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, objectgate.SettingPrivateObjectDir, cfgErr.Setting)
	assert.ErrorIs(t, err, objectgate.ErrNotConfigured)
	assert.Empty(t, store.Calls())
}

func TestFinalizeUpload(t *testing.T) {
	store := newMemoryStore()
	svc := newService(t, store)
	ctx := context.Background()

	u, err := svc.GetUploadURL(ctx, objectgate.UploadURLRequest{RequesterID: "u1", MimeType: "image/png", Visibility: objectgate.VisibilityPublic})
	require.NoError(t, err)
	upload(t, store, u.Object.Bucket, u.Object.Name, "png", "image/png")

	result, err := svc.FinalizeUpload(ctx, objectgate.FinalizeUploadRequest{
		RawContentURL: u.UploadURL,
		OwnerID:       "u1",
		Visibility:    objectgate.VisibilityPublic,
	})
	require.NoError(t, err)
	assert.Equal(t, u.ObjectPath, result.ObjectPath)
	assert.Empty(t, result.Warning)
	require.NotNil(t, result.Policy)
	assert.Equal(t, "u1", result.Policy.Owner)

	policy, err := svc.GetPolicy(ctx, u.Object)
	require.NoError(t, err)
	assert.Equal(t, result.Policy, policy)

	// finalizing again by the owner replaces the policy
	_, err = svc.FinalizeUpload(ctx, objectgate.FinalizeUploadRequest{
		RawContentURL: u.ObjectPath,
		OwnerID:       "u1",
		Visibility:    objectgate.VisibilityPrivate,
	})
	require.NoError(t, err)
	policy, err = svc.GetPolicy(ctx, u.Object)
	require.NoError(t, err)
	assert.Equal(t, objectgate.VisibilityPrivate, policy.Visibility)
}

func TestFinalizeUpload_PolicyWriteFailureIsAWarning(t *testing.T) {
	mem := newMemoryStore()
	upload(t, mem, "media", "public/clip.mp4", "video", "video/mp4")
	svc := newService(t, &failingMetadataStore{BlobStore: mem})

	result, err := svc.FinalizeUpload(context.Background(), objectgate.FinalizeUploadRequest{
		RawContentURL: "/objects/clip.mp4",
		OwnerID:       "u1",
		Visibility:    objectgate.VisibilityPublic,
	})
	require.NoError(t, err)
	assert.Equal(t, "/objects/clip.mp4", result.ObjectPath)
	assert.NotEmpty(t, result.Warning)
	assert.Nil(t, result.Policy)

	// the object stays without a policy
	meta, err := mem.GetObjectMeta(context.Background(), "media", "public/clip.mp4")
	require.NoError(t, err)
	assert.NotContains(t, meta.Metadata, objectgate.ACLPolicyMetadataKey)
}

// unreadableMetadataStore stores bytes but cannot read object metadata
type unreadableMetadataStore struct {
	*recordingStore
}

func (s *unreadableMetadataStore) GetObjectMeta(ctx context.Context, bucket, name string) (*objectgate.ObjectMeta, error) {
	return nil, errors.New("metadata read timed out")
}

func TestFinalizeUpload_OwnerCheckReadFailureWritesNothing(t *testing.T) {
	mem := newMemoryStore()
	upload(t, mem, "media", "public/clip.mp4", "video", "video/mp4")
	rec := &recordingStore{BlobStore: mem}
	svc := newService(t, &unreadableMetadataStore{recordingStore: rec})

	result, err := svc.FinalizeUpload(context.Background(), objectgate.FinalizeUploadRequest{
		RawContentURL: "/objects/clip.mp4",
		OwnerID:       "u1",
		Visibility:    objectgate.VisibilityPublic,
	})
	assert.Nil(t, result)
	var storageErr *objectgate.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "get_metadata", storageErr.Op)

	// ownership could not be verified, so no policy was written
	assert.NotContains(t, rec.Calls(), "set_metadata media/public/clip.mp4")
}

func TestFinalizeUpload_Errors(t *testing.T) {
	store := newMemoryStore()
	upload(t, store, "media", "public/taken.jpg", "img", "image/jpeg")
	svc := newService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.SetPolicy(ctx, objectgate.ObjectRef{Bucket: "media", Name: "public/taken.jpg"},
		objectgate.ObjectACLPolicy{Owner: "u1", Visibility: objectgate.VisibilityPublic}))

	tests := []struct {
		name    string
		req     objectgate.FinalizeUploadRequest
		wantErr error
	}{
		{"anonymous", objectgate.FinalizeUploadRequest{RawContentURL: "/objects/taken.jpg", Visibility: objectgate.VisibilityPublic}, objectgate.ErrAuthenticationRequired},
		{"bad visibility", objectgate.FinalizeUploadRequest{RawContentURL: "/objects/taken.jpg", OwnerID: "u1", Visibility: "friends"}, objectgate.ErrInvalidPolicy},
		{"foreign url", objectgate.FinalizeUploadRequest{RawContentURL: "https://example.com/file.jpg", OwnerID: "u1", Visibility: objectgate.VisibilityPublic}, objectgate.ErrUnrecognizedPath},
		{"missing object", objectgate.FinalizeUploadRequest{RawContentURL: "/objects/none.jpg", OwnerID: "u1", Visibility: objectgate.VisibilityPublic}, objectgate.ErrObjectNotFound},
		{"owned by someone else", objectgate.FinalizeUploadRequest{RawContentURL: "/objects/taken.jpg", OwnerID: "u2", Visibility: objectgate.VisibilityPublic}, objectgate.ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.FinalizeUpload(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUpdateObjectPolicy(t *testing.T) {
	store := newMemoryStore()
	obj := upload(t, store, "media", "private/doc.pdf", "pdf", "application/pdf")
	svc := newService(t, store)
	ctx := context.Background()
	require.NoError(t, svc.SetPolicy(ctx, obj, objectgate.ObjectACLPolicy{Owner: "u1", Visibility: objectgate.VisibilityPrivate}))

	_, err := svc.UpdateObjectPolicy(ctx, objectgate.UpdatePolicyRequest{
		LogicalPath: "/objects/doc.pdf", RequesterID: "u1", Owner: "u2", Visibility: objectgate.VisibilityPrivate,
	})
	assert.ErrorIs(t, err, objectgate.ErrOwnerImmutable)

	_, err = svc.UpdateObjectPolicy(ctx, objectgate.UpdatePolicyRequest{
		LogicalPath: "/objects/doc.pdf", RequesterID: "fan", Visibility: objectgate.VisibilityPublic,
	})
	assert.ErrorIs(t, err, objectgate.ErrAccessDenied)

	_, err = svc.UpdateObjectPolicy(ctx, objectgate.UpdatePolicyRequest{
		LogicalPath: "/objects/doc.pdf", Visibility: objectgate.VisibilityPublic,
	})
	assert.ErrorIs(t, err, objectgate.ErrAuthenticationRequired)

	updated, err := svc.UpdateObjectPolicy(ctx, objectgate.UpdatePolicyRequest{
		LogicalPath: "/objects/doc.pdf",
		RequesterID: "u1",
		Owner:       "u1",
		Visibility:  objectgate.VisibilityPrivate,
		ACLRules:    []objectgate.ACLRule{subscriberRule("u1", objectgate.PermissionWrite)},
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", updated.Owner)

	// a write grant lets the subscriber read and edit the policy
	got, err := svc.GetObjectPolicy(ctx, "/objects/doc.pdf", "fan")
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestTransferOwnership(t *testing.T) {
	store := newMemoryStore()
	obj := upload(t, store, "media", "public/song.mp3", "mp3", "audio/mpeg")
	audit := &recordingAuditSink{}
	svc := newService(t, store, objectgate.WithAuditSink(audit))
	ctx := context.Background()
	require.NoError(t, svc.SetPolicy(ctx, obj, objectgate.ObjectACLPolicy{
		Owner:      "u1",
		Visibility: objectgate.VisibilityPublic,
		ACLRules:   []objectgate.ACLRule{subscriberRule("u1", objectgate.PermissionWrite)},
	}))

	// write access is not ownership
	_, err := svc.TransferOwnership(ctx, objectgate.TransferOwnershipRequest{LogicalPath: "/objects/song.mp3", RequesterID: "fan", NewOwner: "fan"})
	assert.ErrorIs(t, err, objectgate.ErrAccessDenied)

	_, err = svc.TransferOwnership(ctx, objectgate.TransferOwnershipRequest{LogicalPath: "/objects/song.mp3", RequesterID: "u1"})
	assert.ErrorIs(t, err, objectgate.ErrInvalidPolicy)

	updated, err := svc.TransferOwnership(ctx, objectgate.TransferOwnershipRequest{LogicalPath: "/objects/song.mp3", RequesterID: "u1", NewOwner: "u2"})
	require.NoError(t, err)
	assert.Equal(t, "u2", updated.Owner)
	assert.Len(t, updated.ACLRules, 1)

	require.Len(t, audit.events, 1)
	assert.Equal(t, "/objects/song.mp3", audit.events[0].ObjectPath)
	assert.Equal(t, "u1", audit.events[0].PreviousOwner)
	assert.Equal(t, "u2", audit.events[0].NewOwner)
	assert.Equal(t, "u1", audit.events[0].RequestedBy)

	stored, err := svc.GetPolicy(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, "u2", stored.Owner)
}

func TestServeObject(t *testing.T) {
	store := newMemoryStore()
	obj := upload(t, store, "media", "private/clip.mp4", strings.Repeat("x", 1000), "video/mp4")
	svc := newService(t, store)
	ctx := context.Background()
	require.NoError(t, svc.SetPolicy(ctx, obj, objectgate.ObjectACLPolicy{
		Owner:      "u1",
		Visibility: objectgate.VisibilityPrivate,
		ACLRules:   []objectgate.ACLRule{subscriberRule("u1", objectgate.PermissionRead)},
	}))

	serve := func(requester, rangeHeader string) (*httptest.ResponseRecorder, error) {
		r := httptest.NewRequest(http.MethodGet, "/objects/clip.mp4", nil)
		if rangeHeader != "" {
			r.Header.Set("Range", rangeHeader)
		}
		w := httptest.NewRecorder()
		err := svc.ServeObject(ctx, w, r, objectgate.FetchObjectRequest{LogicalPath: "/objects/clip.mp4", RequesterID: requester})
		return w, err
	}

	w, err := serve("", "")
	assert.ErrorIs(t, err, objectgate.ErrAuthenticationRequired)
	assert.Empty(t, w.Header())

	w, err = serve("stranger", "")
	assert.ErrorIs(t, err, objectgate.ErrAccessDenied)
	assert.Empty(t, w.Header())

	w, err = serve("u1", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "private, max-age=3600", w.Header().Get("Cache-Control"))

	w, err = serve("fan", "bytes=0-9")
	require.NoError(t, err)
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 0-9/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, 10, w.Body.Len())

	err = svc.ServeObject(ctx, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/objects/none", nil),
		objectgate.FetchObjectRequest{LogicalPath: "/objects/none", RequesterID: "u1"})
	assert.ErrorIs(t, err, objectgate.ErrObjectNotFound)
}

func TestNormalizeAndResolve(t *testing.T) {
	store := newMemoryStore()
	obj := upload(t, store, "media", "public/a.png", "png", "image/png")
	svc := newService(t, store)

	signed, err := store.SignURL(context.Background(), obj.Bucket, obj.Name, http.MethodPut, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "/objects/a.png", svc.NormalizePath(signed))

	ref, err := svc.ResolveObject(context.Background(), "/objects/a.png")
	require.NoError(t, err)
	assert.Equal(t, obj, ref)
}
