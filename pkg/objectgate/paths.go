package objectgate

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/object-gate/pkg/objectgate/objectkey"
)

// LogicalPathPrefix prefixes every application-facing object path
const LogicalPathPrefix = "/objects/"

// Setting names reported by ConfigError when roots are missing
const (
	SettingPublicSearchPaths = "PUBLIC_OBJECT_SEARCH_PATHS"
	SettingLegacySearchPaths = "LEGACY_OBJECT_SEARCH_PATHS"
	SettingPrivateObjectDir  = "PRIVATE_OBJECT_DIR"
)

// Root is a storage location objects can live under: a bucket and an
// optional directory prefix inside it
type Root struct {
	Bucket string
	Dir    string
}

// ParseRoot parses "[/]bucket[/dir...]"
func ParseRoot(s string) (Root, error) {
	trimmed := strings.Trim(strings.TrimSpace(s), "/")
	if trimmed == "" {
		return Root{}, fmt.Errorf("empty storage root %q", s)
	}
	bucket, dir, _ := strings.Cut(trimmed, "/")
	dir = strings.Trim(dir, "/")
	if dir != "" && (path.Clean(dir) != dir || dir == ".." || strings.HasPrefix(dir, "../")) {
		return Root{}, fmt.Errorf("storage root %q has an unclean directory", s)
	}
	return Root{Bucket: bucket, Dir: dir}, nil
}

func (r Root) String() string {
	if r.Dir == "" {
		return "/" + r.Bucket
	}
	return "/" + r.Bucket + "/" + r.Dir
}

// Ref returns the object entityID names under this root
func (r Root) Ref(entityID string) ObjectRef {
	if r.Dir == "" {
		return ObjectRef{Bucket: r.Bucket, Name: entityID}
	}
	return ObjectRef{Bucket: r.Bucket, Name: r.Dir + "/" + entityID}
}

// entityID strips the root prefix from a bucket-qualified object name
func (r Root) entityID(bucket, name string) (string, bool) {
	if bucket != r.Bucket {
		return "", false
	}
	if r.Dir == "" {
		return name, name != ""
	}
	rest, ok := strings.CutPrefix(name, r.Dir+"/")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// PathConfig lists the storage roots as configured
type PathConfig struct {
	// PublicSearchRoots are probed in order; the first is the public upload root
	PublicSearchRoots []string
	// LegacySearchRoots are probed after the public roots and never written to
	LegacySearchRoots []string
	// PrivateRoot is probed last and receives private uploads
	PrivateRoot string
}

// UploadLocation is where a new upload goes
type UploadLocation struct {
	Object      ObjectRef
	LogicalPath string
}

// PathTranslator maps between logical /objects/<id> paths, objects under the
// configured roots and provider URLs
type PathTranslator struct {
	public  []Root
	legacy  []Root
	private *Root

	store     BlobStore
	urlParser URLParser
	keys      objectkey.Generator
	logger    *slog.Logger
}

// NewPathTranslator parses the configured roots. Missing roots are not an
// error here; the operations that need them report a ConfigError.
func NewPathTranslator(cfg PathConfig, store BlobStore, keys objectkey.Generator, logger *slog.Logger) (*PathTranslator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if keys == nil {
		keys = objectkey.NewFlatGenerator()
	}

	t := &PathTranslator{store: store, keys: keys, logger: logger}
	if p, ok := store.(URLParser); ok {
		t.urlParser = p
	}

	var err error
	if t.public, err = parseRoots(SettingPublicSearchPaths, cfg.PublicSearchRoots); err != nil {
		return nil, err
	}
	if t.legacy, err = parseRoots(SettingLegacySearchPaths, cfg.LegacySearchRoots); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.PrivateRoot) != "" {
		root, err := ParseRoot(cfg.PrivateRoot)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", SettingPrivateObjectDir, err)
		}
		t.private = &root
	}
	return t, nil
}

func parseRoots(setting string, values []string) ([]Root, error) {
	var roots []Root
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		root, err := ParseRoot(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", setting, err)
		}
		roots = append(roots, root)
	}
	return roots, nil
}

// SearchRoots returns the public roots followed by the legacy roots
func (t *PathTranslator) SearchRoots() []Root {
	roots := make([]Root, 0, len(t.public)+len(t.legacy))
	roots = append(roots, t.public...)
	return append(roots, t.legacy...)
}

// PrivateRoot returns the private root, if configured
func (t *PathTranslator) PrivateRoot() (Root, bool) {
	if t.private == nil {
		return Root{}, false
	}
	return *t.private, true
}

func (t *PathTranslator) requireRoots() error {
	if len(t.public) == 0 {
		return &ConfigError{
			Setting: SettingPublicSearchPaths,
			Hint:    "set a comma-separated list of bucket/dir roots",
		}
	}
	if t.private == nil {
		return &ConfigError{
			Setting: SettingPrivateObjectDir,
			Hint:    "set the bucket/dir root for private objects",
		}
	}
	return nil
}

// ResolveObject finds the stored object behind a logical path. Search roots
// are probed in order and the private root last; the first existing object wins.
func (t *PathTranslator) ResolveObject(ctx context.Context, logicalPath string) (ObjectRef, error) {
	if err := t.requireRoots(); err != nil {
		return ObjectRef{}, err
	}

	entityID, ok := EntityIDFromPath(logicalPath)
	if !ok {
		return ObjectRef{}, ErrObjectNotFound
	}

	candidates := append(t.SearchRoots(), *t.private)
	for _, root := range candidates {
		ref := root.Ref(entityID)
		exists, err := t.store.Exists(ctx, ref.Bucket, ref.Name)
		if err != nil {
			return ObjectRef{}, NewStorageError("exists", ref, err)
		}
		if exists {
			return ref, nil
		}
	}

	t.logger.Debug("Object not found under any root", "path", logicalPath)
	return ObjectRef{}, ErrObjectNotFound
}

// NormalizePath turns a provider URL into a logical path. Logical paths and
// anything that does not map onto a configured root are returned unchanged.
func (t *PathTranslator) NormalizePath(raw string) string {
	if strings.HasPrefix(raw, LogicalPathPrefix) {
		return raw
	}

	bucket, name, ok := t.parseObjectURL(raw)
	if !ok {
		return raw
	}

	roots := t.SearchRoots()
	if t.private != nil {
		roots = append(roots, *t.private)
	}
	for _, root := range roots {
		entityID, ok := root.entityID(bucket, name)
		if !ok {
			continue
		}
		// names that climb out of the root are not logical paths
		if _, valid := EntityIDFromPath(LogicalPathPrefix + entityID); valid {
			return LogicalPathPrefix + entityID
		}
	}
	return raw
}

// ClassifyPath normalizes raw and reports whether the result is a logical path
func (t *PathTranslator) ClassifyPath(raw string) (string, bool) {
	normalized := t.NormalizePath(raw)
	_, ok := EntityIDFromPath(normalized)
	return normalized, ok
}

// UploadTarget picks the root for visibility and a fresh object name under it
func (t *PathTranslator) UploadTarget(visibility Visibility, mimeType string) (*UploadLocation, error) {
	if err := t.requireRoots(); err != nil {
		return nil, err
	}

	var root Root
	switch visibility {
	case VisibilityPublic:
		root = t.public[0]
	case VisibilityPrivate:
		root = *t.private
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidVisibility, visibility)
	}

	entityID := t.keys.GenerateEntityID(uuid.New(), &objectkey.KeyMetadata{ContentType: mimeType})
	return &UploadLocation{
		Object:      root.Ref(entityID),
		LogicalPath: LogicalPathPrefix + entityID,
	}, nil
}

func (t *PathTranslator) parseObjectURL(raw string) (string, string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", "", false
	}

	if t.urlParser != nil {
		if bucket, name, ok := t.urlParser.ParseObjectURL(u); ok {
			return bucket, name, true
		}
	}
	return ParseProviderURL(u)
}

// ParseProviderURL extracts bucket and object name from the URL layouts used
// by Google Cloud Storage, S3 (virtual-hosted and path-style), gs:// and s3://
// URIs and a presigned upload endpoint mounted at /upload/. Query strings are
// ignored.
func ParseProviderURL(u *url.URL) (bucket, name string, ok bool) {
	host := strings.ToLower(u.Hostname())
	p := u.Path

	switch {
	case u.Scheme == "gs" || u.Scheme == "s3":
		return host, strings.TrimPrefix(p, "/"), host != "" && strings.TrimPrefix(p, "/") != ""

	case host == "storage.googleapis.com" || host == "storage.cloud.google.com":
		return splitBucketPath(p)

	case strings.HasSuffix(host, ".storage.googleapis.com"):
		bucket = strings.TrimSuffix(host, ".storage.googleapis.com")
		name = strings.TrimPrefix(p, "/")
		return bucket, name, bucket != "" && name != ""

	case isS3VirtualHost(host):
		bucket = host[:strings.Index(host, ".s3")]
		name = strings.TrimPrefix(p, "/")
		return bucket, name, bucket != "" && name != ""
	}

	if rest, found := strings.CutPrefix(p, "/upload/"); found {
		return splitBucketPath(rest)
	}
	return splitBucketPath(p)
}

// isS3VirtualHost matches bucket.s3.amazonaws.com, bucket.s3.<region>.amazonaws.com
// and bucket.s3-<region>.amazonaws.com
func isS3VirtualHost(host string) bool {
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return false
	}
	i := strings.Index(host, ".s3")
	if i <= 0 {
		return false
	}
	next := host[i+len(".s3"):]
	return strings.HasPrefix(next, ".") || strings.HasPrefix(next, "-")
}

func splitBucketPath(p string) (string, string, bool) {
	bucket, name, found := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	if !found || bucket == "" || name == "" {
		return "", "", false
	}
	return bucket, name, true
}

// EntityIDFromPath returns the entity id of a logical path. Ids that are
// empty or would escape their root are rejected.
func EntityIDFromPath(logicalPath string) (string, bool) {
	entityID, ok := strings.CutPrefix(logicalPath, LogicalPathPrefix)
	if !ok || entityID == "" {
		return "", false
	}
	if path.Clean("/"+entityID) != "/"+entityID {
		return "", false
	}
	return entityID, true
}

// LogicalPath returns the logical path of an entity id
func LogicalPath(entityID string) string {
	return LogicalPathPrefix + entityID
}
