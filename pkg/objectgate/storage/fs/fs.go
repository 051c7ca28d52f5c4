package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tendant/object-gate/pkg/objectgate"
	"github.com/tendant/object-gate/pkg/objectgate/presigned"
)

// metaDir holds one JSON sidecar per object with its content type and
// custom metadata
const metaDir = ".meta"

// Backend is a filesystem implementation of the objectgate.BlobStore interface.
// Objects live at <BaseDir>/<bucket>/<name>.
type Backend struct {
	mu      sync.RWMutex
	baseDir string
	signer  *presigned.Signer
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string            // Base directory for storing files
	Signer  *presigned.Signer // Optional signer for direct upload URLs
}

type sidecar struct {
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir: config.BaseDir,
		signer:  config.Signer,
	}, nil
}

func (b *Backend) paths(bucket, name string) (string, string, error) {
	if bucket == "" || strings.HasPrefix(bucket, ".") || strings.ContainsAny(bucket, `/\`) {
		return "", "", fmt.Errorf("invalid bucket %q", bucket)
	}
	if name == "" || path.Clean(name) != name || path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
		return "", "", fmt.Errorf("invalid object name %q", name)
	}
	rel := filepath.Join(bucket, filepath.FromSlash(name))
	return filepath.Join(b.baseDir, rel), filepath.Join(b.baseDir, metaDir, rel+".json"), nil
}

func notFound(bucket, name string) error {
	return fmt.Errorf("%w: %s/%s", objectgate.ErrObjectNotFound, bucket, name)
}

// Exists reports whether the object file is present
func (b *Backend) Exists(ctx context.Context, bucket, name string) (bool, error) {
	filePath, _, err := b.paths(bucket, name)
	if err != nil {
		// a name that cannot exist under the base directory
		return false, nil
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return !info.IsDir(), nil
}

// GetObjectMeta retrieves metadata for an object in the filesystem
func (b *Backend) GetObjectMeta(ctx context.Context, bucket, name string) (*objectgate.ObjectMeta, error) {
	filePath, metaPath, err := b.paths(bucket, name)
	if err != nil {
		return nil, notFound(bucket, name)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, notFound(bucket, name)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	sc, err := readSidecar(metaPath)
	if err != nil {
		return nil, err
	}

	contentType := sc.ContentType
	if contentType == "" {
		contentType = detectContentType(filePath)
	}

	return &objectgate.ObjectMeta{
		Bucket:      bucket,
		Name:        name,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime().UTC(),
		ETag:        fmt.Sprintf(`"%x-%x"`, info.ModTime().UnixNano(), info.Size()),
		Metadata:    maps.Clone(sc.Metadata),
	}, nil
}

// SetMetadata merges metadata into the object's sidecar
func (b *Backend) SetMetadata(ctx context.Context, bucket, name string, metadata map[string]string) error {
	filePath, metaPath, err := b.paths(bucket, name)
	if err != nil {
		return notFound(bucket, name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return notFound(bucket, name)
	}

	sc, err := readSidecar(metaPath)
	if err != nil {
		return err
	}
	if sc.Metadata == nil {
		sc.Metadata = make(map[string]string, len(metadata))
	}
	maps.Copy(sc.Metadata, metadata)
	return writeSidecar(metaPath, sc)
}

// Download opens the object file, limited to rng when given
func (b *Backend) Download(ctx context.Context, bucket, name string, rng *objectgate.ByteRange) (io.ReadCloser, error) {
	filePath, _, err := b.paths(bucket, name)
	if err != nil {
		return nil, notFound(bucket, name)
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, notFound(bucket, name)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	if rng == nil {
		return file, nil
	}

	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to seek: %w", err)
	}
	return &sectionReader{Reader: io.LimitReader(file, rng.Length()), closer: file}, nil
}

type sectionReader struct {
	io.Reader
	closer io.Closer
}

func (s *sectionReader) Close() error {
	return s.closer.Close()
}

// Upload writes content to the filesystem, replacing the object and its metadata
func (b *Backend) Upload(ctx context.Context, bucket, name string, reader io.Reader, params objectgate.UploadParams) error {
	filePath, metaPath, err := b.paths(bucket, name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// write to a temp file so readers never see a partial object
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return writeSidecar(metaPath, sidecar{ContentType: params.ContentType, Metadata: maps.Clone(params.Metadata)})
}

// SignURL returns a presigned URL served by the presigned upload handler
func (b *Backend) SignURL(ctx context.Context, bucket, name, method string, ttl time.Duration) (string, error) {
	if b.signer == nil {
		return "", errors.New("filesystem backend has no url signer configured")
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

func readSidecar(p string) (sidecar, error) {
	var sc sidecar
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return sc, nil
	} else if err != nil {
		return sc, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return sc, nil
}

func writeSidecar(p string, sc sidecar) error {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func detectContentType(filePath string) string {
	file, err := os.Open(filePath)
	if err != nil {
		return "application/octet-stream"
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && n == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(buffer[:n])
}
