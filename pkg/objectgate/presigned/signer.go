package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Signer generates and validates HMAC-signed URLs for bucket objects
type Signer struct {
	secretKey         []byte
	defaultExpiration time.Duration
	baseURL           string
	pathPrefix        string
	now               func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		defaultExpiration: 15 * time.Minute,
		pathPrefix:        "/upload",
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// PathPrefix returns the route prefix signed URLs point at
func (s *Signer) PathPrefix() string {
	return s.pathPrefix
}

// ObjectPath returns the unescaped request path for an object
func (s *Signer) ObjectPath(bucket, name string) string {
	return s.pathPrefix + "/" + bucket + "/" + name
}

// SignObjectURL returns a signed URL allowing method on bucket/name for expiresIn
//
// Example:
//
//	u, err := signer.SignObjectURL("PUT", "media", "public/abc.mp4", 15*time.Minute)
//	// https://api.example.com/upload/media/public/abc.mp4?signature=...&expires=1696789012
func (s *Signer) SignObjectURL(method, bucket, name string, expiresIn time.Duration) (string, error) {
	if bucket == "" || name == "" {
		return "", ErrInvalidObjectPath
	}
	return s.SignURL(method, s.ObjectPath(bucket, name), expiresIn)
}

// SignURL signs an unescaped request path. The returned URL carries the
// escaped path, the base URL and the signature and expires query parameters.
func (s *Signer) SignURL(method, path string, expiresIn time.Duration) (string, error) {
	if len(s.secretKey) == 0 {
		return "", ErrNoSecretKey
	}

	if expiresIn <= 0 {
		expiresIn = s.defaultExpiration
	}

	expiresAt := s.now().Add(expiresIn).Unix()
	signature := s.generateSignature(s.createPayload(method, path, expiresAt))

	query := url.Values{}
	query.Set("signature", signature)
	query.Set("expires", strconv.FormatInt(expiresAt, 10))

	return s.baseURL + escapePath(path) + "?" + query.Encode(), nil
}

// ValidateRequest validates the signature and expiration of an HTTP request
// Returns an error if the signature is invalid or the URL has expired
func (s *Signer) ValidateRequest(r *http.Request) error {
	if len(s.secretKey) == 0 {
		// no key configured: signing is off
		return nil
	}

	query := r.URL.Query()
	signature := query.Get("signature")
	expiresStr := query.Get("expires")

	if signature == "" {
		return ErrMissingSignature
	}
	if expiresStr == "" {
		return ErrMissingExpiration
	}

	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}

	return s.Validate(r.Method, r.URL.Path, signature, expiresAt)
}

// Validate validates the signature and expiration for a given method, path, signature, and expiration timestamp
func (s *Signer) Validate(method, path, signature string, expiresAt int64) error {
	if s.now().Unix() > expiresAt {
		return ErrExpired
	}

	expected := s.generateSignature(s.createPayload(method, path, expiresAt))

	// constant-time comparison
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}

	return nil
}

// ObjectFromPath splits an unescaped request path under the prefix into
// bucket and object name
func (s *Signer) ObjectFromPath(path string) (bucket, name string, err error) {
	rest, ok := strings.CutPrefix(path, s.pathPrefix+"/")
	if !ok {
		return "", "", ErrInvalidObjectPath
	}
	bucket, name, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return "", "", ErrInvalidObjectPath
	}
	return bucket, name, nil
}

// ParseObjectURL recognizes URLs produced by this signer. Only the path is
// inspected so URLs signed for a different host still map to their object.
func (s *Signer) ParseObjectURL(u *url.URL) (string, string, bool) {
	bucket, name, err := s.ObjectFromPath(u.Path)
	if err != nil {
		return "", "", false
	}
	return bucket, name, true
}

// IsEnabled returns true if signature validation is enabled (secret key is set)
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// createPayload creates the signature payload: METHOD|PATH|EXPIRES
func (s *Signer) createPayload(method, path string, expiresAt int64) string {
	return fmt.Sprintf("%s|%s|%d", strings.ToUpper(method), path, expiresAt)
}

// generateSignature generates HMAC-SHA256 signature for the given payload
func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
