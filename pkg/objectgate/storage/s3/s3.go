package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/object-gate/pkg/objectgate"
)

// MaxUserMetadataSize is the S3 limit on one object's user metadata, counted
// over the bytes of every key and value
const MaxUserMetadataSize = 2 << 10

// ErrInvalidMetadata is returned for user metadata S3 would reject
var ErrInvalidMetadata = errors.New("invalid user metadata")

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBuckets []string // Buckets to create at startup if missing
}

// Backend is an S3-compatible implementation of the objectgate.BlobStore
// interface. One backend serves every bucket the credentials can reach.
type Backend struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	endpointHost  string
	config        Config
}

// New creates a new S3-compatible storage backend
func New(config Config) (*Backend, error) {
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	var endpointHost string
	if config.Endpoint != "" {
		u, err := url.Parse(config.Endpoint)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid S3 endpoint %q", config.Endpoint)
		}
		endpointHost = strings.ToLower(u.Host)
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		endpointHost:  endpointHost,
		config:        config,
	}

	for _, bucket := range config.CreateBuckets {
		if err := backend.createBucketIfNotExists(context.Background(), bucket); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	return backend, nil
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (b *Backend) createBucketIfNotExists(ctx context.Context, bucket string) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}

	var noSuchBucket *types.NoSuchBucket
	if !isNotFound(err) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		var alreadyExists *types.BucketAlreadyExists
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyExists) || errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// isNotFound reports whether err is S3's answer for a missing key. HeadObject
// has no error body so only the code distinguishes it.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}

func notFound(bucket, name string) error {
	return fmt.Errorf("%w: %s/%s", objectgate.ErrObjectNotFound, bucket, name)
}

// Exists reports whether the object is present
func (b *Backend) Exists(ctx context.Context, bucket, name string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object: %w", err)
	}
	return true, nil
}

// GetObjectMeta retrieves metadata for an object in S3
func (b *Backend) GetObjectMeta(ctx context.Context, bucket, name string) (*objectgate.ObjectMeta, error) {
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, notFound(bucket, name)
		}
		return nil, fmt.Errorf("failed to get object metadata: %w", err)
	}

	return headToMeta(bucket, name, result), nil
}

func headToMeta(bucket, name string, result *s3.HeadObjectOutput) *objectgate.ObjectMeta {
	meta := &objectgate.ObjectMeta{
		Bucket:      bucket,
		Name:        name,
		Size:        aws.ToInt64(result.ContentLength),
		ContentType: aws.ToString(result.ContentType),
		UpdatedAt:   aws.ToTime(result.LastModified),
		ETag:        aws.ToString(result.ETag),
		Metadata:    make(map[string]string, len(result.Metadata)),
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}
	// S3 returns user metadata keys lower-cased
	for k, v := range result.Metadata {
		meta.Metadata[strings.ToLower(k)] = v
	}
	return meta
}

// SetMetadata merges metadata into the object's user metadata. S3 metadata
// is immutable, so the object is copied onto itself with the merged set.
func (b *Backend) SetMetadata(ctx context.Context, bucket, name string, metadata map[string]string) error {
	current, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return notFound(bucket, name)
		}
		return fmt.Errorf("failed to read object metadata: %w", err)
	}

	merged := headToMeta(bucket, name, current).Metadata
	maps.Copy(merged, metadata)
	if err := checkUserMetadata(merged); err != nil {
		return err
	}

	input := &s3.CopyObjectInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(name),
		CopySource:        aws.String(url.PathEscape(bucket) + "/" + escapeKey(name)),
		MetadataDirective: types.MetadataDirectiveReplace,
		ContentType:       current.ContentType,
		CacheControl:      current.CacheControl,
		Metadata:          merged,
	}
	b.applyCopySSE(input)

	if _, err := b.client.CopyObject(ctx, input); err != nil {
		return fmt.Errorf("failed to write object metadata: %w", err)
	}
	return nil
}

// checkUserMetadata rejects values that are not US-ASCII and sets over the
// size limit before S3 does it with a less useful error
func checkUserMetadata(metadata map[string]string) error {
	size := 0
	for k, v := range metadata {
		size += len(k) + len(v)
		for i := 0; i < len(v); i++ {
			if v[i] >= utf8.RuneSelf {
				return fmt.Errorf("%w: value of %q is not US-ASCII", ErrInvalidMetadata, k)
			}
		}
	}
	if size > MaxUserMetadataSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrInvalidMetadata, size, MaxUserMetadataSize)
	}
	return nil
}

// Download streams the object, or only rng of it, from S3
func (b *Backend) Download(ctx context.Context, bucket, name string, rng *objectgate.ByteRange) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	}
	if rng != nil {
		input.Range = aws.String(rng.HeaderValue())
	}

	result, err := b.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound(bucket, name)
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return nil, fmt.Errorf("%w: %s", objectgate.ErrRangeNotSatisfiable, rng.HeaderValue())
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	return result.Body, nil
}

// Upload uploads content directly to S3
func (b *Backend) Upload(ctx context.Context, bucket, name string, reader io.Reader, params objectgate.UploadParams) error {
	uploader := manager.NewUploader(b.client)

	input := &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(name),
		Body:     reader,
		Metadata: params.Metadata,
	}
	if params.ContentType != "" {
		input.ContentType = aws.String(params.ContentType)
	}
	b.applyPutSSE(input)

	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// SignURL returns a presigned URL for PUT or GET on the object
func (b *Backend) SignURL(ctx context.Context, bucket, name, method string, ttl time.Duration) (string, error) {
	expires := func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	}

	switch strings.ToUpper(method) {
	case http.MethodPut:
		input := &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(name),
		}
		b.applyPutSSE(input)
		result, err := b.presignClient.PresignPutObject(ctx, input, expires)
		if err != nil {
			return "", fmt.Errorf("failed to generate presigned upload URL: %w", err)
		}
		return result.URL, nil

	case http.MethodGet:
		result, err := b.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(name),
		}, expires)
		if err != nil {
			return "", fmt.Errorf("failed to generate presigned download URL: %w", err)
		}
		return result.URL, nil

	default:
		return "", fmt.Errorf("unsupported presign method %q", method)
	}
}

// ParseObjectURL recognizes URLs on a custom endpoint, path-style or
// virtual-hosted. AWS hostnames are left to the default parsing.
func (b *Backend) ParseObjectURL(u *url.URL) (string, string, bool) {
	if b.endpointHost == "" {
		return "", "", false
	}
	host := strings.ToLower(u.Host)
	key := strings.TrimPrefix(u.Path, "/")

	switch {
	case host == b.endpointHost:
		bucket, name, ok := strings.Cut(key, "/")
		if !ok || bucket == "" || name == "" {
			return "", "", false
		}
		return bucket, name, true
	case strings.HasSuffix(host, "."+b.endpointHost):
		bucket := strings.TrimSuffix(host, "."+b.endpointHost)
		if key == "" {
			return "", "", false
		}
		return bucket, key, true
	}
	return "", "", false
}

func (b *Backend) sse() (types.ServerSideEncryption, *string) {
	if !b.config.EnableSSE {
		return "", nil
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		return types.ServerSideEncryptionAes256, nil
	case "aws:kms":
		if b.config.SSEKMSKeyID != "" {
			return types.ServerSideEncryptionAwsKms, aws.String(b.config.SSEKMSKeyID)
		}
		return types.ServerSideEncryptionAwsKms, nil
	}
	return "", nil
}

func (b *Backend) applyPutSSE(input *s3.PutObjectInput) {
	input.ServerSideEncryption, input.SSEKMSKeyId = b.sse()
}

func (b *Backend) applyCopySSE(input *s3.CopyObjectInput) {
	input.ServerSideEncryption, input.SSEKMSKeyId = b.sse()
}

func escapeKey(name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
