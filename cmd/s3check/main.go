package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tendant/object-gate/pkg/objectgate"
	"github.com/tendant/object-gate/pkg/objectgate/storage/s3"
)

// s3check exercises the S3 backend the way the gateway uses it: object
// metadata holding the acl policy, ranged reads and presigned uploads.
func main() {
	region := flag.String("region", "us-east-1", "AWS region")
	bucket := flag.String("bucket", "", "S3 bucket name")
	accessKey := flag.String("access-key", "", "AWS access key ID")
	secretKey := flag.String("secret-key", "", "AWS secret access key")
	endpoint := flag.String("endpoint", "", "Custom S3 endpoint (for MinIO, etc.)")
	usePathStyle := flag.Bool("use-path-style", false, "Use path-style addressing")
	enableSSE := flag.Bool("enable-sse", false, "Enable server-side encryption")
	sseAlgorithm := flag.String("sse-algorithm", "AES256", "SSE algorithm (AES256 or aws:kms)")
	sseKMSKeyID := flag.String("sse-kms-key-id", "", "KMS key ID for aws:kms algorithm")
	createBucket := flag.Bool("create-bucket", false, "Create bucket if it doesn't exist")

	command := flag.String("command", "help", "Command to execute: upload, head, range, set-policy, get-policy, url-upload, help")
	objectKey := flag.String("key", "", "Object key for operations")
	filePath := flag.String("file", "", "File path for upload")
	contentType := flag.String("content-type", "application/octet-stream", "Content type for upload")
	rangeHeader := flag.String("range", "bytes=0-99", "Range header for the range command")
	owner := flag.String("owner", "", "Policy owner for set-policy")
	visibility := flag.String("visibility", "private", "Policy visibility for set-policy")
	ttl := flag.Duration("ttl", objectgate.DefaultUploadURLTTL, "Lifetime of presigned URLs")

	useMinio := flag.Bool("use-minio", false, "Use MinIO defaults (sets endpoint, path-style, etc.)")
	minioEndpoint := flag.String("minio-endpoint", "http://localhost:9000", "MinIO server endpoint")

	flag.Parse()

	if *useMinio {
		*endpoint = *minioEndpoint
		*usePathStyle = true
		*createBucket = true
		if *accessKey == "" {
			*accessKey = "minioadmin"
		}
		if *secretKey == "" {
			*secretKey = "minioadmin"
		}
	}

	if *command == "help" || *command == "" {
		flag.Usage()
		return
	}
	if *bucket == "" {
		log.Fatal("Bucket name is required")
	}
	if *objectKey == "" {
		log.Fatal("Object key is required")
	}

	if *accessKey == "" {
		*accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if *secretKey == "" {
		*secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}

	config := s3.Config{
		Region:          *region,
		AccessKeyID:     *accessKey,
		SecretAccessKey: *secretKey,
		Endpoint:        *endpoint,
		UsePathStyle:    *usePathStyle,
		EnableSSE:       *enableSSE,
		SSEAlgorithm:    *sseAlgorithm,
		SSEKMSKeyID:     *sseKMSKeyID,
	}
	if *createBucket {
		config.CreateBuckets = []string{*bucket}
	}

	fmt.Println("Initializing S3 backend with the following configuration:")
	fmt.Printf("  Region: %s\n", config.Region)
	fmt.Printf("  Bucket: %s\n", *bucket)
	fmt.Printf("  Endpoint: %s\n", config.Endpoint)
	fmt.Printf("  Use Path Style: %v\n", config.UsePathStyle)
	fmt.Printf("  Server-side Encryption: %v\n", config.EnableSSE)
	fmt.Println()

	backend, err := s3.New(config)
	if err != nil {
		log.Fatalf("Failed to initialize S3 backend: %v", err)
	}

	ctx := context.Background()
	obj := objectgate.ObjectRef{Bucket: *bucket, Name: *objectKey}
	policies := objectgate.NewPolicyStore(backend, slog.Default())

	switch strings.ToLower(*command) {
	case "upload":
		if *filePath == "" {
			log.Fatal("File path is required for upload")
		}
		file, err := os.Open(*filePath)
		if err != nil {
			log.Fatalf("Failed to open file: %v", err)
		}
		defer file.Close()

		fmt.Printf("Uploading %s to %s...\n", *filePath, obj)
		start := time.Now()
		if err := backend.Upload(ctx, obj.Bucket, obj.Name, file, objectgate.UploadParams{ContentType: *contentType}); err != nil {
			log.Fatalf("Upload failed: %v", err)
		}
		fmt.Printf("Upload successful (took %v)\n", time.Since(start))

	case "head":
		meta, err := backend.GetObjectMeta(ctx, obj.Bucket, obj.Name)
		if err != nil {
			log.Fatalf("Head failed: %v", err)
		}
		fmt.Printf("Size: %d\nContent-Type: %s\nETag: %s\nUpdated: %s\n",
			meta.Size, meta.ContentType, meta.ETag, meta.UpdatedAt.Format(time.RFC3339))
		for k, v := range meta.Metadata {
			fmt.Printf("Metadata %s: %s\n", k, v)
		}

	case "range":
		meta, err := backend.GetObjectMeta(ctx, obj.Bucket, obj.Name)
		if err != nil {
			log.Fatalf("Head failed: %v", err)
		}
		rng, err := objectgate.ParseRange(*rangeHeader, meta.Size)
		if err != nil {
			log.Fatalf("Range %q against %d bytes: %v", *rangeHeader, meta.Size, err)
		}
		reader, err := backend.Download(ctx, obj.Bucket, obj.Name, rng)
		if err != nil {
			log.Fatalf("Download failed: %v", err)
		}
		defer reader.Close()

		n, err := io.Copy(io.Discard, reader)
		if err != nil {
			log.Fatalf("Read failed after %d bytes: %v", n, err)
		}
		want := meta.Size
		if rng != nil {
			want = rng.Length()
		}
		fmt.Printf("Read %d of %d expected bytes\n", n, want)

	case "set-policy":
		policy := objectgate.ObjectACLPolicy{Owner: *owner, Visibility: objectgate.Visibility(*visibility)}
		if err := policies.SetPolicy(ctx, obj, policy); err != nil {
			log.Fatalf("Set policy failed: %v", err)
		}
		fmt.Printf("Policy written to %s\n", obj)

	case "get-policy":
		policy, err := policies.GetPolicy(ctx, obj)
		if err != nil {
			log.Fatalf("Get policy failed: %v", err)
		}
		if policy == nil {
			fmt.Printf("%s has no policy\n", obj)
			return
		}
		fmt.Printf("Owner: %s\nVisibility: %s\nRules: %d\n", policy.Owner, policy.Visibility, len(policy.ACLRules))

	case "url-upload":
		signed, err := backend.SignURL(ctx, obj.Bucket, obj.Name, http.MethodPut, *ttl)
		if err != nil {
			log.Fatalf("Failed to sign upload URL: %v", err)
		}
		fmt.Printf("Upload URL for %s (valid for %v):\n%s\n", obj, *ttl, signed)
		fmt.Println("\nTo use this URL with curl:")
		fmt.Printf("curl -X PUT -T your-file \"%s\"\n", signed)

	default:
		log.Fatalf("Unknown command: %s", *command)
	}
}
