package objectgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ACLPolicyMetadataKey is the custom metadata key holding the JSON-encoded policy
const ACLPolicyMetadataKey = "acl-policy"

// PolicyStore reads and writes ACL policies in object metadata. The whole
// policy lives in one metadata value so a write replaces it atomically.
type PolicyStore struct {
	store  BlobStore
	logger *slog.Logger
}

// NewPolicyStore creates a policy store on top of a blob store
func NewPolicyStore(store BlobStore, logger *slog.Logger) *PolicyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyStore{store: store, logger: logger}
}

// SetPolicy validates policy and writes it onto obj, replacing any previous policy
func (p *PolicyStore) SetPolicy(ctx context.Context, obj ObjectRef, policy ObjectACLPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	exists, err := p.store.Exists(ctx, obj.Bucket, obj.Name)
	if err != nil {
		return NewStorageError("exists", obj, err)
	}
	if !exists {
		return ErrObjectNotFound
	}

	data, err := encodePolicy(policy)
	if err != nil {
		return err
	}

	if err := p.store.SetMetadata(ctx, obj.Bucket, obj.Name, map[string]string{
		ACLPolicyMetadataKey: data,
	}); err != nil {
		return NewStorageError("set_metadata", obj, err)
	}
	return nil
}

// encodePolicy marshals policy to JSON with every non-ASCII rune written as a
// \u escape. S3 user metadata only carries US-ASCII values.
func encodePolicy(policy ObjectACLPolicy) (string, error) {
	data, err := json.Marshal(policy)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(data))
	// json.Marshal emits valid UTF-8, and non-ASCII only occurs inside strings
	for _, r := range string(data) {
		switch {
		case r < utf8.RuneSelf:
			b.WriteRune(r)
		case r > 0xFFFF:
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String(), nil
}

// GetPolicy returns the policy stored on obj. A missing or unparsable policy
// yields nil without an error; callers treat that as no access.
func (p *PolicyStore) GetPolicy(ctx context.Context, obj ObjectRef) (*ObjectACLPolicy, error) {
	meta, err := p.store.GetObjectMeta(ctx, obj.Bucket, obj.Name)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, ErrObjectNotFound
		}
		return nil, NewStorageError("get_metadata", obj, err)
	}
	return policyFromMeta(meta, p.logger), nil
}

func policyFromMeta(meta *ObjectMeta, logger *slog.Logger) *ObjectACLPolicy {
	raw, ok := meta.Metadata[ACLPolicyMetadataKey]
	if !ok || raw == "" {
		return nil
	}

	var policy ObjectACLPolicy
	if err := json.Unmarshal([]byte(raw), &policy); err != nil {
		logger.Warn("Ignoring unparsable acl policy", "bucket", meta.Bucket, "name", meta.Name, "error", err)
		return nil
	}
	return &policy
}
