package objectgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tendant/object-gate/pkg/objectgate/objectkey"
)

// DefaultUploadURLTTL is the lifetime of signed upload URLs
const DefaultUploadURLTTL = 900 * time.Second

// service implements the Service interface
type service struct {
	store         BlobStore
	subscriptions SubscriptionStore
	paths         PathConfig
	keys          objectkey.Generator
	auditSink     AuditSink
	metrics       *Metrics
	logger        *slog.Logger
	uploadTTL     time.Duration
	cacheTTL      time.Duration

	translator *PathTranslator
	policies   *PolicyStore
	engine     *AccessEngine
	gateway    *Gateway
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithBlobStore sets the storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithSubscriptionStore sets the store consulted by subscriber groups
func WithSubscriptionStore(store SubscriptionStore) Option {
	return func(s *service) {
		s.subscriptions = store
	}
}

// WithPathConfig sets the storage roots
func WithPathConfig(cfg PathConfig) Option {
	return func(s *service) {
		s.paths = cfg
	}
}

// WithKeyGenerator sets the entity id layout for new uploads
func WithKeyGenerator(gen objectkey.Generator) Option {
	return func(s *service) {
		s.keys = gen
	}
}

// WithAuditSink sets the sink receiving ownership transfers
func WithAuditSink(sink AuditSink) Option {
	return func(s *service) {
		s.auditSink = sink
	}
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *Metrics) Option {
	return func(s *service) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithUploadURLTTL sets the lifetime of signed upload URLs
func WithUploadURLTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.uploadTTL = ttl
	}
}

// WithCacheTTL sets the default max-age of object responses
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.cacheTTL = ttl
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		uploadTTL: DefaultUploadURLTTL,
		cacheTTL:  DefaultCacheTTL,
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.auditSink == nil {
		s.auditSink = NewNoopAuditSink()
	}
	if s.uploadTTL <= 0 {
		s.uploadTTL = DefaultUploadURLTTL
	}

	translator, err := NewPathTranslator(s.paths, s.store, s.keys, s.logger)
	if err != nil {
		return nil, err
	}
	s.translator = translator
	s.policies = NewPolicyStore(s.store, s.logger)
	s.engine = NewAccessEngine(s.policies, NewGroupResolver(s.subscriptions, s.logger, s.metrics), s.metrics, s.logger)
	s.gateway = NewGateway(s.store, s.cacheTTL, s.metrics, s.logger)

	return s, nil
}

// Upload operations

func (s *service) GetUploadURL(ctx context.Context, req UploadURLRequest) (*UploadURL, error) {
	if req.RequesterID == "" {
		return nil, ErrAuthenticationRequired
	}

	target, err := s.translator.UploadTarget(req.Visibility, req.MimeType)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().UTC().Add(s.uploadTTL)
	signed, err := s.store.SignURL(ctx, target.Object.Bucket, target.Object.Name, http.MethodPut, s.uploadTTL)
	if err != nil {
		return nil, NewStorageError("sign_url", target.Object, err)
	}

	return &UploadURL{
		UploadURL:  signed,
		ObjectPath: target.LogicalPath,
		Object:     target.Object,
		ExpiresAt:  expiresAt,
	}, nil
}

func (s *service) FinalizeUpload(ctx context.Context, req FinalizeUploadRequest) (*FinalizeUploadResult, error) {
	if req.OwnerID == "" {
		return nil, ErrAuthenticationRequired
	}

	policy := ObjectACLPolicy{
		Owner:      req.OwnerID,
		Visibility: req.Visibility,
		ACLRules:   req.ACLRules,
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	logicalPath, ok := s.translator.ClassifyPath(req.RawContentURL)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedPath, req.RawContentURL)
	}

	obj, err := s.translator.ResolveObject(ctx, logicalPath)
	if err != nil {
		return nil, err
	}

	// a finalize must not take over an object someone else already owns
	existing, err := s.policies.GetPolicy(ctx, obj)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Owner != req.OwnerID {
		return nil, ErrAccessDenied
	}

	result := &FinalizeUploadResult{ObjectPath: logicalPath, Object: obj}
	if err := s.policies.SetPolicy(ctx, obj, policy); err != nil {
		if errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrNotConfigured) {
			return nil, err
		}
		// the bytes are already stored; report the missing policy instead of failing
		s.logger.Warn("Uploaded object stored without acl policy",
			"object", obj.Path(), "path", logicalPath, "owner", req.OwnerID, "error", err)
		result.Warning = fmt.Sprintf("object uploaded but its access policy could not be saved: %v", err)
		return result, nil
	}

	result.Policy = &policy
	return result, nil
}

// Policy operations

func (s *service) SetPolicy(ctx context.Context, obj ObjectRef, policy ObjectACLPolicy) error {
	return s.policies.SetPolicy(ctx, obj, policy)
}

func (s *service) GetPolicy(ctx context.Context, obj ObjectRef) (*ObjectACLPolicy, error) {
	return s.policies.GetPolicy(ctx, obj)
}

// authorizeWrite resolves logicalPath and checks the requester may write it
func (s *service) authorizeWrite(ctx context.Context, logicalPath, requesterID string) (ObjectRef, *ObjectACLPolicy, error) {
	if requesterID == "" {
		return ObjectRef{}, nil, ErrAuthenticationRequired
	}

	obj, err := s.translator.ResolveObject(ctx, logicalPath)
	if err != nil {
		return ObjectRef{}, nil, err
	}

	policy, err := s.policies.GetPolicy(ctx, obj)
	if err != nil {
		return ObjectRef{}, nil, err
	}

	allowed, err := s.engine.Evaluate(ctx, policy, requesterID, PermissionWrite)
	if err != nil {
		return ObjectRef{}, nil, err
	}
	if !allowed {
		return ObjectRef{}, nil, ErrAccessDenied
	}
	return obj, policy, nil
}

func (s *service) GetObjectPolicy(ctx context.Context, logicalPath, requesterID string) (*ObjectACLPolicy, error) {
	_, policy, err := s.authorizeWrite(ctx, logicalPath, requesterID)
	if err != nil {
		return nil, err
	}
	return policy, nil
}

func (s *service) UpdateObjectPolicy(ctx context.Context, req UpdatePolicyRequest) (*ObjectACLPolicy, error) {
	obj, current, err := s.authorizeWrite(ctx, req.LogicalPath, req.RequesterID)
	if err != nil {
		return nil, err
	}

	if req.Owner != "" && req.Owner != current.Owner {
		return nil, ErrOwnerImmutable
	}

	updated := ObjectACLPolicy{
		Owner:      current.Owner,
		Visibility: req.Visibility,
		ACLRules:   req.ACLRules,
	}
	if err := s.policies.SetPolicy(ctx, obj, updated); err != nil {
		return nil, err
	}

	s.logger.Info("Object acl policy updated",
		"path", req.LogicalPath, "requested_by", req.RequesterID, "visibility", updated.Visibility, "rules", len(updated.ACLRules))
	return &updated, nil
}

func (s *service) TransferOwnership(ctx context.Context, req TransferOwnershipRequest) (*ObjectACLPolicy, error) {
	if req.RequesterID == "" {
		return nil, ErrAuthenticationRequired
	}
	if req.NewOwner == "" {
		return nil, fmt.Errorf("%w: new owner is required", ErrInvalidPolicy)
	}

	obj, err := s.translator.ResolveObject(ctx, req.LogicalPath)
	if err != nil {
		return nil, err
	}

	current, err := s.policies.GetPolicy(ctx, obj)
	if err != nil {
		return nil, err
	}
	if current == nil || current.Owner != req.RequesterID {
		return nil, ErrAccessDenied
	}

	updated := *current
	updated.Owner = req.NewOwner
	if err := s.policies.SetPolicy(ctx, obj, updated); err != nil {
		return nil, err
	}

	event := OwnershipTransfer{
		ObjectPath:    req.LogicalPath,
		PreviousOwner: current.Owner,
		NewOwner:      req.NewOwner,
		RequestedBy:   req.RequesterID,
		At:            time.Now().UTC(),
	}
	if err := s.auditSink.OwnershipTransferred(ctx, event); err != nil {
		// the transfer is already written
		s.logger.Error("Failed to record ownership transfer", "path", req.LogicalPath, "error", err)
	}

	return &updated, nil
}

// Access decisions

func (s *service) CanAccess(ctx context.Context, req AccessRequest) (bool, error) {
	return s.engine.CanAccess(ctx, req)
}

// Path translation

func (s *service) ResolveObject(ctx context.Context, logicalPath string) (ObjectRef, error) {
	return s.translator.ResolveObject(ctx, logicalPath)
}

func (s *service) NormalizePath(raw string) string {
	return s.translator.NormalizePath(raw)
}

// Download operations

func (s *service) Download(ctx context.Context, w http.ResponseWriter, obj ObjectRef, cacheTTL time.Duration) error {
	return s.gateway.Download(ctx, w, obj, cacheTTL)
}

func (s *service) Stream(ctx context.Context, w http.ResponseWriter, r *http.Request, obj ObjectRef, cacheTTL time.Duration) error {
	return s.gateway.Stream(ctx, w, r, obj, cacheTTL)
}

func (s *service) ServeObject(ctx context.Context, w http.ResponseWriter, r *http.Request, req FetchObjectRequest) error {
	obj, err := s.translator.ResolveObject(ctx, req.LogicalPath)
	if err != nil {
		return err
	}

	meta, err := s.gateway.objectMeta(ctx, obj)
	if err != nil {
		return err
	}

	allowed, err := s.engine.Evaluate(ctx, policyFromMeta(meta, s.logger), req.RequesterID, PermissionRead)
	if err != nil {
		return err
	}
	if !allowed {
		if req.RequesterID == "" {
			return ErrAuthenticationRequired
		}
		return ErrAccessDenied
	}

	return s.gateway.ServeMeta(ctx, NewGuardedResponseWriter(w), obj, meta, r.Header.Get("Range"), r.Method == http.MethodHead, req.CacheTTL)
}
