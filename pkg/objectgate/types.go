package objectgate

import (
	"fmt"
	"time"
)

// Visibility controls whether anonymous callers may read an object
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// IsValid checks if the visibility is one of the known values
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate:
		return true
	default:
		return false
	}
}

// Permission is an access level requested for, or granted on, an object
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// IsValid checks if the permission is one of the known values
func (p Permission) IsValid() bool {
	switch p {
	case PermissionRead, PermissionWrite:
		return true
	default:
		return false
	}
}

// Satisfies reports whether a grant of p covers a request for requested.
// write covers read and write; read covers only read.
func (p Permission) Satisfies(requested Permission) bool {
	switch p {
	case PermissionWrite:
		return requested == PermissionWrite || requested == PermissionRead
	case PermissionRead:
		return requested == PermissionRead
	default:
		return false
	}
}

// GroupType discriminates AccessGroup variants
type GroupType string

const (
	// GroupTypeSubscriber groups every user holding an active subscription
	// to the creator named by AccessGroup.ID
	GroupTypeSubscriber GroupType = "subscriber"
)

// AccessGroup identifies a set of users. The meaning of ID depends on Type.
type AccessGroup struct {
	Type GroupType `json:"type"`
	ID   string    `json:"id"`
}

func (g AccessGroup) String() string {
	return fmt.Sprintf("%s:%s", g.Type, g.ID)
}

// ACLRule grants a permission to every member of a group
type ACLRule struct {
	Group      AccessGroup `json:"group"`
	Permission Permission  `json:"permission"`
}

// ObjectACLPolicy is the access policy attached to a stored object
type ObjectACLPolicy struct {
	Owner      string     `json:"owner"`
	Visibility Visibility `json:"visibility"`
	ACLRules   []ACLRule  `json:"aclRules,omitempty"`
}

// Validate checks the policy for unknown enum values and group types
func (p *ObjectACLPolicy) Validate() error {
	if p.Owner == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidPolicy)
	}
	if !p.Visibility.IsValid() {
		return fmt.Errorf("%w: unknown visibility %q", ErrInvalidPolicy, p.Visibility)
	}
	for i, rule := range p.ACLRules {
		if !rule.Permission.IsValid() {
			return fmt.Errorf("%w: rule %d has unknown permission %q", ErrInvalidPolicy, i, rule.Permission)
		}
		if !rule.Group.Type.IsKnown() {
			return fmt.Errorf("%w: rule %d: %w %q", ErrInvalidPolicy, i, ErrUnknownGroupType, rule.Group.Type)
		}
		if rule.Group.ID == "" {
			return fmt.Errorf("%w: rule %d has an empty group id", ErrInvalidPolicy, i)
		}
	}
	return nil
}

// ObjectRef addresses one object in the blob store
type ObjectRef struct {
	Bucket string
	Name   string
}

// Path returns the bucket-qualified path of the object
func (o ObjectRef) Path() string {
	return o.Bucket + "/" + o.Name
}

func (o ObjectRef) String() string {
	return o.Path()
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Bucket      string
	Name        string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ContentType string
	Metadata    map[string]string
}

// ByteRange is an inclusive byte range [Start, End] within an object
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// HeaderValue formats the range for an HTTP Range request header
func (r ByteRange) HeaderValue() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}
