package objectgate

import "time"

// Request/Response DTOs

// UploadURLRequest asks for a signed URL to upload a new object
type UploadURLRequest struct {
	RequesterID string
	MimeType    string
	Visibility  Visibility
}

// UploadURL is a signed direct-upload target. ObjectPath is the logical path
// the object will have once uploaded.
type UploadURL struct {
	UploadURL  string
	ObjectPath string
	Object     ObjectRef
	ExpiresAt  time.Time
}

// FinalizeUploadRequest attaches an ACL policy to an uploaded object.
// RawContentURL may be the signed upload URL or a logical path.
type FinalizeUploadRequest struct {
	RawContentURL string
	OwnerID       string
	Visibility    Visibility
	ACLRules      []ACLRule
}

// FinalizeUploadResult carries the logical path of a finalized object.
// Warning is set when the object is stored but its policy could not be written.
type FinalizeUploadResult struct {
	ObjectPath string
	Object     ObjectRef
	Policy     *ObjectACLPolicy
	Warning    string
}

// FetchObjectRequest asks to stream an object. An empty RequesterID is anonymous.
type FetchObjectRequest struct {
	LogicalPath string
	RequesterID string
	CacheTTL    time.Duration
}

// UpdatePolicyRequest replaces visibility and rules of an object's policy.
// Owner may repeat the current owner; any other value is rejected.
type UpdatePolicyRequest struct {
	LogicalPath string
	RequesterID string
	Owner       string
	Visibility  Visibility
	ACLRules    []ACLRule
}

// TransferOwnershipRequest hands an object to a new owner
type TransferOwnershipRequest struct {
	LogicalPath string
	RequesterID string
	NewOwner    string
}
