// Package objectgate provides access control and streaming for objects kept
// in an external blob store.
//
// Every stored object carries an ACL policy (owner, visibility and an ordered
// list of group grants) serialized into a single metadata field. The Service
// interface ties together the policy store, the access decision engine, the
// path translator that maps between provider URLs, physical bucket paths and
// logical /objects/<id> paths, and the gateway that issues signed upload URLs
// and streams bytes back with Range support.
//
// Blob stores (memory, filesystem, S3) and subscription stores (memory,
// Postgres, Redis cache) are provided under subpackages.
//
// Path Spaces
//
// A logical path is /objects/<entityId>. A physical path is bucket/dir/.../<entityId>
// under one of the configured roots. Public search roots are probed in order,
// followed by the private root, so moving objects between buckets only needs
// a configuration change.
package objectgate
