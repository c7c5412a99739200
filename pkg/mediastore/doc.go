// Package mediastore places uploaded files onto one of several
// configured remote storage backends, each with its own quota, and keeps
// per-backend usage balanced.
//
// It exposes a Service interface for the synchronous placement path
// (least-loaded backend selection, idempotent namespace provisioning,
// upload with access grants, deletion by retrieval link) and a Monitor
// that polls every backend's quota in the background, persists usage
// snapshots into the registry and alerts administrators before a backend
// fills up. Registry implementations (memory, Postgres) and storage
// providers (memory, S3) are provided under subpackages.
//
// Placement is advisory: the allocator reads the last-polled usage
// figures, so two concurrent uploads may both land on the same
// least-loaded backend. The next polling cycle rebalances; no stronger
// guarantee is made.
package mediastore
