// Package secretstore defines the versioned secret storage contract used by
// the rotation coordinator.
//
// A secret has any number of versions. Each version carries zero or more
// staging labels. Two labels drive rotation:
//
//   - AWSCURRENT marks the version clients read by default. At most one
//     version holds it at any time.
//   - AWSPENDING marks the version being prepared by an in-flight rotation.
//
// Stores report a missing secret or version with an error matching
// ErrNotFound (use errors.Is). MoveStage must be atomic from the caller's
// point of view: the coordinator relies on it instead of locking.
//
// # Implementations
//
// internal/secretstores provides the AWS Secrets Manager implementation.
// Tests usually wrap the in-memory fake from tests/fakes with that same
// implementation so the SDK mapping is exercised too.
package secretstore
