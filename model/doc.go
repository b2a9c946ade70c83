// Package model defines the entities stored by vecdb and the error kinds
// shared by every layer.
//
// # Entities
//
//   - Library: named collection with a fixed embedding dimension and an index configuration
//   - Document: member of one library, owns an ordered list of chunk ids
//   - Chunk: text with an optional embedding, owned by one document
//
// Every entity carries a Version used for optimistic concurrency: a write
// succeeds only if the caller's expected version matches the stored one,
// after which the version increments by exactly one. New entities start at
// version 1.
//
// # Error Kinds
//
//   - ErrNotFound: referenced entity does not exist (or not under the stated parent)
//   - ErrValidation: malformed input, e.g. an embedding dimension mismatch
//   - ErrConflict: an optimistic version check failed
//
// Concrete errors wrap one of the kinds; test with errors.Is.
package model
