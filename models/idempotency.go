package models

// IdempotencyKind distinguishes which operation an idempotency reservation
// guards, collapsing original_source's three separate tables
// (InitRequestIdempotency, ChunkRequestIdempotency,
// CompleteRequestIdempotency) into one kind-scoped key space inside a
// single idempotency.Registry.
type IdempotencyKind string

const (
	IdempotencyInit     IdempotencyKind = "init"
	IdempotencyChunk    IdempotencyKind = "chunk"
	IdempotencyComplete IdempotencyKind = "complete"
)
