package domain

import "time"

// Topic is a unit of extracted content considered for generation. The
// fingerprint is a deterministic hash of the normalized content and is the
// dedup key across overlapping chunks.
type Topic struct {
	Title       string
	Content     string
	Fingerprint string
	Page        int
}

// ProcessedTopic is a dedup ledger entry. A row exists exactly once per
// (document, fingerprint) and is never deleted; only the card count is
// filled in after generation.
type ProcessedTopic struct {
	ID          string
	DocumentID  string
	ChunkSeq    int
	Title       string
	Fingerprint string
	CardCount   int
	CreatedAt   time.Time
}
