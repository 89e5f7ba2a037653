package saga

import "github.com/google/uuid"

// TaskIDGenerator generates task identifiers.
// Implemented by UUIDv7Generator (production) and testutil.SequenceIDs (tests).
type TaskIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 task ids, so ids in a log
// sort by start time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
