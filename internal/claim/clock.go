package claim

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies timestamps for CreatedAt and UpdatedAt.
//
// Stores take a Clock so tests can pin time; production uses SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time without a monotonic reading.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// IDGenerator assigns claim IDs at creation.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 claim IDs.
//
// Sortable IDs let stores page through claims in creation order with a
// simple "id > cursor" predicate.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a hyphenated UUIDv7. Panics if the random source fails.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
