package staging

import (
	"time"

	"github.com/google/uuid"
)

// IDSource hands out identifiers for staged files. Identifiers must be
// unique for the lifetime of the process.
type IDSource interface {
	NewID() uuid.UUID
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// UUIDSource generates random (v4) UUIDs.
type UUIDSource struct{}

func (UUIDSource) NewID() uuid.UUID { return uuid.New() }

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
