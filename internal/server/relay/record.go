package relay

import (
	"time"

	"github.com/google/uuid"
)

// Record is the journal entry of one Relay call.
type Record struct {
	StageID    uuid.UUID
	FileName   string
	Session    string
	Endpoint   string // base URL that accepted the payload
	StatusCode int
	Success    bool
	Error      string
	Attempts   []Attempt
	StartedAt  time.Time
	FinishedAt time.Time
}

// Attempt is a single candidate try. StatusCode is zero when Err is set.
type Attempt struct {
	Endpoint   string
	StatusCode int
	Err        error
}
