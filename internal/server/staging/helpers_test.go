package staging

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// fixedIDs always returns the same identifier.
type fixedIDs struct{ id uuid.UUID }

func (f fixedIDs) NewID() uuid.UUID { return f.id }

func newTestStore(t *testing.T, opts Options) (*Store, *Registry) {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	reg := NewRegistry()
	s, err := NewStore(reg, opts)
	require.NoError(t, err)
	return s, reg
}
