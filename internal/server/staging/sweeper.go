package staging

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/filex"
	"github.com/dmitrijs2005/stagekeeper/internal/logging"
	"github.com/dmitrijs2005/stagekeeper/internal/server/metrics"
)

// DefaultRetention is how long a staged file may sit unmodified before the
// sweeper evicts it.
const DefaultRetention = 48 * time.Hour

// Sweeper evicts staged files whose modification time is older than the
// retention window. Unregistered files left behind by failed writes are
// evicted under the same rule.
type Sweeper struct {
	store     *Store
	retention time.Duration
	logger    logging.Logger
	metrics   *metrics.Metrics

	// afterSnapshot runs between taking the snapshot and evicting; tests use
	// it to interleave registrations with a running pass.
	afterSnapshot func()
}

func NewSweeper(store *Store, retention time.Duration, logger logging.Logger, m *metrics.Metrics) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Sweeper{
		store:     store,
		retention: retention,
		logger:    logger.With("module", "sweeper"),
		metrics:   m,
	}
}

type sweepCandidate struct {
	file       StagedFile
	registered bool
}

// Sweep runs one eviction pass and returns the number of files evicted.
// Failures are logged per file and never abort the pass.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := s.store.clock.Now()

	// Directory first, then registry. A file that shows up in the listing
	// but registers after the snapshot is caught by Claimed in evict.
	dirEntries, err := os.ReadDir(s.store.dir)
	if err != nil {
		s.logger.Error(ctx, "cannot list staging directory", "dir", s.store.dir, "error", err)
	}
	snapshot := s.store.registry.Snapshot()

	if s.afterSnapshot != nil {
		s.afterSnapshot()
	}

	candidates := make([]sweepCandidate, 0, len(snapshot)+len(dirEntries))
	known := make(map[string]struct{}, len(snapshot))
	for _, f := range snapshot {
		known[f.Path] = struct{}{}
		candidates = append(candidates, sweepCandidate{file: f, registered: true})
	}
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		path := filepath.Join(s.store.dir, de.Name())
		if _, ok := known[path]; ok {
			continue
		}
		candidates = append(candidates, sweepCandidate{file: StagedFile{Path: path}})
	}

	evicted := 0
	for _, c := range candidates {
		fi, err := os.Stat(c.file.Path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn(ctx, "cannot stat staged file", "path", c.file.Path, "error", err)
				s.metrics.RecordSweepFailure()
			}
			continue
		}
		if now.Sub(fi.ModTime()) <= s.retention {
			continue
		}
		if s.evict(ctx, c) {
			evicted++
		}
	}

	if evicted > 0 {
		s.store.metrics.SetStagedFiles(s.store.registry.Len())
		s.logger.Info(ctx, "sweep finished", "evicted", evicted, "scanned", len(candidates))
	}
	return evicted
}

func (s *Sweeper) evict(ctx context.Context, c sweepCandidate) bool {
	kind := "orphan"
	if c.registered {
		kind = "registered"
		// lost the race against a relay or delete
		if _, ok := s.store.registry.Remove(c.file.ID); !ok {
			return false
		}
	} else if s.store.registry.Claimed(c.file.Path) {
		// still being written, or registered after the snapshot
		return false
	}

	if err := filex.RemoveIfExists(c.file.Path); err != nil {
		s.logger.Warn(ctx, "could not remove staged file", "path", c.file.Path, "error", err)
		s.metrics.RecordSweepFailure()
		return false
	}
	s.metrics.RecordEviction(kind)
	s.logger.Debug(ctx, "evicted staged file", "path", c.file.Path, "kind", kind)
	return true
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
