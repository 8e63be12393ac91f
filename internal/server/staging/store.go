// Package staging holds inbound payloads in a local directory under
// generated identifiers until they are relayed, loaded or swept.
//
// A payload becomes visible through the Registry only after its backing
// file has been fully written and closed. Files whose write failed are left
// on disk unregistered; the Sweeper removes them once they age out.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
	"github.com/dmitrijs2005/stagekeeper/internal/filex"
	"github.com/dmitrijs2005/stagekeeper/internal/logging"
	"github.com/dmitrijs2005/stagekeeper/internal/server/metrics"
	"github.com/google/uuid"
)

var createExclusive = filex.CreateExclusive

// DefaultChunkSize is the copy buffer used by StageStream.
const DefaultChunkSize = 64 * 1024

// ProgressFunc receives the cumulative number of bytes written so far.
type ProgressFunc func(id uuid.UUID, written int64)

// Options configures a Store. Zero values fall back to defaults.
type Options struct {
	Dir       string
	ChunkSize int
	IDs       IDSource
	Clock     Clock
	Logger    logging.Logger
	Metrics   *metrics.Metrics
}

// Store writes, reads and deletes staged files.
type Store struct {
	dir       string
	chunkSize int
	registry  *Registry
	ids       IDSource
	clock     Clock
	logger    logging.Logger
	metrics   *metrics.Metrics
}

// NewStore creates the staging directory if needed and returns a Store
// that records its files in reg.
func NewStore(reg *Registry, opts Options) (*Store, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry: %w", common.ErrInvalidArgument)
	}

	dir, err := filex.EnsureDir(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}

	s := &Store{
		dir:       dir,
		chunkSize: opts.ChunkSize,
		registry:  reg,
		ids:       opts.IDs,
		clock:     opts.Clock,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if s.chunkSize <= 0 {
		s.chunkSize = DefaultChunkSize
	}
	if s.ids == nil {
		s.ids = UUIDSource{}
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.logger == nil {
		s.logger = logging.Nop{}
	}
	s.logger = s.logger.With("module", "staging")

	return s, nil
}

func (s *Store) Dir() string         { return s.dir }
func (s *Store) Registry() *Registry { return s.registry }
func (s *Store) Clock() Clock        { return s.clock }
func (s *Store) pathFor(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String())
}

// StageBytes stores data under a fresh identifier.
func (s *Store) StageBytes(ctx context.Context, data []byte) (uuid.UUID, error) {
	return s.create(ctx, "bytes", func(_ uuid.UUID, w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	})
}

// StageStream drains src into a fresh staged file in chunks, calling
// onProgress (if set) with the running total after each chunk. src is not
// closed. A slow source blocks the call.
func (s *Store) StageStream(ctx context.Context, src io.Reader, onProgress ProgressFunc) (uuid.UUID, error) {
	if src == nil {
		s.metrics.RecordStageFailure("stream")
		return uuid.Nil, fmt.Errorf("nil source stream: %w", common.ErrInvalidArgument)
	}

	return s.create(ctx, "stream", func(id uuid.UUID, w io.Writer) (int64, error) {
		buf := make([]byte, s.chunkSize)
		var total int64
		for {
			n, rerr := src.Read(buf)
			if n > 0 {
				if _, werr := w.Write(buf[:n]); werr != nil {
					return total, werr
				}
				total += int64(n)
				if onProgress != nil {
					onProgress(id, total)
				}
			}
			if rerr == io.EOF {
				return total, nil
			}
			if rerr != nil {
				return total, rerr
			}
		}
	})
}

// ReserveEmpty creates and registers a zero-length staged file, for content
// that will be supplied through another channel.
func (s *Store) ReserveEmpty(ctx context.Context) (uuid.UUID, error) {
	return s.create(ctx, "empty", nil)
}

// NewDescriptor registers a fresh identifier and its future path without
// creating the file.
func (s *Store) NewDescriptor(ctx context.Context) (uuid.UUID, error) {
	id := s.ids.NewID()
	path := s.pathFor(id)

	if _, err := os.Lstat(path); err == nil {
		s.metrics.RecordStageFailure("descriptor")
		return uuid.Nil, &common.StageError{Op: "reserve", Path: path, Err: common.ErrAlreadyExists}
	}
	if err := s.registry.Register(StagedFile{ID: id, Path: path}); err != nil {
		s.metrics.RecordStageFailure("descriptor")
		return uuid.Nil, &common.StageError{Op: "register", Path: path, Err: err}
	}
	s.metrics.RecordStaged("descriptor", 0)
	s.metrics.SetStagedFiles(s.registry.Len())
	return id, nil
}

type fillFunc func(id uuid.UUID, w io.Writer) (int64, error)

func (s *Store) create(ctx context.Context, source string, fill fillFunc) (uuid.UUID, error) {
	id := s.ids.NewID()
	path := s.pathFor(id)

	s.registry.Hold(path)
	f, err := createExclusive(path)
	if err != nil {
		s.registry.Release(path)
		s.metrics.RecordStageFailure(source)
		if errors.Is(err, fs.ErrExist) {
			return uuid.Nil, &common.StageError{Op: "create", Path: path, Err: fmt.Errorf("%w: %w", common.ErrAlreadyExists, err)}
		}
		return uuid.Nil, &common.StageError{Op: "create", Path: path, Err: err}
	}

	written, err := writeAndClose(f, id, fill)
	if err != nil {
		s.registry.Release(path)
		s.metrics.RecordStageFailure(source)
		s.logger.Warn(ctx, "staged write failed, leaving file unregistered", "path", path, "written", written, "error", err)
		return uuid.Nil, &common.StageError{Op: "write", Path: path, Err: err}
	}

	if err := s.registry.Register(StagedFile{ID: id, Path: path}); err != nil {
		s.registry.Release(path)
		s.metrics.RecordStageFailure(source)
		return uuid.Nil, &common.StageError{Op: "register", Path: path, Err: err}
	}

	s.metrics.RecordStaged(source, written)
	s.metrics.SetStagedFiles(s.registry.Len())
	s.logger.Debug(ctx, "staged file", "id", id, "source", source, "size", written)
	return id, nil
}

// writeAndClose runs fill against f and always closes f; a close error is
// reported when fill itself succeeded.
func writeAndClose(f *os.File, id uuid.UUID, fill fillFunc) (written int64, err error) {
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	if fill == nil {
		return 0, nil
	}
	return fill(id, f)
}

// File returns the backing path of id.
func (s *Store) File(id uuid.UUID) (string, bool) {
	f, ok := s.registry.Lookup(id)
	return f.Path, ok
}

// Load opens the staged file for reading. ok is false when id is unknown or
// has no content yet; err is only set when an existing file cannot be read.
func (s *Store) Load(id uuid.UUID) (rc io.ReadCloser, ok bool, err error) {
	entry, found := s.registry.Lookup(id)
	if !found {
		return nil, false, nil
	}

	f, err := os.Open(entry.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &common.StageError{Op: "open", Path: entry.Path, Err: err}
	}
	return f, true, nil
}

// Describe builds the logical descriptor for id under the given name.
func (s *Store) Describe(id uuid.UUID, name string) (FileDescriptor, error) {
	entry, ok := s.registry.Lookup(id)
	if !ok {
		return FileDescriptor{}, fmt.Errorf("staged file %s: %w", id, common.ErrorNotFound)
	}

	var size int64
	fi, err := os.Stat(entry.Path)
	switch {
	case err == nil:
		size = fi.Size()
	case errors.Is(err, fs.ErrNotExist):
		// reserved descriptor without content
	default:
		return FileDescriptor{}, &common.StageError{Op: "stat", Path: entry.Path, Err: err}
	}

	return FileDescriptor{
		Name:      name,
		Extension: ExtensionOf(name),
		Size:      size,
		CreatedAt: s.clock.Now(),
	}, nil
}

// Delete unregisters id and removes its file. Deleting an unknown id is a
// no-op. If the file cannot be removed the entry stays unregistered and an
// ErrIOFailure is returned.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	entry, ok := s.registry.Remove(id)
	if !ok {
		return nil
	}
	s.metrics.SetStagedFiles(s.registry.Len())

	if err := filex.RemoveIfExists(entry.Path); err != nil {
		return &common.StageError{Op: "delete", Path: entry.Path, Err: err}
	}
	s.logger.Debug(ctx, "deleted staged file", "id", id)
	return nil
}

// Entry is a listing row for diagnostics.
type Entry struct {
	StagedFile
	Size    int64
	ModTime time.Time
}

// List reports every registered file with its current size and
// modification time. Files without content are listed with zero values.
func (s *Store) List() []Entry {
	out := make([]Entry, 0, s.registry.Len())
	s.registry.ForEach(func(f StagedFile) bool {
		e := Entry{StagedFile: f}
		if fi, err := os.Stat(f.Path); err == nil {
			e.Size = fi.Size()
			e.ModTime = fi.ModTime()
		}
		out = append(out, e)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.Before(out[j].ModTime) })
	return out
}
