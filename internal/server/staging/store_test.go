package staging

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, s *Store, id uuid.UUID) []byte {
	t.Helper()
	rc, ok, err := s.Load(id)
	require.NoError(t, err)
	require.True(t, ok, "expected %s to be loadable", id)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return b
}

func TestStageBytes_RoundTrip(t *testing.T) {
	s, reg := newTestStore(t, Options{})
	payload := []byte("the quick brown fox")

	id, err := s.StageBytes(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, payload, readAll(t, s, id))
	assert.Equal(t, 1, reg.Len())

	path, ok := s.File(id)
	require.True(t, ok)
	assert.Equal(t, id.String(), strings.TrimPrefix(path, s.Dir()+string(os.PathSeparator)))
}

func TestStageStream_RoundTripAndProgress(t *testing.T) {
	s, _ := newTestStore(t, Options{ChunkSize: 7})
	payload := bytes.Repeat([]byte("0123456789"), 10)

	var reports []int64
	id, err := s.StageStream(context.Background(), bytes.NewReader(payload), func(got uuid.UUID, n int64) {
		reports = append(reports, n)
	})
	require.NoError(t, err)

	assert.Equal(t, payload, readAll(t, s, id))

	require.NotEmpty(t, reports)
	var sum, prev int64
	for _, r := range reports {
		require.Greater(t, r, prev, "progress must be cumulative")
		sum += r - prev
		prev = r
	}
	assert.Equal(t, int64(len(payload)), sum)
	assert.Equal(t, int64(len(payload)), reports[len(reports)-1])

	fi, err := os.Stat(mustPath(t, s, id))
	require.NoError(t, err)
	assert.Equal(t, fi.Size(), reports[len(reports)-1])
}

func TestStageStream_ProgressReceivesOwnID(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	var seen uuid.UUID
	id, err := s.StageStream(context.Background(), strings.NewReader("x"), func(got uuid.UUID, _ int64) {
		seen = got
	})
	require.NoError(t, err)
	assert.Equal(t, id, seen)
}

func TestStageStream_NilSourceIsInvalidArgument(t *testing.T) {
	s, reg := newTestStore(t, Options{})

	_, err := s.StageStream(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "no file may be touched")
	assert.Equal(t, 0, reg.Len())
}

type failingReader struct {
	good []byte
	sent bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, f.good), nil
	}
	return 0, errors.New("upstream reset")
}

func TestStageStream_ReadErrorLeavesUnregisteredFile(t *testing.T) {
	id := uuid.New()
	s, reg := newTestStore(t, Options{IDs: fixedIDs{id: id}})

	_, err := s.StageStream(context.Background(), &failingReader{good: []byte("partial")}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrIOFailure))

	var se *common.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, s.pathFor(id), se.Path)

	assert.Equal(t, 0, reg.Len())
	_, ok, lerr := s.Load(id)
	require.NoError(t, lerr)
	assert.False(t, ok)

	data, rerr := os.ReadFile(s.pathFor(id))
	require.NoError(t, rerr, "partial file is left for the sweeper")
	assert.Equal(t, "partial", string(data))
}

func TestStageBytes_WriteFailureLeavesUnregisteredFile(t *testing.T) {
	orig := createExclusive
	t.Cleanup(func() { createExclusive = orig })
	// the file is created but handed back read-only, so every write fails
	createExclusive = func(path string) (*os.File, error) {
		f, err := orig(path)
		if err != nil {
			return nil, err
		}
		require.NoError(t, f.Close())
		return os.Open(path)
	}

	id := uuid.New()
	s, reg := newTestStore(t, Options{IDs: fixedIDs{id: id}})

	_, err := s.StageBytes(context.Background(), []byte("never lands"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrIOFailure))

	var se *common.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "write", se.Op)
	assert.Equal(t, s.pathFor(id), se.Path)

	assert.Equal(t, 0, reg.Len())
	assert.False(t, reg.Claimed(s.pathFor(id)), "failed write releases its hold")
	_, ok, lerr := s.Load(id)
	require.NoError(t, lerr)
	assert.False(t, ok)

	_, serr := os.Stat(s.pathFor(id))
	assert.NoError(t, serr, "partial file is left for the sweeper")
}

func TestDelete_RemoveFailureIsIOFailure(t *testing.T) {
	s, reg := newTestStore(t, Options{})
	ctx := context.Background()

	// a non-empty directory at the backing path cannot be removed
	id := uuid.New()
	path := s.pathFor(id)
	require.NoError(t, os.MkdirAll(filepath.Join(path, "child"), 0o770))
	require.NoError(t, reg.Register(StagedFile{ID: id, Path: path}))

	err := s.Delete(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrIOFailure))

	_, ok := reg.Lookup(id)
	assert.False(t, ok, "registry entry is gone even though the file stayed")
	assert.NoError(t, s.Delete(ctx, id), "second delete is a no-op")
}

func TestStage_CollisionIsAlreadyExists(t *testing.T) {
	id := uuid.New()
	s, reg := newTestStore(t, Options{IDs: fixedIDs{id: id}})
	ctx := context.Background()

	_, err := s.StageBytes(ctx, []byte("first"))
	require.NoError(t, err)

	calls := []func() error{
		func() error { _, err := s.StageBytes(ctx, []byte("second")); return err },
		func() error { _, err := s.StageStream(ctx, strings.NewReader("second"), nil); return err },
		func() error { _, err := s.ReserveEmpty(ctx); return err },
		func() error { _, err := s.NewDescriptor(ctx); return err },
	}
	for _, call := range calls {
		err := call()
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrAlreadyExists), "got %v", err)
		assert.False(t, errors.Is(err, common.ErrIOFailure))
	}

	assert.Equal(t, []byte("first"), readAll(t, s, id), "existing file must not be overwritten")
	assert.Equal(t, 1, reg.Len())
}

func TestReserveEmpty(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	id, err := s.ReserveEmpty(context.Background())
	require.NoError(t, err)

	assert.Empty(t, readAll(t, s, id))
}

func TestNewDescriptor_RegisteredWithoutContent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s, reg := newTestStore(t, Options{Clock: clock})

	id, err := s.NewDescriptor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	_, ok, err := s.Load(id)
	require.NoError(t, err)
	assert.False(t, ok)

	d, err := s.Describe(id, "later.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.Size)

	path, ok := s.File(id)
	require.True(t, ok)
	require.NoError(t, os.WriteFile(path, []byte("filled"), 0o660))
	assert.Equal(t, []byte("filled"), readAll(t, s, id))
}

func TestLoad_UnknownIsAbsent(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	rc, ok, err := s.Load(uuid.New())
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rc)
}

func TestDescribe(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s, _ := newTestStore(t, Options{Clock: clock})

	id, err := s.StageBytes(context.Background(), []byte("12345"))
	require.NoError(t, err)

	d, err := s.Describe(id, "report.final.pdf")
	require.NoError(t, err)
	assert.Equal(t, FileDescriptor{Name: "report.final.pdf", Extension: "pdf", Size: 5, CreatedAt: clock.now}, d)

	_, err = s.Describe(uuid.New(), "x")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestDelete_Idempotent(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	id, err := s.StageBytes(ctx, []byte("bye"))
	require.NoError(t, err)
	path := mustPath(t, s, id)

	require.NoError(t, s.Delete(ctx, id))

	_, ok, err := s.Load(id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, s.Delete(ctx, id))
}

func TestStage_ConcurrentIDsAreDistinct(t *testing.T) {
	s, reg := newTestStore(t, Options{})
	ctx := context.Background()

	const n = 64
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				ids[i], err = s.StageBytes(ctx, []byte{byte(i)})
			} else {
				ids[i], err = s.StageStream(ctx, bytes.NewReader([]byte{byte(i)}), nil)
			}
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	seen := make(map[uuid.UUID]struct{}, n)
	for i, id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id at %d", i)
		seen[id] = struct{}{}
		assert.Equal(t, []byte{byte(i)}, readAll(t, s, id))
	}
	assert.Equal(t, n, reg.Len())
}

func TestList(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	a, err := s.StageBytes(ctx, []byte("aa"))
	require.NoError(t, err)
	b, err := s.NewDescriptor(ctx)
	require.NoError(t, err)

	got := map[uuid.UUID]Entry{}
	for _, e := range s.List() {
		got[e.ID] = e
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[a].Size)
	assert.True(t, got[b].ModTime.IsZero())
}

func TestFileDescriptor_URLParam(t *testing.T) {
	d := FileDescriptor{
		Name:      "photo.jpg",
		Extension: "jpg",
		Size:      1024,
		CreatedAt: time.UnixMilli(1700000000123),
	}
	assert.Equal(t, "photo.jpg,jpg,1024,1700000000123", d.URLParam())

	assert.Equal(t, "", ExtensionOf("README"))
	assert.Equal(t, "gz", ExtensionOf("a.tar.gz"))
	assert.Equal(t, "", ExtensionOf("trailing."))
}

func mustPath(t *testing.T, s *Store, id uuid.UUID) string {
	t.Helper()
	p, ok := s.File(id)
	require.True(t, ok)
	return p
}
