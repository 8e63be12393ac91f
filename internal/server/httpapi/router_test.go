package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
	"github.com/dmitrijs2005/stagekeeper/internal/server/auth"
	"github.com/dmitrijs2005/stagekeeper/internal/server/journal"
	"github.com/dmitrijs2005/stagekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/stagekeeper/internal/server/staging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("http-secret")

type recordingRelay struct {
	store   *staging.Store
	session string
	desc    staging.FileDescriptor
	err     error
}

func (f *recordingRelay) Relay(ctx context.Context, id uuid.UUID, desc staging.FileDescriptor) error {
	f.session, _ = auth.SessionFromContext(ctx)
	f.desc = desc
	_ = f.store.Delete(ctx, id)
	return f.err
}

type keyArchive struct{ presignErr error }

func (keyArchive) Archive(ctx context.Context, id uuid.UUID, desc staging.FileDescriptor) (string, error) {
	return "staged/" + id.String(), nil
}

func (a keyArchive) DownloadURL(ctx context.Context, key string) (string, error) {
	if a.presignErr != nil {
		return "", a.presignErr
	}
	return "https://archive.test/" + key, nil
}

type staticHistory []*journal.Entry

func (h staticHistory) ListByStage(ctx context.Context, id uuid.UUID) ([]*journal.Entry, error) {
	var out []*journal.Entry
	for _, e := range h {
		if e.StageID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type countSweeper struct{ n int }

func (c countSweeper) Sweep(context.Context) int { return c.n }

type fixture struct {
	srv   *httptest.Server
	store *staging.Store
	relay *recordingRelay
	token string
}

func newFixture(t *testing.T, archive Archiver) *fixture {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	store, err := staging.NewStore(staging.NewRegistry(), staging.Options{Dir: t.TempDir(), Metrics: m})
	require.NoError(t, err)
	relay := &recordingRelay{store: store}

	router := NewRouter(Deps{
		Store:    store,
		Relay:    relay,
		Archive:  archive,
		Sweeper:  countSweeper{n: 2},
		Gatherer: reg,
	}, nil, testSecret)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	token, err := auth.GenerateToken("http-session", testSecret, time.Hour)
	require.NoError(t, err)

	return &fixture{srv: srv, store: store, relay: relay, token: token}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, body)
	require.NoError(t, err)
	if authed {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) stage(t *testing.T, payload string) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/stage", strings.NewReader(payload), true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out stagedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "/stage/"+out.ID, resp.Header.Get("Location"))
	return out.ID
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestStageAndDownload(t *testing.T) {
	f := newFixture(t, nil)

	id := f.stage(t, "streamed body")

	resp := f.do(t, http.MethodGet, "/stage/"+id, nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, common.OctetStream, resp.Header.Get("Content-Type"))
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "streamed body", string(b))
}

func TestStage_RequiresToken(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/stage", strings.NewReader("x"), false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, ContentTypeProblemJSON, resp.Header.Get("Content-Type"))

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/stage", strings.NewReader("x"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer garbage")
	bad, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	req, err = http.NewRequest(http.MethodPost, f.srv.URL+"/stage", strings.NewReader("x"))
	require.NoError(t, err)
	req.Header.Set(common.AccessTokenHeaderName, f.token)
	ok, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer ok.Body.Close()
	assert.Equal(t, http.StatusCreated, ok.StatusCode)

	assert.Len(t, f.store.List(), 1)
}

func TestDownload_Errors(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/stage/"+uuid.NewString(), nil, false).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/stage/nope", nil, false).StatusCode)
}

func TestDescribe(t *testing.T) {
	f := newFixture(t, nil)
	id := f.stage(t, "12345")

	resp := f.do(t, http.MethodGet, "/stage/"+id+"/descriptor?name=archive.tar.gz", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var d descriptorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	assert.Equal(t, "archive.tar.gz", d.Name)
	assert.Equal(t, "gz", d.Extension)
	assert.Equal(t, int64(5), d.Size)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/stage/"+id+"/descriptor", nil, false).StatusCode)
}

func TestListAndDelete(t *testing.T) {
	f := newFixture(t, nil)
	id := f.stage(t, "abc")

	resp := f.do(t, http.MethodGet, "/stage", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), f.store.Dir(), "listing must not expose staging paths")
	var rows []entryResponse
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)
	assert.Equal(t, int64(3), rows[0].Size)
	assert.NotNil(t, rows[0].ModTime)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodDelete, "/stage/"+id, nil, false).StatusCode)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/stage/"+id, nil, true).StatusCode)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/stage/"+id, nil, true).StatusCode)
	assert.Empty(t, f.store.List())
}

func TestRelay(t *testing.T) {
	f := newFixture(t, nil)
	id := f.stage(t, "relay me")

	resp := f.do(t, http.MethodPost, "/stage/"+id+"/relay?name=doc.txt", nil, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http-session", f.relay.session)
	assert.Equal(t, "doc.txt", f.relay.desc.Name)
	assert.Equal(t, int64(len("relay me")), f.relay.desc.Size)

	_, ok := f.store.File(uuid.MustParse(id))
	assert.False(t, ok)
}

func TestRelay_FailureIsBadGateway(t *testing.T) {
	f := newFixture(t, nil)
	f.relay.err = &common.RelayError{FileName: "doc.txt", StatusCode: http.StatusInternalServerError}
	id := f.stage(t, "x")

	resp := f.do(t, http.MethodPost, "/stage/"+id+"/relay?name=doc.txt", nil, true)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, ContentTypeProblemJSON, resp.Header.Get("Content-Type"))
}

func TestRelay_UnknownIsNotFound(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/stage/"+uuid.NewString()+"/relay?name=doc.txt", nil, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestArchive(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.stage(t, "x")
		assert.Equal(t, http.StatusNotImplemented, f.do(t, http.MethodPost, "/stage/"+id+"/archive?name=x", nil, true).StatusCode)
	})

	t.Run("configured", func(t *testing.T) {
		f := newFixture(t, keyArchive{})
		id := f.stage(t, "x")

		resp := f.do(t, http.MethodPost, "/stage/"+id+"/archive?name=x", nil, true)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "/archive/staged/"+id, resp.Header.Get("Location"))
		var out archiveResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, archiveResponse{Key: "staged/" + id, URL: "https://archive.test/staged/" + id}, out)
	})

	t.Run("presign failure keeps key", func(t *testing.T) {
		f := newFixture(t, keyArchive{presignErr: errors.New("no signer")})
		id := f.stage(t, "x")

		resp := f.do(t, http.MethodPost, "/stage/"+id+"/archive?name=x", nil, true)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var out archiveResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, archiveResponse{Key: "staged/" + id}, out)
	})
}

func TestArchivedDownloadRedirect(t *testing.T) {
	noFollow := func(f *fixture) *http.Client {
		c := *f.srv.Client()
		c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
		return &c
	}
	get := func(t *testing.T, f *fixture, path string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, f.srv.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+f.token)
		resp, err := noFollow(f).Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("redirects to presigned url", func(t *testing.T) {
		f := newFixture(t, keyArchive{})
		resp := get(t, f, "/archive/staged/2025/3/7/abc")
		assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
		assert.Equal(t, "https://archive.test/staged/2025/3/7/abc", resp.Header.Get("Location"))
	})

	t.Run("requires session", func(t *testing.T) {
		f := newFixture(t, keyArchive{})
		assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/archive/k", nil, false).StatusCode)
	})

	t.Run("presign failure", func(t *testing.T) {
		f := newFixture(t, keyArchive{presignErr: errors.New("no signer")})
		resp := get(t, f, "/archive/k")
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, ContentTypeProblemJSON, resp.Header.Get("Content-Type"))
	})

	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.Equal(t, http.StatusNotImplemented, get(t, f, "/archive/k").StatusCode)
	})
}

func TestSweep(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/sweep", nil, false).StatusCode)

	resp := f.do(t, http.MethodPost, "/sweep", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 2, out["evicted"])
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, nil)
	f.stage(t, "count me")

	resp := f.do(t, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "stagekeeper_staged_total")
}

func TestRelayHistory(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.Equal(t, http.StatusNotImplemented, f.do(t, http.MethodGet, "/stage/"+uuid.NewString()+"/relays", nil, false).StatusCode)
	})

	t.Run("lists entries", func(t *testing.T) {
		id := uuid.New()
		finished := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		history := staticHistory{
			{StageID: id, FileName: "a.txt", Endpoint: "http://n2", StatusCode: 200, Success: true, FinishedAt: finished},
			{StageID: uuid.New(), FileName: "other"},
		}

		store, err := staging.NewStore(staging.NewRegistry(), staging.Options{Dir: t.TempDir()})
		require.NoError(t, err)
		srv := httptest.NewServer(NewRouter(Deps{Store: store, History: history}, nil, testSecret))
		defer srv.Close()

		resp, err := srv.Client().Get(srv.URL + "/stage/" + id.String() + "/relays")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var rows []relayResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
		require.Len(t, rows, 1)
		assert.Equal(t, "a.txt", rows[0].FileName)
		assert.Equal(t, "http://n2", rows[0].Endpoint)
		assert.True(t, rows[0].Success)
		assert.True(t, finished.Equal(rows[0].FinishedAt))
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(common.ErrInvalidArgument))
	assert.Equal(t, http.StatusConflict, statusFor(&common.StageError{Err: common.ErrAlreadyExists}))
	assert.Equal(t, http.StatusNotFound, statusFor(common.ErrorNotFound))
	assert.Equal(t, http.StatusBadGateway, statusFor(&common.RelayError{}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(&common.StageError{Err: io.ErrUnexpectedEOF}))
}

func TestDetailFor_HidesStagingPaths(t *testing.T) {
	ioErr := &common.StageError{Op: "delete", Path: "/srv/upload-staging/abc", Err: io.ErrUnexpectedEOF}
	assert.Equal(t, common.IOFailureDetail, detailFor(ioErr))
	assert.Equal(t, common.IOFailureDetail, detailFor(fmt.Errorf("wrapped: %w", ioErr)))

	notFound := fmt.Errorf("staged file x: %w", common.ErrorNotFound)
	assert.Equal(t, notFound.Error(), detailFor(notFound))

	rec := httptest.NewRecorder()
	writeError(rec, ioErr)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "upload-staging")
}
