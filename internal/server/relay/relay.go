// Package relay pushes staged payloads to remote storage nodes.
//
// Candidates are tried in order. A 2xx ends the sequence successfully; a 404
// or a transport failure moves on to the next candidate while one remains;
// anything else is terminal. The local stage is deleted once the sequence
// ends, whatever its outcome, since the staging area is a buffer and not a
// durable store. Retrying is left to the caller.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
	"github.com/dmitrijs2005/stagekeeper/internal/logging"
	"github.com/dmitrijs2005/stagekeeper/internal/netx"
	"github.com/dmitrijs2005/stagekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/stagekeeper/internal/server/staging"
	"github.com/google/uuid"
)

// UploadPath is appended to every candidate base URL.
const UploadPath = "/upload"

// DefaultTimeout bounds a single candidate attempt.
const DefaultTimeout = 30 * time.Second

// Stage is the part of the staging store the relay needs.
type Stage interface {
	File(id uuid.UUID) (string, bool)
	Delete(ctx context.Context, id uuid.UUID) error
}

// EndpointDirectory lists candidate node base URLs in failover order. It is
// consulted on every relay.
type EndpointDirectory interface {
	CandidateBaseURLs(ctx context.Context) ([]string, error)
}

// SessionSource yields the session token sent as the "s" parameter.
type SessionSource interface {
	CurrentSessionID(ctx context.Context) (string, error)
}

// Journal records relay outcomes. Journal errors are logged only.
type Journal interface {
	RecordRelay(ctx context.Context, rec *Record) error
}

// StaticEndpoints is an EndpointDirectory over a fixed list.
type StaticEndpoints []string

func (s StaticEndpoints) CandidateBaseURLs(context.Context) ([]string, error) {
	out := make([]string, len(s))
	copy(out, s)
	return out, nil
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Journal    Journal
	Clock      staging.Clock
	Logger     logging.Logger
	Metrics    *metrics.Metrics
}

// Client relays staged files with ordered failover.
type Client struct {
	stage     Stage
	endpoints EndpointDirectory
	sessions  SessionSource
	timeout   time.Duration
	http      *http.Client
	journal   Journal
	clock     staging.Clock
	logger    logging.Logger
	metrics   *metrics.Metrics
}

func NewClient(stage Stage, endpoints EndpointDirectory, sessions SessionSource, opts Options) *Client {
	c := &Client{
		stage:     stage,
		endpoints: endpoints,
		sessions:  sessions,
		timeout:   opts.Timeout,
		http:      opts.HTTPClient,
		journal:   opts.Journal,
		clock:     opts.Clock,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.clock == nil {
		c.clock = staging.SystemClock{}
	}
	if c.logger == nil {
		c.logger = logging.Nop{}
	}
	c.logger = c.logger.With("module", "relay")
	return c
}

// Relay sends the staged file id, described by desc, to the first candidate
// that accepts it and then deletes the local stage. A failure is returned as
// *common.RelayError (errors.Is(err, common.ErrRelayFailed)); an unknown id
// yields common.ErrorNotFound.
func (c *Client) Relay(ctx context.Context, id uuid.UUID, desc staging.FileDescriptor) error {
	path, ok := c.stage.File(id)
	if !ok {
		return fmt.Errorf("staged file %s: %w", id, common.ErrorNotFound)
	}

	rec := &Record{StageID: id, FileName: desc.Name, StartedAt: c.clock.Now()}
	err := c.deliver(ctx, path, desc, rec)

	if derr := c.stage.Delete(ctx, id); derr != nil {
		c.logger.Warn(ctx, "could not delete relayed stage", "id", id, "error", derr)
	}

	rec.FinishedAt = c.clock.Now()
	rec.Success = err == nil
	if err != nil {
		rec.Error = err.Error()
	}
	c.metrics.RecordRelay(rec.Success, rec.FinishedAt.Sub(rec.StartedAt).Seconds())
	if c.journal != nil {
		if jerr := c.journal.RecordRelay(ctx, rec); jerr != nil {
			c.logger.Warn(ctx, "could not journal relay", "id", id, "error", jerr)
		}
	}

	if err != nil {
		c.logger.Error(ctx, "relay failed", "id", id, "file", desc.Name, "error", err)
		return err
	}
	c.logger.Info(ctx, "relayed staged file", "id", id, "file", desc.Name, "endpoint", rec.Endpoint)
	return nil
}

func (c *Client) deliver(ctx context.Context, path string, desc staging.FileDescriptor, rec *Record) error {
	session, err := c.sessions.CurrentSessionID(ctx)
	if err != nil {
		return &common.RelayError{FileName: desc.Name, Err: fmt.Errorf("session: %w", err)}
	}
	rec.Session = session

	bases, err := c.endpoints.CandidateBaseURLs(ctx)
	if err != nil {
		return &common.RelayError{FileName: desc.Name, Err: fmt.Errorf("endpoints: %w", err)}
	}
	if len(bases) == 0 {
		return &common.RelayError{FileName: desc.Name, Err: common.ErrNoEndpoints}
	}

	query := "?s=" + url.QueryEscape(session) + "&f=" + url.QueryEscape(desc.URLParam())

	for i, base := range bases {
		last := i == len(bases)-1
		target := strings.TrimRight(base, "/") + UploadPath + query

		status, err := c.attempt(ctx, target, path)
		rec.Attempts = append(rec.Attempts, Attempt{Endpoint: base, StatusCode: status, Err: err})

		var local *localError
		switch {
		case errors.As(err, &local):
			return &common.RelayError{FileName: desc.Name, Err: local.err}

		case err != nil:
			c.metrics.RecordRelayAttempt("transport_error")
			c.logger.Debug(ctx, "unable to upload file", "url", target, "error", err)
			if last || ctx.Err() != nil {
				return &common.RelayError{FileName: desc.Name, Err: err}
			}

		case status >= 200 && status < 300:
			c.metrics.RecordRelayAttempt("accepted")
			rec.Endpoint = base
			rec.StatusCode = status
			return nil

		case status == http.StatusNotFound && !last:
			c.metrics.RecordRelayAttempt("not_found")
			c.logger.Debug(ctx, "unable to upload file, trying next url", "url", target, "status", status)

		default:
			c.metrics.RecordRelayAttempt("rejected")
			rec.StatusCode = status
			return &common.RelayError{FileName: desc.Name, StatusCode: status}
		}
	}

	// unreachable: the last candidate always returns above
	return &common.RelayError{FileName: desc.Name, Err: common.ErrNoEndpoints}
}

// localError marks failures reading the local stage, which no other
// candidate could fix.
type localError struct{ err error }

func (e *localError) Error() string { return e.err.Error() }

func (c *Client) attempt(ctx context.Context, target, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &localError{err: &common.StageError{Op: "open", Path: path, Err: err}}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, &localError{err: &common.StageError{Op: "stat", Path: path, Err: err}}
	}

	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return netx.PostOctetStream(actx, c.http, target, f, fi.Size())
}
