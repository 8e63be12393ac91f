package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
	"github.com/dmitrijs2005/stagekeeper/internal/logging"
	"github.com/dmitrijs2005/stagekeeper/internal/server/staging"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type handler struct {
	deps   Deps
	logger logging.Logger
}

type stagedResponse struct {
	ID string `json:"id"`
}

type descriptorResponse struct {
	Name      string    `json:"name"`
	Extension string    `json:"extension"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type entryResponse struct {
	ID      string     `json:"id"`
	Size    int64      `json:"size"`
	ModTime *time.Time `json:"mod_time,omitempty"`
}

type archiveResponse struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

type relayResponse struct {
	FileName   string    `json:"file_name"`
	Endpoint   string    `json:"endpoint,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

func idParam(r *http.Request) (uuid.UUID, error) {
	v := chi.URLParam(r, "id")
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("id %q: %w", v, common.ErrInvalidArgument)
	}
	return id, nil
}

func nameParam(r *http.Request) (string, error) {
	name := r.URL.Query().Get("name")
	if name == "" {
		return "", fmt.Errorf("name: %w", common.ErrInvalidArgument)
	}
	return name, nil
}

// describeRequest resolves the {id} path value and the name query value.
func (h *handler) describeRequest(r *http.Request) (uuid.UUID, staging.FileDescriptor, error) {
	id, err := idParam(r)
	if err != nil {
		return uuid.Nil, staging.FileDescriptor{}, err
	}
	name, err := nameParam(r)
	if err != nil {
		return uuid.Nil, staging.FileDescriptor{}, err
	}
	d, err := h.deps.Store.Describe(id, name)
	if err != nil {
		return uuid.Nil, staging.FileDescriptor{}, err
	}
	return id, d, nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) stage(w http.ResponseWriter, r *http.Request) {
	id, err := h.deps.Store.StageStream(r.Context(), r.Body, func(id uuid.UUID, written int64) {
		h.logger.Debug(r.Context(), "staging progress", "id", id, "written", written)
	})
	if err != nil {
		h.logger.Error(r.Context(), "stage failed", "error", err)
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/stage/"+id.String())
	WriteJSON(w, http.StatusCreated, stagedResponse{ID: id.String()})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	entries := h.deps.Store.List()
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		row := entryResponse{ID: e.ID.String(), Size: e.Size}
		if !e.ModTime.IsZero() {
			mt := e.ModTime.UTC()
			row.ModTime = &mt
		}
		out = append(out, row)
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rc, ok, err := h.deps.Store.Load(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		WriteProblem(w, http.StatusNotFound, "staged file not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", common.OctetStream)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn(r.Context(), "download interrupted", "id", id, "error", err)
	}
}

func (h *handler) describe(w http.ResponseWriter, r *http.Request) {
	_, d, err := h.describeRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, descriptorResponse{
		Name:      d.Name,
		Extension: d.Extension,
		Size:      d.Size,
		CreatedAt: d.CreatedAt.UTC(),
	})
}

func (h *handler) relays(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		WriteProblem(w, http.StatusNotImplemented, "relay journal is not configured")
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.deps.History.ListByStage(r.Context(), id)
	if err != nil {
		h.logger.Error(r.Context(), "relay history failed", "id", id, "error", err)
		writeError(w, err)
		return
	}
	out := make([]relayResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, relayResponse{
			FileName:   e.FileName,
			Endpoint:   e.Endpoint,
			StatusCode: e.StatusCode,
			Success:    e.Success,
			Error:      e.Error,
			FinishedAt: e.FinishedAt.UTC(),
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Store.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) relay(w http.ResponseWriter, r *http.Request) {
	id, d, err := h.describeRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Relay.Relay(r.Context(), id, d); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) archive(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive == nil {
		WriteProblem(w, http.StatusNotImplemented, "archive is not configured")
		return
	}
	id, d, err := h.describeRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	key, err := h.deps.Archive.Archive(r.Context(), id, d)
	if err != nil {
		writeError(w, err)
		return
	}

	out := archiveResponse{Key: key}
	if out.URL, err = h.deps.Archive.DownloadURL(r.Context(), key); err != nil {
		h.logger.Warn(r.Context(), "could not presign archived object", "key", key, "error", err)
	}
	w.Header().Set("Location", "/archive/"+key)
	WriteJSON(w, http.StatusCreated, out)
}

// archived redirects to a presigned download URL of an archived object.
func (h *handler) archived(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive == nil {
		WriteProblem(w, http.StatusNotImplemented, "archive is not configured")
		return
	}
	key := chi.URLParam(r, "*")
	if key == "" {
		writeError(w, fmt.Errorf("key: %w", common.ErrInvalidArgument))
		return
	}
	url, err := h.deps.Archive.DownloadURL(r.Context(), key)
	if err != nil {
		h.logger.Error(r.Context(), "presign failed", "key", key, "error", err)
		WriteProblem(w, http.StatusBadGateway, "archive download is unavailable")
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func (h *handler) sweep(w http.ResponseWriter, r *http.Request) {
	n := h.deps.Sweeper.Sweep(r.Context())
	WriteJSON(w, http.StatusOK, map[string]int{"evicted": n})
}
