package player

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const sessionTokenHeader = "X-Session-Token"

// Handler exposes the playback synchronization engine over HTTP using go-chi.
// The browser-based viewer calls in with media events and control actions and
// polls the snapshot for each stream's target command.
type Handler struct {
	sessions *SessionManager
	log      *slog.Logger
}

// NewHandler returns a Handler over the given session manager.
func NewHandler(sessions *SessionManager, log *slog.Logger) *Handler {
	return &Handler{sessions: sessions, log: log}
}

// createSessionResponse is the body returned by CreateSession.
type createSessionResponse struct {
	Token    string         `json:"token"`
	Snapshot EngineSnapshot `json:"snapshot"`
}

// streamTimeRequest is the body of a native time-update report.
type streamTimeRequest struct {
	LocalTime float64 `json:"local_time"`
}

// visibilityRequest is the body of a show/hide request.
type visibilityRequest struct {
	Visible bool `json:"visible"`
}

// playbackRequest is the body of a playback control request. Absent fields are
// left unchanged, so a scrub bar can seek without touching play state.
type playbackRequest struct {
	Time    *float64 `json:"time,omitempty"`
	Playing *bool    `json:"playing,omitempty"`
}

// CreateSession handles POST /episodes/{episode_id}. It replaces any existing
// session for the episode: the old engine is torn down before the new streams
// register, and the response carries a fresh token.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	episode := EpisodeID(chi.URLParam(r, "episode_id"))
	if episode == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var spec SessionSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		h.log.Debug("invalid session spec", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s, err := h.sessions.CreateSession(episode, spec)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidDuration):
			w.WriteHeader(http.StatusBadRequest)
		case errors.Is(err, ErrDuplicateStream):
			h.log.Info("session spec rejected",
				slog.String("episode", string(episode)),
				slog.String("error", err.Error()))
			w.WriteHeader(http.StatusConflict)
		default:
			h.log.Error("create session failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		Token:    s.Token,
		Snapshot: s.Engine.Snapshot(),
	})
}

// EndSession handles DELETE /episodes/{episode_id} (viewer unmount).
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	episode := EpisodeID(chi.URLParam(r, "episode_id"))
	if episode == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.sessions.EndSession(episode)
	w.WriteHeader(http.StatusNoContent)
}

// StreamReady handles POST /episodes/{episode_id}/streams/{stream_id}/ready.
func (h *Handler) StreamReady(w http.ResponseWriter, r *http.Request) {
	s, streamID, ok := h.authorizeStream(w, r)
	if !ok {
		return
	}
	h.writeEngineResult(w, s.Engine.StreamReady(streamID))
}

// StreamTime handles POST /episodes/{episode_id}/streams/{stream_id}/time.
func (h *Handler) StreamTime(w http.ResponseWriter, r *http.Request) {
	s, streamID, ok := h.authorizeStream(w, r)
	if !ok {
		return
	}
	var req streamTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.writeEngineResult(w, s.Engine.StreamTime(streamID, req.LocalTime))
}

// SetVisibility handles POST /episodes/{episode_id}/streams/{stream_id}/visibility.
func (h *Handler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	s, streamID, ok := h.authorizeStream(w, r)
	if !ok {
		return
	}
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.writeEngineResult(w, s.Engine.SetVisible(streamID, req.Visible))
}

// SetPlayback handles POST /episodes/{episode_id}/playback: seek and/or
// play-pause from any UI control.
func (h *Handler) SetPlayback(w http.ResponseWriter, r *http.Request) {
	s, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req playbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Time != nil {
		if err := s.Engine.SetTime(*req.Time); err != nil {
			h.writeEngineResult(w, err)
			return
		}
	}
	if req.Playing != nil {
		if err := s.Engine.SetPlaying(*req.Playing); err != nil {
			h.writeEngineResult(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

// GetSnapshot handles GET /episodes/{episode_id}/snapshot. Read-only: the
// chart cursor and the remote players consume this without a token.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	episode := EpisodeID(chi.URLParam(r, "episode_id"))
	s, ok := h.sessions.Get(episode)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

// authorize resolves the episode session and checks the session token, writing
// the error response itself when the request does not check out.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	episode := EpisodeID(chi.URLParam(r, "episode_id"))
	if episode == "" {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	s, err := h.sessions.Authorize(episode, r.Header.Get(sessionTokenHeader))
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownSession):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, ErrStaleToken):
			h.log.Debug("stale session token dropped",
				slog.String("episode", string(episode)),
				slog.String("path", r.URL.Path))
			w.WriteHeader(http.StatusConflict)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
		return nil, false
	}
	return s, true
}

func (h *Handler) authorizeStream(w http.ResponseWriter, r *http.Request) (*Session, StreamID, bool) {
	s, ok := h.authorize(w, r)
	if !ok {
		return nil, "", false
	}
	streamID := StreamID(chi.URLParam(r, "stream_id"))
	if streamID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return nil, "", false
	}
	return s, streamID, true
}

// writeEngineResult maps engine errors to HTTP status codes.
func (h *Handler) writeEngineResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrUnknownStream):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrSessionClosed):
		// The session was replaced between Authorize and the engine call.
		w.WriteHeader(http.StatusConflict)
	default:
		h.log.Error("engine call failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
