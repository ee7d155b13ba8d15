package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"farsistream/models"
	sessionsvc "farsistream/services/session"
)

type sessionController interface {
	OnNewPlayRequest(ref models.ContentRef, pageURL string) string
	Play() error
	Pause() error
	Seek(positionMs int64) error
	SwitchQuality(label string) error
	OnBackground()
	OnForeground()
	OnDestroy()
	OnSaveState() *models.SessionSnapshot
	OnRestoreState(snap models.SessionSnapshot)
	Status() sessionsvc.Status
}

var _ sessionController = (*sessionsvc.Controller)(nil)

// SessionHandler exposes the playback session controller over HTTP. There is
// one controller and therefore at most one active session per server.
type SessionHandler struct {
	Controller sessionController
}

func NewSessionHandler(c sessionController) *SessionHandler {
	return &SessionHandler{Controller: c}
}

// Start begins playback for a content ref, replacing any active session.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var request struct {
		models.ContentRef
		PageURL string `json:"pageUrl,omitempty"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ref := request.ContentRef
	if ref.IsZero() {
		http.Error(w, "contentId and contentType are required", http.StatusBadRequest)
		return
	}
	switch ref.ContentType {
	case models.ContentTypeMovie, models.ContentTypeEpisode:
	default:
		http.Error(w, "contentType must be movie or episode", http.StatusBadRequest)
		return
	}
	if ref.ContentType == models.ContentTypeEpisode && ref.SeriesID == 0 {
		http.Error(w, "seriesId is required for episodes", http.StatusBadRequest)
		return
	}

	log.Printf("[session-handler] play request ref=%s", ref)
	sessionID := h.Controller.OnNewPlayRequest(ref, request.PageURL)
	writeJSON(w, map[string]string{"sessionId": sessionID})
}

// Status reports the controller's current state.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Controller.Status())
}

func (h *SessionHandler) Play(w http.ResponseWriter, r *http.Request) {
	h.control(w, h.Controller.Play())
}

func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, h.Controller.Pause())
}

func (h *SessionHandler) Seek(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PositionMs int64 `json:"positionMs"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.control(w, h.Controller.Seek(request.PositionMs))
}

// SwitchQuality changes the active quality, re-enabling every mirror and
// persisting the choice as the standing preference.
func (h *SessionHandler) SwitchQuality(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Quality string `json:"quality"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.Quality == "" {
		http.Error(w, "quality is required", http.StatusBadRequest)
		return
	}

	err := h.Controller.SwitchQuality(request.Quality)
	if err != nil && !errors.Is(err, sessionsvc.ErrNoActiveSession) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.control(w, err)
}

// Background suspends the session: forced checkpoint, player released.
func (h *SessionHandler) Background(w http.ResponseWriter, r *http.Request) {
	h.Controller.OnBackground()
	writeJSON(w, h.Controller.Status())
}

// Foreground resumes a suspended session at its captured position.
func (h *SessionHandler) Foreground(w http.ResponseWriter, r *http.Request) {
	h.Controller.OnForeground()
	writeJSON(w, h.Controller.Status())
}

// Destroy ends the session after a final forced checkpoint.
func (h *SessionHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	h.Controller.OnDestroy()
	writeJSON(w, h.Controller.Status())
}

// SaveState hands out a recovery snapshot, or 204 when there is nothing
// worth saving.
func (h *SessionHandler) SaveState(w http.ResponseWriter, r *http.Request) {
	snap := h.Controller.OnSaveState()
	if snap == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, snap)
}

// RestoreState accepts a previously saved snapshot. The next play request
// for the same ref resumes from it.
func (h *SessionHandler) RestoreState(w http.ResponseWriter, r *http.Request) {
	var snap models.SessionSnapshot
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if snap.ContentRef.IsZero() {
		http.Error(w, "snapshot contentRef is required", http.StatusBadRequest)
		return
	}
	h.Controller.OnRestoreState(snap)
	w.WriteHeader(http.StatusNoContent)
}

// control maps a controller error onto the HTTP response and echoes the
// resulting status.
func (h *SessionHandler) control(w http.ResponseWriter, err error) {
	if errors.Is(err, sessionsvc.ErrNoActiveSession) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.Controller.Status())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[session-handler] encode response: %v", err)
	}
}
