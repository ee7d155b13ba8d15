package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"farsistream/config"
)

// SettingsHandler reads and writes the persisted application settings.
type SettingsHandler struct {
	Manager *config.Manager
}

func NewSettingsHandler(m *config.Manager) *SettingsHandler {
	return &SettingsHandler{Manager: m}
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, s)
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var s config.Settings
	dec := json.NewDecoder(r.Body)
	// Unknown fields pass through so older clients keep working.
	if err := dec.Decode(&s); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.Server.Port < 0 || s.Server.Port > 65535 {
		http.Error(w, "server.port out of range", http.StatusBadRequest)
		return
	}
	if s.Source.BaseURL == "" {
		http.Error(w, "source.baseUrl is required", http.StatusBadRequest)
		return
	}

	if err := h.Manager.Save(s); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("[settings-handler] settings updated")
	writeJSON(w, s)
}
