package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"farsistream/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	sessionHandler *handlers.SessionHandler,
	settingsHandler *handlers.SettingsHandler,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	// Playback session. One controller per server, so these routes carry no
	// session id.
	api.HandleFunc("/session", sessionHandler.Start).Methods(http.MethodPost)
	api.HandleFunc("/session", sessionHandler.Status).Methods(http.MethodGet)
	api.HandleFunc("/session/play", sessionHandler.Play).Methods(http.MethodPost)
	api.HandleFunc("/session/pause", sessionHandler.Pause).Methods(http.MethodPost)
	api.HandleFunc("/session/seek", sessionHandler.Seek).Methods(http.MethodPost)
	api.HandleFunc("/session/quality", sessionHandler.SwitchQuality).Methods(http.MethodPost)

	// Host lifecycle events.
	api.HandleFunc("/session/background", sessionHandler.Background).Methods(http.MethodPost)
	api.HandleFunc("/session/foreground", sessionHandler.Foreground).Methods(http.MethodPost)
	api.HandleFunc("/session/destroy", sessionHandler.Destroy).Methods(http.MethodPost)

	// Process-death recovery snapshot.
	api.HandleFunc("/session/state", sessionHandler.SaveState).Methods(http.MethodGet)
	api.HandleFunc("/session/state", sessionHandler.RestoreState).Methods(http.MethodPut)

	api.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", settingsHandler.PutSettings).Methods(http.MethodPut)

	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
}
