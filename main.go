package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"farsistream/api"
	"farsistream/config"
	"farsistream/handlers"
	"farsistream/internal/player"
	"farsistream/services/checkpoint"
	"farsistream/services/network"
	"farsistream/services/prefs"
	"farsistream/services/resolver"
	"farsistream/services/session"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🚀 FarsiStream Backend Starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("FARSISTREAM_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Checkpoint persistence
	store, err := checkpoint.NewSQLiteStore(settings.Checkpoint.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open checkpoint store: %v", err)
	}
	defer store.Close()
	writer := checkpoint.NewWriter(store, time.Duration(settings.Checkpoint.ForceDeadlineSec)*time.Second)

	// Source resolution against the content site
	resolverSvc := resolver.NewService(settings.Source, settings.Playback, nil)

	// Per-user standing preferences
	prefsSvc := prefs.NewService(afero.NewOsFs(), settings.Prefs.Path)

	// Playback engine and session controller
	engineFactory := player.Factory(player.Options{
		ProbeInterval: 30 * time.Second,
	})
	controller := session.NewController(resolverSvc, store, writer, prefsSvc, engineFactory, session.Config{
		QualityPriority:    settings.Playback.QualityPriority,
		CheckpointInterval: time.Duration(settings.Checkpoint.IntervalSeconds) * time.Second,
	})

	// Connectivity watch: loss pauses playback, restoration waits for the user
	var monitor *network.ProbeMonitor
	if settings.Network.ProbeURL != "" {
		monitor = network.NewProbeMonitor(
			settings.Network.ProbeURL,
			time.Duration(settings.Network.ProbeIntervalSeconds)*time.Second,
			nil,
		)
		monitor.Start(context.Background())
		controller.WatchConnectivity(monitor)
	}

	r := mux.NewRouter()
	api.Register(r,
		handlers.NewSessionHandler(controller),
		handlers.NewSettingsHandler(cfgManager),
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if monitor != nil {
		monitor.Stop()
	}

	// Final forced checkpoint for whatever is playing, then drain async writes
	controller.OnDestroy()
	writer.Wait()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
