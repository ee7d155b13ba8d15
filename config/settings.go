package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server     ServerSettings     `json:"server"`
	Source     SourceSettings     `json:"source"`
	Checkpoint CheckpointSettings `json:"checkpoint"`
	Playback   PlaybackSettings   `json:"playback"`
	Network    NetworkSettings    `json:"network"`
	Prefs      PrefsSettings      `json:"prefs"`
	Log        LogConfig          `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SourceSettings configures the DooPlay-style source resolution endpoint.
type SourceSettings struct {
	BaseURL           string `json:"baseUrl"`
	MaxSourceNumbers  int    `json:"maxSourceNumbers"`  // how many /{source} slots to probe per title
	RequestTimeoutSec int    `json:"requestTimeoutSec"` // per-request timeout
}

// CheckpointSettings configures progress persistence.
type CheckpointSettings struct {
	DatabasePath     string `json:"databasePath"`
	IntervalSeconds  int    `json:"intervalSeconds"`  // periodic write cadence while playing
	ForceDeadlineSec int    `json:"forceDeadlineSec"` // budget for forced synchronous writes
}

// PlaybackSettings tunes session behavior.
type PlaybackSettings struct {
	QualityPriority     []string `json:"qualityPriority"` // highest first
	SeekForwardSeconds  int      `json:"seekForwardSeconds"`
	SeekBackwardSeconds int      `json:"seekBackwardSeconds"`
}

// NetworkSettings configures the connectivity monitor.
type NetworkSettings struct {
	ProbeURL             string `json:"probeUrl"`
	ProbeIntervalSeconds int    `json:"probeIntervalSeconds"`
}

// PrefsSettings locates the per-user preference file.
type PrefsSettings struct {
	Path string `json:"path"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 8585},
		Source: SourceSettings{
			BaseURL:           "https://farsiplex.com",
			MaxSourceNumbers:  5,
			RequestTimeoutSec: 15,
		},
		Checkpoint: CheckpointSettings{
			DatabasePath:     "cache/checkpoints.db",
			IntervalSeconds:  10,
			ForceDeadlineSec: 2,
		},
		Playback: PlaybackSettings{
			QualityPriority:     []string{"1080p", "720p", "480p", "360p"},
			SeekForwardSeconds:  30,
			SeekBackwardSeconds: 10,
		},
		Network: NetworkSettings{
			ProbeURL:             "https://farsiplex.com/favicon.ico",
			ProbeIntervalSeconds: 10,
		},
		Prefs: PrefsSettings{Path: "cache/prefs.json"},
		Log: LogConfig{
			File:       "cache/logs/backend.log",
			Level:      "info",
			MaxSize:    50, // MB per file
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures the parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings from disk, creating the file with defaults when it is
// missing. Zero-valued tunables are backfilled from defaults so older config
// files keep working.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s := DefaultSettings()
			if saveErr := m.Save(s); saveErr != nil {
				return Settings{}, saveErr
			}
			return s, nil
		}
		return Settings{}, err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}

	defaults := DefaultSettings()
	if s.Server.Port == 0 {
		s.Server.Port = defaults.Server.Port
	}
	if s.Source.MaxSourceNumbers <= 0 {
		s.Source.MaxSourceNumbers = defaults.Source.MaxSourceNumbers
	}
	if s.Source.RequestTimeoutSec <= 0 {
		s.Source.RequestTimeoutSec = defaults.Source.RequestTimeoutSec
	}
	if s.Checkpoint.DatabasePath == "" {
		s.Checkpoint.DatabasePath = defaults.Checkpoint.DatabasePath
	}
	if s.Checkpoint.IntervalSeconds <= 0 {
		s.Checkpoint.IntervalSeconds = defaults.Checkpoint.IntervalSeconds
	}
	if s.Checkpoint.ForceDeadlineSec <= 0 {
		s.Checkpoint.ForceDeadlineSec = defaults.Checkpoint.ForceDeadlineSec
	}
	if len(s.Playback.QualityPriority) == 0 {
		s.Playback.QualityPriority = defaults.Playback.QualityPriority
	}
	if s.Network.ProbeIntervalSeconds <= 0 {
		s.Network.ProbeIntervalSeconds = defaults.Network.ProbeIntervalSeconds
	}
	if s.Prefs.Path == "" {
		s.Prefs.Path = defaults.Prefs.Path
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
