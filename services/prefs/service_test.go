package prefs

import (
	"testing"

	"github.com/spf13/afero"
)

func TestPreferredQualityDefaultsEmpty(t *testing.T) {
	svc := NewService(afero.NewMemMapFs(), "cache/prefs.json")
	if got := svc.PreferredQuality(); got != "" {
		t.Fatalf("PreferredQuality = %q, want empty", got)
	}
}

func TestSetPreferredQualityRoundTrips(t *testing.T) {
	memfs := afero.NewMemMapFs()
	svc := NewService(memfs, "cache/prefs.json")

	if err := svc.SetPreferredQuality("480p"); err != nil {
		t.Fatalf("SetPreferredQuality failed: %v", err)
	}
	if got := svc.PreferredQuality(); got != "480p" {
		t.Fatalf("PreferredQuality = %q, want 480p", got)
	}

	// A fresh service over the same filesystem sees the saved value.
	again := NewService(memfs, "cache/prefs.json")
	if got := again.PreferredQuality(); got != "480p" {
		t.Fatalf("PreferredQuality after reload = %q, want 480p", got)
	}
}

func TestCorruptFileIsIgnored(t *testing.T) {
	memfs := afero.NewMemMapFs()
	if err := afero.WriteFile(memfs, "cache/prefs.json", []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := NewService(memfs, "cache/prefs.json")
	if got := svc.PreferredQuality(); got != "" {
		t.Fatalf("PreferredQuality = %q, want empty for corrupt file", got)
	}
}
