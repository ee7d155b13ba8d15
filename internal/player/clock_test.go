package player

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"farsistream/services/session"
)

func newTestServer(failing *atomic.Bool, durationSecs string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing != nil && failing.Load() {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if durationSecs != "" {
			w.Header().Set("X-Content-Duration", durationSecs)
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	}))
}

func newPlayer(t *testing.T, srv *httptest.Server, probeInterval time.Duration, onError func(session.PlayerError)) session.Player {
	t.Helper()
	if onError == nil {
		onError = func(session.PlayerError) {}
	}
	factory := Factory(Options{Client: srv.Client(), ProbeInterval: probeInterval})
	return factory(onError)
}

func TestPrepareValidatesStream(t *testing.T) {
	srv := newTestServer(nil, "120.5")
	defer srv.Close()

	p := newPlayer(t, srv, 0, nil)
	defer p.Release()

	if err := p.Prepare(srv.URL, 5000); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if got := p.CurrentPosition(); got != 5000 {
		t.Fatalf("position after prepare = %d, want 5000", got)
	}
	if got := p.Duration(); got != 120_500 {
		t.Fatalf("duration = %d, want 120500 from stream header", got)
	}
	if p.IsPlaying() {
		t.Fatal("playing before Play")
	}
}

func TestPrepareRejectsFailingStream(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv := newTestServer(&failing, "")
	defer srv.Close()

	p := newPlayer(t, srv, 0, nil)
	defer p.Release()

	if err := p.Prepare(srv.URL, 0); err == nil {
		t.Fatal("Prepare succeeded against a 403 stream")
	}
}

func TestClockAdvancesOnlyWhilePlaying(t *testing.T) {
	srv := newTestServer(nil, "")
	defer srv.Close()

	p := newPlayer(t, srv, 0, nil)
	defer p.Release()

	if err := p.Prepare(srv.URL, 1000); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	p.Play()
	time.Sleep(60 * time.Millisecond)
	p.Pause()

	pos := p.CurrentPosition()
	if pos < 1040 || pos > 2000 {
		t.Fatalf("position after ~60ms of playback = %d, want roughly 1060", pos)
	}

	time.Sleep(60 * time.Millisecond)
	if got := p.CurrentPosition(); got != pos {
		t.Fatalf("position advanced while paused: %d -> %d", pos, got)
	}
}

func TestSeekMovesPlayhead(t *testing.T) {
	srv := newTestServer(nil, "")
	defer srv.Close()

	p := newPlayer(t, srv, 0, nil)
	defer p.Release()

	if err := p.Prepare(srv.URL, 0); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	p.Seek(30_000)
	if got := p.CurrentPosition(); got != 30_000 {
		t.Fatalf("position after seek = %d, want 30000", got)
	}
}

func TestWatchdogReportsStreamFailure(t *testing.T) {
	var failing atomic.Bool
	srv := newTestServer(&failing, "")
	defer srv.Close()

	errs := make(chan session.PlayerError, 1)
	p := newPlayer(t, srv, 15*time.Millisecond, func(perr session.PlayerError) {
		select {
		case errs <- perr:
		default:
		}
	})
	defer p.Release()

	if err := p.Prepare(srv.URL, 0); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	p.Play()
	failing.Store(true)

	select {
	case perr := <-errs:
		if perr.HTTPStatus != http.StatusForbidden {
			t.Fatalf("reported status = %d, want 403", perr.HTTPStatus)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never reported the failing stream")
	}
}

func TestReleaseStopsWatchdog(t *testing.T) {
	var failing atomic.Bool
	srv := newTestServer(&failing, "")
	defer srv.Close()

	var reports atomic.Int32
	p := newPlayer(t, srv, 15*time.Millisecond, func(session.PlayerError) {
		reports.Add(1)
	})

	if err := p.Prepare(srv.URL, 0); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	p.Release()
	failing.Store(true)

	time.Sleep(80 * time.Millisecond)
	if got := reports.Load(); got != 0 {
		t.Fatalf("watchdog reported %d errors after Release", got)
	}
}
