// Package player provides the headless playback engine behind the HTTP API.
// It decodes nothing: Prepare validates that the stream URL actually serves
// bytes, and the playhead advances by wall clock while playing. A watchdog
// re-probes the active URL in the background and reports transport failures
// through the session's asynchronous error callback, which is what drives
// mirror failover at runtime.
package player

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"farsistream/services/session"
)

const validationTTL = 5 * time.Minute

// Options tunes the engine. The zero value is usable.
type Options struct {
	Client        *http.Client
	ProbeInterval time.Duration // watchdog cadence; 0 disables the watchdog
	// DefaultDurationMs is reported when the stream does not advertise a
	// duration header.
	DefaultDurationMs int64
}

// Factory adapts the engine to the session controller's acquisition hook.
func Factory(opts Options) session.PlayerFactory {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(onError func(session.PlayerError)) session.Player {
		return &ClockPlayer{
			client:     opts.Client,
			probeEvery: opts.ProbeInterval,
			defaultDur: opts.DefaultDurationMs,
			onError:    onError,
			validated:  make(map[string]time.Time),
		}
	}
}

// ClockPlayer is one engine handle. The session controller owns it from
// Prepare through Release.
type ClockPlayer struct {
	client     *http.Client
	probeEvery time.Duration
	defaultDur int64
	onError    func(session.PlayerError)

	mu        sync.Mutex
	url       string
	baseMs    int64     // playhead at the moment the clock last started or stopped
	startedAt time.Time // zero while paused
	durMs     int64
	validated map[string]time.Time
	watchStop chan struct{}
	released  bool
}

var _ session.Player = (*ClockPlayer)(nil)

func (p *ClockPlayer) Prepare(url string, startPositionMs int64) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return fmt.Errorf("player already released")
	}
	needProbe := time.Since(p.validated[url]) > validationTTL
	p.mu.Unlock()

	durMs := p.defaultDur
	if needProbe {
		probedDur, err := p.probe(url)
		if err != nil {
			return err
		}
		if probedDur > 0 {
			durMs = probedDur
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopWatchdogLocked()
	p.url = url
	p.baseMs = startPositionMs
	p.startedAt = time.Time{}
	p.durMs = durMs
	p.validated[url] = time.Now()
	p.startWatchdogLocked(url)
	return nil
}

// probe issues a one-byte ranged request. A stream that cannot serve the
// first byte cannot serve playback either.
func (p *ClockPlayer) probe(url string) (int64, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("http %d from stream", resp.StatusCode)
	}
	if v := resp.Header.Get("X-Content-Duration"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return int64(secs * 1000), nil
		}
	}
	return 0, nil
}

func (p *ClockPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released || !p.startedAt.IsZero() {
		return
	}
	p.startedAt = time.Now()
}

func (p *ClockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.foldClockLocked()
}

func (p *ClockPlayer) Seek(positionMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	playing := !p.startedAt.IsZero()
	p.baseMs = positionMs
	if playing {
		p.startedAt = time.Now()
	}
}

func (p *ClockPlayer) CurrentPosition() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *ClockPlayer) Duration() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.durMs
}

func (p *ClockPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.startedAt.IsZero()
}

// Invalidate drops the URL's probe validation so the next Prepare re-checks
// it instead of trusting a cached result from before the failure.
func (p *ClockPlayer) Invalidate(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.validated, url)
}

func (p *ClockPlayer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return
	}
	p.foldClockLocked()
	p.stopWatchdogLocked()
	p.released = true
}

// foldClockLocked freezes the playhead at its current value.
func (p *ClockPlayer) foldClockLocked() {
	p.baseMs = p.positionLocked()
	p.startedAt = time.Time{}
}

func (p *ClockPlayer) positionLocked() int64 {
	pos := p.baseMs
	if !p.startedAt.IsZero() {
		pos += time.Since(p.startedAt).Milliseconds()
	}
	if p.durMs > 0 && pos > p.durMs {
		pos = p.durMs
	}
	return pos
}

func (p *ClockPlayer) startWatchdogLocked(url string) {
	if p.probeEvery <= 0 {
		return
	}
	stop := make(chan struct{})
	p.watchStop = stop
	go p.watch(url, stop)
}

func (p *ClockPlayer) stopWatchdogLocked() {
	if p.watchStop != nil {
		close(p.watchStop)
		p.watchStop = nil
	}
}

// watch re-probes the active URL until the stream fails or the handle moves
// on. One failure report is enough: the controller reacts by preparing a
// different candidate or releasing the handle.
func (p *ClockPlayer) watch(url string, stop chan struct{}) {
	ticker := time.NewTicker(p.probeEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			req, err := http.NewRequest(http.MethodGet, url, nil)
			if err != nil {
				return
			}
			req.Header.Set("Range", "bytes=0-0")
			resp, err := p.client.Do(req)
			if err != nil {
				p.onError(session.PlayerError{Message: fmt.Sprintf("stream unreachable: %v", err)})
				return
			}
			status := resp.StatusCode
			resp.Body.Close()
			if status >= 400 {
				p.onError(session.PlayerError{HTTPStatus: status, Message: fmt.Sprintf("http %d from stream", status)})
				return
			}
		}
	}
}
