// Package session owns the playback session state machine. One controller
// drives one playback instance: it resolves candidates, fails over between
// mirrors without losing position, checkpoints progress, and absorbs
// host-lifecycle and connectivity events.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"farsistream/models"
	"farsistream/services/checkpoint"
	"farsistream/services/failover"
	"farsistream/services/network"
)

// State is the controller's logical state. Transitions only happen under
// the session lock; async callbacks are epoch-checked before they apply.
type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving"
	StatePreparing State = "preparing"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateBuffering State = "buffering"
	StateSuspended State = "suspended"
	StateDestroyed State = "destroyed"
	StateError     State = "error"
)

var (
	ErrExhaustedCandidates = errors.New("all source candidates exhausted")
	ErrNoActiveSession     = errors.New("no active session")
)

// Resolver is the source resolution collaborator.
type Resolver interface {
	Resolve(ctx context.Context, ref models.ContentRef, pageURL string) ([]models.SourceCandidate, error)
}

// QualityPrefs stores the user's standing quality preference.
type QualityPrefs interface {
	PreferredQuality() string
	SetPreferredQuality(label string) error
}

// Config tunes the controller.
type Config struct {
	QualityPriority    []string
	CheckpointInterval time.Duration
}

// sessionState is the mutable core of one playback session.
type sessionState struct {
	ref          models.ContentRef
	pageURL      string
	candidates   []models.SourceCandidate
	tried        map[string]struct{}
	activeIndex  int
	positionMs   int64
	durationMs   int64
	playIntent   bool
	playbackRate float64
}

func (s *sessionState) active() models.SourceCandidate {
	return s.candidates[s.activeIndex]
}

// Controller orchestrates one playback session at a time. All transitions
// are serialized under mu; goroutines doing resolution, checkpoint writes,
// ticker ticks and connectivity callbacks re-acquire the lock and verify
// the session epoch before touching state, so a transition raced by a
// stale callback is a no-op.
type Controller struct {
	resolver Resolver
	store    checkpoint.Store
	writer   *checkpoint.Writer
	prefs    QualityPrefs
	acquire  PlayerFactory
	cfg      Config

	mu              sync.Mutex
	state           State
	sessionID       string
	epoch           uint64
	playerGen       uint64
	pendingRef      models.ContentRef
	pendingPage     string
	sess            *sessionState
	player          Player
	snapshot        *models.SessionSnapshot
	pausedByNetwork bool
	lastErr         error
	resolveCancel   context.CancelFunc
	tickerStop      chan struct{}
}

// NewController wires the controller's collaborators.
func NewController(resolver Resolver, store checkpoint.Store, writer *checkpoint.Writer, prefs QualityPrefs, acquire PlayerFactory, cfg Config) *Controller {
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 10 * time.Second
	}
	return &Controller{
		resolver: resolver,
		store:    store,
		writer:   writer,
		prefs:    prefs,
		acquire:  acquire,
		cfg:      cfg,
		state:    StateIdle,
	}
}

// OnNewPlayRequest starts a session for the ref. A request arriving while a
// session is active force-checkpoints the old session and stops its player
// before the new one proceeds. Returns the new session id.
func (c *Controller) OnNewPlayRequest(ref models.ContentRef, pageURL string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil && c.state != StateDestroyed && c.state != StateError {
		log.Printf("[session] new play request while %s, checkpointing old session ref=%s", c.state, c.sess.ref)
		c.syncPositionLocked()
		_ = c.writer.Force(context.Background(), c.checkpointLocked())
	}
	c.teardownLocked()

	c.epoch++
	epoch := c.epoch
	c.sessionID = uuid.NewString()
	c.state = StateResolving
	c.pausedByNetwork = false
	c.lastErr = nil
	c.pendingRef = ref
	c.pendingPage = pageURL

	ctx, cancel := context.WithCancel(context.Background())
	c.resolveCancel = cancel

	log.Printf("[session] resolving ref=%s session=%s", ref, c.sessionID)
	go c.runResolve(ctx, epoch, ref, pageURL)
	return c.sessionID
}

// runResolve does the network-bound work off the owner lock, then rejoins
// and applies the result if the session is still current.
func (c *Controller) runResolve(ctx context.Context, epoch uint64, ref models.ContentRef, pageURL string) {
	candidates, err := c.resolver.Resolve(ctx, ref, pageURL)

	var cp *models.Checkpoint
	if err == nil {
		var cpErr error
		cp, cpErr = c.store.Get(ctx, ref.ContentID, ref.ContentType)
		if cpErr != nil {
			log.Printf("[session] checkpoint lookup failed ref=%s: %v", ref, cpErr)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.state != StateResolving {
		// Superseded, suspended or destroyed while resolving. The state
		// check matters on its own: cancellation does not stop a resolver
		// that was already returning a result.
		return
	}

	if err != nil {
		log.Printf("[session] resolve failed ref=%s: %v", ref, err)
		c.lastErr = err
		c.state = StateError
		return
	}

	c.sess = &sessionState{
		ref:          ref,
		pageURL:      pageURL,
		candidates:   candidates,
		tried:        make(map[string]struct{}),
		playbackRate: 1,
	}

	startPos := int64(0)
	intent := true
	startIdx := -1

	if snap := c.snapshot; snap != nil && snap.ContentRef == ref {
		// A restored snapshot beats the checkpoint store: it carries the
		// exact in-flight candidate and sub-interval position.
		startPos = snap.PositionMs
		intent = snap.IsPlaying
		for i, cand := range candidates {
			if cand.URL == snap.ActiveURL {
				startIdx = i
				break
			}
		}
		c.snapshot = nil
		log.Printf("[session] resuming from snapshot pos=%dms ref=%s", startPos, ref)
	} else if cp != nil && !cp.Completed {
		startPos = cp.PositionMs
		log.Printf("[session] resuming from checkpoint pos=%dms ref=%s", startPos, ref)
	}

	if startIdx == -1 {
		startIdx = c.initialCandidateLocked(candidates)
	}
	c.prepareLocked(startIdx, startPos, intent)
}

// initialCandidateLocked picks the starting candidate: the standing quality
// preference when present among the candidates, else the highest-ranked
// (candidates arrive already ranked).
func (c *Controller) initialCandidateLocked(candidates []models.SourceCandidate) int {
	if pref := c.prefs.PreferredQuality(); pref != "" {
		for i, cand := range candidates {
			if strings.EqualFold(cand.QualityLabel, pref) {
				return i
			}
		}
	}
	return 0
}

// prepareLocked points the player at a candidate. The candidate's URL joins
// the tried set here, before any failover decision can be made for it.
func (c *Controller) prepareLocked(idx int, startPos int64, intent bool) {
	sess := c.sess
	sess.activeIndex = idx
	cand := sess.active()
	sess.tried[cand.URL] = struct{}{}
	sess.positionMs = startPos
	c.state = StatePreparing

	if c.player == nil {
		// Each acquisition gets its own generation so a late error from a
		// handle released at suspend cannot fail over the handle acquired
		// at resume. The epoch alone does not change across suspend/resume.
		epoch := c.epoch
		c.playerGen++
		gen := c.playerGen
		c.player = c.acquire(func(perr PlayerError) {
			c.handlePlayerError(epoch, gen, perr)
		})
	}

	log.Printf("[session] preparing candidate[%d] quality=%q mirror=%q pos=%dms", idx, cand.QualityLabel, cand.MirrorTag, startPos)
	if err := c.player.Prepare(cand.URL, startPos); err != nil {
		log.Printf("[session] prepare failed candidate[%d]: %v", idx, err)
		c.failoverLocked(PlayerError{Message: err.Error()})
		return
	}

	if d := c.player.Duration(); d > 0 {
		sess.durationMs = d
	}
	sess.playIntent = intent
	if intent {
		c.player.Play()
		c.state = StatePlaying
	} else {
		c.player.Pause()
		c.state = StatePaused
	}
	c.armTickerLocked()
}

// handlePlayerError is the engine's error callback, marshaled back under
// the session lock. Deliveries from a superseded session or from a handle
// that is no longer the current acquisition are dropped.
func (c *Controller) handlePlayerError(epoch, gen uint64, perr PlayerError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || gen != c.playerGen || c.sess == nil {
		return
	}
	switch c.state {
	case StatePreparing, StatePlaying, StatePaused, StateBuffering:
	default:
		return
	}
	c.failoverLocked(perr)
}

// failoverLocked routes a playback error: the active candidate is marked
// bad, its cached bytes are invalidated, and the next untried candidate is
// prepared at the pre-failure position with the pre-failure play intent.
// Exhaustion is terminal.
func (c *Controller) failoverLocked(perr PlayerError) {
	sess := c.sess
	active := sess.active()
	class := failover.Classify(perr.HTTPStatus, perr.Message)
	log.Printf("[session] playback error class=%s status=%d url=%q: %s", class, perr.HTTPStatus, active.URL, perr.Message)

	c.syncPositionLocked()
	pos := sess.positionMs
	intent := sess.playIntent

	sess.tried[active.URL] = struct{}{}
	if c.player != nil {
		c.player.Invalidate(active.URL)
	}

	next := failover.Next(sess.candidates, sess.tried)
	if next == -1 {
		log.Printf("[session] candidates exhausted ref=%s tried=%d", sess.ref, len(sess.tried))
		c.lastErr = ErrExhaustedCandidates
		c.stopTickerLocked()
		c.releasePlayerLocked()
		c.state = StateError
		c.writer.Schedule(c.checkpointLocked())
		return
	}

	// The session's execution context is about to move to a new candidate;
	// this is one of the forced persistence points.
	_ = c.writer.Force(context.Background(), c.checkpointLocked())

	log.Printf("[session] failing over to candidate[%d], resuming at %dms", next, pos)
	c.prepareLocked(next, pos, intent)
}

// SwitchQuality is the user-initiated quality change: the tried set resets
// so every mirror becomes eligible again, the position carries over, and
// the choice persists as the standing preference.
func (c *Controller) SwitchQuality(label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return ErrNoActiveSession
	}
	switch c.state {
	case StatePreparing, StatePlaying, StatePaused, StateBuffering, StateError:
	default:
		return ErrNoActiveSession
	}

	idx := -1
	for i, cand := range c.sess.candidates {
		if strings.EqualFold(cand.QualityLabel, label) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("no candidate with quality %q", label)
	}

	c.syncPositionLocked()
	pos := c.sess.positionMs
	intent := c.sess.playIntent

	c.sess.tried = make(map[string]struct{})
	c.lastErr = nil
	if err := c.prefs.SetPreferredQuality(label); err != nil {
		log.Printf("[session] persist quality preference failed: %v", err)
	}

	log.Printf("[session] quality switch to %q at %dms", label, pos)
	c.prepareLocked(idx, pos, intent)
	return nil
}

// Play resumes playback on explicit user action. This is the only way out
// of a network-induced pause.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.player == nil {
		return ErrNoActiveSession
	}
	switch c.state {
	case StatePlaying, StatePaused, StateBuffering:
	default:
		return ErrNoActiveSession
	}
	c.sess.playIntent = true
	c.pausedByNetwork = false
	c.player.Play()
	if c.state == StatePaused {
		c.state = StatePlaying
	}
	return nil
}

// Pause pauses playback on user action.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.player == nil {
		return ErrNoActiveSession
	}
	switch c.state {
	case StatePlaying, StatePaused, StateBuffering:
	default:
		return ErrNoActiveSession
	}
	c.sess.playIntent = false
	c.player.Pause()
	if c.state == StatePlaying || c.state == StateBuffering {
		c.state = StatePaused
	}
	return nil
}

// Seek moves the playhead.
func (c *Controller) Seek(positionMs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.player == nil {
		return ErrNoActiveSession
	}
	switch c.state {
	case StatePlaying, StatePaused, StateBuffering:
	default:
		return ErrNoActiveSession
	}
	if positionMs < 0 {
		positionMs = 0
	}
	c.player.Seek(positionMs)
	c.sess.positionMs = positionMs
	return nil
}

// OnBuffering maps the engine's buffering signals onto the state machine.
// Purely observational.
func (c *Controller) OnBuffering(buffering bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buffering && c.state == StatePlaying {
		c.state = StateBuffering
	} else if !buffering && c.state == StateBuffering {
		c.state = StatePlaying
	}
}

// OnBackground handles host-driven backgrounding: capture a snapshot, force
// a checkpoint write, then release the native resource.
func (c *Controller) OnBackground() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateResolving:
		if c.resolveCancel != nil {
			c.resolveCancel()
			c.resolveCancel = nil
		}
		c.state = StateSuspended
	case StatePreparing, StatePlaying, StatePaused, StateBuffering:
		c.syncPositionLocked()
		sess := c.sess
		c.snapshot = &models.SessionSnapshot{
			ContentRef:   sess.ref,
			PositionMs:   sess.positionMs,
			ActiveURL:    sess.active().URL,
			IsPlaying:    sess.playIntent,
			QualityIndex: sess.activeIndex,
		}
		_ = c.writer.Force(context.Background(), c.checkpointLocked())
		c.stopTickerLocked()
		c.releasePlayerLocked()
		c.state = StateSuspended
		log.Printf("[session] suspended at %dms ref=%s", sess.positionMs, sess.ref)
	}
}

// OnForeground re-acquires the player and resumes the suspended session at
// its snapshot position and intent. A session that was suspended mid-resolve
// has no snapshot yet; it restarts resolution for the pending ref instead.
func (c *Controller) OnForeground() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSuspended {
		return
	}
	if c.sess == nil || c.snapshot == nil {
		if c.pendingRef.IsZero() {
			return
		}
		c.epoch++
		c.state = StateResolving
		ctx, cancel := context.WithCancel(context.Background())
		c.resolveCancel = cancel
		log.Printf("[session] re-resolving after suspend ref=%s", c.pendingRef)
		go c.runResolve(ctx, c.epoch, c.pendingRef, c.pendingPage)
		return
	}
	snap := c.snapshot
	c.snapshot = nil

	idx := snap.QualityIndex
	if idx < 0 || idx >= len(c.sess.candidates) || c.sess.candidates[idx].URL != snap.ActiveURL {
		idx = 0
		for i, cand := range c.sess.candidates {
			if cand.URL == snap.ActiveURL {
				idx = i
				break
			}
		}
	}
	log.Printf("[session] resuming from suspend at %dms ref=%s", snap.PositionMs, c.sess.ref)
	c.prepareLocked(idx, snap.PositionMs, snap.IsPlaying)
}

// OnDestroy ends the session: forced checkpoint, resource release, state
// cleared. Safe to call on any state, including repeatedly.
func (c *Controller) OnDestroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil && c.state != StateDestroyed {
		c.syncPositionLocked()
		_ = c.writer.Force(context.Background(), c.checkpointLocked())
	}
	c.teardownLocked()
	c.snapshot = nil
	c.state = StateDestroyed
	log.Printf("[session] destroyed session=%s", c.sessionID)
}

// OnSaveState captures the minimal state for process-death recovery. The
// host owns the returned snapshot; it may never come back.
func (c *Controller) OnSaveState() *models.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil {
		snap := *c.snapshot
		return &snap
	}
	if c.sess == nil {
		return nil
	}
	switch c.state {
	case StatePreparing, StatePlaying, StatePaused, StateBuffering:
	default:
		return nil
	}
	c.syncPositionLocked()
	sess := c.sess
	return &models.SessionSnapshot{
		ContentRef:   sess.ref,
		PositionMs:   sess.positionMs,
		ActiveURL:    sess.active().URL,
		IsPlaying:    sess.playIntent,
		QualityIndex: sess.activeIndex,
	}
}

// OnRestoreState hands a previously saved snapshot back to the controller.
// The next play request for the same ref resumes from it instead of the
// checkpoint store.
func (c *Controller) OnRestoreState(snap models.SessionSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = &snap
}

// WatchConnectivity subscribes to a monitor for the controller's lifetime.
// Loss while playing pauses; restoration never auto-resumes.
func (c *Controller) WatchConnectivity(m network.Monitor) {
	go func() {
		for ev := range m.Events() {
			c.mu.Lock()
			switch ev {
			case network.EventLost:
				if c.state == StatePlaying || c.state == StateBuffering {
					if c.player != nil {
						c.player.Pause()
					}
					c.state = StatePaused
					c.pausedByNetwork = true
					log.Printf("[session] connectivity lost, playback paused")
				}
			case network.EventRestored:
				// Deliberate: resuming is left to the user, who may be
				// mid-failover or no longer watching.
				log.Printf("[session] connectivity restored, awaiting user action")
			}
			c.mu.Unlock()
		}
	}()
}

// Status is a read-only view for the API layer.
type Status struct {
	SessionID       string             `json:"sessionId,omitempty"`
	State           State              `json:"state"`
	ContentRef      *models.ContentRef `json:"contentRef,omitempty"`
	PositionMs      int64              `json:"positionMs"`
	DurationMs      int64              `json:"durationMs"`
	IsPlaying       bool               `json:"isPlaying"`
	PlaybackRate    float64            `json:"playbackRate"`
	QualityLabel    string             `json:"qualityLabel,omitempty"`
	ActiveURL       string             `json:"activeUrl,omitempty"`
	CandidateCount  int                `json:"candidateCount"`
	TriedCount      int                `json:"triedCount"`
	PausedByNetwork bool               `json:"pausedByNetwork"`
	Error           string             `json:"error,omitempty"`
}

// Status reports the current session state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{SessionID: c.sessionID, State: c.state, PausedByNetwork: c.pausedByNetwork}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
	}
	if c.sess == nil {
		return st
	}
	c.syncPositionLocked()
	sess := c.sess
	ref := sess.ref
	st.ContentRef = &ref
	st.PositionMs = sess.positionMs
	st.DurationMs = sess.durationMs
	st.IsPlaying = c.state == StatePlaying || c.state == StateBuffering
	st.PlaybackRate = sess.playbackRate
	st.CandidateCount = len(sess.candidates)
	st.TriedCount = len(sess.tried)
	if sess.activeIndex >= 0 && sess.activeIndex < len(sess.candidates) {
		st.QualityLabel = sess.active().QualityLabel
		st.ActiveURL = sess.active().URL
	}
	return st
}

// syncPositionLocked pulls the live position and duration from the player
// into the session state.
func (c *Controller) syncPositionLocked() {
	if c.player == nil || c.sess == nil {
		return
	}
	switch c.state {
	case StatePlaying, StatePaused, StateBuffering:
		if p := c.player.CurrentPosition(); p >= 0 {
			c.sess.positionMs = p
		}
		if d := c.player.Duration(); d > 0 {
			c.sess.durationMs = d
		}
	}
}

func (c *Controller) checkpointLocked() models.Checkpoint {
	sess := c.sess
	quality := ""
	if sess.activeIndex >= 0 && sess.activeIndex < len(sess.candidates) {
		quality = sess.active().QualityLabel
	}
	return models.Checkpoint{
		ContentID:    sess.ref.ContentID,
		ContentType:  sess.ref.ContentType,
		PositionMs:   sess.positionMs,
		DurationMs:   sess.durationMs,
		QualityLabel: quality,
	}
}

// armTickerLocked starts the periodic checkpoint timer for this session.
// It is cancelled on every transition out of Playing/Paused and re-armed on
// entry; a timer outliving its session is the leak class this guards.
func (c *Controller) armTickerLocked() {
	if c.tickerStop != nil {
		return
	}
	stop := make(chan struct{})
	c.tickerStop = stop
	epoch := c.epoch
	interval := c.cfg.CheckpointInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.periodicTick(epoch)
			}
		}
	}()
}

func (c *Controller) periodicTick(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.sess == nil || c.state != StatePlaying {
		return
	}
	c.syncPositionLocked()
	c.writer.Schedule(c.checkpointLocked())
}

func (c *Controller) stopTickerLocked() {
	if c.tickerStop != nil {
		close(c.tickerStop)
		c.tickerStop = nil
	}
}

// releasePlayerLocked clears the owned handle slot; releasing an absent
// handle is a no-op so overlapping suspend/destroy/error paths are safe.
func (c *Controller) releasePlayerLocked() {
	if c.player != nil {
		c.player.Release()
		c.player = nil
	}
}

// teardownLocked cancels async work, stops the timer, releases the player
// and clears the session state. Bumping the epoch here invalidates every
// outstanding callback, including a resolve that completes after its
// context was cancelled.
func (c *Controller) teardownLocked() {
	c.epoch++
	c.stopTickerLocked()
	if c.resolveCancel != nil {
		c.resolveCancel()
		c.resolveCancel = nil
	}
	c.releasePlayerLocked()
	c.sess = nil
	c.pendingRef = models.ContentRef{}
	c.pendingPage = ""
}
