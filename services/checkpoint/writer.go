package checkpoint

import (
	"context"
	"log"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sourcegraph/conc"

	"farsistream/models"
)

// Writer layers the two write modes over a Store. Periodic progress writes
// are fire-and-forget: a lost one costs at most one interval of progress.
// Forced writes happen at the points where the session's execution context
// is about to go away (exit, suspend, failover, destroy); they get a short
// deadline and one retry, then fall through so the user is never stalled on
// persistence.
type Writer struct {
	store    Store
	deadline time.Duration
	wg       conc.WaitGroup
}

func NewWriter(store Store, forceDeadline time.Duration) *Writer {
	if forceDeadline <= 0 {
		forceDeadline = 2 * time.Second
	}
	return &Writer{store: store, deadline: forceDeadline}
}

// normalize stamps the derived fields a write computes at write time.
func normalize(cp models.Checkpoint) models.Checkpoint {
	cp.Completed = models.IsCompleted(cp.PositionMs, cp.DurationMs)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	return cp
}

// Schedule queues an asynchronous best-effort write. Failures are logged
// and never surfaced; playback must not notice persistence trouble.
func (w *Writer) Schedule(cp models.Checkpoint) {
	cp = normalize(cp)
	w.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.deadline*2)
		defer cancel()
		if err := w.store.Put(ctx, cp); err != nil {
			log.Printf("[checkpoint] scheduled write failed ref=%s:%d: %v", cp.ContentType, cp.ContentID, err)
		}
	})
}

// Force writes synchronously within the deadline, retrying once. The error
// is returned for logging only; callers proceed past the sync point either
// way.
func (w *Writer) Force(ctx context.Context, cp models.Checkpoint) error {
	cp = normalize(cp)

	// Drain in-flight scheduled writes first so an older async write cannot
	// land after this one and roll the stored position back.
	w.wg.Wait()

	forceCtx, cancel := context.WithTimeout(ctx, w.deadline)
	defer cancel()

	err := retry.Do(
		func() error { return w.store.Put(forceCtx, cp) },
		retry.Context(forceCtx),
		retry.Attempts(2),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Printf("[checkpoint] forced write failed ref=%s:%d pos=%d: %v", cp.ContentType, cp.ContentID, cp.PositionMs, err)
	}
	return err
}

// Wait drains any scheduled writes. Called at shutdown.
func (w *Writer) Wait() {
	w.wg.Wait()
}
