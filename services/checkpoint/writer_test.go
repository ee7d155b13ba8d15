package checkpoint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"farsistream/models"
)

// fakeStore records writes and can be made slow or failing.
type fakeStore struct {
	mu      sync.Mutex
	puts    []models.Checkpoint
	delay   time.Duration
	failGet error
	failN   int // fail this many Puts before succeeding
}

func (f *fakeStore) Get(ctx context.Context, contentID int, contentType models.ContentType) (*models.Checkpoint, error) {
	return nil, f.failGet
}

func (f *fakeStore) Put(ctx context.Context, cp models.Checkpoint) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("disk unavailable")
	}
	f.puts = append(f.puts, cp)
	return nil
}

func (f *fakeStore) written() []models.Checkpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Checkpoint, len(f.puts))
	copy(out, f.puts)
	return out
}

func TestScheduleWritesAsynchronously(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, time.Second)

	w.Schedule(models.Checkpoint{ContentID: 1, ContentType: models.ContentTypeMovie, PositionMs: 10_000, DurationMs: 100_000})
	w.Wait()

	puts := store.written()
	require.Len(t, puts, 1)
	require.Equal(t, int64(10_000), puts[0].PositionMs)
	require.False(t, puts[0].Completed)
	require.False(t, puts[0].UpdatedAt.IsZero())
}

func TestScheduleDerivesCompletedAtWriteTime(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, time.Second)

	w.Schedule(models.Checkpoint{ContentID: 1, ContentType: models.ContentTypeMovie, PositionMs: 99_000, DurationMs: 100_000})
	w.Wait()

	puts := store.written()
	require.Len(t, puts, 1)
	require.True(t, puts[0].Completed)
}

func TestForceRetriesOnce(t *testing.T) {
	store := &fakeStore{failN: 1}
	w := NewWriter(store, time.Second)

	err := w.Force(context.Background(), models.Checkpoint{ContentID: 2, ContentType: models.ContentTypeEpisode, PositionMs: 5000, DurationMs: 60_000})
	require.NoError(t, err)
	require.Len(t, store.written(), 1)
}

func TestForceFallsThroughOnDeadline(t *testing.T) {
	store := &fakeStore{delay: 500 * time.Millisecond}
	w := NewWriter(store, 50*time.Millisecond)

	start := time.Now()
	err := w.Force(context.Background(), models.Checkpoint{ContentID: 3, ContentType: models.ContentTypeMovie, PositionMs: 1000, DurationMs: 60_000})
	elapsed := time.Since(start)

	require.Error(t, err)
	// The caller must be released near the deadline, not held for the full
	// store latency times the retry count.
	require.Less(t, elapsed, 400*time.Millisecond)
}
