package models

import "time"

// CompletedThreshold is the watched fraction at which content counts as
// finished. A later session start for completed content restarts from zero
// instead of resuming.
const CompletedThreshold = 0.95

// Checkpoint is the durably persisted last-known playback position for one
// content item. One row per (ContentID, ContentType); writes are
// last-write-wins.
type Checkpoint struct {
	ContentID    int         `json:"contentId"`
	ContentType  ContentType `json:"contentType"`
	PositionMs   int64       `json:"positionMs"`
	DurationMs   int64       `json:"durationMs"`
	QualityLabel string      `json:"qualityLabel,omitempty"`
	Completed    bool        `json:"completed"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// IsCompleted reports whether a position counts as having finished the
// content. Computed at write time; the stored flag is sticky, it is never
// re-derived from an older position.
func IsCompleted(positionMs, durationMs int64) bool {
	if durationMs <= 0 {
		return false
	}
	return float64(positionMs)/float64(durationMs) >= CompletedThreshold
}
