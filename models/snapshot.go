package models

// SessionSnapshot is the minimal state needed to survive process death. It
// is captured on a host "save state" event and carries sub-checkpoint
// precision; absence of a snapshot at restore means "fall back to the
// checkpoint store".
type SessionSnapshot struct {
	ContentRef   ContentRef `json:"contentRef"`
	PositionMs   int64      `json:"positionMs"`
	ActiveURL    string     `json:"activeUrl"`
	IsPlaying    bool       `json:"isPlaying"`
	QualityIndex int        `json:"qualityIndex"`
}
