package models

import "fmt"

// ContentType distinguishes the two kinds of playable content.
type ContentType string

const (
	ContentTypeMovie   ContentType = "movie"
	ContentTypeEpisode ContentType = "episode"
)

// ContentRef identifies a piece of playable content. It is immutable for the
// lifetime of a session; a request for a different ref always starts a new
// session.
type ContentRef struct {
	ContentID   int         `json:"contentId"`
	ContentType ContentType `json:"contentType"`

	// Episode-specific fields
	SeriesID      int `json:"seriesId,omitempty"`
	SeasonNumber  int `json:"seasonNumber,omitempty"`
	EpisodeNumber int `json:"episodeNumber,omitempty"`
}

// IsZero reports whether the ref identifies no content.
func (r ContentRef) IsZero() bool {
	return r.ContentID == 0 && r.ContentType == ""
}

func (r ContentRef) String() string {
	if r.ContentType == ContentTypeEpisode {
		return fmt.Sprintf("episode:%d (series %d S%02dE%02d)", r.ContentID, r.SeriesID, r.SeasonNumber, r.EpisodeNumber)
	}
	return fmt.Sprintf("%s:%d", r.ContentType, r.ContentID)
}
