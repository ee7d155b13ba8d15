package models

// SourceCandidate is one playable option for a piece of content. Candidates
// are produced once per session by the resolver and never mutated; multiple
// candidates may share a quality label (alternate mirrors).
type SourceCandidate struct {
	URL          string `json:"url"`
	QualityLabel string `json:"qualityLabel"`
	FileSizeMB   int64  `json:"fileSizeMb,omitempty"`
	MirrorTag    string `json:"mirrorTag,omitempty"`
}
