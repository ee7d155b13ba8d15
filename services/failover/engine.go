// Package failover decides which source candidate to try next after a
// playback error. It is pure logic over the ranked candidate list produced
// at resolve time; the session controller owns the tried set and all side
// effects.
package failover

import (
	"strings"

	"farsistream/models"
)

// ErrorClass buckets player errors for logging and routing. Every class
// marks the failing candidate as tried; the distinction only matters for
// diagnostics and cache invalidation.
type ErrorClass string

const (
	ErrorClassHTTP    ErrorClass = "http"
	ErrorClassDecode  ErrorClass = "decode"
	ErrorClassUnknown ErrorClass = "unknown"
)

// Classify maps a player error callback payload onto an error class.
// HTTP 4xx/5xx from the transport layer means the candidate itself is bad;
// decode failures and everything else get the same failover treatment.
func Classify(httpStatus int, message string) ErrorClass {
	if httpStatus >= 400 {
		return ErrorClassHTTP
	}
	lower := strings.ToLower(message)
	if strings.Contains(lower, "decode") || strings.Contains(lower, "decoder") || strings.Contains(lower, "codec") {
		return ErrorClassDecode
	}
	return ErrorClassUnknown
}

// Next returns the first candidate in ranked order whose URL has not been
// tried, or -1 when every candidate is exhausted. Ranked order encodes
// quality-then-preference from resolve time, so a quality switch that
// clears the tried set restarts the search from the top of the list rather
// than from "current index plus one".
func Next(candidates []models.SourceCandidate, tried map[string]struct{}) int {
	for i, c := range candidates {
		if _, ok := tried[c.URL]; !ok {
			return i
		}
	}
	return -1
}

// Exhausted reports whether no untried candidate remains.
func Exhausted(candidates []models.SourceCandidate, tried map[string]struct{}) bool {
	return Next(candidates, tried) == -1
}
