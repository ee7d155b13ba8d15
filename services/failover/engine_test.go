package failover

import (
	"testing"

	"farsistream/models"
)

func candidates(urls ...string) []models.SourceCandidate {
	out := make([]models.SourceCandidate, 0, len(urls))
	for _, u := range urls {
		out = append(out, models.SourceCandidate{URL: u, QualityLabel: "720p"})
	}
	return out
}

func TestNextPreservesRankedOrder(t *testing.T) {
	cands := candidates("a", "b", "c")
	tried := map[string]struct{}{}

	var attempted []string
	for {
		idx := Next(cands, tried)
		if idx == -1 {
			break
		}
		attempted = append(attempted, cands[idx].URL)
		tried[cands[idx].URL] = struct{}{}
	}

	want := []string{"a", "b", "c"}
	if len(attempted) != len(want) {
		t.Fatalf("attempted %d candidates, want %d", len(attempted), len(want))
	}
	for i := range want {
		if attempted[i] != want[i] {
			t.Fatalf("attempt %d was %q, want %q", i, attempted[i], want[i])
		}
	}
}

func TestNextSkipsTriedNeverRetries(t *testing.T) {
	cands := candidates("a", "b", "c")
	tried := map[string]struct{}{"a": {}, "c": {}}

	idx := Next(cands, tried)
	if idx != 1 {
		t.Fatalf("Next = %d, want 1 (candidate b)", idx)
	}
}

func TestNextRestartsFromTopAfterReset(t *testing.T) {
	cands := candidates("hi-1", "hi-2", "lo-1")
	tried := map[string]struct{}{"hi-1": {}, "hi-2": {}, "lo-1": {}}

	if !Exhausted(cands, tried) {
		t.Fatal("expected exhausted before reset")
	}

	// A quality switch clears the tried set; the search must restart at the
	// highest-ranked candidate, not the index after the last failure.
	tried = map[string]struct{}{}
	if idx := Next(cands, tried); idx != 0 {
		t.Fatalf("Next after reset = %d, want 0", idx)
	}
}

func TestNextEmptyCandidates(t *testing.T) {
	if idx := Next(nil, map[string]struct{}{}); idx != -1 {
		t.Fatalf("Next on empty list = %d, want -1", idx)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		message string
		want    ErrorClass
	}{
		{"forbidden", 403, "http 403", ErrorClassHTTP},
		{"server error", 502, "bad gateway", ErrorClassHTTP},
		{"decoder", 0, "video decoder init failed", ErrorClassDecode},
		{"codec", 0, "unsupported codec", ErrorClassDecode},
		{"unknown", 0, "source error", ErrorClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.status, tc.message); got != tc.want {
				t.Fatalf("Classify(%d, %q) = %q, want %q", tc.status, tc.message, got, tc.want)
			}
		})
	}
}
