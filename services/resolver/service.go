// Package resolver turns a content reference into a ranked list of playable
// source candidates by querying a DooPlay-style player API. Actual page
// scraping lives upstream; this service only consumes the JSON endpoint.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"farsistream/config"
	"farsistream/models"
)

var (
	ErrNetwork      = errors.New("source resolution network failure")
	ErrParse        = errors.New("source resolution parse failure")
	ErrNoCandidates = errors.New("no playable source candidates found")
)

// Service resolves playable candidates for a content ref. It performs no
// retries: retry policy belongs to the caller, and the caller only retries
// on explicit user action.
type Service struct {
	httpClient *http.Client
	baseURL    string
	maxSources int
	priority   []string
}

// playerResponse is the DooPlay v2 player API payload for one source slot.
type playerResponse struct {
	EmbedURL string `json:"embed_url"`
	Type     string `json:"type"`
}

// NewService returns a resolver backed by the configured source site. A nil
// client gets a default with the configured request timeout.
func NewService(source config.SourceSettings, playback config.PlaybackSettings, httpClient *http.Client) *Service {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(source.RequestTimeoutSec) * time.Second}
	}
	return &Service{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(source.BaseURL, "/"),
		maxSources: source.MaxSourceNumbers,
		priority:   playback.QualityPriority,
	}
}

// Resolve probes every player source slot for the ref and returns the
// candidates ranked by quality priority, mirror order preserved within a
// quality. The pageURL is logged for diagnostics only; the player API is
// keyed by the WordPress post ID carried in the ref.
func (s *Service) Resolve(ctx context.Context, ref models.ContentRef, pageURL string) ([]models.SourceCandidate, error) {
	log.Printf("[resolver] resolve start ref=%s pageURL=%q", ref, pageURL)

	dooType := "movie"
	if ref.ContentType == models.ContentTypeEpisode {
		dooType = "tv"
	}

	var (
		candidates []models.SourceCandidate
		netErr     error
		parseErr   error
	)

	for source := 1; source <= s.maxSources; source++ {
		apiURL := fmt.Sprintf("%s/wp-json/dooplayer/v2/%d/%s/%d", s.baseURL, ref.ContentID, dooType, source)

		resp, err := s.fetchSource(ctx, apiURL)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
			}
			log.Printf("[resolver] source %d fetch failed: %v", source, err)
			if errors.Is(err, ErrParse) {
				parseErr = err
			} else {
				netErr = err
			}
			continue
		}

		embed := strings.TrimSpace(resp.EmbedURL)
		if embed == "" || embed == "false" {
			// Empty slot; sites leave gaps between source numbers.
			continue
		}

		candidates = append(candidates, models.SourceCandidate{
			URL:          embed,
			QualityLabel: DetectQuality(embed),
			MirrorTag:    fmt.Sprintf("source-%d", source),
		})
	}

	if len(candidates) == 0 {
		switch {
		case netErr != nil:
			return nil, fmt.Errorf("%w: %v", ErrNetwork, netErr)
		case parseErr != nil:
			return nil, parseErr
		default:
			return nil, ErrNoCandidates
		}
	}

	Rank(candidates, s.priority)
	log.Printf("[resolver] resolved %d candidates ref=%s best=%q", len(candidates), ref, candidates[0].QualityLabel)
	return candidates, nil
}

func (s *Service) fetchSource(ctx context.Context, apiURL string) (*playerResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build player request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch player source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("player source status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload playerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode player response: %v", ErrParse, err)
	}
	return &payload, nil
}
