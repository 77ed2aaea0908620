// Package mapper resolves a catalog candidate lacking a downloadable
// source id into a video-platform source id and a confidence score,
// by searching the video platform and scoring token overlap against
// the candidate's title.
package mapper

import (
	"context"
	"fmt"
	"strings"

	"github.com/musicgrab/engine/internal/constants"
	"github.com/musicgrab/engine/internal/fingerprint"
	"github.com/musicgrab/engine/internal/videoclient"
)

// defaultRejectPatterns are substrings that disqualify a search result
// title as non-music content. Policy knob: callers may extend this via
// config.
//
//nolint:gochecknoglobals // Immutable default list, extended by config at construction time.
var defaultRejectPatterns = []string{
	"shorts", "news", "vlog", "unboxing", "review", "trailer", "tutorial",
	"gameplay", "podcast", "match", "highlights", "reaction", "compilation",
	"full album", "full movie",
}

// Mapper resolves catalog candidates to video-platform source ids.
type Mapper struct {
	client         *videoclient.Client
	rejectPatterns []string
}

// New builds a Mapper. extraRejectPatterns is appended to the built-in
// non-music reject list.
func New(client *videoclient.Client, extraRejectPatterns []string) *Mapper {
	patterns := make([]string, 0, len(defaultRejectPatterns)+len(extraRejectPatterns))
	patterns = append(patterns, defaultRejectPatterns...)
	patterns = append(patterns, extraRejectPatterns...)

	return &Mapper{client: client, rejectPatterns: patterns}
}

// Result is the outcome of a mapping attempt.
type Result struct {
	SourceVideoID string
	Confidence    float64
}

// Map queries the video platform for a candidate lacking a source id
// and returns the first search result that survives the filters, scored
// against the title, or a zero Result if nothing survives.
func (m *Mapper) Map(ctx context.Context, title, artist string, durationSeconds *int) (Result, error) {
	query := fmt.Sprintf("%s %s song", title, artist)

	candidates, err := m.client.Search(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("mapper: search: %w", err)
	}

	for _, candidate := range candidates {
		if !m.survives(candidate) {
			continue
		}

		confidence := TitleConfidence(title, candidate.Title)

		return Result{SourceVideoID: candidate.VideoID, Confidence: confidence}, nil
	}

	return Result{}, nil
}

func (m *Mapper) survives(candidate videoclient.SearchResult) bool {
	if candidate.IsShortForm {
		return false
	}

	if isShortFormURL(candidate.URL) {
		return false
	}

	if candidate.DurationSeconds > constants.MapperMaxDurationSeconds {
		return false
	}

	lowerTitle := strings.ToLower(candidate.Title)
	for _, pattern := range m.rejectPatterns {
		if strings.Contains(lowerTitle, pattern) {
			return false
		}
	}

	return true
}

func isShortFormURL(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), "/shorts/")
}

// TitleConfidence scores a candidate title against a target title with
// normalized Jaccard token overlap: |intersection| / |union| of the
// sanitized title's word sets. Deterministic and monotone in shared
// tokens.
func TitleConfidence(target, candidate string) float64 {
	targetTokens := tokenSet(target)
	candidateTokens := tokenSet(candidate)

	if len(targetTokens) == 0 || len(candidateTokens) == 0 {
		return 0
	}

	intersection := 0

	for token := range targetTokens {
		if _, ok := candidateTokens[token]; ok {
			intersection++
		}
	}

	union := len(targetTokens) + len(candidateTokens) - intersection

	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	sanitized := fingerprint.Sanitize(text)
	if sanitized == "" {
		return nil
	}

	tokens := strings.Fields(sanitized)
	set := make(map[string]struct{}, len(tokens))

	for _, token := range tokens {
		set[token] = struct{}{}
	}

	return set
}
