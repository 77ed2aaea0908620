// Package fingerprint derives a stable content digest from a track's
// title, artist, and duration, and exposes the text sanitizer it is
// built on. Both are pure functions: same input, same output, every
// process, forever.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// durationBucketSeconds is the width of the duration bucket folded into
// the fingerprint, so that trivially different duration readings
// (rounding, metadata drift) don't produce different fingerprints.
const durationBucketSeconds = 5

//nolint:gochecknoglobals // Immutable, pre-compiled regex patterns used as constants.
var (
	bracketedPattern   = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	nonAlphanumPattern = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	stopWordPatterns   = buildStopWordPatterns()
)

// stopWords are whole-word tokens stripped from titles before hashing.
// This is a policy knob: implementers may broaden or
// narrow it.
//
//nolint:gochecknoglobals // Immutable list used to build stopWordPatterns.
var stopWords = []string{
	"feat", "ft", "official", "video", "audio", "remastered", "lyrics", "hq", "hd", "high quality",
}

func buildStopWordPatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(stopWords))

	for _, word := range stopWords {
		escaped := regexp.QuoteMeta(word)
		patterns = append(patterns, regexp.MustCompile(`\b`+escaped+`\b`))
	}

	return patterns
}

// Sanitize lowercases text, strips bracketed qualifiers and stop-list
// tokens, removes punctuation, and collapses whitespace.
//
// Sanitize is idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(text string) string {
	result := strings.ToLower(text)
	result = bracketedPattern.ReplaceAllString(result, " ")

	for _, pattern := range stopWordPatterns {
		result = pattern.ReplaceAllString(result, " ")
	}

	result = nonAlphanumPattern.ReplaceAllString(result, " ")
	result = whitespacePattern.ReplaceAllString(result, " ")

	return strings.TrimSpace(result)
}

// BucketDuration rounds a duration in seconds to the nearest multiple
// of 5, matching the bucketing fingerprint uses. It is idempotent:
// bucketing an already-bucketed value is a no-op.
func BucketDuration(durationSeconds int) int {
	return ((durationSeconds + durationBucketSeconds/2) / durationBucketSeconds) * durationBucketSeconds
}

// Compute derives the 256-bit content fingerprint for a track, returned
// as a lowercase hex string. durationSeconds is optional; pass nil when
// the duration is unknown.
func Compute(title, artist string, durationSeconds *int) string {
	parts := Sanitize(title) + "|" + Sanitize(artist)
	if durationSeconds != nil {
		parts += fmt.Sprintf("|%d", BucketDuration(*durationSeconds))
	}

	sum := sha256.Sum256([]byte(parts))

	return hex.EncodeToString(sum[:])
}
