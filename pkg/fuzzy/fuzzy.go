// Package fuzzy scores how likely two track descriptions refer to the same
// recording. Text similarity is a token-set containment ratio over
// normalized titles and artists; the overall match score is dominated by
// ISRC presence, with text and duration as corroborating signals.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	featRegex       = regexp.MustCompile(`(?i)\s*[(\[](?:feat\.?|ft\.?|featuring)\s[^)\]]*[)\]]?\s*$`)
	separatorRegex  = regexp.MustCompile(`[()\[\]{}\-_.]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Scoring policy. These constants are load-bearing compatibility values:
// an ISRC match alone nearly clears the acceptance bar, while a perfect
// text-and-duration match without ISRC tops out at 0.25 and is always
// rejected.
const (
	ISRCWeight     = 0.8
	TitleWeight    = 0.12
	ArtistWeight   = 0.08
	DurationWeight = 0.05

	// AcceptThreshold is the confidence floor a hit must clear to survive
	// reconciliation.
	AcceptThreshold = 0.9

	// MinISRCLength guards against truncated or placeholder codes; real
	// ISRCs are 12 characters.
	MinISRCLength = 8

	// durationToleranceMS is the maximum difference between two known
	// durations still counted as agreement.
	durationToleranceMS = 2000
)

// Candidate is the scoring-input shape shared by the query side and the
// provider-hit side.
type Candidate struct {
	Title      string
	Artist     string
	ISRC       string
	DurationMS int
}

// Normalize lowercases, folds accents, strips a trailing featuring
// parenthetical, turns bracket/hyphen/underscore/period separators into
// spaces and collapses whitespace.
func Normalize(s string) string {
	s = norm.NFKD.String(s)

	var folded strings.Builder
	for _, r := range s {
		if !unicode.IsMark(r) {
			folded.WriteRune(r)
		}
	}

	s = strings.ToLower(folded.String())
	s = featRegex.ReplaceAllString(s, "")
	s = separatorRegex.ReplaceAllString(s, " ")
	s = whitespaceRegex.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// Similarity returns the token-set containment ratio of the two normalized
// strings in [0,1]: intersection size over the larger token set. Returns 0
// when either side normalizes to nothing.
func Similarity(a, b string) float64 {
	tokensA := tokenSet(Normalize(a))
	tokensB := tokenSet(Normalize(b))

	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	larger := len(tokensA)
	if len(tokensB) > larger {
		larger = len(tokensB)
	}

	shared := 0
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			shared++
		}
	}

	return float64(shared) / float64(larger)
}

func tokenSet(normalized string) map[string]struct{} {
	if normalized == "" {
		return nil
	}

	set := make(map[string]struct{})
	for _, token := range strings.Fields(normalized) {
		set[token] = struct{}{}
	}
	return set
}

// ScoreMatch computes the confidence that hit refers to the same recording
// as query, as a weighted sum capped at 1.0.
func ScoreMatch(query, hit Candidate) float64 {
	score := 0.0

	if len(hit.ISRC) >= MinISRCLength {
		score += ISRCWeight
	}

	score += Similarity(query.Title, hit.Title) * TitleWeight
	score += Similarity(query.Artist, hit.Artist) * ArtistWeight

	if query.DurationMS > 0 && hit.DurationMS > 0 {
		diff := query.DurationMS - hit.DurationMS
		if diff < 0 {
			diff = -diff
		}
		if diff <= durationToleranceMS {
			score += DurationWeight
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
