// Package matching implements duplicate-issue detection: a similarity
// scorer over issue pairs and a finder that ranks candidate duplicates.
package matching

import (
	"math"
	"time"

	"github.com/hostelops/warden/pkg/models"
	"github.com/hostelops/warden/pkg/normalizers"
)

// Weights control each signal's share of the combined score. They are
// normalized over the signals available for a given pair, so a pair
// with no description on either side is not penalized for it.
type Weights struct {
	Title       float64 // dominant: title text similarity
	Description float64 // secondary: description text similarity
	Category    float64 // binary: same category
	Location    float64 // same hostel and/or room
	Temporal    float64 // creation-time proximity
}

// DefaultWeights returns the standard signal weighting.
func DefaultWeights() Weights {
	return Weights{
		Title:       0.50,
		Description: 0.20,
		Category:    0.15,
		Location:    0.10,
		Temporal:    0.05,
	}
}

// DefaultTemporalWindow is the span beyond which the temporal signal is
// negligible. Issues a month apart are rarely the same incident.
const DefaultTemporalWindow = 30 * 24 * time.Hour

// Scorer computes a duplicate-likelihood score in [0,1] for a pair of
// issues. Pure and deterministic; Score(a,b) == Score(b,a).
type Scorer struct {
	weights Weights
	window  time.Duration
}

// NewScorer creates a Scorer with the given weights and temporal window.
// Zero values fall back to defaults.
func NewScorer(weights Weights, window time.Duration) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	if window <= 0 {
		window = DefaultTemporalWindow
	}
	return &Scorer{weights: weights, window: window}
}

// Score combines the weighted signals for the pair. Weights of signals
// that are unavailable for this pair (no text on either side, no
// location on either side) are dropped and the rest renormalized, so an
// issue scored against itself yields 1.0 whenever it has a title.
func (s *Scorer) Score(a, b *models.Issue) float64 {
	var weightedSum, totalWeight float64

	if sim, ok := s.textSignal(a.Title, b.Title); ok {
		weightedSum += sim * s.weights.Title
		totalWeight += s.weights.Title
	}

	if sim, ok := s.textSignal(a.Description, b.Description); ok {
		weightedSum += sim * s.weights.Description
		totalWeight += s.weights.Description
	}

	if a.Category == b.Category {
		weightedSum += s.weights.Category
	}
	totalWeight += s.weights.Category

	if sim, ok := locationSignal(a, b); ok {
		weightedSum += sim * s.weights.Location
		totalWeight += s.weights.Location
	}

	if sim, ok := s.temporalSignal(a.CreatedAt, b.CreatedAt); ok {
		weightedSum += sim * s.weights.Temporal
		totalWeight += s.weights.Temporal
	}

	if totalWeight == 0 {
		return 0.0
	}
	return weightedSum / totalWeight
}

// textSignal compares two free-text values. The signal is unavailable
// when neither side has text; a one-sided blank scores zero.
func (s *Scorer) textSignal(a, b string) (float64, bool) {
	na := normalizers.NormalizeText(a)
	nb := normalizers.NormalizeText(b)

	if na == "" && nb == "" {
		return 0.0, false
	}
	if na == "" || nb == "" {
		return 0.0, true
	}
	if na == nb {
		return 1.0, true
	}

	// Token overlap is robust to word reordering ("leaking tap" vs
	// "tap leaking"); edit distance catches near-identical phrasings.
	// Take whichever view finds the pair more alike.
	return math.Max(TokenOverlap(na, nb), Levenshtein(na, nb)), true
}

// locationSignal compares hostel and room. Unavailable unless both
// issues carry at least one comparable location field.
func locationSignal(a, b *models.Issue) (float64, bool) {
	var matched, compared float64

	if a.HostelName != nil && b.HostelName != nil {
		compared++
		if normalizers.NormalizeText(*a.HostelName) == normalizers.NormalizeText(*b.HostelName) {
			matched++
		}
	}
	if a.RoomNumber != nil && b.RoomNumber != nil {
		compared++
		if normalizers.NormalizeText(*a.RoomNumber) == normalizers.NormalizeText(*b.RoomNumber) {
			matched++
		}
	}

	if compared == 0 {
		return 0.0, false
	}
	return matched / compared, true
}

// temporalSignal decays exponentially with the gap between creation
// times, reaching ~6% of full weight at the window boundary.
func (s *Scorer) temporalSignal(a, b time.Time) (float64, bool) {
	if a.IsZero() || b.IsZero() {
		return 0.0, false
	}

	gap := a.Sub(b)
	if gap < 0 {
		gap = -gap
	}

	halfLife := s.window / 4
	return math.Exp(-math.Ln2 * float64(gap) / float64(halfLife)), true
}

// TokenOverlap returns the Jaccard similarity of the token sets of two
// normalized strings: |intersection| / |union| in [0,1].
func TokenOverlap(a, b string) float64 {
	ta := normalizers.Tokenize(a)
	tb := normalizers.Tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	set := make(map[string]bool, len(ta))
	for _, tok := range ta {
		set[tok] = true
	}

	union := len(set)
	intersection := 0
	seen := make(map[string]bool, len(tb))
	for _, tok := range tb {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if set[tok] {
			intersection++
		} else {
			union++
		}
	}

	return float64(intersection) / float64(union)
}

// Levenshtein returns a similarity score between 0.0 and 1.0 derived
// from the edit distance between two strings.
func Levenshtein(a, b string) float64 {
	distance := LevenshteinDistance(a, b)
	ra, rb := []rune(a), []rune(b)
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings.
func LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}

	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Two-row dynamic programming
	row := make([]int, len(rb)+1)
	prevRow := make([]int, len(rb)+1)

	for j := 0; j <= len(rb); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(rb)]
}
