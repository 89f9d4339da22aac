package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hostelops/warden/pkg/models"
)

func strPtr(s string) *string { return &s }

func testIssue(title, description string, category models.IssueCategory, created time.Time) *models.Issue {
	return &models.Issue{
		ID:          "issue-1",
		Title:       title,
		Description: description,
		Category:    category,
		CreatedAt:   created,
	}
}

func TestScorer_Score_IdenticalIssues(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), DefaultTemporalWindow)
	now := time.Now()

	issue := testIssue("Broken shower in room 12", "No hot water at all", models.CategoryMaintenance, now)
	issue.HostelName = strPtr("North Wing")
	issue.RoomNumber = strPtr("12")

	assert.Equal(t, 1.0, scorer.Score(issue, issue))
}

func TestScorer_Score_Symmetric(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), DefaultTemporalWindow)
	now := time.Now()

	a := testIssue("Leaking tap in room 204", "Water dripping constantly", models.CategoryMaintenance, now)
	b := testIssue("Tap leaking, room 204", "", models.CategoryMaintenance, now.Add(24*time.Hour))

	assert.Equal(t, scorer.Score(a, b), scorer.Score(b, a))
}

func TestScorer_Score_RewordedTitleSameCategory(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), DefaultTemporalWindow)
	now := time.Now()

	a := testIssue("Leaking tap in room 204", "", models.CategoryMaintenance, now)
	b := testIssue("Tap leaking, room 204", "", models.CategoryMaintenance, now.Add(24*time.Hour))

	score := scorer.Score(a, b)
	assert.Greater(t, score, 0.7, "reworded duplicates should score high")
	assert.LessOrEqual(t, score, 1.0)
}

func TestScorer_Score_UnrelatedIssues(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), DefaultTemporalWindow)
	now := time.Now()

	a := testIssue("Wifi not working on third floor", "", models.CategoryOther, now)
	b := testIssue("Cold breakfast served late", "", models.CategoryFood, now.Add(-20*24*time.Hour))

	assert.Less(t, scorer.Score(a, b), 0.3)
}

func TestScorer_Score_CategoryMismatchLowersScore(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), DefaultTemporalWindow)
	now := time.Now()

	a := testIssue("Broken lock on main door", "", models.CategorySecurity, now)
	same := testIssue("Broken lock on main door", "", models.CategorySecurity, now)
	other := testIssue("Broken lock on main door", "", models.CategoryMaintenance, now)

	assert.Greater(t, scorer.Score(a, same), scorer.Score(a, other))
}

func TestScorer_Score_MissingDescriptionNotPenalized(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), DefaultTemporalWindow)
	now := time.Now()

	a := testIssue("Mould on bathroom ceiling", "", models.CategoryCleanliness, now)
	b := testIssue("Mould on bathroom ceiling", "", models.CategoryCleanliness, now)

	// Identical pair with no descriptions still scores a full match.
	assert.Equal(t, 1.0, scorer.Score(a, b))
}

func TestScorer_Score_OneSidedDescriptionScoresZeroSignal(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), DefaultTemporalWindow)
	now := time.Now()

	a := testIssue("Mould on bathroom ceiling", "Black spots spreading", models.CategoryCleanliness, now)
	b := testIssue("Mould on bathroom ceiling", "", models.CategoryCleanliness, now)

	assert.Less(t, scorer.Score(a, b), 1.0)
	assert.Greater(t, scorer.Score(a, b), 0.7)
}

func TestScorer_Score_LocationMatch(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), DefaultTemporalWindow)
	now := time.Now()

	a := testIssue("Noisy radiator", "", models.CategoryMaintenance, now)
	a.HostelName = strPtr("East Block")
	a.RoomNumber = strPtr("31")

	sameRoom := testIssue("Radiator making noise", "", models.CategoryMaintenance, now)
	sameRoom.HostelName = strPtr("east block")
	sameRoom.RoomNumber = strPtr("31")

	otherRoom := testIssue("Radiator making noise", "", models.CategoryMaintenance, now)
	otherRoom.HostelName = strPtr("East Block")
	otherRoom.RoomNumber = strPtr("7")

	assert.Greater(t, scorer.Score(a, sameRoom), scorer.Score(a, otherRoom))
}

func TestScorer_Score_TemporalDecay(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), DefaultTemporalWindow)
	now := time.Now()

	a := testIssue("Elevator stuck between floors", "", models.CategoryMaintenance, now)
	recent := testIssue("Elevator stuck between floors", "", models.CategoryMaintenance, now.Add(2*time.Hour))
	stale := testIssue("Elevator stuck between floors", "", models.CategoryMaintenance, now.Add(25*24*time.Hour))

	assert.Greater(t, scorer.Score(a, recent), scorer.Score(a, stale))
}

func TestScorer_Score_EmptyIssues(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), DefaultTemporalWindow)

	a := &models.Issue{Category: models.CategoryOther}
	b := &models.Issue{Category: models.CategoryOther}

	// Only the category signal is available.
	assert.Equal(t, 1.0, scorer.Score(a, b))
}

func TestNewScorer_Defaults(t *testing.T) {
	scorer := NewScorer(Weights{}, 0)

	assert.Equal(t, DefaultWeights(), scorer.weights)
	assert.Equal(t, DefaultTemporalWindow, scorer.window)
}

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical", "leaking tap", "leaking tap", 1.0},
		{"reordered", "leaking tap room", "room tap leaking", 1.0},
		{"partial", "leaking tap", "leaking pipe", 1.0 / 3.0},
		{"disjoint", "wifi down", "cold food", 0.0},
		{"empty", "", "leaking tap", 0.0},
		{"repeated tokens", "tap tap tap", "tap", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, TokenOverlap(tt.a, tt.b), 0.0001)
		})
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected int
	}{
		{"identical", "kitten", "kitten", 0},
		{"classic", "kitten", "sitting", 3},
		{"empty left", "", "abc", 3},
		{"empty right", "abc", "", 3},
		{"unicode", "café", "cafe", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LevenshteinDistance(tt.a, tt.b))
		})
	}
}

func TestLevenshtein_Similarity(t *testing.T) {
	assert.Equal(t, 1.0, Levenshtein("", ""))
	assert.Equal(t, 1.0, Levenshtein("same", "same"))
	assert.InDelta(t, 1.0-3.0/7.0, Levenshtein("kitten", "sitting"), 0.0001)
}
