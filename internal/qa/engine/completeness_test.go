package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeLot(id string, amount string) LotSignals {
	return LotSignals{
		LotID:              id,
		LotNumber:          "LOT-" + id,
		Amount:             decimal.RequireFromString(amount),
		ITPItemsTotal:      12,
		ITPItemsCompleted:  12,
		TestsTotal:         4,
		TestsPassed:        4,
		HoldPointsTotal:    2,
		HoldPointsReleased: 2,
		NCRsTotal:          1,
		NCRsClosed:         1,
		PhotoCount:         5,
	}
}

func TestScoreLot_Complete(t *testing.T) {
	lc, err := ScoreLot(completeLot("1", "1000"))
	require.NoError(t, err)
	assert.Equal(t, 100, lc.Score)
	assert.Empty(t, lc.Issues)
	assert.Equal(t, RecommendInclude, lc.Recommendation)
}

func TestScoreLot_EmptyCategoriesCountAsComplete(t *testing.T) {
	lc, err := ScoreLot(LotSignals{LotID: "bare", PhotoCount: 3})
	require.NoError(t, err)
	assert.Equal(t, 100, lc.Score)
	assert.Equal(t, RecommendInclude, lc.Recommendation)
}

func TestScoreLot_FailedTestForcesExclude(t *testing.T) {
	s := completeLot("1", "1000")
	s.TestsTotal = 20
	s.TestsPassed = 19
	s.TestsFailed = 1

	lc, err := ScoreLot(s)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, lc.Score, IncludeScoreThreshold, "score stays high")
	assert.Equal(t, RecommendExclude, lc.Recommendation)
	require.Len(t, lc.Issues, 1)
	assert.Equal(t, "failed_tests", lc.Issues[0].Type)
	assert.Equal(t, IssueCritical, lc.Issues[0].Severity)
}

func TestScoreLot_UnreleasedHoldPointIsCritical(t *testing.T) {
	s := completeLot("1", "1000")
	s.HoldPointsReleased = 1

	lc, err := ScoreLot(s)
	require.NoError(t, err)
	assert.Equal(t, RecommendExclude, lc.Recommendation)
	assert.Equal(t, "unreleased_hold_points", lc.Issues[0].Type)
}

func TestScoreLot_WarningsKeepHighScoreIncluded(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*LotSignals)
		issue  string
		sev    IssueSeverity
	}{
		{"pending test", func(s *LotSignals) { s.TestsPassed = 3; s.TestsPending = 1 }, "pending_tests", IssueWarning},
		{"open ncr", func(s *LotSignals) { s.NCRsTotal = 2; s.OpenMajorNCRs = 1 }, "open_ncrs", IssueWarning},
		{"incomplete itp", func(s *LotSignals) { s.ITPItemsCompleted = 11 }, "incomplete_itp", IssueWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := completeLot("1", "1000")
			tt.mutate(&s)
			lc, err := ScoreLot(s)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, lc.Score, IncludeScoreThreshold)
			assert.Equal(t, RecommendInclude, lc.Recommendation)
			require.NotEmpty(t, lc.Issues)
			assert.Equal(t, tt.issue, lc.Issues[0].Type)
			assert.Equal(t, tt.sev, lc.Issues[0].Severity)
		})
	}
}

func TestScoreLot_NoPhotosIsInfoOnly(t *testing.T) {
	s := completeLot("1", "1000")
	s.PhotoCount = 0

	lc, err := ScoreLot(s)
	require.NoError(t, err)
	assert.Equal(t, 90, lc.Score)
	require.Len(t, lc.Issues, 1)
	assert.Equal(t, IssueInfo, lc.Issues[0].Severity)
	assert.Equal(t, RecommendInclude, lc.Recommendation)
}

func TestScoreLot_LowScoreReview(t *testing.T) {
	s := LotSignals{LotID: "1", PhotoCount: 0, ITPItemsTotal: 10, ITPItemsCompleted: 0}
	lc, err := ScoreLot(s)
	require.NoError(t, err)
	assert.Equal(t, 60, lc.Score)
	assert.Equal(t, RecommendReview, lc.Recommendation)

	// warnings below the threshold still review
	w := completeLot("2", "500")
	w.ITPItemsCompleted = 0
	w.TestsPassed = 3
	w.TestsPending = 1
	lc, err = ScoreLot(w)
	require.NoError(t, err)
	assert.Equal(t, 64, lc.Score)
	assert.Equal(t, RecommendReview, lc.Recommendation)
}

func TestScoreLot_Malformed(t *testing.T) {
	_, err := ScoreLot(LotSignals{LotID: "1", PhotoCount: -1})
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = ScoreLot(LotSignals{LotID: "1", HoldPointsTotal: 1, HoldPointsReleased: 2})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestScoreClaim(t *testing.T) {
	failed := completeLot("2", "250.50")
	failed.TestsFailed = 1
	failed.TestsPassed = 3

	review := completeLot("3", "99.25")
	review.ITPItemsCompleted = 3

	cc, err := ScoreClaim("claim-1", []LotSignals{completeLot("1", "1000"), failed, review})
	require.NoError(t, err)
	assert.Equal(t, "claim-1", cc.ClaimID)
	assert.True(t, decimal.RequireFromString("1349.75").Equal(cc.TotalClaimed), cc.TotalClaimed.String())
	assert.True(t, decimal.RequireFromString("1099.25").Equal(cc.RecommendedAmount), cc.RecommendedAmount.String())
	assert.Equal(t, 1, cc.IncludeCount)
	assert.Equal(t, 1, cc.ReviewCount)
	assert.Equal(t, 1, cc.ExcludeCount)
	assert.Len(t, cc.Lots, 3)

	empty, err := ScoreClaim("claim-2", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.OverallScore)
	assert.True(t, empty.RecommendedAmount.IsZero())
}
