package engine

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Completeness weights, summing to 100
const (
	WeightITP        = 30.0
	WeightTests      = 25.0
	WeightHoldPoints = 25.0
	WeightNCRs       = 10.0
	WeightPhotos     = 10.0

	// photos needed for full photo credit
	TargetPhotoCount = 3
	// minimum score for an include recommendation
	IncludeScoreThreshold = 80
)

// LotSignals QA signals for one lot in a claim
type LotSignals struct {
	LotID     string          `json:"lot_id"`
	LotNumber string          `json:"lot_number"`
	Amount    decimal.Decimal `json:"amount"`

	ITPItemsTotal     int `json:"itp_items_total"`
	ITPItemsCompleted int `json:"itp_items_completed"`

	TestsTotal   int `json:"tests_total"`
	TestsPassed  int `json:"tests_passed"`
	TestsFailed  int `json:"tests_failed"`
	TestsPending int `json:"tests_pending"`

	HoldPointsTotal    int `json:"hold_points_total"`
	HoldPointsReleased int `json:"hold_points_released"`

	NCRsTotal     int `json:"ncrs_total"`
	NCRsClosed    int `json:"ncrs_closed"`
	OpenMajorNCRs int `json:"open_major_ncrs"`

	PhotoCount int `json:"photo_count"`
}

func (s LotSignals) validate() error {
	counts := []int{s.ITPItemsTotal, s.ITPItemsCompleted, s.TestsTotal, s.TestsPassed, s.TestsFailed,
		s.TestsPending, s.HoldPointsTotal, s.HoldPointsReleased, s.NCRsTotal, s.NCRsClosed, s.OpenMajorNCRs, s.PhotoCount}
	for _, c := range counts {
		if c < 0 {
			return malformed("negative count for lot %s", s.LotID)
		}
	}
	if s.ITPItemsCompleted > s.ITPItemsTotal || s.TestsPassed+s.TestsFailed+s.TestsPending > s.TestsTotal ||
		s.HoldPointsReleased > s.HoldPointsTotal || s.NCRsClosed > s.NCRsTotal {
		return malformed("completed counts exceed totals for lot %s", s.LotID)
	}
	return nil
}

// IssueSeverity critical > warning > info
type IssueSeverity string

const (
	IssueCritical IssueSeverity = "critical"
	IssueWarning  IssueSeverity = "warning"
	IssueInfo     IssueSeverity = "info"
)

// Issue readiness finding on a lot
type Issue struct {
	Type       string        `json:"type"`
	Severity   IssueSeverity `json:"severity"`
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion"`
}

// Recommendation include/review/exclude
type Recommendation string

const (
	RecommendInclude Recommendation = "include"
	RecommendReview  Recommendation = "review"
	RecommendExclude Recommendation = "exclude"
)

// ScoreBreakdown points earned per category
type ScoreBreakdown struct {
	ITP        float64 `json:"itp"`
	Tests      float64 `json:"tests"`
	HoldPoints float64 `json:"hold_points"`
	NCRs       float64 `json:"ncrs"`
	Photos     float64 `json:"photos"`
}

// LotCompleteness scored lot
type LotCompleteness struct {
	LotID          string          `json:"lot_id"`
	LotNumber      string          `json:"lot_number"`
	Amount         decimal.Decimal `json:"amount"`
	Score          int             `json:"score"`
	Breakdown      ScoreBreakdown  `json:"breakdown"`
	Issues         []Issue         `json:"issues"`
	Recommendation Recommendation  `json:"recommendation"`
}

// ratio with empty categories counting as complete
func ratio(done, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(done) / float64(total)
}

// ScoreLot scores one lot and derives its recommendation
func ScoreLot(s LotSignals) (LotCompleteness, error) {
	if err := s.validate(); err != nil {
		return LotCompleteness{}, err
	}

	b := ScoreBreakdown{
		ITP:        WeightITP * ratio(s.ITPItemsCompleted, s.ITPItemsTotal),
		Tests:      WeightTests * ratio(s.TestsPassed, s.TestsTotal),
		HoldPoints: WeightHoldPoints * ratio(s.HoldPointsReleased, s.HoldPointsTotal),
		NCRs:       WeightNCRs * ratio(s.NCRsClosed, s.NCRsTotal),
		Photos:     WeightPhotos * math.Min(float64(s.PhotoCount)/TargetPhotoCount, 1),
	}
	score := int(math.Round(b.ITP + b.Tests + b.HoldPoints + b.NCRs + b.Photos))

	issues := []Issue{}
	if unreleased := s.HoldPointsTotal - s.HoldPointsReleased; unreleased > 0 {
		issues = append(issues, Issue{
			Type:       "unreleased_hold_points",
			Severity:   IssueCritical,
			Message:    fmt.Sprintf("%d hold point(s) not released", unreleased),
			Suggestion: "Obtain hold point release before claiming this lot",
		})
	}
	if s.TestsFailed > 0 {
		issues = append(issues, Issue{
			Type:       "failed_tests",
			Severity:   IssueCritical,
			Message:    fmt.Sprintf("%d test(s) failed", s.TestsFailed),
			Suggestion: "Rectify and retest, or raise an NCR",
		})
	}
	if s.ITPItemsCompleted < s.ITPItemsTotal {
		issues = append(issues, Issue{
			Type:       "incomplete_itp",
			Severity:   IssueWarning,
			Message:    fmt.Sprintf("%d of %d ITP items completed", s.ITPItemsCompleted, s.ITPItemsTotal),
			Suggestion: "Complete the remaining ITP checklist items",
		})
	}
	if s.TestsPending > 0 {
		issues = append(issues, Issue{
			Type:       "pending_tests",
			Severity:   IssueWarning,
			Message:    fmt.Sprintf("%d test result(s) pending", s.TestsPending),
			Suggestion: "Chase outstanding test results from the laboratory",
		})
	}
	if open := s.NCRsTotal - s.NCRsClosed; open > 0 {
		msg := fmt.Sprintf("%d open NCR(s)", open)
		if s.OpenMajorNCRs > 0 {
			msg += fmt.Sprintf(", %d major", s.OpenMajorNCRs)
		}
		issues = append(issues, Issue{
			Type:       "open_ncrs",
			Severity:   IssueWarning,
			Message:    msg,
			Suggestion: "Close out NCRs on this lot before claiming",
		})
	}
	if s.PhotoCount == 0 {
		issues = append(issues, Issue{
			Type:       "no_photos",
			Severity:   IssueInfo,
			Message:    "No photo evidence",
			Suggestion: "Attach progress photos to support the claim",
		})
	}

	return LotCompleteness{
		LotID:          s.LotID,
		LotNumber:      s.LotNumber,
		Amount:         s.Amount,
		Score:          score,
		Breakdown:      b,
		Issues:         issues,
		Recommendation: recommend(score, issues),
	}, nil
}

// recommend any critical issue excludes; warnings only matter through the score
func recommend(score int, issues []Issue) Recommendation {
	for _, is := range issues {
		if is.Severity == IssueCritical {
			return RecommendExclude
		}
	}
	if score >= IncludeScoreThreshold {
		return RecommendInclude
	}
	return RecommendReview
}

// ClaimCompleteness claim-level aggregation
type ClaimCompleteness struct {
	ClaimID           string            `json:"claim_id"`
	Lots              []LotCompleteness `json:"lots"`
	OverallScore      int               `json:"overall_score"`
	TotalClaimed      decimal.Decimal   `json:"total_claimed"`
	RecommendedAmount decimal.Decimal   `json:"recommended_amount"`
	IncludeCount      int               `json:"include_count"`
	ReviewCount       int               `json:"review_count"`
	ExcludeCount      int               `json:"exclude_count"`
}

// ScoreClaim scores every lot; RecommendedAmount sums non-excluded lots
func ScoreClaim(claimID string, lots []LotSignals) (ClaimCompleteness, error) {
	out := ClaimCompleteness{
		ClaimID:           claimID,
		Lots:              make([]LotCompleteness, 0, len(lots)),
		TotalClaimed:      decimal.Zero,
		RecommendedAmount: decimal.Zero,
	}
	total := 0
	for _, s := range lots {
		lc, err := ScoreLot(s)
		if err != nil {
			return ClaimCompleteness{}, err
		}
		out.Lots = append(out.Lots, lc)
		total += lc.Score
		out.TotalClaimed = out.TotalClaimed.Add(lc.Amount)
		switch lc.Recommendation {
		case RecommendInclude:
			out.IncludeCount++
		case RecommendReview:
			out.ReviewCount++
		case RecommendExclude:
			out.ExcludeCount++
		}
		if lc.Recommendation != RecommendExclude {
			out.RecommendedAmount = out.RecommendedAmount.Add(lc.Amount)
		}
	}
	if len(lots) > 0 {
		out.OverallScore = int(math.Round(float64(total) / float64(len(lots))))
	}
	return out, nil
}
