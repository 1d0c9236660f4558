package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/engine"
	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"github.com/bitfantasy/siteqa/internal/qa/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CompletenessService claim completeness scoring
type CompletenessService struct {
	w *workflow
}

// lotSignalSet raw per-lot tallies loaded in parallel
type lotSignalSet struct {
	lots   map[string]entity.Lot
	itp    map[string]repository.Progress
	tests  map[string]repository.TestCounts
	holds  map[string]repository.Progress
	ncrs   map[string]repository.NCRCounts
	photos map[string]int
}

func (s *CompletenessService) load(ctx context.Context, lotIDs []string) (*lotSignalSet, error) {
	set := &lotSignalSet{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lots, err := s.w.repos.Lot.FindByIDs(gctx, lotIDs)
		if err != nil {
			return fmt.Errorf("load lots: %w", err)
		}
		set.lots = make(map[string]entity.Lot, len(lots))
		for _, l := range lots {
			set.lots[l.ID] = l
		}
		return nil
	})
	g.Go(func() (err error) {
		set.itp, err = s.w.repos.Lot.ITPProgress(gctx, lotIDs)
		return err
	})
	g.Go(func() (err error) {
		set.tests, err = s.w.repos.Lot.TestCountsByLot(gctx, lotIDs)
		return err
	})
	g.Go(func() (err error) {
		set.holds, err = s.w.repos.HoldPoint.ReleaseProgress(gctx, lotIDs)
		return err
	})
	g.Go(func() (err error) {
		set.ncrs, err = s.w.repos.NCR.CountsByLot(gctx, lotIDs)
		return err
	})
	g.Go(func() (err error) {
		set.photos, err = s.w.repos.Lot.PhotoCountsByLot(gctx, lotIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

// Signals per-lot engine inputs, in claim order
func (s *CompletenessService) Signals(ctx context.Context, claim *entity.Claim) ([]engine.LotSignals, error) {
	if len(claim.Lots) == 0 {
		return []engine.LotSignals{}, nil
	}
	lotIDs := make([]string, 0, len(claim.Lots))
	for _, cl := range claim.Lots {
		lotIDs = append(lotIDs, cl.LotID)
	}
	set, err := s.load(ctx, lotIDs)
	if err != nil {
		return nil, err
	}

	out := make([]engine.LotSignals, 0, len(claim.Lots))
	for _, cl := range claim.Lots {
		itp := set.itp[cl.LotID]
		tests := set.tests[cl.LotID]
		holds := set.holds[cl.LotID]
		ncrs := set.ncrs[cl.LotID]
		out = append(out, engine.LotSignals{
			LotID:              cl.LotID,
			LotNumber:          set.lots[cl.LotID].LotNumber,
			Amount:             cl.Amount,
			ITPItemsTotal:      itp.Total,
			ITPItemsCompleted:  itp.Done,
			TestsTotal:         tests.Total,
			TestsPassed:        tests.Passed,
			TestsFailed:        tests.Failed,
			TestsPending:       tests.Pending,
			HoldPointsTotal:    holds.Total,
			HoldPointsReleased: holds.Done,
			NCRsTotal:          ncrs.Total,
			NCRsClosed:         ncrs.Closed,
			OpenMajorNCRs:      ncrs.OpenMajor,
			PhotoCount:         set.photos[cl.LotID],
		})
	}
	return out, nil
}

// Check scores a claim
func (s *CompletenessService) Check(ctx context.Context, claim *entity.Claim) (*engine.ClaimCompleteness, error) {
	start := time.Now()
	signals, err := s.Signals(ctx, claim)
	if err != nil {
		return nil, err
	}
	result, err := engine.ScoreClaim(claim.ID, signals)
	if err != nil {
		return nil, err
	}
	if s.w.metrics != nil {
		s.w.metrics.CompletenessRun.Observe(time.Since(start).Seconds())
	}
	s.w.logger.Debug("completeness check",
		zap.String("claim_id", claim.ID),
		zap.Int("lots", len(result.Lots)),
		zap.Int("overall_score", result.OverallScore),
		zap.String("recommended_amount", result.RecommendedAmount.StringFixed(2)))
	return &result, nil
}
