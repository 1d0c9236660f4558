package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/engine"
	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"github.com/bitfantasy/siteqa/internal/qa/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ClaimService progress claims and their SOPA deadlines
type ClaimService struct {
	w            *workflow
	completeness *CompletenessService
}

// ClaimView claim with derived SOPA deadlines
type ClaimView struct {
	entity.Claim
	Deadlines engine.ClaimDeadlines `json:"deadlines"`
}

func (s *ClaimService) region(p *entity.Project) string {
	if p != nil && p.SOPARegion != "" {
		return p.SOPARegion
	}
	return s.w.settings.DefaultRegion
}

func (s *ClaimService) view(c *entity.Claim, p *entity.Project) *ClaimView {
	region := s.region(p)
	deadlines := engine.DeadlinesFor(*c, region, s.w.now())
	if deadlines.RegionFallback {
		s.w.logger.Warn("unknown SOPA region, using default timeframes",
			zap.String("claim_id", c.ID),
			zap.String("region", region),
			zap.String("used", deadlines.Region))
	}
	return &ClaimView{Claim: *c, Deadlines: deadlines}
}

// List claims of a project with deadlines
func (s *ClaimService) List(ctx context.Context, projectID, status string) ([]ClaimView, error) {
	project, err := s.w.repos.Project.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	claims, err := s.w.repos.Claim.FindByProject(ctx, projectID, status)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	out := make([]ClaimView, 0, len(claims))
	for i := range claims {
		out = append(out, *s.view(&claims[i], project))
	}
	return out, nil
}

func (s *ClaimService) Get(ctx context.Context, id string) (*ClaimView, error) {
	claim, err := s.w.repos.Claim.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	project, err := s.w.repos.Project.FindByID(ctx, claim.ProjectID)
	if err != nil {
		return nil, err
	}
	return s.view(claim, project), nil
}

// ClaimLotReq lot and amount claimed
type ClaimLotReq struct {
	LotID  string          `json:"lot_id" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// CreateClaimReq new draft claim
type CreateClaimReq struct {
	PeriodStart time.Time     `json:"period_start" binding:"required"`
	PeriodEnd   time.Time     `json:"period_end" binding:"required"`
	Lots        []ClaimLotReq `json:"lots" binding:"dive"`
}

// claimedLots checks every lot belongs to the project
func (s *ClaimService) claimedLots(ctx context.Context, projectID string, req []ClaimLotReq) ([]entity.ClaimedLot, error) {
	ids := make([]string, 0, len(req))
	seen := map[string]bool{}
	for _, l := range req {
		if seen[l.LotID] {
			return nil, fmt.Errorf("lot %s claimed twice: %w", l.LotID, engine.ErrMalformedInput)
		}
		seen[l.LotID] = true
		ids = append(ids, l.LotID)
	}
	lots, err := s.w.repos.Lot.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load lots: %w", err)
	}
	if len(lots) != len(ids) {
		return nil, repository.ErrNotFound
	}
	for _, lot := range lots {
		if lot.ProjectID != projectID {
			return nil, fmt.Errorf("lot %s belongs to another project: %w", lot.LotNumber, engine.ErrMalformedInput)
		}
	}
	out := make([]entity.ClaimedLot, 0, len(req))
	for _, l := range req {
		out = append(out, entity.ClaimedLot{LotID: l.LotID, Amount: l.Amount})
	}
	return out, nil
}

func (s *ClaimService) Create(ctx context.Context, projectID string, req CreateClaimReq, actor engine.Actor) (*ClaimView, error) {
	project, err := s.w.repos.Project.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if req.PeriodEnd.Before(req.PeriodStart) {
		return nil, fmt.Errorf("claim period ends before it starts: %w", engine.ErrMalformedInput)
	}
	lots, err := s.claimedLots(ctx, projectID, req.Lots)
	if err != nil {
		return nil, err
	}
	for _, l := range lots {
		if l.Amount.IsNegative() {
			return nil, fmt.Errorf("negative amount for lot %s: %w", l.LotID, engine.ErrMalformedInput)
		}
	}

	now := s.w.now()
	claim := &entity.Claim{
		ProjectID:          projectID,
		PeriodStart:        req.PeriodStart,
		PeriodEnd:          req.PeriodEnd,
		Status:             entity.ClaimStatusDraft,
		TotalClaimedAmount: engine.ClaimTotal(lots),
		CreatedBy:          actor.UserID,
		CreatedAt:          now,
		UpdatedAt:          now,
		Lots:               lots,
	}
	if err := s.w.repos.Claim.Create(ctx, claim); err != nil {
		return nil, fmt.Errorf("create claim: %w", err)
	}

	t := effectTarget{
		entityType: entity.ActivityEntityClaim,
		entityID:   claim.ID,
		entityCode: fmt.Sprintf("Claim #%d", claim.ClaimNumber),
		projectID:  projectID,
		toStatus:   claim.Status,
		version:    claim.Version,
		actor:      actor,
	}
	s.w.dispatch(ctx, t, []engine.Effect{
		{Kind: engine.EffectLogActivity, Action: "create", Message: fmt.Sprintf("Claim #%d created with %d lot(s)", claim.ClaimNumber, len(lots))},
		{Kind: engine.EffectPublish, Action: "create"},
	})
	s.w.accepted(t, "create")
	return s.view(claim, project), nil
}

// UpdateClaimReq field edits and/or a status transition
type UpdateClaimReq struct {
	Status          string           `json:"status" binding:"omitempty,oneof=draft submitted certified paid disputed"`
	PeriodStart     *time.Time       `json:"period_start"`
	PeriodEnd       *time.Time       `json:"period_end"`
	Lots            *[]ClaimLotReq   `json:"lots" binding:"omitempty,dive"`
	CertifiedAmount *decimal.Decimal `json:"certified_amount"`
	PaidAmount      *decimal.Decimal `json:"paid_amount"`
	DisputeNotes    *string          `json:"dispute_notes"`
	Version         *int             `json:"version"`
}

func (s *ClaimService) Update(ctx context.Context, projectID, claimID string, req UpdateClaimReq, actor engine.Actor) (*ClaimView, error) {
	var result *ClaimView
	err := s.w.withLock(ctx, entity.ActivityEntityClaim+":"+claimID, func() error {
		claim, err := s.w.repos.Claim.FindByID(ctx, claimID)
		if err != nil {
			return err
		}
		if claim.ProjectID != projectID {
			return repository.ErrNotFound
		}
		if req.Version != nil && *req.Version != claim.Version {
			s.w.metrics.Conflict(entity.ActivityEntityClaim)
			return repository.ErrConflict
		}
		project, err := s.w.repos.Project.FindByID(ctx, projectID)
		if err != nil {
			return err
		}

		change := engine.ClaimChange{
			Status:          req.Status,
			PeriodStart:     req.PeriodStart,
			PeriodEnd:       req.PeriodEnd,
			CertifiedAmount: req.CertifiedAmount,
			PaidAmount:      req.PaidAmount,
			DisputeNotes:    req.DisputeNotes,
			Now:             s.w.now(),
		}
		if req.Lots != nil {
			lots, err := s.claimedLots(ctx, projectID, *req.Lots)
			if err != nil {
				return err
			}
			change.Lots = lots
		}

		decision, err := engine.ApplyClaimChange(*claim, change)
		if err != nil {
			return err
		}
		t := effectTarget{
			entityType: entity.ActivityEntityClaim,
			entityID:   claim.ID,
			entityCode: fmt.Sprintf("Claim #%d", claim.ClaimNumber),
			projectID:  projectID,
			fromStatus: decision.FromStatus,
			toStatus:   decision.ToStatus,
			actor:      actor,
		}
		event := req.Status
		if event == "" || event == claim.Status {
			event = "update"
		}
		if !decision.Accepted() {
			s.w.rejected(ctx, t, event, decision.Rejection)
			return decision.Rejection
		}

		next := decision.Claim
		if err := s.w.persisted(entity.ActivityEntityClaim, s.w.repos.Claim.UpdateWithLots(ctx, &next, change.Lots)); err != nil {
			return err
		}
		if change.Lots != nil {
			next.Lots = change.Lots
		}
		t.version = next.Version
		s.w.dispatch(ctx, t, decision.Effects)
		s.w.accepted(t, event)
		result = s.view(&next, project)
		return nil
	})
	return result, err
}

// CompletenessCheck scores the lots of a claim
func (s *ClaimService) CompletenessCheck(ctx context.Context, claimID string) (*engine.ClaimCompleteness, error) {
	claim, err := s.w.repos.Claim.FindByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return s.completeness.Check(ctx, claim)
}
