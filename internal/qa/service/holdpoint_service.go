package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/engine"
	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"github.com/bitfantasy/siteqa/internal/qa/repository"
)

// HoldPointService hold point release gatekeeping
type HoldPointService struct {
	w *workflow
}

// HoldPointView hold point with derived flags
type HoldPointView struct {
	entity.HoldPoint
	IsOverdue              bool                  `json:"is_overdue"`
	AvailableActions       []string              `json:"available_actions,omitempty"`
	Prerequisites          []engine.Prerequisite `json:"prerequisites,omitempty"`
	OverrideApplied        bool                  `json:"override_applied,omitempty"`
	RequiresSuperintendent bool                  `json:"requires_superintendent,omitempty"`
	MinimumNoticeDays      int                   `json:"minimum_notice_days"`
}

// holdPointContext everything the gatekeeper needs about one hold point
type holdPointContext struct {
	project *entity.Project
	item    *entity.ITPChecklistItem
	hp      *entity.HoldPoint
	prereqs []engine.Prerequisite
}

func (s *HoldPointService) minNotice(p *entity.Project) int {
	if p != nil && p.HoldPointMinNoticeDays != nil {
		return *p.HoldPointMinNoticeDays
	}
	return s.w.settings.MinNoticeDays
}

func (s *HoldPointService) approvalPolicy(p *entity.Project) string {
	if p != nil && p.HoldPointApprovalPolicy != "" {
		return p.HoldPointApprovalPolicy
	}
	if s.w.settings.ApprovalPolicy != "" {
		return s.w.settings.ApprovalPolicy
	}
	return entity.HoldPointApprovalAny
}

// load resolves the lot item, its prerequisites and the hold point record.
// A missing record is returned as an unsaved pending hold point.
func (s *HoldPointService) load(ctx context.Context, lotID, itemID string) (*holdPointContext, error) {
	lot, err := s.w.repos.Lot.FindByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	item, err := s.w.repos.Lot.FindItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	inst, err := s.w.repos.Lot.FindInstance(ctx, item.InstanceID)
	if err != nil {
		return nil, err
	}
	if inst.LotID != lotID {
		return nil, fmt.Errorf("checklist item %s does not belong to lot %s: %w", itemID, lotID, engine.ErrMalformedInput)
	}
	if item.PointType != entity.PointTypeHold {
		return nil, fmt.Errorf("checklist item %d is not a hold point: %w", item.Sequence, engine.ErrMalformedInput)
	}
	project, err := s.w.repos.Project.FindByID(ctx, lot.ProjectID)
	if err != nil {
		return nil, err
	}
	items, err := s.w.repos.Lot.ListItems(ctx, item.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("load checklist: %w", err)
	}

	hp, err := s.w.repos.HoldPoint.FindByLotItem(ctx, lotID, itemID)
	if errors.Is(err, repository.ErrNotFound) {
		hp = &entity.HoldPoint{
			ProjectID:     lot.ProjectID,
			LotID:         lotID,
			ITPInstanceID: item.InstanceID,
			ItemID:        itemID,
			Description:   item.Description,
			Status:        entity.HoldPointStatusPending,
		}
	} else if err != nil {
		return nil, err
	}
	return &holdPointContext{
		project: project,
		item:    item,
		hp:      hp,
		prereqs: engine.PrerequisitesFor(items, item.Sequence),
	}, nil
}

// holdPointLockKey one lock per lot item, whether or not the record exists yet
func holdPointLockKey(lotID, itemID string) string {
	return entity.ActivityEntityHoldPoint + ":" + lotID + ":" + itemID
}

func (s *HoldPointService) lockKeyByID(ctx context.Context, id string) (string, error) {
	hp, err := s.w.repos.HoldPoint.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return holdPointLockKey(hp.LotID, hp.ItemID), nil
}

func (s *HoldPointService) loadByID(ctx context.Context, id string) (*holdPointContext, error) {
	hp, err := s.w.repos.HoldPoint.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, hp.LotID, hp.ItemID)
}

func (s *HoldPointService) view(hc *holdPointContext) *HoldPointView {
	return &HoldPointView{
		HoldPoint:         *hc.hp,
		IsOverdue:         engine.IsHoldPointOverdue(*hc.hp, s.w.now()),
		AvailableActions:  engine.HoldPointActions(*hc.hp, hc.prereqs),
		Prerequisites:     hc.prereqs,
		MinimumNoticeDays: s.minNotice(hc.project),
	}
}

// save creates the record on first request, otherwise a version-checked update
func (s *HoldPointService) save(ctx context.Context, hp *entity.HoldPoint) error {
	if hp.ID == "" {
		return s.w.repos.HoldPoint.Create(ctx, hp)
	}
	return s.w.persisted(entity.ActivityEntityHoldPoint, s.w.repos.HoldPoint.Update(ctx, hp))
}

// decide applies a gatekeeper decision: rejection logging or persist + effects
func (s *HoldPointService) decide(ctx context.Context, hc *holdPointContext, event string, decision engine.HoldPointDecision, actor engine.Actor) (*HoldPointView, error) {
	t := effectTarget{
		entityType: entity.ActivityEntityHoldPoint,
		entityID:   hc.hp.ID,
		entityCode: hc.hp.Description,
		projectID:  hc.hp.ProjectID,
		fromStatus: decision.FromStatus,
		toStatus:   decision.ToStatus,
		actor:      actor,
	}
	if t.entityID == "" {
		// not persisted yet; rejections are logged against the checklist item
		t.entityID = hc.hp.ItemID
	}
	if !decision.Accepted() {
		s.w.rejected(ctx, t, event, decision.Rejection)
		return nil, decision.Rejection
	}

	next := decision.HoldPoint
	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}
	t.entityID = next.ID
	t.version = next.Version
	s.w.dispatch(ctx, t, decision.Effects)
	s.w.accepted(t, event)

	hc.hp = &next
	v := s.view(hc)
	v.OverrideApplied = decision.OverrideApplied
	v.RequiresSuperintendent = decision.RequiresSuperintendent
	return v, nil
}

func (s *HoldPointService) checkVersion(hp *entity.HoldPoint, expected *int) error {
	if expected != nil && hp.ID != "" && *expected != hp.Version {
		s.w.metrics.Conflict(entity.ActivityEntityHoldPoint)
		return repository.ErrConflict
	}
	return nil
}

// RequestReleaseReq request the releasing party to attend
type RequestReleaseReq struct {
	LotID          string `json:"lot_id" binding:"required"`
	ItemID         string `json:"item_id" binding:"required"`
	ScheduledDate  string `json:"scheduled_date"` // YYYY-MM-DD
	NotifiedTo     string `json:"notified_to"`
	Override       bool   `json:"override"`
	OverrideReason string `json:"override_reason"`
	Version        *int   `json:"version"`
}

func (s *HoldPointService) RequestRelease(ctx context.Context, req RequestReleaseReq, actor engine.Actor) (*HoldPointView, error) {
	now := s.w.now()
	var scheduled *time.Time
	if req.ScheduledDate != "" {
		d, err := engine.ParseCalendarDate(req.ScheduledDate, now.Location())
		if err != nil {
			return nil, err
		}
		scheduled = &d
	}

	var result *HoldPointView
	err := s.w.withLock(ctx, holdPointLockKey(req.LotID, req.ItemID), func() error {
		hc, err := s.load(ctx, req.LotID, req.ItemID)
		if err != nil {
			return err
		}
		if err := s.checkVersion(hc.hp, req.Version); err != nil {
			return err
		}
		minNotice := s.minNotice(hc.project)
		decision, err := engine.RequestRelease(engine.RequestReleaseInput{
			HoldPoint:         *hc.hp,
			Prerequisites:     hc.prereqs,
			ScheduledDate:     scheduled,
			MinimumNoticeDays: &minNotice,
			Override:          req.Override,
			OverrideReason:    req.OverrideReason,
			RequestedBy:       actor.UserID,
			NotifiedTo:        req.NotifiedTo,
			Now:               now,
		})
		if err != nil {
			return err
		}
		result, err = s.decide(ctx, hc, engine.HoldPointActionRequestRelease, decision, actor)
		return err
	})
	return result, err
}

// ReleaseHoldPointReq record the release
type ReleaseHoldPointReq struct {
	ReleasedByName string `json:"released_by_name"`
	ReleasedByOrg  string `json:"released_by_org"`
	Method         string `json:"release_method" binding:"required,oneof=digital email paper"`
	Notes          string `json:"release_notes"`
	SignatureRef   string `json:"signature_ref"`
	EvidenceRef    string `json:"evidence_ref"`
	Version        *int   `json:"version"`
}

func (s *HoldPointService) Release(ctx context.Context, id string, req ReleaseHoldPointReq, actor engine.Actor) (*HoldPointView, error) {
	key, err := s.lockKeyByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var result *HoldPointView
	err = s.w.withLock(ctx, key, func() error {
		hc, err := s.loadByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkVersion(hc.hp, req.Version); err != nil {
			return err
		}
		decision, err := engine.Release(engine.ReleaseInput{
			HoldPoint:      *hc.hp,
			ReleasedByName: req.ReleasedByName,
			ReleasedByOrg:  req.ReleasedByOrg,
			Method:         req.Method,
			Notes:          req.Notes,
			SignatureRef:   req.SignatureRef,
			EvidenceRef:    req.EvidenceRef,
			ApprovalPolicy: s.approvalPolicy(hc.project),
			Now:            s.w.now(),
		})
		if err != nil {
			return err
		}
		result, err = s.decide(ctx, hc, engine.HoldPointActionRelease, decision, actor)
		return err
	})
	return result, err
}

// Chase send a reminder to the releasing party
func (s *HoldPointService) Chase(ctx context.Context, id string, actor engine.Actor) (*HoldPointView, error) {
	key, err := s.lockKeyByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var result *HoldPointView
	err = s.w.withLock(ctx, key, func() error {
		hc, err := s.loadByID(ctx, id)
		if err != nil {
			return err
		}
		decision, err := engine.Chase(engine.ChaseInput{HoldPoint: *hc.hp, Now: s.w.now()})
		if err != nil {
			return err
		}
		result, err = s.decide(ctx, hc, engine.HoldPointActionChase, decision, actor)
		return err
	})
	return result, err
}

// EvidencePackageReq hold point selector
type EvidencePackageReq struct {
	LotID  string `json:"lot_id" binding:"required"`
	ItemID string `json:"item_id" binding:"required"`
}

// HoldPointEvidencePackage what the releasing party will be shown
type HoldPointEvidencePackage struct {
	HoldPoint         entity.HoldPoint          `json:"hold_point"`
	Lot               entity.Lot                `json:"lot"`
	ProjectName       string                    `json:"project_name"`
	CompletedItems    []entity.ITPChecklistItem `json:"completed_items"`
	IncompleteItems   []engine.Prerequisite     `json:"incomplete_items"`
	TestResults       []entity.TestResult       `json:"test_results"`
	Photos            []entity.LotPhoto         `json:"photos"`
	ReadyToRequest    bool                      `json:"ready_to_request"`
	MinimumNoticeDays int                       `json:"minimum_notice_days"`
	EarliestScheduled time.Time                 `json:"earliest_scheduled_date"`
}

// PreviewEvidencePackage assembles the evidence shown with a release request
func (s *HoldPointService) PreviewEvidencePackage(ctx context.Context, req EvidencePackageReq) (*HoldPointEvidencePackage, error) {
	hc, err := s.load(ctx, req.LotID, req.ItemID)
	if err != nil {
		return nil, err
	}
	lot, err := s.w.repos.Lot.FindByID(ctx, req.LotID)
	if err != nil {
		return nil, err
	}
	items, err := s.w.repos.Lot.ListItems(ctx, hc.item.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("load checklist: %w", err)
	}
	tests, err := s.w.repos.Lot.ListTests(ctx, []string{req.LotID})
	if err != nil {
		return nil, fmt.Errorf("load tests: %w", err)
	}
	photos, err := s.w.repos.Lot.ListPhotos(ctx, req.LotID)
	if err != nil {
		return nil, fmt.Errorf("load photos: %w", err)
	}

	completed := make([]entity.ITPChecklistItem, 0, len(items))
	for _, it := range items {
		if it.Sequence < hc.item.Sequence && it.IsCompleted {
			completed = append(completed, it)
		}
	}
	missing := engine.IncompletePrerequisites(hc.prereqs)
	minNotice := s.minNotice(hc.project)
	return &HoldPointEvidencePackage{
		HoldPoint:         *hc.hp,
		Lot:               *lot,
		ProjectName:       hc.project.Name,
		CompletedItems:    completed,
		IncompleteItems:   missing,
		TestResults:       tests,
		Photos:            photos,
		ReadyToRequest:    len(missing) == 0 && hc.hp.Status != entity.HoldPointStatusReleased,
		MinimumNoticeDays: minNotice,
		EarliestScheduled: engine.AddBusinessDays(engine.DateOf(s.w.now()), minNotice),
	}, nil
}

// ListByProject hold points of a project with overdue flags
func (s *HoldPointService) ListByProject(ctx context.Context, projectID string, filters map[string]string) ([]HoldPointView, error) {
	project, err := s.w.repos.Project.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items, err := s.w.repos.HoldPoint.FindByProject(ctx, projectID, filters)
	if err != nil {
		return nil, fmt.Errorf("list hold points: %w", err)
	}
	// hold items whose release was never requested are pending too
	if status := filters["status"]; status == "" || status == entity.HoldPointStatusPending {
		unrequested, err := s.w.repos.HoldPoint.FindUnrequested(ctx, projectID, filters["lot_id"])
		if err != nil {
			return nil, fmt.Errorf("list unrequested hold points: %w", err)
		}
		items = append(items, unrequested...)
	}
	now := s.w.now()
	out := make([]HoldPointView, 0, len(items))
	for _, hp := range items {
		if filters["overdue"] == "true" && !engine.IsHoldPointOverdue(hp, now) {
			continue
		}
		out = append(out, HoldPointView{
			HoldPoint:         hp,
			IsOverdue:         engine.IsHoldPointOverdue(hp, now),
			MinimumNoticeDays: s.minNotice(project),
		})
	}
	return out, nil
}

// GetByLotItem hold point detail with prerequisites and actions
func (s *HoldPointService) GetByLotItem(ctx context.Context, lotID, itemID string) (*HoldPointView, error) {
	hc, err := s.load(ctx, lotID, itemID)
	if err != nil {
		return nil, err
	}
	return s.view(hc), nil
}

// History activity log of a hold point
func (s *HoldPointService) History(ctx context.Context, id string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	if _, err := s.w.repos.HoldPoint.FindByID(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.w.repos.ActivityLog.FindByEntity(ctx, entity.ActivityEntityHoldPoint, id, page, pageSize)
}
