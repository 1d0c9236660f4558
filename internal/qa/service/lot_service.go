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

// LotService lots, ITP assignment and the site records the completeness check reads
type LotService struct {
	w *workflow
}

// LotDetail lot with its ITPs
type LotDetail struct {
	entity.Lot
	ITPs []entity.ITPInstance `json:"itps"`
}

// CreateLotReq new lot
type CreateLotReq struct {
	LotNumber   string `json:"lot_number" binding:"required,max=50"`
	Description string `json:"description" binding:"max=500"`
}

// ChecklistItemReq one checklist line, sequenced by position
type ChecklistItemReq struct {
	Description string `json:"description" binding:"required,max=500"`
	PointType   string `json:"point_type" binding:"omitempty,oneof=standard witness hold"`
}

// AssignITPReq ITP applied to a lot
type AssignITPReq struct {
	TemplateName string             `json:"template_name" binding:"required"`
	Items        []ChecklistItemReq `json:"items" binding:"required,min=1,dive"`
}

// AddTestReq test result for a lot
type AddTestReq struct {
	TestType  string     `json:"test_type" binding:"required,max=100"`
	Result    string     `json:"result" binding:"omitempty,oneof=pass fail pending"`
	Reference string     `json:"reference"`
	TestedAt  *time.Time `json:"tested_at"`
}

// PhotoRefReq photo already stored elsewhere
type PhotoRefReq struct {
	URL     string `json:"url" binding:"required,url"`
	Caption string `json:"caption"`
}

func (s *LotService) target(lot *entity.Lot, actor engine.Actor) effectTarget {
	return effectTarget{
		entityType: entity.ActivityEntityLot,
		entityID:   lot.ID,
		entityCode: lot.LotNumber,
		projectID:  lot.ProjectID,
		fromStatus: lot.Status,
		toStatus:   lot.Status,
		actor:      actor,
	}
}

func (s *LotService) logActivity(ctx context.Context, lot *entity.Lot, actor engine.Actor, action, msg string) {
	s.w.dispatch(ctx, s.target(lot, actor), []engine.Effect{
		{Kind: engine.EffectLogActivity, Action: action, Message: msg},
	})
}

func (s *LotService) Create(ctx context.Context, projectID string, req CreateLotReq, actor engine.Actor) (*entity.Lot, error) {
	if _, err := s.w.repos.Project.FindByID(ctx, projectID); err != nil {
		return nil, err
	}
	lot := &entity.Lot{
		ProjectID:   projectID,
		LotNumber:   req.LotNumber,
		Description: req.Description,
		Status:      entity.LotStatusInProgress,
	}
	if err := s.w.repos.Lot.Create(ctx, lot); err != nil {
		return nil, fmt.Errorf("create lot: %w", err)
	}
	s.logActivity(ctx, lot, actor, "create", "Lot "+lot.LotNumber+" created")
	return lot, nil
}

// List lots of a project
func (s *LotService) List(ctx context.Context, projectID string) ([]entity.Lot, error) {
	if _, err := s.w.repos.Project.FindByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.w.repos.Lot.ListByProject(ctx, projectID)
}

func (s *LotService) Get(ctx context.Context, id string) (*LotDetail, error) {
	lot, err := s.w.repos.Lot.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	itps, err := s.w.repos.Lot.ListInstances(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load ITPs: %w", err)
	}
	return &LotDetail{Lot: *lot, ITPs: itps}, nil
}

// AssignITP applies an ITP to a lot. Each hold-type item gets a pending hold point.
func (s *LotService) AssignITP(ctx context.Context, lotID string, req AssignITPReq, actor engine.Actor) (*entity.ITPInstance, error) {
	lot, err := s.w.repos.Lot.FindByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	inst := &entity.ITPInstance{
		LotID:        lot.ID,
		TemplateName: req.TemplateName,
		CreatedAt:    s.w.now(),
		Items:        make([]entity.ITPChecklistItem, 0, len(req.Items)),
	}
	holds := 0
	for i, it := range req.Items {
		pt := it.PointType
		if pt == "" {
			pt = entity.PointTypeStandard
		}
		if pt == entity.PointTypeHold {
			holds++
		}
		inst.Items = append(inst.Items, entity.ITPChecklistItem{
			Sequence:    i + 1,
			Description: it.Description,
			PointType:   pt,
		})
	}
	if err := s.w.repos.Lot.CreateInstance(ctx, lot.ProjectID, inst); err != nil {
		return nil, fmt.Errorf("assign ITP: %w", err)
	}
	s.logActivity(ctx, lot, actor, "assign_itp",
		fmt.Sprintf("ITP %s assigned with %d item(s), %d hold point(s)", inst.TemplateName, len(inst.Items), holds))
	return inst, nil
}

// CompleteItem signs off a checklist item of the lot
func (s *LotService) CompleteItem(ctx context.Context, lotID, itemID string, actor engine.Actor) (*entity.ITPChecklistItem, error) {
	var result *entity.ITPChecklistItem
	err := s.w.withLock(ctx, holdPointLockKey(lotID, itemID), func() error {
		lot, err := s.w.repos.Lot.FindByID(ctx, lotID)
		if err != nil {
			return err
		}
		item, err := s.w.repos.Lot.FindItem(ctx, itemID)
		if err != nil {
			return err
		}
		inst, err := s.w.repos.Lot.FindInstance(ctx, item.InstanceID)
		if err != nil {
			return err
		}
		if inst.LotID != lotID {
			return fmt.Errorf("checklist item %s does not belong to lot %s: %w", itemID, lotID, engine.ErrMalformedInput)
		}

		hp, err := s.w.repos.HoldPoint.FindByLotItem(ctx, lotID, itemID)
		if errors.Is(err, repository.ErrNotFound) {
			hp = nil
		} else if err != nil {
			return err
		}
		if r := engine.CheckItemCompletion(*item, hp); r != nil {
			s.w.rejected(ctx, s.target(lot, actor), "complete_item", r)
			return r
		}

		now := s.w.now()
		if err := s.w.repos.Lot.CompleteItem(ctx, itemID, actor.UserID, now); err != nil {
			return err
		}
		item.IsCompleted = true
		item.CompletedAt = &now
		by := actor.UserID
		item.CompletedBy = &by
		s.logActivity(ctx, lot, actor, "complete_item",
			fmt.Sprintf("Checklist item %d completed: %s", item.Sequence, item.Description))
		result = item
		return nil
	})
	return result, err
}

// AddTest records a test result
func (s *LotService) AddTest(ctx context.Context, lotID string, req AddTestReq, actor engine.Actor) (*entity.TestResult, error) {
	lot, err := s.w.repos.Lot.FindByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	result := req.Result
	if result == "" {
		result = entity.TestResultPending
	}
	tr := &entity.TestResult{
		LotID:     lot.ID,
		TestType:  req.TestType,
		Result:    result,
		Reference: req.Reference,
		TestedAt:  req.TestedAt,
		CreatedAt: s.w.now(),
	}
	if err := s.w.repos.Lot.AddTestResult(ctx, tr); err != nil {
		return nil, fmt.Errorf("add test result: %w", err)
	}
	s.logActivity(ctx, lot, actor, "add_test", fmt.Sprintf("Test %s recorded: %s", tr.TestType, tr.Result))
	return tr, nil
}

// AddPhoto uploads a photo into the object store and attaches it
func (s *LotService) AddPhoto(ctx context.Context, lotID, caption string, up EvidenceUpload, actor engine.Actor) (*entity.LotPhoto, error) {
	if s.w.store == nil {
		return nil, errors.New("evidence storage is not configured")
	}
	lot, err := s.w.repos.Lot.FindByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	obj, err := s.w.store.Put(ctx, "lot/"+lot.ID, up.FileName, up.Reader, up.Size, up.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}
	return s.attachPhoto(ctx, lot, &entity.LotPhoto{ObjectKey: obj.Key, URL: obj.URL, Caption: caption}, actor)
}

// AddPhotoRef attaches a photo by reference
func (s *LotService) AddPhotoRef(ctx context.Context, lotID string, req PhotoRefReq, actor engine.Actor) (*entity.LotPhoto, error) {
	lot, err := s.w.repos.Lot.FindByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	return s.attachPhoto(ctx, lot, &entity.LotPhoto{URL: req.URL, Caption: req.Caption}, actor)
}

func (s *LotService) attachPhoto(ctx context.Context, lot *entity.Lot, p *entity.LotPhoto, actor engine.Actor) (*entity.LotPhoto, error) {
	p.LotID = lot.ID
	p.UploadedBy = actor.UserID
	p.CreatedAt = s.w.now()
	if err := s.w.repos.Lot.AddPhoto(ctx, p); err != nil {
		return nil, fmt.Errorf("attach photo: %w", err)
	}
	s.logActivity(ctx, lot, actor, "add_photo", "Photo attached")
	return p, nil
}
