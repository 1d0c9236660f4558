package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/engine"
	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"github.com/bitfantasy/siteqa/internal/qa/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NCRService NCR lifecycle service
type NCRService struct {
	w *workflow
}

// NCRView NCR with derived flags
type NCRView struct {
	entity.NCR
	AgeDays          int               `json:"age_days"`
	IsOverdue        bool              `json:"is_overdue"`
	AvailableActions []engine.NCREvent `json:"available_actions"`
}

func (s *NCRService) view(n *entity.NCR, actor engine.Actor) *NCRView {
	now := s.w.now()
	return &NCRView{
		NCR:              *n,
		AgeDays:          engine.AgeDays(*n, now),
		IsOverdue:        engine.IsNCROverdue(*n, now),
		AvailableActions: engine.AvailableActions(*n, actor, s.w.settings.Policy),
	}
}

// CreateNCRReq raise an NCR
type CreateNCRReq struct {
	ProjectID     string     `json:"project_id" binding:"required"`
	Title         string     `json:"title" binding:"required,max=200"`
	Description   string     `json:"description" binding:"required"`
	Category      string     `json:"category" binding:"required,oneof=materials workmanship documentation process design other"`
	Severity      string     `json:"severity" binding:"required,oneof=minor major"`
	ResponsibleID *string    `json:"responsible_id"`
	DueDate       *time.Time `json:"due_date"`
	LotIDs        []string   `json:"lot_ids"`
}

func (s *NCRService) Create(ctx context.Context, req CreateNCRReq, actor engine.Actor) (*NCRView, error) {
	if _, err := s.w.repos.Project.FindByID(ctx, req.ProjectID); err != nil {
		return nil, err
	}
	ncr, err := engine.OpenNCR(engine.NCRDraft{
		ProjectID:     req.ProjectID,
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		Category:      req.Category,
		Severity:      req.Severity,
		RaisedBy:      actor.UserID,
		RaisedByName:  actor.Name,
		ResponsibleID: req.ResponsibleID,
		DueDate:       req.DueDate,
		Now:           s.w.now(),
	})
	if err != nil {
		return nil, err
	}
	if len(req.LotIDs) > 0 {
		lots, err := s.w.repos.Lot.FindByIDs(ctx, req.LotIDs)
		if err != nil {
			return nil, fmt.Errorf("load lots: %w", err)
		}
		for _, lot := range lots {
			if lot.ProjectID != req.ProjectID {
				return nil, fmt.Errorf("lot %s belongs to another project: %w", lot.LotNumber, engine.ErrMalformedInput)
			}
			ncr.Lots = append(ncr.Lots, entity.NCRLot{LotID: lot.ID})
		}
	}
	if err := s.w.repos.NCR.Create(ctx, &ncr); err != nil {
		return nil, fmt.Errorf("create NCR: %w", err)
	}

	t := effectTarget{
		entityType: entity.ActivityEntityNCR,
		entityID:   ncr.ID,
		entityCode: ncr.NCRNumber,
		projectID:  ncr.ProjectID,
		toStatus:   ncr.Status,
		version:    ncr.Version,
		actor:      actor,
	}
	content := fmt.Sprintf("NCR %s raised (%s, %s): %s", ncr.NCRNumber, ncr.Severity, ncr.Category, ncr.Title)
	effects := []engine.Effect{
		{Kind: engine.EffectLogActivity, Action: "create", Message: content},
		{Kind: engine.EffectPublish, Action: "create"},
	}
	if ncr.ResponsibleID != nil {
		effects = append(effects, engine.Effect{Kind: engine.EffectNotify, Action: "assigned", Recipient: *ncr.ResponsibleID, Message: content})
	}
	s.w.dispatch(ctx, t, effects)
	s.w.accepted(t, "create")

	resolved, _ := s.resolveActor(ctx, ncr.ProjectID, actor)
	return s.view(&ncr, resolved), nil
}

// List paged NCR list with derived flags
func (s *NCRService) List(ctx context.Context, page, pageSize int, filters map[string]string, actor engine.Actor) ([]NCRView, int64, error) {
	items, total, err := s.w.repos.NCR.FindAll(ctx, page, pageSize, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("list NCRs: %w", err)
	}
	out := make([]NCRView, 0, len(items))
	resolved := map[string]engine.Actor{}
	for i := range items {
		a, ok := resolved[items[i].ProjectID]
		if !ok {
			a, _ = s.resolveActor(ctx, items[i].ProjectID, actor)
			resolved[items[i].ProjectID] = a
		}
		out = append(out, *s.view(&items[i], a))
	}
	return out, total, nil
}

func (s *NCRService) Get(ctx context.Context, id string, actor engine.Actor) (*NCRView, error) {
	ncr, err := s.w.repos.NCR.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolveActor(ctx, ncr.ProjectID, actor)
	if err != nil {
		return nil, err
	}
	return s.view(ncr, resolved), nil
}

// apply loads the latest snapshot under the entity lock, evaluates the event and persists the result
func (s *NCRService) apply(ctx context.Context, id string, expectedVersion *int, cmd engine.NCRCommand) (*NCRView, error) {
	var result *NCRView
	err := s.w.withLock(ctx, entity.ActivityEntityNCR+":"+id, func() error {
		ncr, err := s.w.repos.NCR.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != ncr.Version {
			s.w.metrics.Conflict(entity.ActivityEntityNCR)
			return repository.ErrConflict
		}
		actor, err := s.resolveActor(ctx, ncr.ProjectID, cmd.Actor)
		if err != nil {
			return err
		}
		cmd.Actor = actor
		cmd.Now = s.w.now()
		cmd.EvidenceCount = len(ncr.Evidence)

		decision, err := engine.ApplyNCREvent(*ncr, cmd, s.w.settings.Policy)
		if err != nil {
			return err
		}
		t := effectTarget{
			entityType: entity.ActivityEntityNCR,
			entityID:   ncr.ID,
			entityCode: ncr.NCRNumber,
			projectID:  ncr.ProjectID,
			fromStatus: decision.FromStatus,
			toStatus:   decision.ToStatus,
			actor:      actor,
		}
		if !decision.Accepted() {
			s.w.rejected(ctx, t, string(cmd.Event), decision.Rejection)
			return decision.Rejection
		}

		next := decision.NCR
		if err := s.w.persisted(entity.ActivityEntityNCR, s.w.repos.NCR.Update(ctx, &next)); err != nil {
			return err
		}
		t.version = next.Version
		s.w.dispatch(ctx, t, decision.Effects)
		s.w.accepted(t, string(cmd.Event))
		result = s.view(&next, actor)
		return nil
	})
	return result, err
}

// RespondNCRReq root cause analysis
type RespondNCRReq struct {
	RootCause        string `json:"root_cause"`
	CorrectiveAction string `json:"corrective_action"`
	PreventiveAction string `json:"preventive_action"`
	Version          *int   `json:"version"`
}

func (s *NCRService) Respond(ctx context.Context, id string, req RespondNCRReq, actor engine.Actor) (*NCRView, error) {
	return s.apply(ctx, id, req.Version, engine.NCRCommand{
		Event:            engine.EventRespond,
		Actor:            actor,
		RootCause:        req.RootCause,
		CorrectiveAction: req.CorrectiveAction,
		PreventiveAction: req.PreventiveAction,
	})
}

// QMReviewReq quality manager review of the response
type QMReviewReq struct {
	Decision string `json:"decision" binding:"required,oneof=accept request_revision"`
	Comment  string `json:"comment"`
	Version  *int   `json:"version"`
}

func (s *NCRService) QMReview(ctx context.Context, id string, req QMReviewReq, actor engine.Actor) (*NCRView, error) {
	return s.apply(ctx, id, req.Version, engine.NCRCommand{
		Event:          engine.EventQMReview,
		Actor:          actor,
		ReviewDecision: req.Decision,
		Comment:        req.Comment,
	})
}

// QMApproveReq QM approval of a major NCR
type QMApproveReq struct {
	Comment string `json:"comment"`
	Version *int   `json:"version"`
}

func (s *NCRService) QMApprove(ctx context.Context, id string, req QMApproveReq, actor engine.Actor) (*NCRView, error) {
	return s.apply(ctx, id, req.Version, engine.NCRCommand{
		Event:   engine.EventQMApprove,
		Actor:   actor,
		Comment: req.Comment,
	})
}

// NotifyClientReq client notification of a major NCR
type NotifyClientReq struct {
	NotificationRef string `json:"notification_ref"`
	Version         *int   `json:"version"`
}

func (s *NCRService) NotifyClient(ctx context.Context, id string, req NotifyClientReq, actor engine.Actor) (*NCRView, error) {
	return s.apply(ctx, id, req.Version, engine.NCRCommand{
		Event:           engine.EventNotifyClient,
		Actor:           actor,
		NotificationRef: req.NotificationRef,
	})
}

// SubmitForVerificationReq rectification complete
type SubmitForVerificationReq struct {
	RectificationNotes string `json:"rectification_notes"`
	Version            *int   `json:"version"`
}

func (s *NCRService) SubmitForVerification(ctx context.Context, id string, req SubmitForVerificationReq, actor engine.Actor) (*NCRView, error) {
	return s.apply(ctx, id, req.Version, engine.NCRCommand{
		Event:              engine.EventSubmitForVerification,
		Actor:              actor,
		RectificationNotes: req.RectificationNotes,
	})
}

// RejectRectificationReq send rectification back
type RejectRectificationReq struct {
	Feedback string `json:"feedback"`
	Version  *int   `json:"version"`
}

func (s *NCRService) RejectRectification(ctx context.Context, id string, req RejectRectificationReq, actor engine.Actor) (*NCRView, error) {
	return s.apply(ctx, id, req.Version, engine.NCRCommand{
		Event:    engine.EventRejectRectification,
		Actor:    actor,
		Feedback: req.Feedback,
	})
}

// CloseNCRReq close, optionally by concession
type CloseNCRReq struct {
	WithConcession    bool   `json:"with_concession"`
	VerificationNotes string `json:"verification_notes"`
	LessonsLearned    string `json:"lessons_learned"`
	Justification     string `json:"concession_justification"`
	RiskAssessment    string `json:"concession_risk_assessment"`
	ClientApprovalRef string `json:"client_approval_ref"`
	Version           *int   `json:"version"`
}

func (s *NCRService) Close(ctx context.Context, id string, req CloseNCRReq, actor engine.Actor) (*NCRView, error) {
	event := engine.EventClose
	if req.WithConcession {
		event = engine.EventCloseWithConcession
	}
	return s.apply(ctx, id, req.Version, engine.NCRCommand{
		Event:             event,
		Actor:             actor,
		VerificationNotes: req.VerificationNotes,
		LessonsLearned:    req.LessonsLearned,
		Justification:     req.Justification,
		RiskAssessment:    req.RiskAssessment,
		ClientApprovalRef: req.ClientApprovalRef,
	})
}

// EvidenceUpload file attached to an NCR
type EvidenceUpload struct {
	Type        string
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// EvidenceRefReq evidence already stored elsewhere
type EvidenceRefReq struct {
	Type     string `json:"type" binding:"omitempty,oneof=photo document test_result"`
	FileName string `json:"file_name" binding:"required"`
	URL      string `json:"url" binding:"required"`
}

// AddEvidence uploads a file into the object store and attaches it
func (s *NCRService) AddEvidence(ctx context.Context, id string, up EvidenceUpload, actor engine.Actor) (*entity.NCREvidence, error) {
	if s.w.store == nil {
		return nil, errors.New("evidence storage is not configured")
	}
	ncr, err := s.w.repos.NCR.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	obj, err := s.w.store.Put(ctx, "ncr/"+ncr.ID, up.FileName, up.Reader, up.Size, up.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store evidence: %w", err)
	}
	return s.attachEvidence(ctx, ncr, &entity.NCREvidence{
		Type:        evidenceType(up.Type),
		FileName:    up.FileName,
		ObjectKey:   obj.Key,
		URL:         obj.URL,
		ContentType: up.ContentType,
		Size:        obj.Size,
	}, actor)
}

// AddEvidenceRef attaches evidence by reference
func (s *NCRService) AddEvidenceRef(ctx context.Context, id string, req EvidenceRefReq, actor engine.Actor) (*entity.NCREvidence, error) {
	ncr, err := s.w.repos.NCR.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.attachEvidence(ctx, ncr, &entity.NCREvidence{
		Type:     evidenceType(req.Type),
		FileName: req.FileName,
		URL:      req.URL,
	}, actor)
}

func (s *NCRService) attachEvidence(ctx context.Context, ncr *entity.NCR, ev *entity.NCREvidence, actor engine.Actor) (*entity.NCREvidence, error) {
	ev.NCRID = ncr.ID
	ev.UploadedBy = actor.UserID
	ev.CreatedAt = s.w.now()
	if err := s.w.repos.NCR.AddEvidence(ctx, ev); err != nil {
		return nil, fmt.Errorf("attach evidence: %w", err)
	}
	t := effectTarget{
		entityType: entity.ActivityEntityNCR,
		entityID:   ncr.ID,
		entityCode: ncr.NCRNumber,
		projectID:  ncr.ProjectID,
		fromStatus: ncr.Status,
		toStatus:   ncr.Status,
		version:    ncr.Version,
		actor:      actor,
	}
	s.w.dispatch(ctx, t, []engine.Effect{
		{Kind: engine.EffectLogActivity, Action: "add_evidence", Message: fmt.Sprintf("Evidence %s attached", ev.FileName)},
		{Kind: engine.EffectPublish, Action: "add_evidence"},
	})
	return ev, nil
}

func evidenceType(t string) string {
	if t == "" {
		return "photo"
	}
	return t
}

// RoleCheck caller's capabilities on a project
type RoleCheck struct {
	ProjectID        string   `json:"project_id"`
	UserID           string   `json:"user_id"`
	Roles            []string `json:"roles"`
	IsQualityManager bool     `json:"is_quality_manager"`
	CanApprove       bool     `json:"can_approve"`
}

// CheckRole resolves the caller's project roles and QM capability
func (s *NCRService) CheckRole(ctx context.Context, projectID string, actor engine.Actor) (*RoleCheck, error) {
	if _, err := s.w.repos.Project.FindByID(ctx, projectID); err != nil {
		return nil, err
	}
	resolved, err := s.resolveActor(ctx, projectID, actor)
	if err != nil {
		return nil, err
	}
	isQM := s.w.settings.Policy.IsQualityManager(resolved)
	return &RoleCheck{
		ProjectID:        projectID,
		UserID:           actor.UserID,
		Roles:            resolved.Roles,
		IsQualityManager: isQM,
		CanApprove:       isQM,
	}, nil
}

// resolveActor merges token roles with project membership roles
func (s *NCRService) resolveActor(ctx context.Context, projectID string, actor engine.Actor) (engine.Actor, error) {
	projectRoles, err := s.projectRoles(ctx, projectID, actor.UserID)
	if err != nil {
		return actor, err
	}
	out := actor
	out.Roles = append([]string{}, actor.Roles...)
	for _, r := range projectRoles {
		if !out.HasRole(r) {
			out.Roles = append(out.Roles, r)
		}
	}
	return out, nil
}

func (s *NCRService) projectRoles(ctx context.Context, projectID, userID string) ([]string, error) {
	if userID == "" {
		return nil, nil
	}
	key := fmt.Sprintf("siteqa:roles:%s:%s", projectID, userID)
	if s.w.redis != nil {
		cached, err := s.w.redis.Get(ctx, key).Result()
		if err == nil {
			var roles []string
			if json.Unmarshal([]byte(cached), &roles) == nil {
				return roles, nil
			}
		} else if err != redis.Nil {
			s.w.logger.Debug("role cache read failed", zap.Error(err))
		}
	}

	roles, err := s.w.repos.Project.FindMemberRoles(ctx, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("load project roles: %w", err)
	}
	if s.w.redis != nil && s.w.settings.RoleCacheTTL > 0 {
		data, _ := json.Marshal(roles)
		if err := s.w.redis.Set(ctx, key, data, s.w.settings.RoleCacheTTL).Err(); err != nil {
			s.w.logger.Debug("role cache write failed", zap.Error(err))
		}
	}
	return roles, nil
}

// History activity log of an NCR
func (s *NCRService) History(ctx context.Context, id string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	if _, err := s.w.repos.NCR.FindByID(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.w.repos.ActivityLog.FindByEntity(ctx, entity.ActivityEntityNCR, id, page, pageSize)
}
