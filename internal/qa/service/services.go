package service

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/siteqa/internal/config"
	"github.com/bitfantasy/siteqa/internal/qa/engine"
	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"github.com/bitfantasy/siteqa/internal/qa/metrics"
	"github.com/bitfantasy/siteqa/internal/qa/repository"
	"github.com/bitfantasy/siteqa/internal/qa/sse"
	"github.com/bitfantasy/siteqa/internal/shared/notify"
	"github.com/bitfantasy/siteqa/internal/shared/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Settings workflow settings resolved from configuration
type Settings struct {
	DefaultRegion  string
	MinNoticeDays  int
	ApprovalPolicy string
	Policy         engine.Policy
	RoleCacheTTL   time.Duration
	NotifyTimeout  time.Duration
}

// SettingsFromConfig maps the qa config section
func SettingsFromConfig(cfg config.QAConfig) Settings {
	return Settings{
		DefaultRegion:  cfg.DefaultRegion,
		MinNoticeDays:  cfg.MinNoticeDays,
		ApprovalPolicy: cfg.HoldPointApprovalPolicy,
		Policy:         engine.Policy{QMRoles: cfg.EffectiveQMRoles()},
		RoleCacheTTL:   cfg.RoleCacheTTL,
		NotifyTimeout:  30 * time.Second,
	}
}

// workflow plumbing shared by the QA services
type workflow struct {
	repos    *repository.Repositories
	settings Settings
	locker   Locker
	notifier notify.Notifier
	hub      *sse.Hub
	metrics  *metrics.Metrics
	store    storage.Store
	redis    *redis.Client
	logger   *zap.Logger
	now      func() time.Time
}

// Services QA service set
type Services struct {
	NCR          *NCRService
	HoldPoint    *HoldPointService
	Claim        *ClaimService
	Completeness *CompletenessService
	Lot          *LotService

	w *workflow
}

func NewServices(repos *repository.Repositories, settings Settings, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(settings.Policy.QMRoles) == 0 {
		settings.Policy = engine.DefaultPolicy()
	}
	w := &workflow{
		repos:    repos,
		settings: settings,
		locker:   NewLocalLocker(),
		notifier: notify.LogNotifier{Logger: logger},
		logger:   logger,
		now:      time.Now,
	}
	completeness := &CompletenessService{w: w}
	return &Services{
		NCR:          &NCRService{w: w},
		HoldPoint:    &HoldPointService{w: w},
		Claim:        &ClaimService{w: w, completeness: completeness},
		Completeness: completeness,
		Lot:          &LotService{w: w},
		w:            w,
	}
}

// SetLocker use a distributed lock
func (s *Services) SetLocker(l Locker) { s.w.locker = l }

// SetNotifier outbound notification delivery
func (s *Services) SetNotifier(n notify.Notifier) { s.w.notifier = n }

// SetHub SSE hub for update signals
func (s *Services) SetHub(h *sse.Hub) { s.w.hub = h }

// SetMetrics prometheus collectors
func (s *Services) SetMetrics(m *metrics.Metrics) { s.w.metrics = m }

// SetStore evidence object store
func (s *Services) SetStore(st storage.Store) { s.w.store = st }

// SetRedis redis client for the role cache
func (s *Services) SetRedis(c *redis.Client) { s.w.redis = c }

// SetClock override the clock (tests)
func (s *Services) SetClock(now func() time.Time) { s.w.now = now }

// withLock runs fn while holding the entity lock
func (w *workflow) withLock(ctx context.Context, key string, fn func() error) error {
	release, err := w.locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// effectTarget identifies the entity a set of effects applies to
type effectTarget struct {
	entityType string
	entityID   string
	entityCode string
	projectID  string
	fromStatus string
	toStatus   string
	version    int
	actor      engine.Actor
}

// dispatch carries out effects after the new snapshot is persisted.
// Failures are logged and never undo the transition.
func (w *workflow) dispatch(ctx context.Context, t effectTarget, effects []engine.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case engine.EffectLogActivity:
			w.repos.ActivityLog.LogActivity(ctx, t.entityType, t.entityID, t.entityCode, e.Action,
				t.fromStatus, t.toStatus, e.Message, t.actor.UserID, t.actor.Name, nil)
		case engine.EffectNotify:
			w.notify(ctx, t, e)
		case engine.EffectPublish:
			w.publish(t, e.Action)
		}
	}
}

func (w *workflow) notify(ctx context.Context, t effectTarget, e engine.Effect) {
	msg := notify.Message{
		ProjectID:  t.projectID,
		EntityType: t.entityType,
		EntityID:   t.entityID,
		EntityCode: t.entityCode,
		Action:     e.Action,
		Recipient:  e.Recipient,
		Text:       e.Message,
		SentAt:     w.now(),
	}
	notifier := w.notifier
	timeout := w.settings.NotifyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := notifier.Send(sendCtx, msg); err != nil {
			w.metrics.EffectFailed(string(engine.EffectNotify))
			w.logger.Warn("notification failed",
				zap.String("entity_type", msg.EntityType),
				zap.String("entity_id", msg.EntityID),
				zap.String("action", msg.Action),
				zap.Error(err))
		}
	}()
}

func (w *workflow) publish(t effectTarget, action string) {
	if w.hub == nil {
		return
	}
	switch t.entityType {
	case entity.ActivityEntityNCR:
		w.hub.PublishNCRUpdate(t.projectID, t.entityID, action, t.toStatus, t.version)
	case entity.ActivityEntityHoldPoint:
		w.hub.PublishHoldPointUpdate(t.projectID, t.entityID, action, t.toStatus, t.version)
	case entity.ActivityEntityClaim:
		w.hub.PublishClaimUpdate(t.projectID, t.entityID, action, t.toStatus, t.version)
	}
}

// accepted records an accepted event
func (w *workflow) accepted(t effectTarget, event string) {
	w.metrics.Accepted(t.entityType, event)
	w.logger.Info("transition accepted",
		zap.String("entity_type", t.entityType),
		zap.String("entity_id", t.entityID),
		zap.String("event", event),
		zap.String("from", t.fromStatus),
		zap.String("to", t.toStatus))
}

// rejected logs a rejected mutating call to the activity log
func (w *workflow) rejected(ctx context.Context, t effectTarget, event string, r engine.Rejection) {
	w.metrics.Rejected(t.entityType, string(r.Kind()), r.RejectionCode())
	w.logger.Info("transition rejected",
		zap.String("entity_type", t.entityType),
		zap.String("entity_id", t.entityID),
		zap.String("event", event),
		zap.String("kind", string(r.Kind())),
		zap.String("code", r.RejectionCode()))
	w.repos.ActivityLog.LogActivity(ctx, t.entityType, t.entityID, t.entityCode, "rejected:"+event,
		t.fromStatus, t.fromStatus, r.Error(), t.actor.UserID, t.actor.Name,
		entity.JSONB{"kind": string(r.Kind()), "code": r.RejectionCode()})
}

// persisted maps a versioned update error, counting conflicts
func (w *workflow) persisted(entityType string, err error) error {
	if errors.Is(err, repository.ErrConflict) {
		w.metrics.Conflict(entityType)
	}
	return err
}
