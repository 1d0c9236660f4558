package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/entity"
)

// NCREvent NCR lifecycle event
type NCREvent string

const (
	EventRespond               NCREvent = "respond"
	EventQMReview              NCREvent = "qm_review"
	EventSubmitForVerification NCREvent = "submit_for_verification"
	EventRejectRectification   NCREvent = "reject_rectification"
	EventQMApprove             NCREvent = "qm_approve"
	EventNotifyClient          NCREvent = "notify_client"
	EventClose                 NCREvent = "close"
	EventCloseWithConcession   NCREvent = "close_with_concession"
)

// QM review decisions
const (
	ReviewAccept          = "accept"
	ReviewRequestRevision = "request_revision"
)

// anyStatus valid-from wildcard
const anyStatus = "*"

type ncrTransition struct {
	from []string
	// "" keeps the current status
	to string
}

// ncrTransitions single source of truth for NCR state changes.
// qm_review with request_revision keeps the NCR in investigating.
var ncrTransitions = map[NCREvent]ncrTransition{
	EventRespond:               {from: []string{entity.NCRStatusOpen}, to: entity.NCRStatusInvestigating},
	EventQMReview:              {from: []string{entity.NCRStatusInvestigating}, to: entity.NCRStatusVerification},
	EventSubmitForVerification: {from: []string{entity.NCRStatusInvestigating, entity.NCRStatusRectification}, to: entity.NCRStatusVerification},
	EventRejectRectification:   {from: []string{entity.NCRStatusVerification, entity.NCRStatusRectification}, to: entity.NCRStatusRectification},
	EventQMApprove:             {from: []string{entity.NCRStatusVerification}},
	EventNotifyClient:          {from: []string{anyStatus}},
	EventClose:                 {from: []string{entity.NCRStatusVerification}, to: entity.NCRStatusClosed},
	EventCloseWithConcession:   {from: []string{entity.NCRStatusVerification, entity.NCRStatusRectification}, to: entity.NCRStatusClosedConcession},
}

// NCREvents events in display order
var NCREvents = []NCREvent{
	EventRespond,
	EventQMReview,
	EventSubmitForVerification,
	EventRejectRectification,
	EventQMApprove,
	EventNotifyClient,
	EventClose,
	EventCloseWithConcession,
}

func (t ncrTransition) allows(status string) bool {
	for _, f := range t.from {
		if f == anyStatus || f == status {
			return true
		}
	}
	return false
}

// Actor user invoking an action
type Actor struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles"`
}

// HasRole reports whether the actor holds any of roles
func (a Actor) HasRole(roles ...string) bool {
	for _, have := range a.Roles {
		for _, want := range roles {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// Policy capability policy for NCR actions
type Policy struct {
	// roles that carry the quality-manager capability
	QMRoles []string
}

// DefaultPolicy quality_manager only
func DefaultPolicy() Policy {
	return Policy{QMRoles: []string{entity.RoleQualityManager}}
}

// IsQualityManager actor holds the quality-manager capability
func (p Policy) IsQualityManager(a Actor) bool {
	return a.HasRole(p.QMRoles...)
}

// NCRDraft fields supplied when raising an NCR
type NCRDraft struct {
	ProjectID     string
	Title         string
	Description   string
	Category      string
	Severity      string
	RaisedBy      string
	RaisedByName  string
	ResponsibleID *string
	DueDate       *time.Time
	Now           time.Time
}

// ValidNCRCategory known category
func ValidNCRCategory(c string) bool {
	switch c {
	case entity.NCRCategoryMaterials, entity.NCRCategoryWorkmanship, entity.NCRCategoryDocumentation,
		entity.NCRCategoryProcess, entity.NCRCategoryDesign, entity.NCRCategoryOther:
		return true
	}
	return false
}

// ValidNCRSeverity minor or major
func ValidNCRSeverity(s string) bool {
	return s == entity.NCRSeverityMinor || s == entity.NCRSeverityMajor
}

// OpenNCR builds a new NCR snapshot in status open with derived flags set
func OpenNCR(d NCRDraft) (entity.NCR, error) {
	if !ValidNCRCategory(d.Category) {
		return entity.NCR{}, malformed("unknown NCR category %q", d.Category)
	}
	if !ValidNCRSeverity(d.Severity) {
		return entity.NCR{}, malformed("unknown NCR severity %q", d.Severity)
	}
	if d.RaisedBy == "" {
		return entity.NCR{}, malformed("NCR requires a raising user")
	}
	return entity.NCR{
		ProjectID:                  d.ProjectID,
		Title:                      d.Title,
		Description:                d.Description,
		Category:                   d.Category,
		Severity:                   d.Severity,
		Status:                     entity.NCRStatusOpen,
		RaisedBy:                   d.RaisedBy,
		RaisedByName:               d.RaisedByName,
		ResponsibleID:              d.ResponsibleID,
		DueDate:                    d.DueDate,
		QMApprovalRequired:         QMApprovalRequired(d.Severity),
		ClientNotificationRequired: ClientNotificationRequired(d.Severity),
		Version:                    1,
		CreatedAt:                  d.Now,
		UpdatedAt:                  d.Now,
	}, nil
}

// QMApprovalRequired severity == major
func QMApprovalRequired(severity string) bool {
	return severity == entity.NCRSeverityMajor
}

// ClientNotificationRequired severity == major
func ClientNotificationRequired(severity string) bool {
	return severity == entity.NCRSeverityMajor
}

// NCRCommand an event plus whatever payload it carries
type NCRCommand struct {
	Event NCREvent
	Actor Actor
	Now   time.Time

	// respond
	RootCause        string
	CorrectiveAction string
	PreventiveAction string

	// qm_review
	ReviewDecision string
	Comment        string

	// submit_for_verification
	EvidenceCount      int
	RectificationNotes string

	// reject_rectification
	Feedback string

	// notify_client
	NotificationRef string

	// close / close_with_concession
	VerificationNotes string
	LessonsLearned    string
	Justification     string
	RiskAssessment    string
	ClientApprovalRef string
}

// NCRDecision outcome of an NCR event
type NCRDecision struct {
	NCR        entity.NCR
	Event      NCREvent
	FromStatus string
	ToStatus   string
	Effects    []Effect
	Rejection  Rejection
}

// Accepted no rejection
func (d NCRDecision) Accepted() bool {
	return d.Rejection == nil
}

// ValidNCRStatus known status
func ValidNCRStatus(s string) bool {
	switch s {
	case entity.NCRStatusOpen, entity.NCRStatusInvestigating, entity.NCRStatusRectification,
		entity.NCRStatusVerification, entity.NCRStatusClosed, entity.NCRStatusClosedConcession:
		return true
	}
	return false
}

// ApplyNCREvent evaluates cmd against the snapshot and returns the next snapshot or a rejection.
// Malformed snapshots or unknown events return ErrMalformedInput.
func ApplyNCREvent(ncr entity.NCR, cmd NCRCommand, policy Policy) (NCRDecision, error) {
	if !ValidNCRStatus(ncr.Status) {
		return NCRDecision{}, malformed("unknown NCR status %q", ncr.Status)
	}
	if !ValidNCRSeverity(ncr.Severity) {
		return NCRDecision{}, malformed("unknown NCR severity %q", ncr.Severity)
	}
	t, ok := ncrTransitions[cmd.Event]
	if !ok {
		return NCRDecision{}, malformed("unknown NCR event %q", cmd.Event)
	}
	if cmd.EvidenceCount < 0 {
		return NCRDecision{}, malformed("negative evidence count")
	}
	if cmd.Event == EventQMReview && cmd.ReviewDecision != ReviewAccept && cmd.ReviewDecision != ReviewRequestRevision {
		return NCRDecision{}, malformed("unknown review decision %q", cmd.ReviewDecision)
	}

	reject := func(r Rejection) (NCRDecision, error) {
		return NCRDecision{NCR: ncr, Event: cmd.Event, FromStatus: ncr.Status, ToStatus: ncr.Status, Rejection: r}, nil
	}

	if !t.allows(ncr.Status) {
		return reject(violation(CodeInvalidTransition, ncr.Status,
			"%s is not allowed while the NCR is %s", cmd.Event, ncr.Status))
	}

	next := ncr
	now := cmd.Now
	actorID := cmd.Actor.UserID
	var r Rejection

	switch cmd.Event {
	case EventRespond:
		r = applyRespond(&next, cmd, now)
	case EventQMReview:
		r = applyQMReview(&next, cmd, policy)
	case EventSubmitForVerification:
		if cmd.EvidenceCount < 1 {
			r = violation(CodeEvidenceRequired, ncr.Status, "attach at least one piece of rectification evidence")
			break
		}
		next.SubmittedForVerifyAt = &now
		if cmd.RectificationNotes != "" {
			next.RectificationNotes = cmd.RectificationNotes
		}
	case EventRejectRectification:
		if strings.TrimSpace(cmd.Feedback) == "" {
			r = violation(CodeFeedbackRequired, ncr.Status, "feedback is required when rejecting rectification")
			break
		}
		next.RectificationFeedback = strings.TrimSpace(cmd.Feedback)
	case EventQMApprove:
		if !ncr.IsMajor() {
			r = violation(CodeQMApprovalNotApplicable, ncr.Status, "QM approval only applies to major NCRs")
			break
		}
		if !policy.IsQualityManager(cmd.Actor) {
			r = qmCapabilityRequired("approve")
			break
		}
		next.QMApprovedAt = &now
		next.QMApprovedBy = &actorID
		if cmd.Comment != "" {
			next.QMReviewComment = cmd.Comment
		}
	case EventNotifyClient:
		if !ncr.IsMajor() || !ncr.ClientNotificationRequired {
			r = violation(CodeClientNotificationNotRequired, ncr.Status, "client notification is only required for major NCRs")
			break
		}
		if ncr.ClientNotifiedAt != nil {
			r = violation(CodeClientAlreadyNotified, ncr.Status, "client was already notified on %s", ncr.ClientNotifiedAt.Format("2006-01-02"))
			break
		}
		next.ClientNotifiedAt = &now
		next.ClientNotificationRef = cmd.NotificationRef
	case EventClose:
		if ncr.IsMajor() && ncr.QMApprovedAt == nil {
			r = violation(CodeQMApprovalRequired, ncr.Status, "major NCRs require QM approval before closure")
			break
		}
		next.ClosedAt = &now
		next.ClosedBy = &actorID
		next.VerificationNotes = cmd.VerificationNotes
		next.LessonsLearned = cmd.LessonsLearned
	case EventCloseWithConcession:
		r = applyConcession(&next, cmd, now)
	}
	if r != nil {
		return reject(r)
	}

	to := t.to
	if cmd.Event == EventQMReview && cmd.ReviewDecision == ReviewRequestRevision {
		to = ""
	}
	if to != "" {
		next.Status = to
	}
	if err := closureInvariant(next); err != nil {
		return reject(err)
	}
	next.UpdatedAt = now

	return NCRDecision{
		NCR:        next,
		Event:      cmd.Event,
		FromStatus: ncr.Status,
		ToStatus:   next.Status,
		Effects:    ncrEffects(ncr, next, cmd),
	}, nil
}

func applyRespond(n *entity.NCR, cmd NCRCommand, now time.Time) Rejection {
	var missing []string
	if strings.TrimSpace(cmd.RootCause) == "" {
		missing = append(missing, "root_cause")
	}
	if strings.TrimSpace(cmd.CorrectiveAction) == "" {
		missing = append(missing, "corrective_action")
	}
	if strings.TrimSpace(cmd.PreventiveAction) == "" {
		missing = append(missing, "preventive_action")
	}
	if len(missing) > 0 {
		return violation(CodeResponseIncomplete, n.Status, "response is missing %s", strings.Join(missing, ", "))
	}
	actorID := cmd.Actor.UserID
	n.RootCause = strings.TrimSpace(cmd.RootCause)
	n.CorrectiveAction = strings.TrimSpace(cmd.CorrectiveAction)
	n.PreventiveAction = strings.TrimSpace(cmd.PreventiveAction)
	n.RespondedAt = &now
	n.RespondedBy = &actorID
	return nil
}

func applyQMReview(n *entity.NCR, cmd NCRCommand, policy Policy) Rejection {
	if !policy.IsQualityManager(cmd.Actor) {
		return qmCapabilityRequired("review")
	}
	n.QMReviewComment = cmd.Comment
	return nil
}

func applyConcession(n *entity.NCR, cmd NCRCommand, now time.Time) Rejection {
	if strings.TrimSpace(cmd.Justification) == "" || strings.TrimSpace(cmd.RiskAssessment) == "" {
		return violation(CodeConcessionIncomplete, n.Status, "concession closure requires a justification and a risk assessment")
	}
	if n.IsMajor() {
		if n.QMApprovedAt == nil {
			return violation(CodeQMApprovalRequired, n.Status, "major NCRs require QM approval before closure")
		}
		if strings.TrimSpace(cmd.ClientApprovalRef) == "" {
			return violation(CodeClientApprovalRequired, n.Status, "major NCRs closed by concession require a client approval reference")
		}
	}
	actorID := cmd.Actor.UserID
	n.ConcessionJustification = strings.TrimSpace(cmd.Justification)
	n.ConcessionRiskAssessment = strings.TrimSpace(cmd.RiskAssessment)
	n.ConcessionClientApprovalRef = strings.TrimSpace(cmd.ClientApprovalRef)
	n.LessonsLearned = cmd.LessonsLearned
	n.ClosedAt = &now
	n.ClosedBy = &actorID
	return nil
}

// closureInvariant a major NCR never becomes terminal without QM approval
func closureInvariant(n entity.NCR) Rejection {
	if n.IsTerminal() && n.IsMajor() && n.QMApprovedAt == nil {
		return violation(CodeQMApprovalRequired, n.Status, "major NCRs require QM approval before closure")
	}
	return nil
}

func qmCapabilityRequired(what string) *AuthorizationFailure {
	return &AuthorizationFailure{
		Code:       CodeQMCapabilityRequired,
		Capability: "quality_manager",
		Message:    fmt.Sprintf("only a quality manager can %s this NCR", what),
	}
}

func ncrEffects(before, after entity.NCR, cmd NCRCommand) []Effect {
	action := string(cmd.Event)
	if cmd.Event == EventQMReview {
		action = "qm_review_" + cmd.ReviewDecision
	}
	var msg string
	if before.Status != after.Status {
		msg = fmt.Sprintf("NCR %s: %s -> %s", after.NCRNumber, before.Status, after.Status)
	} else {
		msg = fmt.Sprintf("NCR %s: %s", after.NCRNumber, action)
	}

	effects := []Effect{{Kind: EffectLogActivity, Action: action, Message: msg}}
	switch cmd.Event {
	case EventRespond, EventSubmitForVerification:
		if after.IsMajor() && after.Status == entity.NCRStatusVerification && after.QMApprovedAt == nil {
			effects = append(effects, Effect{Kind: EffectNotify, Action: "qm_approval_needed", Recipient: entity.RoleQualityManager,
				Message: fmt.Sprintf("NCR %s is awaiting QM approval", after.NCRNumber)})
		} else {
			effects = append(effects, Effect{Kind: EffectNotify, Action: action, Recipient: after.RaisedBy, Message: msg})
		}
	case EventRejectRectification:
		recipient := after.RaisedBy
		if after.ResponsibleID != nil {
			recipient = *after.ResponsibleID
		}
		effects = append(effects, Effect{Kind: EffectNotify, Action: action, Recipient: recipient, Message: msg + ": " + after.RectificationFeedback})
	case EventNotifyClient:
		effects = append(effects, Effect{Kind: EffectNotify, Action: action, Recipient: "client",
			Message: fmt.Sprintf("Major non-conformance %s: %s", after.NCRNumber, after.Title)})
	case EventClose, EventCloseWithConcession:
		effects = append(effects, Effect{Kind: EffectNotify, Action: action, Recipient: after.RaisedBy, Message: msg})
	}
	return append(effects, Effect{Kind: EffectPublish, Action: action})
}

// AgeDays calendar days since the NCR was raised
func AgeDays(n entity.NCR, now time.Time) int {
	d := CalendarDaysBetween(n.CreatedAt, now)
	if d < 0 {
		return 0
	}
	return d
}

// IsNCROverdue due date passed and status not terminal
func IsNCROverdue(n entity.NCR, now time.Time) bool {
	if n.DueDate == nil || n.IsTerminal() {
		return false
	}
	return CalendarDaysBetween(now, *n.DueDate) < 0
}

// AvailableActions events the actor could currently invoke, judged on state alone.
// Payload guards (text fields, evidence) are still checked on submission.
func AvailableActions(n entity.NCR, actor Actor, policy Policy) []NCREvent {
	isQM := policy.IsQualityManager(actor)
	out := []NCREvent{}
	for _, ev := range NCREvents {
		if !ncrTransitions[ev].allows(n.Status) {
			continue
		}
		switch ev {
		case EventQMReview:
			if !isQM {
				continue
			}
		case EventQMApprove:
			if !n.IsMajor() || !isQM || n.QMApprovedAt != nil {
				continue
			}
		case EventNotifyClient:
			if !n.IsMajor() || !n.ClientNotificationRequired || n.ClientNotifiedAt != nil {
				continue
			}
		case EventClose, EventCloseWithConcession:
			if n.IsMajor() && n.QMApprovedAt == nil {
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}
