package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedInput input the engine cannot interpret (unknown status, unknown event, negative counts)
var ErrMalformedInput = errors.New("malformed input")

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}

// Kind rejection variant
type Kind string

const (
	KindGuardViolation       Kind = "guard_violation"
	KindNoticeWarning        Kind = "notice_warning"
	KindAuthorizationFailure Kind = "authorization_failure"
)

// Rejection codes
const (
	CodeInvalidTransition             = "INVALID_TRANSITION"
	CodePrerequisitesIncomplete       = "PREREQUISITES_INCOMPLETE"
	CodeNoticePeriodWarning           = "NOTICE_PERIOD_WARNING"
	CodeOverrideReasonRequired        = "OVERRIDE_REASON_REQUIRED"
	CodeReleaserRequired              = "RELEASER_REQUIRED"
	CodeSignatureRequired             = "SIGNATURE_REQUIRED"
	CodeEvidenceRequired              = "EVIDENCE_REQUIRED"
	CodeResponseIncomplete            = "RESPONSE_INCOMPLETE"
	CodeFeedbackRequired              = "FEEDBACK_REQUIRED"
	CodeQMApprovalRequired            = "QM_APPROVAL_REQUIRED"
	CodeQMApprovalNotApplicable       = "QM_APPROVAL_NOT_APPLICABLE"
	CodeClientNotificationNotRequired = "CLIENT_NOTIFICATION_NOT_REQUIRED"
	CodeClientAlreadyNotified         = "CLIENT_ALREADY_NOTIFIED"
	CodeConcessionIncomplete          = "CONCESSION_INCOMPLETE"
	CodeClientApprovalRequired        = "CLIENT_APPROVAL_REQUIRED"
	CodeQMCapabilityRequired          = "QM_CAPABILITY_REQUIRED"
	CodeClaimLocked                   = "CLAIM_LOCKED"
	CodeCertifiedAmountRequired       = "CERTIFIED_AMOUNT_REQUIRED"
	CodeDisputeNotesRequired          = "DISPUTE_NOTES_REQUIRED"
	CodeHoldPointNotReleased          = "HOLD_POINT_NOT_RELEASED"
)

// Rejection closed set of typed refusals returned by the engine.
// Implemented only by *GuardViolation, *NoticeWarning and *AuthorizationFailure.
type Rejection interface {
	error
	Kind() Kind
	RejectionCode() string
	Details() map[string]interface{}
	sealed()
}

// GuardViolation an unmet precondition the caller has to fix before retrying
type GuardViolation struct {
	Code    string
	Message string
	// ordered by sequence; only set for PREREQUISITES_INCOMPLETE
	IncompleteItems []Prerequisite
	// status the entity was in when the guard fired
	Status string
}

func (g *GuardViolation) Error() string         { return g.Code + ": " + g.Message }
func (g *GuardViolation) Kind() Kind            { return KindGuardViolation }
func (g *GuardViolation) RejectionCode() string { return g.Code }
func (g *GuardViolation) sealed()               {}

func (g *GuardViolation) Details() map[string]interface{} {
	d := map[string]interface{}{}
	if g.Status != "" {
		d["status"] = g.Status
	}
	if g.IncompleteItems != nil {
		d["incomplete_items"] = g.IncompleteItems
	}
	return d
}

// NoticeWarning insufficient notice; resubmittable with override and a reason
type NoticeWarning struct {
	ScheduledDate     time.Time
	WorkingDaysNotice int
	MinimumNoticeDays int
}

func (w *NoticeWarning) Error() string {
	return fmt.Sprintf("%s: %d working day(s) notice given, %d required", CodeNoticePeriodWarning, w.WorkingDaysNotice, w.MinimumNoticeDays)
}
func (w *NoticeWarning) Kind() Kind            { return KindNoticeWarning }
func (w *NoticeWarning) RejectionCode() string { return CodeNoticePeriodWarning }
func (w *NoticeWarning) sealed()               {}

func (w *NoticeWarning) Details() map[string]interface{} {
	return map[string]interface{}{
		"scheduled_date":      w.ScheduledDate.Format("2006-01-02"),
		"working_days_notice": w.WorkingDaysNotice,
		"minimum_notice_days": w.MinimumNoticeDays,
		"can_override":        true,
	}
}

// AuthorizationFailure the actor lacks a required capability
type AuthorizationFailure struct {
	Code       string
	Capability string
	Message    string
}

func (a *AuthorizationFailure) Error() string         { return a.Code + ": " + a.Message }
func (a *AuthorizationFailure) Kind() Kind            { return KindAuthorizationFailure }
func (a *AuthorizationFailure) RejectionCode() string { return a.Code }
func (a *AuthorizationFailure) sealed()               {}

func (a *AuthorizationFailure) Details() map[string]interface{} {
	return map[string]interface{}{"capability": a.Capability}
}

func violation(code, status, format string, args ...interface{}) *GuardViolation {
	return &GuardViolation{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps err into a Rejection if it carries one
func AsRejection(err error) (Rejection, bool) {
	var g *GuardViolation
	if errors.As(err, &g) {
		return g, true
	}
	var w *NoticeWarning
	if errors.As(err, &w) {
		return w, true
	}
	var a *AuthorizationFailure
	if errors.As(err, &a) {
		return a, true
	}
	return nil, false
}

// EffectKind side effect requested by a decision
type EffectKind string

const (
	EffectLogActivity EffectKind = "log_activity"
	EffectNotify      EffectKind = "notify"
	EffectPublish     EffectKind = "publish"
)

// Effect side effect for the caller to carry out after persisting
type Effect struct {
	Kind      EffectKind `json:"kind"`
	Action    string     `json:"action"`
	Recipient string     `json:"recipient,omitempty"`
	Message   string     `json:"message"`
}
