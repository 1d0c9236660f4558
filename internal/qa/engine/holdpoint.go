package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/entity"
)

// DefaultMinimumNoticeDays working days notice when the project sets none
const DefaultMinimumNoticeDays = 1

// Prerequisite checklist item preceding a hold point in the same ITP instance
type Prerequisite struct {
	ItemID      string `json:"item_id"`
	Sequence    int    `json:"sequence"`
	Description string `json:"description"`
	IsCompleted bool   `json:"is_completed"`
}

// PrerequisitesFor items with a sequence lower than holdSequence, ascending
func PrerequisitesFor(items []entity.ITPChecklistItem, holdSequence int) []Prerequisite {
	out := make([]Prerequisite, 0, len(items))
	for _, it := range items {
		if it.Sequence >= holdSequence {
			continue
		}
		out = append(out, Prerequisite{
			ItemID:      it.ID,
			Sequence:    it.Sequence,
			Description: it.Description,
			IsCompleted: it.IsCompleted,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// IncompletePrerequisites incomplete items in ascending sequence order
func IncompletePrerequisites(prereqs []Prerequisite) []Prerequisite {
	sorted := make([]Prerequisite, len(prereqs))
	copy(sorted, prereqs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	out := []Prerequisite{}
	for _, p := range sorted {
		if !p.IsCompleted {
			out = append(out, p)
		}
	}
	return out
}

// HoldPointDecision outcome of a gatekeeper call. Exactly one of
// Rejection or the updated HoldPoint is meaningful.
type HoldPointDecision struct {
	HoldPoint  entity.HoldPoint
	FromStatus string
	ToStatus   string
	Effects    []Effect
	Rejection  Rejection

	OverrideApplied        bool
	RequiresSuperintendent bool
}

// Accepted no rejection
func (d HoldPointDecision) Accepted() bool {
	return d.Rejection == nil
}

func rejectHoldPoint(hp entity.HoldPoint, r Rejection) HoldPointDecision {
	return HoldPointDecision{HoldPoint: hp, FromStatus: hp.Status, ToStatus: hp.Status, Rejection: r}
}

func checkHoldPointStatus(status string) error {
	switch status {
	case entity.HoldPointStatusPending, entity.HoldPointStatusNotified, entity.HoldPointStatusReleased:
		return nil
	}
	return malformed("unknown hold point status %q", status)
}

// RequestReleaseInput request to notify the releasing party
type RequestReleaseInput struct {
	HoldPoint     entity.HoldPoint
	Prerequisites []Prerequisite
	// calendar date; read in the location of Now
	ScheduledDate *time.Time

	// nil = DefaultMinimumNoticeDays
	MinimumNoticeDays *int
	Override          bool
	OverrideReason    string

	RequestedBy string
	NotifiedTo  string
	Now         time.Time
}

// RequestRelease pending -> notified. A notified point may be re-requested and stays notified.
func RequestRelease(in RequestReleaseInput) (HoldPointDecision, error) {
	hp := in.HoldPoint
	if err := checkHoldPointStatus(hp.Status); err != nil {
		return HoldPointDecision{}, err
	}
	minNotice := DefaultMinimumNoticeDays
	if in.MinimumNoticeDays != nil {
		minNotice = *in.MinimumNoticeDays
	}
	if minNotice < 0 {
		return HoldPointDecision{}, malformed("negative minimum notice days %d", minNotice)
	}

	if hp.Status == entity.HoldPointStatusReleased {
		return rejectHoldPoint(hp, violation(CodeInvalidTransition, hp.Status,
			"hold point has already been released")), nil
	}

	if missing := IncompletePrerequisites(in.Prerequisites); len(missing) > 0 {
		g := violation(CodePrerequisitesIncomplete, hp.Status,
			"%d preceding checklist item(s) must be completed before release can be requested", len(missing))
		g.IncompleteItems = missing
		return rejectHoldPoint(hp, g), nil
	}

	var scheduled *time.Time
	if in.ScheduledDate != nil {
		d := CalendarDate(*in.ScheduledDate, in.Now.Location())
		scheduled = &d
	}

	overrideApplied := false
	if scheduled != nil {
		notice := WorkingDaysBetween(in.Now, *scheduled)
		if notice < minNotice {
			if !in.Override {
				return rejectHoldPoint(hp, &NoticeWarning{
					ScheduledDate:     *scheduled,
					WorkingDaysNotice: notice,
					MinimumNoticeDays: minNotice,
				}), nil
			}
			if strings.TrimSpace(in.OverrideReason) == "" {
				return rejectHoldPoint(hp, violation(CodeOverrideReasonRequired, hp.Status,
					"an override reason is required to request release with short notice")), nil
			}
			overrideApplied = true
		}
	}

	from := hp.Status
	now := in.Now
	hp.Status = entity.HoldPointStatusNotified
	hp.NotificationSentAt = &now
	hp.ScheduledDate = scheduled
	hp.NotifiedTo = in.NotifiedTo
	if in.RequestedBy != "" {
		by := in.RequestedBy
		hp.RequestedBy = &by
	}
	if overrideApplied {
		hp.OverrideReason = strings.TrimSpace(in.OverrideReason)
	} else {
		hp.OverrideReason = ""
	}

	msg := fmt.Sprintf("Release requested for hold point %s", hp.Description)
	if hp.ScheduledDate != nil {
		msg += " scheduled " + hp.ScheduledDate.Format("2006-01-02")
	}
	if overrideApplied {
		msg += " (short notice override: " + hp.OverrideReason + ")"
	}
	return HoldPointDecision{
		HoldPoint:       hp,
		FromStatus:      from,
		ToStatus:        hp.Status,
		OverrideApplied: overrideApplied,
		Effects: []Effect{
			{Kind: EffectNotify, Action: "request_release", Recipient: in.NotifiedTo, Message: msg},
			{Kind: EffectLogActivity, Action: "request_release", Message: msg},
			{Kind: EffectPublish, Action: "request_release"},
		},
	}, nil
}

// ReleaseInput record of the release by the authorised party
type ReleaseInput struct {
	HoldPoint      entity.HoldPoint
	ReleasedByName string
	ReleasedByOrg  string
	Method         string
	Notes          string
	SignatureRef   string
	EvidenceRef    string
	ApprovalPolicy string
	Now            time.Time
}

// Release notified -> released
func Release(in ReleaseInput) (HoldPointDecision, error) {
	hp := in.HoldPoint
	if err := checkHoldPointStatus(hp.Status); err != nil {
		return HoldPointDecision{}, err
	}
	switch in.Method {
	case entity.ReleaseMethodDigital, entity.ReleaseMethodEmail, entity.ReleaseMethodPaper:
	default:
		return HoldPointDecision{}, malformed("unknown release method %q", in.Method)
	}

	if hp.Status != entity.HoldPointStatusNotified {
		return rejectHoldPoint(hp, violation(CodeInvalidTransition, hp.Status,
			"hold point can only be released once notified (current: %s)", hp.Status)), nil
	}
	if strings.TrimSpace(in.ReleasedByName) == "" {
		return rejectHoldPoint(hp, violation(CodeReleaserRequired, hp.Status,
			"the name of the person releasing the hold point is required")), nil
	}
	if in.Method == entity.ReleaseMethodDigital && strings.TrimSpace(in.SignatureRef) == "" {
		return rejectHoldPoint(hp, violation(CodeSignatureRequired, hp.Status,
			"digital release requires a signature")), nil
	}
	if in.Method != entity.ReleaseMethodDigital && strings.TrimSpace(in.EvidenceRef) == "" {
		return rejectHoldPoint(hp, violation(CodeEvidenceRequired, hp.Status,
			"%s release requires attached evidence", in.Method)), nil
	}

	now := in.Now
	hp.Status = entity.HoldPointStatusReleased
	hp.ReleasedAt = &now
	hp.ReleasedByName = strings.TrimSpace(in.ReleasedByName)
	hp.ReleasedByOrg = in.ReleasedByOrg
	hp.ReleaseMethod = in.Method
	hp.ReleaseNotes = in.Notes
	hp.SignatureRef = in.SignatureRef
	hp.EvidenceRef = in.EvidenceRef

	msg := fmt.Sprintf("Hold point released by %s via %s", hp.ReleasedByName, hp.ReleaseMethod)
	return HoldPointDecision{
		HoldPoint:              hp,
		FromStatus:             entity.HoldPointStatusNotified,
		ToStatus:               hp.Status,
		RequiresSuperintendent: in.ApprovalPolicy == entity.HoldPointApprovalSuperintendent,
		Effects: []Effect{
			{Kind: EffectLogActivity, Action: "release", Message: msg},
			{Kind: EffectPublish, Action: "release"},
		},
	}, nil
}

// ChaseInput follow-up reminder
type ChaseInput struct {
	HoldPoint entity.HoldPoint
	Now       time.Time
}

// Chase bumps the chase count of a notified hold point; no status change
func Chase(in ChaseInput) (HoldPointDecision, error) {
	hp := in.HoldPoint
	if err := checkHoldPointStatus(hp.Status); err != nil {
		return HoldPointDecision{}, err
	}
	if hp.Status != entity.HoldPointStatusNotified {
		return rejectHoldPoint(hp, violation(CodeInvalidTransition, hp.Status,
			"only notified hold points can be chased (current: %s)", hp.Status)), nil
	}

	now := in.Now
	hp.ChaseCount++
	hp.NotificationSentAt = &now

	msg := fmt.Sprintf("Release reminder #%d sent", hp.ChaseCount)
	return HoldPointDecision{
		HoldPoint:  hp,
		FromStatus: hp.Status,
		ToStatus:   hp.Status,
		Effects: []Effect{
			{Kind: EffectNotify, Action: "chase", Recipient: hp.NotifiedTo, Message: msg},
			{Kind: EffectLogActivity, Action: "chase", Message: msg},
			{Kind: EffectPublish, Action: "chase"},
		},
	}, nil
}

// IsHoldPointOverdue notified with a scheduled date strictly before today
func IsHoldPointOverdue(hp entity.HoldPoint, now time.Time) bool {
	if hp.Status != entity.HoldPointStatusNotified || hp.ScheduledDate == nil {
		return false
	}
	return CalendarDaysBetween(now, *hp.ScheduledDate) < 0
}

// Hold point actions
const (
	HoldPointActionRequestRelease = "request_release"
	HoldPointActionRelease        = "release"
	HoldPointActionChase          = "chase"
)

// HoldPointActions actions currently available on a hold point
func HoldPointActions(hp entity.HoldPoint, prereqs []Prerequisite) []string {
	switch hp.Status {
	case entity.HoldPointStatusPending:
		if len(IncompletePrerequisites(prereqs)) == 0 {
			return []string{HoldPointActionRequestRelease}
		}
	case entity.HoldPointStatusNotified:
		return []string{HoldPointActionRelease, HoldPointActionChase, HoldPointActionRequestRelease}
	}
	return []string{}
}

// CheckItemCompletion a checklist item is signed off once; a hold-type item only after
// its hold point is released. hp is nil when release was never requested.
func CheckItemCompletion(item entity.ITPChecklistItem, hp *entity.HoldPoint) Rejection {
	if item.IsCompleted {
		return violation(CodeInvalidTransition, "completed", "checklist item %d is already completed", item.Sequence)
	}
	if item.PointType != entity.PointTypeHold {
		return nil
	}
	status := entity.HoldPointStatusPending
	if hp != nil {
		status = hp.Status
	}
	if status != entity.HoldPointStatusReleased {
		return violation(CodeHoldPointNotReleased, status,
			"hold point on checklist item %d must be released before it is completed", item.Sequence)
	}
	return nil
}
