package engine

import (
	"testing"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	engineer = Actor{UserID: "u-eng", Name: "Site Engineer", Roles: []string{entity.RoleSiteEngineer}}
	qm       = Actor{UserID: "u-qm", Name: "Quality Manager", Roles: []string{entity.RoleQualityManager}}
)

func newNCR(t *testing.T, severity string) entity.NCR {
	t.Helper()
	n, err := OpenNCR(NCRDraft{
		ProjectID: "p-1",
		Title:     "Honeycombing in slab pour 3",
		Category:  entity.NCRCategoryWorkmanship,
		Severity:  severity,
		RaisedBy:  engineer.UserID,
		Now:       day(2024, 3, 4),
	})
	require.NoError(t, err)
	n.NCRNumber = "NCR-0001"
	return n
}

// apply runs cmd and fails the test on rejection
func apply(t *testing.T, n entity.NCR, cmd NCRCommand) entity.NCR {
	t.Helper()
	if cmd.Now.IsZero() {
		cmd.Now = day(2024, 3, 6)
	}
	d, err := ApplyNCREvent(n, cmd, DefaultPolicy())
	require.NoError(t, err)
	require.Nil(t, d.Rejection, "%s rejected: %v", cmd.Event, d.Rejection)
	return d.NCR
}

func attempt(t *testing.T, n entity.NCR, cmd NCRCommand) NCRDecision {
	t.Helper()
	if cmd.Now.IsZero() {
		cmd.Now = day(2024, 3, 6)
	}
	d, err := ApplyNCREvent(n, cmd, DefaultPolicy())
	require.NoError(t, err)
	return d
}

func respondCmd() NCRCommand {
	return NCRCommand{Event: EventRespond, Actor: engineer, RootCause: "vibration skipped", CorrectiveAction: "patch repair", PreventiveAction: "toolbox talk"}
}

func submitCmd() NCRCommand {
	return NCRCommand{Event: EventSubmitForVerification, Actor: engineer, EvidenceCount: 1}
}

func TestOpenNCR(t *testing.T) {
	major := newNCR(t, entity.NCRSeverityMajor)
	assert.Equal(t, entity.NCRStatusOpen, major.Status)
	assert.True(t, major.QMApprovalRequired)
	assert.True(t, major.ClientNotificationRequired)

	minor := newNCR(t, entity.NCRSeverityMinor)
	assert.False(t, minor.QMApprovalRequired)
	assert.False(t, minor.ClientNotificationRequired)

	_, err := OpenNCR(NCRDraft{Category: "cosmetic", Severity: entity.NCRSeverityMinor, RaisedBy: "u"})
	assert.ErrorIs(t, err, ErrMalformedInput)
	_, err = OpenNCR(NCRDraft{Category: entity.NCRCategoryOther, Severity: "critical", RaisedBy: "u"})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestNCR_MinorClosesWithoutQM(t *testing.T) {
	n := newNCR(t, entity.NCRSeverityMinor)
	n = apply(t, n, respondCmd())
	assert.Equal(t, entity.NCRStatusInvestigating, n.Status)
	n = apply(t, n, submitCmd())
	assert.Equal(t, entity.NCRStatusVerification, n.Status)
	n = apply(t, n, NCRCommand{Event: EventClose, Actor: engineer, VerificationNotes: "checked"})
	assert.Equal(t, entity.NCRStatusClosed, n.Status)
	assert.NotNil(t, n.ClosedAt)
	assert.Nil(t, n.QMApprovedAt)
}

func TestNCR_MajorCannotCloseWithoutQMApproval(t *testing.T) {
	// every path into verification
	paths := map[string][]NCRCommand{
		"respond then submit": {respondCmd(), submitCmd()},
		"respond then qm accept": {respondCmd(),
			{Event: EventQMReview, Actor: qm, ReviewDecision: ReviewAccept}},
		"through rejected rectification": {respondCmd(), submitCmd(),
			{Event: EventRejectRectification, Actor: engineer, Feedback: "still honeycombed"}, submitCmd()},
		"revision requested first": {respondCmd(),
			{Event: EventQMReview, Actor: qm, ReviewDecision: ReviewRequestRevision, Comment: "more detail"}, submitCmd()},
	}
	for name, cmds := range paths {
		t.Run(name, func(t *testing.T) {
			n := newNCR(t, entity.NCRSeverityMajor)
			for _, c := range cmds {
				n = apply(t, n, c)
			}
			require.Equal(t, entity.NCRStatusVerification, n.Status)

			d := attempt(t, n, NCRCommand{Event: EventClose, Actor: qm})
			require.NotNil(t, d.Rejection)
			assert.Equal(t, CodeQMApprovalRequired, d.Rejection.RejectionCode())
			assert.Equal(t, entity.NCRStatusVerification, d.NCR.Status)

			d = attempt(t, n, NCRCommand{Event: EventCloseWithConcession, Actor: qm,
				Justification: "j", RiskAssessment: "r", ClientApprovalRef: "CL-1"})
			require.NotNil(t, d.Rejection)
			assert.Equal(t, CodeQMApprovalRequired, d.Rejection.RejectionCode())

			n = apply(t, n, NCRCommand{Event: EventQMApprove, Actor: qm})
			require.NotNil(t, n.QMApprovedAt)
			assert.Equal(t, entity.NCRStatusVerification, n.Status)
			n = apply(t, n, NCRCommand{Event: EventClose, Actor: qm})
			assert.Equal(t, entity.NCRStatusClosed, n.Status)
		})
	}
}

func TestNCR_QMReview(t *testing.T) {
	n := apply(t, newNCR(t, entity.NCRSeverityMajor), respondCmd())

	d := attempt(t, n, NCRCommand{Event: EventQMReview, Actor: engineer, ReviewDecision: ReviewAccept})
	require.NotNil(t, d.Rejection)
	assert.Equal(t, KindAuthorizationFailure, d.Rejection.Kind())
	assert.Equal(t, CodeQMCapabilityRequired, d.Rejection.RejectionCode())

	revised := apply(t, n, NCRCommand{Event: EventQMReview, Actor: qm, ReviewDecision: ReviewRequestRevision, Comment: "expand root cause"})
	assert.Equal(t, entity.NCRStatusInvestigating, revised.Status)
	assert.Equal(t, "expand root cause", revised.QMReviewComment)

	accepted := apply(t, n, NCRCommand{Event: EventQMReview, Actor: qm, ReviewDecision: ReviewAccept})
	assert.Equal(t, entity.NCRStatusVerification, accepted.Status)

	_, err := ApplyNCREvent(n, NCRCommand{Event: EventQMReview, Actor: qm, ReviewDecision: "maybe"}, DefaultPolicy())
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestNCR_ConfigurableQMRoles(t *testing.T) {
	n := apply(t, newNCR(t, entity.NCRSeverityMajor), respondCmd())
	n = apply(t, n, submitCmd())

	pm := Actor{UserID: "u-pm", Roles: []string{entity.RoleProjectManager}}
	d, err := ApplyNCREvent(n, NCRCommand{Event: EventQMApprove, Actor: pm, Now: day(2024, 3, 7)}, DefaultPolicy())
	require.NoError(t, err)
	require.NotNil(t, d.Rejection)
	assert.Equal(t, KindAuthorizationFailure, d.Rejection.Kind())

	policy := Policy{QMRoles: []string{entity.RoleQualityManager, entity.RoleProjectManager}}
	d, err = ApplyNCREvent(n, NCRCommand{Event: EventQMApprove, Actor: pm, Now: day(2024, 3, 7)}, policy)
	require.NoError(t, err)
	assert.True(t, d.Accepted())
	assert.Equal(t, "u-pm", *d.NCR.QMApprovedBy)
}

func TestNCR_Guards(t *testing.T) {
	open := newNCR(t, entity.NCRSeverityMinor)
	investigating := apply(t, open, respondCmd())
	verification := apply(t, investigating, submitCmd())
	rectification := apply(t, verification, NCRCommand{Event: EventRejectRectification, Actor: engineer, Feedback: "redo"})

	tests := []struct {
		name string
		ncr  entity.NCR
		cmd  NCRCommand
		code string
	}{
		{"respond missing preventive action", open, NCRCommand{Event: EventRespond, RootCause: "x", CorrectiveAction: "y"}, CodeResponseIncomplete},
		{"respond twice", investigating, respondCmd(), CodeInvalidTransition},
		{"submit without evidence", investigating, NCRCommand{Event: EventSubmitForVerification}, CodeEvidenceRequired},
		{"reject without feedback", verification, NCRCommand{Event: EventRejectRectification, Feedback: " "}, CodeFeedbackRequired},
		{"close from open", open, NCRCommand{Event: EventClose}, CodeInvalidTransition},
		{"close from rectification", rectification, NCRCommand{Event: EventClose}, CodeInvalidTransition},
		{"qm approve a minor", verification, NCRCommand{Event: EventQMApprove, Actor: qm}, CodeQMApprovalNotApplicable},
		{"notify client for minor", open, NCRCommand{Event: EventNotifyClient}, CodeClientNotificationNotRequired},
		{"concession without risk", verification, NCRCommand{Event: EventCloseWithConcession, Justification: "ok"}, CodeConcessionIncomplete},
		{"concession from open", open, NCRCommand{Event: EventCloseWithConcession, Justification: "ok", RiskAssessment: "low"}, CodeInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := attempt(t, tt.ncr, tt.cmd)
			require.NotNil(t, d.Rejection)
			assert.Equal(t, KindGuardViolation, d.Rejection.Kind())
			assert.Equal(t, tt.code, d.Rejection.RejectionCode())
			assert.Equal(t, tt.ncr, d.NCR, "rejection leaves the snapshot untouched")
			assert.Empty(t, d.Effects)
		})
	}
}

func TestNCR_RejectRectificationFromRectification(t *testing.T) {
	n := apply(t, newNCR(t, entity.NCRSeverityMinor), respondCmd())
	n = apply(t, n, submitCmd())
	n = apply(t, n, NCRCommand{Event: EventRejectRectification, Actor: engineer, Feedback: "first"})
	require.Equal(t, entity.NCRStatusRectification, n.Status)

	n = apply(t, n, NCRCommand{Event: EventRejectRectification, Actor: engineer, Feedback: "second"})
	assert.Equal(t, entity.NCRStatusRectification, n.Status)
	assert.Equal(t, "second", n.RectificationFeedback)
}

func TestNCR_ConcessionMajorRequiresClientApproval(t *testing.T) {
	n := apply(t, newNCR(t, entity.NCRSeverityMajor), respondCmd())
	n = apply(t, n, submitCmd())
	n = apply(t, n, NCRCommand{Event: EventQMApprove, Actor: qm})

	d := attempt(t, n, NCRCommand{Event: EventCloseWithConcession, Actor: qm, Justification: "structurally adequate", RiskAssessment: "low"})
	require.NotNil(t, d.Rejection)
	assert.Equal(t, CodeClientApprovalRequired, d.Rejection.RejectionCode())

	n = apply(t, n, NCRCommand{Event: EventCloseWithConcession, Actor: qm, Justification: "structurally adequate", RiskAssessment: "low", ClientApprovalRef: "RFI-112"})
	assert.Equal(t, entity.NCRStatusClosedConcession, n.Status)
	assert.Equal(t, "RFI-112", n.ConcessionClientApprovalRef)
}

func TestNCR_ConcessionMinorFromRectification(t *testing.T) {
	n := apply(t, newNCR(t, entity.NCRSeverityMinor), respondCmd())
	n = apply(t, n, submitCmd())
	n = apply(t, n, NCRCommand{Event: EventRejectRectification, Actor: engineer, Feedback: "redo"})
	n = apply(t, n, NCRCommand{Event: EventCloseWithConcession, Actor: qm, Justification: "cosmetic", RiskAssessment: "none"})
	assert.Equal(t, entity.NCRStatusClosedConcession, n.Status)
}

func TestNCR_NotifyClient(t *testing.T) {
	n := newNCR(t, entity.NCRSeverityMajor)
	n = apply(t, n, NCRCommand{Event: EventNotifyClient, Actor: qm, NotificationRef: "letter-7"})
	assert.Equal(t, entity.NCRStatusOpen, n.Status)
	require.NotNil(t, n.ClientNotifiedAt)
	assert.Equal(t, "letter-7", n.ClientNotificationRef)

	d := attempt(t, n, NCRCommand{Event: EventNotifyClient, Actor: qm})
	require.NotNil(t, d.Rejection)
	assert.Equal(t, CodeClientAlreadyNotified, d.Rejection.RejectionCode())
}

func TestNCR_TerminalStatesAreFinal(t *testing.T) {
	n := apply(t, newNCR(t, entity.NCRSeverityMinor), respondCmd())
	n = apply(t, n, submitCmd())
	n = apply(t, n, NCRCommand{Event: EventClose})

	for _, ev := range []NCREvent{EventRespond, EventSubmitForVerification, EventRejectRectification, EventClose, EventCloseWithConcession} {
		d := attempt(t, n, NCRCommand{Event: ev, Actor: qm, Feedback: "x", EvidenceCount: 1, Justification: "j", RiskAssessment: "r"})
		require.NotNil(t, d.Rejection, ev)
		assert.Equal(t, CodeInvalidTransition, d.Rejection.RejectionCode(), ev)
	}
}

func TestNCR_MalformedInput(t *testing.T) {
	n := newNCR(t, entity.NCRSeverityMinor)
	_, err := ApplyNCREvent(n, NCRCommand{Event: "reopen"}, DefaultPolicy())
	assert.ErrorIs(t, err, ErrMalformedInput)

	n.Status = "archived"
	_, err = ApplyNCREvent(n, respondCmd(), DefaultPolicy())
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestNCR_Effects(t *testing.T) {
	n := apply(t, newNCR(t, entity.NCRSeverityMajor), respondCmd())
	d := attempt(t, n, submitCmd())
	require.True(t, d.Accepted())

	kinds := map[EffectKind]bool{}
	for _, e := range d.Effects {
		kinds[e.Kind] = true
		if e.Kind == EffectNotify {
			assert.Equal(t, "qm_approval_needed", e.Action)
		}
	}
	assert.True(t, kinds[EffectLogActivity])
	assert.True(t, kinds[EffectNotify])
	assert.True(t, kinds[EffectPublish])
}

func TestNCR_AgeAndOverdue(t *testing.T) {
	n := newNCR(t, entity.NCRSeverityMinor)
	assert.Equal(t, 10, AgeDays(n, day(2024, 3, 14)))
	assert.False(t, IsNCROverdue(n, day(2024, 3, 14)))

	due := day(2024, 3, 10)
	n.DueDate = &due
	assert.False(t, IsNCROverdue(n, time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)))
	assert.True(t, IsNCROverdue(n, day(2024, 3, 11)))

	n.Status = entity.NCRStatusClosed
	assert.False(t, IsNCROverdue(n, day(2024, 3, 11)))
}

func TestAvailableActions(t *testing.T) {
	n := newNCR(t, entity.NCRSeverityMajor)
	assert.Equal(t, []NCREvent{EventRespond, EventNotifyClient}, AvailableActions(n, engineer, DefaultPolicy()))

	n = apply(t, n, respondCmd())
	assert.NotContains(t, AvailableActions(n, engineer, DefaultPolicy()), EventQMReview)
	assert.Contains(t, AvailableActions(n, qm, DefaultPolicy()), EventQMReview)

	n = apply(t, n, submitCmd())
	actions := AvailableActions(n, qm, DefaultPolicy())
	assert.Contains(t, actions, EventQMApprove)
	assert.NotContains(t, actions, EventClose)
	assert.NotContains(t, actions, EventCloseWithConcession)

	n = apply(t, n, NCRCommand{Event: EventQMApprove, Actor: qm})
	actions = AvailableActions(n, qm, DefaultPolicy())
	assert.NotContains(t, actions, EventQMApprove)
	assert.Contains(t, actions, EventClose)
}
