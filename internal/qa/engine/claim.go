package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"github.com/shopspring/decimal"
)

// ClaimChange requested edits to a claim. Nil fields are left unchanged.
type ClaimChange struct {
	// "" = no status change
	Status          string
	PeriodStart     *time.Time
	PeriodEnd       *time.Time
	Lots            []entity.ClaimedLot
	CertifiedAmount *decimal.Decimal
	PaidAmount      *decimal.Decimal
	DisputeNotes    *string
	Now             time.Time
}

// ClaimDecision outcome of a claim change
type ClaimDecision struct {
	Claim      entity.Claim
	FromStatus string
	ToStatus   string
	Effects    []Effect
	Rejection  Rejection
}

// Accepted no rejection
func (d ClaimDecision) Accepted() bool {
	return d.Rejection == nil
}

// ValidClaimStatus known status
func ValidClaimStatus(s string) bool {
	_, ok := entity.ValidClaimTransitions[s]
	return ok
}

// ClaimTotal sum of lot amounts
func ClaimTotal(lots []entity.ClaimedLot) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lots {
		total = total.Add(l.Amount)
	}
	return total
}

// ApplyClaimChange validates edits and status moves against the claim lifecycle
// draft -> submitted -> certified -> paid, with disputes from submitted/certified.
func ApplyClaimChange(c entity.Claim, ch ClaimChange) (ClaimDecision, error) {
	if !ValidClaimStatus(c.Status) {
		return ClaimDecision{}, malformed("unknown claim status %q", c.Status)
	}
	if ch.Status != "" && !ValidClaimStatus(ch.Status) {
		return ClaimDecision{}, malformed("unknown claim status %q", ch.Status)
	}
	for _, amt := range []*decimal.Decimal{ch.CertifiedAmount, ch.PaidAmount} {
		if amt != nil && amt.IsNegative() {
			return ClaimDecision{}, malformed("negative claim amount %s", amt.String())
		}
	}
	for _, l := range ch.Lots {
		if l.Amount.IsNegative() {
			return ClaimDecision{}, malformed("negative amount for lot %s", l.LotID)
		}
	}

	reject := func(r Rejection) (ClaimDecision, error) {
		return ClaimDecision{Claim: c, FromStatus: c.Status, ToStatus: c.Status, Rejection: r}, nil
	}

	next := c
	editsScope := ch.PeriodStart != nil || ch.PeriodEnd != nil || ch.Lots != nil
	if editsScope && c.Status != entity.ClaimStatusDraft {
		return reject(violation(CodeClaimLocked, c.Status, "claim period and lots can only be changed while the claim is a draft"))
	}
	if ch.PeriodStart != nil {
		next.PeriodStart = *ch.PeriodStart
	}
	if ch.PeriodEnd != nil {
		next.PeriodEnd = *ch.PeriodEnd
	}
	if next.PeriodEnd.Before(next.PeriodStart) {
		return ClaimDecision{}, malformed("claim period ends before it starts")
	}
	if ch.Lots != nil {
		next.Lots = ch.Lots
		next.TotalClaimedAmount = ClaimTotal(ch.Lots)
	}
	if ch.CertifiedAmount != nil {
		next.CertifiedAmount = ch.CertifiedAmount
	}
	if ch.PaidAmount != nil {
		next.PaidAmount = ch.PaidAmount
	}
	if ch.DisputeNotes != nil {
		next.DisputeNotes = strings.TrimSpace(*ch.DisputeNotes)
	}

	now := ch.Now
	action := "update"
	if ch.Status != "" && ch.Status != c.Status {
		if !c.CanTransitionTo(ch.Status) {
			return reject(violation(CodeInvalidTransition, c.Status,
				"claim cannot move from %s to %s", c.Status, ch.Status))
		}
		switch ch.Status {
		case entity.ClaimStatusSubmitted:
			next.SubmittedAt = &now
		case entity.ClaimStatusCertified:
			if next.CertifiedAmount == nil {
				return reject(violation(CodeCertifiedAmountRequired, c.Status, "a certified amount is required to certify the claim"))
			}
			next.CertifiedAt = &now
		case entity.ClaimStatusPaid:
			if next.PaidAmount == nil {
				amt := *next.CertifiedAmount
				next.PaidAmount = &amt
			}
			next.PaidAt = &now
		case entity.ClaimStatusDisputed:
			if next.DisputeNotes == "" {
				return reject(violation(CodeDisputeNotesRequired, c.Status, "dispute notes are required"))
			}
		}
		next.Status = ch.Status
		action = ch.Status
	}
	next.UpdatedAt = now

	var msg string
	if next.Status != c.Status {
		msg = fmt.Sprintf("Claim #%d: %s -> %s", c.ClaimNumber, c.Status, next.Status)
	} else {
		msg = fmt.Sprintf("Claim #%d updated", c.ClaimNumber)
	}
	effects := []Effect{{Kind: EffectLogActivity, Action: action, Message: msg}}
	if next.Status == entity.ClaimStatusSubmitted && c.Status != next.Status {
		effects = append(effects, Effect{Kind: EffectNotify, Action: action, Recipient: "client",
			Message: fmt.Sprintf("%s, total %s", msg, next.TotalClaimedAmount.StringFixed(2))})
	}
	effects = append(effects, Effect{Kind: EffectPublish, Action: action})

	return ClaimDecision{
		Claim:      next,
		FromStatus: c.Status,
		ToStatus:   next.Status,
		Effects:    effects,
	}, nil
}
