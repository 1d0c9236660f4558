package engine

import (
	"errors"
	"testing"

	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftClaim() entity.Claim {
	return entity.Claim{
		ID:          "c-1",
		ProjectID:   "p-1",
		ClaimNumber: 4,
		Version:     1,
		Status:      entity.ClaimStatusDraft,
		PeriodStart: day(2024, 3, 1),
		PeriodEnd:   day(2024, 3, 29),
	}
}

func changeClaim(t *testing.T, c entity.Claim, ch ClaimChange) entity.Claim {
	t.Helper()
	if ch.Now.IsZero() {
		ch.Now = day(2024, 4, 1)
	}
	d, err := ApplyClaimChange(c, ch)
	require.NoError(t, err)
	require.Nil(t, d.Rejection, "rejected: %v", d.Rejection)
	return d.Claim
}

func TestApplyClaimChange_HappyPath(t *testing.T) {
	c := draftClaim()
	c = changeClaim(t, c, ClaimChange{Lots: []entity.ClaimedLot{
		{LotID: "lot-1", Amount: decimal.RequireFromString("12500.50")},
		{LotID: "lot-2", Amount: decimal.RequireFromString("7499.50")},
	}})
	assert.True(t, decimal.RequireFromString("20000").Equal(c.TotalClaimedAmount))

	c = changeClaim(t, c, ClaimChange{Status: entity.ClaimStatusSubmitted})
	require.NotNil(t, c.SubmittedAt)
	assert.Equal(t, entity.ClaimStatusSubmitted, c.Status)

	certified := decimal.RequireFromString("18000")
	c = changeClaim(t, c, ClaimChange{Status: entity.ClaimStatusCertified, CertifiedAmount: &certified})
	require.NotNil(t, c.CertifiedAt)

	c = changeClaim(t, c, ClaimChange{Status: entity.ClaimStatusPaid})
	require.NotNil(t, c.PaidAt)
	require.NotNil(t, c.PaidAmount)
	assert.True(t, certified.Equal(*c.PaidAmount))
}

func TestApplyClaimChange_Guards(t *testing.T) {
	submitted := draftClaim()
	submitted.Status = entity.ClaimStatusSubmitted

	notes := "  "
	tests := []struct {
		name  string
		claim entity.Claim
		ch    ClaimChange
		code  string
	}{
		{"skip to paid", draftClaim(), ClaimChange{Status: entity.ClaimStatusPaid}, CodeInvalidTransition},
		{"lots locked after submit", submitted, ClaimChange{Lots: []entity.ClaimedLot{}}, CodeClaimLocked},
		{"certify without amount", submitted, ClaimChange{Status: entity.ClaimStatusCertified}, CodeCertifiedAmountRequired},
		{"dispute without notes", submitted, ClaimChange{Status: entity.ClaimStatusDisputed, DisputeNotes: &notes}, CodeDisputeNotesRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ApplyClaimChange(tt.claim, tt.ch)
			require.NoError(t, err)
			require.NotNil(t, d.Rejection)
			assert.Equal(t, tt.code, d.Rejection.RejectionCode())
			assert.Equal(t, tt.claim.Status, d.Claim.Status)
			assert.Empty(t, d.Effects)
		})
	}
}

func TestApplyClaimChange_DisputeAndRecertify(t *testing.T) {
	c := draftClaim()
	c = changeClaim(t, c, ClaimChange{Status: entity.ClaimStatusSubmitted})
	notes := "quantities for lot 2 not agreed"
	c = changeClaim(t, c, ClaimChange{Status: entity.ClaimStatusDisputed, DisputeNotes: &notes})
	assert.Equal(t, notes, c.DisputeNotes)

	amt := decimal.NewFromInt(5000)
	c = changeClaim(t, c, ClaimChange{Status: entity.ClaimStatusCertified, CertifiedAmount: &amt})
	assert.Equal(t, entity.ClaimStatusCertified, c.Status)
}

func TestApplyClaimChange_Malformed(t *testing.T) {
	bad := draftClaim()
	bad.Status = "archived"
	_, err := ApplyClaimChange(bad, ClaimChange{})
	assert.True(t, errors.Is(err, ErrMalformedInput))

	neg := decimal.NewFromInt(-1)
	_, err = ApplyClaimChange(draftClaim(), ClaimChange{CertifiedAmount: &neg})
	assert.True(t, errors.Is(err, ErrMalformedInput))

	end := day(2024, 2, 1)
	_, err = ApplyClaimChange(draftClaim(), ClaimChange{PeriodEnd: &end})
	assert.True(t, errors.Is(err, ErrMalformedInput))
}

func TestApplyClaimChange_SubmitNotifiesClient(t *testing.T) {
	d, err := ApplyClaimChange(draftClaim(), ClaimChange{Status: entity.ClaimStatusSubmitted, Now: day(2024, 4, 1)})
	require.NoError(t, err)
	kinds := []EffectKind{}
	for _, e := range d.Effects {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EffectKind{EffectLogActivity, EffectNotify, EffectPublish}, kinds)
}
