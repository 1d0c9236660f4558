package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Claim progress claim
type Claim struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID   string `json:"project_id" gorm:"size:32;not null;uniqueIndex:idx_claim_number"`
	ClaimNumber int    `json:"claim_number" gorm:"not null;uniqueIndex:idx_claim_number"`
	Version     int    `json:"version" gorm:"not null;default:1"`

	PeriodStart time.Time `json:"period_start" gorm:"type:date;not null"`
	PeriodEnd   time.Time `json:"period_end" gorm:"type:date;not null"`
	Status      string    `json:"status" gorm:"size:20;not null;default:draft"` // draft/submitted/certified/paid/disputed

	TotalClaimedAmount decimal.Decimal  `json:"total_claimed_amount" gorm:"type:numeric(14,2);not null;default:0"`
	CertifiedAmount    *decimal.Decimal `json:"certified_amount" gorm:"type:numeric(14,2)"`
	PaidAmount         *decimal.Decimal `json:"paid_amount" gorm:"type:numeric(14,2)"`

	SubmittedAt  *time.Time `json:"submitted_at"`
	CertifiedAt  *time.Time `json:"certified_at"`
	PaidAt       *time.Time `json:"paid_at"`
	DisputeNotes string     `json:"dispute_notes" gorm:"type:text"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lots []ClaimedLot `json:"lots,omitempty" gorm:"foreignKey:ClaimID"`
}

func (Claim) TableName() string {
	return "qa_claims"
}

// ClaimedLot lot included in a claim
type ClaimedLot struct {
	ID      string          `json:"id" gorm:"primaryKey;size:32"`
	ClaimID string          `json:"claim_id" gorm:"size:32;not null;uniqueIndex:idx_claimed_lot"`
	LotID   string          `json:"lot_id" gorm:"size:32;not null;uniqueIndex:idx_claimed_lot"`
	Amount  decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null;default:0"`
}

func (ClaimedLot) TableName() string {
	return "qa_claimed_lots"
}

// Claim statuses
const (
	ClaimStatusDraft     = "draft"
	ClaimStatusSubmitted = "submitted"
	ClaimStatusCertified = "certified"
	ClaimStatusPaid      = "paid"
	ClaimStatusDisputed  = "disputed"
)

// ValidClaimTransitions allowed claim status transitions
var ValidClaimTransitions = map[string][]string{
	ClaimStatusDraft:     {ClaimStatusSubmitted},
	ClaimStatusSubmitted: {ClaimStatusCertified, ClaimStatusDisputed},
	ClaimStatusCertified: {ClaimStatusPaid, ClaimStatusDisputed},
	ClaimStatusDisputed:  {ClaimStatusCertified},
	ClaimStatusPaid:      {},
}

// CanTransitionTo reports whether the claim may move to the target status
func (c *Claim) CanTransitionTo(target string) bool {
	for _, s := range ValidClaimTransitions[c.Status] {
		if s == target {
			return true
		}
	}
	return false
}
