package entity

import "time"

// HoldPoint hold point gate on an ITP checklist item
type HoldPoint struct {
	ID            string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID     string `json:"project_id" gorm:"size:32;not null;index"`
	LotID         string `json:"lot_id" gorm:"size:32;not null;uniqueIndex:idx_hp_lot_item"`
	ITPInstanceID string `json:"itp_instance_id" gorm:"size:32;not null"`
	ItemID        string `json:"item_id" gorm:"size:32;not null;uniqueIndex:idx_hp_lot_item"`
	Description   string `json:"description" gorm:"size:500"`
	Version       int    `json:"version" gorm:"not null;default:1"`

	Status string `json:"status" gorm:"size:20;not null;default:pending"` // pending/notified/released

	// Release request
	ScheduledDate      *time.Time `json:"scheduled_date"`
	NotificationSentAt *time.Time `json:"notification_sent_at"`
	NotifiedTo         string     `json:"notified_to" gorm:"size:200"`
	RequestedBy        *string    `json:"requested_by" gorm:"size:32"`
	OverrideReason     string     `json:"override_reason" gorm:"type:text"`
	ChaseCount         int        `json:"chase_count" gorm:"not null;default:0"`

	// Release
	ReleasedAt     *time.Time `json:"released_at"`
	ReleasedByName string     `json:"released_by_name" gorm:"size:100"`
	ReleasedByOrg  string     `json:"released_by_org" gorm:"size:200"`
	ReleaseMethod  string     `json:"release_method" gorm:"size:20"` // digital/email/paper
	ReleaseNotes   string     `json:"release_notes" gorm:"type:text"`
	SignatureRef   string     `json:"signature_ref" gorm:"size:512"`
	EvidenceRef    string     `json:"evidence_ref" gorm:"size:512"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (HoldPoint) TableName() string {
	return "qa_hold_points"
}

// Hold point statuses
const (
	HoldPointStatusPending  = "pending"
	HoldPointStatusNotified = "notified"
	HoldPointStatusReleased = "released"
)

// Release methods
const (
	ReleaseMethodDigital = "digital"
	ReleaseMethodEmail   = "email"
	ReleaseMethodPaper   = "paper"
)
