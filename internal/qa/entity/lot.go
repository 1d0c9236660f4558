package entity

import "time"

// Lot unit of work an ITP is applied to
type Lot struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	ProjectID   string    `json:"project_id" gorm:"size:32;not null;index"`
	LotNumber   string    `json:"lot_number" gorm:"size:50;not null"`
	Description string    `json:"description" gorm:"size:500"`
	Status      string    `json:"status" gorm:"size:20;default:in_progress"` // not_started/in_progress/completed/claimed
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Lot) TableName() string {
	return "qa_lots"
}

// Lot statuses
const (
	LotStatusNotStarted = "not_started"
	LotStatusInProgress = "in_progress"
	LotStatusCompleted  = "completed"
	LotStatusClaimed    = "claimed"
)

// ITPInstance ITP template assigned to a lot
type ITPInstance struct {
	ID           string             `json:"id" gorm:"primaryKey;size:32"`
	LotID        string             `json:"lot_id" gorm:"size:32;not null;index"`
	TemplateName string             `json:"template_name" gorm:"size:200"`
	CreatedAt    time.Time          `json:"created_at"`
	Items        []ITPChecklistItem `json:"items,omitempty" gorm:"foreignKey:InstanceID"`
}

func (ITPInstance) TableName() string {
	return "qa_itp_instances"
}

// ITPChecklistItem sequenced checklist item
type ITPChecklistItem struct {
	ID          string     `json:"id" gorm:"primaryKey;size:32"`
	InstanceID  string     `json:"instance_id" gorm:"size:32;not null;index"`
	Sequence    int        `json:"sequence" gorm:"not null"`
	Description string     `json:"description" gorm:"size:500;not null"`
	PointType   string     `json:"point_type" gorm:"size:20;default:standard"` // standard/witness/hold
	IsCompleted bool       `json:"is_completed" gorm:"not null;default:false"`
	CompletedAt *time.Time `json:"completed_at"`
	CompletedBy *string    `json:"completed_by" gorm:"size:32"`
}

func (ITPChecklistItem) TableName() string {
	return "qa_itp_checklist_items"
}

// Checklist point types
const (
	PointTypeStandard = "standard"
	PointTypeWitness  = "witness"
	PointTypeHold     = "hold"
)

// TestResult lot test record
type TestResult struct {
	ID        string     `json:"id" gorm:"primaryKey;size:32"`
	LotID     string     `json:"lot_id" gorm:"size:32;not null;index"`
	TestType  string     `json:"test_type" gorm:"size:100;not null"`
	Result    string     `json:"result" gorm:"size:20;default:pending"` // pass/fail/pending
	Reference string     `json:"reference" gorm:"size:200"`
	TestedAt  *time.Time `json:"tested_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (TestResult) TableName() string {
	return "qa_test_results"
}

// Test results
const (
	TestResultPass    = "pass"
	TestResultFail    = "fail"
	TestResultPending = "pending"
)

// LotPhoto photo evidence for a lot
type LotPhoto struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	LotID      string    `json:"lot_id" gorm:"size:32;not null;index"`
	ObjectKey  string    `json:"object_key" gorm:"size:512"`
	URL        string    `json:"url" gorm:"size:512"`
	Caption    string    `json:"caption" gorm:"size:500"`
	UploadedBy string    `json:"uploaded_by" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
}

func (LotPhoto) TableName() string {
	return "qa_lot_photos"
}
