package entity

import "time"

// NCR non-conformance report
type NCR struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string `json:"project_id" gorm:"size:32;not null;uniqueIndex:idx_ncr_sequence"`
	NCRNumber string `json:"ncr_number" gorm:"size:32;not null;index"`
	Sequence  int    `json:"sequence" gorm:"not null;uniqueIndex:idx_ncr_sequence"`
	Version   int    `json:"version" gorm:"not null;default:1"`

	Title       string `json:"title" gorm:"size:256;not null"`
	Description string `json:"description" gorm:"type:text"`
	Category    string `json:"category" gorm:"size:20;not null"` // materials/workmanship/documentation/process/design/other
	Severity    string `json:"severity" gorm:"size:10;not null"` // minor/major
	Status      string `json:"status" gorm:"size:20;not null;default:open"`

	RaisedBy      string     `json:"raised_by" gorm:"size:32;not null"`
	RaisedByName  string     `json:"raised_by_name" gorm:"size:100"`
	ResponsibleID *string    `json:"responsible_id" gorm:"size:32"`
	DueDate       *time.Time `json:"due_date"`

	// Response
	RootCause        string     `json:"root_cause" gorm:"type:text"`
	CorrectiveAction string     `json:"corrective_action" gorm:"type:text"`
	PreventiveAction string     `json:"preventive_action" gorm:"type:text"`
	RespondedAt      *time.Time `json:"responded_at"`
	RespondedBy      *string    `json:"responded_by" gorm:"size:32"`

	// QM
	QMApprovalRequired bool       `json:"qm_approval_required" gorm:"not null;default:false"`
	QMReviewComment    string     `json:"qm_review_comment" gorm:"type:text"`
	QMApprovedAt       *time.Time `json:"qm_approved_at"`
	QMApprovedBy       *string    `json:"qm_approved_by" gorm:"size:32"`

	// Client notification
	ClientNotificationRequired bool       `json:"client_notification_required" gorm:"not null;default:false"`
	ClientNotifiedAt           *time.Time `json:"client_notified_at"`
	ClientNotificationRef      string     `json:"client_notification_ref" gorm:"size:200"`

	// Rectification / verification
	RectificationNotes    string     `json:"rectification_notes" gorm:"type:text"`
	RectificationFeedback string     `json:"rectification_feedback" gorm:"type:text"`
	SubmittedForVerifyAt  *time.Time `json:"submitted_for_verification_at"`
	VerificationNotes     string     `json:"verification_notes" gorm:"type:text"`
	LessonsLearned        string     `json:"lessons_learned" gorm:"type:text"`

	// Concession closure
	ConcessionJustification     string `json:"concession_justification" gorm:"type:text"`
	ConcessionRiskAssessment    string `json:"concession_risk_assessment" gorm:"type:text"`
	ConcessionClientApprovalRef string `json:"concession_client_approval_ref" gorm:"size:200"`

	ClosedAt  *time.Time `json:"closed_at"`
	ClosedBy  *string    `json:"closed_by" gorm:"size:32"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Relations
	Lots     []NCRLot      `json:"lots,omitempty" gorm:"foreignKey:NCRID"`
	Evidence []NCREvidence `json:"evidence,omitempty" gorm:"foreignKey:NCRID"`
}

func (NCR) TableName() string {
	return "qa_ncrs"
}

// NCRLot NCR linked lot
type NCRLot struct {
	ID    string `json:"id" gorm:"primaryKey;size:32"`
	NCRID string `json:"ncr_id" gorm:"size:32;not null;index"`
	LotID string `json:"lot_id" gorm:"size:32;not null;index"`
}

func (NCRLot) TableName() string {
	return "qa_ncr_lots"
}

// NCREvidence rectification evidence attached to an NCR
type NCREvidence struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	NCRID       string    `json:"ncr_id" gorm:"size:32;not null;index"`
	Type        string    `json:"type" gorm:"size:20;default:photo"` // photo/document/test_result
	FileName    string    `json:"file_name" gorm:"size:256"`
	ObjectKey   string    `json:"object_key" gorm:"size:512"`
	URL         string    `json:"url" gorm:"size:512"`
	ContentType string    `json:"content_type" gorm:"size:100"`
	Size        int64     `json:"size"`
	UploadedBy  string    `json:"uploaded_by" gorm:"size:32"`
	CreatedAt   time.Time `json:"created_at"`
}

func (NCREvidence) TableName() string {
	return "qa_ncr_evidence"
}

// NCR statuses
const (
	NCRStatusOpen             = "open"
	NCRStatusInvestigating    = "investigating"
	NCRStatusRectification    = "rectification"
	NCRStatusVerification     = "verification"
	NCRStatusClosed           = "closed"
	NCRStatusClosedConcession = "closed_concession"
)

// NCR severity
const (
	NCRSeverityMinor = "minor"
	NCRSeverityMajor = "major"
)

// NCR categories
const (
	NCRCategoryMaterials     = "materials"
	NCRCategoryWorkmanship   = "workmanship"
	NCRCategoryDocumentation = "documentation"
	NCRCategoryProcess       = "process"
	NCRCategoryDesign        = "design"
	NCRCategoryOther         = "other"
)

// IsTerminal reports whether the NCR is closed in either mode
func (n *NCR) IsTerminal() bool {
	return n.Status == NCRStatusClosed || n.Status == NCRStatusClosedConcession
}

// IsMajor severity == major
func (n *NCR) IsMajor() bool {
	return n.Severity == NCRSeverityMajor
}
