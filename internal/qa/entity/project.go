package entity

import "time"

// Project construction project with its QA settings
type Project struct {
	ID   string `json:"id" gorm:"primaryKey;size:32"`
	Code string `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name string `json:"name" gorm:"size:200;not null"`

	// SOPA jurisdiction code (NSW/VIC/QLD/WA/SA/TAS/ACT/NT)
	SOPARegion string `json:"sopa_region" gorm:"size:8"`
	// Minimum working days notice for hold point release requests; nil = config default
	HoldPointMinNoticeDays *int `json:"hold_point_min_notice_days"`
	// any/superintendent
	HoldPointApprovalPolicy string `json:"hold_point_approval_policy" gorm:"size:20;default:any"`

	ClientName string    `json:"client_name" gorm:"size:200"`
	CreatedBy  string    `json:"created_by" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Project) TableName() string {
	return "qa_projects"
}

// ProjectMember project role assignment
type ProjectMember struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string    `json:"project_id" gorm:"size:32;not null;uniqueIndex:idx_project_member"`
	UserID    string    `json:"user_id" gorm:"size:32;not null;uniqueIndex:idx_project_member"`
	UserName  string    `json:"user_name" gorm:"size:100"`
	Role      string    `json:"role" gorm:"size:50;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProjectMember) TableName() string {
	return "qa_project_members"
}

// Hold point approval policy
const (
	HoldPointApprovalAny            = "any"
	HoldPointApprovalSuperintendent = "superintendent"
)

// Project roles
const (
	RoleQualityManager = "quality_manager"
	RoleProjectManager = "project_manager"
	RoleSuperintendent = "superintendent"
	RoleSiteEngineer   = "site_engineer"
	RoleSubcontractor  = "subcontractor"
	RoleAdmin          = "admin"
)

// AllowedMinNoticeDays selectable notice periods
var AllowedMinNoticeDays = []int{0, 1, 2, 3, 5}
