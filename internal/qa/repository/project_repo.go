package repository

import (
	"context"

	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"gorm.io/gorm"
)

// ProjectRepository project repository
type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// FindByID find project by ID
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*entity.Project, error) {
	var project entity.Project
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &project, nil
}

// Create create project
func (r *ProjectRepository) Create(ctx context.Context, project *entity.Project) error {
	if project.ID == "" {
		project.ID = newID()
	}
	return r.db.WithContext(ctx).Create(project).Error
}

// Update update project
func (r *ProjectRepository) Update(ctx context.Context, project *entity.Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

// AddMember add project member
func (r *ProjectRepository) AddMember(ctx context.Context, member *entity.ProjectMember) error {
	if member.ID == "" {
		member.ID = newID()
	}
	return r.db.WithContext(ctx).Create(member).Error
}

// ListMembers list project members
func (r *ProjectRepository) ListMembers(ctx context.Context, projectID string) ([]entity.ProjectMember, error) {
	var members []entity.ProjectMember
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&members).Error
	return members, err
}

// FindMemberRoles roles a user holds on a project
func (r *ProjectRepository) FindMemberRoles(ctx context.Context, projectID, userID string) ([]string, error) {
	var roles []string
	err := r.db.WithContext(ctx).
		Model(&entity.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Pluck("role", &roles).Error
	return roles, err
}
