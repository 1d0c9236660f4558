package repository

import (
	"context"

	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"gorm.io/gorm"
)

// ClaimRepository progress claim repository
type ClaimRepository struct {
	db *gorm.DB
}

func NewClaimRepository(db *gorm.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// FindByProject claims of a project, newest first
func (r *ClaimRepository) FindByProject(ctx context.Context, projectID, status string) ([]entity.Claim, error) {
	var items []entity.Claim
	query := r.db.WithContext(ctx).Preload("Lots").Where("project_id = ?", projectID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("claim_number DESC").Find(&items).Error
	return items, err
}

// FindByID find claim with its lots
func (r *ClaimRepository) FindByID(ctx context.Context, id string) (*entity.Claim, error) {
	var claim entity.Claim
	err := r.db.WithContext(ctx).Preload("Lots").Where("id = ?", id).First(&claim).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &claim, nil
}

// Create create claim with the next per-project claim number
func (r *ClaimRepository) Create(ctx context.Context, claim *entity.Claim) error {
	if claim.ID == "" {
		claim.ID = newID()
	}
	if claim.Version == 0 {
		claim.Version = 1
	}
	for i := range claim.Lots {
		if claim.Lots[i].ID == "" {
			claim.Lots[i].ID = newID()
		}
		claim.Lots[i].ClaimID = claim.ID
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxNumber int
		if err := tx.Model(&entity.Claim{}).
			Select("COALESCE(MAX(claim_number), 0)").
			Where("project_id = ?", claim.ProjectID).
			Scan(&maxNumber).Error; err != nil {
			return err
		}
		claim.ClaimNumber = maxNumber + 1
		return tx.Create(claim).Error
	})
}

// UpdateWithLots version-checked update of the claim row and, when lots is non-nil,
// its claimed lot set, in one transaction
func (r *ClaimRepository) UpdateWithLots(ctx context.Context, claim *entity.Claim, lots []entity.ClaimedLot) error {
	expected := claim.Version
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateVersioned(ctx, tx, claim, claim.ID, &claim.Version); err != nil {
			return err
		}
		if lots == nil {
			return nil
		}
		return replaceLots(tx, claim.ID, lots)
	})
	if err != nil {
		claim.Version = expected
	}
	return err
}

func replaceLots(tx *gorm.DB, claimID string, lots []entity.ClaimedLot) error {
	if err := tx.Where("claim_id = ?", claimID).Delete(&entity.ClaimedLot{}).Error; err != nil {
		return err
	}
	if len(lots) == 0 {
		return nil
	}
	for i := range lots {
		if lots[i].ID == "" {
			lots[i].ID = newID()
		}
		lots[i].ClaimID = claimID
	}
	return tx.Create(&lots).Error
}
