package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict the row changed since it was read
	ErrConflict = errors.New("record was modified concurrently")
)

// Repositories QA repository set
type Repositories struct {
	Project     *ProjectRepository
	Lot         *LotRepository
	NCR         *NCRRepository
	HoldPoint   *HoldPointRepository
	Claim       *ClaimRepository
	ActivityLog *ActivityLogRepository
}

// NewRepositories build the QA repository set
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Project:     NewProjectRepository(db),
		Lot:         NewLotRepository(db),
		NCR:         NewNCRRepository(db),
		HoldPoint:   NewHoldPointRepository(db),
		Claim:       NewClaimRepository(db),
		ActivityLog: NewActivityLogRepository(db),
	}
}

func newID() string {
	return uuid.New().String()[:32]
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// updateVersioned writes all columns of model when the stored version still matches,
// and bumps *version on success.
func updateVersioned(ctx context.Context, db *gorm.DB, model interface{}, id string, version *int) error {
	expected := *version
	*version = expected + 1
	res := db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", id, expected).
		Select("*").
		Omit(clause.Associations, "id", "created_at").
		Updates(model)
	if res.Error != nil {
		*version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		*version = expected
		return ErrConflict
	}
	return nil
}
