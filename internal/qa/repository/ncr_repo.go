package repository

import (
	"context"
	"fmt"

	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"gorm.io/gorm"
)

// NCRRepository NCR repository
type NCRRepository struct {
	db *gorm.DB
}

func NewNCRRepository(db *gorm.DB) *NCRRepository {
	return &NCRRepository{db: db}
}

// FindAll paged NCR list with filters
func (r *NCRRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.NCR, int64, error) {
	var items []entity.NCR
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.NCR{})

	if projectID := filters["project_id"]; projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if severity := filters["severity"]; severity != "" {
		query = query.Where("severity = ?", severity)
	}
	if responsible := filters["responsible_id"]; responsible != "" {
		query = query.Where("responsible_id = ?", responsible)
	}
	if lotID := filters["lot_id"]; lotID != "" {
		query = query.Where("id IN (?)", r.db.Model(&entity.NCRLot{}).Select("ncr_id").Where("lot_id = ?", lotID))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("sequence DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID find NCR with lots and evidence
func (r *NCRRepository) FindByID(ctx context.Context, id string) (*entity.NCR, error) {
	var ncr entity.NCR
	err := r.db.WithContext(ctx).
		Preload("Lots").
		Preload("Evidence", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", id).
		First(&ncr).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &ncr, nil
}

// Create create NCR with the next per-project number NCR-{4 digits}
func (r *NCRRepository) Create(ctx context.Context, ncr *entity.NCR) error {
	if ncr.ID == "" {
		ncr.ID = newID()
	}
	for i := range ncr.Lots {
		if ncr.Lots[i].ID == "" {
			ncr.Lots[i].ID = newID()
		}
		ncr.Lots[i].NCRID = ncr.ID
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int
		if err := tx.Model(&entity.NCR{}).
			Select("COALESCE(MAX(sequence), 0)").
			Where("project_id = ?", ncr.ProjectID).
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		ncr.Sequence = maxSeq + 1
		ncr.NCRNumber = fmt.Sprintf("NCR-%04d", ncr.Sequence)
		return tx.Create(ncr).Error
	})
}

// Update version-checked update
func (r *NCRRepository) Update(ctx context.Context, ncr *entity.NCR) error {
	return updateVersioned(ctx, r.db, ncr, ncr.ID, &ncr.Version)
}

// AddEvidence attach rectification evidence
func (r *NCRRepository) AddEvidence(ctx context.Context, ev *entity.NCREvidence) error {
	if ev.ID == "" {
		ev.ID = newID()
	}
	return r.db.WithContext(ctx).Create(ev).Error
}

// CountEvidence evidence count
func (r *NCRRepository) CountEvidence(ctx context.Context, ncrID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.NCREvidence{}).
		Where("ncr_id = ?", ncrID).
		Count(&count).Error
	return int(count), err
}

// FindByLots NCRs linked to any of the lots
func (r *NCRRepository) FindByLots(ctx context.Context, lotIDs []string) ([]entity.NCR, error) {
	var items []entity.NCR
	if len(lotIDs) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&entity.NCRLot{}).Select("ncr_id").Where("lot_id IN ?", lotIDs)).
		Order("sequence ASC").
		Find(&items).Error
	return items, err
}

// NCRCounts NCR tallies per lot
type NCRCounts struct {
	LotID     string
	Total     int
	Closed    int
	OpenMajor int
}

// CountsByLot total/closed/open-major NCRs per linked lot
func (r *NCRRepository) CountsByLot(ctx context.Context, lotIDs []string) (map[string]NCRCounts, error) {
	var rows []NCRCounts
	closed := []string{entity.NCRStatusClosed, entity.NCRStatusClosedConcession}
	err := r.db.WithContext(ctx).
		Table("qa_ncr_lots AS l").
		Select(`l.lot_id AS lot_id, COUNT(*) AS total,
			SUM(CASE WHEN n.status IN ? THEN 1 ELSE 0 END) AS closed,
			SUM(CASE WHEN n.status NOT IN ? AND n.severity = ? THEN 1 ELSE 0 END) AS open_major`,
			closed, closed, entity.NCRSeverityMajor).
		Joins("JOIN qa_ncrs AS n ON n.id = l.ncr_id").
		Where("l.lot_id IN ?", lotIDs).
		Group("l.lot_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]NCRCounts, len(rows))
	for _, c := range rows {
		out[c.LotID] = c
	}
	return out, nil
}
