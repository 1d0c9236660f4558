package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"gorm.io/gorm"
)

// TestCounts test results per lot
type TestCounts struct {
	LotID   string
	Total   int
	Passed  int
	Failed  int
	Pending int
}

// LotRepository lot / ITP / test / photo repository
type LotRepository struct {
	db *gorm.DB
}

func NewLotRepository(db *gorm.DB) *LotRepository {
	return &LotRepository{db: db}
}

// FindByID find lot by ID
func (r *LotRepository) FindByID(ctx context.Context, id string) (*entity.Lot, error) {
	var lot entity.Lot
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&lot).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &lot, nil
}

// FindByIDs lots by ID, ordered by lot number
func (r *LotRepository) FindByIDs(ctx context.Context, ids []string) ([]entity.Lot, error) {
	var lots []entity.Lot
	if len(ids) == 0 {
		return lots, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("lot_number ASC").Find(&lots).Error
	return lots, err
}

// ListByProject project lots
func (r *LotRepository) ListByProject(ctx context.Context, projectID string) ([]entity.Lot, error) {
	var lots []entity.Lot
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("lot_number ASC").Find(&lots).Error
	return lots, err
}

// Create create lot
func (r *LotRepository) Create(ctx context.Context, lot *entity.Lot) error {
	if lot.ID == "" {
		lot.ID = newID()
	}
	return r.db.WithContext(ctx).Create(lot).Error
}

// CreateInstance assign an ITP with its checklist items. Every hold item gets a pending hold point.
func (r *LotRepository) CreateInstance(ctx context.Context, projectID string, inst *entity.ITPInstance) error {
	if inst.ID == "" {
		inst.ID = newID()
	}
	for i := range inst.Items {
		if inst.Items[i].ID == "" {
			inst.Items[i].ID = newID()
		}
		inst.Items[i].InstanceID = inst.ID
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(inst).Error; err != nil {
			return err
		}
		for _, item := range inst.Items {
			if item.PointType != entity.PointTypeHold {
				continue
			}
			hp := entity.HoldPoint{
				ID:            newID(),
				ProjectID:     projectID,
				LotID:         inst.LotID,
				ITPInstanceID: inst.ID,
				ItemID:        item.ID,
				Description:   item.Description,
				Status:        entity.HoldPointStatusPending,
				Version:       1,
			}
			if err := tx.Create(&hp).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindItem checklist item by ID
func (r *LotRepository) FindItem(ctx context.Context, itemID string) (*entity.ITPChecklistItem, error) {
	var item entity.ITPChecklistItem
	err := r.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// FindInstance ITP instance by ID
func (r *LotRepository) FindInstance(ctx context.Context, id string) (*entity.ITPInstance, error) {
	var inst entity.ITPInstance
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&inst).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &inst, nil
}

// ListInstances ITP instances of a lot with their checklist items
func (r *LotRepository) ListInstances(ctx context.Context, lotID string) ([]entity.ITPInstance, error) {
	var items []entity.ITPInstance
	err := r.db.WithContext(ctx).
		Where("lot_id = ?", lotID).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// ListItems checklist items of an ITP instance in sequence order
func (r *LotRepository) ListItems(ctx context.Context, instanceID string) ([]entity.ITPChecklistItem, error) {
	var items []entity.ITPChecklistItem
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("sequence ASC").
		Find(&items).Error
	return items, err
}

// CompleteItem mark a checklist item completed
func (r *LotRepository) CompleteItem(ctx context.Context, itemID, userID string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&entity.ITPChecklistItem{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{
			"is_completed": true,
			"completed_at": at,
			"completed_by": userID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTestResult record a test result
func (r *LotRepository) AddTestResult(ctx context.Context, tr *entity.TestResult) error {
	if tr.ID == "" {
		tr.ID = newID()
	}
	return r.db.WithContext(ctx).Create(tr).Error
}

// ListTests test results for lots
func (r *LotRepository) ListTests(ctx context.Context, lotIDs []string) ([]entity.TestResult, error) {
	var items []entity.TestResult
	if len(lotIDs) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).Where("lot_id IN ?", lotIDs).Order("lot_id, created_at").Find(&items).Error
	return items, err
}

// AddPhoto attach a lot photo
func (r *LotRepository) AddPhoto(ctx context.Context, p *entity.LotPhoto) error {
	if p.ID == "" {
		p.ID = newID()
	}
	return r.db.WithContext(ctx).Create(p).Error
}

// ListPhotos photos of a lot
func (r *LotRepository) ListPhotos(ctx context.Context, lotID string) ([]entity.LotPhoto, error) {
	var items []entity.LotPhoto
	err := r.db.WithContext(ctx).Where("lot_id = ?", lotID).Order("created_at ASC").Find(&items).Error
	return items, err
}

// ITPProgress completed/total checklist items per lot
func (r *LotRepository) ITPProgress(ctx context.Context, lotIDs []string) (map[string]Progress, error) {
	var rows []Progress
	err := r.db.WithContext(ctx).
		Table("qa_itp_checklist_items AS c").
		Select("i.lot_id AS lot_id, COUNT(*) AS total, SUM(CASE WHEN c.is_completed THEN 1 ELSE 0 END) AS done").
		Joins("JOIN qa_itp_instances AS i ON i.id = c.instance_id").
		Where("i.lot_id IN ?", lotIDs).
		Group("i.lot_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return progressByLot(rows), nil
}

// TestCountsByLot pass/fail/pending counts per lot
func (r *LotRepository) TestCountsByLot(ctx context.Context, lotIDs []string) (map[string]TestCounts, error) {
	var rows []TestCounts
	err := r.db.WithContext(ctx).
		Model(&entity.TestResult{}).
		Select(`lot_id, COUNT(*) AS total,
			SUM(CASE WHEN result = ? THEN 1 ELSE 0 END) AS passed,
			SUM(CASE WHEN result = ? THEN 1 ELSE 0 END) AS failed,
			SUM(CASE WHEN result = ? THEN 1 ELSE 0 END) AS pending`,
			entity.TestResultPass, entity.TestResultFail, entity.TestResultPending).
		Where("lot_id IN ?", lotIDs).
		Group("lot_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]TestCounts, len(rows))
	for _, c := range rows {
		out[c.LotID] = c
	}
	return out, nil
}

// PhotoCountsByLot photo count per lot
func (r *LotRepository) PhotoCountsByLot(ctx context.Context, lotIDs []string) (map[string]int, error) {
	var rows []struct {
		LotID string
		Total int
	}
	err := r.db.WithContext(ctx).
		Model(&entity.LotPhoto{}).
		Select("lot_id, COUNT(*) AS total").
		Where("lot_id IN ?", lotIDs).
		Group("lot_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.LotID] = row.Total
	}
	return out, nil
}
