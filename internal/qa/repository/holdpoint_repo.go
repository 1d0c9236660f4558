package repository

import (
	"context"

	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"gorm.io/gorm"
)

// Progress done/total pair per lot
type Progress struct {
	LotID string
	Total int
	Done  int
}

// HoldPointRepository hold point repository
type HoldPointRepository struct {
	db *gorm.DB
}

func NewHoldPointRepository(db *gorm.DB) *HoldPointRepository {
	return &HoldPointRepository{db: db}
}

// FindByID find hold point by ID
func (r *HoldPointRepository) FindByID(ctx context.Context, id string) (*entity.HoldPoint, error) {
	var hp entity.HoldPoint
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&hp).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &hp, nil
}

// FindByLotItem hold point on a lot's checklist item
func (r *HoldPointRepository) FindByLotItem(ctx context.Context, lotID, itemID string) (*entity.HoldPoint, error) {
	var hp entity.HoldPoint
	err := r.db.WithContext(ctx).
		Where("lot_id = ? AND item_id = ?", lotID, itemID).
		First(&hp).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &hp, nil
}

// FindByProject hold points of a project, filterable by status / lot_id
func (r *HoldPointRepository) FindByProject(ctx context.Context, projectID string, filters map[string]string) ([]entity.HoldPoint, error) {
	var items []entity.HoldPoint
	query := r.db.WithContext(ctx).Where("project_id = ?", projectID)
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if lotID := filters["lot_id"]; lotID != "" {
		query = query.Where("lot_id = ?", lotID)
	}
	err := query.Order("scheduled_date ASC NULLS LAST, created_at ASC").Find(&items).Error
	return items, err
}

// FindByLots hold points on any of the lots
func (r *HoldPointRepository) FindByLots(ctx context.Context, lotIDs []string) ([]entity.HoldPoint, error) {
	var items []entity.HoldPoint
	if len(lotIDs) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).Where("lot_id IN ?", lotIDs).Order("lot_id, created_at").Find(&items).Error
	return items, err
}

// Create create hold point
func (r *HoldPointRepository) Create(ctx context.Context, hp *entity.HoldPoint) error {
	if hp.ID == "" {
		hp.ID = newID()
	}
	if hp.Version == 0 {
		hp.Version = 1
	}
	return r.db.WithContext(ctx).Create(hp).Error
}

// Update version-checked update
func (r *HoldPointRepository) Update(ctx context.Context, hp *entity.HoldPoint) error {
	return updateVersioned(ctx, r.db, hp, hp.ID, &hp.Version)
}

// ReleaseProgress released/total hold points per lot. Every hold-type checklist item counts,
// whether or not its release has been requested.
func (r *HoldPointRepository) ReleaseProgress(ctx context.Context, lotIDs []string) (map[string]Progress, error) {
	var rows []Progress
	err := r.db.WithContext(ctx).
		Table("qa_itp_checklist_items AS c").
		Select("i.lot_id AS lot_id, COUNT(*) AS total, SUM(CASE WHEN h.status = ? THEN 1 ELSE 0 END) AS done", entity.HoldPointStatusReleased).
		Joins("JOIN qa_itp_instances AS i ON i.id = c.instance_id").
		Joins("LEFT JOIN qa_hold_points AS h ON h.lot_id = i.lot_id AND h.item_id = c.id").
		Where("c.point_type = ? AND i.lot_id IN ?", entity.PointTypeHold, lotIDs).
		Group("i.lot_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return progressByLot(rows), nil
}

// FindUnrequested hold-type checklist items of a project with no hold point record,
// as unsaved pending hold points
func (r *HoldPointRepository) FindUnrequested(ctx context.Context, projectID, lotID string) ([]entity.HoldPoint, error) {
	var rows []struct {
		ItemID        string
		ITPInstanceID string
		LotID         string
		Description   string
	}
	query := r.db.WithContext(ctx).
		Table("qa_itp_checklist_items AS c").
		Select("c.id AS item_id, c.instance_id AS itp_instance_id, i.lot_id AS lot_id, c.description AS description").
		Joins("JOIN qa_itp_instances AS i ON i.id = c.instance_id").
		Joins("JOIN qa_lots AS l ON l.id = i.lot_id").
		Joins("LEFT JOIN qa_hold_points AS h ON h.lot_id = i.lot_id AND h.item_id = c.id").
		Where("l.project_id = ? AND c.point_type = ? AND h.id IS NULL", projectID, entity.PointTypeHold)
	if lotID != "" {
		query = query.Where("i.lot_id = ?", lotID)
	}
	if err := query.Order("l.lot_number ASC, c.sequence ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.HoldPoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, entity.HoldPoint{
			ProjectID:     projectID,
			LotID:         row.LotID,
			ITPInstanceID: row.ITPInstanceID,
			ItemID:        row.ItemID,
			Description:   row.Description,
			Status:        entity.HoldPointStatusPending,
		})
	}
	return out, nil
}

func progressByLot(rows []Progress) map[string]Progress {
	out := make(map[string]Progress, len(rows))
	for _, p := range rows {
		out[p.LotID] = p
	}
	return out
}
