package deliveries

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListQuery filters delivery history. Limit is the raw row count to fetch.
type ListQuery struct {
	InventoryItemID *uuid.UUID
	CustomerName    string
	DeliveredBy     *uuid.UUID
	From            *time.Time
	To              *time.Time
	Cursor          *pagination.Cursor
	Limit           int
}

// Fields are the editable columns of a delivery record.
type Fields struct {
	CustomerName      string
	QuantityDelivered int
	Notes             string
}

// Repository is the delivery store.
type Repository interface {
	Create(ctx context.Context, rec *models.DeliveryRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryRecord, error)
	// Delete reports whether this call removed the record.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	// UpdateIfQuantity writes fields only while quantity_delivered still equals expected.
	UpdateIfQuantity(ctx context.Context, id uuid.UUID, expected int, fields Fields) (bool, error)
	List(ctx context.Context, query ListQuery) ([]models.DeliveryRecord, error)
	// CountDangling counts records whose inventory item no longer exists.
	CountDangling(ctx context.Context) (int64, error)
}

func recordNotFound(id uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "delivery record %s not found", id)
}

type GormRepository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *GormRepository {
	return &GormRepository{db: conn}
}

// WithTx returns a repository bound to the provided transaction.
func (r *GormRepository) WithTx(tx *gorm.DB) *GormRepository {
	return &GormRepository{db: tx}
}

func (r *GormRepository) Create(ctx context.Context, rec *models.DeliveryRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: create delivery record")
	}
	return nil
}

func (r *GormRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryRecord, error) {
	var rec models.DeliveryRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, recordNotFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: find delivery record")
	}
	return &rec, nil
}

func (r *GormRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.DeliveryRecord{})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "db: delete delivery record")
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepository) UpdateIfQuantity(ctx context.Context, id uuid.UUID, expected int, fields Fields) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DeliveryRecord{}).
		Where("id = ? AND quantity_delivered = ?", id, expected).
		Updates(map[string]any{
			"customer_name":      fields.CustomerName,
			"quantity_delivered": fields.QuantityDelivered,
			"notes":              fields.Notes,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "db: update delivery record")
	}
	return res.RowsAffected > 0, nil
}

// List returns records ordered by delivered_at DESC, id DESC.
func (r *GormRepository) List(ctx context.Context, query ListQuery) ([]models.DeliveryRecord, error) {
	q := r.db.WithContext(ctx).Model(&models.DeliveryRecord{})
	if query.InventoryItemID != nil {
		q = q.Where("inventory_item_id = ?", *query.InventoryItemID)
	}
	if name := strings.TrimSpace(query.CustomerName); name != "" {
		q = q.Where("LOWER(customer_name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if query.DeliveredBy != nil {
		q = q.Where("delivered_by = ?", *query.DeliveredBy)
	}
	if query.From != nil {
		q = q.Where("delivered_at >= ?", query.From.UTC())
	}
	if query.To != nil {
		q = q.Where("delivered_at < ?", query.To.UTC())
	}
	if query.Cursor != nil {
		at := query.Cursor.At.UTC()
		q = q.Where("(delivered_at < ? OR (delivered_at = ? AND id < ?))", at, at, query.Cursor.ID)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var rows []models.DeliveryRecord
	if err := q.Order("delivered_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list delivery records")
	}
	return rows, nil
}

func (r *GormRepository) CountDangling(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryRecord{}).
		Where("NOT EXISTS (SELECT 1 FROM inventory_items i WHERE i.id = delivery_records.inventory_item_id)").
		Count(&count).
		Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: count dangling deliveries")
	}
	return count, nil
}
