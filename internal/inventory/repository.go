package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/db"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Fingerprint identifies one item variant. Matching is exact.
type Fingerprint struct {
	ItemName string
	Category enums.ItemCategory
	Size     string
	Color    string
}

// ListQuery filters catalog listings. Limit is the raw row count to fetch.
type ListQuery struct {
	Category      *enums.ItemCategory
	Query         string
	LowStockBelow *int
	Cursor        *pagination.Cursor
	Limit         int
}

// Repository is the catalog store.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	FindByBarcode(ctx context.Context, code string) (*models.InventoryItem, error)
	FindByFingerprint(ctx context.Context, fp Fingerprint) (*models.InventoryItem, error)
	BarcodeExists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, item *models.InventoryItem) error
	Update(ctx context.Context, item *models.InventoryItem) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, query ListQuery) ([]models.InventoryItem, error)
	ListLowStock(ctx context.Context, threshold int) ([]models.InventoryItem, error)
	// IncrementQuantity adds n units and reports whether the item exists.
	IncrementQuantity(ctx context.Context, id uuid.UUID, n int) (bool, error)
	// DecrementIfAvailable removes n units only when at least n are on hand.
	DecrementIfAvailable(ctx context.Context, id uuid.UUID, n int) (bool, error)
}

// GormRepository persists inventory items through GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(conn *gorm.DB) *GormRepository {
	return &GormRepository{db: conn}
}

// WithTx returns a repository bound to the provided transaction.
func (r *GormRepository) WithTx(tx *gorm.DB) *GormRepository {
	return &GormRepository{db: tx}
}

func (r *GormRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: find inventory item")
	}
	return &item, nil
}

func (r *GormRepository) FindByBarcode(ctx context.Context, code string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "barcode = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no inventory item with barcode %s", code)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: find inventory item by barcode")
	}
	return &item, nil
}

func (r *GormRepository) FindByFingerprint(ctx context.Context, fp Fingerprint) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("item_name = ? AND category = ? AND size = ? AND color = ?", fp.ItemName, fp.Category, fp.Size, fp.Color).
		First(&item).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: find inventory variant")
	}
	return &item, nil
}

func (r *GormRepository) BarcodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InventoryItem{}).Where("barcode = ?", code).Count(&count).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: check barcode")
	}
	return count > 0, nil
}

// Create inserts item. Unique index violations surface as ErrBarcodeTaken or ErrFingerprintTaken.
func (r *GormRepository) Create(ctx context.Context, item *models.InventoryItem) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return translateWriteError(err, "db: create inventory item")
	}
	return nil
}

// Update writes the descriptive fields of item. Quantity and barcode are left alone.
func (r *GormRepository) Update(ctx context.Context, item *models.InventoryItem) error {
	item.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"item_name":   item.ItemName,
			"category":    item.Category,
			"size":        item.Size,
			"color":       item.Color,
			"unit_price":  item.UnitPrice,
			"description": item.Description,
			"updated_at":  item.UpdatedAt,
		})
	if res.Error != nil {
		return translateWriteError(res.Error, "db: update inventory item")
	}
	if res.RowsAffected == 0 {
		return NotFound(item.ID)
	}
	return nil
}

func (r *GormRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.InventoryItem{})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "db: delete inventory item")
	}
	return res.RowsAffected > 0, nil
}

// List returns items ordered by created_at DESC, id DESC.
func (r *GormRepository) List(ctx context.Context, query ListQuery) ([]models.InventoryItem, error) {
	q := r.db.WithContext(ctx).Model(&models.InventoryItem{})
	if query.Category != nil {
		q = q.Where("category = ?", *query.Category)
	}
	if term := strings.TrimSpace(query.Query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(item_name) LIKE ? OR LOWER(description) LIKE ? OR barcode LIKE ?)", like, like, like)
	}
	if query.LowStockBelow != nil {
		q = q.Where("quantity < ?", *query.LowStockBelow)
	}
	if query.Cursor != nil {
		at := query.Cursor.At.UTC()
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", at, at, query.Cursor.ID)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var rows []models.InventoryItem
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list inventory items")
	}
	return rows, nil
}

// ListLowStock returns items with quantity at or below threshold, emptiest first.
func (r *GormRepository) ListLowStock(ctx context.Context, threshold int) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("quantity <= ?", threshold).
		Order("quantity ASC").
		Order("item_name ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list low stock items")
	}
	return rows, nil
}

func (r *GormRepository) IncrementQuantity(ctx context.Context, id uuid.UUID, n int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", n),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "db: increment inventory quantity")
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepository) DecrementIfAvailable(ctx context.Context, id uuid.UUID, n int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ? AND quantity >= ?", id, n).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", n),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "db: decrement inventory quantity")
	}
	return res.RowsAffected > 0, nil
}

func translateWriteError(err error, msg string) error {
	switch {
	case db.IsUniqueViolation(err, models.InventoryBarcodeConstraint, "inventory_items.barcode"):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrBarcodeTaken, "barcode already assigned")
	case db.IsUniqueViolation(err, models.InventoryFingerprintConstraint, "inventory_items.item_name"):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrFingerprintTaken, "an item with this name, category, size and color already exists")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
}
