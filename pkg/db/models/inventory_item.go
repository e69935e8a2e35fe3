package models

import (
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	InventoryBarcodeConstraint     = "inventory_items_barcode_key"
	InventoryFingerprintConstraint = "inventory_items_fingerprint_key"
)

// InventoryItem is one stock keeping unit: a distinct (name, category, size, color).
type InventoryItem struct {
	ID          uuid.UUID          `gorm:"type:uuid;primaryKey"`
	ItemName    string             `gorm:"column:item_name;not null;uniqueIndex:inventory_items_fingerprint_key,priority:1"`
	Category    enums.ItemCategory `gorm:"column:category;type:text;not null;uniqueIndex:inventory_items_fingerprint_key,priority:2"`
	Size        string             `gorm:"column:size;not null;uniqueIndex:inventory_items_fingerprint_key,priority:3"`
	Color       string             `gorm:"column:color;not null;uniqueIndex:inventory_items_fingerprint_key,priority:4"`
	Barcode     string             `gorm:"column:barcode;type:varchar(12);not null;uniqueIndex:inventory_items_barcode_key"`
	Quantity    int                `gorm:"column:quantity;not null;default:0;check:chk_inventory_items_quantity,quantity >= 0"`
	UnitPrice   decimal.Decimal    `gorm:"column:unit_price;type:numeric(12,2);not null;default:0;check:chk_inventory_items_unit_price,unit_price >= 0"`
	Description string             `gorm:"column:description;not null;default:''"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryItem) TableName() string { return "inventory_items" }

// BeforeCreate assigns an id when the caller did not.
func (i *InventoryItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
