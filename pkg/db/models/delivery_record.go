package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryRecord is a ledger entry of stock handed to a customer. InventoryItemID
// is a weak reference: deleting the item leaves the record in place.
type DeliveryRecord struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	InventoryItemID   uuid.UUID `gorm:"column:inventory_item_id;type:uuid;not null;index:idx_delivery_records_item"`
	Barcode           string    `gorm:"column:barcode;type:varchar(12);not null"`
	ItemName          string    `gorm:"column:item_name;not null;default:''"`
	CustomerName      string    `gorm:"column:customer_name;not null"`
	QuantityDelivered int       `gorm:"column:quantity_delivered;not null;check:chk_delivery_records_quantity,quantity_delivered > 0"`
	DeliveredBy       uuid.UUID `gorm:"column:delivered_by;type:uuid;not null;index:idx_delivery_records_delivered_by"`
	Notes             string    `gorm:"column:notes;not null;default:''"`
	DeliveredAt       time.Time `gorm:"column:delivered_at;not null;index:idx_delivery_records_delivered_at"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DeliveryRecord) TableName() string { return "delivery_records" }

func (d *DeliveryRecord) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.DeliveredAt.IsZero() {
		d.DeliveredAt = time.Now().UTC()
	}
	return nil
}
