package deliveries

import (
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/google/uuid"
)

// DeliveryDTO is the delivery record payload returned to clients.
type DeliveryDTO struct {
	ID                uuid.UUID `json:"id"`
	InventoryItemID   uuid.UUID `json:"inventory_item_id"`
	Barcode           string    `json:"barcode"`
	ItemName          string    `json:"item_name"`
	CustomerName      string    `json:"customer_name"`
	QuantityDelivered int       `json:"quantity_delivered"`
	DeliveredBy       uuid.UUID `json:"delivered_by"`
	Notes             string    `json:"notes"`
	DeliveredAt       time.Time `json:"delivered_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func FromModel(rec *models.DeliveryRecord) DeliveryDTO {
	return DeliveryDTO{
		ID:                rec.ID,
		InventoryItemID:   rec.InventoryItemID,
		Barcode:           rec.Barcode,
		ItemName:          rec.ItemName,
		CustomerName:      rec.CustomerName,
		QuantityDelivered: rec.QuantityDelivered,
		DeliveredBy:       rec.DeliveredBy,
		Notes:             rec.Notes,
		DeliveredAt:       rec.DeliveredAt,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}

// ListResult is one page of delivery history.
type ListResult struct {
	Deliveries []DeliveryDTO `json:"deliveries"`
	NextCursor string        `json:"next_cursor,omitempty"`
}
