package inventory

import (
	"fmt"
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemDTO is the inventory item payload returned to clients.
type ItemDTO struct {
	ID          uuid.UUID       `json:"id"`
	ItemName    string          `json:"item_name"`
	Category    string          `json:"category"`
	Size        string          `json:"size"`
	Color       string          `json:"color"`
	Barcode     string          `json:"barcode"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func FromModel(item *models.InventoryItem) ItemDTO {
	return ItemDTO{
		ID:          item.ID,
		ItemName:    item.ItemName,
		Category:    item.Category.String(),
		Size:        item.Size,
		Color:       item.Color,
		Barcode:     item.Barcode,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		Description: item.Description,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

// ListResult is one page of inventory items.
type ListResult struct {
	Items      []ItemDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// IngestResult counts what one ingestion did.
type IngestResult struct {
	Created     int       `json:"created"`
	Incremented int       `json:"incremented"`
	Items       []ItemDTO `json:"items"`
}

// Nothing reports that every size entry was skipped.
func (r *IngestResult) Nothing() bool {
	return r.Created == 0 && r.Incremented == 0
}

// Summary renders a short human-readable outcome.
func (r *IngestResult) Summary() string {
	switch {
	case r.Nothing():
		return "No items were added: all quantities were zero."
	case r.Incremented == 0:
		return fmt.Sprintf("Created %d new %s.", r.Created, plural(r.Created, "item", "items"))
	case r.Created == 0:
		return fmt.Sprintf("Added stock to %d existing %s.", r.Incremented, plural(r.Incremented, "item", "items"))
	default:
		return fmt.Sprintf("Created %d new %s and added stock to %d existing %s.",
			r.Created, plural(r.Created, "item", "items"),
			r.Incremented, plural(r.Incremented, "item", "items"))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
