package inventory

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/stockroom-backend/internal/barcode"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/google/uuid"
)

var (
	// ErrBarcodeTaken marks an insert rejected by the barcode unique index.
	ErrBarcodeTaken = errors.New("barcode already assigned")
	// ErrFingerprintTaken marks a write rejected by the (name, category, size, color) unique index.
	ErrFingerprintTaken = errors.New("item variant already exists")
)

// InsufficientStockDetails is attached to INSUFFICIENT_STOCK errors.
type InsufficientStockDetails struct {
	ItemName  string `json:"item_name"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

// InsufficientStock reports that requested units exceed what the item holds.
func InsufficientStock(itemName string, available, requested int) error {
	msg := fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d", itemName, available, requested)
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, msg).WithDetails(InsufficientStockDetails{
		ItemName:  itemName,
		Available: available,
		Requested: requested,
	})
}

// DanglingReference reports a delivery whose inventory item was deleted.
func DanglingReference(itemID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeDanglingReference, "inventory item for this delivery no longer exists").
		WithDetails(map[string]string{"inventory_item_id": itemID.String()})
}

// AllocationExhausted reports that no free barcode was found within attempts tries.
func AllocationExhausted(attempts int) error {
	return barcode.Exhausted(attempts)
}

// NotFound reports a missing inventory item.
func NotFound(id uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "inventory item %s not found", id)
}

func validation(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg)
}
