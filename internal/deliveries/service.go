package deliveries

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stockroom-backend/internal/inventory"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/pagination"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Service records deliveries and keeps inventory quantities consistent with them.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*DeliveryDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*DeliveryDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*DeliveryDTO, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type RecordInput struct {
	InventoryItemID   uuid.UUID
	QuantityDelivered int
	CustomerName      string
	Notes             string
	DeliveredBy       uuid.UUID
	DeliveredAt       *time.Time
}

type UpdateInput struct {
	CustomerName      string
	QuantityDelivered int
	Notes             string
}

type ListParams struct {
	InventoryItemID *uuid.UUID
	CustomerName    string
	DeliveredBy     *uuid.UUID
	From            *time.Time
	To              *time.Time
	Pagination      pagination.Params
}

// stockLedger is the subset of the catalog store the reconciler moves stock through.
type stockLedger interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	IncrementQuantity(ctx context.Context, id uuid.UUID, n int) (bool, error)
	DecrementIfAvailable(ctx context.Context, id uuid.UUID, n int) (bool, error)
}

type ledgerMetrics interface {
	Delivery(operation string, err error)
	UnitsOut(n int)
	UnitsIn(n int)
	Compensation(err error)
}

type noopMetrics struct{}

func (noopMetrics) Delivery(string, error) {}
func (noopMetrics) UnitsOut(int) {}
func (noopMetrics) UnitsIn(int) {}
func (noopMetrics) Compensation(error) {}

type ServiceParams struct {
	Repo    Repository
	Items   stockLedger
	Metrics ledgerMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	items   stockLedger
	metrics ledgerMetrics
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if params.Items == nil {
		return nil, fmt.Errorf("inventory store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	metrics := params.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &service{
		repo:    params.Repo,
		items:   params.Items,
		metrics: metrics,
		logg:    params.Logger,
	}, nil
}

// Record takes stock out of the item and then writes the delivery. If the
// write fails the units are put back.
func (s *service) Record(ctx context.Context, input RecordInput) (dto *DeliveryDTO, err error) {
	defer func() { s.metrics.Delivery("record", err) }()

	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.Notes = strings.TrimSpace(input.Notes)
	switch {
	case input.InventoryItemID == uuid.Nil:
		return nil, validation("inventory_item_id is required")
	case input.QuantityDelivered <= 0:
		return nil, validation("quantity_delivered must be greater than zero")
	case input.CustomerName == "":
		return nil, validation("customer_name is required")
	case input.DeliveredBy == uuid.Nil:
		return nil, validation("delivered_by is required")
	}

	item, err := s.items.FindByID(ctx, input.InventoryItemID)
	if err != nil {
		return nil, err
	}
	if err := s.takeStock(ctx, item.ID, item.ItemName, input.QuantityDelivered); err != nil {
		return nil, err
	}

	rec := &models.DeliveryRecord{
		InventoryItemID:   item.ID,
		Barcode:           item.Barcode,
		ItemName:          item.ItemName,
		CustomerName:      input.CustomerName,
		QuantityDelivered: input.QuantityDelivered,
		DeliveredBy:       input.DeliveredBy,
		Notes:             input.Notes,
	}
	if input.DeliveredAt != nil {
		rec.DeliveredAt = input.DeliveredAt.UTC()
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, s.compensate(ctx, err, "restore stock after failed delivery insert", func() error {
			return s.restock(ctx, item.ID, input.QuantityDelivered)
		})
	}
	s.metrics.UnitsOut(input.QuantityDelivered)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"delivery_id":       rec.ID.String(),
		"inventory_item_id": item.ID.String(),
		"quantity":          rec.QuantityDelivered,
	})
	s.logg.Info(logCtx, "delivery recorded")

	out := FromModel(rec)
	return &out, nil
}

// Update edits a delivery and moves the quantity difference between the item
// and the customer. A concurrent edit of the same record yields CONFLICT.
func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (dto *DeliveryDTO, err error) {
	defer func() { s.metrics.Delivery("update", err) }()

	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.Notes = strings.TrimSpace(input.Notes)
	if input.QuantityDelivered <= 0 {
		return nil, validation("quantity_delivered must be greater than zero")
	}
	if input.CustomerName == "" {
		return nil, validation("customer_name is required")
	}

	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	item, err := s.items.FindByID(ctx, rec.InventoryItemID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, inventory.DanglingReference(rec.InventoryItemID)
		}
		return nil, err
	}

	diff := input.QuantityDelivered - rec.QuantityDelivered
	switch {
	case diff > 0:
		if err := s.takeStock(ctx, item.ID, item.ItemName, diff); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil, inventory.DanglingReference(item.ID)
			}
			return nil, err
		}
	case diff < 0:
		if err := s.giveStock(ctx, item.ID, -diff); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil, inventory.DanglingReference(item.ID)
			}
			return nil, err
		}
	}

	undo := func() error {
		switch {
		case diff > 0:
			return s.restock(ctx, item.ID, diff)
		case diff < 0:
			return s.takeStock(ctx, item.ID, item.ItemName, -diff)
		}
		return nil
	}

	ok, err := s.repo.UpdateIfQuantity(ctx, id, rec.QuantityDelivered, Fields{
		CustomerName:      input.CustomerName,
		QuantityDelivered: input.QuantityDelivered,
		Notes:             input.Notes,
	})
	if err != nil {
		return nil, s.compensate(ctx, err, "revert stock after failed delivery update", undo)
	}
	if !ok {
		conflict := pkgerrors.New(pkgerrors.CodeConflict, "delivery was modified concurrently; reload and retry")
		return nil, s.compensate(ctx, conflict, "revert stock after lost delivery update", undo)
	}
	switch {
	case diff > 0:
		s.metrics.UnitsOut(diff)
	case diff < 0:
		s.metrics.UnitsIn(-diff)
	}

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"delivery_id": id.String(),
		"diff":        diff,
	})
	s.logg.Info(logCtx, "delivery updated")

	out := FromModel(updated)
	return &out, nil
}

// Delete removes a delivery and returns its units to the item when the item
// still exists. Only the caller whose delete removed the row restores stock.
func (s *service) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { s.metrics.Delivery("delete", err) }()

	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return recordNotFound(id)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"delivery_id":       id.String(),
		"inventory_item_id": rec.InventoryItemID.String(),
		"quantity":          rec.QuantityDelivered,
	})

	restored, err := s.items.IncrementQuantity(ctx, rec.InventoryItemID, rec.QuantityDelivered)
	if err != nil {
		return s.compensate(ctx, err, "re-insert delivery after failed stock restore", func() error {
			return s.repo.Create(ctx, rec)
		})
	}
	if !restored {
		s.logg.Info(logCtx, "delivery deleted; inventory item no longer exists, stock not restored")
		return nil
	}
	s.metrics.UnitsIn(rec.QuantityDelivered)
	s.logg.Info(logCtx, "delivery deleted")
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*DeliveryDTO, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := FromModel(rec)
	return &out, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if params.From != nil && params.To != nil && !params.To.After(*params.From) {
		return nil, validation("to must be after from")
	}

	rows, err := s.repo.List(ctx, ListQuery{
		InventoryItemID: params.InventoryItemID,
		CustomerName:    params.CustomerName,
		DeliveredBy:     params.DeliveredBy,
		From:            params.From,
		To:              params.To,
		Cursor:          cursor,
		Limit:           pagination.LimitWithBuffer(params.Pagination.Limit),
	})
	if err != nil {
		return nil, err
	}

	page, next := pagination.Page(rows, params.Pagination.Limit, func(rec models.DeliveryRecord) pagination.Cursor {
		return pagination.Cursor{At: rec.DeliveredAt, ID: rec.ID}
	})
	out := make([]DeliveryDTO, 0, len(page))
	for i := range page {
		out = append(out, FromModel(&page[i]))
	}
	return &ListResult{Deliveries: out, NextCursor: next}, nil
}

// takeStock removes n units only if available. A refusal re-reads the item so
// the error reports the current quantity.
func (s *service) takeStock(ctx context.Context, itemID uuid.UUID, name string, n int) error {
	ok, err := s.items.DecrementIfAvailable(ctx, itemID, n)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	current, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return err
	}
	if current.ItemName != "" {
		name = current.ItemName
	}
	return inventory.InsufficientStock(name, current.Quantity, n)
}

func (s *service) giveStock(ctx context.Context, itemID uuid.UUID, n int) error {
	ok, err := s.items.IncrementQuantity(ctx, itemID, n)
	if err != nil {
		return err
	}
	if !ok {
		return inventory.NotFound(itemID)
	}
	return nil
}

// restock returns units taken earlier in the same operation. An item deleted in
// the meantime has nothing to restore.
func (s *service) restock(ctx context.Context, itemID uuid.UUID, n int) error {
	_, err := s.items.IncrementQuantity(ctx, itemID, n)
	return err
}

// compensate runs undo after cause and returns cause, combined with the undo
// error when that fails too.
func (s *service) compensate(ctx context.Context, cause error, action string, undo func() error) error {
	undoErr := undo()
	s.metrics.Compensation(undoErr)
	if undoErr == nil {
		s.logg.Warn(s.logg.WithField(ctx, "compensation", action), "delivery operation compensated")
		return cause
	}
	s.logg.Error(s.logg.WithField(ctx, "compensation", action), "compensation failed", undoErr)
	return multierr.Combine(cause, undoErr)
}

func validation(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg)
}
