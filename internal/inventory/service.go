package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/stockroom-backend/internal/barcode"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// Service exposes catalog operations.
type Service interface {
	Ingest(ctx context.Context, input IngestInput) (*IngestResult, error)
	Get(ctx context.Context, id uuid.UUID) (*ItemDTO, error)
	Scan(ctx context.Context, code string) (*ItemDTO, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*ItemDTO, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*ItemDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	BarcodeImage(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// SizeQuantity is one size row of an ingestion request.
type SizeQuantity struct {
	Size     string
	Quantity int
}

// IngestInput adds stock for one product across several sizes.
type IngestInput struct {
	ItemName    string
	Category    enums.ItemCategory
	Color       string
	UnitPrice   decimal.Decimal
	Description string
	Sizes       []SizeQuantity
}

// UpdateInput holds optional edits to an item's descriptive fields.
type UpdateInput struct {
	ItemName    *string
	Category    *enums.ItemCategory
	Size        *string
	Color       *string
	UnitPrice   *decimal.Decimal
	Description *string
}

// ListParams filters and paginates the catalog.
type ListParams struct {
	Category      *enums.ItemCategory
	Query         string
	LowStockBelow *int
	Pagination    pagination.Params
}

type allocator interface {
	Allocate(ctx context.Context) (string, error)
	MaxAttempts() int
}

type stockMetrics interface {
	Ingested(result string)
	UnitsIn(n int)
	UnitsOut(n int)
	BarcodeCollision()
}

// ServiceParams groups the service dependencies.
type ServiceParams struct {
	Repo      Repository
	Allocator allocator
	Metrics   stockMetrics
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	allocator allocator
	metrics   stockMetrics
	logg      *logger.Logger
}

type noopMetrics struct{}

func (noopMetrics) Ingested(string) {}
func (noopMetrics) UnitsIn(int) {}
func (noopMetrics) UnitsOut(int) {}
func (noopMetrics) BarcodeCollision() {}

// NewService constructs the catalog service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Allocator == nil {
		return nil, fmt.Errorf("barcode allocator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	metrics := params.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &service{
		repo:      params.Repo,
		allocator: params.Allocator,
		metrics:   metrics,
		logg:      params.Logger,
	}, nil
}

// Ingest creates new variants and increments existing ones. Entries with a
// zero quantity are skipped. When a later size fails, the units already added
// for earlier sizes are taken back out before the error is returned.
func (s *service) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	input, err := normalizeIngest(input)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{Items: []ItemDTO{}}
	applied := make([]appliedSize, 0, len(input.Sizes))
	for _, entry := range input.Sizes {
		fp := Fingerprint{
			ItemName: input.ItemName,
			Category: input.Category,
			Size:     entry.Size,
			Color:    input.Color,
		}
		item, created, err := s.ingestVariant(ctx, input, fp, entry.Quantity)
		if err != nil {
			return s.rollbackIngest(ctx, err, applied)
		}
		applied = append(applied, appliedSize{id: item.ID, size: entry.Size, quantity: entry.Quantity, created: created})
		if created {
			result.Created++
		} else {
			result.Incremented++
		}
		result.Items = append(result.Items, FromModel(item))
	}

	for _, a := range applied {
		if a.created {
			s.metrics.Ingested("created")
		} else {
			s.metrics.Ingested("incremented")
		}
		s.metrics.UnitsIn(a.quantity)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"item_name":   input.ItemName,
		"created":     result.Created,
		"incremented": result.Incremented,
	})
	s.logg.Info(logCtx, "inventory ingested")
	return result, nil
}

type appliedSize struct {
	id       uuid.UUID
	size     string
	quantity int
	created  bool
}

// rollbackIngest removes the units added for applied sizes. Variants created
// by this call stay in the catalog at zero stock with their barcode. Sizes
// whose units could not be taken back (already delivered, or a store error)
// are returned as a partial result and named on the error.
func (s *service) rollbackIngest(ctx context.Context, cause error, applied []appliedSize) (*IngestResult, error) {
	if len(applied) == 0 {
		return nil, cause
	}

	var undoErr error
	kept := &IngestResult{Items: []ItemDTO{}}
	var keptSizes []string
	for _, a := range applied {
		ok, err := s.repo.DecrementIfAvailable(ctx, a.id, a.quantity)
		if err == nil && ok {
			continue
		}
		if err != nil {
			undoErr = multierr.Append(undoErr, err)
		} else {
			undoErr = multierr.Append(undoErr, fmt.Errorf("size %s: stock already moved", a.size))
		}
		keptSizes = append(keptSizes, a.size)
		if a.created {
			kept.Created++
		} else {
			kept.Incremented++
		}
		if item, err := s.repo.FindByID(ctx, a.id); err == nil {
			kept.Items = append(kept.Items, FromModel(item))
		}
	}

	logCtx := s.logg.WithField(ctx, "rolled_back_sizes", len(applied)-len(keptSizes))
	if undoErr == nil {
		s.logg.Warn(logCtx, "ingest rolled back after failure")
		return nil, cause
	}

	logCtx = s.logg.WithField(logCtx, "kept_sizes", keptSizes)
	s.logg.Error(logCtx, "ingest rollback incomplete", undoErr)
	// not 5xx: the idempotency layer frees keys on 5xx and a retry would re-add the kept stock
	return kept, pkgerrors.Wrap(pkgerrors.CodeConflict, multierr.Combine(cause, undoErr),
		fmt.Sprintf("ingest failed; stock added for sizes %s could not be rolled back", strings.Join(keptSizes, ", ")))
}

func (s *service) ingestVariant(ctx context.Context, input IngestInput, fp Fingerprint, qty int) (*models.InventoryItem, bool, error) {
	existing, err := s.repo.FindByFingerprint(ctx, fp)
	switch {
	case err == nil:
		item, ok, err := s.incrementExisting(ctx, existing.ID, qty)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return item, false, nil
		}
		// deleted between lookup and increment: create it afresh
	case !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return nil, false, err
	}

	return s.createVariant(ctx, input, fp, qty)
}

// createVariant inserts a new item, re-allocating on barcode collisions. A
// fingerprint collision means a concurrent ingest created the variant first.
func (s *service) createVariant(ctx context.Context, input IngestInput, fp Fingerprint, qty int) (*models.InventoryItem, bool, error) {
	attempts := s.allocator.MaxAttempts()
	for attempt := 0; attempt < attempts; attempt++ {
		code, err := s.allocator.Allocate(ctx)
		if err != nil {
			return nil, false, err
		}
		item := &models.InventoryItem{
			ItemName:    fp.ItemName,
			Category:    fp.Category,
			Size:        fp.Size,
			Color:       fp.Color,
			Barcode:     code,
			Quantity:    qty,
			UnitPrice:   input.UnitPrice,
			Description: input.Description,
		}
		err = s.repo.Create(ctx, item)
		switch {
		case err == nil:
			return item, true, nil
		case errors.Is(err, ErrBarcodeTaken):
			s.metrics.BarcodeCollision()
			continue
		case errors.Is(err, ErrFingerprintTaken):
			winner, err := s.repo.FindByFingerprint(ctx, fp)
			if err != nil {
				return nil, false, err
			}
			updated, ok, err := s.incrementExisting(ctx, winner.ID, qty)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "inventory variant changed concurrently; retry the request")
			}
			return updated, false, nil
		default:
			return nil, false, err
		}
	}
	return nil, false, AllocationExhausted(attempts)
}

func (s *service) incrementExisting(ctx context.Context, id uuid.UUID, qty int) (*models.InventoryItem, bool, error) {
	ok, err := s.repo.IncrementQuantity(ctx, id, qty)
	if err != nil || !ok {
		return nil, ok, err
	}
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

func normalizeIngest(input IngestInput) (IngestInput, error) {
	input.ItemName = strings.TrimSpace(input.ItemName)
	input.Color = strings.TrimSpace(input.Color)
	input.Description = strings.TrimSpace(input.Description)

	if input.ItemName == "" {
		return input, validation("item_name is required")
	}
	if !input.Category.IsValid() {
		return input, validation(fmt.Sprintf("invalid category %q", input.Category))
	}
	if input.Color == "" {
		return input, validation("color is required")
	}
	if input.UnitPrice.IsNegative() {
		return input, validation("unit_price must be >= 0")
	}
	if len(input.Sizes) == 0 {
		return input, validation("at least one size is required")
	}

	seen := make(map[string]struct{}, len(input.Sizes))
	sizes := make([]SizeQuantity, 0, len(input.Sizes))
	for _, entry := range input.Sizes {
		entry.Size = strings.TrimSpace(entry.Size)
		if entry.Quantity < 0 {
			return input, validation(fmt.Sprintf("quantity for size %q must be >= 0", entry.Size))
		}
		if entry.Quantity == 0 {
			continue
		}
		if entry.Size == "" {
			return input, validation("size is required for every entry with a quantity")
		}
		if _, dup := seen[entry.Size]; dup {
			return input, validation(fmt.Sprintf("size %s is listed more than once", entry.Size))
		}
		seen[entry.Size] = struct{}{}
		sizes = append(sizes, entry)
	}
	input.Sizes = sizes
	return input, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ItemDTO, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(item)
	return &dto, nil
}

func (s *service) Scan(ctx context.Context, code string) (*ItemDTO, error) {
	code = strings.TrimSpace(code)
	if !barcode.Valid(code) {
		return nil, validation("barcode must be exactly 12 digits")
	}
	item, err := s.repo.FindByBarcode(ctx, code)
	if err != nil {
		return nil, err
	}
	dto := FromModel(item)
	return &dto, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if params.LowStockBelow != nil && *params.LowStockBelow < 0 {
		return nil, validation("low_stock_below must be >= 0")
	}

	rows, err := s.repo.List(ctx, ListQuery{
		Category:      params.Category,
		Query:         params.Query,
		LowStockBelow: params.LowStockBelow,
		Cursor:        cursor,
		Limit:         pagination.LimitWithBuffer(params.Pagination.Limit),
	})
	if err != nil {
		return nil, err
	}

	page, next := pagination.Page(rows, params.Pagination.Limit, func(item models.InventoryItem) pagination.Cursor {
		return pagination.Cursor{At: item.CreatedAt, ID: item.ID}
	})
	items := make([]ItemDTO, 0, len(page))
	for i := range page {
		items = append(items, FromModel(&page[i]))
	}
	return &ListResult{Items: items, NextCursor: next}, nil
}

// Update edits descriptive fields. Quantity is changed only through AdjustStock
// and the delivery ledger.
func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*ItemDTO, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.ItemName != nil {
		item.ItemName = strings.TrimSpace(*input.ItemName)
		if item.ItemName == "" {
			return nil, validation("item_name cannot be blank")
		}
	}
	if input.Category != nil {
		if !input.Category.IsValid() {
			return nil, validation(fmt.Sprintf("invalid category %q", *input.Category))
		}
		item.Category = *input.Category
	}
	if input.Size != nil {
		item.Size = strings.TrimSpace(*input.Size)
		if item.Size == "" {
			return nil, validation("size cannot be blank")
		}
	}
	if input.Color != nil {
		item.Color = strings.TrimSpace(*input.Color)
		if item.Color == "" {
			return nil, validation("color cannot be blank")
		}
	}
	if input.UnitPrice != nil {
		if input.UnitPrice.IsNegative() {
			return nil, validation("unit_price must be >= 0")
		}
		item.UnitPrice = *input.UnitPrice
	}
	if input.Description != nil {
		item.Description = strings.TrimSpace(*input.Description)
	}

	if err := s.repo.Update(ctx, item); err != nil {
		return nil, err
	}
	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(updated)
	return &dto, nil
}

// AdjustStock applies a manual correction. Removals never take quantity below zero.
func (s *service) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*ItemDTO, error) {
	if delta == 0 {
		return nil, validation("delta must not be zero")
	}

	if delta > 0 {
		ok, err := s.repo.IncrementQuantity(ctx, id, delta)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NotFound(id)
		}
		s.metrics.UnitsIn(delta)
	} else {
		ok, err := s.repo.DecrementIfAvailable(ctx, id, -delta)
		if err != nil {
			return nil, err
		}
		if !ok {
			item, err := s.repo.FindByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return nil, InsufficientStock(item.ItemName, item.Quantity, -delta)
		}
		s.metrics.UnitsOut(-delta)
	}

	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"inventory_item_id": id.String(),
		"delta":             delta,
		"quantity":          item.Quantity,
	})
	s.logg.Info(logCtx, "inventory stock adjusted")
	dto := FromModel(item)
	return &dto, nil
}

// Delete removes the item. Delivery records referencing it are left in place.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return NotFound(id)
	}
	s.logg.Info(s.logg.WithField(ctx, "inventory_item_id", id.String()), "inventory item deleted")
	return nil
}

func (s *service) BarcodeImage(ctx context.Context, id uuid.UUID) ([]byte, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	png, err := barcode.Render(item.Barcode, barcode.DefaultImageWidth, barcode.DefaultImageHeight)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render barcode")
	}
	return png, nil
}
