// Package reports exports the catalog and delivery history as XLSX workbooks.
package reports

import (
	"context"
	"fmt"
	"io"

	"github.com/angelmondragon/stockroom-backend/internal/barcode"
	"github.com/angelmondragon/stockroom-backend/internal/deliveries"
	"github.com/angelmondragon/stockroom-backend/internal/inventory"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	InventorySheet  = "Inventory"
	DeliveriesSheet = "Deliveries"

	barcodeImageWidth  = 240
	barcodeImageHeight = 60
	barcodeRowHeight   = 48
	timestampLayout    = "2006-01-02 15:04"
)

var (
	inventoryHeader = []any{"Item", "Category", "Size", "Color", "Barcode", "Quantity", "Unit Price", "Description", "Barcode Image"}
	deliveryHeader  = []any{"Delivered At", "Customer", "Item", "Barcode", "Quantity", "Delivered By", "Notes"}
)

type itemLister interface {
	List(ctx context.Context, params inventory.ListParams) (*inventory.ListResult, error)
}

type deliveryLister interface {
	List(ctx context.Context, params deliveries.ListParams) (*deliveries.ListResult, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service builds spreadsheet exports from the inventory and delivery services.
type Service struct {
	items      itemLister
	deliveries deliveryLister
	users      userFinder
}

func NewService(items itemLister, deliveryList deliveryLister, users userFinder) (*Service, error) {
	if items == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
	}
	if deliveryList == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "delivery service required")
	}
	if users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user store required")
	}
	return &Service{items: items, deliveries: deliveryList, users: users}, nil
}

// InventoryWorkbook writes every catalog item, one row per SKU, with its
// barcode rendered into the last column.
func (s *Service) InventoryWorkbook(ctx context.Context, w io.Writer) error {
	f, sheet, err := newWorkbook(InventorySheet, inventoryHeader)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := f.SetColWidth(sheet, "I", "I", 36); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set column width")
	}

	row := 2
	params := inventory.ListParams{Pagination: pagination.Params{Limit: pagination.MaxLimit}}
	for {
		page, err := s.items.List(ctx, params)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			values := []any{
				item.ItemName,
				item.Category,
				item.Size,
				item.Color,
				item.Barcode,
				item.Quantity,
				item.UnitPrice.InexactFloat64(),
				item.Description,
			}
			if err := setRow(f, sheet, row, values); err != nil {
				return err
			}
			if err := addBarcode(f, sheet, row, item.Barcode); err != nil {
				return err
			}
			row++
		}
		if page.NextCursor == "" {
			break
		}
		params.Pagination.Cursor = page.NextCursor
	}

	return write(f, w)
}

// DeliveriesWorkbook writes the delivery history matching params. The page
// size in params is ignored; every matching record is exported.
func (s *Service) DeliveriesWorkbook(ctx context.Context, w io.Writer, params deliveries.ListParams) error {
	f, sheet, err := newWorkbook(DeliveriesSheet, deliveryHeader)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	names := newNameCache(s.users)
	row := 2
	params.Pagination = pagination.Params{Limit: pagination.MaxLimit}
	for {
		page, err := s.deliveries.List(ctx, params)
		if err != nil {
			return err
		}
		for _, rec := range page.Deliveries {
			deliveredBy, err := names.lookup(ctx, rec.DeliveredBy)
			if err != nil {
				return err
			}
			values := []any{
				rec.DeliveredAt.UTC().Format(timestampLayout),
				rec.CustomerName,
				rec.ItemName,
				rec.Barcode,
				rec.QuantityDelivered,
				deliveredBy,
				rec.Notes,
			}
			if err := setRow(f, sheet, row, values); err != nil {
				return err
			}
			row++
		}
		if page.NextCursor == "" {
			break
		}
		params.Pagination.Cursor = page.NextCursor
	}

	return write(f, w)
}

func newWorkbook(sheet string, header []any) (*excelize.File, string, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		_ = f.Close()
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "name sheet")
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		_ = f.Close()
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write header")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "header style")
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		_ = f.Close()
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply header style")
	}
	return f, sheet, nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cell name")
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("write row %d", row))
	}
	return nil
}

func addBarcode(f *excelize.File, sheet string, row int, code string) error {
	png, err := barcode.Render(code, barcodeImageWidth, barcodeImageHeight)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("render barcode %s", code))
	}
	if err := f.SetRowHeight(sheet, row, barcodeRowHeight); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set row height")
	}
	cell, _ := excelize.CoordinatesToCellName(len(inventoryHeader), row)
	err = f.AddPictureFromBytes(sheet, cell, &excelize.Picture{
		Extension: ".png",
		File:      png,
		Format: &excelize.GraphicOptions{
			OffsetX:         4,
			OffsetY:         2,
			LockAspectRatio: true,
			AltText:         code,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "embed barcode image")
	}
	return nil
}

func write(f *excelize.File, w io.Writer) error {
	if err := f.Write(w); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write workbook")
	}
	return nil
}

// nameCache resolves clerk ids to display names once per export. Accounts
// that no longer exist fall back to the raw id.
type nameCache struct {
	users userFinder
	names map[uuid.UUID]string
}

func newNameCache(users userFinder) *nameCache {
	return &nameCache{users: users, names: make(map[uuid.UUID]string)}
}

func (c *nameCache) lookup(ctx context.Context, id uuid.UUID) (string, error) {
	if name, ok := c.names[id]; ok {
		return name, nil
	}
	name := id.String()
	user, err := c.users.FindByID(ctx, id)
	switch {
	case err == nil:
		if user.Name != "" {
			name = user.Name
		}
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
	default:
		return "", err
	}
	c.names[id] = name
	return name, nil
}
