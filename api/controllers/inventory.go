package controllers

import (
	"net/http"
	"strconv"

	"github.com/angelmondragon/stockroom-backend/api/responses"
	"github.com/angelmondragon/stockroom-backend/api/validators"
	"github.com/angelmondragon/stockroom-backend/internal/inventory"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/pagination"
	"github.com/shopspring/decimal"
)

const maxSearchLength = 128

type sizeQuantityRequest struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity" validate:"min=0"`
}

type ingestRequest struct {
	ItemName    string                `json:"item_name" validate:"required"`
	Category    string                `json:"category" validate:"required"`
	Color       string                `json:"color" validate:"required"`
	UnitPrice   decimal.Decimal       `json:"unit_price"`
	Description string                `json:"description"`
	Sizes       []sizeQuantityRequest `json:"sizes" validate:"required,min=1,dive"`
}

type updateItemRequest struct {
	ItemName    *string          `json:"item_name"`
	Category    *string          `json:"category"`
	Size        *string          `json:"size"`
	Color       *string          `json:"color"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	Description *string          `json:"description"`
}

type adjustRequest struct {
	Delta int `json:"delta" validate:"ne=0"`
}

func parseCategory(raw string) (enums.ItemCategory, error) {
	category, err := enums.ParseItemCategory(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category").
			WithDetails(map[string]any{"category": raw, "allowed": enums.ItemCategories()})
	}
	return category, nil
}

// InventoryIngest adds stock for one product across its sizes.
func InventoryIngest(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body ingestRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := parseCategory(body.Category)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := inventory.IngestInput{
			ItemName:    body.ItemName,
			Category:    category,
			Color:       body.Color,
			UnitPrice:   body.UnitPrice,
			Description: body.Description,
			Sizes:       make([]inventory.SizeQuantity, 0, len(body.Sizes)),
		}
		for _, s := range body.Sizes {
			input.Sizes = append(input.Sizes, inventory.SizeQuantity{Size: s.Size, Quantity: s.Quantity})
		}

		result, err := svc.Ingest(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.Nothing() {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"summary":     result.Summary(),
			"created":     result.Created,
			"incremented": result.Incremented,
			"items":       result.Items,
		})
	}
}

// InventoryList pages through the catalog.
func InventoryList(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lowStock, err := validators.ParseQueryOptionalInt(r, "low_stock_below", 0, 1<<30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := inventory.ListParams{
			Query:         validators.SanitizeString(r.URL.Query().Get("q"), maxSearchLength),
			LowStockBelow: lowStock,
			Pagination:    pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")},
		}
		if raw := r.URL.Query().Get("category"); raw != "" {
			category, err := parseCategory(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			params.Category = &category
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, result.Items, len(result.Items), result.NextCursor)
	}
}

// InventoryScan resolves a scanned barcode to its item.
func InventoryScan(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.Scan(r.Context(), urlParam(r, "barcode"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func InventoryGet(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// InventoryBarcode streams the item's Code 128 label as PNG.
func InventoryBarcode(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		png, err := svc.BarcodeImage(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		w.Header().Set("Cache-Control", "private, max-age=86400")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(png); err != nil {
			logg.Error(r.Context(), "write barcode image", err)
		}
	}
}

func InventoryUpdate(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := inventory.UpdateInput{
			ItemName:    body.ItemName,
			Size:        body.Size,
			Color:       body.Color,
			UnitPrice:   body.UnitPrice,
			Description: body.Description,
		}
		if body.Category != nil {
			category, err := parseCategory(*body.Category)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.Category = &category
		}

		item, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// InventoryAdjust applies a manual stock correction.
func InventoryAdjust(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body adjustRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.AdjustStock(r.Context(), id, body.Delta)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func InventoryDelete(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
