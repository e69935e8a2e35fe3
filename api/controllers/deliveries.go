package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/stockroom-backend/api/responses"
	"github.com/angelmondragon/stockroom-backend/api/validators"
	"github.com/angelmondragon/stockroom-backend/internal/deliveries"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/pagination"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxCustomerFilterLength = 128

type recordDeliveryRequest struct {
	InventoryItemID   uuid.UUID  `json:"inventory_item_id" validate:"required"`
	QuantityDelivered int        `json:"quantity_delivered" validate:"required,min=1"`
	CustomerName      string     `json:"customer_name" validate:"required"`
	Notes             string     `json:"notes"`
	DeliveredAt       *time.Time `json:"delivered_at"`
}

type updateDeliveryRequest struct {
	QuantityDelivered int    `json:"quantity_delivered" validate:"required,min=1"`
	CustomerName      string `json:"customer_name" validate:"required"`
	Notes             string `json:"notes"`
}

func urlParam(r *http.Request, key string) string {
	return strings.TrimSpace(chi.URLParam(r, key))
}

// DeliveryRecord hands stock to a customer, attributed to the caller.
func DeliveryRecord(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body recordDeliveryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rec, err := svc.Record(r.Context(), deliveries.RecordInput{
			InventoryItemID:   body.InventoryItemID,
			QuantityDelivered: body.QuantityDelivered,
			CustomerName:      body.CustomerName,
			Notes:             body.Notes,
			DeliveredBy:       actor,
			DeliveredAt:       body.DeliveredAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, rec)
	}
}

// DeliveryList pages through delivery history with optional filters.
func DeliveryList(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := deliveryListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, result.Deliveries, len(result.Deliveries), result.NextCursor)
	}
}

func deliveryListParams(r *http.Request) (deliveries.ListParams, error) {
	var params deliveries.ListParams
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return params, err
	}
	if params.InventoryItemID, err = validators.ParseQueryUUID(r, "inventory_item_id"); err != nil {
		return params, err
	}
	if params.DeliveredBy, err = validators.ParseQueryUUID(r, "delivered_by"); err != nil {
		return params, err
	}
	if params.From, err = validators.ParseQueryTime(r, "from"); err != nil {
		return params, err
	}
	if params.To, err = validators.ParseQueryTime(r, "to"); err != nil {
		return params, err
	}
	params.CustomerName = validators.SanitizeString(r.URL.Query().Get("customer"), maxCustomerFilterLength)
	params.Pagination = pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}
	return params, nil
}

func DeliveryGet(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rec, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rec)
	}
}

// DeliveryUpdate edits a delivery and moves the stock difference.
func DeliveryUpdate(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateDeliveryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rec, err := svc.Update(r.Context(), id, deliveries.UpdateInput{
			CustomerName:      body.CustomerName,
			QuantityDelivered: body.QuantityDelivered,
			Notes:             body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rec)
	}
}

// DeliveryDelete removes a delivery and returns its stock.
func DeliveryDelete(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, "deliveryId")
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
