package controllers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/stockroom-backend/api/responses"
	"github.com/angelmondragon/stockroom-backend/internal/deliveries"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type workbookService interface {
	InventoryWorkbook(ctx context.Context, w io.Writer) error
	DeliveriesWorkbook(ctx context.Context, w io.Writer, params deliveries.ListParams) error
}

// ReportInventory downloads the catalog as XLSX.
func ReportInventory(svc workbookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := svc.InventoryWorkbook(r.Context(), &buf); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeWorkbook(w, r, logg, "inventory", &buf)
	}
}

// ReportDeliveries downloads delivery history as XLSX, honoring the list filters.
func ReportDeliveries(svc workbookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := deliveryListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var buf bytes.Buffer
		if err := svc.DeliveriesWorkbook(r.Context(), &buf, params); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeWorkbook(w, r, logg, "deliveries", &buf)
	}
}

func writeWorkbook(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string, buf *bytes.Buffer) {
	filename := fmt.Sprintf("%s_%s.xlsx", name, time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logg.Error(r.Context(), "write workbook", err)
	}
}
