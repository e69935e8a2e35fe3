package audit

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
)

const (
	LowStockJobName = "low-stock-report"
	DanglingJobName = "dangling-deliveries"

	lowStockLogLimit = 50
)

type lowStockLister interface {
	ListLowStock(ctx context.Context, threshold int) ([]models.InventoryItem, error)
}

type lowStockGauge interface {
	SetLowStock(count int)
}

// LowStockJob reports items at or below the configured quantity threshold.
type LowStockJob struct {
	items     lowStockLister
	gauge     lowStockGauge
	logg      *logger.Logger
	threshold int
}

func NewLowStockJob(items lowStockLister, gauge lowStockGauge, logg *logger.Logger, threshold int) (*LowStockJob, error) {
	if items == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if gauge == nil {
		return nil, fmt.Errorf("metrics required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if threshold < 0 {
		return nil, fmt.Errorf("low stock threshold must not be negative")
	}
	return &LowStockJob{items: items, gauge: gauge, logg: logg, threshold: threshold}, nil
}

func (j *LowStockJob) Name() string { return LowStockJobName }

func (j *LowStockJob) Run(ctx context.Context) error {
	items, err := j.items.ListLowStock(ctx, j.threshold)
	if err != nil {
		return fmt.Errorf("list low stock: %w", err)
	}
	j.gauge.SetLowStock(len(items))

	for i, item := range items {
		if i == lowStockLogLimit {
			j.logg.Warn(j.logg.WithField(ctx, "omitted", len(items)-i), "low stock list truncated")
			break
		}
		itemCtx := j.logg.WithFields(ctx, map[string]any{
			"inventory_item_id": item.ID.String(),
			"item_name":         item.ItemName,
			"size":              item.Size,
			"barcode":           item.Barcode,
			"quantity":          item.Quantity,
		})
		j.logg.Warn(itemCtx, "item low on stock")
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{"threshold": j.threshold, "count": len(items)}), "low stock report")
	return nil
}

type danglingCounter interface {
	CountDangling(ctx context.Context) (int64, error)
}

type danglingGauge interface {
	SetDangling(count int64)
}

// DanglingDeliveriesJob counts delivery records whose inventory item is gone.
type DanglingDeliveriesJob struct {
	deliveries danglingCounter
	gauge      danglingGauge
	logg       *logger.Logger
}

func NewDanglingDeliveriesJob(deliveries danglingCounter, gauge danglingGauge, logg *logger.Logger) (*DanglingDeliveriesJob, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if gauge == nil {
		return nil, fmt.Errorf("metrics required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &DanglingDeliveriesJob{deliveries: deliveries, gauge: gauge, logg: logg}, nil
}

func (j *DanglingDeliveriesJob) Name() string { return DanglingJobName }

func (j *DanglingDeliveriesJob) Run(ctx context.Context) error {
	n, err := j.deliveries.CountDangling(ctx)
	if err != nil {
		return fmt.Errorf("count dangling deliveries: %w", err)
	}
	j.gauge.SetDangling(n)

	logCtx := j.logg.WithField(ctx, "count", n)
	if n > 0 {
		j.logg.Warn(logCtx, "deliveries reference deleted inventory items")
		return nil
	}
	j.logg.Info(logCtx, "no dangling deliveries")
	return nil
}
