package deliveries

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/stockroom-backend/internal/inventory"
	"github.com/angelmondragon/stockroom-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type stubRecords struct {
	Repository
	createFn           func(ctx context.Context, rec *models.DeliveryRecord) error
	updateIfQuantityFn func(ctx context.Context, id uuid.UUID, expected int, fields Fields) (bool, error)
}

func (s *stubRecords) Create(ctx context.Context, rec *models.DeliveryRecord) error {
	if s.createFn != nil {
		return s.createFn(ctx, rec)
	}
	return s.Repository.Create(ctx, rec)
}

func (s *stubRecords) UpdateIfQuantity(ctx context.Context, id uuid.UUID, expected int, fields Fields) (bool, error) {
	if s.updateIfQuantityFn != nil {
		return s.updateIfQuantityFn(ctx, id, expected, fields)
	}
	return s.Repository.UpdateIfQuantity(ctx, id, expected, fields)
}

type stubItems struct {
	inventory.Repository
	incrementFn func(ctx context.Context, id uuid.UUID, n int) (bool, error)
}

func (s *stubItems) IncrementQuantity(ctx context.Context, id uuid.UUID, n int) (bool, error) {
	if s.incrementFn != nil {
		return s.incrementFn(ctx, id, n)
	}
	return s.Repository.IncrementQuantity(ctx, id, n)
}

type fixture struct {
	items   *inventory.GormRepository
	records *GormRepository
	staff   uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.OpenSQLite(t)
	return fixture{
		items:   inventory.NewRepository(conn),
		records: NewRepository(conn),
		staff:   uuid.New(),
	}
}

func (f fixture) service(t *testing.T, records Repository, items stockLedger) Service {
	t.Helper()
	if records == nil {
		records = f.records
	}
	if items == nil {
		items = f.items
	}
	svc, err := NewService(ServiceParams{
		Repo:   records,
		Items:  items,
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func (f fixture) seedItem(t *testing.T, name string, qty int) *models.InventoryItem {
	t.Helper()
	item := &models.InventoryItem{
		ItemName:  name,
		Category:  enums.ItemCategoryUniform,
		Size:      "M",
		Color:     "Black",
		Barcode:   uuidDigits(),
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString("30"),
	}
	if err := f.items.Create(context.Background(), item); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func (f fixture) quantity(t *testing.T, id uuid.UUID) int {
	t.Helper()
	item, err := f.items.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find item: %v", err)
	}
	return item.Quantity
}

func uuidDigits() string {
	b := uuid.New()
	out := make([]byte, 12)
	for i := range out {
		out[i] = '0' + b[i]%10
	}
	return string(out)
}

func (f fixture) record(customer string, itemID uuid.UUID, qty int) RecordInput {
	return RecordInput{
		InventoryItemID:   itemID,
		QuantityDelivered: qty,
		CustomerName:      customer,
		DeliveredBy:       f.staff,
	}
}

func TestRecordDecrementsStock(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	item := f.seedItem(t, "Polo Uniform", 5)

	dto, err := svc.Record(context.Background(), f.record("Alice", item.ID, 3))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := f.quantity(t, item.ID); got != 2 {
		t.Fatalf("expected 2 remaining, got %d", got)
	}
	if dto.Barcode != item.Barcode || dto.ItemName != item.ItemName {
		t.Fatalf("expected snapshot of item fields, got %+v", dto)
	}
	if dto.DeliveredAt.IsZero() {
		t.Fatal("delivered_at must default to now")
	}
}

func TestRecordRejectsInsufficientStock(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	item := f.seedItem(t, "Polo Uniform", 5)

	_, err := svc.Record(context.Background(), f.record("Bob", item.ID, 7))
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if msg := pkgerrors.As(err).Message(); msg != "Insufficient stock for Polo Uniform. Available: 5, Requested: 7" {
		t.Fatalf("unexpected message %q", msg)
	}
	details, ok := pkgerrors.As(err).Details().(inventory.InsufficientStockDetails)
	if !ok || details.Available != 5 || details.Requested != 7 {
		t.Fatalf("unexpected details %#v", pkgerrors.As(err).Details())
	}
	if got := f.quantity(t, item.ID); got != 5 {
		t.Fatalf("expected stock untouched at 5, got %d", got)
	}
	rows, _ := f.records.List(context.Background(), ListQuery{})
	if len(rows) != 0 {
		t.Fatalf("expected no delivery records, got %d", len(rows))
	}
}

func TestRecordValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	item := f.seedItem(t, "Polo Uniform", 5)

	cases := map[string]RecordInput{
		"zero quantity":     f.record("Alice", item.ID, 0),
		"negative quantity": f.record("Alice", item.ID, -2),
		"blank customer":    f.record("   ", item.ID, 1),
		"missing item":      f.record("Alice", uuid.Nil, 1),
		"missing staff":     {InventoryItemID: item.ID, QuantityDelivered: 1, CustomerName: "Alice"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Record(context.Background(), input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if got := f.quantity(t, item.ID); got != 5 {
		t.Fatalf("validation failures must not move stock, got %d", got)
	}
}

func TestRecordUnknownItem(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	if _, err := svc.Record(context.Background(), f.record("Alice", uuid.New(), 1)); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordCompensatesFailedInsert(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("disk full")
	records := &stubRecords{Repository: f.records, createFn: func(context.Context, *models.DeliveryRecord) error {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, boom, "db: create delivery record")
	}}
	svc := f.service(t, records, nil)
	item := f.seedItem(t, "Polo Uniform", 5)

	_, err := svc.Record(context.Background(), f.record("Alice", item.ID, 3))
	if !errors.Is(err, boom) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if got := f.quantity(t, item.ID); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
}

func TestRecordReportsFailedCompensation(t *testing.T) {
	f := newFixture(t)
	insertErr := errors.New("disk full")
	restoreErr := errors.New("connection lost")
	records := &stubRecords{Repository: f.records, createFn: func(context.Context, *models.DeliveryRecord) error {
		return insertErr
	}}
	items := &stubItems{Repository: f.items, incrementFn: func(context.Context, uuid.UUID, int) (bool, error) {
		return false, restoreErr
	}}
	svc := f.service(t, records, items)
	item := f.seedItem(t, "Polo Uniform", 5)

	_, err := svc.Record(context.Background(), f.record("Alice", item.ID, 3))
	if !errors.Is(err, insertErr) || !errors.Is(err, restoreErr) {
		t.Fatalf("expected both errors combined, got %v", err)
	}
}

func TestUpdateIncreaseWithinStock(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	ctx := context.Background()
	item := f.seedItem(t, "Polo Uniform", 5)

	rec, err := svc.Record(ctx, f.record("Alice", item.ID, 3))
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	updated, err := svc.Update(ctx, rec.ID, UpdateInput{CustomerName: "Alice Smith", QuantityDelivered: 5, Notes: "second box"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.QuantityDelivered != 5 || updated.CustomerName != "Alice Smith" || updated.Notes != "second box" {
		t.Fatalf("unexpected update %+v", updated)
	}
	if got := f.quantity(t, item.ID); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
}

func TestUpdateBeyondStockMutatesNothing(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	ctx := context.Background()
	item := f.seedItem(t, "Polo Uniform", 5)

	rec, err := svc.Record(ctx, f.record("Alice", item.ID, 3))
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	_, err = svc.Update(ctx, rec.ID, UpdateInput{CustomerName: "Alice", QuantityDelivered: 10})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if msg := pkgerrors.As(err).Message(); msg != "Insufficient stock for Polo Uniform. Available: 2, Requested: 7" {
		t.Fatalf("unexpected message %q", msg)
	}
	if got := f.quantity(t, item.ID); got != 2 {
		t.Fatalf("expected stock to stay at 2, got %d", got)
	}
	stored, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.QuantityDelivered != 3 {
		t.Fatalf("expected record to keep 3, got %d", stored.QuantityDelivered)
	}
}

func TestUpdateDecreaseReturnsStock(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	ctx := context.Background()
	item := f.seedItem(t, "Polo Uniform", 5)

	rec, err := svc.Record(ctx, f.record("Alice", item.ID, 4))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := svc.Update(ctx, rec.ID, UpdateInput{CustomerName: "Alice", QuantityDelivered: 1}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := f.quantity(t, item.ID); got != 4 {
		t.Fatalf("expected 4 after returning 3 units, got %d", got)
	}

	if _, err := svc.Update(ctx, rec.ID, UpdateInput{CustomerName: "Alice B", QuantityDelivered: 1}); err != nil {
		t.Fatalf("update with no diff: %v", err)
	}
	if got := f.quantity(t, item.ID); got != 4 {
		t.Fatalf("zero diff must not move stock, got %d", got)
	}
}

func TestUpdateValidationAndMissing(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	ctx := context.Background()

	if _, err := svc.Update(ctx, uuid.New(), UpdateInput{CustomerName: "A", QuantityDelivered: 0}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Update(ctx, uuid.New(), UpdateInput{CustomerName: " ", QuantityDelivered: 1}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Update(ctx, uuid.New(), UpdateInput{CustomerName: "A", QuantityDelivered: 1}); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateDanglingReference(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	ctx := context.Background()
	item := f.seedItem(t, "Polo Uniform", 5)

	rec, err := svc.Record(ctx, f.record("Alice", item.ID, 2))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := f.items.Delete(ctx, item.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}

	_, err = svc.Update(ctx, rec.ID, UpdateInput{CustomerName: "Alice", QuantityDelivered: 1})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDanglingReference) {
		t.Fatalf("expected dangling reference, got %v", err)
	}
	stored, _ := svc.Get(ctx, rec.ID)
	if stored.QuantityDelivered != 2 {
		t.Fatalf("record must be unchanged, got %d", stored.QuantityDelivered)
	}
}

func TestUpdateLostRaceCompensatesStock(t *testing.T) {
	f := newFixture(t)
	records := &stubRecords{Repository: f.records}
	svc := f.service(t, records, nil)
	ctx := context.Background()
	item := f.seedItem(t, "Polo Uniform", 10)

	rec, err := svc.Record(ctx, f.record("Alice", item.ID, 3))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	records.updateIfQuantityFn = func(context.Context, uuid.UUID, int, Fields) (bool, error) {
		return false, nil
	}

	_, err = svc.Update(ctx, rec.ID, UpdateInput{CustomerName: "Alice", QuantityDelivered: 6})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := f.quantity(t, item.ID); got != 7 {
		t.Fatalf("expected stock compensated back to 7, got %d", got)
	}

	_, err = svc.Update(ctx, rec.ID, UpdateInput{CustomerName: "Alice", QuantityDelivered: 1})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := f.quantity(t, item.ID); got != 7 {
		t.Fatalf("expected returned units taken back, got %d", got)
	}
}

func TestUpdateGuardDetectsConcurrentEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.seedItem(t, "Polo Uniform", 10)
	svc := f.service(t, nil, nil)

	rec, err := svc.Record(ctx, f.record("Alice", item.ID, 3))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	ok, err := f.records.UpdateIfQuantity(ctx, rec.ID, 2, Fields{CustomerName: "X", QuantityDelivered: 9})
	if err != nil || ok {
		t.Fatalf("stale guard must not apply: ok=%v err=%v", ok, err)
	}
	ok, err = f.records.UpdateIfQuantity(ctx, rec.ID, 3, Fields{CustomerName: "X", QuantityDelivered: 4})
	if err != nil || !ok {
		t.Fatalf("current guard must apply: ok=%v err=%v", ok, err)
	}
}

func TestDeleteRestoresStock(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	ctx := context.Background()
	item := f.seedItem(t, "Polo Uniform", 5)

	rec, err := svc.Record(ctx, f.record("Alice", item.ID, 3))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := f.quantity(t, item.ID); got != 5 {
		t.Fatalf("expected round trip to restore 5, got %d", got)
	}
	if err := svc.Delete(ctx, rec.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if got := f.quantity(t, item.ID); got != 5 {
		t.Fatalf("second delete must not restore again, got %d", got)
	}
}

func TestDeleteWithDeletedItem(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	ctx := context.Background()
	item := f.seedItem(t, "Polo Uniform", 5)

	rec, err := svc.Record(ctx, f.record("Alice", item.ID, 3))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := f.items.Delete(ctx, item.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}

	if err := svc.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("delete should succeed without the item, got %v", err)
	}
	if _, err := svc.Get(ctx, rec.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected record removed, got %v", err)
	}
}

func TestDeleteReinsertsRecordWhenRestoreFails(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection lost")
	items := &stubItems{Repository: f.items}
	svc := f.service(t, nil, items)
	ctx := context.Background()
	item := f.seedItem(t, "Polo Uniform", 5)

	rec, err := svc.Record(ctx, f.record("Alice", item.ID, 3))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	items.incrementFn = func(context.Context, uuid.UUID, int) (bool, error) { return false, boom }

	if err := svc.Delete(ctx, rec.ID); !errors.Is(err, boom) {
		t.Fatalf("expected restore error, got %v", err)
	}
	stored, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("expected record re-inserted, got %v", err)
	}
	if stored.QuantityDelivered != 3 || stored.CustomerName != "Alice" {
		t.Fatalf("re-inserted record differs: %+v", stored)
	}
	if got := f.quantity(t, item.ID); got != 2 {
		t.Fatalf("expected stock unchanged at 2, got %d", got)
	}
}

func TestConcurrentRecordsNeverOversell(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	item := f.seedItem(t, "Polo Uniform", 5)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		refused   int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Record(context.Background(), f.record("Carol", item.ID, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 || refused != 7 {
		t.Fatalf("expected 5 deliveries and 7 refusals, got %d and %d", succeeded, refused)
	}
	if got := f.quantity(t, item.ID); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
}

func TestListFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	ctx := context.Background()
	tee := f.seedItem(t, "Polo Uniform", 50)
	capItem := f.seedItem(t, "Cap", 50)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, customer := range []string{"Alice", "Bob", "Alicia", "Dan"} {
		at := base.Add(time.Duration(i) * time.Hour)
		input := f.record(customer, tee.ID, 1)
		if customer == "Dan" {
			input.InventoryItemID = capItem.ID
		}
		input.DeliveredAt = &at
		if _, err := svc.Record(ctx, input); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	ali, err := svc.List(ctx, ListParams{CustomerName: "ali"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ali.Deliveries) != 2 || ali.Deliveries[0].CustomerName != "Alicia" {
		t.Fatalf("unexpected customer filter result %+v", ali.Deliveries)
	}

	byItem, err := svc.List(ctx, ListParams{InventoryItemID: &capItem.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byItem.Deliveries) != 1 {
		t.Fatalf("expected 1 cap delivery, got %d", len(byItem.Deliveries))
	}

	from, to := base.Add(30*time.Minute), base.Add(150*time.Minute)
	window, err := svc.List(ctx, ListParams{From: &from, To: &to})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(window.Deliveries) != 2 {
		t.Fatalf("expected 2 deliveries in window, got %d", len(window.Deliveries))
	}
	if _, err := svc.List(ctx, ListParams{From: &to, To: &from}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	page, err := svc.List(ctx, ListParams{Pagination: pagination.Params{Limit: 3}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Deliveries) != 3 || page.NextCursor == "" || page.Deliveries[0].CustomerName != "Dan" {
		t.Fatalf("unexpected first page %+v", page)
	}
	rest, err := svc.List(ctx, ListParams{Pagination: pagination.Params{Limit: 3, Cursor: page.NextCursor}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rest.Deliveries) != 1 || rest.Deliveries[0].CustomerName != "Alice" {
		t.Fatalf("unexpected second page %+v", rest)
	}
}

func TestCountDangling(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	ctx := context.Background()
	kept := f.seedItem(t, "Polo Uniform", 5)
	gone := f.seedItem(t, "Cap", 5)

	for _, id := range []uuid.UUID{kept.ID, gone.ID, gone.ID} {
		if _, err := svc.Record(ctx, f.record("Alice", id, 1)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if _, err := f.items.Delete(ctx, gone.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}

	n, err := f.records.CountDangling(ctx)
	if err != nil {
		t.Fatalf("count dangling: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 dangling records, got %d", n)
	}
}
