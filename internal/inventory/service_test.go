package inventory

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/angelmondragon/stockroom-backend/internal/barcode"
	"github.com/angelmondragon/stockroom-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// stubRepo delegates to a real repository unless a hook is set.
type stubRepo struct {
	Repository
	createFn            func(ctx context.Context, item *models.InventoryItem) error
	findByFingerprintFn func(ctx context.Context, fp Fingerprint) (*models.InventoryItem, error)
	decrementFn         func(ctx context.Context, id uuid.UUID, n int) (bool, error)
}

func (s *stubRepo) DecrementIfAvailable(ctx context.Context, id uuid.UUID, n int) (bool, error) {
	if s.decrementFn != nil {
		return s.decrementFn(ctx, id, n)
	}
	return s.Repository.DecrementIfAvailable(ctx, id, n)
}

func (s *stubRepo) Create(ctx context.Context, item *models.InventoryItem) error {
	if s.createFn != nil {
		return s.createFn(ctx, item)
	}
	return s.Repository.Create(ctx, item)
}

func (s *stubRepo) FindByFingerprint(ctx context.Context, fp Fingerprint) (*models.InventoryItem, error) {
	if s.findByFingerprintFn != nil {
		return s.findByFingerprintFn(ctx, fp)
	}
	return s.Repository.FindByFingerprint(ctx, fp)
}

type countingMetrics struct {
	created, incremented, collisions, in, out int
}

func (m *countingMetrics) Ingested(result string) {
	if result == "created" {
		m.created++
	} else {
		m.incremented++
	}
}
func (m *countingMetrics) UnitsIn(n int) { m.in += n }
func (m *countingMetrics) UnitsOut(n int) { m.out += n }
func (m *countingMetrics) BarcodeCollision() { m.collisions++ }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, repo Repository, opts ...barcode.Option) (Service, *countingMetrics) {
	t.Helper()
	alloc, err := barcode.NewAllocator(repo, opts...)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	metrics := &countingMetrics{}
	svc, err := NewService(ServiceParams{Repo: repo, Allocator: alloc, Metrics: metrics, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, metrics
}

func teeInput(sizes ...SizeQuantity) IngestInput {
	return IngestInput{
		ItemName:  "Crew Tee",
		Category:  enums.ItemCategoryTShirt,
		Color:     "Navy",
		UnitPrice: decimal.RequireFromString("12.00"),
		Sizes:     sizes,
	}
}

func TestIngestCreatesThenIncrements(t *testing.T) {
	repo := NewRepository(dbtest.OpenSQLite(t))
	svc, metrics := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, teeInput(SizeQuantity{"S", 2}, SizeQuantity{"M", 3}, SizeQuantity{"L", 0}))
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if first.Created != 2 || first.Incremented != 0 {
		t.Fatalf("unexpected counts %+v", first)
	}
	if len(first.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(first.Items))
	}

	second, err := svc.Ingest(ctx, teeInput(SizeQuantity{"M", 4}, SizeQuantity{"L", 1}))
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second.Created != 1 || second.Incremented != 1 {
		t.Fatalf("unexpected counts %+v", second)
	}

	want := map[string]int{"S": 2, "M": 7, "L": 1}
	barcodes := map[string]struct{}{}
	rows, err := repo.List(ctx, ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d variants, got %d", len(want), len(rows))
	}
	for _, row := range rows {
		if row.Quantity != want[row.Size] {
			t.Fatalf("size %s: expected quantity %d, got %d", row.Size, want[row.Size], row.Quantity)
		}
		if !barcode.Valid(row.Barcode) {
			t.Fatalf("invalid barcode %q", row.Barcode)
		}
		barcodes[row.Barcode] = struct{}{}
	}
	if len(barcodes) != len(rows) {
		t.Fatal("barcodes must be unique per item")
	}
	if metrics.created != 3 || metrics.incremented != 1 || metrics.in != 10 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}

func TestIngestIncrementKeepsBarcodeAndPrice(t *testing.T) {
	repo := NewRepository(dbtest.OpenSQLite(t))
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, teeInput(SizeQuantity{"M", 1}))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	input := teeInput(SizeQuantity{"M", 1})
	input.UnitPrice = decimal.RequireFromString("99.00")
	input.Description = "changed"
	second, err := svc.Ingest(ctx, input)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	got := second.Items[0]
	if got.Barcode != first.Items[0].Barcode {
		t.Fatalf("barcode changed from %s to %s", first.Items[0].Barcode, got.Barcode)
	}
	if !got.UnitPrice.Equal(decimal.RequireFromString("12")) || got.Description != "" {
		t.Fatalf("increment must not touch price or description: %+v", got)
	}
	if got.Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", got.Quantity)
	}
}

func TestIngestAllZeroIsNothing(t *testing.T) {
	svc, _ := newTestService(t, NewRepository(dbtest.OpenSQLite(t)))
	result, err := svc.Ingest(context.Background(), teeInput(SizeQuantity{"S", 0}, SizeQuantity{"M", 0}))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Nothing() {
		t.Fatalf("expected nothing to happen, got %+v", result)
	}
	if !strings.Contains(result.Summary(), "No items") {
		t.Fatalf("unexpected summary %q", result.Summary())
	}
}

func TestIngestSkipsZeroRowsBeforeValidating(t *testing.T) {
	svc, _ := newTestService(t, NewRepository(dbtest.OpenSQLite(t)))
	result, err := svc.Ingest(context.Background(), teeInput(
		SizeQuantity{"M", 2},
		SizeQuantity{" ", 0},
		SizeQuantity{"M", 0},
		SizeQuantity{"", 0},
	))
	if err != nil {
		t.Fatalf("zero rows must be skipped, got %v", err)
	}
	if result.Created != 1 || result.Incremented != 0 {
		t.Fatalf("unexpected counts %+v", result)
	}
}

func TestIngestRollsBackEarlierSizesOnFailure(t *testing.T) {
	base := NewRepository(dbtest.OpenSQLite(t))
	ctx := context.Background()
	seed, _ := newTestService(t, base)
	if _, err := seed.Ingest(ctx, teeInput(SizeQuantity{"S", 5})); err != nil {
		t.Fatalf("seed: %v", err)
	}

	storeDown := pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("connection reset"), "db: create inventory item")
	repo := &stubRepo{Repository: base}
	repo.createFn = func(ctx context.Context, item *models.InventoryItem) error {
		if item.Size == "L" {
			return storeDown
		}
		return base.Create(ctx, item)
	}
	svc, metrics := newTestService(t, repo)

	result, err := svc.Ingest(ctx, teeInput(SizeQuantity{"S", 2}, SizeQuantity{"M", 3}, SizeQuantity{"L", 4}))
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected the create failure, got %v", err)
	}
	if result != nil {
		t.Fatalf("a full rollback returns no result, got %+v", result)
	}

	rows, err := base.List(ctx, ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := map[string]int{"S": 5, "M": 0}
	if len(rows) != len(want) {
		t.Fatalf("expected %d variants, got %d", len(want), len(rows))
	}
	for _, row := range rows {
		if row.Quantity != want[row.Size] {
			t.Fatalf("size %s: expected quantity %d after rollback, got %d", row.Size, want[row.Size], row.Quantity)
		}
	}
	if metrics.in != 0 || metrics.created != 0 || metrics.incremented != 0 {
		t.Fatalf("rolled back ingest must not count, got %+v", metrics)
	}

	retry, err := seed.Ingest(ctx, teeInput(SizeQuantity{"S", 2}, SizeQuantity{"M", 3}, SizeQuantity{"L", 4}))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.Created != 1 || retry.Incremented != 2 {
		t.Fatalf("retry should reuse S and M, got %+v", retry)
	}
	m, err := base.FindByFingerprint(ctx, Fingerprint{ItemName: "Crew Tee", Category: enums.ItemCategoryTShirt, Size: "M", Color: "Navy"})
	if err != nil || m.Quantity != 3 {
		t.Fatalf("expected M at 3 after retry, got %+v (%v)", m, err)
	}
}

func TestIngestReportsSizesThatCouldNotBeRolledBack(t *testing.T) {
	base := NewRepository(dbtest.OpenSQLite(t))
	repo := &stubRepo{Repository: base}
	repo.createFn = func(ctx context.Context, item *models.InventoryItem) error {
		if item.Size == "M" {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "db: create inventory item")
		}
		return base.Create(ctx, item)
	}
	repo.decrementFn = func(context.Context, uuid.UUID, int) (bool, error) {
		return false, nil
	}
	svc, _ := newTestService(t, repo)

	result, err := svc.Ingest(context.Background(), teeInput(SizeQuantity{"S", 2}, SizeQuantity{"M", 3}))
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "sizes S") {
		t.Fatalf("error should name the kept size, got %q", err.Error())
	}
	if result == nil || result.Created != 1 || len(result.Items) != 1 || result.Items[0].Quantity != 2 {
		t.Fatalf("expected partial result for S, got %+v", result)
	}
}

func TestIngestValidation(t *testing.T) {
	svc, _ := newTestService(t, NewRepository(dbtest.OpenSQLite(t)))
	cases := map[string]IngestInput{
		"negative quantity": teeInput(SizeQuantity{"S", -1}),
		"no sizes":          teeInput(),
		"duplicate sizes":   teeInput(SizeQuantity{"S", 1}, SizeQuantity{" S ", 2}),
		"blank size":        teeInput(SizeQuantity{" ", 1}),
		"blank name": func() IngestInput {
			in := teeInput(SizeQuantity{"S", 1})
			in.ItemName = "  "
			return in
		}(),
		"bad category": func() IngestInput {
			in := teeInput(SizeQuantity{"S", 1})
			in.Category = "Sock"
			return in
		}(),
		"negative price": func() IngestInput {
			in := teeInput(SizeQuantity{"S", 1})
			in.UnitPrice = decimal.RequireFromString("-1")
			return in
		}(),
		"blank color": func() IngestInput {
			in := teeInput(SizeQuantity{"S", 1})
			in.Color = ""
			return in
		}(),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), input)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestIngestRetriesBarcodeCollisionOnInsert(t *testing.T) {
	base := NewRepository(dbtest.OpenSQLite(t))
	attempts := 0
	repo := &stubRepo{Repository: base}
	repo.createFn = func(ctx context.Context, item *models.InventoryItem) error {
		attempts++
		if attempts == 1 {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrBarcodeTaken, "barcode already assigned")
		}
		return base.Create(ctx, item)
	}
	svc, metrics := newTestService(t, repo)

	result, err := svc.Ingest(context.Background(), teeInput(SizeQuantity{"M", 2}))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Created != 1 || attempts != 2 {
		t.Fatalf("expected one created item after 2 inserts, got %+v after %d", result, attempts)
	}
	if metrics.collisions != 1 {
		t.Fatalf("expected one collision, got %d", metrics.collisions)
	}
}

func TestIngestInsertCollisionsAreBounded(t *testing.T) {
	base := NewRepository(dbtest.OpenSQLite(t))
	inserts := 0
	repo := &stubRepo{Repository: base}
	repo.createFn = func(context.Context, *models.InventoryItem) error {
		inserts++
		return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrBarcodeTaken, "barcode already assigned")
	}
	svc, _ := newTestService(t, repo, barcode.WithMaxAttempts(5))

	_, err := svc.Ingest(context.Background(), teeInput(SizeQuantity{"M", 2}))
	if !pkgerrors.IsCode(err, pkgerrors.CodeAllocationExhausted) {
		t.Fatalf("expected allocation exhausted, got %v", err)
	}
	if inserts != 5 {
		t.Fatalf("expected 5 insert attempts, got %d", inserts)
	}
}

func TestIngestIncrementsConcurrentWinner(t *testing.T) {
	base := NewRepository(dbtest.OpenSQLite(t))
	ctx := context.Background()
	winner := &models.InventoryItem{
		ItemName: "Crew Tee", Category: enums.ItemCategoryTShirt, Size: "M", Color: "Navy",
		Barcode: "555555555555", Quantity: 4, UnitPrice: decimal.RequireFromString("12"),
	}
	if err := base.Create(ctx, winner); err != nil {
		t.Fatalf("seed: %v", err)
	}

	lookups := 0
	repo := &stubRepo{Repository: base}
	repo.findByFingerprintFn = func(ctx context.Context, fp Fingerprint) (*models.InventoryItem, error) {
		lookups++
		if lookups == 1 {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory variant not found")
		}
		return base.FindByFingerprint(ctx, fp)
	}
	svc, _ := newTestService(t, repo)

	result, err := svc.Ingest(ctx, teeInput(SizeQuantity{"M", 3}))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Created != 0 || result.Incremented != 1 {
		t.Fatalf("expected the winner to be incremented, got %+v", result)
	}
	got, err := base.FindByID(ctx, winner.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Quantity != 7 {
		t.Fatalf("expected quantity 7, got %d", got.Quantity)
	}
}

func TestIngestPropagatesAllocatorLookupFailure(t *testing.T) {
	boom := errors.New("connection reset")
	base := NewRepository(dbtest.OpenSQLite(t))
	repo := &failingExists{Repository: base, err: boom}
	svc, _ := newTestService(t, repo)

	_, err := svc.Ingest(context.Background(), teeInput(SizeQuantity{"M", 1}))
	if !errors.Is(err, boom) || !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

type failingExists struct {
	Repository
	err error
}

func (f *failingExists) BarcodeExists(context.Context, string) (bool, error) { return false, f.err }

func TestScanGetAndImage(t *testing.T) {
	repo := NewRepository(dbtest.OpenSQLite(t))
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	result, err := svc.Ingest(ctx, teeInput(SizeQuantity{"M", 1}))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	item := result.Items[0]

	scanned, err := svc.Scan(ctx, " "+item.Barcode+" ")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scanned.ID != item.ID {
		t.Fatalf("scan returned %s, want %s", scanned.ID, item.ID)
	}
	if _, err := svc.Scan(ctx, "12ab"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	unused := "000000000000"
	if item.Barcode == unused {
		unused = "000000000001"
	}
	if _, err := svc.Scan(ctx, unused); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := svc.Get(ctx, uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	img, err := svc.BarcodeImage(ctx, item.ID)
	if err != nil {
		t.Fatalf("barcode image: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(img)); err != nil {
		t.Fatalf("expected png: %v", err)
	}
}

func TestAdjustStock(t *testing.T) {
	repo := NewRepository(dbtest.OpenSQLite(t))
	svc, metrics := newTestService(t, repo)
	ctx := context.Background()

	result, err := svc.Ingest(ctx, teeInput(SizeQuantity{"M", 5}))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	id := result.Items[0].ID

	if _, err := svc.AdjustStock(ctx, id, 0); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	got, err := svc.AdjustStock(ctx, id, -5)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got.Quantity != 0 {
		t.Fatalf("expected 0, got %d", got.Quantity)
	}

	_, err = svc.AdjustStock(ctx, id, -1)
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if msg := pkgerrors.As(err).Message(); msg != "Insufficient stock for Crew Tee. Available: 0, Requested: 1" {
		t.Fatalf("unexpected message %q", msg)
	}

	got, err = svc.AdjustStock(ctx, id, 3)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got.Quantity != 3 {
		t.Fatalf("expected 3, got %d", got.Quantity)
	}
	if metrics.out != 5 {
		t.Fatalf("expected 5 units out, got %d", metrics.out)
	}

	if _, err := svc.AdjustStock(ctx, uuid.New(), 1); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	repo := NewRepository(dbtest.OpenSQLite(t))
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	result, err := svc.Ingest(ctx, teeInput(SizeQuantity{"S", 1}, SizeQuantity{"M", 1}))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	small, medium := result.Items[0], result.Items[1]

	price := decimal.RequireFromString("15.25")
	desc := "Heavyweight cotton"
	updated, err := svc.Update(ctx, small.ID, UpdateInput{UnitPrice: &price, Description: &desc})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.UnitPrice.Equal(price) || updated.Description != desc || updated.Quantity != 1 {
		t.Fatalf("unexpected update result %+v", updated)
	}

	size := "S"
	if _, err := svc.Update(ctx, medium.ID, UpdateInput{Size: &size}); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected fingerprint conflict, got %v", err)
	}
	blank := " "
	if _, err := svc.Update(ctx, medium.ID, UpdateInput{ItemName: &blank}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := svc.Delete(ctx, small.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, small.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestListPages(t *testing.T) {
	repo := NewRepository(dbtest.OpenSQLite(t))
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, teeInput(SizeQuantity{"XS", 1}, SizeQuantity{"S", 1}, SizeQuantity{"M", 1})); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	first, err := svc.List(ctx, ListParams{Pagination: pagination.Params{Limit: 2}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Items) != 2 || first.NextCursor == "" {
		t.Fatalf("expected a full first page with a cursor, got %+v", first)
	}
	second, err := svc.List(ctx, ListParams{Pagination: pagination.Params{Limit: 2, Cursor: first.NextCursor}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(second.Items) != 1 || second.NextCursor != "" {
		t.Fatalf("expected a final page of one, got %+v", second)
	}

	if _, err := svc.List(ctx, ListParams{Pagination: pagination.Params{Cursor: "%%%"}}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	repo := NewRepository(dbtest.OpenSQLite(t))
	alloc, _ := barcode.NewAllocator(repo)
	if _, err := NewService(ServiceParams{Allocator: alloc, Logger: testLogger()}); err == nil {
		t.Fatal("expected missing repo to fail")
	}
	if _, err := NewService(ServiceParams{Repo: repo, Logger: testLogger()}); err == nil {
		t.Fatal("expected missing allocator to fail")
	}
	if _, err := NewService(ServiceParams{Repo: repo, Allocator: alloc}); err == nil {
		t.Fatal("expected missing logger to fail")
	}
}
