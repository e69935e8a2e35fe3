package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestInventoryMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_inventory_items")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS inventory_items",
		"CONSTRAINT inventory_items_barcode_key UNIQUE (barcode)",
		"CONSTRAINT inventory_items_fingerprint_key UNIQUE (item_name, category, size, color)",
		"CHECK (quantity >= 0)",
		"CHECK (unit_price >= 0)",
		"DROP TABLE IF EXISTS inventory_items",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestDeliveryMigrationHasNoForeignKey(t *testing.T) {
	content := readMigration(t, "create_delivery_records")
	if strings.Contains(content, "REFERENCES inventory_items") {
		t.Fatal("delivery records must not cascade from inventory items")
	}
	if !strings.Contains(content, "CHECK (quantity_delivered > 0)") {
		t.Fatal("missing positive quantity check")
	}
}

func TestValidateEmbeddedAndDisk(t *testing.T) {
	if err := ValidateDir(""); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("disk migrations invalid: %v", err)
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected bad filename to fail")
	}

	dir = t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20240101000000_a.sql"), []byte("-- +goose Up\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected missing down marker to fail")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	path, err := CreateSQLMigration(dir, "Add Low Stock Index!", now)
	if err != nil {
		t.Fatalf("CreateSQLMigration returned error: %v", err)
	}
	if filepath.Base(path) != "20240701120000_add_low_stock_index.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration invalid: %v", err)
	}
	if _, err := CreateSQLMigration(dir, "Add Low Stock Index!", now); err == nil {
		t.Fatal("expected duplicate migration to fail")
	}
	if _, err := CreateSQLMigration(dir, "!!!", now); err == nil {
		t.Fatal("expected empty sanitized name to fail")
	}
}
