package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -4: DefaultLimit, 10: 10, MaxLimit + 1: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
	if LimitWithBuffer(10) != 11 {
		t.Fatalf("expected buffered limit 11")
	}
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := Cursor{At: time.Date(2024, 3, 1, 10, 30, 0, 123, time.UTC), ID: uuid.New()}
	parsed, err := ParseCursor(EncodeCursor(cursor))
	if err != nil {
		t.Fatalf("ParseCursor returned error: %v", err)
	}
	if !parsed.At.Equal(cursor.At) || parsed.ID != cursor.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", parsed, cursor)
	}

	empty, err := ParseCursor("  ")
	if err != nil || empty != nil {
		t.Fatalf("expected nil cursor for blank input, got %+v err=%v", empty, err)
	}
	if _, err := ParseCursor("!!!"); err == nil {
		t.Fatal("expected garbage cursor to fail")
	}
}

func TestPage(t *testing.T) {
	base := time.Now().UTC()
	type row struct {
		at time.Time
		id uuid.UUID
	}
	rows := []row{{base, uuid.New()}, {base.Add(-time.Second), uuid.New()}, {base.Add(-2 * time.Second), uuid.New()}}
	cursorOf := func(r row) Cursor { return Cursor{At: r.at, ID: r.id} }

	page, next := Page(rows, 2, cursorOf)
	if len(page) != 2 || next == "" {
		t.Fatalf("expected 2 rows and a next cursor, got %d %q", len(page), next)
	}
	parsed, err := ParseCursor(next)
	if err != nil || parsed.ID != rows[1].id {
		t.Fatalf("next cursor should point at last returned row, got %+v err=%v", parsed, err)
	}

	page, next = Page(rows, 5, cursorOf)
	if len(page) != 3 || next != "" {
		t.Fatalf("expected full page without cursor, got %d %q", len(page), next)
	}
}
