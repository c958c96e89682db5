package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"NewsGrinder/internal/domain"
)

func openTestRepo(t *testing.T, opts Options) *SQLRepository {
	t.Helper()
	opts.Driver = "sqlite"
	opts.DSN = filepath.Join(t.TempDir(), "sheet.db")
	repo, err := Open(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSaveAllRowsAndLoad(t *testing.T) {
	t.Parallel()

	repo := openTestRepo(t, Options{MaxCellChars: 100})
	ctx := context.Background()

	empty, err := repo.LoadRows(ctx)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(empty.Headers) != 0 || len(empty.Rows) != 0 {
		t.Fatalf("expected an empty sheet, got %+v", empty)
	}

	sheet := domain.Sheet{
		Headers: []string{"id", "titleEn", "url"},
		Rows: []domain.Row{
			{"id": "1", "titleEn": "First", "url": "https://a", "stray": "ignored"},
			{"id": "2", "titleEn": "Второй"},
		},
	}
	if err := repo.SaveAllRows(ctx, sheet); err != nil {
		t.Fatalf("save all: %v", err)
	}

	got, err := repo.LoadRows(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if strings.Join(got.Headers, ",") != "id,titleEn,url" {
		t.Fatalf("unexpected headers %v", got.Headers)
	}
	if len(got.Rows) != 2 || got.Rows[0]["url"] != "https://a" || got.Rows[1]["titleEn"] != "Второй" {
		t.Fatalf("unexpected rows %+v", got.Rows)
	}
	if _, ok := got.Rows[0]["stray"]; ok {
		t.Fatal("columns outside the headers must not be stored")
	}

	sheet.Rows = sheet.Rows[:1]
	if err := repo.SaveAllRows(ctx, sheet); err != nil {
		t.Fatalf("save shorter sheet: %v", err)
	}
	got, _ = repo.LoadRows(ctx)
	if len(got.Rows) != 1 {
		t.Fatalf("expected the sheet to be replaced, got %d rows", len(got.Rows))
	}
}

func TestSaveRowUpdatesInPlace(t *testing.T) {
	t.Parallel()

	repo := openTestRepo(t, Options{})
	ctx := context.Background()
	headers := []string{"id", "summary"}
	if err := repo.SaveAllRows(ctx, domain.Sheet{Headers: headers, Rows: []domain.Row{{"id": "1"}, {"id": "2"}}}); err != nil {
		t.Fatalf("save all: %v", err)
	}

	headers = append(headers, "verifyStatus")
	if err := repo.SaveRow(ctx, headers, 1, domain.Row{"id": "2", "summary": "done", "verifyStatus": "ok"}); err != nil {
		t.Fatalf("save row: %v", err)
	}
	got, err := repo.LoadRows(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Headers) != 3 || len(got.Rows) != 2 {
		t.Fatalf("unexpected sheet %+v", got)
	}
	if got.Rows[0]["id"] != "1" || got.Rows[1]["summary"] != "done" || got.Rows[1]["verifyStatus"] != "ok" {
		t.Fatalf("unexpected rows %+v", got.Rows)
	}
}

func TestOversizeCells(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sheet := domain.Sheet{
		Headers: []string{"id", "text"},
		Rows:    []domain.Row{{"id": "1", "text": strings.Repeat("x", 11)}},
	}

	strict := openTestRepo(t, Options{MaxCellChars: 10, OversizeLogLimit: 1})
	if err := strict.SaveAllRows(ctx, sheet); !errors.Is(err, ErrOversizeCell) {
		t.Fatalf("expected ErrOversizeCell, got %v", err)
	}
	if err := strict.SaveRow(ctx, sheet.Headers, 0, sheet.Rows[0]); !errors.Is(err, ErrOversizeCell) {
		t.Fatalf("expected ErrOversizeCell from SaveRow, got %v", err)
	}

	lenient := openTestRepo(t, Options{MaxCellChars: 10, DropOversize: true})
	if err := lenient.SaveAllRows(ctx, sheet); err != nil {
		t.Fatalf("save with drop: %v", err)
	}
	got, _ := lenient.LoadRows(ctx)
	if len(got.Rows) != 1 || got.Rows[0]["text"] != "" || got.Rows[0]["id"] != "1" {
		t.Fatalf("expected the oversized cell to be dropped, got %+v", got.Rows)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Options{Driver: "mysql"}, nil); err == nil {
		t.Fatal("expected an error for an unsupported driver")
	}
}

func TestPlaceholderFormatFollowsDriver(t *testing.T) {
	t.Parallel()

	tests := []struct {
		driver string
		want   string
	}{
		{driver: "sqlite", want: "position = ?"},
		{driver: "postgres", want: "position = $1"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()

			repo := NewSQLRepository(nil, Options{Driver: tt.driver}, nil)
			query, _, err := repo.builder.Delete(rowsTable).Where("position = ?", 3).ToSql()
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if !strings.Contains(query, tt.want) {
				t.Fatalf("expected %q in %q", tt.want, query)
			}
		})
	}
}
