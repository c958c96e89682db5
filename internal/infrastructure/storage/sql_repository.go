package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/ports"
)

// ErrOversizeCell rejects a save that carries a cell above the size limit.
var ErrOversizeCell = errors.New("oversized cell")

const (
	headersTable = "sheet_headers"
	rowsTable    = "sheet_rows"
	insertChunk  = 200
)

// Options configures the sheet store.
type Options struct {
	Driver           string
	DSN              string
	MaxCellChars     int
	DropOversize     bool
	OversizeLogLimit int
}

// SQLRepository keeps the news sheet in two tables: ordered headers and
// ordered rows whose payload is a JSON object keyed by header.
type SQLRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	opts    Options
	logger  *slog.Logger
}

var _ ports.RowStore = (*SQLRepository)(nil)

// Open connects to the configured driver ("sqlite" or "postgres") and
// creates the tables.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*SQLRepository, error) {
	driver, err := driverName(opts.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	repo := NewSQLRepository(db, opts, logger)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLRepository wires an opened sql.DB.
func NewSQLRepository(db *sql.DB, opts Options, logger *slog.Logger) *SQLRepository {
	if logger == nil {
		logger = slog.Default()
	}
	var placeholder sq.PlaceholderFormat = sq.Question
	if opts.Driver == "postgres" {
		placeholder = sq.Dollar
	}
	return &SQLRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		opts:    opts,
		logger:  logger,
	}
}

// Close releases the connection pool.
func (r *SQLRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Migrate creates the sheet tables when missing.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + headersTable + ` (position INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS ` + rowsTable + ` (position INTEGER PRIMARY KEY, payload TEXT NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// LoadRows reads the whole sheet in order.
func (r *SQLRepository) LoadRows(ctx context.Context) (domain.Sheet, error) {
	var sheet domain.Sheet

	query, args, err := r.builder.Select("name").From(headersTable).OrderBy("position").ToSql()
	if err != nil {
		return sheet, fmt.Errorf("build headers query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return sheet, fmt.Errorf("query headers: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return sheet, fmt.Errorf("scan header: %w", err)
		}
		sheet.Headers = append(sheet.Headers, name)
	}
	if err := closeRows(rows); err != nil {
		return sheet, err
	}

	query, args, err = r.builder.Select("payload").From(rowsTable).OrderBy("position").ToSql()
	if err != nil {
		return sheet, fmt.Errorf("build rows query: %w", err)
	}
	rows, err = r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return sheet, fmt.Errorf("query rows: %w", err)
	}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			_ = rows.Close()
			return sheet, fmt.Errorf("scan row: %w", err)
		}
		row := domain.Row{}
		if err := json.Unmarshal([]byte(payload), &row); err != nil {
			_ = rows.Close()
			return sheet, fmt.Errorf("decode row: %w", err)
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	if err := closeRows(rows); err != nil {
		return sheet, err
	}
	return sheet, nil
}

// SaveRow writes one row at index and refreshes the headers.
func (r *SQLRepository) SaveRow(ctx context.Context, headers []string, index int, row domain.Row) error {
	var report oversizeReport
	payload, err := r.encode(headers, index, row, &report)
	if err != nil {
		return err
	}
	if err := r.checkOversize(report); err != nil {
		return err
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.writeHeaders(ctx, tx, headers); err != nil {
			return err
		}
		if err := r.exec(ctx, tx, r.builder.Delete(rowsTable).Where(sq.Eq{"position": index})); err != nil {
			return fmt.Errorf("delete row %d: %w", index, err)
		}
		if err := r.exec(ctx, tx, r.builder.Insert(rowsTable).Columns("position", "payload").Values(index, payload)); err != nil {
			return fmt.Errorf("insert row %d: %w", index, err)
		}
		return nil
	})
}

// SaveAllRows replaces the sheet.
func (r *SQLRepository) SaveAllRows(ctx context.Context, sheet domain.Sheet) error {
	var report oversizeReport
	payloads := make([]string, len(sheet.Rows))
	for i, row := range sheet.Rows {
		payload, err := r.encode(sheet.Headers, i, row, &report)
		if err != nil {
			return err
		}
		payloads[i] = payload
	}
	if err := r.checkOversize(report); err != nil {
		return err
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.writeHeaders(ctx, tx, sheet.Headers); err != nil {
			return err
		}
		if err := r.exec(ctx, tx, r.builder.Delete(rowsTable)); err != nil {
			return fmt.Errorf("clear rows: %w", err)
		}
		for start := 0; start < len(payloads); start += insertChunk {
			end := min(start+insertChunk, len(payloads))
			insert := r.builder.Insert(rowsTable).Columns("position", "payload")
			for i := start; i < end; i++ {
				insert = insert.Values(i, payloads[i])
			}
			if err := r.exec(ctx, tx, insert); err != nil {
				return fmt.Errorf("insert rows: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLRepository) writeHeaders(ctx context.Context, tx *sql.Tx, headers []string) error {
	if err := r.exec(ctx, tx, r.builder.Delete(headersTable)); err != nil {
		return fmt.Errorf("clear headers: %w", err)
	}
	if len(headers) == 0 {
		return nil
	}
	insert := r.builder.Insert(headersTable).Columns("position", "name")
	for i, h := range headers {
		insert = insert.Values(i, h)
	}
	if err := r.exec(ctx, tx, insert); err != nil {
		return fmt.Errorf("insert headers: %w", err)
	}
	return nil
}

type oversizeCell struct {
	row    int
	column string
	length int
	id     string
}

type oversizeReport struct {
	cells []oversizeCell
}

// encode keeps only header columns and applies the cell size policy.
func (r *SQLRepository) encode(headers []string, index int, row domain.Row, report *oversizeReport) (string, error) {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		value, ok := row[h]
		if !ok {
			continue
		}
		if n := utf8.RuneCountInString(value); r.opts.MaxCellChars > 0 && n > r.opts.MaxCellChars {
			report.cells = append(report.cells, oversizeCell{row: index, column: h, length: n, id: row["id"]})
			if r.opts.DropOversize {
				value = ""
			}
		}
		out[h] = value
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode row %d: %w", index, err)
	}
	return string(payload), nil
}

func (r *SQLRepository) checkOversize(report oversizeReport) error {
	if len(report.cells) == 0 {
		return nil
	}
	r.logger.Warn("oversized cells detected", "count", len(report.cells), "max_chars", r.opts.MaxCellChars, "dropped", r.opts.DropOversize)
	limit := r.opts.OversizeLogLimit
	for i, c := range report.cells {
		if limit > 0 && i >= limit {
			r.logger.Warn("oversized cell log truncated", "more", len(report.cells)-limit)
			break
		}
		r.logger.Warn("oversized cell", "row", c.row, "column", c.column, "length", c.length, "id", c.id)
	}
	if r.opts.DropOversize {
		return nil
	}
	return fmt.Errorf("%w: %d cell(s) above %d chars", ErrOversizeCell, len(report.cells), r.opts.MaxCellChars)
}

func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *SQLRepository) exec(ctx context.Context, tx *sql.Tx, stmt sq.Sqlizer) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("rows iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close rows: %w", err)
	}
	return nil
}

func driverName(driver string) (string, error) {
	switch driver {
	case "", "sqlite":
		return "sqlite", nil
	case "postgres":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", driver)
	}
}
