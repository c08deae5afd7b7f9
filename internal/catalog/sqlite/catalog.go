package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/pkg/models"
)

// Single-file catalog for single-node deployments. Pure Go driver, no CGO.

const schema = `
CREATE TABLE IF NOT EXISTS indexes (
    index_id    INTEGER PRIMARY KEY AUTOINCREMENT,
    index_type  TEXT NOT NULL,
    data_source TEXT NOT NULL,
    region      TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT '{"type":"NotAvailable"}',
    created_at  INTEGER NOT NULL DEFAULT (strftime('%s','now')),
    updated_at  INTEGER NOT NULL DEFAULT (strftime('%s','now')),
    UNIQUE (index_type, data_source, region)
);
`

const indexColumns = "index_id, index_type, data_source, region, status, created_at, updated_at"

type Catalog struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer keeps lock contention out of the CAS path.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Pragmas must be set via statements, the DSN form is ignored by the driver.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

func (c *Catalog) Create(ctx context.Context, params catalog.CreateParams) (models.Index, error) {
	now := time.Now().Unix()
	row := c.db.QueryRowContext(ctx,
		`INSERT INTO indexes (index_type, data_source, region, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING `+indexColumns,
		string(params.IndexType), params.DataSource, params.Region, models.DefaultStatusText, now, now)
	idx, err := scanIndex(row)
	if err != nil {
		return models.Index{}, translate("create index", err)
	}
	return idx, nil
}

func (c *Catalog) Get(ctx context.Context, id int64) (models.Index, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+indexColumns+` FROM indexes WHERE index_id = ?`, id)
	idx, err := scanIndex(row)
	if err != nil {
		return models.Index{}, translate("get index", err)
	}
	return idx, nil
}

func (c *Catalog) GetByKey(ctx context.Context, indexType models.IndexType, dataSource, region string) (models.Index, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+indexColumns+` FROM indexes
		 WHERE index_type = ? AND data_source = ? AND region = ?`,
		string(indexType), dataSource, region)
	idx, err := scanIndex(row)
	if err != nil {
		return models.Index{}, translate("get index by key", err)
	}
	return idx, nil
}

func (c *Catalog) UpdateStatus(ctx context.Context, id int64, from, to models.Status) (models.Index, error) {
	fromText, err := models.EncodeStatus(from)
	if err != nil {
		return models.Index{}, err
	}
	toText, err := models.EncodeStatus(to)
	if err != nil {
		return models.Index{}, err
	}

	row := c.db.QueryRowContext(ctx,
		`UPDATE indexes SET status = ?, updated_at = ?
		 WHERE index_id = ? AND status = ?
		 RETURNING `+indexColumns,
		toText, time.Now().Unix(), id, fromText)
	idx, err := scanIndex(row)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Index{}, translate("update status", err)
	}

	cur, gerr := c.Get(ctx, id)
	if gerr != nil {
		return models.Index{}, gerr
	}
	return models.Index{}, fmt.Errorf("%w: status is %s, expected %s", catalog.ErrStale, cur.Status.Kind, from.Kind)
}

func (c *Catalog) Reset(ctx context.Context, id int64) (models.Index, error) {
	row := c.db.QueryRowContext(ctx,
		`UPDATE indexes SET status = ?, updated_at = ?
		 WHERE index_id = ?
		 RETURNING `+indexColumns,
		models.DefaultStatusText, time.Now().Unix(), id)
	idx, err := scanIndex(row)
	if err != nil {
		return models.Index{}, translate("reset index", err)
	}
	return idx, nil
}

func (c *Catalog) List(ctx context.Context, f catalog.Filter) ([]models.Index, error) {
	query, args := buildListQuery(f)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate("list indexes", err)
	}
	defer rows.Close()

	var items []models.Index
	for rows.Next() {
		idx, err := scanIndex(rows)
		if err != nil {
			return nil, translate("list indexes", err)
		}
		items = append(items, idx)
	}
	return items, rows.Err()
}

func (c *Catalog) All(ctx context.Context, f catalog.Filter) iter.Seq2[models.Index, error] {
	f.Limit = 0
	f.Offset = 0
	query, args := buildListQuery(f)
	return func(yield func(models.Index, error) bool) {
		rows, err := c.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(models.Index{}, translate("iterate indexes", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			idx, err := scanIndex(rows)
			if !yield(idx, err) {
				return
			}
			if err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Index{}, translate("iterate indexes", err))
		}
	}
}

func (c *Catalog) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %s", catalog.ErrUnavailable, err)
	}
	return nil
}

func (c *Catalog) Close() {
	_ = c.db.Close()
}

func buildListQuery(f catalog.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		conds = append(conds, "index_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Region != "" {
		conds = append(conds, "region = ?")
		args = append(args, f.Region)
	}
	if f.Status != "" {
		conds = append(conds, "json_extract(status, '$.type') = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT ` + indexColumns + ` FROM indexes`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, index_id"
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, f.Offset)
	}
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIndex(row rowScanner) (models.Index, error) {
	var (
		idx        models.Index
		indexType  string
		statusText string
		createdAt  int64
		updatedAt  int64
	)
	if err := row.Scan(&idx.ID, &indexType, &idx.DataSource, &idx.Region, &statusText, &createdAt, &updatedAt); err != nil {
		return models.Index{}, err
	}
	status, err := models.DecodeStatus(statusText)
	if err != nil {
		return models.Index{}, err
	}
	idx.IndexType = models.IndexType(indexType)
	idx.Status = status
	idx.CreatedAt = time.Unix(createdAt, 0).UTC()
	idx.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return idx, nil
}

func translate(op string, err error) error {
	var serr *sqlite3.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return catalog.ErrNotFound
	case errors.As(err, &serr) && (serr.Code() == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || serr.Code() == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY):
		return fmt.Errorf("%s: %w", op, catalog.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
