package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/pkg/models"
)

// Schema is the reference DDL. EnsureSchema applies it at startup; real
// deployments may manage the table themselves.
const Schema = `
CREATE TABLE IF NOT EXISTS indexes (
    index_id    BIGSERIAL PRIMARY KEY,
    index_type  TEXT NOT NULL,
    data_source TEXT NOT NULL,
    region      TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT '{"type":"NotAvailable"}',
    created_at  BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
    updated_at  BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
    UNIQUE (index_type, data_source, region)
);
`

const indexColumns = "index_id, index_type, data_source, region, status, created_at, updated_at"

func NewPool(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

type Catalog struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, Schema); err != nil {
		return translate("ensure schema", err)
	}
	return nil
}

func (c *Catalog) Create(ctx context.Context, params catalog.CreateParams) (models.Index, error) {
	now := time.Now().Unix()
	row := c.pool.QueryRow(ctx,
		`INSERT INTO indexes (index_type, data_source, region, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 RETURNING `+indexColumns,
		string(params.IndexType), params.DataSource, params.Region, models.DefaultStatusText, now)
	idx, err := scanIndex(row)
	if err != nil {
		return models.Index{}, translate("create index", err)
	}
	return idx, nil
}

func (c *Catalog) Get(ctx context.Context, id int64) (models.Index, error) {
	row := c.pool.QueryRow(ctx,
		`SELECT `+indexColumns+` FROM indexes WHERE index_id = $1`, id)
	idx, err := scanIndex(row)
	if err != nil {
		return models.Index{}, translate("get index", err)
	}
	return idx, nil
}

func (c *Catalog) GetByKey(ctx context.Context, indexType models.IndexType, dataSource, region string) (models.Index, error) {
	row := c.pool.QueryRow(ctx,
		`SELECT `+indexColumns+` FROM indexes
		 WHERE index_type = $1 AND data_source = $2 AND region = $3`,
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

	row := c.pool.QueryRow(ctx,
		`UPDATE indexes SET status = $1, updated_at = $2
		 WHERE index_id = $3 AND status = $4
		 RETURNING `+indexColumns,
		toText, time.Now().Unix(), id, fromText)
	idx, err := scanIndex(row)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Index{}, translate("update status", err)
	}

	// No row matched: either the index is gone or the status moved under us.
	cur, gerr := c.Get(ctx, id)
	if gerr != nil {
		return models.Index{}, gerr
	}
	return models.Index{}, fmt.Errorf("%w: status is %s, expected %s", catalog.ErrStale, cur.Status.Kind, from.Kind)
}

func (c *Catalog) Reset(ctx context.Context, id int64) (models.Index, error) {
	row := c.pool.QueryRow(ctx,
		`UPDATE indexes SET status = $1, updated_at = $2
		 WHERE index_id = $3
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
	rows, err := c.pool.Query(ctx, query, args...)
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
		rows, err := c.pool.Query(ctx, query, args...)
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
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s", catalog.ErrUnavailable, err)
	}
	return nil
}

func (c *Catalog) Close() {
	c.pool.Close()
}

func buildListQuery(f catalog.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, fmt.Sprintf("index_type = $%d", len(args)))
	}
	if f.Region != "" {
		args = append(args, f.Region)
		conds = append(conds, fmt.Sprintf("region = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status::json->>'type' = $%d", len(args)))
	}

	query := `SELECT ` + indexColumns + ` FROM indexes`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, index_id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func scanIndex(row pgx.Row) (models.Index, error) {
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
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return catalog.ErrNotFound
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		return fmt.Errorf("%s: %w", op, catalog.ErrConflict)
	case isConnErr(err):
		return fmt.Errorf("%s: %w: %s", op, catalog.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnErr(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
