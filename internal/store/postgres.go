package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/itstheanurag/fnrunner/internal/model"
)

const uniqueViolation = "23505"

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const functionColumns = `id, name, route, code, language, timeout_ms, created_at, updated_at`

func scanFunction(row pgx.Row) (*model.Definition, error) {
	var def model.Definition
	err := row.Scan(&def.ID, &def.Name, &def.Route, &def.Code, &def.Language, &def.TimeoutMS, &def.CreatedAt, &def.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrRouteTaken
	}
	return err
}

func (p *Postgres) CreateFunction(ctx context.Context, def *model.Definition) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO functions (`+functionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		def.ID, def.Name, def.Route, def.Code, def.Language, def.TimeoutMS, def.CreatedAt, def.UpdatedAt,
	)
	return translate(err)
}

func (p *Postgres) GetFunction(ctx context.Context, id string) (*model.Definition, error) {
	return scanFunction(p.pool.QueryRow(ctx,
		`SELECT `+functionColumns+` FROM functions WHERE id = $1`, id))
}

func (p *Postgres) GetFunctionByRoute(ctx context.Context, route string) (*model.Definition, error) {
	return scanFunction(p.pool.QueryRow(ctx,
		`SELECT `+functionColumns+` FROM functions WHERE route = $1`, route))
}

func (p *Postgres) ListFunctions(ctx context.Context) ([]*model.Definition, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+functionColumns+` FROM functions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defs := []*model.Definition{}
	for rows.Next() {
		def, err := scanFunction(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (p *Postgres) UpdateFunction(ctx context.Context, def *model.Definition) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE functions
		 SET name = $2, route = $3, code = $4, language = $5, timeout_ms = $6, updated_at = $7
		 WHERE id = $1`,
		def.ID, def.Name, def.Route, def.Code, def.Language, def.TimeoutMS, def.UpdatedAt,
	)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteFunction(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM functions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendRecord(ctx context.Context, rec *model.ExecutionRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO execution_records (id, function_id, duration_ms, status, error, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.FunctionID, rec.DurationMS, rec.Status, rec.Error, rec.Timestamp,
	)
	return err
}

func (p *Postgres) ListRecords(ctx context.Context, functionID string, limit int) ([]model.ExecutionRecord, error) {
	if limit <= 0 {
		limit = DefaultRecordLimit
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, function_id, duration_ms, status, error, timestamp
		 FROM execution_records WHERE function_id = $1
		 ORDER BY timestamp DESC LIMIT $2`,
		functionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.ExecutionRecord
	for rows.Next() {
		var r model.ExecutionRecord
		if err := rows.Scan(&r.ID, &r.FunctionID, &r.DurationMS, &r.Status, &r.Error, &r.Timestamp); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
