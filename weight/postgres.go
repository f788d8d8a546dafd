package weight

import (
	"context"

	"github.com/devopsext/weightapi/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS weights (
	id         TEXT PRIMARY KEY,
	date       TIMESTAMPTZ NOT NULL,
	kilograms  DOUBLE PRECISION NOT NULL,
	notes      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type PostgresOptions struct {
	DSN      string
	MaxConns int32
}

type PostgresStore struct {
	options PostgresOptions
	pool    *pgxpool.Pool
	tracer  common.Tracer
	logger  common.Logger
}

func scanRecord(row pgx.Row) (*Record, error) {

	var r Record
	if err := row.Scan(&r.ID, &r.Date, &r.Kilograms, &r.Notes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.WithStack(err)
	}
	return &r, nil
}

func (ps *PostgresStore) Create(ctx context.Context, r *Record) (rec *Record, err error) {

	ctx, span := startCall(ctx, ps.tracer, "postgresql", "insert")
	defer func() { finishCall(span, err) }()

	if err := r.Validate(); err != nil {
		return nil, err
	}

	created := *r
	created.ID = uuid.NewString()
	span.SetAttributes(attribute.String("weight.id", created.ID))

	_, err = ps.pool.Exec(ctx,
		`INSERT INTO weights (id, date, kilograms, notes) VALUES ($1, $2, $3, $4)`,
		created.ID, created.Date, created.Kilograms, created.Notes)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &created, nil
}

func (ps *PostgresStore) Get(ctx context.Context, id string) (rec *Record, err error) {

	ctx, span := startCall(ctx, ps.tracer, "postgresql", "select", attribute.String("weight.id", id))
	defer func() { finishCall(span, err) }()

	return scanRecord(ps.pool.QueryRow(ctx,
		`SELECT id, date, kilograms, notes FROM weights WHERE id = $1`, id))
}

func (ps *PostgresStore) List(ctx context.Context) (recs []*Record, err error) {

	ctx, span := startCall(ctx, ps.tracer, "postgresql", "select")
	defer func() { finishCall(span, err) }()

	rows, err := ps.pool.Query(ctx, `SELECT id, date, kilograms, notes FROM weights ORDER BY date, id`)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	recs = make([]*Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	span.SetTag("db.rows", len(recs))
	return recs, nil
}

func (ps *PostgresStore) Update(ctx context.Context, r *Record) (rec *Record, err error) {

	ctx, span := startCall(ctx, ps.tracer, "postgresql", "update")
	defer func() { finishCall(span, err) }()

	if err := r.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("weight.id", r.ID))

	tag, err := ps.pool.Exec(ctx,
		`UPDATE weights SET date = $2, kilograms = $3, notes = $4 WHERE id = $1`,
		r.ID, r.Date, r.Kilograms, r.Notes)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	updated := *r
	return &updated, nil
}

func (ps *PostgresStore) Delete(ctx context.Context, id string) (err error) {

	ctx, span := startCall(ctx, ps.tracer, "postgresql", "delete", attribute.String("weight.id", id))
	defer func() { finishCall(span, err) }()

	tag, err := ps.pool.Exec(ctx, `DELETE FROM weights WHERE id = $1`, id)
	if err != nil {
		return errors.WithStack(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (ps *PostgresStore) Close() {
	ps.pool.Close()
}

func NewPostgresStore(ctx context.Context, options PostgresOptions, tracer common.Tracer, logger common.Logger) (*PostgresStore, error) {

	if logger == nil {
		logger = common.NewLogs()
	}

	config, err := pgxpool.ParseConfig(options.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "postgres config")
	}
	if options.MaxConns > 0 {
		config.MaxConns = options.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres ping")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres schema")
	}

	logger.Info("Postgres store is up...")

	return &PostgresStore{
		options: options,
		pool:    pool,
		tracer:  tracer,
		logger:  logger,
	}, nil
}
