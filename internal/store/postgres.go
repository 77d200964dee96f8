package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ticket-geocoder/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS geocode_records (
	id               BIGSERIAL PRIMARY KEY,
	ticket_key       TEXT NOT NULL,
	record_key       TEXT NOT NULL,
	street           TEXT NOT NULL DEFAULT '',
	intersection     TEXT NOT NULL DEFAULT '',
	city             TEXT NOT NULL DEFAULT '',
	county           TEXT NOT NULL DEFAULT '',
	ticket_type      TEXT NOT NULL DEFAULT '',
	duration         TEXT NOT NULL DEFAULT '',
	work_type        TEXT NOT NULL DEFAULT '',
	excavator        TEXT NOT NULL DEFAULT '',
	latitude         DOUBLE PRECISION,
	longitude        DOUBLE PRECISION,
	technique        TEXT NOT NULL,
	approach         TEXT NOT NULL DEFAULT '',
	confidence       DOUBLE PRECISION,
	rationale        TEXT NOT NULL DEFAULT '',
	error_message    TEXT NOT NULL DEFAULT '',
	quality_tier     TEXT NOT NULL,
	review_priority  TEXT NOT NULL,
	validation_flags JSONB,
	version          INTEGER NOT NULL,
	supersedes_id    BIGINT REFERENCES geocode_records(id),
	is_current       BOOLEAN NOT NULL DEFAULT true,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_by_stage TEXT NOT NULL DEFAULT '',
	locked           BOOLEAN NOT NULL DEFAULT false,
	lock_reason      TEXT NOT NULL DEFAULT '',
	locked_at        TIMESTAMPTZ,
	locked_by        TEXT NOT NULL DEFAULT '',
	metadata         JSONB,
	processing_ms    BIGINT NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_records_current ON geocode_records(ticket_key) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_records_ticket_key ON geocode_records(ticket_key);
CREATE INDEX IF NOT EXISTS idx_records_tier ON geocode_records(quality_tier) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_records_priority ON geocode_records(review_priority) WHERE is_current;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

const pgRecordColumns = `id, ticket_key, record_key, street, intersection, city, county,
	ticket_type, duration, work_type, excavator, latitude, longitude, technique,
	approach, confidence, rationale, error_message, quality_tier, review_priority,
	validation_flags, version, supersedes_id, is_current, created_at,
	created_by_stage, locked, lock_reason, locked_at, locked_by, metadata, processing_ms`

func (s *PostgresStore) GetCurrent(ctx context.Context, ticketKey string) (*model.GeocodeRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRecordColumns+` FROM geocode_records WHERE ticket_key = $1 AND is_current`,
		ticketKey,
	)
	rec, err := scanPgRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get current %s", ticketKey)
	}
	return rec, nil
}

func (s *PostgresStore) History(ctx context.Context, ticketKey string) ([]model.GeocodeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRecordColumns+` FROM geocode_records WHERE ticket_key = $1 ORDER BY version DESC`,
		ticketKey,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: history %s", ticketKey)
	}
	defer rows.Close()
	return collectPgRecords(rows)
}

func (s *PostgresStore) Append(ctx context.Context, rec *model.GeocodeRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append")
	}
	defer tx.Rollback(ctx)

	var prevID int64
	var prevVersion int
	var prevLocked bool
	err = tx.QueryRow(ctx,
		`SELECT id, version, locked FROM geocode_records
		 WHERE ticket_key = $1 AND is_current FOR UPDATE`,
		rec.TicketKey,
	).Scan(&prevID, &prevVersion, &prevLocked)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		rec.Version = 1
		rec.SupersedesID = nil
	case err != nil:
		return eris.Wrapf(err, "postgres: read current %s", rec.TicketKey)
	case prevLocked:
		return ErrLocked
	default:
		if _, err := tx.Exec(ctx,
			`UPDATE geocode_records SET is_current = false WHERE id = $1`, prevID,
		); err != nil {
			return eris.Wrapf(err, "postgres: retire record %d", prevID)
		}
		rec.Version = prevVersion + 1
		rec.SupersedesID = &prevID
	}

	rec.IsCurrent = true
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var flagsJSON, metaJSON []byte
	if len(rec.ValidationFlags) > 0 {
		if flagsJSON, err = json.Marshal(rec.ValidationFlags); err != nil {
			return eris.Wrap(err, "postgres: marshal validation flags")
		}
	}
	if len(rec.Metadata) > 0 {
		if metaJSON, err = json.Marshal(rec.Metadata); err != nil {
			return eris.Wrap(err, "postgres: marshal metadata")
		}
	}

	var lat, lon any
	if rec.Coordinates != nil {
		lat, lon = rec.Coordinates.Latitude, rec.Coordinates.Longitude
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO geocode_records (ticket_key, record_key, street, intersection,
			city, county, ticket_type, duration, work_type, excavator, latitude,
			longitude, technique, approach, confidence, rationale, error_message,
			quality_tier, review_priority, validation_flags, version, supersedes_id,
			is_current, created_at, created_by_stage, metadata, processing_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, true, $23, $24, $25, $26)
		 RETURNING id`,
		rec.TicketKey, rec.RecordKey, rec.Street, rec.Intersection, rec.City,
		rec.County, rec.TicketType, rec.Duration, rec.WorkType, rec.Excavator,
		lat, lon, rec.Technique, rec.Approach, rec.Confidence, rec.Rationale,
		rec.ErrorMessage, rec.QualityTier.String(), rec.ReviewPriority.String(),
		flagsJSON, rec.Version, rec.SupersedesID, rec.CreatedAt,
		rec.CreatedByStage, metaJSON, rec.ProcessingMS,
	).Scan(&rec.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert record %s", rec.TicketKey)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit append")
}

func (s *PostgresStore) Lock(ctx context.Context, ticketKey, reason, lockedBy string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE geocode_records SET locked = true, lock_reason = $1, locked_at = $2, locked_by = $3
		 WHERE ticket_key = $4 AND is_current`,
		reason, time.Now().UTC(), lockedBy, ticketKey,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: lock %s", ticketKey)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("record not found: %s", ticketKey)
	}
	return nil
}

func (s *PostgresStore) Unlock(ctx context.Context, ticketKey string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE geocode_records SET locked = false, lock_reason = '', locked_at = NULL, locked_by = ''
		 WHERE ticket_key = $1 AND is_current`,
		ticketKey,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: unlock %s", ticketKey)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("record not found: %s", ticketKey)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, filter Filter) ([]model.GeocodeRecord, error) {
	query := `SELECT ` + pgRecordColumns + ` FROM geocode_records WHERE is_current`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if len(filter.Tiers) > 0 {
		names := make([]string, len(filter.Tiers))
		for i, t := range filter.Tiers {
			names[i] = t.String()
		}
		query += ` AND quality_tier = ANY(` + arg(names) + `)`
	}
	if len(filter.Priorities) > 0 {
		names := make([]string, len(filter.Priorities))
		for i, p := range filter.Priorities {
			names[i] = p.String()
		}
		query += ` AND review_priority = ANY(` + arg(names) + `)`
	}
	if filter.MinConfidence != nil {
		query += ` AND confidence >= ` + arg(*filter.MinConfidence)
	}
	if filter.MaxConfidence != nil {
		query += ` AND confidence <= ` + arg(*filter.MaxConfidence)
	}
	if filter.Locked != nil {
		query += ` AND locked = ` + arg(*filter.Locked)
	}
	query += ` ORDER BY ticket_key`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query records")
	}
	defer rows.Close()
	return collectPgRecords(rows)
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByTier:              make(map[string]int),
		AvgConfidenceByTier: make(map[string]float64),
	}

	err := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE is_current),
		        count(*) FILTER (WHERE is_current AND locked)
		 FROM geocode_records`,
	).Scan(&stats.TotalVersions, &stats.TotalCurrent, &stats.LockedCount)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats totals")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT quality_tier, count(*), avg(confidence)
		 FROM geocode_records WHERE is_current GROUP BY quality_tier`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by tier")
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		var count int
		var avg *float64
		if err := rows.Scan(&tier, &count, &avg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier stats")
		}
		stats.ByTier[tier] = count
		if avg != nil {
			stats.AvgConfidenceByTier[tier] = *avg
		}
	}
	return stats, eris.Wrap(rows.Err(), "postgres: stats iterate")
}

func (s *PostgresStore) Clear(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM geocode_records`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgRecord(row pgx.Row) (*model.GeocodeRecord, error) {
	var rec model.GeocodeRecord
	var lat, lon *float64
	var flagsJSON, metaJSON []byte
	var tier, priority string

	err := row.Scan(
		&rec.ID, &rec.TicketKey, &rec.RecordKey, &rec.Street, &rec.Intersection,
		&rec.City, &rec.County, &rec.TicketType, &rec.Duration, &rec.WorkType,
		&rec.Excavator, &lat, &lon, &rec.Technique, &rec.Approach, &rec.Confidence,
		&rec.Rationale, &rec.ErrorMessage, &tier, &priority, &flagsJSON,
		&rec.Version, &rec.SupersedesID, &rec.IsCurrent, &rec.CreatedAt,
		&rec.CreatedByStage, &rec.Locked, &rec.LockReason, &rec.LockedAt,
		&rec.LockedBy, &metaJSON, &rec.ProcessingMS,
	)
	if err != nil {
		return nil, err
	}

	if lat != nil && lon != nil {
		rec.Coordinates = &model.Coordinates{Latitude: *lat, Longitude: *lon}
	}
	if rec.QualityTier, err = model.ParseTier(tier); err != nil {
		return nil, err
	}
	if rec.ReviewPriority, err = model.ParsePriority(priority); err != nil {
		return nil, err
	}
	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &rec.ValidationFlags); err != nil {
			return nil, eris.Wrap(err, "unmarshal validation flags")
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
			return nil, eris.Wrap(err, "unmarshal metadata")
		}
	}
	return &rec, nil
}

func collectPgRecords(rows pgx.Rows) ([]model.GeocodeRecord, error) {
	var records []model.GeocodeRecord
	for rows.Next() {
		rec, err := scanPgRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scan record")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "iterate records")
}
