package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ticket-geocoder/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The pragmas ride on the DSN so every pooled connection gets them, and
// _txlock=immediate makes each write transaction take the write lock at BEGIN
// instead of deadlocking on a read-to-write upgrade.
func NewSQLite(path string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geocode_records (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
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
	latitude         REAL,
	longitude        REAL,
	technique        TEXT NOT NULL,
	approach         TEXT NOT NULL DEFAULT '',
	confidence       REAL,
	rationale        TEXT NOT NULL DEFAULT '',
	error_message    TEXT NOT NULL DEFAULT '',
	quality_tier     TEXT NOT NULL,
	review_priority  TEXT NOT NULL,
	validation_flags TEXT,
	version          INTEGER NOT NULL,
	supersedes_id    INTEGER REFERENCES geocode_records(id),
	is_current       INTEGER NOT NULL DEFAULT 1,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	created_by_stage TEXT NOT NULL DEFAULT '',
	locked           INTEGER NOT NULL DEFAULT 0,
	lock_reason      TEXT NOT NULL DEFAULT '',
	locked_at        DATETIME,
	locked_by        TEXT NOT NULL DEFAULT '',
	metadata         TEXT,
	processing_ms    INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_records_current ON geocode_records(ticket_key) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_records_ticket_key ON geocode_records(ticket_key);
CREATE INDEX IF NOT EXISTS idx_records_tier ON geocode_records(quality_tier) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_records_priority ON geocode_records(review_priority) WHERE is_current = 1;
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `id, ticket_key, record_key, street, intersection, city, county,
	ticket_type, duration, work_type, excavator, latitude, longitude, technique,
	approach, confidence, rationale, error_message, quality_tier, review_priority,
	validation_flags, version, supersedes_id, is_current, created_at,
	created_by_stage, locked, lock_reason, locked_at, locked_by, metadata, processing_ms`

func (s *SQLiteStore) GetCurrent(ctx context.Context, ticketKey string) (*model.GeocodeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM geocode_records WHERE ticket_key = ? AND is_current = 1`,
		ticketKey,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get current %s", ticketKey)
	}
	return rec, nil
}

func (s *SQLiteStore) History(ctx context.Context, ticketKey string) ([]model.GeocodeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM geocode_records WHERE ticket_key = ? ORDER BY version DESC`,
		ticketKey,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: history %s", ticketKey)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *SQLiteStore) Append(ctx context.Context, rec *model.GeocodeRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback()

	var prevID int64
	var prevVersion int
	var prevLocked bool
	err = tx.QueryRowContext(ctx,
		`SELECT id, version, locked FROM geocode_records WHERE ticket_key = ? AND is_current = 1`,
		rec.TicketKey,
	).Scan(&prevID, &prevVersion, &prevLocked)

	switch {
	case err == sql.ErrNoRows:
		rec.Version = 1
		rec.SupersedesID = nil
	case err != nil:
		return eris.Wrapf(err, "sqlite: read current %s", rec.TicketKey)
	case prevLocked:
		return ErrLocked
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE geocode_records SET is_current = 0 WHERE id = ?`, prevID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: retire record %d", prevID)
		}
		rec.Version = prevVersion + 1
		rec.SupersedesID = &prevID
	}

	rec.IsCurrent = true
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	flagsJSON, metaJSON, err := marshalSideData(rec)
	if err != nil {
		return err
	}

	var lat, lon any
	if rec.Coordinates != nil {
		lat, lon = rec.Coordinates.Latitude, rec.Coordinates.Longitude
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO geocode_records (ticket_key, record_key, street, intersection,
			city, county, ticket_type, duration, work_type, excavator, latitude,
			longitude, technique, approach, confidence, rationale, error_message,
			quality_tier, review_priority, validation_flags, version, supersedes_id,
			is_current, created_at, created_by_stage, locked, lock_reason, locked_at,
			locked_by, metadata, processing_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, 0, '', NULL, '', ?, ?)`,
		rec.TicketKey, rec.RecordKey, rec.Street, rec.Intersection, rec.City,
		rec.County, rec.TicketType, rec.Duration, rec.WorkType, rec.Excavator,
		lat, lon, rec.Technique, rec.Approach, rec.Confidence, rec.Rationale,
		rec.ErrorMessage, rec.QualityTier.String(), rec.ReviewPriority.String(),
		flagsJSON, rec.Version, rec.SupersedesID, rec.CreatedAt, rec.CreatedByStage,
		metaJSON, rec.ProcessingMS,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert record %s", rec.TicketKey)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: last insert id")
	}
	rec.ID = id

	return eris.Wrap(tx.Commit(), "sqlite: commit append")
}

func (s *SQLiteStore) Lock(ctx context.Context, ticketKey, reason, lockedBy string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE geocode_records SET locked = 1, lock_reason = ?, locked_at = ?, locked_by = ?
		 WHERE ticket_key = ? AND is_current = 1`,
		reason, time.Now().UTC(), lockedBy, ticketKey,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: lock %s", ticketKey)
	}
	return checkRowsAffected(res, "record", ticketKey)
}

func (s *SQLiteStore) Unlock(ctx context.Context, ticketKey string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE geocode_records SET locked = 0, lock_reason = '', locked_at = NULL, locked_by = ''
		 WHERE ticket_key = ? AND is_current = 1`,
		ticketKey,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: unlock %s", ticketKey)
	}
	return checkRowsAffected(res, "record", ticketKey)
}

func (s *SQLiteStore) Query(ctx context.Context, filter Filter) ([]model.GeocodeRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM geocode_records WHERE is_current = 1`
	var args []any

	if len(filter.Tiers) > 0 {
		query += ` AND quality_tier IN (` + placeholders(len(filter.Tiers)) + `)`
		for _, t := range filter.Tiers {
			args = append(args, t.String())
		}
	}
	if len(filter.Priorities) > 0 {
		query += ` AND review_priority IN (` + placeholders(len(filter.Priorities)) + `)`
		for _, p := range filter.Priorities {
			args = append(args, p.String())
		}
	}
	if filter.MinConfidence != nil {
		query += ` AND confidence >= ?`
		args = append(args, *filter.MinConfidence)
	}
	if filter.MaxConfidence != nil {
		query += ` AND confidence <= ?`
		args = append(args, *filter.MaxConfidence)
	}
	if filter.Locked != nil {
		query += ` AND locked = ?`
		args = append(args, boolToInt(*filter.Locked))
	}
	query += ` ORDER BY ticket_key`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query records")
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByTier:              make(map[string]int),
		AvgConfidenceByTier: make(map[string]float64),
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT count(*),
		        coalesce(sum(is_current), 0),
		        coalesce(sum(CASE WHEN is_current = 1 AND locked = 1 THEN 1 ELSE 0 END), 0)
		 FROM geocode_records`,
	).Scan(&stats.TotalVersions, &stats.TotalCurrent, &stats.LockedCount)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats totals")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT quality_tier, count(*), avg(confidence)
		 FROM geocode_records WHERE is_current = 1 GROUP BY quality_tier`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by tier")
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		var count int
		var avg sql.NullFloat64
		if err := rows.Scan(&tier, &count, &avg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tier stats")
		}
		stats.ByTier[tier] = count
		if avg.Valid {
			stats.AvgConfidenceByTier[tier] = avg.Float64
		}
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: stats iterate")
}

func (s *SQLiteStore) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM geocode_records`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func marshalSideData(rec *model.GeocodeRecord) (flagsJSON, metaJSON any, err error) {
	if len(rec.ValidationFlags) > 0 {
		b, err := json.Marshal(rec.ValidationFlags)
		if err != nil {
			return nil, nil, eris.Wrap(err, "marshal validation flags")
		}
		flagsJSON = string(b)
	}
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, nil, eris.Wrap(err, "marshal metadata")
		}
		metaJSON = string(b)
	}
	return flagsJSON, metaJSON, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.GeocodeRecord, error) {
	var rec model.GeocodeRecord
	var lat, lon, confidence sql.NullFloat64
	var flagsJSON, metaJSON sql.NullString
	var supersedesID sql.NullInt64
	var lockedAt sql.NullTime
	var tier, priority string

	err := row.Scan(
		&rec.ID, &rec.TicketKey, &rec.RecordKey, &rec.Street, &rec.Intersection,
		&rec.City, &rec.County, &rec.TicketType, &rec.Duration, &rec.WorkType,
		&rec.Excavator, &lat, &lon, &rec.Technique, &rec.Approach, &confidence,
		&rec.Rationale, &rec.ErrorMessage, &tier, &priority, &flagsJSON,
		&rec.Version, &supersedesID, &rec.IsCurrent, &rec.CreatedAt,
		&rec.CreatedByStage, &rec.Locked, &rec.LockReason, &lockedAt,
		&rec.LockedBy, &metaJSON, &rec.ProcessingMS,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lon.Valid {
		rec.Coordinates = &model.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if confidence.Valid {
		rec.Confidence = &confidence.Float64
	}
	if supersedesID.Valid {
		rec.SupersedesID = &supersedesID.Int64
	}
	if lockedAt.Valid {
		rec.LockedAt = &lockedAt.Time
	}
	if rec.QualityTier, err = model.ParseTier(tier); err != nil {
		return nil, err
	}
	if rec.ReviewPriority, err = model.ParsePriority(priority); err != nil {
		return nil, err
	}
	if flagsJSON.Valid {
		if err := json.Unmarshal([]byte(flagsJSON.String), &rec.ValidationFlags); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal validation flags")
		}
	}
	if metaJSON.Valid {
		if err := json.Unmarshal([]byte(metaJSON.String), &rec.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal metadata")
		}
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]model.GeocodeRecord, error) {
	var records []model.GeocodeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scan record")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "iterate records")
}
