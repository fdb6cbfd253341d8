// Package store persists committed violation records to SQLite for audit.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/traffic-violations-mcp/internal/imaging"
	"github.com/ironsheep/traffic-violations-mcp/internal/violation"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is an append-only audit log of violation records.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA synchronous=NORMAL;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragmas: %w", err)
		}
	}

	log = log.With().Str("component", "store").Str("path", path).Logger()
	if err := migrateUp(db, log); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion() (uint, error) {
	version, dirty, err := schemaVersion(s.db, s.log)
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// SaveRecords appends records for a session in one transaction, after any
// records already stored for it.
func (s *Store) SaveRecords(ctx context.Context, sessionID uuid.UUID, records []violation.Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM violation_records WHERE session_id = ?`,
		sessionID.String(),
	).Scan(&seq); err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO violation_records (
			id, session_id, seq, filename, vehicle_type, location,
			violations, fine_amount, recorded_at,
			box_x1, box_y1, box_x2, box_y2,
			helmet_status, plate_status, plate_number, passenger_count, confidence,
			source, synthetic
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		seq++
		r := rec.Rider
		if _, err := stmt.ExecContext(ctx,
			rec.ID.String(), sessionID.String(), seq, rec.Filename, rec.VehicleType, rec.Location,
			rec.Tags.Join("; "), rec.Fine, rec.Timestamp.UTC().Format(time.RFC3339Nano),
			r.Box.X1, r.Box.Y1, r.Box.X2, r.Box.Y2,
			r.Helmet.String(), r.Plate.String(), r.PlateNumber, r.PassengerCount, r.Confidence,
			rec.Source, rec.Synthetic,
		); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.log.Debug().Str("session_id", sessionID.String()).Int("records", len(records)).Msg("records saved")
	return nil
}

// ListRecords returns the stored records of a session in append order.
func (s *Store) ListRecords(ctx context.Context, sessionID uuid.UUID) ([]violation.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, vehicle_type, location, violations, fine_amount, recorded_at,
			box_x1, box_y1, box_x2, box_y2,
			helmet_status, plate_status, plate_number, passenger_count, confidence,
			source, synthetic
		FROM violation_records
		WHERE session_id = ?
		ORDER BY seq`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []violation.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SessionTotals returns the stored record count and fine sum of a session.
func (s *Store) SessionTotals(ctx context.Context, sessionID uuid.UUID) (count, fines int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(fine_amount), 0) FROM violation_records WHERE session_id = ?`,
		sessionID.String(),
	).Scan(&count, &fines)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query totals: %w", err)
	}
	return count, fines, nil
}

func scanRecord(rows *sql.Rows) (violation.Record, error) {
	var (
		rec           violation.Record
		id, tags, ts  string
		helmet, plate string
		box           imaging.Box
	)
	if err := rows.Scan(
		&id, &rec.Filename, &rec.VehicleType, &rec.Location, &tags, &rec.Fine, &ts,
		&box.X1, &box.Y1, &box.X2, &box.Y2,
		&helmet, &plate, &rec.Rider.PlateNumber, &rec.Rider.PassengerCount, &rec.Rider.Confidence,
		&rec.Source, &rec.Synthetic,
	); err != nil {
		return violation.Record{}, fmt.Errorf("failed to scan record: %w", err)
	}

	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return violation.Record{}, fmt.Errorf("bad record id %q: %w", id, err)
	}
	if rec.Tags, err = violation.ParseTagList(tags); err != nil {
		return violation.Record{}, fmt.Errorf("record %s: %w", id, err)
	}
	if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return violation.Record{}, fmt.Errorf("record %s: bad timestamp: %w", id, err)
	}
	rec.Rider.Box = box
	if err := errors.Join(
		rec.Rider.Helmet.UnmarshalText([]byte(helmet)),
		rec.Rider.Plate.UnmarshalText([]byte(plate)),
	); err != nil {
		return violation.Record{}, fmt.Errorf("record %s: %w", id, err)
	}
	return rec, nil
}
