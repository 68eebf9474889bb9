package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"meterbridge/internal/models"
)

type ReadingLogSQLite struct {
	db *sql.DB
}

func NewReadingLogSQLite(db *sql.DB) *ReadingLogSQLite {
	return &ReadingLogSQLite{db: db}
}

var _ ReadingLogRepo = (*ReadingLogSQLite)(nil)

const insertReadingSQL = `
	INSERT INTO readings_log (id, meter_id, serial_number, energy_total, signal, reading_at, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

// Append inserts one reading record. RecordID and RecordedAt are filled
// when empty.
func (r *ReadingLogSQLite) Append(ctx context.Context, rec models.ReadingRecord) error {
	if rec.RecordID == "" {
		rec.RecordID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	} else {
		rec.RecordedAt = rec.RecordedAt.UTC()
	}

	_, err := r.db.ExecContext(ctx, insertReadingSQL,
		rec.RecordID,
		rec.MeterID,
		rec.SerialNumber,
		rec.EnergyTotal,
		rec.Signal,
		rec.ReadingAt.UTC(),
		rec.RecordedAt,
	)
	return err
}

// List returns records filtered by [from, to] (inclusive) and/or meter ID,
// ordered by reading time ascending.
func (r *ReadingLogSQLite) List(ctx context.Context, from, to time.Time, meterID int64) ([]models.ReadingRecord, error) {
	var (
		conds []string
		args  []any
	)

	if !from.IsZero() {
		conds = append(conds, "reading_at >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		conds = append(conds, "reading_at <= ?")
		args = append(args, to.UTC())
	}
	if meterID != 0 {
		conds = append(conds, "meter_id = ?")
		args = append(args, meterID)
	}

	q := `SELECT id, meter_id, serial_number, energy_total, signal, reading_at, recorded_at FROM readings_log`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY reading_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.ReadingRecord, 0, 64)
	for rows.Next() {
		var rec models.ReadingRecord
		if err := rows.Scan(
			&rec.RecordID,
			&rec.MeterID,
			&rec.SerialNumber,
			&rec.EnergyTotal,
			&rec.Signal,
			&rec.ReadingAt,
			&rec.RecordedAt,
		); err != nil {
			return nil, err
		}
		rec.ReadingAt = rec.ReadingAt.UTC()
		rec.RecordedAt = rec.RecordedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
