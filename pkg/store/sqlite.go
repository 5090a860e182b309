package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/obseract/sciencebox/pkg/modbus"
	"github.com/obseract/sciencebox/pkg/record"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session      TEXT    NOT NULL,
	received_at  INTEGER NOT NULL,
	time_ms      INTEGER NOT NULL,
	site         INTEGER NOT NULL,
	sensor       TEXT    NOT NULL,
	value        REAL,
	unit         TEXT    NOT NULL,
	temp_c       REAL    NOT NULL,
	hum_pct      REAL    NOT NULL,
	press_hpa    REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_sensor ON records(session, sensor, time_ms);

CREATE TABLE IF NOT EXISTS soil (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session      TEXT    NOT NULL,
	received_at  INTEGER NOT NULL,
	site         INTEGER NOT NULL,
	valid        INTEGER NOT NULL,
	moisture     REAL,
	temperature  REAL,
	ec           REAL,
	ph           REAL,
	nitrogen     INTEGER,
	phosphorus   INTEGER,
	potassium    INTEGER
);
`

// DB persists log records in SQLite.
type DB struct {
	db      *sql.DB
	session string
}

// Open opens (creating if needed) the database at path and tags every row
// written through it with session.
func Open(ctx context.Context, path, session string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &DB{db: db, session: session}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Session returns the session tag.
func (d *DB) Session() string {
	return d.session
}

// InsertRecord stores one record. Failed polls are stored with a NULL value.
func (d *DB) InsertRecord(ctx context.Context, r record.Record, receivedAt time.Time) error {
	var value sql.NullFloat64
	if r.Valid {
		value = sql.NullFloat64{Float64: r.Value, Valid: true}
	}

	_, err := d.db.ExecContext(ctx, `
INSERT INTO records (session, received_at, time_ms, site, sensor, value, unit, temp_c, hum_pct, press_hpa)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.session, receivedAt.UnixMilli(), int64(r.TimeMs), r.Site, r.Sensor, value, r.Unit,
		r.Env.TempC, r.Env.HumidityPct, r.Env.PressureHPa)
	if err != nil {
		return fmt.Errorf("failed to insert record %s: %w", r.Sensor, err)
	}
	return nil
}

// InsertSoil stores one soil reading.
func (d *DB) InsertSoil(ctx context.Context, site int, r modbus.SoilReading, receivedAt time.Time) error {
	_, err := d.db.ExecContext(ctx, `
INSERT INTO soil (session, received_at, site, valid, moisture, temperature, ec, ph, nitrogen, phosphorus, potassium)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.session, receivedAt.UnixMilli(), site, r.Valid, r.Moisture, r.Temperature, r.Conductivity, r.PH,
		int64(r.Nitrogen), int64(r.Phosphorus), int64(r.Potassium))
	if err != nil {
		return fmt.Errorf("failed to insert soil reading: %w", err)
	}
	return nil
}

// Latest returns the newest record per sensor for this session.
func (d *DB) Latest(ctx context.Context) ([]record.Record, error) {
	rows, err := d.db.QueryContext(ctx, `
SELECT r.time_ms, r.site, r.sensor, r.value, r.unit, r.temp_c, r.hum_pct, r.press_hpa
FROM records r
JOIN (SELECT sensor, MAX(id) AS id FROM records WHERE session = ? GROUP BY sensor) m ON m.id = r.id
ORDER BY r.sensor`, d.session)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest records: %w", err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var (
			r      record.Record
			timeMs int64
			value  sql.NullFloat64
		)
		if err := rows.Scan(&timeMs, &r.Site, &r.Sensor, &value, &r.Unit,
			&r.Env.TempC, &r.Env.HumidityPct, &r.Env.PressureHPa); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.TimeMs = uint64(timeMs)
		r.Value = value.Float64
		r.Valid = value.Valid
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of records stored for sensor in this session.
func (d *DB) Count(ctx context.Context, sensor string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE session = ? AND sensor = ?`, d.session, sensor).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}
