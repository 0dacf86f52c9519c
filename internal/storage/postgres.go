package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"metar_parser/internal/metar"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB wraps a PostgreSQL connection pool for current station conditions.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS station_conditions (
		station          TEXT PRIMARY KEY,
		flight_category  TEXT NOT NULL,
		visibility_sm    DOUBLE PRECISION NOT NULL,
		ceiling_ft       INTEGER NOT NULL,
		temperature_c    INTEGER NOT NULL,
		dewpoint_c       INTEGER,
		altimeter_inhg   DOUBLE PRECISION NOT NULL,
		missing_fields   TEXT[] NOT NULL DEFAULT '{}',
		raw_text         TEXT NOT NULL,
		report           JSONB NOT NULL,
		source           TEXT,
		message_id       BIGINT,
		observed_at      TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_station_conditions_category ON station_conditions(flight_category);
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Conditions is the latest decoded report for a station.
type Conditions struct {
	Station    string              `json:"station"`
	Category   string              `json:"flight_category"`
	CeilingFt  int                 `json:"ceiling_ft"`
	Missing    []string            `json:"missing,omitempty"`
	Report     metar.WeatherReport `json:"report"`
	Source     string              `json:"source,omitempty"`
	MessageID  int64               `json:"message_id,omitempty"`
	ObservedAt time.Time           `json:"observed_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// UpsertConditions replaces a station's current conditions. Records older
// than the stored observation are ignored. Reports without a station are
// never stored.
func (d *PostgresDB) UpsertConditions(ctx context.Context, rec Record) error {
	if rec.Station == "" || rec.Station == metar.UnknownStation {
		return nil
	}

	reportJSON, err := rec.ReportJSON()
	if err != nil {
		return err
	}

	missing := rec.Missing
	if missing == nil {
		missing = []string{}
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO station_conditions (station, flight_category, visibility_sm, ceiling_ft, temperature_c, dewpoint_c,
			altimeter_inhg, missing_fields, raw_text, report, source, message_id, observed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (station) DO UPDATE SET
			flight_category = EXCLUDED.flight_category,
			visibility_sm = EXCLUDED.visibility_sm,
			ceiling_ft = EXCLUDED.ceiling_ft,
			temperature_c = EXCLUDED.temperature_c,
			dewpoint_c = EXCLUDED.dewpoint_c,
			altimeter_inhg = EXCLUDED.altimeter_inhg,
			missing_fields = EXCLUDED.missing_fields,
			raw_text = EXCLUDED.raw_text,
			report = EXCLUDED.report,
			source = EXCLUDED.source,
			message_id = EXCLUDED.message_id,
			observed_at = EXCLUDED.observed_at,
			updated_at = NOW()
		WHERE station_conditions.observed_at <= EXCLUDED.observed_at
	`, rec.Station, rec.Category, rec.VisibilitySM.InexactFloat64(), rec.CeilingFt, rec.TemperatureC, rec.DewpointC,
		rec.AltimeterInHg.InexactFloat64(), missing, rec.RawText, reportJSON, rec.Source, rec.MessageID, rec.ReceivedAt)
	if err != nil {
		return fmt.Errorf("upsert conditions: %w", err)
	}
	return nil
}

// Save implements Store.
func (d *PostgresDB) Save(ctx context.Context, rec Record) error {
	return d.UpsertConditions(ctx, rec)
}

const conditionsColumns = `station, flight_category, ceiling_ft, missing_fields, report, source, message_id, observed_at, updated_at`

func scanConditions(row pgx.Row) (*Conditions, error) {
	var c Conditions
	var reportJSON []byte
	var source *string
	var messageID *int64

	err := row.Scan(&c.Station, &c.Category, &c.CeilingFt, &c.Missing, &reportJSON, &source, &messageID, &c.ObservedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(reportJSON, &c.Report); err != nil {
		return nil, fmt.Errorf("decode stored report: %w", err)
	}
	if source != nil {
		c.Source = *source
	}
	if messageID != nil {
		c.MessageID = *messageID
	}
	return &c, nil
}

// GetConditions retrieves the current conditions for a station.
// It returns ErrNotFound when the station has never reported.
func (d *PostgresDB) GetConditions(ctx context.Context, station string) (*Conditions, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+conditionsColumns+` FROM station_conditions WHERE station = $1`,
		strings.ToUpper(station))
	c, err := scanConditions(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conditions: %w", err)
	}
	return c, nil
}

// ListByCategory returns the stations whose current conditions fall in the
// given flight category, ordered by station.
func (d *PostgresDB) ListByCategory(ctx context.Context, category string) ([]Conditions, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+conditionsColumns+` FROM station_conditions
		WHERE flight_category = $1 ORDER BY station`, category)
	if err != nil {
		return nil, fmt.Errorf("list by category: %w", err)
	}
	defer rows.Close()

	var out []Conditions
	for rows.Next() {
		c, err := scanConditions(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conditions: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
