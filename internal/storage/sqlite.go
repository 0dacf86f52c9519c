package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// StoredReport is a report row read back from the SQLite archive.
type StoredReport struct {
	ID           int64
	MessageID    int64
	ReceivedAt   time.Time
	Source       string
	Parser       string
	Station      string
	Category     string
	VisibilitySM decimal.Decimal
	CeilingFt    int
	TemperatureC int
	DewpointC    *int
	Altimeter    decimal.Decimal
	Clouds       string
	Missing      []string
	RawText      string
	ReportJSON   string
}

// SQLiteDB wraps a SQLite database connection for the local report archive.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL DEFAULT 0,
		received_at TEXT NOT NULL,
		source TEXT,
		parser TEXT NOT NULL,
		station TEXT NOT NULL,
		flight_category TEXT NOT NULL,
		visibility_sm TEXT NOT NULL,
		visibility_modifier TEXT,
		ceiling_ft INTEGER NOT NULL,
		wind_dir_deg INTEGER,
		wind_variable INTEGER DEFAULT 0,
		wind_speed_kt INTEGER,
		wind_gust_kt INTEGER,
		temperature_c INTEGER NOT NULL,
		dewpoint_c INTEGER,
		altimeter_inhg TEXT NOT NULL,
		clouds TEXT,
		missing_fields TEXT,
		raw_text TEXT NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_station ON reports(station);
	CREATE INDEX IF NOT EXISTS idx_reports_category ON reports(flight_category);
	CREATE INDEX IF NOT EXISTS idx_reports_received ON reports(received_at);

	-- FTS5 virtual table for full-text search on raw report text.
	CREATE VIRTUAL TABLE IF NOT EXISTS reports_fts USING fts5(
		raw_text,
		content='reports',
		content_rowid='id'
	);

	-- Triggers to keep FTS index in sync.
	CREATE TRIGGER IF NOT EXISTS reports_ai AFTER INSERT ON reports BEGIN
		INSERT INTO reports_fts(rowid, raw_text) VALUES (new.id, new.raw_text);
	END;

	CREATE TRIGGER IF NOT EXISTS reports_ad AFTER DELETE ON reports BEGIN
		INSERT INTO reports_fts(reports_fts, rowid, raw_text) VALUES('delete', old.id, old.raw_text);
	END;
	`

	_, err := db.Exec(schema)
	return err
}

// Insert stores a report in the archive and returns its row ID.
func (d *SQLiteDB) Insert(ctx context.Context, rec Record) (int64, error) {
	reportJSON, err := rec.ReportJSON()
	if err != nil {
		return 0, err
	}

	variable := 0
	if rec.WindVariable {
		variable = 1
	}

	result, err := d.db.ExecContext(ctx, `
		INSERT INTO reports (message_id, received_at, source, parser, station, flight_category,
			visibility_sm, visibility_modifier, ceiling_ft, wind_dir_deg, wind_variable, wind_speed_kt,
			wind_gust_kt, temperature_c, dewpoint_c, altimeter_inhg, clouds, missing_fields, raw_text, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.MessageID, rec.ReceivedAt.UTC().Format(time.RFC3339Nano), rec.Source, rec.Parser, rec.Station, rec.Category,
		rec.VisibilitySM.String(), rec.VisibilityModifier, rec.CeilingFt, rec.WindDirDeg, variable, rec.WindSpeedKt,
		rec.WindGustKt, rec.TemperatureC, rec.DewpointC, rec.AltimeterInHg.StringFixed(2), rec.Clouds,
		strings.Join(rec.Missing, ","), rec.RawText, string(reportJSON))
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}

	return result.LastInsertId()
}

// Save implements Store.
func (d *SQLiteDB) Save(ctx context.Context, rec Record) error {
	_, err := d.Insert(ctx, rec)
	return err
}

// QueryParams contains filtering options for querying the archive.
type QueryParams struct {
	ID           int64  // Filter by row ID.
	Station      string // Filter by station (exact match).
	Category     string // Filter by flight category (exact match).
	MissingField string // Filter by a specific missing field (LIKE match).
	HasMissing   bool   // Only reports with any defaulted field.
	FullText     string // FTS5 full-text search on raw_text.
	Since        time.Time
	Limit        int // Max results (default 100).
	Offset       int
	OrderDesc    bool // Newest first.
}

const reportColumns = `r.id, r.message_id, r.received_at, r.source, r.parser, r.station, r.flight_category,
	r.visibility_sm, r.ceiling_ft, r.temperature_c, r.dewpoint_c, r.altimeter_inhg, r.clouds,
	r.missing_fields, r.raw_text, r.report_json`

// Query retrieves reports matching the given parameters.
func (d *SQLiteDB) Query(ctx context.Context, p QueryParams) ([]StoredReport, error) {
	var conditions []string
	var args []interface{}

	if p.ID != 0 {
		conditions = append(conditions, "r.id = ?")
		args = append(args, p.ID)
	}
	if p.Station != "" {
		conditions = append(conditions, "r.station = ?")
		args = append(args, strings.ToUpper(p.Station))
	}
	if p.Category != "" {
		conditions = append(conditions, "r.flight_category = ?")
		args = append(args, p.Category)
	}
	if p.MissingField != "" {
		conditions = append(conditions, "r.missing_fields LIKE ?")
		args = append(args, "%"+p.MissingField+"%")
	}
	if p.HasMissing {
		conditions = append(conditions, "r.missing_fields != '' AND r.missing_fields IS NOT NULL")
	}
	if !p.Since.IsZero() {
		conditions = append(conditions, "r.received_at >= ?")
		args = append(args, p.Since.UTC().Format(time.RFC3339Nano))
	}

	// FTS5 search requires a JOIN with the FTS table.
	query := "SELECT " + reportColumns + " FROM reports r"
	if p.FullText != "" {
		query += " JOIN reports_fts fts ON r.id = fts.rowid"
		conditions = append([]string{"reports_fts MATCH ?"}, conditions...)
		args = append([]interface{}{p.FullText}, args...)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	direction := "ASC"
	if p.OrderDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY r.id %s", direction)

	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, p.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reports []StoredReport
	for rows.Next() {
		r, err := scanStoredReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}

	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStoredReport(row rowScanner) (StoredReport, error) {
	var r StoredReport
	var receivedAt, vis, alt string
	var source, clouds, missing sql.NullString
	var dew sql.NullInt64

	err := row.Scan(&r.ID, &r.MessageID, &receivedAt, &source, &r.Parser, &r.Station, &r.Category,
		&vis, &r.CeilingFt, &r.TemperatureC, &dew, &alt, &clouds, &missing, &r.RawText, &r.ReportJSON)
	if err != nil {
		return r, fmt.Errorf("scan row: %w", err)
	}

	r.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
	r.VisibilitySM, _ = decimal.NewFromString(vis)
	r.Altimeter, _ = decimal.NewFromString(alt)
	r.Source = source.String
	r.Clouds = clouds.String
	if dew.Valid {
		v := int(dew.Int64)
		r.DewpointC = &v
	}
	if missing.String != "" {
		r.Missing = strings.Split(missing.String, ",")
	}
	return r, nil
}

// GetByID retrieves a single report by row ID.
func (d *SQLiteDB) GetByID(ctx context.Context, id int64) (*StoredReport, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+reportColumns+" FROM reports r WHERE r.id = ?", id)
	r, err := scanStoredReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Stats returns aggregate statistics about archived reports.
type Stats struct {
	TotalReports     int
	ByCategory       map[string]int
	ByStation        map[string]int
	WithMissing      int
	TopMissingFields map[string]int
}

// GetStats returns statistics about the archived reports.
func (d *SQLiteDB) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByCategory:       make(map[string]int),
		ByStation:        make(map[string]int),
		TopMissingFields: make(map[string]int),
	}

	row := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports")
	if err := row.Scan(&stats.TotalReports); err != nil {
		return nil, err
	}

	if err := d.countInto(ctx, stats.ByCategory,
		"SELECT flight_category, COUNT(*) FROM reports GROUP BY flight_category"); err != nil {
		return nil, err
	}
	if err := d.countInto(ctx, stats.ByStation,
		"SELECT station, COUNT(*) FROM reports GROUP BY station ORDER BY COUNT(*) DESC LIMIT 20"); err != nil {
		return nil, err
	}

	row = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports WHERE missing_fields != '' AND missing_fields IS NOT NULL")
	if err := row.Scan(&stats.WithMissing); err != nil {
		return nil, err
	}

	// Top missing fields - requires splitting the comma-separated values.
	rows, err := d.db.QueryContext(ctx, "SELECT missing_fields FROM reports WHERE missing_fields != '' AND missing_fields IS NOT NULL")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var fields string
		if err := rows.Scan(&fields); err != nil {
			return nil, err
		}
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				stats.TopMissingFields[f]++
			}
		}
	}

	return stats, rows.Err()
}

func (d *SQLiteDB) countInto(ctx context.Context, dst map[string]int, query string) error {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		dst[key] = count
	}
	return rows.Err()
}
