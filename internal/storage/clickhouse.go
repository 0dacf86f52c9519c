package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB wraps a ClickHouse connection for report history.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// chVisibilityScale is the number of fractional digits kept for visibility.
// Sixteenths of a mile need four.
const chVisibilityScale = 4

const chCreateReports = `CREATE TABLE IF NOT EXISTS reports (
		message_id          UInt64,
		received_at         DateTime64(3),
		source              LowCardinality(String),
		parser              LowCardinality(String),
		station             LowCardinality(String),
		flight_category     LowCardinality(String),
		visibility_sm       Decimal(8, 4),
		visibility_modifier LowCardinality(String),
		ceiling_ft          UInt32,
		wind_dir_deg        Nullable(Int16),
		wind_variable       Bool,
		wind_speed_kt       Nullable(Int16),
		wind_gust_kt        Nullable(Int16),
		temperature_c       Int16,
		dewpoint_c          Nullable(Int16),
		altimeter_inhg      Decimal(5, 2),
		clouds              String,
		missing_fields      String,
		raw_text            String
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(received_at)
	ORDER BY (station, received_at, message_id)
	SETTINGS index_granularity = 8192`

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	err := d.conn.Exec(ctx, chCreateReports)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// Add bloom filter index for raw text search (ignore error if already exists).
	_ = d.conn.Exec(ctx, `ALTER TABLE reports ADD INDEX IF NOT EXISTS idx_raw_text_bloom raw_text TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 1`)

	return nil
}

const chInsertReports = `INSERT INTO reports (message_id, received_at, source, parser, station, flight_category,
	visibility_sm, visibility_modifier, ceiling_ft, wind_dir_deg, wind_variable, wind_speed_kt, wind_gust_kt,
	temperature_c, dewpoint_c, altimeter_inhg, clouds, missing_fields, raw_text)`

// chRow converts a record to column values in insert order.
func chRow(rec Record) []any {
	return []any{
		uint64(rec.MessageID),
		rec.ReceivedAt,
		rec.Source,
		rec.Parser,
		rec.Station,
		rec.Category,
		rec.VisibilitySM.Round(chVisibilityScale),
		rec.VisibilityModifier,
		uint32(rec.CeilingFt),
		int16Ptr(rec.WindDirDeg),
		rec.WindVariable,
		int16Ptr(rec.WindSpeedKt),
		int16Ptr(rec.WindGustKt),
		int16(rec.TemperatureC),
		int16Ptr(rec.DewpointC),
		rec.AltimeterInHg,
		rec.Clouds,
		strings.Join(rec.Missing, ","),
		rec.RawText,
	}
}

func int16Ptr(v *int) *int16 {
	if v == nil {
		return nil
	}
	n := int16(*v)
	return &n
}

// Insert stores a single report in ClickHouse.
func (d *ClickHouseDB) Insert(ctx context.Context, rec Record) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", 19), ", ")
	if err := d.conn.Exec(ctx, chInsertReports+" VALUES ("+placeholders+")", chRow(rec)...); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// InsertBatch stores multiple reports in ClickHouse efficiently.
func (d *ClickHouseDB) InsertBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, chInsertReports)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, rec := range recs {
		if err := batch.Append(chRow(rec)...); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// Save implements Store.
func (d *ClickHouseDB) Save(ctx context.Context, rec Record) error {
	return d.Insert(ctx, rec)
}

// CategoryCounts returns report counts per flight category received since the
// given time, optionally limited to one station.
func (d *ClickHouseDB) CategoryCounts(ctx context.Context, station string, since time.Time) (map[string]uint64, error) {
	query := "SELECT flight_category, count() FROM reports WHERE received_at >= ?"
	args := []any{since}
	if station != "" {
		query += " AND station = ?"
		args = append(args, strings.ToUpper(station))
	}
	query += " GROUP BY flight_category"

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var category string
		var count uint64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan category counts: %w", err)
		}
		counts[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category counts: %w", err)
	}
	return counts, nil
}
