package uptimelog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

type Store struct {
	db *sql.DB
	// sqlite serialises writers; the mutex keeps concurrent sessions from
	// tripping SQLITE_BUSY.
	mu sync.Mutex
}

type DailyUptime struct {
	Address      string
	Day          string
	Cycles       int
	FailedCycles int
	Points       float64
	HasPoints    bool
	Rank         string
}

func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init() error {
	createStmt := `CREATE TABLE IF NOT EXISTS device_uptime (
        address TEXT NOT NULL,
        uptime_date TEXT NOT NULL,
        cycles INTEGER NOT NULL DEFAULT 0,
        failed_cycles INTEGER NOT NULL DEFAULT 0,
        points REAL,
        rank TEXT,
        updated_at TEXT,
        PRIMARY KEY(address, uptime_date)
    )`
	if _, err := s.db.Exec(createStmt); err != nil {
		return err
	}
	return s.ensureColumns()
}

func (s *Store) ensureColumns() error {
	columns := map[string]bool{}
	rows, err := s.db.Query(`PRAGMA table_info(device_uptime)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		columns[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	alterStatements := []string{}
	addColumn := func(name, definition string) {
		if !columns[name] {
			alterStatements = append(alterStatements, definition)
		}
	}

	addColumn("failed_cycles", `ALTER TABLE device_uptime ADD COLUMN failed_cycles INTEGER NOT NULL DEFAULT 0`)
	addColumn("points", `ALTER TABLE device_uptime ADD COLUMN points REAL`)
	addColumn("rank", `ALTER TABLE device_uptime ADD COLUMN rank TEXT`)
	addColumn("updated_at", `ALTER TABLE device_uptime ADD COLUMN updated_at TEXT`)

	for _, stmt := range alterStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordCycle counts one finished cycle for address on day.
func (s *Store) RecordCycle(address string, day time.Time, ok bool) error {
	addr := normalizeAddress(address)
	dateStr := day.UTC().Format(dateLayout)
	failed := 0
	if !ok {
		failed = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO device_uptime(address, uptime_date, cycles, failed_cycles, updated_at)
    VALUES(?, ?, 1, ?, ?)
    ON CONFLICT(address, uptime_date) DO UPDATE SET
        cycles = cycles + 1,
        failed_cycles = failed_cycles + excluded.failed_cycles,
        updated_at = excluded.updated_at`, addr, dateStr, failed, day.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) UpdateEarning(address string, day time.Time, points float64, rank string) error {
	addr := normalizeAddress(address)
	dateStr := day.UTC().Format(dateLayout)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO device_uptime(address, uptime_date, points, rank, updated_at)
    VALUES(?, ?, ?, ?, ?)
    ON CONFLICT(address, uptime_date) DO UPDATE SET points = excluded.points, rank = excluded.rank, updated_at = excluded.updated_at`,
		addr, dateStr, points, rank, day.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) DailyStatus(address string, day time.Time) (DailyUptime, error) {
	addr := normalizeAddress(address)
	dateStr := day.UTC().Format(dateLayout)
	out := DailyUptime{Address: addr, Day: dateStr}

	var points sql.NullFloat64
	var rank sql.NullString
	s.mu.Lock()
	err := s.db.QueryRow(`SELECT cycles, failed_cycles, points, rank FROM device_uptime WHERE address = ? AND uptime_date = ?`, addr, dateStr).
		Scan(&out.Cycles, &out.FailedCycles, &points, &rank)
	s.mu.Unlock()
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	if points.Valid {
		out.Points = points.Float64
		out.HasPoints = true
	}
	if rank.Valid {
		out.Rank = rank.String
	}
	return out, nil
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
