package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/temoa-dev/temoa/internal/logging"
)

// DBFileName is the telemetry database file under the state directory.
const DBFileName = "telemetry.db"

// zeroResultKeep bounds the persisted zero-result history.
const zeroResultKeep = 100

// DefaultDBPath returns where telemetry persists when no explicit path
// is configured. It lives next to the server log.
func DefaultDBPath() string {
	return filepath.Join(logging.DefaultLogDir(), DBFileName)
}

// Store persists daily telemetry aggregates in a sqlite database it
// owns. Flush writes deltas, so counts accumulate correctly across
// flushes and restarts.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (or creates) the telemetry database. An empty path
// uses DefaultDBPath.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening telemetry database: %w", err)
	}

	// Single connection; the collector flushes from one goroutine and
	// readers are rare.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Pragmas via Exec; DSN parameters may be ignored by the driver.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_modes (
		day TEXT NOT NULL,
		key TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (day, key)
	);

	CREATE TABLE IF NOT EXISTS query_profiles (
		day TEXT NOT NULL,
		key TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (day, key)
	);

	CREATE TABLE IF NOT EXISTS query_latency (
		day TEXT NOT NULL,
		key TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (day, key)
	);

	CREATE TABLE IF NOT EXISTS query_terms (
		term TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0,
		last_seen TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		seen_at TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating telemetry schema: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// AddModeCounts adds per-mode deltas for the given day (YYYY-MM-DD).
func (s *Store) AddModeCounts(day string, counts map[string]int64) error {
	return s.addDayCounts("query_modes", day, counts)
}

// AddProfileCounts adds per-profile deltas for the given day.
func (s *Store) AddProfileCounts(day string, counts map[string]int64) error {
	return s.addDayCounts("query_profiles", day, counts)
}

// AddLatencyCounts adds per-bucket deltas for the given day.
func (s *Store) AddLatencyCounts(day string, counts map[string]int64) error {
	return s.addDayCounts("query_latency", day, counts)
}

// addDayCounts upserts deltas into one of the (day, key) tables. The
// table name is a fixed constant from the callers above, never input.
func (s *Store) addDayCounts(table, day string, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (day, key, count)
		VALUES (?, ?, ?)
		ON CONFLICT(day, key) DO UPDATE SET count = count + excluded.count
	`, table))
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, count := range counts {
		if _, err := stmt.Exec(day, key, count); err != nil {
			return fmt.Errorf("upsert %s count: %w", table, err)
		}
	}
	return tx.Commit()
}

// ModeCounts sums per-mode counts over a day range, inclusive.
func (s *Store) ModeCounts(from, to string) (map[string]int64, error) {
	return s.dayCounts("query_modes", from, to)
}

// ProfileCounts sums per-profile counts over a day range, inclusive.
func (s *Store) ProfileCounts(from, to string) (map[string]int64, error) {
	return s.dayCounts("query_profiles", from, to)
}

// LatencyCounts sums per-bucket counts over a day range, inclusive.
func (s *Store) LatencyCounts(from, to string) (map[string]int64, error) {
	return s.dayCounts("query_latency", from, to)
}

func (s *Store) dayCounts(table, from, to string) (map[string]int64, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT key, SUM(count)
		FROM %s
		WHERE day >= ? AND day <= ?
		GROUP BY key
	`, table), from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// AddTermCounts adds term frequency deltas and refreshes last_seen.
func (s *Store) AddTermCounts(terms map[string]int64, seen time.Time) error {
	if len(terms) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	seenAt := formatTime(seen)
	for term, count := range terms {
		if _, err := stmt.Exec(term, count, seenAt); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}
	return tx.Commit()
}

// TopTerms returns the most frequent terms, highest count first.
func (s *Store) TopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`
		SELECT term, count
		FROM query_terms
		ORDER BY count DESC, term ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan term row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// AddZeroResults appends zero-result queries and trims the history to
// the most recent zeroResultKeep entries.
func (s *Store) AddZeroResults(queries []string, seen time.Time) error {
	if len(queries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO zero_result_queries (query, seen_at) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	seenAt := formatTime(seen)
	for _, q := range queries {
		if _, err := stmt.Exec(q, seenAt); err != nil {
			return fmt.Errorf("insert zero-result query: %w", err)
		}
	}

	_, err = tx.Exec(`
		DELETE FROM zero_result_queries
		WHERE id NOT IN (
			SELECT id FROM zero_result_queries
			ORDER BY id DESC
			LIMIT ?
		)
	`, zeroResultKeep)
	if err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return tx.Commit()
}

// RecentZeroResults returns the latest zero-result queries, newest
// first.
func (s *Store) RecentZeroResults(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT query
		FROM zero_result_queries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan zero-result row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// Prune deletes aggregates older than the cutoff, honoring the
// configured retention window.
func (s *Store) Prune(olderThan time.Time) error {
	day := olderThan.UTC().Format("2006-01-02")
	for _, table := range []string{"query_modes", "query_profiles", "query_latency"} {
		if _, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE day < ?`, table), day); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}
	cutoff := formatTime(olderThan)
	if _, err := s.db.Exec(`DELETE FROM query_terms WHERE last_seen < ?`, cutoff); err != nil {
		return fmt.Errorf("prune query_terms: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM zero_result_queries WHERE seen_at < ?`, cutoff); err != nil {
		return fmt.Errorf("prune zero_result_queries: %w", err)
	}
	return nil
}

// formatTime renders timestamps as fixed-width UTC RFC 3339 text so
// string comparison in SQL matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Close closes the owned database.
func (s *Store) Close() error {
	return s.db.Close()
}
