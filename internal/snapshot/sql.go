package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	driver      string
	placeholder func(n int) string
	dataType    string
}

var (
	sqliteDialect = dialect{
		driver:      "sqlite3",
		placeholder: func(int) string { return "?" },
		dataType:    "TEXT",
	}
	postgresDialect = dialect{
		driver:      "postgres",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		dataType:    "JSONB",
	}
)

// SQLStore mirrors collections into a single table.
//
// Table:
//
//	snapshot_records(entity_type, id, position, data)  PRIMARY KEY (entity_type, id)
//
// position keeps insertion order across reloads.
type SQLStore struct {
	mu sync.Mutex
	db *sql.DB
	d  dialect
}

// NewSQLite opens (or creates) a SQLite snapshot database.
func NewSQLite(dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open(sqliteDialect.driver, dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return newSQLStore(db, sqliteDialect)
}

// NewPostgres connects to PostgreSQL using a lib/pq connection string.
func NewPostgres(dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres snapshot requires a DSN")
	}
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return newSQLStore(db, postgresDialect)
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	if _, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS snapshot_records (
		entity_type TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		data %s NOT NULL,
		PRIMARY KEY (entity_type, id)
	)`, d.dataType)); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db, d: d}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// SaveCollection replaces every stored row of entityType in one transaction.
func (s *SQLStore) SaveCollection(entityType string, records []engine.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM snapshot_records WHERE entity_type = "+s.d.placeholder(1),
		entityType,
	); err != nil {
		return fmt.Errorf("failed to clear %s: %w", entityType, err)
	}

	stmt, err := tx.Prepare(fmt.Sprintf(
		"INSERT INTO snapshot_records (entity_type, id, position, data) VALUES (%s, %s, %s, %s)",
		s.d.placeholder(1), s.d.placeholder(2), s.d.placeholder(3), s.d.placeholder(4),
	))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode %s/%s: %w", entityType, r.ID(), err)
		}
		if _, err := stmt.Exec(entityType, r.ID(), i, string(b)); err != nil {
			return fmt.Errorf("failed to insert %s/%s: %w", entityType, r.ID(), err)
		}
	}
	return tx.Commit()
}

// LoadAll returns every mirrored collection in insertion order.
func (s *SQLStore) LoadAll() (map[string][]engine.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT entity_type, data FROM snapshot_records ORDER BY entity_type, position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]engine.Record)
	for rows.Next() {
		var entityType, raw string
		if err := rows.Scan(&entityType, &raw); err != nil {
			return nil, err
		}
		var rec engine.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out[entityType] = append(out[entityType], rec)
	}
	return out, rows.Err()
}
