package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// HistoryManager persists REPL command history to a SQLite database. Each
// record carries the session id, the source line, and the exit code the
// interpreter returned for it.
type HistoryManager struct {
	db     *sql.DB
	dbLock sync.Mutex
}

// NewHistoryManager opens (or creates) the history database. An empty path
// defaults to ~/.bish_history.db.
func NewHistoryManager(customPath string) (*HistoryManager, error) {
	filePath := customPath
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		filePath = filepath.Join(home, ".bish_history.db")
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for history database: %v", err)
	}
	db, err := sql.Open("sqlite3", filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %v", err)
	}
	hm := &HistoryManager{db: db}
	if err := hm.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history database: %v", err)
	}
	return hm, nil
}

func (hm *HistoryManager) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY,
		session TEXT NOT NULL,
		line TEXT NOT NULL,
		exit_code INTEGER DEFAULT 0,
		ran_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_history_session ON history(session);
	`
	_, err := hm.db.Exec(schema)
	return err
}

// Record stores one executed line.
func (hm *HistoryManager) Record(session, line string, exitCode int) error {
	hm.dbLock.Lock()
	defer hm.dbLock.Unlock()
	_, err := hm.db.Exec(
		"INSERT INTO history (session, line, exit_code, ran_at) VALUES (?, ?, ?, ?)",
		session, line, exitCode, time.Now(),
	)
	return err
}

// Recent returns the latest n lines, oldest first.
func (hm *HistoryManager) Recent(n int) ([]string, error) {
	hm.dbLock.Lock()
	defer hm.dbLock.Unlock()
	rows, err := hm.db.Query(
		"SELECT line FROM (SELECT id, line FROM history ORDER BY id DESC LIMIT ?) ORDER BY id ASC", n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Close releases the database.
func (hm *HistoryManager) Close() error {
	return hm.db.Close()
}
