package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/busyness-collector/internal/types"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage keeps every run, newest last.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		exit_code INTEGER NOT NULL,
		total_locations INTEGER NOT NULL,
		successful_scrapes INTEGER NOT NULL,
		data TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Save(run *types.Run) error {
	if run.Report == nil {
		return errors.New("run has no report")
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO runs (id, started_at, finished_at, exit_code, total_locations, successful_scrapes, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.FinishedAt, run.ExitCode,
		run.Report.TotalLocations, run.Report.SuccessfulScrapes, string(data))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) Load() (*types.Run, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM runs ORDER BY seq DESC LIMIT 1").Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query run: %w", err)
	}

	return decodeRun(data)
}

// History returns up to limit runs, newest first.
func (s *SQLiteStorage) History(limit int) ([]*types.Run, error) {
	rows, err := s.db.Query("SELECT data FROM runs ORDER BY seq DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.Run
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func decodeRun(data string) (*types.Run, error) {
	var run types.Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return &run, nil
}
