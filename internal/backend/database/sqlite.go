package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const resultColumns = "id, timestamp, device_code, egg_count, image_url, binary_image_url, annotated_image_url, bounding_boxes, created_at"

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers anyway; a single connection also keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase() (*sql.DB, error) {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL DEFAULT '',
		device_code TEXT NOT NULL DEFAULT '',
		egg_count INTEGER NOT NULL DEFAULT 0,
		image_url TEXT NOT NULL DEFAULT '',
		binary_image_url TEXT NOT NULL DEFAULT '',
		annotated_image_url TEXT NOT NULL DEFAULT '',
		bounding_boxes TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return nil, err
	}

	return s.db, nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	err := s.db.Ping()
	return err == nil
}

func (s *SQLiteDatabase) CreateResult(ctx context.Context, result *Result) (id int64, err error) {
	if result == nil {
		return 0, fmt.Errorf("result must not be nil")
	}
	if result.CreatedAt == "" {
		result.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if result.BoundingBoxes == "" {
		result.BoundingBoxes = "[]"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() // Explicitly ignore error as the original error is returned
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO results (timestamp, device_code, egg_count, image_url, binary_image_url, annotated_image_url, bounding_boxes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.Timestamp,
		result.DeviceCode,
		result.EggCount,
		result.ImageURL,
		result.BinaryImageURL,
		result.AnnotatedImageURL,
		result.BoundingBoxes,
		result.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert result: %w", err)
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit result: %w", err)
	}

	result.ID = id
	return id, nil
}

func (s *SQLiteDatabase) GetResults(ctx context.Context, limit int) ([]*Result, error) {
	query := "SELECT " + resultColumns + " FROM results ORDER BY id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	results := make([]*Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(
			&r.ID,
			&r.Timestamp,
			&r.DeviceCode,
			&r.EggCount,
			&r.ImageURL,
			&r.BinaryImageURL,
			&r.AnnotatedImageURL,
			&r.BoundingBoxes,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *SQLiteDatabase) CountResults(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM results").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
