package database

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) DatabaseService {
	t.Helper()

	ds, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteDatabase error: %v", err)
	}
	_, err = ds.CreateDatabase()
	if err != nil {
		t.Fatalf("CreateDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func TestSQLite_DoesDatabaseExist(t *testing.T) {
	ds := newTestDB(t)
	if !ds.DoesDatabaseExist() {
		t.Fatalf("expected DoesDatabaseExist to return true")
	}
}

func TestSQLite_CreateResult_RoundTrip(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	in := &Result{
		Timestamp:         "2025-01-01T10:00:00",
		DeviceCode:        "dev1",
		EggCount:          7,
		ImageURL:          "dev1/2025-01-01T10-00-00/original.jpg",
		BinaryImageURL:    "dev1/2025-01-01T10-00-00/binary.jpg",
		AnnotatedImageURL: "dev1/2025-01-01T10-00-00/annotated.jpg",
		BoundingBoxes:     `[{"x":1,"y":2,"w":3,"h":4}]`,
	}
	id, err := ds.CreateResult(ctx, in)
	if err != nil {
		t.Fatalf("CreateResult error: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}
	if in.ID != id {
		t.Errorf("expected result.ID to be set to %d, got %d", id, in.ID)
	}

	results, err := ds.GetResults(ctx, 0)
	if err != nil {
		t.Fatalf("GetResults error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.ID != id ||
		got.Timestamp != in.Timestamp ||
		got.DeviceCode != in.DeviceCode ||
		got.EggCount != in.EggCount ||
		got.ImageURL != in.ImageURL ||
		got.BinaryImageURL != in.BinaryImageURL ||
		got.AnnotatedImageURL != in.AnnotatedImageURL ||
		got.BoundingBoxes != in.BoundingBoxes {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, in)
	}
	if got.CreatedAt == "" {
		t.Errorf("expected created_at to be filled")
	}
}

func TestSQLite_CreateResult_DefaultsBoundingBoxes(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	if _, err := ds.CreateResult(ctx, &Result{DeviceCode: "dev1"}); err != nil {
		t.Fatalf("CreateResult error: %v", err)
	}
	results, err := ds.GetResults(ctx, 0)
	if err != nil {
		t.Fatalf("GetResults error: %v", err)
	}
	if results[0].BoundingBoxes != "[]" {
		t.Errorf("expected empty bounding boxes to serialize as [], got %q", results[0].BoundingBoxes)
	}
}

func TestSQLite_GetResults_NewestFirst(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := ds.CreateResult(ctx, &Result{DeviceCode: "dev", EggCount: i}); err != nil {
			t.Fatalf("CreateResult #%d error: %v", i, err)
		}
	}

	results, err := ds.GetResults(ctx, 0)
	if err != nil {
		t.Fatalf("GetResults error: %v", err)
	}
	if len(results) != n {
		t.Fatalf("expected %d results, got %d", n, len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].ID <= results[i].ID {
			t.Fatalf("results not strictly descending by id at %d: %d then %d", i, results[i-1].ID, results[i].ID)
		}
	}
	if results[0].EggCount != n-1 {
		t.Errorf("expected newest egg count %d first, got %d", n-1, results[0].EggCount)
	}

	limited, err := ds.GetResults(ctx, 2)
	if err != nil {
		t.Fatalf("GetResults(limit) error: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 results with limit, got %d", len(limited))
	}
	if limited[0].ID != results[0].ID {
		t.Errorf("expected limited results to start with newest id %d, got %d", results[0].ID, limited[0].ID)
	}
}

func TestSQLite_GetResults_Empty(t *testing.T) {
	ds := newTestDB(t)

	results, err := ds.GetResults(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetResults error: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", results)
	}
}

func TestSQLite_CreateResult_CanceledContextLeavesNoRow(t *testing.T) {
	ds := newTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ds.CreateResult(ctx, &Result{DeviceCode: "dev1"}); err == nil {
		t.Fatalf("expected error for canceled context")
	}

	count, err := ds.CountResults(context.Background())
	if err != nil {
		t.Fatalf("CountResults error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows after failed insert, got %d", count)
	}
}

func TestNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	ds, err := NewDatabase("sqlite", path)
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = ds.Close() })

	if _, err := ds.CreateResult(context.Background(), &Result{DeviceCode: "dev1"}); err != nil {
		t.Fatalf("CreateResult error: %v", err)
	}

	if _, err := NewDatabase("postgres", "irrelevant"); err == nil {
		t.Fatalf("expected error for unsupported database type")
	}
}
