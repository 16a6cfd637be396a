package core

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/jo-hoe/eggcount/internal/backend/archive"
	"github.com/jo-hoe/eggcount/internal/backend/database"
)

func newTestCoreService(t *testing.T) *CoreService {
	t.Helper()
	cfg := &ServiceConfig{
		Database: Database{
			Type:             "sqlite",
			ConnectionString: ":memory:",
		},
		UploadFolder: t.TempDir(),
		Secrets: Secrets{
			UploadPublicKey: "pk_test",
			UploadSecretKey: "sk_test",
			Login:           "login_test",
			Session:         "session_test",
		},
	}
	cfg.applyDefaults()

	svc, err := NewCoreService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewCoreService error: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func pngBase64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode error: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

type failingDatabase struct {
	database.DatabaseService
}

func (failingDatabase) CreateResult(context.Context, *database.Result) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func (failingDatabase) CreateDatabase() (*sql.DB, error) { return nil, nil }

func (failingDatabase) Close() error { return nil }

func (failingDatabase) DoesDatabaseExist() bool { return false }

func TestIngest_ArchivesImagesAndStoresResult(t *testing.T) {
	svc := newTestCoreService(t)
	ctx := context.Background()
	payload := pngBase64(t)

	result, err := svc.Ingest(ctx, Ingestion{
		Timestamp:  "2025-01-01T10:00:00",
		DeviceCode: "dev1",
		EggCount:   7,
		ImagePayloads: map[archive.Role]string{
			archive.RoleOriginal:  payload,
			archive.RoleBinary:    payload,
			archive.RoleAnnotated: payload,
		},
		BoundingBoxes: json.RawMessage(`[ {"x":1, "y":2, "w":3, "h":4} ]`),
	})
	if err != nil {
		t.Fatalf("Ingest error: %v", err)
	}

	if result.ImageURL != "dev1/2025-01-01T10-00-00/original.jpg" ||
		result.BinaryImageURL != "dev1/2025-01-01T10-00-00/binary.jpg" ||
		result.AnnotatedImageURL != "dev1/2025-01-01T10-00-00/annotated.jpg" {
		t.Errorf("unexpected image paths %+v", result)
	}
	if result.BoundingBoxes != `[{"x":1,"y":2,"w":3,"h":4}]` {
		t.Errorf("unexpected bounding boxes %q", result.BoundingBoxes)
	}

	data, err := os.ReadFile(filepath.Join(svc.Archive().BaseDir(), "dev1", "2025-01-01T10-00-00", "original.jpg"))
	if err != nil {
		t.Fatalf("expected archived image: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("expected archived image to be converted to JPEG: %v", err)
	}

	results, err := svc.ListResults(ctx, 0)
	if err != nil {
		t.Fatalf("ListResults error: %v", err)
	}
	if len(results) != 1 || results[0].EggCount != 7 || results[0].DeviceCode != "dev1" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestIngest_DirectURLsStoredVerbatim(t *testing.T) {
	svc := newTestCoreService(t)

	result, err := svc.Ingest(context.Background(), Ingestion{
		Timestamp:  "t",
		DeviceCode: "dev1",
		ImageURLs: map[archive.Role]string{
			archive.RoleOriginal: "https://cdn.example.com/a.jpg",
		},
	})
	if err != nil {
		t.Fatalf("Ingest error: %v", err)
	}
	if result.ImageURL != "https://cdn.example.com/a.jpg" || result.BinaryImageURL != "" {
		t.Errorf("unexpected urls %+v", result)
	}
	if result.BoundingBoxes != "[]" {
		t.Errorf("expected missing bounding boxes to become [], got %q", result.BoundingBoxes)
	}
	if _, err := os.Stat(filepath.Join(svc.Archive().BaseDir(), "dev1")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected no archive directory without image payloads")
	}
}

func TestIngest_PayloadWinsOverURL(t *testing.T) {
	svc := newTestCoreService(t)

	result, err := svc.Ingest(context.Background(), Ingestion{
		Timestamp:     "t",
		DeviceCode:    "dev1",
		ImageURLs:     map[archive.Role]string{archive.RoleOriginal: "https://cdn.example.com/a.jpg"},
		ImagePayloads: map[archive.Role]string{archive.RoleOriginal: pngBase64(t)},
	})
	if err != nil {
		t.Fatalf("Ingest error: %v", err)
	}
	if result.ImageURL != "dev1/t/original.jpg" {
		t.Errorf("expected archived path, got %q", result.ImageURL)
	}
}

func TestIngest_FailuresLeaveNoRecord(t *testing.T) {
	tests := []struct {
		name    string
		in      Ingestion
		wantErr error
	}{
		{
			name: "invalid base64",
			in: Ingestion{Timestamp: "t", DeviceCode: "dev1",
				ImagePayloads: map[archive.Role]string{archive.RoleOriginal: "%%%"}},
			wantErr: archive.ErrDecode,
		},
		{
			name: "traversal only device code",
			in: Ingestion{Timestamp: "t", DeviceCode: "..",
				ImagePayloads: map[archive.Role]string{archive.RoleOriginal: "aGVsbG8="}},
			wantErr: archive.ErrInvalidPath,
		},
		{
			name:    "malformed bounding boxes",
			in:      Ingestion{Timestamp: "t", DeviceCode: "dev1", BoundingBoxes: json.RawMessage(`{bad`)},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestCoreService(t)
			ctx := context.Background()

			if _, err := svc.Ingest(ctx, tt.in); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			results, err := svc.ListResults(ctx, 0)
			if err != nil {
				t.Fatalf("ListResults error: %v", err)
			}
			if len(results) != 0 {
				t.Fatalf("expected no results, got %d", len(results))
			}
		})
	}
}

func TestIngest_DatabaseFailureRemovesCreatedDirectory(t *testing.T) {
	svc := newTestCoreService(t)
	_ = svc.databaseService.Close()
	svc.databaseService = failingDatabase{}

	_, err := svc.Ingest(context.Background(), Ingestion{
		Timestamp:     "2025-01-01T10:00:00",
		DeviceCode:    "dev1",
		ImagePayloads: map[archive.Role]string{archive.RoleOriginal: pngBase64(t)},
	})
	if err == nil {
		t.Fatal("expected error from failing database")
	}
	dir := filepath.Join(svc.Archive().BaseDir(), "dev1", "2025-01-01T10-00-00")
	if _, err := os.Stat(dir); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected directory created by the failed ingestion to be removed, stat err=%v", err)
	}
}

func TestIngest_NonImagePayloadStoredVerbatim(t *testing.T) {
	svc := newTestCoreService(t)
	raw := []byte("raw sensor bytes")

	result, err := svc.Ingest(context.Background(), Ingestion{
		Timestamp:     "t",
		DeviceCode:    "dev1",
		ImagePayloads: map[archive.Role]string{archive.RoleBinary: base64.StdEncoding.EncodeToString(raw)},
	})
	if err != nil {
		t.Fatalf("Ingest error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(svc.Archive().BaseDir(), filepath.FromSlash(result.BinaryImageURL)))
	if err != nil {
		t.Fatalf("expected archived file: %v", err)
	}
	if !bytes.Equal(data, raw) {
		t.Errorf("expected bytes stored unchanged, got %q", data)
	}
}

func TestCheckDatabase(t *testing.T) {
	if err := checkDatabase(failingDatabase{}); err == nil {
		t.Error("expected error for unreachable database")
	}

	svc := newTestCoreService(t)
	if err := checkDatabase(svc.databaseService); err != nil {
		t.Errorf("expected reachable in-memory database, got %v", err)
	}
}

func TestUploadCredentialsValid(t *testing.T) {
	svc := newTestCoreService(t)

	tests := []struct {
		key, secret string
		want        bool
	}{
		{"pk_test", "sk_test", true},
		{"pk_test", "wrong", false},
		{"wrong", "sk_test", false},
		{"", "", false},
		{"sk_test", "pk_test", false},
	}
	for _, tt := range tests {
		if got := svc.UploadCredentialsValid(tt.key, tt.secret); got != tt.want {
			t.Errorf("UploadCredentialsValid(%q, %q) = %v, want %v", tt.key, tt.secret, got, tt.want)
		}
	}
}

func TestNewCoreService_UnknownCommand(t *testing.T) {
	cfg := &ServiceConfig{UploadFolder: t.TempDir(), Database: Database{ConnectionString: ":memory:"}}
	cfg.applyDefaults()
	cfg.Commands = []CommandConfig{{Name: "NoSuchCommand"}}

	if _, err := NewCoreService(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown image command")
	}
}
