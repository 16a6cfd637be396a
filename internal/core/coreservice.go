package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/eggcount/internal/backend/archive"
	"github.com/jo-hoe/eggcount/internal/backend/commandstructure"
	"github.com/jo-hoe/eggcount/internal/backend/database"
	"github.com/jo-hoe/eggcount/internal/backend/session"
	"github.com/jo-hoe/eggcount/internal/common"

	// registers the image commands in the default registry
	_ "github.com/jo-hoe/eggcount/internal/backend/commands"
)

// Ingestion is one device reading as received by the upload endpoint.
// For every role a base64 payload wins over a direct URL.
type Ingestion struct {
	Timestamp     string
	DeviceCode    string
	EggCount      int
	ImageURLs     map[archive.Role]string
	ImagePayloads map[archive.Role]string
	BoundingBoxes json.RawMessage
}

// ErrValidation marks ingestion input that is well-formed JSON but unusable
var ErrValidation = errors.New("invalid ingestion")

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	archive         *archive.Archive
	sessionStore    session.Store
	sessions        *session.Manager
}

func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	databaseService, err := getDatabaseService(config)
	if err != nil {
		return nil, err
	}

	pipeline, err := commandstructure.NewPipeline(commandstructure.DefaultRegistry, toCommandConfigs(config.Commands))
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to build image pipeline: %w", err)
	}
	slog.Info("image pipeline configured", "commands", pipeline.Names())

	imageArchive, err := archive.New(config.UploadFolder, pipeline, config.Archive.WriteTimeout)
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize image archive: %w", err)
	}
	slog.Info("image archive initialized", "path", imageArchive.BaseDir())

	store, err := session.NewStore(ctx, session.StoreConfig{
		Type:          config.Session.Type,
		RedisAddress:  config.Session.RedisAddress,
		RedisPassword: config.Session.RedisPassword,
		RedisDB:       config.Session.RedisDB,
		TTL:           config.Session.TTL,
	})
	if err != nil {
		_ = imageArchive.Close()
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	for _, name := range config.InsecureSecrets() {
		slog.Warn("secret uses its public placeholder value; set it before exposing the service", "secret", name)
	}

	return &CoreService{
		config:          config,
		databaseService: databaseService,
		archive:         imageArchive,
		sessionStore:    store,
		sessions:        session.NewManager(store, config.Secrets.Session, config.Secrets.Login, config.Session.SecureCookie),
	}, nil
}

// Sessions returns the login gate
func (service *CoreService) Sessions() *session.Manager {
	return service.sessions
}

// Archive returns the image archive used for static serving
func (service *CoreService) Archive() *archive.Archive {
	return service.archive
}

// UploadCredentialsValid checks an API key pair against the configured upload credentials
func (service *CoreService) UploadCredentialsValid(apiKey, apiSecret string) bool {
	keyOK := common.SecretsEqual(apiKey, service.config.Secrets.UploadPublicKey)
	secretOK := common.SecretsEqual(apiSecret, service.config.Secrets.UploadSecretKey)
	return keyOK && secretOK
}

// Ingest archives the images of a reading and stores the result. If the database write fails
// the result is not visible; image directories created by this call are removed again.
func (service *CoreService) Ingest(ctx context.Context, in Ingestion) (*database.Result, error) {
	images := make(map[archive.Role][]byte, len(in.ImagePayloads))
	for role, payload := range in.ImagePayloads {
		if payload == "" {
			continue
		}
		data, err := archive.DecodeBase64(payload)
		if err != nil {
			return nil, fmt.Errorf("%s image: %w", role, err)
		}
		images[role] = data
	}

	boundingBoxes, err := normalizeBoundingBoxes(in.BoundingBoxes)
	if err != nil {
		return nil, err
	}

	batch, err := service.archive.Store(ctx, in.DeviceCode, in.Timestamp, images)
	if err != nil {
		service.discard(batch)
		return nil, err
	}

	result := &database.Result{
		Timestamp:         in.Timestamp,
		DeviceCode:        in.DeviceCode,
		EggCount:          in.EggCount,
		ImageURL:          resolveImage(batch, in.ImageURLs, archive.RoleOriginal),
		BinaryImageURL:    resolveImage(batch, in.ImageURLs, archive.RoleBinary),
		AnnotatedImageURL: resolveImage(batch, in.ImageURLs, archive.RoleAnnotated),
		BoundingBoxes:     boundingBoxes,
	}

	if _, err := service.databaseService.CreateResult(ctx, result); err != nil {
		service.discard(batch)
		return nil, fmt.Errorf("failed to store result: %w", err)
	}

	slog.Info("result stored",
		"id", result.ID,
		"device_code", result.DeviceCode,
		"egg_count", result.EggCount,
		"images", len(batch.Paths))
	return result, nil
}

// ListResults returns stored results newest first; limit <= 0 returns all
func (service *CoreService) ListResults(ctx context.Context, limit int) ([]*database.Result, error) {
	return service.databaseService.GetResults(ctx, limit)
}

func (service *CoreService) Close() error {
	var errs []error
	if service.sessionStore != nil {
		errs = append(errs, service.sessionStore.Close())
	}
	if service.archive != nil {
		errs = append(errs, service.archive.Close())
	}
	if service.databaseService != nil {
		errs = append(errs, service.databaseService.Close())
	}
	return errors.Join(errs...)
}

func (service *CoreService) discard(batch *archive.Batch) {
	if err := service.archive.Discard(batch); err != nil {
		slog.Error("failed to remove images of failed ingestion", "dir", batch.Dir, "error", err)
	}
}

func resolveImage(batch *archive.Batch, urls map[archive.Role]string, role archive.Role) string {
	if p, ok := batch.Paths[role]; ok {
		return p
	}
	return urls[role]
}

// normalizeBoundingBoxes compacts the caller's JSON; absent or null becomes "[]"
func normalizeBoundingBoxes(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "[]", nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", fmt.Errorf("%w: bounding_boxes: %v", ErrValidation, err)
	}
	return buf.String(), nil
}

func toCommandConfigs(configs []CommandConfig) []commandstructure.CommandConfig {
	out := make([]commandstructure.CommandConfig, 0, len(configs))
	for _, c := range configs {
		out = append(out, commandstructure.CommandConfig{Name: c.Name, Params: c.Params})
	}
	return out
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := checkDatabase(databaseService); err != nil {
		_ = databaseService.Close()
		return nil, err
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}

// checkDatabase fails startup when the database cannot be reached after schema setup
func checkDatabase(databaseService database.DatabaseService) error {
	if !databaseService.DoesDatabaseExist() {
		return errors.New("database is not reachable")
	}
	return nil
}
