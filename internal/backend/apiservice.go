package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/eggcount/internal/backend/archive"
	"github.com/jo-hoe/eggcount/internal/backend/metrics"
	"github.com/jo-hoe/eggcount/internal/common"
	"github.com/jo-hoe/eggcount/internal/core"
)

const (
	MessageSaved             = "Data saved successfully"
	MessageInvalidKeys       = "Unauthorized - invalid keys"
	MessageUnauthorized      = "Unauthorized"
	MessageInvalidJSON       = "Invalid JSON payload"
	MessageNotFound          = "Not found"
	HeaderAPIKey             = "X-API-Key"
	HeaderAPISecret          = "X-API-Secret"
	uploadsRoutePrefix       = "/uploads"
	databaseErrorPrefix      = "Database error: "
	imageErrorPrefix         = "Image error: "
	uploadResultsRoute       = "/api/upload_results"
	resultsRoute             = "/api/results"
	metricsRoute             = "/metrics"
	healthResponseStatusOkay = "ok"
)

type APIService struct {
	coreService *core.CoreService
	metrics     *metrics.Metrics
}

func NewAPIService(coreService *core.CoreService, metrics *metrics.Metrics) *APIService {
	return &APIService{
		coreService: coreService,
		metrics:     metrics,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET(common.HealthPath, s.healthHandler)
	e.POST(uploadResultsRoute, s.uploadResultsHandler)
	e.GET(resultsRoute, s.resultsHandler)
	e.GET(uploadsRoutePrefix+"/*", s.uploadsHandler)
	e.GET(metricsRoute, echo.WrapHandler(s.metrics.Handler()))
}

func (s *APIService) healthHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": healthResponseStatusOkay})
}

func (s *APIService) uploadResultsHandler(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		s.metrics.RecordIngestion(metrics.OutcomeInvalid, 0)
		if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
			return err
		}
		slog.Warn("uploadResultsHandler: failed to read body",
			"status", http.StatusBadRequest, "error", err)
		return ctx.JSON(http.StatusBadRequest, common.ErrorResponse{Error: MessageInvalidJSON})
	}

	// Content type is not checked; devices do not always send one.
	// Credentials are checked before field types so a bad key always yields 401.
	creds, err := decodeCredentials(body)
	if err != nil {
		slog.Warn("uploadResultsHandler: invalid payload",
			"status", http.StatusBadRequest, "error", err)
		s.metrics.RecordIngestion(metrics.OutcomeInvalid, 0)
		return ctx.JSON(http.StatusBadRequest, common.ErrorResponse{Error: MessageInvalidJSON})
	}

	if !s.coreService.UploadCredentialsValid(creds.APIKey, creds.APISecret) {
		slog.Warn("uploadResultsHandler: rejected credentials",
			"status", http.StatusUnauthorized, "remote_ip", ctx.RealIP())
		s.metrics.RecordIngestion(metrics.OutcomeUnauthorized, 0)
		return ctx.JSON(http.StatusUnauthorized, common.ErrorResponse{Error: MessageInvalidKeys})
	}

	var req uploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		slog.Warn("uploadResultsHandler: invalid field types",
			"status", http.StatusBadRequest, "error", err)
		s.metrics.RecordIngestion(metrics.OutcomeInvalid, 0)
		return ctx.JSON(http.StatusBadRequest, common.ErrorResponse{Error: MessageInvalidJSON})
	}

	if err := ctx.Validate(&req); err != nil {
		slog.Warn("uploadResultsHandler: validation failed",
			"status", http.StatusBadRequest, "error", err)
		s.metrics.RecordIngestion(metrics.OutcomeInvalid, 0)
		return err
	}

	result, err := s.coreService.Ingest(ctx.Request().Context(), req.toIngestion())
	if err != nil {
		status, message := ingestErrorResponse(err)
		slog.Error("uploadResultsHandler: failed to store result",
			"status", status, "device_code", req.DeviceCode, "error", err)
		if status == http.StatusBadRequest {
			s.metrics.RecordIngestion(metrics.OutcomeInvalid, 0)
		} else {
			s.metrics.RecordIngestion(metrics.OutcomeFailed, 0)
		}
		return ctx.JSON(status, common.ErrorResponse{Error: message})
	}

	s.metrics.RecordIngestion(metrics.OutcomeSaved, result.EggCount)
	return ctx.JSON(http.StatusOK, map[string]string{"message": MessageSaved})
}

// ingestErrorResponse maps an ingestion error to its status and client message
func ingestErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, archive.ErrInvalidPath):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, archive.ErrDecode):
		return http.StatusInternalServerError, imageErrorPrefix + err.Error()
	default:
		return http.StatusInternalServerError, databaseErrorPrefix + err.Error()
	}
}

func (s *APIService) resultsHandler(ctx echo.Context) error {
	apiKey := ctx.Request().Header.Get(HeaderAPIKey)
	apiSecret := ctx.Request().Header.Get(HeaderAPISecret)
	if !s.coreService.UploadCredentialsValid(apiKey, apiSecret) {
		slog.Warn("resultsHandler: rejected credentials",
			"status", http.StatusUnauthorized, "remote_ip", ctx.RealIP())
		return ctx.JSON(http.StatusUnauthorized, common.ErrorResponse{Error: MessageUnauthorized})
	}

	results, err := s.coreService.ListResults(ctx.Request().Context(), 0)
	if err != nil {
		slog.Error("resultsHandler: failed to list results",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.JSON(http.StatusInternalServerError,
			common.ErrorResponse{Error: fmt.Sprintf("%s%v", databaseErrorPrefix, err)})
	}

	items := make([]resultItem, 0, len(results))
	for _, r := range results {
		items = append(items, newResultItem(r))
	}
	return ctx.JSON(http.StatusOK, items)
}

func (s *APIService) uploadsHandler(ctx echo.Context) error {
	relPath := ctx.Param("*")
	file, info, err := s.coreService.Archive().Open(relPath)
	if err != nil {
		slog.Debug("uploadsHandler: file not available", "path", relPath, "error", err)
		return ctx.JSON(http.StatusNotFound, common.ErrorResponse{Error: MessageNotFound})
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			slog.Error("uploadsHandler: failed to close file", "path", relPath, "error", cerr)
		}
	}()

	http.ServeContent(ctx.Response(), ctx.Request(), info.Name(), info.ModTime(), file)
	return nil
}
