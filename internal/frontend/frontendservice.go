package frontend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/eggcount/internal/backend/database"
	"github.com/jo-hoe/eggcount/internal/backend/session"
	"github.com/jo-hoe/eggcount/internal/core"
)

const (
	LoginPageName     = "login.html"
	DashboardPageName = "index.html"
	DashboardPath     = "/dashboard"
	LogoutPath        = "/logout"
	uploadsURLPrefix  = "/uploads/"

	MessageInvalidSecret = "Invalid secret key"
)

type FrontendService struct {
	coreService *core.CoreService
}

func NewFrontendService(coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
	}
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = newTemplate()

	sessions := service.coreService.Sessions()
	e.GET(session.LoginPath, service.loginPageHandler)
	e.POST(session.LoginPath, service.loginHandler)
	e.GET(DashboardPath, service.dashboardHandler, sessions.RequireSession)
	e.GET(LogoutPath, service.logoutHandler)

	// Favicon (SVG) route
	e.GET("/icon.svg", service.iconHandler)
}

type loginPage struct {
	Error string
}

func (service *FrontendService) loginPageHandler(ctx echo.Context) error {
	if service.coreService.Sessions().IsAuthenticated(ctx) {
		return ctx.Redirect(http.StatusFound, DashboardPath)
	}
	return ctx.Render(http.StatusOK, LoginPageName, loginPage{})
}

func (service *FrontendService) loginHandler(ctx echo.Context) error {
	sessions := service.coreService.Sessions()
	if sessions.IsAuthenticated(ctx) {
		return ctx.Redirect(http.StatusFound, DashboardPath)
	}

	ok, err := sessions.Authenticate(ctx, ctx.FormValue("secret_key"))
	if err != nil {
		slog.Error("loginHandler: failed to create session",
			"status", http.StatusInternalServerError, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create session")
	}
	if !ok {
		slog.Warn("loginHandler: invalid secret key",
			"status", http.StatusUnauthorized, "remote_ip", ctx.RealIP())
		return ctx.Render(http.StatusUnauthorized, LoginPageName, loginPage{Error: MessageInvalidSecret})
	}

	slog.Info("loginHandler: session started", "remote_ip", ctx.RealIP())
	return ctx.Redirect(http.StatusFound, DashboardPath)
}

func (service *FrontendService) logoutHandler(ctx echo.Context) error {
	if err := service.coreService.Sessions().Logout(ctx); err != nil {
		slog.Error("logoutHandler: failed to delete session", "error", err)
	}
	return ctx.Redirect(http.StatusFound, session.LoginPath)
}

type dashboardImage struct {
	Label string
	URL   string
}

type dashboardEntry struct {
	ID               int64
	Timestamp        string
	DeviceCode       string
	EggCount         int
	ReceivedAt       string
	Images           []dashboardImage
	BoundingBoxes    []map[string]any
	RawBoundingBoxes string
}

type dashboardPage struct {
	Total   int
	Results []dashboardEntry
}

func (service *FrontendService) dashboardHandler(ctx echo.Context) error {
	results, err := service.coreService.ListResults(ctx.Request().Context(), 0)
	if err != nil {
		slog.Error("dashboardHandler: failed to list results",
			"status", http.StatusInternalServerError, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list results")
	}

	page := dashboardPage{
		Total:   len(results),
		Results: make([]dashboardEntry, 0, len(results)),
	}
	for _, r := range results {
		page.Results = append(page.Results, newDashboardEntry(r))
	}

	// Prevent caching so the latest results are always shown
	service.setNoCache(ctx)

	return ctx.Render(http.StatusOK, DashboardPageName, page)
}

func newDashboardEntry(r *database.Result) dashboardEntry {
	entry := dashboardEntry{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		DeviceCode: r.DeviceCode,
		EggCount:   r.EggCount,
		ReceivedAt: formatReceivedAt(r.CreatedAt),
	}

	images := []struct {
		label string
		url   string
	}{
		{"Original", r.ImageURL},
		{"Binary", r.BinaryImageURL},
		{"Annotated", r.AnnotatedImageURL},
	}
	for _, img := range images {
		if src := imageSource(img.url); src != "" {
			entry.Images = append(entry.Images, dashboardImage{Label: img.label, URL: src})
		}
	}

	var boxes []map[string]any
	if err := json.Unmarshal([]byte(r.BoundingBoxes), &boxes); err == nil {
		entry.BoundingBoxes = boxes
	} else if r.BoundingBoxes != "" && r.BoundingBoxes != "[]" {
		entry.RawBoundingBoxes = r.BoundingBoxes
	}
	return entry
}

// imageSource turns a stored archive path into a link below /uploads; absolute URLs are kept
func imageSource(stored string) string {
	stored = strings.TrimSpace(stored)
	switch {
	case stored == "":
		return ""
	case strings.HasPrefix(stored, "http://"), strings.HasPrefix(stored, "https://"), strings.HasPrefix(stored, "/"):
		return stored
	default:
		return uploadsURLPrefix + stored
	}
}

func formatReceivedAt(createdAt string) string {
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return createdAt
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, "image/svg+xml", data)
}
