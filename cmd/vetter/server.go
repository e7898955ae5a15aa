package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/pawlift/pawlift/trust"
	"github.com/pawlift/pawlift/trust/blobstore"
	"github.com/pawlift/pawlift/trust/countstore"
	"github.com/pawlift/pawlift/trust/models"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"gorm.io/gorm"
)

// actorHeader carries the authenticated user ID, resolved by the platform's
// API gateway before requests reach this service.
const actorHeader = "X-Pawlift-Actor"

type Server struct {
	logger *slog.Logger
	engine *trust.Engine
	echo   *echo.Echo
}

type Config struct {
	Logger                *slog.Logger
	RedisURL              string
	BlobDir               string
	DailyEndorsementLimit int
	BrigadeWindow         time.Duration
	BrigadeThreshold      int
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	var counters countstore.CountStore
	if config.RedisURL != "" {
		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, err
		}
		counters = cnt
	} else {
		cnt, err := countstore.NewGormCountStore(db)
		if err != nil {
			return nil, err
		}
		counters = cnt
	}

	blobs, err := blobstore.NewDiskBlobStore(config.BlobDir)
	if err != nil {
		return nil, err
	}

	engineConfig := trust.DefaultEngineConfig()
	if config.DailyEndorsementLimit > 0 {
		engineConfig.DailyEndorsementLimit = config.DailyEndorsementLimit
	}
	if config.BrigadeWindow > 0 {
		engineConfig.BrigadeWindow = config.BrigadeWindow
	}
	if config.BrigadeThreshold > 0 {
		engineConfig.BrigadeVolumeThreshold = config.BrigadeThreshold
	}

	eng, err := trust.NewEngine(db, trust.NewGormDirectory(db), counters, blobs, &engineConfig)
	if err != nil {
		return nil, err
	}

	return &Server{
		logger: logger,
		engine: eng,
	}, nil
}

func (s *Server) RunAPI(ctx context.Context, listen string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())

	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		code := statusForError(err)
		if code >= 500 {
			s.logger.Warn("HTTP request error", "statusCode", code, "path", ctx.Path(), "err", err)
		}
		if !ctx.Response().Committed {
			ctx.JSON(code, map[string]string{"error": err.Error()})
		}
	}

	e.GET("/_health", s.handleHealthCheck)
	e.POST("/cases/:caseID/endorse", s.handleEndorse)
	e.POST("/cases/:caseID/verification", s.handleSetVerification)
	e.POST("/cases/:caseID/risk-flags/clear", s.handleClearRiskFlag)
	e.POST("/cases/:caseID/images", s.handleSubmitImages)
	e.POST("/cases/:caseID/reports", s.handleFileReport)
	e.GET("/cases/:caseID/trust", s.handleGetTrust)
	s.echo = e

	s.logger.Info("starting trust API", "listen", listen)
	return e.Start(listen)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func statusForError(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	switch {
	case errors.Is(err, trust.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, trust.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, trust.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, trust.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, trust.ErrCaseNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(200, map[string]any{"status": "ok"})
}

func caseIDParam(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("caseID"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid case ID")
	}
	return id, nil
}

func actorID(c echo.Context) string {
	return c.Request().Header.Get(actorHeader)
}

func (s *Server) handleEndorse(c echo.Context) error {
	caseID, err := caseIDParam(c)
	if err != nil {
		return err
	}
	res, err := s.engine.EndorseCase(c.Request().Context(), actorID(c), caseID)
	if err != nil {
		return err
	}
	return c.JSON(200, res)
}

type setVerificationRequest struct {
	Status models.VerificationStatus `json:"status"`
	Notes  string                    `json:"notes"`
}

func (s *Server) handleSetVerification(c echo.Context) error {
	caseID, err := caseIDParam(c)
	if err != nil {
		return err
	}
	var req setVerificationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := s.engine.SetVerificationStatus(c.Request().Context(), actorID(c), caseID, req.Status, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(200, res)
}

type clearRiskFlagRequest struct {
	Flag  string `json:"flag"`
	Notes string `json:"notes"`
}

func (s *Server) handleClearRiskFlag(c echo.Context) error {
	caseID, err := caseIDParam(c)
	if err != nil {
		return err
	}
	var req clearRiskFlagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.engine.ClearRiskFlag(c.Request().Context(), actorID(c), caseID, req.Flag, req.Notes); err != nil {
		return err
	}
	return c.JSON(200, map[string]bool{"ok": true})
}

type submitImagesRequest struct {
	Images []trust.ImageInput `json:"images"`
}

func (s *Server) handleSubmitImages(c echo.Context) error {
	caseID, err := caseIDParam(c)
	if err != nil {
		return err
	}
	var req submitImagesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.engine.SubmitCaseImages(c.Request().Context(), caseID, req.Images); err != nil {
		return err
	}
	return c.JSON(200, map[string]bool{"ok": true})
}

type fileReportRequest struct {
	Reason  models.ReportReason `json:"reason"`
	Details string              `json:"details"`
}

func (s *Server) handleFileReport(c echo.Context) error {
	caseID, err := caseIDParam(c)
	if err != nil {
		return err
	}
	var req fileReportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	report, err := s.engine.FileUserReport(c.Request().Context(), actorID(c), caseID, req.Reason, req.Details)
	if err != nil {
		return err
	}
	return c.JSON(200, report)
}

func (s *Server) handleGetTrust(c echo.Context) error {
	caseID, err := caseIDParam(c)
	if err != nil {
		return err
	}
	ct, err := s.engine.GetCaseTrust(c.Request().Context(), caseID)
	if err != nil {
		return err
	}
	return c.JSON(200, ct)
}
