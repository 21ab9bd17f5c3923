// Package relay is the server-side half of relayed uploads. Vendors that
// disallow direct cross-origin upload are exposed here behind a same-origin
// HTTP API: the relay holds the credentials, performs the create and transfer
// steps itself, and hands the tracking id back to the client.
package relay

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echolog "github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/ziflex/lecho/v3"

	"github.com/fastpix01-lab/video-benchmark/provider"
	"github.com/fastpix01-lab/video-benchmark/transport"
)

type Uploader interface {
	Upload(ctx context.Context, desc provider.UploadDescriptor, file transport.File) error
}

type Server struct {
	registry *provider.Registry
	uploader Uploader
	api      *echo.Echo
	log      zerolog.Logger

	uploadCreates *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	statusChecks  *prometheus.CounterVec
}

type Config struct {
	Registry *provider.Registry
	Uploader Uploader
}

func NewServer(config Config) (*Server, error) {
	if config.Registry == nil {
		return nil, errors.New("registry is required")
	}

	if config.Uploader == nil {
		return nil, errors.New("uploader is required")
	}

	server := &Server{
		registry: config.Registry,
		uploader: config.Uploader,
		log:      log.With().Str("module", "relay").Logger(),
		uploadCreates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_upload_creates_total",
			Help: "Relayed upload creations by provider and outcome.",
		}, []string{"provider", "outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_uploads_total",
			Help: "Relayed upload attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		statusChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_status_checks_total",
			Help: "Relayed status checks by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(server.uploadCreates, server.uploads, server.statusChecks)

	api := echo.New()
	api.HideBanner = true

	echoLogger := lecho.From(
		log.Logger,
		lecho.WithLevel(echolog.INFO),
		lecho.WithField("role", "relay_api"),
		lecho.WithTimestamp(),
	)
	api.Logger = echoLogger
	api.Use(lecho.Middleware(lecho.Config{Logger: echoLogger}))
	api.Use(middleware.Recover())

	api.POST("/api/providers/:provider/upload", server.handleCreateUpload)
	api.GET("/api/providers/:provider/status/:id", server.handleStatus)
	api.POST("/api/providers/:provider/proxy-upload", server.handleProxyUpload)
	api.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics, promhttp.HandlerOpts{})))

	server.api = api

	return server, nil
}

// Start blocks serving the API until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	return s.api.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.api.Shutdown(ctx)
}

// Handler exposes the underlying HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.api
}

func (s *Server) lookup(c echo.Context) (provider.Entry, error) {
	slug := c.Param("provider")

	entry, found := s.registry.Lookup(slug)
	if !found {
		return provider.Entry{}, echo.NewHTTPError(http.StatusNotFound, "unknown provider: "+slug)
	}

	return entry, nil
}

type createUploadRequest struct {
	Origin string `json:"origin"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type proxyUploadResponse struct {
	TrackingID string `json:"trackingId"`
}

func (s *Server) handleCreateUpload(c echo.Context) error {
	entry, err := s.lookup(c)
	if err != nil {
		return err
	}

	slug := entry.Provider.Slug()

	var request createUploadRequest
	if err = c.Bind(&request); err != nil {
		s.uploadCreates.WithLabelValues(slug, "bad_request").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := entry.Provider.CreateUpload(c.Request().Context(), request.Origin)
	if err != nil {
		s.uploadCreates.WithLabelValues(slug, "error").Inc()
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	s.uploadCreates.WithLabelValues(slug, "ok").Inc()

	return c.JSON(http.StatusOK, created)
}

func (s *Server) handleStatus(c echo.Context) error {
	entry, err := s.lookup(c)
	if err != nil {
		return err
	}

	status, err := entry.Provider.CheckStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		s.statusChecks.WithLabelValues(entry.Provider.Slug(), "error").Inc()
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	s.statusChecks.WithLabelValues(entry.Provider.Slug(), "ok").Inc()

	return c.JSON(http.StatusOK, status)
}

// handleProxyUpload performs the provider's full create-then-transfer
// sequence on behalf of the client and returns the tracking id for polling.
func (s *Server) handleProxyUpload(c echo.Context) error {
	entry, err := s.lookup(c)
	if err != nil {
		return err
	}

	slug := entry.Provider.Slug()

	header, err := c.FormFile("file")
	if err != nil {
		s.uploads.WithLabelValues(slug, "bad_request").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "missing file field")
	}

	content, err := header.Open()
	if err != nil {
		s.uploads.WithLabelValues(slug, "bad_request").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer content.Close()

	file := transport.File{
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}

	ctx := c.Request().Context()

	created, err := entry.Provider.CreateUpload(ctx, "")
	if err != nil {
		s.uploads.WithLabelValues(slug, "create_failed").Inc()
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	if err = s.uploader.Upload(ctx, created.Upload, file); err != nil {
		s.uploads.WithLabelValues(slug, "transfer_failed").Inc()
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	s.uploads.WithLabelValues(slug, "ok").Inc()
	s.log.Info().Str("provider", slug).Str("file", header.Filename).Int64("size", header.Size).Msg("relayed upload complete")

	return c.JSON(http.StatusOK, proxyUploadResponse{TrackingID: created.TrackingID})
}
