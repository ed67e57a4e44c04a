package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itohio/gotmep/pkg/device"
	"github.com/itohio/gotmep/pkg/gate"
	"github.com/itohio/gotmep/pkg/metrics"
)

//go:embed assets
var assets embed.FS

// Loop runs work on the control loop that owns the device state.
type Loop interface {
	Submit(ctx context.Context, fn func(*device.State)) error
	Now() time.Duration
}

// Server is the local HTTP surface of the device.
type Server struct {
	loop    Loop
	metrics *metrics.Metrics
	logger  *slog.Logger
	router  *gin.Engine
	css     []byte
}

// page carries the values shared by every HTML template.
type page struct {
	Version  string
	Homepage string
}

type reading struct {
	Label string
	Value string
	Unit  string
}

type homePage struct {
	page
	Readings []reading
}

type resetPage struct {
	page
	Result    string
	Remaining int
	Portal    string
}

// New creates the HTTP surface. m may be nil.
func New(loop Loop, m *metrics.Metrics, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := template.ParseFS(assets, "assets/templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	css, err := fs.ReadFile(assets, "assets/styles.css")
	if err != nil {
		return nil, fmt.Errorf("failed to read stylesheet: %w", err)
	}

	s := &Server{
		loop:    loop,
		metrics: m,
		logger:  logger,
		router:  gin.New(),
		css:     css,
	}
	s.router.SetHTMLTemplate(tmpl)
	s.setupRoutes()

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery(), s.logRequests, commonHeaders)

	s.router.GET("/", s.handleHome)
	s.router.GET("/styles.css", s.handleCSS)
	s.router.GET("/api", s.handleAPI)
	s.router.GET("/reset", s.handleReset)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.NoRoute(s.handle404)
}

// commonHeaders disables caching and identifies the agent on every response.
func commonHeaders(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Expires", "-1")
	c.Header("Server", device.ServerHeader())
	c.Next()
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("serving URI",
		slog.String("method", c.Request.Method),
		slog.String("uri", c.Request.URL.RequestURI()),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("took", time.Since(start)),
	)
}

func newPage() page {
	return page{Version: device.Version, Homepage: device.Homepage}
}

// submit runs fn on the control loop and reports whether it ran.
func (s *Server) submit(c *gin.Context, fn func(*device.State)) bool {
	if err := s.loop.Submit(c.Request.Context(), fn); err != nil {
		s.logger.Warn("request not served", slog.String("uri", c.Request.URL.Path), slog.Any("error", err))
		c.String(http.StatusServiceUnavailable, "device is restarting")
		return false
	}
	return true
}

func (s *Server) handleHome(c *gin.Context) {
	var data homePage
	ok := s.submit(c, func(st *device.State) {
		snap := st.Snapshot()
		for _, q := range snap.Quantities() {
			v, _ := snap.Average(q)
			data.Readings = append(data.Readings, reading{
				Label: q.String(),
				Value: fmt.Sprintf("%.2f", v),
				Unit:  q.Unit(),
			})
		}
		data.Readings = append(data.Readings, reading{
			Label: "Signal Strength",
			Value: fmt.Sprint(snap.RSSI),
			Unit:  "dBm",
		})
	})
	if !ok {
		return
	}

	data.page = newPage()
	c.HTML(http.StatusOK, "home.html", data)
}

func (s *Server) handleCSS(c *gin.Context) {
	c.Data(http.StatusOK, "text/css; charset=utf-8", s.css)
}

func (s *Server) handleAPI(c *gin.Context) {
	var doc device.Document
	if !s.submit(c, func(st *device.State) {
		doc = st.Document(st.Snapshot())
	}) {
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleReset(c *gin.Context) {
	candidate := c.Query("pin")

	var (
		out    gate.Outcome
		err    error
		portal string
	)
	if !s.submit(c, func(st *device.State) {
		out, err = st.Gate.Attempt(candidate, s.loop.Now())
		portal = st.DeviceID
	}) {
		return
	}

	data := resetPage{page: newPage(), Portal: portal}
	if err != nil {
		s.logger.Error("configuration reset failed", slog.Any("error", err))
		s.metrics.ResetAttempt("error")
		data.Result = "error"
		c.HTML(http.StatusInternalServerError, "reset.html", data)
		return
	}

	switch out.Result {
	case gate.Accepted:
		s.logger.Info("correct PIN entered, resetting to configuration mode")
	case gate.LockedOut:
		s.logger.Warn("incorrect PIN entered, system locked")
	case gate.Rejected:
		s.logger.Warn("incorrect PIN entered", slog.Int("remaining", out.Remaining))
	}
	s.metrics.ResetAttempt(out.Result.String())

	data.Result = out.Result.String()
	data.Remaining = out.Remaining
	c.HTML(http.StatusOK, "reset.html", data)
}

func (s *Server) handle404(c *gin.Context) {
	c.HTML(http.StatusNotFound, "404.html", newPage())
}
