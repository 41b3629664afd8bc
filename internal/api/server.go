// Package api exposes the query façade over HTTP: series listing, event
// streaming with downsampling, and window statistics. The endpoints map
// 1:1 onto the query engine; no state lives in the handlers.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/chronofile/tsdb/internal/logger"
	"github.com/chronofile/tsdb/internal/query"
	"github.com/chronofile/tsdb/pkg/tsdb"
)

const requestIDHeader = "X-Request-Id"

type Server struct {
	engine *query.Engine
	log    logger.Logger
	clock  func() time.Time
}

func NewServer(engine *query.Engine, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		engine: engine,
		log:    log,
		clock:  time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/api/series", s.requestID(s.handleSeries))
	e.GET("/api/events", s.requestID(s.handleEvents))
	e.GET("/api/stats", s.requestID(s.handleStats))
}

// requestID tags every request with an id echoed in the response header:
// the incoming X-Request-Id when present, otherwise a new uuid. Handler log
// lines pick it up from there.
func (s *Server) requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := c.Request().Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Response().Header().Set(requestIDHeader, id)
		return next(c)
	}
}

func (s *Server) logFor(c *echo.Context) logger.Logger {
	if id := c.Response().Header().Get(requestIDHeader); id != "" {
		return s.log.With("request_id", id)
	}
	return s.log
}

func (s *Server) handleSeries(c *echo.Context) error {
	startMs := int64(0)
	if raw := c.QueryParam("start"); raw != "" {
		var err error
		if startMs, err = parseTimestamp(raw); err != nil {
			return writeBadRequest(c, err.Error())
		}
	}
	endMs := s.clock().UnixMilli()
	if raw := c.QueryParam("end"); raw != "" {
		var err error
		if endMs, err = parseTimestamp(raw); err != nil {
			return writeBadRequest(c, err.Error())
		}
	}

	res, err := s.engine.ListSeries(c.Request().Context(), startMs, endMs)
	if err != nil {
		return s.queryError(c, err)
	}
	return writeJSON(c, http.StatusOK, SeriesResponse{
		Start:  startMs,
		End:    endMs,
		Files:  res.Files,
		Series: res.Series,
	})
}

func (s *Server) handleEvents(c *echo.Context) error {
	series := c.QueryParam("series")
	if series == "" {
		return writeBadRequest(c, "series is required")
	}
	startMs, endMs, err := windowParams(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	maxEvents, err := strconv.Atoi(c.QueryParam("maxEvents"))
	if err != nil {
		return writeBadRequest(c, "maxEvents must be an integer")
	}

	res, err := s.engine.Events(c.Request().Context(), series, startMs, endMs, maxEvents)
	if err != nil {
		return s.queryError(c, err)
	}
	s.logFor(c).Debug("events query",
		"series", series, "points", len(res.Raw)+len(res.Buckets), "downsampled", res.Downsampled)
	return writeJSON(c, http.StatusOK, eventsResponse(series, startMs, endMs, maxEvents, res))
}

func (s *Server) handleStats(c *echo.Context) error {
	series := c.QueryParam("series")
	if series == "" {
		return writeBadRequest(c, "series is required")
	}
	startMs, endMs, err := windowParams(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	res, err := s.engine.Stats(c.Request().Context(), series, startMs, endMs)
	if err != nil {
		return s.queryError(c, err)
	}
	out := StatsResponse{
		Series:        series,
		Start:         startMs,
		End:           endMs,
		Count:         res.Count,
		DecimalPlaces: res.DecimalPlaces,
		Files:         res.Files,
		MaxValue:      res.Max,
	}
	if res.Current != nil {
		out.CurrentValue = &res.Current.Value
	}
	return writeJSON(c, http.StatusOK, out)
}

func windowParams(c *echo.Context) (int64, int64, error) {
	startMs, err := parseTimestamp(c.QueryParam("start"))
	if err != nil {
		return 0, 0, err
	}
	endMs, err := parseTimestamp(c.QueryParam("end"))
	if err != nil {
		return 0, 0, err
	}
	return startMs, endMs, nil
}

func (s *Server) queryError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, query.ErrWindowInvalid), errors.Is(err, query.ErrMaxEventsInvalid):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, query.ErrCancelled):
		return writeError(c, http.StatusServiceUnavailable, "cancelled", err.Error())
	}
	var fe *tsdb.FormatError
	if errors.As(err, &fe) {
		s.logFor(c).Error("corrupt day file", "path", fe.Path, "offset", fe.Offset, "error", fe.Err)
		return writeError(c, http.StatusInternalServerError, "corrupt_file", err.Error())
	}
	s.logFor(c).Error("query failed", "error", err)
	return writeError(c, http.StatusInternalServerError, "internal", err.Error())
}
