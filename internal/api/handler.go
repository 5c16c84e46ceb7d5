// Package api exposes a read-only HTTP view of the monitor.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/agisilaos/farewatch/internal/state"
	"github.com/gin-gonic/gin"
)

// HistoryReader answers history queries for one route key.
type HistoryReader interface {
	ForRoute(route string) []model.PriceObservation
	MostRecentFor(route string) (model.PriceObservation, bool)
	MinimumFor(route string) (model.PriceObservation, bool)
}

type Handler struct {
	history HistoryReader
	deals   state.Store
	route   string
	status  func() string
}

// NewHandler serves history and deal state for route. status reports the
// scheduler state and may be nil.
func NewHandler(history HistoryReader, deals state.Store, route string, status func() string) *Handler {
	return &Handler{history: history, deals: deals, route: route, status: status}
}

func (h *Handler) Register(router gin.IRoutes) {
	router.GET("/healthz", h.health)
	router.GET("/history", h.list)
	router.GET("/history/min", h.min)
	router.GET("/history/last", h.last)
	router.GET("/deal-state", h.dealState)
}

func (h *Handler) health(c *gin.Context) {
	status := "unknown"
	if h.status != nil {
		status = h.status()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "monitor": status, "route": h.route})
}

func (h *Handler) list(c *gin.Context) {
	all := h.history.ForRoute(h.routeParam(c))
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if n < len(all) {
			all = all[len(all)-n:]
		}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(all), "observations": all})
}

func (h *Handler) min(c *gin.Context) {
	obs, ok := h.history.MinimumFor(h.routeParam(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no priced observation yet"})
		return
	}
	c.JSON(http.StatusOK, obs)
}

func (h *Handler) last(c *gin.Context) {
	obs, ok := h.history.MostRecentFor(h.routeParam(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no observation yet"})
		return
	}
	c.JSON(http.StatusOK, obs)
}

func (h *Handler) dealState(c *gin.Context) {
	route := h.routeParam(c)
	st, err := h.deals.Load(c.Request.Context(), route)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"route": route, "state": st})
}

// routeParam is the ?route= key, defaulting to the monitored route.
func (h *Handler) routeParam(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.DefaultQuery("route", h.route)))
}

// NewRouter builds the engine with recovery and request logging.
func NewRouter(h *Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	h.Register(r)
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if logger != nil {
			logger.Debug("http request", "method", c.Request.Method, "path", c.FullPath(),
				"status", c.Writer.Status(), "duration", time.Since(start))
		}
	}
}

// Serve runs the status server until ctx is done.
func Serve(ctx context.Context, addr string, router http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	if logger != nil {
		logger.Info("status api listening", "addr", addr)
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
