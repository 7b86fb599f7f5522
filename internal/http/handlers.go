/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/adapters/jira"
	"github.com/HamedShams/portfolio-pulse/internal/analytics"
	"github.com/HamedShams/portfolio-pulse/internal/config"
	"github.com/HamedShams/portfolio-pulse/internal/domain"
	"github.com/HamedShams/portfolio-pulse/internal/repo"
	"github.com/HamedShams/portfolio-pulse/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxSimulations = 100000

// Service is what the API needs from the service layer.
type Service interface {
	RefreshSnapshot(ctx context.Context) (domain.Snapshot, error)
	IngestSnapshot(ctx context.Context, p jira.Payload) (domain.Snapshot, error)
	RunWeeklyDigest(ctx context.Context) error
	LastRuns(ctx context.Context) ([]repo.JobRun, error)
	Epics(ctx context.Context) ([]analytics.EpicView, error)
	Initiatives(ctx context.Context) ([]analytics.InitiativeView, error)
	Throughput(ctx context.Context, period string) ([]analytics.ThroughputPoint, error)
	CumulativeFlow(ctx context.Context, weeks int) (analytics.CumulativeFlow, error)
	LeadTime(ctx context.Context) (analytics.LeadTimeReport, error)
	WIP(ctx context.Context) (analytics.WIPReport, error)
	Prioritization(ctx context.Context) (analytics.PrioritizationReport, error)
	Forecast(ctx context.Context, remaining, simulations int) (analytics.ForecastReport, error)
	ForecastRuns(ctx context.Context, limit int) ([]repo.ForecastRun, error)
}

type Handlers struct {
	cfg config.Config
	log zerolog.Logger
	svc Service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc Service) *Handlers {
	return &Handlers{cfg: cfg, log: log, svc: svc}
}

// fail maps service errors onto status codes.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, analytics.ErrInvalidSnapshot), errors.Is(err, analytics.ErrInvalidPeriod):
		status = http.StatusBadRequest
	case errors.Is(err, repo.ErrNoSnapshot):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrJiraDisabled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("p", c.FullPath()).Msg("http: request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// intQuery reads a non-negative integer query parameter; absent means def.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw, present := c.GetQuery(name)
	if !present || raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func respond[T any](h *Handlers, c *gin.Context, v T, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
	runs, err := h.svc.LastRuns(c.Request.Context())
	respond(h, c, runs, err)
}

func snapshotSummary(s domain.Snapshot) gin.H {
	return gin.H{"id": s.ID, "takenAt": s.TakenAt, "source": s.Source, "epics": len(s.Epics), "initiatives": len(s.Initiatives)}
}

func (h *Handlers) Refresh(c *gin.Context) {
	snap, err := h.svc.RefreshSnapshot(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotSummary(snap))
}

func (h *Handlers) IngestSnapshot(c *gin.Context) {
	var p jira.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	snap, err := h.svc.IngestSnapshot(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, snapshotSummary(snap))
}

func (h *Handlers) RunDigest(c *gin.Context) {
	// Run in background detached from the HTTP request to avoid context cancellation
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := h.svc.RunWeeklyDigest(ctx); err != nil {
			h.log.Error().Err(err).Msg("http: digest failed")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) Epics(c *gin.Context) {
	v, err := h.svc.Epics(c.Request.Context())
	respond(h, c, v, err)
}

func (h *Handlers) Initiatives(c *gin.Context) {
	v, err := h.svc.Initiatives(c.Request.Context())
	respond(h, c, v, err)
}

func (h *Handlers) Throughput(c *gin.Context) {
	v, err := h.svc.Throughput(c.Request.Context(), c.Query("period"))
	respond(h, c, v, err)
}

func (h *Handlers) CumulativeFlow(c *gin.Context) {
	weeks, ok := intQuery(c, "weeks", 0)
	if !ok {
		return
	}
	v, err := h.svc.CumulativeFlow(c.Request.Context(), weeks)
	respond(h, c, v, err)
}

func (h *Handlers) LeadTime(c *gin.Context) {
	v, err := h.svc.LeadTime(c.Request.Context())
	respond(h, c, v, err)
}

func (h *Handlers) WIP(c *gin.Context) {
	v, err := h.svc.WIP(c.Request.Context())
	respond(h, c, v, err)
}

func (h *Handlers) Prioritization(c *gin.Context) {
	v, err := h.svc.Prioritization(c.Request.Context())
	respond(h, c, v, err)
}

func (h *Handlers) Forecast(c *gin.Context) {
	remaining, ok := intQuery(c, "remaining", services.OpenRemaining)
	if !ok {
		return
	}
	sims, ok := intQuery(c, "simulations", 0)
	if !ok {
		return
	}
	if sims > maxSimulations {
		c.JSON(http.StatusBadRequest, gin.H{"error": "simulations must not exceed " + strconv.Itoa(maxSimulations)})
		return
	}
	v, err := h.svc.Forecast(c.Request.Context(), remaining, sims)
	respond(h, c, v, err)
}

func (h *Handlers) ForecastRuns(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	v, err := h.svc.ForecastRuns(c.Request.Context(), limit)
	respond(h, c, v, err)
}
