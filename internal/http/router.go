/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc Service) *gin.Engine {
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Dur("took", time.Since(start)).Msg("http")
	})

	h := NewHandlers(cfg, log, svc)

	r.GET("/healthz", h.Healthz)

	admin := r.Group("/admin")
	admin.GET("/last-run", h.LastRun)
	admin.POST("/refresh", h.Refresh)
	admin.POST("/digest", h.RunDigest)

	api := r.Group("/api")
	api.POST("/snapshot", h.IngestSnapshot)
	api.GET("/epics", h.Epics)
	api.GET("/initiatives", h.Initiatives)
	api.GET("/flow/throughput", h.Throughput)
	api.GET("/flow/cfd", h.CumulativeFlow)
	api.GET("/flow/lead-time", h.LeadTime)
	api.GET("/flow/wip", h.WIP)
	api.GET("/prioritization", h.Prioritization)
	api.GET("/forecast", h.Forecast)
	api.GET("/forecast/runs", h.ForecastRuns)

	return r
}
