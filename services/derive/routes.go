// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package derive

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName names the otelgin spans.
	ServiceName string

	// RateLimit and Burst bound POST /programs, in requests per second.
	RateLimit float64
	Burst     int

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
}

// NewRouter builds the gin engine for svc.
func NewRouter(svc *Service, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	SetupRoutes(router, svc, rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst))

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	return router
}

// SetupRoutes registers the derive API on router.
func SetupRoutes(router *gin.Engine, svc *Service, limiter *rate.Limiter) {
	v1 := router.Group("/v1/derive")
	{
		v1.GET("/health", svc.HealthCheck)
		v1.GET("/ops", svc.ListOps)

		programs := v1.Group("/programs")
		{
			programs.POST("", RateLimit(limiter), svc.CreateProgram)
			programs.GET("", svc.ListPrograms)
			programs.GET("/:id", svc.GetProgram)
			programs.DELETE("/:id", svc.DeleteProgramHandler)
			programs.POST("/:id/run", svc.RunProgram)
		}
	}
}
