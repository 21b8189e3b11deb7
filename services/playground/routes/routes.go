// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the HTTP surface of the playground service.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/flatironinstitute/stan-playground/services/playground/handlers"
	"github.com/flatironinstitute/stan-playground/services/playground/middleware"
)

// SetupRoutes registers the complete route table on router. Mutating
// commands are POSTs under /v1; listings and file reads are GETs.
func SetupRoutes(router *gin.Engine, svc *handlers.Service, registry *prometheus.Registry) {
	router.Use(middleware.RequestID())
	router.Use(middleware.Identity())
	router.Use(otelgin.Middleware("stan-playground"))

	router.GET("/health", handlers.HealthCheck)
	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/probe", svc.Probe())

		analyses := v1.Group("/analyses")
		{
			analyses.POST("/create", svc.CreateAnalysis())
			analyses.POST("/clone", svc.CloneAnalysis())
			analyses.POST("/delete", svc.DeleteAnalysis())
			analyses.POST("/undelete", svc.UndeleteAnalysis())
			analyses.POST("/file", svc.SetAnalysisTextFile())
			analyses.POST("/status", svc.SetAnalysisStatus())
			analyses.POST("/listed", svc.SetAnalysisListed())
			analyses.POST("/project", svc.SetAnalysisProject())
			analyses.POST("/data/generate", svc.GenerateAnalysisData())
			analyses.POST("/model/compile", svc.CompileAnalysisModel())
			analyses.GET("/:analysisId/file/:name", svc.GetAnalysisTextFile())
			analyses.GET("/:analysisId/console/:console/ws", svc.ConsoleTail())
		}

		projects := v1.Group("/projects")
		{
			projects.POST("/create", svc.CreateProject())
			projects.POST("/delete", svc.DeleteProject())
			projects.POST("/file", svc.SetProjectTextFile())
			projects.POST("/listed", svc.SetProjectListed())
			projects.GET("", svc.GetProjects())
			projects.GET("/:projectId/analyses", svc.GetProjectAnalyses())
		}
	}
}
