// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package promptedit

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all prompt edit routes with the router.
//
// Description:
//
//	Registers all /v1/prompt-edit/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/prompt-edit/submit - Submit a prompt and generate an edit plan
//	GET  /v1/prompt-edit/providers - List registered LLM providers
//	GET  /v1/prompt-edit/health - Health check
//	GET  /v1/prompt-edit/:session_id/status - Get session status
//	GET  /v1/prompt-edit/:session_id/preview - Preview plan diffs
//	POST /v1/prompt-edit/:session_id/validate - Validate proposed content
//	POST /v1/prompt-edit/:session_id/format - Format proposed content
//	POST /v1/prompt-edit/:session_id/apply - Apply the plan to the repository
//	POST /v1/prompt-edit/:session_id/test - Run the repository test suite
//
// Example:
//
//	svc, _ := promptedit.NewService(ctx, promptedit.DefaultServiceConfig())
//	handlers := promptedit.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	promptedit.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	promptEdit := rg.Group("/prompt-edit")
	{
		// Plan generation
		promptEdit.POST("/submit", handlers.HandleSubmit)

		// Provider discovery
		promptEdit.GET("/providers", handlers.HandleProviders)

		// Health check
		promptEdit.GET("/health", handlers.HandleHealth)

		// Session pipeline
		promptEdit.GET("/:session_id/status", handlers.HandleStatus)
		promptEdit.GET("/:session_id/preview", handlers.HandlePreview)
		promptEdit.POST("/:session_id/validate", handlers.HandleValidate)
		promptEdit.POST("/:session_id/format", handlers.HandleFormat)
		promptEdit.POST("/:session_id/apply", handlers.HandleApply)
		promptEdit.POST("/:session_id/test", handlers.HandleTest)
	}
}
