package v1

import (
	"github.com/gin-gonic/gin"

	"docseq/internal/core/security"
	"docseq/internal/infrastructure/http/v1/handlers"
	"docseq/internal/infrastructure/http/v1/middleware"
)

// RegisterSequenceRoutes registers configuration, allocation and date range
// routes under api.
//
// Drawing a number only needs sequence:read; configuration changes need
// sequence:write.
func RegisterSequenceRoutes(api *gin.RouterGroup, h *handlers.SequenceHandler) {
	read := middleware.RequirePermission(security.PermissionSequenceRead)
	write := middleware.RequirePermission(security.PermissionSequenceWrite)

	seqs := api.Group("/sequences")
	seqs.GET("", read, h.List)
	seqs.POST("", write, h.Create)
	seqs.POST("/next", read, h.NextByCode)
	seqs.GET("/:id", read, h.Get)
	seqs.PATCH("/:id", write, h.Update)
	seqs.DELETE("/:id", write, h.Delete)
	seqs.POST("/:id/next", read, h.Next)
	seqs.GET("/:id/date-ranges", read, h.ListDateRanges)
	seqs.POST("/:id/date-ranges", write, h.CreateDateRange)
	if h.HasHistory() {
		seqs.GET("/:id/history", read, h.History)
	}

	ranges := api.Group("/date-ranges")
	ranges.PATCH("/:rangeId", write, h.UpdateDateRange)
	ranges.DELETE("/:rangeId", write, h.DeleteDateRange)
}
