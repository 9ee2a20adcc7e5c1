package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ditto-display/ditto/internal/adapters/http/dto"
	"github.com/ditto-display/ditto/internal/app"
)

// StatusHandler serves the server summary.
type StatusHandler struct {
	service *app.StatusService
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(service *app.StatusService) *StatusHandler {
	return &StatusHandler{
		service: service,
	}
}

// Status handles GET /.
func (h *StatusHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// RegisterStatusRoutes registers GET /.
func (h *StatusHandler) RegisterStatusRoutes(r gin.IRoutes) {
	r.GET("/", h.Status)
}
