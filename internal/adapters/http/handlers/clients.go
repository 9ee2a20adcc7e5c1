package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ditto-display/ditto/internal/adapters/http/dto"
	"github.com/ditto-display/ditto/internal/app"
	"github.com/ditto-display/ditto/internal/domain"
)

// ClientHandler handles client management endpoints.
type ClientHandler struct {
	service *app.ClientService
}

// NewClientHandler creates a new client handler.
func NewClientHandler(service *app.ClientService) *ClientHandler {
	return &ClientHandler{
		service: service,
	}
}

// Register handles POST /clients.
// Registration is idempotent: 201 for a new client, 200 with the stored
// record for an existing one.
//
// @Summary Register a display client
// @Accept json
// @Produce json
// @Param request body dto.RegisterClientRequest true "Client"
// @Success 200 {object} dto.ClientResponse
// @Success 201 {object} dto.ClientResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /clients [post]
func (h *ClientHandler) Register(c *gin.Context) {
	var req dto.RegisterClientRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondWithBindError(c, err)
		return
	}

	client, created, err := h.service.Register(c.Request.Context(), app.RegisterRequest{
		Name:   req.ClientName,
		Width:  req.Width,
		Height: req.Height,
	})
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	c.JSON(status, dto.ToClientResponse(client))
}

// List handles GET /clients.
func (h *ClientHandler) List(c *gin.Context) {
	clients, err := h.service.List(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToClientListResponse(clients))
}

// Update handles PATCH /clients/:id.
//
// @Summary Update a display client
// @Accept json
// @Produce json
// @Param id path int true "Client ID"
// @Param request body dto.UpdateClientRequest true "Fields to change"
// @Success 200 {object} dto.ClientResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /clients/{id} [patch]
func (h *ClientHandler) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		dto.HandleError(c, domain.NewValidationErrorWithValue("id", "must be a positive integer", c.Param("id")))
		return
	}

	var req dto.UpdateClientRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondWithBindError(c, err)
		return
	}

	client, err := h.service.Update(c.Request.Context(), id, req.ToDomain())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToClientResponse(client))
}

// RegisterClientRoutes registers client routes on the given router group.
func (h *ClientHandler) RegisterClientRoutes(r gin.IRoutes) {
	r.POST("/clients", h.Register)
	r.GET("/clients", h.List)
	r.PATCH("/clients/:id", h.Update)
}
