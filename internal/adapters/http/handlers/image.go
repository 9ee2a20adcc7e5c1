package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ditto-display/ditto/internal/adapters/http/dto"
	"github.com/ditto-display/ditto/internal/app"
	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/platform/logging"
)

// Response headers set on every rendered card.
const (
	HeaderQuoteID  = "X-Quote-ID"
	HeaderPosition = "X-Deck-Position"
)

// ImageHandler serves rendered quote cards.
type ImageHandler struct {
	service *app.QuoteService
}

// NewImageHandler creates a new image handler.
func NewImageHandler(service *app.QuoteService) *ImageHandler {
	return &ImageHandler{
		service: service,
	}
}

// Serve returns the handler for one navigation direction.
//
// The client is named by the client_override query parameter, else by the
// caller's IP. Width and height override the client's stored defaults for
// this request only.
//
// @Summary Render the next card for a display
// @Produce image/jpeg
// @Param client_override query string false "Client name"
// @Param width query int false "Width in pixels"
// @Param height query int false "Height in pixels"
// @Success 200 {file} binary
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /{direction} [get]
func (h *ImageHandler) Serve(dir domain.Direction) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q dto.ImageQuery
		if err := dto.BindQueryAndValidate(c, &q); err != nil {
			dto.RespondWithBindError(c, err)
			return
		}

		client := q.ClientOverride
		if client == "" {
			client = c.ClientIP()
		}

		c.Request = c.Request.WithContext(logging.WithClient(c.Request.Context(), client))

		card, err := h.service.Serve(c.Request.Context(), app.ImageRequest{
			Client:    client,
			Direction: dir,
			Width:     q.Width,
			Height:    q.Height,
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
		})
		if err != nil {
			dto.HandleError(c, err)
			return
		}

		c.Header("Cache-Control", "no-store")
		c.Header(HeaderQuoteID, card.Quote.ID)
		c.Header(HeaderPosition, strconv.Itoa(card.Client.CurrentPosition))
		c.Data(http.StatusOK, app.ContentType, card.Image)
	}
}

// RegisterImageRoutes registers one route per direction:
//   - GET /current
//   - GET /next
//   - GET /previous
//   - GET /random
func (h *ImageHandler) RegisterImageRoutes(r gin.IRoutes) {
	for _, dir := range []domain.Direction{
		domain.DirectionCurrent,
		domain.DirectionForward,
		domain.DirectionReverse,
		domain.DirectionRandom,
	} {
		r.GET("/"+dir.String(), h.Serve(dir))
	}
}
