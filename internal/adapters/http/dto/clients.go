package dto

import (
	"time"

	"github.com/ditto-display/ditto/internal/domain"
)

// RegisterClientRequest is the body of POST /clients.
type RegisterClientRequest struct {
	ClientName string `json:"client_name" validate:"required,clientname"`
	Width      *int   `json:"width"       validate:"omitempty,pixels"`
	Height     *int   `json:"height"      validate:"omitempty,pixels"`
}

// UpdateClientRequest is the body of PATCH /clients/{id}. Omitted fields
// are left unchanged.
type UpdateClientRequest struct {
	Width    *int `json:"width"    validate:"omitempty,pixels"`
	Height   *int `json:"height"   validate:"omitempty,pixels"`
	Position *int `json:"position" validate:"omitempty,position"`
}

// Validate implements Validatable.
func (r *UpdateClientRequest) Validate() error {
	if r.ToDomain().Empty() {
		return domain.NewValidationError("body", "at least one of width, height or position is required")
	}

	return nil
}

// ToDomain converts the request to a partial update.
func (r *UpdateClientRequest) ToDomain() domain.ClientUpdate {
	return domain.ClientUpdate{Width: r.Width, Height: r.Height, Position: r.Position}
}

// ClientResponse is a client as served by the API.
type ClientResponse struct {
	ID              int64     `json:"id"`
	ClientName      string    `json:"client_name"`
	DefaultWidth    int       `json:"default_width"`
	DefaultHeight   int       `json:"default_height"`
	CurrentPosition int       `json:"current_position"`
	CreatedAt       time.Time `json:"created_at"`
}

// ToClientResponse converts a domain client.
func ToClientResponse(c *domain.Client) ClientResponse {
	return ClientResponse{
		ID:              c.ID,
		ClientName:      c.Name,
		DefaultWidth:    c.DefaultWidth,
		DefaultHeight:   c.DefaultHeight,
		CurrentPosition: c.CurrentPosition,
		CreatedAt:       c.CreatedAt.UTC(),
	}
}

// ClientListResponse is the body of GET /clients.
type ClientListResponse struct {
	Clients []ClientResponse `json:"clients"`
	Count   int              `json:"count"`
}

// ToClientListResponse converts a list of clients.
func ToClientListResponse(clients []domain.Client) ClientListResponse {
	out := ClientListResponse{Clients: make([]ClientResponse, 0, len(clients)), Count: len(clients)}
	for i := range clients {
		out.Clients = append(out.Clients, ToClientResponse(&clients[i]))
	}

	return out
}

// ImageQuery holds the optional query parameters of the image routes.
type ImageQuery struct {
	ClientOverride string `form:"client_override" json:"client_override" validate:"omitempty,max=128"`
	Width          int    `form:"width"           json:"width"           validate:"omitempty,pixels"`
	Height         int    `form:"height"          json:"height"          validate:"omitempty,pixels"`
}
