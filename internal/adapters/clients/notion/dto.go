package notion

import "time"

// Wire shapes of the upstream API. Only the fields the catalog reads are
// declared; they never leave this package.

type queryRequest struct {
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
}

type queryResponse struct {
	Results    []page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type page struct {
	ID         string              `json:"id"`
	Archived   bool                `json:"archived"`
	InTrash    bool                `json:"in_trash"`
	Properties map[string]property `json:"properties"`
}

type property struct {
	Type     string     `json:"type"`
	Title    []richText `json:"title"`
	RichText []richText `json:"rich_text"`
	Checkbox *bool      `json:"checkbox"`
}

type richText struct {
	PlainText string `json:"plain_text"`
}

type blockList struct {
	Results    []block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type block struct {
	ID    string      `json:"id"`
	Type  string      `json:"type"`
	Image *imageBlock `json:"image,omitempty"`
}

type imageBlock struct {
	Type     string     `json:"type"`
	File     *fileRef   `json:"file,omitempty"`
	External *externRef `json:"external,omitempty"`
}

type fileRef struct {
	URL        string     `json:"url"`
	ExpiryTime *time.Time `json:"expiry_time"`
}

type externRef struct {
	URL string `json:"url"`
}
