package notion

import (
	"strings"

	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/ports"
)

// Property names read from each catalog page.
const (
	PropContent = "Name"
	PropTitle   = "TITLE"
	PropAuthor  = "AUTHOR"
	PropDisplay = "DISPLAY"

	unknown = "Unknown"
)

// active reports whether a page belongs in the catalog. A page without a
// DISPLAY checkbox is shown.
func (p *page) active() bool {
	if p.Archived || p.InTrash {
		return false
	}

	if prop, ok := p.Properties[PropDisplay]; ok && prop.Checkbox != nil {
		return *prop.Checkbox
	}

	return true
}

func (p *page) content() string {
	prop, ok := p.Properties[PropContent]
	if !ok {
		return ""
	}

	var sb strings.Builder
	for _, part := range prop.Title {
		sb.WriteString(part.PlainText)
	}

	return sb.String()
}

// firstText returns the first rich text run of a property, or "Unknown".
func (p *page) firstText(name string) string {
	prop, ok := p.Properties[name]
	if !ok || len(prop.RichText) == 0 {
		return unknown
	}

	return prop.RichText[0].PlainText
}

// toQuote translates an active page. Inactive pages report ok=false.
func toQuote(p *page) (domain.Quote, bool, error) {
	if !p.active() {
		return domain.Quote{}, false, nil
	}

	if p.ID == "" {
		return domain.Quote{}, false, domain.NewValidationError("id", "page has no id")
	}

	return domain.Quote{
		ID:      p.ID,
		Content: p.content(),
		Title:   p.firstText(PropTitle),
		Author:  p.firstText(PropAuthor),
	}, true, nil
}

// imageRef picks the first image block. Uploaded files carry an expiry,
// external links do not.
func imageRef(blocks []block) *ports.ImageRef {
	for _, b := range blocks {
		if b.Type != "image" || b.Image == nil {
			continue
		}

		switch {
		case b.Image.Type == "file" && b.Image.File != nil:
			return &ports.ImageRef{URL: b.Image.File.URL, Expiry: b.Image.File.ExpiryTime}
		case b.Image.Type == "external" && b.Image.External != nil:
			return &ports.ImageRef{URL: b.Image.External.URL}
		}

		return nil
	}

	return nil
}
