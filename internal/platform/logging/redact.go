package logging

import (
	"log/slog"
	"regexp"

	"github.com/m-mizutani/masq"
)

// secretFields are attribute names whose values never reach a log.
// The Notion token shows up under several names depending on the caller:
// config dumps, request headers, koanf keys.
var secretFields = []string{
	"token", "Token",
	"notion_token", "NotionToken", "notion.token",
	"authorization", "Authorization",
	"password", "secret", "api_key", "apiKey",
	"cookie", "credentials",
}

var secretPatterns = []*regexp.Regexp{
	// Notion integration tokens, old and new prefixes.
	regexp.MustCompile(`^(secret|ntn)_[A-Za-z0-9]{20,}$`),

	regexp.MustCompile(`(?i)^(bearer|basic)\s+\S+$`),

	// Notion hands out image URLs presigned for an hour; logging one leaks
	// access to the file.
	regexp.MustCompile(`[?&]X-Amz-(Signature|Credential)=`),
}

// DefaultRedactOptions returns the masq options applied to every handler.
func DefaultRedactOptions() []masq.Option {
	opts := make([]masq.Option, 0, len(secretFields)+len(secretPatterns)+1)

	for _, name := range secretFields {
		opts = append(opts, masq.WithFieldName(name))
	}

	for _, re := range secretPatterns {
		opts = append(opts, masq.WithRegex(re))
	}

	return append(opts, masq.WithFieldPrefix("secret"))
}

// NewReplaceAttr returns a slog ReplaceAttr that redacts secrets, using the
// defaults plus extra.
func NewReplaceAttr(extra ...masq.Option) func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(append(DefaultRedactOptions(), extra...)...)
}
