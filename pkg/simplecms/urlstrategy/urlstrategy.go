package urlstrategy

import (
	"context"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// URLStrategy builds the public URL a client uses to fetch a record's attachment.
type URLStrategy interface {
	// AttachmentURL returns "" without error when the record has no attachment.
	AttachmentURL(ctx context.Context, record *simplecms.Record) (string, error)
}

// DefaultAPIBaseURL is the route prefix the api package mounts under.
const DefaultAPIBaseURL = "/api/v1"

// NewDefaultStrategy creates the application-routed strategy.
// An empty base URL falls back to DefaultAPIBaseURL.
func NewDefaultStrategy(apiBaseURL string) URLStrategy {
	if apiBaseURL == "" {
		apiBaseURL = DefaultAPIBaseURL
	}
	return NewContentBasedStrategy(apiBaseURL)
}

// Attach returns the URL for record, or "" when the strategy fails.
func Attach(ctx context.Context, s URLStrategy, record *simplecms.Record) string {
	if s == nil || record == nil {
		return ""
	}
	url, err := s.AttachmentURL(ctx, record)
	if err != nil {
		return ""
	}
	return url
}
