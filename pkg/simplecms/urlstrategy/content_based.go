package urlstrategy

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// ContentBasedStrategy generates URLs based on the record ID.
// Downloads are routed through the application's public attachment endpoint.
type ContentBasedStrategy struct {
	APIBaseURL string // e.g., "https://careers.example.ac.id/api/v1" or "/api/v1"
}

// NewContentBasedStrategy creates a new content-based URL strategy
func NewContentBasedStrategy(apiBaseURL string) *ContentBasedStrategy {
	return &ContentBasedStrategy{
		APIBaseURL: strings.TrimSuffix(apiBaseURL, "/"),
	}
}

// AttachmentURL creates a content-based download URL. The version parameter
// changes whenever the record is updated so caches do not serve a replaced file.
func (s *ContentBasedStrategy) AttachmentURL(ctx context.Context, record *simplecms.Record) (string, error) {
	if record.Attachment == nil {
		return "", nil
	}
	if s.APIBaseURL == "" {
		return "", fmt.Errorf("API base URL not configured")
	}

	params := url.Values{}
	if record.Attachment.FileName != "" {
		params.Set("filename", record.Attachment.FileName)
	}
	if record.Version > 0 {
		params.Set("version", fmt.Sprint(record.Version))
	}

	u := fmt.Sprintf("%s/public/%s/%s/attachment", s.APIBaseURL, record.Resource, record.ID)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u, nil
}
