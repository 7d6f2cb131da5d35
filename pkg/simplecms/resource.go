package simplecms

import (
	"fmt"
	"regexp"
	"sort"
)

// Resource names for the built-in career-center resources.
const (
	ResourceArticles      = "articles"
	ResourceNews          = "news"
	ResourceAnnouncements = "announcements"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

var fieldNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ResourceConfig describes one record type managed by the service.
type ResourceConfig struct {
	Name string
	// KeyPrefix seeds blob paths for this resource's attachments.
	KeyPrefix string

	RequiredFields []string
	SearchFields   []string
	FilterFields   []string
	SortFields     []string

	DefaultPageSize int

	// StatsField groups records in Stats; empty disables grouping.
	StatsField string

	// PublicEquals restricts the public listing to matching records.
	PublicEquals map[string]interface{}
	// ExpiryField hides records from the public listing once the field's
	// date (YYYY-MM-DD) is in the past.
	ExpiryField string

	// AllowedMimeTypes overrides the service-wide upload whitelist when set.
	AllowedMimeTypes []string
}

// Validate checks the configuration for unusable field names.
func (c ResourceConfig) Validate() error {
	if !fieldNamePattern.MatchString(c.Name) {
		return fmt.Errorf("invalid resource name %q", c.Name)
	}
	groups := [][]string{c.RequiredFields, c.SearchFields, c.FilterFields, c.SortFields}
	for _, g := range groups {
		for _, f := range g {
			if !fieldNamePattern.MatchString(f) {
				return fmt.Errorf("resource %s: invalid field name %q", c.Name, f)
			}
		}
	}
	for _, f := range []string{c.StatsField, c.ExpiryField} {
		if f != "" && !fieldNamePattern.MatchString(f) {
			return fmt.Errorf("resource %s: invalid field name %q", c.Name, f)
		}
	}
	for f := range c.PublicEquals {
		if !fieldNamePattern.MatchString(f) {
			return fmt.Errorf("resource %s: invalid field name %q", c.Name, f)
		}
	}
	if c.DefaultPageSize < 0 || c.DefaultPageSize > MaxPageSize {
		return fmt.Errorf("resource %s: default page size must not exceed %d", c.Name, MaxPageSize)
	}
	return nil
}

func (c ResourceConfig) pageSize() int {
	if c.DefaultPageSize > 0 {
		return c.DefaultPageSize
	}
	return DefaultPageSize
}

func (c ResourceConfig) keyPrefix() string {
	if c.KeyPrefix != "" {
		return c.KeyPrefix
	}
	return "uploads/" + c.Name
}

func (c ResourceConfig) filterable(field string) bool {
	return contains(c.FilterFields, field) || (field != "" && field == c.ExpiryField)
}

func (c ResourceConfig) sortable(field string) bool {
	return field == SortCreatedAt || field == SortUpdatedAt || contains(c.SortFields, field)
}

// ArticlesResource is the articles configuration.
func ArticlesResource() ResourceConfig {
	return ResourceConfig{
		Name:           ResourceArticles,
		KeyPrefix:      "uploads/articles",
		RequiredFields: []string{"title", "content", "category"},
		SearchFields:   []string{"title", "content"},
		FilterFields:   []string{"category", "is_published"},
		SortFields:     []string{"title", "category"},
		StatsField:     "category",
		PublicEquals:   map[string]interface{}{"is_published": true},
	}
}

// NewsResource is the news configuration.
func NewsResource() ResourceConfig {
	return ResourceConfig{
		Name:           ResourceNews,
		KeyPrefix:      "uploads/news",
		RequiredFields: []string{"title", "body", "status"},
		SearchFields:   []string{"title", "body"},
		FilterFields:   []string{"status", "author"},
		SortFields:     []string{"title", "published_on"},
		StatsField:     "status",
		PublicEquals:   map[string]interface{}{"status": "published"},
	}
}

// AnnouncementsResource is the announcements configuration.
func AnnouncementsResource() ResourceConfig {
	return ResourceConfig{
		Name:           ResourceAnnouncements,
		KeyPrefix:      "uploads/announcements",
		RequiredFields: []string{"title", "body", "expires_on"},
		SearchFields:   []string{"title", "body"},
		SortFields:     []string{"title", "expires_on"},
		ExpiryField:    "expires_on",
	}
}

// DefaultResources returns the built-in resource set.
func DefaultResources() []ResourceConfig {
	return []ResourceConfig{ArticlesResource(), NewsResource(), AnnouncementsResource()}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
