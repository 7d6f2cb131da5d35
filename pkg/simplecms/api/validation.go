package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

const dateLayout = "2006-01-02"

// Validator checks request input before it reaches the record manager.
type Validator struct {
	// MaxUploadBytes caps attachment size; zero disables the check.
	MaxUploadBytes int64
	// AllowedMimeTypes is the default upload whitelist; empty allows any type.
	AllowedMimeTypes []string
}

// ValidateFields reports missing required fields and malformed expiry dates.
func (v Validator) ValidateFields(cfg simplecms.ResourceConfig, fields simplecms.Fields, verr *ValidationError) {
	for _, name := range cfg.RequiredFields {
		if isBlank(fields[name]) {
			verr.Add(name, "is required")
		}
	}
	if cfg.ExpiryField == "" {
		return
	}
	value, ok := fields[cfg.ExpiryField]
	if !ok || isBlank(value) {
		return
	}
	s, isString := value.(string)
	if !isString {
		verr.Add(cfg.ExpiryField, "must be a date (YYYY-MM-DD)")
		return
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		verr.Add(cfg.ExpiryField, "must be a date (YYYY-MM-DD)")
	}
}

// ValidateUpload checks the attachment's size and sniffed MIME type.
func (v Validator) ValidateUpload(cfg simplecms.ResourceConfig, upload *simplecms.Upload, verr *ValidationError) {
	if upload == nil {
		return
	}
	if upload.Size == 0 {
		verr.Add(fieldAttachment, "must not be empty")
	}
	if v.MaxUploadBytes > 0 && upload.Size > v.MaxUploadBytes {
		verr.Add(fieldAttachment, fmt.Sprintf("must not exceed %d bytes", v.MaxUploadBytes))
	}
	allowed := v.AllowedMimeTypes
	if len(cfg.AllowedMimeTypes) > 0 {
		allowed = cfg.AllowedMimeTypes
	}
	if len(allowed) > 0 && !containsFold(allowed, upload.MimeType) {
		verr.Add(fieldAttachment, fmt.Sprintf("file type %s is not allowed", upload.MimeType))
	}
}

func isBlank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
