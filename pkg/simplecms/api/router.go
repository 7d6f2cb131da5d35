package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/urlstrategy"
)

// DefaultPublicCacheMaxAge is the Cache-Control max-age of public GET responses.
const DefaultPublicCacheMaxAge = 60

// RouterConfig wires the admin and public handlers together
type RouterConfig struct {
	Service   simplecms.Service
	Validator Validator
	URLs      urlstrategy.URLStrategy
	Logger    *slog.Logger

	CORSOrigins []string
	// PublicCacheMaxAge of zero uses DefaultPublicCacheMaxAge; negative disables caching.
	PublicCacheMaxAge int
}

// NewRouter returns a router serving /admin and /public. Mount it under the
// API base path, e.g. /api/v1.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(CORSMiddleware(cfg.CORSOrigins, nil, nil))

	admin := NewAdminHandler(cfg.Service, cfg.Validator, cfg.Logger)
	public := NewPublicHandler(cfg.Service, cfg.URLs, cfg.Logger)

	r.Mount("/admin", admin.Routes())

	maxAge := cfg.PublicCacheMaxAge
	if maxAge == 0 {
		maxAge = DefaultPublicCacheMaxAge
	}
	if maxAge > 0 {
		r.With(CacheMiddleware(maxAge)).Mount("/public", public.Routes())
	} else {
		r.Mount("/public", public.Routes())
	}

	return r
}
