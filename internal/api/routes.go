package api

import (
	"net/http"

	"github.com/JaimeStill/canopy/internal/config"
	"github.com/JaimeStill/canopy/pkg/routes"
)

func apiGroups(domain *Domain, cfg *config.Config, runtime *Runtime) []routes.Group {
	archives := newArchiveHandler(runtime.Storage, runtime.Logger, cfg.Storage.MaxListSize)
	prefixes := cfg.API.Routes

	return []routes.Group{
		domain.Ingestion.Handler(cfg.API.MaxUploadSizeBytes()).Routes().WithPrefix(prefixes.Ingest),
		domain.Zones.Handler().Routes().WithPrefix(prefixes.Zones),
		domain.Exports.Handler().Routes().WithPrefix(prefixes.Exports),
		domain.Register.Handler().Routes().WithPrefix(prefixes.Register),
		archives.routes().WithPrefix(prefixes.Archives),
	}
}

func registerRoutes(mux *http.ServeMux, domain *Domain, cfg *config.Config, runtime *Runtime) {
	groups := apiGroups(domain, cfg, runtime)
	routes.Register(mux, groups...)

	for _, pattern := range routes.Patterns(groups...) {
		runtime.Logger.Debug("route registered", "base", cfg.API.BasePath, "pattern", pattern)
	}
}
