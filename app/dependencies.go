package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loomcast/script-gateway/auth"
	"github.com/loomcast/script-gateway/config"
	"github.com/loomcast/script-gateway/handlers"
	"github.com/loomcast/script-gateway/middleware"
	"github.com/loomcast/script-gateway/repositories/postgres"
	"github.com/loomcast/script-gateway/services/audit"
	"github.com/loomcast/script-gateway/services/dispatch"
	"github.com/loomcast/script-gateway/services/providers"
	"github.com/loomcast/script-gateway/services/providers/gemini"
	"github.com/loomcast/script-gateway/services/providers/groq"
	"github.com/loomcast/script-gateway/services/routing"
	"go.uber.org/zap"
)

// Dependencies wires the full object graph once at startup. Everything
// it holds is immutable afterwards and safe for concurrent requests.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *providers.Registry
	Router   *routing.Router

	AuthMiddleware  *middleware.AuthMiddleware
	HealthHandler   *handlers.HealthHandler
	GenerateHandler *handlers.GenerateHandler
	ScriptHandler   *handlers.ScriptHandler

	auditDB *sql.DB
}

// NewDependencies builds the dependency graph from configuration
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Provider registry: the closed candidate set, frozen before serving.
	// Registration order designates gemini as the primary.
	registry := providers.NewRegistry()
	if err := registry.Register(gemini.NewClient(gemini.Config{
		APIKey:  cfg.Providers.Gemini.APIKey,
		BaseURL: cfg.Providers.Gemini.BaseURL,
		Cascade: toEndpoints(cfg.Providers.Gemini.Cascade),
	})); err != nil {
		return nil, fmt.Errorf("register gemini provider: %w", err)
	}
	if err := registry.Register(groq.NewClient(groq.Config{
		APIKey:  cfg.Providers.Groq.APIKey,
		BaseURL: cfg.Providers.Groq.BaseURL,
		Model:   cfg.Providers.Groq.Model,
	})); err != nil {
		return nil, fmt.Errorf("register groq provider: %w", err)
	}
	registry.Freeze()
	deps.Registry = registry

	logger.Info("provider registry built",
		zap.Strings("providers", registry.Names()),
		zap.Strings("credentialed", registry.CredentialedNames()))

	// Optional dispatch audit trail
	auditor := audit.NewService(nil, logger)
	if cfg.Audit.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect audit database: %w", err)
		}
		deps.auditDB = db
		auditor = audit.NewService(postgres.NewDispatchRepository(db), logger)
		logger.Info("dispatch audit enabled")
	}

	dispatcher := dispatch.NewDispatcher(cfg.Dispatch.Deadline, logger)
	deps.Router = routing.NewRouter(registry, dispatcher, auditor,
		gemini.ProviderName, groq.ProviderName, logger)

	// Auth mode is decided here, once, from configuration presence,
	// never read from ambient state at request time
	authMode := middleware.ModeAnonymous
	var validator middleware.TokenValidator
	if cfg.Auth.Configured() {
		authMode = middleware.ModeToken
		validator = auth.NewTokenValidator(auth.Config{
			Secret: cfg.Auth.TokenSecret,
			Issuer: cfg.Auth.TokenIssuer,
		})
	} else {
		logger.Warn("token verification unconfigured; admitting all requests as anonymous")
	}
	deps.AuthMiddleware = middleware.NewAuthMiddleware(authMode, validator, logger)

	deps.HealthHandler = handlers.NewHealthHandler(registry, logger)
	deps.GenerateHandler = handlers.NewGenerateHandler(deps.Router, logger)
	deps.ScriptHandler = handlers.NewScriptHandler(deps.Router, logger)

	return deps, nil
}

// Close releases held resources
func (d *Dependencies) Close() error {
	if d.auditDB != nil {
		return d.auditDB.Close()
	}
	return nil
}

// toEndpoints converts config cascade entries to the provider shape
func toEndpoints(entries []config.CascadeEntry) []providers.Endpoint {
	endpoints := make([]providers.Endpoint, len(entries))
	for i, e := range entries {
		endpoints[i] = providers.Endpoint{
			APIVersion: e.APIVersion,
			Model:      e.Model,
		}
	}
	return endpoints
}
