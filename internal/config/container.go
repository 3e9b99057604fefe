package config

import (
	"reading-bridge/internal/domain"
	"reading-bridge/internal/engine"
	"reading-bridge/internal/repository"
	"reading-bridge/internal/service"
	"reading-bridge/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	Config              domain.Config
	Logger              domain.Logger
	SupabaseClient      domain.SupabaseClient
	HighlightRepository domain.HighlightRepository
	Engine              domain.RenderingEngine
	SessionManager      domain.SessionManager
}

// NewContainer creates a new dependency injection container
func NewContainer() (*Container, error) {
	config, err := NewConfig()
	if err != nil {
		return nil, err
	}
	return NewContainerWithConfig(config), nil
}

// NewContainerWithConfig wires the application around an existing config.
// Highlight persistence is only enabled when Supabase is configured and
// reachable.
func NewContainerWithConfig(config domain.Config) *Container {
	appLogger := logger.NewLogger(config.GetLogLevel())

	supabaseClient := repository.NewSupabaseClient(config, appLogger)

	var highlightRepo domain.HighlightRepository
	if supabaseClient.IsConfigured() {
		if err := supabaseClient.Initialize(); err != nil {
			appLogger.Error("Highlight persistence disabled", err)
		} else {
			highlightRepo = repository.NewHighlightRepository(supabaseClient, appLogger)
		}
	} else {
		appLogger.Warn("Supabase not configured, highlights are kept in memory only")
	}

	renderingEngine := engine.NewEngine(config, appLogger)
	newStore := func(initial []domain.Highlight) domain.HighlightStore {
		return repository.NewHighlightStore(appLogger, initial...)
	}
	sessions := service.NewSessionManager(renderingEngine, highlightRepo, newStore, config.GetSearchDebounce(), appLogger)

	return &Container{
		Config:              config,
		Logger:              appLogger,
		SupabaseClient:      supabaseClient,
		HighlightRepository: highlightRepo,
		Engine:              renderingEngine,
		SessionManager:      sessions,
	}
}

// GetConfig returns the configuration instance
func (c *Container) GetConfig() domain.Config {
	return c.Config
}

// GetLogger returns the logger instance
func (c *Container) GetLogger() domain.Logger {
	return c.Logger
}

// GetSessionManager returns the session manager instance
func (c *Container) GetSessionManager() domain.SessionManager {
	return c.SessionManager
}
