package services

import (
	"context"

	"github.com/docrelay/docrelay/config"
	"github.com/docrelay/docrelay/interfaces"
	"github.com/docrelay/docrelay/internal/logger"
	"github.com/docrelay/docrelay/services/registry"
)

type Services struct {
	SessionRegistry interfaces.SessionRegistry
}

func InitServices(ctx context.Context, cfg *config.Config, log logger.Logger) *Services {
	return &Services{
		SessionRegistry: registry.NewRegistry(ctx, cfg, log),
	}
}
