// File: internal/service/initializers.go
package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/internal/backend"
	"github.com/xkilldash9x/pilot/internal/config"
	"github.com/xkilldash9x/pilot/internal/omniparser"
)

// InitializeAnnotator creates the element-detection client, or returns nil
// when detection is disabled.
func InitializeAnnotator(cfg config.OmniParserConfig, logger *zap.Logger) (backend.Annotator, error) {
	if !cfg.Enabled {
		logger.Debug("Element detection disabled.")
		return nil, nil
	}
	client, err := omniparser.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize element detection: %w", err)
	}
	logger.Info("Element detection enabled.", zap.String("endpoint", cfg.Endpoint))
	return client, nil
}
