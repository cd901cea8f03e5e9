// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/backend"
	"github.com/xkilldash9x/pilot/internal/config"
	"github.com/xkilldash9x/pilot/internal/metrics"
	"github.com/xkilldash9x/pilot/internal/notify"
	"github.com/xkilldash9x/pilot/internal/router"
)

// Components holds everything a runtime needs, and releases it in order.
type Components struct {
	Config    *config.Config
	Router    *router.Router
	Metrics   *metrics.Collector
	Publisher notify.Publisher
	Annotator backend.Annotator

	// Hub is set when the components own the notification hub.
	Hub *notify.Hub

	logger *zap.Logger
}

// Shutdown closes the backends first, so their last notifications are
// published, then stops the hub.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	if c.Router != nil {
		// A separate context, so shutdown completes even after the main
		// context was canceled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.Router.Close(shutdownCtx); err != nil {
			logger.Warn("Error while closing backends.", zap.Error(err))
		} else {
			logger.Debug("Backends closed.")
		}
	}

	if c.Hub != nil {
		c.Hub.Shutdown()
		logger.Debug("Notification hub stopped.", zap.Uint64("dropped", c.Hub.Dropped()))
	}

	logger.Info("All components shut down.")
}

// NewRuntime creates a runtime driving these components' router.
func (c *Components) NewRuntime() *Runtime {
	viewports := map[schemas.BackendSource]schemas.Viewport{
		schemas.SourceBrowser: c.Config.Browser.Viewport,
		schemas.SourceDesktop: c.Config.Desktop.Viewport,
	}
	return NewRuntime(c.Router, viewports, c.logger)
}
