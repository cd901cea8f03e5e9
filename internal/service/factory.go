// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/internal/backend"
	"github.com/xkilldash9x/pilot/internal/backend/browser"
	"github.com/xkilldash9x/pilot/internal/backend/desktop"
	"github.com/xkilldash9x/pilot/internal/config"
	"github.com/xkilldash9x/pilot/internal/metrics"
	"github.com/xkilldash9x/pilot/internal/notify"
	"github.com/xkilldash9x/pilot/internal/router"
)

// Backends opens backend sessions. The production implementation launches
// Chrome and connects to Docker; tests substitute fakes.
type Backends interface {
	Browser(ctx context.Context, settings browser.Settings, logger *zap.Logger, pub notify.Publisher, opts ...browser.Option) (backend.Backend, error)
	Desktop(ctx context.Context, cfg config.DesktopConfig, logger *zap.Logger, pub notify.Publisher, opts ...desktop.Option) (backend.Backend, error)
}

type liveBackends struct{}

func (liveBackends) Browser(ctx context.Context, settings browser.Settings, logger *zap.Logger, pub notify.Publisher, opts ...browser.Option) (backend.Backend, error) {
	a, err := browser.Launch(ctx, settings, logger, pub, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (liveBackends) Desktop(ctx context.Context, cfg config.DesktopConfig, logger *zap.Logger, pub notify.Publisher, opts ...desktop.Option) (backend.Backend, error) {
	a, err := desktop.Connect(ctx, cfg, logger, pub, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ComponentFactory builds the components for a runtime.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, publisher notify.Publisher, logger *zap.Logger) (*Components, error)
}

type concreteFactory struct {
	backends Backends
}

// NewComponentFactory creates the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{backends: liveBackends{}}
}

// NewComponentFactoryWith creates a factory over custom backend constructors.
func NewComponentFactoryWith(backends Backends) ComponentFactory {
	return &concreteFactory{backends: backends}
}

// Create wires metrics, element detection and both backends into a router.
// publisher receives every notification; a nil publisher creates a hub owned
// by the components.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, publisher notify.Publisher, logger *zap.Logger) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	components := &Components{Config: cfg, logger: logger.Named("components")}

	if publisher == nil {
		components.Hub = notify.NewHub(logger, 0)
		publisher = components.Hub
	}

	// 1. Metrics, counting every notification on its way out.
	components.Metrics = metrics.NewCollector("pilot", logger)
	components.Publisher = components.Metrics.Publisher(publisher)
	logger.Debug("Metrics collector initialized.")

	// 2. Optional element detection.
	annotator, err := InitializeAnnotator(cfg.OmniParser, logger)
	if err != nil {
		components.Shutdown()
		return nil, err
	}
	components.Annotator = annotator

	// 3. Backends, behind the router.
	opts := []router.Option{
		router.WithBrowser(f.browserFactory(cfg, components, logger), cfg.Browser.Viewport),
		router.WithObserver(components.Metrics),
		router.WithPublisher(components.Publisher),
	}
	if cfg.Desktop.Enabled {
		opts = append(opts, router.WithDesktop(f.desktopFactory(cfg, components, logger), cfg.Desktop.Viewport))
	}
	components.Router = router.New(logger, opts...)
	logger.Debug("Router initialized.", zap.Bool("desktop_enabled", cfg.Desktop.Enabled))

	return components, nil
}

func (f *concreteFactory) browserFactory(cfg *config.Config, c *Components, logger *zap.Logger) router.Factory {
	settings := browser.Settings{Browser: cfg.Browser, Loading: cfg.Loading, Stability: cfg.Stability}
	return func(ctx context.Context) (backend.Backend, error) {
		opts := []browser.Option{browser.WithSettleHook(c.Metrics.ObserveSettle)}
		if c.Annotator != nil {
			opts = append(opts, browser.WithAnnotator(c.Annotator))
		}
		return f.backends.Browser(ctx, settings, logger, c.Publisher, opts...)
	}
}

func (f *concreteFactory) desktopFactory(cfg *config.Config, c *Components, logger *zap.Logger) router.Factory {
	return func(ctx context.Context) (backend.Backend, error) {
		opts := []desktop.Option{desktop.WithSettleHook(c.Metrics.ObserveSettle)}
		if c.Annotator != nil {
			opts = append(opts, desktop.WithAnnotator(c.Annotator))
		}
		return f.backends.Desktop(ctx, cfg.Desktop, logger, c.Publisher, opts...)
	}
}
