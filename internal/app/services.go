package app

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"larkgate/internal/bridge"
	"larkgate/internal/config"
	"larkgate/internal/kv"
	"larkgate/internal/mcpserver"
	"larkgate/internal/proxy"
	"larkgate/internal/resolver"
	"larkgate/internal/server"
	"larkgate/internal/store"
	"larkgate/internal/tools"
	"larkgate/internal/upstream"
	"larkgate/pkg/logging"
)

// Services holds every component of a running gateway. They are built in
// dependency order: storage, the upstream client, token resolution, the
// OAuth bridge, the proxy and tool registry, the MCP surface and finally the
// HTTP server that mounts them.
type Services struct {
	Store    *store.TokenStore
	Upstream *upstream.Client
	Resolver *resolver.Resolver
	Bridge   *bridge.Bridge
	Proxy    *proxy.Proxy
	Registry *tools.Registry
	// MCP is nil when disabled in the configuration.
	MCP    *mcpserver.Server
	Server *server.Server
}

// InitializeServices builds the component graph described by cfg.
func InitializeServices(cfg config.BrokerConfig, version string, clock clockwork.Clock) (*Services, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	backend, err := kv.Open(cfg.Storage, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Type, err)
	}

	s := &Services{Store: store.New(backend)}

	s.Upstream = upstream.NewClient(cfg.Upstream, nil)
	s.Resolver = resolver.New(s.Store, s.Upstream, clock)
	s.Bridge = bridge.New(s.Store, s.Upstream, bridge.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		CallbackPath: cfg.Upstream.CallbackPath,
	}, clock)

	s.Proxy = proxy.New(s.Upstream.BaseURL(), s.Upstream.HTTPClient())
	s.Registry = tools.NewDefaultRegistry()

	tokens := func(authorization string) proxy.TokenSource {
		return s.Resolver.Accessor(authorization)
	}

	if cfg.MCP.Enabled {
		s.MCP = mcpserver.New(s.Registry, s.Proxy, tokens, mcpserver.Options{
			Name:    cfg.MCP.Name,
			Version: version,
			BaseURL: cfg.Server.PublicURL,
		})
	} else {
		logging.Info("Bootstrap", "MCP transports disabled")
	}

	s.Server = server.New(cfg.Server, cfg.CORS.AllowedOrigins, server.Deps{
		Bridge:   s.Bridge,
		Registry: s.Registry,
		Executor: s.Proxy,
		Tokens:   tokens,
		MCP:      s.MCP,
		Version:  version,
	})

	logging.Info("Bootstrap", "Initialized %d tools against %s", s.Registry.Len(), s.Upstream.BaseURL())
	return s, nil
}

// Close releases the storage backend.
func (s *Services) Close() error {
	if s.MCP != nil {
		s.MCP.Close()
	}
	return s.Store.Close()
}
