// Package app provides application bootstrap and lifecycle management for
// larkgate.
//
// # Bootstrap
//
// NewApplication resolves the effective configuration (defaults, yaml file,
// .env, environment, command line flags), validates it, initializes logging
// and builds the service graph in InitializeServices:
//
//	kv backend -> TokenStore -> upstream Client -> Resolver
//	                                            -> Bridge
//	upstream Client -> Proxy -> tool Registry -> MCP server
//	everything -> HTTP server
//
// # Lifecycle
//
// Run binds the listener, notifies systemd when present, serves until
// SIGINT or SIGTERM, then drains in-flight requests within the configured
// shutdown timeout. A config file watcher re-applies CORS origins without a
// restart.
package app
