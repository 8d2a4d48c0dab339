// Package logging provides the subsystem-tagged structured logger used across
// larkgate.
//
// It wraps log/slog with a package-level logger so call sites only name the
// subsystem and a message:
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stderr)
//
//	logging.Info("Bridge", "Linked identity %s", userID)
//	logging.Debug("Proxy", "Forwarding %s %s", method, path)
//	logging.Warn("Resolver", "Stored token for %s is stale", key)
//	logging.Error("Upstream", err, "Token exchange failed")
//
// Every entry carries a "subsystem" attribute and, for Error, an "error"
// attribute. Secrets such as bearer tokens must go through Redact before
// being logged.
//
// Subsystems in use: Bootstrap, Config, Store, Upstream, Resolver, Bridge,
// Proxy, Tools, MCP, HTTP.
package logging
