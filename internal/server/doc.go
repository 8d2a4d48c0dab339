// Package server assembles the gateway's HTTP surface.
//
// One mux carries the OAuth bridge routes, the tool routes (/tools, /call),
// the /openapi passthrough, /healthz, the MCP discovery document and, when
// enabled, the MCP transports. Every request passes through three
// middlewares, outermost first:
//
//   - RequestID assigns or reuses an X-Request-Id
//   - AccessLog writes a "got HTTP request" entry with method, uri, status,
//     size and duration
//   - CORS answers preflights and sets Access-Control-Allow-Origin from a
//     hot-swappable origin list
//
// Gateway failures are JSON bodies of the form {"ok":false,"error":...}.
// Credential problems answer 401 with WWW-Authenticate: Bearer and
// Cache-Control: no-store so OAuth clients re-run authorization.
package server
