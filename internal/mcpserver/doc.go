// Package mcpserver serves the tool registry over the Model Context Protocol.
//
// Two transports are mounted: streamable HTTP on /mcp, running stateless so
// every POST is self-contained, and the older SSE transport on /sse with its
// companion /message endpoint. Tools are declared from the registry's JSON
// Schemas; a call resolves the upstream token from the Authorization header
// of the HTTP request that carried it and returns the proxy envelope as JSON
// text. Failed upstream calls and token problems are reported as tool errors
// rather than protocol errors.
package mcpserver
