// Package tools holds the named operations exposed over /tools, /call and
// MCP. Each tool maps its arguments onto a proxy.Request; the Registry
// validates required arguments, lists tools with name-ordered cursor paging
// and dispatches calls through a per-request Context.
package tools
