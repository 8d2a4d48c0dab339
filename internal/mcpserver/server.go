package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"larkgate/internal/proxy"
	"larkgate/internal/resolver"
	"larkgate/internal/tools"
	"larkgate/pkg/logging"
)

// Mount points of the MCP transports.
const (
	StreamablePath = "/mcp"
	SSEPath        = "/sse"
	MessagePath    = "/message"
)

// sseKeepAliveInterval matches what MCP clients expect from long-lived
// event streams behind proxies.
const sseKeepAliveInterval = 30 * time.Second

// TokenSourceFunc returns the token accessor for one Authorization header.
type TokenSourceFunc func(authorization string) proxy.TokenSource

// Options configures the MCP surface.
type Options struct {
	Name    string
	Version string
	// BaseURL is prefixed to the message endpoint announced on /sse. Empty
	// announces a path relative to the host the client connected to.
	BaseURL string
}

// Server exposes a tools.Registry to MCP clients. Every tool call resolves
// the upstream token from the Authorization header of the HTTP request that
// carried it.
type Server struct {
	registry *tools.Registry
	exec     tools.Executor
	tokens   TokenSourceFunc

	mcpServer  *server.MCPServer
	streamable *server.StreamableHTTPServer
	sse        *server.SSEServer

	closing context.Context
	close   context.CancelFunc
}

// New builds the MCP server and both HTTP transports.
func New(registry *tools.Registry, exec tools.Executor, tokens TokenSourceFunc, opts Options) *Server {
	closing, cancel := context.WithCancel(context.Background())
	s := &Server{
		registry: registry,
		exec:     exec,
		tokens:   tokens,
		closing:  closing,
		close:    cancel,
	}

	s.mcpServer = server.NewMCPServer(
		opts.Name,
		opts.Version,
		server.WithToolCapabilities(false),
	)
	s.mcpServer.AddTools(s.serverTools()...)

	s.streamable = server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath(StreamablePath),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(withAuthorization),
	)

	s.sse = server.NewSSEServer(
		s.mcpServer,
		server.WithBaseURL(opts.BaseURL),
		server.WithSSEEndpoint(SSEPath),
		server.WithMessageEndpoint(MessagePath),
		server.WithKeepAlive(true),
		server.WithKeepAliveInterval(sseKeepAliveInterval),
		server.WithSSEContextFunc(withAuthorization),
	)

	logging.Info("MCP", "Exposing %d tools on %s and %s", registry.Len(), StreamablePath, SSEPath)
	return s
}

// Register mounts the transports on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle(StreamablePath, s.streamable)
	mux.Handle(SSEPath, s.streamHandler(s.sse.SSEHandler()))
	mux.Handle(MessagePath, s.sse.MessageHandler())
}

// Close ends open event streams so the HTTP server can drain.
func (s *Server) Close() {
	s.close()
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// streamHandler lifts the server write timeout for long-lived streams and
// cancels them once Close is called.
func (s *Server) streamHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		stop := context.AfterFunc(s.closing, cancel)
		defer stop()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) serverTools() []server.ServerTool {
	all := s.registry.All()
	out := make([]server.ServerTool, 0, len(all))
	for _, t := range all {
		out = append(out, server.ServerTool{
			Tool:    toMCPTool(t),
			Handler: s.toolHandler(t.Name),
		})
	}
	return out
}

// toMCPTool converts a registry tool to its MCP declaration.
func toMCPTool(t tools.Tool) mcp.Tool {
	schema := t.InputSchema()
	properties, _ := schema["properties"].(map[string]any)
	required, _ := schema["required"].([]string)

	return mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   required,
		},
	}
}

func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		tc := tools.NewContext(s.exec, s.tokens(authorizationFrom(ctx)))

		env, err := s.registry.Call(ctx, tc, name, args)
		if err != nil {
			return errorResult(name, err), nil
		}
		return envelopeResult(env)
	}
}

// errorResult turns a failed call into a tool error the model can read.
func errorResult(name string, err error) *mcp.CallToolResult {
	var reqErr *proxy.RequestError
	switch {
	case resolver.IsTokenError(err):
		return mcp.NewToolResultError(resolver.PublicMessage(err))
	case errors.As(err, &reqErr):
		return mcp.NewToolResultError(reqErr.Error())
	default:
		logging.Error("MCP", err, "Tool %s failed", name)
		return mcp.NewToolResultError("internal error")
	}
}

// envelopeResult returns the proxy envelope as JSON text. Upstream failures
// are flagged as tool errors but keep the full envelope.
func envelopeResult(env *proxy.Envelope) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	if !env.OK {
		return mcp.NewToolResultError(string(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
