package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"larkgate/internal/bridge"
	"larkgate/internal/mcpserver"
	"larkgate/internal/proxy"
	"larkgate/internal/render"
	"larkgate/internal/resolver"
	"larkgate/internal/tools"
	"larkgate/pkg/logging"
	"larkgate/pkg/oauth"
)

// Client facing messages of the gateway routes.
const (
	msgJSONContentType = "Content-Type must be application/json"
	msgCallShape       = "Body must be { tool: string, args?: object }"
	msgBodyJSON        = "Body must be JSON"
	msgUnauthorized    = "unauthorized"
	msgInternal        = "internal error"
)

// openAPIFallbackKeys are lifted from the top level of a /call body into
// the arguments of the generic API tool when the caller nested the rest.
var openAPIFallbackKeys = []string{
	"method", "path", "query", "headers", "body", "bodyType", "form", "files", "responseMode",
}

// TokenSourceFunc returns the token accessor for one Authorization header.
type TokenSourceFunc func(authorization string) proxy.TokenSource

// Gateway serves the tool and passthrough routes.
type Gateway struct {
	registry     *tools.Registry
	exec         tools.Executor
	tokens       TokenSourceFunc
	publicURL    string
	callbackPath string
	version      string
	mcpEnabled   bool
}

// Register mounts the gateway routes on mux.
func (g *Gateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /tools", g.HandleTools)
	mux.HandleFunc("POST /call", g.HandleCall)
	mux.HandleFunc("POST /openapi", g.HandleOpenAPI)
	mux.HandleFunc("GET /healthz", g.HandleHealthz)
	mux.HandleFunc("GET /.well-known/mcp.json", g.HandleMCPDiscovery)
}

// HandleTools serves GET /tools.
func (g *Gateway) HandleTools(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, http.StatusOK, g.registry.List(tools.ParseListOptions(r.URL.Query())))
}

// HandleCall serves POST /call.
func (g *Gateway) HandleCall(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r.Header.Get("Content-Type")) {
		render.Error(w, http.StatusUnsupportedMediaType, msgJSONContentType)
		return
	}

	body, err := render.DecodeObject(r)
	if err != nil {
		render.Error(w, http.StatusBadRequest, msgCallShape)
		return
	}
	name, args, ok := normalizeCall(body, r.URL.Query())
	if !ok {
		render.Error(w, http.StatusBadRequest, msgCallShape)
		return
	}

	tc := tools.NewContext(g.exec, g.tokens(r.Header.Get("Authorization")))
	env, err := g.registry.Call(r.Context(), tc, name, args)
	if err != nil {
		writeCallError(w, name, err)
		return
	}
	writeEnvelope(w, env)
}

// normalizeCall accepts {tool, args} as well as the flattened
// {tool, ...args}. For the generic API tool, path and method may also come
// from the URL query.
func normalizeCall(body map[string]any, query url.Values) (string, map[string]any, bool) {
	name, ok := body["tool"].(string)
	if !ok {
		return "", nil, false
	}

	args, nested := body["args"].(map[string]any)
	if !nested {
		args = make(map[string]any, len(body))
		for k, v := range body {
			if k != "tool" && k != "args" {
				args[k] = v
			}
		}
	}

	if name != tools.OpenAPICallTool {
		return name, args, true
	}

	for _, k := range openAPIFallbackKeys {
		if _, set := args[k]; !set {
			if v, present := body[k]; present {
				args[k] = v
			}
		}
	}
	if args["path"] == nil {
		if p := query.Get("path"); p != "" {
			args["path"] = p
		}
		if m := query.Get("method"); m != "" {
			args["method"] = m
		}
	}
	return name, args, true
}

func writeCallError(w http.ResponseWriter, name string, err error) {
	var reqErr *proxy.RequestError
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		render.Error(w, http.StatusNotFound, "Unknown tool: "+name)
	case resolver.IsTokenError(err):
		render.Unauthorized(w, render.ErrorResponse{OK: false, Error: resolver.PublicMessage(err)})
	case errors.As(err, &reqErr):
		render.Error(w, http.StatusBadRequest, reqErr.Error())
	default:
		logging.Error("HTTP", err, "Tool %s failed", name)
		render.Error(w, http.StatusInternalServerError, msgInternal)
	}
}

// HandleOpenAPI serves POST /openapi, a direct passthrough that insists on a
// bearer credential so OAuth clients are prompted to authorize.
func (g *Gateway) HandleOpenAPI(w http.ResponseWriter, r *http.Request) {
	authorization := r.Header.Get("Authorization")
	if !oauth.HasBearerPrefix(authorization) {
		render.Unauthorized(w, render.ErrorResponse{OK: false, Error: msgUnauthorized})
		return
	}

	body, err := render.DecodeObject(r)
	if err != nil {
		render.Error(w, http.StatusBadRequest, msgBodyJSON)
		return
	}
	args, nested := body["args"].(map[string]any)
	if !nested {
		args = body
	}

	req, err := proxy.NormalizeRequest(args)
	if err != nil {
		render.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	env, err := g.exec.Execute(r.Context(), g.tokens(authorization), req)
	if err != nil {
		writeCallError(w, tools.OpenAPICallTool, err)
		return
	}
	writeEnvelope(w, env)
}

// writeEnvelope answers with the status the proxy chose for env.
func writeEnvelope(w http.ResponseWriter, env *proxy.Envelope) {
	status := env.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	if env.Reauthorize {
		render.NoStoreChallenge(w)
	}
	render.JSON(w, status, env)
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	OK        bool              `json:"ok"`
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Endpoints map[string]string `json:"endpoints"`
}

// HandleHealthz serves GET /healthz with a directory of absolute endpoints.
func (g *Gateway) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	base := bridge.BaseURL(r, g.publicURL)
	endpoints := map[string]string{
		"tools":           base + "/tools",
		"call":            base + "/call",
		"openapi":         base + "/openapi",
		"auth":            base + "/auth",
		"auth_status":     base + "/auth/status",
		"oauth_authorize": base + "/oauth/authorize",
		"oauth_token":     base + "/oauth/token",
	}
	if g.mcpEnabled {
		endpoints["mcp"] = base + mcpserver.StreamablePath
		endpoints["sse"] = base + mcpserver.SSEPath
	}

	render.JSON(w, http.StatusOK, HealthResponse{
		OK:        true,
		Status:    "ok",
		Version:   g.version,
		Endpoints: endpoints,
	})
}

// MCPDiscovery is the body of GET /.well-known/mcp.json.
type MCPDiscovery struct {
	Endpoints map[string]string `json:"endpoints"`
	Auth      map[string]string `json:"auth"`
}

// HandleMCPDiscovery serves GET /.well-known/mcp.json.
func (g *Gateway) HandleMCPDiscovery(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{}
	if g.mcpEnabled {
		endpoints["mcp"] = mcpserver.StreamablePath
		endpoints["sse"] = mcpserver.SSEPath
	}
	render.JSON(w, http.StatusOK, MCPDiscovery{
		Endpoints: endpoints,
		Auth: map[string]string{
			"authorize": "/oauth/authorize",
			"callback":  g.callbackPath,
			"token":     "/oauth/token",
		},
	})
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}
