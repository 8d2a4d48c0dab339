package tools

import (
	"context"
	"net/url"

	"larkgate/internal/proxy"
)

// OpenAPICallTool is the generic passthrough tool name.
const OpenAPICallTool = "feishu_openapi_call"

var (
	pageSizeArg  = Arg{Name: "page_size", Type: "integer", Description: "Page size, default 20"}
	pageTokenArg = Arg{Name: "page_token", Type: "string", Description: "Pagination cursor from a previous page"}
	appTokenArg  = Arg{Name: "app_token", Type: "string", Required: true, Description: "Bitable app_token, taken from the base URL or another tool"}
	tableIDArg   = Arg{Name: "table_id", Type: "string", Required: true, Description: "Table id inside the Bitable app"}
)

// Catalog returns every built-in tool.
func Catalog() []Tool {
	return []Tool{
		{
			Name:        "get_user_info",
			Description: "Get the profile of the linked Feishu user (name, open_id, email, avatar).",
			Handler:     get("/authen/v1/user_info"),
		},
		{
			Name:        "list_chats",
			Description: "List the group chats the user has joined, with chat_id and name. Use it to find a chat_id before sending a message.",
			Args:        []Arg{pageSizeArg, pageTokenArg},
			Handler:     listChats,
		},
		{
			Name:        "list_messages",
			Description: "List the message history of a chat. Needs a chat_id, which list_chats returns.",
			Args: []Arg{
				{Name: "container_id", Type: "string", Required: true, Description: "Container id, usually a chat_id"},
				{Name: "container_id_type", Type: "string", Enum: []string{"chat"}, Default: "chat", Description: "Container type"},
				pageSizeArg,
				pageTokenArg,
				{Name: "sort_type", Type: "string", Enum: []string{"ByCreateTimeAsc", "ByCreateTimeDesc"}, Description: "Sort order"},
			},
			Handler: listMessages,
		},
		{
			Name: "send_message",
			Description: "Send a message to a chat or user. content is a JSON string whose shape depends on msg_type, " +
				`for text it is {"text":"hello"}.`,
			Args: []Arg{
				{Name: "receive_id", Type: "string", Required: true, Description: "Recipient id (chat_id, open_id, user_id, union_id or email)"},
				{Name: "receive_id_type", Type: "string", Enum: []string{"chat_id", "open_id", "user_id", "union_id", "email"}, Default: "chat_id", Description: "Kind of receive_id"},
				{Name: "msg_type", Type: "string", Enum: []string{"text", "post", "image", "interactive", "share_chat", "share_user", "file", "audio", "media", "sticker"}, Default: "text", Description: "Message type"},
				{Name: "content", Type: "string", Required: true, Description: `Message content as a JSON string, e.g. {"text":"Hello"}`},
			},
			Handler: sendMessage,
		},
		{
			Name:        "get_bitable_app",
			Description: "Get the metadata of a Bitable (multi-dimensional table) app, including its name and revision.",
			Args:        []Arg{appTokenArg},
			Handler:     getBitableApp,
		},
		{
			Name:        "list_bitable_tables",
			Description: "List the tables of a Bitable app with their table_id and name.",
			Args:        []Arg{appTokenArg, pageSizeArg, pageTokenArg},
			Handler:     listBitableTables,
		},
		{
			Name:        "list_bitable_fields",
			Description: "List the field (column) definitions of a Bitable table: names, types and options. Call it before creating records.",
			Args:        []Arg{appTokenArg, tableIDArg, pageSizeArg, pageTokenArg},
			Handler:     listBitableFields,
		},
		{
			Name:        "list_bitable_records",
			Description: "Query the records of a Bitable table with optional filter, sort and paging.",
			Args: []Arg{
				appTokenArg,
				tableIDArg,
				{Name: "filter", Type: "string", Description: `Filter formula, e.g. AND(CurrentValue.[Status]="Done")`},
				{Name: "sort", Type: "string", Description: `Sort spec as a JSON string, e.g. [{"field_name":"Created","desc":true}]`},
				{Name: "field_names", Type: "string", Description: `Fields to return as a JSON array string, e.g. ["Name","Status"]`},
				pageSizeArg,
				pageTokenArg,
			},
			Handler: listBitableRecords,
		},
		{
			Name:        "create_bitable_record",
			Description: "Add one record to a Bitable table. fields maps field names to values; check list_bitable_fields for the table layout first.",
			Args: []Arg{
				appTokenArg,
				tableIDArg,
				{Name: "fields", Type: "object", Required: true, Description: "Field values keyed by field name", Schema: map[string]any{"type": "object", "additionalProperties": true}},
			},
			Handler: createBitableRecord,
		},
		{
			Name:        "list_wiki_spaces",
			Description: "List the knowledge base (wiki) spaces the user can access.",
			Args:        []Arg{pageSizeArg, pageTokenArg},
			Handler:     listWikiSpaces,
		},
		{
			Name:        "create_document",
			Description: "Create a new cloud document (docx), optionally inside a folder.",
			Args: []Arg{
				{Name: "title", Type: "string", Description: "Document title"},
				{Name: "folder_token", Type: "string", Description: "Destination folder token; the root folder when omitted"},
			},
			Handler: createDocument,
		},
		{
			Name:        "get_document_raw_content",
			Description: "Get the plain text content of a cloud document (docx).",
			Args: []Arg{
				{Name: "document_id", Type: "string", Required: true, Description: "Document id from the document URL"},
				{Name: "lang", Type: "integer", Description: "Language for @mentions: 0 default name, 1 English name"},
			},
			Handler: getDocumentRawContent,
		},
		{
			Name: OpenAPICallTool,
			Description: "Call any Feishu OpenAPI endpoint by method, path, query and body. Covers every capability " +
				"without a dedicated tool. Paths may omit the /open-apis prefix and common mistakes in service names are corrected.",
			Args: []Arg{
				{Name: "method", Type: "string", Enum: []string{"GET", "POST", "PUT", "PATCH", "DELETE"}, Default: "GET", Description: "HTTP method"},
				{Name: "path", Type: "string", Required: true, Description: "API path, e.g. /im/v1/messages or /open-apis/im/v1/messages"},
				{Name: "query", Type: "object", Description: "Query parameters", Schema: map[string]any{"type": "object", "additionalProperties": map[string]any{"type": []string{"string", "number", "boolean"}}}},
				{Name: "headers", Type: "object", Description: "Extra request headers; Authorization is ignored", Schema: map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}}},
				{Name: "body", Description: "Request body; strings are sent verbatim, objects and arrays as JSON", Schema: map[string]any{"type": []string{"object", "array", "string"}}},
				{Name: "bodyType", Type: "string", Enum: []string{"json", "text", "form", "multipart"}, Default: "json", Description: "Body encoding"},
				{Name: "form", Type: "object", Description: "Form fields for form and multipart bodies", Schema: map[string]any{"type": "object", "additionalProperties": map[string]any{"type": []string{"string", "number", "boolean"}}}},
				{Name: "files", Description: "Multipart files, each from base64 data or a URL", Schema: map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"fieldName":   map[string]any{"type": "string"},
							"filename":    map[string]any{"type": "string"},
							"contentType": map[string]any{"type": "string"},
							"dataBase64":  map[string]any{"type": "string"},
							"url":         map[string]any{"type": "string"},
						},
						"required": []string{"fieldName"},
					},
				}},
				{Name: "responseMode", Type: "string", Enum: []string{"json", "text", "binaryBase64"}, Default: "json", Description: "How to read the response"},
			},
			Handler: openAPICall,
		},
	}
}

// NewDefaultRegistry returns a registry holding Catalog.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(Catalog()...)
	if err != nil {
		panic(err)
	}
	return r
}

func get(path string) Handler {
	return func(ctx context.Context, tc *Context, _ map[string]any) (*proxy.Envelope, error) {
		return tc.Do(ctx, &proxy.Request{Method: "GET", Path: path})
	}
}

func listChats(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error) {
	return tc.Do(ctx, &proxy.Request{
		Method: "GET",
		Path:   "/im/v1/chats",
		Query:  pick(args, "page_size", "page_token"),
	})
}

func listMessages(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error) {
	query := pick(args, "container_id", "page_size", "page_token", "sort_type")
	query["container_id_type"] = stringOr(args, "container_id_type", "chat")
	return tc.Do(ctx, &proxy.Request{Method: "GET", Path: "/im/v1/messages", Query: query})
}

func sendMessage(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error) {
	return tc.Do(ctx, &proxy.Request{
		Method: "POST",
		Path:   "/im/v1/messages",
		Query:  map[string]any{"receive_id_type": stringOr(args, "receive_id_type", "chat_id")},
		Body: map[string]any{
			"receive_id": args["receive_id"],
			"msg_type":   stringOr(args, "msg_type", "text"),
			"content":    args["content"],
		},
	})
}

func getBitableApp(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error) {
	return tc.Do(ctx, &proxy.Request{Method: "GET", Path: bitablePath(args)})
}

func listBitableTables(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error) {
	return tc.Do(ctx, &proxy.Request{
		Method: "GET",
		Path:   bitablePath(args, "tables"),
		Query:  pick(args, "page_size", "page_token"),
	})
}

func listBitableFields(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error) {
	return tc.Do(ctx, &proxy.Request{
		Method: "GET",
		Path:   bitablePath(args, "tables", segment(args, "table_id"), "fields"),
		Query:  pick(args, "page_size", "page_token"),
	})
}

func listBitableRecords(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error) {
	return tc.Do(ctx, &proxy.Request{
		Method: "GET",
		Path:   bitablePath(args, "tables", segment(args, "table_id"), "records"),
		Query:  pick(args, "filter", "sort", "field_names", "page_size", "page_token"),
	})
}

func createBitableRecord(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error) {
	return tc.Do(ctx, &proxy.Request{
		Method: "POST",
		Path:   bitablePath(args, "tables", segment(args, "table_id"), "records"),
		Body:   map[string]any{"fields": args["fields"]},
	})
}

func listWikiSpaces(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error) {
	return tc.Do(ctx, &proxy.Request{
		Method: "GET",
		Path:   "/wiki/v2/spaces",
		Query:  pick(args, "page_size", "page_token"),
	})
}

func createDocument(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error) {
	body := pick(args, "title", "folder_token")
	return tc.Do(ctx, &proxy.Request{Method: "POST", Path: "/docx/v1/documents", Body: body})
}

func getDocumentRawContent(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error) {
	return tc.Do(ctx, &proxy.Request{
		Method: "GET",
		Path:   "/docx/v1/documents/" + segment(args, "document_id") + "/raw_content",
		Query:  pick(args, "lang"),
	})
}

func openAPICall(ctx context.Context, tc *Context, args map[string]any) (*proxy.Envelope, error) {
	req, err := proxy.NormalizeRequest(args)
	if err != nil {
		return nil, err
	}
	return tc.Do(ctx, req)
}

// pick copies the named, non-empty arguments.
func pick(args map[string]any, names ...string) map[string]any {
	out := make(map[string]any, len(names))
	for _, n := range names {
		v, ok := args[n]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		out[n] = v
	}
	return out
}

func stringOr(args map[string]any, name, fallback string) string {
	if s, ok := args[name].(string); ok && s != "" {
		return s
	}
	return fallback
}

// segment renders an argument as one escaped path segment.
func segment(args map[string]any, name string) string {
	return url.PathEscape(proxy.Stringify(args[name]))
}

func bitablePath(args map[string]any, rest ...string) string {
	p := "/bitable/v1/apps/" + segment(args, "app_token")
	for _, r := range rest {
		p += "/" + r
	}
	return p
}
