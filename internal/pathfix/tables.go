package pathfix

// Route is a canonical service and its default API version.
type Route struct {
	Service string
	Version string
}

// ServiceAliases maps service names callers commonly guess to the real
// upstream service. Canonical names are deliberately absent, so an already
// correct path never matches.
var ServiceAliases = map[string]Route{
	"doc":       {"docx", "v1"},
	"docs":      {"docx", "v1"},
	"document":  {"docx", "v1"},
	"documents": {"docx", "v1"},

	"knowledge": {"wiki", "v2"},

	"messages": {"im", "v1"},
	"message":  {"im", "v1"},
	"chat":     {"im", "v1"},

	"spreadsheet":  {"sheets", "v3"},
	"spreadsheets": {"sheets", "v3"},
	"sheet":        {"sheets", "v3"},

	"base":   {"bitable", "v1"},
	"table":  {"bitable", "v1"},
	"tables": {"bitable", "v1"},

	"tasks": {"task", "v2"},
	"todo":  {"task", "v2"},
	"todos": {"task", "v2"},

	"contact": {"authen", "v1"},
	"user":    {"authen", "v1"},
	"users":   {"authen", "v1"},
	"account": {"authen", "v1"},
	"auth":    {"authen", "v1"},
}

// ActionToResource rewrites a verb used as the first path segment into the
// resource collection it acts on, per canonical service.
var ActionToResource = map[string]map[string]string{
	"docx":    {"create": "documents"},
	"im":      {"send": "messages"},
	"sheets":  {"create": "spreadsheets"},
	"bitable": {"create": "apps"},
	"task":    {"create": "tasks"},
}

// Exact holds whole-path rewrites checked before any pattern.
var Exact = map[string]string{
	"/open-apis/v1/account/info": UserInfoPath,
	"/open-apis/v1/user/info":    UserInfoPath,
	"/open-apis/me":              UserInfoPath,
	"/open-apis/spaces":          "/open-apis/wiki/v2/spaces",
	"/open-apis/chats":           "/open-apis/im/v1/chats",
}

// DefaultResources fills in the collection when a path names only a service.
var DefaultResources = map[string]string{
	"docx":    "documents",
	"wiki":    "spaces",
	"im":      "messages",
	"sheets":  "spreadsheets",
	"bitable": "apps",
	"task":    "tasks",
}

// UserInfoPath is where every guess at "the current user" ends up.
const UserInfoPath = "/open-apis/authen/v1/user_info"
