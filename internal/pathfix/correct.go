package pathfix

import (
	"regexp"
	"strings"
)

// Prefix is the root every upstream API path lives under.
const Prefix = "/open-apis"

var (
	serviceVersionRest = regexp.MustCompile(`^/open-apis/([^/]+)/v\d+/(.*)$`)
	versionServiceRest = regexp.MustCompile(`^/open-apis/v\d+/([^/]+)(?:/(.*))?$`)
	serviceRest        = regexp.MustCompile(`^/open-apis/([^/]+)(?:/(.*))?$`)
	repeatedSlashes    = regexp.MustCompile(`/{2,}`)
)

// Normalize adds a leading slash and the /open-apis prefix when missing and
// collapses runs of slashes.
func Normalize(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path != Prefix && !strings.HasPrefix(path, Prefix+"/") {
		path = Prefix + path
	}
	return repeatedSlashes.ReplaceAllString(path, "/")
}

// Correct rewrites a normalized path with a guessed service name, verb or
// version into the canonical upstream path. Paths it does not recognise are
// returned unchanged.
func Correct(path string) string {
	if exact, ok := Exact[path]; ok {
		return exact
	}

	service, rest, ok := split(path)
	if !ok {
		return path
	}
	route, ok := ServiceAliases[service]
	if !ok {
		return path
	}

	if actions, ok := ActionToResource[route.Service]; ok {
		first := rest
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			first = rest[:i]
		}
		if resource, ok := actions[first]; ok {
			rest = resource + rest[len(first):]
		}
	}

	if route.Service == "authen" {
		if strings.HasPrefix(rest, "users/me") || rest == "user_info" || rest == "info" || rest == "" {
			return UserInfoPath
		}
	}

	if rest == "" {
		rest = DefaultResources[route.Service]
	}
	return Prefix + "/" + route.Service + "/" + route.Version + "/" + rest
}

// Fix is Correct(Normalize(path)).
func Fix(path string) string {
	return Correct(Normalize(path))
}

func split(path string) (service, rest string, ok bool) {
	if m := serviceVersionRest.FindStringSubmatch(path); m != nil {
		return m[1], m[2], true
	}
	if m := versionServiceRest.FindStringSubmatch(path); m != nil {
		return m[1], m[2], true
	}
	if m := serviceRest.FindStringSubmatch(path); m != nil {
		if _, alias := ServiceAliases[m[1]]; alias {
			return m[1], m[2], true
		}
	}
	return "", "", false
}
