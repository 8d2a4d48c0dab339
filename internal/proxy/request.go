package proxy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BodyType selects how Request.Body is encoded.
type BodyType string

const (
	BodyJSON      BodyType = "json"
	BodyText      BodyType = "text"
	BodyForm      BodyType = "form"
	BodyMultipart BodyType = "multipart"
)

// ResponseMode selects how the upstream response body is read.
type ResponseMode string

const (
	ResponseJSON   ResponseMode = "json"
	ResponseText   ResponseMode = "text"
	ResponseBinary ResponseMode = "binaryBase64"
)

var allowedMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// File is one multipart file part. Exactly one of DataBase64 and URL
// supplies the content.
type File struct {
	FieldName   string `json:"fieldName"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	DataBase64  string `json:"dataBase64,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Request is the canonical form of an upstream API call.
type Request struct {
	Method       string
	Path         string
	Query        map[string]any
	Headers      map[string]string
	Body         any
	BodyType     BodyType
	Form         map[string]any
	Files        []File
	ResponseMode ResponseMode
}

// HasBody reports whether the caller supplied a body.
func (r *Request) HasBody() bool {
	return r.Body != nil
}

// RequestError reports unusable caller input.
type RequestError struct {
	Field   string
	Message string
}

func (e *RequestError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func requestErrorf(field, format string, args ...any) *RequestError {
	return &RequestError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NormalizeRequest turns loosely typed call arguments into a Request,
// applying every default in one place.
func NormalizeRequest(args map[string]any) (*Request, error) {
	req := &Request{
		Method:       "GET",
		BodyType:     BodyJSON,
		ResponseMode: ResponseJSON,
		Body:         args["body"],
	}

	if v, ok := args["method"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, requestErrorf("method", "must be a string")
		}
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			req.Method = s
		}
	}
	if !allowedMethods[req.Method] {
		return nil, requestErrorf("method", "unsupported method %q", req.Method)
	}

	path, _ := args["path"].(string)
	if strings.TrimSpace(path) == "" {
		return nil, requestErrorf("path", "missing path (for example /im/v1/messages)")
	}
	req.Path = strings.TrimSpace(path)

	var err error
	if req.Query, err = optionalObject(args, "query"); err != nil {
		return nil, err
	}
	if req.Form, err = optionalObject(args, "form"); err != nil {
		return nil, err
	}

	headers, err := optionalObject(args, "headers")
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		req.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			if k == "" || v == nil {
				continue
			}
			req.Headers[k] = Stringify(v)
		}
	}

	if v, ok := args["bodyType"].(string); ok && v != "" {
		switch bt := BodyType(v); bt {
		case BodyJSON, BodyText, BodyForm, BodyMultipart:
			req.BodyType = bt
		default:
			return nil, requestErrorf("bodyType", "unsupported body type %q", v)
		}
	}

	if v, ok := args["responseMode"].(string); ok && v != "" {
		switch rm := ResponseMode(v); rm {
		case ResponseJSON, ResponseText, ResponseBinary:
			req.ResponseMode = rm
		default:
			return nil, requestErrorf("responseMode", "unsupported response mode %q", v)
		}
	}

	if v, ok := args["files"]; ok && v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, requestErrorf("files", "invalid file list")
		}
		if err := json.Unmarshal(raw, &req.Files); err != nil {
			return nil, requestErrorf("files", "must be a list of {fieldName, filename?, contentType?, dataBase64?, url?}")
		}
		for i, f := range req.Files {
			if f.FieldName == "" {
				return nil, requestErrorf("files", "entry %d has no fieldName", i)
			}
		}
	}

	return req, nil
}

func optionalObject(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, requestErrorf(key, "must be an object")
	}
	return obj, nil
}

// Stringify renders a scalar argument the way it appears in a URL or form.
// Objects and arrays are rendered as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
