package proxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"
)

// Default content types for encoded bodies.
const (
	contentTypeJSON   = "application/json"
	contentTypeText   = "text/plain;charset=utf-8"
	contentTypeForm   = "application/x-www-form-urlencoded"
	contentTypeBinary = "application/octet-stream"
)

// maxFileBytes bounds a file fetched by URL for a multipart upload.
const maxFileBytes = 64 << 20

// encodedBody is a request body ready to be replayed on retry.
type encodedBody struct {
	data        []byte
	contentType string
	// force overrides any caller supplied Content-Type.
	force bool
}

func (p *Proxy) encodeBody(ctx context.Context, req *Request) (*encodedBody, error) {
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return nil, nil
	}

	switch req.BodyType {
	case BodyText:
		return encodeText(req)
	case BodyForm:
		return encodeForm(req)
	case BodyMultipart:
		return p.encodeMultipart(ctx, req)
	default:
		return encodeJSON(req)
	}
}

func encodeJSON(req *Request) (*encodedBody, error) {
	if !req.HasBody() {
		return nil, nil
	}
	if s, ok := req.Body.(string); ok {
		return &encodedBody{data: []byte(s), contentType: contentTypeJSON}, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req.Body); err != nil {
		return nil, requestErrorf("body", "cannot be encoded as JSON: %v", err)
	}
	return &encodedBody{data: bytes.TrimSuffix(buf.Bytes(), []byte("\n")), contentType: contentTypeJSON}, nil
}

func encodeText(req *Request) (*encodedBody, error) {
	s, ok := req.Body.(string)
	if !ok {
		return nil, requestErrorf("body", "must be a string when bodyType is text")
	}
	return &encodedBody{data: []byte(s), contentType: contentTypeText}, nil
}

func encodeForm(req *Request) (*encodedBody, error) {
	payload := req.Body
	if payload == nil && req.Form != nil {
		payload = req.Form
	}

	switch t := payload.(type) {
	case nil:
		return nil, requestErrorf("body", "form encoding needs body or form")
	case string:
		return &encodedBody{data: []byte(t), contentType: contentTypeForm}, nil
	case map[string]any:
		values := url.Values{}
		for _, k := range sortedKeys(t) {
			values.Set(k, Stringify(t[k]))
		}
		return &encodedBody{data: []byte(values.Encode()), contentType: contentTypeForm}, nil
	default:
		return nil, requestErrorf("body", "form encoding accepts a string or an object")
	}
}

func (p *Proxy) encodeMultipart(ctx context.Context, req *Request) (*encodedBody, error) {
	if req.Form == nil && len(req.Files) == 0 && !req.HasBody() {
		return nil, requestErrorf("body", "multipart encoding needs form, files or body")
	}

	var fields map[string]any
	switch t := req.Body.(type) {
	case nil:
	case map[string]any:
		fields = t
	default:
		return nil, requestErrorf("body", "must be an object when bodyType is multipart")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, k := range sortedKeys(req.Form) {
		if err := w.WriteField(k, Stringify(req.Form[k])); err != nil {
			return nil, err
		}
	}
	for _, k := range sortedKeys(fields) {
		if err := w.WriteField(k, Stringify(fields[k])); err != nil {
			return nil, err
		}
	}
	for _, f := range req.Files {
		if err := p.writeFile(ctx, w, f); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return &encodedBody{data: buf.Bytes(), contentType: w.FormDataContentType(), force: true}, nil
}

func (p *Proxy) writeFile(ctx context.Context, w *multipart.Writer, f File) error {
	var (
		data        []byte
		filename    = f.Filename
		contentType = f.ContentType
	)

	switch {
	case f.DataBase64 != "":
		decoded, err := base64.StdEncoding.DecodeString(f.DataBase64)
		if err != nil {
			return requestErrorf("files", "%s: dataBase64 is not valid base64", f.FieldName)
		}
		data = decoded
		if filename == "" {
			filename = "file"
		}
	case f.URL != "":
		fetched, fetchedType, err := p.fetchFile(ctx, f.URL)
		if err != nil {
			return requestErrorf("files", "%s: %v", f.FieldName, err)
		}
		data = fetched
		if contentType == "" {
			contentType = fetchedType
		}
		if filename == "" {
			filename = filenameFromURL(f.URL)
		}
	default:
		return requestErrorf("files", "%s: needs dataBase64 or url", f.FieldName)
	}
	if contentType == "" {
		contentType = contentTypeBinary
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(f.FieldName), escapeQuotes(filename)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

func (p *Proxy) fetchFile(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", fmt.Errorf("url must be an absolute http(s) URL")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("fetching %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("fetching %s: HTTP %d", u.Redacted(), resp.StatusCode)
	}
	data, err := readLimited(resp.Body, p.maxFile, "file")
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", u.Redacted(), err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// filenameFromURL returns the last path segment of rawURL, or "file".
func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "file"
	}
	name := path.Base(strings.TrimRight(u.Path, "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
