package proxy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingTokens hands out tok-0, tok-1, ... bumping on every forced refresh.
type countingTokens struct {
	mu        sync.Mutex
	gen       int
	refreshes int
	err       error
	refresh   error
}

func (c *countingTokens) AccessToken(_ context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	if force {
		if c.refresh != nil {
			return "", c.refresh
		}
		c.refreshes++
		c.gen++
	}
	return "tok-" + string(rune('0'+c.gen)), nil
}

type captured struct {
	method      string
	path        string
	query       string
	auth        string
	contentType string
	header      http.Header
	body        []byte
}

func newUpstream(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Proxy, *[]captured) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, captured{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			header:      r.Header.Clone(),
			body:        body,
		})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client()), &calls
}

func jsonReply(status int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func mustRequest(t *testing.T, args map[string]any) *Request {
	t.Helper()
	req, err := NormalizeRequest(args)
	require.NoError(t, err)
	return req
}

func TestExecute_SuccessUnwrapsData(t *testing.T) {
	p, calls := newUpstream(t, jsonReply(200, `{"code":0,"msg":"ok","data":{"items":[1,2]}}`))
	tokens := &countingTokens{}

	env, err := p.Execute(context.Background(), tokens, mustRequest(t, map[string]any{
		"path":    "/chat/v1/",
		"query":   map[string]any{"page_size": 20, "skip": nil},
		"headers": map[string]any{"Authorization": "Bearer spoofed", "X-Trace": "t1"},
	}))
	require.NoError(t, err)

	assert.True(t, env.OK)
	assert.Equal(t, 200, env.Status)
	assert.Equal(t, http.StatusOK, env.HTTPStatus)
	assert.Equal(t, map[string]any{"items": []any{jsonNumber("1"), jsonNumber("2")}}, env.Result)
	assert.NotNil(t, env.Feishu)

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, "/open-apis/im/v1/messages", c.path)
	assert.Equal(t, "page_size=20", c.query)
	assert.Equal(t, "Bearer tok-0", c.auth)
	assert.Equal(t, "t1", c.header.Get("X-Trace"))
	assert.Empty(t, c.body, "GET carries no body")
	assert.Zero(t, tokens.refreshes)
}

func TestExecute_NonJSONSuccessKeepsText(t *testing.T) {
	p, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "plain words")
	})
	env, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{"path": "/x"}))
	require.NoError(t, err)
	assert.True(t, env.OK)
	assert.Equal(t, "plain words", env.Result)
}

func TestExecute_UpstreamError(t *testing.T) {
	p, _ := newUpstream(t, jsonReply(404, `{"code":1254,"msg":"not found"}`))

	env, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{"path": "/drive/v1/files/x"}))
	require.NoError(t, err)
	assert.False(t, env.OK)
	assert.Equal(t, 404, env.Status)
	assert.Equal(t, 404, env.HTTPStatus)
	assert.Equal(t, "not found", env.Error.(map[string]any)["msg"])
}

func TestExecute_EmptyErrorBody(t *testing.T) {
	p, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(502) })

	env, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{"path": "/x"}))
	require.NoError(t, err)
	assert.Equal(t, "upstream request failed (HTTP 502)", env.Error)
}

func TestExecute_JSONBody(t *testing.T) {
	p, calls := newUpstream(t, jsonReply(200, `{"code":0}`))

	_, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
		"method": "POST",
		"path":   "/im/v1/messages",
		"body":   map[string]any{"a": 1},
	}))
	require.NoError(t, err)

	c := (*calls)[0]
	assert.Equal(t, `{"a":1}`, string(c.body))
	assert.Equal(t, "application/json", c.contentType)
}

func TestExecute_StringBodyVerbatimAndCallerContentType(t *testing.T) {
	p, calls := newUpstream(t, jsonReply(200, `{"code":0}`))

	_, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
		"method":  "PUT",
		"path":    "/x",
		"body":    `{"raw": true}`,
		"headers": map[string]any{"Content-Type": "application/json; charset=utf-8"},
	}))
	require.NoError(t, err)

	c := (*calls)[0]
	assert.Equal(t, `{"raw": true}`, string(c.body))
	assert.Equal(t, "application/json; charset=utf-8", c.contentType)
}

func TestExecute_TextBody(t *testing.T) {
	p, calls := newUpstream(t, jsonReply(200, `{}`))

	_, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
		"method": "POST", "path": "/x", "bodyType": "text", "body": "hello",
	}))
	require.NoError(t, err)
	assert.Equal(t, "hello", string((*calls)[0].body))
	assert.Equal(t, "text/plain;charset=utf-8", (*calls)[0].contentType)

	_, err = p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
		"method": "POST", "path": "/x", "bodyType": "text", "body": map[string]any{"a": 1},
	}))
	var rerr *RequestError
	assert.True(t, errors.As(err, &rerr))
}

func TestExecute_FormBody(t *testing.T) {
	p, calls := newUpstream(t, jsonReply(200, `{}`))

	_, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
		"method": "POST", "path": "/x", "bodyType": "form",
		"form": map[string]any{"foo": "bar", "count": 2},
	}))
	require.NoError(t, err)

	c := (*calls)[0]
	assert.Contains(t, string(c.body), "foo=bar")
	assert.Contains(t, string(c.body), "count=2")
	assert.Equal(t, "application/x-www-form-urlencoded", c.contentType)

	_, err = p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
		"method": "POST", "path": "/x", "bodyType": "form",
	}))
	var rerr *RequestError
	assert.True(t, errors.As(err, &rerr))
}

func TestExecute_MultipartBody(t *testing.T) {
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	t.Cleanup(fileSrv.Close)

	p, calls := newUpstream(t, jsonReply(200, `{"code":0,"data":{"file_key":"k"}}`))

	env, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
		"method":   "POST",
		"path":     "/im/v1/images",
		"bodyType": "multipart",
		"headers":  map[string]any{"Content-Type": "application/json"},
		"form":     map[string]any{"image_type": "message"},
		"body":     map[string]any{"extra": true},
		"files": []any{
			map[string]any{"fieldName": "image", "url": fileSrv.URL + "/assets/logo.png"},
			map[string]any{"fieldName": "doc", "dataBase64": base64.StdEncoding.EncodeToString([]byte("abc"))},
		},
	}))
	require.NoError(t, err)
	assert.True(t, env.OK)

	c := (*calls)[0]
	mediaType, params, err := mime.ParseMediaType(c.contentType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)

	mr := multipart.NewReader(strings.NewReader(string(c.body)), params["boundary"])
	parts := map[string][3]string{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, _ := io.ReadAll(part)
		parts[part.FormName()] = [3]string{part.FileName(), part.Header.Get("Content-Type"), string(data)}
	}

	assert.Equal(t, "message", parts["image_type"][2])
	assert.Equal(t, "true", parts["extra"][2])
	assert.Equal(t, [3]string{"logo.png", "image/png", "\x89PNG"}, parts["image"])
	assert.Equal(t, [3]string{"file", "application/octet-stream", "abc"}, parts["doc"])
}

func TestExecute_MultipartErrors(t *testing.T) {
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(fileSrv.Close)
	p, calls := newUpstream(t, jsonReply(200, `{}`))

	cases := []map[string]any{
		{"method": "POST", "path": "/x", "bodyType": "multipart"},
		{"method": "POST", "path": "/x", "bodyType": "multipart", "body": "str"},
		{"method": "POST", "path": "/x", "bodyType": "multipart", "body": []any{1}},
		{"method": "POST", "path": "/x", "bodyType": "multipart", "files": []any{map[string]any{"fieldName": "f"}}},
		{"method": "POST", "path": "/x", "bodyType": "multipart", "files": []any{map[string]any{"fieldName": "f", "dataBase64": "!!"}}},
		{"method": "POST", "path": "/x", "bodyType": "multipart", "files": []any{map[string]any{"fieldName": "f", "url": fileSrv.URL + "/a"}}},
	}
	for i, args := range cases {
		_, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, args))
		var rerr *RequestError
		assert.True(t, errors.As(err, &rerr), "case %d: %v", i, err)
	}
	assert.Empty(t, *calls)
}

func TestExecute_BinaryResponse(t *testing.T) {
	p, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte{1, 2, 3})
	})

	env, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
		"path": "/drive/v1/medias/x/download", "responseMode": "binaryBase64",
	}))
	require.NoError(t, err)
	assert.True(t, env.OK)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), env.DataBase64)
	assert.Equal(t, "application/pdf", env.ContentType)
}

func TestExecute_TextResponse(t *testing.T) {
	p, _ := newUpstream(t, jsonReply(200, `{"data":1}`))

	env, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
		"path": "/x", "responseMode": "text",
	}))
	require.NoError(t, err)
	assert.Equal(t, `{"data":1}`, env.Result)
}

func TestExecute_RetriesOnceOnHTTP401(t *testing.T) {
	p, calls := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-0" {
			jsonReply(401, `{"code":99991677,"msg":"expired"}`)(w, r)
			return
		}
		jsonReply(200, `{"code":0,"data":"ok"}`)(w, r)
	})
	tokens := &countingTokens{}

	env, err := p.Execute(context.Background(), tokens, mustRequest(t, map[string]any{"path": "/x", "method": "POST", "body": map[string]any{"a": 1}}))
	require.NoError(t, err)
	assert.True(t, env.OK)
	assert.Equal(t, "ok", env.Result)
	assert.Equal(t, 1, tokens.refreshes)

	require.Len(t, *calls, 2)
	assert.Equal(t, "Bearer tok-1", (*calls)[1].auth)
	assert.Equal(t, (*calls)[0].body, (*calls)[1].body, "body is replayed on retry")
}

func TestExecute_InBandExpiryTwiceNeedsReauthorization(t *testing.T) {
	for _, code := range []string{"20005", "99991663", "99991664", `"20005"`} {
		t.Run(code, func(t *testing.T) {
			p, calls := newUpstream(t, jsonReply(200, `{"code":`+code+`,"msg":"token expired"}`))
			tokens := &countingTokens{}

			env, err := p.Execute(context.Background(), tokens, mustRequest(t, map[string]any{"path": "/x"}))
			require.NoError(t, err)

			assert.False(t, env.OK)
			assert.True(t, env.Reauthorize)
			assert.Equal(t, http.StatusUnauthorized, env.HTTPStatus)
			assert.Equal(t, 401, env.Status)
			assert.Equal(t, ErrTokenExpired, env.Error)
			assert.NotNil(t, env.Feishu)
			assert.Len(t, *calls, 2, "exactly one retry")
			assert.Equal(t, 1, tokens.refreshes)
		})
	}
}

func TestExecute_HTTP401TwiceKeepsPayload(t *testing.T) {
	p, calls := newUpstream(t, jsonReply(401, `{"code":99991677,"msg":"invalid token"}`))

	env, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{"path": "/x"}))
	require.NoError(t, err)
	assert.True(t, env.Reauthorize)
	assert.Equal(t, "invalid token", env.Error.(map[string]any)["msg"])
	assert.Len(t, *calls, 2)
}

func TestExecute_TokenErrors(t *testing.T) {
	p, calls := newUpstream(t, jsonReply(401, `{}`))
	boom := errors.New("not authorized")

	_, err := p.Execute(context.Background(), &countingTokens{err: boom}, mustRequest(t, map[string]any{"path": "/x"}))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, *calls)

	refreshFailed := errors.New("refresh failed")
	_, err = p.Execute(context.Background(), &countingTokens{refresh: refreshFailed}, mustRequest(t, map[string]any{"path": "/x"}))
	assert.ErrorIs(t, err, refreshFailed)
	assert.Len(t, *calls, 1)
}

func TestExecute_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	p := New(base, nil)
	env, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{"path": "/x"}))
	require.NoError(t, err)
	assert.False(t, env.OK)
	assert.Equal(t, http.StatusInternalServerError, env.HTTPStatus)
	assert.Contains(t, env.Error, "upstream request failed")
}

func TestExecute_OversizedResponseFails(t *testing.T) {
	for _, mode := range []string{"json", "binaryBase64"} {
		t.Run(mode, func(t *testing.T) {
			p, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/octet-stream")
				_, _ = w.Write([]byte(strings.Repeat("a", 17)))
			})
			p.maxResponse = 16

			env, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
				"path": "/drive/v1/medias/x/download", "responseMode": mode,
			}))
			require.NoError(t, err)
			assert.False(t, env.OK)
			assert.Equal(t, http.StatusInternalServerError, env.HTTPStatus)
			assert.Contains(t, env.Error, "upstream response exceeds 16 bytes")
			assert.Empty(t, env.DataBase64)
		})
	}
}

func TestExecute_ResponseAtLimitIsKept(t *testing.T) {
	p, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(strings.Repeat("a", 16)))
	})
	p.maxResponse = 16

	env, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
		"path": "/x", "responseMode": "binaryBase64",
	}))
	require.NoError(t, err)
	assert.True(t, env.OK)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(strings.Repeat("a", 16))), env.DataBase64)
}

func TestExecute_OversizedMultipartFileFails(t *testing.T) {
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	t.Cleanup(fileSrv.Close)
	p, calls := newUpstream(t, jsonReply(200, `{}`))
	p.maxFile = 4

	_, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
		"method": "POST", "path": "/x", "bodyType": "multipart",
		"files": []any{map[string]any{"fieldName": "f", "url": fileSrv.URL + "/big.bin"}},
	}))
	var rerr *RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Error(), "file exceeds 4 bytes")
	assert.Empty(t, *calls)
}

func TestFilenameFromURL(t *testing.T) {
	assert.Equal(t, "a.png", filenameFromURL("https://x/y/a.png?sig=1"))
	assert.Equal(t, "y", filenameFromURL("https://x/y/"))
	assert.Equal(t, "file", filenameFromURL("https://x"))
	assert.Equal(t, "file", filenameFromURL("://bad"))
}

func jsonNumber(s string) any {
	return json.Number(s)
}

func TestEnvelopeJSON_ResultKeptWhenDataIsNull(t *testing.T) {
	p, _ := newUpstream(t, jsonReply(200, `{"code":0,"data":null}`))

	env, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{"path": "/x"}))
	require.NoError(t, err)
	require.True(t, env.OK)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Contains(t, body, "result")
	assert.Nil(t, body["result"])
	assert.NotContains(t, body, "error")
}

func TestEnvelopeJSON_FailureAndBinaryOmitResult(t *testing.T) {
	failed, err := json.Marshal(&Envelope{OK: false, Status: 400, Error: "bad"})
	require.NoError(t, err)
	assert.NotContains(t, string(failed), `"result"`)

	p, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{1})
	})
	env, err := p.Execute(context.Background(), &countingTokens{}, mustRequest(t, map[string]any{
		"path": "/x", "responseMode": "binaryBase64",
	}))
	require.NoError(t, err)
	bin, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(bin), `"result"`)
	assert.Contains(t, string(bin), `"dataBase64":"AQ=="`)
}
