package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"larkgate/internal/pathfix"
	"larkgate/pkg/logging"
)

// maxResponseBytes bounds how much of an upstream response is read.
const maxResponseBytes = 32 << 20

// TokenSource yields the upstream access token for one call. forceRefresh
// asks for a token newer than the one previously returned.
type TokenSource interface {
	AccessToken(ctx context.Context, forceRefresh bool) (string, error)
}

// Proxy executes calls against the upstream open API.
type Proxy struct {
	baseURL string
	client  *http.Client

	maxResponse int64
	maxFile     int64
}

// New creates a Proxy for the upstream origin baseURL.
func New(baseURL string, client *http.Client) *Proxy {
	if client == nil {
		client = http.DefaultClient
	}
	return &Proxy{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      client,
		maxResponse: maxResponseBytes,
		maxFile:     maxFileBytes,
	}
}

// readLimited reads all of r, failing when it holds more than limit bytes.
func readLimited(r io.Reader, limit int64, what string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds %d bytes", what, limit)
	}
	return data, nil
}

// Execute performs req with a token from tokens. An upstream rejection of
// the token triggers exactly one retry with a forcibly refreshed token.
//
// Errors are returned for unusable input (*RequestError) and for failures to
// obtain a token; every other outcome, including transport failures, is
// reported in the Envelope.
func (p *Proxy) Execute(ctx context.Context, tokens TokenSource, req *Request) (*Envelope, error) {
	target, err := p.buildURL(req)
	if err != nil {
		return nil, err
	}

	body, err := p.encodeBody(ctx, req)
	if err != nil {
		return nil, err
	}

	token, err := tokens.AccessToken(ctx, false)
	if err != nil {
		return nil, err
	}

	logging.Debug("Proxy", "Forwarding %s %s", req.Method, target.Path)
	resp, err := p.do(ctx, req, target, body, token)
	if err != nil {
		return networkEnvelope(err), nil
	}

	if expired, _ := resp.expiry(req.ResponseMode); !expired {
		return resp.envelope(req.ResponseMode), nil
	}

	logging.Info("Proxy", "Upstream rejected token for %s %s, retrying with a refreshed token", req.Method, target.Path)
	token, err = tokens.AccessToken(ctx, true)
	if err != nil {
		return nil, err
	}
	resp, err = p.do(ctx, req, target, body, token)
	if err != nil {
		return networkEnvelope(err), nil
	}

	if expired, inBand := resp.expiry(req.ResponseMode); expired {
		logging.Warn("Proxy", "Upstream still rejects refreshed token for %s %s", req.Method, target.Path)
		return resp.reauthorizeEnvelope(req.ResponseMode, inBand), nil
	}
	return resp.envelope(req.ResponseMode), nil
}

// buildURL builds the absolute upstream URL for req.
func (p *Proxy) buildURL(req *Request) (*url.URL, error) {
	target, err := url.Parse(p.baseURL + pathfix.Fix(req.Path))
	if err != nil {
		return nil, requestErrorf("path", "invalid path: %v", err)
	}

	q := target.Query()
	for _, k := range sortedKeys(req.Query) {
		v := req.Query[k]
		if v == nil {
			continue
		}
		q.Set(k, Stringify(v))
	}
	target.RawQuery = q.Encode()
	return target, nil
}

func (p *Proxy) do(ctx context.Context, req *Request, target *url.URL, body *encodedBody, token string) (*upstreamResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body.data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), reader)
	if err != nil {
		return nil, err
	}

	for k, v := range req.Headers {
		if strings.EqualFold(k, "Authorization") {
			continue
		}
		httpReq.Header.Set(k, v)
	}
	if body != nil && (body.force || httpReq.Header.Get("Content-Type") == "") {
		httpReq.Header.Set("Content-Type", body.contentType)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("upstream request aborted: %w", err)
		}
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body, p.maxResponse, "upstream response")
	if err != nil {
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}

	return &upstreamResponse{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        data,
	}, nil
}
