package proxy

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrTokenExpired is the error value of an envelope whose upstream token was
// rejected in-band even after a forced refresh.
const ErrTokenExpired = "feishu_token_expired"

// expiredCodes are upstream application codes meaning the user token is no
// longer valid, reported inside an otherwise ordinary response body.
var expiredCodes = map[int64]bool{
	20005:    true,
	99991663: true,
	99991664: true,
}

// Envelope is the normalized outcome of an upstream call.
type Envelope struct {
	OK          bool   `json:"ok"`
	Status      int    `json:"status,omitempty"`
	Result      any    `json:"result,omitempty"`
	Error       any    `json:"error,omitempty"`
	Feishu      any    `json:"feishu,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	DataBase64  string `json:"dataBase64,omitempty"`

	// HTTPStatus is the status the gateway should answer with.
	HTTPStatus int `json:"-"`
	// Reauthorize marks an upstream credential that stayed rejected after a
	// refresh; the caller must link again.
	Reauthorize bool `json:"-"`

	binary bool
}

// MarshalJSON always emits result on a successful JSON or text envelope,
// including when the upstream data is null.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	if !e.OK || e.binary {
		return json.Marshal(plain(e))
	}
	return json.Marshal(struct {
		plain
		Result any `json:"result"`
	}{plain(e), e.Result})
}

// upstreamResponse is a fully read upstream reply.
type upstreamResponse struct {
	status      int
	contentType string
	body        []byte
}

func (r *upstreamResponse) success() bool {
	return r.status >= 200 && r.status <= 299
}

// inBandCode returns the application code of a JSON object body.
func (r *upstreamResponse) inBandCode() (int64, bool) {
	trimmed := bytes.TrimSpace(r.body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !gjson.ValidBytes(trimmed) {
		return 0, false
	}
	code := gjson.GetBytes(trimmed, "code")
	if !code.Exists() {
		return 0, false
	}
	switch code.Type {
	case gjson.Number:
		return code.Int(), true
	case gjson.String:
		v, err := strconv.ParseInt(code.Str, 10, 64)
		return v, err == nil
	default:
		return 0, false
	}
}

// expiry reports whether the response signals an expired user token, and
// whether the signal was in-band.
func (r *upstreamResponse) expiry(mode ResponseMode) (expired, inBand bool) {
	if mode != ResponseBinary {
		if code, ok := r.inBandCode(); ok && expiredCodes[code] {
			return true, true
		}
	}
	return r.status == http.StatusUnauthorized, false
}

// parseBody decodes a JSON body, keeping numbers exact. Anything that is not
// JSON is returned as text.
func parseBody(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return string(body)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(body)
	}
	return v
}

func (r *upstreamResponse) envelope(mode ResponseMode) *Envelope {
	if mode == ResponseBinary {
		return r.binaryEnvelope()
	}

	var parsed any
	if mode == ResponseText {
		parsed = string(r.body)
	} else {
		parsed = parseBody(r.body)
	}

	if r.success() {
		result := parsed
		if obj, ok := parsed.(map[string]any); ok {
			if data, ok := obj["data"]; ok {
				result = data
			}
		}
		return &Envelope{OK: true, Status: r.status, Result: result, Feishu: parsed, HTTPStatus: http.StatusOK}
	}

	return &Envelope{
		OK:         false,
		Status:     r.status,
		Error:      r.errorPayload(parsed),
		Feishu:     parsed,
		HTTPStatus: r.status,
	}
}

func (r *upstreamResponse) errorPayload(parsed any) any {
	if s, ok := parsed.(string); ok && s == "" {
		return fmt.Sprintf("upstream request failed (HTTP %d)", r.status)
	}
	return parsed
}

func (r *upstreamResponse) binaryEnvelope() *Envelope {
	env := &Envelope{
		OK:          r.success(),
		Status:      r.status,
		ContentType: r.contentType,
		DataBase64:  base64.StdEncoding.EncodeToString(r.body),
		HTTPStatus:  http.StatusOK,
		binary:      true,
	}
	if !r.success() {
		env.Error = fmt.Sprintf("upstream request failed (HTTP %d)", r.status)
		env.HTTPStatus = r.status
	}
	return env
}

// reauthorizeEnvelope reports an upstream credential rejected twice.
func (r *upstreamResponse) reauthorizeEnvelope(mode ResponseMode, inBand bool) *Envelope {
	env := &Envelope{
		OK:          false,
		Status:      http.StatusUnauthorized,
		HTTPStatus:  http.StatusUnauthorized,
		Reauthorize: true,
	}
	var parsed any
	if mode != ResponseBinary {
		parsed = parseBody(r.body)
		env.Feishu = parsed
	}
	switch {
	case inBand, parsed == nil:
		env.Error = ErrTokenExpired
	default:
		env.Error = r.errorPayload(parsed)
	}
	return env
}

// networkEnvelope reports a transport failure.
func networkEnvelope(err error) *Envelope {
	return &Envelope{OK: false, Error: err.Error(), HTTPStatus: http.StatusInternalServerError}
}
