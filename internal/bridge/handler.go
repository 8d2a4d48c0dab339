package bridge

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"larkgate/internal/render"
	"larkgate/pkg/logging"
)

// Handler serves the bridge's HTTP endpoints.
type Handler struct {
	bridge    *Bridge
	publicURL string
}

// NewHandler creates a Handler. publicURL, when set, overrides the origin
// derived from each request.
func NewHandler(b *Bridge, publicURL string) *Handler {
	return &Handler{bridge: b, publicURL: strings.TrimRight(publicURL, "/")}
}

// Register mounts the bridge routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /oauth/authorize", h.HandleAuthorize)
	mux.HandleFunc("POST /oauth/token", h.HandleToken)
	mux.HandleFunc("GET /auth", h.HandleAuth)
	mux.HandleFunc("GET "+h.bridge.CallbackPath(), h.HandleCallback)
	mux.HandleFunc("GET /auth/status", h.HandleStatus)
}

// BaseURL returns the public origin for r: publicURL when configured,
// otherwise the scheme and host the request arrived with.
func BaseURL(r *http.Request, publicURL string) string {
	if publicURL != "" {
		return strings.TrimRight(publicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return scheme + "://" + host
}

// HandleAuthorize serves GET /oauth/authorize. Failures are plain text.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	base := BaseURL(r, h.publicURL)

	location, err := h.bridge.Authorize(r.Context(), AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Linked:              q.Get("linked") == "1",
		UserKey:             q.Get("userKey"),
		BaseURL:             base,
		CurrentURL:          base + r.URL.RequestURI(),
	})
	if err != nil {
		var oerr *OAuthError
		if errors.As(err, &oerr) {
			render.Text(w, oerr.Status, oerr.Description)
			return
		}
		logging.Error("Bridge", err, "Authorize failed")
		render.Text(w, http.StatusInternalServerError, "internal error")
		return
	}
	render.Redirect(w, r, location)
}

// HandleToken serves POST /oauth/token.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if !isFormContentType(r.Header.Get("Content-Type")) {
		render.JSON(w, ErrUnsupportedMediaType.Status, ErrUnsupportedMediaType)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, ErrInvalidRequest.withDescription("malformed form body"))
		return
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID = r.PostForm.Get("client_id")
		clientSecret = r.PostForm.Get("client_secret")
	}

	resp, err := h.bridge.Token(r.Context(), TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RefreshToken: r.PostForm.Get("refresh_token"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if err != nil {
		var oerr *OAuthError
		if errors.As(err, &oerr) {
			writeOAuthError(w, oerr)
			return
		}
		logging.Error("Bridge", err, "Token request failed")
		render.JSON(w, http.StatusInternalServerError, &OAuthError{Code: "server_error"})
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	render.JSON(w, http.StatusOK, resp)
}

func writeOAuthError(w http.ResponseWriter, err *OAuthError) {
	if err.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
	}
	w.Header().Set("Cache-Control", "no-store")
	render.JSON(w, err.Status, err)
}

// isFormContentType accepts any media type containing the form type, so a
// charset parameter or vendor suffix does not break clients.
func isFormContentType(ct string) bool {
	if mt, _, err := mime.ParseMediaType(ct); err == nil && mt == "application/x-www-form-urlencoded" {
		return true
	}
	return strings.Contains(strings.ToLower(ct), "application/x-www-form-urlencoded")
}

// HandleAuth serves GET /auth and starts linking an upstream account.
func (h *Handler) HandleAuth(w http.ResponseWriter, r *http.Request) {
	location, err := h.bridge.StartLink(r.Context(), BaseURL(r, h.publicURL), r.URL.Query().Get("next"))
	if err != nil {
		writeLinkError(w, err)
		return
	}
	render.Redirect(w, r, location)
}

// HandleCallback serves GET /auth/callback.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if upstreamErr := q.Get("error"); upstreamErr != "" {
		logging.Warn("Bridge", "Upstream returned authorization error %q", upstreamErr)
		renderErrorPage(w, http.StatusBadRequest, upstreamErr, q.Get("error_description"))
		return
	}

	res, err := h.bridge.CompleteLink(r.Context(), BaseURL(r, h.publicURL), q.Get("code"), q.Get("state"))
	var lerr *LinkError
	if errors.As(err, &lerr) && errors.Is(lerr, ErrUnidentifiedAccount) {
		logging.Warn("Bridge", "Linked account has no user id, not returning to the pending redirect")
		renderErrorPage(w, lerr.Status, "unidentified_account", lerr.Message)
		return
	}
	if err != nil {
		writeLinkError(w, err)
		return
	}
	if res.Redirect != "" {
		render.Redirect(w, r, res.Redirect)
		return
	}
	renderSuccessPage(w, res)
}

// HandleStatus serves GET /auth/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.bridge.Status(r.Context())
	if err != nil {
		logging.Error("Bridge", err, "Status lookup failed")
		render.Error(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	render.JSON(w, http.StatusOK, status)
}

func writeLinkError(w http.ResponseWriter, err error) {
	var lerr *LinkError
	if errors.As(err, &lerr) {
		render.Error(w, lerr.Status, lerr.Message)
		return
	}
	logging.Error("Bridge", err, "Linking failed")
	render.Error(w, http.StatusInternalServerError, "internal error")
}
