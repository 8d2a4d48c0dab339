package bridge

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"

	"github.com/Masterminds/sprig/v3"

	"larkgate/pkg/logging"
)

//go:embed templates/link_success.html
var linkSuccessHTML string

//go:embed templates/link_error.html
var linkErrorHTML string

var (
	linkSuccessTmpl = template.Must(template.New("success").Funcs(sprig.FuncMap()).Parse(linkSuccessHTML))
	linkErrorTmpl   = template.Must(template.New("error").Funcs(sprig.FuncMap()).Parse(linkErrorHTML))
)

type successPage struct {
	DisplayName string
	UserID      string
	Email       string
}

type errorPage struct {
	Error       string
	Description string
}

// setSecurityHeaders sets the headers every HTML page is served with.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

func renderPage(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		logging.Error("Bridge", err, "Failed to render %s page", tmpl.Name())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func renderSuccessPage(w http.ResponseWriter, res *LinkResult) {
	renderPage(w, http.StatusOK, linkSuccessTmpl, successPage{
		DisplayName: res.DisplayName(),
		UserID:      res.Token.UserID,
		Email:       res.Token.Email,
	})
}

func renderErrorPage(w http.ResponseWriter, status int, errCode, description string) {
	renderPage(w, status, linkErrorTmpl, errorPage{
		Error:       errCode,
		Description: description,
	})
}
