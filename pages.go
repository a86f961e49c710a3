package chainlinks

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/hlog"
	"golang.org/x/xerrors"
)

const layout = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{- if .WalletConnectProjectID}}
<meta name="walletconnect-project-id" content="{{.WalletConnectProjectID}}">
{{- end}}
<title>{{.Title}}</title>
<style>
body { margin: 0; min-height: 100vh; display: flex; align-items: center; justify-content: center; background: #111; color: #eee; font-family: system-ui, sans-serif; }
.card { background: #1c1c1c; border: 1px solid #333; border-radius: 12px; padding: 2rem; max-width: 28rem; width: 100%; }
h1 { color: #f5d90a; margin-top: 0; }
.error { color: #ff6369; }
pre { font-size: 0.75rem; color: #999; overflow: auto; }
a { color: #f5d90a; }
code { color: #ccc; }
</style>
</head>
<body>
<div class="card">
{{template "content" .}}
</div>
</body>
</html>
`

const errorContent = `{{define "content"}}
<h1>Error</h1>
<p class="error">{{.Message}}</p>
<p>Short code: <code>{{.ShortCode}}</code></p>
{{- if .Debug}}
<pre>{{.Debug}}</pre>
{{- end}}
<a href="/">Go back home</a>
{{end}}`

const homeContent = `{{define "content"}}
<h1>Web3 URL Shortener</h1>
{{- if .ContractAddress}}
<p>Links are stored in contract <code>{{.ContractAddress}}</code> on chain {{.ChainID}}.</p>
{{- else}}
<p>Links are stored in the local development ledger.</p>
{{- end}}
<p>Create a link with</p>
<pre>chainlinks shorten &lt;short code&gt; &lt;long URL&gt;</pre>
<p>then share <code>/&lt;short code&gt;</code>.</p>
{{end}}`

var (
	errorPage = template.Must(template.Must(template.New("error").Parse(layout)).Parse(errorContent))
	homePage  = template.Must(template.Must(template.New("home").Parse(layout)).Parse(homeContent))
)

type errorPageData struct {
	Title                  string
	WalletConnectProjectID string
	ShortCode              string
	Message                string
	Debug                  string
}

type homePageData struct {
	Title string
	Home
}

// renderError renders the gateway's error page. Like the redirect itself it is
// answered with 200 so browsers show the page instead of a generic error.
func (s *Server) renderError(w http.ResponseWriter, shortCode string, err error) {
	data := errorPageData{
		Title:                  "Error",
		WalletConnectProjectID: s.home.WalletConnectProjectID,
		ShortCode:              shortCode,
		Message:                KindOf(err).PageMessage(),
	}

	var re *ResolveError
	if xerrors.As(err, &re) {
		if debug, mErr := json.MarshalIndent(re.Diagnostics, "", "  "); mErr == nil {
			data.Debug = string(debug)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := errorPage.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("could not render error page")
	}
}

func (s *Server) serveHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := homePage.Execute(w, homePageData{Title: "Web3 URL Shortener", Home: s.home}); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("could not render home page")
	}
}
