package html

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/ptgott/one-paste/entry"
	"github.com/ptgott/one-paste/plugin"

	units "github.com/docker/go-units"
)

// expiryLayout is how absolute expiry times are shown to readers
const expiryLayout = "2006-01-02 15:04:05 MST"

// Langs are the syntax hints offered in the editor. Pastes can carry any
// lang; this is only the menu.
var Langs = []string{
	"markup", "bash", "c", "cpp", "csharp", "css", "diff", "docker", "go",
	"java", "javascript", "json", "kotlin", "lua", "makefile", "markdown",
	"mermaid", "python", "ruby", "rust", "sql", "swift", "toml",
	"typescript", "yaml",
}

// TTLChoice is one entry in the editor's expiry menu
type TTLChoice struct {
	Seconds  int64
	Label    string
	Selected bool
}

// Page is everything a paste page template can show. Fields left at their
// zero value are simply not rendered.
type Page struct {
	Hostname  string
	Version   string
	URIPrefix string

	CSS  []string
	JS   []string
	Init []template.JS

	// Which of the three page layouts to use
	IsError    bool
	IsEditable bool
	IsCreated  bool

	ID          string
	Code        string
	Lang        string
	IsBurned    bool
	IsEncrypted bool

	// Banner shown above the page content
	Msg   string
	Level string
	Glyph string
	URL   string

	TTLMenu []TTLChoice
	Langs   []string
}

// Renderer fills in pages with the parts that are the same for every
// request. It is built once at startup and is safe for concurrent use.
type Renderer struct {
	tmpl       *template.Template
	hostname   string
	version    string
	prefix     string
	assets     *plugin.Manager
	ttlMenu    []time.Duration
	defaultTTL time.Duration
}

// RendererConfig is the startup configuration a Renderer needs
type RendererConfig struct {
	Hostname   string
	Version    string
	URIPrefix  string
	Assets     *plugin.Manager
	TTLMenu    []time.Duration
	DefaultTTL time.Duration
}

// NewRenderer parses the page template. The template text is constant, so
// an error here is a bug rather than bad input.
func NewRenderer(c RendererConfig) (*Renderer, error) {
	tmpl, err := template.New("page").Funcs(template.FuncMap{
		"assetURL": func(uri string) string {
			return AssetURL(c.URIPrefix, uri)
		},
	}).Parse(pageHTML)
	if err != nil {
		return nil, fmt.Errorf("can't parse the page template: %v", err)
	}

	return &Renderer{
		tmpl:       tmpl,
		hostname:   c.Hostname,
		version:    c.Version,
		prefix:     c.URIPrefix,
		assets:     c.Assets,
		ttlMenu:    c.TTLMenu,
		defaultTTL: c.DefaultTTL,
	}, nil
}

// AssetURL prefixes application-relative paths (those starting with "/")
// with prefix and leaves absolute URLs alone.
func AssetURL(prefix, uri string) string {
	if strings.HasPrefix(uri, "/") {
		return prefix + uri
	}
	return uri
}

// base returns a Page with the shared fields filled in.
func (r *Renderer) base() Page {
	p := Page{
		Hostname:  r.hostname,
		Version:   r.version,
		URIPrefix: r.prefix,
		Langs:     Langs,
	}
	if r.assets != nil {
		p.CSS = r.assets.CSSImports()
		p.JS = r.assets.JSImports()
		for _, i := range r.assets.JSInit() {
			// Init snippets are compiled into the binary, not user input
			p.Init = append(p.Init, template.JS(i))
		}
	}
	return p
}

// TTLLabel describes a TTL for the expiry menu.
func TTLLabel(d time.Duration) string {
	if d == 0 {
		return "Never"
	}
	return units.HumanDuration(d)
}

// Error renders the error page.
func (r *Renderer) Error(w io.Writer) error {
	p := r.base()
	p.IsError = true
	return r.tmpl.Execute(w, p)
}

// Banner is an optional message shown at the top of the editor
type Banner struct {
	Msg   string
	Level string
	Glyph string
	URL   string
}

// Editor renders the page for writing a new paste. A non-nil clone
// pre-fills the editor with an existing paste's content.
func (r *Renderer) Editor(w io.Writer, b Banner, clone *entry.Entry) error {
	p := r.base()
	p.IsEditable = true
	p.Msg = b.Msg
	p.Level = b.Level
	if p.Level == "" {
		p.Level = "secondary"
	}
	p.Glyph = b.Glyph
	p.URL = b.URL

	for _, d := range r.ttlMenu {
		p.TTLMenu = append(p.TTLMenu, TTLChoice{
			Seconds:  int64(d / time.Second),
			Label:    TTLLabel(d),
			Selected: d == r.defaultTTL,
		})
	}

	if clone != nil {
		p.Code = string(clone.Payload)
		p.Lang = clone.Lang
		p.IsEncrypted = clone.Encrypted
	}

	return r.tmpl.Execute(w, p)
}

// View renders a stored paste. lang overrides the paste's own syntax hint
// when it isn't empty. now is used to describe how long the paste has left.
func (r *Renderer) View(w io.Writer, id string, e entry.Entry, lang string, now time.Time) error {
	p := r.base()
	p.IsCreated = true
	p.ID = id
	p.Code = string(e.Payload)
	p.Lang = strings.ToLower(e.Lang)
	if lang != "" {
		p.Lang = strings.ToLower(lang)
	}
	p.IsEncrypted = e.Encrypted

	if e.Burn {
		p.Msg = "FOR YOUR EYES ONLY. The paste is gone, after you close this window."
		p.Level = "warning"
		p.Glyph = "fa fa-fire"
		p.IsBurned = true
	} else if at, ok := e.ExpiresAt(); ok {
		p.Msg = fmt.Sprintf(
			"This paste will expire on %v (in %v).",
			at.UTC().Format(expiryLayout),
			units.HumanDuration(at.Sub(now)),
		)
		p.Level = "info"
		p.Glyph = "far fa-clock"
	}

	return r.tmpl.Execute(w, p)
}

const pageHTML = `<!doctype html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no">
	<title>{{ .Hostname }} pastebin</title>
	{{- range .CSS }}
	<link rel="stylesheet" href="{{ assetURL . }}">
	{{- end }}
</head>
<body>
	<nav class="navbar navbar-expand-md navbar-dark bg-dark fixed-top">
		<a class="navbar-brand" href="{{ .URIPrefix }}/new">{{ .Hostname }}</a>
		{{- if .IsCreated }}
		<div class="ml-auto">
			<a class="btn btn-outline-light btn-sm" href="{{ .URIPrefix }}/raw/{{ .ID }}">Raw</a>
			<a class="btn btn-outline-light btn-sm" href="{{ .URIPrefix }}/download/{{ .ID }}">Download</a>
			{{- if not .IsBurned }}
			<a class="btn btn-outline-light btn-sm" href="{{ .URIPrefix }}/new?id={{ .ID }}">Clone</a>
			<a id="remove-btn" class="btn btn-outline-danger btn-sm" href="#">Delete</a>
			{{- end }}
		</div>
		{{- end }}
	</nav>
	<main class="container-fluid">
		{{- if .Msg }}
		<div class="alert alert-{{ .Level }} paste-banner" role="alert">
			<i class="{{ .Glyph }}"></i> {{ .Msg }}
			{{- if .URL }} <a href="{{ .URL }}">{{ .URL }}</a>{{ end }}
		</div>
		{{- end }}

		{{- if .IsError }}
		<div class="alert alert-danger" role="alert">
			<i class="fas fa-exclamation-triangle"></i> The paste you are looking for doesn't exist, has expired, or has already been read.
		</div>
		{{- else if .IsEditable }}
		<form>
			<div class="form-row">
				<div class="col-auto">
					<select id="language-selector" class="custom-select">
						{{- $lang := .Lang }}
						{{- range .Langs }}
						<option value="{{ . }}"{{ if eq . $lang }} selected{{ end }}>{{ . }}</option>
						{{- end }}
					</select>
				</div>
				<div class="col-auto">
					<select id="expiry-selector" class="custom-select">
						{{- range .TTLMenu }}
						<option value="{{ .Seconds }}"{{ if .Selected }} selected{{ end }}>Expires: {{ .Label }}</option>
						{{- end }}
					</select>
				</div>
				<div class="col-auto form-check">
					<input id="burn-checkbox" class="form-check-input" type="checkbox">
					<label class="form-check-label" for="burn-checkbox">Burn after reading</label>
				</div>
				<div class="col-auto">
					<input id="password-input" class="form-control" type="password" placeholder="Optional password">
				</div>
				<div class="col-auto">
					<button id="send-btn" class="btn btn-primary">Send</button>
				</div>
			</div>
			<textarea id="paste-editor" class="form-control"{{ if .IsEncrypted }} data-encrypted="true"{{ end }}>{{ .Code }}</textarea>
		</form>
		{{- else if .IsCreated }}
		{{- if .IsEncrypted }}
		<div class="form-inline paste-banner">
			<input id="password-input" class="form-control mr-2" type="password" placeholder="Password">
			<button id="unlock-btn" class="btn btn-secondary">Decrypt</button>
		</div>
		{{- end }}
		<pre><code id="pastebin-code-block" class="language-{{ .Lang }}">{{ .Code }}</code></pre>
		{{- end }}

		<footer class="paste-footer">{{ .Hostname }} &middot; version {{ .Version }}</footer>
	</main>
	<script>
		var uriPrefix = "{{ .URIPrefix }}";
		function initPlugins() {
			{{- range .Init }}
			{{ . }}
			{{- end }}
		}
	</script>
	{{- range .JS }}
	<script src="{{ assetURL . }}"></script>
	{{- end }}
</body>
</html>`
