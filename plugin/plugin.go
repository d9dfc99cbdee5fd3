package plugin

import (
	"embed"
	"io/fs"
	"path"
)

// Plugin contributes front-end assets to the paste pages. Every plugin has
// the same four kinds of contributions, and the Manager merges them in
// order, so there is no need to know which plugin is which.
type Plugin interface {
	// Stylesheet URLs. Paths starting with "/" are served by the
	// application.
	CSSImports() []string
	// Script URLs, loaded in order
	JSImports() []string
	// A snippet run once the page has loaded. Empty means none.
	JSInit() string
	// Files the application serves under /static, keyed by their URL path
	StaticResources() map[string][]byte
}

// Assets is a Plugin made of fixed lists.
type Assets struct {
	CSS    []string
	JS     []string
	Init   string
	Static map[string][]byte
}

func (a Assets) CSSImports() []string { return a.CSS }

func (a Assets) JSImports() []string { return a.JS }

func (a Assets) JSInit() string { return a.Init }

func (a Assets) StaticResources() map[string][]byte { return a.Static }

//go:embed static
var staticFiles embed.FS

// Base is the page's own styling and behavior, plus the third-party
// libraries it relies on.
func Base() Assets {
	return Assets{
		CSS: []string{
			"https://cdnjs.cloudflare.com/ajax/libs/twitter-bootstrap/4.6.2/css/bootstrap.min.css",
			"https://cdnjs.cloudflare.com/ajax/libs/font-awesome/5.15.4/css/all.min.css",
			"/static/custom.css",
		},
		JS: []string{
			"https://cdnjs.cloudflare.com/ajax/libs/crypto-js/4.1.1/crypto-js.min.js",
			"https://cdnjs.cloudflare.com/ajax/libs/twitter-bootstrap/4.6.2/js/bootstrap.bundle.min.js",
			"/static/custom.js",
		},
		Static: loadStatic(),
	}
}

// loadStatic reads every embedded file. The files are compiled in, so a
// read error means the binary itself is broken.
func loadStatic() map[string][]byte {
	res := make(map[string][]byte)
	err := fs.WalkDir(staticFiles, "static", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		b, err := staticFiles.ReadFile(p)
		if err != nil {
			return err
		}
		res[path.Join("/", p)] = b
		return nil
	})
	if err != nil {
		panic("can't read the embedded static files: " + err.Error())
	}
	return res
}

// Prism highlights code blocks.
func Prism() Assets {
	return Assets{
		CSS: []string{
			"https://cdnjs.cloudflare.com/ajax/libs/prism/1.29.0/themes/prism.min.css",
		},
		JS: []string{
			"https://cdnjs.cloudflare.com/ajax/libs/prism/1.29.0/components/prism-core.min.js",
			"https://cdnjs.cloudflare.com/ajax/libs/prism/1.29.0/plugins/autoloader/prism-autoloader.min.js",
		},
		Init: "var holder = document.getElementById('pastebin-code-block'); " +
			"if (holder) { Prism.highlightElement(holder); }",
	}
}

// Mermaid renders pastes with the "mermaid" lang as diagrams.
func Mermaid() Assets {
	return Assets{
		JS: []string{
			"https://cdnjs.cloudflare.com/ajax/libs/mermaid/10.6.1/mermaid.min.js",
		},
		Init: "mermaid.init(undefined, '.language-mermaid');",
	}
}

// Manager holds the merged contributions of a base and a list of plugins.
// It is built once and never changes, so it is safe for concurrent use.
type Manager struct {
	css    []string
	js     []string
	init   []string
	static map[string][]byte
}

// NewManager merges plugins and base. Imports and init snippets are
// concatenated with the plugins' first, in the order given, and the base's
// last. Static resources are merged the same way, so on a path collision
// the base's file wins.
func NewManager(base Plugin, plugins ...Plugin) *Manager {
	m := &Manager{
		static: make(map[string][]byte),
	}
	all := append(append([]Plugin(nil), plugins...), base)
	for _, p := range all {
		m.css = append(m.css, p.CSSImports()...)
		m.js = append(m.js, p.JSImports()...)
		if i := p.JSInit(); i != "" {
			m.init = append(m.init, i)
		}
		for k, v := range p.StaticResources() {
			m.static[k] = v
		}
	}
	return m
}

// CSSImports returns the merged stylesheet URLs.
func (m *Manager) CSSImports() []string {
	return append([]string(nil), m.css...)
}

// JSImports returns the merged script URLs.
func (m *Manager) JSImports() []string {
	return append([]string(nil), m.js...)
}

// JSInit returns every non-empty init snippet.
func (m *Manager) JSInit() []string {
	return append([]string(nil), m.init...)
}

// Resource returns the static file served at p, e.g., "/static/custom.js".
// The returned slice is shared; callers must not modify it.
func (m *Manager) Resource(p string) ([]byte, bool) {
	b, ok := m.static[p]
	return b, ok
}
