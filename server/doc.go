package server

// server exposes a paste.Store over HTTP. Handlers turn store errors into
// status codes and render pages with an html.Renderer; they don't decide
// anything about expiry or burning themselves.
