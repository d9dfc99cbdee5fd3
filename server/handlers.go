package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/ptgott/one-paste/entry"
	"github.com/ptgott/one-paste/html"
	"github.com/ptgott/one-paste/paste"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeHTML   = "text/html; charset=utf-8"
	contentTypePlain  = "text/plain; charset=utf-8"
	contentTypeBinary = "application/octet-stream"
)

type handlers struct {
	deps *Deps
}

// statusFor maps store errors to HTTP statuses. Missing, expired and burned
// pastes all look the same from the outside.
func statusFor(err error) int {
	if errors.Is(err, paste.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// page renders into a buffer first so that a template error can still
// become a 500 instead of a half-written 200.
func (h *handlers) page(c *gin.Context, status int, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		log.Error().Err(err).Msg("can't render a page")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, contentTypeHTML, buf.Bytes())
}

func (h *handlers) errorPage(c *gin.Context, status int) {
	h.page(c, status, h.deps.Pages.Error)
}

func (h *handlers) index(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, h.deps.Server.URIPrefix+"/new")
}

// draftFromQuery reads the optional lang, ttl, burn and encrypted query
// parameters.
func draftFromQuery(c *gin.Context) (paste.Draft, error) {
	d := paste.Draft{
		Lang: c.Query("lang"),
	}

	if t, ok := c.GetQuery("ttl"); ok {
		s, err := strconv.ParseUint(t, 10, 32)
		if err != nil {
			return paste.Draft{}, fmt.Errorf("the ttl must be a number of seconds: %v", err)
		}
		d.TTL = time.Duration(s) * time.Second
		d.HasTTL = true
	}

	for name, dst := range map[string]*bool{
		"burn":      &d.Burn,
		"encrypted": &d.Encrypted,
	} {
		v, ok := c.GetQuery(name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return paste.Draft{}, fmt.Errorf("%v must be true or false: %v", name, err)
		}
		*dst = b
	}

	return d, nil
}

func (h *handlers) create(c *gin.Context) {
	d, err := draftFromQuery(c)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.deps.Server.MaxPasteSize)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.String(http.StatusRequestEntityTooLarge, "the paste is larger than %v bytes", tooLarge.Limit)
			return
		}
		c.String(http.StatusBadRequest, "can't read the paste: %v", err)
		return
	}
	d.Data = data

	id, _, err := h.deps.Store.Create(d)
	switch {
	case errors.Is(err, paste.ErrEngine), errors.Is(err, paste.ErrInternal):
		log.Error().Err(err).Msg("can't store a new paste")
		c.Status(http.StatusInternalServerError)
		return
	case err != nil:
		// e.g., a TTL that runs past the end of the clock
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	c.String(http.StatusOK, "%v/%v", BaseURL(h.deps.Server), id)
}

func (h *handlers) view(c *gin.Context) {
	id := c.Param("id")
	e, err := h.deps.Store.Get(id)
	if err != nil {
		h.errorPage(c, statusFor(err))
		return
	}

	h.page(c, http.StatusOK, func(w io.Writer) error {
		return h.deps.Pages.View(w, id, e, c.Query("lang"), h.deps.Now())
	})
}

// editor shows the page for writing a new paste. An id parameter clones an
// existing paste, which counts as reading it.
func (h *handlers) editor(c *gin.Context) {
	b := htmlBanner(c)

	var clone *entry.Entry
	if id := c.Query("id"); id != "" {
		e, err := h.deps.Store.Get(id)
		if err != nil {
			h.errorPage(c, statusFor(err))
			return
		}
		clone = &e
	}

	h.page(c, http.StatusOK, func(w io.Writer) error {
		return h.deps.Pages.Editor(w, b, clone)
	})
}

// htmlBanner reads the editor's optional banner from the query string.
func htmlBanner(c *gin.Context) html.Banner {
	return html.Banner{
		Msg:   c.Query("msg"),
		Level: c.Query("level"),
		Glyph: c.Query("glyph"),
		URL:   c.Query("url"),
	}
}

func (h *handlers) payload(c *gin.Context, contentType string) {
	id := c.Param("id")
	e, err := h.deps.Store.Get(id)
	if err != nil {
		c.Status(statusFor(err))
		return
	}
	if contentType == contentTypeBinary {
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": id}))
	}
	c.Data(http.StatusOK, contentType, e.Payload)
}

func (h *handlers) raw(c *gin.Context) {
	h.payload(c, contentTypePlain)
}

func (h *handlers) download(c *gin.Context) {
	h.payload(c, contentTypeBinary)
}

func (h *handlers) remove(c *gin.Context) {
	if err := h.deps.Store.Delete(c.Param("id")); err != nil {
		log.Error().Err(err).Str("slug", c.Param("id")).Msg("can't delete a paste")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

func (h *handlers) static(c *gin.Context) {
	// The wildcard keeps its leading slash
	p := path.Join("/static", c.Param("resource"))
	b, ok := h.deps.Assets.Resource(p)
	if !ok {
		h.errorPage(c, http.StatusNotFound)
		return
	}

	ct := mime.TypeByExtension(path.Ext(p))
	if ct == "" {
		ct = contentTypeBinary
	}
	c.Data(http.StatusOK, ct, b)
}
