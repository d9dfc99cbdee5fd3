package userconfig

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ptgott/one-paste/entry"
	"github.com/ptgott/one-paste/slug"
	"github.com/ptgott/one-paste/storage"

	"github.com/alecthomas/units"
	dunits "github.com/docker/go-units"
	yaml "gopkg.in/yaml.v2"
)

const (
	defaultAddress      = "localhost"
	defaultPort         = 8000
	defaultKeepAlive    = 5 * time.Second
	defaultMaxPasteSize = 16 * dunits.MiB
)

// defaultTTLMenu is offered in the UI when the config doesn't list its own
// choices
var defaultTTLMenu = []time.Duration{
	0,
	10 * time.Minute,
	time.Hour,
	24 * time.Hour,
	7 * 24 * time.Hour,
	30 * 24 * time.Hour,
}

// ConfigError means the configuration can't be used to start the
// application. Section names the part of the config at fault.
type ConfigError struct {
	Section string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %q config: %v", e.Section, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Meta represents all current config options that the application can use,
// i.e., after validation and parsing
type Meta struct {
	Server  Server           `yaml:"server"`
	Storage storage.KVConfig `yaml:"storage"`
	Slugs   Slugs            `yaml:"slugs"`
	Entries Entries          `yaml:"entries"`
}

// Server contains options for the HTTP listener and the URLs it hands out
type Server struct {
	Address string
	Port    int
	// Prepended to every generated link and asset URL, e.g., when the
	// application sits behind a reverse proxy at a subpath
	URIPrefix string
	// Largest request body accepted for a new paste, in bytes
	MaxPasteSize int64
	// How long an idle keep-alive connection stays open
	KeepAlive time.Duration
	// PEM file paths. TLS is enabled only when both are set.
	TLSCert string
	TLSKey  string
}

// UnmarshalYAML parses a user-provided YAML configuration, returning any
// parsing errors.
func (s *Server) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	err := unmarshal(&v)

	if err != nil {
		return fmt.Errorf("can't parse the server config: %v", err)
	}

	s.Address = v["address"]
	s.URIPrefix = v["uriPrefix"]
	s.TLSCert = v["tlsCert"]
	s.TLSKey = v["tlsKey"]

	if p, ok := v["port"]; ok {
		pn, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("can't parse the port as an integer: %v", err)
		}
		s.Port = pn
	}

	if m, ok := v["maxPasteSize"]; ok {
		b, err := units.ParseBase2Bytes(m)
		if err != nil {
			return fmt.Errorf("can't parse the maximum paste size: %v", err)
		}
		s.MaxPasteSize = int64(b)
	}

	if k, ok := v["keepAlive"]; ok {
		d, err := time.ParseDuration(k)
		if err != nil {
			return fmt.Errorf("can't parse the keep-alive timeout as a duration: %v", err)
		}
		s.KeepAlive = d
	}

	return nil
}

// CheckAndSetDefaults validates s and either returns a copy of s with default
// settings applied or returns an error due to an invalid configuration
func (s *Server) CheckAndSetDefaults() (Server, error) {
	c := *s
	if c.Address == "" {
		c.Address = defaultAddress
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Port < 0 || c.Port > 65535 {
		return Server{}, fmt.Errorf("the port must be between 1 and 65535, not %v", c.Port)
	}
	if c.MaxPasteSize == 0 {
		c.MaxPasteSize = defaultMaxPasteSize
	}
	if c.MaxPasteSize < 0 {
		return Server{}, errors.New("the maximum paste size can't be negative")
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = defaultKeepAlive
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return Server{}, errors.New("TLS needs both a certificate and a key")
	}
	return c, nil
}

// Slugs contains options for generating paste identifiers
type Slugs struct {
	Alphabet string `yaml:"alphabet"`
	Length   int    `yaml:"length"`
}

// CheckAndSetDefaults fills in the nanoid defaults and makes sure a
// generator can be built from the result
func (s *Slugs) CheckAndSetDefaults() (Slugs, error) {
	c := *s
	if c.Alphabet == "" {
		c.Alphabet = slug.DefaultAlphabet
	}
	if c.Length == 0 {
		c.Length = slug.DefaultLength
	}
	if _, err := slug.NewGenerator(c.Alphabet, c.Length); err != nil {
		return Slugs{}, err
	}
	return c, nil
}

// Generator builds the slug generator for s. Only call it on a checked
// config.
func (s Slugs) Generator() (*slug.Generator, error) {
	return slug.NewGenerator(s.Alphabet, s.Length)
}

// Entries contains options applied to newly created pastes
type Entries struct {
	// Applied to pastes created without a TTL. Zero keeps them forever.
	DefaultTTL  time.Duration
	DefaultLang string
	// Expiry choices offered in the UI. The default TTL has to be one of
	// them.
	TTLMenu []time.Duration
	// Set when the user listed their own menu
	customMenu bool
}

type rawEntries struct {
	DefaultTTL  string   `yaml:"defaultTTL"`
	DefaultLang string   `yaml:"defaultLang"`
	TTLMenu     []string `yaml:"ttlMenu"`
}

// UnmarshalYAML parses a user-provided YAML configuration, returning any
// parsing errors.
func (e *Entries) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var r rawEntries
	if err := unmarshal(&r); err != nil {
		return fmt.Errorf("can't parse the entries config: %v", err)
	}

	if r.DefaultTTL != "" {
		d, err := time.ParseDuration(r.DefaultTTL)
		if err != nil {
			return fmt.Errorf("can't parse the default TTL as a duration: %v", err)
		}
		e.DefaultTTL = d
	}

	e.DefaultLang = r.DefaultLang

	if len(r.TTLMenu) > 0 {
		e.customMenu = true
		e.TTLMenu = make([]time.Duration, len(r.TTLMenu))
		for i, m := range r.TTLMenu {
			d, err := time.ParseDuration(m)
			if err != nil {
				return fmt.Errorf("can't parse TTL menu item %q as a duration: %v", m, err)
			}
			e.TTLMenu[i] = d
		}
	}

	return nil
}

// CheckAndSetDefaults validates e and either returns a copy of e with default
// settings applied or returns an error due to an invalid configuration
func (e *Entries) CheckAndSetDefaults() (Entries, error) {
	c := *e
	if c.DefaultTTL < 0 {
		return Entries{}, fmt.Errorf("the default TTL can't be negative: %v", c.DefaultTTL)
	}
	if c.DefaultTTL%time.Second != 0 {
		return Entries{}, fmt.Errorf("the default TTL must be a whole number of seconds: %v", c.DefaultTTL)
	}
	if c.DefaultLang == "" {
		c.DefaultLang = entry.DefaultLang
	}

	if !c.customMenu {
		c.TTLMenu = append([]time.Duration(nil), defaultTTLMenu...)
		if !contains(c.TTLMenu, c.DefaultTTL) {
			c.TTLMenu = append(c.TTLMenu, c.DefaultTTL)
		}
		return c, nil
	}

	for _, d := range c.TTLMenu {
		if d < 0 || d%time.Second != 0 {
			return Entries{}, fmt.Errorf("TTL menu items must be whole, non-negative seconds: %v", d)
		}
	}
	if !contains(c.TTLMenu, c.DefaultTTL) {
		return Entries{}, fmt.Errorf(
			"the default TTL %v is not one of the TTL menu items %v",
			c.DefaultTTL,
			c.TTLMenu,
		)
	}

	return c, nil
}

func contains(ds []time.Duration, d time.Duration) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}

// CheckAndSetDefaults validates m and either returns a copy of m with default
// settings applied or returns a *ConfigError due to an invalid configuration
func (m *Meta) CheckAndSetDefaults() (Meta, error) {
	c := Meta{}

	s, err := m.Server.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, &ConfigError{Section: "server", Err: err}
	}
	c.Server = s

	st, err := m.Storage.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, &ConfigError{Section: "storage", Err: err}
	}
	c.Storage = st

	sl, err := m.Slugs.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, &ConfigError{Section: "slugs", Err: err}
	}
	c.Slugs = sl

	e, err := m.Entries.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, &ConfigError{Section: "entries", Err: err}
	}
	c.Entries = e

	return c, nil

}

// Parse generates usable configurations from possibly arbitrary user input.
// An error indicates a problem with parsing. The Reader r can be either JSON
// or YAML. Call CheckAndSetDefaults on the result before using it.
func Parse(r io.Reader) (*Meta, error) {
	var m Meta
	err := yaml.NewDecoder(r).Decode(&m)
	if err != nil {
		return &Meta{}, fmt.Errorf("can't read the config file as YAML: %v", err)
	}

	if m.Storage == (storage.KVConfig{}) {
		return &Meta{}, errors.New("must include a \"storage\" section")
	}

	return &m, nil

}
