package userconfig

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	// Asserting deep equality between the expected and actual Meta would
	// be really convoluted and brittle, so we should make sure nothing
	// fails unexpectedly and test knottier marshaling/validation situations
	// elswhere.
	testCases := []struct {
		description   string
		conf          string
		shouldBeError bool
		shouldBeEmpty bool
	}{
		{
			description:   "valid case",
			shouldBeError: false,
			shouldBeEmpty: false,
			conf: `---
server:
    address: 0.0.0.0
    port: 8080
    maxPasteSize: 1MiB
storage:
    storageDir: ./tempTestDir3012705204
    cleanupInterval: "10m"
slugs:
    alphabet: abcdef0123456789
    length: 10
entries:
    defaultTTL: 1h
    defaultLang: go
    ttlMenu: [0s, 1h, 24h]`,
		},
		{
			description:   "storage only",
			shouldBeError: false,
			shouldBeEmpty: false,
			conf: `---
storage:
    storageDir: ./tempTestDir3012705204
    cleanupInterval: "10m"`,
		},
		{
			description:   "no storage section",
			shouldBeError: true,
			shouldBeEmpty: true,
			conf: `---
server:
    port: 8080`,
		},
		{
			description:   "bad port",
			shouldBeError: true,
			shouldBeEmpty: true,
			conf: `---
server:
    port: eighty
storage:
    storageDir: ./tempTestDir3012705204
    cleanupInterval: "10m"`,
		},
		{
			description:   "bad TTL menu item",
			shouldBeError: true,
			shouldBeEmpty: true,
			conf: `---
storage:
    storageDir: ./tempTestDir3012705204
    cleanupInterval: "10m"
entries:
    ttlMenu: [1h, forever]`,
		},
		{
			description:   "not yaml",
			shouldBeError: true,
			shouldBeEmpty: true,
			conf:          `this is not yaml`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			b := bytes.NewBuffer([]byte(tc.conf))
			m, err := Parse(b)

			if (err != nil) != tc.shouldBeError {
				t.Errorf(
					"%v: unexpected error status: wanted %v but got %v with error %v",
					tc.description,
					tc.shouldBeError,
					err != nil,
					err,
				)
			}

			if reflect.DeepEqual(*m, Meta{}) != tc.shouldBeEmpty {
				l := map[bool]string{
					true:  "to be",
					false: "not to be",
				}
				t.Errorf(
					"%v: expected the Meta %v nil, but got the opposite",
					tc.description,
					l[tc.shouldBeEmpty],
				)
			}
		})

	}

}

func TestCheckAndSetDefaults(t *testing.T) {
	conf := `---
storage:
    storageDir: ./data
    cleanupInterval: 10m`

	m, err := Parse(bytes.NewBufferString(conf))
	if err != nil {
		t.Fatal(err)
	}
	c, err := m.CheckAndSetDefaults()
	if err != nil {
		t.Fatal(err)
	}

	if c.Server.Address != defaultAddress || c.Server.Port != defaultPort {
		t.Errorf("unexpected listener defaults %v:%v", c.Server.Address, c.Server.Port)
	}
	if c.Server.MaxPasteSize != defaultMaxPasteSize {
		t.Errorf("unexpected max paste size %v", c.Server.MaxPasteSize)
	}
	if c.Slugs.Length != 21 || c.Slugs.Alphabet == "" {
		t.Errorf("unexpected slug defaults %+v", c.Slugs)
	}
	if c.Entries.DefaultTTL != 0 || c.Entries.DefaultLang != "markup" {
		t.Errorf("unexpected entry defaults %+v", c.Entries)
	}
	if !reflect.DeepEqual(c.Entries.TTLMenu, defaultTTLMenu) {
		t.Errorf("unexpected TTL menu %v", c.Entries.TTLMenu)
	}
	if _, err := c.Slugs.Generator(); err != nil {
		t.Errorf("can't build a generator from the checked config: %v", err)
	}
}

func TestCheckAndSetDefaultsErrors(t *testing.T) {
	base := `---
storage:
    storageDir: ./data
    cleanupInterval: 10m
`
	testCases := []struct {
		description string
		extra       string
		section     string
	}{
		{
			description: "duplicate alphabet characters",
			extra: `slugs:
    alphabet: aab
    length: 4`,
			section: "slugs",
		},
		{
			description: "negative slug length",
			extra: `slugs:
    length: -1`,
			section: "slugs",
		},
		{
			description: "default TTL missing from the menu",
			extra: `entries:
    defaultTTL: 2h
    ttlMenu: [0s, 1h]`,
			section: "entries",
		},
		{
			description: "negative default TTL",
			extra: `entries:
    defaultTTL: -1h`,
			section: "entries",
		},
		{
			description: "fractional default TTL",
			extra: `entries:
    defaultTTL: 1500ms`,
			section: "entries",
		},
		{
			description: "TLS key without a certificate",
			extra: `server:
    tlsKey: ./key.pem`,
			section: "server",
		},
		{
			description: "port out of range",
			extra: `server:
    port: 70000`,
			section: "server",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			m, err := Parse(bytes.NewBufferString(base + tc.extra))
			if err != nil {
				t.Fatalf("unexpected parse error: %v", err)
			}
			_, err = m.CheckAndSetDefaults()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected a *ConfigError but got %v", err)
			}
			if ce.Section != tc.section {
				t.Errorf("expected the %q section to be at fault but got %q", tc.section, ce.Section)
			}
		})
	}
}

func TestDefaultTTLJoinsDefaultMenu(t *testing.T) {
	e := Entries{DefaultTTL: 90 * time.Minute}
	c, err := e.CheckAndSetDefaults()
	if err != nil {
		t.Fatal(err)
	}
	if !contains(c.TTLMenu, 90*time.Minute) {
		t.Errorf("expected the default TTL in the menu %v", c.TTLMenu)
	}
}
