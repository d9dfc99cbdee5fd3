package slug

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// DefaultAlphabet is the URL-safe nanoid alphabet
	DefaultAlphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// DefaultLength gives about 126 bits of randomness with DefaultAlphabet
	DefaultLength = 21
	// maxAlphabet is the largest alphabet the generator can sample from
	// without bias
	maxAlphabet = 255
)

// ConfigError means a Generator can't be built from the configured alphabet
// and length. It is meant to stop the process before it serves anything.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid slug configuration: %v", e.Reason)
}

// Generator produces random slugs from a fixed alphabet. The zero value is
// not usable; create one with NewGenerator. A Generator is safe for
// concurrent use.
//
// Slugs aren't guaranteed to be unique. The chance of a collision depends on
// the size of the keyspace, len(alphabet)^length.
type Generator struct {
	alphabet string
	length   int
}

// NewGenerator validates the alphabet and length once so that Generate
// never has to. The alphabet is treated as a set of characters, so
// duplicates are rejected as they would skew the distribution.
func NewGenerator(alphabet string, length int) (*Generator, error) {
	if err := validate(alphabet, length); err != nil {
		return nil, err
	}
	return &Generator{
		alphabet: alphabet,
		length:   length,
	}, nil
}

// Generate returns a string of exactly g's length, each character drawn
// independently and uniformly from g's alphabet using crypto/rand. An error
// means the system's entropy source failed.
func (g *Generator) Generate() (string, error) {
	s, err := gonanoid.Generate(g.alphabet, g.length)
	if err != nil {
		return "", fmt.Errorf("can't generate a slug: %v", err)
	}
	return s, nil
}

// Length is the number of characters in each slug.
func (g *Generator) Length() int {
	return g.length
}

// Alphabet is the set of characters slugs are drawn from.
func (g *Generator) Alphabet() string {
	return g.alphabet
}

// Generate is a one-off version of Generator.Generate.
func Generate(alphabet string, length int) (string, error) {
	g, err := NewGenerator(alphabet, length)
	if err != nil {
		return "", err
	}
	return g.Generate()
}

func validate(alphabet string, length int) error {
	if length < 1 {
		return &ConfigError{Reason: fmt.Sprintf("the slug length must be at least 1, not %v", length)}
	}

	chars := []rune(alphabet)
	if len(chars) == 0 {
		return &ConfigError{Reason: "the slug alphabet can't be empty"}
	}
	if len(chars) > maxAlphabet {
		return &ConfigError{Reason: fmt.Sprintf("the slug alphabet can have at most %v characters, not %v", maxAlphabet, len(chars))}
	}

	seen := make(map[rune]struct{}, len(chars))
	for _, c := range chars {
		if _, ok := seen[c]; ok {
			return &ConfigError{Reason: fmt.Sprintf("the slug alphabet contains %q more than once", c)}
		}
		seen[c] = struct{}{}
	}

	return nil
}
