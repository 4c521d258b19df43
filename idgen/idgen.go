// Package idgen provides pluggable ID generation for ezpage.
//
// Node ids inside a page document are short and URL-safe (NanoID); journal
// rows use time-sortable UUIDv7. Constructors that mint ids accept a Generator
// so the strategy is a startup-time decision and tests can make it
// deterministic.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// URLAlphabet is the 64-symbol alphabet used for node ids. 256 is a multiple
// of 64, so mapping one random byte per symbol carries no modulo bias.
const URLAlphabet = "useandom-26T198340PX75pxJACKVERYMINDBUSHWOLF_GQZbfghjklqvwyzrict"

// NanoID returns a Generator that produces URL-safe ids of the given length.
func NanoID(length int) Generator {
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = URLAlphabet[buf[i]&63]
		}
		return string(buf)
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID
// (e.g. "act_" for journal rows).
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator producing prefix1, prefix2, ...
// Intended for tests and fixtures.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return prefix + strconv.FormatInt(n.Add(1), 10)
	}
}

// Unique draws from gen until taken reports the id as free, giving up after
// attempts draws.
func Unique(gen Generator, taken func(string) bool, attempts int) (string, error) {
	for range attempts {
		id := gen()
		if id != "" && !taken(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("idgen: no free id after %d attempts", attempts)
}

// Node is the default generator for document node ids.
var Node Generator = NanoID(10)

// Default is the default generator for journal and session ids (UUIDv7).
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return u.String(), nil
}
