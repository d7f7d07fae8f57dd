package normalize

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const zeroWidthSpace = "\u200b"

// Sanitizer strips zero-width spaces and silently drops every character
// the output encoding cannot represent.
type Sanitizer struct {
	name string
	enc  encoding.Encoding // nil for UTF-8

	mu    sync.Mutex
	known map[rune]bool
}

// NewSanitizer returns a sanitizer for the named encoding (WHATWG names,
// e.g. "utf-8", "gbk", "gb18030").
func NewSanitizer(name string) (*Sanitizer, error) {
	if name == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported output encoding %q: %w", name, err)
	}
	canonical, _ := htmlindex.Name(enc)

	s := &Sanitizer{name: canonical, known: make(map[rune]bool)}
	if canonical != "utf-8" {
		s.enc = enc
	}
	return s, nil
}

// Encoding returns the canonical encoding name
func (s *Sanitizer) Encoding() string { return s.name }

// Clean applies the sanitization policy to one text field
func (s *Sanitizer) Clean(text string) string {
	text = strings.ReplaceAll(text, zeroWidthSpace, "")
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	if s == nil || s.enc == nil {
		return text
	}

	out, _, err := transform.String(runes.Remove(runes.Predicate(s.unrepresentable)), text)
	if err != nil {
		return text
	}
	return out
}

func (s *Sanitizer) unrepresentable(r rune) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok, seen := s.known[r]; seen {
		return !ok
	}
	_, err := s.enc.NewEncoder().String(string(r))
	s.known[r] = err == nil
	return err != nil
}
