package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"weibocrawler/pkg/weibo"
)

var (
	// ErrMarkerNotFound means the detail body lacks a delimiting marker
	ErrMarkerNotFound = errors.New("payload marker not found")
	// ErrMalformedPayload means the delimited fragment is not a status object
	ErrMalformedPayload = errors.New("malformed embedded payload")
)

const (
	// DefaultLeadingMarker opens the embedded status in a detail page
	DefaultLeadingMarker = `"status":`
	// DefaultTrailingMarker is the first key after the status object
	DefaultTrailingMarker = `"hotScheme"`

	locationIcon = "timeline_card_small_location_default.png"
)

// ContentExtractor turns upstream documents into structured fragments
type ContentExtractor interface {
	// StatusFromDetail isolates and decodes the status embedded in a detail page
	StatusFromDetail(body string) (*weibo.RawStatus, error)
	// Rendered scans a rendered status body for text and derived fields
	Rendered(fragment string) (Rendered, error)
}

// Rendered holds what is read off a status body's markup
type Rendered struct {
	Text     string
	Location string
	Topics   []string
	AtUsers  []string
}

// Extractor is the marker based ContentExtractor
type Extractor struct {
	LeadingMarker  string
	TrailingMarker string
}

// New returns an extractor using the detail page's known markers
func New() *Extractor {
	return &Extractor{LeadingMarker: DefaultLeadingMarker, TrailingMarker: DefaultTrailingMarker}
}

// StatusFromDetail keeps everything from the first leading marker up to the
// last trailing marker, drops the separator before it and decodes the
// result as one object.
func (e *Extractor) StatusFromDetail(body string) (*weibo.RawStatus, error) {
	start := strings.Index(body, e.LeadingMarker)
	if start < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMarkerNotFound, e.LeadingMarker)
	}
	fragment := body[start:]

	end := strings.LastIndex(fragment, e.TrailingMarker)
	if end < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMarkerNotFound, e.TrailingMarker)
	}
	fragment = fragment[:end]

	comma := strings.LastIndex(fragment, ",")
	if comma < 0 {
		return nil, fmt.Errorf("%w: no separator before %s", ErrMalformedPayload, e.TrailingMarker)
	}
	fragment = "{" + fragment[:comma] + "}"

	var envelope struct {
		Status *weibo.RawStatus `json:"status"`
	}
	if err := json.Unmarshal([]byte(escapeControlChars(fragment)), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if envelope.Status == nil || envelope.Status.ID == "" {
		return nil, fmt.Errorf("%w: status object missing", ErrMalformedPayload)
	}
	return envelope.Status, nil
}

// escapeControlChars escapes raw control characters inside string literals.
// Detail pages embed text with literal newlines, which strict JSON rejects.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString && c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Rendered parses a status body fragment. Its rules are fixed heuristics:
// the location is the span following a span holding the location icon; a
// topic is surl-text span text wrapped in # and longer than two characters;
// a mention is an anchor whose text equals @ plus its href minus the
// three-character route prefix.
func (e *Extractor) Rendered(fragment string) (Rendered, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return Rendered{}, fmt.Errorf("parse status body: %w", err)
	}

	r := Rendered{Text: doc.Text()}

	spans := doc.Find("span")
	spans.EachWithBreak(func(i int, s *goquery.Selection) bool {
		src, ok := s.ChildrenFiltered("img").First().Attr("src")
		if !ok || !strings.Contains(src, locationIcon) {
			return true
		}
		if i+1 < spans.Length() {
			r.Location = spans.Eq(i + 1).Text()
		}
		return false
	})

	doc.Find(`span[class="surl-text"]`).Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if utf8.RuneCountInString(text) > 2 && strings.HasPrefix(text, "#") && strings.HasSuffix(text, "#") {
			r.Topics = append(r.Topics, text[1:len(text)-1])
		}
	})

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		// the route prefix is counted in characters, not bytes
		route := []rune(href)
		if len(route) < 3 {
			return
		}
		text := s.Text()
		if "@"+string(route[3:]) == text {
			r.AtUsers = append(r.AtUsers, text[1:])
		}
	})

	return r, nil
}
