package render

import (
	"regexp"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips scripts, event handlers and unsafe URLs from rendered HTML while keeping
// what the preview relies on: classes, heading ids, callout tags and task list checkboxes.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Globally()
	p.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("data-callout").Matching(regexp.MustCompile(`^[A-Z]+$`)).OnElements("div")
	p.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
	p.AllowAttrs("checked", "disabled").OnElements("input")
	p.AllowElements("input")
	return &Sanitizer{policy: p}
}

var defaultSanitizer = sync.OnceValue(NewSanitizer)

func DefaultSanitizer() *Sanitizer {
	return defaultSanitizer()
}

func (s *Sanitizer) Sanitize(html []byte) []byte {
	return s.policy.SanitizeBytes(html)
}
