// Package sanitize strips markup from clinical free text before it is stored.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// maxPasses bounds how many layers of entity encoding are peeled off.
const maxPasses = 8

// Text removes all HTML and trims surrounding whitespace. Entities are
// unescaped and the result sanitized again until it stops changing, so
// encoded markup such as "&lt;script&gt;" cannot come back as a tag.
// Input that is still changing after maxPasses is returned in its escaped
// form.
func Text(input string) string {
	if input == "" {
		return ""
	}
	prev := input
	for i := 0; i < maxPasses; i++ {
		next := html.UnescapeString(strict.Sanitize(prev))
		if next == prev {
			return strings.TrimSpace(next)
		}
		prev = next
	}
	return strings.TrimSpace(strict.Sanitize(prev))
}
