package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

// cleanName strips markup from a display name. StrictPolicy escapes what it
// keeps, so the result is unescaped back to plain text; templates escape on
// output.
func cleanName(name string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(name)))
}
