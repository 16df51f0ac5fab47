package transform

import "regexp"

// legacyImageLink matches image destinations written by the desktop app, which served
// attachments through its own app-images:// scheme.
var legacyImageLink = regexp.MustCompile(`(!\[[^\]\n]*\]\(\s*<?)app-images://images/`)

// RewriteImageLinks points app-images:// image destinations at the /images/ route.
func RewriteImageLinks(src string) string {
	return legacyImageLink.ReplaceAllString(src, "${1}/images/")
}
