package gatekeeper

import (
	"regexp"
	"strings"
)

// Sanitization patterns, applied in order until the input stops changing so
// the result is stable against nested payloads like "<scr<script>ipt>".
var (
	scriptTagPattern = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	htmlTagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
	jsURIPattern     = regexp.MustCompile(`(?i)javascript\s*:`)
	eventAttrPattern = regexp.MustCompile(`(?i)\bon\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]*)`)
	dataHTMLPattern  = regexp.MustCompile(`(?i)data\s*:\s*text/html[^\s"'<>]*`)
)

// Sanitize strips executable payloads from untrusted text: script tags, all
// HTML tags, javascript: URIs, inline event-handler attributes, and
// data:text/html payloads. It is idempotent; every text field accepted from
// an external collaborator must pass through it before being stored or
// compared.
func Sanitize(text string) string {
	prev := ""
	out := text
	for out != prev {
		prev = out
		out = scriptTagPattern.ReplaceAllString(out, "")
		out = eventAttrPattern.ReplaceAllString(out, "")
		out = htmlTagPattern.ReplaceAllString(out, "")
		out = jsURIPattern.ReplaceAllString(out, "")
		out = dataHTMLPattern.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out)
}
