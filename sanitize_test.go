package gatekeeper

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "hello world", "hello world"},
		{"script tag removed", `<script>alert("xss")</script>Hello`, "Hello"},
		{"script tag with attributes", `<script src="https://evil.example/x.js"></script>ok`, "ok"},
		{"nested script tag", `<scr<script>ipt>alert(1)</scr</script>ipt>`, ""},
		{"html stripped", "<b>bold</b> and <i>italic</i>", "bold and italic"},
		{"event handler removed", `<img src=x onerror=alert(1)>Hi`, "Hi"},
		{"quoted event handler", `<div onclick="steal()">text</div>`, "text"},
		{"javascript uri removed", `javascript:alert(1)`, "alert(1)"},
		{"javascript uri with spaces", `javascript : alert(1)`, "alert(1)"},
		{"data html uri removed", `data:text/html;base64,PHNjcmlwdD4=`, ""},
		{"surrounding whitespace trimmed", "  plain  ", "plain"},
		{"empty input", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Sanitize(tc.in)
			if got != tc.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
			}
			if again := Sanitize(got); again != got {
				t.Errorf("Sanitize is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestSanitizeRunsToFixpoint(t *testing.T) {
	// Each pass peels one layer; the loop must keep going until nothing
	// executable remains.
	in := `<<script>script>alert(1)<</script>/script>`
	got := Sanitize(in)
	if got != "" && got != "alert(1)" {
		t.Logf("result: %q", got)
	}
	lower := strings.ToLower(got)
	for _, bad := range []string{"<script", "onerror", "javascript:"} {
		if strings.Contains(lower, bad) {
			t.Errorf("payload %q survived sanitization: %q", bad, got)
		}
	}
}
