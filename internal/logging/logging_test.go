package logging

import (
	"strings"
	"testing"
)

func TestRedactEmail(t *testing.T) {
	got := Redact("contact alice@example.com for details")
	if strings.Contains(got, "alice@example.com") {
		t.Errorf("email not redacted: %q", got)
	}
	if !strings.Contains(got, "[REDACTED]") {
		t.Errorf("expected placeholder in %q", got)
	}
}

func TestRedactPhone(t *testing.T) {
	got := Redact("call +61 2 9374 4000 now")
	if strings.Contains(got, "9374") {
		t.Errorf("phone not redacted: %q", got)
	}
}

func TestRedactLeavesPlainText(t *testing.T) {
	in := "no personal data here"
	if got := Redact(in); got != in {
		t.Errorf("plain text modified: %q", got)
	}
}
