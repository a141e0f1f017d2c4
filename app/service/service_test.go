package service

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	if got := truncate("short", 1024); got != "short" {
		t.Fatalf("expected value under the cap to pass through, got %q", got)
	}

	// "é" is 2 bytes; a cap of 3 lands mid-rune and must back off to 2.
	if got := truncate("éé", 3); got != "é" {
		t.Fatalf("expected cut on the rune boundary, got %q", got)
	}

	long := strings.Repeat("£", 600)
	got := truncate(long, 1024)
	if len(got) > 1024 {
		t.Fatalf("expected at most 1024 bytes, got %d", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("expected truncated value to stay valid UTF-8, got %q", got)
	}
}
