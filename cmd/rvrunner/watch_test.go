package main

import (
	"strings"
	"testing"
)

func TestTailRing(t *testing.T) {
	r := newTailRing(256)
	r.Write([]byte("boot"))
	if string(r.Bytes()) != "boot" {
		t.Fatalf("partial fill: %q", r.Bytes())
	}
	r.Write([]byte(strings.Repeat("a", 300) + "END"))
	b := r.Bytes()
	if len(b) != 256 || !strings.HasSuffix(string(b), "aaaEND") {
		t.Fatalf("wrapped ring: len=%d tail=%q", len(b), b[len(b)-6:])
	}
}

func TestMatcher_AcrossChunks(t *testing.T) {
	m := newMatcher("login:")
	for _, chunk := range []string{"Welcome\nbuildroot lo", "g", "IN", ": "} {
		if m.feed(chunk) {
			return
		}
	}
	t.Fatalf("needle split across chunks not found")
}

func TestMatcher_NoFalsePositive(t *testing.T) {
	m := newMatcher("Passed")
	for _, chunk := range []string{"pas", "s", "ing", "ed"} {
		if m.feed(chunk) {
			t.Fatalf("matched %q on unrelated input", "Passed")
		}
	}
	if newMatcher("").feed("anything") {
		t.Fatalf("empty needle must never match")
	}
}
