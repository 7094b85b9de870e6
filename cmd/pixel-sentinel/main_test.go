package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestDefaultOutput(t *testing.T) {
	tests := map[string]string{
		"shot.png":       "shot.sanitized.png",
		"dir/photo.JPEG": "dir/photo.sanitized.png",
		"noext":          "noext.sanitized.png",
		"-":              "-",
	}
	for in, want := range tests {
		if got := defaultOutput(in); got != want {
			t.Errorf("defaultOutput(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	s := sanitizeSummary{
		Input:      "a.png",
		Output:     "a.sanitized.png",
		Method:     "blur",
		Scanned:    true,
		Reason:     "redacted",
		Categories: []string{"email", "phone"},
		Regions:    2,
	}

	var text bytes.Buffer
	if err := printSummary(&text, s, false); err != nil {
		t.Fatal(err)
	}
	out := text.String()
	if !strings.Contains(out, "email, phone") || !strings.Contains(out, "scanned (redacted)") {
		t.Errorf("text summary = %q", out)
	}

	var raw bytes.Buffer
	if err := printSummary(&raw, s, true); err != nil {
		t.Fatal(err)
	}
	var decoded sanitizeSummary
	if err := json.Unmarshal(raw.Bytes(), &decoded); err != nil {
		t.Fatalf("json summary: %v", err)
	}
	if decoded.Regions != 2 || decoded.Output != "a.sanitized.png" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "pixel-sentinel "+version) {
		t.Errorf("version output = %q", out.String())
	}
}
