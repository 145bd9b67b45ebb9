package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTextFormatter(t *testing.T) {
	f := &TextFormatter{}

	out, err := f.Format("hello")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("Format = %q, want %q", out, "hello\n")
	}

	var buf bytes.Buffer
	if err := f.FormatTo(&buf, 42); err != nil {
		t.Fatalf("FormatTo: %v", err)
	}
	if buf.String() != "42\n" {
		t.Errorf("FormatTo = %q, want %q", buf.String(), "42\n")
	}
}

func TestJSONFormatter(t *testing.T) {
	f := &JSONFormatter{Indent: true}

	data := map[string]any{"hostname": "feeds.example.com", "minutes": 20}
	out, err := f.Format(data)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.Contains(string(out), "\n  ") {
		t.Error("indented output expected")
	}

	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["hostname"] != "feeds.example.com" {
		t.Errorf("hostname = %v", decoded["hostname"])
	}
}

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON).(*JSONFormatter); !ok {
		t.Error("FormatJSON should build a JSONFormatter")
	}
	if _, ok := NewFormatter(FormatText).(*TextFormatter); !ok {
		t.Error("FormatText should build a TextFormatter")
	}
	if _, ok := NewFormatter("bogus").(*TextFormatter); !ok {
		t.Error("unknown formats fall back to text")
	}
}
