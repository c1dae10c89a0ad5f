package security

import (
	"strings"
	"testing"
)

func TestStripTags(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		in   string
		want string
	}{
		{"Alice", "Alice"},
		{"  Alice  ", "Alice"},
		{"<b>Alice</b>", "Alice"},
		{"<script>alert(1)</script>Bob", "Bob"},
		{"Tom & Jerry", "Tom & Jerry"},
		{"<img src=x onerror=alert(1)>", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := s.StripTags(tt.in); got != tt.want {
			t.Errorf("StripTags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeRichText_RemovesDangerousMarkup(t *testing.T) {
	s := NewTextSanitizer()

	got := s.SanitizeRichText(`<p onclick="x()">Hi <strong>there</strong></p><script>alert(1)</script><iframe src="https://evil"></iframe>`)
	if strings.Contains(got, "script") || strings.Contains(got, "iframe") || strings.Contains(got, "onclick") {
		t.Errorf("dangerous markup survived: %q", got)
	}
	if !strings.Contains(got, "<strong>there</strong>") {
		t.Errorf("allowed markup removed: %q", got)
	}
}

func TestSanitizeRichText_Links(t *testing.T) {
	s := NewTextSanitizer()

	got := s.SanitizeRichText(`<a href="https://example.com">ok</a>`)
	if !strings.Contains(got, `rel="nofollow noreferrer noopener"`) && !strings.Contains(got, "noreferrer") {
		t.Errorf("rel not added: %q", got)
	}
	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("target not added: %q", got)
	}

	bad := s.SanitizeRichText(`<a href="javascript:alert(1)">x</a>`)
	if strings.Contains(bad, "javascript") {
		t.Errorf("javascript URL survived: %q", bad)
	}
}

func TestSanitizeData_Recursive(t *testing.T) {
	s := NewTextSanitizer()
	in := map[string]any{
		"description": "<script>x</script>hello",
		"value":       42.0,
		"nested":      map[string]any{"note": "<iframe></iframe>ok"},
		"tags":        []any{"<b>a</b>", 1.0},
	}

	out := SanitizeData(s, in)

	if out["description"] != "hello" {
		t.Errorf("description = %q", out["description"])
	}
	if out["value"] != 42.0 {
		t.Errorf("value = %v", out["value"])
	}
	if nested := out["nested"].(map[string]any); nested["note"] != "ok" {
		t.Errorf("nested.note = %q", nested["note"])
	}
	if tags := out["tags"].([]any); tags[0] != "a" || tags[1] != 1.0 {
		t.Errorf("tags = %v", tags)
	}
	// 入力は変更されない
	if in["description"] != "<script>x</script>hello" {
		t.Error("input map was modified")
	}
}

func TestSanitizeData_Nil(t *testing.T) {
	if SanitizeData(NewTextSanitizer(), nil) != nil {
		t.Error("SanitizeData(nil) should return nil")
	}
}
