package application

import (
	"strings"
	"testing"
)

func TestIsRelativeLink(t *testing.T) {
	tests := []struct {
		name     string
		dest     string
		expected bool
	}{
		{name: "Bare filename", dest: "photo.jpg", expected: true},
		{name: "Dot relative", dest: "./photo.jpg", expected: true},
		{name: "Parent relative", dest: "../img/photo.jpg", expected: true},
		{name: "Absolute path", dest: "/uploads/photo.jpg", expected: true},
		{name: "Protocol relative", dest: "//cdn.example.com/photo.jpg", expected: false},
		{name: "HTTPS URL", dest: "https://example.com/photo.jpg", expected: false},
		{name: "Mailto", dest: "mailto:farmer@example.com", expected: false},
		{name: "Anchor", dest: "#details", expected: false},
		{name: "Empty", dest: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRelativeLink(tt.dest); got != tt.expected {
				t.Errorf("isRelativeLink(%q) = %v, want %v", tt.dest, got, tt.expected)
			}
		})
	}
}

func TestDescriptionRenderer(t *testing.T) {
	r := NewDescriptionRenderer()

	tests := []struct {
		name        string
		description string
		contains    []string
		excludes    []string
	}{
		{
			name:        "Empty description",
			description: "   ",
		},
		{
			name:        "Emphasis",
			description: "Grown *without* pesticides",
			contains:    []string{"<em>without</em>"},
		},
		{
			name:        "Raw HTML is dropped",
			description: "Fresh <script>alert(1)</script> okra",
			excludes:    []string{"<script>"},
		},
		{
			name:        "Links are marked untrusted",
			description: "[farm site](https://farm.example.com)",
			contains:    []string{`href="https://farm.example.com"`, `rel="nofollow noopener"`, `target="_blank"`},
		},
		{
			name:        "Relative images point at uploads",
			description: "![field](photos/field.jpg)",
			contains:    []string{`src="/images/field.jpg"`},
		},
		{
			name:        "Absolute images untouched",
			description: "![field](https://cdn.example.com/field.jpg)",
			contains:    []string{`src="https://cdn.example.com/field.jpg"`},
		},
		{
			name:        "Hard wraps",
			description: "line one\nline two",
			contains:    []string{"<br>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Render(tt.description)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			html := string(got)
			if len(tt.contains) == 0 && len(tt.excludes) == 0 && html != "" {
				t.Errorf("Render() = %q, want empty", html)
			}
			for _, want := range tt.contains {
				if !strings.Contains(html, want) {
					t.Errorf("Render() = %q, missing %q", html, want)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(html, unwanted) {
					t.Errorf("Render() = %q, should not contain %q", html, unwanted)
				}
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name        string
		description string
		expected    string
	}{
		{name: "Empty", description: "", expected: ""},
		{name: "Single line", description: "Fresh okra", expected: "Fresh okra"},
		{name: "First paragraph only", description: "Line one\nline two\n\nSecond paragraph", expected: "Line one line two"},
		{name: "Leading blank lines and markers", description: "\n\n# Harvest\n- organic", expected: "Harvest organic"},
		{
			name:        "Truncated at word boundary",
			description: strings.Repeat("grain ", 40),
			expected:    strings.TrimSpace(strings.Repeat("grain ", 26)) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summarize(tt.description); got != tt.expected {
				t.Errorf("summarize() = %q, want %q", got, tt.expected)
			}
		})
	}
}
