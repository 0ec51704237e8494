package markdown

import (
	"strings"
	"testing"
)

func TestRenderer_Render(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Basic Markdown",
			input:    "# Your 2024 in Music",
			expected: "<h1 id=\"your-2024-in-music\">Your 2024 in Music</h1>\n",
		},
		{
			name:     "GFM Table",
			input:    "| Artist | Plays |\n|---|---|\n| Dua Lipa | 212 |",
			expected: "<table>",
		},
		{
			name:     "Emphasis",
			input:    "You are a **night owl** listener",
			expected: "<strong>night owl</strong>",
		},
		{
			name:     "Empty Input",
			input:    "",
			expected: "",
		},
		{
			name:     "GFM Strikethrough",
			input:    "~~mainstream~~",
			expected: "<del>mainstream</del>",
		},
		{
			name:     "GFM Autolink",
			input:    "Listen on https://open.spotify.com today",
			expected: "<a href=\"https://open.spotify.com\"",
		},
		{
			name:     "Hard wraps",
			input:    "line one\nline two",
			expected: "line one<br />",
		},
		{
			name:     "Raw HTML omitted",
			input:    "<script>alert(1)</script>",
			expected: "<!-- raw HTML omitted -->",
		},
	}

	renderer := NewRenderer()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := renderer.Render([]byte(tt.input))
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			got := string(output)
			if !strings.Contains(got, tt.expected) {
				t.Errorf("Render() = %v, want substring %v", got, tt.expected)
			}
			if strings.Contains(got, "<script>") {
				t.Errorf("Render() leaked raw script tag: %v", got)
			}
		})
	}
}

func TestRenderer_RenderString_Unfence(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		notWant string
	}{
		{
			name:    "markdown fence unwrapped",
			input:   "```markdown\n## Vibe\nChill\n```",
			want:    "<h2 id=\"vibe\">Vibe</h2>",
			notWant: "<pre>",
		},
		{
			name:    "bare fence unwrapped",
			input:   "```\n**bold**\n```",
			want:    "<strong>bold</strong>",
			notWant: "<pre>",
		},
		{
			name:  "code fence kept",
			input: "```go\nfmt.Println(1)\n```",
			want:  "<pre",
		},
		{
			name:  "plain text",
			input: "  just words  ",
			want:  "<p>just words</p>",
		},
	}

	renderer := NewRenderer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renderer.RenderString(tt.input)
			if err != nil {
				t.Fatalf("RenderString() error = %v", err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("RenderString() = %v, want substring %v", got, tt.want)
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Errorf("RenderString() = %v, should not contain %v", got, tt.notWant)
			}
		})
	}
}
