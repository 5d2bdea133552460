package respond

import "testing"

func TestClean(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Just a paragraph.", "Just a paragraph."},
		{"surrounding whitespace", "\n\ntext\n\n", "text"},
		{"fenced markdown", "```markdown\n## Heading\n\ntext\n```", "## Heading\n\ntext"},
		{"bare fence", "```\ntext\n```", "text"},
		{"inner fence kept", "Intro.\n\n```go\ncode\n```", "Intro.\n\n```go\ncode\n```"},
		{"fenced code content untouched", "```markdown\nuses ```go inside\n```", "```markdown\nuses ```go inside\n```"},
		{"lone fence line", "```", "```"},
	}
	for _, c := range cases {
		if got := Clean(c.in); got != c.want {
			t.Errorf("%s: Clean(%q) = %q, want %q", c.name, c.in, got, c.want)
		}
	}
}
