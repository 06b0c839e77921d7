package markdown

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lynnntropy/lynnzone/content"
)

func render(md string) string {
	var buf bytes.Buffer
	RenderMarkdown(&buf, md)
	return buf.String()
}

func TestFormatInlineEmphasis(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"**bold**", "<strong>bold</strong>"},
		{"__bold__", "<strong>bold</strong>"},
		{"*italic*", "<em>italic</em>"},
		{"_italic_", "<em>italic</em>"},
		{"text **bold** more", "text <strong>bold</strong> more"},
		{"**bold *italic* text**", "<strong>bold <em>italic</em> text</strong>"},
	}
	for _, tt := range tests {
		got := FormatInline(tt.input, new(int))
		if got != tt.expected {
			t.Errorf("FormatInline(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormatInlineCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"`code`", "<code>code</code>"},
		{"use `fmt.Println` here", "use <code>fmt.Println</code> here"},
		{"`a` and `b`", "<code>a</code> and <code>b</code>"},
		{"`**not bold**`", "<code>**not bold**</code>"},
		{"`<script>`", "<code>&lt;script&gt;</code>"},
	}
	for _, tt := range tests {
		got := FormatInline(tt.input, new(int))
		if got != tt.expected {
			t.Errorf("FormatInline(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormatInlineLinks(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{
			"[Wikipedia](https://en.wikipedia.org/wiki/Some_Article_Title)",
			`<a href="https://en.wikipedia.org/wiki/Some_Article_Title">Wikipedia</a>`,
		},
		{
			"see [the other post](/blog/other-post)",
			`see <a href="/blog/other-post">the other post</a>`,
		},
		{
			"[Google](https://google.com)^",
			`<a href="https://google.com" target="_blank" rel="noopener noreferrer">Google</a>`,
		},
		{
			"[bad](javascript:void)",
			`bad`,
		},
	}
	for _, tt := range tests {
		got := FormatInline(tt.input, new(int))
		if got != tt.expected {
			t.Errorf("FormatInline(%q)\n  got:  %q\n  want: %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormatInlineImages(t *testing.T) {
	count := 0
	got := FormatInline("![a cat](/images/cat.png)", &count)
	want := `<img fetchpriority="high" alt="a cat" src="/images/cat.png" decoding="async"/>`
	if got != want {
		t.Errorf("first image = %q, want %q", got, want)
	}

	got = FormatInline("![dog](https://example.com/dog.jpg){max-width:50%|640|480}", &count)
	want = `<img loading="lazy" alt="dog" src="https://example.com/dog.jpg" width="640" height="480" style="max-width:50%" decoding="async"/>`
	if got != want {
		t.Errorf("second image = %q, want %q", got, want)
	}
	if count != 2 {
		t.Errorf("image count = %d, want 2", count)
	}
}

func TestRenderMarkdownHeadings(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"# Heading 1", `<h1 id="heading-1">Heading 1</h1>`},
		{"## Heading 2", `<h2 id="heading-2">Heading 2</h2>`},
		{"#### Deep `code` heading", `<h4 id="deep-code-heading">Deep <code>code</code> heading</h4>`},
		{"## What's new?", `<h2 id="what-s-new">What&#39;s new?</h2>`},
	}
	for _, tt := range tests {
		got := render(tt.input)
		if got != tt.expected {
			t.Errorf("RenderMarkdown(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestRenderMarkdownDuplicateHeadings(t *testing.T) {
	got := render("## Setup\n\n## Setup\n\n## Setup")
	for _, id := range []string{`id="setup"`, `id="setup-1"`, `id="setup-2"`} {
		if !strings.Contains(got, id) {
			t.Errorf("expected %s in %q", id, got)
		}
	}
}

func TestRenderMarkdownCodeBlock(t *testing.T) {
	got := render("```go\nfmt.Println(\"<hi>\")\n```")
	if !strings.Contains(got, `<code class="language-go">`) {
		t.Errorf("code block should have language-go class: %q", got)
	}
	if !strings.Contains(got, `<span class="code-lang code-lang-go">go</span>`) {
		t.Errorf("code block should have language badge: %q", got)
	}
	if !strings.Contains(got, "&lt;hi&gt;") {
		t.Errorf("code block content should be escaped: %q", got)
	}
	if !strings.HasSuffix(got, "</code></pre></div>") {
		t.Errorf("wrapper should be closed: %q", got)
	}

	plain := render("```\nplain\n```")
	if strings.Contains(plain, "code-block-wrapper") {
		t.Errorf("code block without language should not be wrapped: %q", plain)
	}
}

func TestRenderMarkdownUnclosedCodeBlock(t *testing.T) {
	got := render("```\nnever closed")
	if !strings.HasSuffix(got, "</code></pre>") {
		t.Errorf("unclosed code block should be closed at end: %q", got)
	}
}

func TestRenderMarkdownLists(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"- item 1\n- item 2", "<ul><li>item 1</li><li>item 2</li></ul>"},
		{"* star", "<ul><li>star</li></ul>"},
		{"1. first\n2. second", "<ol><li>first</li><li>second</li></ol>"},
		{"1. **bold** item", "<ol><li><strong>bold</strong> item</li></ol>"},
		{"- a\n1. b", "<ul><li>a</li></ul><ol><li>b</li></ol>"},
	}
	for _, tt := range tests {
		got := render(tt.input)
		if got != tt.expected {
			t.Errorf("RenderMarkdown(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestRenderMarkdownParagraphs(t *testing.T) {
	got := render("first line\nsecond line\n\nnext para")
	want := "<p>first line\n second line\n</p><p>next para\n</p>"
	if got != want {
		t.Errorf("RenderMarkdown paragraphs = %q, want %q", got, want)
	}
}

func TestRenderMarkdownBlockquote(t *testing.T) {
	got := render("> quoted *text*")
	want := "<blockquote>quoted <em>text</em></blockquote>"
	if got != want {
		t.Errorf("RenderMarkdown blockquote = %q, want %q", got, want)
	}
}

func TestRenderMarkdownTable(t *testing.T) {
	got := render("| a | b |\n|---|:-:|\n| 1 | 2 |")
	want := "<table><thead><tr><th>a</th><th>b</th></tr></thead><tbody><tr><td>1</td><td>2</td></tr></tbody></table>"
	if got != want {
		t.Errorf("RenderMarkdown table = %q, want %q", got, want)
	}
}

func TestRenderMarkdownEscapesRawHTML(t *testing.T) {
	got := render("<script>alert(1)</script>")
	if strings.Contains(got, "<script>") {
		t.Errorf("raw HTML should be escaped: %q", got)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "hello-world"},
		{"  Trim  me  ", "trim-me"},
		{"Go 1.22 & you", "go-1-22-you"},
		{"Übersicht", "übersicht"},
		{"!!!", "section"},
	}
	for _, tt := range tests {
		if got := Slug(tt.input); got != tt.expected {
			t.Errorf("Slug(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestRendererStandalone(t *testing.T) {
	post := content.Post{ID: "p", Title: "A post", Date: time.Now(), Body: "hello"}

	cmp, err := Renderer{Standalone: true}.Render(context.Background(), post)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var buf bytes.Buffer
	if err := cmp.Render(context.Background(), &buf); err != nil {
		t.Fatalf("component render: %v", err)
	}
	got := buf.String()
	if !strings.HasPrefix(got, Doctype) {
		t.Errorf("standalone output should start with doctype: %q", got)
	}
	if got != Doctype+"<p>hello\n</p>" {
		t.Errorf("standalone output = %q", got)
	}
}

func TestRendererFragment(t *testing.T) {
	cmp, err := Renderer{}.Render(context.Background(), content.Post{Body: "# Hi"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var buf bytes.Buffer
	if err := cmp.Render(context.Background(), &buf); err != nil {
		t.Fatalf("component render: %v", err)
	}
	if got := buf.String(); got != `<h1 id="hi">Hi</h1>` {
		t.Errorf("fragment = %q", got)
	}
}
