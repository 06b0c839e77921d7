// Package markdown renders the blog's Markdown dialect to HTML and exposes it
// as templ components.
package markdown

import (
	"bytes"
	"context"
	"html"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/lynnntropy/lynnzone/content"
)

var (
	reBold             = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBoldUnderscore   = regexp.MustCompile(`__(.+?)__`)
	reItalic           = regexp.MustCompile(`\*([^*]+)\*`)
	reItalicUnderscore = regexp.MustCompile(`_([^_]+)_`)
	reInlineCode       = regexp.MustCompile("`([^`]+)`")
	reLink             = regexp.MustCompile(`\[(.*?)\]\((.*?)\)(\^)?`)
	reOrderedList      = regexp.MustCompile(`^(\d+)\.\s`)
	reHeading          = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	reTag              = regexp.MustCompile(`<[^>]*>`)
	// ![alt](url) with an optional {style} or {style|width|height} suffix
	reImg = regexp.MustCompile(`\!\[(.*?)\]\((.*?)\)(?:\{([^|}]*?)(?:\|(\d+)\|(\d+))?\})?`)
)

// Doctype is prepended to standalone documents.
const Doctype = "<!DOCTYPE html>"

// Markdown returns a templ.Component that renders md as HTML.
func Markdown(md string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		RenderMarkdown(&buf, md)
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// Renderer turns posts into components. With Standalone set the output is
// prefixed with a doctype, the way a page renderer emits whole documents.
type Renderer struct {
	Standalone bool
}

// Render returns the component for p's body.
func (r Renderer) Render(ctx context.Context, p content.Post) (templ.Component, error) {
	body := Markdown(p.Body)
	if !r.Standalone {
		return body, nil
	}
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, Doctype); err != nil {
			return err
		}
		return body.Render(ctx, w)
	}), nil
}

// blockWriter tracks which block element is open while walking lines.
type blockWriter struct {
	buf             *bytes.Buffer
	imageCount      int
	anchors         map[string]int
	inList          bool
	inOrderedList   bool
	inPara          bool
	inQuote         bool
	inCode          bool
	codeLang        bool
	inTable         bool
	tableHeaderDone bool
}

func (b *blockWriter) closeCode() {
	if !b.inCode {
		return
	}
	b.buf.WriteString("</code></pre>")
	if b.codeLang {
		b.buf.WriteString("</div>")
		b.codeLang = false
	}
	b.inCode = false
}

func (b *blockWriter) closePara() {
	if b.inPara {
		b.buf.WriteString("</p>")
		b.inPara = false
	}
}

func (b *blockWriter) closeQuote() {
	if b.inQuote {
		b.buf.WriteString("</blockquote>")
		b.inQuote = false
	}
}

func (b *blockWriter) closeList() {
	if b.inList {
		b.buf.WriteString("</ul>")
		b.inList = false
	}
}

func (b *blockWriter) closeOrderedList() {
	if b.inOrderedList {
		b.buf.WriteString("</ol>")
		b.inOrderedList = false
	}
}

func (b *blockWriter) closeTable() {
	if !b.inTable {
		return
	}
	if b.tableHeaderDone {
		b.buf.WriteString("</tbody>")
	}
	b.buf.WriteString("</table>")
	b.inTable = false
	b.tableHeaderDone = false
}

// closeAll closes every open block; keep lets one kind stay open.
func (b *blockWriter) closeAll(keep string) {
	if keep != "p" {
		b.closePara()
	}
	if keep != "ul" {
		b.closeList()
	}
	if keep != "ol" {
		b.closeOrderedList()
	}
	if keep != "blockquote" {
		b.closeQuote()
	}
	if keep != "table" {
		b.closeTable()
	}
}

func (b *blockWriter) inline(s string) string {
	return FormatInline(s, &b.imageCount)
}

// anchor returns a unique id for a heading.
func (b *blockWriter) anchor(text string) string {
	id := Slug(html.UnescapeString(reTag.ReplaceAllString(text, "")))
	n := b.anchors[id]
	b.anchors[id] = n + 1
	if n > 0 {
		id += "-" + strconv.Itoa(n)
	}
	return id
}

func (b *blockWriter) heading(level int, text string) {
	b.closeAll("")
	inner := b.inline(strings.TrimSpace(text))
	tag := "h" + strconv.Itoa(level)
	b.buf.WriteString("<" + tag + ` id="` + b.anchor(inner) + `">`)
	b.buf.WriteString(inner)
	b.buf.WriteString("</" + tag + ">")
}

func (b *blockWriter) openCode(info string) {
	b.closeAll("")
	lang := strings.TrimSpace(info)
	if lang == "" {
		b.buf.WriteString(`<pre class="code-block"><code>`)
	} else {
		escaped := html.EscapeString(lang)
		b.buf.WriteString(`<div class="code-block-wrapper"><span class="code-lang code-lang-` + escaped + `">` + escaped + `</span>`)
		b.buf.WriteString(`<pre class="code-block"><code class="language-` + escaped + `">`)
		b.codeLang = true
	}
	b.inCode = true
}

func (b *blockWriter) tableRow(line string) {
	if !b.inTable {
		b.closeAll("")
		b.buf.WriteString("<table><thead><tr>")
		for _, cell := range parseTableCells(line) {
			b.buf.WriteString("<th>" + b.inline(cell) + "</th>")
		}
		b.buf.WriteString("</tr></thead>")
		b.inTable = true
		return
	}
	if !b.tableHeaderDone {
		b.buf.WriteString("<tbody>")
		b.tableHeaderDone = true
	}
	if isTableSeparator(line) {
		return
	}
	b.buf.WriteString("<tr>")
	for _, cell := range parseTableCells(line) {
		b.buf.WriteString("<td>" + b.inline(cell) + "</td>")
	}
	b.buf.WriteString("</tr>")
}

// RenderMarkdown writes the HTML representation of md to buf.
func RenderMarkdown(buf *bytes.Buffer, md string) {
	b := &blockWriter{buf: buf, anchors: make(map[string]int)}

	for _, raw := range strings.Split(md, "\n") {
		line := strings.TrimRight(raw, "\r")

		if strings.HasPrefix(line, "```") {
			if b.inCode {
				b.closeCode()
			} else {
				b.openCode(line[3:])
			}
			continue
		}
		if b.inCode {
			buf.WriteString(html.EscapeString(line))
			buf.WriteString("\n")
			continue
		}
		if strings.TrimSpace(line) == "" {
			b.closeAll("")
			continue
		}

		if m := reHeading.FindStringSubmatch(line); m != nil {
			b.heading(len(m[1]), m[2])
			continue
		}

		switch {
		case strings.HasPrefix(line, "---"):
			b.closeAll("")
			buf.WriteString("<hr/>")
		case strings.HasPrefix(line, "|"):
			b.tableRow(line)
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			if !b.inList {
				b.closeAll("ul")
				buf.WriteString("<ul>")
				b.inList = true
			}
			buf.WriteString("<li>" + b.inline(strings.TrimSpace(line[2:])) + "</li>")
		case reOrderedList.MatchString(line):
			if !b.inOrderedList {
				b.closeAll("ol")
				buf.WriteString("<ol>")
				b.inOrderedList = true
			}
			item := reOrderedList.ReplaceAllString(line, "")
			buf.WriteString("<li>" + b.inline(strings.TrimSpace(item)) + "</li>")
		case strings.HasPrefix(line, ">"):
			if !b.inQuote {
				b.closeAll("blockquote")
				buf.WriteString("<blockquote>")
				b.inQuote = true
			}
			buf.WriteString(b.inline(strings.TrimSpace(strings.TrimPrefix(line, ">"))))
		default:
			if !b.inPara {
				b.closeAll("p")
				buf.WriteString("<p>")
				b.inPara = true
			} else {
				buf.WriteString(" ")
			}
			buf.WriteString(b.inline(strings.TrimSpace(line)) + "\n")
		}
	}
	b.closeAll("")
	b.closeCode()
}

func parseTableCells(line string) []string {
	line = strings.Trim(strings.TrimSpace(line), "|")
	parts := strings.Split(line, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func isTableSeparator(line string) bool {
	line = strings.Trim(strings.TrimSpace(line), "|")
	for _, cell := range strings.Split(line, "|") {
		cleaned := strings.NewReplacer("-", "", ":", "", " ", "").Replace(cell)
		if cleaned != "" {
			return false
		}
	}
	return true
}

// ApplyOutsideTags applies fn only to text segments outside HTML tags,
// so that formatting regexes never touch URLs inside href attributes, etc.
func ApplyOutsideTags(s string, fn func(string) string) string {
	var buf strings.Builder
	for len(s) > 0 {
		lt := strings.Index(s, "<")
		if lt < 0 {
			buf.WriteString(fn(s))
			break
		}
		if lt > 0 {
			buf.WriteString(fn(s[:lt]))
		}
		gt := strings.Index(s[lt:], ">")
		if gt < 0 {
			buf.WriteString(s[lt:])
			break
		}
		buf.WriteString(s[lt : lt+gt+1])
		s = s[lt+gt+1:]
	}
	return buf.String()
}

// FormatInline applies inline formatting (code, bold, italic, links, images) to s.
func FormatInline(s string, imageCount *int) string {
	escaped := html.EscapeString(s)

	// Inline code is swapped for placeholders first so nothing else
	// rewrites its contents.
	var codeSpans []string
	escaped = reInlineCode.ReplaceAllStringFunc(escaped, func(m string) string {
		match := reInlineCode.FindStringSubmatch(m)
		placeholder := "\x00IC" + strconv.Itoa(len(codeSpans)) + "\x00"
		codeSpans = append(codeSpans, "<code>"+match[1]+"</code>")
		return placeholder
	})

	escaped = reImg.ReplaceAllStringFunc(escaped, func(m string) string {
		match := reImg.FindStringSubmatch(m)
		src := SafeURL(match[2])
		if src == "" {
			return match[1]
		}
		*imageCount++
		loadAttr := `loading="lazy"`
		if *imageCount == 1 {
			loadAttr = `fetchpriority="high"`
		}
		img := `<img ` + loadAttr + ` alt="` + match[1] + `" src="` + src + `"`
		if match[4] != "" && match[5] != "" {
			img += ` width="` + match[4] + `" height="` + match[5] + `"`
		}
		if match[3] != "" {
			img += ` style="` + match[3] + `"`
		}
		return img + ` decoding="async"/>`
	})
	escaped = reLink.ReplaceAllStringFunc(escaped, func(m string) string {
		match := reLink.FindStringSubmatch(m)
		href := SafeURL(match[2])
		if href == "" {
			return match[1]
		}
		attrs := ""
		if match[3] == "^" {
			attrs = ` target="_blank" rel="noopener noreferrer"`
		}
		return `<a href="` + href + `"` + attrs + `>` + match[1] + `</a>`
	})

	escaped = ApplyOutsideTags(escaped, func(seg string) string {
		seg = reBold.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reBoldUnderscore.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reItalic.ReplaceAllString(seg, "<em>$1</em>")
		seg = reItalicUnderscore.ReplaceAllString(seg, "<em>$1</em>")
		return seg
	})

	for i, code := range codeSpans {
		escaped = strings.Replace(escaped, "\x00IC"+strconv.Itoa(i)+"\x00", code, 1)
	}
	return escaped
}

// SafeURL validates and sanitizes a URL for use in HTML attributes.
func SafeURL(raw string) string {
	val := strings.TrimSpace(html.UnescapeString(raw))
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		return html.EscapeString(val)
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(val)
	default:
		return ""
	}
}

// Slug turns heading text into an anchor id: lower case, letters and digits
// kept, runs of anything else collapsed to a single hyphen.
func Slug(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r > 0x7f && isLetter(r):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	if b.Len() == 0 {
		return "section"
	}
	return b.String()
}

func isLetter(r rune) bool {
	return strings.ToUpper(string(r)) != strings.ToLower(string(r))
}
