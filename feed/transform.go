package feed

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const doctype = "<!DOCTYPE html>"

// StripDoctype removes a leading "<!DOCTYPE html>". Only the exact literal at
// the very start is removed.
func StripDoctype(s string) string {
	return strings.TrimPrefix(s, doctype)
}

// Step rewrites a parsed HTML fragment in place. The selection is rooted at a
// body element whose children are the fragment's top-level nodes.
type Step func(root *goquery.Selection) error

// Transform parses fragment, applies steps in order and renders the result.
// The parsed tree does not outlive the call.
func Transform(fragment string, steps ...Step) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}

	root := goquery.NewDocumentFromNode(body).Selection
	for _, step := range steps {
		if err := step(root); err != nil {
			return "", err
		}
	}

	var sb strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return sb.String(), nil
}

// AbsolutizeURLs prefixes site-relative a[href] and img[src] values with base.
// base must not end in a slash.
func AbsolutizeURLs(base string) Step {
	return func(root *goquery.Selection) error {
		root.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			if href, _ := s.Attr("href"); siteRelative(href) {
				s.SetAttr("href", base+href)
			}
		})
		root.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
			if src, _ := s.Attr("src"); siteRelative(src) {
				s.SetAttr("src", base+src)
			}
		})
		return nil
	}
}

// siteRelative reports whether v is a path on this site. Protocol-relative
// URLs point elsewhere.
func siteRelative(v string) bool {
	return strings.HasPrefix(v, "/") && !strings.HasPrefix(v, "//")
}

// DropElements removes every element with one of the given tag names along
// with its subtree.
func DropElements(tags ...string) Step {
	selector := strings.Join(tags, ", ")
	return func(root *goquery.Selection) error {
		root.Find(selector).Remove()
		return nil
	}
}
