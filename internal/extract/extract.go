// Package extract pulls readable text, links and verification codes out
// of message bodies.
package extract

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"

	"github.com/k3a/html2text"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Placeholder used for links without any inner text.
const DefaultLinkText = "Link"

type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// Content extracted from an html body. It is never persisted on its own.
type Content struct {
	Text  string
	Links []Link
}

// Elements that never carry readable content.
var pruned = map[atom.Atom]bool{
	atom.Style:  true,
	atom.Script: true,
	atom.Head:   true,
	atom.Title:  true,
	atom.Meta:   true,
	atom.Link:   true,
	atom.Img:    true,
	atom.Image:  true,
	atom.Footer: true,
}

// Flattens the html into whitespace collapsed text and collects the
// absolute http(s) links in document order. Malformed or empty input
// yields empty content.
func Extract(body string) Content {
	content := Content{Links: []Link{}}
	if strings.TrimSpace(body) == "" {
		return content
	}

	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		slog.Debug("could not parse html body", "err", err)
		return content
	}
	prune(root)

	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			href := strings.TrimSpace(attr(n, "href"))
			if isWebLink(href) && !seen[href] {
				seen[href] = true

				text := collapse(innerText(n))
				if text == "" {
					text = DefaultLinkText
				}
				content.Links = append(content.Links, Link{Href: href, Text: text})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	unwrapLinks(root)

	if b := findBody(root); b != nil {
		var buf bytes.Buffer
		if err := html.Render(&buf, b); err != nil {
			slog.Debug("could not render pruned html", "err", err)
			return content
		}
		content.Text = collapse(html2text.HTML2Text(buf.String()))
	}

	return content
}

// Removes the non content elements from the tree in place.
func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && pruned[c.DataAtom] {
			n.RemoveChild(c)
		} else if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			prune(c)
		}
		c = next
	}
}

// Replaces every anchor with its children. The links are already
// collected and html2text would otherwise render their targets.
func unwrapLinks(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		unwrapLinks(c)

		if c.Type == html.ElementNode && c.DataAtom == atom.A {
			for gc := c.FirstChild; gc != nil; gc = c.FirstChild {
				c.RemoveChild(gc)
				n.InsertBefore(gc, c)
			}
			n.RemoveChild(c)
		}
		c = next
	}
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findBody(c); found != nil {
			return found
		}
	}
	return nil
}

func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func isWebLink(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Verification codes are runs of 4 to 8 digits standing on their own.
var codePattern = regexp.MustCompile(`\b\d{4,8}\b`)

// Returns the last code like token in the text. Leading digit runs tend
// to be dates, the code itself usually comes later.
func OneTimeCode(text string) (string, bool) {
	matches := codePattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1], true
}
