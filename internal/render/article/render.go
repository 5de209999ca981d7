// Package article turns TT-RSS article HTML into wrapped terminal lines.
package article

import (
	"html"
	"strings"
	"unicode/utf8"

	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/glabrego/ttrss-cli/internal/cache"
)

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "blockquote": true,
	"pre": true, "ul": true, "ol": true, "li": true, "table": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"figure": true, "figcaption": true, "hr": true,
}

// ContentLines renders the headline body, or nothing when it has none.
func ContentLines(h cache.Headline, width int) []string {
	content := strings.TrimSpace(h.Content)
	if content == "" {
		return nil
	}
	return HTMLLines(content, width)
}

// HTMLLines renders an HTML fragment as paragraphs wrapped at width.
func HTMLLines(raw string, width int) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	nodes, err := nethtml.ParseFragment(strings.NewReader(raw), &nethtml.Node{
		Type:     nethtml.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return Wrap(strings.TrimSpace(html.UnescapeString(raw)), width)
	}

	var paragraphs []string
	var current strings.Builder
	flush := func() {
		text := strings.Join(strings.Fields(current.String()), " ")
		current.Reset()
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	var walk func(n *nethtml.Node)
	walk = func(n *nethtml.Node) {
		switch n.Type {
		case nethtml.TextNode:
			current.WriteString(n.Data)
			return
		case nethtml.ElementNode:
			tag := strings.ToLower(n.Data)
			switch tag {
			case "script", "style", "noscript":
				return
			case "br":
				flush()
				return
			case "img":
				if alt := nodeAttr(n, "alt"); alt != "" {
					current.WriteString(" [image: " + alt + "] ")
				} else {
					current.WriteString(" [image] ")
				}
				return
			}
			if blockElements[tag] {
				flush()
				if tag == "li" {
					current.WriteString("• ")
				}
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			if tag == "a" {
				if href := nodeAttr(n, "href"); strings.HasPrefix(href, "http") {
					current.WriteString(" <" + href + ">")
				}
			}
			if blockElements[tag] {
				flush()
			}
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	flush()

	lines := make([]string, 0, len(paragraphs)*2)
	for i, p := range paragraphs {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, Wrap(p, width)...)
	}
	return lines
}

// Wrap breaks text into lines of at most width runes on word boundaries,
// splitting words longer than a line.
func Wrap(text string, width int) []string {
	if width < 1 {
		return []string{text}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	out := make([]string, 0, len(words)/8+1)
	line := ""
	for _, word := range words {
		for utf8.RuneCountInString(word) > width {
			if line != "" {
				out = append(out, line)
				line = ""
			}
			r := []rune(word)
			out = append(out, string(r[:width]))
			word = string(r[width:])
		}
		if line == "" {
			line = word
			continue
		}
		if utf8.RuneCountInString(line)+1+utf8.RuneCountInString(word) <= width {
			line += " " + word
			continue
		}
		out = append(out, line)
		line = word
	}
	if line != "" {
		out = append(out, line)
	}
	return out
}

func nodeAttr(node *nethtml.Node, name string) string {
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Key, name) {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}
