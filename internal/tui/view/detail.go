package view

import (
	"strings"
	"time"

	"github.com/glabrego/ttrss-cli/internal/cache"
	"github.com/glabrego/ttrss-cli/internal/render/article"
)

func DetailMetaLines(h cache.Headline, width int) []string {
	lines := make([]string, 0, 16)
	lines = append(lines, article.Wrap(h.Title, width)...)
	lines = append(lines, strings.Repeat("=", max(1, min(width, len([]rune(h.Title))))))
	lines = append(lines, "")

	if h.FeedTitle != "" {
		lines = append(lines, article.Wrap("Feed: "+h.FeedTitle, width)...)
	}
	if !h.UpdatedAt.IsZero() {
		lines = append(lines, "Date: "+h.UpdatedAt.UTC().Format(time.RFC3339))
	}
	lines = append(lines, "Unread: "+yesNo(h.Unread))
	lines = append(lines, "Starred: "+yesNo(h.Starred))
	lines = append(lines, "Published: "+yesNo(h.Published))

	if h.Author != "" {
		lines = append(lines, article.Wrap("Author: "+h.Author, width)...)
	}
	if h.Link != "" {
		lines = append(lines, article.Wrap("URL: "+h.Link, width)...)
	}
	return lines
}

// DetailLines is the full detail pane: metadata followed by the article body.
func DetailLines(h cache.Headline, width int) []string {
	lines := DetailMetaLines(h, width)
	lines = append(lines, "")
	body := article.ContentLines(h, width)
	if len(body) == 0 {
		return append(lines, "(no content)")
	}
	return append(lines, body...)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
