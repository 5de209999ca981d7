package view

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/glabrego/ttrss-cli/internal/cache"
	tuitheme "github.com/glabrego/ttrss-cli/internal/tui/theme"
	tuitree "github.com/glabrego/ttrss-cli/internal/tui/tree"
)

var reANSICodes = regexp.MustCompile(`\x1b\[[0-9;]*m`)

type HeadlineLineParams struct {
	Headline cache.Headline
	Now      time.Time
	ShowFeed bool
	Active   bool
	Selected bool
	Width    int
}

func RenderHeadlineLine(p HeadlineLineParams, th tuitheme.Theme) string {
	cursorMarker := " "
	if p.Active {
		cursorMarker = ">"
	}
	selectedMarker := " "
	if p.Selected {
		selectedMarker = "*"
	}

	prefix := fmt.Sprintf("%s%s %s ", cursorMarker, selectedMarker, StateMarkers(p.Headline))
	dateLabel := "[" + RelativeTimeLabel(p.Now, p.Headline.UpdatedAt) + "]"
	available := p.Width - visibleLen(prefix) - 1 - visibleLen(dateLabel)
	if available < 1 {
		available = 1
	}

	label := strings.TrimSpace(p.Headline.Title)
	if label == "" {
		label = "(untitled)"
	}
	if p.ShowFeed && strings.TrimSpace(p.Headline.FeedTitle) != "" {
		label = strings.TrimSpace(p.Headline.FeedTitle) + " | " + label
	}
	label = truncateRunes(label, available)
	styledTitle := th.StyleArticleTitle(p.Headline, label)
	gap := p.Width - visibleLen(prefix) - visibleLen(label) - visibleLen(dateLabel)
	if gap < 1 {
		gap = 1
	}
	return th.RenderActiveLine(p.Active, prefix+styledTitle+strings.Repeat(" ", gap)+dateLabel)
}

// StateMarkers renders the unread, starred and published flags as a fixed
// width column.
func StateMarkers(h cache.Headline) string {
	marks := [3]string{"   ", "   ", "   "}
	if h.Unread {
		marks[0] = "[U]"
	}
	if h.Starred {
		marks[1] = "[*]"
	}
	if h.Published {
		marks[2] = "[P]"
	}
	return strings.Join(marks[:], " ")
}

func RenderFeedRow(row tuitree.Row, width int, active, selected, collapsed bool, th tuitheme.Theme) string {
	marker := " "
	if selected {
		marker = "*"
	}
	if row.Kind == tuitree.RowCategory {
		prefix := "▾ "
		if collapsed {
			prefix = "▸ "
		}
		return RenderTreeNodeLine(marker+th.Section.Render(prefix+row.Label), row.Unread, width, active, th)
	}
	return RenderTreeNodeLine(marker+"  "+tuitheme.Icon(row.Icon)+" "+row.Label, row.Unread, width, active, th)
}

func RenderTreeNodeLine(left string, unreadCount, width int, active bool, th tuitheme.Theme) string {
	if unreadCount <= 0 {
		return th.RenderActiveLine(active, left)
	}
	right := th.UnreadCount.Render(fmt.Sprintf("%d", unreadCount))
	available := width - visibleLen(right) - 1
	if available < 1 {
		available = 1
	}
	if visibleLen(left) > available {
		left = truncateRunes(stripANSIText(left), available)
	}
	gap := width - visibleLen(left) - visibleLen(right)
	if gap < 1 {
		gap = 1
	}
	return th.RenderActiveLine(active, left+strings.Repeat(" ", gap)+right)
}

func RelativeTimeLabel(now, then time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	if then.IsZero() {
		return "unknown"
	}
	if then.After(now) {
		return "just now"
	}
	d := now.Sub(then)
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", n)
	}
	if d < 24*time.Hour {
		n := int(d / time.Hour)
		if n == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", n)
	}
	n := int(d / (24 * time.Hour))
	if n == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", n)
}

func truncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return strings.Repeat(".", maxLen)
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

func visibleLen(s string) int {
	return utf8.RuneCountInString(stripANSIText(s))
}

func stripANSIText(s string) string {
	return reANSICodes.ReplaceAllString(s, "")
}
