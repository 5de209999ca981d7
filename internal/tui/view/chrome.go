package view

import (
	"fmt"
	"strings"
	"time"

	tuitheme "github.com/glabrego/ttrss-cli/internal/tui/theme"
)

type Pane int

const (
	PaneFeeds Pane = iota
	PaneHeadlines
	PaneDetail
)

func (p Pane) String() string {
	switch p {
	case PaneHeadlines:
		return "headlines"
	case PaneDetail:
		return "detail"
	default:
		return "feeds"
	}
}

func Toolbar(p Pane) string {
	switch p {
	case PaneDetail:
		return "j/k scroll | u unread | s star | p publish | o open | y copy | esc back | q quit"
	case PaneHeadlines:
		return "j/k move | enter open | u unread | s star | p publish | n more | c catch up | tab feeds | q quit"
	default:
		return "j/k move | enter select | space fold | c catch up | r reload | g resync | i interval | tab headlines | q quit"
	}
}

type FooterInput struct {
	Pane      Pane
	Target    string
	Shown     int
	Exhausted bool
	Interval  time.Duration
}

func Footer(in FooterInput, th tuitheme.Theme) string {
	target := in.Target
	if target == "" {
		target = "none"
	}
	shown := fmt.Sprintf("%d shown", in.Shown)
	if in.Exhausted {
		shown += " (end)"
	}
	interval := "off"
	if in.Interval > 0 {
		interval = in.Interval.String()
	}
	parts := []string{
		th.MetaLabel.Render("pane") + " " + th.MetaValue.Render(in.Pane.String()),
		th.MetaLabel.Render("target") + " " + th.MetaValue.Render(target),
		th.MetaValue.Render(shown),
		th.MetaLabel.Render("resync") + " " + th.MetaValue.Render(interval),
	}
	return strings.Join(parts, " • ")
}

func Message(loading bool, warning, status string, th tuitheme.Theme) string {
	state := "idle"
	if loading {
		state = "loading"
	}
	if warning != "" {
		state = "warning"
	}
	main := "Ready"
	if status != "" {
		main = status
	} else if warning != "" {
		main = warning
	}
	stateLabel := th.StateIdle.Render("state")
	switch state {
	case "warning":
		stateLabel = th.StateWarn.Render("state")
	case "loading":
		stateLabel = th.StateLoad.Render("state")
	}
	return fmt.Sprintf("%s: %s | %s", stateLabel, state, th.MetaValue.Render(main))
}
