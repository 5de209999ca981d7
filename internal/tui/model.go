package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/glabrego/ttrss-cli/internal/app"
	"github.com/glabrego/ttrss-cli/internal/cache"
	"github.com/glabrego/ttrss-cli/internal/tui/actions"
	"github.com/glabrego/ttrss-cli/internal/tui/platform"
	tuistate "github.com/glabrego/ttrss-cli/internal/tui/state"
	tuitheme "github.com/glabrego/ttrss-cli/internal/tui/theme"
	tuitree "github.com/glabrego/ttrss-cli/internal/tui/tree"
	"github.com/glabrego/ttrss-cli/internal/tui/view"
)

const (
	defaultWidth  = 100
	defaultHeight = 30
	statusTTL     = 4 * time.Second
)

// counterIntervals is the cycle offered by the interval key; zero disables
// the background resync.
var counterIntervals = []time.Duration{0, 30 * time.Second, time.Minute, 5 * time.Minute, 15 * time.Minute}

type Service interface {
	actions.Service
	State() app.State
	CounterInterval() time.Duration
	SetCounterInterval(d time.Duration)
}

// CountersResyncedMsg is sent from outside the program after a background
// counter resync so the tree is redrawn.
type CountersResyncedMsg struct{}

type clearStatusMsg struct {
	id int
}

type Model struct {
	service        Service
	theme          tuitheme.Theme
	pane           view.Pane
	collapsed      map[int64]bool
	treeCursor     int
	headlineCursor int
	article        *cache.Headline
	detailTop      int
	showHelp       bool
	width          int
	height         int
	loggingIn      bool
	loadingMore    bool
	status         string
	statusID       int
	err            error
	openURLFn      func(string) error
	copyURLFn      func(string) error
	saveIntervalFn func(time.Duration) error
	nowFn          func() time.Time
	statusTTL      time.Duration
	loginDuration  time.Duration
}

func NewModel(service Service) Model {
	return Model{
		service:   service,
		theme:     tuitheme.Default(),
		pane:      view.PaneFeeds,
		collapsed: make(map[int64]bool),
		loggingIn: service != nil,
		openURLFn: platform.OpenURLInBrowser,
		copyURLFn: platform.CopyURLToClipboard,
		nowFn:     time.Now,
		statusTTL: statusTTL,
	}
}

// SetIntervalSaver registers the function that persists the counter resync
// interval chosen in the UI.
func (m *Model) SetIntervalSaver(saveFn func(time.Duration) error) {
	m.saveIntervalFn = saveFn
}

func (m Model) Init() tea.Cmd {
	if m.service == nil {
		return nil
	}
	return actions.LoginCmd(m.service)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case actions.LoginSuccessMsg:
		m.loggingIn = false
		m.loginDuration = msg.Duration
		m.err = nil
		m.treeCursor = tuitree.FirstFeedRow(m.rows())
		return m.setStatus(fmt.Sprintf("Logged in (%s)", msg.Duration.Round(time.Millisecond)))
	case actions.LoginErrorMsg:
		m.loggingIn = false
		m.err = msg.Err
		return m, nil
	case actions.TreeLoadedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.treeCursor = tuistate.ClampCursor(m.treeCursor, len(m.rows()))
		if msg.Source == "resync" {
			return m.setStatus("Counters refreshed")
		}
		return m.setStatus("Feeds reloaded")
	case CountersResyncedMsg:
		return m, nil
	case actions.HeadlinesLoadedMsg:
		if msg.More {
			m.loadingMore = false
		} else {
			m.headlineCursor = 0
		}
		if msg.Err != nil {
			m.err = msg.Err
		}
		return m, nil
	case actions.ArticleOpenedMsg:
		h := msg.Headline
		m.article = &h
		m.pane = view.PaneDetail
		m.detailTop = 0
		return m, nil
	case actions.ArticleOpenErrorMsg:
		m.err = msg.Err
		return m, nil
	case actions.MutationSuccessMsg:
		m.err = nil
		return m.setStatus(msg.Status)
	case actions.MutationErrorMsg:
		m.err = msg.Err
		return m, nil
	case actions.PreferenceSaveErrorMsg:
		m.err = fmt.Errorf("save settings: %w", msg.Err)
		return m, nil
	case actions.OpenURLSuccessMsg:
		return m.setStatus(msg.Status)
	case actions.OpenURLErrorMsg:
		m.err = msg.Err
		return m, nil
	case clearStatusMsg:
		if msg.id == m.statusID {
			m.status = ""
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "?":
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp {
		if key == "esc" {
			m.showHelp = false
		}
		return m, nil
	}
	if m.service == nil {
		return m, nil
	}

	switch m.pane {
	case view.PaneDetail:
		return m.handleDetailKey(key)
	case view.PaneHeadlines:
		return m.handleHeadlinesKey(key)
	default:
		return m.handleFeedsKey(key)
	}
}

func (m Model) handleFeedsKey(key string) (tea.Model, tea.Cmd) {
	rows := m.rows()
	switch key {
	case "up", "k":
		m.treeCursor = tuistate.ClampCursor(m.treeCursor-1, len(rows))
	case "down", "j":
		m.treeCursor = tuistate.ClampCursor(m.treeCursor+1, len(rows))
	case "pgup", "ctrl+b":
		m.treeCursor = tuistate.ClampCursor(m.treeCursor-m.pageStep(), len(rows))
	case "pgdown", "ctrl+f":
		m.treeCursor = tuistate.ClampCursor(m.treeCursor+m.pageStep(), len(rows))
	case " ":
		if row, ok := m.currentRow(rows); ok {
			m.collapsed[row.CategoryID] = !m.collapsed[row.CategoryID]
			next := m.rows()
			m.treeCursor = tuistate.ClampCursor(m.treeCursor, len(next))
			if row.Kind == tuitree.RowFeed {
				m.treeCursor = tuitree.RowForSelection(next, &cache.Selection{TargetID: row.CategoryID, IsCategory: true})
			}
		}
	case "enter":
		row, ok := m.currentRow(rows)
		if !ok {
			return m, nil
		}
		m.pane = view.PaneHeadlines
		m.err = nil
		return m, actions.SelectCmd(m.service, row.Selection())
	case "tab":
		m.pane = view.PaneHeadlines
	case "c":
		if row, ok := m.currentRow(rows); ok {
			return m, actions.CatchUpCmd(m.service, *row.Selection())
		}
	case "r":
		m.err = nil
		return m, actions.ReloadTreeCmd(m.service)
	case "g":
		return m, actions.ResyncCountersCmd(m.service)
	case "i":
		return m.cycleInterval()
	}
	return m, nil
}

func (m Model) handleHeadlinesKey(key string) (tea.Model, tea.Cmd) {
	hs := m.service.State().Headlines
	switch key {
	case "up", "k":
		m.headlineCursor = tuistate.ClampCursor(m.headlineCursor-1, len(hs.Items))
	case "down", "j":
		m.headlineCursor = tuistate.ClampCursor(m.headlineCursor+1, len(hs.Items))
		return m.maybeLoadMore(hs)
	case "pgup", "ctrl+b":
		m.headlineCursor = tuistate.ClampCursor(m.headlineCursor-m.pageStep(), len(hs.Items))
	case "pgdown", "ctrl+f":
		m.headlineCursor = tuistate.ClampCursor(m.headlineCursor+m.pageStep(), len(hs.Items))
		return m.maybeLoadMore(hs)
	case "n":
		m.loadingMore = true
		return m, actions.LoadMoreCmd(m.service)
	case "R":
		m.err = nil
		return m, actions.ReloadHeadlinesCmd(m.service)
	case "tab", "esc", "backspace":
		m.pane = view.PaneFeeds
	case "c":
		if hs.Selection != nil {
			return m, actions.CatchUpCmd(m.service, *hs.Selection)
		}
	case "enter":
		if h, ok := m.currentHeadline(hs); ok {
			return m, actions.OpenArticleCmd(m.service, h.ID)
		}
	case "u", "s", "p", "o", "y":
		if h, ok := m.currentHeadline(hs); ok {
			return m.articleAction(key, h)
		}
	}
	return m, nil
}

func (m Model) handleDetailKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "esc", "backspace":
		m.pane = view.PaneHeadlines
		m.detailTop = 0
	case "up", "k":
		if m.detailTop > 0 {
			m.detailTop--
		}
	case "down", "j":
		if m.detailTop < m.maxDetailTop() {
			m.detailTop++
		}
	case "u", "s", "p", "o", "y":
		if h, ok := m.openedArticle(); ok {
			return m.articleAction(key, h)
		}
	}
	return m, nil
}

func (m Model) articleAction(key string, h cache.Headline) (tea.Model, tea.Cmd) {
	switch key {
	case "u":
		return m, actions.ToggleReadCmd(m.service, h)
	case "s":
		return m, actions.ToggleStarredCmd(m.service, h)
	case "p":
		return m, actions.TogglePublishedCmd(m.service, h)
	case "o", "y":
		url, err := platform.ValidateArticleURL(h.Link)
		if err != nil {
			m.err = err
			return m, nil
		}
		if key == "y" {
			return m, actions.CopyURLCmd(url, m.copyURLFn)
		}
		return m, actions.OpenURLCmd(url, m.openURLFn, m.copyURLFn)
	}
	return m, nil
}

func (m Model) maybeLoadMore(hs cache.HeadlineState) (tea.Model, tea.Cmd) {
	if m.loadingMore || hs.Cursor.Exhausted || hs.Loading || !tuistate.NearEnd(m.headlineCursor, len(hs.Items)) {
		return m, nil
	}
	m.loadingMore = true
	return m, actions.LoadMoreCmd(m.service)
}

func (m Model) cycleInterval() (tea.Model, tea.Cmd) {
	current := m.service.CounterInterval()
	next := counterIntervals[0]
	for i, d := range counterIntervals {
		if d == current {
			next = counterIntervals[(i+1)%len(counterIntervals)]
			break
		}
	}
	m.service.SetCounterInterval(next)

	status := "Counter resync off"
	if next > 0 {
		status = "Counter resync every " + next.String()
	}
	m, clearCmd := m.setStatus(status)
	return m, tea.Batch(clearCmd, actions.SaveIntervalCmd(m.saveIntervalFn, next))
}

func (m Model) setStatus(status string) (Model, tea.Cmd) {
	m.statusID++
	m.status = status
	id := m.statusID
	return m, tea.Tick(m.statusTTL, func(time.Time) tea.Msg {
		return clearStatusMsg{id: id}
	})
}

func (m Model) rows() []tuitree.Row {
	if m.service == nil {
		return nil
	}
	return tuitree.BuildRows(m.service.State().Categories, tuitree.BuildOptions{CollapsedCategories: m.collapsed})
}

func (m Model) currentRow(rows []tuitree.Row) (tuitree.Row, bool) {
	if len(rows) == 0 {
		return tuitree.Row{}, false
	}
	return rows[tuistate.ClampCursor(m.treeCursor, len(rows))], true
}

func (m Model) currentHeadline(hs cache.HeadlineState) (cache.Headline, bool) {
	if len(hs.Items) == 0 {
		return cache.Headline{}, false
	}
	return hs.Items[tuistate.ClampCursor(m.headlineCursor, len(hs.Items))], true
}

// openedArticle prefers the cached headline so flags changed after opening
// are current.
func (m Model) openedArticle() (cache.Headline, bool) {
	if m.article == nil {
		return cache.Headline{}, false
	}
	items := m.service.State().Headlines.Items
	if i := tuistate.HeadlineIndexByID(items, m.article.ID); i >= 0 {
		h := items[i]
		if h.Content == "" {
			h.Content = m.article.Content
		}
		return h, true
	}
	return *m.article, true
}

func (m Model) size() (int, int) {
	w, h := m.width, m.height
	if w <= 0 {
		w = defaultWidth
	}
	if h <= 0 {
		h = defaultHeight
	}
	return w, h
}

func (m Model) bodyHeight() int {
	_, h := m.size()
	return max(3, h-8)
}

func (m Model) pageStep() int {
	return tuistate.PageStep(m.height, m.status != "" || m.err != nil)
}

func (m Model) maxDetailTop() int {
	h, ok := m.openedArticle()
	if !ok {
		return 0
	}
	w, _ := m.size()
	return max(0, len(view.DetailLines(h, w-4))-m.bodyHeight())
}

func (m Model) View() string {
	w, _ := m.size()
	var b strings.Builder
	b.WriteString(m.theme.Title.Render("TT-RSS") + " " + m.theme.ModePill.Render(m.pane.String()) + "\n")
	b.WriteString(m.theme.MetaLabel.Render(view.Toolbar(m.pane)) + "\n")

	var st app.State
	if m.service != nil {
		st = m.service.State()
	}

	switch {
	case m.showHelp:
		b.WriteString(helpView())
	case !st.LoggedIn:
		if m.loggingIn {
			b.WriteString("Logging in...\n")
		} else {
			b.WriteString("Not logged in.\n")
		}
	case m.pane == view.PaneDetail:
		b.WriteString(m.detailView(w))
	default:
		b.WriteString(m.listView(st, w))
	}

	b.WriteString("\n")
	warning := ""
	if m.err != nil {
		warning = m.err.Error()
	} else if st.Err != "" {
		warning = st.Err
	} else if st.TreeErr != "" {
		warning = st.TreeErr
	} else if st.Headlines.Err != "" {
		warning = st.Headlines.Err
	}
	b.WriteString(view.Message(m.loggingIn || st.TreeLoading || st.Headlines.Loading, warning, m.status, m.theme))
	b.WriteString("\n")
	b.WriteString(view.Footer(view.FooterInput{
		Pane:      m.pane,
		Target:    m.targetLabel(st),
		Shown:     len(st.Headlines.Items),
		Exhausted: st.Headlines.Cursor.Exhausted,
		Interval:  m.counterInterval(),
	}, m.theme))
	b.WriteString("\n")
	return b.String()
}

func (m Model) counterInterval() time.Duration {
	if m.service == nil {
		return 0
	}
	return m.service.CounterInterval()
}

func (m Model) listView(st app.State, width int) string {
	height := m.bodyHeight()
	feedWidth := max(24, width/3)
	headWidth := max(20, width-feedWidth-4)

	rows := tuitree.BuildRows(st.Categories, tuitree.BuildOptions{CollapsedCategories: m.collapsed})
	var feeds strings.Builder
	if len(rows) == 0 {
		feeds.WriteString("No feeds.")
	}
	start, end := tuistate.CenteredWindow(len(rows), m.treeCursor, height)
	selected := tuitree.RowForSelection(rows, st.Headlines.Selection)
	for i := start; i < end; i++ {
		row := rows[i]
		active := i == m.treeCursor && m.pane == view.PaneFeeds
		feeds.WriteString(view.RenderFeedRow(row, feedWidth, active, i == selected, m.collapsed[row.CategoryID], m.theme))
		if i < end-1 {
			feeds.WriteString("\n")
		}
	}

	var heads strings.Builder
	hs := st.Headlines
	switch {
	case hs.Loading:
		heads.WriteString("Loading headlines...")
	case len(hs.Items) == 0 && hs.Selection == nil:
		heads.WriteString("Select a feed.")
	case len(hs.Items) == 0:
		heads.WriteString("No headlines.")
	}
	if !hs.Loading {
		hStart, hEnd := tuistate.CenteredWindow(len(hs.Items), m.headlineCursor, height)
		for i := hStart; i < hEnd; i++ {
			heads.WriteString(view.RenderHeadlineLine(view.HeadlineLineParams{
				Headline: hs.Items[i],
				Now:      m.nowFn(),
				ShowFeed: hs.Selection != nil && (hs.Selection.IsCategory || hs.Selection.TargetID <= 0),
				Active:   i == m.headlineCursor && m.pane == view.PaneHeadlines,
				Selected: st.SelectedArticle == hs.Items[i].ID,
				Width:    headWidth,
			}, m.theme))
			if i < hEnd-1 {
				heads.WriteString("\n")
			}
		}
		if hs.LoadingMore {
			heads.WriteString("\nLoading more...")
		}
	}

	feedStyle, headStyle := m.theme.Pane, m.theme.Pane
	if m.pane == view.PaneFeeds {
		feedStyle = m.theme.FocusedPane
	} else {
		headStyle = m.theme.FocusedPane
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		feedStyle.Width(feedWidth).Height(height).Render(feeds.String()),
		headStyle.Width(headWidth).Height(height).Render(heads.String()),
	) + "\n"
}

func (m Model) detailView(width int) string {
	h, ok := m.openedArticle()
	if !ok {
		return "No article selected.\n"
	}
	lines := view.DetailLines(h, width-4)
	top := min(m.detailTop, max(0, len(lines)-1))
	end := min(len(lines), top+m.bodyHeight())
	body := strings.Join(lines[top:end], "\n")
	return m.theme.FocusedPane.Width(width-2).Render(body) + "\n"
}

func (m Model) targetLabel(st app.State) string {
	sel := st.Headlines.Selection
	if sel == nil {
		return ""
	}
	for _, c := range st.Categories {
		if sel.IsCategory && c.ID == sel.TargetID {
			return c.Title
		}
		if sel.IsCategory {
			continue
		}
		for _, f := range c.Feeds {
			if f.ID == sel.TargetID {
				return tuitree.FeedName(f)
			}
		}
	}
	return ""
}

func helpView() string {
	lines := []string{
		"Feeds pane",
		"  j/k move, enter show headlines, space fold category",
		"  c mark feed or category read, r reload tree, g resync counters",
		"  i cycle counter resync interval",
		"Headlines pane",
		"  j/k move (loads more near the end), n load more, R reload",
		"  enter open article, u toggle read, s star, p publish, o open link, y copy link",
		"Article",
		"  j/k scroll, esc back",
		"",
		"tab switch panes, ? close help, q quit",
	}
	return strings.Join(lines, "\n") + "\n"
}
