package cache

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/glabrego/ttrss-cli/internal/ttrss"
)

// maxConcurrentFeedLists bounds the getFeeds fan-out during Load.
const maxConcurrentFeedLists = 4

type TreeRemote interface {
	ListCategories(ctx context.Context) ([]ttrss.Category, error)
	ListFeeds(ctx context.Context, categoryID int64) ([]ttrss.Feed, error)
	GetCounters(ctx context.Context) ([]ttrss.CounterEntry, error)
	IconURL(feedID int64) string
}

type Feed struct {
	ID         int64
	CategoryID int64
	Title      string
	Unread     int
	HasIcon    bool
	IconURL    string
	Virtual    ttrss.VirtualFeed
}

// IconToken is the fixed icon name of a virtual feed, empty otherwise.
func (f Feed) IconToken() string {
	return f.Virtual.IconToken()
}

type Category struct {
	ID     int64
	Title  string
	Unread int
	Feeds  []Feed
}

// Change records the deltas a counter adjustment actually applied, after
// clamping, so it can be undone exactly.
type Change struct {
	FeedID     int64
	Feed       int
	UnreadFeed int
}

func (c Change) IsZero() bool {
	return c.Feed == 0 && c.UnreadFeed == 0
}

// Tree is the session's category/feed hierarchy with unread counters.
//
// Published snapshots are never written to: every mutation copies the
// category slice and the feed slices it touches, then swaps the new value in.
// Category counters only change through Load and ResyncCounters.
type Tree struct {
	remote TreeRemote
	logger *log.Logger

	mu         sync.Mutex
	categories []Category
	loading    bool
	err        string
}

func NewTree(remote TreeRemote, logger *log.Logger) *Tree {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Tree{remote: remote, logger: logger}
}

// Snapshot returns the current tree. Callers must treat it as read-only.
func (t *Tree) Snapshot() []Category {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.categories
}

func (t *Tree) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

// Err is the message of the last failed Load, or empty.
func (t *Tree) Err() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Feed looks a feed up by id across all categories.
func (t *Tree) Feed(feedID int64) (Feed, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ci, fi, ok := findFeed(t.categories, feedID)
	if !ok {
		return Feed{}, false
	}
	return t.categories[ci].Feeds[fi], true
}

// Load replaces the tree with a fresh copy from the server, then overwrites
// its counters from the aggregate counters endpoint.
func (t *Tree) Load(ctx context.Context) ([]Category, error) {
	t.mu.Lock()
	t.loading = true
	t.mu.Unlock()

	categories, err := t.fetch(ctx)

	t.mu.Lock()
	t.loading = false
	if err != nil {
		fetchErr := &FetchError{Op: "feed tree", Err: err}
		t.err = fetchErr.Error()
		t.mu.Unlock()
		t.logger.Error("load feed tree", "err", err)
		return nil, fetchErr
	}
	t.categories = categories
	t.err = ""
	t.mu.Unlock()

	// Failure here keeps the list-supplied counts.
	_ = t.ResyncCounters(ctx)
	return t.Snapshot(), nil
}

func (t *Tree) fetch(ctx context.Context) ([]Category, error) {
	remoteCategories, err := t.remote.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	feeds := make([][]ttrss.Feed, len(remoteCategories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFeedLists)
	for i, rc := range remoteCategories {
		g.Go(func() error {
			list, err := t.remote.ListFeeds(gctx, int64(rc.ID))
			if err != nil {
				return err
			}
			feeds[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	categories := make([]Category, 0, len(remoteCategories))
	special := -1
	for i, rc := range remoteCategories {
		c := Category{
			ID:     int64(rc.ID),
			Title:  rc.Title,
			Unread: rc.Unread,
			Feeds:  make([]Feed, 0, len(feeds[i])),
		}
		isSpecial := c.ID == ttrss.SpecialCategoryID
		for _, rf := range feeds[i] {
			f := Feed{
				ID:         int64(rf.ID),
				CategoryID: c.ID,
				Title:      rf.Title,
				Unread:     max(0, rf.Unread),
				HasIcon:    rf.HasIcon,
			}
			if f.HasIcon {
				f.IconURL = t.remote.IconURL(f.ID)
			}
			if isSpecial {
				f.Virtual, _ = ttrss.VirtualFeedByID(f.ID)
			}
			c.Feeds = append(c.Feeds, f)
		}
		if isSpecial {
			special = len(categories)
		}
		categories = append(categories, c)
	}

	if special > 0 {
		sc := categories[special]
		copy(categories[1:special+1], categories[:special])
		categories[0] = sc
	}
	return categories, nil
}

// ResyncCounters overwrites every counter the server reports. It is
// authoritative and safe to run after any number of local adjustments.
// Failures are logged and returned but never recorded as the tree error.
func (t *Tree) ResyncCounters(ctx context.Context) error {
	counters, err := t.remote.GetCounters(ctx)
	if err != nil {
		t.logger.Warn("counter resync failed", "err", err)
		return &FetchError{Op: "counters", Err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	w := newTreeWriter(t.categories)
	categoryIndex := make(map[int64]int, len(w.cats))
	type loc struct{ ci, fi int }
	feedIndex := make(map[int64]loc)
	for ci, c := range w.cats {
		categoryIndex[c.ID] = ci
		for fi, f := range c.Feeds {
			feedIndex[f.ID] = loc{ci, fi}
		}
	}

	for _, entry := range counters {
		switch entry.Kind {
		case ttrss.CounterCategory:
			if ci, ok := categoryIndex[entry.ID]; ok {
				w.cats[ci].Unread = max(0, entry.Counter)
			}
		case ttrss.CounterFeed:
			l, ok := feedIndex[entry.ID]
			if !ok {
				continue
			}
			f := w.feed(l.ci, l.fi)
			if f.Virtual.UsesAuxCounter() {
				f.Unread = max(0, entry.AuxCounter)
			} else {
				f.Unread = max(0, entry.Counter)
			}
		}
	}
	t.categories = w.cats
	t.logger.Debug("counters resynced", "entries", len(counters))
	return nil
}

// IncrementUnread adds one to the feed and, unless the feed is the Unread
// virtual feed itself, to the Unread virtual feed.
func (t *Tree) IncrementUnread(feedID int64) Change {
	return t.update(func(w *treeWriter) Change {
		ci, fi, ok := findFeed(w.cats, feedID)
		if !ok {
			return Change{}
		}
		ch := Change{FeedID: feedID}
		ch.Feed = w.add(ci, fi, 1)
		if w.cats[ci].Feeds[fi].Virtual != ttrss.Unread {
			ch.UnreadFeed = w.addVirtual(ttrss.Unread, 1)
		}
		return ch
	})
}

// DecrementUnread removes one from the feed when its count is positive and
// propagates the same delta to the Unread virtual feed.
func (t *Tree) DecrementUnread(feedID int64) Change {
	return t.update(func(w *treeWriter) Change {
		ci, fi, ok := findFeed(w.cats, feedID)
		if !ok {
			return Change{}
		}
		return w.setFeed(ci, fi, w.cats[ci].Feeds[fi].Unread-1)
	})
}

// SetUnread is DecrementUnread with an explicit new count, for callers that
// learned the feed's count from elsewhere.
func (t *Tree) SetUnread(feedID int64, count int) Change {
	return t.update(func(w *treeWriter) Change {
		ci, fi, ok := findFeed(w.cats, feedID)
		if !ok {
			return Change{}
		}
		return w.setFeed(ci, fi, count)
	})
}

// AdjustSpecialCounter applies a clamped delta to a virtual feed's counter.
func (t *Tree) AdjustSpecialCounter(v ttrss.VirtualFeed, delta int) Change {
	if v == ttrss.NotVirtual {
		return Change{}
	}
	return t.update(func(w *treeWriter) Change {
		applied := w.addVirtual(v, delta)
		return Change{FeedID: v.ID(), Feed: applied}
	})
}

// Revert undoes the deltas recorded in ch.
func (t *Tree) Revert(ch Change) {
	if ch.IsZero() {
		return
	}
	t.update(func(w *treeWriter) Change {
		if ci, fi, ok := findFeed(w.cats, ch.FeedID); ok && ch.Feed != 0 {
			w.add(ci, fi, -ch.Feed)
		}
		if ch.UnreadFeed != 0 {
			w.addVirtual(ttrss.Unread, -ch.UnreadFeed)
		}
		return Change{}
	})
}

func (t *Tree) update(fn func(w *treeWriter) Change) Change {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := newTreeWriter(t.categories)
	ch := fn(w)
	t.categories = w.cats
	return ch
}

// treeWriter is a copy-on-write view over a published tree. The outer slice
// is copied up front; a category's feed slice is copied on first write.
type treeWriter struct {
	cats   []Category
	cloned map[int]bool
}

func newTreeWriter(categories []Category) *treeWriter {
	cats := make([]Category, len(categories))
	copy(cats, categories)
	return &treeWriter{cats: cats, cloned: make(map[int]bool)}
}

func (w *treeWriter) feed(ci, fi int) *Feed {
	if !w.cloned[ci] {
		feeds := make([]Feed, len(w.cats[ci].Feeds))
		copy(feeds, w.cats[ci].Feeds)
		w.cats[ci].Feeds = feeds
		w.cloned[ci] = true
	}
	return &w.cats[ci].Feeds[fi]
}

// add applies a delta clamped at zero and returns the delta applied.
func (w *treeWriter) add(ci, fi, delta int) int {
	cur := w.cats[ci].Feeds[fi].Unread
	next := max(0, cur+delta)
	if next != cur {
		w.feed(ci, fi).Unread = next
	}
	return next - cur
}

func (w *treeWriter) addVirtual(v ttrss.VirtualFeed, delta int) int {
	ci, fi, ok := findVirtual(w.cats, v)
	if !ok {
		return 0
	}
	return w.add(ci, fi, delta)
}

func (w *treeWriter) setFeed(ci, fi, count int) Change {
	f := w.cats[ci].Feeds[fi]
	ch := Change{FeedID: f.ID}
	ch.Feed = w.add(ci, fi, max(0, count)-f.Unread)
	if ch.Feed != 0 && f.Virtual != ttrss.Unread {
		ch.UnreadFeed = w.addVirtual(ttrss.Unread, ch.Feed)
	}
	return ch
}

func findFeed(categories []Category, feedID int64) (int, int, bool) {
	for ci, c := range categories {
		for fi, f := range c.Feeds {
			if f.ID == feedID {
				return ci, fi, true
			}
		}
	}
	return 0, 0, false
}

func findVirtual(categories []Category, v ttrss.VirtualFeed) (int, int, bool) {
	for ci, c := range categories {
		if c.ID != ttrss.SpecialCategoryID {
			continue
		}
		for fi, f := range c.Feeds {
			if f.Virtual == v {
				return ci, fi, true
			}
		}
	}
	return 0, 0, false
}
