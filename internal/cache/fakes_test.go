package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/glabrego/ttrss-cli/internal/ttrss"
)

type fakeRemote struct {
	mu sync.Mutex

	categories    []ttrss.Category
	feeds         map[int64][]ttrss.Feed
	counters      []ttrss.CounterEntry
	categoriesErr error
	countersErr   error
	counterCalls  int

	loggedIn     bool
	streams      map[Selection][]ttrss.Headline
	headlinesErr error
	listCalls    int
	moreCalls    int

	// When set, ListHeadlines calls with a non-zero offset signal moreEntered
	// and wait for moreGate.
	moreGate    chan struct{}
	moreEntered chan struct{}

	// When set, the first-page request for initialTarget signals
	// initialEntered and waits for initialGate.
	initialTarget  Selection
	initialGate    chan struct{}
	initialEntered chan struct{}

	articles     map[int64]ttrss.Headline
	articleCalls int
	articleErr   error

	readErr     error
	starErr     error
	publishErr  error
	catchUpErr  error
	catchUps    int
	onSetRead   func()
	onSetStar   func()
	onCatchUp   func()
	readFlags   []bool
}

func (f *fakeRemote) ListCategories(context.Context) ([]ttrss.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.categoriesErr != nil {
		return nil, f.categoriesErr
	}
	return append([]ttrss.Category(nil), f.categories...), nil
}

func (f *fakeRemote) ListFeeds(_ context.Context, categoryID int64) ([]ttrss.Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ttrss.Feed(nil), f.feeds[categoryID]...), nil
}

func (f *fakeRemote) GetCounters(context.Context) ([]ttrss.CounterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counterCalls++
	if f.countersErr != nil {
		return nil, f.countersErr
	}
	return append([]ttrss.CounterEntry(nil), f.counters...), nil
}

func (f *fakeRemote) IconURL(feedID int64) string {
	return fmt.Sprintf("https://rss.example.com/public.php?op=feed_icon&id=%d", feedID)
}

func (f *fakeRemote) LoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeRemote) ListHeadlines(ctx context.Context, targetID int64, isCategory bool, limit, offset int) ([]ttrss.Headline, error) {
	f.mu.Lock()
	f.listCalls++
	gate, entered := f.moreGate, f.moreEntered
	if offset > 0 {
		f.moreCalls++
	} else {
		gate, entered = nil, nil
		if f.initialTarget == (Selection{TargetID: targetID, IsCategory: isCategory}) {
			gate, entered = f.initialGate, f.initialEntered
		}
	}
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headlinesErr != nil {
		return nil, f.headlinesErr
	}
	stream := f.streams[Selection{TargetID: targetID, IsCategory: isCategory}]
	if offset >= len(stream) {
		return nil, nil
	}
	end := min(offset+limit, len(stream))
	return append([]ttrss.Headline(nil), stream[offset:end]...), nil
}

func (f *fakeRemote) GetArticle(_ context.Context, articleID int64) (ttrss.Headline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.articleCalls++
	if f.articleErr != nil {
		return ttrss.Headline{}, f.articleErr
	}
	a, ok := f.articles[articleID]
	if !ok {
		return ttrss.Headline{}, errors.New("article not found")
	}
	return a, nil
}

func (f *fakeRemote) SetReadFlag(_ context.Context, _ int64, read bool) error {
	if f.onSetRead != nil {
		f.onSetRead()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readFlags = append(f.readFlags, read)
	return f.readErr
}

func (f *fakeRemote) SetStarFlag(context.Context, int64, bool) error {
	if f.onSetStar != nil {
		f.onSetStar()
	}
	return f.starErr
}

func (f *fakeRemote) SetPublishedFlag(context.Context, int64, bool) error {
	return f.publishErr
}

func (f *fakeRemote) CatchUp(context.Context, int64, bool) error {
	if f.onCatchUp != nil {
		f.onCatchUp()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catchUps++
	return f.catchUpErr
}

// newFixtureRemote serves category 10 with feeds 100 (3 unread) and 101 (12
// unread), and the special category with its virtual feeds; Unread (-6) holds 9.
func newFixtureRemote() *fakeRemote {
	return &fakeRemote{
		loggedIn: true,
		categories: []ttrss.Category{
			{ID: 10, Title: "Tech", Unread: 15},
			{ID: -1, Title: "Special", Unread: 0},
		},
		feeds: map[int64][]ttrss.Feed{
			10: {
				{ID: 100, Title: "Alpha", Unread: 3, HasIcon: true, CategoryID: 10},
				{ID: 101, Title: "Beta", Unread: 12, CategoryID: 10},
			},
			-1: {
				{ID: 0, Title: "Archived articles", CategoryID: -1},
				{ID: -1, Title: "Starred articles", CategoryID: -1},
				{ID: -2, Title: "Published articles", CategoryID: -1},
				{ID: -3, Title: "Recently read", CategoryID: -1},
				{ID: -4, Title: "All articles", CategoryID: -1},
				{ID: -6, Title: "Unread", CategoryID: -1},
			},
		},
		counters: []ttrss.CounterEntry{
			{Kind: ttrss.CounterCategory, ID: 10, Counter: 15},
			{Kind: ttrss.CounterFeed, ID: 100, Counter: 3},
			{Kind: ttrss.CounterFeed, ID: 101, Counter: 12},
			{Kind: ttrss.CounterFeed, ID: -6, Counter: 9},
			{Kind: ttrss.CounterFeed, ID: -1, Counter: 0, AuxCounter: 2},
			{Kind: ttrss.CounterFeed, ID: -2, Counter: 0, AuxCounter: 1},
			{Kind: ttrss.CounterFeed, ID: -4, Counter: 15},
		},
		streams:  make(map[Selection][]ttrss.Headline),
		articles: make(map[int64]ttrss.Headline),
	}
}

func makeStream(feedID int64, firstID int64, n int) []ttrss.Headline {
	out := make([]ttrss.Headline, n)
	for i := range out {
		out[i] = ttrss.Headline{
			ID:      ttrss.ID(firstID + int64(i)),
			FeedID:  ttrss.ID(feedID),
			Title:   fmt.Sprintf("headline %d", firstID+int64(i)),
			Unread:  true,
			Updated: ttrss.ID(1767225600 - int64(i)*60),
		}
	}
	return out
}

func feedUnread(categories []Category, feedID int64) int {
	ci, fi, ok := findFeed(categories, feedID)
	if !ok {
		return -1
	}
	return categories[ci].Feeds[fi].Unread
}

func categoryUnread(categories []Category, categoryID int64) int {
	for _, c := range categories {
		if c.ID == categoryID {
			return c.Unread
		}
	}
	return -1
}
