package cache

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/glabrego/ttrss-cli/internal/ttrss"
)

const DefaultPageSize = 20

type HeadlineRemote interface {
	LoggedIn() bool
	ListHeadlines(ctx context.Context, targetID int64, isCategory bool, limit, offset int) ([]ttrss.Headline, error)
	GetArticle(ctx context.Context, articleID int64) (ttrss.Headline, error)
	SetReadFlag(ctx context.Context, articleID int64, read bool) error
	SetStarFlag(ctx context.Context, articleID int64, starred bool) error
	SetPublishedFlag(ctx context.Context, articleID int64, published bool) error
	CatchUp(ctx context.Context, targetID int64, isCategory bool) error
}

// Counters is the part of the feed tree that headline mutations adjust.
type Counters interface {
	IncrementUnread(feedID int64) Change
	DecrementUnread(feedID int64) Change
	AdjustSpecialCounter(v ttrss.VirtualFeed, delta int) Change
	Revert(ch Change)
	ResyncCounters(ctx context.Context) error
}

// Selection is the active feed or category.
type Selection struct {
	TargetID   int64
	IsCategory bool
}

type Headline struct {
	ID        int64
	FeedID    int64
	FeedTitle string
	Title     string
	Author    string
	UpdatedAt time.Time
	Unread    bool
	Starred   bool
	Published bool
	Link      string
	Content   string

	// ContentLoaded is set once the full article body has been fetched.
	ContentLoaded bool
}

func headlineFromRemote(r ttrss.Headline) Headline {
	return Headline{
		ID:        int64(r.ID),
		FeedID:    int64(r.FeedID),
		FeedTitle: r.FeedTitle,
		Title:     r.Title,
		Author:    r.Author,
		UpdatedAt: r.UpdatedAt(),
		Unread:    r.Unread,
		Starred:   r.Starred,
		Published: r.Published,
		Link:      r.Link,
		Content:   r.Content,
	}
}

type Cursor struct {
	PageSize  int
	Offset    int
	Exhausted bool
}

type HeadlineState struct {
	Selection   *Selection
	Items       []Headline
	Cursor      Cursor
	Loading     bool
	LoadingMore bool
	Err         string
}

// Headlines is the paginated headline list of the active selection.
//
// Every selection change bumps a generation counter; responses that come back
// for an older generation are dropped without touching the list.
type Headlines struct {
	remote   HeadlineRemote
	counters Counters
	logger   *log.Logger
	pageSize int

	mu          sync.Mutex
	gen         uint64
	selection   *Selection
	items       []Headline
	cursor      Cursor
	loading     bool
	loadingMore bool
	err         string
}

func NewHeadlines(remote HeadlineRemote, counters Counters, logger *log.Logger, pageSize int) *Headlines {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &Headlines{
		remote:   remote,
		counters: counters,
		logger:   logger,
		pageSize: pageSize,
		cursor:   Cursor{PageSize: pageSize},
	}
}

// State returns a read-only snapshot.
func (h *Headlines) State() HeadlineState {
	h.mu.Lock()
	defer h.mu.Unlock()
	var sel *Selection
	if h.selection != nil {
		s := *h.selection
		sel = &s
	}
	return HeadlineState{
		Selection:   sel,
		Items:       h.items,
		Cursor:      h.cursor,
		Loading:     h.loading,
		LoadingMore: h.loadingMore,
		Err:         h.err,
	}
}

// Get returns the cached headline with the given id.
func (h *Headlines) Get(articleID int64) (Headline, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i := h.indexLocked(articleID); i >= 0 {
		return h.items[i], true
	}
	return Headline{}, false
}

// LoadInitial discards the list and fetches the first page for sel. A nil
// selection or a logged-out session leaves an empty list without a fetch.
func (h *Headlines) LoadInitial(ctx context.Context, sel *Selection) error {
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.items = nil
	h.cursor = Cursor{PageSize: h.pageSize}
	h.loadingMore = false
	h.err = ""
	if sel == nil || !h.remote.LoggedIn() {
		h.selection = nil
		h.loading = false
		h.mu.Unlock()
		return nil
	}
	target := *sel
	h.selection = &target
	h.loading = true
	h.mu.Unlock()

	page, err := h.remote.ListHeadlines(ctx, target.TargetID, target.IsCategory, h.pageSize, 0)

	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.gen {
		h.logger.Debug("dropping stale headline page", "target", target.TargetID, "category", target.IsCategory)
		return nil
	}
	h.loading = false
	if err != nil {
		fetchErr := &FetchError{Op: "headlines", Err: err}
		h.err = fetchErr.Error()
		h.logger.Error("load headlines", "target", target.TargetID, "category", target.IsCategory, "err", err)
		return fetchErr
	}
	h.items = h.appendPage(nil, page)
	return nil
}

// LoadMore fetches the next page and appends it. It does nothing while
// another load is in flight, after the stream is exhausted or without a
// selection. Failures are logged, not recorded as the list error.
func (h *Headlines) LoadMore(ctx context.Context) error {
	h.mu.Lock()
	if h.loading || h.loadingMore || h.cursor.Exhausted || h.selection == nil {
		h.mu.Unlock()
		return nil
	}
	h.loadingMore = true
	gen := h.gen
	target := *h.selection
	offset := h.cursor.Offset
	h.mu.Unlock()

	page, err := h.remote.ListHeadlines(ctx, target.TargetID, target.IsCategory, h.pageSize, offset)

	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.gen {
		h.logger.Debug("dropping stale headline page", "target", target.TargetID, "offset", offset)
		return nil
	}
	h.loadingMore = false
	if err != nil {
		h.logger.Warn("load more headlines", "target", target.TargetID, "offset", offset, "err", err)
		return &FetchError{Op: "more headlines", Err: err}
	}
	h.items = h.appendPage(h.items, page)
	return nil
}

// appendPage advances the cursor past page and returns a new slice holding
// items followed by page.
func (h *Headlines) appendPage(items []Headline, page []ttrss.Headline) []Headline {
	converted := make([]Headline, len(page))
	for i, r := range page {
		converted[i] = headlineFromRemote(r)
	}
	h.cursor.Offset += len(page)
	h.cursor.Exhausted = len(page) < h.pageSize
	return slices.Concat(items, converted)
}

// MarkRead flips the read state locally and adjusts the feed counters before
// calling the server. A failed call rolls both back.
func (h *Headlines) MarkRead(ctx context.Context, articleID, feedID int64, isCurrentlyUnread bool) error {
	nextUnread := !isCurrentlyUnread
	h.patch(articleID, func(x *Headline) { x.Unread = nextUnread })

	var ch Change
	if isCurrentlyUnread {
		ch = h.counters.DecrementUnread(feedID)
	} else {
		ch = h.counters.IncrementUnread(feedID)
	}

	if err := h.remote.SetReadFlag(ctx, articleID, isCurrentlyUnread); err != nil {
		h.patchIf(articleID, func(x *Headline) bool { return x.Unread == nextUnread }, func(x *Headline) { x.Unread = isCurrentlyUnread })
		h.counters.Revert(ch)
		h.logger.Warn("mark read rolled back", "article", articleID, "feed", feedID, "err", err)
		return &MutationError{Op: "mark read", ArticleID: articleID, Err: err}
	}
	return nil
}

func (h *Headlines) MarkStarred(ctx context.Context, articleID int64, starred bool) error {
	return h.toggle(ctx, "mark starred", articleID, starred, ttrss.Starred,
		func(x *Headline) *bool { return &x.Starred },
		h.remote.SetStarFlag)
}

func (h *Headlines) MarkPublished(ctx context.Context, articleID int64, published bool) error {
	return h.toggle(ctx, "mark published", articleID, published, ttrss.Published,
		func(x *Headline) *bool { return &x.Published },
		h.remote.SetPublishedFlag)
}

// toggle applies a flag change and the matching virtual feed counter delta,
// then calls the server, rolling both back on failure. The counter only moves
// when a cached headline actually changed state.
func (h *Headlines) toggle(
	ctx context.Context,
	op string,
	articleID int64,
	value bool,
	counter ttrss.VirtualFeed,
	field func(*Headline) *bool,
	call func(context.Context, int64, bool) error,
) error {
	prev, found := h.patch(articleID, func(x *Headline) { *field(x) = value })

	var ch Change
	if found && *field(&prev) != value {
		delta := 1
		if !value {
			delta = -1
		}
		ch = h.counters.AdjustSpecialCounter(counter, delta)
	}

	if err := call(ctx, articleID, value); err != nil {
		if found {
			original := *field(&prev)
			h.patchIf(articleID, func(x *Headline) bool { return *field(x) == value }, func(x *Headline) { *field(x) = original })
		}
		h.counters.Revert(ch)
		h.logger.Warn(op+" rolled back", "article", articleID, "err", err)
		return &MutationError{Op: op, ArticleID: articleID, Err: err}
	}
	return nil
}

// MarkFeedRead catches up a feed or category on the server, then marks the
// affected cached headlines read and resyncs all counters, since the server
// side effect reaches beyond what local deltas can track.
//
// Headlines are only flipped when the list still belongs to the generation
// that was cached when the call started. A target equal to the selection
// flips the whole list; a feed target flips the items of that feed in any
// other list. A category target that is not the selection flips nothing.
func (h *Headlines) MarkFeedRead(ctx context.Context, targetID int64, isCategory bool) error {
	h.mu.Lock()
	gen := h.gen
	h.mu.Unlock()

	if err := h.remote.CatchUp(ctx, targetID, isCategory); err != nil {
		h.logger.Warn("catch up failed", "target", targetID, "category", isCategory, "err", err)
		return &MutationError{Op: "catch up", Err: err}
	}

	h.mu.Lock()
	if gen == h.gen && h.selection != nil {
		target := Selection{TargetID: targetID, IsCategory: isCategory}
		whole := *h.selection == target
		if whole || !isCategory {
			items := make([]Headline, len(h.items))
			copy(items, h.items)
			for i := range items {
				if whole || items[i].FeedID == targetID {
					items[i].Unread = false
				}
			}
			h.items = items
		}
	} else {
		h.logger.Debug("catch up finished after selection change", "target", targetID, "category", isCategory)
	}
	h.mu.Unlock()

	_ = h.counters.ResyncCounters(ctx)
	return nil
}

// patch applies fn to the cached headline and returns its previous value.
func (h *Headlines) patch(articleID int64, fn func(*Headline)) (Headline, bool) {
	return h.patchIf(articleID, nil, fn)
}

func (h *Headlines) patchIf(articleID int64, cond func(*Headline) bool, fn func(*Headline)) (Headline, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := h.indexLocked(articleID)
	if i < 0 {
		return Headline{}, false
	}
	prev := h.items[i]
	if cond != nil && !cond(&prev) {
		return prev, true
	}
	items := make([]Headline, len(h.items))
	copy(items, h.items)
	fn(&items[i])
	h.items = items
	return prev, true
}

func (h *Headlines) indexLocked(articleID int64) int {
	for i, item := range h.items {
		if item.ID == articleID {
			return i
		}
	}
	return -1
}
