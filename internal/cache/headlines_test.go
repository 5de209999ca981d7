package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glabrego/ttrss-cli/internal/ttrss"
)

var feed100 = Selection{TargetID: 100}

func newHeadlineFixture(t *testing.T) (*fakeRemote, *Tree, *Headlines) {
	t.Helper()
	remote := newFixtureRemote()
	remote.streams[feed100] = makeStream(100, 1, 25)
	tree := loadedTree(t, remote)
	return remote, tree, NewHeadlines(remote, tree, nil, 20)
}

func TestHeadlines_LoadInitialThenLoadMoreUntilExhausted(t *testing.T) {
	remote, _, pages := newHeadlineFixture(t)
	ctx := context.Background()

	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}
	st := pages.State()
	if len(st.Items) != 20 || st.Cursor.Exhausted || st.Cursor.Offset != 20 {
		t.Fatalf("unexpected first page state: items=%d cursor=%+v", len(st.Items), st.Cursor)
	}

	if err := pages.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore returned error: %v", err)
	}
	st = pages.State()
	if len(st.Items) != 25 || !st.Cursor.Exhausted || st.Cursor.Offset != 25 {
		t.Fatalf("unexpected state after load more: items=%d cursor=%+v", len(st.Items), st.Cursor)
	}
	if st.Items[20].ID != 21 {
		t.Fatalf("expected appended items in order, got id=%d", st.Items[20].ID)
	}

	if err := pages.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore returned error: %v", err)
	}
	if remote.moreCalls != 1 {
		t.Fatalf("expected no fetch after exhaustion, got %d load-more calls", remote.moreCalls)
	}
}

func TestHeadlines_LoadInitialWithoutSelectionOrSession(t *testing.T) {
	remote, _, pages := newHeadlineFixture(t)
	ctx := context.Background()

	if err := pages.LoadInitial(ctx, nil); err != nil {
		t.Fatalf("LoadInitial(nil) returned error: %v", err)
	}
	if st := pages.State(); len(st.Items) != 0 || st.Selection != nil {
		t.Fatalf("expected empty list, got %+v", st)
	}

	remote.loggedIn = false
	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}
	if st := pages.State(); len(st.Items) != 0 {
		t.Fatalf("expected empty list when logged out, got %d items", len(st.Items))
	}
	if remote.listCalls != 0 {
		t.Fatalf("expected no fetch, got %d", remote.listCalls)
	}
	if err := pages.LoadMore(ctx); err != nil || remote.listCalls != 0 {
		t.Fatalf("expected LoadMore without selection to do nothing, err=%v calls=%d", err, remote.listCalls)
	}
}

func TestHeadlines_LoadInitialErrorIsClearedBySuccess(t *testing.T) {
	remote, _, pages := newHeadlineFixture(t)
	ctx := context.Background()
	sel := feed100

	remote.headlinesErr = errors.New("server down")
	err := pages.LoadInitial(ctx, &sel)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if st := pages.State(); st.Err == "" || st.Loading {
		t.Fatalf("expected error state, got %+v", st)
	}

	remote.headlinesErr = nil
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}
	if st := pages.State(); st.Err != "" {
		t.Fatalf("expected error cleared, got %q", st.Err)
	}
}

func TestHeadlines_LoadMoreFailureIsNotSurfaced(t *testing.T) {
	remote, _, pages := newHeadlineFixture(t)
	ctx := context.Background()
	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}

	remote.headlinesErr = errors.New("flaky")
	if err := pages.LoadMore(ctx); err == nil {
		t.Fatal("expected LoadMore to report the failure to its caller")
	}
	st := pages.State()
	if st.Err != "" || st.LoadingMore || len(st.Items) != 20 {
		t.Fatalf("unexpected state after failed load more: %+v", st)
	}
}

func TestHeadlines_StaleLoadMoreDoesNotTouchNewSelection(t *testing.T) {
	remote, _, pages := newHeadlineFixture(t)
	other := Selection{TargetID: 10, IsCategory: true}
	remote.streams[other] = makeStream(101, 500, 3)
	remote.moreGate = make(chan struct{})
	remote.moreEntered = make(chan struct{}, 1)
	ctx := context.Background()

	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- pages.LoadMore(ctx) }()

	select {
	case <-remote.moreEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("load more never reached the server")
	}

	if err := pages.LoadInitial(ctx, &other); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}
	close(remote.moreGate)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stale LoadMore returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("load more did not finish")
	}

	st := pages.State()
	if len(st.Items) != 3 || st.Items[0].ID != 500 {
		t.Fatalf("stale page leaked into new selection: %+v", st.Items)
	}
	if st.Cursor.Offset != 3 || !st.Cursor.Exhausted {
		t.Fatalf("unexpected cursor: %+v", st.Cursor)
	}
}

func TestHeadlines_StaleLoadInitialIsDropped(t *testing.T) {
	remote, _, pages := newHeadlineFixture(t)
	other := Selection{TargetID: 10, IsCategory: true}
	remote.streams[other] = makeStream(101, 500, 3)
	remote.initialTarget = feed100
	remote.initialGate = make(chan struct{})
	remote.initialEntered = make(chan struct{}, 1)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		sel := feed100
		done <- pages.LoadInitial(ctx, &sel)
	}()

	select {
	case <-remote.initialEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("first page request never reached the server")
	}

	if err := pages.LoadInitial(ctx, &other); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}
	close(remote.initialGate)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stale LoadInitial returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stale LoadInitial did not finish")
	}

	st := pages.State()
	if st.Selection == nil || *st.Selection != other {
		t.Fatalf("expected selection %+v, got %+v", other, st.Selection)
	}
	if len(st.Items) != 3 || st.Items[0].ID != 500 {
		t.Fatalf("stale first page replaced the new list: %+v", st.Items)
	}
	if st.Cursor.Offset != 3 || !st.Cursor.Exhausted {
		t.Fatalf("unexpected cursor: %+v", st.Cursor)
	}
	if st.Loading || st.Err != "" {
		t.Fatalf("unexpected load state: loading=%v err=%q", st.Loading, st.Err)
	}
}

func TestHeadlines_ConcurrentLoadMoreCollapses(t *testing.T) {
	remote, _, pages := newHeadlineFixture(t)
	remote.moreGate = make(chan struct{})
	remote.moreEntered = make(chan struct{}, 1)
	ctx := context.Background()

	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- pages.LoadMore(ctx) }()
	<-remote.moreEntered

	if !pages.State().LoadingMore {
		t.Fatal("expected LoadingMore while a page is in flight")
	}
	if err := pages.LoadMore(ctx); err != nil {
		t.Fatalf("second LoadMore returned error: %v", err)
	}
	close(remote.moreGate)
	if err := <-done; err != nil {
		t.Fatalf("LoadMore returned error: %v", err)
	}

	if remote.moreCalls != 1 {
		t.Fatalf("expected a single in-flight request, got %d", remote.moreCalls)
	}
	if got := len(pages.State().Items); got != 25 {
		t.Fatalf("expected 25 items, got %d", got)
	}
}

func TestHeadlines_MarkReadIsOptimisticAndRollsBack(t *testing.T) {
	remote, tree, pages := newHeadlineFixture(t)
	ctx := context.Background()
	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}

	var sawUnread bool
	var sawCount int
	remote.onSetRead = func() {
		h, _ := pages.Get(1)
		sawUnread = h.Unread
		sawCount = feedUnread(tree.Snapshot(), 100)
	}
	remote.readErr = errors.New("rejected")

	err := pages.MarkRead(ctx, 1, 100, true)
	var mutErr *MutationError
	if !errors.As(err, &mutErr) {
		t.Fatalf("expected MutationError, got %v", err)
	}
	if sawUnread || sawCount != 2 {
		t.Fatalf("expected optimistic state before the call, unread=%v count=%d", sawUnread, sawCount)
	}

	h, _ := pages.Get(1)
	if !h.Unread {
		t.Fatal("expected unread flag restored")
	}
	categories := tree.Snapshot()
	if got := feedUnread(categories, 100); got != 3 {
		t.Fatalf("expected counter restored to 3, got %d", got)
	}
	if got := feedUnread(categories, -6); got != 9 {
		t.Fatalf("expected unread virtual feed restored to 9, got %d", got)
	}
	if pages.State().Err != "" {
		t.Fatal("mutation failures must not set the list error")
	}
}

func TestHeadlines_MarkReadAndUnreadSucceed(t *testing.T) {
	remote, tree, pages := newHeadlineFixture(t)
	ctx := context.Background()
	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}

	if err := pages.MarkRead(ctx, 2, 100, true); err != nil {
		t.Fatalf("MarkRead returned error: %v", err)
	}
	if h, _ := pages.Get(2); h.Unread {
		t.Fatal("expected headline read")
	}
	if got := feedUnread(tree.Snapshot(), 100); got != 2 {
		t.Fatalf("expected counter 2, got %d", got)
	}

	if err := pages.MarkRead(ctx, 2, 100, false); err != nil {
		t.Fatalf("MarkRead returned error: %v", err)
	}
	if h, _ := pages.Get(2); !h.Unread {
		t.Fatal("expected headline unread again")
	}
	if got := feedUnread(tree.Snapshot(), 100); got != 3 {
		t.Fatalf("expected counter 3, got %d", got)
	}
	if len(remote.readFlags) != 2 || !remote.readFlags[0] || remote.readFlags[1] {
		t.Fatalf("unexpected read flags sent: %v", remote.readFlags)
	}
}

func TestHeadlines_MarkStarredAdjustsCounterAndRollsBack(t *testing.T) {
	remote, tree, pages := newHeadlineFixture(t)
	ctx := context.Background()
	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}

	if err := pages.MarkStarred(ctx, 3, true); err != nil {
		t.Fatalf("MarkStarred returned error: %v", err)
	}
	if h, _ := pages.Get(3); !h.Starred {
		t.Fatal("expected headline starred")
	}
	if got := feedUnread(tree.Snapshot(), -1); got != 3 {
		t.Fatalf("expected starred counter 3, got %d", got)
	}

	var sawStarred bool
	remote.onSetStar = func() {
		h, _ := pages.Get(3)
		sawStarred = h.Starred
	}
	remote.starErr = errors.New("nope")
	if err := pages.MarkStarred(ctx, 3, false); err == nil {
		t.Fatal("expected error")
	}
	if sawStarred {
		t.Fatal("expected optimistic unstar before the call")
	}
	if h, _ := pages.Get(3); !h.Starred {
		t.Fatal("expected starred flag restored")
	}
	if got := feedUnread(tree.Snapshot(), -1); got != 3 {
		t.Fatalf("expected starred counter restored to 3, got %d", got)
	}
}

func TestHeadlines_MarkPublished(t *testing.T) {
	remote, tree, pages := newHeadlineFixture(t)
	ctx := context.Background()
	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}

	remote.publishErr = errors.New("denied")
	if err := pages.MarkPublished(ctx, 4, true); err == nil {
		t.Fatal("expected error")
	}
	if h, _ := pages.Get(4); h.Published {
		t.Fatal("expected published flag rolled back")
	}
	if got := feedUnread(tree.Snapshot(), -2); got != 1 {
		t.Fatalf("expected published counter 1, got %d", got)
	}

	remote.publishErr = nil
	if err := pages.MarkPublished(ctx, 4, true); err != nil {
		t.Fatalf("MarkPublished returned error: %v", err)
	}
	if got := feedUnread(tree.Snapshot(), -2); got != 2 {
		t.Fatalf("expected published counter 2, got %d", got)
	}

	// Already published: no counter movement.
	if err := pages.MarkPublished(ctx, 4, true); err != nil {
		t.Fatalf("MarkPublished returned error: %v", err)
	}
	if got := feedUnread(tree.Snapshot(), -2); got != 2 {
		t.Fatalf("expected published counter to stay 2, got %d", got)
	}
}

func TestHeadlines_MarkFeedReadClearsListAndResyncs(t *testing.T) {
	remote, tree, pages := newHeadlineFixture(t)
	ctx := context.Background()
	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}
	callsBefore := remote.counterCalls
	remote.counters = []ttrss.CounterEntry{
		{Kind: ttrss.CounterFeed, ID: 100, Counter: 0},
		{Kind: ttrss.CounterFeed, ID: -6, Counter: 6},
	}

	if err := pages.MarkFeedRead(ctx, 100, false); err != nil {
		t.Fatalf("MarkFeedRead returned error: %v", err)
	}
	for _, h := range pages.State().Items {
		if h.Unread {
			t.Fatalf("expected every headline read, found %+v", h)
		}
	}
	if remote.counterCalls != callsBefore+1 {
		t.Fatalf("expected one counter resync, got %d", remote.counterCalls-callsBefore)
	}
	categories := tree.Snapshot()
	if feedUnread(categories, 100) != 0 || feedUnread(categories, -6) != 6 {
		t.Fatalf("expected server counters applied, got %+v", categories)
	}
}

func TestHeadlines_MarkFeedReadOnlyTouchesTarget(t *testing.T) {
	remote, _, pages := newHeadlineFixture(t)
	ctx := context.Background()
	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}

	if err := pages.MarkFeedRead(ctx, 101, false); err != nil {
		t.Fatalf("MarkFeedRead returned error: %v", err)
	}
	if err := pages.MarkFeedRead(ctx, 10, true); err != nil {
		t.Fatalf("MarkFeedRead returned error: %v", err)
	}
	for _, h := range pages.State().Items {
		if !h.Unread {
			t.Fatalf("headline %d of feed %d marked read by another target's catch up", h.ID, h.FeedID)
		}
	}
	if remote.catchUps != 2 {
		t.Fatalf("expected two catch up calls, got %d", remote.catchUps)
	}
}

func TestHeadlines_MarkFeedReadInCategoryList(t *testing.T) {
	remote, _, pages := newHeadlineFixture(t)
	tech := Selection{TargetID: 10, IsCategory: true}
	remote.streams[tech] = append(makeStream(100, 1, 3), makeStream(101, 500, 3)...)
	ctx := context.Background()
	if err := pages.LoadInitial(ctx, &tech); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}

	if err := pages.MarkFeedRead(ctx, 100, false); err != nil {
		t.Fatalf("MarkFeedRead returned error: %v", err)
	}
	for _, h := range pages.State().Items {
		if want := h.FeedID != 100; h.Unread != want {
			t.Fatalf("headline %d of feed %d: unread=%v, want %v", h.ID, h.FeedID, h.Unread, want)
		}
	}
}

func TestHeadlines_MarkFeedReadAfterSelectionChange(t *testing.T) {
	remote, _, pages := newHeadlineFixture(t)
	beta := Selection{TargetID: 101}
	remote.streams[beta] = makeStream(101, 500, 5)
	ctx := context.Background()
	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}
	remote.onCatchUp = func() {
		if err := pages.LoadInitial(ctx, &beta); err != nil {
			t.Errorf("LoadInitial returned error: %v", err)
		}
	}
	callsBefore := remote.counterCalls

	if err := pages.MarkFeedRead(ctx, 100, false); err != nil {
		t.Fatalf("MarkFeedRead returned error: %v", err)
	}
	st := pages.State()
	if st.Selection == nil || *st.Selection != beta || len(st.Items) != 5 {
		t.Fatalf("expected feed 101 list, got %+v", st)
	}
	for _, h := range st.Items {
		if !h.Unread {
			t.Fatalf("headline %d of feed 101 marked read by catch up of feed 100", h.ID)
		}
	}
	if remote.counterCalls != callsBefore+1 {
		t.Fatal("expected counters resynced after a catch up that skipped the list")
	}
}

func TestHeadlines_MarkFeedReadFailureLeavesState(t *testing.T) {
	remote, _, pages := newHeadlineFixture(t)
	ctx := context.Background()
	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}
	callsBefore := remote.counterCalls
	remote.catchUpErr = errors.New("forbidden")

	if err := pages.MarkFeedRead(ctx, 100, false); err == nil {
		t.Fatal("expected error")
	}
	if h, _ := pages.Get(1); !h.Unread {
		t.Fatal("expected headlines untouched")
	}
	if remote.counterCalls != callsBefore {
		t.Fatal("expected no resync after a failed catch up")
	}
}

func TestHeadlines_StateSnapshotIsStable(t *testing.T) {
	_, _, pages := newHeadlineFixture(t)
	ctx := context.Background()
	sel := feed100
	if err := pages.LoadInitial(ctx, &sel); err != nil {
		t.Fatalf("LoadInitial returned error: %v", err)
	}

	old := pages.State()
	if err := pages.MarkRead(ctx, 1, 100, true); err != nil {
		t.Fatalf("MarkRead returned error: %v", err)
	}
	if !old.Items[0].Unread {
		t.Fatal("old snapshot was mutated")
	}
	old.Selection.TargetID = 999
	if pages.State().Selection.TargetID != 100 {
		t.Fatal("snapshot selection aliases internal state")
	}
}
