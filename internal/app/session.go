package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/glabrego/ttrss-cli/internal/cache"
)

// resyncTimeout bounds one background counter refresh.
const resyncTimeout = 15 * time.Second

// ErrNoSession is returned by cache operations before Login or after Close.
var ErrNoSession = errors.New("no active session")

type Client interface {
	cache.TreeRemote
	cache.HeadlineRemote
	Login(ctx context.Context, user, password string) error
	Logout(ctx context.Context) error
}

type Credentials struct {
	Username string
	Password string
}

// State is what the presentation layer renders.
type State struct {
	LoggedIn        bool
	Err             string
	TreeLoading     bool
	TreeErr         string
	Categories      []cache.Category
	Headlines       cache.HeadlineState
	SelectedArticle int64
}

// Session owns the caches of one logged-in session: it builds them on Login,
// runs the periodic counter resync and drops everything on Close.
type Session struct {
	client   Client
	creds    Credentials
	logger   *log.Logger
	pageSize int

	mu         sync.Mutex
	tree       *cache.Tree
	pages      *cache.Headlines
	selector   *cache.Selector
	err        string
	interval   time.Duration
	stopResync context.CancelFunc
	onResync   func()
	wg         sync.WaitGroup
}

func NewSession(client Client, creds Credentials, logger *log.Logger, pageSize int) *Session {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Session{
		client:   client,
		creds:    creds,
		logger:   logger,
		pageSize: pageSize,
	}
}

// Login authenticates, builds fresh caches and loads the feed tree. An
// authentication failure is kept as the session error until the next
// successful login; a tree failure is kept on the tree.
func (s *Session) Login(ctx context.Context) error {
	if err := s.client.Login(ctx, s.creds.Username, s.creds.Password); err != nil {
		s.mu.Lock()
		s.err = err.Error()
		s.mu.Unlock()
		s.logger.Error("login failed", "user", s.creds.Username, "err", err)
		return err
	}

	tree := cache.NewTree(s.client, s.logger.WithPrefix("tree"))
	pages := cache.NewHeadlines(s.client, tree, s.logger.WithPrefix("headlines"), s.pageSize)

	s.mu.Lock()
	s.err = ""
	s.tree = tree
	s.pages = pages
	s.selector = cache.NewSelector(pages)
	s.restartResyncLocked()
	s.mu.Unlock()
	s.logger.Info("logged in", "user", s.creds.Username)

	_, err := tree.Load(ctx)
	return err
}

// SetCounterInterval reschedules the background counter resync. Zero or a
// negative value disables it.
func (s *Session) SetCounterInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	s.restartResyncLocked()
}

func (s *Session) CounterInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// OnCounterResync registers fn to run after every successful background
// resync. It runs on the timer goroutine.
func (s *Session) OnCounterResync(fn func()) {
	s.mu.Lock()
	s.onResync = fn
	s.mu.Unlock()
}

func (s *Session) restartResyncLocked() {
	if s.stopResync != nil {
		s.stopResync()
		s.stopResync = nil
	}
	if s.interval <= 0 || s.tree == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopResync = cancel
	tree, interval := s.tree, s.interval

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			rctx, rcancel := context.WithTimeout(ctx, resyncTimeout)
			err := tree.ResyncCounters(rctx)
			rcancel()
			if err != nil || ctx.Err() != nil {
				continue
			}
			s.mu.Lock()
			notify := s.onResync
			s.mu.Unlock()
			if notify != nil {
				notify()
			}
		}
	}()
	s.logger.Debug("counter resync scheduled", "interval", interval)
}

// Close stops the resync timer, logs out and discards the caches.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.stopResync != nil {
		s.stopResync()
		s.stopResync = nil
	}
	loggedIn := s.tree != nil
	s.tree, s.pages, s.selector = nil, nil, nil
	s.mu.Unlock()
	s.wg.Wait()

	if !loggedIn {
		return nil
	}
	if err := s.client.Logout(ctx); err != nil {
		s.logger.Warn("logout failed", "err", err)
		return err
	}
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	tree, pages, selector := s.tree, s.pages, s.selector
	st := State{LoggedIn: tree != nil, Err: s.err}
	s.mu.Unlock()

	if tree != nil {
		st.Categories = tree.Snapshot()
		st.TreeErr = tree.Err()
		st.TreeLoading = tree.Loading()
	}
	if pages != nil {
		st.Headlines = pages.State()
	}
	if selector != nil {
		st.SelectedArticle = selector.SelectedArticle()
	}
	return st
}

func (s *Session) caches() (*cache.Tree, *cache.Headlines, *cache.Selector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return nil, nil, nil, ErrNoSession
	}
	return s.tree, s.pages, s.selector, nil
}

func (s *Session) ReloadTree(ctx context.Context) error {
	tree, _, _, err := s.caches()
	if err != nil {
		return err
	}
	_, err = tree.Load(ctx)
	return err
}

func (s *Session) ResyncCounters(ctx context.Context) error {
	tree, _, _, err := s.caches()
	if err != nil {
		return err
	}
	return tree.ResyncCounters(ctx)
}

func (s *Session) Select(ctx context.Context, sel *cache.Selection) error {
	_, _, selector, err := s.caches()
	if err != nil {
		return err
	}
	return selector.Select(ctx, sel)
}

func (s *Session) ReloadHeadlines(ctx context.Context) error {
	_, _, selector, err := s.caches()
	if err != nil {
		return err
	}
	return selector.Reload(ctx)
}

func (s *Session) LoadMore(ctx context.Context) error {
	_, pages, _, err := s.caches()
	if err != nil {
		return err
	}
	return pages.LoadMore(ctx)
}

func (s *Session) OpenArticle(ctx context.Context, articleID int64) (cache.Headline, error) {
	_, pages, selector, err := s.caches()
	if err != nil {
		return cache.Headline{}, err
	}
	selector.SelectArticle(articleID)
	return pages.OpenArticle(ctx, articleID)
}

func (s *Session) MarkRead(ctx context.Context, articleID, feedID int64, isCurrentlyUnread bool) error {
	_, pages, _, err := s.caches()
	if err != nil {
		return err
	}
	return pages.MarkRead(ctx, articleID, feedID, isCurrentlyUnread)
}

func (s *Session) MarkStarred(ctx context.Context, articleID int64, starred bool) error {
	_, pages, _, err := s.caches()
	if err != nil {
		return err
	}
	return pages.MarkStarred(ctx, articleID, starred)
}

func (s *Session) MarkPublished(ctx context.Context, articleID int64, published bool) error {
	_, pages, _, err := s.caches()
	if err != nil {
		return err
	}
	return pages.MarkPublished(ctx, articleID, published)
}

func (s *Session) MarkFeedRead(ctx context.Context, targetID int64, isCategory bool) error {
	_, pages, _, err := s.caches()
	if err != nil {
		return err
	}
	return pages.MarkFeedRead(ctx, targetID, isCategory)
}
