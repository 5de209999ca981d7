package actions

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/glabrego/ttrss-cli/internal/cache"
)

const (
	requestTimeout = 10 * time.Second
	pageTimeout    = 12 * time.Second
)

type Service interface {
	Login(ctx context.Context) error
	ReloadTree(ctx context.Context) error
	ResyncCounters(ctx context.Context) error
	Select(ctx context.Context, sel *cache.Selection) error
	ReloadHeadlines(ctx context.Context) error
	LoadMore(ctx context.Context) error
	OpenArticle(ctx context.Context, articleID int64) (cache.Headline, error)
	MarkRead(ctx context.Context, articleID, feedID int64, isCurrentlyUnread bool) error
	MarkStarred(ctx context.Context, articleID int64, starred bool) error
	MarkPublished(ctx context.Context, articleID int64, published bool) error
	MarkFeedRead(ctx context.Context, targetID int64, isCategory bool) error
}

type LoginSuccessMsg struct {
	Duration time.Duration
}

type LoginErrorMsg struct {
	Err      error
	Duration time.Duration
}

// TreeLoadedMsg follows a tree reload or a counter resync. Source tells them
// apart for the status line.
type TreeLoadedMsg struct {
	Source string
	Err    error
}

type HeadlinesLoadedMsg struct {
	Selection *cache.Selection
	More      bool
	Err       error
}

type ArticleOpenedMsg struct {
	Headline cache.Headline
}

type ArticleOpenErrorMsg struct {
	ArticleID int64
	Err       error
}

type MutationSuccessMsg struct {
	ArticleID int64
	Status    string
}

type MutationErrorMsg struct {
	Err error
}

type PreferenceSaveErrorMsg struct {
	Err error
}

type OpenURLSuccessMsg struct {
	Status string
	Opened bool
}

type OpenURLErrorMsg struct {
	Err error
}

func LoginCmd(service Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pageTimeout)
		defer cancel()
		start := time.Now()

		if err := service.Login(ctx); err != nil {
			return LoginErrorMsg{Err: err, Duration: time.Since(start)}
		}
		return LoginSuccessMsg{Duration: time.Since(start)}
	}
}

func ReloadTreeCmd(service Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pageTimeout)
		defer cancel()
		return TreeLoadedMsg{Source: "reload", Err: service.ReloadTree(ctx)}
	}
}

func ResyncCountersCmd(service Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return TreeLoadedMsg{Source: "resync", Err: service.ResyncCounters(ctx)}
	}
}

func SelectCmd(service Service, sel *cache.Selection) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pageTimeout)
		defer cancel()
		return HeadlinesLoadedMsg{Selection: sel, Err: service.Select(ctx, sel)}
	}
}

func ReloadHeadlinesCmd(service Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pageTimeout)
		defer cancel()
		return HeadlinesLoadedMsg{Err: service.ReloadHeadlines(ctx)}
	}
}

func LoadMoreCmd(service Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pageTimeout)
		defer cancel()
		return HeadlinesLoadedMsg{More: true, Err: service.LoadMore(ctx)}
	}
}

func OpenArticleCmd(service Service, articleID int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		h, err := service.OpenArticle(ctx, articleID)
		if err != nil {
			return ArticleOpenErrorMsg{ArticleID: articleID, Err: err}
		}
		return ArticleOpenedMsg{Headline: h}
	}
}

func ToggleReadCmd(service Service, h cache.Headline) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := service.MarkRead(ctx, h.ID, h.FeedID, h.Unread); err != nil {
			return MutationErrorMsg{Err: err}
		}
		status := "Marked as unread"
		if h.Unread {
			status = "Marked as read"
		}
		return MutationSuccessMsg{ArticleID: h.ID, Status: status}
	}
}

func ToggleStarredCmd(service Service, h cache.Headline) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		next := !h.Starred
		if err := service.MarkStarred(ctx, h.ID, next); err != nil {
			return MutationErrorMsg{Err: err}
		}
		status := "Unstarred article"
		if next {
			status = "Starred article"
		}
		return MutationSuccessMsg{ArticleID: h.ID, Status: status}
	}
}

func TogglePublishedCmd(service Service, h cache.Headline) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		next := !h.Published
		if err := service.MarkPublished(ctx, h.ID, next); err != nil {
			return MutationErrorMsg{Err: err}
		}
		status := "Unpublished article"
		if next {
			status = "Published article"
		}
		return MutationSuccessMsg{ArticleID: h.ID, Status: status}
	}
}

func CatchUpCmd(service Service, sel cache.Selection) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := service.MarkFeedRead(ctx, sel.TargetID, sel.IsCategory); err != nil {
			return MutationErrorMsg{Err: err}
		}
		return MutationSuccessMsg{Status: "Marked all as read"}
	}
}

func SaveIntervalCmd(save func(time.Duration) error, d time.Duration) tea.Cmd {
	return func() tea.Msg {
		if save == nil {
			return nil
		}
		if err := save(d); err != nil {
			return PreferenceSaveErrorMsg{Err: err}
		}
		return nil
	}
}

func OpenURLCmd(url string, openFn, copyFn func(string) error) tea.Cmd {
	return func() tea.Msg {
		if openFn != nil {
			if err := openFn(url); err == nil {
				return OpenURLSuccessMsg{Status: "Opened URL in browser", Opened: true}
			}
		}
		if copyFn != nil {
			if err := copyFn(url); err == nil {
				return OpenURLSuccessMsg{Status: "Could not open browser, URL copied to clipboard"}
			}
		}
		return OpenURLErrorMsg{Err: fmt.Errorf("could not open URL or copy to clipboard")}
	}
}

func CopyURLCmd(url string, copyFn func(string) error) tea.Cmd {
	return func() tea.Msg {
		if copyFn != nil {
			if err := copyFn(url); err == nil {
				return OpenURLSuccessMsg{Status: "URL copied to clipboard"}
			}
		}
		return OpenURLErrorMsg{Err: fmt.Errorf("could not copy URL to clipboard")}
	}
}
