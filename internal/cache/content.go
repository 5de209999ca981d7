package cache

import (
	"context"
	"unicode/utf8"
)

// listContentThreshold is the length above which content that arrived with
// the headline list is taken as the full body. Content fetched by
// HydrateContent is marked with ContentLoaded instead, so short articles are
// fetched once and never again.
const listContentThreshold = 200

func hasFullContent(h Headline) bool {
	return h.ContentLoaded || utf8.RuneCountInString(h.Content) > listContentThreshold
}

// HydrateContent makes sure the headline carries the full article body,
// fetching it at most once per cached headline. An article that is not in the
// list (the selection moved on) is fetched and returned without caching.
func (h *Headlines) HydrateContent(ctx context.Context, articleID int64) (Headline, error) {
	cached, ok := h.Get(articleID)
	if ok && hasFullContent(cached) {
		return cached, nil
	}

	full, err := h.remote.GetArticle(ctx, articleID)
	if err != nil {
		h.logger.Warn("fetch article", "article", articleID, "err", err)
		return cached, &FetchError{Op: "article", Err: err}
	}

	prev, found := h.patch(articleID, func(x *Headline) {
		x.Content = full.Content
		x.ContentLoaded = true
	})
	if !found {
		out := headlineFromRemote(full)
		out.ContentLoaded = true
		return out, nil
	}
	prev.Content = full.Content
	prev.ContentLoaded = true
	return prev, nil
}

// OpenArticle hydrates the article and marks it read if it was unread.
func (h *Headlines) OpenArticle(ctx context.Context, articleID int64) (Headline, error) {
	article, err := h.HydrateContent(ctx, articleID)
	if err != nil {
		return article, err
	}
	if !article.Unread {
		return article, nil
	}
	if err := h.MarkRead(ctx, articleID, article.FeedID, true); err != nil {
		return article, err
	}
	article.Unread = false
	return article, nil
}
