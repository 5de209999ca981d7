package cache

import (
	"context"
	"sync"
)

type PageLoader interface {
	LoadInitial(ctx context.Context, sel *Selection) error
}

// Selector owns the active selection and is the only thing that resets the
// headline list.
type Selector struct {
	pages PageLoader

	mu      sync.Mutex
	current *Selection
	article int64
}

func NewSelector(pages PageLoader) *Selector {
	return &Selector{pages: pages}
}

// Select makes sel the active selection and reloads the first page. Selecting
// a value equal to the current one, nil included, does nothing.
func (s *Selector) Select(ctx context.Context, sel *Selection) error {
	s.mu.Lock()
	if sameSelection(s.current, sel) {
		s.mu.Unlock()
		return nil
	}
	if sel == nil {
		s.current = nil
	} else {
		next := *sel
		s.current = &next
	}
	s.article = 0
	s.mu.Unlock()

	return s.pages.LoadInitial(ctx, sel)
}

// Reload refetches the first page of the current selection.
func (s *Selector) Reload(ctx context.Context) error {
	return s.pages.LoadInitial(ctx, s.Current())
}

func (s *Selector) Current() *Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cur := *s.current
	return &cur
}

func (s *Selector) SelectArticle(articleID int64) {
	s.mu.Lock()
	s.article = articleID
	s.mu.Unlock()
}

// SelectedArticle is the open article id, 0 when none.
func (s *Selector) SelectedArticle() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.article
}

func sameSelection(a, b *Selection) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
