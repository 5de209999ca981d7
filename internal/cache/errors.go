package cache

import "fmt"

// FetchError is a failed list or get call. Its message is what the
// presentation layer shows until the next successful fetch clears it.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MutationError is a failed remote call behind an optimistic update. The
// local state has already been rolled back when it is returned.
type MutationError struct {
	Op        string
	ArticleID int64
	Err       error
}

func (e *MutationError) Error() string {
	if e.ArticleID != 0 {
		return fmt.Sprintf("%s article %d: %v", e.Op, e.ArticleID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }
