package state

import (
	"github.com/glabrego/ttrss-cli/internal/cache"
	tuitree "github.com/glabrego/ttrss-cli/internal/tui/tree"
)

// LoadMoreThreshold is how close to the end of the headline list the cursor
// gets before the next page is requested.
const LoadMoreThreshold = 3

func ClampCursor(cursor, size int) int {
	if size <= 0 {
		return 0
	}
	if cursor >= size {
		return size - 1
	}
	if cursor < 0 {
		return 0
	}
	return cursor
}

func PageStep(height int, hasStatus bool) int {
	if height <= 0 {
		return 10
	}
	headerLines := 6
	if hasStatus {
		headerLines += 2
	}
	step := height - headerLines
	if step < 3 {
		step = 3
	}
	return step
}

func CenteredWindow(totalRows, cursor, height int) (int, int) {
	if totalRows <= 0 {
		return 0, 0
	}
	if height <= 0 || totalRows <= height {
		return 0, totalRows
	}
	cursor = ClampCursor(cursor, totalRows)
	start := cursor - height/2
	if start < 0 {
		start = 0
	}
	maxStart := totalRows - height
	if start > maxStart {
		start = maxStart
	}
	return start, start + height
}

func HeadlineIndexByID(items []cache.Headline, articleID int64) int {
	for i, h := range items {
		if h.ID == articleID {
			return i
		}
	}
	return -1
}

// NearEnd reports whether the cursor is within LoadMoreThreshold rows of the
// end of a non-empty list.
func NearEnd(cursor, size int) bool {
	return size > 0 && cursor >= size-LoadMoreThreshold
}

// SyncedTreeCursor keeps the cursor on the row for sel after the rows were
// rebuilt, falling back to the clamped previous position.
func SyncedTreeCursor(rows []tuitree.Row, sel *cache.Selection, previous int) int {
	if i := tuitree.RowForSelection(rows, sel); i >= 0 {
		return i
	}
	return ClampCursor(previous, len(rows))
}
