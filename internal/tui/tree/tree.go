package tree

import (
	"sort"
	"strings"

	"github.com/glabrego/ttrss-cli/internal/cache"
	"github.com/glabrego/ttrss-cli/internal/ttrss"
)

type RowKind string

const (
	RowCategory RowKind = "category"
	RowFeed     RowKind = "feed"
)

type Row struct {
	Kind       RowKind
	Label      string
	CategoryID int64
	FeedID     int64
	Unread     int
	Icon       string
}

type BuildOptions struct {
	CollapsedCategories map[int64]bool
}

// Selection is the headline list target this row opens.
func (r Row) Selection() *cache.Selection {
	if r.Kind == RowCategory {
		return &cache.Selection{TargetID: r.CategoryID, IsCategory: true}
	}
	return &cache.Selection{TargetID: r.FeedID}
}

func FeedName(f cache.Feed) string {
	name := strings.TrimSpace(f.Title)
	if name == "" {
		return "unknown feed"
	}
	return name
}

// BuildRows flattens the category tree. Categories keep the server order;
// regular feeds are sorted by title while virtual feeds keep theirs.
func BuildRows(categories []cache.Category, opts BuildOptions) []Row {
	size := len(categories)
	for _, c := range categories {
		size += len(c.Feeds)
	}
	rows := make([]Row, 0, size)

	for _, c := range categories {
		rows = append(rows, Row{
			Kind:       RowCategory,
			Label:      strings.TrimSpace(c.Title),
			CategoryID: c.ID,
			Unread:     c.Unread,
		})
		if opts.CollapsedCategories[c.ID] {
			continue
		}

		feeds := append([]cache.Feed(nil), c.Feeds...)
		if c.ID != ttrss.SpecialCategoryID {
			sort.SliceStable(feeds, func(i, j int) bool {
				return strings.ToLower(FeedName(feeds[i])) < strings.ToLower(FeedName(feeds[j]))
			})
		}
		for _, f := range feeds {
			rows = append(rows, Row{
				Kind:       RowFeed,
				Label:      FeedName(f),
				CategoryID: c.ID,
				FeedID:     f.ID,
				Unread:     f.Unread,
				Icon:       f.IconToken(),
			})
		}
	}
	return rows
}

func FirstFeedRow(rows []Row) int {
	for i, row := range rows {
		if row.Kind == RowFeed {
			return i
		}
	}
	return 0
}

// RowForSelection finds the row that opens sel, or -1.
func RowForSelection(rows []Row, sel *cache.Selection) int {
	if sel == nil {
		return -1
	}
	for i, row := range rows {
		if sel.IsCategory && row.Kind == RowCategory && row.CategoryID == sel.TargetID {
			return i
		}
		if !sel.IsCategory && row.Kind == RowFeed && row.FeedID == sel.TargetID {
			return i
		}
	}
	return -1
}
