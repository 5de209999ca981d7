package ttrss

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SpecialCategoryID is the synthetic category holding the virtual feeds.
const SpecialCategoryID int64 = -1

// VirtualFeed identifies one of the server's synthetic feeds.
type VirtualFeed int

const (
	NotVirtual VirtualFeed = iota
	Archived
	Starred
	Published
	RecentlyRead
	All
	Unread
)

var virtualFeedIDs = map[VirtualFeed]int64{
	Archived:     0,
	Starred:      -1,
	Published:    -2,
	RecentlyRead: -3,
	All:          -4,
	Unread:       -6,
}

var virtualFeedIcons = map[VirtualFeed]string{
	Archived:     "archive_outlined",
	Starred:      "star_border",
	Published:    "public",
	RecentlyRead: "weekend_outlined",
	All:          "folder_open",
	Unread:       "history",
}

var virtualFeedNames = map[VirtualFeed]string{
	NotVirtual:   "feed",
	Archived:     "archived",
	Starred:      "starred",
	Published:    "published",
	RecentlyRead: "recently-read",
	All:          "all",
	Unread:       "unread",
}

// VirtualFeedByID maps a feed id inside the special category to its kind.
func VirtualFeedByID(id int64) (VirtualFeed, bool) {
	for v, vid := range virtualFeedIDs {
		if vid == id {
			return v, true
		}
	}
	return NotVirtual, false
}

// ID returns the reserved feed id. It panics for NotVirtual.
func (v VirtualFeed) ID() int64 {
	id, ok := virtualFeedIDs[v]
	if !ok {
		panic(fmt.Sprintf("ttrss: no feed id for %s", v))
	}
	return id
}

func (v VirtualFeed) IconToken() string {
	return virtualFeedIcons[v]
}

// UsesAuxCounter reports whether the counters endpoint carries this feed's
// count in auxcounter instead of counter.
func (v VirtualFeed) UsesAuxCounter() bool {
	return v == Starred || v == Published || v == Archived
}

func (v VirtualFeed) String() string {
	if name, ok := virtualFeedNames[v]; ok {
		return name
	}
	return "VirtualFeed(" + strconv.Itoa(int(v)) + ")"
}

// ID is a numeric identifier the API sends either as a JSON number or as a
// numeric string depending on server version.
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse id %q: %w", s, err)
		}
		*id = ID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("parse id %s: %w", data, err)
	}
	*id = ID(n)
	return nil
}

// Category is a category row from getCategories.
type Category struct {
	ID     ID     `json:"id"`
	Title  string `json:"title"`
	Unread int    `json:"unread"`
}

// Feed is a feed row from getFeeds.
type Feed struct {
	ID         ID     `json:"id"`
	Title      string `json:"title"`
	Unread     int    `json:"unread"`
	HasIcon    bool   `json:"has_icon"`
	CategoryID ID     `json:"cat_id"`
}

// Headline is an article summary from getHeadlines, or a full article from
// getArticle when Content is populated.
type Headline struct {
	ID        ID     `json:"id"`
	FeedID    ID     `json:"feed_id"`
	FeedTitle string `json:"feed_title"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Updated   ID     `json:"updated"`
	Unread    bool   `json:"unread"`
	Starred   bool   `json:"marked"`
	Published bool   `json:"published"`
	Link      string `json:"link"`
	Content   string `json:"content"`
}

func (h Headline) UpdatedAt() time.Time {
	if h.Updated == 0 {
		return time.Time{}
	}
	return time.Unix(int64(h.Updated), 0).UTC()
}

type CounterKind string

const (
	CounterFeed     CounterKind = "feed"
	CounterCategory CounterKind = "cat"
	CounterLabel    CounterKind = "label"
)

// CounterEntry is one row of getCounters.
type CounterEntry struct {
	Kind       CounterKind
	ID         int64
	Counter    int
	AuxCounter int
}

type counterRow struct {
	ID         json.RawMessage `json:"id"`
	Kind       string          `json:"kind"`
	Counter    int             `json:"counter"`
	AuxCounter int             `json:"auxcounter"`
}

// decodeCounters keeps the rows that carry a numeric id. Rows without a kind
// are feeds. Non-numeric ids (global totals, labels addressed by name) are
// skipped.
func decodeCounters(rows []counterRow) []CounterEntry {
	out := make([]CounterEntry, 0, len(rows))
	for _, row := range rows {
		var id ID
		if err := id.UnmarshalJSON(row.ID); err != nil || len(row.ID) == 0 {
			continue
		}
		kind := CounterKind(row.Kind)
		if kind == "" {
			kind = CounterFeed
		}
		out = append(out, CounterEntry{
			Kind:       kind,
			ID:         int64(id),
			Counter:    row.Counter,
			AuxCounter: row.AuxCounter,
		})
	}
	return out
}
