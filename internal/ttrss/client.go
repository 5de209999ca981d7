package ttrss

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotLoggedIn is returned when a call needs a session and none is held, or
// when the server rejects the session id.
var ErrNotLoggedIn = errors.New("not logged in")

// AuthError is a login failure.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a response with a non-zero status.
type APIError struct {
	Op   string
	Code string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Code)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotLoggedIn && e.Code == "NOT_LOGGED_IN"
}

const (
	fieldStarred   = 0
	fieldPublished = 1
	fieldUnread    = 2
)

type Client struct {
	apiURL  string
	http    *http.Client
	limiter *rate.Limiter

	mu  sync.RWMutex
	sid string
}

// NewClient builds a client for the JSON API endpoint at apiURL, usually
// https://host/tt-rss/api/. A nil limiter disables rate limiting.
func NewClient(apiURL string, httpClient *http.Client, limiter *rate.Limiter) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		apiURL:  apiURL,
		http:    httpClient,
		limiter: limiter,
	}
}

func (c *Client) Login(ctx context.Context, user, password string) error {
	var out struct {
		SessionID string `json:"session_id"`
	}
	err := c.call(ctx, "login", map[string]any{"user": user, "password": password}, &out)
	if err != nil {
		c.setSession("")
		return &AuthError{Err: err}
	}
	if out.SessionID == "" {
		c.setSession("")
		return &AuthError{Err: errors.New("empty session id")}
	}
	c.setSession(out.SessionID)
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	if !c.LoggedIn() {
		return nil
	}
	err := c.call(ctx, "logout", nil, nil)
	c.setSession("")
	return err
}

func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sid != ""
}

func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := c.call(ctx, "getCategories", map[string]any{"unread_only": false}, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *Client) ListFeeds(ctx context.Context, categoryID int64) ([]Feed, error) {
	var feeds []Feed
	if err := c.call(ctx, "getFeeds", map[string]any{"cat_id": categoryID}, &feeds); err != nil {
		return nil, err
	}
	return feeds, nil
}

func (c *Client) ListHeadlines(ctx context.Context, targetID int64, isCategory bool, limit, offset int) ([]Headline, error) {
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	params := map[string]any{
		"feed_id":      targetID,
		"is_cat":       isCategory,
		"view_mode":    "all_articles",
		"order_by":     "feed_dates",
		"show_content": false,
		"limit":        limit,
		"skip":         offset,
	}
	var headlines []Headline
	if err := c.call(ctx, "getHeadlines", params, &headlines); err != nil {
		return nil, err
	}
	return headlines, nil
}

func (c *Client) GetArticle(ctx context.Context, articleID int64) (Headline, error) {
	var articles []Headline
	if err := c.call(ctx, "getArticle", map[string]any{"article_id": articleID}, &articles); err != nil {
		return Headline{}, err
	}
	if len(articles) == 0 {
		return Headline{}, fmt.Errorf("article %d not found", articleID)
	}
	return articles[0], nil
}

func (c *Client) SetReadFlag(ctx context.Context, articleID int64, read bool) error {
	// The server field is "unread", so read=true clears it.
	return c.updateArticle(ctx, articleID, fieldUnread, !read)
}

func (c *Client) SetStarFlag(ctx context.Context, articleID int64, starred bool) error {
	return c.updateArticle(ctx, articleID, fieldStarred, starred)
}

func (c *Client) SetPublishedFlag(ctx context.Context, articleID int64, published bool) error {
	return c.updateArticle(ctx, articleID, fieldPublished, published)
}

func (c *Client) CatchUp(ctx context.Context, targetID int64, isCategory bool) error {
	return c.call(ctx, "catchupFeed", map[string]any{"feed_id": targetID, "is_cat": isCategory}, nil)
}

func (c *Client) GetCounters(ctx context.Context) ([]CounterEntry, error) {
	var rows []counterRow
	if err := c.call(ctx, "getCounters", map[string]any{"output_mode": "flc"}, &rows); err != nil {
		return nil, err
	}
	return decodeCounters(rows), nil
}

// IconURL points at the instance's public feed icon endpoint, which lives one
// level above the api/ directory.
func (c *Client) IconURL(feedID int64) string {
	base := strings.TrimSuffix(c.apiURL, "/")
	if strings.HasSuffix(base, "/api") {
		base = strings.TrimSuffix(base, "api")
	}
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "public.php?op=feed_icon&id=" + strconv.FormatInt(feedID, 10)
}

func (c *Client) updateArticle(ctx context.Context, articleID int64, field int, set bool) error {
	mode := 0
	if set {
		mode = 1
	}
	params := map[string]any{
		"article_ids": strconv.FormatInt(articleID, 10),
		"mode":        mode,
		"field":       field,
	}
	return c.call(ctx, "updateArticle", params, nil)
}

func (c *Client) setSession(sid string) {
	c.mu.Lock()
	c.sid = sid
	c.mu.Unlock()
}

type envelope struct {
	Seq     int             `json:"seq"`
	Status  int             `json:"status"`
	Content json.RawMessage `json:"content"`
}

func (c *Client) call(ctx context.Context, op string, params map[string]any, out any) error {
	payload := make(map[string]any, len(params)+2)
	for k, v := range params {
		payload[k] = v
	}
	payload["op"] = op
	if op != "login" {
		c.mu.RLock()
		sid := c.sid
		c.mu.RUnlock()
		if sid == "" {
			return fmt.Errorf("%s: %w", op, ErrNotLoggedIn)
		}
		payload["sid"] = sid
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s failed with status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	if env.Status != 0 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(env.Content, &apiErr)
		if apiErr.Error == "" {
			apiErr.Error = "UNKNOWN_ERROR"
		}
		return &APIError{Op: op, Code: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Content, out); err != nil {
		return fmt.Errorf("decode %s content: %w", op, err)
	}
	return nil
}
