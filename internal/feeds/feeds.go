// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package feeds fetches news headlines from RSS and Atom feeds to use as
// conversation topics. Parsed feeds are cached in memory for a TTL.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/expression-learner/internal/httputil"
	"github.com/pdiddy/expression-learner/pkg/types"
)

// DefaultSources are used when the configuration names no feeds.
var DefaultSources = map[string]string{
	"BBC":        "http://feeds.bbc.co.uk/news/rss.xml",
	"NYT":        "https://feeds.nytimes.com/services/xml/rss/nyt/World.xml",
	"TechCrunch": "http://feeds.techcrunch.com/techcrunch/feed",
}

const (
	defaultCacheTTL   = 5 * time.Minute
	defaultLimit      = 10
	defaultTimeout    = 30 * time.Second
	defaultUserAgent  = "expression-learner/0.1"
	defaultFetchRate  = 2
	unknownSourceName = "Unknown"
)

var (
	ErrEmptyURL     = errors.New("feed URL cannot be empty")
	ErrInvalidLimit = errors.New("limit must be at least 1")
)

// Client lists topics from configured news feeds.
type Client struct {
	// HTTP is the client used for feed requests.
	HTTP *http.Client

	sources    map[string]string
	limit      int
	userAgent  string
	maxRetries int
	limiter    *rate.Limiter
	cache      *cache
	logger     *slog.Logger
}

// NewClient returns a Client for cfg. Zero config fields take defaults.
func NewClient(cfg types.FeedConfig, logger *slog.Logger) *Client {
	sources := cfg.Sources
	if len(sources) == 0 {
		sources = DefaultSources
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	perSecond := cfg.FetchesPerSecond
	if perSecond <= 0 {
		perSecond = defaultFetchRate
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		HTTP:       &http.Client{Timeout: timeout},
		sources:    sources,
		limit:      limit,
		userAgent:  ua,
		maxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		cache:      newCache(ttl),
		logger:     logger,
	}
}

// DefaultLimit returns the configured per-feed topic limit.
func (c *Client) DefaultLimit() int { return c.limit }

// Sources returns the configured source names in sorted order.
func (c *Client) Sources() []string {
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListTopics returns up to limit headlines from the feed at feedURL. Entries
// without a headline or link are skipped. The full parsed feed is cached,
// so later calls with a larger limit are served from memory too.
func (c *Client) ListTopics(ctx context.Context, feedURL string, limit int) ([]types.Topic, error) {
	if feedURL == "" {
		return nil, ErrEmptyURL
	}
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	if topics, ok := c.cache.get(feedURL); ok {
		return head(topics, limit), nil
	}

	topics, summaries, err := c.fetch(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch RSS feed from %s: %w", feedURL, err)
	}

	c.cache.set(feedURL, topics, summaries)
	c.logger.DebugContext(ctx, "feed fetched", "url", feedURL, "topics", len(topics))
	return head(topics, limit), nil
}

// TopicsFromSource lists topics from a configured source by name.
func (c *Client) TopicsFromSource(ctx context.Context, source string, limit int) ([]types.Topic, error) {
	feedURL, ok := c.sources[source]
	if !ok {
		return nil, fmt.Errorf("source %q not configured; available: %s", source, strings.Join(c.Sources(), ", "))
	}
	return c.ListTopics(ctx, feedURL, limit)
}

// TopicsFromSources lists topics from each named source, or from every
// configured source when sources is nil. A failing source is logged and
// maps to an empty list so one broken feed does not hide the others.
func (c *Client) TopicsFromSources(ctx context.Context, sources []string, limitPerSource int) map[string][]types.Topic {
	if sources == nil {
		sources = c.Sources()
	}

	results := make(map[string][]types.Topic, len(sources))
	for _, source := range sources {
		topics, err := c.TopicsFromSource(ctx, source, limitPerSource)
		if err != nil {
			c.logger.WarnContext(ctx, "listing topics failed", "source", source, "error", err)
			results[source] = []types.Topic{}
			continue
		}
		results[source] = topics
	}
	return results
}

// ArticleSnippet returns the feed summary for an article URL that appears
// in a cached, unexpired feed, or "" when none is known.
func (c *Client) ArticleSnippet(url string) string {
	if url == "" {
		return ""
	}
	s, _ := c.cache.summary(url)
	return s
}

// ClearCache drops every cached feed.
func (c *Client) ClearCache() { c.cache.clear() }

// CacheStats reports cache occupancy.
func (c *Client) CacheStats() CacheStats { return c.cache.stats() }

func (c *Client) fetch(ctx context.Context, feedURL string) ([]types.Topic, map[string]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := httputil.DoWithRetry(ctx, c.HTTP, req, c.maxRetries)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	title, entries, err := parseFeed(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	source := title
	if source == "" || source == unknownSourceName {
		source = c.sourceForURL(feedURL)
	}

	topics := []types.Topic{}
	summaries := make(map[string]string)
	for _, e := range entries {
		if e.headline == "" || e.link == "" {
			continue
		}
		topics = append(topics, types.Topic{Headline: e.headline, Source: source, URL: e.link})
		if e.summary != "" {
			summaries[e.link] = e.summary
		}
	}
	return topics, summaries, nil
}

// sourceForURL names a feed by its configured source, or "Unknown".
func (c *Client) sourceForURL(feedURL string) string {
	for name, u := range c.sources {
		if u == feedURL {
			return name
		}
	}
	return unknownSourceName
}

func head(topics []types.Topic, limit int) []types.Topic {
	if len(topics) > limit {
		return topics[:limit]
	}
	return topics
}
