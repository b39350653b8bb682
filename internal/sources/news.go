package sources

import (
	"bytes"
	"context"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/models"
)

const sourceNews = "news"

// EntriesPerFeed caps how many items are read from each feed.
const EntriesPerFeed = 8

// Feed is one RSS source.
type Feed struct {
	Name string
	URL  string
}

// DefaultFeeds are the Yahoo and MoneyDJ stock and industry feeds.
func DefaultFeeds() []Feed {
	return []Feed{
		{Name: "Yahoo個股", URL: "https://tw.stock.yahoo.com/rss?category=tw-individual"},
		{Name: "Yahoo產業", URL: "https://tw.stock.yahoo.com/rss?category=tw-industry"},
		{Name: "MoneyDJ個股", URL: "https://www.moneydj.com/KMDJ/RssCenter.aspx?svc=NW&a=X0100000"},
		{Name: "MoneyDJ產業", URL: "https://www.moneydj.com/KMDJ/RssCenter.aspx?svc=NW&a=X0200000"},
	}
}

// News aggregates headlines from several feeds.
type News struct {
	client *Client
	feeds  []Feed
	logger zerolog.Logger
}

// NewNews creates a reader. Nil feeds uses DefaultFeeds.
func NewNews(client *Client, feeds []Feed, logger zerolog.Logger) *News {
	if feeds == nil {
		feeds = DefaultFeeds()
	}
	return &News{client: client, feeds: feeds, logger: logger}
}

// Headlines reads every feed in order, keeps the first EntriesPerFeed items of
// each and drops repeated titles. Failing feeds are skipped.
func (n *News) Headlines(ctx context.Context) ([]models.NewsItem, error) {
	parser := gofeed.NewParser()
	seen := make(map[string]bool)
	var items []models.NewsItem
	failures := 0

	for _, f := range n.feeds {
		body, err := n.client.Get(ctx, sourceNews, f.URL, nil)
		if err != nil {
			failures++
			n.logger.Warn().Err(err).Str("feed", f.Name).Msg("feed unavailable")
			continue
		}
		feed, err := parser.Parse(bytes.NewReader(body))
		if err != nil {
			failures++
			n.logger.Warn().Err(err).Str("feed", f.Name).Msg("feed unreadable")
			continue
		}

		for i, entry := range feed.Items {
			if i >= EntriesPerFeed {
				break
			}
			title := strings.TrimSpace(entry.Title)
			if title == "" || seen[title] {
				continue
			}
			seen[title] = true
			item := models.NewsItem{Title: title, Link: entry.Link, Source: f.Name}
			if entry.PublishedParsed != nil {
				item.Published = *entry.PublishedParsed
			}
			items = append(items, item)
		}
	}

	if len(n.feeds) > 0 && failures == len(n.feeds) {
		return nil, apperrors.NewDataError(sourceNews, "", "all feeds failed", apperrors.ErrSourceUnavailable)
	}
	return items, nil
}
