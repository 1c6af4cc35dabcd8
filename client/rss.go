package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cheerily/cheerily/db"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"
)

// RSSFetcher reads cheers from the public subreddit feed. It needs no access
// token; FetchBatch ignores the one it is given.
type RSSFetcher struct {
	httpClient *http.Client
	feedURL    string
	parser     *gofeed.Parser
}

func NewRSSFetcher(httpClient *http.Client, feedURL string) *RSSFetcher {
	if httpClient == nil {
		httpClient = NewHTTPClient("", DefaultRequestTimeout, DefaultRequestsPerMinute)
	}
	return &RSSFetcher{
		httpClient: httpClient,
		feedURL:    feedURL,
		parser:     gofeed.NewParser(),
	}
}

// FetchBatch downloads and parses the feed. Entries without an image link are skipped.
func (f *RSSFetcher) FetchBatch(ctx context.Context, _ string) ([]db.Cheer, error) {
	req, err := createRequest(ctx, f.feedURL, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	resp, err := sendRequest(f.httpClient, req)
	if err != nil {
		return nil, err
	}
	body, err := readResponseBody(resp, listingBodyLimit(DefaultBatchSize))
	if err != nil {
		return nil, err
	}

	feed, err := f.parser.ParseString(string(body))
	if err != nil {
		log.Error().Err(err).Str("url", f.feedURL).Msg("Failed to parse feed")
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	cheers := make([]db.Cheer, 0, len(feed.Items))
	for _, item := range feed.Items {
		cheer, ok := cheerFromItem(item)
		if !ok {
			log.Debug().Str("title", item.Title).Msg("Skipping feed entry without an image")
			continue
		}
		cheers = append(cheers, cheer)
	}
	log.Info().Int("count", len(cheers)).Int("entries", len(feed.Items)).Msg("Fetched RSS batch")
	return cheers, nil
}

func cheerFromItem(item *gofeed.Item) (db.Cheer, bool) {
	if item == nil || strings.TrimSpace(item.Title) == "" {
		return db.Cheer{}, false
	}
	html := item.Content
	if html == "" {
		html = item.Description
	}
	imageURL := extractImageURL(html)
	if imageURL == "" {
		return db.Cheer{}, false
	}
	return db.Cheer{
		URL:       imageURL,
		Title:     item.Title,
		Permalink: permalinkPath(item.Link),
	}, true
}

// extractImageURL prefers the "[link]" anchor Reddit puts in each entry and
// falls back to the first <img>.
func extractImageURL(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var link string
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) == "[link]" {
			link, _ = s.Attr("href")
			return false
		}
		return true
	})
	if isHTTPURL(link) {
		return link
	}

	if src, ok := doc.Find("img").First().Attr("src"); ok && isHTTPURL(src) {
		return src
	}
	return ""
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// permalinkPath reduces an absolute Reddit link to the path the API returns.
func permalinkPath(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Path == "" {
		return link
	}
	return u.Path
}
