package rss

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/xpost-agent/internal/config"
	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/normalize"
	"github.com/xpost-agent/internal/source"
	"github.com/xpost-agent/pkg/logger"
)

// maxItemAge drops stale feed entries before normalization
const maxItemAge = 7 * 24 * time.Hour

var linkPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// Source implements source.Provider for RSS feeds that surface tweet
// permalinks (curated link feeds, nitter-style mirrors).
type Source struct {
	name   string
	url    string
	parser *gofeed.Parser
	log    *logger.Logger
}

// New creates a new RSS source for a single feed
func New(feed config.RSSFeed, log *logger.Logger) *Source {
	return &Source{
		name:   feed.Name,
		url:    feed.URL,
		parser: gofeed.NewParser(),
		log:    log.WithSource("rss", feed.Name),
	}
}

// NewMultiple creates RSS sources for every configured feed
func NewMultiple(feeds []config.RSSFeed, log *logger.Logger) []*Source {
	sources := make([]*Source, 0, len(feeds))
	for _, feed := range feeds {
		sources = append(sources, New(feed, log))
	}
	return sources
}

// Name returns the source name
func (s *Source) Name() string {
	return s.name
}

// Type returns "rss"
func (s *Source) Type() string {
	return "rss"
}

// Fetch parses the feed and maps every item containing a tweet permalink
// onto a candidate record. Items without one are skipped.
func (s *Source) Fetch(ctx context.Context) ([]models.CandidateRecord, error) {
	s.log.Debug().Str("url", s.url).Msg("Fetching RSS feed")

	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed %s: %w", s.name, err)
	}

	candidates := make([]models.CandidateRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.PublishedParsed != nil && time.Since(*item.PublishedParsed) > maxItemAge {
			continue
		}

		tweetURL := firstTweetURL(item)
		if tweetURL == "" {
			continue
		}

		candidate, err := normalize.FromURL(tweetURL, cleanText(item.Title))
		if err != nil {
			s.log.Warn().Err(err).Str("link", tweetURL).Msg("Unusable feed item")
			continue
		}
		candidate.Source = models.SourceRSS
		candidates = append(candidates, candidate)
	}

	s.log.Info().
		Int("count", len(candidates)).
		Str("feed", s.name).
		Msg("Fetched RSS candidates")

	return candidates, nil
}

// HealthCheck verifies the RSS feed is accessible
func (s *Source) HealthCheck(ctx context.Context) error {
	_, err := s.parser.ParseURLWithContext(s.url, ctx)
	return err
}

// firstTweetURL returns the first tweet permalink found in the item's link
// or body text.
func firstTweetURL(item *gofeed.Item) string {
	if normalize.IsTweetURL(item.Link) {
		return item.Link
	}
	for _, text := range []string{item.Description, item.Content} {
		for _, link := range linkPattern.FindAllString(text, -1) {
			if normalize.IsTweetURL(link) {
				return link
			}
		}
	}
	return ""
}

// cleanText removes HTML tags and extra whitespace
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "<br>", " ")
	text = strings.ReplaceAll(text, "<br/>", " ")
	text = strings.ReplaceAll(text, "<br />", " ")
	text = strings.ReplaceAll(text, "</p>", " ")
	text = strings.ReplaceAll(text, "<p>", "")

	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
		} else if r == '>' {
			inTag = false
		} else if !inTag {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(strings.Join(strings.Fields(result.String()), " "))
}

// Ensure Source implements source.Provider
var _ source.Provider = (*Source)(nil)
