// Package watchlist reads a local file of tweet permalinks dropped in by the
// operator, one per line, with an optional memo after the URL. Lines starting
// with # are comments.
package watchlist

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/normalize"
	"github.com/xpost-agent/internal/source"
	"github.com/xpost-agent/pkg/logger"
)

// Source implements source.Provider for the watchlist file
type Source struct {
	path string
	log  *logger.Logger
}

// New creates a new watchlist source
func New(path string, log *logger.Logger) *Source {
	return &Source{
		path: path,
		log:  log.WithSource("watchlist", path),
	}
}

// Name returns the source name
func (s *Source) Name() string {
	return "watchlist"
}

// Type returns "watchlist"
func (s *Source) Type() string {
	return "watchlist"
}

// Fetch reads the file and maps each URL line onto a candidate record.
// A missing file is not an error, the watchlist is optional.
func (s *Source) Fetch(ctx context.Context) ([]models.CandidateRecord, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open watchlist %s: %w", s.path, err)
	}
	defer file.Close()

	var candidates []models.CandidateRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		url, memo := line, ""
		if idx := strings.IndexAny(line, " \t"); idx > 0 {
			url = line[:idx]
			memo = strings.TrimSpace(line[idx:])
		}

		candidate, err := normalize.FromURL(url, memo)
		if err != nil {
			s.log.Warn().Str("line", line).Msg("Skipping non-tweet watchlist line")
			continue
		}
		candidates = append(candidates, candidate)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read watchlist %s: %w", s.path, err)
	}

	s.log.Info().Int("count", len(candidates)).Msg("Read watchlist candidates")
	return candidates, nil
}

// HealthCheck verifies the watchlist file is readable when present
func (s *Source) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Ensure Source implements source.Provider
var _ source.Provider = (*Source)(nil)
