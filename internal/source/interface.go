package source

import (
	"context"

	"github.com/xpost-agent/internal/models"
)

// Provider defines the interface for candidate discovery sources that feed
// the queue alongside the search API.
type Provider interface {
	// Name returns the unique name of this source
	Name() string

	// Type returns the source type (rss, watchlist)
	Type() string

	// Fetch retrieves candidate records from the source
	Fetch(ctx context.Context) ([]models.CandidateRecord, error)

	// HealthCheck verifies the source is accessible
	HealthCheck(ctx context.Context) error
}

// Manager manages multiple candidate sources
type Manager struct {
	sources []Provider
}

// NewManager creates a new source manager
func NewManager() *Manager {
	return &Manager{
		sources: make([]Provider, 0),
	}
}

// Register adds a source to the manager
func (m *Manager) Register(source Provider) {
	m.sources = append(m.sources, source)
}

// GetSources returns all registered sources
func (m *Manager) GetSources() []Provider {
	return m.sources
}

// GetSourceByName returns a source by name
func (m *Manager) GetSourceByName(name string) Provider {
	for _, s := range m.sources {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// FetchAll fetches candidates from all sources concurrently and dedupes by
// tweet ID, keeping the first occurrence.
func (m *Manager) FetchAll(ctx context.Context) ([]models.CandidateRecord, []error) {
	type result struct {
		candidates []models.CandidateRecord
		err        error
	}

	results := make(chan result, len(m.sources))

	for _, source := range m.sources {
		go func(s Provider) {
			candidates, err := s.Fetch(ctx)
			results <- result{candidates: candidates, err: err}
		}(source)
	}

	seen := make(map[string]bool)
	var all []models.CandidateRecord
	var errors []error

	for range m.sources {
		r := <-results
		if r.err != nil {
			errors = append(errors, r.err)
			continue
		}
		for _, c := range r.candidates {
			if seen[c.TweetID] {
				continue
			}
			seen[c.TweetID] = true
			all = append(all, c)
		}
	}

	return all, errors
}
