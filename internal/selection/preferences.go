// Package selection scores collected candidates against operator preferences
// (topic clusters, keyword weights, account overrides, weekly focus) without
// touching the LLM. Preferences live in a JSON file the control plane syncs.
package selection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/pkg/logger"
)

const updatedAtLayout = time.RFC3339

// PreferenceStore loads and persists the preference document
type PreferenceStore struct {
	path string
	log  *logger.Logger
	mu   sync.Mutex
}

func NewPreferenceStore(path string, log *logger.Logger) *PreferenceStore {
	return &PreferenceStore{path: path, log: log.WithComponent("preferences")}
}

// Load reads the preference file, falling back to defaults when it is
// missing or unreadable.
func (s *PreferenceStore) Load() *models.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("Failed to read preferences, using defaults")
		}
		return models.DefaultPreferences()
	}

	var prefs models.Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("Malformed preferences file, using defaults")
		return models.DefaultPreferences()
	}
	if prefs.KeywordWeights == nil {
		prefs.KeywordWeights = map[string]float64{}
	}
	if prefs.TopicClusters == nil {
		prefs.TopicClusters = map[string][]string{}
	}
	return &prefs
}

// Save writes the preference document, stamping UpdatedAt
func (s *PreferenceStore) Save(prefs *models.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs.UpdatedAt = time.Now().Format(updatedAtLayout)
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	s.log.Debug().Str("path", s.path).Int("version", prefs.Version).Msg("Preferences saved")
	return nil
}

// Path returns the backing file location
func (s *PreferenceStore) Path() string {
	return s.path
}
