// Package elostore persists team strength ratings as a JSON file. The file
// is small (one row per team) so every update rewrites it atomically.
package elostore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/tahminlab/matchcast/internal/domain/team"
	"github.com/tahminlab/matchcast/internal/platform/logging"
)

type Store struct {
	path   string
	logger *logging.Logger

	mu      sync.RWMutex
	ratings map[int64]team.Rating

	now func() time.Time
}

var _ team.RatingStore = (*Store)(nil)

// Open loads ratings from path; a missing file starts an empty table.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Default()
	}

	s := &Store{
		path:    path,
		logger:  logger,
		ratings: make(map[int64]team.Rating),
		now:     time.Now,
	}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read ratings file: %w", err)
	}

	var onDisk map[string]team.Rating
	if err := sonic.Unmarshal(raw, &onDisk); err != nil {
		return nil, fmt.Errorf("decode ratings file: %w", err)
	}
	for key, rating := range onDisk {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			logger.Warn("skip malformed team id in ratings file", "key", key)
			continue
		}
		s.ratings[id] = rating
	}

	return s, nil
}

// Rating returns the stored rating, or the baseline for unknown teams.
func (s *Store) Rating(_ context.Context, teamID int64) (team.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rating, ok := s.ratings[teamID]; ok {
		return rating, nil
	}
	return team.Rating{Rating: team.DefaultRating}, nil
}

// ApplyResult updates both teams from a finished match and flushes to disk.
func (s *Store) ApplyResult(_ context.Context, homeID, awayID int64, goalsHome, goalsAway int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	home := s.ratings[homeID]
	if home.Rating == 0 {
		home.Rating = team.DefaultRating
	}
	away := s.ratings[awayID]
	if away.Rating == 0 {
		away.Rating = team.DefaultRating
	}

	newHome, newAway := team.UpdateRatings(home.Rating, away.Rating, goalsHome, goalsAway)
	now := s.now().UTC()
	s.ratings[homeID] = team.Rating{Rating: newHome, LastUpdated: now}
	s.ratings[awayID] = team.Rating{Rating: newAway, LastUpdated: now}

	return s.flushLocked()
}

// Snapshot copies all known ratings.
func (s *Store) Snapshot(_ context.Context) (map[int64]team.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]team.Rating, len(s.ratings))
	for id, rating := range s.ratings {
		out[id] = rating
	}
	return out, nil
}

func (s *Store) flushLocked() error {
	onDisk := make(map[string]team.Rating, len(s.ratings))
	for id, rating := range s.ratings {
		onDisk[strconv.FormatInt(id, 10)] = rating
	}

	raw, err := sonic.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ratings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ratings-*.json")
	if err != nil {
		return fmt.Errorf("create ratings temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write ratings temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close ratings temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace ratings file: %w", err)
	}

	return nil
}
