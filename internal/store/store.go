package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrUnavailable is returned by a backend that cannot accept writes
var ErrUnavailable = errors.New("store unavailable")

// Store persists named collections as whole snapshots. A Save replaces the
// previous snapshot for the key, or leaves it untouched on failure.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, payload []byte) error
	// SaveAll writes every snapshot or none of them.
	SaveAll(ctx context.Context, snapshots map[string][]byte) error
	Close() error
}

// LoadInto loads the collection stored under key and decodes it into dest.
// It reports false when no snapshot exists yet.
func LoadInto(ctx context.Context, s Store, key string, dest any) (bool, error) {
	payload, found, err := s.Load(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SaveFrom encodes value and saves it under key
func SaveFrom(ctx context.Context, s Store, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.Save(ctx, key, payload); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Encode marshals several collections for SaveAll
func Encode(values map[string]any) (map[string][]byte, error) {
	snapshots := make(map[string][]byte, len(values))
	for key, value := range values {
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		snapshots[key] = payload
	}
	return snapshots, nil
}

func sortedKeys(snapshots map[string][]byte) []string {
	return slices.Sorted(maps.Keys(snapshots))
}
