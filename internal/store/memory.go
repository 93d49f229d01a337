package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Snapshot is the full contents of a seed file.
type Snapshot struct {
	Users      []User      `json:"users" yaml:"users"`
	Doors      []Door      `json:"doors" yaml:"doors"`
	Devices    []Device    `json:"devices" yaml:"devices"`
	AccessLogs []AccessLog `json:"access_logs" yaml:"access_logs"`
}

// LoadSnapshot parses a JSON or YAML seed file. Access log entries without
// an id get a random one.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var snap Snapshot
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &snap)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &snap)
	default:
		return nil, fmt.Errorf("unsupported seed extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	for i := range snap.AccessLogs {
		if snap.AccessLogs[i].ID == "" {
			snap.AccessLogs[i].ID = uuid.NewString()
		}
	}
	return &snap, nil
}

type MemoryStore struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewMemoryStore(snap *Snapshot) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(snap)
	return s
}

// Replace swaps in a new snapshot. Readers see either the old or the new
// data, never a mix.
func (s *MemoryStore) Replace(snap *Snapshot) {
	var next Snapshot
	if snap != nil {
		next = Snapshot{
			Users:      cloneSlice(snap.Users),
			Doors:      cloneSlice(snap.Doors),
			Devices:    cloneSlice(snap.Devices),
			AccessLogs: cloneSlice(snap.AccessLogs),
		}
	}
	sort.Slice(next.Users, func(i, j int) bool { return next.Users[i].ID < next.Users[j].ID })
	sort.Slice(next.Doors, func(i, j int) bool { return next.Doors[i].ID < next.Doors[j].ID })
	sort.Slice(next.Devices, func(i, j int) bool { return next.Devices[i].ID < next.Devices[j].ID })
	sort.SliceStable(next.AccessLogs, func(i, j int) bool {
		return next.AccessLogs[i].OccurredAt.After(next.AccessLogs[j].OccurredAt)
	})

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()
}

func (s *MemoryStore) Reload(path string) error {
	snap, err := LoadSnapshot(path)
	if err != nil {
		return err
	}
	s.Replace(snap)
	return nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.snap.Users), nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.snap.Users), func(i int) bool { return s.snap.Users[i].ID >= id })
	if i < len(s.snap.Users) && s.snap.Users[i].ID == id {
		return s.snap.Users[i], nil
	}
	return User{}, fmt.Errorf("user %q: %w", id, ErrNotFound)
}

func (s *MemoryStore) ListDoors(ctx context.Context) ([]Door, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.snap.Doors), nil
}

func (s *MemoryStore) ListDevices(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.snap.Devices), nil
}

func (s *MemoryStore) ListAccessLogs(ctx context.Context, since time.Time) ([]AccessLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Logs are sorted newest first, so everything before the cut is in range.
	cut := sort.Search(len(s.snap.AccessLogs), func(i int) bool {
		return s.snap.AccessLogs[i].OccurredAt.Before(since)
	})
	return cloneSlice(s.snap.AccessLogs[:cut]), nil
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
