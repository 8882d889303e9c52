package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/webitel/im-chat-core/internal/domain/model"
)

// l2Record is the versioned on-disk representation of one cached item.
type l2Record struct {
	Version  int
	Value    any
	Metadata model.CacheMetadata
}

const l2RecordVersion = 1

// l2Store is the content-addressed disk tier: for key K, the file lives at
// <root>/<hh>/<md5(K).hex>.cache where hh is the first two hex chars of the
// hash. Writes are write-temp-then-rename so concurrent writers serialize
// on the filesystem's atomic rename.
type l2Store struct {
	root    string
	mu      sync.Mutex // serializes writes to the same process; cross-process safety comes from rename
	metrics LevelMetrics
}

func newL2Store(root string) *l2Store {
	return &l2Store{root: root}
}

func (s *l2Store) pathFor(key string) string {
	sum := md5.Sum([]byte(key))
	hexSum := hex.EncodeToString(sum[:])
	return filepath.Join(s.root, hexSum[:2], hexSum+".cache")
}

func (s *l2Store) get(key string, now time.Time) (*model.CacheItem, bool) {
	path := s.pathFor(key)
	data, err := os.ReadFile(path)
	if err != nil {
		s.metrics.Misses.Add(1)
		return nil, false
	}

	var rec l2Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.Version != l2RecordVersion {
		// Corrupt records are treated as absent and unlinked.
		_ = os.Remove(path)
		s.metrics.Misses.Add(1)
		return nil, false
	}

	item := &model.CacheItem{Value: rec.Value, Metadata: rec.Metadata}
	if item.Metadata.Expired(now) {
		_ = os.Remove(path)
		s.metrics.Misses.Add(1)
		return nil, false
	}

	s.metrics.Hits.Add(1)
	return item, true
}

func (s *l2Store) set(key string, item *model.CacheItem) error {
	path := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("l2: create shard dir: %w", err)
	}

	rec := l2Record{Version: l2RecordVersion, Value: item.Value, Metadata: item.Metadata}
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("l2: encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := path + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("l2: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("l2: rename temp file: %w", err)
	}

	s.metrics.Count.Add(1)
	s.metrics.Size.Add(int64(item.Metadata.Size))
	return nil
}

func (s *l2Store) remove(key string) bool {
	path := s.pathFor(key)
	if err := os.Remove(path); err != nil {
		return false
	}
	s.metrics.Count.Add(-1)
	return true
}

func (s *l2Store) exists(key string, now time.Time) bool {
	_, ok := s.get(key, now)
	return ok
}

func (s *l2Store) clear() error {
	if s.root == "" {
		return nil
	}
	if err := os.RemoveAll(s.root); err != nil {
		return err
	}
	s.metrics.Count.Store(0)
	s.metrics.Size.Store(0)
	return nil
}
