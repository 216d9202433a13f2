package service

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// offsetCache persists index -> file offset mappings per queue file so a
// reopened queue can serve random access without a full rescan. Entries are
// keyed by file identity (path, size) so a rolled or rewritten file never
// serves stale offsets.
type offsetCache struct {
	db *pebble.DB
}

func openOffsetCache(dir string) (*offsetCache, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("service: open offset cache: %w", err)
	}
	return &offsetCache{db: db}, nil
}

func cacheKey(path string, size, index int64) []byte {
	key := fmt.Sprintf("offset|%s|%d|", path, size)
	return binary.BigEndian.AppendUint64([]byte(key), uint64(index))
}

func (c *offsetCache) put(path string, size, index, offset int64) error {
	value := binary.LittleEndian.AppendUint64(nil, uint64(offset))
	return c.db.Set(cacheKey(path, size, index), value, pebble.NoSync)
}

func (c *offsetCache) get(path string, size, index int64) (int64, bool) {
	value, closer, err := c.db.Get(cacheKey(path, size, index))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false
	}
	if err != nil {
		return 0, false
	}
	defer closer.Close()
	if len(value) != 8 {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(value)), true
}

func (c *offsetCache) flush() error {
	return c.db.Flush()
}

func (c *offsetCache) close() error {
	return c.db.Close()
}
