// Package cache provides a bounded, process-wide store for previously
// extracted attachment payloads, avoiding repeat fetch/decode cycles on
// repeat downloads.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Key addresses one attachment. Filename must already be sanitized so wire
// data never reaches the key space.
type Key struct {
	MessageID string
	Filename  string
}

// Entry holds the decoded payload together with the MIME type reported by the
// originating message part.
type Entry struct {
	Data     []byte
	MIMEType string
}

// LRU is a count-bounded, thread-safe attachment cache. Entry content is
// deterministic for a key, so eviction only costs a refetch and last-write-wins
// is acceptable under concurrent puts.
type LRU struct {
	entries *lru.Cache[Key, Entry]
}

func NewLRU(size int) (*LRU, error) {
	entries, err := lru.New[Key, Entry](size)
	if err != nil {
		return nil, err
	}
	return &LRU{entries: entries}, nil
}

// Get returns the stored entry for key, if present.
func (c *LRU) Get(key Key) (Entry, bool) {
	return c.entries.Get(key)
}

// Put stores entry, overwriting any prior entry for that key.
func (c *LRU) Put(key Key, entry Entry) {
	c.entries.Add(key, entry)
}
