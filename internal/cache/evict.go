package cache

import "fmt"

// Locker is implemented by stores that can serialize eviction across
// processes sharing the same storage.
type Locker interface {
	Lock() (unlock func(), err error)
}

// EnforceCapacity deletes least recently used entries until store holds at
// most maxEntries. It returns the evicted keys, oldest first. A negative
// maxEntries is treated as zero, which empties the store.
func EnforceCapacity(store Store, maxEntries int) ([]Key, error) {
	if maxEntries < 0 {
		maxEntries = 0
	}
	if l, ok := store.(Locker); ok {
		unlock, err := l.Lock()
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	keys, err := store.ListByRecency()
	if err != nil {
		return nil, fmt.Errorf("listing cache entries: %w", err)
	}
	excess := len(keys) - maxEntries
	if excess <= 0 {
		return nil, nil
	}

	evicted := make([]Key, 0, excess)
	for _, key := range keys[:excess] {
		if err := store.Delete(key); err != nil {
			return evicted, fmt.Errorf("evicting %s: %w", key, err)
		}
		evicted = append(evicted, key)
	}
	return evicted, nil
}

var _ Locker = (*DiskStore)(nil)
