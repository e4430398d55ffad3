package cache

import (
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	entryExt      = ".json"
	tempExt       = ".tmp"
	lockName      = ".lock"
	formatVersion = 2

	// encodingBase64 marks records whose chunks are base64 encoded because at
	// least one of them is not valid UTF-8.
	encodingBase64 = "base64"

	// StaleTempAge is how old a temp artifact must be before it is swept.
	// Younger temp files may belong to a writer in another process.
	StaleTempAge = 10 * time.Minute
)

// Sentinel errors for store operations.
var (
	ErrNotFound   = errors.New("cache: entry not found")
	ErrCorrupt    = errors.New("cache: entry is corrupt")
	ErrWrite      = errors.New("cache: write failed")
	ErrInvalidKey = errors.New("cache: key is invalid")
)

// Store persists ordered chunk sequences by key.
//
// Contract:
//   - Read returns the chunks exactly as written, or an error; never a partial entry.
//   - Write publishes atomically and replaces any previous entry.
//   - Delete is idempotent.
//   - ListByRecency returns keys least recently used first.
type Store interface {
	Has(key Key) bool
	Read(key Key) ([]string, error)
	Write(key Key, chunks []string) error
	Delete(key Key) error
	ListByRecency() ([]Key, error)
}

// record is the on-disk form of an entry.
type record struct {
	Version    int      `json:"version"`
	Key        string   `json:"key"`
	Encoding   string   `json:"encoding,omitempty"`
	Chunks     []string `json:"chunks"`
	CreatedAt  int64    `json:"created_at"`
	AccessedAt int64    `json:"accessed_at"`
}

// DiskStore keeps one JSON file per entry in a directory. Each record
// carries its own insertion and last-access times in nanoseconds, so
// recency does not depend on the filesystem's timestamp resolution.
type DiskStore struct {
	dir    string
	now    func() time.Time
	logger zerolog.Logger
}

// StoreOption configures a DiskStore.
type StoreOption func(*DiskStore)

// WithClock sets the clock used for access and insertion times.
func WithClock(now func() time.Time) StoreOption {
	return func(s *DiskStore) { s.now = now }
}

// WithStoreLogger sets the logger for store diagnostics.
func WithStoreLogger(l zerolog.Logger) StoreOption {
	return func(s *DiskStore) { s.logger = l }
}

// Open opens (creating if needed) a store in dir. If dir is empty, the
// platform cache directory is used. Stale temp artifacts are removed.
func Open(dir string, opts ...StoreOption) (*DiskStore, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	s := &DiskStore{
		dir:    dir,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if n, err := s.SweepTemp(); err != nil {
		s.logger.Warn().Err(err).Str("dir", dir).Msg("sweeping stale cache temp files")
	} else if n > 0 {
		s.logger.Debug().Int("removed", n).Msg("swept stale cache temp files")
	}
	return s, nil
}

// Dir returns the cache directory path.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Has reports whether a published entry exists for key.
func (s *DiskStore) Has(key Key) bool {
	if validateKey(key) != nil {
		return false
	}
	info, err := os.Stat(s.entryPath(key))
	return err == nil && info.Mode().IsRegular()
}

// Read returns the chunks stored under key and marks the entry as used.
//
// The access stamp is republished under the store lock, so an entry evicted
// concurrently is never brought back.
func (s *DiskStore) Read(key Key) ([]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	unlock, err := s.Lock()
	locked := err == nil
	if locked {
		defer unlock()
	} else {
		s.logger.Debug().Err(err).Msg("locking cache for access update")
	}

	rec, err := s.readRecord(key)
	if err != nil {
		return nil, err
	}
	chunks, err := decodeChunks(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, key, err)
	}

	if locked {
		rec.AccessedAt = s.now().UnixNano()
		if err := s.publish(key, rec); err != nil {
			s.logger.Debug().Err(err).Str("key", string(key)).Msg("updating cache entry access time")
		}
	}
	return chunks, nil
}

func (s *DiskStore) readRecord(key Key) (record, error) {
	data, err := os.ReadFile(s.entryPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return record{}, ErrNotFound
		}
		return record{}, fmt.Errorf("%w: %s: %w", ErrCorrupt, key, err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return record{}, fmt.Errorf("%w: %s: %w", ErrCorrupt, key, err)
	}
	if rec.Key != string(key) {
		return record{}, fmt.Errorf("%w: %s: holds entry for %q", ErrCorrupt, key, rec.Key)
	}
	return rec, nil
}

// Write stores chunks under key. The record is written to a temp file in the
// cache directory, synced, and renamed into place, so readers never observe a
// partial entry.
func (s *DiskStore) Write(key Key, chunks []string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	now := s.now().UnixNano()
	rec := record{
		Version:    formatVersion,
		Key:        string(key),
		CreatedAt:  now,
		AccessedAt: now,
	}
	rec.Chunks, rec.Encoding = encodeChunks(chunks)
	return s.publish(key, rec)
}

// publish writes rec to a temp file, syncs it and renames it over the entry.
func (s *DiskStore) publish(key Key, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrWrite, key, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating cache directory: %w", ErrWrite, err)
	}

	tmp, err := os.CreateTemp(s.dir, string(key)+".*"+tempExt)
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrWrite, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: writing %s: %w", ErrWrite, key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: syncing %s: %w", ErrWrite, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: closing %s: %w", ErrWrite, key, err)
	}
	if err := os.Rename(tmpPath, s.entryPath(key)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: publishing %s: %w", ErrWrite, key, err)
	}
	return nil
}

// Delete removes the entry for key. Missing entries are not an error.
func (s *DiskStore) Delete(key Key) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.entryPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting cache entry %s: %w", key, err)
	}
	return nil
}

// ListByRecency returns entry keys ordered from least to most recently used.
// Entries with equal access times are ordered by insertion time, then by key.
// Unreadable entries sort first.
func (s *DiskStore) ListByRecency() ([]Key, error) {
	entries, err := s.scan()
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b entryInfo) int {
		if c := cmp.Compare(a.accessed, b.accessed); c != 0 {
			return c
		}
		if c := cmp.Compare(a.created, b.created); c != 0 {
			return c
		}
		return strings.Compare(string(a.key), string(b.key))
	})

	keys := make([]Key, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys, nil
}

// Len returns the number of published entries.
func (s *DiskStore) Len() (int, error) {
	entries, err := s.scan()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Clear removes all entries and temp artifacts. It returns the number of
// entries removed.
func (s *DiskStore) Clear(ctx context.Context) (int, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	removed := make([]bool, len(dirents))
	for i, e := range dirents {
		name := e.Name()
		isEntry := filepath.Ext(name) == entryExt
		if !isEntry && filepath.Ext(name) != tempExt {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := os.Remove(filepath.Join(s.dir, name))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("removing %s: %w", name, err)
			}
			removed[i] = err == nil && isEntry
			return nil
		})
	}
	err = g.Wait()

	var n int
	for _, ok := range removed {
		if ok {
			n++
		}
	}
	return n, err
}

// SweepTemp removes temp artifacts older than StaleTempAge and returns how
// many were removed.
func (s *DiskStore) SweepTemp() (int, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}
	var removed int
	now := time.Now()
	for _, e := range dirents {
		if filepath.Ext(e.Name()) != tempExt {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < StaleTempAge {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Stats returns cache statistics.
type Stats struct {
	Dir        string    `json:"dir"`
	Entries    int       `json:"entries"`
	TotalBytes int64     `json:"totalBytes"`
	TempFiles  int       `json:"tempFiles"`
	Oldest     time.Time `json:"oldest,omitzero"`
	Newest     time.Time `json:"newest,omitzero"`
}

// GetStats returns information about the cache.
func (s *DiskStore) GetStats() (Stats, error) {
	stats := Stats{Dir: s.dir}
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("reading cache directory: %w", err)
	}
	for _, e := range dirents {
		if filepath.Ext(e.Name()) == tempExt {
			stats.TempFiles++
		}
	}

	entries, err := s.scan()
	if err != nil {
		return stats, err
	}
	for _, e := range entries {
		stats.Entries++
		stats.TotalBytes += e.size
		if e.accessed == 0 {
			continue
		}
		last := time.Unix(0, e.accessed)
		if stats.Oldest.IsZero() || last.Before(stats.Oldest) {
			stats.Oldest = last
		}
		if last.After(stats.Newest) {
			stats.Newest = last
		}
	}
	return stats, nil
}

type entryInfo struct {
	key      Key
	size     int64
	accessed int64
	created  int64
}

// scan lists published entries with their recorded times. Temp artifacts and
// foreign files are skipped; entries that cannot be decoded have zero times.
func (s *DiskStore) scan() ([]entryInfo, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}
	entries := make([]entryInfo, 0, len(dirents))
	for _, e := range dirents {
		name := e.Name()
		if !e.Type().IsRegular() || filepath.Ext(name) != entryExt {
			continue
		}
		key := Key(strings.TrimSuffix(name, entryExt))
		if validateKey(key) != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			// Removed by another process since ReadDir.
			continue
		}
		info := entryInfo{key: key, size: int64(len(data))}
		if rec, err := decodeRecord(data); err == nil {
			info.accessed = rec.AccessedAt
			info.created = rec.CreatedAt
		}
		entries = append(entries, info)
	}
	return entries, nil
}

func decodeRecord(data []byte) (record, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, err
	}
	if rec.Version != formatVersion {
		return record{}, fmt.Errorf("unsupported format version %d", rec.Version)
	}
	if rec.Chunks == nil {
		return record{}, errors.New("missing chunks")
	}
	return rec, nil
}

// encodeChunks returns chunks as stored on disk. JSON strings cannot carry
// invalid UTF-8, so such sequences are stored base64 encoded.
func encodeChunks(chunks []string) ([]string, string) {
	if chunks == nil {
		return []string{}, ""
	}
	valid := true
	for _, c := range chunks {
		if !utf8.ValidString(c) {
			valid = false
			break
		}
	}
	if valid {
		return chunks, ""
	}
	encoded := make([]string, len(chunks))
	for i, c := range chunks {
		encoded[i] = base64.StdEncoding.EncodeToString([]byte(c))
	}
	return encoded, encodingBase64
}

func decodeChunks(rec record) ([]string, error) {
	switch rec.Encoding {
	case "":
		return rec.Chunks, nil
	case encodingBase64:
		chunks := make([]string, len(rec.Chunks))
		for i, c := range rec.Chunks {
			b, err := base64.StdEncoding.DecodeString(c)
			if err != nil {
				return nil, fmt.Errorf("chunk %d: %w", i, err)
			}
			chunks[i] = string(b)
		}
		return chunks, nil
	default:
		return nil, fmt.Errorf("unknown chunk encoding %q", rec.Encoding)
	}
}

func (s *DiskStore) entryPath(key Key) string {
	return filepath.Join(s.dir, string(key)+entryExt)
}

// DefaultDir returns the platform cache directory for sgptr.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "sgptr"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "sgptr"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "sgptr", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "sgptr", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "sgptr"), nil
	}
}

var _ Store = (*DiskStore)(nil)
