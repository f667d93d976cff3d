package cachefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"stalkervod/internal/logging"
)

// record is the on-disk shape of a single cache file:
// {"ts": <epoch seconds>, "data": ...}.
type record struct {
	TS   float64         `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// Store reads and writes timestamped JSON records. Every call re-touches
// disk; there is no in-memory state beyond the injected clock. A TTL of zero
// disables expiry, so only a missing or unreadable file counts as a miss.
//
// The store assumes one writer per path at a time. Writes replace the file
// atomically so readers never observe a half-written record.
type Store struct {
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, used by tests to advance time.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a Store. A nil logger silences write-failure warnings.
func NewStore(logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		logger: logging.NewComponentLogger(logger, "cachefile"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the payload stored at path, or ok=false when the file is
// missing, unreadable, malformed, or (for ttl > 0) at least ttl old.
func (s *Store) Read(path string, ttl time.Duration) (json.RawMessage, bool) {
	rec, ok := s.readRecord(path)
	if !ok {
		return nil, false
	}
	if s.expired(rec.TS, ttl) {
		return nil, false
	}
	return rec.Data, true
}

// ReadInto decodes the payload stored at path into v, applying the same
// miss rules as Read.
func (s *Store) ReadInto(path string, ttl time.Duration, v any) bool {
	data, ok := s.Read(path, ttl)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("cache payload decode failed",
			logging.String("path", path),
			logging.Error(err))
		return false
	}
	return true
}

// Write replaces the record at path with payload stamped at the current
// time. Failures are logged and swallowed: losing a cache write costs a
// refetch, never correctness.
func (s *Store) Write(path string, payload any) {
	if err := s.write(path, payload); err != nil {
		s.logger.Warn("cache write failed",
			logging.String("path", path),
			logging.Error(err))
	}
}

// IsStale reports whether the record at path is missing, unreadable, or past
// its TTL. It only decodes the timestamp, not the payload, so freshness
// probes stay cheap on large listings.
func (s *Store) IsStale(path string, ttl time.Duration) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	var stamp struct {
		TS float64 `json:"ts"`
	}
	if err := json.Unmarshal(raw, &stamp); err != nil {
		return true
	}
	return s.expired(stamp.TS, ttl)
}

func (s *Store) readRecord(path string) (record, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("cache read failed",
				logging.String("path", path),
				logging.Error(err))
		}
		return record{}, false
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn("cache record malformed",
			logging.String("path", path),
			logging.Error(err))
		return record{}, false
	}
	return rec, true
}

// expired reports whether a record stamped at ts has met or exceeded ttl.
func (s *Store) expired(ts float64, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	written := time.Unix(0, int64(ts*float64(time.Second)))
	return s.now().Sub(written) >= ttl
}

func (s *Store) write(path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	rec := record{
		TS:   float64(s.now().Unix()),
		Data: data,
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return WriteFileAtomic(path, encoded, 0o644)
}

// WriteFileAtomic writes data to path via a temp file and rename so readers
// never see partial content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "cache-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
