package tmdb

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"stalkervod/internal/cachefile"
	"stalkervod/internal/logging"
)

// Reserved cache keys holding the shared genre lookup tables. They never
// collide with title keys because titles are prefixed "movie:" or "tv:".
const (
	genreKeyMovie = "genres:movie"
	genreKeyTV    = "genres:tv"
)

// entry is one cached outcome: {"ts": <epoch seconds>, "data": <metadata-or-null>}.
// A JSON null payload records a confirmed "no match" (negative cache) and is
// distinct from the key being absent, which means "never queried".
type entry struct {
	TS   float64         `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// store holds the whole metadata cache in memory and persists it as one
// shared JSON file. Mutations stay in memory until Flush writes the file
// once; per-item persistence is deliberately not offered.
type store struct {
	path   string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	entries map[string]entry
	loaded  bool
	dirty   bool
}

func newStore(path string, ttl time.Duration, now func() time.Time, logger *slog.Logger) *store {
	return &store{
		path:   path,
		ttl:    ttl,
		now:    now,
		logger: logger,
	}
}

// lookup returns the raw payload for key. found=false means the key was
// never queried or its entry expired; found=true with a null payload is a
// cached negative result.
func (s *store) lookup(key string) (json.RawMessage, bool) {
	s.ensureLoaded()
	ent, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.expired(ent.TS) {
		return nil, false
	}
	return ent.Data, true
}

// put records an outcome in memory. A nil payload stores the negative
// marker.
func (s *store) put(key string, payload any) {
	s.ensureLoaded()
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("metadata cache encode failed",
			logging.String("key", key),
			logging.Error(err))
		return
	}
	s.entries[key] = entry{TS: float64(s.now().Unix()), Data: data}
	s.dirty = true
}

// flush writes the entire cache map to disk in one atomic write. No-op when
// nothing changed since the last flush.
func (s *store) flush() {
	if !s.loaded || !s.dirty {
		return
	}
	data, err := json.Marshal(s.entries)
	if err != nil {
		s.logger.Warn("metadata cache encode failed", logging.Error(err))
		return
	}
	if err := cachefile.WriteFileAtomic(s.path, data, 0o644); err != nil {
		s.logger.Warn("metadata cache save failed",
			logging.String("path", s.path),
			logging.Error(err))
		return
	}
	s.dirty = false
	s.logger.Debug("metadata cache flushed",
		logging.String("path", s.path),
		logging.Int("entry_count", len(s.entries)))
}

func (s *store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.entries = make(map[string]entry)
	s.loaded = true

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("metadata cache load failed",
				logging.String("path", s.path),
				logging.Error(err))
		}
		return
	}
	if err := json.Unmarshal(raw, &s.entries); err != nil {
		s.logger.Warn("metadata cache malformed, starting empty",
			logging.String("path", s.path),
			logging.Error(err))
		s.entries = make(map[string]entry)
	}
}

func (s *store) expired(ts float64) bool {
	if s.ttl <= 0 {
		return false
	}
	written := time.Unix(0, int64(ts*float64(time.Second)))
	return s.now().Sub(written) >= s.ttl
}
