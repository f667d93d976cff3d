package listing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"stalkervod/internal/cachefile"
	"stalkervod/internal/logging"
)

const identityFile = "last_portal.json"

// identity is the persisted portal identity: {"server": ..., "mac": ...}.
type identity struct {
	Server string `json:"server"`
	MAC    string `json:"mac"`
}

// Guard detects portal switches and wipes portal-scoped cache files when the
// configured server address or device MAC differs from the persisted pair.
// The TMDB cache is keyed by title text, not by portal, so it survives.
type Guard struct {
	dir    string
	logger *slog.Logger
}

// NewGuard creates a guard over the storage root at dir.
func NewGuard(dir string, logger *slog.Logger) *Guard {
	return &Guard{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "portalguard"),
	}
}

// Reconcile compares the current portal identity against the persisted one.
// A first-ever run only stores the identity and reports unchanged; there is
// no cache to wipe yet. On a change it deletes every listing cache file and
// folder filter selection, persists the new identity, and reports true.
// Calling it again with the same inputs is a no-op.
func (g *Guard) Reconcile(serverAddress, deviceMAC string) (bool, error) {
	current := identity{Server: serverAddress, MAC: deviceMAC}
	path := filepath.Join(g.dir, identityFile)

	previous, found := g.load(path)
	if !found {
		if err := g.persist(path, current); err != nil {
			return false, err
		}
		g.logger.Debug("stored initial portal identity",
			logging.String("server", serverAddress))
		return false, nil
	}
	if previous == current {
		return false, nil
	}

	if err := g.wipe(); err != nil {
		return false, err
	}
	if err := g.persist(path, current); err != nil {
		return false, err
	}
	g.logger.Info("portal changed, listing cache cleared",
		logging.String("previous_server", previous.Server),
		logging.String("server", serverAddress))
	return true, nil
}

// load reads the persisted identity. Unreadable or malformed files are
// treated like a first run: re-store, no wipe. A wipe keyed off a transient
// read fault would throw away a valid cache.
func (g *Guard) load(path string) (identity, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			g.logger.Warn("portal identity file unreadable, rewriting",
				logging.String("path", path),
				logging.Error(err))
		}
		return identity{}, false
	}
	var id identity
	if err := json.Unmarshal(raw, &id); err != nil {
		g.logger.Warn("portal identity file malformed, rewriting",
			logging.String("path", path),
			logging.Error(err))
		return identity{}, false
	}
	return id, true
}

func (g *Guard) persist(path string, id identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode portal identity: %w", err)
	}
	if err := cachefile.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("persist portal identity: %w", err)
	}
	return nil
}

// wipe removes listing cache files and folder filter selections. Metadata
// cache files are intentionally left alone.
func (g *Guard) wipe() error {
	patterns := []string{
		"stalker_cats_*.json",
		"stalker_videos_*.json",
		"folder_filter_*.json",
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(g.dir, pattern))
		if err != nil {
			return fmt.Errorf("match %s: %w", pattern, err)
		}
		for _, match := range matches {
			if err := os.Remove(match); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove %s: %w", match, err)
			}
			g.logger.Debug("removed portal cache file", logging.String("path", match))
		}
	}
	return nil
}
