package portal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"stalkervod/internal/cachefile"
)

const tokenFileName = "token.json"

// tokenState is persisted to token.json so a portal session survives process
// restarts. The client identifier is generated once per installation and
// reused across handshakes.
type tokenState struct {
	Value    string `json:"value"`
	ClientID string `json:"client_id,omitempty"`
}

// tokenStore reads and writes the handshake token under the storage root.
type tokenStore struct {
	path string
}

func newTokenStore(dir string) *tokenStore {
	return &tokenStore{path: filepath.Join(dir, tokenFileName)}
}

func (s *tokenStore) load() (tokenState, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return tokenState{}, nil
		}
		return tokenState{}, fmt.Errorf("read token file: %w", err)
	}
	var state tokenState
	if err := json.Unmarshal(raw, &state); err != nil {
		// Corrupt token file: start a fresh session.
		return tokenState{}, nil
	}
	return state, nil
}

func (s *tokenStore) save(state tokenState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode token state: %w", err)
	}
	if err := cachefile.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("persist token state: %w", err)
	}
	return nil
}

// ensureClientID fills in a generated identifier when none is stored yet.
func (s *tokenStore) ensureClientID(state *tokenState) {
	if state.ClientID == "" {
		state.ClientID = uuid.NewString()
	}
}
