package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// keyFileName is the bare credential file kept alongside the documents
// in the data directory. The dashboard's Settings page writes it.
const keyFileName = ".api_key"

// Keystore resolves the Anthropic API key. Resolution order: the
// .api_key file in the data directory, then the ANTHROPIC_API_KEY
// environment variable, then the config file value. The file wins so a
// key saved through the dashboard survives restarts and overrides
// whatever the process was started with.
type Keystore struct {
	dataDir   string
	configKey string
}

// NewKeystore creates a Keystore over the given data directory.
// configKey is the lowest-priority fallback from the config file; it
// may be empty.
func NewKeystore(dataDir, configKey string) *Keystore {
	return &Keystore{dataDir: dataDir, configKey: configKey}
}

func (k *Keystore) path() string {
	return filepath.Join(k.dataDir, keyFileName)
}

// Load returns the current API key, or "" when none is configured.
func (k *Keystore) Load() string {
	if data, err := os.ReadFile(k.path()); err == nil {
		if key := strings.TrimSpace(string(data)); key != "" {
			return key
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key
	}
	return k.configKey
}

// Save persists the trimmed key to the data directory with owner-only
// permissions.
func (k *Keystore) Save(key string) error {
	key = strings.TrimSpace(key)
	if err := os.WriteFile(k.path(), []byte(key), 0o600); err != nil {
		return fmt.Errorf("save api key: %w", err)
	}
	return nil
}
