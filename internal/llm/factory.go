package llm

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrNoCredential is returned by Factory.Client when no API key is
// configured anywhere the keystore looks.
var ErrNoCredential = errors.New("no anthropic api key configured")

// Factory hands out a Client for the current credential. The built
// client is cached keyed by the key value it was built with, so saving
// a new key through the dashboard transparently swaps the client on the
// next request while repeat calls with an unchanged key stay cheap.
type Factory struct {
	keystore *Keystore
	logger   *slog.Logger
	build    func(apiKey string) Client

	mu        sync.Mutex
	cached    Client
	cachedKey string
}

// NewFactory creates a Factory over the keystore. The default builder
// constructs an AnthropicClient; tests swap it via SetBuilder.
func NewFactory(keystore *Keystore, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{keystore: keystore, logger: logger}
	f.build = func(apiKey string) Client {
		return NewAnthropicClient(apiKey, logger)
	}
	return f
}

// SetBuilder replaces the client constructor. Used by tests to inject a
// scripted client.
func (f *Factory) SetBuilder(build func(apiKey string) Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.build = build
	f.cached = nil
	f.cachedKey = ""
}

// Enabled reports whether a credential is currently available.
func (f *Factory) Enabled() bool {
	return f.keystore.Load() != ""
}

// Client returns a client for the current credential, rebuilding only
// when the key has changed since the last call.
func (f *Factory) Client() (Client, error) {
	key := f.keystore.Load()
	if key == "" {
		return nil, ErrNoCredential
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cached == nil || key != f.cachedKey {
		f.cached = f.build(key)
		f.cachedKey = key
		f.logger.Info("model client initialised")
	}
	return f.cached, nil
}
