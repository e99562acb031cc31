// Package identity issues the anonymous per-device id attached to every log event.
package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/umtp/assist-gateway/internal/config"
	"github.com/umtp/assist-gateway/internal/storage"
)

// Provider reads or mints the anonymous id of one device. It is created once per
// device (or process) and injected wherever events are built.
type Provider struct {
	mu    sync.Mutex
	store storage.KV
	log   zerolog.Logger
	newID func() string
}

// NewProvider returns a provider over the device's durable store. A nil store is
// allowed and behaves like a context without persistent storage.
func NewProvider(store storage.KV, log zerolog.Logger) *Provider {
	return &Provider{
		store: store,
		log:   log.With().Str("component", "identity").Logger(),
		newID: func() string { return uuid.NewString() },
	}
}

// AnonID returns the device's anonymous id, generating and persisting one on
// first use. ok is false when no persistent storage is available; AnonID never
// fails the caller.
func (p *Provider) AnonID(ctx context.Context) (string, bool) {
	if p == nil || p.store == nil {
		return "", false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := config.StorageKey.AnonID()
	v, err := p.store.Get(ctx, key)
	if err == nil && v != "" {
		return v, true
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		p.log.Warn().Err(err).Msg("Read anon id failed")
		return "", false
	}

	v = p.newID()
	if err := p.store.Set(ctx, key, v); err != nil {
		p.log.Warn().Err(err).Msg("Persist anon id failed")
	}
	return v, true
}
