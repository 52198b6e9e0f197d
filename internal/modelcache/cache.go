// Package modelcache keeps at most one loaded engine instance per backend
// configuration fingerprint for the lifetime of the process.
package modelcache

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"speechflow/internal/backend"
	"speechflow/internal/domain"
	"speechflow/internal/faults"
)

// Loader instantiates an engine for a backend configuration. Loading may take
// seconds to minutes and may touch the network or spawn subprocesses.
type Loader func(ctx context.Context, cfg domain.BackendConfig) (backend.Engine, error)

// EngineHandle owns one loaded engine plus its configuration. The handle's
// invocation lock serializes engine use: recognition engines are not assumed
// safe for concurrent inference, so every caller funnels through Invoke.
type EngineHandle struct {
	cfg    domain.BackendConfig
	engine backend.Engine

	invoke sync.Mutex
}

// Config returns the configuration the handle was loaded for.
func (h *EngineHandle) Config() domain.BackendConfig { return h.cfg }

// Engine returns the underlying engine without serialization. Use Invoke for
// anything that runs inference.
func (h *EngineHandle) Engine() backend.Engine { return h.engine }

// Recognizer returns the engine as a Recognizer when it is one.
func (h *EngineHandle) Recognizer() (backend.Recognizer, bool) {
	r, ok := h.engine.(backend.Recognizer)
	return r, ok
}

// Summarizer returns the engine as a Summarizer when it is one.
func (h *EngineHandle) Summarizer() (backend.Summarizer, bool) {
	s, ok := h.engine.(backend.Summarizer)
	return s, ok
}

// Invoke runs fn while holding the handle's invocation lock. The lock is
// released on every exit path, the error path included. Batches from
// different callers targeting the same fingerprint serialize here.
func (h *EngineHandle) Invoke(fn func(engine backend.Engine) error) error {
	h.invoke.Lock()
	defer h.invoke.Unlock()
	return fn(h.engine)
}

// entry tracks one fingerprint in the cache table. While loading is open the
// load is still in flight; waiters block on it instead of starting another.
type entry struct {
	loading chan struct{}
	handle  *EngineHandle
	err     error
}

// Cache is the process-wide fingerprint→engine registry. There is no implicit
// eviction: handles live until Evict or Reset.
type Cache struct {
	loader Loader
	log    zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty cache backed by the given loader.
func New(loader Loader, log zerolog.Logger) *Cache {
	return &Cache{
		loader:  loader,
		log:     log,
		entries: make(map[string]*entry),
	}
}

// Acquire returns the cached handle for cfg, loading it on first request.
// Concurrent callers with equal fingerprints trigger exactly one load; the
// rest wait for it. A failed load is not retained, so a later Acquire with
// the same config retries from scratch.
func (c *Cache) Acquire(ctx context.Context, cfg domain.BackendConfig) (*EngineHandle, error) {
	fingerprint := cfg.Fingerprint()

	c.mu.Lock()
	if e, ok := c.entries[fingerprint]; ok {
		c.mu.Unlock()
		return c.await(ctx, e)
	}

	e := &entry{loading: make(chan struct{})}
	c.entries[fingerprint] = e
	c.mu.Unlock()

	// Load outside the table lock so one slow load never blocks unrelated
	// lookups.
	c.log.Info().Str("backend", cfg.Describe()).Msg("loading engine")
	handle, err := c.load(ctx, cfg)

	c.mu.Lock()
	if err != nil {
		delete(c.entries, fingerprint)
		e.err = err
	} else {
		e.handle = handle
	}
	c.mu.Unlock()
	close(e.loading)

	if err != nil {
		c.log.Error().Err(err).Str("backend", cfg.Describe()).Msg("engine load failed")
		return nil, err
	}
	return handle, nil
}

// await blocks until an in-flight load for the fingerprint settles. The
// entry may be evicted from the table afterwards; the handle it captured
// stays valid for this caller either way.
func (c *Cache) await(ctx context.Context, e *entry) (*EngineHandle, error) {
	select {
	case <-e.loading:
	case <-ctx.Done():
		return nil, faults.Cancelled("gave up waiting for engine load")
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.handle, nil
}

// load runs the loader and wraps non-fault errors as LOAD_ERROR.
func (c *Cache) load(ctx context.Context, cfg domain.BackendConfig) (*EngineHandle, error) {
	engine, err := c.loader(ctx, cfg)
	if err != nil {
		if faults.KindOf(err) == "" {
			err = faults.Load(err, "load %s engine", cfg.Describe())
		}
		return nil, err
	}
	return &EngineHandle{cfg: cfg, engine: engine}, nil
}

// Peek returns the handle for cfg if it is already resident, without loading.
func (c *Cache) Peek(cfg domain.BackendConfig) (*EngineHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cfg.Fingerprint()]
	if !ok || e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

// Evict drops the handle for cfg. In-flight batches holding the handle keep
// using it; new Acquire calls load fresh.
func (c *Cache) Evict(cfg domain.BackendConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cfg.Fingerprint())
}

// Reset drops every resident handle. This is the "reset process state"
// operation; there is no implicit eviction anywhere else.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Fingerprints lists the resident (fully loaded) fingerprints for status
// reporting.
func (c *Cache) Fingerprints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for fp, e := range c.entries {
		if e.handle != nil {
			out = append(out, fp)
		}
	}
	return out
}
