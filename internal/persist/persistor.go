package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/store"
)

// DefaultKey is the snapshot key used when Config.Key is empty.
const DefaultKey = "root"

// DefaultVersion is the snapshot version used when Config.Version is zero.
const DefaultVersion = 1

// Codec converts one slice to and from its stored form.
type Codec struct {
	Encode func(v any) ([]byte, error)
	Decode func(data []byte) (any, error)
}

// Config selects what is persisted and where.
type Config struct {
	Key     string
	Version int
	// Whitelist lists the slices to persist. A slice without a codec is
	// skipped.
	Whitelist []string
	Codecs    map[string]Codec
}

// StorageKey returns the key the snapshot is stored under.
func (c Config) StorageKey() string {
	key := c.Key
	if key == "" {
		key = DefaultKey
	}
	return "persist:" + key
}

func (c Config) version() int {
	if c.Version == 0 {
		return DefaultVersion
	}
	return c.Version
}

// persisted returns the whitelisted keys that have a codec.
func (c Config) persisted() []string {
	keys := make([]string, 0, len(c.Whitelist))
	for _, k := range c.Whitelist {
		if _, ok := c.Codecs[k]; ok && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

type envelope struct {
	Version int                        `json:"version"`
	Slices  map[string]json.RawMessage `json:"slices"`
}

// Persistor rehydrates the store once and writes whitelisted slices back on
// change.
//
// Lifecycle: NewPersistor → Rehydrate → Run (in a goroutine) → Close.
//
// Thread-safety: Observe is called under the dispatch lock and never blocks.
// Writes happen on the Run goroutine or in Flush, serialised by writeMu.
type Persistor struct {
	st      *store.Store
	storage Storage
	cfg     Config
	keys    []string
	opts    options

	ready     chan struct{}
	readyOnce sync.Once

	// Observed under the dispatch lock.
	seen map[string]any

	pending *queue[*store.State]

	writeMu sync.Mutex
	written map[string]any
}

// NewPersistor creates a persistor for st and registers it as an observer.
func NewPersistor(st *store.Store, storage Storage, cfg Config, opts ...Option) *Persistor {
	if storage == nil {
		storage = NoopStorage{}
	}
	p := &Persistor{
		st:      st,
		storage: storage,
		cfg:     cfg,
		keys:    cfg.persisted(),
		opts:    newOptions(opts),
		ready:   make(chan struct{}),
		seen:    make(map[string]any),
		pending: newQueue[*store.State](),
		written: make(map[string]any),
	}
	st.AddObserver(p)
	return p
}

// Ready is closed once Rehydrate has dispatched REHYDRATE.
func (p *Persistor) Ready() <-chan struct{} {
	return p.ready
}

// Rehydrate loads the stored snapshot and dispatches REHYDRATE. It always
// dispatches and closes Ready, even when reading fails; the error is returned
// and carried in the payload.
func (p *Persistor) Rehydrate(ctx context.Context) error {
	key := p.cfg.StorageKey()
	restored, err := p.load(ctx, key)
	if err != nil {
		p.opts.logger.Warn("rehydrate failed, starting from initial state", "key", key, "error", err)
	}

	p.st.Dispatch(Rehydrate(Rehydrated{Key: key, Slices: restored, Err: err}))

	// Everything just restored counts as already written.
	state := p.st.State()
	p.writeMu.Lock()
	for _, k := range p.keys {
		if _, ok := restored[k]; ok {
			p.written[k] = state.Slice(k)
		}
	}
	p.writeMu.Unlock()

	p.readyOnce.Do(func() { close(p.ready) })
	p.opts.logger.Debug("rehydrated", "key", key, "slices", len(restored))
	return err
}

func (p *Persistor) load(ctx context.Context, key string) (map[string]any, error) {
	data, err := p.storage.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if env.Version != p.cfg.version() {
		p.opts.logger.Info("discarding snapshot with different version",
			"key", key, "stored", env.Version, "want", p.cfg.version())
		return nil, nil
	}

	out := make(map[string]any, len(p.keys))
	for _, k := range p.keys {
		raw, ok := env.Slices[k]
		if !ok {
			continue
		}
		v, err := p.cfg.Codecs[k].Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode slice %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Observe queues a write when a persisted slice changed. Before Ready it does
// nothing, so initial state never overwrites a stored snapshot.
func (p *Persistor) Observe(a action.Action, next *store.State) {
	if a.Is(ActionRehydrate) {
		p.remember(next)
		return
	}
	select {
	case <-p.ready:
	default:
		return
	}

	changed := false
	for _, k := range p.keys {
		if !store.Same(p.seen[k], next.Slice(k)) {
			changed = true
			break
		}
	}
	if !changed {
		return
	}
	p.remember(next)
	p.pending.Enqueue(next)
}

func (p *Persistor) remember(s *store.State) {
	for _, k := range p.keys {
		p.seen[k] = s.Slice(k)
	}
}

// Run writes queued states until ctx is done or Close is called, then
// writes whatever is still queued.
func (p *Persistor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case _, ok := <-p.pending.Wait():
			p.drain(ctx)
			if !ok {
				return nil
			}
		}
	}
}

// drain writes only the newest queued state; older ones are superseded.
func (p *Persistor) drain(ctx context.Context) {
	batch := p.pending.DrainAll()
	if len(batch) == 0 {
		return
	}
	if err := p.write(ctx, batch[len(batch)-1]); err != nil {
		// Log and continue: the next change retries with fresher state.
		p.opts.logger.Error("persist snapshot failed", "key", p.cfg.StorageKey(), "error", err)
	}
}

// Flush writes the current state synchronously.
func (p *Persistor) Flush(ctx context.Context) error {
	return p.write(ctx, p.st.State())
}

// Close stops Run after a final write.
func (p *Persistor) Close() {
	p.pending.Close()
}

// Purge deletes the stored snapshot. In-memory state is untouched and is
// written again only after a persisted slice changes.
func (p *Persistor) Purge(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.storage.Delete(ctx, p.cfg.StorageKey()); err != nil {
		return fmt.Errorf("purge snapshot: %w", err)
	}
	current := p.st.State()
	for _, k := range p.keys {
		p.written[k] = current.Slice(k)
	}
	return nil
}

func (p *Persistor) write(ctx context.Context, s *store.State) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	changed := false
	for _, k := range p.keys {
		if _, ok := p.written[k]; !ok || !store.Same(p.written[k], s.Slice(k)) {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}

	env := envelope{Version: p.cfg.version(), Slices: make(map[string]json.RawMessage, len(p.keys))}
	for _, k := range p.keys {
		v := s.Slice(k)
		if v == nil {
			continue
		}
		raw, err := p.cfg.Codecs[k].Encode(v)
		if err != nil {
			p.opts.metrics.PersistWrite("snapshot", err)
			return fmt.Errorf("encode slice %s: %w", k, err)
		}
		env.Slices[k] = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		p.opts.metrics.PersistWrite("snapshot", err)
		return fmt.Errorf("encode snapshot: %w", err)
	}

	err = p.storage.Set(ctx, p.cfg.StorageKey(), data)
	p.opts.metrics.PersistWrite("snapshot", err)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	for _, k := range p.keys {
		p.written[k] = s.Slice(k)
	}
	return nil
}
