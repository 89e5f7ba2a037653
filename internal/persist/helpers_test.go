package persist

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/store"
)

const (
	typeNoteSet  action.Type = "note/SET"
	typeDraftSet action.Type = "draft/SET"
)

// textReducer keeps the last string payload of its action type.
func textReducer(t action.Type) store.Reducer {
	return func(state any, a action.Action) any {
		if state == nil {
			state = ""
		}
		if a.Is(t) {
			if s, ok := action.PayloadAs[string](a); ok {
				return s
			}
		}
		return state
	}
}

var textCodec = Codec{
	Encode: func(v any) ([]byte, error) { return json.Marshal(v) },
	Decode: func(data []byte) (any, error) {
		var s string
		err := json.Unmarshal(data, &s)
		return s, err
	},
}

func testConfig() Config {
	return Config{
		Whitelist: []string{"note"},
		Codecs:    map[string]Codec{"note": textCodec, "draft": textCodec},
	}
}

func newTestStore(opts ...store.Option) *store.Store {
	root := store.Combine(map[string]store.Reducer{
		"note":  textReducer(typeNoteSet),
		"draft": textReducer(typeDraftSet),
	})
	return store.New(WrapReducer(root), opts...)
}

// countingStorage counts Set calls on top of a MemoryStorage.
type countingStorage struct {
	*MemoryStorage
	mu   sync.Mutex
	sets int
}

func newCountingStorage() *countingStorage {
	return &countingStorage{MemoryStorage: NewMemoryStorage()}
}

func (c *countingStorage) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.MemoryStorage.Set(ctx, key, value)
}

func (c *countingStorage) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

// failingStorage fails every read.
type failingStorage struct{ NoopStorage }

func (failingStorage) Get(context.Context, string) ([]byte, error) {
	return nil, errBoom
}

var errBoom = errors.New("boom")
