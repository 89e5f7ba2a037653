package session

import (
	"context"
	"fmt"

	"github.com/roach88/opsdesk/internal/auth"
	"github.com/roach88/opsdesk/internal/config"
	"github.com/roach88/opsdesk/internal/hr"
	"github.com/roach88/opsdesk/internal/persist"
	"github.com/roach88/opsdesk/internal/shell"
)

// OpenStorage opens the configured snapshot backend.
func OpenStorage(ctx context.Context, cfg config.Persist) (persist.Storage, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		return persist.OpenSQLite(cfg.Path)
	case config.BackendRedis:
		return persist.DialRedis(ctx, cfg.RedisAddr)
	case config.BackendMemory:
		return persist.NewMemoryStorage(), nil
	case config.BackendNone:
		return persist.NoopStorage{}, nil
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Backend)
	}
}

// Codecs returns the snapshot codec of every slice that can be persisted.
// The HR module's copies reuse the core codecs.
func Codecs() map[string]persist.Codec {
	authCodec := persist.Codec{Encode: auth.EncodeSnapshot, Decode: auth.DecodeSnapshot}
	shellCodec := persist.Codec{Encode: shell.EncodeSnapshot, Decode: shell.DecodeSnapshot}
	return map[string]persist.Codec{
		auth.SliceKey:       authCodec,
		shell.SliceKey:      shellCodec,
		hr.AuthKey:          authCodec,
		hr.MiscellaneousKey: shellCodec,
	}
}

func persistConfig(cfg config.Persist) persist.Config {
	return persist.Config{
		Key:       cfg.Key,
		Version:   cfg.Version,
		Whitelist: cfg.Whitelist,
		Codecs:    Codecs(),
	}
}
