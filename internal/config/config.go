// Package config loads opsdesk settings from a CUE file.
//
// The file is unified with the embedded #Config schema, which supplies every
// default and rejects unknown fields. A missing file yields the defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// DefaultPath is the config file read when none is given.
const DefaultPath = "opsdesk.cue"

// Persistence backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Config is the resolved configuration.
type Config struct {
	API     API
	Persist Persist
	Auth    Auth
	HR      HR
	Log     Log
	Metrics Metrics
}

// API configures the remote API client.
type API struct {
	BaseURL string
	Timeout time.Duration
}

// Persist configures session persistence.
type Persist struct {
	Backend   string
	Path      string
	RedisAddr string
	Key       string
	Version   int
	Whitelist []string
	Journal   bool
}

// Auth configures the session workflows.
type Auth struct {
	TemporaryPermissionTTL time.Duration
}

// HR configures the HR feature module.
type HR struct {
	Enabled  bool
	BasePath string
}

// Log configures logging.
type Log struct {
	Level string
}

// SlogLevel returns the level as a slog.Level.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Metrics configures metric export.
type Metrics struct {
	Textfile string
}

// file mirrors #Config field for field.
type file struct {
	API struct {
		BaseURL string `json:"base_url"`
		Timeout string `json:"timeout"`
	} `json:"api"`
	Persist struct {
		Backend   string   `json:"backend"`
		Path      string   `json:"path"`
		RedisAddr string   `json:"redis_addr"`
		Key       string   `json:"key"`
		Version   int      `json:"version"`
		Whitelist []string `json:"whitelist"`
		Journal   bool     `json:"journal"`
	} `json:"persist"`
	Auth struct {
		TemporaryPermissionTTL string `json:"temporary_permission_ttl"`
	} `json:"auth"`
	HR struct {
		Enabled  bool   `json:"enabled"`
		BasePath string `json:"base_path"`
	} `json:"hr"`
	Log struct {
		Level string `json:"level"`
	} `json:"log"`
	Metrics struct {
		Textfile string `json:"textfile"`
	} `json:"metrics"`
}

// Issue is one problem found in a config file.
type Issue struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", i.File, i.Line, i.Column, i.Message)
	}
	return i.Message
}

// Error reports every issue found while loading a config file.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

// Default returns the configuration an empty file produces.
func Default() Config {
	cfg, err := Parse(nil, "")
	if err != nil {
		// The embedded schema is fixed; defaults always resolve.
		panic(fmt.Sprintf("config: default schema: %v", err))
	}
	return cfg
}

// Load reads path. A missing file yields Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse unifies CUE source with the schema and resolves it. filename is used
// in error positions only.
func Parse(src []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile schema: %w", err)
	}

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Config{}, issuesFrom(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(user)
	if err := v.Validate(); err != nil {
		return Config{}, issuesFrom(err)
	}

	var f file
	if err := v.Decode(&f); err != nil {
		return Config{}, issuesFrom(err)
	}
	return resolve(f)
}

func resolve(f file) (Config, error) {
	timeout, err := time.ParseDuration(f.API.Timeout)
	if err != nil || timeout <= 0 {
		return Config{}, &Error{Issues: []Issue{{Message: fmt.Sprintf("api.timeout: invalid duration %q", f.API.Timeout)}}}
	}
	ttl, err := time.ParseDuration(f.Auth.TemporaryPermissionTTL)
	if err != nil || ttl <= 0 {
		return Config{}, &Error{Issues: []Issue{{Message: fmt.Sprintf("auth.temporary_permission_ttl: invalid duration %q", f.Auth.TemporaryPermissionTTL)}}}
	}

	return Config{
		API: API{BaseURL: f.API.BaseURL, Timeout: timeout},
		Persist: Persist{
			Backend:   f.Persist.Backend,
			Path:      f.Persist.Path,
			RedisAddr: f.Persist.RedisAddr,
			Key:       f.Persist.Key,
			Version:   f.Persist.Version,
			Whitelist: f.Persist.Whitelist,
			Journal:   f.Persist.Journal,
		},
		Auth:    Auth{TemporaryPermissionTTL: ttl},
		HR:      HR{Enabled: f.HR.Enabled, BasePath: f.HR.BasePath},
		Log:     Log{Level: f.Log.Level},
		Metrics: Metrics{Textfile: f.Metrics.Textfile},
	}, nil
}

func issuesFrom(err error) error {
	var issues []Issue
	for _, e := range cueerrors.Errors(err) {
		is := Issue{Message: e.Error()}
		if pos := e.Position(); pos.IsValid() {
			is.File = pos.Filename()
			is.Line = pos.Line()
			is.Column = pos.Column()
		}
		issues = append(issues, is)
	}
	if len(issues) == 0 {
		issues = append(issues, Issue{Message: err.Error()})
	}
	return &Error{Issues: issues}
}

// Environment overrides, applied by ApplyEnv.
const (
	EnvBaseURL   = "OPSDESK_API_BASE_URL"
	EnvBackend   = "OPSDESK_PERSIST_BACKEND"
	EnvRedisAddr = "OPSDESK_REDIS_ADDR"
	EnvLogLevel  = "OPSDESK_LOG_LEVEL"
)

// ApplyEnv overrides fields from environment variables read with getenv.
// Empty values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvBaseURL); v != "" {
		c.API.BaseURL = v
	}
	if v := getenv(EnvBackend); v != "" {
		c.Persist.Backend = v
	}
	if v := getenv(EnvRedisAddr); v != "" {
		c.Persist.RedisAddr = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}
