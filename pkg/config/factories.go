package config

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/marmos91/httpfileserv/internal/logger"
	"github.com/marmos91/httpfileserv/pkg/journal"
	"github.com/marmos91/httpfileserv/pkg/server"
	"github.com/mitchellh/mapstructure"
)

// CreateJournal opens the request journal described by cfg.
//
// The Type field selects the backend:
//   - "badger": persistent BadgerDB directory (journal.badger.path)
//   - "memory": in-process only, lost on exit
//
// Callers check cfg.Enabled; CreateJournal always opens.
func CreateJournal(ctx context.Context, cfg *JournalConfig) (*journal.Journal, error) {
	switch cfg.Type {
	case "badger":
		return createBadgerJournal(ctx, cfg)
	case "memory":
		return journal.Open(ctx, journal.Config{
			InMemory:   true,
			MaxEntries: cfg.MaxEntries,
		})
	default:
		return nil, fmt.Errorf("unknown journal type: %q", cfg.Type)
	}
}

// createBadgerJournal decodes the free-form journal.badger map and opens a
// BadgerDB-backed journal.
//
// Recognized keys:
//   - path (required): database directory, created if missing
//   - sync_writes: fsync every write (default false)
//   - block_cache_mb, index_cache_mb: cache sizes; 0 keeps Badger's defaults
//   - compact_on_close: compact level 0 when the journal closes
//
// Unknown keys are ignored. Values may be strings; they are converted.
func createBadgerJournal(ctx context.Context, cfg *JournalConfig) (*journal.Journal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type BadgerJournalOptions struct {
		Path             string `mapstructure:"path"`
		SyncWrites       bool   `mapstructure:"sync_writes"`
		BlockCacheSizeMB int64  `mapstructure:"block_cache_mb"`
		IndexCacheSizeMB int64  `mapstructure:"index_cache_mb"`
		CompactOnClose   bool   `mapstructure:"compact_on_close"`
	}

	var opts BadgerJournalOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(cfg.Badger); err != nil {
		return nil, fmt.Errorf("failed to decode badger journal options: %w", err)
	}

	if opts.Path == "" {
		return nil, fmt.Errorf("badger journal: path is required")
	}

	badgerOpts := badger.DefaultOptions(opts.Path).
		WithSyncWrites(opts.SyncWrites).
		WithCompactL0OnClose(opts.CompactOnClose)
	if opts.BlockCacheSizeMB > 0 {
		badgerOpts = badgerOpts.WithBlockCacheSize(opts.BlockCacheSizeMB << 20)
	}
	if opts.IndexCacheSizeMB > 0 {
		badgerOpts = badgerOpts.WithIndexCacheSize(opts.IndexCacheSizeMB << 20)
	}

	j, err := journal.Open(ctx, journal.Config{
		Path:          opts.Path,
		MaxEntries:    cfg.MaxEntries,
		BadgerOptions: &badgerOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger journal: %w", err)
	}

	logger.Debug("Journal at %s (max %d entries)", opts.Path, cfg.MaxEntries)
	return j, nil
}

// ServerConfig translates the loaded configuration into the server's own
// configuration object.
//
// The MIME map is copied so the server never aliases the loaded config.
// Zero values are passed through unchanged; server.New applies its own
// defaults to them.
func (c *Config) ServerConfig() server.Config {
	mimeTypes := make(map[string]string, len(c.MIME))
	for ext, contentType := range c.MIME {
		mimeTypes[ext] = contentType
	}

	return server.Config{
		Root:              c.Server.Root,
		Port:              c.Server.Port,
		Backlog:           c.Server.Backlog,
		SocketTimeout:     c.Server.SocketTimeout,
		CloseDelay:        c.Server.CloseDelay,
		AcceptDelay:       c.Server.AcceptDelay,
		ShutdownTimeout:   c.Server.ShutdownTimeout,
		StrictConfinement: c.Server.StrictConfinement,
		TemplatePath:      c.Listing.TemplatePath,
		ListingSort:       c.Listing.Sort,
		MIMETypes:         mimeTypes,
		RateLimit: server.RateLimitConfig{
			Enabled:              c.Server.RateLimit.Enabled,
			ConnectionsPerSecond: c.Server.RateLimit.ConnectionsPerSecond,
			Burst:                c.Server.RateLimit.Burst,
			Mode:                 c.Server.RateLimit.Mode,
		},
	}
}

// CreateServer builds a file server from cfg. Metrics and journal wiring is
// passed through opts.
func CreateServer(cfg *Config, opts ...server.Option) (*server.Server, error) {
	srv, err := server.New(cfg.ServerConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	return srv, nil
}
