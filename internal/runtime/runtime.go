package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/shardsink/internal/batcher"
	"github.com/rzbill/shardsink/internal/blockstore"
	"github.com/rzbill/shardsink/internal/checkpoint"
	cfgpkg "github.com/rzbill/shardsink/internal/config"
	"github.com/rzbill/shardsink/internal/ingest"
	pebblestore "github.com/rzbill/shardsink/internal/storage/pebble"
	logpkg "github.com/rzbill/shardsink/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
	Logger  logpkg.Logger
}

// Runtime wires storage, config, and the ingestion facades for a
// single-node instance.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config
	logger logpkg.Logger

	pgOnce sync.Once
	pg     *checkpoint.PostgresStore
	pgErr  error
}

// ParseFsyncMode maps a config fsync string to a storage mode.
func ParseFsyncMode(s string) (pebblestore.FsyncMode, error) {
	switch s {
	case "", "interval":
		return pebblestore.FsyncModeInterval, nil
	case "always":
		return pebblestore.FsyncModeAlways, nil
	case "never":
		return pebblestore.FsyncModeNever, nil
	default:
		return pebblestore.FsyncModeUnspecified, fmt.Errorf("unknown fsync mode %q", s)
	}
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNop()
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync})
	if err != nil {
		return nil, err
	}
	return &Runtime{db: db, config: opts.Config, logger: logger}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	var errs []error
	if r.pg != nil {
		errs = append(errs, r.pg.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// BlockStore returns the batch store for a stream.
func (r *Runtime) BlockStore(streamName string) *blockstore.Store {
	return blockstore.New(r.db, streamName)
}

// NewReceiver builds an ingestion receiver for a stream, backed by the
// runtime's block store and configured batch/store bounds.
func (r *Runtime) NewReceiver(streamName string) *ingest.Receiver {
	cfg := r.config
	return ingest.NewReceiver(r.BlockStore(streamName), ingest.Options{
		Stream: streamName,
		Batch: batcher.Policy{
			MaxRecords:    cfg.Batch.MaxRecords,
			MaxBytes:      cfg.Batch.MaxBytes,
			FlushInterval: time.Duration(cfg.Batch.FlushIntervalMs) * time.Millisecond,
		},
		StoreAttempts: cfg.Store.MaxAttempts,
		Logger:        r.logger,
	})
}

// CheckpointStore returns the embedded checkpoint store for a stream.
func (r *Runtime) CheckpointStore(streamName string) *checkpoint.PebbleStore {
	return checkpoint.NewPebbleStore(r.db, streamName)
}

// Checkpointer returns a per-shard checkpoint handle using the configured
// driver. The Postgres pool is opened lazily on first use and shared.
func (r *Runtime) Checkpointer(ctx context.Context, streamName, shardID string) (ingest.Checkpointer, error) {
	switch r.config.Checkpoint.Driver {
	case "", "pebble":
		return r.CheckpointStore(streamName).Shard(shardID), nil
	case "postgres":
		r.pgOnce.Do(func() {
			r.pg, r.pgErr = checkpoint.OpenPostgres(ctx, r.config.Checkpoint.PostgresDSN, r.config.Checkpoint.Table)
		})
		if r.pgErr != nil {
			return nil, r.pgErr
		}
		return r.pg.Shard(streamName, shardID), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint driver %q", r.config.Checkpoint.Driver)
	}
}

// RunCheckpointLoop drives periodic checkpoint flushes for a receiver until
// ctx is done or the receiver aborts. A final flush runs on the way out.
func (r *Runtime) RunCheckpointLoop(ctx context.Context, rcv *ingest.Receiver) {
	interval := time.Duration(r.config.Checkpoint.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := rcv.FlushCheckpoints(flushCtx); err != nil {
				r.logger.Warn("final checkpoint flush", logpkg.Err(err))
			}
			cancel()
			return
		case <-rcv.Done():
			return
		case <-ticker.C:
			if err := rcv.FlushCheckpoints(ctx); err != nil {
				r.logger.Warn("checkpoint flush", logpkg.Err(err))
			}
		}
	}
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
