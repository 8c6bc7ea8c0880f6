package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/shardsink/internal/config"
	"github.com/rzbill/shardsink/internal/replay"
	"github.com/rzbill/shardsink/internal/runtime"
	"github.com/rzbill/shardsink/internal/stream"
	"github.com/rzbill/shardsink/internal/stream/memstream"
	logpkg "github.com/rzbill/shardsink/pkg/log"
)

// inputRecord is one stdin/source line for ingest and replay.
type inputRecord struct {
	Shard string `json:"shard"`
	Seq   string `json:"seq"`
	Key   string `json:"key,omitempty"`
	Data  string `json:"data"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "shardsink",
		Short: "Shardsink ingestion CLI",
		Long:  "Shardsink batches shard-partitioned stream records into durable blocks with checkpointed resume positions.",
	}
	rootCmd.PersistentFlags().String("config", "", "path to config file (JSON or YAML)")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (overrides config)")
	rootCmd.PersistentFlags().String("stream", "", "stream name (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text|json")

	rootCmd.AddCommand(newIngestCmd(), newBatchesCmd(), newReplayCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup resolves config and builds the logger shared by the subcommands.
func setup(cmd *cobra.Command) (cfgpkg.Config, logpkg.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, nil, err
	}
	if err := cfgpkg.FromEnv(&cfg); err != nil {
		return cfgpkg.Config{}, nil, err
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("stream"); v != "" {
		cfg.Stream = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}

	level, err := logpkg.ParseLevel(cfg.Log.Level)
	if err != nil {
		return cfgpkg.Config{}, nil, err
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(level),
		logpkg.WithFormat(cfg.Log.Format),
	)
	// Pebble logs through the standard library.
	logpkg.RedirectStdLog(logger)
	return cfg, logger, nil
}

func openRuntime(cfg cfgpkg.Config, logger logpkg.Logger) (*runtime.Runtime, error) {
	fsync, err := runtime.ParseFsyncMode(cfg.Fsync)
	if err != nil {
		return nil, err
	}
	return runtime.Open(runtime.Options{
		DataDir: cfg.DataDir,
		Fsync:   fsync,
		Config:  cfg,
		Logger:  logger,
	})
}

// newIngestCmd reads JSON record lines from stdin and batches them into the
// block store, checkpointing as batches land.
func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Ingest JSON record lines from stdin",
		Long:  `Reads lines like {"shard":"shard-1","seq":"100","data":"..."} from stdin, stores sealed batches, and advances checkpoints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rcv := rt.NewReceiver(cfg.Stream)
			rcv.Start()
			defer rcv.Stop()

			loopCtx, stopLoop := context.WithCancel(ctx)
			defer stopLoop()
			loopDone := make(chan struct{})
			go func() {
				defer close(loopDone)
				rt.RunCheckpointLoop(loopCtx, rcv)
			}()

			shards := map[string]bool{}
			if err := readRecords(ctx, os.Stdin, func(rec inputRecord) error {
				if !shards[rec.Shard] {
					cp, err := rt.Checkpointer(ctx, cfg.Stream, rec.Shard)
					if err != nil {
						return err
					}
					rcv.SetCheckpointer(rec.Shard, cp)
					shards[rec.Shard] = true
				}
				return rcv.AddRecords(rec.Shard, []stream.Record{{
					ShardID:      rec.Shard,
					Sequence:     rec.Seq,
					PartitionKey: rec.Key,
					Data:         []byte(rec.Data),
				}})
			}); err != nil {
				return err
			}

			rcv.Flush()
			if err := rcv.Err(); err != nil {
				return err
			}
			stopLoop()
			<-loopDone
			if err := rcv.FlushCheckpoints(ctx); err != nil {
				return err
			}

			for shard := range shards {
				if seq, ok := rcv.LatestSequenceToCheckpoint(shard); ok {
					fmt.Printf("%s\t%s\n", shard, seq)
				}
			}
			return nil
		},
	}
}

func readRecords(ctx context.Context, r io.Reader, fn func(inputRecord) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 8<<20)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec inputRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if rec.Shard == "" || rec.Seq == "" {
			return fmt.Errorf("line %d: shard and seq are required", line)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return sc.Err()
}

// newBatchesCmd lists stored batches and their range sets.
func newBatchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batches",
		Short: "List stored batches and their sequence ranges",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			bs := rt.BlockStore(cfg.Stream)
			ids, err := bs.List()
			if err != nil {
				return err
			}
			for _, id := range ids {
				payload, ranges, err := bs.Get(id)
				if err != nil {
					return err
				}
				fmt.Printf("%s\t%d bytes\n", id, len(payload))
				for _, rng := range ranges {
					fmt.Printf("  %s\t%s..%s\t%d records\n", rng.ShardID, rng.FromSeq, rng.ToSeq, rng.Count)
				}
			}
			return nil
		},
	}
}

// newReplayCmd replays a saved range against a JSON-lines source file and
// prints the records.
func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a sequence range from a source file",
		Long:  `Loads JSON record lines from --source into an in-memory stream and replays the requested range.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			source, _ := cmd.Flags().GetString("source")
			shard, _ := cmd.Flags().GetString("shard")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			count, _ := cmd.Flags().GetInt("count")
			if source == "" || shard == "" || from == "" || to == "" || count <= 0 {
				return fmt.Errorf("--source, --shard, --from, --to, and --count are required")
			}

			f, err := os.Open(source)
			if err != nil {
				return err
			}
			defer f.Close()

			src := memstream.New()
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := readRecords(ctx, f, func(rec inputRecord) error {
				src.Append(cfg.Stream, rec.Shard, stream.Record{
					Sequence:     rec.Seq,
					PartitionKey: rec.Key,
					Data:         []byte(rec.Data),
				})
				return nil
			}); err != nil {
				return err
			}

			pol := replay.DefaultPolicy()
			if cfg.Replay.BackoffBaseMs > 0 {
				pol.Base = durationMs(cfg.Replay.BackoffBaseMs)
			}
			if cfg.Replay.MaxRetries > 0 {
				pol.MaxRetries = cfg.Replay.MaxRetries
			}
			if cfg.Replay.MaxElapsedMs > 0 {
				pol.MaxElapsed = durationMs(cfg.Replay.MaxElapsedMs)
			}

			it := replay.NewWithLogger(ctx, src.Dial(), pol, replay.Request{
				Stream:  cfg.Stream,
				ShardID: shard,
				FromSeq: from,
				ToSeq:   to,
				Count:   count,
			}, logger)
			defer it.Close()

			enc := json.NewEncoder(os.Stdout)
			for it.Next() {
				rec := it.Record()
				if err := enc.Encode(inputRecord{
					Shard: rec.ShardID,
					Seq:   rec.Sequence,
					Key:   rec.PartitionKey,
					Data:  string(rec.Data),
				}); err != nil {
					return err
				}
			}
			return it.Err()
		},
	}
	cmd.Flags().String("source", "", "JSON-lines file holding the source records")
	cmd.Flags().String("shard", "", "shard id to replay")
	cmd.Flags().String("from", "", "inclusive lower sequence bound")
	cmd.Flags().String("to", "", "inclusive upper sequence bound")
	cmd.Flags().Int("count", 0, "record count of the saved range")
	return cmd
}

func durationMs(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
