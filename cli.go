package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/chunkupload/internal/apiclient"
	"github.com/tonimelisma/chunkupload/internal/blobstore"
	"github.com/tonimelisma/chunkupload/internal/config"
	"github.com/tonimelisma/chunkupload/internal/coordinator"
	"github.com/tonimelisma/chunkupload/internal/hashutil"
	"github.com/tonimelisma/chunkupload/internal/sessionstore"
	"github.com/tonimelisma/chunkupload/internal/uploadengine"
	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// CLIContext bundles everything a subcommand needs: the resolved config, a
// logger, the durable store, and a running Coordinator driving a running
// Engine. Built once in PersistentPreRunE, torn down in PersistentPostRunE.
type CLIContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Store  *sessionstore.Store
	Coord  *coordinator.Coordinator
	Watch  *statusWatcher
	JSON   bool
	Quiet  bool
}

type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics — every subcommand runs
// under PersistentPreRunE, so this is always a programmer error otherwise.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context")
	}

	return cc
}

// httpClientTimeout bounds every request of the shared API client: initiate,
// finalize, status, and chunk uploads alike. Chunk uploads are not exempt,
// so a chunk transfer that runs longer than this is cut off and goes
// through the engine's retry policy.
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chunkupload",
		Short:   "Resumable chunked file upload client",
		Long:    "A resumable chunked file-upload client core: splits files into fixed-size chunks, negotiates upload sessions with a backend service, and survives pause, resume, cancel, and restart.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return teardown(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (defaults to the platform config dir)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newRetryCmd())
	cmd.AddCommand(newClearCompletedCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

// bootstrap wires the full stack — config, API client, blob reader, hasher,
// durable store, upload engine, and coordinator — and stashes it in the
// command's context. It mirrors the teacher's loadConfig, but for this
// repo "config" means the whole dependency graph, not just a resolved
// drive.
func bootstrap(cmd *cobra.Command) error {
	logger := buildLogger()

	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := sessionstore.Open(
		cfg.Store.DatabasePath,
		cfg.Engine.PersistenceDebounceDuration(),
		cfg.Store.SessionExpiryDuration(),
		logger,
	)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}

	apiClient := apiclient.NewClient(cfg.Client, defaultHTTPClient(), logger)
	blobs := blobstore.NewLocalFS()
	hasher := hashutil.New(blobs, cfg.Engine.HashWindowBytes())

	engineCfg := uploadengine.Config{
		ChunkSize:           cfg.Engine.ChunkSizeBytes(),
		MaxConcurrentChunks: cfg.Engine.MaxConcurrentChunks,
		MaxRetries:          cfg.Engine.MaxRetries,
		InitialRetryDelay:   cfg.Engine.InitialRetryDelayDuration(),
	}

	coordCfg := coordinator.Config{
		ProgressDebounce: cfg.Engine.ProgressDebounceDuration(),
		MaxFilesPerBatch: cfg.Engine.MaxFilesPerBatch,
		MaxFileSize:      cfg.Engine.MaxFileSizeBytes(),
	}

	watch := newStatusWatcher()

	var eng *uploadengine.Engine

	factory := func(cb uploadengine.Callbacks) coordinator.Engine {
		eng = uploadengine.New(apiClient, blobs, hasher, store, engineCfg, cb, logger)
		return eng
	}

	callbacks := coordinator.Callbacks{
		OnItemStatus:   watch.onStatus,
		OnItemProgress: watch.onProgress,
	}

	coord := coordinator.New(factory, store, watch, coordCfg, callbacks, logger)

	if err := coord.LoadPersisted(); err != nil {
		store.Close()
		return fmt.Errorf("loading persisted state: %w", err)
	}

	go eng.Run()
	go coord.Run()

	// Foreground restoration: reattach the engine to any session left
	// in-flight by a previous invocation and resume it (spec.md §4.6
	// "Lifecycle hooks"). A CLI process is, by definition, always in the
	// foreground.
	coord.OnForeground()

	cc := &CLIContext{Cfg: cfg, Logger: logger, Store: store, Coord: coord, Watch: watch, JSON: flagJSON, Quiet: flagQuiet}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// teardown persists the aggregate state and source refs, then stops the
// coordinator's actor goroutine. The engine's actor goroutine is not
// stopped here; it ends with the process.
func teardown(cmd *cobra.Command) error {
	cc := cliContextFrom(cmd.Context())
	if cc == nil {
		return nil
	}

	cc.Coord.OnBackground()
	cc.Coord.Snapshot() // returns only after the persist queued above has run
	cc.Coord.Close()

	return cc.Store.Close()
}

// buildLogger creates an slog.Logger honoring --verbose/--quiet. CLI flags
// always win, same as the teacher's buildLogger.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// statusWatcher fans coordinator callbacks out to per-id completion
// channels so a blocking CLI command (upload) can wait for a terminal
// status without polling Snapshot, and doubles as the coordinator's
// HistoryEmitter so completions print as they happen.
type statusWatcher struct {
	mu      sync.Mutex
	waiters map[string][]chan uploadmodel.UploadItem
}

func newStatusWatcher() *statusWatcher {
	return &statusWatcher{waiters: make(map[string][]chan uploadmodel.UploadItem)}
}

func (w *statusWatcher) onStatus(id string, status uploadmodel.Status, errMsg string) {
	if status != uploadmodel.StatusCompleted && status != uploadmodel.StatusError {
		return
	}

	w.mu.Lock()
	chans := w.waiters[id]
	delete(w.waiters, id)
	w.mu.Unlock()

	item := uploadmodel.UploadItem{
		File:         uploadmodel.FileDescriptor{ID: id},
		Status:       status,
		ErrorMessage: errMsg,
	}

	for _, ch := range chans {
		ch <- item
	}
}

func (w *statusWatcher) onProgress(string, uploadmodel.Progress) {}

// Emit implements coordinator.HistoryEmitter: a completed upload prints to
// stderr as it happens, independent of any caller blocked in await.
func (w *statusWatcher) Emit(entry uploadmodel.HistoryEntry) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "completed: %s (%s)\n", entry.Name, humanize.Bytes(uint64(entry.Size)))
	}
}

// register opens a wait slot for id before the caller enqueues it, closing
// a race where the engine could reach a terminal status before await gets
// a chance to subscribe.
func (w *statusWatcher) register(id string) chan uploadmodel.UploadItem {
	ch := make(chan uploadmodel.UploadItem, 1)

	w.mu.Lock()
	w.waiters[id] = append(w.waiters[id], ch)
	w.mu.Unlock()

	return ch
}

// unregister drops a wait slot opened by register, used when the caller
// never reached the point of waiting on it (e.g. enqueue was rejected).
func (w *statusWatcher) unregister(id string) {
	w.mu.Lock()
	delete(w.waiters, id)
	w.mu.Unlock()
}

// await blocks on a channel opened by register until id reaches a terminal
// status and returns its final UploadItem fields (status, error message).
func (w *statusWatcher) await(ctx context.Context, ch chan uploadmodel.UploadItem) (uploadmodel.UploadItem, error) {
	select {
	case item := <-ch:
		return item, nil
	case <-ctx.Done():
		return uploadmodel.UploadItem{}, ctx.Err()
	}
}
