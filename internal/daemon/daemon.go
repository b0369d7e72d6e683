package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"dracin/internal/artifact"
	"dracin/internal/catalog"
	"dracin/internal/config"
	"dracin/internal/ledger"
	"dracin/internal/logging"
	"dracin/internal/priority"
	"dracin/internal/retention"
	"dracin/internal/services/telegram"
	"dracin/internal/videodb"
	"dracin/internal/worker"
)

// Daemon coordinates the acquisition worker, the serving API, and the
// optional retention cache, and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	queue   *priority.Queue
	gateway telegram.Client
	worker  *worker.Worker
	cache   *retention.Cache
	store   *videodb.Store
	layout  artifact.Layout

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool          `json:"running"`
	PID            int           `json:"pid"`
	Auth           string        `json:"auth_state"`
	Worker         worker.Status `json:"worker"`
	Cursor         int           `json:"cursor"`
	CatalogSize    int           `json:"catalog_size"`
	CompletedCount int           `json:"completed_count"`
	Queue          []string      `json:"queue"`
	DiskFreeBytes  uint64        `json:"disk_free_bytes"`
	DiskTotalBytes uint64        `json:"disk_total_bytes"`
	LockFilePath   string        `json:"lock_file"`
}

// Options carries the daemon's collaborators. Cache and Store may be nil.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Catalog *catalog.Catalog
	Ledger  *ledger.Ledger
	Queue   *priority.Queue
	Gateway telegram.Client
	Worker  *worker.Worker
	Cache   *retention.Cache
	Store   *videodb.Store
	Layout  artifact.Layout
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Catalog == nil || opts.Ledger == nil || opts.Queue == nil {
		return nil, errors.New("daemon requires config, catalog, ledger, and queue")
	}
	if opts.Gateway == nil || opts.Worker == nil {
		return nil, errors.New("daemon requires gateway and worker")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(opts.Config.Paths.LogDir, "dracind.lock")
	d := &Daemon{
		cfg:      opts.Config,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		catalog:  opts.Catalog,
		ledger:   opts.Ledger,
		queue:    opts.Queue,
		gateway:  opts.Gateway,
		worker:   opts.Worker,
		cache:    opts.Cache,
		store:    opts.Store,
		layout:   opts.Layout,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(opts.Config, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the worker and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dracin daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.cache != nil {
		if err := d.cache.Prime(); err != nil {
			d.logger.Warn("prime retention cache", logging.Error(err))
		}
	}
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			_ = d.lock.Unlock()
			cancel()
			d.cancel = nil
			return err
		}
	}
	d.worker.Start(runCtx)

	d.running.Store(true)
	d.logger.Info("dracin daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.worker.Stop()
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("dracin daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.gateway != nil {
		errs = append(errs, d.gateway.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	if d.ledger != nil {
		errs = append(errs, d.ledger.Close())
	}
	return errors.Join(errs...)
}

// Status collects a point-in-time view across all subsystems.
func (d *Daemon) Status() Status {
	snap := d.ledger.Snapshot()
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		Auth:           string(d.gateway.AuthState()),
		Worker:         d.worker.Status(),
		Cursor:         snap.Cursor,
		CatalogSize:    d.catalog.Len(),
		CompletedCount: len(snap.Completed),
		Queue:          d.queue.Snapshot(),
		LockFilePath:   d.lockPath,
	}
	if free, total, err := artifact.DiskFree(d.cfg.Paths.CompressedDir); err == nil {
		status.DiskFreeBytes = free
		status.DiskTotalBytes = total
	}
	return status
}

// Prioritize enqueues an item for out-of-order acquisition. On acceptance
// the returned position is the item's 1-based place in the queue.
func (d *Daemon) Prioritize(id string) (bool, string, int) {
	accepted, reason := d.queue.Enqueue(id)
	if !accepted {
		return false, reason, 0
	}
	d.logger.Info("item prioritized", logging.String(logging.FieldItemID, id))
	return true, reason, d.queue.Len()
}

// Videos lists an item's episodes: on-disk artifacts first, recorded history
// when nothing is materialized. An incomplete item is queued for priority
// acquisition as a side effect, and serving-cache mode refreshes recency.
func (d *Daemon) Videos(id string) ([]artifact.Episode, error) {
	item, ok := d.catalog.ByID(id)
	if !ok {
		return nil, fmt.Errorf("unknown item %q", id)
	}
	episodes, err := d.layout.Episodes(id)
	if err != nil {
		return nil, err
	}
	onDisk := len(episodes)

	if onDisk == 0 && d.store != nil {
		rows, rowErr := d.store.EpisodesFor(context.Background(), id)
		if rowErr != nil {
			d.logger.Warn("read episode history", logging.Error(rowErr))
		}
		for _, row := range rows {
			episodes = append(episodes, artifact.Episode{Ordinal: row.Episode, Size: row.SizeBytes})
		}
	}

	if onDisk < item.Episodes {
		if accepted, _ := d.queue.Enqueue(id); accepted {
			d.logger.Info("requested item not materialized, queued",
				logging.String(logging.FieldItemID, id))
		}
	}
	if d.cache != nil && onDisk > 0 {
		d.cache.Touch(id)
	}
	return episodes, nil
}
