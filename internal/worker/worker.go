package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"dracin/internal/artifact"
	"dracin/internal/catalog"
	"dracin/internal/config"
	"dracin/internal/ledger"
	"dracin/internal/logging"
	"dracin/internal/priority"
	"dracin/internal/services"
	"dracin/internal/services/ffmpeg"
	"dracin/internal/services/telegram"
	"dracin/internal/videodb"
)

// Status is a point-in-time snapshot of the acquisition loop.
type Status struct {
	RunID          string    `json:"run_id"`
	State          string    `json:"state"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	CurrentItem    string    `json:"current_item,omitempty"`
	CurrentEpisode int       `json:"current_episode,omitempty"`
	EpisodesDone   int       `json:"episodes_done"`
	EpisodesFailed int       `json:"episodes_failed"`
	BackoffUntil   time.Time `json:"backoff_until,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

// Worker drives acquisition: it selects the next item (priority queue first,
// then the catalog cursor), discovers its episodes through the session
// gateway, fetches and transcodes each one, and records completion in the
// ledger. Exactly one item and one episode are in flight at any time.
type Worker struct {
	catalog     *catalog.Catalog
	ledger      *ledger.Ledger
	queue       *priority.Queue
	gateway     telegram.Client
	transcoder  ffmpeg.Transcoder
	layout      artifact.Layout
	store       *videodb.Store
	logger      *slog.Logger
	runID       string
	onCompleted func(itemID string)

	bulk          bool
	settle        time.Duration
	interEpisode  time.Duration
	interItem     time.Duration
	floodFloor    time.Duration
	idlePoll      time.Duration
	scanWindow    int
	emptyAttempts int

	mu             sync.Mutex
	state          State
	startedAt      time.Time
	currentItem    string
	currentEp      int
	episodesDone   int
	episodesFailed int
	backoffUntil   time.Time
	lastError      string
	emptyPasses    map[string]int

	cancel context.CancelFunc
	done   chan struct{}
}

// Options carries the worker's collaborators. Store may be nil; history
// recording is then skipped.
type Options struct {
	Config     *config.Config
	Catalog    *catalog.Catalog
	Ledger     *ledger.Ledger
	Queue      *priority.Queue
	Gateway    telegram.Client
	Transcoder ffmpeg.Transcoder
	Layout     artifact.Layout
	Store      *videodb.Store
	Logger     *slog.Logger

	// OnCompleted, if set, runs after an item's completion is recorded.
	// Serving-cache mode uses it to admit the item into the retention LRU.
	OnCompleted func(itemID string)
}

// New builds a worker from its collaborators.
func New(opts Options) (*Worker, error) {
	if opts.Config == nil || opts.Catalog == nil || opts.Ledger == nil || opts.Queue == nil {
		return nil, errors.New("worker requires config, catalog, ledger, and queue")
	}
	if opts.Gateway == nil || opts.Transcoder == nil {
		return nil, errors.New("worker requires gateway and transcoder")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	wc := opts.Config.Worker
	return &Worker{
		catalog:       opts.Catalog,
		ledger:        opts.Ledger,
		queue:         opts.Queue,
		gateway:       opts.Gateway,
		transcoder:    opts.Transcoder,
		layout:        opts.Layout,
		store:         opts.Store,
		logger:        logging.NewComponentLogger(logger, "worker"),
		runID:         uuid.NewString(),
		onCompleted:   opts.OnCompleted,
		bulk:          wc.Enabled,
		settle:        time.Duration(wc.SettleSeconds) * time.Second,
		interEpisode:  time.Duration(wc.InterEpisodeDelay) * time.Second,
		interItem:     time.Duration(wc.InterItemDelay) * time.Second,
		floodFloor:    time.Duration(wc.FloodFloorSeconds) * time.Second,
		idlePoll:      time.Duration(wc.IdlePollSeconds) * time.Second,
		scanWindow:    wc.ScanWindow,
		emptyAttempts: wc.DiscoveryEmptyAttempts,
		emptyPasses:   make(map[string]int),
		state:         StateIdle,
	}, nil
}

// RunID identifies this worker instance's lifetime.
func (w *Worker) RunID() string { return w.runID }

// Start launches the acquisition loop.
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Lock()
	w.startedAt = time.Now()
	w.mu.Unlock()
	go func() {
		defer close(w.done)
		w.run(runCtx)
	}()
	w.logger.Info("worker started", logging.String(logging.FieldRunID, w.runID))
}

// Stop halts the loop and waits for it to exit. Safe to call more than once.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.setPhase(StateStopped, "", 0)
	w.logger.Info("worker stopped", logging.String(logging.FieldRunID, w.runID))
}

// Status returns the current loop snapshot.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		RunID:          w.runID,
		State:          string(w.state),
		StartedAt:      w.startedAt,
		CurrentItem:    w.currentItem,
		CurrentEpisode: w.currentEp,
		EpisodesDone:   w.episodesDone,
		EpisodesFailed: w.episodesFailed,
		BackoffUntil:   w.backoffUntil,
		LastError:      w.lastError,
	}
}

func (w *Worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		w.setPhase(StateSelecting, "", 0)
		item, index, ok := w.selectNext()
		if !ok {
			w.setPhase(StateIdle, "", 0)
			if !w.waitForWork(ctx) {
				return
			}
			continue
		}

		err := w.processItem(ctx, item, index)
		switch {
		case err == nil:
			w.setError("")
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, services.ErrRateLimited):
			w.setError(err.Error())
			if !w.backoffWait(ctx, err) {
				return
			}
		case errors.Is(err, services.ErrAuthPending):
			w.setError(err.Error())
			w.logger.Info("waiting for interactive authentication",
				logging.String(logging.FieldItemID, item.ID))
			if !w.sleep(ctx, w.idlePoll) {
				return
			}
		case errors.Is(err, services.ErrDiscoveryEmpty):
			// Bounded retry, not a failure; the skip itself is logged by
			// handleEmptyDiscovery once the budget runs out.
			w.setError(err.Error())
			w.logger.Warn("no videos discovered yet",
				logging.String(logging.FieldItemID, item.ID),
				logging.Int("attempt", w.emptyPasses[item.ID]),
				logging.Int("budget", w.emptyAttempts))
		default:
			w.setError(err.Error())
			w.logger.Error("item attempt failed",
				logging.String(logging.FieldItemID, item.ID),
				logging.Error(err))
		}

		if !w.sleep(ctx, w.interItem) {
			return
		}
	}
}

// waitForWork blocks until an enqueue arrives or the idle poll interval
// elapses. Returns false when the context ends.
func (w *Worker) waitForWork(ctx context.Context) bool {
	poll := w.idlePoll
	if poll <= 0 {
		poll = time.Second
	}
	select {
	case <-ctx.Done():
		return false
	case <-w.queue.Wake():
		return true
	case <-time.After(poll):
		return true
	}
}

// selectNext picks the next item: priority queue entries first, then the
// catalog cursor when bulk mode is enabled. Already-completed cursor items
// are skipped with the cursor persisted past them.
func (w *Worker) selectNext() (catalog.Item, int, bool) {
	for {
		id, ok := w.queue.Pop()
		if !ok {
			break
		}
		if w.ledger.IsCompleted(id) {
			continue
		}
		item, known := w.catalog.ByID(id)
		if !known {
			continue
		}
		index, _ := w.catalog.IndexOf(id)
		return item, index, true
	}

	if !w.bulk {
		return catalog.Item{}, 0, false
	}

	for i := w.ledger.Cursor(); i < w.catalog.Len(); i++ {
		item := w.catalog.At(i)
		if w.ledger.IsCompleted(item.ID) {
			if err := w.ledger.SetCursor(i + 1); err != nil {
				w.logger.Error("persist cursor", logging.Error(err))
			}
			continue
		}
		// The cursor item may also be queued; drop the duplicate.
		w.queue.Remove(item.ID)
		return item, i, true
	}
	return catalog.Item{}, 0, false
}

// triggerPrefix namespaces catalog ids for the upstream bot; manifest ids
// are stored bare.
const triggerPrefix = "/start playfirst-"

// processItem runs one full pass over an item: trigger, settle, scan, then
// fetch-and-transcode each missing episode. Preemption is honored at episode
// boundaries only.
func (w *Worker) processItem(ctx context.Context, item catalog.Item, index int) error {
	w.queue.BeginItem()
	defer w.queue.EndItem()

	logger := w.logger.With(logging.String(logging.FieldItemID, item.ID))

	// Re-runs and crash recovery: when the artifacts already satisfy the
	// item no session traffic happens at all.
	if w.layout.IsSatisfied(item.ID, item.Episodes) {
		return w.finalize(ctx, item, index, nil)
	}

	w.setPhase(StateDiscovering, item.ID, 0)
	if err := w.gateway.Connect(ctx); err != nil {
		return err
	}
	if err := w.gateway.ResolvePeer(ctx); err != nil {
		return err
	}
	if err := w.gateway.SendCommand(ctx, triggerPrefix+item.ID); err != nil {
		return err
	}
	if !w.sleep(ctx, w.settle) {
		return ctx.Err()
	}

	recent, err := w.gateway.ListRecent(ctx, w.scanWindow)
	if err != nil {
		return err
	}
	videos := orderEpisodes(recent, item.Episodes)
	if len(videos) == 0 {
		return w.handleEmptyDiscovery(item, index, logger)
	}
	delete(w.emptyPasses, item.ID)

	for i, msg := range videos {
		ordinal := i + 1
		if w.queue.TakePreempt() {
			logger.Info("preempted by priority request",
				logging.Int(logging.FieldEpisode, ordinal))
			// Partial artifacts persist; the item is re-selected after the
			// queue drains (via the cursor, or re-queued when it came from
			// the queue itself).
			if index != w.ledger.Cursor() || !w.bulk {
				w.queue.Enqueue(item.ID)
			}
			return nil
		}
		if w.layout.HasEpisode(item.ID, ordinal) {
			continue
		}
		switch err := w.fetchEpisode(ctx, item, ordinal, msg); {
		case err == nil:
			w.countEpisode(true)
		case errors.Is(err, services.ErrRateLimited),
			errors.Is(err, services.ErrAuthPending),
			ctx.Err() != nil:
			return err
		default:
			// A single bad episode should not stall the rest of the item;
			// finalize leaves the item incomplete so it is retried later.
			w.countEpisode(false)
			logger.Error("episode attempt failed, moving on",
				logging.Int(logging.FieldEpisode, ordinal),
				logging.Error(err))
		}
		if !w.sleep(ctx, w.interEpisode) {
			return ctx.Err()
		}
	}

	return w.finalize(ctx, item, index, logger)
}

// fetchEpisode downloads one episode and transcodes it into its final
// artifact. The raw download is removed only after a successful transcode.
func (w *Worker) fetchEpisode(ctx context.Context, item catalog.Item, ordinal int, msg telegram.Message) error {
	rawPath := w.layout.RawPath(item.ID, ordinal)
	finalPath := w.layout.EpisodePath(item.ID, ordinal)
	if err := w.layout.EnsureItemDir(item.ID); err != nil {
		return fmt.Errorf("ensure artifact directory: %w", err)
	}

	w.setPhase(StateFetching, item.ID, ordinal)
	if err := w.gateway.FetchPayload(ctx, msg, rawPath); err != nil {
		_ = os.Remove(rawPath)
		return err
	}

	w.setPhase(StateTranscoding, item.ID, ordinal)
	if err := w.transcoder.Transcode(ctx, rawPath, finalPath); err != nil {
		// Raw stays for the next attempt; only the partial output is gone.
		return err
	}
	if err := os.Remove(rawPath); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("remove raw download",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
	}

	if w.store != nil {
		ep := videodb.Episode{
			DramaID:         item.ID,
			Episode:         ordinal,
			MessageID:       int64(msg.ID),
			SizeBytes:       msg.SizeBytes,
			DurationSeconds: msg.DurationSeconds,
			FilePath:        finalPath,
		}
		if err := w.store.UpsertEpisode(ctx, ep); err != nil {
			w.logger.Warn("record episode", logging.Error(err))
		}
	}

	w.logger.Info("episode acquired",
		logging.String(logging.FieldItemID, item.ID),
		logging.Int(logging.FieldEpisode, ordinal),
		logging.Int64("size_bytes", msg.SizeBytes))
	return nil
}

// finalize checks whether the item is satisfied on disk and, if so, records
// completion and advances the cursor past it. A still-unsatisfied item stays
// where it is and will be retried on a later pass.
func (w *Worker) finalize(ctx context.Context, item catalog.Item, index int, logger *slog.Logger) error {
	if logger == nil {
		logger = w.logger.With(logging.String(logging.FieldItemID, item.ID))
	}
	w.setPhase(StateFinalizing, item.ID, 0)

	if !w.layout.IsSatisfied(item.ID, item.Episodes) {
		logger.Warn("item incomplete after pass",
			logging.Int("have", w.layout.CompletedCount(item.ID)),
			logging.Int("want", item.Episodes))
		return nil
	}

	if err := w.ledger.MarkCompleted(item.ID); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	if index == w.ledger.Cursor() {
		if err := w.ledger.SetCursor(index + 1); err != nil {
			return fmt.Errorf("advance cursor: %w", err)
		}
	}
	if w.store != nil {
		d := videodb.Drama{DramaID: item.ID, Title: item.Title, Episodes: item.Episodes}
		if err := w.store.UpsertDrama(ctx, d); err != nil {
			logger.Warn("record completion row", logging.Error(err))
		}
	}

	if w.onCompleted != nil {
		w.onCompleted(item.ID)
	}

	logger.Info("item completed", logging.Int("episodes", item.Episodes))
	return nil
}

// handleEmptyDiscovery counts consecutive all-empty scans. The item is
// skipped for good once the configured attempt budget is exhausted; until
// then the pass fails softly and is retried later.
func (w *Worker) handleEmptyDiscovery(item catalog.Item, index int, logger *slog.Logger) error {
	w.emptyPasses[item.ID]++
	if w.emptyPasses[item.ID] < w.emptyAttempts {
		return services.Wrap(services.ErrDiscoveryEmpty, "worker", "discover", item.ID, nil)
	}
	delete(w.emptyPasses, item.ID)

	logger.Warn("no videos after repeated scans, skipping item",
		logging.Int("attempts", w.emptyAttempts))
	if index == w.ledger.Cursor() {
		if err := w.ledger.SetCursor(index + 1); err != nil {
			return fmt.Errorf("advance cursor past empty item: %w", err)
		}
	}
	return nil
}

// backoffWait sleeps out a rate-limit signal. The duration is whichever is
// larger: the platform's retry-after or the configured floor.
func (w *Worker) backoffWait(ctx context.Context, err error) bool {
	wait := w.backoffDuration(err)
	until := time.Now().Add(wait)

	w.mu.Lock()
	w.state = StateBackoff
	w.backoffUntil = until
	w.mu.Unlock()

	w.logger.Warn("rate limited, backing off",
		logging.Duration("wait", wait),
		logging.Error(err))
	ok := w.sleep(ctx, wait)

	w.mu.Lock()
	w.backoffUntil = time.Time{}
	w.mu.Unlock()
	return ok
}

func (w *Worker) backoffDuration(err error) time.Duration {
	wait := w.floodFloor
	if d, ok := services.RetryAfter(err); ok && d > wait {
		wait = d
	}
	return wait
}

// orderEpisodes takes the newest limit video-bearing messages from a
// newest-first scan and flips them into chronological order, so position
// maps to episode ordinal. Older videos still in the window belong to a
// previously triggered item and must not be picked up.
func orderEpisodes(msgs []telegram.Message, limit int) []telegram.Message {
	videos := make([]telegram.Message, 0, limit)
	for _, m := range msgs {
		if !m.Video {
			continue
		}
		videos = append(videos, m)
		if len(videos) == limit {
			break
		}
	}
	for i, j := 0, len(videos)-1; i < j; i, j = i+1, j-1 {
		videos[i], videos[j] = videos[j], videos[i]
	}
	return videos
}

func (w *Worker) setPhase(state State, itemID string, episode int) {
	w.mu.Lock()
	w.state = state
	w.currentItem = itemID
	w.currentEp = episode
	w.mu.Unlock()
}

func (w *Worker) setError(msg string) {
	w.mu.Lock()
	w.lastError = msg
	w.mu.Unlock()
}

func (w *Worker) countEpisode(ok bool) {
	w.mu.Lock()
	if ok {
		w.episodesDone++
	} else {
		w.episodesFailed++
	}
	w.mu.Unlock()
}

// sleep pauses for d, returning false when the context ends first. A
// non-positive duration returns immediately.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
