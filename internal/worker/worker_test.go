package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"dracin/internal/artifact"
	"dracin/internal/catalog"
	"dracin/internal/config"
	"dracin/internal/ledger"
	"dracin/internal/priority"
	"dracin/internal/services"
	"dracin/internal/services/telegram"
	"dracin/internal/testsupport"
)

// fakeGateway scripts the session gateway: SendCommand selects which item's
// messages ListRecent returns, FetchPayload writes a small raw file.
type fakeGateway struct {
	mu          sync.Mutex
	messages    map[string][]telegram.Message
	currentItem string
	commands    []string
	fetched     []int
	listErr     error
	connectErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{messages: make(map[string][]telegram.Message)}
}

func (g *fakeGateway) Connect(ctx context.Context) error { return g.connectErr }
func (g *fakeGateway) Close() error                      { return nil }

func (g *fakeGateway) AuthState() telegram.AuthState     { return telegram.AuthReady }
func (g *fakeGateway) SubmitPhoneNumber(string) error    { return nil }
func (g *fakeGateway) SubmitCode(string) error           { return nil }
func (g *fakeGateway) ResolvePeer(context.Context) error { return nil }

func (g *fakeGateway) SendCommand(_ context.Context, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commands = append(g.commands, text)
	if rest, ok := strings.CutPrefix(text, triggerPrefix); ok {
		g.currentItem = rest
	}
	return nil
}

func (g *fakeGateway) ListRecent(context.Context, int) ([]telegram.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.messages[g.currentItem], nil
}

func (g *fakeGateway) FetchPayload(_ context.Context, msg telegram.Message, destPath string) error {
	g.mu.Lock()
	g.fetched = append(g.fetched, msg.ID)
	g.mu.Unlock()
	return os.WriteFile(destPath, []byte("raw-payload"), 0o644)
}

func (g *fakeGateway) fetches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.fetched)
}

// fakeTranscoder copies raw bytes into the final artifact. afterEpisode, if
// set, runs after each successful transcode.
type fakeTranscoder struct {
	mu           sync.Mutex
	count        int
	afterEpisode func()
	err          error
}

func (f *fakeTranscoder) Transcode(_ context.Context, inputPath, outputPath string) error {
	if f.err != nil {
		return f.err
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, append([]byte("transcoded:"), data...), 0o644); err != nil {
		return err
	}
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	if f.afterEpisode != nil {
		f.afterEpisode()
	}
	return nil
}

// videoBurst builds n video-bearing messages newest-first, the shape a
// conversation scan returns.
func videoBurst(n int) []telegram.Message {
	msgs := make([]telegram.Message, 0, n+2)
	msgs = append(msgs, telegram.Message{ID: 1000}) // trailing bot text
	for i := n; i >= 1; i-- {
		msgs = append(msgs, telegram.Message{ID: 100 + i, Video: true, SizeBytes: 1024, DurationSeconds: 60})
	}
	msgs = append(msgs, telegram.Message{ID: 1}) // the /start echo
	return msgs
}

type fixture struct {
	worker  *Worker
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	queue   *priority.Queue
	gateway *fakeGateway
	trans   *fakeTranscoder
	layout  artifact.Layout
	cfg     *config.Config
}

func newFixture(t *testing.T, items []catalog.Item) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithWorkerEnabled(true))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	testsupport.WriteManifest(t, cfg.Paths.ManifestPath, items)
	cat, err := catalog.Load(cfg.Paths.ManifestPath)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}

	led := testsupport.MustOpenLedger(t, cfg)
	queue := priority.New(led.IsCompleted, func(id string) bool {
		_, ok := cat.ByID(id)
		return ok
	})

	gateway := newFakeGateway()
	trans := &fakeTranscoder{}
	layout := artifact.Layout{VideoDir: cfg.Paths.VideoDir, CompressedDir: cfg.Paths.CompressedDir}

	w, err := New(Options{
		Config:     cfg,
		Catalog:    cat,
		Ledger:     led,
		Queue:      queue,
		Gateway:    gateway,
		Transcoder: trans,
		Layout:     layout,
	})
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}

	return &fixture{worker: w, catalog: cat, ledger: led, queue: queue, gateway: gateway, trans: trans, layout: layout, cfg: cfg}
}

func twoItems() []catalog.Item {
	return []catalog.Item{
		{ID: "100", Title: "Drama A", Episodes: 3},
		{ID: "200", Title: "Drama B", Episodes: 2},
	}
}

func TestProcessItemAcquiresAllEpisodes(t *testing.T) {
	fx := newFixture(t, twoItems())
	fx.gateway.messages["100"] = videoBurst(3)

	item := fx.catalog.At(0)
	if err := fx.worker.processItem(context.Background(), item, 0); err != nil {
		t.Fatalf("processItem: %v", err)
	}

	for ep := 1; ep <= 3; ep++ {
		if !fx.layout.HasEpisode(item.ID, ep) {
			t.Fatalf("expected artifact for ep%d", ep)
		}
		if _, err := os.Stat(fx.layout.RawPath(item.ID, ep)); !os.IsNotExist(err) {
			t.Fatalf("expected raw download for ep%d removed", ep)
		}
	}
	if !fx.ledger.IsCompleted(item.ID) {
		t.Fatal("expected item marked completed")
	}
	if fx.ledger.Cursor() != 1 {
		t.Fatalf("expected cursor advanced to 1, got %d", fx.ledger.Cursor())
	}
	if len(fx.gateway.commands) != 1 || fx.gateway.commands[0] != "/start playfirst-100" {
		t.Fatalf("expected single namespaced trigger command, got %v", fx.gateway.commands)
	}
	if got := fx.worker.Status().EpisodesDone; got != 3 {
		t.Fatalf("expected 3 acquired episodes counted, got %d", got)
	}
}

func TestProcessItemSatisfiedWithoutNetwork(t *testing.T) {
	fx := newFixture(t, twoItems())
	item := fx.catalog.At(0)

	for ep := 1; ep <= item.Episodes; ep++ {
		testsupport.WriteFile(t, fx.layout.EpisodePath(item.ID, ep), 64)
	}
	// Any session traffic would fail loudly.
	fx.gateway.connectErr = errors.New("must not connect")

	if err := fx.worker.processItem(context.Background(), item, 0); err != nil {
		t.Fatalf("processItem: %v", err)
	}
	if !fx.ledger.IsCompleted(item.ID) {
		t.Fatal("expected completion recorded from artifacts alone")
	}
	if fx.gateway.fetches() != 0 {
		t.Fatalf("expected no fetches, got %d", fx.gateway.fetches())
	}
}

func TestProcessItemResumesPartial(t *testing.T) {
	fx := newFixture(t, twoItems())
	item := fx.catalog.At(0)
	fx.gateway.messages[item.ID] = videoBurst(3)

	testsupport.WriteFile(t, fx.layout.EpisodePath(item.ID, 1), 64)

	if err := fx.worker.processItem(context.Background(), item, 0); err != nil {
		t.Fatalf("processItem: %v", err)
	}
	if fx.gateway.fetches() != 2 {
		t.Fatalf("expected only the missing episodes fetched, got %d", fx.gateway.fetches())
	}
	if !fx.ledger.IsCompleted(item.ID) {
		t.Fatal("expected item completed after resume")
	}
}

func TestProcessItemPreemptedAtEpisodeBoundary(t *testing.T) {
	fx := newFixture(t, twoItems())
	item := fx.catalog.At(0)
	fx.gateway.messages[item.ID] = videoBurst(3)

	fx.trans.afterEpisode = func() {
		if fx.trans.count == 1 {
			fx.queue.Enqueue("200")
		}
	}

	if err := fx.worker.processItem(context.Background(), item, 0); err != nil {
		t.Fatalf("processItem: %v", err)
	}
	if fx.trans.count != 1 {
		t.Fatalf("expected processing abandoned after first episode, got %d", fx.trans.count)
	}
	if fx.ledger.IsCompleted(item.ID) {
		t.Fatal("preempted item must not be completed")
	}
	if !fx.layout.HasEpisode(item.ID, 1) {
		t.Fatal("partial artifact must persist across preemption")
	}
	if fx.queue.Len() != 1 {
		t.Fatalf("expected priority entry still queued, got %d", fx.queue.Len())
	}
}

func TestSelectNextPrefersQueue(t *testing.T) {
	fx := newFixture(t, twoItems())
	fx.queue.Enqueue("200")

	item, index, ok := fx.worker.selectNext()
	if !ok {
		t.Fatal("expected work")
	}
	if item.ID != "200" || index != 1 {
		t.Fatalf("expected queued item first, got %s at %d", item.ID, index)
	}
}

func TestSelectNextSkipsCompleted(t *testing.T) {
	fx := newFixture(t, twoItems())
	if err := fx.ledger.MarkCompleted("100"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	item, index, ok := fx.worker.selectNext()
	if !ok {
		t.Fatal("expected work")
	}
	if item.ID != "200" || index != 1 {
		t.Fatalf("expected cursor to skip completed item, got %s at %d", item.ID, index)
	}
	if fx.ledger.Cursor() != 1 {
		t.Fatalf("expected cursor persisted past completed item, got %d", fx.ledger.Cursor())
	}
}

func TestSelectNextPriorityOnlyMode(t *testing.T) {
	fx := newFixture(t, twoItems())
	fx.worker.bulk = false

	if _, _, ok := fx.worker.selectNext(); ok {
		t.Fatal("expected no cursor work when bulk mode is disabled")
	}

	fx.queue.Enqueue("200")
	item, _, ok := fx.worker.selectNext()
	if !ok || item.ID != "200" {
		t.Fatalf("expected queued item in priority-only mode, got %v %v", item.ID, ok)
	}
}

func TestEmptyDiscoverySkipsAfterBudget(t *testing.T) {
	fx := newFixture(t, twoItems())
	item := fx.catalog.At(0)
	// No messages scripted: every scan comes back without videos.

	for attempt := 1; attempt < fx.cfg.Worker.DiscoveryEmptyAttempts; attempt++ {
		err := fx.worker.processItem(context.Background(), item, 0)
		if !errors.Is(err, services.ErrDiscoveryEmpty) {
			t.Fatalf("attempt %d: expected empty-discovery error, got %v", attempt, err)
		}
		if fx.ledger.Cursor() != 0 {
			t.Fatalf("attempt %d: cursor must not move yet", attempt)
		}
	}

	if err := fx.worker.processItem(context.Background(), item, 0); err != nil {
		t.Fatalf("final attempt: %v", err)
	}
	if fx.ledger.Cursor() != 1 {
		t.Fatalf("expected cursor advanced past empty item, got %d", fx.ledger.Cursor())
	}
	if fx.ledger.IsCompleted(item.ID) {
		t.Fatal("skipped item must not be marked completed")
	}
}

func TestRateLimitPropagates(t *testing.T) {
	fx := newFixture(t, twoItems())
	fx.gateway.listErr = services.RateLimited(7*time.Minute, errors.New("FLOOD_WAIT_420"))

	err := fx.worker.processItem(context.Background(), fx.catalog.At(0), 0)
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected rate-limit signal, got %v", err)
	}
	if d := fx.worker.backoffDuration(err); d != 7*time.Minute {
		t.Fatalf("expected signalled retry-after to win, got %v", d)
	}
}

func TestBackoffFloorApplies(t *testing.T) {
	fx := newFixture(t, twoItems())
	err := services.RateLimited(0, errors.New("FLOOD"))
	want := time.Duration(fx.cfg.Worker.FloodFloorSeconds) * time.Second
	if d := fx.worker.backoffDuration(err); d != want {
		t.Fatalf("expected floor %v, got %v", want, d)
	}
}

func TestTranscodeFailureKeepsRaw(t *testing.T) {
	fx := newFixture(t, twoItems())
	item := fx.catalog.At(0)
	fx.gateway.messages[item.ID] = videoBurst(3)
	fx.trans.err = services.Wrap(services.ErrTranscode, "ffmpeg", "transcode", "boom", nil)

	if err := fx.worker.processItem(context.Background(), item, 0); err != nil {
		t.Fatalf("processItem: %v", err)
	}
	for ep := 1; ep <= 3; ep++ {
		if _, statErr := os.Stat(fx.layout.RawPath(item.ID, ep)); statErr != nil {
			t.Fatalf("expected raw download kept for ep%d retry: %v", ep, statErr)
		}
	}
	if fx.ledger.IsCompleted(item.ID) {
		t.Fatal("failing item must not be marked completed")
	}
	if fx.ledger.Cursor() != 0 {
		t.Fatal("cursor must not advance past a failing item")
	}
	if got := fx.worker.Status().EpisodesFailed; got != 3 {
		t.Fatalf("expected 3 failed episodes counted, got %d", got)
	}
}

func TestOrderEpisodes(t *testing.T) {
	msgs := []telegram.Message{
		{ID: 30, Video: true},
		{ID: 20},
		{ID: 10, Video: true},
	}
	ordered := orderEpisodes(msgs, 5)
	if len(ordered) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(ordered))
	}
	if ordered[0].ID != 10 || ordered[1].ID != 30 {
		t.Fatalf("expected chronological order, got %v", ordered)
	}

	newest := orderEpisodes(msgs, 1)
	if len(newest) != 1 || newest[0].ID != 30 {
		t.Fatalf("expected the newest video kept when limited, got %v", newest)
	}
}

func TestScanWindowCapsAtEpisodeCount(t *testing.T) {
	fx := newFixture(t, twoItems())
	item := fx.catalog.At(1) // 2 episodes
	fx.gateway.messages[item.ID] = videoBurst(5)

	if err := fx.worker.processItem(context.Background(), item, 1); err != nil {
		t.Fatalf("processItem: %v", err)
	}
	// videoBurst(5) is newest-first 105..101; only the newest two are this
	// item's episodes, fetched in chronological order.
	fx.gateway.mu.Lock()
	fetched := append([]int(nil), fx.gateway.fetched...)
	fx.gateway.mu.Unlock()
	if len(fetched) != 2 || fetched[0] != 104 || fetched[1] != 105 {
		t.Fatalf("expected newest messages 104,105 fetched, got %v", fetched)
	}
	if fx.layout.HasEpisode(item.ID, 3) {
		t.Fatal("must not write artifacts beyond the episode count")
	}
}

func TestDiscoveryIgnoresStaleWindowVideos(t *testing.T) {
	fx := newFixture(t, twoItems())
	item := fx.catalog.At(1) // 2 episodes
	// The shared conversation still holds the previous item's videos
	// (101, 102) below the freshly delivered burst.
	fx.gateway.messages[item.ID] = []telegram.Message{
		{ID: 202, Video: true, SizeBytes: 1024},
		{ID: 201, Video: true, SizeBytes: 1024},
		{ID: 102, Video: true, SizeBytes: 1024},
		{ID: 101, Video: true, SizeBytes: 1024},
	}

	if err := fx.worker.processItem(context.Background(), item, 1); err != nil {
		t.Fatalf("processItem: %v", err)
	}
	fx.gateway.mu.Lock()
	fetched := append([]int(nil), fx.gateway.fetched...)
	fx.gateway.mu.Unlock()
	if len(fetched) != 2 || fetched[0] != 201 || fetched[1] != 202 {
		t.Fatalf("expected fresh messages 201,202 fetched, got %v", fetched)
	}
	if !fx.ledger.IsCompleted(item.ID) {
		t.Fatal("expected item completed from its own videos")
	}
}

func TestRunLoopDrainsQueueItem(t *testing.T) {
	fx := newFixture(t, twoItems())
	fx.gateway.messages["100"] = videoBurst(3)
	fx.gateway.messages["200"] = videoBurst(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fx.queue.Enqueue("200")
	fx.worker.Start(ctx)

	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		if fx.ledger.IsCompleted("100") && fx.ledger.IsCompleted("200") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	fx.worker.Stop()

	if !fx.ledger.IsCompleted("200") {
		t.Fatal("expected queued item completed")
	}
	if !fx.ledger.IsCompleted("100") {
		t.Fatal("expected cursor item completed")
	}
	if got := fx.worker.Status().State; got != string(StateStopped) {
		t.Fatalf("expected stopped state, got %s", got)
	}
}

// logSink captures records so tests can assert on levels.
type logSink struct {
	mu      sync.Mutex
	records []slog.Record
}

func (s *logSink) Enabled(context.Context, slog.Level) bool { return true }
func (s *logSink) WithAttrs([]slog.Attr) slog.Handler       { return s }
func (s *logSink) WithGroup(string) slog.Handler            { return s }

func (s *logSink) Handle(_ context.Context, r slog.Record) error {
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
	return nil
}

func (s *logSink) snapshot() []slog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]slog.Record(nil), s.records...)
}

func TestEmptyDiscoveryRetriesWithoutErrorLogs(t *testing.T) {
	fx := newFixture(t, twoItems())
	sink := &logSink{}
	fx.worker.logger = slog.New(sink)
	// No messages scripted: every item exhausts its empty-scan budget.

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fx.worker.Start(ctx)

	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		if fx.ledger.Cursor() == fx.catalog.Len() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	fx.worker.Stop()

	var retried bool
	for _, r := range sink.snapshot() {
		if r.Level >= slog.LevelError {
			t.Fatalf("unexpected error-level log during bounded retry: %s", r.Message)
		}
		if r.Message == "no videos discovered yet" {
			retried = true
		}
	}
	if !retried {
		t.Fatal("expected warn-level retry log for empty discovery")
	}
}
