package migrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/dialogs"
	"github.com/nextlevelbuilder/chatmover/internal/engine"
	"github.com/nextlevelbuilder/chatmover/internal/groups"
	"github.com/nextlevelbuilder/chatmover/internal/ledger"
	"github.com/nextlevelbuilder/chatmover/internal/progress"
	"github.com/nextlevelbuilder/chatmover/internal/ratelimit"
	"github.com/nextlevelbuilder/chatmover/internal/realtime"
	"github.com/nextlevelbuilder/chatmover/internal/report"
	"github.com/nextlevelbuilder/chatmover/internal/telegram"
	"github.com/nextlevelbuilder/chatmover/pkg/events"
)

// fakeClient is an in-memory wire: dialogs with per-conversation histories,
// counting every mutating call so tests can assert side effects precisely.
type fakeClient struct {
	mu sync.Mutex

	self      telegram.User
	dialogs   []telegram.Dialog
	histories map[int64][]telegram.Message // newest first

	// floodOnForward makes the nth Forward call (1-based) fail with a
	// flood wait of the given seconds; errOnForward fails it with an
	// arbitrary error instead.
	floodOnForward    map[int]int
	errOnForward      map[int]error
	inviteErr         error
	resolveChannelErr error
	beforeForward     func(call int)

	forwardCalls int
	forwards     map[int64][]int // dest group id -> ids in arrival order
	created      []string        // titles in creation order
	invites      []string
	notices      []string
	noticeTo     []int64
	handler      func(peer telegram.Peer, msg telegram.Message)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		self:           telegram.User{ID: 999, AccessHash: 7, Phone: "+15550001111"},
		histories:      map[int64][]telegram.Message{},
		floodOnForward: map[int]int{},
		errOnForward:   map[int]error{},
		forwards:       map[int64][]int{},
	}
}

// addDialog registers a private chat whose history holds msgIDs, given in
// ascending order.
func (f *fakeClient) addDialog(id int64, name string, msgIDs ...int) {
	peer := telegram.Peer{Kind: telegram.PeerUser, ID: id, AccessHash: id * 10}
	top := 0
	if len(msgIDs) > 0 {
		top = msgIDs[len(msgIDs)-1]
	}
	f.dialogs = append(f.dialogs, telegram.Dialog{
		Peer:       peer,
		Name:       name,
		TopMessage: top,
		Entity:     &telegram.User{ID: id},
	})
	msgs := make([]telegram.Message, 0, len(msgIDs))
	for i := len(msgIDs) - 1; i >= 0; i-- {
		msgs = append(msgs, telegram.Message{ID: msgIDs[i]})
	}
	f.histories[peer.ID] = msgs
}

// inject delivers a live message to the subscription handler, as the wire
// would while a migration is running.
func (f *fakeClient) inject(peerID int64, msgID int) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(telegram.Peer{Kind: telegram.PeerUser, ID: peerID}, telegram.Message{ID: msgID})
	}
}

func (f *fakeClient) Me(ctx context.Context) (telegram.User, error) { return f.self, nil }

func (f *fakeClient) DialogList(ctx context.Context) ([]telegram.Dialog, error) {
	return f.dialogs, nil
}

func (f *fakeClient) History(ctx context.Context, peer telegram.Peer, offsetID, limit int) (telegram.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	full := f.histories[peer.ID]
	var page []telegram.Message
	for _, m := range full {
		if offsetID > 0 && m.ID >= offsetID {
			continue
		}
		page = append(page, m)
		if len(page) == limit {
			break
		}
	}
	return telegram.HistoryPage{Messages: page, Count: len(full)}, nil
}

func (f *fakeClient) Forward(ctx context.Context, from, to telegram.Peer, ids []int, nonces []int64) error {
	f.mu.Lock()
	f.forwardCalls++
	call := f.forwardCalls
	hook := f.beforeForward
	if len(nonces) != len(ids) {
		f.mu.Unlock()
		return fmt.Errorf("nonce count %d does not match id count %d", len(nonces), len(ids))
	}
	if secs, ok := f.floodOnForward[call]; ok {
		f.mu.Unlock()
		return &telegram.FloodWaitError{Seconds: secs}
	}
	if err, ok := f.errOnForward[call]; ok {
		f.mu.Unlock()
		return err
	}
	f.forwards[to.ID] = append(f.forwards[to.ID], ids...)
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return nil
}

func (f *fakeClient) CreateSupergroup(ctx context.Context, title, about string) (telegram.Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, title)
	id := int64(5000 + len(f.created))
	return telegram.Peer{Kind: telegram.PeerChannel, ID: id, AccessHash: 99}, nil
}

func (f *fakeClient) Invite(ctx context.Context, group telegram.Peer, user string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inviteErr != nil {
		return f.inviteErr
	}
	f.invites = append(f.invites, fmt.Sprintf("%d:%s", group.ID, user))
	return nil
}

func (f *fakeClient) Resolve(ctx context.Context, username string) (telegram.Peer, error) {
	return telegram.Peer{Kind: telegram.PeerUser, ID: 1000}, nil
}

func (f *fakeClient) ResolveChannel(ctx context.Context, id int64) (telegram.Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveChannelErr != nil {
		return telegram.Peer{}, f.resolveChannelErr
	}
	return telegram.Peer{Kind: telegram.PeerChannel, ID: id, AccessHash: 7}, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, peer telegram.Peer, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, text)
	f.noticeTo = append(f.noticeTo, peer.ID)
	return nil
}

func (f *fakeClient) OnNewMessage(handler func(peer telegram.Peer, msg telegram.Message)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return func() {
		f.mu.Lock()
		f.handler = nil
		f.mu.Unlock()
	}
}

// fakePacer records flood waits without sleeping.
type fakePacer struct {
	mu       sync.Mutex
	recorded []int
	slept    []int
}

func (p *fakePacer) RecordFloodWait(seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorded = append(p.recorded, seconds)
}

func (p *fakePacer) SleepFloodWait(ctx context.Context, seconds int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slept = append(p.slept, seconds)
	return ctx.Err()
}

type eventLog struct {
	mu  sync.Mutex
	log []events.Event
}

func (l *eventLog) sink() events.Sink {
	return func(e events.Event) {
		l.mu.Lock()
		l.log = append(l.log, e)
		l.mu.Unlock()
	}
}

func (l *eventLog) has(typ string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.log {
		if e.Type == typ {
			return true
		}
	}
	return false
}

type fixture struct {
	t      *testing.T
	cfg    *config.Config
	client *fakeClient
	store  *progress.Store
	pacer  *fakePacer
	log    *eventLog
	deps   Deps
	mig    *Migrator
}

func newFixture(t *testing.T, client *fakeClient) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Account.PhoneA = "+15550001111"
	cfg.Account.TargetUserB = "@account_b"
	cfg.Migration.GroupCreationDelayMs = 0
	cfg.Migration.ProgressPath = filepath.Join(t.TempDir(), "progress.json")

	log := &eventLog{}
	store := progress.NewStore(cfg.Migration.ProgressPath)
	ctrl := ratelimit.New(0, 0, 0)
	nonces := telegram.CryptoNonceSource{}
	pacer := &fakePacer{}

	deps := Deps{
		Cfg:      cfg,
		Client:   client,
		Store:    store,
		Enum:     dialogs.NewEnumerator(client),
		Groups:   groups.NewManager(client, cfg.Migration.GroupNamePrefix, 0),
		Engine:   engine.New(client, ctrl, nonces, engine.WithSink(log.sink())),
		Tail:     realtime.New(client, ctrl, nonces, 100, log.sink()),
		Limiter:  pacer,
		Reporter: report.NewAggregator(),
		Sink:     log.sink(),
	}
	return &fixture{
		t:      t,
		cfg:    cfg,
		client: client,
		store:  store,
		pacer:  pacer,
		log:    log,
		deps:   deps,
		mig:    New(deps),
	}
}

func (f *fixture) attachLedger(led *ledger.Ledger) {
	f.deps.Ledger = led
	f.mig = New(f.deps)
}

func (f *fixture) run(opts Opts) error {
	f.t.Helper()
	return f.mig.Run(context.Background(), opts)
}

func (f *fixture) conv(key string) progress.Conv {
	f.t.Helper()
	c, ok := f.store.Get(key)
	if !ok {
		f.t.Fatalf("conversation %s not in store", key)
	}
	return c
}

func (f *fixture) wantNotice(substr string) {
	f.t.Helper()
	f.client.mu.Lock()
	defer f.client.mu.Unlock()
	for _, n := range f.client.notices {
		if strings.Contains(n, substr) {
			return
		}
	}
	f.t.Fatalf("no notice containing %q, got %v", substr, f.client.notices)
}

// seq builds [from, to] inclusive.
func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunMigratesAllDialogs(t *testing.T) {
	client := newFakeClient()
	client.addDialog(101, "Alice", 10, 11, 12)
	client.addDialog(202, "Bob", 20, 21)
	f := newFixture(t, client)

	ctx := context.Background()
	led, err := ledger.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer led.Close()
	f.attachLedger(led)

	if err := f.run(Opts{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, key := range []string{"101", "202"} {
		if got := f.conv(key).Status; got != progress.StatusCompleted {
			t.Errorf("conv %s status = %q, want %q", key, got, progress.StatusCompleted)
		}
	}
	g := f.store.Snapshot()
	if g.Stats.CompletedDialogs != 2 || g.Stats.MigratedMessages != 5 {
		t.Errorf("stats = %d dialogs / %d messages, want 2 / 5",
			g.Stats.CompletedDialogs, g.Stats.MigratedMessages)
	}
	if g.Phase != progress.PhaseCompleted {
		t.Errorf("phase = %q, want %q", g.Phase, progress.PhaseCompleted)
	}

	wantTitles := []string{"[Migrated] Alice", "[Migrated] Bob"}
	if len(client.created) != 2 || client.created[0] != wantTitles[0] || client.created[1] != wantTitles[1] {
		t.Errorf("created groups = %v, want %v", client.created, wantTitles)
	}
	if len(client.invites) != 2 {
		t.Errorf("invites = %v, want one per created group", client.invites)
	}
	if !equalInts(client.forwards[5001], []int{10, 11, 12}) {
		t.Errorf("group 5001 got %v, want [10 11 12]", client.forwards[5001])
	}
	if !equalInts(client.forwards[5002], []int{20, 21}) {
		t.Errorf("group 5002 got %v, want [20 21]", client.forwards[5002])
	}
	if got := f.store.DailyCount(); got != 2 {
		t.Errorf("daily count = %d, want 2", got)
	}
	for _, to := range client.noticeTo {
		if to != client.self.ID {
			t.Errorf("notice sent to %d, want self %d", to, client.self.ID)
		}
	}
	f.wantNotice("Migration finished: 2/2")

	if _, err := os.Stat(f.cfg.Migration.ProgressPath); err != nil {
		t.Errorf("progress file missing: %v", err)
	}

	ls, err := led.Stats(ctx)
	if err != nil {
		t.Fatalf("ledger stats: %v", err)
	}
	if ls.Runs != 1 || ls.Forwards != 5 || ls.Dialogs != 2 {
		t.Errorf("ledger stats = %d runs / %d forwards / %d dialogs, want 1 / 5 / 2",
			ls.Runs, ls.Forwards, ls.Dialogs)
	}
	ok, dest, err := led.Forwarded(ctx, 101, 12)
	if err != nil || !ok || dest != 5001 {
		t.Errorf("Forwarded(101, 12) = %v %d %v, want true 5001 nil", ok, dest, err)
	}
	if ok, _, _ := led.Forwarded(ctx, 101, 99); ok {
		t.Error("Forwarded(101, 99) = true for a message never forwarded")
	}

	for _, typ := range []string{
		events.EventRunStarted, events.EventDialogStarted,
		events.EventBatchCompleted, events.EventDialogCompleted,
		events.EventRunCompleted,
	} {
		if !f.log.has(typ) {
			t.Errorf("event %q never emitted", typ)
		}
	}
}

func TestRunRetriesAfterShortFloodWait(t *testing.T) {
	client := newFakeClient()
	client.addDialog(301, "Carol", seq(1, 250)...)
	client.floodOnForward[2] = 60
	f := newFixture(t, client)

	if err := f.run(Opts{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec := f.conv("301")
	if rec.Status != progress.StatusCompleted {
		t.Fatalf("status = %q, want %q", rec.Status, progress.StatusCompleted)
	}
	if rec.MigratedCount != 250 {
		t.Errorf("migrated = %d, want 250", rec.MigratedCount)
	}
	if rec.LastMessageID == nil || *rec.LastMessageID != 250 {
		t.Errorf("lastMessageID = %v, want 250", rec.LastMessageID)
	}
	if !equalInts(client.forwards[5001], seq(1, 250)) {
		t.Errorf("forwarded ids out of order or incomplete: %d ids", len(client.forwards[5001]))
	}
	if client.forwardCalls != 4 {
		t.Errorf("forward calls = %d, want 4 (one flood, three good)", client.forwardCalls)
	}
	if len(f.pacer.slept) != 1 || f.pacer.slept[0] != 60 {
		t.Errorf("slept = %v, want [60]", f.pacer.slept)
	}
	g := f.store.Snapshot()
	if g.Stats.FloodWaitCount != 1 || g.Stats.TotalFloodWaitSeconds != 60 {
		t.Errorf("flood stats = %d events / %ds, want 1 / 60s",
			g.Stats.FloodWaitCount, g.Stats.TotalFloodWaitSeconds)
	}
	f.wantNotice("Migration finished: 1/1")
}

func TestRunStopsOnLongFloodWait(t *testing.T) {
	client := newFakeClient()
	client.addDialog(401, "Dave", seq(1, 250)...)
	client.floodOnForward[3] = 3600
	f := newFixture(t, client)

	if err := f.run(Opts{}); err != nil {
		t.Fatalf("Run returned %v, want nil on a saved stop", err)
	}

	rec := f.conv("401")
	if rec.Status != progress.StatusPartiallyMigrated {
		t.Fatalf("status = %q, want %q", rec.Status, progress.StatusPartiallyMigrated)
	}
	if rec.MigratedCount != 200 {
		t.Errorf("migrated = %d, want 200", rec.MigratedCount)
	}
	if rec.LastMessageID == nil || *rec.LastMessageID != 200 {
		t.Errorf("lastMessageID = %v, want 200", rec.LastMessageID)
	}
	if len(f.pacer.slept) != 0 {
		t.Errorf("slept through an oversized wait: %v", f.pacer.slept)
	}
	if len(f.pacer.recorded) != 1 || f.pacer.recorded[0] != 3600 {
		t.Errorf("recorded = %v, want [3600]", f.pacer.recorded)
	}
	g := f.store.Snapshot()
	if g.Phase == progress.PhaseCompleted {
		t.Error("phase completed although the run stopped early")
	}
	if len(g.FloodWaits) != 1 || g.FloodWaits[0].DialogID != "401" {
		t.Errorf("flood waits = %+v, want one event attributed to dialog 401", g.FloodWaits)
	}
	found := false
	for _, e := range rec.Errors {
		if e.Code == "FLOOD_WAIT_TIMEOUT" {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %+v, want a FLOOD_WAIT_TIMEOUT entry", rec.Errors)
	}
	f.wantNotice("exceeds the auto-wait limit")
	f.wantNotice("Migration paused")
}

func TestRunCountsFailedBatches(t *testing.T) {
	client := newFakeClient()
	client.addDialog(601, "Helen", seq(1, 250)...)
	client.errOnForward[2] = errors.New("MESSAGE_ID_INVALID")
	f := newFixture(t, client)

	if err := f.run(Opts{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec := f.conv("601")
	if rec.Status != progress.StatusCompleted {
		t.Fatalf("status = %q, want %q", rec.Status, progress.StatusCompleted)
	}
	if rec.MigratedCount != 150 {
		t.Errorf("migrated = %d, want 150", rec.MigratedCount)
	}
	if rec.FailedCount != 100 {
		t.Errorf("failed = %d, want 100", rec.FailedCount)
	}
	if rec.LastMessageID == nil || *rec.LastMessageID != 250 {
		t.Errorf("lastMessageID = %v, want 250", rec.LastMessageID)
	}
	want := append(seq(1, 100), seq(201, 250)...)
	if !equalInts(client.forwards[5001], want) {
		t.Errorf("group 5001 got %v, want the failed batch skipped", client.forwards[5001])
	}
	if !f.log.has(events.EventBatchFailed) {
		t.Error("no batch.failed event emitted")
	}
	f.wantNotice("100 failed")
}

func TestRunKeepsFailedCountOnFloodStop(t *testing.T) {
	client := newFakeClient()
	client.addDialog(701, "Iris", seq(1, 250)...)
	client.errOnForward[1] = errors.New("MESSAGE_ID_INVALID")
	client.floodOnForward[2] = 3600
	f := newFixture(t, client)

	if err := f.run(Opts{}); err != nil {
		t.Fatalf("Run returned %v, want nil on a saved stop", err)
	}

	rec := f.conv("701")
	if rec.Status != progress.StatusPartiallyMigrated {
		t.Fatalf("status = %q, want %q", rec.Status, progress.StatusPartiallyMigrated)
	}
	if rec.FailedCount != 100 {
		t.Errorf("failed = %d, want the lost batch counted before the stop", rec.FailedCount)
	}
	if rec.MigratedCount != 0 {
		t.Errorf("migrated = %d, want 0", rec.MigratedCount)
	}
	if len(client.forwards[5001]) != 0 {
		t.Errorf("group 5001 got %v, want nothing forwarded", client.forwards[5001])
	}
	if len(f.pacer.slept) != 0 {
		t.Errorf("slept through an oversized wait: %v", f.pacer.slept)
	}
	f.wantNotice("exceeds the auto-wait limit")
	f.wantNotice("100 failed")
}

func TestRunStopsAtDailyGroupLimit(t *testing.T) {
	client := newFakeClient()
	client.addDialog(501, "Eve", 1, 2)
	client.addDialog(502, "Frank", 3)
	client.addDialog(503, "Grace", 4, 5)
	f := newFixture(t, client)
	f.cfg.Migration.DailyGroupLimit = 2

	if err := f.run(Opts{}); err != nil {
		t.Fatalf("Run returned %v, want nil on a quota stop", err)
	}

	if got := f.conv("501").Status; got != progress.StatusCompleted {
		t.Errorf("conv 501 status = %q, want completed", got)
	}
	if got := f.conv("502").Status; got != progress.StatusCompleted {
		t.Errorf("conv 502 status = %q, want completed", got)
	}
	if got := f.conv("503").Status; got != progress.StatusPending {
		t.Errorf("conv 503 status = %q, want pending for the next run", got)
	}
	if len(client.created) != 2 {
		t.Errorf("created %d groups, want 2", len(client.created))
	}
	if got := f.store.DailyCount(); got != 2 {
		t.Errorf("daily count = %d, want 2", got)
	}
	if !f.log.has(events.EventDailyLimit) {
		t.Error("daily.limit event never emitted")
	}
	f.wantNotice("Daily group quota (2) reached")
}

func TestRunMarksInviteFailure(t *testing.T) {
	client := newFakeClient()
	client.addDialog(601, "Heidi", 1, 2)
	client.inviteErr = errors.New("USERNAME_NOT_OCCUPIED")
	f := newFixture(t, client)

	if err := f.run(Opts{}); err != nil {
		t.Fatalf("Run returned %v, want nil after a per-dialog failure", err)
	}

	rec := f.conv("601")
	if rec.Status != progress.StatusFailed {
		t.Fatalf("status = %q, want %q", rec.Status, progress.StatusFailed)
	}
	if len(rec.Errors) == 0 {
		t.Fatal("no error entry recorded")
	}
	if rec.Errors[0].Code != "USER_NOT_FOUND" {
		t.Errorf("error code = %q, want USER_NOT_FOUND", rec.Errors[0].Code)
	}
	if client.forwardCalls != 0 {
		t.Errorf("forwarded %d batches into a group account B cannot see", client.forwardCalls)
	}
	if !f.log.has(events.EventDialogFailed) {
		t.Error("dialog.failed event never emitted")
	}
}

func TestRunReusesExistingGroup(t *testing.T) {
	client := newFakeClient()
	client.addDialog(701, "Judy", 1, 2, 3, 4, 5)
	f := newFixture(t, client)

	// State from an interrupted earlier run: group exists, two messages in.
	if err := f.store.InitConversation("701", "Judy", "private", 5); err != nil {
		t.Fatal(err)
	}
	if err := f.store.MarkStarted("701", 8888); err != nil {
		t.Fatal(err)
	}
	if err := f.store.MarkPartial("701", 2, 2); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Save(); err != nil {
		t.Fatal(err)
	}

	if err := f.run(Opts{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec := f.conv("701")
	if rec.Status != progress.StatusCompleted {
		t.Fatalf("status = %q, want %q", rec.Status, progress.StatusCompleted)
	}
	if rec.MigratedCount != 5 {
		t.Errorf("migrated = %d, want 5 including the earlier 2", rec.MigratedCount)
	}
	if len(client.created) != 0 {
		t.Errorf("created %v, want reuse of group 8888", client.created)
	}
	if len(client.invites) != 0 {
		t.Errorf("re-invited into an existing group: %v", client.invites)
	}
	if !equalInts(client.forwards[8888], []int{3, 4, 5}) {
		t.Errorf("group 8888 got %v, want only [3 4 5]", client.forwards[8888])
	}
	if got := f.store.DailyCount(); got != 0 {
		t.Errorf("daily count = %d, want 0 when no group was created", got)
	}
}

func TestRunRecreatesUnresolvableGroup(t *testing.T) {
	client := newFakeClient()
	client.addDialog(701, "Judy", 1, 2, 3, 4, 5)
	client.resolveChannelErr = errors.New("CHANNEL_PRIVATE")
	f := newFixture(t, client)

	// The recorded destination no longer resolves: deleted, or account A
	// lost access. The run must fall back to a fresh group, not fail.
	if err := f.store.InitConversation("701", "Judy", "private", 5); err != nil {
		t.Fatal(err)
	}
	if err := f.store.MarkStarted("701", 8888); err != nil {
		t.Fatal(err)
	}
	if err := f.store.MarkPartial("701", 2, 2); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Save(); err != nil {
		t.Fatal(err)
	}

	if err := f.run(Opts{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec := f.conv("701")
	if rec.Status != progress.StatusCompleted {
		t.Fatalf("status = %q, want %q", rec.Status, progress.StatusCompleted)
	}
	if len(client.created) != 1 {
		t.Fatalf("created %v, want one replacement group", client.created)
	}
	if rec.TargetGroupID == nil || *rec.TargetGroupID != 5001 {
		t.Errorf("TargetGroupID = %v, want replacement 5001", rec.TargetGroupID)
	}
	if len(client.invites) != 1 {
		t.Errorf("invites = %v, want account B invited into the replacement", client.invites)
	}
	if !equalInts(client.forwards[5001], []int{3, 4, 5}) {
		t.Errorf("group 5001 got %v, want resume [3 4 5]", client.forwards[5001])
	}
	if len(client.forwards[8888]) != 0 {
		t.Errorf("stale group 8888 got %v, want nothing", client.forwards[8888])
	}
	if got := f.store.DailyCount(); got != 1 {
		t.Errorf("daily count = %d, want 1 for the replacement group", got)
	}
}

func TestDryRunHasNoSideEffects(t *testing.T) {
	client := newFakeClient()
	client.addDialog(801, "Ken", 1, 2, 3, 4)
	f := newFixture(t, client)

	if err := f.run(Opts{DryRun: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if client.forwardCalls != 0 {
		t.Errorf("dry run forwarded %d batches", client.forwardCalls)
	}
	if len(client.created) != 0 {
		t.Errorf("dry run created groups: %v", client.created)
	}
	if len(client.invites) != 0 {
		t.Errorf("dry run invited: %v", client.invites)
	}
	if len(client.notices) != 0 {
		t.Errorf("dry run sent notices: %v", client.notices)
	}
	if _, err := os.Stat(f.cfg.Migration.ProgressPath); !os.IsNotExist(err) {
		t.Errorf("dry run wrote the progress file (stat err %v)", err)
	}
}

func TestRunHonorsDialogSelection(t *testing.T) {
	client := newFakeClient()
	client.addDialog(101, "Alice", 10, 11)
	client.addDialog(202, "Bob", 20)
	f := newFixture(t, client)

	if err := f.run(Opts{OnlyIDs: []int64{202}}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := f.store.Get("101"); ok {
		t.Error("deselected conversation tracked in progress")
	}
	if got := f.conv("202").Status; got != progress.StatusCompleted {
		t.Errorf("conv 202 status = %q, want completed", got)
	}
	if len(client.created) != 1 {
		t.Errorf("created %d groups, want 1", len(client.created))
	}
}

func TestRunForwardsTailMessages(t *testing.T) {
	client := newFakeClient()
	client.addDialog(901, "Leo", 10, 11)
	// A message lands mid-transfer; the tail drain must pick it up after
	// the bulk phase.
	client.beforeForward = func(call int) {
		if call == 1 {
			client.inject(901, 50)
		}
	}
	f := newFixture(t, client)

	if err := f.run(Opts{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec := f.conv("901")
	if rec.Status != progress.StatusCompleted {
		t.Fatalf("status = %q, want %q", rec.Status, progress.StatusCompleted)
	}
	if rec.MigratedCount != 3 {
		t.Errorf("migrated = %d, want 2 bulk + 1 tail", rec.MigratedCount)
	}
	if !equalInts(client.forwards[5001], []int{10, 11, 50}) {
		t.Errorf("group 5001 got %v, want [10 11 50]", client.forwards[5001])
	}
	if !f.log.has(events.EventTailForwarded) {
		t.Error("tail.forwarded event never emitted")
	}
}
