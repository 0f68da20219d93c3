// Package migrator drives the migration run: it walks the selected
// conversations in enumeration order and, for each one, obtains the
// destination group, invites the second account, forwards history through
// the engine, and drains the live tail. All durable state goes through the
// progress store, checkpointed after every batch, so a crash or an
// operator abort resumes instead of restarting.
//
// Flood-wait policy lives here, not in the engine: waits within the
// configured threshold are slept out with one retry per conversation;
// anything longer stops the run with the state saved and a notice sent to
// the operator's own chat.
package migrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/dialogs"
	"github.com/nextlevelbuilder/chatmover/internal/engine"
	"github.com/nextlevelbuilder/chatmover/internal/errs"
	"github.com/nextlevelbuilder/chatmover/internal/groups"
	"github.com/nextlevelbuilder/chatmover/internal/ledger"
	"github.com/nextlevelbuilder/chatmover/internal/progress"
	"github.com/nextlevelbuilder/chatmover/internal/ratelimit"
	"github.com/nextlevelbuilder/chatmover/internal/realtime"
	"github.com/nextlevelbuilder/chatmover/internal/report"
	"github.com/nextlevelbuilder/chatmover/internal/telegram"
	"github.com/nextlevelbuilder/chatmover/pkg/events"
)

const defaultMaxFloodWait = 300

// Pacer is the slice of the rate limiter the migrator needs: recording
// flood-wait events and sleeping them out. *ratelimit.Controller
// satisfies it.
type Pacer interface {
	RecordFloodWait(seconds int)
	SleepFloodWait(ctx context.Context, seconds int) error
}

var _ Pacer = (*ratelimit.Controller)(nil)

// Deps bundles everything a migration run needs. Ledger may be nil to
// disable audit records; Sink may be nil to disable events.
type Deps struct {
	Cfg      *config.Config
	Client   telegram.Client
	Store    *progress.Store
	Enum     *dialogs.Enumerator
	Groups   *groups.Manager
	Engine   *engine.Engine
	Tail     *realtime.TailSync
	Limiter  Pacer
	Reporter *report.Aggregator
	Ledger   *ledger.Ledger
	Sink     events.Sink
}

// Migrator coordinates one migration run at a time.
type Migrator struct {
	cfg      *config.Config
	client   telegram.Client
	store    *progress.Store
	enum     *dialogs.Enumerator
	groups   *groups.Manager
	engine   *engine.Engine
	tail     *realtime.TailSync
	limiter  Pacer
	reporter *report.Aggregator
	ledger   *ledger.Ledger
	sink     events.Sink
	tracer   trace.Tracer
}

// New builds a Migrator from its dependencies.
func New(d Deps) *Migrator {
	return &Migrator{
		cfg:      d.Cfg,
		client:   d.Client,
		store:    d.Store,
		enum:     d.Enum,
		groups:   d.Groups,
		engine:   d.Engine,
		tail:     d.Tail,
		limiter:  d.Limiter,
		reporter: d.Reporter,
		ledger:   d.Ledger,
		sink:     d.Sink,
		tracer:   otel.Tracer("chatmover/migrator"),
	}
}

// Opts controls one Run call.
type Opts struct {
	// DryRun previews the run: nothing is created, invited, forwarded, or
	// written to the progress file.
	DryRun bool
	// OnlyIDs restricts the run to these conversation ids, on top of the
	// configured filter. Empty means all.
	OnlyIDs []int64
	// From and To bound forwarded messages by date, inclusive.
	From, To *time.Time
}

// runState is the per-run scratch shared across conversations.
type runState struct {
	self   telegram.Peer
	runID  string
	tailOK bool
}

// Run executes the migration. A run stopped by the daily group quota or by
// an oversized flood wait returns nil: the state is saved and a later run
// resumes. Only cancellation, broken persistence, and auth failures are
// errors.
func (m *Migrator) Run(ctx context.Context, opts Opts) error {
	ctx, span := m.tracer.Start(ctx, "migrate.run",
		trace.WithAttributes(attribute.Bool("dry_run", opts.DryRun)))
	defer span.End()

	if err := m.store.Load(); err != nil {
		return err
	}
	if opts.DryRun {
		return m.dryRun(ctx, opts)
	}

	me, err := m.client.Me(ctx)
	if err != nil {
		return errs.Wrap(errs.KindAuth, errs.NetworkError, "resolve own account", err)
	}
	rs := &runState{self: telegram.Peer{Kind: telegram.PeerUser, ID: me.ID, AccessHash: me.AccessHash}}

	if err := m.store.SetAccounts(m.cfg.Account.PhoneA, m.cfg.Account.TargetUserB); err != nil {
		return err
	}
	if err := m.store.SetPhase(progress.PhaseFetching); err != nil {
		return err
	}
	if err := m.store.Save(); err != nil {
		return err
	}

	convs, err := m.selectConversations(ctx, opts)
	if err != nil {
		return err
	}
	for _, c := range convs {
		if err := m.store.InitConversation(convKey(c.ID), c.Name, string(c.Type), c.MessageCount); err != nil {
			return err
		}
	}
	if err := m.store.Save(); err != nil {
		return err
	}

	slog.Info("run.started", "dialogs", len(convs))
	events.Emit(m.sink, events.EventRunStarted, 0, map[string]any{"dialogs": len(convs)})
	span.SetAttributes(attribute.Int("dialogs", len(convs)))

	if m.ledger != nil {
		id, lerr := m.ledger.BeginRun(ctx)
		if lerr != nil {
			slog.Warn("ledger.begin_failed", "error", lerr)
		} else {
			rs.runID = id
		}
	}

	// The run carries on without tail sync when the subscription fails;
	// messages arriving mid-run are then only caught by a later sync pass.
	if m.tail != nil {
		if err := m.tail.Subscribe(); err != nil {
			slog.Warn("realtime.subscribe_failed", "error", err)
		} else {
			rs.tailOK = true
			defer m.tail.Close()
		}
	}

	if err := m.store.SetPhase(progress.PhaseCreating); err != nil {
		return err
	}

	stopped := false
	for _, c := range convs {
		if err := ctx.Err(); err != nil {
			m.saveBestEffort()
			return errs.Wrap(errs.KindMigration, errs.Aborted, "run cancelled", err)
		}
		stop, err := m.migrateOne(ctx, c, opts, rs)
		if err != nil {
			m.saveBestEffort()
			return err
		}
		if stop {
			stopped = true
			break
		}
	}

	return m.finish(ctx, rs, stopped)
}

// selectConversations enumerates, applies the configured filter, then the
// operator's explicit id selection.
func (m *Migrator) selectConversations(ctx context.Context, opts Opts) ([]dialogs.Conversation, error) {
	convs, err := m.enum.List(ctx)
	if err != nil {
		return nil, err
	}
	total := len(convs)
	convs = dialogs.Filter(convs, m.cfg.Migration.Filter)
	if len(opts.OnlyIDs) > 0 {
		want := make(map[int64]bool, len(opts.OnlyIDs))
		for _, id := range opts.OnlyIDs {
			want[id] = true
		}
		kept := convs[:0]
		for _, c := range convs {
			if want[c.ID] {
				kept = append(kept, c)
			}
		}
		convs = kept
	}
	slog.Info("dialogs.selected", "total", total, "selected", len(convs))
	return convs, nil
}

// migrateOne runs the full per-conversation sequence. stop reports that
// the outer loop must not continue (quota hit or oversized flood wait);
// fatal aborts the whole run. Conversation-level failures are recorded and
// absorbed.
func (m *Migrator) migrateOne(ctx context.Context, c dialogs.Conversation, opts Opts, rs *runState) (stop bool, fatal error) {
	key := convKey(c.ID)
	rec, ok := m.store.Get(key)
	if !ok {
		return false, fmt.Errorf("migrator: conversation %s not initialised", key)
	}
	switch rec.Status {
	case progress.StatusCompleted:
		slog.Info("dialog.skip", "conv", c.ID, "name", c.Name, "reason", "already completed")
		return false, nil
	case progress.StatusSkipped:
		slog.Info("dialog.skip", "conv", c.ID, "name", c.Name, "reason", rec.SkipReason)
		return false, nil
	}

	needsGroup := rec.TargetGroupID == nil || *rec.TargetGroupID == 0
	if needsGroup && m.store.DailyLimitReached(m.cfg.Migration.DailyGroupLimit) {
		if err := m.store.Save(); err != nil {
			return true, err
		}
		slog.Warn("daily.limit", "limit", m.cfg.Migration.DailyGroupLimit, "conv", c.ID)
		events.Emit(m.sink, events.EventDailyLimit, c.ID, map[string]any{
			"limit": m.cfg.Migration.DailyGroupLimit,
		})
		m.notify(ctx, rs, fmt.Sprintf(
			"Daily group quota (%d) reached. Migration stops here; run again tomorrow to continue.",
			m.cfg.Migration.DailyGroupLimit))
		return true, nil
	}

	ctx, span := m.tracer.Start(ctx, "migrate.dialog", trace.WithAttributes(
		attribute.Int64("conv.id", c.ID),
		attribute.String("conv.type", string(c.Type)),
	))
	defer span.End()

	// Every exit from here on stops the listener and persists state.
	defer func() {
		if rs.tailOK {
			m.tail.StopListening(c.ID)
		}
		if err := m.store.Save(); err != nil && fatal == nil {
			fatal = err
		}
	}()

	if rs.tailOK {
		m.tail.StartListening(c.ID, c.Peer)
	}

	dest, created, err := m.ensureDestination(ctx, c, rec.TargetGroupID)
	if err != nil {
		if ctx.Err() != nil {
			return false, err
		}
		m.failConversation(key, c, span, err)
		return false, nil
	}
	if created {
		if err := m.store.IncrementDaily(); err != nil {
			return false, err
		}
	}
	if err := m.store.MarkStarted(key, dest.ID); err != nil {
		return false, err
	}
	// Persist the destination id before anything else can fail, so a crash
	// never orphans a created group.
	if err := m.store.Save(); err != nil {
		return false, err
	}
	slog.Info("dialog.started", "conv", c.ID, "name", c.Name, "group", dest.ID, "resume", rec.LastMessageID != nil)
	events.Emit(m.sink, events.EventDialogStarted, c.ID, map[string]any{
		"name":  c.Name,
		"group": dest.ID,
	})

	if rs.tailOK {
		m.tail.RegisterMapping(c.ID, dest)
	}

	if created && m.cfg.Account.TargetUserB != "" {
		if err := m.invite(ctx, dest, c); err != nil {
			if ctx.Err() != nil {
				return false, err
			}
			m.failConversation(key, c, span, err)
			return false, nil
		}
	}

	if err := m.store.SetPhase(progress.PhaseMigrating); err != nil {
		return false, err
	}

	// attempt forwards from a resume point, checkpointing every batch.
	// checkpointErr distinguishes broken persistence (fatal) from
	// conversation-level engine failures.
	var checkpointErr error
	attempt := func(resumeID int) (engine.Result, error) {
		prev := 0
		checkpointErr = nil
		return m.engine.Migrate(ctx, c.Peer, dest, engine.Opts{
			ResumeFromID: resumeID,
			BatchSize:    m.cfg.Migration.BatchSize,
			From:         opts.From,
			To:           opts.To,
			OnForwarded: func(ids []int) {
				m.recordForwards(ctx, rs, c.ID, dest.ID, ids)
			},
			OnBatch: func(migrated, lastID int) error {
				delta := migrated - prev
				prev = migrated
				if err := m.store.UpdateMessageProgress(key, lastID, delta); err != nil {
					checkpointErr = err
					return err
				}
				if err := m.store.Save(); err != nil {
					checkpointErr = err
					return err
				}
				span.AddEvent("batch.completed", trace.WithAttributes(
					attribute.Int("migrated", migrated),
					attribute.Int("last_id", lastID),
				))
				return nil
			},
		})
	}

	resumeID, _ := m.store.ResumePoint(key)
	res, err := attempt(resumeID)
	migrated, failed, lastID := res.Migrated, res.Failed, res.LastID

	// Failed messages are counted durably exactly once, whether the
	// conversation completes or the run stops on a flood wait.
	failedRecorded := 0
	recordFailed := func() error {
		if failed > failedRecorded {
			if err := m.store.AddFailedMessages(key, failed-failedRecorded); err != nil {
				return err
			}
			failedRecorded = failed
		}
		return nil
	}

	if err != nil {
		if checkpointErr != nil || ctx.Err() != nil {
			return false, err
		}
		m.failConversation(key, c, span, err)
		return false, nil
	}

	if res.FloodWait != nil {
		secs := *res.FloodWait
		m.noteFloodWait("forward_messages", c.ID, secs)
		if err := recordFailed(); err != nil {
			return false, err
		}
		if err := m.store.MarkPartial(key, lastID, 0); err != nil {
			return false, err
		}
		if err := m.store.Save(); err != nil {
			return false, err
		}
		if secs > m.maxFloodWait() {
			m.notify(ctx, rs, fmt.Sprintf(
				"Flood wait of %ds exceeds the auto-wait limit (%ds). %q stopped at message %d; run migrate again later to resume.",
				secs, m.maxFloodWait(), c.Name, lastID))
			slog.Warn("migrate.stopped_on_floodwait", "conv", c.ID, "seconds", secs)
			return true, nil
		}
		if err := m.limiter.SleepFloodWait(ctx, secs); err != nil {
			return false, err
		}

		// One retry from the saved checkpoint. A second flood wait means
		// the server wants a real pause, not a tighter loop.
		if err := m.store.MarkStarted(key, dest.ID); err != nil {
			return false, err
		}
		retryFrom, _ := m.store.ResumePoint(key)
		res2, err2 := attempt(retryFrom)
		migrated += res2.Migrated
		failed += res2.Failed
		if res2.LastID > lastID {
			lastID = res2.LastID
		}
		if err2 != nil {
			if checkpointErr != nil || ctx.Err() != nil {
				return false, err2
			}
			m.failConversation(key, c, span, err2)
			return false, nil
		}
		if res2.FloodWait != nil {
			secs2 := *res2.FloodWait
			m.noteFloodWait("forward_messages", c.ID, secs2)
			if err := recordFailed(); err != nil {
				return false, err
			}
			if err := m.store.MarkPartial(key, lastID, 0); err != nil {
				return false, err
			}
			if err := m.store.Save(); err != nil {
				return false, err
			}
			m.notify(ctx, rs, fmt.Sprintf(
				"Repeated flood waits on %q (last %ds). Migration paused at message %d; resume later.",
				c.Name, secs2, lastID))
			slog.Warn("migrate.stopped_on_floodwait", "conv", c.ID, "seconds", secs2, "retry", true)
			return true, nil
		}
		res = res2
	}

	if err := m.store.SetTotalCount(key, res.Total); err != nil {
		return false, err
	}

	if rs.tailOK {
		d, derr := m.drainTail(ctx, c.ID, lastID)
		if derr != nil {
			return false, derr
		}
		if d.Forwarded > 0 {
			if err := m.store.UpdateMessageProgress(key, lastID, d.Forwarded); err != nil {
				return false, err
			}
			migrated += d.Forwarded
		}
		failed += d.Failed
	}

	if err := recordFailed(); err != nil {
		return false, err
	}
	if err := m.store.MarkCompleted(key); err != nil {
		return false, err
	}
	slog.Info("dialog.completed", "conv", c.ID, "name", c.Name,
		"migrated", migrated, "failed", failed, "total", res.Total)
	events.Emit(m.sink, events.EventDialogCompleted, c.ID, map[string]any{
		"migrated": migrated,
		"failed":   failed,
		"total":    res.Total,
	})
	return false, nil
}

// ensureDestination wraps the group manager with the creation flood-wait
// policy: one slept-out retry within the threshold, otherwise the error
// surfaces and the conversation fails.
func (m *Migrator) ensureDestination(ctx context.Context, c dialogs.Conversation, existing *int64) (telegram.Peer, bool, error) {
	dest, created, err := m.groups.EnsureDestination(ctx, c, existing)
	secs, ok := errs.FloodWaitSeconds(err)
	if !ok {
		return dest, created, err
	}
	m.noteFloodWait("create_group", c.ID, secs)
	if secs > m.maxFloodWait() {
		return telegram.Peer{}, false, err
	}
	if serr := m.limiter.SleepFloodWait(ctx, secs); serr != nil {
		return telegram.Peer{}, false, serr
	}
	dest, created, err = m.groups.EnsureDestination(ctx, c, existing)
	if secs2, again := errs.FloodWaitSeconds(err); again {
		m.noteFloodWait("create_group", c.ID, secs2)
	}
	return dest, created, err
}

// invite adds account B to the destination, absorbing one flood wait
// within the threshold.
func (m *Migrator) invite(ctx context.Context, group telegram.Peer, c dialogs.Conversation) error {
	err := m.groups.Invite(ctx, group, m.cfg.Account.TargetUserB)
	secs, ok := errs.FloodWaitSeconds(err)
	if !ok {
		return err
	}
	m.noteFloodWait("invite_user", c.ID, secs)
	if secs > m.maxFloodWait() {
		return err
	}
	if serr := m.limiter.SleepFloodWait(ctx, secs); serr != nil {
		return serr
	}
	err = m.groups.Invite(ctx, group, m.cfg.Account.TargetUserB)
	if secs2, again := errs.FloodWaitSeconds(err); again {
		m.noteFloodWait("invite_user", c.ID, secs2)
	}
	return err
}

// drainTail flushes the live queue for conv, absorbing one flood wait.
// Non-flood drain failures are logged and absorbed; cancellation aborts.
func (m *Migrator) drainTail(ctx context.Context, convID int64, lastBatchID int) (realtime.DrainResult, error) {
	d, err := m.tail.Drain(ctx, convID, lastBatchID)
	if err == nil {
		return d, nil
	}
	if ctx.Err() != nil {
		return d, err
	}
	secs, ok := errs.FloodWaitSeconds(err)
	if !ok {
		slog.Warn("realtime.drain_failed", "conv", convID, "error", err)
		return d, nil
	}
	m.noteFloodWait("tail_drain", convID, secs)
	if secs > m.maxFloodWait() {
		slog.Warn("realtime.drain_deferred", "conv", convID, "seconds", secs)
		return d, nil
	}
	if serr := m.limiter.SleepFloodWait(ctx, secs); serr != nil {
		return d, serr
	}
	d2, err2 := m.tail.Drain(ctx, convID, lastBatchID)
	d.Forwarded += d2.Forwarded
	d.Skipped += d2.Skipped
	d.Failed += d2.Failed
	if err2 != nil {
		if ctx.Err() != nil {
			return d, err2
		}
		slog.Warn("realtime.drain_failed", "conv", convID, "error", err2, "retry", true)
	}
	return d, nil
}

// finish closes out the run: phase, ledger, events, and the operator
// summary. The completed phase is only recorded when nothing stopped the
// loop and every conversation reached a terminal state.
func (m *Migrator) finish(ctx context.Context, rs *runState, stopped bool) error {
	g := m.store.Snapshot()
	if !stopped && allSettled(g) {
		if err := m.store.SetPhase(progress.PhaseCompleted); err != nil {
			return err
		}
	}
	if err := m.store.Save(); err != nil {
		return err
	}
	g = m.store.Snapshot()

	if m.ledger != nil && rs.runID != "" {
		if err := m.ledger.FinishRun(ctx, rs.runID, g.Stats.CompletedDialogs, g.Stats.MigratedMessages); err != nil {
			slog.Warn("ledger.finish_failed", "error", err)
		}
	}

	slog.Info("run.completed",
		"completed", g.Stats.CompletedDialogs,
		"failed", g.Stats.FailedDialogs,
		"migrated", g.Stats.MigratedMessages,
		"stopped", stopped)
	events.Emit(m.sink, events.EventRunCompleted, 0, map[string]any{
		"completed": g.Stats.CompletedDialogs,
		"failed":    g.Stats.FailedDialogs,
		"migrated":  g.Stats.MigratedMessages,
		"stopped":   stopped,
	})

	state := "finished"
	if stopped {
		state = "paused"
	}
	m.notify(ctx, rs, fmt.Sprintf("Migration %s: %d/%d conversations completed, %d messages migrated, %d failed.",
		state, g.Stats.CompletedDialogs, g.Stats.TotalDialogs,
		g.Stats.MigratedMessages, g.Stats.FailedMessages))
	return nil
}

// dryRun previews the selection: per conversation, how many messages a
// real run would forward and whether it would create a group. Read-only
// end to end.
func (m *Migrator) dryRun(ctx context.Context, opts Opts) error {
	convs, err := m.selectConversations(ctx, opts)
	if err != nil {
		return err
	}
	var wouldForward, wouldCreate int
	for _, c := range convs {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.KindMigration, errs.Aborted, "dry run cancelled", err)
		}
		key := convKey(c.ID)
		rec, known := m.store.Get(key)
		if known && rec.Status == progress.StatusCompleted {
			slog.Info("dryrun.skip", "conv", c.ID, "name", c.Name, "reason", "already completed")
			continue
		}
		resumeID, _ := m.store.ResumePoint(key)
		res, err := m.engine.Migrate(ctx, c.Peer, telegram.Peer{}, engine.Opts{
			ResumeFromID: resumeID,
			BatchSize:    m.cfg.Migration.BatchSize,
			DryRun:       true,
			From:         opts.From,
			To:           opts.To,
		})
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			slog.Warn("dryrun.dialog_failed", "conv", c.ID, "error", err)
			continue
		}
		if res.FloodWait != nil {
			// History reads are throttled too; skip the preview for this
			// conversation rather than sleeping through a dry run.
			slog.Warn("dryrun.floodwait", "conv", c.ID, "seconds", *res.FloodWait)
			continue
		}
		creates := rec.TargetGroupID == nil
		if creates {
			wouldCreate++
		}
		wouldForward += res.Migrated
		slog.Info("dryrun.dialog", "conv", c.ID, "name", c.Name,
			"messages", res.Migrated, "creates_group", creates)
	}
	slog.Info("dryrun.summary", "dialogs", len(convs),
		"messages", wouldForward, "new_groups", wouldCreate)
	return nil
}

// failConversation records a conversation-level failure and keeps the run
// going.
func (m *Migrator) failConversation(key string, c dialogs.Conversation, span trace.Span, err error) {
	code, ok := errs.CodeOf(err)
	if !ok {
		code = "UNKNOWN"
	}
	if merr := m.store.MarkFailed(key, string(code), err.Error()); merr != nil {
		slog.Warn("progress.mark_failed", "conv", c.ID, "error", merr)
	}
	span.RecordError(err)
	slog.Error("dialog.failed", "conv", c.ID, "name", c.Name, "code", code, "error", err)
	events.Emit(m.sink, events.EventDialogFailed, c.ID, map[string]any{
		"code":  string(code),
		"error": err.Error(),
	})
}

// noteFloodWait records one server-imposed wait everywhere that cares: the
// durable log, the in-run aggregator, the pacing controller, and the event
// stream.
func (m *Migrator) noteFloodWait(op string, convID int64, seconds int) {
	if err := m.store.RecordFloodWait(op, convKey(convID), seconds); err != nil {
		slog.Warn("progress.record_floodwait", "error", err)
	}
	if m.reporter != nil {
		m.reporter.Record(op, seconds)
	}
	m.limiter.RecordFloodWait(seconds)
	slog.Warn("flood.wait", "operation", op, "conv", convID, "seconds", seconds)
	events.Emit(m.sink, events.EventFloodWait, convID, map[string]any{
		"operation": op,
		"seconds":   seconds,
	})
}

// recordForwards writes one audit row per forwarded message. Audit
// failures never affect the run.
func (m *Migrator) recordForwards(ctx context.Context, rs *runState, convID, destGroup int64, ids []int) {
	if m.ledger == nil || rs.runID == "" {
		return
	}
	if err := m.ledger.RecordForwards(ctx, rs.runID, convID, destGroup, ids); err != nil {
		slog.Warn("ledger.record_failed", "conv", convID, "error", err)
	}
}

// notify sends an out-of-band notice to the operator's own chat. Best
// effort: a failed send never affects the run.
func (m *Migrator) notify(ctx context.Context, rs *runState, text string) {
	if rs.self.IsZero() {
		return
	}
	if err := m.client.SendMessage(ctx, rs.self, text); err != nil {
		slog.Warn("notify.send_failed", "error", err)
	}
}

func (m *Migrator) saveBestEffort() {
	if err := m.store.Save(); err != nil {
		slog.Error("progress.save_failed", "error", err)
	}
}

func (m *Migrator) maxFloodWait() int {
	if s := m.cfg.Migration.MaxFloodWaitSeconds; s > 0 {
		return s
	}
	return defaultMaxFloodWait
}

func convKey(id int64) string { return strconv.FormatInt(id, 10) }

// allSettled reports whether every conversation reached a terminal state.
func allSettled(g *progress.Global) bool {
	for _, c := range g.Dialogs {
		switch c.Status {
		case progress.StatusCompleted, progress.StatusFailed, progress.StatusSkipped:
		default:
			return false
		}
	}
	return true
}
