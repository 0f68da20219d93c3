// Package syncd keeps destination groups current after the bulk migration.
// It listens on every completed conversation, drains new arrivals on a
// short debounce, and re-checks server message counts against the migrated
// totals on a cron schedule. It is the long-running mode for the cut-over
// window, when both accounts are still in use.
package syncd

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/dialogs"
	"github.com/nextlevelbuilder/chatmover/internal/errs"
	"github.com/nextlevelbuilder/chatmover/internal/progress"
	"github.com/nextlevelbuilder/chatmover/internal/ratelimit"
	"github.com/nextlevelbuilder/chatmover/internal/realtime"
	"github.com/nextlevelbuilder/chatmover/internal/telegram"
	"github.com/nextlevelbuilder/chatmover/pkg/events"
)

const defaultDrainEvery = 10 * time.Second

// Deps bundles what the daemon needs.
type Deps struct {
	Cfg     *config.Config
	Client  telegram.Client
	Store   *progress.Store
	Enum    *dialogs.Enumerator
	Tail    *realtime.TailSync
	Limiter *ratelimit.Controller
	Sink    events.Sink
}

// Daemon watches completed conversations and mirrors their tails.
type Daemon struct {
	cfg     *config.Config
	client  telegram.Client
	store   *progress.Store
	enum    *dialogs.Enumerator
	tail    *realtime.TailSync
	limiter *ratelimit.Controller
	sink    events.Sink

	schedule   string
	drainEvery time.Duration

	watched map[int64]watchedConv
}

type watchedConv struct {
	key  string
	name string
	src  telegram.Peer
	dest telegram.Peer
}

// New builds a daemon verifying on the given cron schedule and draining
// every drainEvery. drainEvery <= 0 uses the default.
func New(d Deps, schedule string, drainEvery time.Duration) (*Daemon, error) {
	g := gronx.New()
	if !g.IsValid(schedule) {
		return nil, errs.New(errs.KindMigration, errs.InvalidFormat,
			"invalid cron schedule "+strconv.Quote(schedule))
	}
	if drainEvery <= 0 {
		drainEvery = defaultDrainEvery
	}
	return &Daemon{
		cfg:        d.Cfg,
		client:     d.Client,
		store:      d.Store,
		enum:       d.Enum,
		tail:       d.Tail,
		limiter:    d.Limiter,
		sink:       d.Sink,
		schedule:   schedule,
		drainEvery: drainEvery,
		watched:    make(map[int64]watchedConv),
	}, nil
}

// Run blocks until ctx is cancelled. It returns nil when there is nothing
// to watch; running sync before a completed migration is harmless.
func (d *Daemon) Run(ctx context.Context) error {
	n, err := d.start(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		slog.Warn("sync.nothing_to_watch", "hint", "no completed conversations with a destination group")
		return nil
	}
	defer d.tail.Close()
	slog.Info("sync.started", "conversations", n,
		"schedule", d.schedule, "drain_every", d.drainEvery)

	drain := time.NewTicker(d.drainEvery)
	defer drain.Stop()
	cron := time.NewTicker(time.Minute)
	defer cron.Stop()

	g := gronx.New()
	for {
		select {
		case <-ctx.Done():
			if err := d.store.Save(); err != nil {
				slog.Error("sync.final_save", "error", err)
			}
			slog.Info("sync.stopped")
			return nil
		case <-drain.C:
			d.drainAll(ctx)
		case <-cron.C:
			due, err := g.IsDue(d.schedule)
			if err != nil {
				slog.Warn("sync.schedule_check", "error", err)
				continue
			}
			if due {
				d.verify(ctx)
			}
		}
	}
}

// start loads state, matches watchable conversations, and opens the tail
// subscription when there is work to do.
func (d *Daemon) start(ctx context.Context) (int, error) {
	if err := d.store.Load(); err != nil {
		return 0, err
	}
	n, err := d.setup(ctx)
	if err != nil || n == 0 {
		return n, err
	}
	if err := d.tail.Subscribe(); err != nil {
		return 0, err
	}
	for id, w := range d.watched {
		d.tail.StartListening(id, w.src)
		d.tail.RegisterMapping(id, w.dest)
	}
	return n, nil
}

// setup matches completed conversations from the progress file against the
// live dialog list and returns how many are watchable.
func (d *Daemon) setup(ctx context.Context) (int, error) {
	convs, err := d.enum.List(ctx)
	if err != nil {
		return 0, err
	}
	byID := make(map[int64]dialogs.Conversation, len(convs))
	for _, c := range convs {
		byID[c.ID] = c
	}

	g := d.store.Snapshot()
	for key, rec := range g.Dialogs {
		if rec.Status != progress.StatusCompleted || rec.TargetGroupID == nil || *rec.TargetGroupID == 0 {
			continue
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			slog.Warn("sync.bad_key", "key", key)
			continue
		}
		c, ok := byID[id]
		if !ok {
			slog.Warn("sync.dialog_gone", "conv", id, "name", rec.Name)
			continue
		}
		d.watched[id] = watchedConv{
			key:  key,
			name: rec.Name,
			src:  c.Peer,
			dest: telegram.Peer{Kind: telegram.PeerChannel, ID: *rec.TargetGroupID},
		}
	}
	return len(d.watched), nil
}

// drainAll flushes every queue with pending messages. A flood wait stops
// the pass; the pushback is account-wide, so draining the next queue would
// only repeat it.
func (d *Daemon) drainAll(ctx context.Context) {
	dirty := false
	for id, w := range d.watched {
		if ctx.Err() != nil {
			break
		}
		if d.tail.Pending(id) == 0 {
			continue
		}
		last := 0
		if rec, ok := d.store.Get(w.key); ok && rec.LastMessageID != nil {
			last = *rec.LastMessageID
		}
		res, err := d.tail.Drain(ctx, id, last)
		if err != nil {
			if secs, ok := errs.FloodWaitSeconds(err); ok {
				d.limiter.RecordFloodWait(secs)
				if rerr := d.store.RecordFloodWait("tail_drain", w.key, secs); rerr != nil {
					slog.Warn("sync.record_floodwait", "error", rerr)
				}
				slog.Warn("sync.floodwait", "conv", id, "seconds", secs)
				return
			}
			if ctx.Err() != nil {
				return
			}
			slog.Warn("sync.drain_failed", "conv", id, "error", err)
			continue
		}
		if res.Forwarded > 0 {
			if err := d.store.UpdateMessageProgress(w.key, last, res.Forwarded); err != nil {
				slog.Warn("sync.progress_update", "conv", id, "error", err)
			}
			dirty = true
			slog.Info("sync.forwarded", "conv", id, "name", w.name, "count", res.Forwarded)
		}
		if res.Failed > 0 {
			if err := d.store.AddFailedMessages(w.key, res.Failed); err != nil {
				slog.Warn("sync.progress_update", "conv", id, "error", err)
			}
			dirty = true
		}
	}
	if dirty {
		if err := d.store.Save(); err != nil {
			slog.Error("sync.save_failed", "error", err)
		}
	}
}

// verify compares the server's message count against what was migrated.
// The server count includes service messages, so this is a drift alarm,
// not an exact reconciliation; mismatches are logged for the operator.
func (d *Daemon) verify(ctx context.Context) {
	for id, w := range d.watched {
		if ctx.Err() != nil {
			return
		}
		var page telegram.HistoryPage
		err := d.limiter.Do(ctx, "verify_history", func() error {
			var herr error
			page, herr = d.client.History(ctx, w.src, 0, 1)
			return herr
		})
		if err != nil {
			slog.Warn("sync.verify_failed", "conv", id, "error", err)
			continue
		}
		rec, ok := d.store.Get(w.key)
		if !ok {
			continue
		}
		covered := rec.MigratedCount + rec.FailedCount
		if page.Count > covered {
			slog.Warn("sync.drift", "conv", id, "name", w.name,
				"server_count", page.Count, "covered", covered)
			continue
		}
		slog.Debug("sync.verified", "conv", id, "server_count", page.Count)
	}
}
