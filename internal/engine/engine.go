// Package engine moves one conversation's history into its destination
// group. It runs in two phases: collect message ids by paging history
// newest-first, then forward them oldest-first in batches. Flood waits
// abort the run with a partial result; retry policy belongs to the caller.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/chatmover/internal/errs"
	"github.com/nextlevelbuilder/chatmover/internal/ratelimit"
	"github.com/nextlevelbuilder/chatmover/internal/telegram"
	"github.com/nextlevelbuilder/chatmover/pkg/events"
)

const (
	defaultPageSize = 100
	// defaultMaxPages bounds the collect phase. A conversation paging past
	// this is a server-side loop, not a real history.
	defaultMaxPages = 10000
)

// Engine forwards message batches for a single conversation at a time.
// It is stateless between calls; checkpointing happens through OnBatch.
type Engine struct {
	client   telegram.Client
	limiter  *ratelimit.Controller
	nonces   telegram.NonceSource
	sink     events.Sink
	pageSize int
	maxPages int
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithPageSize overrides the history page size.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithMaxPages overrides the collect safety cap.
func WithMaxPages(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPages = n
		}
	}
}

// WithSink attaches an event sink.
func WithSink(s events.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// New returns an engine using client for RPC, limiter for pacing, and
// nonces for forward idempotency keys.
func New(client telegram.Client, limiter *ratelimit.Controller, nonces telegram.NonceSource, opts ...Option) *Engine {
	e := &Engine{
		client:   client,
		limiter:  limiter,
		nonces:   nonces,
		pageSize: defaultPageSize,
		maxPages: defaultMaxPages,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Opts controls one Migrate call.
type Opts struct {
	// ResumeFromID drops every message id at or below it, resuming an
	// interrupted transfer.
	ResumeFromID int
	// BatchSize caps ids per Forward call. Zero means the page size.
	BatchSize int
	// DryRun collects and counts but never forwards.
	DryRun bool
	// From and To bound messages by date, inclusive. They filter what is
	// forwarded without changing how history is paged.
	From, To *time.Time
	// OnBatch runs after every successful batch with the running migrated
	// count and the batch's highest id. An error aborts the run.
	OnBatch func(migrated, lastID int) error
	// OnForwarded receives the ids of every successfully forwarded batch.
	// Never called on dry runs.
	OnForwarded func(ids []int)
}

// Result is the outcome of one Migrate call. FloodWait is set when the
// server imposed a wait; everything counted so far stays valid.
type Result struct {
	Migrated  int
	Failed    int
	Total     int
	LastID    int
	FloodWait *int
}

// Migrate transfers conv's history into dest. The returned Result is
// meaningful even on error: counts reflect what actually happened.
func (e *Engine) Migrate(ctx context.Context, conv, dest telegram.Peer, opts Opts) (Result, error) {
	var res Result

	ids, err := e.collect(ctx, conv, opts, &res)
	if err != nil || res.FloodWait != nil {
		return res, err
	}
	res.Total = len(ids)
	if len(ids) == 0 {
		return res, nil
	}

	return e.forward(ctx, conv, dest, ids, opts, res)
}

// collect pages history newest-first and returns forwardable ids in the
// order encountered (descending). Service messages paginate but are never
// collected; the date filter never affects pagination.
func (e *Engine) collect(ctx context.Context, conv telegram.Peer, opts Opts, res *Result) ([]int, error) {
	var ids []int
	offsetID := 0
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.KindMigration, errs.Aborted, "history collection cancelled", err)
		}
		if page >= e.maxPages {
			return nil, errs.New(errs.KindMigration, errs.Aborted,
				"history paging exceeded safety cap, refusing to loop")
		}

		pg, err := e.client.History(ctx, conv, offsetID, e.pageSize)
		if err != nil {
			if secs, ok := telegram.AsFloodWait(err); ok {
				res.FloodWait = &secs
				return nil, nil
			}
			return nil, errs.Wrap(errs.KindMigration, errs.DialogFetchFailed, "fetch history page", err)
		}
		if len(pg.Messages) == 0 {
			return ids, nil
		}

		for _, m := range pg.Messages {
			if m.Service {
				continue
			}
			if opts.From != nil && m.Date.Before(*opts.From) {
				continue
			}
			if opts.To != nil && m.Date.After(*opts.To) {
				continue
			}
			ids = append(ids, m.ID)
		}
		offsetID = pg.MinID()
	}
}

// forward sends ids oldest-first in batches, checkpointing after each one.
func (e *Engine) forward(ctx context.Context, conv, dest telegram.Peer, ids []int, opts Opts, res Result) (Result, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = e.pageSize
	}

	// Collected newest-first; forward in original order.
	ascending := make([]int, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] <= opts.ResumeFromID {
			continue
		}
		ascending = append(ascending, ids[i])
	}

	for start := 0; start < len(ascending); start += batchSize {
		if err := ctx.Err(); err != nil {
			return res, errs.Wrap(errs.KindMigration, errs.Aborted, "forwarding cancelled", err)
		}
		end := start + batchSize
		if end > len(ascending) {
			end = len(ascending)
		}
		batch := ascending[start:end]

		// A dry run makes no forward calls, so it skips pacing too.
		if !opts.DryRun {
			if err := e.limiter.Acquire(ctx); err != nil {
				return res, errs.Wrap(errs.KindMigration, errs.Aborted, "rate limiter wait cancelled", err)
			}
			nonces := telegram.Nonces(e.nonces, len(batch))
			if err := e.client.Forward(ctx, conv, dest, batch, nonces); err != nil {
				if secs, ok := telegram.AsFloodWait(err); ok {
					res.FloodWait = &secs
					return res, nil
				}
				res.Failed += len(batch)
				slog.Error("engine.batch_failed", "conv", conv.ID, "size", len(batch), "error", err)
				events.Emit(e.sink, events.EventBatchFailed, conv.ID, map[string]any{
					"size":  len(batch),
					"error": err.Error(),
				})
				continue
			}
		}

		res.Migrated += len(batch)
		res.LastID = batch[len(batch)-1]
		if opts.OnForwarded != nil && !opts.DryRun {
			opts.OnForwarded(batch)
		}
		if opts.OnBatch != nil {
			if err := opts.OnBatch(res.Migrated, res.LastID); err != nil {
				return res, errs.Wrap(errs.KindMigration, errs.Aborted, "batch checkpoint failed", err)
			}
		}
		events.Emit(e.sink, events.EventBatchCompleted, conv.ID, map[string]any{
			"migrated": res.Migrated,
			"lastId":   res.LastID,
		})
	}
	return res, nil
}
