// Package realtime forwards messages that arrive in a conversation while
// or after its history is being migrated. Incoming messages queue in
// memory per conversation; Drain ships them to the destination once the
// bulk transfer for the conversation has landed.
package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/chatmover/internal/errs"
	"github.com/nextlevelbuilder/chatmover/internal/ratelimit"
	"github.com/nextlevelbuilder/chatmover/internal/telegram"
	"github.com/nextlevelbuilder/chatmover/pkg/events"
)

const (
	// DefaultMaxQueue bounds each conversation's pending tail. Beyond it
	// the oldest entries fall off; history migration will pick those up on
	// the next run anyway.
	DefaultMaxQueue = 1000
	// maxRetries is how many times one message is re-queued after a
	// non-flood forward failure before it is dropped.
	maxRetries = 3
)

// QueuedMessage is one message waiting to be tail-forwarded.
type QueuedMessage struct {
	ID         int
	Time       time.Time
	RetryCount int
}

type convState struct {
	src       telegram.Peer
	dest      telegram.Peer
	queue     []QueuedMessage
	listening bool
}

// TailSync queues live messages per conversation and drains them after
// the bulk phase. One wire subscription serves every conversation; the
// handler only appends under a mutex, never issues RPC.
type TailSync struct {
	client   telegram.Client
	limiter  *ratelimit.Controller
	nonces   telegram.NonceSource
	sink     events.Sink
	maxQueue int

	mu    sync.Mutex
	convs map[int64]*convState
	stop  func()
}

// New returns a TailSync with the given queue bound. maxQueue <= 0 uses
// DefaultMaxQueue.
func New(client telegram.Client, limiter *ratelimit.Controller, nonces telegram.NonceSource, maxQueue int, sink events.Sink) *TailSync {
	if maxQueue <= 0 {
		maxQueue = DefaultMaxQueue
	}
	return &TailSync{
		client:   client,
		limiter:  limiter,
		nonces:   nonces,
		sink:     sink,
		maxQueue: maxQueue,
		convs:    make(map[int64]*convState),
	}
}

// Subscribe opens the shared wire subscription. Call once before any
// StartListening; Close undoes it.
func (t *TailSync) Subscribe() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return nil
	}
	stop := t.client.OnNewMessage(t.handle)
	if stop == nil {
		return errs.New(errs.KindRealtime, errs.ListenerInitFailed, "client returned no subscription")
	}
	t.stop = stop
	return nil
}

// Close tears down the wire subscription and every per-conversation state.
func (t *TailSync) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	t.convs = make(map[int64]*convState)
}

// StartListening begins queueing new messages for conv arriving on src.
func (t *TailSync) StartListening(convID int64, src telegram.Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.convs[convID]
	if st == nil {
		st = &convState{}
		t.convs[convID] = st
	}
	st.src = src
	st.listening = true
}

// RegisterMapping records the destination group for conv.
func (t *TailSync) RegisterMapping(convID int64, dest telegram.Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.convs[convID]
	if st == nil {
		st = &convState{}
		t.convs[convID] = st
	}
	st.dest = dest
}

// StopListening stops queueing for conv and discards its state.
func (t *TailSync) StopListening(convID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.convs, convID)
}

// Pending returns how many messages are queued for conv.
func (t *TailSync) Pending(convID int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st := t.convs[convID]; st != nil {
		return len(st.queue)
	}
	return 0
}

// handle is the wire callback. It must return fast: append under lock,
// evict on overflow, nothing else.
func (t *TailSync) handle(peer telegram.Peer, msg telegram.Message) {
	if msg.Service {
		return
	}
	t.mu.Lock()
	var dropped int
	var convID int64
	for id, st := range t.convs {
		if !st.listening || st.src.ID != peer.ID {
			continue
		}
		st.queue = append(st.queue, QueuedMessage{ID: msg.ID, Time: msg.Date})
		if len(st.queue) > t.maxQueue {
			dropped = len(st.queue) - t.maxQueue
			st.queue = st.queue[dropped:]
			convID = id
		}
		break
	}
	t.mu.Unlock()

	if dropped > 0 {
		slog.Warn("realtime.queue_overflow", "conv", convID, "dropped", dropped)
		events.Emit(t.sink, events.EventQueueOverflow, convID, map[string]any{"dropped": dropped})
	}
}

// DrainResult reports one Drain call.
type DrainResult struct {
	Forwarded int
	Skipped   int
	Failed    int
}

// Drain forwards conv's queued messages in id order, skipping anything the
// bulk phase already covered. A flood wait re-queues what is left and
// returns it as an error; per-message failures retry up to maxRetries
// before the message is dropped.
func (t *TailSync) Drain(ctx context.Context, convID int64, lastBatchID int) (DrainResult, error) {
	t.mu.Lock()
	st := t.convs[convID]
	if st == nil || len(st.queue) == 0 {
		t.mu.Unlock()
		return DrainResult{}, nil
	}
	pending := st.queue
	st.queue = nil
	src, dest := st.src, st.dest
	t.mu.Unlock()

	if dest.IsZero() {
		t.requeue(convID, pending)
		return DrainResult{}, errs.New(errs.KindRealtime, errs.ListenerInitFailed, "no destination mapping registered")
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })

	var res DrainResult
	for i := 0; i < len(pending); i++ {
		m := pending[i]
		if m.ID <= lastBatchID {
			res.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			t.requeue(convID, pending[i:])
			return res, errs.Wrap(errs.KindMigration, errs.Aborted, "drain cancelled", err)
		}
		if err := t.limiter.Acquire(ctx); err != nil {
			t.requeue(convID, pending[i:])
			return res, errs.Wrap(errs.KindMigration, errs.Aborted, "drain cancelled", err)
		}

		err := t.client.Forward(ctx, src, dest, []int{m.ID}, telegram.Nonces(t.nonces, 1))
		if err == nil {
			res.Forwarded++
			events.Emit(t.sink, events.EventTailForwarded, convID, map[string]any{"id": m.ID})
			continue
		}
		if secs, ok := telegram.AsFloodWait(err); ok {
			t.requeue(convID, pending[i:])
			return res, errs.NewFloodWait(errs.KindRealtime, secs)
		}

		m.RetryCount++
		if m.RetryCount <= maxRetries {
			t.requeue(convID, []QueuedMessage{m})
			continue
		}
		res.Failed++
		slog.Warn("realtime.tail_failed", "conv", convID, "id", m.ID, "error", err)
		events.Emit(t.sink, events.EventTailFailed, convID, map[string]any{
			"id":    m.ID,
			"error": err.Error(),
		})
	}
	return res, nil
}

// requeue puts messages back at the tail of conv's queue, preserving their
// relative order.
func (t *TailSync) requeue(convID int64, msgs []QueuedMessage) {
	if len(msgs) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.convs[convID]
	if st == nil {
		return
	}
	st.queue = append(st.queue, msgs...)
	if len(st.queue) > t.maxQueue {
		st.queue = st.queue[len(st.queue)-t.maxQueue:]
	}
}
