// Package progress is the durable state of a migration run: one JSON file,
// rewritten atomically, holding per-conversation status plus aggregate
// stats. Mutations go through the Store, which deep-copies the current
// state, applies the change, and swaps the pointer, so readers never see a
// half-applied update and a failed save never corrupts the last good state.
package progress

import (
	"time"
)

// FormatVersion is the only progress file version this build reads.
const FormatVersion = "1.0"

// Status is the lifecycle state of one conversation.
type Status string

const (
	StatusPending           Status = "pending"
	StatusInProgress        Status = "in_progress"
	StatusPartiallyMigrated Status = "partially_migrated"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusSkipped           Status = "skipped"
)

// legalNext enumerates allowed status transitions. failed->in_progress is
// the retry path, skipped->pending the reset path.
var legalNext = map[Status][]Status{
	StatusPending:           {StatusInProgress, StatusSkipped, StatusFailed},
	StatusInProgress:        {StatusPartiallyMigrated, StatusCompleted, StatusFailed, StatusSkipped},
	StatusPartiallyMigrated: {StatusInProgress, StatusCompleted, StatusFailed},
	StatusCompleted:         {},
	StatusFailed:            {StatusInProgress, StatusPending},
	StatusSkipped:           {StatusPending},
}

// CanTransition reports whether from -> to is a legal status change.
// Self-transitions are allowed (idempotent marks).
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range legalNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Phase is the run-level stage recorded in the file.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching_dialogs"
	PhaseCreating  Phase = "creating_groups"
	PhaseMigrating Phase = "migrating_messages"
	PhaseCompleted Phase = "completed"
)

// ErrEntry is one recorded failure for a conversation.
type ErrEntry struct {
	Time    time.Time `json:"time"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// Conv is the per-conversation progress record.
type Conv struct {
	Status        Status     `json:"status"`
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	TargetGroupID *int64     `json:"targetGroupId,omitempty"`
	LastMessageID *int       `json:"lastMessageId,omitempty"`
	MigratedCount int        `json:"migratedCount"`
	TotalCount    int        `json:"totalCount"`
	FailedCount   int        `json:"failedCount,omitempty"`
	Errors        []ErrEntry `json:"errors,omitempty"`
	SkipReason    string     `json:"skipReason,omitempty"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// FloodWaitEvent is one server-imposed wait observed during the run.
type FloodWaitEvent struct {
	Time      time.Time `json:"time"`
	Operation string    `json:"operation"`
	Seconds   int       `json:"seconds"`
	// DialogID attributes the wait to a conversation; empty when the
	// wait was account-wide rather than hit on a specific dialog.
	DialogID string `json:"dialogId,omitempty"`
}

// Stats are the aggregate counters, recomputed from the dialogs map on
// every save and merge, never mutated incrementally.
type Stats struct {
	TotalDialogs          int `json:"totalDialogs"`
	CompletedDialogs      int `json:"completedDialogs"`
	FailedDialogs         int `json:"failedDialogs"`
	SkippedDialogs        int `json:"skippedDialogs"`
	TotalMessages         int `json:"totalMessages"`
	MigratedMessages      int `json:"migratedMessages"`
	FailedMessages        int `json:"failedMessages"`
	FloodWaitCount        int `json:"floodWaitCount"`
	TotalFloodWaitSeconds int `json:"totalFloodWaitSeconds"`
}

// DailyGroups tracks supergroup creations for the current local date.
type DailyGroups struct {
	Date  string `json:"date"` // YYYY-MM-DD, process-local zone
	Count int    `json:"count"`
}

// Global is the complete progress file.
type Global struct {
	Version    string           `json:"version"`
	StartedAt  time.Time        `json:"startedAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	AccountA   string           `json:"accountA,omitempty"` // masked
	AccountB   string           `json:"accountB,omitempty"` // masked
	Phase      Phase            `json:"phase"`
	Dialogs    map[string]*Conv `json:"dialogs"`
	FloodWaits []FloodWaitEvent `json:"floodWaitEvents,omitempty"`
	Stats      Stats            `json:"stats"`
	Daily      DailyGroups      `json:"dailyGroupCreation"`
}

// NewGlobal returns an empty progress state started now.
func NewGlobal() *Global {
	now := time.Now().UTC()
	return &Global{
		Version:   FormatVersion,
		StartedAt: now,
		UpdatedAt: now,
		Phase:     PhaseIdle,
		Dialogs:   make(map[string]*Conv),
	}
}

// Recompute rebuilds Stats from the dialogs map and flood-wait log.
func (g *Global) Recompute() {
	s := Stats{TotalDialogs: len(g.Dialogs)}
	for _, c := range g.Dialogs {
		s.TotalMessages += c.TotalCount
		s.MigratedMessages += c.MigratedCount
		s.FailedMessages += c.FailedCount
		switch c.Status {
		case StatusCompleted:
			s.CompletedDialogs++
		case StatusFailed:
			s.FailedDialogs++
		case StatusSkipped:
			s.SkippedDialogs++
		}
	}
	s.FloodWaitCount = len(g.FloodWaits)
	for _, e := range g.FloodWaits {
		s.TotalFloodWaitSeconds += e.Seconds
	}
	g.Stats = s
}

// Clone returns a deep copy of c.
func (c *Conv) Clone() *Conv {
	cp := *c
	if c.TargetGroupID != nil {
		id := *c.TargetGroupID
		cp.TargetGroupID = &id
	}
	if c.LastMessageID != nil {
		id := *c.LastMessageID
		cp.LastMessageID = &id
	}
	if c.StartedAt != nil {
		t := *c.StartedAt
		cp.StartedAt = &t
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Errors = append([]ErrEntry(nil), c.Errors...)
	return &cp
}

// Clone returns a deep copy of g.
func (g *Global) Clone() *Global {
	cp := *g
	cp.Dialogs = make(map[string]*Conv, len(g.Dialogs))
	for k, v := range g.Dialogs {
		cp.Dialogs[k] = v.Clone()
	}
	cp.FloodWaits = append([]FloodWaitEvent(nil), g.FloodWaits...)
	return &cp
}

// localDate formats t in the process-local zone as YYYY-MM-DD.
func localDate(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
