package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/chatmover/internal/errs"
	"github.com/nextlevelbuilder/chatmover/internal/masking"
)

// maxErrorsPerConv caps the per-conversation error log so a retry loop
// cannot grow the file without bound.
const maxErrorsPerConv = 20

// Store owns the progress file. All reads hand out copies; all writes go
// through update, which mutates a clone and swaps it in only on success.
type Store struct {
	path string

	mu  sync.RWMutex
	cur *Global
}

// NewStore returns a store for path. Call Load before anything else.
func NewStore(path string) *Store {
	return &Store{path: path, cur: NewGlobal()}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads the progress file. A missing file is a fresh start, not an
// error. Empty or unparsable files and unknown format versions are
// reported so the operator decides, never silently overwritten.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.cur = NewGlobal()
			s.mu.Unlock()
			return nil
		}
		return errs.Wrap(errs.KindProgress, errs.FileNotFound, "read progress file", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return errs.New(errs.KindProgress, errs.FileCorrupted, fmt.Sprintf("progress file %s is empty", s.path))
	}
	var g Global
	if err := json.Unmarshal(data, &g); err != nil {
		return errs.Wrap(errs.KindProgress, errs.FileCorrupted, "parse progress file", err)
	}
	if g.Version == "" || g.StartedAt.IsZero() {
		return errs.New(errs.KindProgress, errs.InvalidFormat, "progress file is missing version or startedAt")
	}
	if g.Version != FormatVersion {
		return errs.New(errs.KindProgress, errs.InvalidFormat,
			fmt.Sprintf("unsupported progress version %q (want %s)", g.Version, FormatVersion))
	}
	if g.Dialogs == nil {
		g.Dialogs = make(map[string]*Conv)
	}
	s.mu.Lock()
	s.cur = &g
	s.mu.Unlock()
	return nil
}

// Save writes the current state atomically. UpdatedAt is bumped and stats
// are recomputed as part of the write, so a loaded file is always
// internally consistent.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cur.UpdatedAt = time.Now().UTC()
	s.cur.Recompute()

	data, err := json.MarshalIndent(s.cur, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindProgress, errs.WriteFailed, "encode progress", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.KindProgress, errs.WriteFailed, "create progress directory", err)
	}

	// Atomic write: temp file → rename
	tmpFile, err := os.CreateTemp(dir, "progress-*.tmp")
	if err != nil {
		return errs.Wrap(errs.KindProgress, errs.WriteFailed, "create temp file", err)
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(0o644); err != nil {
		tmpFile.Close()
		return errs.Wrap(errs.KindProgress, errs.WriteFailed, "chmod temp file", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return errs.Wrap(errs.KindProgress, errs.WriteFailed, "write temp file", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return errs.Wrap(errs.KindProgress, errs.WriteFailed, "sync temp file", err)
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, s.path); err != nil {
		return errs.Wrap(errs.KindProgress, errs.WriteFailed, "rename temp file", err)
	}
	cleanup = false
	return nil
}

// update clones the current state, applies fn to the clone, and swaps it
// in when fn succeeds. Errors leave the current state untouched.
func (s *Store) update(fn func(*Global) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur.Clone()
	if err := fn(next); err != nil {
		return err
	}
	s.cur = next
	return nil
}

func conv(g *Global, id string) (*Conv, error) {
	c, ok := g.Dialogs[id]
	if !ok {
		return nil, fmt.Errorf("progress: unknown conversation %s", id)
	}
	return c, nil
}

func setStatus(c *Conv, id string, to Status) error {
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("progress: conversation %s cannot go %s -> %s", id, c.Status, to)
	}
	c.Status = to
	return nil
}

// InitConversation registers a conversation in pending state. Re-running
// against an already known conversation keeps its existing record and only
// refreshes name, type, and total count.
func (s *Store) InitConversation(id, name, typ string, total int) error {
	return s.update(func(g *Global) error {
		if c, ok := g.Dialogs[id]; ok {
			c.Name = name
			c.Type = typ
			c.TotalCount = total
			return nil
		}
		g.Dialogs[id] = &Conv{
			Status:     StatusPending,
			Name:       name,
			Type:       typ,
			TotalCount: total,
		}
		return nil
	})
}

// MarkStarted moves a conversation to in_progress, records its destination
// group, and stamps StartedAt on first start. Recording the group here
// keeps it available for reuse even when a later step fails.
func (s *Store) MarkStarted(id string, groupID int64) error {
	return s.update(func(g *Global) error {
		c, err := conv(g, id)
		if err != nil {
			return err
		}
		if err := setStatus(c, id, StatusInProgress); err != nil {
			return err
		}
		c.TargetGroupID = &groupID
		if c.StartedAt == nil {
			now := time.Now().UTC()
			c.StartedAt = &now
		}
		return nil
	})
}

// MarkCompleted finishes a conversation and stamps CompletedAt.
func (s *Store) MarkCompleted(id string) error {
	return s.update(func(g *Global) error {
		c, err := conv(g, id)
		if err != nil {
			return err
		}
		if err := setStatus(c, id, StatusCompleted); err != nil {
			return err
		}
		now := time.Now().UTC()
		c.CompletedAt = &now
		return nil
	})
}

// MarkFailed records a failure with its error entry.
func (s *Store) MarkFailed(id, code, msg string) error {
	return s.update(func(g *Global) error {
		c, err := conv(g, id)
		if err != nil {
			return err
		}
		if err := setStatus(c, id, StatusFailed); err != nil {
			return err
		}
		appendErr(c, code, msg)
		return nil
	})
}

// MarkSkipped records an operator or filter skip with its reason.
func (s *Store) MarkSkipped(id, reason string) error {
	return s.update(func(g *Global) error {
		c, err := conv(g, id)
		if err != nil {
			return err
		}
		if err := setStatus(c, id, StatusSkipped); err != nil {
			return err
		}
		c.SkipReason = reason
		return nil
	})
}

// ResetConversation returns a conversation to pending as if it had never
// been attempted, keeping only its identity. The destination group id is
// cleared too: the next run builds a fresh group, and the operator deletes
// the stale one. This is an operator override and skips transition checks.
func (s *Store) ResetConversation(id string) error {
	return s.update(func(g *Global) error {
		c, err := conv(g, id)
		if err != nil {
			return err
		}
		g.Dialogs[id] = &Conv{
			Status: StatusPending,
			Name:   c.Name,
			Type:   c.Type,
		}
		return nil
	})
}

// MarkPartial flags a conversation interrupted mid-transfer, folding in
// the final checkpoint so the next run resumes from LastMessageID. A zero
// checkpoint on a fresh conversation still pins LastMessageID to 0, which
// resumes from the beginning. The interruption is logged in the error
// list so the report shows where the run stalled.
func (s *Store) MarkPartial(id string, lastMessageID, migratedDelta int) error {
	return s.update(func(g *Global) error {
		c, err := conv(g, id)
		if err != nil {
			return err
		}
		if err := setStatus(c, id, StatusPartiallyMigrated); err != nil {
			return err
		}
		last := lastMessageID
		if c.LastMessageID != nil && *c.LastMessageID > last {
			last = *c.LastMessageID
		}
		c.LastMessageID = &last
		c.MigratedCount += migratedDelta
		appendErr(c, "FLOOD_WAIT_TIMEOUT",
			fmt.Sprintf("transfer interrupted at message %d", last))
		return nil
	})
}

// UpdateMessageProgress advances the per-conversation checkpoint after a
// forwarded batch: highest source message id plus how many went through.
func (s *Store) UpdateMessageProgress(id string, lastMessageID, migratedDelta int) error {
	return s.update(func(g *Global) error {
		c, err := conv(g, id)
		if err != nil {
			return err
		}
		last := lastMessageID
		if c.LastMessageID != nil && *c.LastMessageID > last {
			last = *c.LastMessageID
		}
		c.LastMessageID = &last
		c.MigratedCount += migratedDelta
		return nil
	})
}

// AddFailedMessages counts messages that could not be forwarded.
func (s *Store) AddFailedMessages(id string, n int) error {
	return s.update(func(g *Global) error {
		c, err := conv(g, id)
		if err != nil {
			return err
		}
		c.FailedCount += n
		return nil
	})
}

// AddError appends an error entry without changing status. The log keeps
// the most recent maxErrorsPerConv entries.
func (s *Store) AddError(id, code, msg string) error {
	return s.update(func(g *Global) error {
		c, err := conv(g, id)
		if err != nil {
			return err
		}
		appendErr(c, code, msg)
		return nil
	})
}

func appendErr(c *Conv, code, msg string) {
	c.Errors = append(c.Errors, ErrEntry{Time: time.Now().UTC(), Code: code, Message: msg})
	if len(c.Errors) > maxErrorsPerConv {
		c.Errors = c.Errors[len(c.Errors)-maxErrorsPerConv:]
	}
}

// SetTotalCount fixes the message total once the source has been counted.
func (s *Store) SetTotalCount(id string, total int) error {
	return s.update(func(g *Global) error {
		c, err := conv(g, id)
		if err != nil {
			return err
		}
		c.TotalCount = total
		return nil
	})
}

// SetPhase records the run-level stage.
func (s *Store) SetPhase(p Phase) error {
	return s.update(func(g *Global) error {
		g.Phase = p
		return nil
	})
}

// SetAccounts stores the two account identifiers. Values are masked here
// so raw phone numbers never reach the file regardless of caller.
func (s *Store) SetAccounts(accountA, accountB string) error {
	return s.update(func(g *Global) error {
		g.AccountA = masking.Apply(accountA)
		g.AccountB = masking.Apply(accountB)
		return nil
	})
}

// RecordFloodWait appends a server-imposed wait to the run log. dialogID
// names the conversation the wait was hit on; pass "" for account-wide
// waits with no single culprit.
func (s *Store) RecordFloodWait(operation, dialogID string, seconds int) error {
	return s.update(func(g *Global) error {
		g.FloodWaits = append(g.FloodWaits, FloodWaitEvent{
			Time:      time.Now().UTC(),
			Operation: operation,
			Seconds:   seconds,
			DialogID:  dialogID,
		})
		return nil
	})
}

// Get returns a copy of one conversation record.
func (s *Store) Get(id string) (Conv, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cur.Dialogs[id]
	if !ok {
		return Conv{}, false
	}
	return *c.Clone(), true
}

// ResumePoint returns the checkpoint to resume from. Only conversations
// interrupted mid-transfer resume; everything else starts from scratch.
func (s *Store) ResumePoint(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cur.Dialogs[id]
	if !ok || c.LastMessageID == nil {
		return 0, false
	}
	if c.Status != StatusPartiallyMigrated && c.Status != StatusInProgress {
		return 0, false
	}
	return *c.LastMessageID, true
}

// Snapshot returns a deep copy of the full state with stats freshly
// recomputed.
func (s *Store) Snapshot() *Global {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.cur.Clone()
	g.Recompute()
	return g
}

// SetCurrent replaces the in-memory state, typically after an import
// merge. The store keeps its own copy.
func (s *Store) SetCurrent(g *Global) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = g.Clone()
	if s.cur.Dialogs == nil {
		s.cur.Dialogs = make(map[string]*Conv)
	}
}

// DailyCount returns today's supergroup creations. A date rollover reads
// as zero even before the counter is rewritten.
func (s *Store) DailyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur.Daily.Date != localDate(time.Now()) {
		return 0
	}
	return s.cur.Daily.Count
}

// IncrementDaily counts one supergroup creation against today's quota,
// resetting the counter when the local date has changed.
func (s *Store) IncrementDaily() error {
	return s.update(func(g *Global) error {
		today := localDate(time.Now())
		if g.Daily.Date != today {
			g.Daily = DailyGroups{Date: today}
		}
		g.Daily.Count++
		return nil
	})
}

// DailyLimitReached reports whether today's creations hit limit. A limit
// of zero or below disables the quota.
func (s *Store) DailyLimitReached(limit int) bool {
	if limit <= 0 {
		return false
	}
	return s.DailyCount() >= limit
}
