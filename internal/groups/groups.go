// Package groups creates and fills the destination supergroups. One group
// per source conversation, owned by account A, with account B invited.
package groups

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/chatmover/internal/dialogs"
	"github.com/nextlevelbuilder/chatmover/internal/errs"
	"github.com/nextlevelbuilder/chatmover/internal/telegram"
)

// maxTitleCells is the display width the server accepts for group titles.
const maxTitleCells = 128

// Manager creates destination groups with a cooldown between creations.
type Manager struct {
	client   telegram.Client
	prefix   string
	cooldown time.Duration
	created  int

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager returns a manager that titles groups with prefix and spaces
// creations by cooldown.
func NewManager(client telegram.Client, prefix string, cooldown time.Duration) *Manager {
	return &Manager{
		client:   client,
		prefix:   prefix,
		cooldown: cooldown,
		sleep:    ctxSleep,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// EnsureDestination returns the destination group for conv, reusing the
// group recorded by an earlier run when existing is set. The recorded id
// is resolved first to recover its access hash; a group that no longer
// resolves (deleted, access lost) is replaced with a fresh one. created
// reports whether a new group was made on this call.
func (m *Manager) EnsureDestination(ctx context.Context, conv dialogs.Conversation, existing *int64) (telegram.Peer, bool, error) {
	if existing != nil && *existing != 0 {
		peer, err := m.client.ResolveChannel(ctx, *existing)
		if err == nil {
			slog.Debug("groups.reuse", "conv", conv.ID, "group", peer.ID)
			return peer, false, nil
		}
		if secs, ok := telegram.AsFloodWait(err); ok {
			return telegram.Peer{}, false, errs.NewFloodWait(errs.KindGroup, secs)
		}
		slog.Warn("groups.stale_destination", "conv", conv.ID, "group", *existing, "error", err)
	}
	peer, err := m.Create(ctx, conv)
	if err != nil {
		return telegram.Peer{}, false, err
	}
	return peer, true, nil
}

// Create makes a fresh supergroup for conv. Creations after the first wait
// out the cooldown first; the server throttles account-wide channel
// creation far below the per-call limits.
func (m *Manager) Create(ctx context.Context, conv dialogs.Conversation) (telegram.Peer, error) {
	if m.created > 0 {
		slog.Info("groups.cooldown", "wait", m.cooldown, "conv", conv.ID)
		if err := m.sleep(ctx, m.cooldown); err != nil {
			return telegram.Peer{}, errs.Wrap(errs.KindGroup, errs.CreateFailed, "creation cooldown cancelled", err)
		}
	}

	title := Title(m.prefix, conv.Name)
	about := aboutText(conv)
	peer, err := m.client.CreateSupergroup(ctx, title, about)
	if err != nil {
		if secs, ok := telegram.AsFloodWait(err); ok {
			return telegram.Peer{}, errs.NewFloodWait(errs.KindGroup, secs)
		}
		return telegram.Peer{}, errs.Wrap(errs.KindGroup, errs.CreateFailed, "create supergroup", err)
	}
	m.created++
	slog.Info("groups.created", "conv", conv.ID, "group", peer.ID, "title", title)
	return peer, nil
}

// Invite adds user (an @username or phone) to group, classifying the
// failure modes callers branch on.
func (m *Manager) Invite(ctx context.Context, group telegram.Peer, user string) error {
	err := m.client.Invite(ctx, group, user)
	if err == nil {
		return nil
	}
	if secs, ok := telegram.AsFloodWait(err); ok {
		return errs.NewFloodWait(errs.KindGroup, secs)
	}
	// RPC error tags arrive both SCREAMING_SNAKE and CamelCase depending on
	// the transport layer; compare with separators stripped.
	lower := strings.ToLower(err.Error())
	compact := strings.ReplaceAll(lower, "_", "")
	switch {
	case strings.Contains(compact, "usernamenotoccupied"),
		strings.Contains(compact, "usernameinvalid"),
		strings.Contains(lower, "not found"),
		strings.Contains(lower, "invalid"):
		return errs.Wrap(errs.KindGroup, errs.UserNotFound, fmt.Sprintf("invite %s", user), err)
	case strings.Contains(lower, "restricted"):
		return errs.Wrap(errs.KindGroup, errs.UserRestricted, fmt.Sprintf("invite %s", user), err)
	}
	return errs.Wrap(errs.KindGroup, errs.InviteFailed, fmt.Sprintf("invite %s", user), err)
}

// Title builds the destination group title, truncated to the display width
// the server accepts. Truncation counts cells, not bytes, so wide scripts
// do not overshoot.
func Title(prefix, name string) string {
	return runewidth.Truncate(prefix+name, maxTitleCells, "…")
}

func aboutText(conv dialogs.Conversation) string {
	if conv.Handle != "" {
		return fmt.Sprintf("Migrated history from %s (@%s, id %d)", conv.Name, conv.Handle, conv.ID)
	}
	return fmt.Sprintf("Migrated history from %s (id %d)", conv.Name, conv.ID)
}
