// Package dialogs enumerates the source account's conversations and
// narrows them to the migration set.
package dialogs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/chatmover/internal/errs"
	"github.com/nextlevelbuilder/chatmover/internal/telegram"
)

// Type classifies a conversation for filtering and reporting.
type Type string

const (
	TypePrivate    Type = "private"
	TypeGroup      Type = "group"
	TypeSupergroup Type = "supergroup"
	TypeChannel    Type = "channel"
	TypeBot        Type = "bot"
)

// Conversation is one migratable dialog.
type Conversation struct {
	ID           int64
	Handle       string
	Type         Type
	Name         string
	MessageCount int
	Archived     bool
	Peer         telegram.Peer
	Entity       any
}

// Classify maps a raw dialog entity to a conversation type. Unknown
// entities fall back to private, which is the safest bucket to migrate.
func Classify(entity any) Type {
	switch e := entity.(type) {
	case *telegram.User:
		if e.Bot {
			return TypeBot
		}
		return TypePrivate
	case *telegram.Chat:
		return TypeGroup
	case *telegram.Channel:
		if e.Megagroup {
			return TypeSupergroup
		}
		return TypeChannel
	default:
		return TypePrivate
	}
}

const (
	listRetries    = 3
	listRetryDelay = 50 * time.Millisecond
)

// Enumerator fetches and maps the dialog list.
type Enumerator struct {
	client telegram.Client
}

// NewEnumerator creates an Enumerator over client.
func NewEnumerator(client telegram.Client) *Enumerator {
	return &Enumerator{client: client}
}

// List fetches all dialogs, retrying the whole fetch on transient errors.
func (e *Enumerator) List(ctx context.Context) ([]Conversation, error) {
	var lastErr error
	for attempt := 1; attempt <= listRetries; attempt++ {
		dialogs, err := e.client.DialogList(ctx)
		if err == nil {
			return mapDialogs(dialogs), nil
		}
		lastErr = err
		slog.Warn("dialogs.fetch_retry", "attempt", attempt, "error", err)

		if attempt < listRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(listRetryDelay):
			}
		}
	}
	return nil, errs.Wrap(errs.KindDialog, errs.FetchFailed,
		fmt.Sprintf("after %d attempts", listRetries), lastErr)
}

func mapDialogs(in []telegram.Dialog) []Conversation {
	out := make([]Conversation, 0, len(in))
	for _, d := range in {
		out = append(out, Conversation{
			ID:           d.Peer.ID,
			Handle:       d.Username,
			Type:         Classify(d.Entity),
			Name:         displayName(d),
			MessageCount: d.TopMessage,
			Archived:     d.Archived,
			Peer:         d.Peer,
			Entity:       d.Entity,
		})
	}
	return out
}

// displayName picks a human name for the dialog: explicit name, then
// username, then first+last for users, then a synthetic id label.
func displayName(d telegram.Dialog) string {
	if d.Name != "" {
		return d.Name
	}
	if d.Username != "" {
		return d.Username
	}
	if u, ok := d.Entity.(*telegram.User); ok {
		full := strings.TrimSpace(u.FirstName + " " + u.LastName)
		if full != "" {
			return full
		}
	}
	return fmt.Sprintf("chat %d", d.Peer.ID)
}
