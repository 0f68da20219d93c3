// Package telegram defines the wire-client boundary. The MTProto transport
// itself (auth, session handshake, RPC encoding) lives outside this
// repository; production wiring injects an implementation of Client, tests
// inject fakes. Everything above this package speaks only these types.
package telegram

import (
	"context"
	"time"
)

// Client is the interface the migration engine drives. All calls are
// blocking and honor context cancellation.
type Client interface {
	// Me returns the authenticated account.
	Me(ctx context.Context) (User, error)

	// DialogList fetches every dialog of the account, archived included.
	DialogList(ctx context.Context) ([]Dialog, error)

	// History returns one page of messages for a peer, newest first.
	// offsetID 0 starts from the top; otherwise messages strictly older
	// than offsetID are returned. Count is the server-side total estimate.
	History(ctx context.Context, peer Peer, offsetID, limit int) (HistoryPage, error)

	// Forward copies messages server-side, preserving original authorship
	// and captions. ids and nonces must be the same length; nonces must be
	// fresh random values per message per attempt.
	Forward(ctx context.Context, from, to Peer, ids []int, nonces []int64) error

	// CreateSupergroup creates a new supergroup owned by the account.
	CreateSupergroup(ctx context.Context, title, about string) (Peer, error)

	// Invite adds a user (by @username or phone) to a group.
	Invite(ctx context.Context, group Peer, user string) error

	// Resolve looks up a peer by username.
	Resolve(ctx context.Context, username string) (Peer, error)

	// ResolveChannel re-establishes access to a channel by id, recovering
	// its access hash. Fails when the channel is gone or the account lost
	// access to it.
	ResolveChannel(ctx context.Context, id int64) (Peer, error)

	// SendMessage sends a plain text message to a peer.
	SendMessage(ctx context.Context, peer Peer, text string) error

	// OnNewMessage registers a handler for incoming messages across all
	// peers. The handler must not block. The returned stop func
	// unregisters it.
	OnNewMessage(handler func(peer Peer, msg Message)) (stop func())
}

// PeerKind distinguishes the three addressable entity classes.
type PeerKind string

const (
	PeerUser    PeerKind = "user"
	PeerChat    PeerKind = "chat"
	PeerChannel PeerKind = "channel"
)

// Peer addresses a conversation partner on the wire.
type Peer struct {
	Kind       PeerKind `json:"kind"`
	ID         int64    `json:"id"`
	AccessHash int64    `json:"access_hash,omitempty"`
}

// IsZero reports whether the peer is unset.
func (p Peer) IsZero() bool { return p.ID == 0 }

// User is the raw user entity.
type User struct {
	ID         int64
	AccessHash int64
	Username   string
	FirstName  string
	LastName   string
	Phone      string
	Bot        bool
}

// Chat is the raw legacy small-group entity.
type Chat struct {
	ID           int64
	Title        string
	Participants int
}

// Channel is the raw channel entity; Megagroup marks supergroups.
type Channel struct {
	ID         int64
	AccessHash int64
	Title      string
	Username   string
	Megagroup  bool
	Broadcast  bool
}

// Dialog is one entry of the account's dialog list.
type Dialog struct {
	Peer       Peer
	Name       string
	Username   string
	TopMessage int
	Unread     int
	Archived   bool
	// Entity holds the raw *User, *Chat or *Channel behind the dialog.
	Entity any
}

// Message is the minimal view of a history message the engine needs.
type Message struct {
	ID      int
	Date    time.Time
	Service bool
	Out     bool
	Text    string
}

// HistoryPage is one page of History results.
type HistoryPage struct {
	Messages []Message
	// Count is the server's total message estimate for the peer; only the
	// first page is guaranteed to carry it.
	Count int
}

// MinID returns the smallest message id on the page, service messages
// included. Returns 0 for an empty page.
func (p HistoryPage) MinID() int {
	min := 0
	for _, m := range p.Messages {
		if min == 0 || m.ID < min {
			min = m.ID
		}
	}
	return min
}
