package telegram

import (
	"context"
	"errors"
	"sync"
)

// DialOptions carries what a transport needs to connect and authenticate
// account A.
type DialOptions struct {
	APIID   int
	APIHash string
	// Phone is the account's number in international format.
	Phone string
	// Session is the opaque saved session string, empty on first login.
	Session string
	// OnSession is invoked whenever the transport issues a new session
	// string (first login, key rotation). Implementations persist it
	// before returning.
	OnSession func(session string) error
}

// DialFunc connects and authenticates a wire client.
type DialFunc func(ctx context.Context, opts DialOptions) (Client, error)

var (
	dialMu sync.RWMutex
	dialFn DialFunc
)

// RegisterDialer installs the transport factory. Transport packages call
// it from init, the way database/sql drivers register themselves; the
// last registration wins.
func RegisterDialer(fn DialFunc) {
	dialMu.Lock()
	dialFn = fn
	dialMu.Unlock()
}

// DialerRegistered reports whether a transport is linked into this build.
func DialerRegistered() bool {
	dialMu.RLock()
	defer dialMu.RUnlock()
	return dialFn != nil
}

// Dial connects using the registered transport.
func Dial(ctx context.Context, opts DialOptions) (Client, error) {
	dialMu.RLock()
	fn := dialFn
	dialMu.RUnlock()
	if fn == nil {
		return nil, errors.New("telegram: no wire transport registered in this build")
	}
	return fn(ctx, opts)
}
