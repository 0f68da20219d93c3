package telegram

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// DefaultFloodWaitSeconds is assumed when the server signals a flood wait
// without a parseable duration.
const DefaultFloodWaitSeconds = 60

// FloodWaitError is returned by Client implementations when the server
// demands a pause before the next call.
type FloodWaitError struct {
	Seconds int
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("FLOOD_WAIT (%d seconds)", e.Seconds)
}

// floodWaiter is satisfied by client errors that expose their wait time
// without being a *FloodWaitError.
type floodWaiter interface {
	FloodWaitSeconds() int
}

// AsFloodWait extracts the wait duration from any error shape a client may
// produce: *FloodWaitError, an error exposing FloodWaitSeconds(), or a
// message containing FLOOD_WAIT (which yields the default duration).
func AsFloodWait(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Seconds, true
	}
	var fws floodWaiter
	if errors.As(err, &fws) {
		return fws.FloodWaitSeconds(), true
	}
	if strings.Contains(err.Error(), "FLOOD_WAIT") {
		return DefaultFloodWaitSeconds, true
	}
	return 0, false
}

// NonceSource produces the per-message random ids forwarding requires.
// Each call returns a fresh value; reusing a nonce makes the server
// silently dedup the forward.
type NonceSource interface {
	Next() int64
}

// CryptoNonceSource draws nonces from crypto/rand.
type CryptoNonceSource struct{}

func (CryptoNonceSource) Next() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("nonce source: %v", err))
	}
	n := int64(binary.LittleEndian.Uint64(b[:]))
	if n < 0 {
		n = -n
	}
	return n
}

// Nonces returns n fresh nonces from src.
func Nonces(src NonceSource, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = src.Next()
	}
	return out
}
