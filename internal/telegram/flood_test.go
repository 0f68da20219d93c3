package telegram

import (
	"errors"
	"fmt"
	"testing"
)

type rpcErr struct{ secs int }

func (e *rpcErr) Error() string         { return "rpc: slow down" }
func (e *rpcErr) FloodWaitSeconds() int { return e.secs }

func TestAsFloodWait(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantSecs int
		wantOK   bool
	}{
		{"nil", nil, 0, false},
		{"typed", &FloodWaitError{Seconds: 120}, 120, true},
		{"wrapped typed", fmt.Errorf("forward: %w", &FloodWaitError{Seconds: 30}), 30, true},
		{"seconds method", &rpcErr{secs: 45}, 45, true},
		{"substring fallback", errors.New("FLOOD_WAIT_X"), DefaultFloodWaitSeconds, true},
		{"unrelated", errors.New("peer id invalid"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secs, ok := AsFloodWait(tt.err)
			if secs != tt.wantSecs || ok != tt.wantOK {
				t.Errorf("AsFloodWait = (%d, %v), want (%d, %v)", secs, ok, tt.wantSecs, tt.wantOK)
			}
		})
	}
}

func TestNoncesFresh(t *testing.T) {
	src := CryptoNonceSource{}
	got := Nonces(src, 64)
	if len(got) != 64 {
		t.Fatalf("len = %d, want 64", len(got))
	}
	seen := make(map[int64]bool, len(got))
	for _, n := range got {
		if n < 0 {
			t.Errorf("nonce %d is negative", n)
		}
		if seen[n] {
			t.Errorf("nonce %d repeated", n)
		}
		seen[n] = true
	}
}

func TestHistoryPageMinID(t *testing.T) {
	page := HistoryPage{Messages: []Message{{ID: 250}, {ID: 12, Service: true}, {ID: 80}}}
	if got := page.MinID(); got != 12 {
		t.Errorf("MinID = %d, want 12 (service messages count for pagination)", got)
	}
	if got := (HistoryPage{}).MinID(); got != 0 {
		t.Errorf("empty MinID = %d, want 0", got)
	}
}
