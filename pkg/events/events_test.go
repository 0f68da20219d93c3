package events

import "testing"

func TestEmitNilSinkIsNoOp(t *testing.T) {
	Emit(nil, EventBatchCompleted, 1, nil)
}

func TestEmitStampsTime(t *testing.T) {
	var got Event
	Emit(func(e Event) { got = e }, EventFloodWait, 42, map[string]any{"seconds": 30})
	if got.Type != EventFloodWait {
		t.Errorf("Type = %q, want %q", got.Type, EventFloodWait)
	}
	if got.ConvID != 42 {
		t.Errorf("ConvID = %d, want 42", got.ConvID)
	}
	if got.Time.IsZero() {
		t.Error("Time not stamped")
	}
	if got.Data["seconds"] != 30 {
		t.Errorf("Data[seconds] = %v, want 30", got.Data["seconds"])
	}
}

func TestTeeFansOut(t *testing.T) {
	var a, b int
	sink := Tee(func(Event) { a++ }, nil, func(Event) { b++ })
	sink(Event{Type: EventRunStarted})
	sink(Event{Type: EventRunCompleted})
	if a != 2 || b != 2 {
		t.Errorf("fanout counts = %d/%d, want 2/2", a, b)
	}
}
