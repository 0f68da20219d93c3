// Package report renders the end-of-run summary and aggregates flood-wait
// statistics while a run is in flight.
package report

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/chatmover/internal/progress"
)

// nameColumn is the display width of the conversation-name column.
const nameColumn = 28

// Aggregator tallies flood waits during a run.
type Aggregator struct {
	mu      sync.Mutex
	total   int
	seconds int
	longest int
	byOp    map[string]int
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byOp: make(map[string]int)}
}

// Record counts one flood wait of seconds during op.
func (a *Aggregator) Record(op string, seconds int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	a.seconds += seconds
	if seconds > a.longest {
		a.longest = seconds
	}
	a.byOp[op]++
}

// Summary is the aggregate flood-wait view.
type Summary struct {
	TotalEvents      int
	TotalWaitSeconds int
	LongestWait      int
	ByOperation      map[string]int
}

// Summary returns a copy of the current tallies.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	byOp := make(map[string]int, len(a.byOp))
	for k, v := range a.byOp {
		byOp[k] = v
	}
	return Summary{
		TotalEvents:      a.total,
		TotalWaitSeconds: a.seconds,
		LongestWait:      a.longest,
		ByOperation:      byOp,
	}
}

// Generate renders the run summary for g. The output is stable for a given
// state: conversations are listed in id order.
func Generate(g *progress.Global) string {
	var b strings.Builder

	elapsed := g.UpdatedAt.Sub(g.StartedAt).Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	var partial, inProgress, pending int
	for _, c := range g.Dialogs {
		switch c.Status {
		case progress.StatusPartiallyMigrated:
			partial++
		case progress.StatusInProgress:
			inProgress++
		case progress.StatusPending:
			pending++
		}
	}

	fmt.Fprintf(&b, "Migration report\n")
	fmt.Fprintf(&b, "  %-12s %s -> %s (%s)\n", "Window:",
		g.StartedAt.Local().Format("2006-01-02 15:04:05"),
		g.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		elapsed)
	fmt.Fprintf(&b, "  %-12s %s\n", "Phase:", g.Phase)
	fmt.Fprintf(&b, "  %-12s %d total, %d completed, %d partial, %d failed, %d skipped\n",
		"Dialogs:", g.Stats.TotalDialogs, g.Stats.CompletedDialogs, partial,
		g.Stats.FailedDialogs, g.Stats.SkippedDialogs)
	if inProgress+pending > 0 {
		fmt.Fprintf(&b, "  %-12s %d in progress, %d pending\n", "", inProgress, pending)
	}
	fmt.Fprintf(&b, "  %-12s %d migrated of %d", "Messages:",
		g.Stats.MigratedMessages, g.Stats.TotalMessages)
	if g.Stats.FailedMessages > 0 {
		fmt.Fprintf(&b, " (%d failed)", g.Stats.FailedMessages)
	}
	b.WriteString("\n")

	if g.Stats.FloodWaitCount > 0 {
		longest := 0
		for _, e := range g.FloodWaits {
			if e.Seconds > longest {
				longest = e.Seconds
			}
		}
		fmt.Fprintf(&b, "  %-12s %d events, %ds total, %ds longest\n",
			"Flood waits:", g.Stats.FloodWaitCount, g.Stats.TotalFloodWaitSeconds, longest)
	}

	if lines := failedLines(g); len(lines) > 0 {
		b.WriteString("\nFailed conversations:\n")
		for _, l := range lines {
			b.WriteString(l)
		}
	}
	return b.String()
}

func failedLines(g *progress.Global) []string {
	ids := make([]string, 0, len(g.Dialogs))
	for id, c := range g.Dialogs {
		if c.Status == progress.StatusFailed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		c := g.Dialogs[id]
		name := c.Name
		if name == "" {
			name = "chat " + id
		}
		name = runewidth.FillRight(runewidth.Truncate(name, nameColumn, "…"), nameColumn)
		reason := "no error recorded"
		if n := len(c.Errors); n > 0 {
			last := c.Errors[n-1]
			reason = fmt.Sprintf("%s: %s", last.Code, last.Message)
		}
		lines = append(lines, fmt.Sprintf("  %s %s\n", name, reason))
	}
	return lines
}
