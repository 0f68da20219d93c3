package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nextlevelbuilder/chatmover/internal/errs"
)

// ExportVersion is the envelope version written by Export.
const ExportVersion = "1.0"

type exportEnvelope struct {
	ExportVersion string    `json:"exportVersion"`
	ExportedAt    time.Time `json:"exportedAt"`
	Progress      *Global   `json:"progress"`
}

// Export writes the current state wrapped in an export envelope.
func (s *Store) Export(w io.Writer) error {
	env := exportEnvelope{
		ExportVersion: ExportVersion,
		ExportedAt:    time.Now().UTC(),
		Progress:      s.Snapshot(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return errs.Wrap(errs.KindProgress, errs.WriteFailed, "encode export", err)
	}
	return nil
}

// Import parses an exported envelope or a bare progress file and validates
// it the same way Load does.
func Import(r io.Reader) (*Global, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.KindProgress, errs.FileNotFound, "read import", err)
	}
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Progress != nil {
		return validateImported(env.Progress)
	}
	var g Global
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, errs.Wrap(errs.KindProgress, errs.FileCorrupted, "parse import", err)
	}
	return validateImported(&g)
}

func validateImported(g *Global) (*Global, error) {
	if g.Version == "" || g.StartedAt.IsZero() {
		return nil, errs.New(errs.KindProgress, errs.InvalidFormat, "import is missing version or startedAt")
	}
	if g.Version != FormatVersion {
		return nil, errs.New(errs.KindProgress, errs.InvalidFormat,
			fmt.Sprintf("unsupported import version %q (want %s)", g.Version, FormatVersion))
	}
	if g.Dialogs == nil {
		g.Dialogs = make(map[string]*Conv)
	}
	return g, nil
}

// MergeStrategy selects how Merge combines two progress states.
type MergeStrategy string

const (
	// MergeOverwriteAll takes the incoming state wholesale.
	MergeOverwriteAll MergeStrategy = "overwrite-all"
	// MergeSkipCompleted keeps base entries that already completed and
	// takes the incoming record for everything else.
	MergeSkipCompleted MergeStrategy = "skip-completed"
	// MergeProgress keeps whichever record is further along per dialog.
	MergeProgress MergeStrategy = "merge-progress"
)

// ParseMergeStrategy validates a strategy flag value.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case MergeOverwriteAll, MergeSkipCompleted, MergeProgress:
		return MergeStrategy(s), nil
	}
	return "", fmt.Errorf("unknown merge strategy %q (want %s, %s, or %s)",
		s, MergeOverwriteAll, MergeSkipCompleted, MergeProgress)
}

// statusRank orders statuses by how far the migration got. Higher wins a
// merge. Failed and skipped rank with pending: their work is not done.
func statusRank(st Status) int {
	switch st {
	case StatusCompleted:
		return 3
	case StatusPartiallyMigrated, StatusInProgress:
		return 2
	default:
		return 1
	}
}

// moreAdvanced reports whether b should replace a in a merge.
func moreAdvanced(a, b *Conv) bool {
	ra, rb := statusRank(a.Status), statusRank(b.Status)
	if ra != rb {
		return rb > ra
	}
	return b.MigratedCount > a.MigratedCount
}

// Merge combines base and incoming into a fresh state without touching
// either input. Dialogs are unioned across both; conflicts resolve per
// the strategy with ties keeping the base record. Stats are recomputed so
// the result is internally consistent, and merging the same incoming
// state twice yields the same result.
func Merge(base, incoming *Global, strategy MergeStrategy) *Global {
	if strategy == MergeOverwriteAll {
		out := incoming.Clone()
		out.Recompute()
		return out
	}

	out := base.Clone()
	for id, in := range incoming.Dialogs {
		cur, ok := out.Dialogs[id]
		if !ok {
			out.Dialogs[id] = in.Clone()
			continue
		}
		switch strategy {
		case MergeSkipCompleted:
			if cur.Status != StatusCompleted {
				out.Dialogs[id] = in.Clone()
			}
		case MergeProgress:
			if moreAdvanced(cur, in) {
				out.Dialogs[id] = in.Clone()
			}
		}
	}
	if incoming.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = incoming.UpdatedAt
	}
	out.Recompute()
	return out
}
