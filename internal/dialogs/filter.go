package dialogs

import (
	"github.com/nextlevelbuilder/chatmover/internal/config"
)

// Filter narrows conversations in five fixed stages: include-ID whitelist,
// exclude-ID blacklist, include-type whitelist, exclude-type blacklist,
// then the inclusive message-count range. Survivor order is preserved.
// Each stage is an independent predicate, so the outcome does not depend
// on stage order; the order is fixed for predictable logging.
func Filter(convs []Conversation, f config.FilterConfig) []Conversation {
	out := convs

	if len(f.IncludeChatIDs) > 0 {
		keep := toSet(f.IncludeChatIDs)
		out = filter(out, func(c Conversation) bool { return keep[c.ID] })
	}
	if len(f.ExcludeChatIDs) > 0 {
		drop := toSet(f.ExcludeChatIDs)
		out = filter(out, func(c Conversation) bool { return !drop[c.ID] })
	}
	if len(f.IncludeTypes) > 0 {
		keep := toTypeSet(f.IncludeTypes)
		out = filter(out, func(c Conversation) bool { return keep[c.Type] })
	}
	if len(f.ExcludeTypes) > 0 {
		drop := toTypeSet(f.ExcludeTypes)
		out = filter(out, func(c Conversation) bool { return !drop[c.Type] })
	}
	if f.MinMessages != nil {
		min := *f.MinMessages
		out = filter(out, func(c Conversation) bool { return c.MessageCount >= min })
	}
	if f.MaxMessages != nil {
		max := *f.MaxMessages
		out = filter(out, func(c Conversation) bool { return c.MessageCount <= max })
	}

	return out
}

func filter(convs []Conversation, pred func(Conversation) bool) []Conversation {
	out := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

func toSet(ids []int64) map[int64]bool {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func toTypeSet(types []string) map[Type]bool {
	m := make(map[Type]bool, len(types))
	for _, t := range types {
		m[Type(t)] = true
	}
	return m
}
