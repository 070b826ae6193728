package chat

import (
	"sort"
	"time"

	"github.com/weiawesome/fin-dashboard/internal/domain"
)

// MatchWindow bounds the timestamp distance for matching a pending local
// message to a server message by content and sender.
const MatchWindow = 60 * time.Second

// Outcome classifies what Route did with an incoming message.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeAppended
	OutcomeConfirmed
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAppended:
		return "appended"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "ignored"
	}
}

// Route applies an incoming message to list. The returned index points at
// the affected entry, or is -1 when nothing changed.
//
// RECEIPTs confirm the entry carrying the same local id and are never
// appended. A message whose local id is already in the list confirms that
// entry when it is still unconfirmed, otherwise it is a duplicate. A message
// whose server id is already in the list is a duplicate. Everything else,
// including messages with neither id, is appended.
func Route(list []domain.Message, in domain.Message) ([]domain.Message, Outcome, int) {
	if in.Type == domain.MessageReceipt {
		if in.LocalID == "" {
			return list, OutcomeIgnored, -1
		}
		i := indexByLocalID(list, in.LocalID)
		if i < 0 {
			return list, OutcomeIgnored, -1
		}
		list[i].Confirm(in.ID())
		return list, OutcomeConfirmed, i
	}

	if in.LocalID != "" {
		if i := indexByLocalID(list, in.LocalID); i >= 0 {
			if list[i].Pending() || list[i].ID() == "" {
				list[i].Confirm(in.ID())
				return list, OutcomeConfirmed, i
			}
			return list, OutcomeDuplicate, i
		}
	}
	if in.ID() != "" {
		if i := indexByID(list, in.ID()); i >= 0 {
			return list, OutcomeDuplicate, i
		}
	}

	list = append(list, in)
	return list, OutcomeAppended, len(list) - 1
}

// Reconcile merges server history into the local list. Server history is
// authoritative; local messages that never received a server id survive
// unless they can be matched to a history entry, in which case the history
// entry inherits their local id. The result is deduplicated and sorted by
// timestamp.
func Reconcile(local, history []domain.Message) []domain.Message {
	var pending []domain.Message
	known := make(map[string]domain.Message, len(local))
	for _, m := range local {
		if m.ID() == "" {
			pending = append(pending, m)
		} else if m.LocalID != "" {
			known[m.ID()] = m
		}
	}

	server := make([]domain.Message, len(history))
	copy(server, history)
	for i, s := range server {
		// Keep local ids already attached to confirmed messages.
		if k, ok := known[s.ID()]; ok && s.LocalID == "" {
			server[i].LocalID = k.LocalID
			server[i].Confirmation.SendStatus = k.Confirmation.SendStatus
		}
	}

	byID := make(map[string]int, len(server))
	for i, m := range server {
		if m.ID() != "" {
			if _, ok := byID[m.ID()]; !ok {
				byID[m.ID()] = i
			}
		}
	}

	byLocal := make(map[string]int, len(pending))
	for i, m := range pending {
		if m.LocalID != "" {
			byLocal[m.LocalID] = i
		}
	}

	matched := make([]bool, len(pending))
	claimed := make([]bool, len(server))

	// Server entries that echo a local id confirm the pending message directly.
	for si, s := range server {
		if s.LocalID == "" || s.ID() == "" {
			continue
		}
		if pi, ok := byLocal[s.LocalID]; ok && !matched[pi] {
			matched[pi] = true
			claimed[si] = true
		}
	}

	for pi, p := range pending {
		if matched[pi] {
			continue
		}
		for si, s := range server {
			if claimed[si] || s.ID() == "" || byID[s.ID()] != si {
				continue
			}
			if s.Content != p.Content || s.Sender != p.Sender {
				continue
			}
			if absDuration(s.Timestamp.Sub(p.Timestamp)) > MatchWindow {
				continue
			}
			matched[pi] = true
			claimed[si] = true
			if s.LocalID == "" {
				server[si].LocalID = p.LocalID
			}
			break
		}
	}

	merged := make([]domain.Message, 0, len(server)+len(pending))
	for si, s := range server {
		if claimed[si] {
			s.Confirm("")
		}
		merged = append(merged, s)
	}
	for pi, p := range pending {
		if !matched[pi] {
			merged = append(merged, p)
		}
	}

	merged = Dedupe(merged)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// Dedupe keeps the first occurrence of each server id, and of each local id
// among entries without a server id. Entries with neither are always kept.
func Dedupe(list []domain.Message) []domain.Message {
	seenID := make(map[string]struct{}, len(list))
	seenLocal := make(map[string]struct{}, len(list))
	out := make([]domain.Message, 0, len(list))

	for _, m := range list {
		if id := m.ID(); id != "" {
			if _, ok := seenID[id]; ok {
				continue
			}
			seenID[id] = struct{}{}
		} else if m.LocalID != "" {
			if _, ok := seenLocal[m.LocalID]; ok {
				continue
			}
		}
		if m.LocalID != "" {
			seenLocal[m.LocalID] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}

func indexByLocalID(list []domain.Message, localID string) int {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].LocalID == localID {
			return i
		}
	}
	return -1
}

func indexByID(list []domain.Message, id string) int {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].ID() == id {
			return i
		}
	}
	return -1
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
