package modelcost

import (
	"sort"
	"strings"
)

// Entry maps a model identifier to its token cost per message.
type Entry struct {
	ModelID string
	Cost    int64
}

// Store is an immutable model cost table built once at startup and passed
// by reference to every component that prices messages.
type Store struct {
	// costs maps lower(modelID) -> cost. Never mutated after construction.
	costs map[string]int64
	// ids maps lower(modelID) -> canonical ID for stable listings.
	ids map[string]string
}

// NewStore builds a Store from a model -> cost map. Entries with a blank
// model ID or non-positive cost are skipped; the cost table invariant
// (cost > 0) is enforced here so division by cost is always safe.
func NewStore(costs map[string]int64) *Store {
	s := &Store{
		costs: make(map[string]int64, len(costs)),
		ids:   make(map[string]string, len(costs)),
	}
	for model, cost := range costs {
		id := strings.TrimSpace(model)
		if id == "" || cost <= 0 {
			continue
		}
		key := strings.ToLower(id)
		s.costs[key] = cost
		s.ids[key] = id
	}
	return s
}

// Resolve matches a model case-insensitively and returns its canonical ID
// with the cost. Every component that writes rows keyed by model must use
// the canonical ID, so case variants of one model can never fan out into
// separate balances.
func (s *Store) Resolve(modelID string) (canonical string, cost int64, ok bool) {
	if s == nil {
		return "", 0, false
	}
	key := strings.ToLower(strings.TrimSpace(modelID))
	cost, ok = s.costs[key]
	if !ok {
		return "", 0, false
	}
	return s.ids[key], cost, true
}

// Entries returns all cost entries ordered by model ID.
func (s *Store) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.costs))
	for key, cost := range s.costs {
		out = append(out, Entry{ModelID: s.ids[key], Cost: cost})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// Len returns the number of configured models.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.costs)
}
