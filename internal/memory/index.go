package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Query selects memories by composable criteria. Zero values mean "no
// filter" for their dimension; all specified filters must match.
type Query struct {
	Start         time.Time      // inclusive lower timestamp bound
	End           time.Time      // inclusive upper timestamp bound
	MinImportance float64        // minimum importance, 0 disables
	Associations  map[string]any // exact scalar association matches
	Text          string         // free-text; all tokens must match
}

const importanceBuckets = 10

type assocKey struct {
	key   string
	value string
}

type timeEntry struct {
	ts time.Time
	id string
}

// Index is a multi-dimensional in-memory index over memory items: a
// primary map by ID, a timestamp-sorted list, importance buckets, an
// association map, and a free-text token map. All five are kept
// consistent through Put/Remove/Update.
type Index struct {
	items    map[string]*Item
	byTime   []timeEntry
	byImp    [importanceBuckets]map[string]struct{}
	byAssoc  map[assocKey]map[string]struct{}
	byToken  map[string]map[string]struct{}
	category map[Category]map[string]struct{}
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	idx := &Index{
		items:    make(map[string]*Item),
		byAssoc:  make(map[assocKey]map[string]struct{}),
		byToken:  make(map[string]map[string]struct{}),
		category: make(map[Category]map[string]struct{}),
	}
	for i := range idx.byImp {
		idx.byImp[i] = make(map[string]struct{})
	}
	return idx
}

// Len returns the number of indexed items.
func (idx *Index) Len() int { return len(idx.items) }

// Put inserts an item into all five structures. Re-putting an existing
// ID replaces the previous entry.
func (idx *Index) Put(m *Item) {
	if m == nil || m.ID == "" {
		return
	}
	if _, exists := idx.items[m.ID]; exists {
		idx.Remove(m.ID)
	}
	idx.items[m.ID] = m

	// Binary insertion keeps byTime sorted ascending by timestamp.
	pos := sort.Search(len(idx.byTime), func(i int) bool {
		return idx.byTime[i].ts.After(m.Timestamp)
	})
	idx.byTime = append(idx.byTime, timeEntry{})
	copy(idx.byTime[pos+1:], idx.byTime[pos:])
	idx.byTime[pos] = timeEntry{ts: m.Timestamp, id: m.ID}

	idx.byImp[bucketFor(m.Importance)][m.ID] = struct{}{}

	for k, v := range m.Associations {
		if sk, ok := scalarKey(k, v); ok {
			set, exists := idx.byAssoc[sk]
			if !exists {
				set = make(map[string]struct{})
				idx.byAssoc[sk] = set
			}
			set[m.ID] = struct{}{}
		}
	}

	for _, tok := range Tokenize(textOf(m.Content)) {
		set, exists := idx.byToken[tok]
		if !exists {
			set = make(map[string]struct{})
			idx.byToken[tok] = set
		}
		set[m.ID] = struct{}{}
	}

	cat := m.Category()
	if idx.category[cat] == nil {
		idx.category[cat] = make(map[string]struct{})
	}
	idx.category[cat][m.ID] = struct{}{}
}

// Get returns the item by ID, or nil when absent.
func (idx *Index) Get(id string) *Item { return idx.items[id] }

// Remove deletes the item from every structure. Absent IDs are a no-op;
// returns whether an item was removed.
func (idx *Index) Remove(id string) bool {
	m, ok := idx.items[id]
	if !ok {
		return false
	}
	delete(idx.items, id)

	for i, entry := range idx.byTime {
		if entry.id == id {
			idx.byTime = append(idx.byTime[:i:i], idx.byTime[i+1:]...)
			break
		}
	}

	delete(idx.byImp[bucketFor(m.Importance)], id)

	for k, v := range m.Associations {
		if sk, ok := scalarKey(k, v); ok {
			delete(idx.byAssoc[sk], id)
			if len(idx.byAssoc[sk]) == 0 {
				delete(idx.byAssoc, sk)
			}
		}
	}

	for _, tok := range Tokenize(textOf(m.Content)) {
		delete(idx.byToken[tok], id)
		if len(idx.byToken[tok]) == 0 {
			delete(idx.byToken, tok)
		}
	}

	cat := m.Category()
	delete(idx.category[cat], id)
	if len(idx.category[cat]) == 0 {
		delete(idx.category, cat)
	}
	return true
}

// Update applies mutations to an indexed item and re-indexes it. The
// mutate callback receives the live item; secondary structures are
// rebuilt for it afterwards.
func (idx *Index) Update(id string, mutate func(*Item)) bool {
	m, ok := idx.items[id]
	if !ok {
		return false
	}
	idx.Remove(id)
	mutate(m)
	m.Importance = clamp01(m.Importance)
	m.DecayRate = clamp01(m.DecayRate)
	idx.Put(m)
	return true
}

// Search returns items matching every specified filter, most recent
// first. limit <= 0 returns all matches. Any filter that selects nothing
// short-circuits to an empty result.
func (idx *Index) Search(q Query, limit int) []*Item {
	candidates := idx.candidateSet(q)
	if candidates == nil {
		// No set-based filter applied: scan everything.
		candidates = make(map[string]struct{}, len(idx.items))
		for id := range idx.items {
			candidates[id] = struct{}{}
		}
	}

	var out []*Item
	for id := range candidates {
		m := idx.items[id]
		if m == nil {
			continue
		}
		if !q.Start.IsZero() && m.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && m.Timestamp.After(q.End) {
			continue
		}
		if m.Importance < q.MinImportance {
			continue
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// InCategory returns the IDs in a retention class.
func (idx *Index) InCategory(cat Category) []string {
	ids := make([]string, 0, len(idx.category[cat]))
	for id := range idx.category[cat] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PruneWeak evicts every non-core item whose strength at now is below
// threshold, and returns how many were removed.
func (idx *Index) PruneWeak(threshold float64, now time.Time) int {
	var doomed []string
	for id, m := range idx.items {
		if m.Category() == CategoryCore {
			continue
		}
		if m.Strength(now) < threshold {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		idx.Remove(id)
	}
	return len(doomed)
}

// candidateSet intersects the set-backed filters (time range, importance
// buckets, associations, tokens). Returns nil when none of them apply,
// and an empty set when some filter matched nothing.
func (idx *Index) candidateSet(q Query) map[string]struct{} {
	var result map[string]struct{}

	intersect := func(set map[string]struct{}) {
		if result == nil {
			result = make(map[string]struct{}, len(set))
			for id := range set {
				result[id] = struct{}{}
			}
			return
		}
		for id := range result {
			if _, ok := set[id]; !ok {
				delete(result, id)
			}
		}
	}

	if !q.Start.IsZero() || !q.End.IsZero() {
		intersect(idx.timeRange(q.Start, q.End))
	}
	if q.MinImportance > 0 {
		union := make(map[string]struct{})
		for b := bucketFor(q.MinImportance); b < importanceBuckets; b++ {
			for id := range idx.byImp[b] {
				union[id] = struct{}{}
			}
		}
		intersect(union)
	}
	for k, v := range q.Associations {
		sk, ok := scalarKey(k, v)
		if !ok {
			return map[string]struct{}{}
		}
		intersect(idx.byAssoc[sk])
		if len(result) == 0 {
			return result
		}
	}
	if q.Text != "" {
		toks := Tokenize(q.Text)
		if len(toks) == 0 {
			return map[string]struct{}{}
		}
		for _, tok := range toks {
			intersect(idx.byToken[tok])
			if len(result) == 0 {
				return result
			}
		}
	}
	return result
}

// timeRange binary-scans the sorted timestamp list for [start, end].
func (idx *Index) timeRange(start, end time.Time) map[string]struct{} {
	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(idx.byTime), func(i int) bool {
			return !idx.byTime[i].ts.Before(start)
		})
	}
	hi := len(idx.byTime)
	if !end.IsZero() {
		hi = sort.Search(len(idx.byTime), func(i int) bool {
			return idx.byTime[i].ts.After(end)
		})
	}
	set := make(map[string]struct{}, hi-lo)
	for _, entry := range idx.byTime[lo:hi] {
		set[entry.id] = struct{}{}
	}
	return set
}

func bucketFor(importance float64) int {
	b := int(importance * importanceBuckets)
	if b >= importanceBuckets {
		b = importanceBuckets - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}

// scalarKey flattens a scalar association value into an index key.
// Non-scalar values (maps, slices) are not indexed.
func scalarKey(key string, value any) (assocKey, bool) {
	switch v := value.(type) {
	case string:
		return assocKey{key, v}, true
	case bool:
		return assocKey{key, fmt.Sprintf("%t", v)}, true
	case int, int64, float32, float64:
		return assocKey{key, fmt.Sprintf("%v", toFloat(v))}, true
	}
	return assocKey{}, false
}

// Tokenize lower-cases text, strips punctuation, and keeps tokens longer
// than two characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= '0' && r <= '9') ||
			r > 127)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// textOf extracts indexable text from arbitrary content.
func textOf(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case map[string]any:
		var parts []string
		for _, val := range v {
			if s, ok := val.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
