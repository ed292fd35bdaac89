// Package routing keeps one route per connected host pair and pushes the
// changes to the controller.
//
// The route table, the invalidation index and the mutation queue are not
// safe for concurrent use; the owner serializes access with one lock
// (see Batcher).
package routing

import (
	"sort"

	"github.com/newtron-network/routevnf/pkg/model"
)

// Pair is an unordered host pair stored in canonical order (A < B).
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewPair returns the canonical pair for x and y.
func NewPair(x, y string) Pair {
	if y < x {
		x, y = y, x
	}
	return Pair{A: x, B: y}
}

func (p Pair) String() string {
	return p.A + " <-> " + p.B
}

// slot is shared by routes[a][b] and routes[b][a]. A nil route means the
// pair is known and waiting for a route. serial identifies the stored
// route instance; flushed mutations only act on the instance they were
// queued for.
type slot struct {
	route    *model.Route
	serial   uint64
	deleting bool
}

// Entry is a copy of one table slot.
type Entry struct {
	Pair     Pair         `json:"pair"`
	Route    *model.Route `json:"route,omitempty"`
	Deleting bool         `json:"deleting,omitempty"`
}

// Table maps every known host pair to its current route.
type Table struct {
	routes map[string]map[string]*slot
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{routes: make(map[string]map[string]*slot)}
}

// register returns the slot for the pair, inserting an empty one if the
// pair is new.
func (t *Table) register(a, b string) (*slot, bool) {
	if s := t.slot(a, b); s != nil {
		return s, false
	}
	s := &slot{}
	t.ensureHost(a)[b] = s
	t.ensureHost(b)[a] = s
	return s, true
}

func (t *Table) ensureHost(h string) map[string]*slot {
	peers, ok := t.routes[h]
	if !ok {
		peers = make(map[string]*slot)
		t.routes[h] = peers
	}
	return peers
}

func (t *Table) slot(a, b string) *slot {
	return t.routes[a][b]
}

// addHost registers h against every host already in the table. It
// returns false if h is already present.
func (t *Table) addHost(h string) bool {
	if _, ok := t.routes[h]; ok {
		return false
	}
	others := t.Hosts()
	t.ensureHost(h)
	for _, o := range others {
		t.register(h, o)
	}
	return true
}

// removeHost drops h and every pair it belongs to.
func (t *Table) removeHost(h string) {
	for peer := range t.routes[h] {
		delete(t.routes[peer], h)
	}
	delete(t.routes, h)
}

// Known returns true if the pair is registered.
func (t *Table) Known(a, b string) bool {
	return t.slot(a, b) != nil
}

// Route returns the current route for the pair, in either lookup order.
func (t *Table) Route(a, b string) (model.Route, bool) {
	s := t.slot(a, b)
	if s == nil || s.route == nil {
		return model.Route{}, false
	}
	return *s.route, true
}

// HasHost returns true if the host is in the table.
func (t *Table) HasHost(h string) bool {
	_, ok := t.routes[h]
	return ok
}

// Hosts returns every host, sorted.
func (t *Table) Hosts() []string {
	hosts := make([]string, 0, len(t.routes))
	for h := range t.routes {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Peers returns the hosts paired with h, sorted.
func (t *Table) Peers(h string) []string {
	peers := make([]string, 0, len(t.routes[h]))
	for p := range t.routes[h] {
		peers = append(peers, p)
	}
	sort.Strings(peers)
	return peers
}

// Missing returns the pairs that have no route, sorted.
func (t *Table) Missing() []Pair {
	var missing []Pair
	t.each(func(p Pair, s *slot) {
		if s.route == nil {
			missing = append(missing, p)
		}
	})
	return missing
}

// Entries returns a copy of every slot, sorted by pair.
func (t *Table) Entries() []Entry {
	var entries []Entry
	t.each(func(p Pair, s *slot) {
		e := Entry{Pair: p, Deleting: s.deleting}
		if s.route != nil {
			r := s.route.WithID(s.route.ID)
			e.Route = &r
		}
		entries = append(entries, e)
	})
	return entries
}

// Counts returns the number of pairs with and without a route.
func (t *Table) Counts() (installed, missing int) {
	t.each(func(_ Pair, s *slot) {
		if s.route == nil {
			missing++
		} else {
			installed++
		}
	})
	return installed, missing
}

// each visits every pair once in sorted order.
func (t *Table) each(fn func(Pair, *slot)) {
	for _, a := range t.Hosts() {
		for _, b := range t.Peers(a) {
			if a < b {
				fn(Pair{A: a, B: b}, t.routes[a][b])
			}
		}
	}
}
