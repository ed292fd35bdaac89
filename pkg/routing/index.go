package routing

import (
	"sort"

	"github.com/newtron-network/routevnf/pkg/model"
)

type pairSet map[Pair]struct{}

// Index maps directed device hops, and devices, to the host pairs whose
// current route traverses them. Devices are tracked as well so that a
// route through a single switch is still found when that switch goes
// away.
type Index struct {
	hops    map[model.Hop]pairSet
	devices map[string]pairSet
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		hops:    make(map[model.Hop]pairSet),
		devices: make(map[string]pairSet),
	}
}

func (x *Index) add(p Pair, r model.Route) {
	for _, h := range r.Hops() {
		addTo(x.hops, h, p)
	}
	for _, d := range r.Devices() {
		addTo(x.devices, d.DeviceID, p)
	}
}

func (x *Index) remove(p Pair, r model.Route) {
	for _, h := range r.Hops() {
		removeFrom(x.hops, h, p)
	}
	for _, d := range r.Devices() {
		removeFrom(x.devices, d.DeviceID, p)
	}
}

func addTo[K comparable](m map[K]pairSet, k K, p Pair) {
	set, ok := m[k]
	if !ok {
		set = make(pairSet)
		m[k] = set
	}
	set[p] = struct{}{}
}

func removeFrom[K comparable](m map[K]pairSet, k K, p Pair) {
	set, ok := m[k]
	if !ok {
		return
	}
	delete(set, p)
	if len(set) == 0 {
		delete(m, k)
	}
}

// OnHop returns the pairs routed over src->dst, sorted.
func (x *Index) OnHop(src, dst string) []Pair {
	return sorted(x.hops[model.Hop{Src: src, Dst: dst}])
}

// OnDevice returns the pairs routed through the device, sorted.
func (x *Index) OnDevice(device string) []Pair {
	return sorted(x.devices[device])
}

// HopCount returns the number of indexed hops.
func (x *Index) HopCount() int {
	return len(x.hops)
}

func sorted(set pairSet) []Pair {
	pairs := make([]Pair, 0, len(set))
	for p := range set {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}
