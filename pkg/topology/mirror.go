// Package topology keeps the local mirror of the controller's topology.
//
// The mirror is a directed graph keyed by device and host identifiers.
// A physical link is two directed edges that are added and removed
// independently, as the controller reports them. Every mutation is
// idempotent: removing something absent is a no-op and adding something
// present overwrites it. The mirror is not safe for concurrent use.
package topology

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Link is a directed edge of the mirror.
type Link struct {
	Src     string `json:"src"`
	Dst     string `json:"dst"`
	SrcPort string `json:"src_port,omitempty"`
	DstPort string `json:"dst_port,omitempty"`
}

type node struct {
	id   int64
	name string
}

func (n node) ID() int64 { return n.id }

// edge carries the ports of a directed link.
type edge struct {
	from, to         node
	srcPort, dstPort string
}

func (e edge) From() graph.Node { return e.from }
func (e edge) To() graph.Node   { return e.to }

func (e edge) ReversedEdge() graph.Edge {
	return edge{from: e.to, to: e.from, srcPort: e.dstPort, dstPort: e.srcPort}
}

// Mirror is the in-memory topology graph.
type Mirror struct {
	g     *simple.DirectedGraph
	nodes map[string]node
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{
		g:     simple.NewDirectedGraph(),
		nodes: make(map[string]node),
	}
}

func (m *Mirror) ensure(name string) node {
	if n, ok := m.nodes[name]; ok {
		return n
	}
	n := node{id: m.g.NewNode().ID(), name: name}
	m.g.AddNode(n)
	m.nodes[name] = n
	return n
}

func (m *Mirror) remove(name string) {
	n, ok := m.nodes[name]
	if !ok {
		return
	}
	m.g.RemoveNode(n.id)
	delete(m.nodes, name)
}

// AddDevice inserts a device node.
func (m *Mirror) AddDevice(id string) {
	m.ensure(id)
}

// RemoveDevice removes a device node and every incident edge.
func (m *Mirror) RemoveDevice(id string) {
	m.remove(id)
}

// AddLink inserts or overwrites the directed edge src->dst. The reverse
// edge is left alone. Self links are ignored.
func (m *Mirror) AddLink(src, dst, srcPort, dstPort string) {
	if src == dst {
		return
	}
	m.g.SetEdge(edge{
		from:    m.ensure(src),
		to:      m.ensure(dst),
		srcPort: srcPort,
		dstPort: dstPort,
	})
}

// RemoveLink removes the directed edge src->dst if present.
func (m *Mirror) RemoveLink(src, dst string) {
	from, ok := m.nodes[src]
	if !ok {
		return
	}
	to, ok := m.nodes[dst]
	if !ok {
		return
	}
	m.g.RemoveEdge(from.id, to.id)
}

// AddHost inserts a host attached to switchID at switchPort, with edges
// in both directions. The host side of the attachment has no port.
func (m *Mirror) AddHost(host, switchID, switchPort string) {
	m.AddLink(host, switchID, "", switchPort)
	m.AddLink(switchID, host, switchPort, "")
}

// RemoveHost removes a host node and both attachment edges.
func (m *Mirror) RemoveHost(host string) {
	m.remove(host)
}

// HasNode returns true if the identifier is in the mirror.
func (m *Mirror) HasNode(id string) bool {
	_, ok := m.nodes[id]
	return ok
}

// Link returns the directed edge src->dst.
func (m *Mirror) Link(src, dst string) (Link, bool) {
	from, ok := m.nodes[src]
	if !ok {
		return Link{}, false
	}
	to, ok := m.nodes[dst]
	if !ok {
		return Link{}, false
	}
	e, ok := m.g.Edge(from.id, to.id).(edge)
	if !ok {
		return Link{}, false
	}
	return Link{Src: src, Dst: dst, SrcPort: e.srcPort, DstPort: e.dstPort}, true
}

// Ports returns the ports of the directed edge src->dst.
func (m *Mirror) Ports(src, dst string) (string, string, bool) {
	l, ok := m.Link(src, dst)
	return l.SrcPort, l.DstPort, ok
}

// PathTree holds single-source shortest paths. It is only valid until
// the mirror is next modified.
type PathTree struct {
	m     *Mirror
	sh    path.Shortest
	valid bool
}

// ShortestPaths computes hop-count shortest paths from src to every
// reachable node.
func (m *Mirror) ShortestPaths(src string) PathTree {
	n, ok := m.nodes[src]
	if !ok {
		return PathTree{m: m}
	}
	return PathTree{m: m, sh: path.DijkstraFrom(n, m.g), valid: true}
}

// To returns the node identifiers of a shortest path to dst, including
// both ends. It returns false if dst is unreachable.
func (t PathTree) To(dst string) ([]string, bool) {
	if !t.valid {
		return nil, false
	}
	n, ok := t.m.nodes[dst]
	if !ok {
		return nil, false
	}
	nodes, _ := t.sh.To(n.id)
	if len(nodes) < 2 {
		return nil, false
	}
	ids := make([]string, len(nodes))
	for i, v := range nodes {
		ids[i] = v.(node).name
	}
	return ids, true
}

// ShortestPath returns a hop-count shortest path from src to dst. Ties
// between equal-length paths are broken arbitrarily.
func (m *Mirror) ShortestPath(src, dst string) ([]string, bool) {
	return m.ShortestPaths(src).To(dst)
}

// IsSimplePath returns true if ids names at least two distinct nodes,
// none repeated, joined by existing directed edges.
func (m *Mirror) IsSimplePath(ids []string) bool {
	if len(ids) < 2 {
		return false
	}
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		if seen[id] || !m.HasNode(id) {
			return false
		}
		seen[id] = true
		if i > 0 && !m.g.HasEdgeFromTo(m.nodes[ids[i-1]].id, m.nodes[id].id) {
			return false
		}
	}
	return true
}

// Nodes returns every node identifier, sorted.
func (m *Mirror) Nodes() []string {
	names := make([]string, 0, len(m.nodes))
	for name := range m.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Links returns every directed edge, sorted by source then destination.
func (m *Mirror) Links() []Link {
	var links []Link
	edges := m.g.Edges()
	for edges.Next() {
		e := edges.Edge().(edge)
		links = append(links, Link{
			Src:     e.from.name,
			Dst:     e.to.name,
			SrcPort: e.srcPort,
			DstPort: e.dstPort,
		})
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Src != links[j].Src {
			return links[i].Src < links[j].Src
		}
		return links[i].Dst < links[j].Dst
	})
	return links
}

// NodeCount returns the number of nodes.
func (m *Mirror) NodeCount() int {
	return len(m.nodes)
}

// LinkCount returns the number of directed edges.
func (m *Mirror) LinkCount() int {
	n := 0
	edges := m.g.Edges()
	for edges.Next() {
		n++
	}
	return n
}
