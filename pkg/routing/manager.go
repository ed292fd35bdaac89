package routing

import (
	"context"
	"fmt"

	"github.com/newtron-network/routevnf/pkg/model"
	"github.com/newtron-network/routevnf/pkg/topology"
	"github.com/newtron-network/routevnf/pkg/util"
)

// Manager keeps the route table in line with the topology mirror.
// Changes that need the controller are pushed to the mutation queue;
// the batcher applies their results back through the manager.
type Manager struct {
	graph  *topology.Mirror
	table  *Table
	index  *Index
	queue  *Queue
	remote Remote
	ready  bool

	// serial numbers every route stored in the table.
	serial uint64
}

// NewManager creates a manager over the given mirror and queue.
func NewManager(graph *topology.Mirror, queue *Queue, remote Remote) *Manager {
	return &Manager{
		graph:  graph,
		table:  NewTable(),
		index:  NewIndex(),
		queue:  queue,
		remote: remote,
	}
}

// Table returns the route table. Callers must hold the state lock.
func (m *Manager) Table() *Table { return m.table }

// Index returns the invalidation index. Callers must hold the state lock.
func (m *Manager) Index() *Index { return m.index }

// Ready returns true once Setup has completed.
func (m *Manager) Ready() bool { return m.ready }

func (m *Manager) check(op string) error {
	if !m.ready {
		return util.NewNotInitializedError(op)
	}
	return nil
}

// Setup loads the controller's routes for the given hosts. Routes that
// no longer match the mirror are deleted; every pair left without a route
// is then filled.
func (m *Manager) Setup(ctx context.Context, hostIDs []string) error {
	if m.ready {
		return util.NewPreconditionError("setup", "route table", "setup must run once", "")
	}

	if len(hostIDs) == 0 {
		util.Info("No hosts in topology, clearing controller routes")
		if err := m.remote.ClearRoutes(ctx); err != nil {
			return fmt.Errorf("routing: clear routes: %w", err)
		}
	} else {
		for i, a := range hostIDs {
			m.table.ensureHost(a)
			for _, b := range hostIDs[i+1:] {
				if a != b {
					m.table.register(a, b)
				}
			}
		}

		fetched, err := m.remote.Routes(ctx)
		if err != nil {
			return fmt.Errorf("routing: fetch routes: %w", err)
		}
		kept := 0
		for _, r := range fetched {
			if reason := m.adopt(r); reason != "" {
				util.WithField("route", r.String()).Infof("Discarding controller route: %s", reason)
				m.discard(r)
				continue
			}
			kept++
		}
		util.Infof("Loaded %d of %d controller routes", kept, len(fetched))
	}

	m.ready = true
	return m.UpdateMissingRoutes()
}

// adopt records a fetched route if it still fits the mirror and returns
// the reason it does not otherwise.
func (m *Manager) adopt(r model.Route) string {
	if err := r.Validate(); err != nil {
		return err.Error()
	}
	src, dst := r.Src().DeviceID, r.Dst().DeviceID
	s := m.table.slot(src, dst)
	switch {
	case s == nil:
		return "unknown host pair"
	case s.route != nil:
		return "pair already has a route"
	case src > dst:
		return "route runs against the pair order"
	}
	path := r.PathIDs()
	if !m.graph.IsSimplePath(path) {
		return "not a path in the current topology"
	}
	want, err := model.RouteFromPath(m.graph, path)
	if err != nil || !want.SamePoints(r) {
		return "ports do not match the current topology"
	}

	stored := r.WithID(r.ID)
	s.route = &stored
	s.serial = m.nextSerial()
	m.index.add(NewPair(src, dst), stored)
	return ""
}

// discard deletes a fetched route remotely without touching the table.
func (m *Manager) discard(r model.Route) {
	if r.ID == "" {
		return
	}
	m.queue.Push(Mutation{Route: r, Action: Delete})
}

// addRoute stores a new route for an empty pair and queues its creation.
func (m *Manager) addRoute(p Pair, r model.Route) error {
	s := m.table.slot(p.A, p.B)
	if s == nil {
		return util.NewPreconditionError("add route", p.String(), "pair must be registered", "")
	}
	if s.route != nil {
		return util.NewRouteExistsError(p.A, p.B)
	}
	s.route = &r
	s.serial = m.nextSerial()
	m.index.add(p, r)
	m.queue.Push(Mutation{Route: r, Action: Create, Serial: s.serial})
	util.WithPair(p.A, p.B).Debugf("Route queued: %s", r)
	return nil
}

// removeRoute queues the deletion of the pair's route. It returns false if
// the pair has no route to delete.
func (m *Manager) removeRoute(p Pair, backfill bool) bool {
	s := m.table.slot(p.A, p.B)
	if s == nil || s.route == nil {
		return false
	}
	if s.deleting {
		return true
	}
	s.deleting = true

	mut := Mutation{Route: *s.route, Action: Delete, Serial: s.serial}
	if backfill {
		mut.Callback = m.UpdateMissingRoutes
	}
	m.queue.Push(mut)
	util.WithPair(p.A, p.B).Debugf("Route deletion queued: %s", s.route)
	return true
}

// UpdateMissingRoutes computes a route for every pair that lacks one.
// Pairs with no path stay empty.
func (m *Manager) UpdateMissingRoutes() error {
	if err := m.check("update missing routes"); err != nil {
		return err
	}

	missing := m.table.Missing()
	var (
		tree topology.PathTree
		from string
	)
	for i, p := range missing {
		if i == 0 || p.A != from {
			from = p.A
			tree = m.graph.ShortestPaths(from)
		}
		path, ok := tree.To(p.B)
		if !ok {
			continue
		}
		r, err := model.RouteFromPath(m.graph, path)
		if err != nil {
			return fmt.Errorf("routing: %w", err)
		}
		if err := m.addRoute(p, r); err != nil {
			return fmt.Errorf("routing: %w", err)
		}
	}
	return nil
}

// AddHost pairs a new host with every known host and fills the new
// pairs. It returns false if the host is already known.
func (m *Manager) AddHost(host string) (bool, error) {
	if err := m.check("add host"); err != nil {
		return false, err
	}
	if !m.table.addHost(host) {
		return false, nil
	}
	util.WithHost(host).Debugf("Host paired with %d hosts", len(m.table.Peers(host)))
	return true, m.UpdateMissingRoutes()
}

// RemoveHost deletes every route of the host and forgets its pairs. It
// returns false if the host is unknown.
func (m *Manager) RemoveHost(host string) (bool, error) {
	if err := m.check("remove host"); err != nil {
		return false, err
	}
	if !m.table.HasHost(host) {
		return false, nil
	}

	for _, peer := range m.table.Peers(host) {
		p := NewPair(host, peer)
		s := m.table.slot(p.A, p.B)
		if s.route == nil {
			continue
		}
		m.removeRoute(p, false)
		m.index.remove(p, *s.route)
	}
	m.table.removeHost(host)
	return true, nil
}

// RemoveLink deletes every route over the directed hop src->dst. Each
// deletion refills the table once it has been flushed.
func (m *Manager) RemoveLink(src, dst string) (bool, error) {
	if err := m.check("remove link"); err != nil {
		return false, err
	}
	ok := true
	for _, p := range m.index.OnHop(src, dst) {
		ok = m.removeRoute(p, true) && ok
	}
	return ok, nil
}

// RemoveDevice deletes every route through the device.
func (m *Manager) RemoveDevice(device string) (bool, error) {
	if err := m.check("remove device"); err != nil {
		return false, err
	}
	ok := true
	for _, p := range m.index.OnDevice(device) {
		ok = m.removeRoute(p, true) && ok
	}
	return ok, nil
}

func (m *Manager) nextSerial() uint64 {
	m.serial++
	return m.serial
}

// created records the identifier the controller gave to the route queued
// under serial. It returns false if the pair no longer holds that route.
func (m *Manager) created(r model.Route, serial uint64) bool {
	s := m.table.slot(r.Src().DeviceID, r.Dst().DeviceID)
	if !holds(s, serial) || s.route.ID != "" {
		return false
	}
	s.route = &r
	return true
}

// deleted empties the pair that held the route queued under serial. It
// returns false if the pair no longer holds that route.
func (m *Manager) deleted(r model.Route, serial uint64) bool {
	p := NewPair(r.Src().DeviceID, r.Dst().DeviceID)
	s := m.table.slot(p.A, p.B)
	if !holds(s, serial) {
		return false
	}
	m.index.remove(p, *s.route)
	s.route = nil
	s.deleting = false
	return true
}

func holds(s *slot, serial uint64) bool {
	return s != nil && s.route != nil && serial != 0 && s.serial == serial
}
