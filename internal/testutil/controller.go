package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/newtron-network/routevnf/pkg/controller"
	"github.com/newtron-network/routevnf/pkg/model"
	"github.com/newtron-network/routevnf/pkg/util"
)

// Remote operation names recorded by FakeController.
const (
	OpTopology = "topology"
	OpEvents   = "events"
	OpRoutes   = "routes"
	OpAdd      = "add"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpClear    = "clear"
)

const streamEnd = "\x00end"

// Call is one recorded remote call.
type Call struct {
	Op     string
	Routes []model.Route
}

// FakeController is an in-memory controller. It stores routes, hands out
// sequential ids and records every call.
type FakeController struct {
	mu       sync.Mutex
	topo     controller.Topology
	routes   map[string]model.Route
	nextID   int64
	calls    []Call
	failures map[string]error
	events   *util.Queue[controller.RawEvent]
}

// NewFakeController creates a fake serving the given snapshot.
func NewFakeController(topo controller.Topology) *FakeController {
	return &FakeController{
		topo:     topo,
		routes:   make(map[string]model.Route),
		nextID:   1,
		failures: make(map[string]error),
		events:   util.NewQueue[controller.RawEvent](),
	}
}

func (f *FakeController) record(op string, routes []model.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cp []model.Route
	for _, r := range routes {
		cp = append(cp, r.WithID(r.ID))
	}
	f.calls = append(f.calls, Call{Op: op, Routes: cp})
	if err, ok := f.failures[op]; ok {
		delete(f.failures, op)
		return err
	}
	return nil
}

// Fail makes the next call of op return err.
func (f *FakeController) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// SetTopology replaces the snapshot served by Topology.
func (f *FakeController) SetTopology(topo controller.Topology) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topo = topo
}

// Seed stores routes as if an earlier run had created them. Routes
// without an id get the next one.
func (f *FakeController) Seed(routes ...model.Route) []model.Route {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Route, len(routes))
	for i, r := range routes {
		if r.ID == "" {
			r = r.WithID(f.newID())
		}
		f.routes[r.ID] = r
		out[i] = r
	}
	return out
}

func (f *FakeController) newID() string {
	id := strconv.FormatInt(f.nextID, 10)
	f.nextID++
	return id
}

// Calls returns every recorded call.
func (f *FakeController) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded calls of one operation.
func (f *FakeController) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets the recorded calls.
func (f *FakeController) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Installed returns the stored routes sorted by id.
func (f *FakeController) Installed() []model.Route {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Route, 0, len(f.routes))
	for _, r := range f.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})
	return out
}

// Send queues an event for the stream. v is encoded as JSON.
func (f *FakeController) Send(name string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: encode %s event: %v", name, err))
	}
	f.events.Push(controller.RawEvent{Name: name, Data: data})
}

// SendRaw queues an already encoded event.
func (f *FakeController) SendRaw(ev controller.RawEvent) {
	f.events.Push(ev)
}

// EndStream makes the open stream report that the controller closed it.
func (f *FakeController) EndStream() {
	f.events.Push(controller.RawEvent{Name: streamEnd})
}

// Topology returns the configured snapshot.
func (f *FakeController) Topology(ctx context.Context) (*controller.Topology, error) {
	if err := f.record(OpTopology, nil); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.topo
	return &t, nil
}

// Events returns a stream over the queued events.
func (f *FakeController) Events(ctx context.Context) (controller.Stream, error) {
	if err := f.record(OpEvents, nil); err != nil {
		return nil, err
	}
	return &fakeStream{ctx: ctx, events: f.events}, nil
}

// Routes returns the stored routes.
func (f *FakeController) Routes(ctx context.Context) ([]model.Route, error) {
	if err := f.record(OpRoutes, nil); err != nil {
		return nil, err
	}
	return f.Installed(), nil
}

// AddRoutes stores routes under new ids.
func (f *FakeController) AddRoutes(ctx context.Context, routes []model.Route) ([]model.Route, error) {
	if err := f.record(OpAdd, routes); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Route, len(routes))
	for i, r := range routes {
		out[i] = r.WithID(f.newID())
		f.routes[out[i].ID] = out[i]
	}
	return out, nil
}

// UpdateRoutes replaces stored routes by id.
func (f *FakeController) UpdateRoutes(ctx context.Context, routes []model.Route) error {
	if err := f.record(OpUpdate, routes); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range routes {
		if _, ok := f.routes[r.ID]; !ok {
			return fmt.Errorf("fake controller: route %s not found: %w", r.ID, util.ErrRemote)
		}
		f.routes[r.ID] = r
	}
	return nil
}

// DeleteRoutes removes stored routes by id.
func (f *FakeController) DeleteRoutes(ctx context.Context, routes []model.Route) error {
	if err := f.record(OpDelete, routes); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range routes {
		delete(f.routes, r.ID)
	}
	return nil
}

// ClearRoutes removes every stored route.
func (f *FakeController) ClearRoutes(ctx context.Context) error {
	if err := f.record(OpClear, nil); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = make(map[string]model.Route)
	return nil
}

type fakeStream struct {
	ctx    context.Context
	events *util.Queue[controller.RawEvent]
}

func (s *fakeStream) Recv() (controller.RawEvent, error) {
	ev, err := s.events.Pop(s.ctx)
	if err != nil {
		return controller.RawEvent{}, err
	}
	if ev.Name == streamEnd {
		return controller.RawEvent{}, controller.ErrStreamClosed
	}
	return ev, nil
}

func (s *fakeStream) Close() error { return nil }
