package routing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/routevnf/internal/testutil"
	"github.com/newtron-network/routevnf/pkg/controller"
	"github.com/newtron-network/routevnf/pkg/model"
	"github.com/newtron-network/routevnf/pkg/topology"
	"github.com/newtron-network/routevnf/pkg/util"
)

type env struct {
	graph   *topology.Mirror
	fake    *testutil.FakeController
	mgr     *Manager
	batcher *Batcher
}

func newEnv(t *testing.T, topo controller.Topology) *env {
	t.Helper()
	graph := testutil.BuildMirror(topo)
	fake := testutil.NewFakeController(topo)
	mgr := NewManager(graph, NewQueue(), fake)
	return &env{
		graph:   graph,
		fake:    fake,
		mgr:     mgr,
		batcher: NewBatcher(mgr, fake, &sync.Mutex{}, nil),
	}
}

func (e *env) setup(t *testing.T, hosts ...string) {
	t.Helper()
	if err := e.mgr.Setup(context.Background(), hosts); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	e.drain(t)
}

func (e *env) drain(t *testing.T) {
	t.Helper()
	if err := e.batcher.drain(context.Background()); err != nil {
		t.Fatalf("drain() error = %v", err)
	}
}

// removeLink drops both directions of a physical link, as two events would.
func (e *env) removeLink(t *testing.T, a, b string) {
	t.Helper()
	for _, d := range [][2]string{{a, b}, {b, a}} {
		e.graph.RemoveLink(d[0], d[1])
		if _, err := e.mgr.RemoveLink(d[0], d[1]); err != nil {
			t.Fatalf("RemoveLink(%s, %s) error = %v", d[0], d[1], err)
		}
	}
}

func (e *env) addLink(t *testing.T, a string, ap int64, b string, bp int64) {
	t.Helper()
	e.graph.AddLink(a, b, controller.PortString(ap), controller.PortString(bp))
	e.graph.AddLink(b, a, controller.PortString(bp), controller.PortString(ap))
	if err := e.mgr.UpdateMissingRoutes(); err != nil {
		t.Fatalf("UpdateMissingRoutes() error = %v", err)
	}
}

// checkTable asserts the table and index invariants: every route is well
// formed, oriented by its pair, a simple path of the mirror when settled,
// and listed in the index under each of its hops.
func (e *env) checkTable(t *testing.T) {
	t.Helper()
	for _, entry := range e.mgr.Table().Entries() {
		if entry.Route == nil {
			continue
		}
		r := *entry.Route
		if err := r.Validate(); err != nil {
			t.Errorf("route %s: %v", r, err)
		}
		if NewPair(r.Src().DeviceID, r.Dst().DeviceID) != entry.Pair || r.Src().DeviceID != entry.Pair.A {
			t.Errorf("route %s stored under %v", r, entry.Pair)
		}
		for _, h := range r.Hops() {
			found := false
			for _, p := range e.mgr.Index().OnHop(h.Src, h.Dst) {
				found = found || p == entry.Pair
			}
			if !found {
				t.Errorf("index missing %v on hop %s", entry.Pair, h)
			}
		}
	}
}

// checkSettled asserts that every route follows the mirror and every
// empty pair is unreachable.
func (e *env) checkSettled(t *testing.T) {
	t.Helper()
	e.checkTable(t)
	for _, entry := range e.mgr.Table().Entries() {
		if entry.Route == nil {
			if p, ok := e.graph.ShortestPath(entry.Pair.A, entry.Pair.B); ok {
				t.Errorf("pair %v has no route but path %v exists", entry.Pair, p)
			}
			continue
		}
		if entry.Route.ID == "" {
			t.Errorf("route %s has no id after settling", entry.Route)
		}
		if !e.graph.IsSimplePath(entry.Route.PathIDs()) {
			t.Errorf("route %s is not a path of the mirror", entry.Route)
		}
	}
}

func twoSwitches() controller.Topology {
	return testutil.NewTopology().
		Devices("s1", "s2").
		Link("s1", 1, "s2", 1).
		Host("h1", "s1", 3).
		Host("h2", "s2", 2).
		Build()
}

// ring is s1-s2-s3-s4-s1 with one host per switch.
func ring() controller.Topology {
	return testutil.NewTopology().
		Devices("s1", "s2", "s3", "s4").
		Link("s1", 1, "s2", 2).
		Link("s2", 1, "s3", 2).
		Link("s3", 1, "s4", 2).
		Link("s4", 1, "s1", 2).
		Host("h1", "s1", 10).
		Host("h2", "s2", 10).
		Host("h3", "s3", 10).
		Host("h4", "s4", 10).
		Build()
}

func ops(calls []testutil.Call) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c.Op)
	}
	return out
}

func TestManager_NotInitialized(t *testing.T) {
	e := newEnv(t, twoSwitches())

	calls := map[string]func() error{
		"AddHost":             func() error { _, err := e.mgr.AddHost("h1"); return err },
		"RemoveHost":          func() error { _, err := e.mgr.RemoveHost("h1"); return err },
		"RemoveLink":          func() error { _, err := e.mgr.RemoveLink("s1", "s2"); return err },
		"RemoveDevice":        func() error { _, err := e.mgr.RemoveDevice("s1"); return err },
		"UpdateMissingRoutes": e.mgr.UpdateMissingRoutes,
	}
	for name, call := range calls {
		err := call()
		if !errors.Is(err, util.ErrNotInitialized) {
			t.Errorf("%s() error = %v, want ErrNotInitialized", name, err)
		}
		if !util.IsFatal(err) {
			t.Errorf("%s() error should be fatal", name)
		}
	}
	if len(e.fake.Calls()) != 0 {
		t.Errorf("no remote calls expected, got %v", ops(e.fake.Calls()))
	}
}

func TestManager_SetupTwoSwitches(t *testing.T) {
	e := newEnv(t, twoSwitches())
	e.setup(t, "h1", "h2")

	r, ok := e.mgr.Table().Route("h1", "h2")
	if !ok {
		t.Fatal("no route for h1 <-> h2")
	}
	want := []model.ConnectPoint{
		model.DevicePoint("h1"),
		model.NewConnectPoint("s1", "3"),
		model.NewConnectPoint("s1", "1"),
		model.NewConnectPoint("s2", "1"),
		model.NewConnectPoint("s2", "2"),
		model.DevicePoint("h2"),
	}
	if diff := cmp.Diff(want, r.Points); diff != "" {
		t.Errorf("route points mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"h1", "s1", "s2", "h2"}, r.PathIDs()); diff != "" {
		t.Errorf("route path mismatch (-want +got):\n%s", diff)
	}
	if r.ID != "1" {
		t.Errorf("route id = %q, want 1", r.ID)
	}
	if back, _ := e.mgr.Table().Route("h2", "h1"); back.ID != r.ID {
		t.Error("both lookups should see the same route")
	}

	adds := e.fake.CallsOf(testutil.OpAdd)
	if len(adds) != 1 || len(adds[0].Routes) != 1 {
		t.Errorf("add calls = %+v, want one call with one route", adds)
	}
	if diff := cmp.Diff([]string{testutil.OpRoutes, testutil.OpAdd}, ops(e.fake.Calls())); diff != "" {
		t.Errorf("remote calls mismatch (-want +got):\n%s", diff)
	}
	e.checkSettled(t)
}

func TestManager_SetupTwice(t *testing.T) {
	e := newEnv(t, twoSwitches())
	e.setup(t, "h1", "h2")
	if err := e.mgr.Setup(context.Background(), []string{"h1", "h2"}); err == nil {
		t.Error("second Setup() should fail")
	}
}

func TestManager_SetupNoHosts(t *testing.T) {
	e := newEnv(t, testutil.NewTopology().Devices("s1").Build())
	e.fake.Seed(model.Route{Points: []model.ConnectPoint{model.DevicePoint("hx"), model.DevicePoint("hy")}})

	e.setup(t)

	if diff := cmp.Diff([]string{testutil.OpClear}, ops(e.fake.Calls())); diff != "" {
		t.Errorf("remote calls mismatch (-want +got):\n%s", diff)
	}
	if got := e.fake.Installed(); len(got) != 0 {
		t.Errorf("controller still holds %v", got)
	}
	if !e.mgr.Ready() {
		t.Error("manager should be ready after setup")
	}
}

func TestManager_SetupReconciles(t *testing.T) {
	topo := testutil.NewTopology().
		Devices("s1", "s2").
		Link("s1", 1, "s2", 1).
		Host("h1", "s1", 3).
		Host("h2", "s2", 2).
		Host("h3", "s2", 4).
		Build()
	e := newEnv(t, topo)

	valid, _ := model.RouteFromPath(e.graph, []string{"h1", "s1", "s2", "h2"})
	wrongPorts := model.Route{Points: []model.ConnectPoint{
		model.DevicePoint("h1"),
		model.NewConnectPoint("s1", "3"), model.NewConnectPoint("s1", "9"),
		model.NewConnectPoint("s2", "9"), model.NewConnectPoint("s2", "4"),
		model.DevicePoint("h3"),
	}}
	notPath := model.Route{Points: []model.ConnectPoint{
		model.DevicePoint("h2"),
		model.NewConnectPoint("s1", "3"), model.NewConnectPoint("s1", "4"),
		model.DevicePoint("h3"),
	}}
	unknown := model.Route{Points: []model.ConnectPoint{
		model.DevicePoint("h1"),
		model.NewConnectPoint("s1", "3"), model.NewConnectPoint("s1", "7"),
		model.DevicePoint("h9"),
	}}
	malformed := model.Route{Points: []model.ConnectPoint{
		model.DevicePoint("h1"),
		model.NewConnectPoint("s1", "3"),
		model.DevicePoint("h2"),
	}}
	seeded := e.fake.Seed(valid, valid, wrongPorts, notPath, unknown, malformed)

	e.setup(t, "h1", "h2", "h3")

	r, ok := e.mgr.Table().Route("h1", "h2")
	if !ok || r.ID != seeded[0].ID {
		t.Errorf("Route(h1, h2) = %v, want adopted route %s", r, seeded[0].ID)
	}

	deletes := e.fake.CallsOf(testutil.OpDelete)
	if len(deletes) != 1 {
		t.Fatalf("delete calls = %d, want 1", len(deletes))
	}
	var deleted []string
	for _, d := range deletes[0].Routes {
		deleted = append(deleted, d.ID)
	}
	want := []string{seeded[1].ID, seeded[2].ID, seeded[3].ID, seeded[4].ID, seeded[5].ID}
	if diff := cmp.Diff(want, deleted); diff != "" {
		t.Errorf("deleted ids mismatch (-want +got):\n%s", diff)
	}

	adds := e.fake.CallsOf(testutil.OpAdd)
	if len(adds) != 1 || len(adds[0].Routes) != 2 {
		t.Fatalf("add calls = %+v, want one call creating h1<->h3 and h2<->h3", adds)
	}
	if got := len(e.fake.Installed()); got != 3 {
		t.Errorf("controller holds %d routes, want 3", got)
	}
	e.checkSettled(t)
}

func TestManager_SetupReversedRoute(t *testing.T) {
	e := newEnv(t, twoSwitches())
	reversed, _ := model.RouteFromPath(e.graph, []string{"h2", "s2", "s1", "h1"})
	e.fake.Seed(reversed)

	e.setup(t, "h1", "h2")

	r, _ := e.mgr.Table().Route("h1", "h2")
	if r.Src().DeviceID != "h1" {
		t.Errorf("route should run h1 -> h2, got %s", r)
	}
	if diff := cmp.Diff([]string{testutil.OpRoutes, testutil.OpDelete, testutil.OpAdd}, ops(e.fake.Calls())); diff != "" {
		t.Errorf("remote calls mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_RemoveLinkAndRestore(t *testing.T) {
	e := newEnv(t, twoSwitches())
	e.setup(t, "h1", "h2")
	e.fake.ResetCalls()

	e.removeLink(t, "s1", "s2")
	e.drain(t)

	if _, ok := e.mgr.Table().Route("h1", "h2"); ok {
		t.Error("pair should have no route after its only link went away")
	}
	if !e.mgr.Table().Known("h1", "h2") {
		t.Error("pair should stay known")
	}
	deletes := e.fake.CallsOf(testutil.OpDelete)
	if len(deletes) != 1 || len(deletes[0].Routes) != 1 || deletes[0].Routes[0].ID != "1" {
		t.Errorf("delete calls = %+v, want one delete of route 1", deletes)
	}
	if len(e.fake.Calls()) != 1 {
		t.Errorf("remote calls = %v, want only the delete", ops(e.fake.Calls()))
	}
	if e.mgr.Index().HopCount() != 0 {
		t.Errorf("index still holds %d hops", e.mgr.Index().HopCount())
	}

	e.fake.ResetCalls()
	e.addLink(t, "s1", 1, "s2", 1)
	e.drain(t)

	adds := e.fake.CallsOf(testutil.OpAdd)
	if len(adds) != 1 || len(adds[0].Routes) != 1 {
		t.Errorf("add calls = %+v, want one call with one route", adds)
	}
	if len(e.fake.Calls()) != 1 {
		t.Errorf("remote calls = %v, want only the add", ops(e.fake.Calls()))
	}
	if _, ok := e.mgr.Table().Route("h1", "h2"); !ok {
		t.Error("route should be back")
	}
	e.checkSettled(t)
}

func TestManager_RemoveLinkIdempotent(t *testing.T) {
	e := newEnv(t, twoSwitches())
	e.setup(t, "h1", "h2")
	e.removeLink(t, "s1", "s2")
	e.drain(t)

	before := e.mgr.Table().Entries()
	links := e.graph.Links()
	e.fake.ResetCalls()

	e.removeLink(t, "s1", "s2")
	ok, err := e.mgr.RemoveLink("s1", "s2")
	if err != nil || !ok {
		t.Errorf("RemoveLink() = %v, %v, want true", ok, err)
	}
	e.drain(t)

	if diff := cmp.Diff(before, e.mgr.Table().Entries()); diff != "" {
		t.Errorf("table changed (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(links, e.graph.Links()); diff != "" {
		t.Errorf("mirror changed (-before +after):\n%s", diff)
	}
	if len(e.fake.Calls()) != 0 {
		t.Errorf("remote calls = %v, want none", ops(e.fake.Calls()))
	}
}

func TestManager_RingReroutes(t *testing.T) {
	e := newEnv(t, ring())
	e.setup(t, "h1", "h2", "h3", "h4")
	e.checkSettled(t)

	installed, missing := e.mgr.Table().Counts()
	if installed != 6 || missing != 0 {
		t.Fatalf("Counts() = (%d, %d), want (6, 0)", installed, missing)
	}

	affected := map[Pair]bool{}
	for _, p := range e.mgr.Index().OnHop("s1", "s2") {
		affected[p] = true
	}
	for _, p := range e.mgr.Index().OnHop("s2", "s1") {
		affected[p] = true
	}
	if len(affected) == 0 {
		t.Fatal("expected routes over s1 <-> s2")
	}

	e.removeLink(t, "s1", "s2")
	e.drain(t)

	if got := e.mgr.Index().OnHop("s1", "s2"); len(got) != 0 {
		t.Errorf("routes still over removed hop: %v", got)
	}
	installed, missing = e.mgr.Table().Counts()
	if installed != 6 || missing != 0 {
		t.Errorf("Counts() = (%d, %d), want every pair rerouted", installed, missing)
	}
	for p := range affected {
		r, _ := e.mgr.Table().Route(p.A, p.B)
		for _, h := range r.Hops() {
			if (h.Src == "s1" && h.Dst == "s2") || (h.Src == "s2" && h.Dst == "s1") {
				t.Errorf("route %s still uses the removed link", r)
			}
		}
	}
	if got := len(e.fake.Installed()); got != 6 {
		t.Errorf("controller holds %d routes, want 6", got)
	}
	e.checkSettled(t)
}

func TestManager_AddHost(t *testing.T) {
	topo := testutil.NewTopology().
		Devices("s1", "s2").
		Link("s1", 1, "s2", 1).
		Host("h1", "s1", 3).
		Host("h2", "s2", 2).
		Build()
	e := newEnv(t, topo)
	e.setup(t, "h1", "h2")
	e.fake.ResetCalls()

	e.graph.AddHost("h3", "s2", "5")
	added, err := e.mgr.AddHost("h3")
	if err != nil || !added {
		t.Fatalf("AddHost(h3) = %v, %v", added, err)
	}
	e.drain(t)

	adds := e.fake.CallsOf(testutil.OpAdd)
	if len(adds) != 1 || len(adds[0].Routes) != 2 {
		t.Errorf("add calls = %+v, want one call with two routes", adds)
	}
	if again, _ := e.mgr.AddHost("h3"); again {
		t.Error("AddHost on a known host should return false")
	}
	e.checkSettled(t)
}

func TestManager_AddUnreachableHost(t *testing.T) {
	e := newEnv(t, twoSwitches())
	e.setup(t, "h1", "h2")
	e.fake.ResetCalls()

	e.graph.AddDevice("s9")
	e.graph.AddHost("h9", "s9", "1")
	if _, err := e.mgr.AddHost("h9"); err != nil {
		t.Fatalf("AddHost(h9) error = %v", err)
	}
	e.drain(t)

	if len(e.fake.Calls()) != 0 {
		t.Errorf("remote calls = %v, want none for an unreachable host", ops(e.fake.Calls()))
	}
	if _, missing := e.mgr.Table().Counts(); missing != 2 {
		t.Errorf("missing = %d, want 2", missing)
	}

	e.addLink(t, "s2", 7, "s9", 7)
	e.drain(t)
	if _, missing := e.mgr.Table().Counts(); missing != 0 {
		t.Errorf("missing = %d after connecting s9, want 0", missing)
	}
	e.checkSettled(t)
}

func TestManager_RemoveHost(t *testing.T) {
	e := newEnv(t, ring())
	e.setup(t, "h1", "h2", "h3", "h4")
	e.fake.ResetCalls()

	ok, err := e.mgr.RemoveHost("h2")
	if err != nil || !ok {
		t.Fatalf("RemoveHost(h2) = %v, %v", ok, err)
	}
	e.graph.RemoveHost("h2")
	e.drain(t)

	if e.mgr.Table().HasHost("h2") {
		t.Error("h2 should be forgotten")
	}
	deletes := e.fake.CallsOf(testutil.OpDelete)
	if len(deletes) != 1 || len(deletes[0].Routes) != 3 {
		t.Errorf("delete calls = %+v, want one call with three routes", deletes)
	}
	if len(e.fake.CallsOf(testutil.OpAdd)) != 0 {
		t.Error("removing a host should not create routes")
	}
	if got := len(e.fake.Installed()); got != 3 {
		t.Errorf("controller holds %d routes, want 3", got)
	}

	if ok, err := e.mgr.RemoveHost("h2"); ok || err != nil {
		t.Errorf("RemoveHost(unknown) = %v, %v, want false, nil", ok, err)
	}
	e.checkSettled(t)
}

func TestManager_RemoveDevice(t *testing.T) {
	topo := testutil.NewTopology().
		Devices("s1", "s2", "s3").
		Link("s1", 1, "s2", 1).
		Link("s2", 2, "s3", 1).
		Host("h1", "s1", 3).
		Host("h2", "s2", 3).
		Host("h3", "s3", 3).
		Host("h4", "s3", 4).
		Build()
	e := newEnv(t, topo)
	e.setup(t, "h1", "h2", "h3", "h4")
	e.fake.ResetCalls()

	e.graph.RemoveDevice("s3")
	ok, err := e.mgr.RemoveDevice("s3")
	if err != nil || !ok {
		t.Fatalf("RemoveDevice(s3) = %v, %v", ok, err)
	}
	e.drain(t)

	// h1-h2 survives; every pair touching h3 or h4 loses its route,
	// including h3-h4 that only crosses s3.
	installed, missing := e.mgr.Table().Counts()
	if installed != 1 || missing != 5 {
		t.Errorf("Counts() = (%d, %d), want (1, 5)", installed, missing)
	}
	deletes := e.fake.CallsOf(testutil.OpDelete)
	if len(deletes) != 1 || len(deletes[0].Routes) != 5 {
		t.Errorf("delete calls = %+v, want one call with five routes", deletes)
	}
	e.checkSettled(t)
}

func TestManager_RouteExists(t *testing.T) {
	e := newEnv(t, twoSwitches())
	e.setup(t, "h1", "h2")

	r, _ := e.mgr.Table().Route("h1", "h2")
	err := e.mgr.addRoute(NewPair("h1", "h2"), r)
	if !errors.Is(err, util.ErrRouteExists) {
		t.Errorf("addRoute() error = %v, want ErrRouteExists", err)
	}
	if !util.IsFatal(err) {
		t.Error("ErrRouteExists should be fatal")
	}
}

func TestManager_DeleteBeforeCreateFlush(t *testing.T) {
	e := newEnv(t, twoSwitches())
	if err := e.mgr.Setup(context.Background(), []string{"h1", "h2"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.mgr.RemoveHost("h2"); err != nil {
		t.Fatal(err)
	}
	e.drain(t)

	deletes := e.fake.CallsOf(testutil.OpDelete)
	if len(deletes) != 1 || deletes[0].Routes[0].ID != "1" {
		t.Errorf("delete calls = %+v, want route 1 deleted by id", deletes)
	}
	if got := e.fake.Installed(); len(got) != 0 {
		t.Errorf("controller still holds %v", got)
	}
}

func TestManager_HostMoveKeepsIndex(t *testing.T) {
	e := newEnv(t, ring())
	e.setup(t, "h1", "h2", "h3", "h4")

	// Move h2 from s2 to s3 without letting the deletions flush first.
	if _, err := e.mgr.RemoveHost("h2"); err != nil {
		t.Fatal(err)
	}
	e.graph.RemoveHost("h2")
	e.graph.AddHost("h2", "s3", "11")
	if _, err := e.mgr.AddHost("h2"); err != nil {
		t.Fatal(err)
	}
	e.drain(t)

	installed, missing := e.mgr.Table().Counts()
	if installed != 6 || missing != 0 {
		t.Errorf("Counts() = (%d, %d), want (6, 0)", installed, missing)
	}
	if got := len(e.fake.Installed()); got != 6 {
		t.Errorf("controller holds %d routes, want 6", got)
	}
	e.checkSettled(t)
}

func TestManager_HostReattachedSameLocation(t *testing.T) {
	e := newEnv(t, twoSwitches())
	e.setup(t, "h1", "h2")
	e.fake.ResetCalls()

	// The delete of the old route and the create of its identical
	// replacement flush in that order.
	if _, err := e.mgr.RemoveHost("h2"); err != nil {
		t.Fatal(err)
	}
	e.graph.RemoveHost("h2")
	e.graph.AddHost("h2", "s2", "2")
	if _, err := e.mgr.AddHost("h2"); err != nil {
		t.Fatal(err)
	}
	e.drain(t)

	if diff := cmp.Diff([]string{testutil.OpDelete, testutil.OpAdd}, ops(e.fake.Calls())); diff != "" {
		t.Errorf("remote calls mismatch (-want +got):\n%s", diff)
	}
	r, ok := e.mgr.Table().Route("h1", "h2")
	if !ok {
		t.Fatal("no route for h1 <-> h2 after re-attach")
	}
	installed := e.fake.Installed()
	if len(installed) != 1 || installed[0].ID != r.ID {
		t.Errorf("controller holds %v, want only route %s", installed, r.ID)
	}
	e.checkSettled(t)
}

func TestManager_StaleFlushIgnored(t *testing.T) {
	e := newEnv(t, twoSwitches())
	e.setup(t, "h1", "h2")

	r, _ := e.mgr.Table().Route("h1", "h2")
	// Same points, different instance: neither flush may touch the slot.
	if e.mgr.deleted(r, 0) {
		t.Error("deleted() accepted a mutation without a serial")
	}
	if e.mgr.deleted(r, e.mgr.serial+1) {
		t.Error("deleted() accepted a serial the table never issued")
	}
	if e.mgr.created(r.WithID(""), e.mgr.serial+1) {
		t.Error("created() accepted a serial the table never issued")
	}
	if got, ok := e.mgr.Table().Route("h1", "h2"); !ok || got.ID != r.ID {
		t.Errorf("Route() = %v, %v, want %v", got, ok, r)
	}
}
