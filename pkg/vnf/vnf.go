// Package vnf runs the routing VNF: it mirrors the controller's topology
// from its event stream and keeps a shortest-path route installed for
// every pair of connected hosts.
//
// A VNF runs three goroutines under one errgroup. The listener copies
// raw events from the controller stream into an in-process FIFO. The
// consumer bootstraps the mirror and route table, then applies events in
// order. The batcher sends queued route mutations to the controller. The
// mirror, table and queue are only touched under the VNF's state lock.
package vnf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newtron-network/routevnf/pkg/controller"
	"github.com/newtron-network/routevnf/pkg/event"
	"github.com/newtron-network/routevnf/pkg/metrics"
	"github.com/newtron-network/routevnf/pkg/routing"
	"github.com/newtron-network/routevnf/pkg/topology"
	"github.com/newtron-network/routevnf/pkg/util"
)

// Controller is the part of the controller API the VNF uses.
type Controller interface {
	routing.Remote
	Topology(ctx context.Context) (*controller.Topology, error)
	Events(ctx context.Context) (controller.Stream, error)
}

// Config tunes a VNF. The zero value is usable.
type Config struct {
	// SettleDelay is waited between opening the event stream and loading
	// the snapshot. Zero means no wait.
	SettleDelay time.Duration

	// Observer follows flushed batches and the bootstrapped table.
	Observer routing.Observer

	// Metrics, if set, counts applied events and tracks the mirror size.
	Metrics *metrics.Metrics
}

// VNF is one run of the routing VNF. It cannot be restarted; a
// supervisor builds a new one per attempt.
type VNF struct {
	ctl Controller
	cfg Config

	// mu is the state lock.
	mu         sync.Mutex
	mirror     *topology.Mirror
	queue      *routing.Queue
	mgr        *routing.Manager
	dispatcher *Dispatcher
	batcher    *routing.Batcher

	events *util.Queue[controller.RawEvent]
	obs    routing.Observer
}

// New creates a VNF against a controller.
func New(ctl Controller, cfg Config) *VNF {
	obs := cfg.Observer
	if obs == nil {
		obs = routing.Observers(nil)
	}
	if cfg.Metrics != nil {
		obs = routing.Observers{cfg.Metrics, obs}
	}

	v := &VNF{
		ctl:    ctl,
		cfg:    cfg,
		mirror: topology.NewMirror(),
		queue:  routing.NewQueue(),
		events: util.NewQueue[controller.RawEvent](),
		obs:    obs,
	}
	v.mgr = routing.NewManager(v.mirror, v.queue, ctl)
	v.dispatcher = NewDispatcher(v.mirror, v.mgr)
	v.batcher = routing.NewBatcher(v.mgr, ctl, &v.mu, obs)
	return v
}

// Run starts listening, bootstraps and processes events until ctx ends
// or a goroutine fails. It returns nil when ctx ends; errors seen while
// shutting down are logged.
func (v *VNF) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// Listen before loading the snapshot so no event between the two is
	// lost.
	stream, err := v.ctl.Events(gctx)
	if err != nil {
		return fmt.Errorf("vnf: open event stream: %w", err)
	}
	defer stream.Close()

	g.Go(func() error { return v.listen(gctx, stream) })
	g.Go(func() error {
		if err := v.bootstrap(gctx); err != nil {
			return err
		}
		return v.consume(gctx)
	})
	g.Go(func() error { return v.batcher.Run(gctx) })

	err = g.Wait()
	if ctx.Err() != nil {
		if err != nil && !errors.Is(err, context.Canceled) {
			util.Warnf("Ignoring error during shutdown: %v", err)
		}
		return nil
	}
	return err
}

func (v *VNF) listen(ctx context.Context, stream controller.Stream) error {
	for {
		raw, err := stream.Recv()
		if err != nil {
			return fmt.Errorf("vnf: event stream: %w", err)
		}
		util.WithField("event", raw.Name).Debugf("Received %d bytes", len(raw.Data))
		v.events.Push(raw)
	}
}

func (v *VNF) bootstrap(ctx context.Context) error {
	if d := v.cfg.SettleDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	util.Info("Loading topology...")
	topo, err := v.ctl.Topology(ctx)
	if err != nil {
		return fmt.Errorf("vnf: load topology: %w", err)
	}

	// The batcher applies flushes under the same lock, so observers see
	// the synced table before any batch that follows it.
	v.mu.Lock()
	loadSnapshot(v.mirror, topo)
	err = v.mgr.Setup(ctx, topo.HostIDs())
	entries := v.mgr.Table().Entries()
	nodes, links := v.mirror.NodeCount(), v.mirror.LinkCount()
	if err == nil {
		v.obs.TableSynced(entries)
	}
	v.mu.Unlock()
	if err != nil {
		return err
	}

	if v.cfg.Metrics != nil {
		v.cfg.Metrics.MirrorSize(nodes, links)
	}
	util.Infof("Loaded topology: %d nodes, %d links, %d host pairs", nodes, links, len(entries))
	return nil
}

// loadSnapshot adds every device, host and active direct link of a
// snapshot to the mirror.
func loadSnapshot(m *topology.Mirror, topo *controller.Topology) {
	for _, d := range topo.Devices {
		m.AddDevice(d.ID)
	}
	for _, h := range topo.Hosts {
		host := event.HostFromDTO(h)
		m.AddHost(host.ID, host.Switch, host.Port)
	}
	for _, l := range topo.Links {
		if ev, ok := event.LinkFromDTO(l); ok && l.State == "ACTIVE" {
			m.AddLink(ev.Src, ev.Dst, ev.SrcPort, ev.DstPort)
		}
	}
}

func (v *VNF) consume(ctx context.Context) error {
	util.Info("Listening on events...")
	for {
		raw, err := v.events.Pop(ctx)
		if err != nil {
			return err
		}

		events, err := event.Decode(raw)
		if err != nil {
			if util.IsFatal(err) {
				return fmt.Errorf("vnf: %w", err)
			}
			util.WithField("event", raw.Name).Warnf("Skipping event: %v", err)
			continue
		}
		if err := v.apply(events); err != nil {
			return fmt.Errorf("vnf: apply %s event: %w", raw.Name, err)
		}
	}
}

func (v *VNF) apply(events []event.Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, ev := range events {
		if err := v.dispatcher.Apply(ev); err != nil {
			return err
		}
		if v.cfg.Metrics != nil {
			v.cfg.Metrics.EventApplied(ev.Family())
		}
	}
	if v.cfg.Metrics != nil {
		v.cfg.Metrics.MirrorSize(v.mirror.NodeCount(), v.mirror.LinkCount())
	}
	return nil
}

// Ready returns true once bootstrap has completed.
func (v *VNF) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mgr.Ready()
}

// Snapshot is a consistent copy of the VNF's state.
type Snapshot struct {
	Ready     bool            `json:"ready"`
	Installed int             `json:"installed"`
	Missing   int             `json:"missing"`
	Queued    int             `json:"queued"`
	Routes    []routing.Entry `json:"routes"`
	Nodes     []string        `json:"nodes"`
	Links     []topology.Link `json:"links"`
}

// Snapshot copies the current state.
func (v *VNF) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	installed, missing := v.mgr.Table().Counts()
	return Snapshot{
		Ready:     v.mgr.Ready(),
		Installed: installed,
		Missing:   missing,
		Queued:    v.queue.Len(),
		Routes:    v.mgr.Table().Entries(),
		Nodes:     v.mirror.Nodes(),
		Links:     v.mirror.Links(),
	}
}
