package testutil

import (
	"testing"
	"time"

	"github.com/newtron-network/routevnf/pkg/controller"
	"github.com/newtron-network/routevnf/pkg/event"
	"github.com/newtron-network/routevnf/pkg/topology"
)

// TopologyBuilder assembles controller snapshots for tests.
type TopologyBuilder struct {
	topo controller.Topology
}

// NewTopology starts an empty snapshot.
func NewTopology() *TopologyBuilder {
	return &TopologyBuilder{}
}

// Devices adds switches.
func (b *TopologyBuilder) Devices(ids ...string) *TopologyBuilder {
	for _, id := range ids {
		b.topo.Devices = append(b.topo.Devices, controller.DeviceDTO{ID: id, Type: "SWITCH"})
	}
	return b
}

// Link adds an active direct link in both directions.
func (b *TopologyBuilder) Link(src string, srcPort int64, dst string, dstPort int64) *TopologyBuilder {
	b.topo.Links = append(b.topo.Links,
		LinkDTO(src, srcPort, dst, dstPort, "ACTIVE"),
		LinkDTO(dst, dstPort, src, srcPort, "ACTIVE"))
	return b
}

// Host attaches a host to a switch port.
func (b *TopologyBuilder) Host(id, sw string, port int64) *TopologyBuilder {
	b.topo.Hosts = append(b.topo.Hosts, HostDTO(id, sw, port))
	return b
}

// Build returns the snapshot.
func (b *TopologyBuilder) Build() controller.Topology {
	return b.topo
}

// LinkDTO builds one direct link.
func LinkDTO(src string, srcPort int64, dst string, dstPort int64, state string) controller.LinkDTO {
	return controller.LinkDTO{
		Type:  "DIRECT",
		State: state,
		Src:   controller.ConnectPointDTO{ID: src, Port: &srcPort},
		Dst:   controller.ConnectPointDTO{ID: dst, Port: &dstPort},
	}
}

// HostDTO builds one host.
func HostDTO(id, sw string, port int64) controller.HostDTO {
	return controller.HostDTO{
		ID:       id,
		MAC:      "00:00:00:00:00:00",
		VLAN:     -1,
		Location: controller.DevicePointDTO{ID: sw, Port: port},
	}
}

// LinkEvent builds a link event payload.
func LinkEvent(typ string, l controller.LinkDTO) controller.LinkEventDTO {
	return controller.LinkEventDTO{Type: typ, Time: time.Now().UnixMilli(), Subject: l}
}

// HostEvent builds a host event payload.
func HostEvent(typ string, h controller.HostDTO, prev *controller.HostDTO) controller.HostEventDTO {
	return controller.HostEventDTO{Type: typ, Time: time.Now().UnixMilli(), Subject: h, PrevSubject: prev}
}

// DeviceEvent builds a device event payload.
func DeviceEvent(typ, id string, available bool) controller.DeviceEventDTO {
	return controller.DeviceEventDTO{
		Type:         typ,
		Time:         time.Now().UnixMilli(),
		Availability: available,
		Subject:      controller.DeviceDTO{ID: id, Type: "SWITCH"},
	}
}

// BuildMirror loads a snapshot into a new mirror.
func BuildMirror(topo controller.Topology) *topology.Mirror {
	m := topology.NewMirror()
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
	return m
}

// WaitFor polls cond until it returns true or timeout passes.
func WaitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v waiting for %s", timeout, what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
