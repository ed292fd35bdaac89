package vnf

import (
	"github.com/newtron-network/routevnf/pkg/event"
	"github.com/newtron-network/routevnf/pkg/routing"
	"github.com/newtron-network/routevnf/pkg/topology"
	"github.com/newtron-network/routevnf/pkg/util"
)

// Dispatcher applies topology events to the mirror and the route table.
// The state lock must be held for every call.
type Dispatcher struct {
	mirror *topology.Mirror
	mgr    *routing.Manager
}

// NewDispatcher creates a dispatcher over a mirror and its manager.
func NewDispatcher(mirror *topology.Mirror, mgr *routing.Manager) *Dispatcher {
	return &Dispatcher{mirror: mirror, mgr: mgr}
}

// Apply applies one event to completion.
func (d *Dispatcher) Apply(ev event.Event) error {
	switch ev := ev.(type) {
	case event.LinkEvent:
		return d.link(ev)
	case event.DeviceEvent:
		return d.device(ev)
	case event.HostEvent:
		return d.host(ev)
	default:
		return &event.UnknownEventError{Name: ev.Family()}
	}
}

func (d *Dispatcher) link(ev event.LinkEvent) error {
	log := util.WithLink(ev.Src, ev.Dst)
	if ev.Op == event.LinkUp {
		log.Debugf("Link up (%s)", ev.Type)
		d.mirror.AddLink(ev.Src, ev.Dst, ev.SrcPort, ev.DstPort)
		return d.mgr.UpdateMissingRoutes()
	}

	log.Debugf("Link down (%s)", ev.Type)
	d.mirror.RemoveLink(ev.Src, ev.Dst)
	ok, err := d.mgr.RemoveLink(ev.Src, ev.Dst)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn("Not every route over the link could be removed")
	}
	return nil
}

func (d *Dispatcher) device(ev event.DeviceEvent) error {
	log := util.WithDevice(ev.Device)
	if ev.Op == event.DeviceAdded {
		log.Debugf("Device added (%s)", ev.Type)
		d.mirror.AddDevice(ev.Device)
		return nil
	}

	log.Debugf("Device removed (%s)", ev.Type)
	d.mirror.RemoveDevice(ev.Device)
	ok, err := d.mgr.RemoveDevice(ev.Device)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn("Not every route through the device could be removed")
	}
	return nil
}

func (d *Dispatcher) host(ev event.HostEvent) error {
	switch ev.Op {
	case event.HostAdded:
		return d.addHost(ev.Host)
	case event.HostRemoved:
		return d.removeHost(ev.Host)
	default:
		util.WithHost(ev.Host.ID).Debugf("Host moved from %s/%s to %s/%s",
			ev.Prev.Switch, ev.Prev.Port, ev.Host.Switch, ev.Host.Port)
		if err := d.removeHost(*ev.Prev); err != nil {
			return err
		}
		return d.addHost(ev.Host)
	}
}

func (d *Dispatcher) addHost(h event.Host) error {
	d.mirror.AddHost(h.ID, h.Switch, h.Port)
	added, err := d.mgr.AddHost(h.ID)
	if err != nil {
		return err
	}
	if added {
		util.WithHost(h.ID).Infof("Host attached at %s/%s", h.Switch, h.Port)
	}
	return nil
}

func (d *Dispatcher) removeHost(h event.Host) error {
	removed, err := d.mgr.RemoveHost(h.ID)
	if err != nil {
		return err
	}
	d.mirror.RemoveHost(h.ID)
	if removed {
		util.WithHost(h.ID).Info("Host detached")
	}
	return nil
}
