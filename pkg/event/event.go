// Package event decodes the controller's event stream into typed
// topology events.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/newtron-network/routevnf/pkg/controller"
	"github.com/newtron-network/routevnf/pkg/util"
)

// Stream event names.
const (
	NameTopology = "topology"
	NameLink     = "link"
	NameDevice   = "device"
	NameHost     = "host"
)

// Event is a decoded topology change. The set of implementations is
// closed: LinkEvent, DeviceEvent and HostEvent.
type Event interface {
	Family() string
	event()
}

// LinkOp is what a link event does to the mirror.
type LinkOp int

const (
	LinkUp LinkOp = iota
	LinkDown
)

func (o LinkOp) String() string {
	if o == LinkUp {
		return "up"
	}
	return "down"
}

// LinkEvent adds or removes the directed link Src->Dst.
type LinkEvent struct {
	Op      LinkOp
	Type    string
	Src     string
	Dst     string
	SrcPort string
	DstPort string
}

// DeviceOp is what a device event does to the mirror.
type DeviceOp int

const (
	DeviceAdded DeviceOp = iota
	DeviceRemoved
)

func (o DeviceOp) String() string {
	if o == DeviceAdded {
		return "added"
	}
	return "removed"
}

// DeviceEvent adds or removes a device.
type DeviceEvent struct {
	Op     DeviceOp
	Type   string
	Device string
}

// HostOp is what a host event does to the mirror.
type HostOp int

const (
	HostAdded HostOp = iota
	HostRemoved
	HostMoved
)

func (o HostOp) String() string {
	switch o {
	case HostAdded:
		return "added"
	case HostRemoved:
		return "removed"
	default:
		return "moved"
	}
}

// Host is a host and its attachment point.
type Host struct {
	ID     string
	Switch string
	Port   string
}

// HostEvent adds, removes or moves a host. Prev is set for moves.
type HostEvent struct {
	Op   HostOp
	Type string
	Host Host
	Prev *Host
}

func (LinkEvent) Family() string   { return NameLink }
func (DeviceEvent) Family() string { return NameDevice }
func (HostEvent) Family() string   { return NameHost }

func (LinkEvent) event()   {}
func (DeviceEvent) event() {}
func (HostEvent) event()   {}

// UnknownEventError reports an event name or type this package cannot
// decode. It wraps util.ErrUnknownEvent.
type UnknownEventError struct {
	Name string
	Type string
}

func (e *UnknownEventError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("unknown event %q", e.Name)
	}
	return fmt.Sprintf("unknown %s event type %q", e.Name, e.Type)
}

func (e *UnknownEventError) Unwrap() error {
	return util.ErrUnknownEvent
}

// Decode turns one raw stream event into zero or more topology events.
// Events that do not change the topology decode to nothing.
func Decode(raw controller.RawEvent) ([]Event, error) {
	switch raw.Name {
	case NameTopology:
		var dtos []controller.LinkEventDTO
		if err := json.Unmarshal(raw.Data, &dtos); err != nil {
			return nil, fmt.Errorf("event: decode %s: %w", raw.Name, err)
		}
		var events []Event
		for _, dto := range dtos {
			ev, ok, err := decodeLink(dto)
			if err != nil {
				return nil, err
			}
			if ok {
				events = append(events, ev)
			}
		}
		return events, nil

	case NameLink:
		var dto controller.LinkEventDTO
		if err := json.Unmarshal(raw.Data, &dto); err != nil {
			return nil, fmt.Errorf("event: decode %s: %w", raw.Name, err)
		}
		return one(decodeLink(dto))

	case NameDevice:
		var dto controller.DeviceEventDTO
		if err := json.Unmarshal(raw.Data, &dto); err != nil {
			return nil, fmt.Errorf("event: decode %s: %w", raw.Name, err)
		}
		return one(decodeDevice(dto))

	case NameHost:
		var dto controller.HostEventDTO
		if err := json.Unmarshal(raw.Data, &dto); err != nil {
			return nil, fmt.Errorf("event: decode %s: %w", raw.Name, err)
		}
		return one(decodeHost(dto))

	default:
		return nil, &UnknownEventError{Name: raw.Name}
	}
}

func one(ev Event, ok bool, err error) ([]Event, error) {
	if err != nil || !ok {
		return nil, err
	}
	return []Event{ev}, nil
}

func portOf(p *int64) string {
	if p == nil {
		return ""
	}
	return controller.PortString(*p)
}

// LinkFromDTO converts a snapshot or event link. It returns false for
// links that are not direct infrastructure links.
func LinkFromDTO(l controller.LinkDTO) (LinkEvent, bool) {
	if l.Type != "DIRECT" {
		return LinkEvent{}, false
	}
	return LinkEvent{
		Src:     l.Src.ID,
		Dst:     l.Dst.ID,
		SrcPort: portOf(l.Src.Port),
		DstPort: portOf(l.Dst.Port),
	}, true
}

func decodeLink(dto controller.LinkEventDTO) (Event, bool, error) {
	ev, ok := LinkFromDTO(dto.Subject)
	if !ok {
		return nil, false, nil
	}
	ev.Type = dto.Type

	active := dto.Subject.State == "ACTIVE"
	switch dto.Type {
	case "LINK_ADDED":
		if !active {
			return nil, false, nil
		}
		ev.Op = LinkUp
	case "LINK_UPDATED":
		switch dto.Subject.State {
		case "ACTIVE":
			ev.Op = LinkUp
		case "INACTIVE":
			ev.Op = LinkDown
		default:
			return nil, false, nil
		}
	case "LINK_REMOVED":
		ev.Op = LinkDown
	default:
		return nil, false, &UnknownEventError{Name: NameLink, Type: dto.Type}
	}
	return ev, true, nil
}

func decodeDevice(dto controller.DeviceEventDTO) (Event, bool, error) {
	ev := DeviceEvent{Type: dto.Type, Device: dto.Subject.ID}
	switch dto.Type {
	case "DEVICE_ADDED":
		ev.Op = DeviceAdded
	case "DEVICE_REMOVED":
		ev.Op = DeviceRemoved
	case "DEVICE_AVAILABILITY_CHANGED":
		if dto.Availability {
			ev.Op = DeviceAdded
		} else {
			ev.Op = DeviceRemoved
		}
	case "DEVICE_UPDATED", "DEVICE_SUSPENDED":
		return nil, false, nil
	default:
		return nil, false, &UnknownEventError{Name: NameDevice, Type: dto.Type}
	}
	return ev, true, nil
}

// HostFromDTO converts a snapshot or event host.
func HostFromDTO(h controller.HostDTO) Host {
	return Host{
		ID:     h.ID,
		Switch: h.Location.ID,
		Port:   controller.PortString(h.Location.Port),
	}
}

func decodeHost(dto controller.HostEventDTO) (Event, bool, error) {
	ev := HostEvent{Type: dto.Type, Host: HostFromDTO(dto.Subject)}
	switch dto.Type {
	case "HOST_ADDED":
		ev.Op = HostAdded
	case "HOST_REMOVED":
		ev.Op = HostRemoved
	case "HOST_MOVED", "HOST_UPDATED":
		// A move without a previous subject re-attaches the same host.
		prev := ev.Host
		if dto.PrevSubject != nil {
			prev = HostFromDTO(*dto.PrevSubject)
		}
		if dto.Type == "HOST_UPDATED" && prev == ev.Host {
			return nil, false, nil
		}
		ev.Op = HostMoved
		ev.Prev = &prev
	default:
		return nil, false, &UnknownEventError{Name: NameHost, Type: dto.Type}
	}
	return ev, true, nil
}
