package controller

import (
	"fmt"
	"strconv"

	"github.com/newtron-network/routevnf/pkg/model"
)

// ConnectPointDTO is a device or host location. Port is nil for a whole
// device or a host endpoint.
type ConnectPointDTO struct {
	ID   string `json:"id"`
	Port *int64 `json:"port"`
}

// DevicePointDTO is the attachment point of a host.
type DevicePointDTO struct {
	ID   string `json:"id"`
	Port int64  `json:"port"`
}

// LinkDTO is a directed infrastructure link.
type LinkDTO struct {
	Type  string          `json:"type"`
	State string          `json:"state"`
	Src   ConnectPointDTO `json:"src"`
	Dst   ConnectPointDTO `json:"dst"`
}

// DeviceDTO is a network device.
type DeviceDTO struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// HostDTO is an end host and its attachment point.
type HostDTO struct {
	ID       string         `json:"id"`
	MAC      string         `json:"mac"`
	VLAN     int16          `json:"vlan"`
	Location DevicePointDTO `json:"location"`
}

// Topology is a full snapshot of the controller's view.
type Topology struct {
	Devices []DeviceDTO `json:"devices"`
	Hosts   []HostDTO   `json:"hosts"`
	Links   []LinkDTO   `json:"links"`
}

// HostIDs returns the identifiers of every host in the snapshot.
func (t *Topology) HostIDs() []string {
	ids := make([]string, len(t.Hosts))
	for i, h := range t.Hosts {
		ids[i] = h.ID
	}
	return ids
}

// LinkEventDTO is the payload of a link event.
type LinkEventDTO struct {
	Type    string  `json:"type"`
	Time    int64   `json:"time"`
	Subject LinkDTO `json:"subject"`
}

// DeviceEventDTO is the payload of a device event. Availability is the
// device's state when the event was sent.
type DeviceEventDTO struct {
	Type         string    `json:"type"`
	Time         int64     `json:"time"`
	Availability bool      `json:"availability"`
	Subject      DeviceDTO `json:"subject"`
}

// HostEventDTO is the payload of a host event. PrevSubject is set for
// moves and updates.
type HostEventDTO struct {
	Type        string   `json:"type"`
	Time        int64    `json:"time"`
	Subject     HostDTO  `json:"subject"`
	PrevSubject *HostDTO `json:"prevSubject,omitempty"`
}

// RouteDTO is a route on the wire. Create responses carry only the ID.
type RouteDTO struct {
	ID     *int64            `json:"id"`
	Points []ConnectPointDTO `json:"points,omitempty"`
}

// PortString formats a wire port number.
func PortString(port int64) string {
	return strconv.FormatInt(port, 10)
}

func parsePort(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return &n, nil
}

// RouteToDTO converts a route to its wire form.
func RouteToDTO(r model.Route) (RouteDTO, error) {
	dto := RouteDTO{Points: make([]ConnectPointDTO, len(r.Points))}
	if r.ID != "" {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			return RouteDTO{}, fmt.Errorf("route %s: invalid id: %w", r, err)
		}
		dto.ID = &id
	}
	for i, p := range r.Points {
		port, err := parsePort(p.Port)
		if err != nil {
			return RouteDTO{}, fmt.Errorf("route %s: %w", r, err)
		}
		dto.Points[i] = ConnectPointDTO{ID: p.DeviceID, Port: port}
	}
	return dto, nil
}

// RouteFromDTO converts a wire route to the model.
func RouteFromDTO(dto RouteDTO) model.Route {
	r := model.Route{Points: make([]model.ConnectPoint, len(dto.Points))}
	if dto.ID != nil {
		r.ID = strconv.FormatInt(*dto.ID, 10)
	}
	for i, p := range dto.Points {
		cp := model.DevicePoint(p.ID)
		if p.Port != nil {
			cp.Port = PortString(*p.Port)
		}
		r.Points[i] = cp
	}
	return r
}
