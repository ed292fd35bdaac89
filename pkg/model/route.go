package model

import (
	"fmt"
	"strings"

	"github.com/newtron-network/routevnf/pkg/util"
)

// Route is a path between two hosts expressed as connect points:
//
//	src, in(d1), out(d1), in(d2), out(d2), ..., dst
//
// Each interior pair names the entry and exit port of one device. ID is
// assigned by the controller once it acknowledges the route; routes are
// values and are never modified in place.
type Route struct {
	Points []ConnectPoint `json:"points"`
	ID     string         `json:"id,omitempty"`
}

// PortLookup resolves the ports of a directed edge.
type PortLookup interface {
	Ports(src, dst string) (srcPort, dstPort string, ok bool)
}

// RouteFromPath builds a route from a node path (host, device..., host)
// using the edge ports known to g.
func RouteFromPath(g PortLookup, path []string) (Route, error) {
	if len(path) < 2 {
		return Route{}, fmt.Errorf("route from path %v: need at least 2 nodes", path)
	}

	points := make([]ConnectPoint, 0, 2*(len(path)-1))
	for i := 0; i < len(path)-1; i++ {
		src, dst := path[i], path[i+1]
		srcPort, dstPort, ok := g.Ports(src, dst)
		if !ok {
			return Route{}, fmt.Errorf("route from path %v: no link %s->%s", path, src, dst)
		}
		points = append(points, ConnectPoint{DeviceID: src, Port: srcPort})
		points = append(points, ConnectPoint{DeviceID: dst, Port: dstPort})
	}
	return Route{Points: points}, nil
}

// Validate checks the point alternation invariant.
func (r Route) Validate() error {
	n := len(r.Points)
	if n < 2 {
		return util.NewInvalidRouteError(r.String(), "fewer than 2 points")
	}
	if (n-2)%2 != 0 {
		return util.NewInvalidRouteError(r.String(), "odd number of interior points")
	}
	if r.Src().HasPort() || r.Dst().HasPort() {
		return util.NewInvalidRouteError(r.String(), "endpoints must not carry ports")
	}
	for i := 1; i < n-1; i += 2 {
		if r.Points[i].DeviceID != r.Points[i+1].DeviceID {
			return util.NewInvalidRouteError(r.String(),
				fmt.Sprintf("points %d and %d are on different devices", i, i+1))
		}
	}
	return nil
}

// Src returns the first point
func (r Route) Src() ConnectPoint {
	return r.Points[0]
}

// Dst returns the last point
func (r Route) Dst() ConnectPoint {
	return r.Points[len(r.Points)-1]
}

// Path returns the endpoints and every traversed device in order,
// collapsing the entry/exit port duplication.
func (r Route) Path() []ConnectPoint {
	path := make([]ConnectPoint, 0, len(r.Points)/2+1)
	path = append(path, r.Src())
	for i := 1; i < len(r.Points)-1; i += 2 {
		path = append(path, r.Points[i])
	}
	return append(path, r.Dst())
}

// PathIDs returns the node identifiers of Path.
func (r Route) PathIDs() []string {
	path := r.Path()
	ids := make([]string, len(path))
	for i, p := range path {
		ids[i] = p.DeviceID
	}
	return ids
}

// Devices returns every interior device with its port stripped.
func (r Route) Devices() []ConnectPoint {
	devices := make([]ConnectPoint, 0, len(r.Points)/2)
	for i := 1; i < len(r.Points)-1; i += 2 {
		devices = append(devices, r.Points[i].Device())
	}
	return devices
}

// Hops returns the directed device-to-device steps of the route.
func (r Route) Hops() []Hop {
	devices := r.Devices()
	if len(devices) < 2 {
		return nil
	}
	hops := make([]Hop, 0, len(devices)-1)
	for i := 0; i < len(devices)-1; i++ {
		hops = append(hops, Hop{Src: devices[i].DeviceID, Dst: devices[i+1].DeviceID})
	}
	return hops
}

// WithID returns a copy of the route carrying the given identifier.
func (r Route) WithID(id string) Route {
	points := make([]ConnectPoint, len(r.Points))
	copy(points, r.Points)
	return Route{Points: points, ID: id}
}

// SamePoints returns true if both routes traverse the same points,
// regardless of identifier.
func (r Route) SamePoints(other Route) bool {
	if len(r.Points) != len(other.Points) {
		return false
	}
	for i := range r.Points {
		if r.Points[i] != other.Points[i] {
			return false
		}
	}
	return true
}

// Key returns a string that identifies the route's points.
func (r Route) Key() string {
	parts := make([]string, len(r.Points))
	for i, p := range r.Points {
		parts[i] = p.String()
	}
	return strings.Join(parts, "|")
}

func (r Route) String() string {
	parts := make([]string, len(r.Points))
	for i, p := range r.Points {
		parts[i] = p.String()
	}
	s := "[" + strings.Join(parts, " ") + "]"
	if r.ID != "" {
		s += "#" + r.ID
	}
	return s
}
